// Package storage persists scraped products and scrape-cycle bookkeeping.
// Products are keyed by (url, source_name): re-scraping an existing listing
// refreshes its fields and last_seen while first_seen survives. Listings
// that stop appearing are flipped inactive, never deleted.
package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/larsks/hamrss/internal/catalog"
	"github.com/larsks/hamrss/internal/config"
)

// Run statuses.
const (
	RunStatusRunning   = "running"
	RunStatusCompleted = "completed"
	RunStatusPartial   = "partial"
	RunStatusFailed    = "failed"
)

// Scrape error kinds, classifying entries in the error log.
const (
	ErrorKindFetch           = "fetch"
	ErrorKindParse           = "parse"
	ErrorKindAuth            = "auth"
	ErrorKindStorage         = "storage"
	ErrorKindDriver          = "driver"
	ErrorKindUnknownCategory = "unknown_category"
)

// StoredProduct is a catalog.Product plus lifecycle bookkeeping.
type StoredProduct struct {
	catalog.Product

	SourceName   string    `json:"source_name"`
	CategoryName string    `json:"category_name"`
	FirstSeen    time.Time `json:"first_seen"`
	LastSeen     time.Time `json:"last_seen"`
	IsActive     bool      `json:"is_active"`
	ScrapeRunID  int64     `json:"scrape_run_id"`
}

// ScrapeRun records one orchestrator cycle, including a snapshot of the
// sources that were enabled when it started.
type ScrapeRun struct {
	ID                  int64      `json:"id"`
	StartedAt           time.Time  `json:"started_at"`
	CompletedAt         *time.Time `json:"completed_at"`
	Status              string     `json:"status"`
	EnabledSources      []string   `json:"enabled_sources"`
	TotalProducts       int        `json:"total_products"`
	NewProducts         int        `json:"new_products"`
	UpdatedProducts     int        `json:"updated_products"`
	DeactivatedProducts int        `json:"deactivated_products"`
	Error               *string    `json:"error"`
}

// DriverStat records one driver/category unit of work within a run.
type DriverStat struct {
	ID           int64      `json:"id"`
	ScrapeRunID  int64      `json:"scrape_run_id"`
	SourceName   string     `json:"source_name"`
	CategoryName string     `json:"category_name"`
	StartedAt    time.Time  `json:"started_at"`
	CompletedAt  *time.Time `json:"completed_at"`
	Status       string     `json:"status"`
	ProductCount int        `json:"product_count"`
	Error        *string    `json:"error"`
}

// UpsertResult counts what an upsert batch did.
type UpsertResult struct {
	New     int
	Updated int
}

// ProductFilter narrows ActiveProducts. Zero values mean "any".
type ProductFilter struct {
	Source   string
	Category string
	Limit    int
}

// Store is the persistence contract shared by the SQLite and MongoDB
// backends.
type Store interface {
	// CreateRun opens a new scrape run in the running state, recording
	// the enabled-sources snapshot.
	CreateRun(ctx context.Context, enabledSources []string) (*ScrapeRun, error)

	// CompleteRun writes a run's final status and counters.
	CompleteRun(ctx context.Context, run *ScrapeRun) error

	// StartDriverStat opens a per-driver/category stat record.
	StartDriverStat(ctx context.Context, runID int64, source, category string) (*DriverStat, error)

	// CompleteDriverStat writes a stat record's final state.
	CompleteDriverStat(ctx context.Context, stat *DriverStat) error

	// UpsertProducts inserts or refreshes a batch under (url, source).
	// Existing rows keep their first_seen; every touched row becomes
	// active and is stamped with runID.
	UpsertProducts(ctx context.Context, runID int64, source, category string, products []catalog.Product) (UpsertResult, error)

	// DeactivateStale flips rows inactive when they belong to one of the
	// given sources but were not touched by runID. Returns the number of
	// rows deactivated.
	DeactivateStale(ctx context.Context, runID int64, sources []string) (int, error)

	// LogError appends a classified scrape error. kind is one of the
	// ErrorKind constants; trace carries the expanded cause chain and may
	// be empty.
	LogError(ctx context.Context, runID int64, source, category, kind, message, trace string) error

	// ActiveProducts lists active listings, most recently seen first.
	ActiveProducts(ctx context.Context, filter ProductFilter) ([]StoredProduct, error)

	// ActiveSources lists sources with at least one active listing.
	ActiveSources(ctx context.Context) ([]string, error)

	// ActiveCategories lists categories with active listings for a source.
	ActiveCategories(ctx context.Context, source string) ([]string, error)

	// RecentRuns lists runs, newest first.
	RecentRuns(ctx context.Context, limit int) ([]ScrapeRun, error)

	Close() error
}

// New builds the configured backend.
func New(ctx context.Context, cfg *config.Config) (Store, error) {
	switch cfg.Storage.Backend {
	case "sqlite", "":
		return NewSQLiteStore(cfg.Storage.Path)
	case "mongodb":
		return NewMongoStore(ctx, cfg.Storage)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}

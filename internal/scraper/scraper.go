// Package scraper runs the scrape cycle: walk every enabled driver and
// each of its categories, upsert what they produce, then sweep listings
// that went missing. Failures are isolated per driver/category; one broken
// source never blocks the rest of the cycle.
package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/larsks/hamrss/internal/catalog"
	"github.com/larsks/hamrss/internal/config"
	"github.com/larsks/hamrss/internal/driver"
	"github.com/larsks/hamrss/internal/fetcher"
	"github.com/larsks/hamrss/internal/observability"
	"github.com/larsks/hamrss/internal/storage"
)

// CatalogFactory builds the driver for one source name.
type CatalogFactory func(name string) (catalog.Catalog, error)

// Scraper orchestrates scrape cycles over the enabled drivers.
type Scraper struct {
	cfg     *config.Config
	store   storage.Store
	metrics *observability.Metrics
	logger  *slog.Logger
	factory CatalogFactory
}

// New creates a scraper backed by the real driver registry.
func New(cfg *config.Config, store storage.Store, env *driver.Env, metrics *observability.Metrics, logger *slog.Logger) *Scraper {
	return NewWithFactory(cfg, store, func(name string) (catalog.Catalog, error) {
		return driver.New(name, env)
	}, metrics, logger)
}

// NewWithFactory creates a scraper with a custom catalog factory. Tests use
// this to substitute fake drivers.
func NewWithFactory(cfg *config.Config, store storage.Store, factory CatalogFactory, metrics *observability.Metrics, logger *slog.Logger) *Scraper {
	return &Scraper{
		cfg:     cfg,
		store:   store,
		metrics: metrics,
		logger:  logger.With("component", "scraper"),
		factory: factory,
	}
}

// RunCycle executes one full scrape cycle and returns the completed run
// record. A cycle that cannot even open a run record fails outright;
// anything after that is recorded on the run instead.
func (s *Scraper) RunCycle(ctx context.Context) (*storage.ScrapeRun, error) {
	run, err := s.store.CreateRun(ctx, s.cfg.Scraper.EnabledDrivers)
	if err != nil {
		return nil, fmt.Errorf("create scrape run: %w", err)
	}
	s.logger.Info("scrape cycle started", "run_id", run.ID, "drivers", run.EnabledSources)

	// Sources that produced at least one successful category scrape this
	// cycle. Only their listings are eligible for the staleness sweep: a
	// source that was down must not have its whole inventory deactivated.
	sweepable := make([]string, 0, len(run.EnabledSources))
	clean := true

	for _, name := range run.EnabledSources {
		if err := ctx.Err(); err != nil {
			return s.failRun(run, err)
		}
		ok, flawless := s.scrapeDriver(ctx, run, name)
		if ok {
			sweepable = append(sweepable, name)
		}
		if !flawless {
			clean = false
		}
	}

	if err := ctx.Err(); err != nil {
		return s.failRun(run, err)
	}

	deactivated, err := s.store.DeactivateStale(ctx, run.ID, sweepable)
	if err != nil {
		s.logger.Error("staleness sweep failed", "run_id", run.ID, "error", err)
		s.storeError(run.ID, "", "", storage.ErrorKindStorage, fmt.Sprintf("staleness sweep: %v", err), errorTrace(err))
		clean = false
	} else {
		run.DeactivatedProducts = deactivated
		if s.metrics != nil {
			s.metrics.ProductsDeactivated.Add(float64(deactivated))
		}
	}

	run.Status = storage.RunStatusCompleted
	if !clean {
		run.Status = storage.RunStatusPartial
	}
	if err := s.store.CompleteRun(ctx, run); err != nil {
		return nil, fmt.Errorf("complete scrape run %d: %w", run.ID, err)
	}
	if s.metrics != nil {
		s.metrics.CyclesTotal.WithLabelValues(run.Status).Inc()
	}
	s.logger.Info("scrape cycle finished",
		"run_id", run.ID,
		"total", run.TotalProducts,
		"new", run.NewProducts,
		"updated", run.UpdatedProducts,
		"deactivated", run.DeactivatedProducts)
	return run, nil
}

// scrapeDriver walks one driver's categories. It reports whether at least
// one category scraped successfully, and whether everything did.
func (s *Scraper) scrapeDriver(ctx context.Context, run *storage.ScrapeRun, name string) (ok, flawless bool) {
	logger := s.logger.With("source", name)

	cat, err := s.factory(name)
	if err != nil {
		logger.Error("driver unavailable", "error", err)
		s.storeError(run.ID, name, "", storage.ErrorKindDriver, fmt.Sprintf("driver init: %v", err), errorTrace(err))
		if s.metrics != nil {
			s.metrics.DriverScrapesTotal.WithLabelValues(name, storage.RunStatusFailed).Inc()
		}
		return false, false
	}

	categories := cat.Categories(ctx)
	if len(categories) == 0 {
		logger.Warn("no categories available")
		return false, false
	}

	flawless = true
	for _, category := range categories {
		if ctx.Err() != nil {
			return ok, flawless
		}
		if s.scrapeCategory(ctx, run, cat, name, category) {
			ok = true
		} else {
			flawless = false
		}
	}
	return ok, flawless
}

func (s *Scraper) scrapeCategory(ctx context.Context, run *storage.ScrapeRun, cat catalog.Catalog, name, category string) bool {
	logger := s.logger.With("source", name, "category", category)
	started := time.Now()

	stat, err := s.store.StartDriverStat(ctx, run.ID, name, category)
	if err != nil {
		logger.Error("cannot record driver stat", "error", err)
		stat = &storage.DriverStat{ScrapeRunID: run.ID, SourceName: name, CategoryName: category}
	}

	catCtx := ctx
	if s.cfg.Scraper.CategoryTimeout > 0 {
		var cancel context.CancelFunc
		catCtx, cancel = context.WithTimeout(ctx, s.cfg.Scraper.CategoryTimeout)
		defer cancel()
	}

	products, err := cat.Items(catCtx, category, s.cfg.Scraper.MaxItems)
	if err != nil {
		logger.Error("category scrape failed", "error", err)
		s.storeError(run.ID, name, category, errorKind(err), err.Error(), errorTrace(err))
		s.finishStat(stat, storage.RunStatusFailed, 0, err)
		if s.metrics != nil {
			s.metrics.DriverScrapesTotal.WithLabelValues(name, storage.RunStatusFailed).Inc()
		}
		return false
	}

	products = validProducts(products, logger)
	result, err := s.store.UpsertProducts(ctx, run.ID, name, category, products)
	if err != nil {
		logger.Error("upsert failed", "error", err)
		s.storeError(run.ID, name, category, storage.ErrorKindStorage, fmt.Sprintf("upsert: %v", err), errorTrace(err))
		s.finishStat(stat, storage.RunStatusFailed, 0, err)
		return false
	}

	run.TotalProducts += len(products)
	run.NewProducts += result.New
	run.UpdatedProducts += result.Updated
	s.finishStat(stat, storage.RunStatusCompleted, len(products), nil)

	if s.metrics != nil {
		s.metrics.DriverScrapesTotal.WithLabelValues(name, storage.RunStatusCompleted).Inc()
		s.metrics.ProductsNew.Add(float64(result.New))
		s.metrics.ProductsUpdated.Add(float64(result.Updated))
		s.metrics.FetchDuration.WithLabelValues(name).Observe(time.Since(started).Seconds())
	}
	logger.Info("category scraped", "products", len(products), "new", result.New, "updated", result.Updated)
	return true
}

// failRun marks a run failed (typically on shutdown). No staleness sweep
// happens for a failed run, so a half-finished cycle cannot deactivate
// listings it never got to.
func (s *Scraper) failRun(run *storage.ScrapeRun, cause error) (*storage.ScrapeRun, error) {
	run.Status = storage.RunStatusFailed
	msg := cause.Error()
	run.Error = &msg

	// The cycle context is gone; give the bookkeeping write its own.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.store.CompleteRun(ctx, run); err != nil {
		s.logger.Error("cannot record failed run", "run_id", run.ID, "error", err)
	}
	if s.metrics != nil {
		s.metrics.CyclesTotal.WithLabelValues(storage.RunStatusFailed).Inc()
	}
	return run, cause
}

func (s *Scraper) finishStat(stat *storage.DriverStat, status string, count int, cause error) {
	if stat.ID == 0 {
		return
	}
	stat.Status = status
	stat.ProductCount = count
	if cause != nil {
		msg := cause.Error()
		stat.Error = &msg
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.store.CompleteDriverStat(ctx, stat); err != nil {
		s.logger.Error("cannot record driver stat", "stat_id", stat.ID, "error", err)
	}
}

func (s *Scraper) storeError(runID int64, source, category, kind, message, trace string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.store.LogError(ctx, runID, source, category, kind, message, trace); err != nil &&
		!errors.Is(err, context.Canceled) {
		s.logger.Error("cannot record scrape error", "error", err)
	}
}

// errorKind classifies a category scrape failure for the error log.
func errorKind(err error) string {
	var uc *catalog.UnknownCategoryError
	var ae *fetcher.AuthError
	switch {
	case fetcher.IsFetchError(err):
		return storage.ErrorKindFetch
	case errors.As(err, &uc):
		return storage.ErrorKindUnknownCategory
	case errors.As(err, &ae):
		return storage.ErrorKindAuth
	default:
		return storage.ErrorKindParse
	}
}

// errorTrace expands err's unwrap chain, one cause per line. A single
// unwrapped error yields no trace.
func errorTrace(err error) string {
	var chain []string
	for e := err; e != nil; e = errors.Unwrap(e) {
		chain = append(chain, e.Error())
	}
	if len(chain) <= 1 {
		return ""
	}
	return strings.Join(chain, "\n")
}

// validProducts drops records missing their required fields. One malformed
// listing is not worth failing a whole category over.
func validProducts(products []catalog.Product, logger *slog.Logger) []catalog.Product {
	valid := products[:0]
	for _, p := range products {
		if p.URL == "" || p.Title == "" {
			logger.Warn("dropping product with missing required fields", "url", p.URL, "title", p.Title)
			continue
		}
		valid = append(valid, p)
	}
	return valid
}

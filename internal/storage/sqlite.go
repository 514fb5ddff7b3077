package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/larsks/hamrss/internal/catalog"
)

const schema = `
CREATE TABLE IF NOT EXISTS scrape_runs (
	id                   INTEGER PRIMARY KEY AUTOINCREMENT,
	started_at           TIMESTAMP NOT NULL,
	completed_at         TIMESTAMP,
	status               TEXT NOT NULL DEFAULT 'running',
	enabled_sources      TEXT NOT NULL DEFAULT '',
	total_products       INTEGER NOT NULL DEFAULT 0,
	new_products         INTEGER NOT NULL DEFAULT 0,
	updated_products     INTEGER NOT NULL DEFAULT 0,
	deactivated_products INTEGER NOT NULL DEFAULT 0,
	error                TEXT
);

CREATE TABLE IF NOT EXISTS products (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	url           TEXT NOT NULL,
	title         TEXT NOT NULL,
	description   TEXT,
	manufacturer  TEXT,
	model         TEXT,
	product_id    TEXT,
	location      TEXT,
	date_added    TEXT,
	price         TEXT,
	image_url     TEXT,
	author        TEXT,
	source_name   TEXT NOT NULL,
	category_name TEXT NOT NULL,
	first_seen    TIMESTAMP NOT NULL,
	last_seen     TIMESTAMP NOT NULL,
	is_active     BOOLEAN NOT NULL DEFAULT 1,
	scrape_run_id INTEGER NOT NULL,
	UNIQUE (url, source_name)
);

CREATE INDEX IF NOT EXISTS idx_products_active
	ON products (is_active, source_name, category_name);

CREATE TABLE IF NOT EXISTS driver_stats (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	scrape_run_id INTEGER NOT NULL,
	source_name   TEXT NOT NULL,
	category_name TEXT NOT NULL,
	started_at    TIMESTAMP NOT NULL,
	completed_at  TIMESTAMP,
	status        TEXT NOT NULL DEFAULT 'running',
	product_count INTEGER NOT NULL DEFAULT 0,
	error         TEXT
);

CREATE TABLE IF NOT EXISTS scrape_errors (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	scrape_run_id INTEGER,
	source_name   TEXT,
	category_name TEXT,
	kind          TEXT NOT NULL DEFAULT '',
	message       TEXT NOT NULL,
	trace         TEXT,
	created_at    TIMESTAMP NOT NULL
);
`

// SQLiteStore is the default on-disk backend (modernc.org/sqlite, no cgo).
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (and if needed creates) the database at path. The
// special path ":memory:" yields an ephemeral database for tests.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// SQLite has one writer; a second pooled connection would also see a
	// different database entirely under :memory:.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

func (s *SQLiteStore) CreateRun(ctx context.Context, enabledSources []string) (*ScrapeRun, error) {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO scrape_runs (started_at, status, enabled_sources) VALUES (?, ?, ?)`,
		now, RunStatusRunning, strings.Join(enabledSources, ","))
	if err != nil {
		return nil, fmt.Errorf("create run: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return &ScrapeRun{
		ID:             id,
		StartedAt:      now,
		Status:         RunStatusRunning,
		EnabledSources: enabledSources,
	}, nil
}

func (s *SQLiteStore) CompleteRun(ctx context.Context, run *ScrapeRun) error {
	now := time.Now().UTC()
	run.CompletedAt = &now
	_, err := s.db.ExecContext(ctx,
		`UPDATE scrape_runs
		 SET completed_at = ?, status = ?, total_products = ?, new_products = ?,
		     updated_products = ?, deactivated_products = ?, error = ?
		 WHERE id = ?`,
		now, run.Status, run.TotalProducts, run.NewProducts,
		run.UpdatedProducts, run.DeactivatedProducts, run.Error, run.ID)
	if err != nil {
		return fmt.Errorf("complete run %d: %w", run.ID, err)
	}
	return nil
}

func (s *SQLiteStore) StartDriverStat(ctx context.Context, runID int64, source, category string) (*DriverStat, error) {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO driver_stats (scrape_run_id, source_name, category_name, started_at, status)
		 VALUES (?, ?, ?, ?, ?)`,
		runID, source, category, now, RunStatusRunning)
	if err != nil {
		return nil, fmt.Errorf("start driver stat: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return &DriverStat{
		ID:           id,
		ScrapeRunID:  runID,
		SourceName:   source,
		CategoryName: category,
		StartedAt:    now,
		Status:       RunStatusRunning,
	}, nil
}

func (s *SQLiteStore) CompleteDriverStat(ctx context.Context, stat *DriverStat) error {
	now := time.Now().UTC()
	stat.CompletedAt = &now
	_, err := s.db.ExecContext(ctx,
		`UPDATE driver_stats
		 SET completed_at = ?, status = ?, product_count = ?, error = ?
		 WHERE id = ?`,
		now, stat.Status, stat.ProductCount, stat.Error, stat.ID)
	if err != nil {
		return fmt.Errorf("complete driver stat %d: %w", stat.ID, err)
	}
	return nil
}

func (s *SQLiteStore) UpsertProducts(ctx context.Context, runID int64, source, category string, products []catalog.Product) (UpsertResult, error) {
	var result UpsertResult
	if len(products) == 0 {
		return result, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return result, fmt.Errorf("begin upsert: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	for _, p := range products {
		var exists bool
		err := tx.QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM products WHERE url = ? AND source_name = ?)`,
			p.URL, source).Scan(&exists)
		if err != nil {
			return UpsertResult{}, fmt.Errorf("check product %q: %w", p.URL, err)
		}

		_, err = tx.ExecContext(ctx,
			`INSERT INTO products (
				url, title, description, manufacturer, model, product_id,
				location, date_added, price, image_url, author,
				source_name, category_name, first_seen, last_seen, is_active, scrape_run_id
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1, ?)
			ON CONFLICT (url, source_name) DO UPDATE SET
				title = excluded.title,
				description = excluded.description,
				manufacturer = excluded.manufacturer,
				model = excluded.model,
				product_id = excluded.product_id,
				location = excluded.location,
				date_added = excluded.date_added,
				price = excluded.price,
				image_url = excluded.image_url,
				author = excluded.author,
				category_name = excluded.category_name,
				last_seen = excluded.last_seen,
				is_active = 1,
				scrape_run_id = excluded.scrape_run_id`,
			p.URL, p.Title, p.Description, p.Manufacturer, p.Model, p.ProductID,
			p.Location, p.DateAdded, p.Price, p.ImageURL, p.Author,
			source, category, now, now, runID)
		if err != nil {
			return UpsertResult{}, fmt.Errorf("upsert product %q: %w", p.URL, err)
		}

		if exists {
			result.Updated++
		} else {
			result.New++
		}
	}

	if err := tx.Commit(); err != nil {
		return UpsertResult{}, fmt.Errorf("commit upsert: %w", err)
	}
	return result, nil
}

func (s *SQLiteStore) DeactivateStale(ctx context.Context, runID int64, sources []string) (int, error) {
	if len(sources) == 0 {
		return 0, nil
	}

	placeholders := strings.Repeat("?, ", len(sources)-1) + "?"
	args := make([]any, 0, len(sources)+1)
	args = append(args, runID)
	for _, src := range sources {
		args = append(args, src)
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE products SET is_active = 0
		 WHERE is_active = 1 AND scrape_run_id != ? AND source_name IN (`+placeholders+`)`,
		args...)
	if err != nil {
		return 0, fmt.Errorf("deactivate stale products: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

func (s *SQLiteStore) LogError(ctx context.Context, runID int64, source, category, kind, message, trace string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO scrape_errors (scrape_run_id, source_name, category_name, kind, message, trace, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		runID, source, category, kind, message, catalog.Str(trace), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("log scrape error: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ActiveProducts(ctx context.Context, filter ProductFilter) ([]StoredProduct, error) {
	query := `SELECT url, title, description, manufacturer, model, product_id,
		location, date_added, price, image_url, author,
		source_name, category_name, first_seen, last_seen, is_active, scrape_run_id
		FROM products WHERE is_active = 1`
	var args []any
	if filter.Source != "" {
		query += ` AND source_name = ?`
		args = append(args, filter.Source)
	}
	if filter.Category != "" {
		query += ` AND category_name = ?`
		args = append(args, filter.Category)
	}
	query += ` ORDER BY last_seen DESC, id DESC`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query active products: %w", err)
	}
	defer rows.Close()

	var products []StoredProduct
	for rows.Next() {
		var p StoredProduct
		err := rows.Scan(
			&p.URL, &p.Title, &p.Description, &p.Manufacturer, &p.Model, &p.ProductID,
			&p.Location, &p.DateAdded, &p.Price, &p.ImageURL, &p.Author,
			&p.SourceName, &p.CategoryName, &p.FirstSeen, &p.LastSeen, &p.IsActive, &p.ScrapeRunID)
		if err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

func (s *SQLiteStore) ActiveSources(ctx context.Context) ([]string, error) {
	return s.stringColumn(ctx,
		`SELECT DISTINCT source_name FROM products WHERE is_active = 1 ORDER BY source_name`)
}

func (s *SQLiteStore) ActiveCategories(ctx context.Context, source string) ([]string, error) {
	return s.stringColumn(ctx,
		`SELECT DISTINCT category_name FROM products
		 WHERE is_active = 1 AND source_name = ? ORDER BY category_name`, source)
}

func (s *SQLiteStore) stringColumn(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var values []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		values = append(values, v)
	}
	return values, rows.Err()
}

func (s *SQLiteStore) RecentRuns(ctx context.Context, limit int) ([]ScrapeRun, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, started_at, completed_at, status, enabled_sources, total_products,
			new_products, updated_products, deactivated_products, error
		 FROM scrape_runs ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent runs: %w", err)
	}
	defer rows.Close()

	var runs []ScrapeRun
	for rows.Next() {
		var run ScrapeRun
		var sources string
		err := rows.Scan(&run.ID, &run.StartedAt, &run.CompletedAt, &run.Status,
			&sources, &run.TotalProducts, &run.NewProducts, &run.UpdatedProducts,
			&run.DeactivatedProducts, &run.Error)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		if sources != "" {
			run.EnabledSources = strings.Split(sources, ",")
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

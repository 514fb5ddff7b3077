package storage

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/larsks/hamrss/internal/catalog"
	"github.com/larsks/hamrss/internal/config"
)

// MongoStore is the document-database backend. Run and stat IDs are
// nanosecond timestamps rather than sequences; they only need to be unique
// and ordered within one deployment.
type MongoStore struct {
	client   *mongo.Client
	products *mongo.Collection
	runs     *mongo.Collection
	stats    *mongo.Collection
	errors   *mongo.Collection
}

// NewMongoStore connects to MongoDB and ensures the product natural-key
// index exists.
func NewMongoStore(ctx context.Context, cfg config.StorageConfig) (*MongoStore, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("connect to mongodb: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		client.Disconnect(ctx)
		return nil, fmt.Errorf("ping mongodb: %w", err)
	}

	db := client.Database(cfg.Database)
	s := &MongoStore{
		client:   client,
		products: db.Collection(cfg.Collection),
		runs:     db.Collection("scrape_runs"),
		stats:    db.Collection("driver_stats"),
		errors:   db.Collection("scrape_errors"),
	}

	_, err = s.products.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "url", Value: 1}, {Key: "source_name", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		client.Disconnect(ctx)
		return nil, fmt.Errorf("create product index: %w", err)
	}
	return s, nil
}

func (s *MongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

func (s *MongoStore) CreateRun(ctx context.Context, enabledSources []string) (*ScrapeRun, error) {
	run := &ScrapeRun{
		ID:             time.Now().UnixNano(),
		StartedAt:      time.Now().UTC(),
		Status:         RunStatusRunning,
		EnabledSources: enabledSources,
	}
	_, err := s.runs.InsertOne(ctx, bson.M{
		"_id":             run.ID,
		"started_at":      run.StartedAt,
		"status":          run.Status,
		"enabled_sources": enabledSources,
	})
	if err != nil {
		return nil, fmt.Errorf("create run: %w", err)
	}
	return run, nil
}

func (s *MongoStore) CompleteRun(ctx context.Context, run *ScrapeRun) error {
	now := time.Now().UTC()
	run.CompletedAt = &now
	_, err := s.runs.UpdateOne(ctx, bson.M{"_id": run.ID}, bson.M{"$set": bson.M{
		"completed_at":         now,
		"status":               run.Status,
		"total_products":       run.TotalProducts,
		"new_products":         run.NewProducts,
		"updated_products":     run.UpdatedProducts,
		"deactivated_products": run.DeactivatedProducts,
		"error":                run.Error,
	}})
	if err != nil {
		return fmt.Errorf("complete run %d: %w", run.ID, err)
	}
	return nil
}

func (s *MongoStore) StartDriverStat(ctx context.Context, runID int64, source, category string) (*DriverStat, error) {
	stat := &DriverStat{
		ID:           time.Now().UnixNano(),
		ScrapeRunID:  runID,
		SourceName:   source,
		CategoryName: category,
		StartedAt:    time.Now().UTC(),
		Status:       RunStatusRunning,
	}
	_, err := s.stats.InsertOne(ctx, bson.M{
		"_id":           stat.ID,
		"scrape_run_id": runID,
		"source_name":   source,
		"category_name": category,
		"started_at":    stat.StartedAt,
		"status":        stat.Status,
	})
	if err != nil {
		return nil, fmt.Errorf("start driver stat: %w", err)
	}
	return stat, nil
}

func (s *MongoStore) CompleteDriverStat(ctx context.Context, stat *DriverStat) error {
	now := time.Now().UTC()
	stat.CompletedAt = &now
	_, err := s.stats.UpdateOne(ctx, bson.M{"_id": stat.ID}, bson.M{"$set": bson.M{
		"completed_at":  now,
		"status":        stat.Status,
		"product_count": stat.ProductCount,
		"error":         stat.Error,
	}})
	if err != nil {
		return fmt.Errorf("complete driver stat %d: %w", stat.ID, err)
	}
	return nil
}

func (s *MongoStore) UpsertProducts(ctx context.Context, runID int64, source, category string, products []catalog.Product) (UpsertResult, error) {
	var result UpsertResult
	now := time.Now().UTC()

	for _, p := range products {
		res, err := s.products.UpdateOne(ctx,
			bson.M{"url": p.URL, "source_name": source},
			bson.M{
				"$set": bson.M{
					"title":         p.Title,
					"description":   p.Description,
					"manufacturer":  p.Manufacturer,
					"model":         p.Model,
					"product_id":    p.ProductID,
					"location":      p.Location,
					"date_added":    p.DateAdded,
					"price":         p.Price,
					"image_url":     p.ImageURL,
					"author":        p.Author,
					"category_name": category,
					"last_seen":     now,
					"is_active":     true,
					"scrape_run_id": runID,
				},
				"$setOnInsert": bson.M{"first_seen": now},
			},
			options.Update().SetUpsert(true))
		if err != nil {
			return UpsertResult{}, fmt.Errorf("upsert product %q: %w", p.URL, err)
		}
		if res.UpsertedCount > 0 {
			result.New++
		} else {
			result.Updated++
		}
	}
	return result, nil
}

func (s *MongoStore) DeactivateStale(ctx context.Context, runID int64, sources []string) (int, error) {
	if len(sources) == 0 {
		return 0, nil
	}
	res, err := s.products.UpdateMany(ctx,
		bson.M{
			"is_active":     true,
			"scrape_run_id": bson.M{"$ne": runID},
			"source_name":   bson.M{"$in": sources},
		},
		bson.M{"$set": bson.M{"is_active": false}})
	if err != nil {
		return 0, fmt.Errorf("deactivate stale products: %w", err)
	}
	return int(res.ModifiedCount), nil
}

func (s *MongoStore) LogError(ctx context.Context, runID int64, source, category, kind, message, trace string) error {
	doc := bson.M{
		"scrape_run_id": runID,
		"source_name":   source,
		"category_name": category,
		"kind":          kind,
		"message":       message,
		"created_at":    time.Now().UTC(),
	}
	if trace != "" {
		doc["trace"] = trace
	}
	_, err := s.errors.InsertOne(ctx, doc)
	if err != nil {
		return fmt.Errorf("log scrape error: %w", err)
	}
	return nil
}

func (s *MongoStore) ActiveProducts(ctx context.Context, filter ProductFilter) ([]StoredProduct, error) {
	query := bson.M{"is_active": true}
	if filter.Source != "" {
		query["source_name"] = filter.Source
	}
	if filter.Category != "" {
		query["category_name"] = filter.Category
	}

	opts := options.Find().SetSort(bson.D{{Key: "last_seen", Value: -1}})
	if filter.Limit > 0 {
		opts.SetLimit(int64(filter.Limit))
	}

	cursor, err := s.products.Find(ctx, query, opts)
	if err != nil {
		return nil, fmt.Errorf("query active products: %w", err)
	}
	defer cursor.Close(ctx)

	var products []StoredProduct
	for cursor.Next(ctx) {
		var doc productDoc
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decode product: %w", err)
		}
		products = append(products, doc.stored())
	}
	return products, cursor.Err()
}

func (s *MongoStore) ActiveSources(ctx context.Context) ([]string, error) {
	return s.distinctStrings(ctx, "source_name", bson.M{"is_active": true})
}

func (s *MongoStore) ActiveCategories(ctx context.Context, source string) ([]string, error) {
	return s.distinctStrings(ctx, "category_name", bson.M{"is_active": true, "source_name": source})
}

func (s *MongoStore) distinctStrings(ctx context.Context, field string, query bson.M) ([]string, error) {
	values, err := s.products.Distinct(ctx, field, query)
	if err != nil {
		return nil, fmt.Errorf("distinct %s: %w", field, err)
	}
	var out []string
	for _, v := range values {
		if str, ok := v.(string); ok {
			out = append(out, str)
		}
	}
	return out, nil
}

func (s *MongoStore) RecentRuns(ctx context.Context, limit int) ([]ScrapeRun, error) {
	if limit <= 0 {
		limit = 10
	}
	cursor, err := s.runs.Find(ctx, bson.M{},
		options.Find().SetSort(bson.D{{Key: "_id", Value: -1}}).SetLimit(int64(limit)))
	if err != nil {
		return nil, fmt.Errorf("query recent runs: %w", err)
	}
	defer cursor.Close(ctx)

	var runs []ScrapeRun
	for cursor.Next(ctx) {
		var doc runDoc
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decode run: %w", err)
		}
		runs = append(runs, doc.run())
	}
	return runs, cursor.Err()
}

type productDoc struct {
	URL          string    `bson:"url"`
	Title        string    `bson:"title"`
	Description  *string   `bson:"description"`
	Manufacturer *string   `bson:"manufacturer"`
	Model        *string   `bson:"model"`
	ProductID    *string   `bson:"product_id"`
	Location     *string   `bson:"location"`
	DateAdded    *string   `bson:"date_added"`
	Price        *string   `bson:"price"`
	ImageURL     *string   `bson:"image_url"`
	Author       *string   `bson:"author"`
	SourceName   string    `bson:"source_name"`
	CategoryName string    `bson:"category_name"`
	FirstSeen    time.Time `bson:"first_seen"`
	LastSeen     time.Time `bson:"last_seen"`
	IsActive     bool      `bson:"is_active"`
	ScrapeRunID  int64     `bson:"scrape_run_id"`
}

func (d *productDoc) stored() StoredProduct {
	return StoredProduct{
		Product: catalog.Product{
			URL:          d.URL,
			Title:        d.Title,
			Description:  d.Description,
			Manufacturer: d.Manufacturer,
			Model:        d.Model,
			ProductID:    d.ProductID,
			Location:     d.Location,
			DateAdded:    d.DateAdded,
			Price:        d.Price,
			ImageURL:     d.ImageURL,
			Author:       d.Author,
		},
		SourceName:   d.SourceName,
		CategoryName: d.CategoryName,
		FirstSeen:    d.FirstSeen,
		LastSeen:     d.LastSeen,
		IsActive:     d.IsActive,
		ScrapeRunID:  d.ScrapeRunID,
	}
}

type runDoc struct {
	ID                  int64      `bson:"_id"`
	StartedAt           time.Time  `bson:"started_at"`
	CompletedAt         *time.Time `bson:"completed_at"`
	Status              string     `bson:"status"`
	EnabledSources      []string   `bson:"enabled_sources"`
	TotalProducts       int        `bson:"total_products"`
	NewProducts         int        `bson:"new_products"`
	UpdatedProducts     int        `bson:"updated_products"`
	DeactivatedProducts int        `bson:"deactivated_products"`
	Error               *string    `bson:"error"`
}

func (d *runDoc) run() ScrapeRun {
	return ScrapeRun{
		ID:                  d.ID,
		StartedAt:           d.StartedAt,
		CompletedAt:         d.CompletedAt,
		Status:              d.Status,
		EnabledSources:      d.EnabledSources,
		TotalProducts:       d.TotalProducts,
		NewProducts:         d.NewProducts,
		UpdatedProducts:     d.UpdatedProducts,
		DeactivatedProducts: d.DeactivatedProducts,
		Error:               d.Error,
	}
}

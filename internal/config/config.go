package config

import (
	"time"
)

// Version is set at build time via ldflags.
var Version = "dev"

// Config is the root configuration for hamrss.
type Config struct {
	Scraper   ScraperConfig   `mapstructure:"scraper"   yaml:"scraper"`
	Fetcher   FetcherConfig   `mapstructure:"fetcher"   yaml:"fetcher"`
	Browser   BrowserConfig   `mapstructure:"browser"   yaml:"browser"`
	Drivers   DriversConfig   `mapstructure:"drivers"   yaml:"drivers"`
	Storage   StorageConfig   `mapstructure:"storage"   yaml:"storage"`
	Publisher PublisherConfig `mapstructure:"publisher" yaml:"publisher"`
	Logging   LoggingConfig   `mapstructure:"logging"   yaml:"logging"`
}

// ScraperConfig controls the scrape cycle.
type ScraperConfig struct {
	EnabledDrivers  []string      `mapstructure:"enabled_drivers"  yaml:"enabled_drivers"`
	MaxItems        int           `mapstructure:"max_items"        yaml:"max_items"`
	Interval        time.Duration `mapstructure:"interval"         yaml:"interval"`
	RunOnStart      bool          `mapstructure:"run_on_start"     yaml:"run_on_start"`
	CategoryTimeout time.Duration `mapstructure:"category_timeout" yaml:"category_timeout"`
}

// FetcherConfig controls the per-driver HTTP client.
type FetcherConfig struct {
	RequestTimeout  time.Duration `mapstructure:"request_timeout"  yaml:"request_timeout"`
	FollowRedirects bool          `mapstructure:"follow_redirects" yaml:"follow_redirects"`
	MaxRedirects    int           `mapstructure:"max_redirects"    yaml:"max_redirects"`
	MaxBodySize     int64         `mapstructure:"max_body_size"    yaml:"max_body_size"`
	UserAgent       string        `mapstructure:"user_agent"       yaml:"user_agent"`
}

// BrowserConfig controls the headless browser used by JS-rendered sources.
type BrowserConfig struct {
	ControlURL  string        `mapstructure:"control_url"  yaml:"control_url"`
	Stealth     bool          `mapstructure:"stealth"      yaml:"stealth"`
	WaitTimeout time.Duration `mapstructure:"wait_timeout" yaml:"wait_timeout"`
}

// DriversConfig carries per-source settings.
type DriversConfig struct {
	QRZ QRZConfig `mapstructure:"qrz" yaml:"qrz"`
}

// QRZConfig holds credentials for the QRZ forum login handshake. Both fields
// empty means authentication is skipped and the feed is fetched anonymously.
type QRZConfig struct {
	Username string `mapstructure:"username" yaml:"username"`
	Password string `mapstructure:"password" yaml:"password"`
}

// StorageConfig selects and configures the storage backend.
type StorageConfig struct {
	Backend string `mapstructure:"backend" yaml:"backend"` // sqlite or mongodb

	// SQLite settings.
	Path string `mapstructure:"path" yaml:"path"`

	// MongoDB settings.
	URI        string `mapstructure:"uri"        yaml:"uri"`
	Database   string `mapstructure:"database"   yaml:"database"`
	Collection string `mapstructure:"collection" yaml:"collection"`
}

// PublisherConfig controls the feed HTTP server.
type PublisherConfig struct {
	Listen          string        `mapstructure:"listen"           yaml:"listen"`
	FeedTitle       string        `mapstructure:"feed_title"       yaml:"feed_title"`
	FeedLink        string        `mapstructure:"feed_link"        yaml:"feed_link"`
	FeedDescription string        `mapstructure:"feed_description" yaml:"feed_description"`
	MaxFeedItems    int           `mapstructure:"max_feed_items"   yaml:"max_feed_items"`
	CacheTTL        time.Duration `mapstructure:"cache_ttl"        yaml:"cache_ttl"`
	CacheSize       int           `mapstructure:"cache_size"       yaml:"cache_size"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level  string `mapstructure:"level"  yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Scraper: ScraperConfig{
			EnabledDrivers:  []string{"hro", "mtc", "randl", "qth", "qrz", "hamestate"},
			MaxItems:        1000,
			Interval:        6 * time.Hour,
			RunOnStart:      true,
			CategoryTimeout: 10 * time.Minute,
		},
		Fetcher: FetcherConfig{
			RequestTimeout:  30 * time.Second,
			FollowRedirects: true,
			MaxRedirects:    10,
			MaxBodySize:     10 * 1024 * 1024, // 10MB
			UserAgent:       "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
		},
		Browser: BrowserConfig{
			WaitTimeout: 10 * time.Second,
		},
		Storage: StorageConfig{
			Backend:    "sqlite",
			Path:       "hamrss.db",
			Database:   "hamrss",
			Collection: "products",
		},
		Publisher: PublisherConfig{
			Listen:          ":8080",
			FeedTitle:       "Ham Radio Equipment",
			FeedLink:        "http://localhost:8080",
			FeedDescription: "Used and for-sale ham radio equipment aggregated from multiple sources",
			MaxFeedItems:    100,
			CacheTTL:        5 * time.Minute,
			CacheSize:       64,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

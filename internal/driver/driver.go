// Package driver wires the per-source catalog implementations into a
// static registry keyed by driver name. Each driver owns its transport:
// HTTP drivers get a private client (cookies never cross sources), while
// browser drivers share one lazily-started headless browser.
package driver

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/larsks/hamrss/internal/catalog"
	"github.com/larsks/hamrss/internal/config"
	"github.com/larsks/hamrss/internal/driver/hamestate"
	"github.com/larsks/hamrss/internal/driver/hro"
	"github.com/larsks/hamrss/internal/driver/mtc"
	"github.com/larsks/hamrss/internal/driver/qrz"
	"github.com/larsks/hamrss/internal/driver/qth"
	"github.com/larsks/hamrss/internal/driver/randl"
	"github.com/larsks/hamrss/internal/fetcher"
)

// Env carries the process-wide resources drivers are built from.
type Env struct {
	Config *config.Config
	Logger *slog.Logger

	browserOnce sync.Once
	browser     *fetcher.BrowserFetcher
	browserErr  error
}

// NewEnv creates a driver environment.
func NewEnv(cfg *config.Config, logger *slog.Logger) *Env {
	return &Env{Config: cfg, Logger: logger}
}

// Browser returns the shared headless browser, starting it on first use so
// HTTP-only configurations never pay for Chromium.
func (e *Env) Browser() (*fetcher.BrowserFetcher, error) {
	e.browserOnce.Do(func() {
		e.browser, e.browserErr = fetcher.NewBrowserFetcher(e.Config, e.Logger)
	})
	return e.browser, e.browserErr
}

// Close releases the shared browser if it was started.
func (e *Env) Close() error {
	if e.browser != nil {
		return e.browser.Close()
	}
	return nil
}

// Factory builds one driver instance.
type Factory func(env *Env) (catalog.Catalog, error)

var registry = map[string]Factory{
	"hro": func(env *Env) (catalog.Catalog, error) {
		bf, err := env.Browser()
		if err != nil {
			return nil, err
		}
		return hro.New(env.Config, bf, env.Logger), nil
	},
	"mtc": func(env *Env) (catalog.Catalog, error) {
		bf, err := env.Browser()
		if err != nil {
			return nil, err
		}
		return mtc.New(env.Config, bf, env.Logger), nil
	},
	"randl": func(env *Env) (catalog.Catalog, error) {
		f, err := fetcher.NewHTTPFetcher(env.Config, env.Logger)
		if err != nil {
			return nil, err
		}
		return randl.New(env.Config, f, env.Logger), nil
	},
	"qth": func(env *Env) (catalog.Catalog, error) {
		f, err := fetcher.NewHTTPFetcher(env.Config, env.Logger)
		if err != nil {
			return nil, err
		}
		return qth.New(env.Config, f, env.Logger), nil
	},
	"qrz": func(env *Env) (catalog.Catalog, error) {
		f, err := fetcher.NewHTTPFetcher(env.Config, env.Logger)
		if err != nil {
			return nil, err
		}
		return qrz.New(env.Config, f, env.Logger), nil
	},
	"hamestate": func(env *Env) (catalog.Catalog, error) {
		f, err := fetcher.NewHTTPFetcher(env.Config, env.Logger)
		if err != nil {
			return nil, err
		}
		return hamestate.New(env.Config, f, env.Logger), nil
	},
}

// New builds the named driver.
func New(name string, env *Env) (catalog.Catalog, error) {
	factory, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("unknown driver %q (available: %v)", name, Names())
	}
	return factory(env)
}

// Names lists the registered driver names, sorted.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

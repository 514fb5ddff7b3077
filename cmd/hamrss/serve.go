package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/larsks/hamrss/internal/driver"
	"github.com/larsks/hamrss/internal/observability"
	"github.com/larsks/hamrss/internal/publisher"
	"github.com/larsks/hamrss/internal/scheduler"
	"github.com/larsks/hamrss/internal/scraper"
	"github.com/larsks/hamrss/internal/storage"
)

// serveCmd creates the "serve" subcommand.
func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the scrape scheduler and feed server",
		Long: `Run hamrss as a long-lived service: scrape all enabled sources on a
fixed interval and serve the aggregated catalog as RSS feeds over HTTP.`,
		RunE: runServe,
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := storage.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer store.Close()

	env := driver.NewEnv(cfg, logger)
	defer env.Close()

	metrics := observability.New()
	scr := scraper.New(cfg, store, env, metrics, logger)

	sched := scheduler.New(cfg.Scraper.Interval, cfg.Scraper.RunOnStart, func(ctx context.Context) error {
		_, err := scr.RunCycle(ctx)
		return err
	}, logger)

	schedErr := make(chan error, 1)
	go func() {
		schedErr <- sched.Run(ctx)
	}()

	pub := publisher.New(cfg.Publisher, store, metrics, logger)
	if err := pub.Run(ctx); err != nil {
		return err
	}

	if err := <-schedErr; err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	logger.Info("shutdown complete")
	return nil
}

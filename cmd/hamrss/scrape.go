package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/larsks/hamrss/internal/driver"
	"github.com/larsks/hamrss/internal/observability"
	"github.com/larsks/hamrss/internal/scraper"
	"github.com/larsks/hamrss/internal/storage"
)

var (
	scrapeDrivers  []string
	scrapeMaxItems int
)

// scrapeCmd creates the "scrape" subcommand.
func scrapeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scrape",
		Short: "Run one scrape cycle and exit",
		Long: `Scrape every enabled source once, upsert the results into storage,
deactivate listings that disappeared, and print a cycle summary.`,
		RunE: runScrape,
	}

	cmd.Flags().StringSliceVar(&scrapeDrivers, "driver", nil, "restrict the cycle to these drivers")
	cmd.Flags().IntVar(&scrapeMaxItems, "max-items", 0, "cap items per category (0 = config default)")

	return cmd
}

func runScrape(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	if len(scrapeDrivers) > 0 {
		cfg.Scraper.EnabledDrivers = scrapeDrivers
	}
	if scrapeMaxItems > 0 {
		cfg.Scraper.MaxItems = scrapeMaxItems
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

	scr := scraper.New(cfg, store, env, observability.New(), logger)

	run, err := scr.RunCycle(ctx)
	if err != nil {
		return fmt.Errorf("scrape cycle: %w", err)
	}

	fmt.Printf("run %d: %s\n", run.ID, run.Status)
	fmt.Printf("  products:    %d\n", run.TotalProducts)
	fmt.Printf("  new:         %d\n", run.NewProducts)
	fmt.Printf("  updated:     %d\n", run.UpdatedProducts)
	fmt.Printf("  deactivated: %d\n", run.DeactivatedProducts)
	return nil
}

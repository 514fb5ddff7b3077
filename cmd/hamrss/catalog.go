package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/larsks/hamrss/internal/driver"
)

var itemsMaxItems int

// sourcesCmd creates the "sources" subcommand.
func sourcesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sources [driver...]",
		Short: "List drivers and their categories",
		Long: `List the named drivers (default: all) and the categories each one
currently serves. Category discovery may hit the live site.`,
		RunE: runSources,
	}
}

func runSources(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	env := driver.NewEnv(cfg, logger)
	defer env.Close()

	names := args
	if len(names) == 0 {
		names = driver.Names()
	}

	for _, name := range names {
		cat, err := driver.New(name, env)
		if err != nil {
			return err
		}
		categories := cat.Categories(ctx)
		if len(categories) == 0 {
			fmt.Printf("%s: (no categories discovered)\n", name)
			continue
		}
		fmt.Printf("%s: %s\n", name, strings.Join(categories, ", "))
	}
	return nil
}

// itemsCmd creates the "items" subcommand.
func itemsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "items <driver> [category]",
		Short: "Scrape one driver and dump its items as JSON",
		Long: `Scrape the named driver (all categories, or just the one given) and
write the extracted products to stdout as JSON, without touching storage.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: runItems,
	}

	cmd.Flags().IntVar(&itemsMaxItems, "max-items", 0, "cap items per category (0 = unlimited)")

	return cmd
}

func runItems(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	env := driver.NewEnv(cfg, logger)
	defer env.Close()

	name := args[0]
	cat, err := driver.New(name, env)
	if err != nil {
		return err
	}

	categories := cat.Categories(ctx)
	if len(args) == 2 {
		categories = []string{args[1]}
	}

	out := make(map[string]any, len(categories))
	for _, category := range categories {
		products, err := cat.Items(ctx, category, itemsMaxItems)
		if err != nil {
			return fmt.Errorf("scraping %s/%s: %w", name, category, err)
		}
		out[category] = products
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

package main

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strconv"

	"github.com/fatih/color"
	"github.com/goodtune/kfocus/internal/config"
	"github.com/goodtune/kfocus/internal/storage"
	"github.com/goodtune/kfocus/internal/timeutil"
	"github.com/spf13/cobra"
)

var limitsCmd = &cobra.Command{
	Use:   "limits",
	Short: "Manage daily site limits",
}

var limitsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List configured limits",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(func(ctx context.Context, store storage.Store) error {
			limits, err := store.Limits().List(ctx)
			if err != nil {
				return fmt.Errorf("failed to list limits: %w", err)
			}
			printLimits(limits)
			return nil
		})
	},
}

var limitsSetCmd = &cobra.Command{
	Use:     "set DOMAIN MINUTES",
	Short:   "Set a daily limit in minutes",
	Example: `  kfocus limits set youtube.com 30`,
	Args:    cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		domain, seconds, err := parseLimitArgs(args[0], args[1])
		if err != nil {
			return err
		}
		return withStore(func(ctx context.Context, store storage.Store) error {
			if err := store.Limits().Set(ctx, domain, seconds); err != nil {
				return fmt.Errorf("failed to save limit: %w", err)
			}
			fmt.Printf("✅ %s limited to %s per day\n", domain, timeutil.FormatDuration(seconds))
			return nil
		})
	},
}

var limitsRemoveCmd = &cobra.Command{
	Use:     "rm DOMAIN",
	Aliases: []string{"remove", "delete"},
	Short:   "Remove a daily limit",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		domain, ok := timeutil.NormalizeDomain(args[0])
		if !ok {
			return fmt.Errorf("invalid domain: %s", args[0])
		}
		return withStore(func(ctx context.Context, store storage.Store) error {
			if err := store.Limits().Delete(ctx, domain); err != nil {
				return fmt.Errorf("failed to remove limit: %w", err)
			}
			fmt.Printf("✅ Limit removed for %s\n", domain)
			return nil
		})
	},
}

func init() {
	limitsCmd.AddCommand(limitsListCmd)
	limitsCmd.AddCommand(limitsSetCmd)
	limitsCmd.AddCommand(limitsRemoveCmd)
	rootCmd.AddCommand(limitsCmd)
}

// withStore opens the configured store for a one-shot command.
func withStore(fn func(ctx context.Context, store storage.Store) error) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	store, err := openStorage(cfg.Storage)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer store.Close()

	return fn(context.Background(), store)
}

// parseLimitArgs normalizes the domain and converts whole minutes to
// seconds.
func parseLimitArgs(rawDomain, rawMinutes string) (string, int64, error) {
	domain, ok := timeutil.NormalizeDomain(rawDomain)
	if !ok {
		return "", 0, fmt.Errorf("invalid domain: %s", rawDomain)
	}

	minutes, err := strconv.ParseInt(rawMinutes, 10, 64)
	if err != nil || minutes <= 0 {
		return "", 0, fmt.Errorf("minutes must be a positive whole number, got %q", rawMinutes)
	}
	if minutes > 24*60 {
		return "", 0, fmt.Errorf("minutes must be at most %d", 24*60)
	}

	return domain, minutes * 60, nil
}

func printLimits(limits map[string]int64) {
	if len(limits) == 0 {
		fmt.Fprintln(os.Stdout, "No limits configured.")
		return
	}

	domains := make([]string, 0, len(limits))
	for domain := range limits {
		domains = append(domains, domain)
	}
	sort.Strings(domains)

	cyan := color.New(color.FgCyan, color.Bold)
	cyan.Printf("%-40s %s\n", "DOMAIN", "DAILY LIMIT")
	for _, domain := range domains {
		fmt.Printf("%-40s %s\n", domain, timeutil.FormatDuration(limits[domain]))
	}
}

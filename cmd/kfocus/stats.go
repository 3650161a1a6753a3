package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/fatih/color"
	"github.com/goodtune/kfocus/internal/policy"
	"github.com/goodtune/kfocus/internal/storage"
	"github.com/goodtune/kfocus/internal/timeutil"
	"github.com/goodtune/kfocus/internal/usage"
	"github.com/spf13/cobra"
)

var statsTop int

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show today's most used sites",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if statsTop < 1 {
			return fmt.Errorf("--top must be at least 1")
		}
		return withStore(func(ctx context.Context, store storage.Store) error {
			return printStats(ctx, store, statsTop)
		})
	},
}

func init() {
	statsCmd.Flags().IntVarP(&statsTop, "top", "n", 5, "Number of sites to show")
	rootCmd.AddCommand(statsCmd)
}

func printStats(ctx context.Context, store storage.Store, top int) error {
	timeBySite, err := store.Usage().TimeBySite(ctx)
	if err != nil {
		return fmt.Errorf("failed to read usage: %w", err)
	}
	lastReset, err := store.Usage().LastReset(ctx)
	if err != nil {
		return fmt.Errorf("failed to read last reset: %w", err)
	}

	cyan := color.New(color.FgCyan, color.Bold)
	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)
	red := color.New(color.FgRed)

	if lastReset == "" {
		lastReset = "never"
	}
	fmt.Printf("Total today: %s (last reset: %s)\n\n", timeutil.FormatDuration(usage.Total(timeBySite)), lastReset)

	sites := usage.TopSites(timeBySite, top)
	if len(sites) == 0 {
		fmt.Println("No browsing recorded today.")
		return nil
	}

	cyan.Printf("%-40s %-10s %s\n", "DOMAIN", "TIME", "LIMIT")
	for _, site := range sites {
		limit, err := store.Limits().Get(ctx, site.Domain)
		if err != nil && !errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("failed to read limit for %s: %w", site.Domain, err)
		}

		line := fmt.Sprintf("%-40s %-10s", site.Domain, timeutil.FormatDuration(site.Seconds))
		if limit <= 0 {
			fmt.Println(line + " -")
			continue
		}

		level := policy.ComputeLevel(policy.Decide(site.Seconds, limit))
		c := green
		switch level.State {
		case policy.LevelDanger:
			c = red
		case policy.LevelWarning:
			c = yellow
		}
		c.Printf("%s %s (%.0f%%)\n", line, timeutil.FormatDuration(limit), level.Percent)
	}
	return nil
}

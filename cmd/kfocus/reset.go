package main

import (
	"context"
	"fmt"

	"github.com/goodtune/kfocus/internal/storage"
	"github.com/goodtune/kfocus/internal/usage"
	"github.com/spf13/cobra"
)

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Clear today's recorded time",
	Long: `Clear today's recorded time for every site and stamp today's date as the
last reset. Prefer POST /api/v1/reset while the server is running, so the open
session is handled by the server.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(func(ctx context.Context, store storage.Store) error {
			resetter := usage.NewResetter(store.Usage(), nil, quietLogger())
			if err := resetter.Reset(ctx, "cli"); err != nil {
				return err
			}
			fmt.Println("✅ Daily usage cleared")
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(resetCmd)
	rootCmd.AddCommand(clearCmd)
}

var clearCmd = &cobra.Command{
	Use:   "clear RECORD...",
	Short: "Remove stored records",
	Long: `Remove one or more stored records by name: time-by-site, limits,
blocked-sites or last-reset.`,
	Example: `  kfocus clear time-by-site last-reset`,
	Args:    cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		keys := make([]storage.Key, 0, len(args))
		for _, arg := range args {
			key, err := storage.ParseKey(arg)
			if err != nil {
				return err
			}
			keys = append(keys, key)
		}
		return withStore(func(ctx context.Context, store storage.Store) error {
			if err := store.Remove(ctx, keys...); err != nil {
				return fmt.Errorf("failed to remove records: %w", err)
			}
			fmt.Printf("✅ Removed %d record(s)\n", len(keys))
			return nil
		})
	},
}

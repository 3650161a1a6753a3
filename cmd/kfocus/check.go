package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/goodtune/kfocus/internal/config"
	"github.com/goodtune/kfocus/internal/policy"
	"github.com/goodtune/kfocus/internal/timeutil"
	"github.com/spf13/cobra"
)

var checkCmd = &cobra.Command{
	Use:   "check [flags] URL|DOMAIN",
	Short: "Check the limit decision for a site",
	Long:  `Check what kfocus would decide for a site right now, using today's recorded time and the configured policies.`,
	Example: `  kfocus -c config.yaml check https://www.youtube.com/watch?v=abc
  kfocus check reddit.com`,
	Args: cobra.ExactArgs(1),
	RunE: runCheck,
}

func init() {
	rootCmd.AddCommand(checkCmd)
}

func runCheck(cmd *cobra.Command, args []string) error {
	input := args[0]

	var (
		domain string
		ok     bool
	)
	if strings.Contains(input, "://") {
		domain, ok = timeutil.DomainKey(input)
	} else {
		domain, ok = timeutil.NormalizeDomain(input)
	}
	if !ok {
		printUntracked(input)
		return nil
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger := quietLogger()

	store, err := openStorage(cfg.Storage)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer store.Close()

	engine, _, err := newPolicyEngine(cfg, store, logger)
	if err != nil {
		return err
	}

	status, err := engine.Evaluate(context.Background(), domain)
	if err != nil {
		return fmt.Errorf("failed to evaluate %s: %w", domain, err)
	}

	printCheckResult(input, domain, status)
	return nil
}

func printUntracked(input string) {
	cyan := color.New(color.FgCyan, color.Bold)
	yellow := color.New(color.FgYellow)

	fmt.Println()
	cyan.Print("Decision:   ")
	yellow.Println("NOT TRACKED")
	fmt.Printf("            → %s is not an http(s) site\n", input)
	fmt.Println("            → No time is recorded and it is never blocked")
	fmt.Println()
}

// printCheckResult prints the check result with colors
func printCheckResult(input, domain string, status policy.Status) {
	cyan := color.New(color.FgCyan, color.Bold)
	green := color.New(color.FgGreen, color.Bold)
	yellow := color.New(color.FgYellow, color.Bold)
	red := color.New(color.FgRed, color.Bold)

	fmt.Println()
	cyan.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	cyan.Println("SITE LIMIT CHECK")
	cyan.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Println()

	fmt.Printf("Input:      %s\n", input)
	fmt.Printf("Domain:     %s\n", domain)
	fmt.Printf("Used today: %s\n", timeutil.FormatDuration(status.Used))
	if status.Limit > 0 {
		level := policy.ComputeLevel(status)
		fmt.Printf("Limit:      %s (%.0f%% used)\n", timeutil.FormatDuration(status.Limit), level.Percent)
	} else {
		fmt.Printf("Limit:      (none)\n")
	}
	fmt.Println()

	cyan.Print("Decision:   ")
	switch {
	case status.ShouldBlock:
		red.Println("BLOCK")
		fmt.Println("            → The block page will be shown in the tab")
	case status.Limit <= 0:
		green.Println("ALLOW")
		fmt.Println("            → No limit is configured for this site")
	default:
		switch policy.ComputeLevel(status).State {
		case policy.LevelDanger:
			red.Println("ALLOW (almost out of time)")
		case policy.LevelWarning:
			yellow.Println("ALLOW (getting close)")
		default:
			green.Println("ALLOW")
		}
		fmt.Printf("            → %s left today\n", timeutil.FormatDuration(status.Limit-status.Used))
	}

	fmt.Println()
	cyan.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Println()
}

package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/schedcu/core/internal/config"
)

var (
	flagConfig string
	flagJSON   bool
	flagData   string

	log *logrus.Logger
)

var rootCmd = &cobra.Command{
	Use:   "schedcore",
	Short: "Residency scheduling core: compliance, contingency, imports, and tasks",
	Long: `schedcore is the scheduling and resilience engine for residency programs.

It validates schedules against ACGME duty-hour rules, simulates faculty
loss (N-1/N-2), models workload equilibrium under stress, stages and
applies Excel schedule imports, renders ICS calendar feeds, and runs a
priority task scheduler with cron and retry support.

One-shot commands (validate, contingency, search, export) operate on a
dataset loaded with --data. The serve command runs the long-lived
daemon: scheduler loop, import drop-dir watcher, and nightly compliance
sweep.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := config.Initialize(flagConfig); err != nil {
			return err
		}
		log = config.NewLogger()
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "config file (default: schedcu.yaml, searched upward)")
	rootCmd.PersistentFlags().BoolVar(&flagJSON, "json", false, "emit JSON output")
	rootCmd.PersistentFlags().StringVar(&flagData, "data", "", "dataset file to load (JSON)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

package main

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/schedcu/core/internal/compliance"
)

var (
	validateStart string
	validateEnd   string
	validateSkip  []string
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check a schedule window against ACGME duty-hour rules",
	Long: `Validate runs the ACGME compliance rules over a date window: the 80-hour
weekly average, the 1-in-7 free day, supervision ratios, rest periods,
and consecutive duty limits.

Examples:
  schedcore validate --data schedule.json --start 2025-07-01 --end 2025-07-28
  schedcore validate --data schedule.json --skip supervision --json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		start, end, err := parseWindow(validateStart, validateEnd)
		if err != nil {
			return err
		}
		store, err := newStore(ctx)
		if err != nil {
			return err
		}

		opts := compliance.DefaultOptions()
		for _, skip := range validateSkip {
			switch skip {
			case "work-hours":
				opts.CheckWorkHours = false
			case "supervision":
				opts.CheckSupervision = false
			case "rest":
				opts.CheckRestPeriods = false
			case "consecutive":
				opts.CheckConsecutiveDuty = false
			default:
				return fmt.Errorf("unknown rule family %q (work-hours, supervision, rest, consecutive)", skip)
			}
		}

		validator := compliance.New(store, logrus.NewEntry(log))
		result, err := validator.Validate(ctx, start, end, opts)
		if err != nil {
			return err
		}

		if flagJSON {
			return printJSON(result)
		}
		fmt.Printf("Compliance: %.1f%% (%d checks, %d violations, %d critical)\n",
			result.ComplianceRatePercent(), result.ChecksRun, len(result.Violations), result.CriticalCount())
		fmt.Printf("Coverage:   %.1f%% of weekday blocks\n", result.ScheduleCoverage*100)
		for _, v := range result.Violations {
			fmt.Printf("  [%s] %s: %s\n", v.Severity, v.RuleType, v.Message)
			if v.SuggestedFix != "" {
				fmt.Printf("      fix: %s\n", v.SuggestedFix)
			}
		}
		return nil
	},
}

func init() {
	validateCmd.Flags().StringVar(&validateStart, "start", "", "window start (YYYY-MM-DD)")
	validateCmd.Flags().StringVar(&validateEnd, "end", "", "window end (YYYY-MM-DD)")
	validateCmd.Flags().StringSliceVar(&validateSkip, "skip", nil, "rule families to skip")
	_ = validateCmd.MarkFlagRequired("start")
	_ = validateCmd.MarkFlagRequired("end")
	rootCmd.AddCommand(validateCmd)
}

func parseWindow(startStr, endStr string) (time.Time, time.Time, error) {
	start, err := time.Parse("2006-01-02", startStr)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("parsing --start: %w", err)
	}
	end, err := time.Parse("2006-01-02", endStr)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("parsing --end: %w", err)
	}
	if end.Before(start) {
		return time.Time{}, time.Time{}, fmt.Errorf("--end %s precedes --start %s", endStr, startStr)
	}
	return start, end, nil
}

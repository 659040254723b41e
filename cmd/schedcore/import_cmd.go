package main

import (
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/schedcu/core/internal/config"
	"github.com/schedcu/core/internal/importer"
	"github.com/schedcu/core/internal/types"
)

var (
	importActor      string
	importResolution string
	importPage       int
	importPageSize   int
	importDryRun     bool
	importACGME      bool
	importReason     string
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Stage, preview, apply, roll back, or reject schedule imports",
}

func importService(cmd *cobra.Command) (*importer.Service, error) {
	store, err := newStore(cmd.Context())
	if err != nil {
		return nil, err
	}
	return importer.NewService(store, log, importer.Options{
		RequireExistingBlocks: config.GetBool("import.require-existing-blocks"),
		Locale:                config.GetString("locale"),
	}), nil
}

var importStageCmd = &cobra.Command{
	Use:   "stage <workbook.xlsx>",
	Short: "Parse a workbook, fuzzy-match names, and stage a batch",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := importService(cmd)
		if err != nil {
			return err
		}
		data, err := os.ReadFile(args[0]) // #nosec G304 - user-supplied flag
		if err != nil {
			return err
		}
		res, err := svc.Stage(cmd.Context(), data, args[0], importActor, types.ConflictResolution(importResolution))
		if err != nil {
			return err
		}
		if flagJSON {
			return printJSON(res)
		}
		fmt.Printf("Staged batch %s: %d rows, %d warnings, %d errors\n",
			res.Batch.ID, res.Batch.RowCount, res.Batch.WarningCount, res.Batch.ErrorCount)
		for _, w := range res.Warnings {
			fmt.Printf("  warning: %s\n", w)
		}
		return nil
	},
}

var importPreviewCmd = &cobra.Command{
	Use:   "preview <batch-id>",
	Short: "Show per-row dispositions for a staged batch",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		batchID, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("parsing batch id: %w", err)
		}
		svc, err := importService(cmd)
		if err != nil {
			return err
		}
		res, err := svc.Preview(cmd.Context(), batchID, importPage, importPageSize, importACGME)
		if err != nil {
			return err
		}
		if flagJSON {
			return printJSON(res)
		}
		fmt.Printf("Batch %s (%s): %d new, %d update, %d conflict, %d skip of %d rows\n",
			res.Batch.ID, res.Batch.Status, res.NewCount, res.UpdateCount, res.ConflictCount, res.SkipCount, res.TotalRows)
		for _, w := range res.ACGMEWarnings {
			fmt.Printf("  would violate: %s\n", w)
		}
		return nil
	},
}

var importApplyCmd = &cobra.Command{
	Use:   "apply <batch-id>",
	Short: "Apply a staged batch to the schedule",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		batchID, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("parsing batch id: %w", err)
		}
		svc, err := importService(cmd)
		if err != nil {
			return err
		}
		res, err := svc.Apply(cmd.Context(), batchID, importActor, types.ConflictResolution(importResolution), importDryRun, importACGME)
		if err != nil {
			return err
		}
		if flagJSON {
			return printJSON(res)
		}
		if res.DryRun {
			fmt.Printf("Dry run: %d rows would apply\n", res.WouldApply)
			return nil
		}
		fmt.Printf("Applied %d, skipped %d, failed %d\n", res.AppliedCount, res.SkippedCount, res.FailedCount)
		for _, e := range res.Errors {
			fmt.Printf("  error: %s\n", e)
		}
		for _, w := range res.Warnings {
			fmt.Printf("  warning: %s\n", w)
		}
		return nil
	},
}

var importRollbackCmd = &cobra.Command{
	Use:   "rollback <batch-id>",
	Short: "Reverse an applied batch while the 24h window is open",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		batchID, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("parsing batch id: %w", err)
		}
		svc, err := importService(cmd)
		if err != nil {
			return err
		}
		res, err := svc.Rollback(cmd.Context(), batchID, importActor, importReason)
		if err != nil {
			return err
		}
		if flagJSON {
			return printJSON(res)
		}
		fmt.Printf("Rolled back %d assignments\n", res.RolledBackCount)
		return nil
	},
}

var importRejectCmd = &cobra.Command{
	Use:   "reject <batch-id>",
	Short: "Discard a staged batch and its rows",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		batchID, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("parsing batch id: %w", err)
		}
		svc, err := importService(cmd)
		if err != nil {
			return err
		}
		if err := svc.Reject(cmd.Context(), batchID); err != nil {
			return err
		}
		fmt.Printf("Rejected batch %s\n", batchID)
		return nil
	},
}

func init() {
	importCmd.PersistentFlags().StringVar(&importActor, "actor", "cli", "who performs the operation")
	importStageCmd.Flags().StringVar(&importResolution, "resolution", "upsert", "conflict resolution: merge, upsert, replace")
	importApplyCmd.Flags().StringVar(&importResolution, "resolution", "", "override the batch's conflict resolution")
	importApplyCmd.Flags().BoolVar(&importDryRun, "dry-run", false, "count applicable rows without applying")
	importApplyCmd.Flags().BoolVar(&importACGME, "check-acgme", false, "run a compliance sweep after apply")
	importPreviewCmd.Flags().IntVar(&importPage, "page", 1, "page number")
	importPreviewCmd.Flags().IntVar(&importPageSize, "page-size", 50, "rows per page")
	importPreviewCmd.Flags().BoolVar(&importACGME, "check-acgme", false, "validate the hypothetical post-apply state")
	importRollbackCmd.Flags().StringVar(&importReason, "reason", "", "why the batch is being rolled back")

	importCmd.AddCommand(importStageCmd, importPreviewCmd, importApplyCmd, importRollbackCmd, importRejectCmd)
	rootCmd.AddCommand(importCmd)
}

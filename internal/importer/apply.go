package importer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/schedcu/core/internal/compliance"
	"github.com/schedcu/core/internal/storage"
	"github.com/schedcu/core/internal/types"
)

// PreviewResult summarizes a staged batch before apply.
type PreviewResult struct {
	Batch         *types.ImportBatch              `json:"batch"`
	NewCount      int                             `json:"new_count"`
	UpdateCount   int                             `json:"update_count"`
	ConflictCount int                             `json:"conflict_count"`
	SkipCount     int                             `json:"skip_count"`
	Rows          []*types.ImportStagedAssignment `json:"rows"`
	TotalRows     int                             `json:"total_rows"`
	ACGMEWarnings []string                        `json:"acgme_warnings,omitempty"`
}

// ApplyResult reports one apply attempt.
type ApplyResult struct {
	BatchID      uuid.UUID `json:"batch_id"`
	DryRun       bool      `json:"dry_run"`
	WouldApply   int       `json:"would_apply,omitempty"`
	AppliedCount int       `json:"applied_count"`
	SkippedCount int       `json:"skipped_count"`
	FailedCount  int       `json:"failed_count"`
	Errors       []string  `json:"errors,omitempty"`
	Warnings     []string  `json:"warnings,omitempty"`
}

// RollbackResult reports one rollback attempt.
type RollbackResult struct {
	BatchID         uuid.UUID `json:"batch_id"`
	RolledBackCount int       `json:"rolled_back_count"`
	Errors          []string  `json:"errors,omitempty"`
}

// Preview returns per-disposition counts and a page of staged rows.
// When validateACGME is set, the validator runs over the hypothetical
// post-apply state and its messages come back as warnings.
func (s *Service) Preview(ctx context.Context, batchID uuid.UUID, page, size int, validateACGME bool) (*PreviewResult, error) {
	batch, err := s.store.GetImportBatch(ctx, batchID)
	if err != nil {
		return nil, fmt.Errorf("loading batch: %w", err)
	}
	rows, err := s.store.ListStagedRows(ctx, batchID)
	if err != nil {
		return nil, fmt.Errorf("loading staged rows: %w", err)
	}

	res := &PreviewResult{Batch: batch, TotalRows: len(rows)}
	for _, row := range rows {
		switch {
		case row.MatchedPersonID == nil || len(row.ValidationErrors) > 0:
			res.SkipCount++
		case row.ConflictType == types.ConflictDuplicate:
			res.ConflictCount++
		case row.ConflictType == types.ConflictOverwrite:
			res.UpdateCount++
		default:
			res.NewCount++
		}
	}

	if page < 1 {
		page = 1
	}
	if size <= 0 {
		size = 50
	}
	start := (page - 1) * size
	if start < len(rows) {
		end := start + size
		if end > len(rows) {
			end = len(rows)
		}
		res.Rows = rows[start:end]
	}

	if validateACGME {
		warnings, err := s.forwardWarnings(ctx, rows)
		if err != nil {
			s.log.WithField("batch_id", batchID).WithError(err).Warn("forward compliance check failed")
		} else {
			res.ACGMEWarnings = warnings
		}
	}
	return res, nil
}

// forwardWarnings runs the compliance validator over current state
// overlaid with the batch's would-be assignments.
func (s *Service) forwardWarnings(ctx context.Context, rows []*types.ImportStagedAssignment) ([]string, error) {
	overlay := &overlayStore{Storage: s.store}
	var start, end time.Time
	for _, row := range rows {
		if row.MatchedPersonID == nil || row.Date.IsZero() {
			continue
		}
		block, err := s.store.GetBlockByDateSlot(ctx, row.Date, row.Slot)
		if err != nil {
			block = &types.Block{
				ID:        uuid.New(),
				Date:      row.Date,
				TimeOfDay: row.Slot,
				IsWeekend: isWeekend(row.Date),
			}
			overlay.blocks = append(overlay.blocks, block)
		}
		overlay.assigns = append(overlay.assigns, &types.Assignment{
			ID:                 uuid.New(),
			BlockID:            block.ID,
			PersonID:           *row.MatchedPersonID,
			RotationTemplateID: row.MatchedRotationID,
			Role:               types.RolePrimary,
		})
		overlay.blockByID(block)
		if start.IsZero() || row.Date.Before(start) {
			start = row.Date
		}
		if row.Date.After(end) {
			end = row.Date
		}
	}
	if len(overlay.assigns) == 0 {
		return nil, nil
	}

	validator := compliance.New(overlay, logrus.NewEntry(s.log))
	result, err := validator.Validate(ctx, start.AddDate(0, 0, -28), end.AddDate(0, 0, 1), compliance.DefaultOptions())
	if err != nil {
		return nil, err
	}
	return result.Messages(), nil
}

// Apply executes a staged or approved batch under a row lock and a
// transactional scope. Dry run reports the would-apply count only.
func (s *Service) Apply(ctx context.Context, batchID uuid.UUID, appliedBy string, resolution types.ConflictResolution, dryRun, validateACGME bool) (*ApplyResult, error) {
	release, err := s.store.LockBatch(ctx, batchID)
	if err != nil {
		return nil, fmt.Errorf("locking batch: %w", err)
	}
	defer release()

	batch, err := s.store.GetImportBatch(ctx, batchID)
	if err != nil {
		return nil, fmt.Errorf("loading batch: %w", err)
	}
	if !batch.Active() {
		return nil, fmt.Errorf("%w: apply on %s batch", ErrBatchState, batch.Status)
	}
	if resolution == "" {
		resolution = batch.ConflictResolution
	}

	rows, err := s.store.ListStagedRows(ctx, batchID)
	if err != nil {
		return nil, fmt.Errorf("loading staged rows: %w", err)
	}

	res := &ApplyResult{BatchID: batchID, DryRun: dryRun}
	if dryRun {
		for _, row := range rows {
			if applicable(row) {
				res.WouldApply++
			}
		}
		return res, nil
	}

	var minDate, maxDate time.Time
	now := s.now().UTC()
	err = s.store.RunInTransaction(ctx, func(tx storage.Transaction) error {
		for _, row := range rows {
			if !applicable(row) {
				continue
			}
			if err := s.applyRow(ctx, tx, row, resolution, res); err != nil {
				// Row failures are collected, not fatal to the batch.
				row.Status = types.RowFailed
				row.ValidationErrors = append(row.ValidationErrors, err.Error())
				res.FailedCount++
				res.Errors = append(res.Errors, fmt.Sprintf("row %d: %v", row.RowNumber, err))
			}
			if err := tx.UpdateStagedRow(ctx, row); err != nil {
				return err
			}
			if !row.Date.IsZero() {
				if minDate.IsZero() || row.Date.Before(minDate) {
					minDate = row.Date
				}
				if row.Date.After(maxDate) {
					maxDate = row.Date
				}
			}
		}
		if err := batch.MarkApplied(appliedBy, now); err != nil {
			return err
		}
		batch.ErrorCount = res.FailedCount
		return tx.UpdateImportBatch(ctx, batch)
	})
	if err != nil {
		return nil, fmt.Errorf("applying batch: %w", err)
	}

	if validateACGME && !minDate.IsZero() {
		validator := compliance.New(s.store, logrus.NewEntry(s.log))
		result, err := validator.Validate(ctx, minDate.AddDate(0, 0, -28), maxDate.AddDate(0, 0, 1), compliance.DefaultOptions())
		if err != nil {
			s.log.WithField("batch_id", batchID).WithError(err).Warn("post-apply compliance check failed")
		} else {
			res.Warnings = result.Messages()
		}
	}

	s.log.WithFields(logrus.Fields{
		"batch_id": batchID,
		"applied":  res.AppliedCount,
		"skipped":  res.SkippedCount,
		"failed":   res.FailedCount,
	}).Info("import batch applied")
	return res, nil
}

func applicable(row *types.ImportStagedAssignment) bool {
	if row.MatchedPersonID == nil || row.Date.IsZero() || len(row.ValidationErrors) > 0 {
		return false
	}
	return row.Status == types.RowPending || row.Status == types.RowApproved
}

func (s *Service) applyRow(ctx context.Context, tx storage.Transaction, row *types.ImportStagedAssignment, resolution types.ConflictResolution, res *ApplyResult) error {
	block, err := tx.GetBlockByDateSlot(ctx, row.Date, row.Slot)
	if errors.Is(err, storage.ErrNotFound) {
		if s.opts.RequireExistingBlocks {
			return fmt.Errorf("no block exists for %s %s", row.Date.Format("2006-01-02"), row.Slot)
		}
		block = &types.Block{
			ID:        uuid.New(),
			Date:      row.Date,
			TimeOfDay: row.Slot,
			IsWeekend: isWeekend(row.Date),
		}
		if err := tx.PutBlock(ctx, block); err != nil {
			return fmt.Errorf("creating block: %w", err)
		}
	} else if err != nil {
		return fmt.Errorf("locating block: %w", err)
	}

	existing, err := tx.GetAssignmentByKey(ctx, block.ID, *row.MatchedPersonID)
	switch {
	case err == nil:
		switch resolution {
		case types.ResolutionMerge:
			row.Status = types.RowSkipped
			res.SkippedCount++
			return nil
		case types.ResolutionReplace:
			if err := tx.DeleteAssignment(ctx, existing.ID); err != nil {
				return fmt.Errorf("replacing assignment: %w", err)
			}
			return s.insertAssignment(ctx, tx, row, block, res)
		default: // upsert
			existing.RotationTemplateID = row.MatchedRotationID
			existing.Notes = fmt.Sprintf("updated by import batch %s", row.BatchID)
			if err := tx.UpdateAssignment(ctx, existing); err != nil {
				return fmt.Errorf("updating assignment: %w", err)
			}
			// The assignment predates the batch; rollback must not
			// delete it, so created_assignment_id stays unset.
			row.Status = types.RowApplied
			res.AppliedCount++
			return nil
		}
	case errors.Is(err, storage.ErrNotFound):
		return s.insertAssignment(ctx, tx, row, block, res)
	default:
		return fmt.Errorf("locating assignment: %w", err)
	}
}

func (s *Service) insertAssignment(ctx context.Context, tx storage.Transaction, row *types.ImportStagedAssignment, block *types.Block, res *ApplyResult) error {
	a := &types.Assignment{
		ID:                 uuid.New(),
		BlockID:            block.ID,
		PersonID:           *row.MatchedPersonID,
		RotationTemplateID: row.MatchedRotationID,
		Role:               types.RolePrimary,
	}
	if err := tx.CreateAssignment(ctx, a); err != nil {
		return fmt.Errorf("creating assignment: %w", err)
	}
	row.Status = types.RowApplied
	row.CreatedAssignmentID = &a.ID
	res.AppliedCount++
	return nil
}

// Rollback reverses an applied batch while the window is open: created
// assignments are deleted and their rows reset to pending.
func (s *Service) Rollback(ctx context.Context, batchID uuid.UUID, rolledBackBy, reason string) (*RollbackResult, error) {
	release, err := s.store.LockBatch(ctx, batchID)
	if err != nil {
		return nil, fmt.Errorf("locking batch: %w", err)
	}
	defer release()

	batch, err := s.store.GetImportBatch(ctx, batchID)
	if err != nil {
		return nil, fmt.Errorf("loading batch: %w", err)
	}
	if batch.Status != types.BatchApplied {
		return nil, fmt.Errorf("%w: rollback on %s batch", ErrBatchState, batch.Status)
	}
	if !batch.RollbackEligible(s.now().UTC()) {
		return nil, ErrRollbackExpired
	}

	rows, err := s.store.ListStagedRows(ctx, batchID)
	if err != nil {
		return nil, fmt.Errorf("loading staged rows: %w", err)
	}

	res := &RollbackResult{BatchID: batchID}
	err = s.store.RunInTransaction(ctx, func(tx storage.Transaction) error {
		for _, row := range rows {
			if row.Status != types.RowApplied || row.CreatedAssignmentID == nil {
				continue
			}
			if err := tx.DeleteAssignment(ctx, *row.CreatedAssignmentID); err != nil {
				res.Errors = append(res.Errors, fmt.Sprintf("row %d: %v", row.RowNumber, err))
				continue
			}
			row.Status = types.RowPending
			row.CreatedAssignmentID = nil
			if err := tx.UpdateStagedRow(ctx, row); err != nil {
				return err
			}
			res.RolledBackCount++
		}
		batch.MarkRolledBack()
		return tx.UpdateImportBatch(ctx, batch)
	})
	if err != nil {
		return nil, fmt.Errorf("rolling back batch: %w", err)
	}

	s.log.WithFields(logrus.Fields{
		"batch_id":    batchID,
		"rolled_back": res.RolledBackCount,
		"by":          rolledBackBy,
		"reason":      reason,
	}).Info("import batch rolled back")
	return res, nil
}

// Reject deletes all staged rows and marks the batch rejected. An
// applied batch must be rolled back first; rejecting an already
// rejected batch is a no-op success.
func (s *Service) Reject(ctx context.Context, batchID uuid.UUID) error {
	batch, err := s.store.GetImportBatch(ctx, batchID)
	if err != nil {
		return fmt.Errorf("loading batch: %w", err)
	}
	if batch.Status == types.BatchRejected {
		return nil
	}
	if batch.Status == types.BatchApplied {
		return fmt.Errorf("%w: applied batch must be rolled back before reject", ErrBatchState)
	}

	return s.store.RunInTransaction(ctx, func(tx storage.Transaction) error {
		if err := tx.DeleteStagedRows(ctx, batchID); err != nil {
			return err
		}
		batch.Status = types.BatchRejected
		return tx.UpdateImportBatch(ctx, batch)
	})
}

func isWeekend(d time.Time) bool {
	return d.Weekday() == time.Saturday || d.Weekday() == time.Sunday
}

// overlayStore layers hypothetical blocks and assignments over storage
// for forward compliance checks.
type overlayStore struct {
	storage.Storage
	blocks  []*types.Block
	assigns []*types.Assignment
	byID    map[uuid.UUID]*types.Block
}

func (o *overlayStore) blockByID(b *types.Block) {
	if o.byID == nil {
		o.byID = make(map[uuid.UUID]*types.Block)
	}
	o.byID[b.ID] = b
}

func (o *overlayStore) ListBlocksInRange(ctx context.Context, start, end time.Time) ([]*types.Block, error) {
	base, err := o.Storage.ListBlocksInRange(ctx, start, end)
	if err != nil {
		return nil, err
	}
	for _, b := range o.blocks {
		if !b.Date.Before(start) && !b.Date.After(end) {
			base = append(base, b)
		}
	}
	return base, nil
}

func (o *overlayStore) ListAssignmentsInRange(ctx context.Context, start, end time.Time) ([]*types.Assignment, error) {
	base, err := o.Storage.ListAssignmentsInRange(ctx, start, end)
	if err != nil {
		return nil, err
	}
	for _, a := range o.assigns {
		b, ok := o.byID[a.BlockID]
		if !ok {
			var err error
			b, err = o.Storage.GetBlock(ctx, a.BlockID)
			if err != nil {
				continue
			}
		}
		if !b.Date.Before(start) && !b.Date.After(end) {
			base = append(base, a)
		}
	}
	return base, nil
}

func (o *overlayStore) GetBlock(ctx context.Context, id uuid.UUID) (*types.Block, error) {
	if b, ok := o.byID[id]; ok {
		return b, nil
	}
	return o.Storage.GetBlock(ctx, id)
}

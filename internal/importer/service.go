package importer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/schedcu/core/internal/storage"
	"github.com/schedcu/core/internal/types"
	"github.com/schedcu/core/internal/validation"
)

// ErrDuplicateFile is returned when an active batch already holds the
// uploaded file's hash.
var ErrDuplicateFile = errors.New("importer: file already staged")

// ErrBatchState is returned on state-machine violations, surfaced
// as 409.
var ErrBatchState = errors.New("importer: batch state does not allow operation")

// ErrRollbackExpired is returned when the 24 h window has passed.
var ErrRollbackExpired = errors.New("importer: rollback window expired")

// Options tunes apply behavior.
type Options struct {
	// RequireExistingBlocks disables on-demand Block creation during
	// apply; rows pointing at missing blocks fail instead.
	RequireExistingBlocks bool
	// Locale selects the language of row validation messages.
	// Empty means en_US.
	Locale string
}

// Service owns the import pipeline.
type Service struct {
	store    storage.Storage
	log      *logrus.Logger
	opts     Options
	now      func() time.Time
	rowRules map[string]validation.Rule
}

// NewService builds the import pipeline over storage.
func NewService(store storage.Storage, log *logrus.Logger, opts Options) *Service {
	locale := opts.Locale
	if locale == "" {
		locale = validation.LocaleEnUS
	}
	return &Service{
		store: store,
		log:   log,
		opts:  opts,
		now:   time.Now,
		rowRules: map[string]validation.Rule{
			"person_name":   validation.Chain(validation.Required(locale), validation.StringLength(locale, 1, 200)),
			"rotation_name": validation.StringLength(locale, 0, 200),
		},
	}
}

// SetClock overrides the time source. Test hook.
func (s *Service) SetClock(now func() time.Time) { s.now = now }

// StageResult reports the outcome of staging one workbook.
type StageResult struct {
	Batch    *types.ImportBatch                   `json:"batch"`
	Rows     []*types.ImportStagedAssignment      `json:"rows"`
	Warnings []string                             `json:"warnings,omitempty"`
}

// Stage parses and stages an uploaded workbook. The same bytes cannot
// be staged twice while the first batch is still active.
func (s *Service) Stage(ctx context.Context, data []byte, filename, createdBy string, resolution types.ConflictResolution) (*StageResult, error) {
	sum := sha256.Sum256(data)
	fileHash := hex.EncodeToString(sum[:])

	if existing, err := s.store.FindActiveBatchByHash(ctx, fileHash); err == nil && existing != nil {
		return nil, fmt.Errorf("%w: batch %s", ErrDuplicateFile, existing.ID)
	} else if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("checking file hash: %w", err)
	}

	parsed, err := parseWorkbook(data)
	if err != nil {
		return nil, err
	}

	personCache, rotationCache, err := s.loadCaches(ctx)
	if err != nil {
		return nil, err
	}

	if resolution == "" {
		resolution = types.ResolutionUpsert
	}
	batch := &types.ImportBatch{
		ID:                 uuid.New(),
		CreatedAt:          s.now().UTC(),
		CreatedBy:          createdBy,
		Filename:           filename,
		FileHash:           fileHash,
		FileSize:           int64(len(data)),
		Status:             types.BatchStaged,
		ConflictResolution: resolution,
	}

	var rows []*types.ImportStagedAssignment
	var warnings []string
	for _, p := range parsed {
		row := &types.ImportStagedAssignment{
			ID:           uuid.New(),
			BatchID:      batch.ID,
			RowNumber:    p.RowNumber,
			PersonName:   p.PersonName,
			RotationName: p.RotationName,
			Date:         p.Date,
			Slot:         p.Slot,
			ConflictType: types.ConflictNone,
			Status:       types.RowPending,
		}
		if p.DateErr != "" {
			row.ValidationErrors = append(row.ValidationErrors, p.DateErr)
		}
		for field, rule := range s.rowRules {
			value := p.PersonName
			if field == "rotation_name" {
				value = p.RotationName
			}
			if verr := rule(field, value); verr != nil {
				row.ValidationErrors = append(row.ValidationErrors, verr.Error())
			}
		}

		row.MatchedPersonID, row.PersonMatchConfidence = personCache.match(p.PersonName)
		if row.MatchedPersonID == nil {
			w := fmt.Sprintf("row %d: no person match for %q (best %.0f)", p.RowNumber, p.PersonName, row.PersonMatchConfidence)
			row.ValidationWarnings = append(row.ValidationWarnings, w)
			warnings = append(warnings, w)
		}
		if p.RotationName != "" {
			row.MatchedRotationID, row.RotationMatchConfidence = rotationCache.match(p.RotationName)
			if row.MatchedRotationID == nil {
				w := fmt.Sprintf("row %d: no rotation match for %q (best %.0f)", p.RowNumber, p.RotationName, row.RotationMatchConfidence)
				row.ValidationWarnings = append(row.ValidationWarnings, w)
				warnings = append(warnings, w)
			}
		}

		if row.MatchedPersonID != nil && !row.Date.IsZero() {
			s.detectConflict(ctx, row)
		}

		batch.RowCount++
		if len(row.ValidationErrors) > 0 {
			batch.ErrorCount++
		}
		if len(row.ValidationWarnings) > 0 {
			batch.WarningCount++
		}
		rows = append(rows, row)
	}

	err = s.store.RunInTransaction(ctx, func(tx storage.Transaction) error {
		if err := tx.CreateImportBatch(ctx, batch); err != nil {
			return err
		}
		return tx.CreateStagedRows(ctx, rows)
	})
	if err != nil {
		return nil, fmt.Errorf("persisting batch: %w", err)
	}

	s.log.WithFields(logrus.Fields{
		"batch_id": batch.ID,
		"filename": filename,
		"rows":     batch.RowCount,
		"warnings": batch.WarningCount,
	}).Info("import batch staged")
	return &StageResult{Batch: batch, Rows: rows, Warnings: warnings}, nil
}

func (s *Service) loadCaches(ctx context.Context) (*matchCache, *matchCache, error) {
	personCache := newMatchCache()
	people, err := s.store.ListPeople(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("loading people: %w", err)
	}
	for _, p := range people {
		personCache.add(p.Name, p.ID)
	}

	rotationCache := newMatchCache()
	rotations, err := s.store.ListRotationTemplates(ctx, false)
	if err != nil {
		return nil, nil, fmt.Errorf("loading rotations: %w", err)
	}
	for _, r := range rotations {
		rotationCache.add(r.Name, r.ID)
		if r.Abbreviation != "" {
			rotationCache.add(r.Abbreviation, r.ID)
		}
	}
	return personCache, rotationCache, nil
}

// detectConflict marks the row duplicate when the matched person
// already has the same rotation on the block, overwrite otherwise.
func (s *Service) detectConflict(ctx context.Context, row *types.ImportStagedAssignment) {
	block, err := s.store.GetBlockByDateSlot(ctx, row.Date, row.Slot)
	if err != nil {
		return
	}
	existing, err := s.store.GetAssignmentByKey(ctx, block.ID, *row.MatchedPersonID)
	if err != nil {
		return
	}
	row.ExistingAssignmentID = &existing.ID
	sameRotation := row.MatchedRotationID != nil && existing.RotationTemplateID != nil &&
		*row.MatchedRotationID == *existing.RotationTemplateID
	if sameRotation {
		row.ConflictType = types.ConflictDuplicate
	} else {
		row.ConflictType = types.ConflictOverwrite
	}
}

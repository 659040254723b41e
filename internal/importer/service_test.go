package importer

import (
	"bytes"
	"context"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/schedcu/core/internal/storage/memory"
	"github.com/schedcu/core/internal/types"
)

func buildWorkbook(t *testing.T, headers []string, rows [][]string) []byte {
	t.Helper()
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	for i, h := range headers {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		require.NoError(t, err)
		require.NoError(t, f.SetCellValue(sheet, cell, h))
	}
	for r, row := range rows {
		for c, v := range row {
			cell, err := excelize.CoordinatesToCellName(c+1, r+2)
			require.NoError(t, err)
			require.NoError(t, f.SetCellValue(sheet, cell, v))
		}
	}
	var buf bytes.Buffer
	require.NoError(t, f.Write(&buf))
	return buf.Bytes()
}

type fixture struct {
	store *memory.Store
	svc   *Service
	smith uuid.UUID
	jones uuid.UUID
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()
	ctx := context.Background()
	store := memory.New()
	log := logrus.New()
	log.SetOutput(io.Discard)

	f := &fixture{store: store, svc: NewService(store, log, opts)}
	f.smith = uuid.New()
	f.jones = uuid.New()
	require.NoError(t, store.PutPerson(ctx, &types.Person{ID: f.smith, Name: "Smith", Type: types.PersonTypeResident, PGYLevel: 2}))
	require.NoError(t, store.PutPerson(ctx, &types.Person{ID: f.jones, Name: "Jones", Type: types.PersonTypeResident, PGYLevel: 1}))
	require.NoError(t, store.PutRotationTemplate(ctx, &types.RotationTemplate{ID: uuid.New(), Name: "Clinic", ActivityType: "clinic"}))
	require.NoError(t, store.PutRotationTemplate(ctx, &types.RotationTemplate{ID: uuid.New(), Name: "Inpatient", ActivityType: "inpatient"}))
	return f
}

func scheduleWorkbook(t *testing.T) []byte {
	return buildWorkbook(t,
		[]string{"Name", "Date", "Time", "Rotation"},
		[][]string{
			{"Smith", "2025-03-03", "AM", "Clinic"},
			{"Jones", "2025-03-03", "PM", "Inpatient"},
		})
}

// Import round-trip: stage, apply with upsert, rollback within the
// window. Final assignment count matches pre-apply.
func TestImportRoundTrip(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{})
	data := scheduleWorkbook(t)

	staged, err := f.svc.Stage(ctx, data, "week.xlsx", "coordinator", types.ResolutionUpsert)
	require.NoError(t, err)
	require.Equal(t, types.BatchStaged, staged.Batch.Status)
	require.Len(t, staged.Rows, 2)
	for _, row := range staged.Rows {
		require.NotNil(t, row.MatchedPersonID)
		require.Equal(t, float64(100), row.PersonMatchConfidence)
		require.NotNil(t, row.MatchedRotationID)
		require.Equal(t, types.ConflictNone, row.ConflictType)
	}

	before, err := f.store.ListAssignmentsInRange(ctx,
		time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2025, 3, 7, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Empty(t, before)

	applied, err := f.svc.Apply(ctx, staged.Batch.ID, "chief", "", false, false)
	require.NoError(t, err)
	require.Equal(t, 2, applied.AppliedCount)
	require.Zero(t, applied.FailedCount)

	after, err := f.store.ListAssignmentsInRange(ctx,
		time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2025, 3, 7, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Len(t, after, 2)

	rolled, err := f.svc.Rollback(ctx, staged.Batch.ID, "chief", "wrong week")
	require.NoError(t, err)
	require.Equal(t, 2, rolled.RolledBackCount)

	final, err := f.store.ListAssignmentsInRange(ctx,
		time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2025, 3, 7, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Len(t, final, len(before))

	batch, err := f.store.GetImportBatch(ctx, staged.Batch.ID)
	require.NoError(t, err)
	require.Equal(t, types.BatchRolledBack, batch.Status)
	require.False(t, batch.RollbackAvailable)
}

func TestStageDuplicateFileRejected(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{})
	data := scheduleWorkbook(t)

	_, err := f.svc.Stage(ctx, data, "week.xlsx", "coordinator", "")
	require.NoError(t, err)

	_, err = f.svc.Stage(ctx, data, "week-again.xlsx", "coordinator", "")
	require.ErrorIs(t, err, ErrDuplicateFile)
}

func TestStageUnmatchedNameWarns(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{})
	data := buildWorkbook(t,
		[]string{"provider", "date"},
		[][]string{{"Zzyzx Qwerty", "2025-03-03"}})

	staged, err := f.svc.Stage(ctx, data, "odd.xlsx", "coordinator", "")
	require.NoError(t, err)
	require.Len(t, staged.Rows, 1)
	require.Nil(t, staged.Rows[0].MatchedPersonID)
	require.NotEmpty(t, staged.Warnings)
}

func TestStageMissingRequiredHeader(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{})
	data := buildWorkbook(t, []string{"Rotation"}, [][]string{{"Clinic"}})

	_, err := f.svc.Stage(ctx, data, "bad.xlsx", "coordinator", "")
	require.Error(t, err)
	require.Contains(t, err.Error(), "person_name")
}

func TestApplyMergeSkipsExisting(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{})

	block := &types.Block{ID: uuid.New(), Date: time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC), TimeOfDay: types.TimeOfDayAM}
	require.NoError(t, f.store.PutBlock(ctx, block))
	require.NoError(t, f.store.CreateAssignment(ctx, &types.Assignment{
		ID: uuid.New(), BlockID: block.ID, PersonID: f.smith, Role: types.RolePrimary,
	}))

	staged, err := f.svc.Stage(ctx, scheduleWorkbook(t), "week.xlsx", "coordinator", types.ResolutionMerge)
	require.NoError(t, err)

	// Smith's row collides with a different rotation: overwrite.
	var smithRow *types.ImportStagedAssignment
	for _, row := range staged.Rows {
		if row.PersonName == "Smith" {
			smithRow = row
		}
	}
	require.NotNil(t, smithRow)
	require.Equal(t, types.ConflictOverwrite, smithRow.ConflictType)

	applied, err := f.svc.Apply(ctx, staged.Batch.ID, "chief", "", false, false)
	require.NoError(t, err)
	require.Equal(t, 1, applied.AppliedCount, "Jones applied")
	require.Equal(t, 1, applied.SkippedCount, "Smith skipped under merge")
}

func TestApplyDryRun(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{})
	staged, err := f.svc.Stage(ctx, scheduleWorkbook(t), "week.xlsx", "coordinator", "")
	require.NoError(t, err)

	res, err := f.svc.Apply(ctx, staged.Batch.ID, "chief", "", true, false)
	require.NoError(t, err)
	require.True(t, res.DryRun)
	require.Equal(t, 2, res.WouldApply)
	require.Zero(t, res.AppliedCount)

	batch, err := f.store.GetImportBatch(ctx, staged.Batch.ID)
	require.NoError(t, err)
	require.Equal(t, types.BatchStaged, batch.Status, "dry run does not transition the batch")
}

func TestApplyRequireExistingBlocks(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{RequireExistingBlocks: true})
	staged, err := f.svc.Stage(ctx, scheduleWorkbook(t), "week.xlsx", "coordinator", "")
	require.NoError(t, err)

	res, err := f.svc.Apply(ctx, staged.Batch.ID, "chief", "", false, false)
	require.NoError(t, err)
	require.Zero(t, res.AppliedCount)
	require.Equal(t, 2, res.FailedCount)
	require.Len(t, res.Errors, 2)
}

func TestApplyWrongStateRejected(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{})
	staged, err := f.svc.Stage(ctx, scheduleWorkbook(t), "week.xlsx", "coordinator", "")
	require.NoError(t, err)

	_, err = f.svc.Apply(ctx, staged.Batch.ID, "chief", "", false, false)
	require.NoError(t, err)

	_, err = f.svc.Apply(ctx, staged.Batch.ID, "chief", "", false, false)
	require.ErrorIs(t, err, ErrBatchState)
}

func TestRollbackWindowBoundary(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{})

	appliedAt := time.Date(2025, 3, 4, 10, 0, 0, 0, time.UTC)
	f.svc.SetClock(func() time.Time { return appliedAt })

	staged, err := f.svc.Stage(ctx, scheduleWorkbook(t), "week.xlsx", "coordinator", "")
	require.NoError(t, err)
	_, err = f.svc.Apply(ctx, staged.Batch.ID, "chief", "", false, false)
	require.NoError(t, err)

	// Exactly at the expiry instant rollback is still eligible.
	f.svc.SetClock(func() time.Time { return appliedAt.Add(types.RollbackWindow) })
	rolled, err := f.svc.Rollback(ctx, staged.Batch.ID, "chief", "late but in time")
	require.NoError(t, err)
	require.Equal(t, 2, rolled.RolledBackCount)
}

func TestRollbackAfterExpiry(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{})

	appliedAt := time.Date(2025, 3, 4, 10, 0, 0, 0, time.UTC)
	f.svc.SetClock(func() time.Time { return appliedAt })

	staged, err := f.svc.Stage(ctx, scheduleWorkbook(t), "week.xlsx", "coordinator", "")
	require.NoError(t, err)
	_, err = f.svc.Apply(ctx, staged.Batch.ID, "chief", "", false, false)
	require.NoError(t, err)

	f.svc.SetClock(func() time.Time { return appliedAt.Add(types.RollbackWindow + time.Second) })
	_, err = f.svc.Rollback(ctx, staged.Batch.ID, "chief", "too late")
	require.ErrorIs(t, err, ErrRollbackExpired)
}

func TestRejectSemantics(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{})
	staged, err := f.svc.Stage(ctx, scheduleWorkbook(t), "week.xlsx", "coordinator", "")
	require.NoError(t, err)

	require.NoError(t, f.svc.Reject(ctx, staged.Batch.ID))
	batch, err := f.store.GetImportBatch(ctx, staged.Batch.ID)
	require.NoError(t, err)
	require.Equal(t, types.BatchRejected, batch.Status)
	rows, err := f.store.ListStagedRows(ctx, staged.Batch.ID)
	require.NoError(t, err)
	require.Empty(t, rows)

	// Rejecting again is a no-op success.
	require.NoError(t, f.svc.Reject(ctx, staged.Batch.ID))

	// A rejected batch frees its hash slot for re-staging.
	_, err = f.svc.Stage(ctx, scheduleWorkbook(t), "week.xlsx", "coordinator", "")
	require.NoError(t, err)
}

func TestRejectAppliedBatchFails(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{})
	staged, err := f.svc.Stage(ctx, scheduleWorkbook(t), "week.xlsx", "coordinator", "")
	require.NoError(t, err)
	_, err = f.svc.Apply(ctx, staged.Batch.ID, "chief", "", false, false)
	require.NoError(t, err)

	err = f.svc.Reject(ctx, staged.Batch.ID)
	require.ErrorIs(t, err, ErrBatchState)
}

func TestPreviewCounts(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{})

	data := buildWorkbook(t,
		[]string{"Name", "Date", "Time", "Rotation"},
		[][]string{
			{"Smith", "2025-03-03", "AM", "Clinic"},
			{"Jones", "2025-03-03", "PM", "Inpatient"},
			{"Nobody Known", "2025-03-04", "AM", "Clinic"},
		})
	staged, err := f.svc.Stage(ctx, data, "mixed.xlsx", "coordinator", "")
	require.NoError(t, err)

	preview, err := f.svc.Preview(ctx, staged.Batch.ID, 1, 10, false)
	require.NoError(t, err)
	require.Equal(t, 2, preview.NewCount)
	require.Equal(t, 1, preview.SkipCount)
	require.Equal(t, 3, preview.TotalRows)
	require.Len(t, preview.Rows, 3)

	// Pagination.
	page2, err := f.svc.Preview(ctx, staged.Batch.ID, 2, 2, false)
	require.NoError(t, err)
	require.Len(t, page2.Rows, 1)
}

func TestParseWorkbookHeaderAliasesAndDates(t *testing.T) {
	data := buildWorkbook(t,
		[]string{"Provider", "DATE", "Session"},
		[][]string{
			{"Smith", "2025-03-03", "pm"},
			{"Jones", "03/04/2025", ""},
		})

	rows, err := parseWorkbook(data)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.Equal(t, "Smith", rows[0].PersonName)
	require.Equal(t, types.TimeOfDayPM, rows[0].Slot)
	require.Equal(t, time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC), rows[0].Date)
	require.Equal(t, types.TimeOfDayAM, rows[1].Slot, "empty slot defaults to AM")
	require.Equal(t, time.Date(2025, 3, 4, 0, 0, 0, 0, time.UTC), rows[1].Date)
}

func TestParseWorkbookBadDateCollected(t *testing.T) {
	data := buildWorkbook(t,
		[]string{"name", "date"},
		[][]string{{"Smith", "not-a-date"}})

	rows, err := parseWorkbook(data)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.NotEmpty(t, rows[0].DateErr)
}

func TestStageHashDiffersByContent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{})

	a, err := f.svc.Stage(ctx, scheduleWorkbook(t), "a.xlsx", "coordinator", "")
	require.NoError(t, err)
	other := buildWorkbook(t,
		[]string{"Name", "Date"},
		[][]string{{"Jones", "2025-03-05"}})
	b, err := f.svc.Stage(ctx, other, "b.xlsx", "coordinator", "")
	require.NoError(t, err)
	require.NotEqual(t, a.Batch.FileHash, b.Batch.FileHash)
	require.Len(t, a.Batch.FileHash, 64)
}

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/schedcu/core/internal/storage/memory"
	"github.com/schedcu/core/internal/types"
)

// Dataset is the on-disk shape accepted by --data. Entities load in
// dependency order so references resolve.
type Dataset struct {
	People    []*types.Person           `json:"people,omitempty"`
	Rotations []*types.RotationTemplate `json:"rotations,omitempty"`
	Blocks    []*types.Block            `json:"blocks,omitempty"`
	Assigns   []*types.Assignment       `json:"assignments,omitempty"`
	Absences  []*types.Absence          `json:"absences,omitempty"`
}

func loadDataset(ctx context.Context, store *memory.Store, path string) error {
	data, err := os.ReadFile(path) // #nosec G304 - user-supplied flag
	if err != nil {
		return fmt.Errorf("reading dataset: %w", err)
	}
	var ds Dataset
	if err := json.Unmarshal(data, &ds); err != nil {
		return fmt.Errorf("parsing dataset %s: %w", path, err)
	}

	for _, p := range ds.People {
		if err := store.PutPerson(ctx, p); err != nil {
			return fmt.Errorf("loading person %s: %w", p.ID, err)
		}
	}
	for _, r := range ds.Rotations {
		if err := store.PutRotationTemplate(ctx, r); err != nil {
			return fmt.Errorf("loading rotation %s: %w", r.ID, err)
		}
	}
	for _, b := range ds.Blocks {
		if err := store.PutBlock(ctx, b); err != nil {
			return fmt.Errorf("loading block %s: %w", b.ID, err)
		}
	}
	for _, a := range ds.Assigns {
		if err := store.CreateAssignment(ctx, a); err != nil {
			return fmt.Errorf("loading assignment %s: %w", a.ID, err)
		}
	}
	for _, ab := range ds.Absences {
		if err := store.PutAbsence(ctx, ab); err != nil {
			return fmt.Errorf("loading absence %s: %w", ab.ID, err)
		}
	}
	return nil
}

// newStore builds the in-memory store, seeded from --data when given.
func newStore(ctx context.Context) (*memory.Store, error) {
	store := memory.New()
	if flagData != "" {
		if err := loadDataset(ctx, store, flagData); err != nil {
			return nil, err
		}
	}
	return store, nil
}

func printJSON(v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

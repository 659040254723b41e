package search

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/schedcu/core/internal/storage"
	"github.com/schedcu/core/internal/types"
)

// StorageSource indexes core entities straight from storage. Procedure
// and swap documents come from the upstream clinical system; until that
// feed is wired the types resolve to empty sets.
type StorageSource struct {
	store storage.Storage
	// Window bounds the assignment index. Defaults to one year either
	// side of now.
	WindowStart time.Time
	WindowEnd   time.Time
}

// NewStorageSource builds a source over the given storage.
func NewStorageSource(store storage.Storage) *StorageSource {
	return &StorageSource{store: store}
}

// Documents implements Source.
func (s *StorageSource) Documents(ctx context.Context, t EntityType) ([]Document, error) {
	switch t {
	case EntityPerson:
		return s.people(ctx)
	case EntityRotation:
		return s.rotations(ctx)
	case EntityAssignment:
		return s.assignments(ctx)
	case EntityProcedure, EntitySwap:
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown entity type %q", t)
	}
}

func (s *StorageSource) people(ctx context.Context) ([]Document, error) {
	people, err := s.store.ListPeople(ctx)
	if err != nil {
		return nil, err
	}
	docs := make([]Document, 0, len(people))
	for _, p := range people {
		facets := map[string][]string{
			"person_type": {string(p.Type)},
		}
		if p.IsResident() && p.PGYLevel > 0 {
			facets["pgy_level"] = []string{fmt.Sprintf("PGY-%d", p.PGYLevel)}
		}
		if p.IsFaculty() && p.Role != "" {
			facets["faculty_role"] = []string{string(p.Role)}
		}
		docs = append(docs, Document{
			Type:       EntityPerson,
			ID:         p.ID.String(),
			Label:      p.Name,
			SearchText: []string{p.Name, p.Email, strings.Join(p.Specialties, " ")},
			Facets:     facets,
		})
	}
	return docs, nil
}

func (s *StorageSource) rotations(ctx context.Context) ([]Document, error) {
	rotations, err := s.store.ListRotationTemplates(ctx, true)
	if err != nil {
		return nil, err
	}
	docs := make([]Document, 0, len(rotations))
	for _, r := range rotations {
		status := "active"
		if r.IsArchived {
			status = "archived"
		}
		facets := map[string][]string{
			"rotation_type": {r.ActivityType},
			"status":        {status},
		}
		if r.ClinicLocation != "" {
			facets["location"] = []string{r.ClinicLocation}
		}
		docs = append(docs, Document{
			Type:       EntityRotation,
			ID:         r.ID.String(),
			Label:      r.Name,
			SearchText: []string{r.Name, r.Abbreviation, r.ActivityType, r.ClinicLocation},
			Facets:     facets,
		})
	}
	return docs, nil
}

func (s *StorageSource) assignments(ctx context.Context) ([]Document, error) {
	start, end := s.WindowStart, s.WindowEnd
	if start.IsZero() {
		start = time.Now().AddDate(-1, 0, 0)
	}
	if end.IsZero() {
		end = time.Now().AddDate(1, 0, 0)
	}
	assigns, err := s.store.ListAssignmentsInRange(ctx, start, end)
	if err != nil {
		return nil, err
	}

	people := make(map[string]*types.Person)
	rotations := make(map[string]*types.RotationTemplate)
	docs := make([]Document, 0, len(assigns))
	for _, a := range assigns {
		block, err := s.store.GetBlock(ctx, a.BlockID)
		if err != nil {
			return nil, fmt.Errorf("loading block for assignment %s: %w", a.ID, err)
		}

		personName := a.PersonID.String()
		if p, ok := people[a.PersonID.String()]; ok {
			personName = p.Name
		} else if p, err := s.store.GetPerson(ctx, a.PersonID); err == nil {
			people[a.PersonID.String()] = p
			personName = p.Name
		}

		rotationName := ""
		facets := map[string][]string{"role": {string(a.Role)}}
		if a.RotationTemplateID != nil {
			key := a.RotationTemplateID.String()
			r, ok := rotations[key]
			if !ok {
				if r, err = s.store.GetRotationTemplate(ctx, *a.RotationTemplateID); err == nil {
					rotations[key] = r
				}
			}
			if r != nil {
				rotationName = r.Name
				facets["rotation_type"] = []string{r.ActivityType}
			}
		}

		label := personName
		if rotationName != "" {
			label = fmt.Sprintf("%s: %s", personName, rotationName)
		}
		docs = append(docs, Document{
			Type:       EntityAssignment,
			ID:         a.ID.String(),
			Label:      label,
			SearchText: []string{personName, rotationName, a.Notes},
			Facets:     facets,
			Date:       block.Date,
		})
	}
	return docs, nil
}

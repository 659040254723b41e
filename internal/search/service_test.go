package search

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/schedcu/core/internal/kv"
	"github.com/schedcu/core/internal/storage/memory"
	"github.com/schedcu/core/internal/types"
)

func seedStore(t *testing.T) *memory.Store {
	t.Helper()
	ctx := context.Background()
	store := memory.New()

	people := []*types.Person{
		{ID: uuid.New(), Name: "Alice Chen", Email: "chen@example.org", Type: types.PersonTypeResident, PGYLevel: 1},
		{ID: uuid.New(), Name: "Ben Chenoweth", Email: "ben@example.org", Type: types.PersonTypeResident, PGYLevel: 2},
		{ID: uuid.New(), Name: "Dana Okafor", Email: "okafor@example.org", Type: types.PersonTypeFaculty, Role: types.RolePD},
	}
	for _, p := range people {
		require.NoError(t, store.PutPerson(ctx, p))
	}

	rotations := []*types.RotationTemplate{
		{ID: uuid.New(), Name: "Chen Clinic", ActivityType: "clinic", ClinicLocation: "Main Hospital > 4th Floor"},
		{ID: uuid.New(), Name: "ICU Days", ActivityType: "icu", ClinicLocation: "Main Hospital > ICU"},
		{ID: uuid.New(), Name: "Night Float", ActivityType: "call"},
	}
	for _, r := range rotations {
		require.NoError(t, store.PutRotationTemplate(ctx, r))
	}
	return store
}

func newTestService(t *testing.T, store *memory.Store, opts Options) *Service {
	t.Helper()
	log := logrus.New()
	log.SetOutput(io.Discard)
	return NewService(NewStorageSource(store), kv.NewMemory(), log, opts)
}

func TestSearchSubstringMatch(t *testing.T) {
	svc := newTestService(t, seedStore(t), DefaultOptions())

	res, err := svc.Search(context.Background(), Query{Text: "chen"})
	require.NoError(t, err)
	require.False(t, res.FromCache)
	// Alice Chen, Ben Chenoweth, and the Chen Clinic rotation.
	require.Equal(t, 3, res.Total)
}

func TestSearchFacetFilterAndCounts(t *testing.T) {
	svc := newTestService(t, seedStore(t), DefaultOptions())

	res, err := svc.Search(context.Background(), Query{
		Text:        "e",
		EntityTypes: []EntityType{EntityPerson},
		Selections:  []Selection{{Facet: "person_type", Values: []string{"resident"}}},
	})
	require.NoError(t, err)
	require.Equal(t, 2, res.Total)

	var pgy *Facet
	for i := range res.Facets {
		if res.Facets[i].Name == "pgy_level" {
			pgy = &res.Facets[i]
		}
	}
	require.NotNil(t, pgy, "expected a pgy_level facet over resident results")
	require.Len(t, pgy.Values, 2)
	// Equal counts order by value ascending.
	require.Equal(t, "PGY-1", pgy.Values[0].Value)
	require.Equal(t, "PGY-2", pgy.Values[1].Value)
}

func TestSearchHierarchicalFacetRollup(t *testing.T) {
	svc := newTestService(t, seedStore(t), DefaultOptions())

	res, err := svc.Search(context.Background(), Query{
		Text:        "i", // matches Chen Clinic, ICU Days, Night Float
		EntityTypes: []EntityType{EntityRotation},
	})
	require.NoError(t, err)
	require.Equal(t, 3, res.Total)

	var loc *Facet
	for i := range res.Facets {
		if res.Facets[i].Name == "location" {
			loc = &res.Facets[i]
		}
	}
	require.NotNil(t, loc)
	require.Len(t, loc.Values, 1)
	require.Equal(t, "Main Hospital", loc.Values[0].Value)
	require.Equal(t, 2, loc.Values[0].Count, "parent count rolls up children")
	require.Len(t, loc.Values[0].Children, 2)
}

func TestSearchOperatorAND(t *testing.T) {
	svc := newTestService(t, seedStore(t), DefaultOptions())

	res, err := svc.Search(context.Background(), Query{
		Text:        "e",
		EntityTypes: []EntityType{EntityPerson},
		Selections: []Selection{{
			Facet:    "person_type",
			Values:   []string{"resident", "faculty"},
			Operator: OperatorAND,
		}},
	})
	require.NoError(t, err)
	require.Equal(t, 0, res.Total, "nobody is both resident and faculty under AND")

	res, err = svc.Search(context.Background(), Query{
		Text:        "e",
		EntityTypes: []EntityType{EntityPerson},
		Selections: []Selection{{
			Facet:  "person_type",
			Values: []string{"resident", "faculty"},
		}},
	})
	require.NoError(t, err)
	require.Equal(t, 3, res.Total, "OR is the default operator")
}

// Identical search twice: the second must come from the cache, return
// the same counts, and leave the per-type query counters untouched.
func TestSearchCacheHit(t *testing.T) {
	svc := newTestService(t, seedStore(t), DefaultOptions())
	q := Query{Text: "chen"}

	first, err := svc.Search(context.Background(), q)
	require.NoError(t, err)
	require.False(t, first.FromCache)

	statsAfterFirst := svc.Stats()
	require.Equal(t, int64(0), statsAfterFirst.CacheHits)
	require.Equal(t, int64(1), statsAfterFirst.CacheMisses)

	second, err := svc.Search(context.Background(), q)
	require.NoError(t, err)
	require.True(t, second.FromCache)
	require.Equal(t, first.Total, second.Total)
	require.Equal(t, first.Facets, second.Facets)

	stats := svc.Stats()
	require.Equal(t, int64(1), stats.CacheHits)
	require.Equal(t, statsAfterFirst.QueriesByType, stats.QueriesByType,
		"a cache hit must not re-query entity types")
}

func TestCacheKeyCanonicalization(t *testing.T) {
	a := Query{
		Text:        "chen",
		EntityTypes: []EntityType{EntityRotation, EntityPerson},
		Selections:  []Selection{{Facet: "status", Values: []string{"b", "a"}}},
	}
	b := Query{
		Text:        "  Chen ",
		EntityTypes: []EntityType{EntityPerson, EntityRotation},
		Selections:  []Selection{{Facet: "status", Values: []string{"a", "b"}, Operator: OperatorOR}},
	}
	require.Equal(t, CacheKey(a), CacheKey(b))

	c := a
	c.Selections = []Selection{{Facet: "status", Values: []string{"a"}}}
	require.NotEqual(t, CacheKey(a), CacheKey(c))
}

func TestSearchEmptyInput(t *testing.T) {
	svc := newTestService(t, seedStore(t), DefaultOptions())

	res, err := svc.Search(context.Background(), Query{Text: "   "})
	require.NoError(t, err)
	require.Empty(t, res.Hits)
	require.Zero(t, res.Total)

	stats := svc.Stats()
	require.Zero(t, stats.CacheHits)
	require.Zero(t, stats.CacheMisses)
}

func TestSearchDateBucket(t *testing.T) {
	ctx := context.Background()
	store := seedStore(t)

	now := time.Date(2026, 6, 10, 12, 0, 0, 0, time.UTC)
	person, _ := firstPerson(t, store)
	recent := &types.Block{ID: uuid.New(), Date: now.AddDate(0, 0, -2), TimeOfDay: types.TimeOfDayAM}
	old := &types.Block{ID: uuid.New(), Date: now.AddDate(0, 0, -60), TimeOfDay: types.TimeOfDayAM}
	require.NoError(t, store.PutBlock(ctx, recent))
	require.NoError(t, store.PutBlock(ctx, old))
	require.NoError(t, store.CreateAssignment(ctx, &types.Assignment{ID: uuid.New(), BlockID: recent.ID, PersonID: person, Role: types.RolePrimary}))
	require.NoError(t, store.CreateAssignment(ctx, &types.Assignment{ID: uuid.New(), BlockID: old.ID, PersonID: person, Role: types.RolePrimary}))

	svc := newTestService(t, store, DefaultOptions())
	svc.SetClock(func() time.Time { return now })

	res, err := svc.Search(ctx, Query{
		EntityTypes: []EntityType{EntityAssignment},
		Selections:  []Selection{{Facet: DateFacet, Values: []string{BucketLast7Days}}},
	})
	require.NoError(t, err)
	require.Equal(t, 1, res.Total, "only the recent assignment falls in last_7_days")
}

func TestDynamicFacetOrdering(t *testing.T) {
	opts := DefaultOptions()
	opts.DynamicOrdering = true
	svc := newTestService(t, seedStore(t), opts)
	ctx := context.Background()

	// Build selection history on pgy_level.
	for i := 0; i < 3; i++ {
		_, err := svc.Search(ctx, Query{
			Text:        "chen",
			EntityTypes: []EntityType{EntityPerson},
			Selections:  []Selection{{Facet: "pgy_level", Values: []string{"PGY-1"}}},
		})
		require.NoError(t, err)
	}

	res, err := svc.Search(ctx, Query{Text: "chen", EntityTypes: []EntityType{EntityPerson}})
	require.NoError(t, err)
	require.NotEmpty(t, res.Facets)
	require.Equal(t, "pgy_level", res.Facets[0].Name, "most-selected facet orders first")
}

func firstPerson(t *testing.T, store *memory.Store) (uuid.UUID, string) {
	t.Helper()
	people, err := store.ListPeople(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, people)
	return people[0].ID, people[0].Name
}

package search

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/schedcu/core/internal/kv"
)

// Options tunes facet aggregation and caching.
type Options struct {
	MinFacetCount   int
	MaxFacetValues  int
	CacheTTL        time.Duration
	DynamicOrdering bool
	DefaultPageSize int
}

// DefaultOptions mirror the documented aggregation defaults.
func DefaultOptions() Options {
	return Options{
		MinFacetCount:   1,
		MaxFacetValues:  20,
		CacheTTL:        5 * time.Minute,
		DefaultPageSize: 20,
	}
}

// Stats exposes the cache and per-type query counters.
type Stats struct {
	CacheHits      int64                `json:"cache_hits"`
	CacheMisses    int64                `json:"cache_misses"`
	QueriesByType  map[EntityType]int64 `json:"queries_by_type"`
	FacetSelection map[string]int64     `json:"facet_selections"`
}

// Service runs the search pipeline over a document source with a
// KV-backed result cache.
type Service struct {
	source Source
	cache  kv.Store
	log    *logrus.Logger
	opts   Options
	now    func() time.Time

	cacheHits   atomic.Int64
	cacheMisses atomic.Int64

	mu          sync.Mutex
	typeQueries map[EntityType]int64
	selections  map[string]int64 // analytics accumulator
}

// NewService builds a search service.
func NewService(source Source, cache kv.Store, log *logrus.Logger, opts Options) *Service {
	if opts.MaxFacetValues <= 0 {
		opts.MaxFacetValues = DefaultOptions().MaxFacetValues
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = DefaultOptions().CacheTTL
	}
	if opts.DefaultPageSize <= 0 {
		opts.DefaultPageSize = DefaultOptions().DefaultPageSize
	}
	return &Service{
		source:      source,
		cache:       cache,
		log:         log,
		opts:        opts,
		now:         time.Now,
		typeQueries: make(map[EntityType]int64),
		selections:  make(map[string]int64),
	}
}

// SetClock overrides the time source. Test hook.
func (s *Service) SetClock(now func() time.Time) { s.now = now }

// Stats returns a snapshot of the counters.
func (s *Service) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	byType := make(map[EntityType]int64, len(s.typeQueries))
	for k, val := range s.typeQueries {
		byType[k] = val
	}
	sel := make(map[string]int64, len(s.selections))
	for k, val := range s.selections {
		sel[k] = val
	}
	return Stats{
		CacheHits:      s.cacheHits.Load(),
		CacheMisses:    s.cacheMisses.Load(),
		QueriesByType:  byType,
		FacetSelection: sel,
	}
}

// Search executes the pipeline: cache lookup, per-type search, facet
// aggregation, analytics update. Empty input returns empty results,
// never an error.
func (s *Service) Search(ctx context.Context, q Query) (*Results, error) {
	if strings.TrimSpace(q.Text) == "" && len(q.Selections) == 0 {
		return &Results{Hits: []Hit{}, Facets: []Facet{}}, nil
	}
	if q.Page <= 0 {
		q.Page = 1
	}
	if q.PageSize <= 0 {
		q.PageSize = s.opts.DefaultPageSize
	}

	key := CacheKey(q)
	if cached, err := s.cache.Get(ctx, key); err == nil {
		var res Results
		if err := json.Unmarshal([]byte(cached), &res); err == nil {
			s.cacheHits.Add(1)
			res.FromCache = true
			s.recordAnalytics(q)
			return &res, nil
		}
		s.log.WithField("key", key).Warn("search cache entry undecodable, recomputing")
	} else if !errors.Is(err, kv.ErrNotFound) {
		return nil, fmt.Errorf("search cache lookup: %w", err)
	}
	s.cacheMisses.Add(1)

	docs, err := s.collect(ctx, q)
	if err != nil {
		return nil, err
	}

	matched := s.filter(docs, q)
	facets := s.aggregate(matched)

	sort.Slice(matched, func(i, j int) bool {
		if matched[i].Type != matched[j].Type {
			return matched[i].Type < matched[j].Type
		}
		return matched[i].Label < matched[j].Label
	})

	res := &Results{Total: len(matched), Facets: facets, Hits: []Hit{}}
	start := (q.Page - 1) * q.PageSize
	if start < len(matched) {
		end := start + q.PageSize
		if end > len(matched) {
			end = len(matched)
		}
		for _, d := range matched[start:end] {
			res.Hits = append(res.Hits, Hit{Type: d.Type, ID: d.ID, Label: d.Label})
		}
	}

	if raw, err := json.Marshal(res); err == nil {
		if err := s.cache.Set(ctx, key, string(raw), s.opts.CacheTTL); err != nil {
			s.log.WithField("key", key).WithError(err).Warn("search cache write failed")
		}
	}

	s.recordAnalytics(q)
	return res, nil
}

// InvalidateCacheKey drops one cached query, for callers that mutate
// the underlying entities.
func (s *Service) InvalidateCacheKey(ctx context.Context, q Query) error {
	return s.cache.Delete(ctx, CacheKey(q))
}

func (s *Service) collect(ctx context.Context, q Query) ([]Document, error) {
	var docs []Document
	for _, t := range effectiveTypes(q) {
		typed, err := s.source.Documents(ctx, t)
		if err != nil {
			return nil, fmt.Errorf("collecting %s documents: %w", t, err)
		}
		s.mu.Lock()
		s.typeQueries[t]++
		s.mu.Unlock()
		docs = append(docs, typed...)
	}
	return docs, nil
}

// filter applies the substring match and facet selections. Selections
// AND across facets; within a facet the selection operator applies.
func (s *Service) filter(docs []Document, q Query) []Document {
	text := strings.ToLower(strings.TrimSpace(q.Text))
	now := s.now()

	var out []Document
	for _, d := range docs {
		if text != "" && !matchesText(d, text) {
			continue
		}
		ok := true
		for _, sel := range q.Selections {
			if sel.Facet == DateFacet {
				if !matchesDateBucket(d.Date, sel.Values, now, q.CustomStart, q.CustomEnd) {
					ok = false
					break
				}
				continue
			}
			if !matchesSelection(d.Facets[sel.Facet], sel) {
				ok = false
				break
			}
		}
		if ok {
			out = append(out, d)
		}
	}
	return out
}

func matchesText(d Document, text string) bool {
	for _, field := range d.SearchText {
		if strings.Contains(strings.ToLower(field), text) {
			return true
		}
	}
	return false
}

func matchesSelection(docValues []string, sel Selection) bool {
	if len(sel.Values) == 0 {
		return true
	}
	have := make(map[string]bool, len(docValues))
	for _, v := range docValues {
		have[v] = true
	}
	if sel.Operator == OperatorAND {
		for _, want := range sel.Values {
			if !have[want] {
				return false
			}
		}
		return true
	}
	for _, want := range sel.Values {
		if have[want] {
			return true
		}
	}
	return false
}

// matchesDateBucket applies the single-select date facet. An undated
// document never matches a date selection.
func matchesDateBucket(d time.Time, values []string, now time.Time, customStart, customEnd *time.Time) bool {
	if len(values) == 0 {
		return true
	}
	if d.IsZero() {
		return false
	}
	start, end, ok := bucketRange(values[0], now, customStart, customEnd)
	if !ok {
		return false
	}
	return !d.Before(start) && d.Before(end)
}

func bucketRange(bucket string, now time.Time, customStart, customEnd *time.Time) (time.Time, time.Time, bool) {
	day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	switch bucket {
	case BucketToday:
		return day, day.AddDate(0, 0, 1), true
	case BucketThisWeek:
		// ISO week, Monday start.
		offset := (int(day.Weekday()) + 6) % 7
		start := day.AddDate(0, 0, -offset)
		return start, start.AddDate(0, 0, 7), true
	case BucketThisMonth:
		start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
		return start, start.AddDate(0, 1, 0), true
	case BucketLast7Days:
		return day.AddDate(0, 0, -7), day.AddDate(0, 0, 1), true
	case BucketLast30Days:
		return day.AddDate(0, 0, -30), day.AddDate(0, 0, 1), true
	case BucketLast90Days:
		return day.AddDate(0, 0, -90), day.AddDate(0, 0, 1), true
	case BucketLastYear:
		return day.AddDate(-1, 0, 0), day.AddDate(0, 0, 1), true
	case BucketCustom:
		if customStart == nil || customEnd == nil {
			return time.Time{}, time.Time{}, false
		}
		return *customStart, *customEnd, true
	default:
		return time.Time{}, time.Time{}, false
	}
}

// recordAnalytics bumps the per-facet selection counters after every
// search.
func (s *Service) recordAnalytics(q Query) {
	if len(q.Selections) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sel := range q.Selections {
		s.selections[sel.Facet] += int64(len(sel.Values))
	}
}

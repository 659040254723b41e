// Package search serves paginated entity search with dynamic facet
// counts, cached through the KV store under a canonical query hash.
package search

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"
)

// EntityType enumerates the searchable entity families.
type EntityType string

const (
	EntityPerson     EntityType = "person"
	EntityRotation   EntityType = "rotation"
	EntityProcedure  EntityType = "procedure"
	EntityAssignment EntityType = "assignment"
	EntitySwap       EntityType = "swap"
)

// AllEntityTypes is the default search scope.
var AllEntityTypes = []EntityType{EntityPerson, EntityRotation, EntityProcedure, EntityAssignment, EntitySwap}

// Operator combines selected values within one facet.
type Operator string

const (
	OperatorOR  Operator = "OR"
	OperatorAND Operator = "AND"
)

// DateFacet is the reserved facet name for date-range bucketing.
const DateFacet = "date_range"

// Date bucket identifiers. Single-select.
const (
	BucketToday      = "today"
	BucketThisWeek   = "this_week"
	BucketThisMonth  = "this_month"
	BucketLast7Days  = "last_7_days"
	BucketLast30Days = "last_30_days"
	BucketLast90Days = "last_90_days"
	BucketLastYear   = "last_year"
	BucketCustom     = "custom"
)

// Selection applies one facet filter to a query.
type Selection struct {
	Facet    string   `json:"facet"`
	Values   []string `json:"values"`
	Operator Operator `json:"operator,omitempty"` // OR when empty
}

// Query is one search request.
type Query struct {
	Text        string       `json:"text"`
	EntityTypes []EntityType `json:"entity_types,omitempty"` // all when empty
	Selections  []Selection  `json:"selections,omitempty"`
	Page        int          `json:"page"`      // 1-based
	PageSize    int          `json:"page_size"` // default 20
	// CustomStart/CustomEnd back the "custom" date bucket.
	CustomStart *time.Time `json:"custom_start,omitempty"`
	CustomEnd   *time.Time `json:"custom_end,omitempty"`
}

// Hit is one matched entity.
type Hit struct {
	Type   EntityType        `json:"type"`
	ID     string            `json:"id"`
	Label  string            `json:"label"`
	Fields map[string]string `json:"fields,omitempty"`
}

// FacetValue is one counted bucket, with children for hierarchical
// facets.
type FacetValue struct {
	Value    string       `json:"value"`
	Count    int          `json:"count"`
	Children []FacetValue `json:"children,omitempty"`
}

// Facet is one aggregated dimension over the result set.
type Facet struct {
	Name   string       `json:"name"`
	Values []FacetValue `json:"values"`
}

// Results is one search response. FromCache is recomputed per lookup
// and excluded from the cached form.
type Results struct {
	Hits      []Hit   `json:"hits"`
	Total     int     `json:"total"`
	Facets    []Facet `json:"facets"`
	FromCache bool    `json:"-"`
}

// Document is the indexed form of one entity, produced by a Source.
type Document struct {
	Type       EntityType
	ID         string
	Label      string
	SearchText []string            // substring-match targets
	Facets     map[string][]string // facet name to values
	Date       time.Time           // zero when the entity is undated
}

// Source supplies the documents for one entity type.
type Source interface {
	Documents(ctx context.Context, t EntityType) ([]Document, error)
}

// CacheKey derives the canonical SHA-256 key for a query. Entity types
// and selection values are sorted so equivalent queries share a key.
func CacheKey(q Query) string {
	var b strings.Builder
	fmt.Fprintf(&b, "q=%s", strings.ToLower(strings.TrimSpace(q.Text)))

	typs := make([]string, 0, len(q.EntityTypes))
	for _, t := range effectiveTypes(q) {
		typs = append(typs, string(t))
	}
	sort.Strings(typs)
	fmt.Fprintf(&b, "|types=%s", strings.Join(typs, ","))

	sels := make([]string, 0, len(q.Selections))
	for _, s := range q.Selections {
		vals := append([]string(nil), s.Values...)
		sort.Strings(vals)
		op := s.Operator
		if op == "" {
			op = OperatorOR
		}
		sels = append(sels, fmt.Sprintf("%s:%s:%s", s.Facet, op, strings.Join(vals, ",")))
	}
	sort.Strings(sels)
	fmt.Fprintf(&b, "|sel=%s", strings.Join(sels, ";"))

	fmt.Fprintf(&b, "|page=%d,%d", q.Page, q.PageSize)
	if q.CustomStart != nil {
		fmt.Fprintf(&b, "|from=%d", q.CustomStart.Unix())
	}
	if q.CustomEnd != nil {
		fmt.Fprintf(&b, "|to=%d", q.CustomEnd.Unix())
	}

	sum := sha256.Sum256([]byte(b.String()))
	return "search:" + hex.EncodeToString(sum[:])
}

func effectiveTypes(q Query) []EntityType {
	if len(q.EntityTypes) == 0 {
		return AllEntityTypes
	}
	return q.EntityTypes
}

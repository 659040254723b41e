package search

import (
	"sort"
	"strings"
)

// hierarchySeparator splits "Parent > Child" facet values.
const hierarchySeparator = " > "

// aggregate computes facet counts over the filtered result set.
func (s *Service) aggregate(docs []Document) []Facet {
	flat := make(map[string]map[string]int)           // facet -> value -> count
	tree := make(map[string]map[string]map[string]int) // facet -> parent -> child -> count

	for _, d := range docs {
		for name, values := range d.Facets {
			for _, v := range values {
				if parent, child, ok := splitHierarchy(v); ok {
					if tree[name] == nil {
						tree[name] = make(map[string]map[string]int)
					}
					if tree[name][parent] == nil {
						tree[name][parent] = make(map[string]int)
					}
					tree[name][parent][child]++
					continue
				}
				if flat[name] == nil {
					flat[name] = make(map[string]int)
				}
				flat[name][v]++
			}
		}
	}

	var facets []Facet
	for name, counts := range flat {
		if _, alsoTree := tree[name]; alsoTree {
			continue // mixed facets render through the tree path below
		}
		facets = append(facets, Facet{Name: name, Values: s.termValues(counts)})
	}
	for name, parents := range tree {
		facets = append(facets, Facet{Name: name, Values: s.treeValues(parents, flat[name])})
	}

	s.orderFacets(facets)
	return facets
}

func splitHierarchy(v string) (parent, child string, ok bool) {
	i := strings.Index(v, hierarchySeparator)
	if i < 0 {
		return "", "", false
	}
	return v[:i], v[i+len(hierarchySeparator):], true
}

// termValues applies min-count dropping, count-desc/value-asc ordering,
// and truncation.
func (s *Service) termValues(counts map[string]int) []FacetValue {
	vals := make([]FacetValue, 0, len(counts))
	for v, c := range counts {
		if c < s.opts.MinFacetCount {
			continue
		}
		vals = append(vals, FacetValue{Value: v, Count: c})
	}
	sortAndTruncate(&vals, s.opts.MaxFacetValues)
	return vals
}

// treeValues builds a two-level facet. Parent counts roll up child
// counts plus any direct (non-hierarchical) values on the same facet.
func (s *Service) treeValues(parents map[string]map[string]int, direct map[string]int) []FacetValue {
	merged := make(map[string]map[string]int, len(parents))
	for p, children := range parents {
		merged[p] = children
	}
	for v, c := range direct {
		if merged[v] == nil {
			merged[v] = make(map[string]int)
		}
		merged[v][""] += c
	}

	vals := make([]FacetValue, 0, len(merged))
	for parent, children := range merged {
		total := 0
		var kids []FacetValue
		for child, c := range children {
			total += c
			if child == "" {
				continue
			}
			if c >= s.opts.MinFacetCount {
				kids = append(kids, FacetValue{Value: child, Count: c})
			}
		}
		if total < s.opts.MinFacetCount {
			continue
		}
		sortAndTruncate(&kids, s.opts.MaxFacetValues)
		vals = append(vals, FacetValue{Value: parent, Count: total, Children: kids})
	}
	sortAndTruncate(&vals, s.opts.MaxFacetValues)
	return vals
}

func sortAndTruncate(vals *[]FacetValue, maxValues int) {
	sort.Slice(*vals, func(i, j int) bool {
		if (*vals)[i].Count != (*vals)[j].Count {
			return (*vals)[i].Count > (*vals)[j].Count
		}
		return (*vals)[i].Value < (*vals)[j].Value
	})
	if maxValues > 0 && len(*vals) > maxValues {
		*vals = (*vals)[:maxValues]
	}
}

// orderFacets sorts facets by name, or by historical selection volume
// when dynamic ordering is enabled.
func (s *Service) orderFacets(facets []Facet) {
	if !s.opts.DynamicOrdering {
		sort.Slice(facets, func(i, j int) bool { return facets[i].Name < facets[j].Name })
		return
	}
	s.mu.Lock()
	popularity := make(map[string]int64, len(facets))
	for _, f := range facets {
		popularity[f.Name] = s.selections[f.Name]
	}
	s.mu.Unlock()

	sort.Slice(facets, func(i, j int) bool {
		pi, pj := popularity[facets[i].Name], popularity[facets[j].Name]
		if pi != pj {
			return pi > pj
		}
		return facets[i].Name < facets[j].Name
	})
}

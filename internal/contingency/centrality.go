package contingency

import (
	"sort"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/graph/network"
	"gonum.org/v1/gonum/graph/simple"
)

// Combined-score weights. The blend is fixed; tuning happens upstream
// by adjusting coverage requirements, not here.
const (
	weightBetweenness = 0.25
	weightPageRank    = 0.25
	weightReplacement = 0.15
	weightWorkload    = 0.10
	weightDegree      = 0.15
	weightEigenvector = 0.10
)

// centrality scores each faculty member's structural importance on a
// bipartite graph of faculty, blocks, and services. The graph is kept
// as two adjacency directions (the undirected and directed views) so
// betweenness and PageRank each get the shape they need.
func (a *Analyzer) centrality(tables *lookup) map[uuid.UUID]CentralityScore {
	if len(tables.faculty) == 0 || tables.totalAssign == 0 {
		return nil
	}

	// Stable integer node ids: faculty first, then blocks, then
	// services.
	facultyIDs := make([]uuid.UUID, 0, len(tables.faculty))
	for id := range tables.faculty {
		facultyIDs = append(facultyIDs, id)
	}
	sort.Slice(facultyIDs, func(i, j int) bool { return facultyIDs[i].String() < facultyIDs[j].String() })

	nodeOf := make(map[uuid.UUID]int64, len(facultyIDs))
	next := int64(0)
	for _, id := range facultyIDs {
		nodeOf[id] = next
		next++
	}
	blockNode := make(map[uuid.UUID]int64)

	und := simple.NewUndirectedGraph()
	dir := simple.NewDirectedGraph()
	for _, n := range nodeOf {
		und.AddNode(simple.Node(n))
		dir.AddNode(simple.Node(n))
	}

	for fid, assigns := range tables.byFaculty {
		fn := nodeOf[fid]
		for _, asg := range assigns {
			bn, ok := blockNode[asg.BlockID]
			if !ok {
				bn = next
				next++
				blockNode[asg.BlockID] = bn
				und.AddNode(simple.Node(bn))
				dir.AddNode(simple.Node(bn))
			}
			if und.Edge(fn, bn) == nil {
				und.SetEdge(simple.Edge{F: simple.Node(fn), T: simple.Node(bn)})
				dir.SetEdge(simple.Edge{F: simple.Node(fn), T: simple.Node(bn)})
				dir.SetEdge(simple.Edge{F: simple.Node(bn), T: simple.Node(fn)})
			}
		}
	}

	// Service nodes connect faculty by capability, so a member who
	// bridges services scores higher than a peer confined to one even
	// when their block loads match.
	services := make([]string, 0)
	seen := make(map[string]struct{})
	for _, fid := range facultyIDs {
		for _, sp := range tables.faculty[fid].Specialties {
			if _, ok := seen[sp]; !ok {
				seen[sp] = struct{}{}
				services = append(services, sp)
			}
		}
	}
	sort.Strings(services)
	serviceNode := make(map[string]int64, len(services))
	for _, sp := range services {
		serviceNode[sp] = next
		und.AddNode(simple.Node(next))
		dir.AddNode(simple.Node(next))
		next++
	}
	for _, fid := range facultyIDs {
		fn := nodeOf[fid]
		for _, sp := range tables.faculty[fid].Specialties {
			sn := serviceNode[sp]
			if und.Edge(fn, sn) == nil {
				und.SetEdge(simple.Edge{F: simple.Node(fn), T: simple.Node(sn)})
				dir.SetEdge(simple.Edge{F: simple.Node(fn), T: simple.Node(sn)})
				dir.SetEdge(simple.Edge{F: simple.Node(sn), T: simple.Node(fn)})
			}
		}
	}

	betweenness := network.Betweenness(und)
	pagerank := network.PageRank(dir, 0.85, 1e-6)
	// Authority on the symmetrized graph stands in for eigenvector
	// centrality.
	hits := network.HITS(dir, 1e-6)

	scores := make(map[uuid.UUID]CentralityScore, len(facultyIDs))
	var maxBetween, maxDegree, maxPR, maxEigen float64
	for _, fid := range facultyIDs {
		n := nodeOf[fid]
		s := CentralityScore{
			FacultyID:   fid,
			Betweenness: betweenness[n],
			PageRank:    pagerank[n],
			Degree:      float64(und.From(n).Len()),
		}
		if ha, ok := hits[n]; ok {
			s.Eigenvector = ha.Authority
		}
		s.ReplacementDifficulty = replacementDifficulty(tables, fid)
		if tables.totalAssign > 0 {
			s.WorkloadShare = float64(tables.counts[fid]) / float64(tables.totalAssign)
		}
		scores[fid] = s

		maxBetween = maxf(maxBetween, s.Betweenness)
		maxDegree = maxf(maxDegree, s.Degree)
		maxPR = maxf(maxPR, s.PageRank)
		maxEigen = maxf(maxEigen, s.Eigenvector)
	}

	for fid, s := range scores {
		s.Combined = weightBetweenness*norm(s.Betweenness, maxBetween) +
			weightPageRank*norm(s.PageRank, maxPR) +
			weightReplacement*s.ReplacementDifficulty +
			weightWorkload*s.WorkloadShare +
			weightDegree*norm(s.Degree, maxDegree) +
			weightEigenvector*norm(s.Eigenvector, maxEigen)
		scores[fid] = s
	}
	return scores
}

// replacementDifficulty is 1/(1+avg_alternatives): the fewer other
// faculty share this member's blocks, the harder they are to replace.
func replacementDifficulty(tables *lookup, fid uuid.UUID) float64 {
	assigns := tables.byFaculty[fid]
	if len(assigns) == 0 {
		return 0
	}
	totalAlternatives := 0
	for _, asg := range assigns {
		totalAlternatives += tables.facultyOnBlock(asg.BlockID, fid)
	}
	avg := float64(totalAlternatives) / float64(len(assigns))
	return 1.0 / (1.0 + avg)
}

func norm(v, max float64) float64 {
	if max <= 0 {
		return 0
	}
	return v / max
}

func maxf(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

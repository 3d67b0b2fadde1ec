package partition

import (
	"github.com/dd0wney/cluso-triangles/pkg/graph"
	"gonum.org/v1/gonum/stat"
)

// ReplicationMetrics describes how a set of edges spreads over TTP groups.
// It is the planning view used to pick a partition count before a run.
type ReplicationMetrics struct {
	PartitionCount    int
	Edges             int
	ReplicatedRecords int
	ReplicationFactor float64 // replicated records per edge
	PartitionSizes    []int   // distinct vertices per partition
	SamePartitionEdge int     // edges whose endpoints share a partition
	GroupCount        int     // all pair and triple groups
	NonEmptyGroups    int
	MeanGroupEdges    float64
	StdDevGroupEdges  float64
	MaxGroupEdges     int
	MaxGroup          GroupKey
	LoadBalance       float64 // mean / max, 1 = perfectly even
}

// ComputeReplicationMetrics replicates every edge under s and summarizes the
// resulting group loads. Edges must be canonical and duplicate free.
func ComputeReplicationMetrics(edges []graph.Edge, s Strategy) *ReplicationMetrics {
	p := s.GetPartitionCount()
	loads := make(map[GroupKey]int)
	seen := make(map[graph.Vertex]struct{})
	sizes := make([]int, p)

	m := &ReplicationMetrics{
		PartitionCount: p,
		Edges:          len(edges),
		PartitionSizes: sizes,
	}

	for _, e := range edges {
		for _, v := range [2]graph.Vertex{e.First, e.Second} {
			if _, ok := seen[v]; !ok {
				seen[v] = struct{}{}
				sizes[s.GetPartition(v)]++
			}
		}
		p1, p2 := s.GetPartition(e.First), s.GetPartition(e.Second)
		if p1 == p2 {
			m.SamePartitionEdge++
		}
		for _, g := range GroupsFor(p1, p2, p) {
			loads[g]++
			m.ReplicatedRecords++
		}
	}

	all := AllGroups(p)
	m.GroupCount = len(all)
	values := make([]float64, len(all))
	for i, g := range all {
		n := loads[g]
		values[i] = float64(n)
		if n > 0 {
			m.NonEmptyGroups++
		}
		if n > m.MaxGroupEdges {
			m.MaxGroupEdges = n
			m.MaxGroup = g
		}
	}

	if len(edges) > 0 {
		m.ReplicationFactor = float64(m.ReplicatedRecords) / float64(len(edges))
	}
	switch {
	case len(values) > 1:
		m.MeanGroupEdges, m.StdDevGroupEdges = stat.MeanStdDev(values, nil)
	case len(values) == 1:
		m.MeanGroupEdges = values[0]
	}
	if m.MaxGroupEdges > 0 {
		m.LoadBalance = m.MeanGroupEdges / float64(m.MaxGroupEdges)
	}

	return m
}

package algorithms

import (
	"cmp"
	"slices"
	"sort"

	"github.com/dd0wney/cluso-triangles/pkg/graph"
	"github.com/dd0wney/cluso-triangles/pkg/partition"
)

// adjacency is the per-group working graph. Vertices are relabelled by rank in
// the Compact-Forward order (degree descending, then id descending), so rank
// comparisons replace degree lookups during intersection. A value is built for
// one group and dropped afterwards; it is never shared.
type adjacency struct {
	vertices  []graph.Vertex // rank -> vertex
	neighbors [][]int32      // rank -> neighbor ranks, ascending
}

func newAdjacency(edges []graph.Edge) *adjacency {
	index := make(map[graph.Vertex]int32, len(edges))
	vertices := make([]graph.Vertex, 0, len(edges))
	lists := make([][]int32, 0, len(edges))

	local := func(v graph.Vertex) int32 {
		if id, ok := index[v]; ok {
			return id
		}
		id := int32(len(vertices))
		index[v] = id
		vertices = append(vertices, v)
		lists = append(lists, nil)
		return id
	}

	for _, e := range edges {
		if e.First == e.Second {
			continue
		}
		a, b := local(e.First), local(e.Second)
		lists[a] = append(lists[a], b)
		lists[b] = append(lists[b], a)
	}

	// Repeated edges would inflate degrees and double count
	for i := range lists {
		slices.Sort(lists[i])
		lists[i] = slices.Compact(lists[i])
	}

	order := make([]int32, len(vertices))
	for i := range order {
		order[i] = int32(i)
	}
	slices.SortFunc(order, func(x, y int32) int {
		if c := cmp.Compare(len(lists[y]), len(lists[x])); c != 0 {
			return c
		}
		return cmp.Compare(vertices[y], vertices[x])
	})

	rank := make([]int32, len(vertices))
	for r, id := range order {
		rank[id] = int32(r)
	}

	adj := &adjacency{
		vertices:  make([]graph.Vertex, len(vertices)),
		neighbors: make([][]int32, len(vertices)),
	}
	for id, r := range rank {
		adj.vertices[r] = vertices[id]
		ranked := lists[id]
		for i, n := range ranked {
			ranked[i] = rank[n]
		}
		slices.Sort(ranked)
		adj.neighbors[r] = ranked
	}

	return adj
}

// forEach runs Compact-Forward. Each triangle is reported exactly once as
// (r1, r2, r3) with rank r3 < r1 < r2.
func (adj *adjacency) forEach(fn func(r1, r2, r3 int32)) {
	for r1 := range adj.neighbors {
		n1 := adj.neighbors[r1]
		v1 := int32(r1)

		// neighbors ranked after v1 form the tail of the sorted list
		start := sort.Search(len(n1), func(i int) bool { return n1[i] > v1 })
		for _, v2 := range n1[start:] {
			n2 := adj.neighbors[v2]
			i, j := 0, 0
			for i < len(n1) && j < len(n2) && n1[i] < v1 && n2[j] < v1 {
				switch {
				case n1[i] < n2[j]:
					i++
				case n1[i] > n2[j]:
					j++
				default:
					fn(v1, v2, n1[i])
					i++
					j++
				}
			}
		}
	}
}

// CountGroupTriangles counts the triangles formed by edges and classifies each
// one under s. It is the local step of TTP: edges are everything replicated to
// a single group. Fewer than two edges cannot close a triangle.
func CountGroupTriangles(edges []graph.Edge, s partition.Strategy) TypeCounts {
	var counts TypeCounts
	if len(edges) < 2 {
		return counts
	}

	adj := newAdjacency(edges)
	parts := make([]int, len(adj.vertices))
	for r, v := range adj.vertices {
		parts[r] = s.GetPartition(v)
	}

	adj.forEach(func(r1, r2, r3 int32) {
		counts.Inc(classifyPartitions(parts[r1], parts[r2], parts[r3]))
	})
	return counts
}

// ForEachTriangle calls fn once for every triangle formed by edges
func ForEachTriangle(edges []graph.Edge, fn func(graph.Triangle)) {
	if len(edges) < 2 {
		return
	}
	adj := newAdjacency(edges)
	adj.forEach(func(r1, r2, r3 int32) {
		fn(graph.Triangle{adj.vertices[r1], adj.vertices[r2], adj.vertices[r3]})
	})
}

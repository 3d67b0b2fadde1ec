package algorithms

import (
	"math/rand"
	"sort"
	"testing"

	"github.com/dd0wney/cluso-triangles/pkg/graph"
	"github.com/dd0wney/cluso-triangles/pkg/partition"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func edgesOf(t *testing.T, pairs ...[2]uint64) []graph.Edge {
	t.Helper()
	edges := make([]graph.Edge, 0, len(pairs))
	for _, p := range pairs {
		e, ok := graph.NewEdge(graph.Vertex(p[0]), graph.Vertex(p[1]))
		if !ok {
			t.Fatalf("invalid edge %v", p)
		}
		edges = append(edges, e)
	}
	return edges
}

func modulo(t *testing.T, p int) partition.Strategy {
	t.Helper()
	s, err := partition.NewModuloPartition(p)
	if err != nil {
		t.Fatalf("NewModuloPartition(%d) failed: %v", p, err)
	}
	return s
}

// bruteForceTriangles checks every vertex triple
func bruteForceTriangles(edges []graph.Edge) int {
	adj := make(map[graph.Vertex]map[graph.Vertex]bool)
	for _, e := range edges {
		if adj[e.First] == nil {
			adj[e.First] = make(map[graph.Vertex]bool)
		}
		if adj[e.Second] == nil {
			adj[e.Second] = make(map[graph.Vertex]bool)
		}
		adj[e.First][e.Second] = true
		adj[e.Second][e.First] = true
	}
	vertices := make([]graph.Vertex, 0, len(adj))
	for v := range adj {
		vertices = append(vertices, v)
	}
	sort.Slice(vertices, func(i, j int) bool { return vertices[i] < vertices[j] })

	count := 0
	for i := 0; i < len(vertices); i++ {
		for j := i + 1; j < len(vertices); j++ {
			if !adj[vertices[i]][vertices[j]] {
				continue
			}
			for k := j + 1; k < len(vertices); k++ {
				if adj[vertices[i]][vertices[k]] && adj[vertices[j]][vertices[k]] {
					count++
				}
			}
		}
	}
	return count
}

func TestTriangleTypeString(t *testing.T) {
	for _, tt := range []TriangleType{Type1, TypeSpanning} {
		parsed, err := ParseTriangleType(tt.String())
		if err != nil || parsed != tt {
			t.Errorf("ParseTriangleType(%q) = %v, %v", tt.String(), parsed, err)
		}
	}
	if _, err := ParseTriangleType("A"); err == nil {
		t.Error("expected error for unknown tag")
	}
}

func TestClassify(t *testing.T) {
	s := modulo(t, 3)

	tests := []struct {
		name    string
		a, b, c graph.Vertex
		want    TriangleType
	}{
		{"all in partition 0", 0, 3, 6, Type1},
		{"all in partition 2", 2, 5, 8, Type1},
		{"two partitions", 0, 3, 1, TypeSpanning},
		{"three partitions", 0, 1, 2, TypeSpanning},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.a, tt.b, tt.c, s); got != tt.want {
				t.Errorf("Classify(%d, %d, %d) = %v, want %v", tt.a, tt.b, tt.c, got, tt.want)
			}
		})
	}
}

func TestCountGroupTriangles_Scenarios(t *testing.T) {
	tests := []struct {
		name  string
		p     int
		edges [][2]uint64
		want  TypeCounts
	}{
		{"empty", 2, nil, TypeCounts{}},
		{"single edge", 2, [][2]uint64{{1, 2}}, TypeCounts{}},
		{"spanning triangle", 2, [][2]uint64{{1, 2}, {2, 3}, {1, 3}}, TypeCounts{TypeSpanning: 1}},
		{"type1 triangle", 2, [][2]uint64{{0, 2}, {2, 4}, {0, 4}}, TypeCounts{Type1: 1}},
		{"path", 2, [][2]uint64{{1, 2}, {2, 3}, {3, 4}}, TypeCounts{}},
		{"star", 4, [][2]uint64{{0, 1}, {0, 2}, {0, 3}, {0, 4}}, TypeCounts{}},
		{"diamond", 5, [][2]uint64{{1, 2}, {2, 3}, {3, 1}, {2, 4}, {4, 1}}, TypeCounts{TypeSpanning: 2}},
		{"K4 mixed", 2, [][2]uint64{{0, 2}, {0, 4}, {0, 1}, {2, 4}, {2, 1}, {4, 1}}, TypeCounts{Type1: 1, TypeSpanning: 3}},
		{"duplicate edges", 2, [][2]uint64{{1, 2}, {2, 1}, {2, 3}, {1, 3}, {3, 1}}, TypeCounts{TypeSpanning: 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CountGroupTriangles(edgesOf(t, tt.edges...), modulo(t, tt.p))
			if got != tt.want {
				t.Errorf("CountGroupTriangles = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestCountGroupTriangles_CompleteGraph(t *testing.T) {
	for n := 3; n <= 12; n++ {
		var pairs [][2]uint64
		for i := 0; i < n; i++ {
			for j := i + 1; j < n; j++ {
				pairs = append(pairs, [2]uint64{uint64(i), uint64(j)})
			}
		}
		got := CountGroupTriangles(edgesOf(t, pairs...), modulo(t, 2)).Total()
		want := uint64(n * (n - 1) * (n - 2) / 6)
		if got != want {
			t.Errorf("K%d: got %d triangles, want %d", n, got, want)
		}
	}
}

func TestForEachTriangle(t *testing.T) {
	edges := edgesOf(t, [2]uint64{1, 2}, [2]uint64{2, 3}, [2]uint64{1, 3}, [2]uint64{3, 4})

	var found []graph.Triangle
	ForEachTriangle(edges, func(tri graph.Triangle) { found = append(found, tri) })

	if len(found) != 1 {
		t.Fatalf("expected 1 triangle, got %d", len(found))
	}
	vs := []graph.Vertex{found[0][0], found[0][1], found[0][2]}
	sort.Slice(vs, func(i, j int) bool { return vs[i] < vs[j] })
	if vs[0] != 1 || vs[1] != 2 || vs[2] != 3 {
		t.Errorf("unexpected triangle %v", found[0])
	}
}

func TestAdjacencyOrdering(t *testing.T) {
	// hub 7 has degree 3; 1 and 9 have degree 2; 5 has degree 1
	edges := edgesOf(t, [2]uint64{7, 1}, [2]uint64{7, 9}, [2]uint64{7, 5}, [2]uint64{1, 9})
	adj := newAdjacency(edges)

	want := []graph.Vertex{7, 9, 1, 5}
	for r, v := range want {
		if adj.vertices[r] != v {
			t.Errorf("rank %d = vertex %d, want %d", r, adj.vertices[r], v)
		}
	}
	for r, list := range adj.neighbors {
		if !sort.SliceIsSorted(list, func(i, j int) bool { return list[i] < list[j] }) {
			t.Errorf("neighbors of rank %d not sorted: %v", r, list)
		}
	}
}

func TestCountGroupTriangles_HighDegreeIDs(t *testing.T) {
	// ids near the top of the range must not collide in the ordering
	base := uint64(1) << 62
	var pairs [][2]uint64
	for i := uint64(0); i < 40; i++ {
		pairs = append(pairs, [2]uint64{base, base + 1 + i}, [2]uint64{base + 1 + i, base + 2 + i})
	}
	edges := edgesOf(t, pairs...)
	got := CountGroupTriangles(edges, modulo(t, 3)).Total()
	if want := uint64(bruteForceTriangles(dedupe(edges))); got != want {
		t.Errorf("got %d triangles, want %d", got, want)
	}
}

func dedupe(edges []graph.Edge) []graph.Edge {
	seen := make(map[graph.Edge]bool, len(edges))
	out := edges[:0:0]
	for _, e := range edges {
		if !seen[e] {
			seen[e] = true
			out = append(out, e)
		}
	}
	return out
}

func randomGraph(seed int64, vertices, edges int) []graph.Edge {
	rng := rand.New(rand.NewSource(seed))
	out := make([]graph.Edge, 0, edges)
	for len(out) < edges {
		e, ok := graph.NewEdge(graph.Vertex(rng.Intn(vertices)), graph.Vertex(rng.Intn(vertices)))
		if ok {
			out = append(out, e)
		}
	}
	return dedupe(out)
}

func TestCompactForwardMatchesBruteForce(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	properties := gopter.NewProperties(parameters)

	properties.Property("Compact-Forward agrees with brute force", prop.ForAll(
		func(seed int64, vertices, edges, p int) bool {
			g := randomGraph(seed, vertices, edges)
			got := CountGroupTriangles(g, modulo(t, p))
			return got.Total() == uint64(bruteForceTriangles(g))
		},
		gen.Int64(),
		gen.IntRange(3, 40),
		gen.IntRange(0, 200),
		gen.IntRange(2, 8),
	))

	properties.Property("classification agrees with Classify", prop.ForAll(
		func(seed int64, p int) bool {
			g := randomGraph(seed, 30, 150)
			s := modulo(t, p)
			var want TypeCounts
			ForEachTriangle(g, func(tri graph.Triangle) {
				want.Inc(Classify(tri[0], tri[1], tri[2], s))
			})
			return CountGroupTriangles(g, s) == want
		},
		gen.Int64(),
		gen.IntRange(2, 6),
	))

	properties.TestingRun(t)
}

func BenchmarkCountGroupTriangles(b *testing.B) {
	g := randomGraph(42, 2000, 20000)
	s, _ := partition.NewModuloPartition(8)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		CountGroupTriangles(g, s)
	}
}

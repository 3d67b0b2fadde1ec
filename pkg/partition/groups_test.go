package partition

import (
	"errors"
	"slices"
	"testing"

	"github.com/dd0wney/cluso-triangles/pkg/graph"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func keys(t *testing.T, specs ...string) []GroupKey {
	t.Helper()
	out := make([]GroupKey, 0, len(specs))
	for _, s := range specs {
		g, err := ParseGroupKey(s)
		require.NoError(t, err)
		out = append(out, g)
	}
	return out
}

func TestGroupsFor(t *testing.T) {
	tests := []struct {
		name   string
		p1, p2 int
		p      int
		want   []string
	}{
		{"same partition p=2", 0, 0, 2, []string{"0,1"}},
		{"same partition p=4", 2, 2, 4, []string{"0,2", "1,2", "2,3"}},
		{"cross partition p=2", 1, 0, 2, []string{"0,1"}},
		{"cross partition p=4", 3, 1, 4, []string{"1,3", "0,1,3", "1,2,3"}},
		{"cross partition p=5", 0, 4, 5, []string{"0,4", "0,1,4", "0,2,4", "0,3,4"}},
		{"out of range", 0, 5, 4, nil},
		{"single partition", 0, 0, 1, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := GroupsFor(tt.p1, tt.p2, tt.p)
			if tt.want == nil {
				assert.Empty(t, got)
				return
			}
			assert.Equal(t, keys(t, tt.want...), got)
		})
	}
}

func TestGroupsFor_Counts(t *testing.T) {
	for p := 2; p <= 12; p++ {
		for p1 := 0; p1 < p; p1++ {
			for p2 := 0; p2 < p; p2++ {
				groups := GroupsFor(p1, p2, p)
				want := p - 1
				if p1 != p2 {
					want = 1 + (p - 2)
				}
				if len(groups) != want {
					t.Fatalf("GroupsFor(%d, %d, %d) returned %d groups, want %d", p1, p2, p, len(groups), want)
				}
				if len(groups) > MaxReplication(p) {
					t.Fatalf("GroupsFor(%d, %d, %d) exceeds bound %d", p1, p2, p, MaxReplication(p))
				}
				for _, g := range groups {
					if !g.Contains(p1) || !g.Contains(p2) {
						t.Fatalf("group %v does not contain {%d,%d}", g, p1, p2)
					}
					if p1 == p2 && g.IsTriple() {
						t.Fatalf("same-partition edge sent to triple-group %v", g)
					}
				}
				if !slices.IsSortedFunc(groups, CompareGroupKeys) {
					t.Fatalf("GroupsFor(%d, %d, %d) not ordered: %v", p1, p2, p, groups)
				}
			}
		}
	}
}

func TestAllGroups(t *testing.T) {
	assert.Nil(t, AllGroups(1))
	assert.Equal(t, keys(t, "0,1"), AllGroups(2))
	assert.Equal(t, keys(t, "0,1", "0,2", "1,2", "0,1,2"), AllGroups(3))

	all := AllGroups(6)
	assert.Len(t, all, 15+20)
	assert.True(t, slices.IsSortedFunc(all, CompareGroupKeys))
}

func TestGroupKeyEncoding(t *testing.T) {
	for _, g := range AllGroups(5) {
		parsed, err := ParseGroupKey(g.String())
		require.NoError(t, err)
		assert.Equal(t, g, parsed)

		decoded, err := UnmarshalGroupKey(g.AppendBinary(nil))
		require.NoError(t, err)
		assert.Equal(t, g, decoded)
	}

	assert.Equal(t, "3,7", PairGroup(7, 3).String())
	assert.Equal(t, "1,4,9", TripleGroup(9, 1, 4).String())
	assert.Equal(t, "triple", TripleGroup(0, 1, 2).Shape())
	assert.Equal(t, []int{2, 5}, PairGroup(5, 2).Partitions())
}

func TestParseGroupKey_Invalid(t *testing.T) {
	for _, s := range []string{"", "1", "1,2,3,4", "a,b", "2,2", "1,-1", "0,3,3"} {
		_, err := ParseGroupKey(s)
		assert.Truef(t, errors.Is(err, ErrInvalidGroupKey), "ParseGroupKey(%q) = %v", s, err)
	}

	_, err := UnmarshalGroupKey([]byte{2, 0, 0})
	assert.ErrorIs(t, err, ErrInvalidGroupKey)
	_, err = UnmarshalGroupKey(nil)
	assert.ErrorIs(t, err, ErrInvalidGroupKey)
}

func TestCompareEncodedGroupKeysMatchesCompareGroupKeys(t *testing.T) {
	all := AllGroups(7)
	for _, a := range all {
		for _, b := range all {
			want := CompareGroupKeys(a, b)
			got := CompareEncodedGroupKeys(a.AppendBinary(nil), b.AppendBinary(nil))
			if want != got {
				t.Fatalf("compare(%v, %v): encoded %d, decoded %d", a, b, got, want)
			}
		}
	}
}

// groupsHoldingTriangle returns the groups that receive all three edges of the
// triangle (a, b, c).
func groupsHoldingTriangle(s Strategy, a, b, c graph.Vertex) []GroupKey {
	count := make(map[GroupKey]int)
	for _, pair := range [][2]graph.Vertex{{a, b}, {b, c}, {a, c}} {
		e, _ := graph.NewEdge(pair[0], pair[1])
		for _, g := range Replicate(e, s) {
			count[g]++
		}
	}
	var out []GroupKey
	for g, n := range count {
		if n == 3 {
			out = append(out, g)
		}
	}
	return out
}

// TestReplicationProperties checks the properties the TTP correction relies on
func TestReplicationProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 300
	properties := gopter.NewProperties(parameters)

	distinct := func(a, b, c uint64) bool { return a != b && b != c && a != c }

	properties.Property("every triangle is complete in at least one group", prop.ForAll(
		func(p int, a, b, c uint64) bool {
			if !distinct(a, b, c) {
				return true
			}
			s, _ := NewModuloPartition(p)
			return len(groupsHoldingTriangle(s, graph.Vertex(a), graph.Vertex(b), graph.Vertex(c))) >= 1
		},
		gen.IntRange(2, 16),
		gen.UInt64(),
		gen.UInt64(),
		gen.UInt64(),
	))

	properties.Property("complete groups: p-1 for Type1, exactly 1 otherwise", prop.ForAll(
		func(p int, a, b, c uint64) bool {
			if !distinct(a, b, c) {
				return true
			}
			s, _ := NewHashPartition(p)
			holders := groupsHoldingTriangle(s, graph.Vertex(a), graph.Vertex(b), graph.Vertex(c))
			pa, pb, pc := s.GetPartition(graph.Vertex(a)), s.GetPartition(graph.Vertex(b)), s.GetPartition(graph.Vertex(c))
			if pa == pb && pb == pc {
				return len(holders) == p-1
			}
			return len(holders) == 1
		},
		gen.IntRange(2, 16),
		gen.UInt64Range(0, 200),
		gen.UInt64Range(0, 200),
		gen.UInt64Range(0, 200),
	))

	properties.Property("replication stays within 2p-3", prop.ForAll(
		func(p int, u, v uint64) bool {
			e, ok := graph.NewEdge(graph.Vertex(u), graph.Vertex(v))
			if !ok {
				return true
			}
			s, _ := NewModuloPartition(p)
			return len(Replicate(e, s)) <= MaxReplication(p)
		},
		gen.IntRange(2, 64),
		gen.UInt64(),
		gen.UInt64(),
	))

	properties.TestingRun(t)
}

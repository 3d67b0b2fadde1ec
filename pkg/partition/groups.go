package partition

import (
	"bytes"
	"cmp"
	"encoding/binary"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/dd0wney/cluso-triangles/pkg/graph"
)

// ErrInvalidGroupKey is returned when a group key cannot be decoded
var ErrInvalidGroupKey = errors.New("invalid group key")

// GroupKey names a pair-group or a triple-group: a set of 2 or 3 distinct
// partition ids, stored in ascending order. The zero value is not a valid key.
type GroupKey struct {
	parts [3]int
	size  int
}

// PairGroup returns the group {a, b}. a and b must differ.
func PairGroup(a, b int) GroupKey {
	if a > b {
		a, b = b, a
	}
	return GroupKey{parts: [3]int{a, b, 0}, size: 2}
}

// TripleGroup returns the group {a, b, c}. All three must differ.
func TripleGroup(a, b, c int) GroupKey {
	if a > b {
		a, b = b, a
	}
	if b > c {
		b, c = c, b
	}
	if a > b {
		a, b = b, a
	}
	return GroupKey{parts: [3]int{a, b, c}, size: 3}
}

// Partitions returns the member partition ids in ascending order
func (g GroupKey) Partitions() []int {
	return append([]int(nil), g.parts[:g.size]...)
}

// Size is 2 for pair-groups and 3 for triple-groups
func (g GroupKey) Size() int { return g.size }

// IsTriple reports whether g is a triple-group
func (g GroupKey) IsTriple() bool { return g.size == 3 }

// Contains reports whether partition x is a member of g
func (g GroupKey) Contains(x int) bool {
	for _, p := range g.parts[:g.size] {
		if p == x {
			return true
		}
	}
	return false
}

// Shape returns "pair" or "triple"
func (g GroupKey) Shape() string {
	if g.IsTriple() {
		return "triple"
	}
	return "pair"
}

// String renders the key as "a,b" or "a,b,c"
func (g GroupKey) String() string {
	var sb strings.Builder
	for i, p := range g.parts[:g.size] {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(strconv.Itoa(p))
	}
	return sb.String()
}

// ParseGroupKey parses the String form of a key
func ParseGroupKey(s string) (GroupKey, error) {
	fields := strings.Split(s, ",")
	if len(fields) != 2 && len(fields) != 3 {
		return GroupKey{}, fmt.Errorf("%w: %q", ErrInvalidGroupKey, s)
	}
	ids := make([]int, len(fields))
	for i, f := range fields {
		id, err := strconv.Atoi(strings.TrimSpace(f))
		if err != nil || id < 0 {
			return GroupKey{}, fmt.Errorf("%w: %q", ErrInvalidGroupKey, s)
		}
		ids[i] = id
	}
	return newGroup(ids)
}

func newGroup(ids []int) (GroupKey, error) {
	var g GroupKey
	if len(ids) == 2 {
		g = PairGroup(ids[0], ids[1])
	} else {
		g = TripleGroup(ids[0], ids[1], ids[2])
	}
	for i := 1; i < g.size; i++ {
		if g.parts[i] == g.parts[i-1] {
			return GroupKey{}, fmt.Errorf("%w: repeated partition %d", ErrInvalidGroupKey, g.parts[i])
		}
	}
	return g, nil
}

// AppendBinary appends the shuffle encoding of g: one size byte followed by
// each partition id as a big-endian uint32.
func (g GroupKey) AppendBinary(dst []byte) []byte {
	dst = append(dst, byte(g.size))
	for _, p := range g.parts[:g.size] {
		dst = binary.BigEndian.AppendUint32(dst, uint32(p))
	}
	return dst
}

// UnmarshalGroupKey decodes a key produced by AppendBinary
func UnmarshalGroupKey(data []byte) (GroupKey, error) {
	if len(data) == 0 {
		return GroupKey{}, fmt.Errorf("%w: empty", ErrInvalidGroupKey)
	}
	size := int(data[0])
	if (size != 2 && size != 3) || len(data) != 1+4*size {
		return GroupKey{}, fmt.Errorf("%w: %d bytes", ErrInvalidGroupKey, len(data))
	}
	ids := make([]int, size)
	for i := range ids {
		ids[i] = int(binary.BigEndian.Uint32(data[1+4*i:]))
	}
	return newGroup(ids)
}

// CompareGroupKeys is the total order on group keys: pair-groups before
// triple-groups, then lexicographic on partition ids.
func CompareGroupKeys(a, b GroupKey) int {
	if c := cmp.Compare(a.size, b.size); c != 0 {
		return c
	}
	for i := 0; i < a.size; i++ {
		if c := cmp.Compare(a.parts[i], b.parts[i]); c != 0 {
			return c
		}
	}
	return 0
}

// CompareEncodedGroupKeys orders AppendBinary encodings the same way
// CompareGroupKeys orders keys. The size byte leads and ids are fixed-width
// big-endian, so a byte comparison is exact.
func CompareEncodedGroupKeys(a, b []byte) int {
	return bytes.Compare(a, b)
}

// GroupsFor lists every group an edge between partitions p1 and p2 must be
// replicated to:
//
//   - p1 == p2: the p-1 pair-groups containing p1
//   - p1 != p2: the pair-group {p1, p2} and the p-2 triple-groups containing both
//
// The result is ordered by CompareGroupKeys. Partitions outside [0, p) or
// p < 2 yield nil.
func GroupsFor(p1, p2, p int) []GroupKey {
	if p < 2 || p1 < 0 || p2 < 0 || p1 >= p || p2 >= p {
		return nil
	}

	if p1 == p2 {
		groups := make([]GroupKey, 0, p-1)
		for x := 0; x < p; x++ {
			if x != p1 {
				groups = append(groups, PairGroup(p1, x))
			}
		}
		return groups
	}

	groups := make([]GroupKey, 0, p-1)
	groups = append(groups, PairGroup(p1, p2))
	for x := 0; x < p; x++ {
		if x != p1 && x != p2 {
			groups = append(groups, TripleGroup(p1, p2, x))
		}
	}
	slices.SortFunc(groups, CompareGroupKeys)
	return groups
}

// Replicate returns the groups a canonical edge is sent to under strategy s
func Replicate(e graph.Edge, s Strategy) []GroupKey {
	return GroupsFor(s.GetPartition(e.First), s.GetPartition(e.Second), s.GetPartitionCount())
}

// MaxReplication is the largest number of groups a single edge can reach
func MaxReplication(p int) int {
	if p < 2 {
		return 0
	}
	return 2*p - 3
}

// AllGroups enumerates every pair-group and triple-group for p partitions
// in CompareGroupKeys order.
func AllGroups(p int) []GroupKey {
	if p < 2 {
		return nil
	}
	groups := make([]GroupKey, 0, p*(p-1)/2+p*(p-1)*(p-2)/6)
	for a := 0; a < p-1; a++ {
		for b := a + 1; b < p; b++ {
			groups = append(groups, PairGroup(a, b))
		}
	}
	for a := 0; a < p-2; a++ {
		for b := a + 1; b < p-1; b++ {
			for c := b + 1; c < p; c++ {
				groups = append(groups, TripleGroup(a, b, c))
			}
		}
	}
	return groups
}

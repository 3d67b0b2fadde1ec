package algorithms

import (
	"fmt"

	"github.com/dd0wney/cluso-triangles/pkg/graph"
	"github.com/dd0wney/cluso-triangles/pkg/partition"
)

// TriangleType classifies a triangle by how many distinct partitions its
// vertices occupy.
type TriangleType int

const (
	// Type1 triangles have all three vertices in one partition
	Type1 TriangleType = iota
	// TypeSpanning triangles touch two or three partitions
	TypeSpanning
)

// String returns the output tag of the type
func (t TriangleType) String() string {
	switch t {
	case Type1:
		return "Type1"
	case TypeSpanning:
		return "TypeSpanning"
	default:
		return "Unknown"
	}
}

// ParseTriangleType converts an output tag back to a TriangleType
func ParseTriangleType(s string) (TriangleType, error) {
	switch s {
	case "Type1":
		return Type1, nil
	case "TypeSpanning":
		return TypeSpanning, nil
	default:
		return 0, fmt.Errorf("unknown triangle type %q", s)
	}
}

// TypeCounts holds triangle counts split by type
type TypeCounts struct {
	Type1        uint64
	TypeSpanning uint64
}

// Inc counts one triangle of type t
func (c *TypeCounts) Inc(t TriangleType) {
	if t == Type1 {
		c.Type1++
	} else {
		c.TypeSpanning++
	}
}

// Add merges other into c
func (c *TypeCounts) Add(other TypeCounts) {
	c.Type1 += other.Type1
	c.TypeSpanning += other.TypeSpanning
}

// Get returns the count for type t
func (c TypeCounts) Get(t TriangleType) uint64 {
	if t == Type1 {
		return c.Type1
	}
	return c.TypeSpanning
}

// Total returns the sum over both types
func (c TypeCounts) Total() uint64 {
	return c.Type1 + c.TypeSpanning
}

// Classify returns Type1 when a, b and c share a partition under s
func Classify(a, b, c graph.Vertex, s partition.Strategy) TriangleType {
	return classifyPartitions(s.GetPartition(a), s.GetPartition(b), s.GetPartition(c))
}

func classifyPartitions(pa, pb, pc int) TriangleType {
	if pa == pb && pb == pc {
		return Type1
	}
	return TypeSpanning
}

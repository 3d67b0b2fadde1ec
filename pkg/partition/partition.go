package partition

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/fnv"

	"github.com/dd0wney/cluso-triangles/pkg/graph"
)

// DefaultPartitionCount suits graphs with hundreds of millions of edges
const DefaultPartitionCount = 64

// ErrInvalidPartitionCount is returned when fewer than two partitions are requested.
// With a single partition the Type1 correction divides by zero.
var ErrInvalidPartitionCount = errors.New("partition count must be at least 2")

// Strategy assigns every vertex to exactly one of GetPartitionCount() partitions.
// Implementations must be deterministic.
type Strategy interface {
	GetPartition(v graph.Vertex) int
	GetPartitionCount() int
}

// Strategy names accepted by NewStrategy
const (
	StrategyModulo = "modulo"
	StrategyHash   = "hash"
)

// NewStrategy builds a named strategy
func NewStrategy(name string, partitionCount int) (Strategy, error) {
	switch name {
	case "", StrategyModulo:
		return NewModuloPartition(partitionCount)
	case StrategyHash:
		return NewHashPartition(partitionCount)
	default:
		return nil, fmt.Errorf("unknown partition strategy %q", name)
	}
}

func checkCount(partitionCount int) error {
	if partitionCount < 2 {
		return fmt.Errorf("%w: got %d", ErrInvalidPartitionCount, partitionCount)
	}
	return nil
}

// ModuloPartition assigns vertex v to partition v mod p
type ModuloPartition struct {
	partitionCount int
}

// NewModuloPartition creates a modulo partitioning strategy
func NewModuloPartition(partitionCount int) (*ModuloPartition, error) {
	if err := checkCount(partitionCount); err != nil {
		return nil, err
	}
	return &ModuloPartition{partitionCount: partitionCount}, nil
}

// GetPartition returns which partition a vertex belongs to
func (mp *ModuloPartition) GetPartition(v graph.Vertex) int {
	return int(uint64(v) % uint64(mp.partitionCount))
}

// GetPartitionCount returns total number of partitions
func (mp *ModuloPartition) GetPartitionCount() int {
	return mp.partitionCount
}

// HashPartition partitions vertices by FNV-64a hash of the id. It spreads
// graphs whose ids share a common stride (e.g. all even) across every partition.
type HashPartition struct {
	partitionCount int
}

// NewHashPartition creates a hash-based partitioning strategy
func NewHashPartition(partitionCount int) (*HashPartition, error) {
	if err := checkCount(partitionCount); err != nil {
		return nil, err
	}
	return &HashPartition{partitionCount: partitionCount}, nil
}

// GetPartition returns which partition a vertex belongs to
func (hp *HashPartition) GetPartition(v graph.Vertex) int {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], uint64(v))
	h := fnv.New64a()
	h.Write(b[:])
	return int(h.Sum64() % uint64(hp.partitionCount))
}

// GetPartitionCount returns total number of partitions
func (hp *HashPartition) GetPartitionCount() int {
	return hp.partitionCount
}

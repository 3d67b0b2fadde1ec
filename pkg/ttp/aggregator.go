package ttp

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/dd0wney/cluso-triangles/pkg/algorithms"
	"github.com/dd0wney/cluso-triangles/pkg/partition"
)

// Output tags
const (
	TagType1         = "Type1"
	TagTypeSpanning  = "TypeSpanning"
	TagGroups        = "Groups"
	TagTriangleCount = "TriangleCount"
)

var (
	// ErrInexactCorrection means the raw Type1 count is not a multiple of p-1.
	// Every Type1 triangle is found in exactly p-1 pair groups, so a remainder
	// is a replication or counting bug.
	ErrInexactCorrection = errors.New("type1 correction is not exact")
	// ErrInvalidPartitionCount is returned for p < 2
	ErrInvalidPartitionCount = partition.ErrInvalidPartitionCount
	// ErrUnknownTag is returned for an aggregation record with an unknown tag
	ErrUnknownTag = errors.New("unknown count tag")
)

// Aggregator sums per-group counts. It is safe for concurrent use.
type Aggregator struct {
	rawType1 atomic.Uint64
	spanning atomic.Uint64
	groups   atomic.Uint64
}

// Add merges the counts of one group
func (a *Aggregator) Add(c algorithms.TypeCounts) {
	a.rawType1.Add(c.Type1)
	a.spanning.Add(c.TypeSpanning)
	a.groups.Add(1)
}

// AddTag merges one tagged aggregation record
func (a *Aggregator) AddTag(tag string, n uint64) error {
	switch tag {
	case TagType1:
		a.rawType1.Add(n)
	case TagTypeSpanning:
		a.spanning.Add(n)
	case TagGroups:
		a.groups.Add(n)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownTag, tag)
	}
	return nil
}

// Raw returns the uncorrected sums
func (a *Aggregator) Raw() algorithms.TypeCounts {
	return algorithms.TypeCounts{
		Type1:        a.rawType1.Load(),
		TypeSpanning: a.spanning.Load(),
	}
}

// Groups returns the number of groups merged
func (a *Aggregator) Groups() uint64 {
	return a.groups.Load()
}

// Finalize applies the Type1 correction for p partitions
func (a *Aggregator) Finalize(p int) (Result, error) {
	if p < 2 {
		return Result{}, fmt.Errorf("%w: got %d", ErrInvalidPartitionCount, p)
	}

	raw := a.Raw()
	div := uint64(p - 1)
	if rem := raw.Type1 % div; rem != 0 {
		return Result{}, fmt.Errorf("%w: raw count %d leaves remainder %d modulo %d",
			ErrInexactCorrection, raw.Type1, rem, div)
	}

	type1 := raw.Type1 / div
	return Result{
		RawType1:       raw.Type1,
		Type1:          type1,
		TypeSpanning:   raw.TypeSpanning,
		Total:          type1 + raw.TypeSpanning,
		PartitionCount: p,
	}, nil
}

// Result is the corrected outcome of a run
type Result struct {
	RawType1       uint64 `json:"raw_type1"`
	Type1          uint64 `json:"type1"`
	TypeSpanning   uint64 `json:"type_spanning"`
	Total          uint64 `json:"total"`
	PartitionCount int    `json:"partition_count"`
}

// OutputRecord is one tagged line of job output
type OutputRecord struct {
	Tag   string
	Count uint64
}

// Records returns the per-type records, or the single total when byType is false
func (r Result) Records(byType bool) []OutputRecord {
	if !byType {
		return []OutputRecord{{Tag: TagTriangleCount, Count: r.Total}}
	}
	return []OutputRecord{
		{Tag: TagType1, Count: r.Type1},
		{Tag: TagTypeSpanning, Count: r.TypeSpanning},
	}
}

// Package transport distributes group counting to remote workers over
// mangos push/pull sockets.
package transport

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/golang/snappy"
	"github.com/google/uuid"

	"github.com/dd0wney/cluso-triangles/pkg/algorithms"
	"github.com/dd0wney/cluso-triangles/pkg/graph"
	"github.com/dd0wney/cluso-triangles/pkg/partition"
)

// Message types
const (
	msgTask   byte = 'T'
	msgResult byte = 'R'
)

// ErrInvalidMessage is returned for frames that cannot be decoded
var ErrInvalidMessage = errors.New("invalid message")

// GroupTask asks a worker to count the triangles of one group
type GroupTask struct {
	ID         uuid.UUID
	Group      partition.GroupKey
	Strategy   string
	Partitions int
	Edges      []graph.Edge
}

// GroupResult is a worker's answer to a GroupTask
type GroupResult struct {
	ID     uuid.UUID
	Group  partition.GroupKey
	Counts algorithms.TypeCounts
	Err    string
}

// EncodeTask frames and compresses a task
func EncodeTask(t *GroupTask) []byte {
	buf := make([]byte, 0, 64+len(t.Edges)*graph.EdgeSize)
	buf = append(buf, msgTask)
	buf = append(buf, t.ID[:]...)
	buf = t.Group.AppendBinary(buf)
	buf = binary.AppendUvarint(buf, uint64(len(t.Strategy)))
	buf = append(buf, t.Strategy...)
	buf = binary.AppendUvarint(buf, uint64(t.Partitions))
	buf = binary.AppendUvarint(buf, uint64(len(t.Edges)))
	for _, e := range t.Edges {
		buf = e.AppendBinary(buf)
	}
	return snappy.Encode(nil, buf)
}

// DecodeTask reverses EncodeTask
func DecodeTask(frame []byte) (*GroupTask, error) {
	d, err := newDecoder(frame, msgTask)
	if err != nil {
		return nil, err
	}

	t := &GroupTask{ID: d.id(), Group: d.group()}
	t.Strategy = string(d.bytes())
	t.Partitions = int(d.uvarint())
	n := d.uvarint()
	if d.err == nil && n > uint64(len(d.buf))/graph.EdgeSize {
		d.fail("edge count %d exceeds frame", n)
	}
	if d.err == nil {
		t.Edges = make([]graph.Edge, n)
		for i := range t.Edges {
			t.Edges[i] = d.edge()
		}
	}
	if err := d.finish(); err != nil {
		return nil, err
	}
	return t, nil
}

// EncodeResult frames and compresses a result
func EncodeResult(r *GroupResult) []byte {
	buf := make([]byte, 0, 64+len(r.Err))
	buf = append(buf, msgResult)
	buf = append(buf, r.ID[:]...)
	buf = r.Group.AppendBinary(buf)
	buf = binary.AppendUvarint(buf, r.Counts.Type1)
	buf = binary.AppendUvarint(buf, r.Counts.TypeSpanning)
	buf = binary.AppendUvarint(buf, uint64(len(r.Err)))
	buf = append(buf, r.Err...)
	return snappy.Encode(nil, buf)
}

// DecodeResult reverses EncodeResult
func DecodeResult(frame []byte) (*GroupResult, error) {
	d, err := newDecoder(frame, msgResult)
	if err != nil {
		return nil, err
	}

	r := &GroupResult{ID: d.id(), Group: d.group()}
	r.Counts.Type1 = d.uvarint()
	r.Counts.TypeSpanning = d.uvarint()
	r.Err = string(d.bytes())
	if err := d.finish(); err != nil {
		return nil, err
	}
	return r, nil
}

// decoder reads fields in order and keeps the first error
type decoder struct {
	buf []byte
	err error
}

func newDecoder(frame []byte, want byte) (*decoder, error) {
	buf, err := snappy.Decode(nil, frame)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	if len(buf) == 0 || buf[0] != want {
		return nil, fmt.Errorf("%w: unexpected message type", ErrInvalidMessage)
	}
	return &decoder{buf: buf[1:]}, nil
}

func (d *decoder) fail(format string, args ...any) {
	if d.err == nil {
		d.err = fmt.Errorf("%w: %s", ErrInvalidMessage, fmt.Sprintf(format, args...))
	}
}

func (d *decoder) take(n int) []byte {
	if d.err != nil {
		return nil
	}
	if n < 0 || n > len(d.buf) {
		d.fail("truncated frame")
		return nil
	}
	out := d.buf[:n]
	d.buf = d.buf[n:]
	return out
}

func (d *decoder) id() uuid.UUID {
	var id uuid.UUID
	copy(id[:], d.take(len(id)))
	return id
}

func (d *decoder) group() partition.GroupKey {
	if d.err != nil || len(d.buf) == 0 {
		d.fail("missing group key")
		return partition.GroupKey{}
	}
	raw := d.take(1 + 4*int(d.buf[0]))
	if d.err != nil {
		return partition.GroupKey{}
	}
	g, err := partition.UnmarshalGroupKey(raw)
	if err != nil {
		d.fail("%v", err)
	}
	return g
}

func (d *decoder) uvarint() uint64 {
	if d.err != nil {
		return 0
	}
	v, n := binary.Uvarint(d.buf)
	if n <= 0 {
		d.fail("invalid varint")
		return 0
	}
	d.buf = d.buf[n:]
	return v
}

func (d *decoder) bytes() []byte {
	n := d.uvarint()
	if n > uint64(len(d.buf)) {
		d.fail("truncated frame")
		return nil
	}
	return d.take(int(n))
}

func (d *decoder) edge() graph.Edge {
	raw := d.take(graph.EdgeSize)
	if d.err != nil {
		return graph.Edge{}
	}
	e, err := graph.UnmarshalEdge(raw)
	if err != nil {
		d.fail("%v", err)
	}
	return e
}

func (d *decoder) finish() error {
	if d.err == nil && len(d.buf) != 0 {
		d.fail("%d trailing bytes", len(d.buf))
	}
	return d.err
}

package graph

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Vertex identifies a graph vertex. Ids use the full unsigned 64-bit range.
type Vertex uint64

// EdgeSize is the length of an encoded Edge
const EdgeSize = 16

// ErrInvalidEdge is returned when decoding bytes that are not a canonical edge
var ErrInvalidEdge = errors.New("invalid edge encoding")

// Edge is an undirected edge in canonical form: First < Second.
type Edge struct {
	First  Vertex
	Second Vertex
}

// NewEdge canonicalizes the pair (u, v). Self loops are not edges of a simple
// graph and are rejected.
func NewEdge(u, v Vertex) (Edge, bool) {
	switch {
	case u < v:
		return Edge{First: u, Second: v}, true
	case v < u:
		return Edge{First: v, Second: u}, true
	default:
		return Edge{}, false
	}
}

// String returns the edge in edge-list form
func (e Edge) String() string {
	return fmt.Sprintf("%d %d", e.First, e.Second)
}

// AppendBinary appends the 16-byte big-endian encoding of the edge. Byte order
// matches numeric order, so encoded edges sort like (First, Second) tuples.
func (e Edge) AppendBinary(dst []byte) []byte {
	dst = binary.BigEndian.AppendUint64(dst, uint64(e.First))
	return binary.BigEndian.AppendUint64(dst, uint64(e.Second))
}

// MarshalBinary implements encoding.BinaryMarshaler
func (e Edge) MarshalBinary() ([]byte, error) {
	return e.AppendBinary(make([]byte, 0, EdgeSize)), nil
}

// UnmarshalEdge decodes an edge produced by AppendBinary.
func UnmarshalEdge(data []byte) (Edge, error) {
	if len(data) != EdgeSize {
		return Edge{}, fmt.Errorf("%w: %d bytes", ErrInvalidEdge, len(data))
	}
	e := Edge{
		First:  Vertex(binary.BigEndian.Uint64(data[:8])),
		Second: Vertex(binary.BigEndian.Uint64(data[8:])),
	}
	if e.First >= e.Second {
		return Edge{}, fmt.Errorf("%w: %d >= %d", ErrInvalidEdge, e.First, e.Second)
	}
	return e, nil
}

// Triangle holds the three vertices of a triangle in discovery order
type Triangle [3]Vertex

package graph

import (
	"bytes"
	"strconv"
)

// ParseEdge parses one edge-list record: two whitespace-separated vertex ids,
// any further fields ignored. Records that cannot form an edge (too few
// fields, non-numeric ids, self loops, comment lines) report false and are
// meant to be skipped, not treated as errors.
func ParseEdge(line []byte) (Edge, bool) {
	line = bytes.TrimSpace(line)
	if len(line) == 0 || line[0] == '#' || line[0] == '%' {
		return Edge{}, false
	}

	fields := bytes.Fields(line)
	if len(fields) < 2 {
		return Edge{}, false
	}

	u, err := strconv.ParseUint(string(fields[0]), 10, 64)
	if err != nil {
		return Edge{}, false
	}
	v, err := strconv.ParseUint(string(fields[1]), 10, 64)
	if err != nil {
		return Edge{}, false
	}

	return NewEdge(Vertex(u), Vertex(v))
}

package segment

import "errors"

// Magic opens every segment file
const Magic = "TTPSEG1\n"

var (
	// ErrCorruptSegment is returned when a record fails its checksum or framing
	ErrCorruptSegment = errors.New("corrupt segment")
	// ErrWriterClosed is returned when appending to a closed writer
	ErrWriterClosed = errors.New("segment writer closed")
)

// Record is one key/value pair of a segment
type Record struct {
	Key   []byte
	Value []byte
}

// Stats holds compression statistics of a written segment
type Stats struct {
	Records           uint64
	BytesUncompressed uint64
	BytesCompressed   uint64
	CompressionRatio  float64 // compressed / uncompressed
}

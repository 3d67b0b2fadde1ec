package segment

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"os"
	"path/filepath"

	"github.com/golang/snappy"
)

// Writer appends records to a segment file.
// Format per record: [BlockLen:4][snappy(block)][Checksum:4], where block is
// [KeyLen:uvarint][Key][ValueLen:uvarint][Value] and the checksum covers the
// compressed bytes.
type Writer struct {
	file   *os.File
	writer *bufio.Writer
	path   string
	block  []byte
	comp   []byte
	closed bool

	stats Stats
}

// Create creates (or truncates) a segment at path, creating parent directories
func Create(path string) (*Writer, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create segment directory: %w", err)
	}

	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create segment: %w", err)
	}

	w := &Writer{
		file:   file,
		writer: bufio.NewWriterSize(file, 256*1024),
		path:   path,
	}
	if _, err := w.writer.WriteString(Magic); err != nil {
		file.Close()
		return nil, err
	}
	return w, nil
}

// Path returns the file path of the segment
func (w *Writer) Path() string {
	return w.path
}

// Append writes one record
func (w *Writer) Append(key, value []byte) error {
	if w.closed {
		return ErrWriterClosed
	}

	w.block = w.block[:0]
	w.block = binary.AppendUvarint(w.block, uint64(len(key)))
	w.block = append(w.block, key...)
	w.block = binary.AppendUvarint(w.block, uint64(len(value)))
	w.block = append(w.block, value...)

	w.comp = snappy.Encode(w.comp[:cap(w.comp)], w.block)

	var header [4]byte
	binary.BigEndian.PutUint32(header[:], uint32(len(w.comp)))
	if _, err := w.writer.Write(header[:]); err != nil {
		return err
	}
	if _, err := w.writer.Write(w.comp); err != nil {
		return err
	}
	var sum [4]byte
	binary.BigEndian.PutUint32(sum[:], crc32.ChecksumIEEE(w.comp))
	if _, err := w.writer.Write(sum[:]); err != nil {
		return err
	}

	w.stats.Records++
	w.stats.BytesUncompressed += uint64(len(w.block))
	w.stats.BytesCompressed += uint64(len(w.comp))
	return nil
}

// Close flushes, syncs and closes the segment file
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true

	if err := w.writer.Flush(); err != nil {
		w.file.Close()
		return fmt.Errorf("failed to flush segment: %w", err)
	}
	if err := w.file.Sync(); err != nil {
		w.file.Close()
		return fmt.Errorf("failed to sync segment: %w", err)
	}
	return w.file.Close()
}

// Stats returns compression statistics for the records written so far
func (w *Writer) Stats() Stats {
	s := w.stats
	if s.BytesUncompressed > 0 {
		s.CompressionRatio = float64(s.BytesCompressed) / float64(s.BytesUncompressed)
	}
	return s
}

package segment

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"

	"github.com/golang/snappy"
	"golang.org/x/exp/mmap"
)

// Reader iterates the records of a segment through a read-only memory map
type Reader struct {
	path string
	mmap *mmap.ReaderAt
	off  int64
	buf  []byte
}

// Open maps the segment at path and validates its header
func Open(path string) (*Reader, error) {
	m, err := mmap.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to map segment: %w", err)
	}

	header := make([]byte, len(Magic))
	if _, err := m.ReadAt(header, 0); err != nil || string(header) != Magic {
		_ = m.Close()
		return nil, fmt.Errorf("%w: %s: bad header", ErrCorruptSegment, path)
	}

	return &Reader{path: path, mmap: m, off: int64(len(Magic))}, nil
}

// Next returns the next record, or io.EOF after the last one. The returned
// slices stay valid after Close.
func (r *Reader) Next() (Record, error) {
	size := int64(r.mmap.Len())
	if r.off == size {
		return Record{}, io.EOF
	}
	if size-r.off < 8 {
		return Record{}, r.corrupt("truncated record header")
	}

	var header [4]byte
	if _, err := r.mmap.ReadAt(header[:], r.off); err != nil {
		return Record{}, err
	}
	blockLen := int64(binary.BigEndian.Uint32(header[:]))
	if size-r.off-8 < blockLen {
		return Record{}, r.corrupt("truncated record")
	}

	if int64(cap(r.buf)) < blockLen+4 {
		r.buf = make([]byte, blockLen+4)
	}
	data := r.buf[:blockLen+4]
	if _, err := r.mmap.ReadAt(data, r.off+4); err != nil {
		return Record{}, err
	}
	compressed, sum := data[:blockLen], binary.BigEndian.Uint32(data[blockLen:])
	if crc32.ChecksumIEEE(compressed) != sum {
		return Record{}, r.corrupt("checksum mismatch")
	}

	block, err := snappy.Decode(nil, compressed)
	if err != nil {
		return Record{}, r.corrupt(err.Error())
	}

	rec, err := decodeBlock(block)
	if err != nil {
		return Record{}, r.corrupt(err.Error())
	}

	r.off += blockLen + 8
	return rec, nil
}

func (r *Reader) corrupt(reason string) error {
	return fmt.Errorf("%w: %s at offset %d: %s", ErrCorruptSegment, r.path, r.off, reason)
}

func decodeBlock(block []byte) (Record, error) {
	keyLen, n := binary.Uvarint(block)
	if n <= 0 || uint64(len(block)-n) < keyLen {
		return Record{}, errors.New("bad key length")
	}
	block = block[n:]
	key := block[:keyLen:keyLen]
	block = block[keyLen:]

	valLen, n := binary.Uvarint(block)
	if n <= 0 || uint64(len(block)-n) != valLen {
		return Record{}, errors.New("bad value length")
	}
	return Record{Key: key, Value: block[n:]}, nil
}

// Close unmaps the segment
func (r *Reader) Close() error {
	return r.mmap.Close()
}

// ReadAll calls fn for every record of the segment at path
func ReadAll(path string, fn func(Record) error) error {
	r, err := Open(path)
	if err != nil {
		return err
	}
	defer r.Close()

	for {
		rec, err := r.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if err := fn(rec); err != nil {
			return err
		}
	}
}

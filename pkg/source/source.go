// Package source opens edge list inputs from local files, stdin or S3.
package source

import (
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// ErrInvalidURI is returned for an input URI that cannot be resolved
var ErrInvalidURI = errors.New("invalid input uri")

// Source yields a raw edge list stream
type Source interface {
	Name() string
	Open(ctx context.Context) (io.ReadCloser, error)
}

// FileSource reads a local file. "-" reads standard input.
type FileSource struct {
	Path string
}

// Name implements Source
func (f FileSource) Name() string {
	if f.Path == "-" {
		return "stdin"
	}
	return f.Path
}

// Open implements Source
func (f FileSource) Open(ctx context.Context) (io.ReadCloser, error) {
	if f.Path == "-" {
		return io.NopCloser(os.Stdin), nil
	}
	file, err := os.Open(f.Path)
	if err != nil {
		return nil, err
	}
	return maybeGzip(f.Path, file)
}

// FromURI resolves "s3://bucket/key", "-" or a local path
func FromURI(ctx context.Context, uri string, opts S3Options) (Source, error) {
	switch {
	case uri == "":
		return nil, fmt.Errorf("%w: empty", ErrInvalidURI)
	case strings.HasPrefix(uri, "s3://"):
		bucket, key, err := ParseS3URI(uri)
		if err != nil {
			return nil, err
		}
		client, err := NewS3Client(ctx, opts)
		if err != nil {
			return nil, err
		}
		return NewS3Source(client, bucket, key), nil
	case strings.Contains(uri, "://"):
		return nil, fmt.Errorf("%w: unsupported scheme in %q", ErrInvalidURI, uri)
	default:
		return FileSource{Path: uri}, nil
	}
}

// gzipReadCloser closes both the decompressor and the underlying stream
type gzipReadCloser struct {
	*gzip.Reader
	inner io.Closer
}

func (g *gzipReadCloser) Close() error {
	err := g.Reader.Close()
	if cerr := g.inner.Close(); err == nil {
		err = cerr
	}
	return err
}

// maybeGzip transparently decompresses inputs named *.gz
func maybeGzip(name string, rc io.ReadCloser) (io.ReadCloser, error) {
	if !strings.HasSuffix(name, ".gz") {
		return rc, nil
	}
	zr, err := gzip.NewReader(rc)
	if err != nil {
		rc.Close()
		return nil, fmt.Errorf("open gzip %s: %w", name, err)
	}
	return &gzipReadCloser{Reader: zr, inner: rc}, nil
}

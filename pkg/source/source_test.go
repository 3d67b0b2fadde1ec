package source

import (
	"bytes"
	"compress/gzip"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const edges = "1 2\n2 3\n1 3\n"

func readAll(t *testing.T, src Source) string {
	t.Helper()
	rc, err := src.Open(context.Background())
	require.NoError(t, err)
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	return string(data)
}

func gzipped(t *testing.T, s string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, err := zw.Write([]byte(s))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestFileSource(t *testing.T) {
	dir := t.TempDir()
	plain := filepath.Join(dir, "graph.txt")
	require.NoError(t, os.WriteFile(plain, []byte(edges), 0o644))
	compressed := filepath.Join(dir, "graph.txt.gz")
	require.NoError(t, os.WriteFile(compressed, gzipped(t, edges), 0o644))

	assert.Equal(t, edges, readAll(t, FileSource{Path: plain}))
	assert.Equal(t, edges, readAll(t, FileSource{Path: compressed}))
	assert.Equal(t, plain, FileSource{Path: plain}.Name())
	assert.Equal(t, "stdin", FileSource{Path: "-"}.Name())

	_, err := FileSource{Path: filepath.Join(dir, "missing.txt")}.Open(context.Background())
	assert.ErrorIs(t, err, os.ErrNotExist)

	bad := filepath.Join(dir, "bad.gz")
	require.NoError(t, os.WriteFile(bad, []byte("not gzip"), 0o644))
	_, err = FileSource{Path: bad}.Open(context.Background())
	assert.Error(t, err)
}

func TestParseS3URI(t *testing.T) {
	testCases := []struct {
		uri, bucket, key string
		ok               bool
	}{
		{"s3://graphs/web-google.txt", "graphs", "web-google.txt", true},
		{"s3://graphs/snap/2024/orkut.txt.gz", "graphs", "snap/2024/orkut.txt.gz", true},
		{"s3://graphs", "", "", false},
		{"s3://graphs/", "", "", false},
		{"s3:///key", "", "", false},
		{"gs://graphs/key", "", "", false},
	}

	for _, tc := range testCases {
		bucket, key, err := ParseS3URI(tc.uri)
		if !tc.ok {
			assert.ErrorIs(t, err, ErrInvalidURI, tc.uri)
			continue
		}
		require.NoError(t, err, tc.uri)
		assert.Equal(t, tc.bucket, bucket)
		assert.Equal(t, tc.key, key)
	}
}

func TestFromURI(t *testing.T) {
	src, err := FromURI(context.Background(), "/data/graph.txt", S3Options{})
	require.NoError(t, err)
	assert.Equal(t, FileSource{Path: "/data/graph.txt"}, src)

	_, err = FromURI(context.Background(), "", S3Options{})
	assert.ErrorIs(t, err, ErrInvalidURI)

	_, err = FromURI(context.Background(), "hdfs://namenode/graph", S3Options{})
	assert.ErrorIs(t, err, ErrInvalidURI)
}

// fakeS3 serves path-style GetObject requests from a map
func fakeS3(t *testing.T, objects map[string][]byte) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		body, ok := objects[r.URL.Path]
		if !ok {
			w.Header().Set("Content-Type", "application/xml")
			w.WriteHeader(http.StatusNotFound)
			io.WriteString(w, `<?xml version="1.0" encoding="UTF-8"?><Error><Code>NoSuchKey</Code><Message>The specified key does not exist.</Message></Error>`)
			return
		}
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Write(body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestS3Source(t *testing.T) {
	srv := fakeS3(t, map[string][]byte{
		"/graphs/small.txt":    []byte(edges),
		"/graphs/small.txt.gz": gzipped(t, edges),
	})
	opts := S3Options{
		Endpoint:     srv.URL,
		Region:       "us-east-1",
		AccessKey:    "test",
		SecretKey:    "test",
		UsePathStyle: true,
	}

	src, err := FromURI(context.Background(), "s3://graphs/small.txt", opts)
	require.NoError(t, err)
	assert.Equal(t, "s3://graphs/small.txt", src.Name())
	assert.Equal(t, edges, readAll(t, src))

	gz, err := FromURI(context.Background(), "s3://graphs/small.txt.gz", opts)
	require.NoError(t, err)
	assert.Equal(t, edges, readAll(t, gz))

	missing, err := FromURI(context.Background(), "s3://graphs/missing.txt", opts)
	require.NoError(t, err)
	_, err = missing.Open(context.Background())
	assert.Error(t, err)
}

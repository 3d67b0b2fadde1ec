package engine

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/dd0wney/cluso-triangles/pkg/logging"
	"github.com/dd0wney/cluso-triangles/pkg/segment"
)

// InputStage is the name under which ingested splits are stored
const InputStage = "input"

// Dataset is a named, persisted collection of segment files
type Dataset struct {
	Name  string
	Paths []string
}

// Records calls fn for every record of every segment, in path order
func (d Dataset) Records(ctx context.Context, fn func(segment.Record) error) error {
	for _, path := range d.Paths {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := segment.ReadAll(path, fn); err != nil {
			return fmt.Errorf("dataset %s: %w", d.Name, err)
		}
	}
	return nil
}

// Count returns the number of records in the dataset
func (d Dataset) Count(ctx context.Context) (uint64, error) {
	var n uint64
	err := d.Records(ctx, func(segment.Record) error {
		n++
		return nil
	})
	return n, err
}

// Ingest splits a line-oriented stream into input segments. Lines are
// distributed round robin; each becomes the value of a record without key.
func (e *Engine) Ingest(ctx context.Context, r io.Reader, splits int) (Dataset, error) {
	if splits <= 0 {
		splits = e.opts.Workers
	}

	dir := filepath.Join(e.jobDir, InputStage)
	ds := Dataset{Name: InputStage, Paths: make([]string, splits)}
	writers := make([]*segment.Writer, splits)
	closeAll := func() {
		for _, w := range writers {
			if w != nil {
				w.Close()
			}
		}
	}

	for i := range writers {
		ds.Paths[i] = filepath.Join(dir, fmt.Sprintf("split-%05d.seg", i))
		w, err := segment.Create(ds.Paths[i])
		if err != nil {
			closeAll()
			return Dataset{}, err
		}
		writers[i] = w
	}

	br := bufio.NewReaderSize(r, 1<<20)
	var lines uint64
	for {
		line, err := br.ReadBytes('\n')
		if len(line) > 0 {
			line = bytes.TrimRight(line, "\r\n")
			if appendErr := writers[lines%uint64(splits)].Append(nil, line); appendErr != nil {
				closeAll()
				return Dataset{}, appendErr
			}
			lines++
			if lines%65536 == 0 {
				if ctxErr := ctx.Err(); ctxErr != nil {
					closeAll()
					return Dataset{}, ctxErr
				}
			}
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			closeAll()
			return Dataset{}, fmt.Errorf("read input: %w", err)
		}
	}

	var stats StageStats
	for _, w := range writers {
		if err := w.Close(); err != nil {
			closeAll()
			return Dataset{}, err
		}
		st := w.Stats()
		stats.OutputRecords += st.Records
		stats.ShuffleRaw += st.BytesUncompressed
		stats.ShuffleCompressed += st.BytesCompressed
	}

	e.mu.Lock()
	e.stats[InputStage] = stats
	e.mu.Unlock()

	e.logger.Info("input ingested",
		logging.Uint64("lines", lines),
		logging.Int("splits", splits))
	return ds, nil
}

// OpenDataset returns the persisted output of a stage of this job
func (e *Engine) OpenDataset(name string) (Dataset, error) {
	pattern := "part-*.seg"
	if name == InputStage {
		pattern = "split-*.seg"
	}
	paths, err := filepath.Glob(filepath.Join(e.jobDir, name, pattern))
	if err != nil {
		return Dataset{}, err
	}
	if len(paths) == 0 {
		return Dataset{}, fmt.Errorf("dataset %s: %w", name, os.ErrNotExist)
	}
	return Dataset{Name: name, Paths: paths}, nil
}

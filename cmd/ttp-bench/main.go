package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"math/rand"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/dd0wney/cluso-triangles/pkg/engine"
	"github.com/dd0wney/cluso-triangles/pkg/logging"
	"github.com/dd0wney/cluso-triangles/pkg/source"
	"github.com/dd0wney/cluso-triangles/pkg/ttp"
)

func main() {
	nodes := flag.Int("nodes", 1000, "Number of vertices")
	edges := flag.Int("edges", 10000, "Number of edge records to generate")
	seed := flag.Int64("seed", 1, "Random seed")
	partitionList := flag.String("partitions", "2,4,8,16", "Comma separated partition counts to compare")
	strategy := flag.String("strategy", "modulo", "Vertex partition function: modulo or hash")
	workers := flag.Int("workers", 0, "Concurrent tasks (0 = NumCPU)")
	flag.Parse()

	counts, err := parsePartitions(*partitionList)
	if err != nil {
		log.Fatalf("Invalid -partitions: %v", err)
	}
	if *nodes < 2 {
		log.Fatalf("Need at least 2 nodes, got %d", *nodes)
	}

	fmt.Printf("TTP Triangle Counting Benchmark\n")
	fmt.Printf("===============================\n\n")
	fmt.Printf("Configuration:\n")
	fmt.Printf("  Nodes: %d\n", *nodes)
	fmt.Printf("  Edges: %d\n", *edges)
	fmt.Printf("  Strategy: %s\n\n", *strategy)

	dir, err := os.MkdirTemp("", "ttp-bench-")
	if err != nil {
		log.Fatalf("Failed to create work dir: %v", err)
	}
	defer os.RemoveAll(dir)

	input := filepath.Join(dir, "graph.txt")
	start := time.Now()
	if err := writeRandomGraph(input, *nodes, *edges, *seed); err != nil {
		log.Fatalf("Failed to generate graph: %v", err)
	}
	fmt.Printf("Generated %d edge records in %v\n\n", *edges, time.Since(start))

	ctx := context.Background()
	var want uint64
	fmt.Printf("%6s %12s %12s %12s %10s %12s\n", "p", "triangles", "replicated", "factor", "groups", "duration")
	for i, p := range counts {
		rep, err := run(ctx, dir, input, p, *strategy, *workers)
		if err != nil {
			log.Fatalf("Run with p=%d failed: %v", p, err)
		}
		if i == 0 {
			want = rep.Result.Total
		} else if rep.Result.Total != want {
			log.Fatalf("p=%d counted %d triangles, p=%d counted %d", p, rep.Result.Total, counts[0], want)
		}

		factor := 0.0
		if rep.CanonicalEdges > 0 {
			factor = float64(rep.ReplicatedRecords) / float64(rep.CanonicalEdges)
		}
		fmt.Printf("%6d %12d %12d %12.2f %10d %12v\n",
			p, rep.Result.Total, rep.ReplicatedRecords, factor, rep.Groups, rep.Duration.Round(time.Millisecond))
	}

	fmt.Printf("\nAll partition counts agree on %d triangles\n", want)
}

func run(ctx context.Context, dir, input string, p int, strategy string, workers int) (*ttp.Report, error) {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	eng, err := engine.New(engine.Options{
		WorkDir:     filepath.Join(dir, "jobs"),
		Workers:     workers,
		MaxAttempts: 1,
		Logger:      logging.NewNopLogger(),
	})
	if err != nil {
		return nil, err
	}
	defer eng.Cleanup()

	pipeline, err := ttp.NewPipeline(eng, ttp.Options{
		Partitions: p,
		Strategy:   strategy,
		Reducers:   workers,
		Splits:     workers,
	})
	if err != nil {
		return nil, err
	}
	return pipeline.Run(ctx, source.FileSource{Path: input})
}

// writeRandomGraph writes an edge list with uniformly random endpoints.
// Duplicates and self loops are left in, the pipeline drops them.
func writeRandomGraph(path string, nodes, edges int, seed int64) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(f)
	if err := generate(w, nodes, edges, rand.New(rand.NewSource(seed))); err != nil {
		f.Close()
		return err
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func generate(w io.Writer, nodes, edges int, rng *rand.Rand) error {
	for i := 0; i < edges; i++ {
		if _, err := fmt.Fprintf(w, "%d\t%d\n", rng.Intn(nodes), rng.Intn(nodes)); err != nil {
			return err
		}
	}
	return nil
}

func parsePartitions(s string) ([]int, error) {
	var counts []int
	for _, field := range strings.Split(s, ",") {
		p, err := strconv.Atoi(strings.TrimSpace(field))
		if err != nil {
			return nil, err
		}
		if p < 2 {
			return nil, fmt.Errorf("partition count %d is below 2", p)
		}
		counts = append(counts, p)
	}
	if len(counts) == 0 {
		return nil, fmt.Errorf("no partition counts")
	}
	return counts, nil
}

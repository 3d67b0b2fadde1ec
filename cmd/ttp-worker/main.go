package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/dd0wney/cluso-triangles/pkg/config"
	"github.com/dd0wney/cluso-triangles/pkg/health"
	"github.com/dd0wney/cluso-triangles/pkg/logging"
	"github.com/dd0wney/cluso-triangles/pkg/metrics"
	"github.com/dd0wney/cluso-triangles/pkg/transport"
)

func main() {
	tasksAddr := flag.String("tasks", "tcp://127.0.0.1:7100", "Coordinator task address (PUSH)")
	resultsAddr := flag.String("results", "tcp://127.0.0.1:7101", "Coordinator result address (PULL)")
	workers := flag.Int("workers", runtime.NumCPU(), "Groups counted concurrently")
	metricsAddr := flag.String("metrics-addr", "", "Serve /metrics and /health on this address")
	idle := flag.Duration("idle", 10*time.Minute, "Report degraded health after this long without a task")
	flag.Parse()

	if err := config.LoadDotEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	logger := logging.NewFromEnv(logging.InfoLevel, logging.FormatJSON).With(logging.Component("ttp-worker"))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := metrics.NewRegistry()
	worker, err := transport.NewWorker(transport.NewMangosSocketFactory(), transport.WorkerConfig{
		TasksAddr:   *tasksAddr,
		ResultsAddr: *resultsAddr,
		Workers:     *workers,
	}, logger, reg)
	if err != nil {
		logger.Error("failed to create worker", logging.Error(err))
		os.Exit(1)
	}

	if *metricsAddr != "" {
		hc := health.NewHealthChecker()
		hc.RegisterCheck("tasks", health.ActivityCheck(worker.LastTask, worker.Processed, *idle))
		go func() {
			if err := reg.Serve(ctx, *metricsAddr, hc.HTTPHandler()); err != nil {
				logger.Error("metrics server failed", logging.Error(err))
			}
		}()
	}

	if err := worker.Run(ctx); err != nil && ctx.Err() == nil {
		logger.Error("worker stopped", logging.Error(err))
		os.Exit(1)
	}

	fmt.Fprintf(os.Stderr, "worker shut down after %d groups\n", worker.Processed())
}

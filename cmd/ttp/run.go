package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/dd0wney/cluso-triangles/pkg/config"
	"github.com/dd0wney/cluso-triangles/pkg/engine"
	"github.com/dd0wney/cluso-triangles/pkg/health"
	"github.com/dd0wney/cluso-triangles/pkg/logging"
	"github.com/dd0wney/cluso-triangles/pkg/metrics"
	"github.com/dd0wney/cluso-triangles/pkg/report"
	"github.com/dd0wney/cluso-triangles/pkg/source"
	"github.com/dd0wney/cluso-triangles/pkg/transport"
	"github.com/dd0wney/cluso-triangles/pkg/ttp"
)

// jobFlags are shared by run and plan. Flags override the config file
// only when given on the command line.
type jobFlags struct {
	configPath string
	input      string
	partitions int
	strategy   string
	workers    int
	reducers   int
	workDir    string
	keep       bool
}

func (f *jobFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&f.configPath, "config", "", "YAML config file")
	fs.StringVar(&f.input, "input", "", "Edge list: path, - or s3://bucket/key")
	fs.IntVar(&f.partitions, "partitions", 0, "Number of vertex partitions p")
	fs.StringVar(&f.strategy, "strategy", "", "Vertex partition function: modulo or hash")
	fs.IntVar(&f.workers, "workers", 0, "Concurrent map and reduce tasks")
	fs.IntVar(&f.reducers, "reducers", 0, "Reduce partitions per stage")
	fs.StringVar(&f.workDir, "work-dir", "", "Directory for intermediate segments")
	fs.BoolVar(&f.keep, "keep-intermediate", false, "Keep intermediate segments after the job")
}

// load reads .env and the config file, then applies the flags that were set
func (f *jobFlags) load(fs *flag.FlagSet) (*config.Config, error) {
	if err := config.LoadDotEnv(); err != nil {
		return nil, err
	}
	cfg, err := config.Load(f.configPath)
	if err != nil {
		return nil, err
	}

	fs.Visit(func(fl *flag.Flag) {
		switch fl.Name {
		case "input":
			cfg.Input.URI = f.input
		case "partitions":
			cfg.Partition.Count = f.partitions
		case "strategy":
			cfg.Partition.Strategy = f.strategy
		case "workers":
			cfg.Engine.Workers = f.workers
		case "reducers":
			cfg.Engine.Reducers = f.reducers
		case "work-dir":
			cfg.Engine.WorkDir = f.workDir
		case "keep-intermediate":
			cfg.Engine.KeepIntermediate = f.keep
		}
	})

	if cfg.Input.URI == "" {
		return nil, fmt.Errorf("no input given, use -input or input.uri")
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) logging.Logger {
	format, err := logging.ParseFormat(cfg.LogFormat)
	if err != nil {
		format = logging.FormatJSON
	}
	return logging.NewFromEnv(logging.ParseLevel(cfg.LogLevel), format).With(logging.Component("ttp"))
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func s3Options(cfg *config.Config) source.S3Options {
	return source.S3Options{
		Endpoint:     cfg.Input.S3.Endpoint,
		Region:       cfg.Input.S3.Region,
		AccessKey:    cfg.Input.S3.AccessKey,
		SecretKey:    cfg.Input.S3.SecretKey,
		UsePathStyle: cfg.Input.S3.UsePathStyle,
	}
}

func newEngine(cfg *config.Config, logger logging.Logger, reg *metrics.Registry) (*engine.Engine, error) {
	return engine.New(engine.Options{
		WorkDir:          cfg.Engine.WorkDir,
		Workers:          cfg.Engine.Workers,
		MaxAttempts:      cfg.Engine.MaxAttempts,
		KeepIntermediate: cfg.Engine.KeepIntermediate,
		Logger:           logger,
		Metrics:          reg,
	})
}

func runCommand(args []string) error {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	var jf jobFlags
	jf.register(fs)
	algorithm := fs.String("algorithm", ttp.AlgorithmTTP, "Counting algorithm: ttp or wedge")
	byType := fs.Bool("by-type", false, "Write Type1 and TypeSpanning instead of the total")
	remote := fs.Bool("remote", false, "Count groups on ttp-worker processes")
	metricsAddr := fs.String("metrics-addr", "", "Serve Prometheus metrics on this address during the run")
	history := fs.Bool("history", false, "Store the run in PostgreSQL (TTP_DATABASE_URL)")
	explain := fs.Bool("explain", false, "Log every triangle found at debug level")
	summary := fs.Bool("summary", true, "Print a styled summary to stderr")
	fs.Parse(args)

	cfg, err := jf.load(fs)
	if err != nil {
		return err
	}
	fs.Visit(func(fl *flag.Flag) {
		switch fl.Name {
		case "by-type":
			cfg.Output.ByType = *byType
		case "remote":
			cfg.Remote.Enabled = *remote
		case "metrics-addr":
			cfg.Metrics.Addr = *metricsAddr
		case "history":
			cfg.History.Enabled = *history
		}
	})
	if err := cfg.Validate(); err != nil {
		return err
	}
	switch *algorithm {
	case ttp.AlgorithmTTP:
	case ttp.AlgorithmWedge:
		if cfg.Output.ByType || cfg.Remote.Enabled {
			return fmt.Errorf("-algorithm wedge supports neither -by-type nor -remote")
		}
	default:
		return fmt.Errorf("unknown algorithm %q, use %s or %s", *algorithm, ttp.AlgorithmTTP, ttp.AlgorithmWedge)
	}

	ctx, stop := signalContext()
	defer stop()

	logger := newLogger(cfg)
	reg := metrics.NewRegistry()

	src, err := source.FromURI(ctx, cfg.Input.URI, s3Options(cfg))
	if err != nil {
		return err
	}

	eng, err := newEngine(cfg, logger, reg)
	if err != nil {
		return err
	}
	defer func() {
		if err := eng.Cleanup(); err != nil {
			logger.Warn("cleanup failed", logging.Path(eng.Dir()), logging.Error(err))
		}
	}()

	// History is opened up front so an unreachable database shows before the count starts
	var store *report.PGStore
	if cfg.History.Enabled {
		store, err = report.NewPGStore(ctx, cfg.History.DatabaseURL)
		if err != nil {
			logger.Error("run history disabled", logging.Error(err))
		} else {
			defer store.Close()
		}
	}

	if cfg.Metrics.Addr != "" {
		hc := health.NewHealthChecker()
		hc.RegisterCheck("work_dir", health.WorkDirCheck(eng.Dir()))
		if store != nil {
			hc.RegisterCheck("history", health.DatabaseCheck(store.Ping))
		}
		go func() {
			if err := reg.Serve(ctx, cfg.Metrics.Addr, hc.HTTPHandler()); err != nil {
				logger.Error("metrics server failed", logging.Error(err))
			}
		}()
	}

	opts := ttp.Options{
		Partitions: cfg.Partition.Count,
		Strategy:   cfg.Partition.Strategy,
		Reducers:   cfg.Engine.Reducers,
		Splits:     cfg.Engine.Splits,
		Explain:    *explain,
		Logger:     logger,
		Metrics:    reg,
	}

	if cfg.Remote.Enabled {
		rc, err := transport.NewRemoteCounter(transport.NewMangosSocketFactory(), transport.RemoteConfig{
			TasksAddr:   cfg.Remote.TasksAddr,
			ResultsAddr: cfg.Remote.ResultsAddr,
			Strategy:    cfg.Partition.Strategy,
			Partitions:  cfg.Partition.Count,
			TaskTimeout: cfg.Remote.TaskTimeout,
		}, logger, reg)
		if err != nil {
			return err
		}
		if err := rc.Start(); err != nil {
			return err
		}
		defer rc.Close()
		opts.Counter = rc
	}

	pipeline, err := ttp.NewPipeline(eng, opts)
	if err != nil {
		return err
	}

	var rep *ttp.Report
	if *algorithm == ttp.AlgorithmWedge {
		rep, err = pipeline.RunWedges(ctx, src)
	} else {
		rep, err = pipeline.Run(ctx, src)
	}
	if err != nil {
		return err
	}

	if err := report.WriteRecords(os.Stdout, rep.Result, cfg.Output.ByType); err != nil {
		return err
	}
	if *summary {
		if err := report.Render(os.Stderr, rep); err != nil {
			return err
		}
	}

	if store != nil {
		// The count is already written; a history failure does not fail the job
		if err := store.SaveRun(ctx, report.NewRun(rep)); err != nil {
			logger.Error("failed to store run", logging.JobID(rep.JobID), logging.Error(err))
		}
	}
	return nil
}

func planCommand(args []string) error {
	fs := flag.NewFlagSet("plan", flag.ExitOnError)
	var jf jobFlags
	jf.register(fs)
	fs.Parse(args)

	cfg, err := jf.load(fs)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, stop := signalContext()
	defer stop()

	logger := newLogger(cfg)
	src, err := source.FromURI(ctx, cfg.Input.URI, s3Options(cfg))
	if err != nil {
		return err
	}
	eng, err := newEngine(cfg, logger, nil)
	if err != nil {
		return err
	}
	defer eng.Cleanup()

	pipeline, err := ttp.NewPipeline(eng, ttp.Options{
		Partitions: cfg.Partition.Count,
		Strategy:   cfg.Partition.Strategy,
		Reducers:   cfg.Engine.Reducers,
		Splits:     cfg.Engine.Splits,
		Logger:     logger,
	})
	if err != nil {
		return err
	}

	m, err := pipeline.Plan(ctx, src)
	if err != nil {
		return err
	}
	return report.RenderPlan(os.Stdout, m)
}

func historyCommand(args []string) error {
	fs := flag.NewFlagSet("history", flag.ExitOnError)
	configPath := fs.String("config", "", "YAML config file")
	limit := fs.Int("limit", 20, "Number of runs to list")
	jobID := fs.String("job", "", "Show a single run as JSON")
	fs.Parse(args)

	if err := config.LoadDotEnv(); err != nil {
		return err
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	if cfg.History.DatabaseURL == "" {
		return fmt.Errorf("no database configured, set %s or history.database_url", config.EnvDatabaseURL)
	}

	ctx, stop := signalContext()
	defer stop()

	store, err := report.NewPGStore(ctx, cfg.History.DatabaseURL)
	if err != nil {
		return err
	}
	defer store.Close()

	if *jobID != "" {
		run, err := store.GetRun(ctx, *jobID)
		if err != nil {
			return err
		}
		return writeJSON(os.Stdout, run)
	}

	runs, err := store.ListRuns(ctx, *limit)
	if err != nil {
		return err
	}
	return report.RenderHistory(os.Stdout, runs)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

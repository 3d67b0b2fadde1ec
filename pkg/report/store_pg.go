package report

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dd0wney/cluso-triangles/pkg/ttp"
)

// ErrRunNotFound is returned when no run has the requested job id
var ErrRunNotFound = errors.New("run not found")

// Run is one finished job as stored in the history table
type Run struct {
	JobID             string
	Input             string
	Algorithm         string
	Partitions        int
	Strategy          string
	RawType1          uint64
	Type1             uint64
	TypeSpanning      uint64
	Total             uint64
	CanonicalEdges    uint64
	ReplicatedRecords uint64
	Groups            uint64
	Duration          time.Duration
	Stages            []ttp.StageTiming
	CreatedAt         time.Time
}

// NewRun converts a report into a history row
func NewRun(r *ttp.Report) *Run {
	return &Run{
		JobID:             r.JobID,
		Input:             r.Input,
		Algorithm:         r.Algorithm,
		Partitions:        r.Result.PartitionCount,
		Strategy:          r.Strategy,
		RawType1:          r.Result.RawType1,
		Type1:             r.Result.Type1,
		TypeSpanning:      r.Result.TypeSpanning,
		Total:             r.Result.Total,
		CanonicalEdges:    r.CanonicalEdges,
		ReplicatedRecords: r.ReplicatedRecords,
		Groups:            r.Groups,
		Duration:          r.Duration,
		Stages:            r.Stages,
		CreatedAt:         r.StartedAt,
	}
}

// PGStore handles run history persistence using PostgreSQL
type PGStore struct {
	pool *pgxpool.Pool
}

// NewPGStore creates a new PostgreSQL-backed history store
func NewPGStore(ctx context.Context, databaseURL string) (*PGStore, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}

	// A batch job writes one row per run
	config.MaxConns = 4
	config.MinConns = 0
	config.MaxConnLifetime = 5 * time.Minute
	config.MaxConnIdleTime = 1 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	// Verify connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("database unreachable: %w", err)
	}

	s := &PGStore{pool: pool}

	// Create tables if they don't exist
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migration failed: %w", err)
	}

	return s, nil
}

// migrate creates the history table
func (s *PGStore) migrate(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS ttp_runs (
		job_id TEXT PRIMARY KEY,
		input TEXT NOT NULL,
		algorithm TEXT NOT NULL DEFAULT 'ttp',
		partitions INTEGER NOT NULL,
		strategy TEXT NOT NULL,
		raw_type1 BIGINT NOT NULL,
		type1 BIGINT NOT NULL,
		type_spanning BIGINT NOT NULL,
		total BIGINT NOT NULL,
		canonical_edges BIGINT NOT NULL,
		replicated_records BIGINT NOT NULL,
		group_count BIGINT NOT NULL,
		duration_ms BIGINT NOT NULL,
		stages JSONB,
		created_at TIMESTAMPTZ NOT NULL
	);

	ALTER TABLE ttp_runs ADD COLUMN IF NOT EXISTS algorithm TEXT NOT NULL DEFAULT 'ttp';

	CREATE INDEX IF NOT EXISTS idx_ttp_runs_created_at ON ttp_runs(created_at);
	CREATE INDEX IF NOT EXISTS idx_ttp_runs_input ON ttp_runs(input);
	`

	_, err := s.pool.Exec(ctx, schema)
	return err
}

// Ping checks database connectivity
func (s *PGStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close closes the database connection pool
func (s *PGStore) Close() error {
	s.pool.Close()
	return nil
}

// SaveRun stores a run. Saving the same job id again replaces the row.
func (s *PGStore) SaveRun(ctx context.Context, run *Run) error {
	stagesJSON, err := json.Marshal(run.Stages)
	if err != nil {
		return fmt.Errorf("failed to marshal stages: %w", err)
	}

	query := `
		INSERT INTO ttp_runs (job_id, input, algorithm, partitions, strategy, raw_type1, type1, type_spanning, total,
			canonical_edges, replicated_records, group_count, duration_ms, stages, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (job_id) DO UPDATE SET
			input = EXCLUDED.input,
			algorithm = EXCLUDED.algorithm,
			partitions = EXCLUDED.partitions,
			strategy = EXCLUDED.strategy,
			raw_type1 = EXCLUDED.raw_type1,
			type1 = EXCLUDED.type1,
			type_spanning = EXCLUDED.type_spanning,
			total = EXCLUDED.total,
			canonical_edges = EXCLUDED.canonical_edges,
			replicated_records = EXCLUDED.replicated_records,
			group_count = EXCLUDED.group_count,
			duration_ms = EXCLUDED.duration_ms,
			stages = EXCLUDED.stages,
			created_at = EXCLUDED.created_at
	`

	_, err = s.pool.Exec(ctx, query,
		run.JobID,
		run.Input,
		run.Algorithm,
		run.Partitions,
		run.Strategy,
		int64(run.RawType1),
		int64(run.Type1),
		int64(run.TypeSpanning),
		int64(run.Total),
		int64(run.CanonicalEdges),
		int64(run.ReplicatedRecords),
		int64(run.Groups),
		run.Duration.Milliseconds(),
		stagesJSON,
		run.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}

	return nil
}

const selectRun = `
	SELECT job_id, input, algorithm, partitions, strategy, raw_type1, type1, type_spanning, total,
		canonical_edges, replicated_records, group_count, duration_ms, stages, created_at
	FROM ttp_runs
`

// GetRun retrieves a run by job id
func (s *PGStore) GetRun(ctx context.Context, jobID string) (*Run, error) {
	run, err := scanRun(s.pool.QueryRow(ctx, selectRun+" WHERE job_id = $1", jobID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, jobID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return run, nil
}

// ListRuns returns the most recent runs, newest first
func (s *PGStore) ListRuns(ctx context.Context, limit int) ([]*Run, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.pool.Query(ctx, selectRun+" ORDER BY created_at DESC LIMIT $1", limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, run)
	}

	return runs, rows.Err()
}

func scanRun(row pgx.Row) (*Run, error) {
	run := &Run{}
	var rawType1, type1, spanning, total, canonical, replicated, groups, durationMS int64
	var stagesJSON []byte

	err := row.Scan(
		&run.JobID,
		&run.Input,
		&run.Algorithm,
		&run.Partitions,
		&run.Strategy,
		&rawType1,
		&type1,
		&spanning,
		&total,
		&canonical,
		&replicated,
		&groups,
		&durationMS,
		&stagesJSON,
		&run.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	run.RawType1 = uint64(rawType1)
	run.Type1 = uint64(type1)
	run.TypeSpanning = uint64(spanning)
	run.Total = uint64(total)
	run.CanonicalEdges = uint64(canonical)
	run.ReplicatedRecords = uint64(replicated)
	run.Groups = uint64(groups)
	run.Duration = time.Duration(durationMS) * time.Millisecond

	if len(stagesJSON) > 0 {
		if err := json.Unmarshal(stagesJSON, &run.Stages); err != nil {
			return nil, fmt.Errorf("failed to unmarshal stages: %w", err)
		}
	}

	return run, nil
}

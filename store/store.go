// Package store keeps a sqlite log of depth runs and per-frame statistics.
package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/xsongx/scanner/kernel"
)

var ErrUnknownRun = errors.New("store: unknown run")

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store wraps the run log database.
type Store struct {
	*sql.DB
}

// Run describes a single invocation of the depth pipeline.
type Run struct {
	ID        string
	Backend   string
	Cameras   int
	Width     int
	Height    int
	Instances int

	StartedAt  time.Time
	FinishedAt time.Time
	Frames     int
	Elapsed    time.Duration
}

// Frame is the logged outcome of one frame set.
type Frame struct {
	Index    int
	Instance string
	Stats    kernel.FrameStats
}

// Open creates or opens the run log at path. Use ":memory:" for a
// throw-away database.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// A single connection keeps in-memory databases alive across calls.
	db.SetMaxOpenConns(1)

	s := &Store{db}
	if err = s.migrateUp(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) newMigrate() (*migrate.Migrate, error) {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("store: could not load migrations: %w", err)
	}
	driver, err := sqlite.WithInstance(s.DB, &sqlite.Config{})
	if err != nil {
		return nil, fmt.Errorf("store: could not create migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return nil, fmt.Errorf("store: could not create migrator: %w", err)
	}
	return m, nil
}

// The migrator is not closed as that would close the shared connection.
func (s *Store) migrateUp() error {
	m, err := s.newMigrate()
	if err != nil {
		return err
	}
	if err = m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("store: migration failed: %w", err)
	}
	return nil
}

// SchemaVersion returns the applied migration version.
func (s *Store) SchemaVersion() (uint, error) {
	m, err := s.newMigrate()
	if err != nil {
		return 0, err
	}
	version, dirty, err := m.Version()
	if err != nil {
		return 0, err
	}
	if dirty {
		return version, fmt.Errorf("store: schema version %d is dirty", version)
	}
	return version, nil
}

// StartRun records a new run and assigns it an id.
func (s *Store) StartRun(ctx context.Context, run Run) (string, error) {
	run.ID = uuid.NewString()
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now()
	}

	_, err := s.ExecContext(ctx, `
		INSERT INTO runs (id, backend, cameras, width, height, instances, started_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, run.ID, run.Backend, run.Cameras, run.Width, run.Height, run.Instances, run.StartedAt.UnixNano())
	if err != nil {
		return "", fmt.Errorf("store: could not start run: %w", err)
	}
	return run.ID, nil
}

// RecordFrames stores the statistics of a processed batch in a single
// transaction.
func (s *Store) RecordFrames(ctx context.Context, runID string, frames []Frame) error {
	tx, err := s.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO frames (run_id, frame_index, instance, preprocess_ns, upload_ns, solve_ns, extract_ns, mean_depth, mean_cost, valid_pixels)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, f := range frames {
		_, err = stmt.ExecContext(ctx,
			runID, f.Index, f.Instance,
			f.Stats.Preprocess.Nanoseconds(), f.Stats.Upload.Nanoseconds(),
			f.Stats.Solve.Nanoseconds(), f.Stats.Extract.Nanoseconds(),
			f.Stats.MeanDepth, f.Stats.MeanCost, f.Stats.ValidPixels,
		)
		if err != nil {
			return fmt.Errorf("store: could not record frame %d: %w", f.Index, err)
		}
	}
	return tx.Commit()
}

// FinishRun stamps the run with its completion time and frame count.
func (s *Store) FinishRun(ctx context.Context, runID string, elapsed time.Duration) error {
	res, err := s.ExecContext(ctx, `
		UPDATE runs
		SET
			finished_at = ?,
			elapsed_ns = ?,
			frames = (SELECT COUNT(*) FROM frames WHERE run_id = ?)
		WHERE id = ?
	`, time.Now().UnixNano(), elapsed.Nanoseconds(), runID, runID)
	if err != nil {
		return fmt.Errorf("store: could not finish run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w %s", ErrUnknownRun, runID)
	}
	return nil
}

// Runs lists all runs, most recent first.
func (s *Store) Runs(ctx context.Context) ([]Run, error) {
	rows, err := s.QueryContext(ctx, `
		SELECT id, backend, cameras, width, height, instances, started_at, COALESCE(finished_at, 0), frames, elapsed_ns
		FROM runs
		ORDER BY started_at DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var (
			run               Run
			started, finished int64
			elapsed           int64
		)
		if err = rows.Scan(&run.ID, &run.Backend, &run.Cameras, &run.Width, &run.Height, &run.Instances, &started, &finished, &run.Frames, &elapsed); err != nil {
			return nil, err
		}
		run.StartedAt = time.Unix(0, started)
		if finished != 0 {
			run.FinishedAt = time.Unix(0, finished)
		}
		run.Elapsed = time.Duration(elapsed)
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// Frames returns the logged frames of a run ordered by frame index.
func (s *Store) Frames(ctx context.Context, runID string) ([]Frame, error) {
	rows, err := s.QueryContext(ctx, `
		SELECT frame_index, instance, preprocess_ns, upload_ns, solve_ns, extract_ns, mean_depth, mean_cost, valid_pixels
		FROM frames
		WHERE run_id = ?
		ORDER BY frame_index
	`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var frames []Frame
	for rows.Next() {
		var (
			f                                  Frame
			preprocess, upload, solve, extract int64
		)
		if err = rows.Scan(&f.Index, &f.Instance, &preprocess, &upload, &solve, &extract, &f.Stats.MeanDepth, &f.Stats.MeanCost, &f.Stats.ValidPixels); err != nil {
			return nil, err
		}
		f.Stats.Frame = f.Index
		f.Stats.Preprocess = time.Duration(preprocess)
		f.Stats.Upload = time.Duration(upload)
		f.Stats.Solve = time.Duration(solve)
		f.Stats.Extract = time.Duration(extract)
		frames = append(frames, f)
	}
	return frames, rows.Err()
}

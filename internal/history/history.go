// Package history keeps an optional SQLite log of comparison runs and their
// per-level scores.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrClosed is returned when using a closed Store.
var ErrClosed = errors.New("history: store is closed")

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	created_at TEXT NOT NULL,
	image1 TEXT NOT NULL,
	image2 TEXT NOT NULL,
	engine TEXT,
	backend TEXT,
	adapter TEXT,
	metric TEXT,
	status TEXT NOT NULL,
	score REAL,
	weighted_ssim REAL,
	error TEXT
);
CREATE TABLE IF NOT EXISTS scales (
	run_id INTEGER NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	level INTEGER NOT NULL,
	width INTEGER NOT NULL,
	height INTEGER NOT NULL,
	sum_u64 INTEGER NOT NULL,
	mean_dssim REAL NOT NULL,
	score REAL NOT NULL,
	weight REAL NOT NULL,
	PRIMARY KEY (run_id, level)
);
CREATE INDEX IF NOT EXISTS idx_runs_images ON runs(image1, image2);`

// Run is one recorded comparison.
type Run struct {
	ID           int64
	CreatedAt    time.Time
	Image1       string
	Image2       string
	Engine       string
	Backend      string
	Adapter      string
	Metric       string
	Status       string
	Score        float64
	WeightedSSIM float64
	Error        string
	Scales       []Scale
}

// Scale is one recorded pyramid level.
type Scale struct {
	Level     int
	Width     int
	Height    int
	Sum       uint64
	MeanDssim float64
	Score     float64
	Weight    float64
}

// Store is a run history database.
type Store struct {
	db *sql.DB
}

// Open opens or creates the database at path and ensures the schema.
func Open(path string) (*Store, error) {
	db, err := sql.Open(driverName, path)
	if err != nil {
		return nil, fmt.Errorf("history: open %s: %w", path, err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("history: create schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// Record stores r and its scales in one transaction and returns the run id.
// A zero CreatedAt is set to the current time.
func (s *Store) Record(ctx context.Context, r Run) (int64, error) {
	if s.db == nil {
		return 0, ErrClosed
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("history: begin: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	res, err := tx.ExecContext(ctx, `
		INSERT INTO runs (
			created_at, image1, image2, engine, backend, adapter, metric, status, score, weighted_ssim, error
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.CreatedAt.UTC().Format(time.RFC3339Nano),
		r.Image1, r.Image2, r.Engine, r.Backend, r.Adapter, r.Metric, r.Status,
		r.Score, r.WeightedSSIM, r.Error,
	)
	if err != nil {
		return 0, fmt.Errorf("history: insert run: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("history: run id: %w", err)
	}

	if len(r.Scales) > 0 {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO scales (run_id, level, width, height, sum_u64, mean_dssim, score, weight)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return 0, fmt.Errorf("history: prepare scale insert: %w", err)
		}
		defer stmt.Close()
		for _, sc := range r.Scales {
			// sqlite integers are signed 64-bit.
			if _, err := stmt.ExecContext(ctx, id, sc.Level, sc.Width, sc.Height,
				int64(sc.Sum), sc.MeanDssim, sc.Score, sc.Weight); err != nil { //nolint:gosec // sums fit in int64
				return 0, fmt.Errorf("history: insert scale %d: %w", sc.Level, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("history: commit: %w", err)
	}
	return id, nil
}

// Recent returns up to n runs, newest first, with their scales.
func (s *Store) Recent(ctx context.Context, n int) ([]Run, error) {
	if s.db == nil {
		return nil, ErrClosed
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, created_at, image1, image2, engine, backend, adapter, metric, status, score, weighted_ssim, error
		FROM runs ORDER BY id DESC LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("history: query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var (
			r       Run
			created string
			score   sql.NullFloat64
			ssim    sql.NullFloat64
			errText sql.NullString
		)
		if err := rows.Scan(&r.ID, &created, &r.Image1, &r.Image2, &r.Engine, &r.Backend,
			&r.Adapter, &r.Metric, &r.Status, &score, &ssim, &errText); err != nil {
			return nil, fmt.Errorf("history: scan run: %w", err)
		}
		if t, err := time.Parse(time.RFC3339Nano, created); err == nil {
			r.CreatedAt = t
		}
		r.Score, r.WeightedSSIM, r.Error = score.Float64, ssim.Float64, errText.String
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("history: query runs: %w", err)
	}

	for i := range runs {
		if runs[i].Scales, err = s.scales(ctx, runs[i].ID); err != nil {
			return nil, err
		}
	}
	return runs, nil
}

func (s *Store) scales(ctx context.Context, runID int64) ([]Scale, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT level, width, height, sum_u64, mean_dssim, score, weight
		FROM scales WHERE run_id = ? ORDER BY level`, runID)
	if err != nil {
		return nil, fmt.Errorf("history: query scales: %w", err)
	}
	defer rows.Close()

	var out []Scale
	for rows.Next() {
		var (
			sc  Scale
			sum int64
		)
		if err := rows.Scan(&sc.Level, &sc.Width, &sc.Height, &sum, &sc.MeanDssim, &sc.Score, &sc.Weight); err != nil {
			return nil, fmt.Errorf("history: scan scale: %w", err)
		}
		sc.Sum = uint64(sum) //nolint:gosec // stored from a uint64
		out = append(out, sc)
	}
	return out, rows.Err()
}

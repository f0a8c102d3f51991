package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"FinCast/internal/domain/models"
	domrepo "FinCast/internal/domain/repository"
	applogger "FinCast/pkg/logger"
)

// SQLiteArtifactStore persists artifacts in a local SQLite file. Writes are
// serialized; a save replaces the symbol's row in one statement so readers
// see either the old or the new artifact.
type SQLiteArtifactStore struct {
	db *sql.DB
	mu sync.Mutex
}

// NewSQLiteArtifactStore opens (or creates) the database and runs migrations.
func NewSQLiteArtifactStore(path string, l *applogger.Logger) (*SQLiteArtifactStore, error) {
	if dir := filepath.Dir(path); dir != "" && path != ":memory:" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create artifact dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	s := &SQLiteArtifactStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	l.Info("sqlite artifact store opened", applogger.String("path", path))
	return s, nil
}

func (s *SQLiteArtifactStore) migrate() error {
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS model_artifacts (
		symbol        TEXT PRIMARY KEY,
		weights       BLOB NOT NULL,
		scaler        TEXT NOT NULL,
		window_size   INTEGER NOT NULL,
		trained_at    INTEGER NOT NULL,
		last_observed INTEGER NOT NULL,
		sample_count  INTEGER NOT NULL,
		metrics       TEXT NOT NULL
	)`)
	return err
}

func (s *SQLiteArtifactStore) Load(ctx context.Context, symbol string) (*models.ModelArtifact, error) {
	var (
		a                     = models.ModelArtifact{Symbol: symbol}
		scaler, metrics       string
		trainedAt, lastObsrvd int64
	)
	err := s.db.QueryRowContext(ctx, `SELECT weights, scaler, window_size, trained_at, last_observed, sample_count, metrics
		FROM model_artifacts WHERE symbol = ?`, symbol).
		Scan(&a.Weights, &scaler, &a.Window, &trainedAt, &lastObsrvd, &a.SampleCount, &metrics)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrArtifactNotFound
	}
	if err != nil {
		return nil, &models.PersistenceError{Op: "load", Symbol: symbol, Err: err}
	}
	if err := json.Unmarshal([]byte(scaler), &a.Scaler); err != nil {
		return nil, &models.PersistenceError{Op: "load", Symbol: symbol, Err: fmt.Errorf("decode scaler: %w", err)}
	}
	if err := json.Unmarshal([]byte(metrics), &a.Metrics); err != nil {
		return nil, &models.PersistenceError{Op: "load", Symbol: symbol, Err: fmt.Errorf("decode metrics: %w", err)}
	}
	a.TrainedAt = time.Unix(0, trainedAt).UTC()
	a.LastObservedDate = time.Unix(0, lastObsrvd).UTC()
	return &a, nil
}

func (s *SQLiteArtifactStore) Save(ctx context.Context, a *models.ModelArtifact) error {
	scaler, err := json.Marshal(a.Scaler)
	if err != nil {
		return &models.PersistenceError{Op: "save", Symbol: a.Symbol, Err: err}
	}
	metrics, err := json.Marshal(a.Metrics)
	if err != nil {
		return &models.PersistenceError{Op: "save", Symbol: a.Symbol, Err: err}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.db.ExecContext(ctx, `INSERT INTO model_artifacts
		(symbol, weights, scaler, window_size, trained_at, last_observed, sample_count, metrics)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(symbol) DO UPDATE SET
			weights = excluded.weights,
			scaler = excluded.scaler,
			window_size = excluded.window_size,
			trained_at = excluded.trained_at,
			last_observed = excluded.last_observed,
			sample_count = excluded.sample_count,
			metrics = excluded.metrics`,
		a.Symbol, a.Weights, string(scaler), a.Window,
		a.TrainedAt.UnixNano(), a.LastObservedDate.UnixNano(), a.SampleCount, string(metrics))
	if err != nil {
		return &models.PersistenceError{Op: "save", Symbol: a.Symbol, Err: err}
	}
	return nil
}

func (s *SQLiteArtifactStore) Delete(ctx context.Context, symbol string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.db.ExecContext(ctx, `DELETE FROM model_artifacts WHERE symbol = ?`, symbol); err != nil {
		return &models.PersistenceError{Op: "delete", Symbol: symbol, Err: err}
	}
	return nil
}

func (s *SQLiteArtifactStore) Health(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *SQLiteArtifactStore) Close() error { return s.db.Close() }

var _ domrepo.ArtifactStore = (*SQLiteArtifactStore)(nil)

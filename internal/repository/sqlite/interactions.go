package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/freeeve/parley/internal/inference"
	"github.com/freeeve/parley/internal/model"
)

// InteractionStore logs inference calls to a local SQLite file.
type InteractionStore struct {
	db *sql.DB
}

// Open opens or creates the interaction database at path. ":memory:" is
// accepted for tests.
func Open(path string) (*InteractionStore, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, err
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &InteractionStore{db: db}, nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		`CREATE TABLE IF NOT EXISTS interactions (
			id         TEXT PRIMARY KEY,
			game_id    TEXT NOT NULL DEFAULT '',
			at         TEXT NOT NULL,
			backend    TEXT NOT NULL,
			power      TEXT NOT NULL DEFAULT '',
			phase      TEXT NOT NULL DEFAULT '',
			purpose    TEXT NOT NULL DEFAULT '',
			success    INTEGER NOT NULL,
			kind       TEXT NOT NULL,
			attempts   INTEGER NOT NULL,
			latency_ns INTEGER NOT NULL,
			prompt     TEXT NOT NULL DEFAULT '',
			response   TEXT NOT NULL DEFAULT '',
			error      TEXT NOT NULL DEFAULT ''
		);`,
		`CREATE INDEX IF NOT EXISTS idx_interactions_game ON interactions (game_id, at);`,
		`CREATE INDEX IF NOT EXISTS idx_interactions_backend ON interactions (backend);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return fmt.Errorf("sqlite schema: %w", err)
		}
	}
	return nil
}

// Record implements inference.Recorder.
func (s *InteractionStore) Record(ctx context.Context, in inference.Interaction) error {
	success := 0
	if in.Success {
		success = 1
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO interactions (id, game_id, at, backend, power, phase, purpose, success, kind, attempts, latency_ns, prompt, response, error)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		in.ID, in.GameID, in.Time.UTC().Format(time.RFC3339Nano), in.Backend, in.Power, in.Phase, in.Purpose,
		success, in.Kind, in.Attempts, int64(in.Latency), in.Prompt, in.Response, in.Error,
	)
	if err != nil {
		return fmt.Errorf("insert interaction: %w", err)
	}
	return nil
}

// ListInteractions returns matching interactions, oldest first.
func (s *InteractionStore) ListInteractions(ctx context.Context, f model.InteractionFilter) ([]inference.Interaction, error) {
	var where []string
	var args []any
	if f.GameID != "" {
		where = append(where, "game_id = ?")
		args = append(args, f.GameID)
	}
	if f.Backend != "" {
		where = append(where, "backend = ?")
		args = append(args, f.Backend)
	}
	if f.Power != "" {
		where = append(where, "power = ?")
		args = append(args, f.Power)
	}
	if f.Failed {
		where = append(where, "success = 0")
	}
	q := `SELECT id, game_id, at, backend, power, phase, purpose, success, kind, attempts, latency_ns, prompt, response, error FROM interactions`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY at, id"
	if f.Limit > 0 {
		q += fmt.Sprintf(" LIMIT %d", f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list interactions: %w", err)
	}
	defer rows.Close()

	var out []inference.Interaction
	for rows.Next() {
		var in inference.Interaction
		var at string
		var success int
		var latency int64
		if err := rows.Scan(&in.ID, &in.GameID, &at, &in.Backend, &in.Power, &in.Phase, &in.Purpose,
			&success, &in.Kind, &in.Attempts, &latency, &in.Prompt, &in.Response, &in.Error); err != nil {
			return nil, fmt.Errorf("scan interaction: %w", err)
		}
		in.Time, err = time.Parse(time.RFC3339Nano, at)
		if err != nil {
			return nil, fmt.Errorf("parse time %q: %w", at, err)
		}
		in.Success = success == 1
		in.Latency = time.Duration(latency)
		out = append(out, in)
	}
	return out, rows.Err()
}

// BackendStats aggregates calls per backend. An empty gameID covers all games.
func (s *InteractionStore) BackendStats(ctx context.Context, gameID string) ([]model.BackendStats, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT backend, COUNT(*), SUM(CASE WHEN success = 0 THEN 1 ELSE 0 END), SUM(attempts), AVG(latency_ns)
		 FROM interactions
		 WHERE ? = '' OR game_id = ?
		 GROUP BY backend
		 ORDER BY backend`, gameID, gameID)
	if err != nil {
		return nil, fmt.Errorf("backend stats: %w", err)
	}
	defer rows.Close()

	var out []model.BackendStats
	for rows.Next() {
		var st model.BackendStats
		var mean float64
		if err := rows.Scan(&st.Backend, &st.Calls, &st.Failures, &st.Attempts, &mean); err != nil {
			return nil, fmt.Errorf("scan stats: %w", err)
		}
		st.MeanLatency = time.Duration(mean)
		out = append(out, st)
	}
	return out, rows.Err()
}

// Close closes the database.
func (s *InteractionStore) Close() error {
	return s.db.Close()
}

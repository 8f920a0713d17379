// internal/archive/sqlite.go
package archive

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/ScavieFae/autonomous-world-model/engine/rollout"
)

// SQLiteStore keeps matches in a single sqlite file.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens path in WAL mode.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("archive: open %s: %w", path, err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("archive: enable WAL: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Migrate creates the schema if missing.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS matches (
			id TEXT PRIMARY KEY,
			stage TEXT NOT NULL,
			p0_character TEXT NOT NULL,
			p1_character TEXT NOT NULL,
			p0_agent TEXT NOT NULL DEFAULT '',
			p1_agent TEXT NOT NULL DEFAULT '',
			total_frames INTEGER NOT NULL,
			outcome TEXT NOT NULL,
			record TEXT NOT NULL,
			created_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_matches_created_at ON matches(created_at DESC)`,
	}
	for _, m := range migrations {
		if _, err := s.db.ExecContext(ctx, m); err != nil {
			return fmt.Errorf("archive: migration failed: %w", err)
		}
	}
	return nil
}

func (s *SQLiteStore) SaveMatch(ctx context.Context, id uuid.UUID, rec *rollout.MatchRecord, outcome string) error {
	body, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("archive: encode record: %w", err)
	}
	sum := summarize(id, rec, outcome)
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO matches (id, stage, p0_character, p1_character, p0_agent, p1_agent, total_frames, outcome, record, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id.String(), sum.Stage, sum.P0Character, sum.P1Character, sum.P0Agent, sum.P1Agent,
		sum.TotalFrames, sum.Outcome, string(body), time.Now().UnixNano())
	if err != nil {
		return fmt.Errorf("archive: save match %s: %w", id, err)
	}
	return nil
}

func (s *SQLiteStore) ListMatches(ctx context.Context, limit int) ([]Summary, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, stage, p0_character, p1_character, p0_agent, p1_agent, total_frames, outcome, created_at
		 FROM matches ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("archive: list matches: %w", err)
	}
	defer rows.Close()

	out := []Summary{}
	for rows.Next() {
		var sum Summary
		var id string
		var created int64
		if err := rows.Scan(&id, &sum.Stage, &sum.P0Character, &sum.P1Character, &sum.P0Agent, &sum.P1Agent,
			&sum.TotalFrames, &sum.Outcome, &created); err != nil {
			return nil, fmt.Errorf("archive: scan match: %w", err)
		}
		if sum.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("archive: match id %q: %w", id, err)
		}
		sum.CreatedAt = time.Unix(0, created).UTC()
		out = append(out, sum)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) GetMatch(ctx context.Context, id uuid.UUID) (*rollout.MatchRecord, error) {
	var body string
	err := s.db.QueryRowContext(ctx, `SELECT record FROM matches WHERE id = ?`, id.String()).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("archive: get match %s: %w", id, err)
	}
	var rec rollout.MatchRecord
	if err := json.Unmarshal([]byte(body), &rec); err != nil {
		return nil, fmt.Errorf("archive: decode match %s: %w", id, err)
	}
	return &rec, nil
}

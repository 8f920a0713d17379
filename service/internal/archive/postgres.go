// internal/archive/postgres.go
package archive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ScavieFae/autonomous-world-model/engine/rollout"
)

// PostgresStore keeps matches in postgres through a pgx pool.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects to dsn and checks the connection.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("archive: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("archive: ping: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// Migrate creates the schema if missing.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS matches (
			id UUID PRIMARY KEY,
			stage TEXT NOT NULL,
			p0_character TEXT NOT NULL,
			p1_character TEXT NOT NULL,
			p0_agent TEXT NOT NULL DEFAULT '',
			p1_agent TEXT NOT NULL DEFAULT '',
			total_frames INTEGER NOT NULL,
			outcome TEXT NOT NULL,
			record JSONB NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_matches_created_at ON matches(created_at DESC)`,
	}
	for _, m := range migrations {
		if _, err := s.pool.Exec(ctx, m); err != nil {
			return fmt.Errorf("archive: migration failed: %w", err)
		}
	}
	return nil
}

func (s *PostgresStore) SaveMatch(ctx context.Context, id uuid.UUID, rec *rollout.MatchRecord, outcome string) error {
	body, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("archive: encode record: %w", err)
	}
	sum := summarize(id, rec, outcome)
	_, err = s.pool.Exec(ctx,
		`INSERT INTO matches (id, stage, p0_character, p1_character, p0_agent, p1_agent, total_frames, outcome, record)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		id, sum.Stage, sum.P0Character, sum.P1Character, sum.P0Agent, sum.P1Agent,
		sum.TotalFrames, sum.Outcome, body)
	if err != nil {
		return fmt.Errorf("archive: save match %s: %w", id, err)
	}
	return nil
}

func (s *PostgresStore) ListMatches(ctx context.Context, limit int) ([]Summary, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, stage, p0_character, p1_character, p0_agent, p1_agent, total_frames, outcome, created_at
		 FROM matches ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("archive: list matches: %w", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Summary, error) {
		var sum Summary
		err := row.Scan(&sum.ID, &sum.Stage, &sum.P0Character, &sum.P1Character, &sum.P0Agent, &sum.P1Agent,
			&sum.TotalFrames, &sum.Outcome, &sum.CreatedAt)
		return sum, err
	})
	if err != nil {
		return nil, fmt.Errorf("archive: scan matches: %w", err)
	}
	if out == nil {
		out = []Summary{}
	}
	return out, nil
}

func (s *PostgresStore) GetMatch(ctx context.Context, id uuid.UUID) (*rollout.MatchRecord, error) {
	var body []byte
	err := s.pool.QueryRow(ctx, `SELECT record FROM matches WHERE id = $1`, id).Scan(&body)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("archive: get match %s: %w", id, err)
	}
	var rec rollout.MatchRecord
	if err := json.Unmarshal(body, &rec); err != nil {
		return nil, fmt.Errorf("archive: decode match %s: %w", id, err)
	}
	return &rec, nil
}

// internal/archive/archive.go
package archive

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ScavieFae/autonomous-world-model/engine/rollout"
)

// ErrNotFound is returned when no match has the requested id.
var ErrNotFound = errors.New("archive: match not found")

// Summary is the list view of a finished match.
type Summary struct {
	ID          uuid.UUID `json:"id"`
	Stage       string    `json:"stage"`
	P0Character string    `json:"p0_character"`
	P1Character string    `json:"p1_character"`
	P0Agent     string    `json:"p0_agent,omitempty"`
	P1Agent     string    `json:"p1_agent,omitempty"`
	TotalFrames int       `json:"total_frames"`
	Outcome     string    `json:"outcome"`
	CreatedAt   time.Time `json:"created_at"`
}

// Store persists finished match records.
type Store interface {
	SaveMatch(ctx context.Context, id uuid.UUID, rec *rollout.MatchRecord, outcome string) error
	// ListMatches returns the newest matches first.
	ListMatches(ctx context.Context, limit int) ([]Summary, error)
	GetMatch(ctx context.Context, id uuid.UUID) (*rollout.MatchRecord, error)
	Close() error
}

// Open returns the store for driver ("sqlite" or "postgres") with its
// schema migrated.
func Open(ctx context.Context, driver, dsn string) (Store, error) {
	switch driver {
	case "sqlite":
		db, err := NewSQLiteStore(dsn)
		if err != nil {
			return nil, err
		}
		if err := db.Migrate(ctx); err != nil {
			db.Close()
			return nil, err
		}
		return db, nil
	case "postgres":
		db, err := NewPostgresStore(ctx, dsn)
		if err != nil {
			return nil, err
		}
		if err := db.Migrate(ctx); err != nil {
			db.Close()
			return nil, err
		}
		return db, nil
	}
	return nil, fmt.Errorf("archive: unknown driver %q", driver)
}

func summarize(id uuid.UUID, rec *rollout.MatchRecord, outcome string) Summary {
	m := rec.Meta
	return Summary{
		ID:          id,
		Stage:       m.Stage.Name,
		P0Character: m.Characters.P0.Name,
		P1Character: m.Characters.P1.Name,
		P0Agent:     m.P0Agent,
		P1Agent:     m.P1Agent,
		TotalFrames: m.TotalFrames,
		Outcome:     outcome,
	}
}

// internal/match/match.go
package match

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	engine "github.com/ScavieFae/autonomous-world-model/engine"
	"github.com/ScavieFae/autonomous-world-model/engine/rollout"
)

// ErrAlreadyStarted is returned by Play on a match that has been played.
var ErrAlreadyStarted = errors.New("match: already started")

// fpsLogEvery is how often, in frames, Play logs its measured frame rate.
const fpsLogEvery = 60

// OnMatchEndFunc is called once when a match finishes, with the full record.
type OnMatchEndFunc func(matchID uuid.UUID, rec *rollout.MatchRecord, outcome rollout.Outcome)

// MatchEventType is the type of an event sent to viewers.
type MatchEventType string

const (
	EventMatchStart MatchEventType = "match_start" // metadata and stage geometry
	EventFrame      MatchEventType = "frame"       // one generated frame
	EventMatchEnd   MatchEventType = "match_end"   // final metadata and outcome
	EventSyncState  MatchEventType = "sync_state"  // catch-up snapshot for a late viewer
)

// MatchEvent is the envelope of everything streamed to viewers.
type MatchEvent struct {
	Type    MatchEventType `json:"type"`
	MatchID uuid.UUID      `json:"matchId"`

	Index *int                `json:"index,omitempty"` // post-seed frame index, frame events only
	Frame *engine.FrameRecord `json:"frame,omitempty"`

	Meta          *rollout.Meta         `json:"meta,omitempty"`
	StageGeometry *engine.StageGeometry `json:"stageGeometry,omitempty"`
	Outcome       string                `json:"outcome,omitempty"`

	State *SyncState `json:"state,omitempty"`
}

// Match is one streamed world-model match.
type Match struct {
	ID     uuid.UUID
	Number int // position in the serve loop, starting at 1

	Runner        *rollout.Runner
	FrameInterval time.Duration // target wall time per frame, inference included

	Started   bool
	Over      bool
	StartedAt time.Time

	Mu sync.Mutex // guards Runner and the lifecycle fields

	BroadcastFn func(ev MatchEvent)
	OnMatchEnd  OnMatchEndFunc

	log *logrus.Entry
}

// NewMatch wraps a runner. A nil log discards.
func NewMatch(r *rollout.Runner, interval time.Duration, log *logrus.Entry) *Match {
	id := uuid.New()
	if log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		log = logrus.NewEntry(l)
	}
	return &Match{
		ID:            id,
		Runner:        r,
		FrameInterval: interval,
		log:           log.WithField("match", id),
	}
}

func (m *Match) broadcast(ev MatchEvent) {
	if m.BroadcastFn == nil {
		return
	}
	ev.MatchID = m.ID
	m.BroadcastFn(ev)
}

// Play runs the match to completion, broadcasting every frame and pacing
// output to FrameInterval. It returns ctx's error if cancelled first.
func (m *Match) Play(ctx context.Context) (*rollout.MatchRecord, error) {
	m.Mu.Lock()
	if m.Started {
		m.Mu.Unlock()
		return nil, ErrAlreadyStarted
	}
	m.Started = true
	m.StartedAt = time.Now()
	start := m.Runner.Record()
	m.Mu.Unlock()

	m.log.Infof("Starting match #%d: %s vs %s on %s", m.Number,
		start.Meta.Characters.P0.Name, start.Meta.Characters.P1.Name, start.Meta.Stage.Name)
	m.broadcast(MatchEvent{Type: EventMatchStart, Meta: &start.Meta, StageGeometry: &start.StageGeometry})

	count := 0
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		tStart := time.Now()

		m.Mu.Lock()
		idx := m.Runner.Steps()
		frame, err := m.Runner.Step()
		m.Mu.Unlock()
		if errors.Is(err, rollout.ErrTerminated) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("match %s: %w", m.ID, err)
		}

		m.broadcast(MatchEvent{Type: EventFrame, Index: &idx, Frame: &frame})
		count++

		elapsed := time.Since(tStart)
		if wait := m.FrameInterval - elapsed; wait > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(wait):
			}
		}

		if count%fpsLogEvery == 0 {
			wall := time.Since(m.StartedAt).Seconds()
			m.log.Infof("Match #%d: frame %d (%.1f fps, %.1fms/frame)", m.Number, count,
				float64(count)/wall, float64(elapsed.Microseconds())/1000)
		}

		m.Mu.Lock()
		done := m.Runner.State() == rollout.Terminated
		m.Mu.Unlock()
		if done {
			break
		}
	}

	m.Mu.Lock()
	m.Over = true
	rec := m.Runner.Record()
	outcome := m.Runner.Outcome()
	m.Mu.Unlock()

	wall := time.Since(m.StartedAt).Seconds()
	fps := 0.0
	if wall > 0 {
		fps = float64(count) / wall
	}
	m.log.WithField("outcome", outcome).Infof("Match #%d ended: %d frames in %.1fs (%.1f fps)", m.Number, count, wall, fps)

	m.broadcast(MatchEvent{Type: EventMatchEnd, Meta: &rec.Meta, Outcome: outcome.String()})
	if m.OnMatchEnd != nil {
		m.OnMatchEnd(m.ID, rec, outcome)
	}
	return rec, nil
}

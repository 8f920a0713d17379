// internal/match/sync_state.go
package match

import (
	"github.com/google/uuid"

	engine "github.com/ScavieFae/autonomous-world-model/engine"
	"github.com/ScavieFae/autonomous-world-model/engine/rollout"
)

// SyncHistory is the number of most recent frames a sync snapshot carries.
const SyncHistory = 60

// SyncState is the snapshot a viewer receives on joining mid-match.
type SyncState struct {
	MatchID       uuid.UUID            `json:"matchId"`
	Started       bool                 `json:"started"`
	Over          bool                 `json:"over"`
	Phase         string               `json:"phase"`
	Outcome       string               `json:"outcome"`
	Steps         int                  `json:"steps"`
	Meta          rollout.Meta         `json:"meta"`
	StageGeometry engine.StageGeometry `json:"stageGeometry"`
	Recent        []engine.FrameRecord `json:"recent"`
}

// GetSyncState builds a snapshot of the match, including up to SyncHistory
// of the latest frames (seed frames count).
// This function assumes the match lock is HELD by the caller.
func (m *Match) GetSyncState() SyncState {
	rec := m.Runner.Record()
	frames := rec.Frames
	if len(frames) > SyncHistory {
		frames = frames[len(frames)-SyncHistory:]
	}
	recent := make([]engine.FrameRecord, len(frames))
	copy(recent, frames)
	return SyncState{
		MatchID:       m.ID,
		Started:       m.Started,
		Over:          m.Over,
		Phase:         m.Runner.State().String(),
		Outcome:       m.Runner.Outcome().String(),
		Steps:         m.Runner.Steps(),
		Meta:          rec.Meta,
		StageGeometry: rec.StageGeometry,
		Recent:        recent,
	}
}

// SyncEvent locks the match and wraps its snapshot in an event.
func (m *Match) SyncEvent() MatchEvent {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	st := m.GetSyncState()
	return MatchEvent{Type: EventSyncState, MatchID: m.ID, State: &st}
}

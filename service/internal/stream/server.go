// internal/stream/server.go
package stream

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ScavieFae/autonomous-world-model/service/internal/match"
)

// Server runs matches back to back for whoever is watching. Each match
// waits for at least one viewer before it starts.
type Server struct {
	Hub     *Hub
	Factory *match.Factory

	// Pairing picks the characters of each match; nil draws a random
	// tournament pairing.
	Pairing   func() (p0, p1 int)
	Loop      bool
	LoopPause time.Duration

	OnMatchEnd match.OnMatchEndFunc
	Log        *logrus.Entry

	mu      sync.Mutex
	current *match.Match
}

// Current is the match being played, or the last one played.
func (s *Server) Current() *match.Match {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// SyncEvent returns a catch-up event for the current match, if any.
func (s *Server) SyncEvent() (match.MatchEvent, bool) {
	m := s.Current()
	if m == nil {
		return match.MatchEvent{}, false
	}
	return m.SyncEvent(), true
}

// Run plays one match, or matches until ctx ends when Loop is set.
func (s *Server) Run(ctx context.Context) error {
	log := s.Log
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	for {
		if s.Hub.Count() == 0 {
			log.Info("Waiting for a viewer")
		}
		if err := s.Hub.WaitForViewer(ctx); err != nil {
			return err
		}

		var m *match.Match
		var err error
		if s.Pairing != nil {
			m, err = s.Factory.NewMatch(s.Pairing())
		} else {
			m, err = s.Factory.NewTournamentMatch()
		}
		if err != nil {
			return err
		}
		m.BroadcastFn = s.Hub.Broadcast
		m.OnMatchEnd = s.OnMatchEnd

		s.mu.Lock()
		s.current = m
		s.mu.Unlock()

		if _, err := m.Play(ctx); err != nil {
			return err
		}
		if !s.Loop {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.LoopPause):
		}
	}
}

// internal/api/server.go
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/ScavieFae/autonomous-world-model/service/internal/archive"
	"github.com/ScavieFae/autonomous-world-model/service/internal/match"
)

const (
	defaultListLimit = 20
	maxListLimit     = 200
)

// Server exposes the stream, the match archive and the record schema.
type Server struct {
	// Stream serves /ws; nil leaves the route unregistered.
	Stream http.Handler
	// Current returns the match being streamed, if any.
	Current func() *match.Match
	// Viewers reports the connected viewer count.
	Viewers func() int
	// Store backs /matches; nil answers 503.
	Store archive.Store

	Log *logrus.Entry
}

// Routes builds the router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	if s.Stream != nil {
		r.Handle("/ws", s.Stream)
	}

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(60 * time.Second))
		r.Get("/health", s.handleHealth)
		r.Get("/schema", s.handleSchema)
		r.Get("/matches", s.handleListMatches)
		r.Get("/matches/current", s.handleCurrentMatch)
		r.Get("/matches/{id}", s.handleGetMatch)
	})
	return r
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger().WithError(err).Warn("Failed to write response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

type healthResponse struct {
	Status  string     `json:"status"`
	Viewers int        `json:"viewers"`
	Match   *uuid.UUID `json:"match,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	resp := healthResponse{Status: "ok"}
	if s.Viewers != nil {
		resp.Viewers = s.Viewers()
	}
	if m := s.current(); m != nil {
		resp.Match = &m.ID
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) current() *match.Match {
	if s.Current == nil {
		return nil
	}
	return s.Current()
}

func (s *Server) handleSchema(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, MatchRecordSchema())
}

func (s *Server) handleCurrentMatch(w http.ResponseWriter, _ *http.Request) {
	m := s.current()
	if m == nil {
		s.writeError(w, http.StatusNotFound, "no match in progress")
		return
	}
	s.writeJSON(w, http.StatusOK, m.SyncEvent().State)
}

func (s *Server) handleListMatches(w http.ResponseWriter, r *http.Request) {
	if s.Store == nil {
		s.writeError(w, http.StatusServiceUnavailable, "archive disabled")
		return
	}
	limit := defaultListLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			s.writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxListLimit)
	}
	list, err := s.Store.ListMatches(r.Context(), limit)
	if err != nil {
		s.logger().WithError(err).Error("List matches failed")
		s.writeError(w, http.StatusInternalServerError, "failed to list matches")
		return
	}
	s.writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleGetMatch(w http.ResponseWriter, r *http.Request) {
	if s.Store == nil {
		s.writeError(w, http.StatusServiceUnavailable, "archive disabled")
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid match id")
		return
	}
	rec, err := s.Store.GetMatch(r.Context(), id)
	if errors.Is(err, archive.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "match not found")
		return
	}
	if err != nil {
		s.logger().WithError(err).WithField("match", id).Error("Get match failed")
		s.writeError(w, http.StatusInternalServerError, "failed to load match")
		return
	}
	s.writeJSON(w, http.StatusOK, rec)
}

func (s *Server) logger() *logrus.Entry {
	if s.Log != nil {
		return s.Log
	}
	return logrus.NewEntry(logrus.StandardLogger())
}

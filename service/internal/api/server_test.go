// internal/api/server_test.go
package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	engine "github.com/ScavieFae/autonomous-world-model/engine"
	"github.com/ScavieFae/autonomous-world-model/engine/model"
	"github.com/ScavieFae/autonomous-world-model/engine/rollout"
	"github.com/ScavieFae/autonomous-world-model/service/internal/archive"
	"github.com/ScavieFae/autonomous-world-model/service/internal/match"
)

func quietLog() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

func setupServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()
	store, err := archive.Open(context.Background(), "sqlite", filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	s := &Server{
		Stream:  http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusTeapot) }),
		Viewers: func() int { return 3 },
		Store:   store,
		Log:     quietLog(),
	}
	srv := httptest.NewServer(s.Routes())
	t.Cleanup(srv.Close)
	return s, srv
}

func getJSON(t *testing.T, url string, out any) int {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func playedMatch(t *testing.T) *match.Match {
	t.Helper()
	cfg := engine.DefaultEncodingConfig()
	wm, err := model.NewWorldModel(cfg, model.Arch{Kind: model.ArchMamba2, ContextLen: 2, DModel: 8, DState: 4, NLayers: 1, HeadDim: 4})
	require.NoError(t, err)
	f := match.NewFactory(wm, cfg, match.Settings{P0Agent: "noop", P1Agent: "noop", Stage: engine.StageBattlefield, MaxFrames: 2, NoEarlyKO: true}, 1, quietLog())
	m, err := f.NewMatch(18, 1)
	require.NoError(t, err)
	_, err = m.Play(context.Background())
	require.NoError(t, err)
	return m
}

func TestHealth(t *testing.T) {
	s, srv := setupServer(t)

	var body map[string]any
	assert.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/health", &body))
	assert.Equal(t, "ok", body["status"])
	assert.EqualValues(t, 3, body["viewers"])
	assert.NotContains(t, body, "match")

	m := playedMatch(t)
	s.Current = func() *match.Match { return m }
	body = nil
	getJSON(t, srv.URL+"/health", &body)
	assert.Equal(t, m.ID.String(), body["match"])
}

func TestStreamRoute(t *testing.T) {
	_, srv := setupServer(t)
	resp, err := http.Get(srv.URL + "/ws")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusTeapot, resp.StatusCode)
}

func TestMatchesArchive(t *testing.T) {
	s, srv := setupServer(t)
	m := playedMatch(t)
	rec := m.Runner.Record()
	require.NoError(t, s.Store.SaveMatch(context.Background(), m.ID, rec, "budget"))

	var list []archive.Summary
	assert.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/matches?limit=5", &list))
	require.Len(t, list, 1)
	assert.Equal(t, m.ID, list[0].ID)
	assert.Equal(t, "MARTH", list[0].P0Character)
	assert.Equal(t, "FOX", list[0].P1Character)

	var got rollout.MatchRecord
	assert.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/matches/"+m.ID.String(), &got))
	assert.Equal(t, rec.Meta, got.Meta)
	assert.Len(t, got.Frames, 4)

	var errBody map[string]string
	assert.Equal(t, http.StatusNotFound, getJSON(t, srv.URL+"/matches/"+uuid.NewString(), &errBody))
	assert.Equal(t, "match not found", errBody["error"])
	assert.Equal(t, http.StatusBadRequest, getJSON(t, srv.URL+"/matches/not-a-uuid", &errBody))
	assert.Equal(t, http.StatusBadRequest, getJSON(t, srv.URL+"/matches?limit=-1", &errBody))
}

func TestMatchesWithoutArchive(t *testing.T) {
	s := &Server{Log: quietLog()}
	srv := httptest.NewServer(s.Routes())
	defer srv.Close()
	assert.Equal(t, http.StatusServiceUnavailable, getJSON(t, srv.URL+"/matches", nil))
	assert.Equal(t, http.StatusNotFound, getJSON(t, srv.URL+"/ws", nil))
}

func TestCurrentMatch(t *testing.T) {
	s, srv := setupServer(t)
	assert.Equal(t, http.StatusNotFound, getJSON(t, srv.URL+"/matches/current", nil))

	m := playedMatch(t)
	s.Current = func() *match.Match { return m }
	var st match.SyncState
	assert.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/matches/current", &st))
	assert.Equal(t, m.ID, st.MatchID)
	assert.True(t, st.Over)
	assert.Equal(t, 2, st.Steps)
}

func TestSchema(t *testing.T) {
	_, srv := setupServer(t)
	resp, err := http.Get(srv.URL + "/schema")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(b), `"Match Record"`)
	assert.Contains(t, string(b), `"stage_geometry"`)
	assert.Contains(t, string(b), `"total_frames"`)
}

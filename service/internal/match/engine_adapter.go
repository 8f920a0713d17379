// internal/match/engine_adapter.go
package match

import (
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	engine "github.com/ScavieFae/autonomous-world-model/engine"
	"github.com/ScavieFae/autonomous-world-model/engine/agent"
	"github.com/ScavieFae/autonomous-world-model/engine/rollout"
)

// Settings are the per-match options shared by every match a Factory builds.
type Settings struct {
	P0Agent       string
	P1Agent       string
	Stage         int
	MaxFrames     int
	NoEarlyKO     bool
	FrameInterval time.Duration

	// Recorded in match metadata.
	ModelCheckpoint string
	Arch            string
}

// Factory builds matches around one loaded world model. Agents are parsed
// afresh for every match so stateful agents never leak between matches.
type Factory struct {
	Model    rollout.Predictor
	Config   engine.EncodingConfig
	Settings Settings

	log *logrus.Entry

	mu    sync.Mutex
	rng   *rand.Rand
	count int
}

// NewFactory returns a factory whose character draws follow seed.
func NewFactory(m rollout.Predictor, cfg engine.EncodingConfig, s Settings, seed uint64, log *logrus.Entry) *Factory {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Factory{
		Model:    m,
		Config:   cfg,
		Settings: s,
		log:      log,
		rng:      rand.New(rand.NewPCG(seed, seed+1)),
	}
}

// TournamentPair draws two characters from engine.TournamentCharacters.
func (f *Factory) TournamentPair() (p0, p1 int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := len(engine.TournamentCharacters)
	return engine.TournamentCharacters[f.rng.IntN(n)], engine.TournamentCharacters[f.rng.IntN(n)]
}

// NewMatch parses both agents and returns an unstarted match.
func (f *Factory) NewMatch(p0Char, p1Char int) (*Match, error) {
	s := f.Settings
	p0, err := agent.Parse(s.P0Agent, 0, f.Config, f.log)
	if err != nil {
		return nil, fmt.Errorf("match: p0 agent: %w", err)
	}
	p1, err := agent.Parse(s.P1Agent, 1, f.Config, f.log)
	if err != nil {
		return nil, fmt.Errorf("match: p1 agent: %w", err)
	}

	f.mu.Lock()
	f.count++
	number := f.count
	f.mu.Unlock()

	opts := rollout.Options{
		Stage:           s.Stage,
		P0Char:          p0Char,
		P1Char:          p1Char,
		MaxFrames:       s.MaxFrames,
		NoEarlyKO:       s.NoEarlyKO,
		ModelCheckpoint: s.ModelCheckpoint,
		Arch:            s.Arch,
		P0Agent:         s.P0Agent,
		P1Agent:         s.P1Agent,
	}
	m := NewMatch(nil, s.FrameInterval, f.log)
	m.Number = number
	opts.Logger = m.log
	r, err := rollout.NewRunner(f.Model, f.Config, p0, p1, opts)
	if err != nil {
		return nil, fmt.Errorf("match: %w", err)
	}
	m.Runner = r
	return m, nil
}

// NewTournamentMatch builds a match with a random tournament pairing.
func (f *Factory) NewTournamentMatch() (*Match, error) {
	p0, p1 := f.TournamentPair()
	return f.NewMatch(p0, p1)
}

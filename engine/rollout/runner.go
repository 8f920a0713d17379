// Package rollout drives a world model autoregressively: it seeds a match,
// asks both agents for controllers every frame, integrates each prediction
// into the next frame and stops on a KO or the frame budget.
package rollout

import (
	"errors"
	"fmt"
	"io"

	"github.com/sirupsen/logrus"

	engine "github.com/ScavieFae/autonomous-world-model/engine"
	"github.com/ScavieFae/autonomous-world-model/engine/agent"
	"github.com/ScavieFae/autonomous-world-model/engine/model"
)

// KOThreshold is the decoded stock count below which a player is out.
const KOThreshold = 0.5

var (
	// ErrTerminated is returned by Step once the match has ended.
	ErrTerminated = errors.New("rollout: match already terminated")
	// ErrPredictionShape is returned when a Predictor's heads do not match
	// the encoding.
	ErrPredictionShape = errors.New("rollout: prediction shape mismatch")
)

// Predictor is the world model as the runner sees it.
type Predictor interface {
	ContextLen() int
	Forward(window engine.Window, nextCtrl []float32) (*model.Prediction, error)
}

// State is the runner lifecycle.
type State uint8

const (
	Seeding State = iota
	Running
	Terminated
)

func (s State) String() string {
	switch s {
	case Seeding:
		return "seeding"
	case Running:
		return "running"
	case Terminated:
		return "terminated"
	}
	return fmt.Sprintf("State(%d)", uint8(s))
}

// Outcome records why a match ended.
type Outcome uint8

const (
	OutcomeNone   Outcome = iota // still running
	OutcomeKO                    // a player's stocks fell below KOThreshold
	OutcomeBudget                // MaxFrames post-seed frames were produced
)

func (o Outcome) String() string {
	switch o {
	case OutcomeNone:
		return "none"
	case OutcomeKO:
		return "ko"
	case OutcomeBudget:
		return "budget"
	}
	return fmt.Sprintf("Outcome(%d)", uint8(o))
}

// Options configures one match.
type Options struct {
	Stage     int
	P0Char    int
	P1Char    int
	MaxFrames int  // post-seed frame budget
	NoEarlyKO bool // run to MaxFrames even after a KO

	// Logger defaults to a discarding logger.
	Logger *logrus.Entry
	// FrameSink, when set, receives each generated frame and its post-seed
	// index as soon as it is produced.
	FrameSink func(t int, frame engine.FrameRecord)

	// Optional metadata copied into Meta.
	ModelCheckpoint string
	Arch            string
	P0Agent         string
	P1Agent         string
}

// DefaultOptions returns Final Destination, two Captain Falcons and a
// 600-frame budget.
func DefaultOptions() Options {
	return Options{Stage: engine.StageFinalDestination, P0Char: 2, P1Char: 2, MaxFrames: 600}
}

// Runner owns the rolling history of one match. It is not safe for
// concurrent use.
type Runner struct {
	cfg    engine.EncodingConfig
	layout engine.Layout
	model  Predictor
	agents [2]agent.Agent
	opts   Options
	log    *logrus.Entry

	state   State
	outcome Outcome
	history engine.Window
	frames  []engine.FrameRecord
	steps   int
}

// NewRunner validates the options and returns a runner in the Seeding state.
func NewRunner(m Predictor, cfg engine.EncodingConfig, p0, p1 agent.Agent, opts Options) (*Runner, error) {
	if m.ContextLen() <= 0 {
		return nil, fmt.Errorf("rollout: context length %d must be positive", m.ContextLen())
	}
	if opts.MaxFrames < 0 {
		return nil, fmt.Errorf("rollout: max frames %d must not be negative", opts.MaxFrames)
	}
	log := opts.Logger
	if log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		log = logrus.NewEntry(l)
	}
	return &Runner{
		cfg:    cfg,
		layout: engine.NewLayout(cfg),
		model:  m,
		agents: [2]agent.Agent{p0, p1},
		opts:   opts,
		log:    log,
	}, nil
}

func (r *Runner) State() State     { return r.state }
func (r *Runner) Outcome() Outcome { return r.outcome }

// Steps is the number of post-seed frames produced so far.
func (r *Runner) Steps() int { return r.steps }

// History returns every encoded frame so far, seed frames included.
func (r *Runner) History() engine.Window { return r.history }

// Frames returns every decoded frame so far, seed frames included.
func (r *Runner) Frames() []engine.FrameRecord { return r.frames }

// seed fills the history with the canonical start and moves to Running.
func (r *Runner) seed() {
	k := r.model.ContextLen()
	r.history = engine.GenerateSyntheticSeed(r.cfg, k, r.opts.Stage, r.opts.P0Char, r.opts.P1Char)
	r.frames = make([]engine.FrameRecord, 0, k+r.opts.MaxFrames)
	for _, f := range r.history {
		r.frames = append(r.frames, r.layout.DecodeFrame(f))
	}
	r.state = Running
	if r.opts.MaxFrames == 0 {
		r.terminate(OutcomeBudget)
	}
}

func (r *Runner) terminate(o Outcome) {
	r.state = Terminated
	r.outcome = o
}

// Step produces one frame. A runner still Seeding seeds first.
func (r *Runner) Step() (engine.FrameRecord, error) {
	if r.state == Seeding {
		r.seed()
	}
	if r.state == Terminated {
		return engine.FrameRecord{}, ErrTerminated
	}

	t := r.steps
	var ctrls [2]engine.ControllerVector
	for p, a := range r.agents {
		c, err := a.Controller(r.history, t)
		if err != nil {
			return engine.FrameRecord{}, fmt.Errorf("rollout: frame %d: p%d agent: %w", t, p, err)
		}
		ctrls[p] = c
	}

	last := r.history.Last()
	prev := [2]engine.ControllerVector{r.layout.PlayerController(last, 0), r.layout.PlayerController(last, 1)}
	k := r.model.ContextLen()
	pred, err := r.model.Forward(r.history[len(r.history)-k:], Conditioning(r.cfg, prev, ctrls))
	if err != nil {
		return engine.FrameRecord{}, fmt.Errorf("rollout: frame %d: %w", t, err)
	}
	if err := CheckPrediction(r.cfg, pred); err != nil {
		return engine.FrameRecord{}, fmt.Errorf("rollout: frame %d: %w", t, err)
	}

	next := Integrate(r.layout, last, pred, ctrls)
	r.history = append(r.history, next)
	rec := r.layout.DecodeFrame(next)
	r.frames = append(r.frames, rec)
	r.steps++
	if r.opts.FrameSink != nil {
		r.opts.FrameSink(t, rec)
	}

	switch {
	case !r.opts.NoEarlyKO && (rec.Players[0].Stocks < KOThreshold || rec.Players[1].Stocks < KOThreshold):
		r.log.Infof("KO detected at frame %d", k+t)
		r.terminate(OutcomeKO)
	case r.steps >= r.opts.MaxFrames:
		r.terminate(OutcomeBudget)
	}
	return rec, nil
}

// Run steps until the match terminates and returns the full record.
func (r *Runner) Run() (*MatchRecord, error) {
	if r.state == Seeding {
		r.seed()
	}
	for r.state != Terminated {
		if _, err := r.Step(); err != nil {
			return nil, err
		}
	}
	return r.Record(), nil
}

// Record assembles the match output from the frames produced so far.
func (r *Runner) Record() *MatchRecord {
	geo := engine.LookupStage(r.opts.Stage)
	meta := Meta{
		Mode:        ModeAgentVsAgent,
		TotalFrames: len(r.frames),
		SeedFrames:  r.model.ContextLen(),
		Stage:       Ref{ID: r.opts.Stage, Name: geo.Name},
		Characters: Characters{
			P0: Ref{ID: r.opts.P0Char, Name: engine.CharacterName(r.opts.P0Char)},
			P1: Ref{ID: r.opts.P1Char, Name: engine.CharacterName(r.opts.P1Char)},
		},
		ModelCheckpoint: r.opts.ModelCheckpoint,
		Arch:            r.opts.Arch,
		P0Agent:         r.opts.P0Agent,
		P1Agent:         r.opts.P1Agent,
	}
	if r.opts.ModelCheckpoint != "" {
		meta.ContextLen = r.model.ContextLen()
	}
	return &MatchRecord{Meta: meta, StageGeometry: geo, Frames: r.frames}
}

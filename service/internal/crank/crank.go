// internal/crank/crank.go
package crank

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	engine "github.com/ScavieFae/autonomous-world-model/engine"
	"github.com/ScavieFae/autonomous-world-model/engine/agent"
	"github.com/ScavieFae/autonomous-world-model/engine/rollout"
)

// ErrSessionInactive is returned by Tick once the session is not active.
var ErrSessionInactive = errors.New("crank: session not active")

// DefaultPoll is the wait between ticks that did not advance the session.
const DefaultPoll = 16 * time.Millisecond

// Crank advances a ledger-held session one frame per tick. Every session
// read is encoded into a rolling window of the model's context length, so
// the first K-1 ticks only collect context (repeated reads of the opening
// frame fill it the way a seed window does). Once the window is full each
// tick writes the predicted next frame back to the same session key.
type Crank struct {
	Model      rollout.Predictor
	Ledger     Ledger
	SessionKey string
	InputKey   string
	// Agents drive a player whose input for the current frame is not ready.
	// A nil agent holds the controller neutral.
	Agents [2]agent.Agent
	Poll   time.Duration

	codec  engine.Codec
	layout engine.Layout
	log    *logrus.Entry
	now    func() time.Time
	window engine.Window
	ctrls  [2]engine.ControllerVector
}

// New returns a crank for the session and input records under the given
// keys.
func New(m rollout.Predictor, cfg engine.EncodingConfig, l Ledger, sessionKey, inputKey string, log *logrus.Entry) *Crank {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	c := &Crank{
		Model:      m,
		Ledger:     l,
		SessionKey: sessionKey,
		InputKey:   inputKey,
		Poll:       DefaultPoll,
		codec:      engine.NewCodec(cfg),
		layout:     engine.NewLayout(cfg),
		log:        log.WithField("session", sessionKey),
		now:        time.Now,
	}
	c.ctrls = [2]engine.ControllerVector{engine.NeutralController(), engine.NeutralController()}
	return c
}

// Window is the encoded context collected so far.
func (c *Crank) Window() engine.Window { return c.window }

// ingestSession appends the session frame stamped with the controllers
// that produced it and keeps only the last K frames.
func (c *Crank) ingestSession(s engine.SessionState) {
	f := c.codec.EncodeSession(s)
	for p := range c.ctrls {
		c.layout.SetController(f, p, c.ctrls[p])
	}
	c.window = append(c.window, f)
	if k := c.Model.ContextLen(); len(c.window) > k {
		c.window = c.window[len(c.window)-k:]
	}
}

func (c *Crank) controllers(ctx context.Context, frame uint32) ([2]engine.ControllerVector, error) {
	var buf engine.InputBuffer
	data, err := c.Ledger.Read(ctx, c.InputKey)
	switch {
	case errors.Is(err, ErrNoRecord):
	case err != nil:
		return [2]engine.ControllerVector{}, err
	default:
		if buf, err = engine.UnmarshalInputBuffer(data); err != nil {
			return [2]engine.ControllerVector{}, err
		}
	}

	fresh := buf.Frame == frame
	inputs := [2]engine.ControllerInput{buf.Player1, buf.Player2}
	ready := [2]bool{fresh && buf.P1Ready, fresh && buf.P2Ready}

	var out [2]engine.ControllerVector
	for p := range out {
		switch {
		case ready[p]:
			out[p] = engine.ControllerFromInput(inputs[p])
		case c.Agents[p] != nil:
			v, err := c.Agents[p].Controller(c.window, int(frame))
			if err != nil {
				return out, fmt.Errorf("crank: p%d agent: %w", p, err)
			}
			out[p] = v
		default:
			out[p] = engine.NeutralController()
		}
	}
	return out, nil
}

// Tick reads the session once. It reports whether a new frame was written.
func (c *Crank) Tick(ctx context.Context) (bool, error) {
	data, err := c.Ledger.Read(ctx, c.SessionKey)
	if err != nil {
		return false, fmt.Errorf("crank: read session: %w", err)
	}
	s, err := engine.UnmarshalSession(data)
	if err != nil {
		return false, fmt.Errorf("crank: %w", err)
	}
	if s.Status != engine.StatusActive {
		return false, fmt.Errorf("%w: status %d", ErrSessionInactive, s.Status)
	}

	c.ingestSession(s)
	k := c.Model.ContextLen()
	if len(c.window) < k {
		return false, nil
	}

	ctrls, err := c.controllers(ctx, s.Frame)
	if err != nil {
		return false, err
	}
	last := c.window.Last()
	prev := [2]engine.ControllerVector{c.layout.PlayerController(last, 0), c.layout.PlayerController(last, 1)}
	pred, err := c.Model.Forward(c.window, rollout.Conditioning(c.layout.Config, prev, ctrls))
	if err != nil {
		return false, fmt.Errorf("crank: frame %d: %w", s.Frame, err)
	}
	if err := rollout.CheckPrediction(c.layout.Config, pred); err != nil {
		return false, fmt.Errorf("crank: frame %d: %w", s.Frame, err)
	}
	next := rollout.Integrate(c.layout, last, pred, ctrls)

	out := c.codec.DecodeSession(next, s.Frame+1)
	out.MaxFrames = s.MaxFrames
	out.Player1, out.Player2 = s.Player1, s.Player2
	out.Model = s.Model
	out.CreatedAt = s.CreatedAt
	out.Seed = s.Seed
	out.LastUpdate = c.now().Unix()

	rec := c.layout.DecodeFrame(next)
	ko := rec.Players[0].Stocks < rollout.KOThreshold || rec.Players[1].Stocks < rollout.KOThreshold
	switch {
	case ko:
		out.Status = engine.StatusEnded
		c.log.Infof("KO detected at frame %d", out.Frame)
	case s.MaxFrames > 0 && out.Frame >= s.MaxFrames:
		out.Status = engine.StatusEnded
		c.log.Infof("Frame budget reached at frame %d", out.Frame)
	}

	if err := c.Ledger.Write(ctx, c.SessionKey, engine.MarshalSession(out)); err != nil {
		return false, fmt.Errorf("crank: write session: %w", err)
	}
	c.ctrls = ctrls
	c.log.Debugf("Frame %d: inference done", s.Frame)
	return true, nil
}

// Run ticks until the session ends or ctx is cancelled. An ended session
// returns nil.
func (c *Crank) Run(ctx context.Context) error {
	c.log.Info("Crank started")
	for {
		advanced, err := c.Tick(ctx)
		if errors.Is(err, ErrSessionInactive) {
			c.log.Infof("Session not active (%v). Exiting.", err)
			return nil
		}
		if err != nil {
			return err
		}
		wait := c.Poll
		if advanced {
			wait = 0
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

// Package agent implements the controller sources that drive each player in
// a rollout: scripted agents and learned policies.
package agent

import (
	"math/rand/v2"

	engine "github.com/ScavieFae/autonomous-world-model/engine"
)

// Agent produces one player's controller for the next frame from the frames
// produced so far (oldest first) and the post-seed step index t.
type Agent interface {
	Controller(window engine.Window, t int) (engine.ControllerVector, error)
}

// Neutral holds every stick centered and presses nothing.
type Neutral struct{}

func (Neutral) Controller(engine.Window, int) (engine.ControllerVector, error) {
	return engine.NeutralController(), nil
}

// Random draws sticks and shoulder uniformly and presses each button with
// probability 0.1.
type Random struct {
	rng *rand.Rand
}

// NewRandom returns a Random agent with a fixed seed.
func NewRandom(seed uint64) *Random {
	return &Random{rng: rand.New(rand.NewPCG(seed, seed^0xda3e39cb94b95bdb))}
}

func newUnseededRand() *rand.Rand {
	return rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
}

func (a *Random) Controller(engine.Window, int) (engine.ControllerVector, error) {
	var c engine.ControllerVector
	for i := engine.CtrlMainX; i <= engine.CtrlShoulder; i++ {
		c[i] = a.rng.Float32()
	}
	for i := engine.CtrlA; i <= engine.CtrlDUp; i++ {
		if a.rng.Float32() > 0.9 {
			c[i] = 1
		}
	}
	return c, nil
}

// Approach pushes the main stick toward the opponent and presses A on the
// first 3 frames of every 10.
type Approach struct {
	Player int
	layout engine.Layout
}

// NewApproach returns an Approach agent for player reading frames laid out by cfg.
func NewApproach(player int, cfg engine.EncodingConfig) *Approach {
	return &Approach{Player: player, layout: engine.NewLayout(cfg)}
}

func (a *Approach) Controller(window engine.Window, t int) (engine.ControllerVector, error) {
	c := engine.NeutralController()
	c[engine.CtrlMainX] = 1
	if len(window) > 0 {
		l, f := a.layout, window.Last()
		own := f.Floats[l.PlayerFloat(a.Player, l.X)]
		opp := f.Floats[l.PlayerFloat(1-a.Player, l.X)]
		if opp < own {
			c[engine.CtrlMainX] = 0
		}
	}
	if t%10 < 3 {
		c[engine.CtrlA] = 1
	}
	return c, nil
}

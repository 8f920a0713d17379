package agent

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	engine "github.com/ScavieFae/autonomous-world-model/engine"
	"github.com/ScavieFae/autonomous-world-model/engine/model"
)

// Policy runs a learned frame-stack policy for one player.
type Policy struct {
	Player int
	Model  *model.Policy

	world engine.Layout
	mask  *FeatureMask // nil when the policy reads world frames as-is
}

// NewPolicy wraps a loaded policy. Frames arrive in world's layout and are
// projected onto the policy's when the two differ.
func NewPolicy(p *model.Policy, player int, world engine.EncodingConfig) (*Policy, error) {
	mask, err := NewFeatureMask(world, p.Config)
	if err != nil {
		return nil, err
	}
	return &Policy{Player: player, Model: p, world: engine.NewLayout(world), mask: mask}, nil
}

// LoadPolicy reads a policy bundle, reconciles its encoding against world and
// wraps it for player. A nil log discards the load message.
func LoadPolicy(dir string, player int, world engine.EncodingConfig, log *logrus.Entry) (*Policy, error) {
	if log == nil {
		log = discardLogger()
	}
	m, err := model.LoadBundle(dir)
	if err != nil {
		return nil, err
	}
	width, err := m.PolicyInputDim()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", dir, err)
	}
	cfg, k, err := Reconcile(world, width, DefaultMaxContext)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", dir, err)
	}
	p, err := model.LoadPolicy(m, cfg, k)
	if err != nil {
		return nil, err
	}
	a, err := NewPolicy(p, player, world)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", dir, err)
	}
	log.WithFields(logrus.Fields{
		"player":    player,
		"context":   k,
		"hidden":    p.Arch.HiddenDim,
		"trunk":     p.Arch.TrunkDim,
		"frame_dim": cfg.FrameDim(),
		"masked":    a.mask != nil,
	}).Infof("Loaded policy from %s", dir)
	return a, nil
}

func discardLogger() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

// Controller evaluates the policy on the most recent frames. Windows shorter
// than the policy context are padded by repeating the oldest frame.
func (a *Policy) Controller(window engine.Window, _ int) (engine.ControllerVector, error) {
	k := a.Model.ContextLen()
	if len(window) == 0 {
		return engine.NeutralController(), fmt.Errorf("agent: empty window: %w", model.ErrWindowLen)
	}
	ctx := make(engine.Window, 0, k)
	for i := len(window) - k; i < len(window); i++ {
		ctx = append(ctx, window[max(i, 0)])
	}
	if a.Player == 1 {
		ctx = a.world.MirrorWindow(ctx)
	}
	if a.mask != nil {
		for i, f := range ctx {
			ctx[i] = a.mask.Apply(f)
		}
	}

	analog, buttons, err := a.Model.Forward(ctx)
	if err != nil {
		return engine.NeutralController(), fmt.Errorf("agent: policy p%d: %w", a.Player, err)
	}
	var c engine.ControllerVector
	copy(c[:model.AnalogDim], analog[:])
	for i, logit := range buttons {
		if logit > 0 {
			c[engine.CtrlA+i] = 1
		}
	}
	return c, nil
}

// Parse builds an agent from a spec string:
//
//	noop | neutral
//	random | random:<seed>
//	hold-forward | approach
//	policy:<bundle-dir>
//
// cfg is the world model's encoding.
func Parse(spec string, player int, cfg engine.EncodingConfig, log *logrus.Entry) (Agent, error) {
	kind, arg, _ := strings.Cut(spec, ":")
	switch kind {
	case "noop", "neutral":
		return Neutral{}, nil
	case "random":
		if arg == "" {
			return &Random{rng: newUnseededRand()}, nil
		}
		seed, err := strconv.ParseUint(arg, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("agent: random seed %q: %w", arg, err)
		}
		return NewRandom(seed), nil
	case "hold-forward", "approach":
		return NewApproach(player, cfg), nil
	case "policy":
		if arg == "" {
			return nil, fmt.Errorf("agent: %q: missing bundle path", spec)
		}
		return LoadPolicy(arg, player, cfg, log)
	}
	return nil, fmt.Errorf("agent: unknown spec %q (use noop, random, hold-forward, policy:<dir>)", spec)
}

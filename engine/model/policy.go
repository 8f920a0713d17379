package model

import (
	"fmt"
	"math/rand/v2"

	engine "github.com/ScavieFae/autonomous-world-model/engine"
	"github.com/ScavieFae/autonomous-world-model/engine/ssm"
)

// Policy output widths.
const (
	AnalogDim = 5 // main_x, main_y, c_x, c_y, shoulder
	ButtonDim = engine.NumButtons
)

// DefaultPolicyArch returns the standard frame-stack policy sizes.
func DefaultPolicyArch() Arch {
	return Arch{Kind: ArchPolicyMLP, ContextLen: 10, HiddenDim: 512, TrunkDim: 256}
}

// Policy is a frame-stack MLP: the last ContextLen encoded frames are
// concatenated and mapped to one controller. It predicts for player 0;
// callers mirror the window to act as player 1.
type Policy struct {
	Config engine.EncodingConfig
	Arch   Arch

	encoder *FrameEncoder
	hidden  *ssm.Linear // trunk.0
	trunk   *ssm.Linear // trunk.3
	analog  *ssm.Linear
	buttons *ssm.Linear
}

// NewPolicy allocates a zeroed policy.
func NewPolicy(cfg engine.EncodingConfig, arch Arch) (*Policy, error) {
	if arch.ContextLen <= 0 || arch.HiddenDim <= 0 || arch.TrunkDim <= 0 {
		return nil, fmt.Errorf("model: policy context %d, hidden %d, trunk %d must be positive",
			arch.ContextLen, arch.HiddenDim, arch.TrunkDim)
	}
	return &Policy{
		Config:  cfg,
		Arch:    arch,
		encoder: NewFrameEncoder(cfg),
		hidden:  ssm.NewLinear(arch.ContextLen*cfg.FrameDim(), arch.HiddenDim, true),
		trunk:   ssm.NewLinear(arch.HiddenDim, arch.TrunkDim, true),
		analog:  ssm.NewLinear(arch.TrunkDim, AnalogDim, true),
		buttons: ssm.NewLinear(arch.TrunkDim, ButtonDim, true),
	}, nil
}

// ContextLen is the number of frames the policy reads.
func (p *Policy) ContextLen() int { return p.Arch.ContextLen }

// InputDim is the width of the stacked frame vector.
func (p *Policy) InputDim() int { return p.hidden.In }

func (p *Policy) Params() []ssm.Param {
	ps := p.encoder.Params()
	ps = append(ps, p.hidden.Params("trunk.0")...)
	ps = append(ps, p.trunk.Params("trunk.3")...)
	ps = append(ps, p.analog.Params("analog_head")...)
	ps = append(ps, p.buttons.Params("button_head")...)
	return ps
}

// Randomize fills every weight from a seeded generator.
func (p *Policy) Randomize(seed uint64) {
	ssm.InitParams(p.Params(), rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)))
}

// Forward reads the last ContextLen frames of window and returns the analog
// outputs in [0,1] and the raw button logits.
func (p *Policy) Forward(window engine.Window) ([AnalogDim]float32, [ButtonDim]float32, error) {
	var analog [AnalogDim]float32
	var buttons [ButtonDim]float32

	k := p.Arch.ContextLen
	if len(window) < k {
		return analog, buttons, fmt.Errorf("got %d frames, want at least %d: %w", len(window), k, ErrWindowLen)
	}
	window = window[len(window)-k:]

	fd := p.Config.FrameDim()
	in := make([]float32, k*fd)
	for t, f := range window {
		if err := checkFrame(p.Config, t, f); err != nil {
			return analog, buttons, err
		}
		p.encoder.Encode(f, in[t*fd:(t+1)*fd])
	}

	h := relu(p.trunk.Forward(relu(p.hidden.Forward(in))))
	for i, v := range p.analog.Forward(h) {
		analog[i] = ssm.Sigmoid(v)
	}
	copy(buttons[:], p.buttons.Forward(h))
	return analog, buttons, nil
}

func relu(x []float32) []float32 {
	for i, v := range x {
		if v < 0 {
			x[i] = 0
		}
	}
	return x
}

package model

import (
	"errors"
	"fmt"
	"math/rand/v2"

	engine "github.com/ScavieFae/autonomous-world-model/engine"
	"github.com/ScavieFae/autonomous-world-model/engine/ssm"
)

// Architecture kinds stored in bundle manifests.
const (
	ArchMamba2    = "mamba2"
	ArchPolicyMLP = "policy_mlp"
)

var (
	// ErrWindowLen is returned when the context window has the wrong length.
	ErrWindowLen = errors.New("model: wrong context window length")
	// ErrCtrlWidth is returned when the controller conditioning has the wrong width.
	ErrCtrlWidth = errors.New("model: wrong controller conditioning width")
	// ErrFrameShape is returned when a frame does not match the encoding.
	ErrFrameShape = errors.New("model: frame does not match encoding")
)

func checkFrame(cfg engine.EncodingConfig, t int, f engine.Frame) error {
	if len(f.Floats) != cfg.FloatPerFrame() || len(f.Ints) != cfg.IntPerFrame() {
		return fmt.Errorf("frame %d has %d floats, %d ints, want %d, %d: %w",
			t, len(f.Floats), len(f.Ints), cfg.FloatPerFrame(), cfg.IntPerFrame(), ErrFrameShape)
	}
	return nil
}

// Arch holds the resolved architecture parameters of a bundle.
type Arch struct {
	Kind       string `yaml:"kind" json:"kind"`
	ContextLen int    `yaml:"context_len" json:"context_len"`

	// mamba2
	DModel    int `yaml:"d_model,omitempty" json:"d_model,omitempty"`
	DState    int `yaml:"d_state,omitempty" json:"d_state,omitempty"`
	NLayers   int `yaml:"n_layers,omitempty" json:"n_layers,omitempty"`
	HeadDim   int `yaml:"head_dim,omitempty" json:"head_dim,omitempty"`
	ChunkSize int `yaml:"chunk_size,omitempty" json:"chunk_size,omitempty"`

	// policy_mlp
	HiddenDim int `yaml:"hidden_dim,omitempty" json:"hidden_dim,omitempty"`
	TrunkDim  int `yaml:"trunk_dim,omitempty" json:"trunk_dim,omitempty"`
}

// DefaultWorldArch returns the standard world model sizes.
func DefaultWorldArch() Arch {
	return Arch{Kind: ArchMamba2, ContextLen: 10, DModel: 256, DState: 64, NLayers: 2, HeadDim: 64}
}

type layer struct {
	norm  *ssm.RMSNorm
	block *ssm.Block
}

type playerHeads struct {
	action, jumps, lcancel, hurtbox, ground, lastAttack *ssm.Linear
}

// WorldModel predicts the next frame from K context frames and the next
// controller inputs. It holds no state between calls: each Forward rescans
// the whole window.
type WorldModel struct {
	Config engine.EncodingConfig
	Arch   Arch

	encoder   *FrameEncoder
	frameProj *ssm.Linear
	layers    []layer
	finalNorm *ssm.RMSNorm
	ctrlProj  *ssm.Linear

	continuous *ssm.Linear
	binary     *ssm.Linear
	velocity   *ssm.Linear
	dynamics   *ssm.Linear
	players    [2]playerHeads
}

// NewWorldModel allocates a model with zeroed projections and heads.
func NewWorldModel(cfg engine.EncodingConfig, arch Arch) (*WorldModel, error) {
	if arch.ContextLen <= 0 || arch.NLayers <= 0 {
		return nil, fmt.Errorf("model: context %d, layers %d must be positive", arch.ContextLen, arch.NLayers)
	}
	d := arch.DModel
	m := &WorldModel{
		Config:    cfg,
		Arch:      arch,
		encoder:   NewFrameEncoder(cfg),
		frameProj: ssm.NewLinear(cfg.FrameDim(), d, true),
		finalNorm: ssm.NewRMSNorm(d),
		ctrlProj:  ssm.NewLinear(cfg.CtrlConditioningDim(), d, true),

		continuous: ssm.NewLinear(d, cfg.PredictedContinuousDim(), true),
		binary:     ssm.NewLinear(d, cfg.PredictedBinaryDim(), true),
		velocity:   ssm.NewLinear(d, cfg.PredictedVelocityDim(), true),
		dynamics:   ssm.NewLinear(d, cfg.PredictedDynamicsDim(), true),
	}
	bc := ssm.DefaultBlockConfig(d, arch.DState, arch.HeadDim)
	bc.ChunkSize = arch.ChunkSize
	for i := 0; i < arch.NLayers; i++ {
		b, err := ssm.NewBlock(bc)
		if err != nil {
			return nil, fmt.Errorf("model: layer %d: %w", i, err)
		}
		m.layers = append(m.layers, layer{norm: ssm.NewRMSNorm(d), block: b})
	}
	for p := range m.players {
		m.players[p] = playerHeads{
			action:     ssm.NewLinear(d, cfg.ActionVocab, true),
			jumps:      ssm.NewLinear(d, cfg.JumpsVocab, true),
			lcancel:    ssm.NewLinear(d, cfg.LCancelVocab, true),
			hurtbox:    ssm.NewLinear(d, cfg.HurtboxVocab, true),
			ground:     ssm.NewLinear(d, cfg.GroundVocab, true),
			lastAttack: ssm.NewLinear(d, cfg.LastAttackVocab, true),
		}
	}
	return m, nil
}

// ContextLen is the number of frames Forward expects.
func (m *WorldModel) ContextLen() int { return m.Arch.ContextLen }

// Params lists every tensor by its bundle name.
func (m *WorldModel) Params() []ssm.Param {
	ps := m.encoder.Params()
	ps = append(ps, m.frameProj.Params("frame_proj")...)
	for i, l := range m.layers {
		prefix := fmt.Sprintf("layers.%d", i)
		ps = append(ps, l.block.Params(prefix+".mamba")...)
		ps = append(ps, l.norm.Params(prefix+".norm")...)
	}
	ps = append(ps, m.finalNorm.Params("final_norm")...)
	ps = append(ps, m.ctrlProj.Params("ctrl_proj")...)
	ps = append(ps, m.continuous.Params("continuous_head")...)
	ps = append(ps, m.binary.Params("binary_head")...)
	ps = append(ps, m.velocity.Params("velocity_head")...)
	ps = append(ps, m.dynamics.Params("dynamics_head")...)
	for p, h := range m.players {
		prefix := fmt.Sprintf("p%d_", p)
		ps = append(ps, h.action.Params(prefix+"action_head")...)
		ps = append(ps, h.jumps.Params(prefix+"jumps_head")...)
		ps = append(ps, h.lcancel.Params(prefix+"l_cancel_head")...)
		ps = append(ps, h.hurtbox.Params(prefix+"hurtbox_head")...)
		ps = append(ps, h.ground.Params(prefix+"ground_head")...)
		ps = append(ps, h.lastAttack.Params(prefix+"last_attack_head")...)
	}
	return ps
}

// Randomize fills every weight from a seeded generator. Useful for smoke
// runs without a trained bundle.
func (m *WorldModel) Randomize(seed uint64) {
	ssm.InitParams(m.Params(), rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)))
}

// Forward runs the model over window (exactly ContextLen frames, oldest
// first) conditioned on nextCtrl (CtrlConditioningDim wide).
func (m *WorldModel) Forward(window engine.Window, nextCtrl []float32) (*Prediction, error) {
	if len(window) != m.Arch.ContextLen {
		return nil, fmt.Errorf("got %d frames, want %d: %w", len(window), m.Arch.ContextLen, ErrWindowLen)
	}
	if len(nextCtrl) != m.Config.CtrlConditioningDim() {
		return nil, fmt.Errorf("got %d, want %d: %w", len(nextCtrl), m.Config.CtrlConditioningDim(), ErrCtrlWidth)
	}

	x := make([][]float32, len(window))
	enc := make([]float32, m.Config.FrameDim())
	for t, f := range window {
		if err := checkFrame(m.Config, t, f); err != nil {
			return nil, err
		}
		x[t] = m.frameProj.Forward(m.encoder.Encode(f, enc))
	}

	for i, l := range m.layers {
		normed := make([][]float32, len(x))
		for t := range x {
			normed[t] = l.norm.Forward(x[t])
		}
		y, err := l.block.Forward(normed)
		if err != nil {
			return nil, fmt.Errorf("model: layer %d: %w", i, err)
		}
		for t := range x {
			for j := range x[t] {
				x[t][j] += y[t][j]
			}
		}
	}

	h := m.finalNorm.Forward(x[len(x)-1])
	ctrl := m.ctrlProj.Forward(nextCtrl)
	for j := range h {
		h[j] += ctrl[j]
	}

	pred := &Prediction{
		ContinuousDelta: m.continuous.Forward(h),
		VelocityDelta:   m.velocity.Forward(h),
		Dynamics:        m.dynamics.Forward(h),
		BinaryLogits:    m.binary.Forward(h),
	}
	for p, hd := range m.players {
		pred.Players[p] = CategoricalLogits{
			Action:     hd.action.Forward(h),
			Jumps:      hd.jumps.Forward(h),
			LCancel:    hd.lcancel.Forward(h),
			Hurtbox:    hd.hurtbox.Forward(h),
			Ground:     hd.ground.Forward(h),
			LastAttack: hd.lastAttack.Forward(h),
		}
	}
	return pred, nil
}

package ssm

import (
	"errors"
	"fmt"
	"math"
)

// ErrHeadDim is returned when HeadDim does not divide the inner width.
var ErrHeadDim = errors.New("ssm: head dim does not divide inner dim")

// BlockConfig sizes one selective scan block.
type BlockConfig struct {
	DModel    int `yaml:"d_model" json:"d_model"`
	DState    int `yaml:"d_state" json:"d_state"`
	DConv     int `yaml:"d_conv" json:"d_conv"`
	Expand    int `yaml:"expand" json:"expand"`
	HeadDim   int `yaml:"head_dim" json:"head_dim"`
	ChunkSize int `yaml:"chunk_size" json:"chunk_size"` // 0 = sequential
}

// DefaultBlockConfig returns kernel 4 and expansion 2 for the given widths.
func DefaultBlockConfig(dModel, dState, headDim int) BlockConfig {
	return BlockConfig{DModel: dModel, DState: dState, DConv: 4, Expand: 2, HeadDim: headDim}
}

func (c BlockConfig) DInner() int  { return c.Expand * c.DModel }
func (c BlockConfig) NHeads() int  { return c.DInner() / c.HeadDim }
func (c BlockConfig) ConvDim() int { return c.DInner() + 2*c.DState }

// InProjDim is the width of [z | xBC | dt].
func (c BlockConfig) InProjDim() int { return 2*c.DInner() + 2*c.DState + c.NHeads() }

// Validate reports a configuration that cannot be built.
func (c BlockConfig) Validate() error {
	if c.DModel <= 0 || c.DState <= 0 || c.DConv <= 0 || c.Expand <= 0 || c.HeadDim <= 0 {
		return fmt.Errorf("ssm: non-positive block dims %+v", c)
	}
	if c.DInner()%c.HeadDim != 0 {
		return fmt.Errorf("inner %d, head %d: %w", c.DInner(), c.HeadDim, ErrHeadDim)
	}
	return nil
}

// Block maps a sequence [L][DModel] to a sequence of the same shape, causally.
type Block struct {
	Config BlockConfig

	InProj  *Linear // no bias
	Conv    *Conv1D
	DtBias  []float32
	ALog    []float32
	D       []float32
	Norm    *RMSNorm
	OutProj *Linear // no bias

	// Scanner overrides the scan strategy; nil selects by ChunkSize.
	Scanner Scanner
}

// NewBlock allocates a block. Weights are zero except the decay parameter
// (log 1..NHeads), the skip weights and norm (ones).
func NewBlock(cfg BlockConfig) (*Block, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	nh := cfg.NHeads()
	b := &Block{
		Config:  cfg,
		InProj:  NewLinear(cfg.DModel, cfg.InProjDim(), false),
		Conv:    NewConv1D(cfg.ConvDim(), cfg.DConv),
		DtBias:  make([]float32, nh),
		ALog:    make([]float32, nh),
		D:       make([]float32, nh),
		Norm:    NewRMSNorm(cfg.DInner()),
		OutProj: NewLinear(cfg.DInner(), cfg.DModel, false),
	}
	for i := range b.ALog {
		b.ALog[i] = float32(math.Log(float64(i + 1)))
		b.D[i] = 1
	}
	return b, nil
}

// Params names every tensor under prefix.
func (b *Block) Params(prefix string) []Param {
	nh := b.Config.NHeads()
	var ps []Param
	ps = append(ps, b.InProj.Params(prefix+".in_proj")...)
	ps = append(ps, b.Conv.Params(prefix+".conv1d")...)
	ps = append(ps,
		Param{Name: prefix + ".dt_bias", Shape: []int{nh}, Data: b.DtBias, Init: InitUniform},
		Param{Name: prefix + ".A_log", Shape: []int{nh}, Data: b.ALog, Init: InitLogRamp},
		Param{Name: prefix + ".D", Shape: []int{nh}, Data: b.D, Init: InitOnes},
	)
	ps = append(ps, b.Norm.Params(prefix+".norm")...)
	ps = append(ps, b.OutProj.Params(prefix+".out_proj")...)
	return ps
}

// Forward runs the block over seq. Output row t depends only on rows ≤ t.
func (b *Block) Forward(seq [][]float32) ([][]float32, error) {
	cfg := b.Config
	L := len(seq)
	if L == 0 {
		return nil, nil
	}
	di, ds, nh, hp := cfg.DInner(), cfg.DState, cfg.NHeads(), cfg.HeadDim

	z := make([][]float32, L)
	xbc := make([][]float32, L)
	dt := make([][]float32, L)
	for t, u := range seq {
		if len(u) != cfg.DModel {
			return nil, fmt.Errorf("ssm: step %d width %d, want %d", t, len(u), cfg.DModel)
		}
		proj := b.InProj.Forward(u)
		z[t] = proj[:di]
		xbc[t] = proj[di : di+cfg.ConvDim()]
		raw := proj[di+cfg.ConvDim():]
		dt[t] = make([]float32, nh)
		for h := 0; h < nh; h++ {
			dt[t][h] = Softplus(raw[h] + b.DtBias[h])
		}
	}

	conv := b.Conv.Forward(xbc)
	in := ScanInput{
		X: make([][]float32, L), B: make([][]float32, L), C: make([][]float32, L),
		Dt: dt, A: make([]float32, nh),
		NHeads: nh, HeadDim: hp, DState: ds,
	}
	for h := range in.A {
		in.A[h] = -float32(math.Exp(float64(b.ALog[h])))
	}
	for t, row := range conv {
		for i := range row {
			row[i] = SiLU(row[i])
		}
		in.X[t] = row[:di]
		in.B[t] = row[di : di+ds]
		in.C[t] = row[di+ds : di+2*ds]
	}

	scanner := b.Scanner
	if scanner == nil {
		scanner = SelectScanner(cfg.ChunkSize, L)
	}
	y, err := scanner.Scan(in)
	if err != nil {
		return nil, fmt.Errorf("ssm: scan: %w", err)
	}

	out := make([][]float32, L)
	for t := range y {
		for h := 0; h < nh; h++ {
			for p := 0; p < hp; p++ {
				i := h*hp + p
				y[t][i] += in.X[t][i] * b.D[h]
			}
		}
		out[t] = b.OutProj.Forward(b.Norm.ForwardGated(y[t], z[t]))
	}
	return out, nil
}

package agent

import (
	"errors"
	"fmt"

	engine "github.com/ScavieFae/autonomous-world-model/engine"
)

// DefaultMaxContext bounds the context length Reconcile accepts.
const DefaultMaxContext = 64

var (
	// ErrNoFlagMatch is returned when no flag combination explains a policy's
	// input width.
	ErrNoFlagMatch = errors.New("agent: no encoding flag combination matches policy input width")
	// ErrMaskWidth is returned when a policy expects a group wider than the
	// world frame provides.
	ErrMaskWidth = errors.New("agent: policy feature group wider than world frame")
)

// flag is one toggle Reconcile may flip.
type flag struct {
	get func(engine.EncodingConfig) bool
	set func(*engine.EncodingConfig, bool)
}

// reconcileFlags is the searched flag set; bit i of a combination sets flag i.
var reconcileFlags = [...]flag{
	{
		get: func(c engine.EncodingConfig) bool { return c.StateAgeAsEmbed },
		set: func(c *engine.EncodingConfig, v bool) { c.StateAgeAsEmbed = v },
	},
	{
		get: func(c engine.EncodingConfig) bool { return c.StateFlags },
		set: func(c *engine.EncodingConfig, v bool) { c.StateFlags = v },
	},
	{
		get: func(c engine.EncodingConfig) bool { return c.Hitstun },
		set: func(c *engine.EncodingConfig, v bool) { c.Hitstun = v },
	},
	{
		get: func(c engine.EncodingConfig) bool { return c.Projectiles },
		set: func(c *engine.EncodingConfig, v bool) { c.Projectiles = v },
	},
}

func flagBits(cfg engine.EncodingConfig) int {
	bits := 0
	for i, f := range reconcileFlags {
		if f.get(cfg) {
			bits |= 1 << i
		}
	}
	return bits
}

func withFlagBits(cfg engine.EncodingConfig, bits int) engine.EncodingConfig {
	for i, f := range reconcileFlags {
		f.set(&cfg, bits&(1<<i) != 0)
	}
	return cfg
}

// Reconcile finds the encoding a policy was trained with from its stacked
// input width. It tries the world config's own flags first, then every other
// combination in ascending bit order, and returns the first config whose
// FrameDim divides inputWidth into a context of 1..maxContext frames.
func Reconcile(world engine.EncodingConfig, inputWidth, maxContext int) (engine.EncodingConfig, int, error) {
	own := flagBits(world)
	order := []int{own}
	for bits := 0; bits < 1<<len(reconcileFlags); bits++ {
		if bits != own {
			order = append(order, bits)
		}
	}
	for _, bits := range order {
		cfg := withFlagBits(world, bits)
		fd := cfg.FrameDim()
		if inputWidth%fd != 0 {
			continue
		}
		if k := inputWidth / fd; k >= 1 && k <= maxContext {
			return cfg, k, nil
		}
	}
	return engine.EncodingConfig{}, 0, fmt.Errorf("width %d, max context %d: %w", inputWidth, maxContext, ErrNoFlagMatch)
}

// FeatureMask projects world frames onto a policy's narrower layout. Per
// player it keeps the continuous prefix, the binary prefix and the full
// controller block, then the int-column prefix; the stage column is kept.
type FeatureMask struct {
	floats []int // absolute world float columns, in policy order
	ints   []int // absolute world int columns, in policy order
}

// NewFeatureMask builds the mask from world to policy, or returns nil when
// both layouts have identical widths.
func NewFeatureMask(world, policy engine.EncodingConfig) (*FeatureMask, error) {
	wl, pl := engine.NewLayout(world), engine.NewLayout(policy)
	if wl.FloatPerPlayer == pl.FloatPerPlayer && wl.IntPerPlayer == pl.IntPerPlayer {
		return nil, nil
	}
	if pl.Continuous.Len() > wl.Continuous.Len() || pl.Binary.Len() > wl.Binary.Len() || pl.IntPerPlayer > wl.IntPerPlayer {
		return nil, fmt.Errorf("continuous %d/%d, binary %d/%d, ints %d/%d: %w",
			pl.Continuous.Len(), wl.Continuous.Len(), pl.Binary.Len(), wl.Binary.Len(),
			pl.IntPerPlayer, wl.IntPerPlayer, ErrMaskWidth)
	}

	m := &FeatureMask{}
	for p := 0; p < 2; p++ {
		groups := []engine.Range{
			{Start: wl.Continuous.Start, End: wl.Continuous.Start + pl.Continuous.Len()},
			{Start: wl.Binary.Start, End: wl.Binary.Start + pl.Binary.Len()},
			wl.Controller,
		}
		for _, g := range groups {
			for i := g.Start; i < g.End; i++ {
				m.floats = append(m.floats, wl.PlayerFloat(p, i))
			}
		}
		for i := 0; i < pl.IntPerPlayer; i++ {
			m.ints = append(m.ints, wl.PlayerInt(p, i))
		}
	}
	m.ints = append(m.ints, wl.StageCol())
	return m, nil
}

// Width returns the projected float and int widths.
func (m *FeatureMask) Width() (floats, ints int) { return len(m.floats), len(m.ints) }

// Apply projects one world frame.
func (m *FeatureMask) Apply(f engine.Frame) engine.Frame {
	out := engine.Frame{Floats: make([]float32, len(m.floats)), Ints: make([]int32, len(m.ints))}
	for i, col := range m.floats {
		out.Floats[i] = f.Floats[col]
	}
	for i, col := range m.ints {
		out.Ints[i] = f.Ints[col]
	}
	return out
}

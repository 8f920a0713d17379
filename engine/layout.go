package engine

// Range is a half-open column range [Start, End).
type Range struct {
	Start int
	End   int
}

// Len returns the number of columns in the range.
func (r Range) Len() int { return r.End - r.Start }

// Int column indices within one player's int block.
const (
	IntAction = iota
	IntJumps
	IntCharacter
	IntLCancel
	IntHurtbox
	IntGround
	IntLastAttack
	IntStateAge // present only when StateAgeAsEmbed
)

// Button indices within a ControllerVector.
const (
	CtrlMainX = iota
	CtrlMainY
	CtrlCX
	CtrlCY
	CtrlShoulder
	CtrlA
	CtrlB
	CtrlX
	CtrlY
	CtrlZ
	CtrlL
	CtrlR
	CtrlDUp
)

// Layout holds the named per-player column positions for one EncodingConfig.
// All float indices are relative to the start of a player's float block; use
// PlayerFloat to get an absolute frame column. Absent optional features have
// index -1 or an empty range.
//
// Per-player float order:
//
//	core[percent x y shield] | velocity[5] | state_age? | hitlag | stocks |
//	hitstun? | combo | projectiles[3]? | binary[facing invuln on_ground flags?] |
//	controller[13]
type Layout struct {
	Config EncodingConfig

	Percent  int
	X        int
	Y        int
	Shield   int
	Velocity Range
	StateAge int
	Hitlag   int
	Stocks   int
	Hitstun  int
	Combo    int
	Projs    Range

	Continuous Range
	Binary     Range
	Controller Range

	Facing       int
	Invulnerable int
	OnGround     int

	FloatPerPlayer int
	IntPerPlayer   int
}

// NewLayout computes the named ranges for cfg.
func NewLayout(cfg EncodingConfig) Layout {
	l := Layout{Config: cfg, StateAge: -1, Hitstun: -1}

	l.Percent, l.X, l.Y, l.Shield = 0, 1, 2, 3
	offset := cfg.CoreContinuousDim()
	// offset = 4

	l.Velocity = Range{offset, offset + cfg.VelocityDim()}
	offset = l.Velocity.End
	// offset = 9

	if !cfg.StateAgeAsEmbed {
		l.StateAge = offset
		offset++
	}
	l.Hitlag = offset
	l.Stocks = offset + 1
	offset += 2
	if cfg.Hitstun {
		l.Hitstun = offset
		offset++
	}
	l.Combo = offset
	offset++

	l.Projs = Range{offset, offset + cfg.ProjectileContinuousDim()}
	offset = l.Projs.End

	l.Continuous = Range{0, offset}
	// offset = ContinuousDim

	l.Binary = Range{offset, offset + cfg.BinaryDim()}
	l.Facing = offset
	l.Invulnerable = offset + 1
	l.OnGround = offset + 2
	offset = l.Binary.End

	l.Controller = Range{offset, offset + ControllerDim}
	offset = l.Controller.End
	// offset = FloatPerPlayer

	l.FloatPerPlayer = offset
	l.IntPerPlayer = cfg.IntPerPlayer()
	return l
}

// PlayerFloat returns the absolute float column of a per-player index.
func (l Layout) PlayerFloat(player, idx int) int { return player*l.FloatPerPlayer + idx }

// PlayerInt returns the absolute int column of a per-player index.
func (l Layout) PlayerInt(player, idx int) int { return player*l.IntPerPlayer + idx }

// StageCol is the shared stage column, after both players' int blocks.
func (l Layout) StageCol() int { return 2 * l.IntPerPlayer }

// DynamicsTargets lists, per player, the float columns written absolutely
// from the dynamics head in head order: hitlag, stocks, combo, hitstun?.
func (l Layout) DynamicsTargets() []int {
	cols := []int{l.Hitlag, l.Stocks, l.Combo}
	if l.Hitstun >= 0 {
		cols = append(cols, l.Hitstun)
	}
	return cols
}

// ---------------------------------------------------------------------------
// Frames
// ---------------------------------------------------------------------------

// Frame is one time step of encoded state for both players plus the stage.
// Frames are treated as immutable once appended to a history; derive the next
// frame with Clone.
type Frame struct {
	Floats []float32
	Ints   []int32
}

// NewFrame allocates a zeroed frame sized for cfg.
func NewFrame(cfg EncodingConfig) Frame {
	return Frame{
		Floats: make([]float32, cfg.FloatPerFrame()),
		Ints:   make([]int32, cfg.IntPerFrame()),
	}
}

// Clone returns a deep copy.
func (f Frame) Clone() Frame {
	out := Frame{
		Floats: make([]float32, len(f.Floats)),
		Ints:   make([]int32, len(f.Ints)),
	}
	copy(out.Floats, f.Floats)
	copy(out.Ints, f.Ints)
	return out
}

// Window is the ordered context of the most recent K frames, oldest first.
type Window []Frame

// Last returns the newest frame in the window.
func (w Window) Last() Frame { return w[len(w)-1] }

// PlayerController returns the controller block a player stored in f.
func (l Layout) PlayerController(f Frame, player int) ControllerVector {
	var c ControllerVector
	copy(c[:], f.Floats[l.PlayerFloat(player, l.Controller.Start):l.PlayerFloat(player, l.Controller.End)])
	return c
}

// SetController writes a player's controller block into f.
func (l Layout) SetController(f Frame, player int, c ControllerVector) {
	copy(f.Floats[l.PlayerFloat(player, l.Controller.Start):], c[:])
}

// MirrorFrame swaps the two players' float and int blocks, leaving the shared
// stage column in place. Mirroring twice yields the original frame.
func (l Layout) MirrorFrame(f Frame) Frame {
	out := f.Clone()
	fp := l.FloatPerPlayer
	copy(out.Floats[:fp], f.Floats[fp:2*fp])
	copy(out.Floats[fp:2*fp], f.Floats[:fp])
	ip := l.IntPerPlayer
	copy(out.Ints[:ip], f.Ints[ip:2*ip])
	copy(out.Ints[ip:2*ip], f.Ints[:ip])
	return out
}

// MirrorWindow mirrors every frame of w.
func (l Layout) MirrorWindow(w Window) Window {
	out := make(Window, len(w))
	for i, f := range w {
		out[i] = l.MirrorFrame(f)
	}
	return out
}

// ---------------------------------------------------------------------------
// Controller vectors
// ---------------------------------------------------------------------------

// ControllerVector is one player's input for one step, every value in [0,1].
// Stick axes center at 0.5; buttons are 0 or 1.
type ControllerVector [ControllerDim]float32

// NeutralController returns centered sticks, no shoulder, no buttons.
func NeutralController() ControllerVector {
	var c ControllerVector
	c[CtrlMainX], c[CtrlMainY], c[CtrlCX], c[CtrlCY] = 0.5, 0.5, 0.5, 0.5
	return c
}

// Buttons returns the 8 button states as booleans.
func (c ControllerVector) Buttons() [NumButtons]bool {
	var b [NumButtons]bool
	for i := range b {
		b[i] = c[CtrlA+i] > 0.5
	}
	return b
}

// PressEvents returns, per button, 1 if it is held in c and was not held in prev.
func PressEvents(prev, c ControllerVector) [NumButtons]float32 {
	var out [NumButtons]float32
	pb, cb := prev.Buttons(), c.Buttons()
	for i := range out {
		if cb[i] && !pb[i] {
			out[i] = 1
		}
	}
	return out
}

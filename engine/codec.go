package engine

import "math"

// Codec converts between external PlayerState records and frame vectors.
// EncodePlayer and DecodePlayer are inverses for in-range records, up to
// one fixed-point step.
type Codec struct {
	Layout Layout
	cfg    EncodingConfig
}

// NewCodec builds a codec for cfg.
func NewCodec(cfg EncodingConfig) Codec {
	return Codec{Layout: NewLayout(cfg), cfg: cfg}
}

func fixedToFloat(v int64, scale float32) float32 {
	return float32(float64(v) / FixedPointScale * float64(scale))
}

func floatToFixed(f, scale float32) int64 {
	return int64(math.Round(float64(f) / float64(scale) * FixedPointScale))
}

func unitToFloat(v int64, scale float32) float32 {
	return float32(float64(v) * float64(scale))
}

func floatToUnit(f, scale float32) int64 {
	return int64(math.Round(float64(f) / float64(scale)))
}

func clampInt(v, lo, hi int64) int64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func boolFloat(b bool) float32 {
	if b {
		return 1
	}
	return 0
}

// EncodePlayer writes one player's floats and ints. Fields the record does
// not carry (combo, hitstun, projectiles, state flags, invulnerability) are
// zero; the controller block is neutral. Categoricals saturate at vocab-1.
func (c Codec) EncodePlayer(p PlayerState) ([]float32, []int32) {
	l := c.Layout
	cfg := c.cfg
	floats := make([]float32, l.FloatPerPlayer)
	ints := make([]int32, l.IntPerPlayer)

	floats[l.Percent] = unitToFloat(int64(p.Percent), cfg.PercentScale)
	floats[l.X] = fixedToFloat(int64(p.X), cfg.XYScale)
	floats[l.Y] = fixedToFloat(int64(p.Y), cfg.XYScale)
	floats[l.Shield] = fixedToFloat(int64(p.ShieldStrength), cfg.ShieldScale)

	v := l.Velocity.Start
	floats[v+0] = fixedToFloat(int64(p.SpeedAirX), cfg.VelocityScale)
	floats[v+1] = fixedToFloat(int64(p.SpeedY), cfg.VelocityScale)
	floats[v+2] = fixedToFloat(int64(p.SpeedGroundX), cfg.VelocityScale)
	floats[v+3] = fixedToFloat(int64(p.SpeedAttackX), cfg.VelocityScale)
	floats[v+4] = fixedToFloat(int64(p.SpeedAttackY), cfg.VelocityScale)

	if l.StateAge >= 0 {
		floats[l.StateAge] = unitToFloat(int64(p.StateAge), cfg.StateAgeScale)
	}
	floats[l.Hitlag] = unitToFloat(int64(p.Hitlag), cfg.HitlagScale)
	floats[l.Stocks] = unitToFloat(int64(p.Stocks), cfg.StocksScale)

	floats[l.Facing] = boolFloat(p.Facing != 0)
	floats[l.OnGround] = boolFloat(p.OnGround != 0)

	neutral := NeutralController()
	copy(floats[l.Controller.Start:], neutral[:])

	ints[IntAction] = int32(clampInt(int64(p.ActionState), 0, int64(cfg.ActionVocab-1)))
	ints[IntJumps] = int32(clampInt(int64(p.JumpsLeft), 0, int64(cfg.JumpsVocab-1)))
	ints[IntCharacter] = int32(clampInt(int64(p.Character), 0, int64(cfg.CharacterVocab-1)))
	if cfg.StateAgeAsEmbed {
		ints[IntStateAge] = int32(clampInt(int64(p.StateAge), 0, int64(cfg.StateAgeEmbedVocab-1)))
	}
	return floats, ints
}

// DecodePlayer converts one player's floats and ints back to a record.
// Unsigned fields saturate at zero and at their type width; stocks at 0..4.
func (c Codec) DecodePlayer(floats []float32, ints []int32) PlayerState {
	l := c.Layout
	cfg := c.cfg
	var p PlayerState

	p.X = int32(clampInt(floatToFixed(floats[l.X], cfg.XYScale), math.MinInt32, math.MaxInt32))
	p.Y = int32(clampInt(floatToFixed(floats[l.Y], cfg.XYScale), math.MinInt32, math.MaxInt32))
	p.Percent = uint16(clampInt(floatToUnit(floats[l.Percent], cfg.PercentScale), 0, math.MaxUint16))
	p.ShieldStrength = uint16(clampInt(floatToFixed(floats[l.Shield], cfg.ShieldScale), 0, math.MaxUint16))

	v := l.Velocity.Start
	speed := func(i int) int16 {
		return int16(clampInt(floatToFixed(floats[v+i], cfg.VelocityScale), math.MinInt16, math.MaxInt16))
	}
	p.SpeedAirX = speed(0)
	p.SpeedY = speed(1)
	p.SpeedGroundX = speed(2)
	p.SpeedAttackX = speed(3)
	p.SpeedAttackY = speed(4)

	if l.StateAge >= 0 {
		p.StateAge = uint16(clampInt(floatToUnit(floats[l.StateAge], cfg.StateAgeScale), 0, math.MaxUint16))
	} else if len(ints) > IntStateAge {
		p.StateAge = uint16(clampInt(int64(ints[IntStateAge]), 0, math.MaxUint16))
	}
	p.Hitlag = uint8(clampInt(floatToUnit(floats[l.Hitlag], cfg.HitlagScale), 0, math.MaxUint8))
	p.Stocks = uint8(clampInt(floatToUnit(floats[l.Stocks], cfg.StocksScale), 0, 4))

	if floats[l.Facing] > 0.5 {
		p.Facing = 1
	}
	if floats[l.OnGround] > 0.5 {
		p.OnGround = 1
	}
	p.ActionState = uint16(clampInt(int64(ints[IntAction]), 0, math.MaxUint16))
	p.JumpsLeft = uint8(clampInt(int64(ints[IntJumps]), 0, math.MaxUint8))
	p.Character = uint8(clampInt(int64(ints[IntCharacter]), 0, math.MaxUint8))
	return p
}

// EncodeSession builds a frame from both players of a session record.
func (c Codec) EncodeSession(s SessionState) Frame {
	l := c.Layout
	f := NewFrame(c.cfg)
	for i, p := range s.Players {
		floats, ints := c.EncodePlayer(p)
		copy(f.Floats[l.PlayerFloat(i, 0):], floats)
		copy(f.Ints[l.PlayerInt(i, 0):], ints)
	}
	f.Ints[l.StageCol()] = int32(clampInt(int64(s.Stage), 0, int64(c.cfg.StageVocab-1)))
	return f
}

// DecodeSession converts a frame into an active session record at frameNum.
// Only the fields a frame carries are set.
func (c Codec) DecodeSession(f Frame, frameNum uint32) SessionState {
	l := c.Layout
	s := SessionState{Status: StatusActive, Frame: frameNum}
	fp, ip := l.FloatPerPlayer, l.IntPerPlayer
	for i := range s.Players {
		s.Players[i] = c.DecodePlayer(f.Floats[i*fp:(i+1)*fp], f.Ints[i*ip:(i+1)*ip])
	}
	s.Stage = uint8(clampInt(int64(f.Ints[l.StageCol()]), 0, math.MaxUint8))
	return s
}

// ---------------------------------------------------------------------------
// Controllers
// ---------------------------------------------------------------------------

// ControllerFromInput maps a raw controller sample to [0,1] values.
// Sticks map -128..127 to 0..1; the shoulder is the larger trigger.
func ControllerFromInput(in ControllerInput) ControllerVector {
	var c ControllerVector
	c[CtrlMainX] = float32(int(in.StickX)+128) / 255
	c[CtrlMainY] = float32(int(in.StickY)+128) / 255
	c[CtrlCX] = float32(int(in.CStickX)+128) / 255
	c[CtrlCY] = float32(int(in.CStickY)+128) / 255
	c[CtrlShoulder] = float32(max(in.TriggerL, in.TriggerR)) / 255

	c[CtrlA] = boolFloat(in.Buttons&BitA != 0)
	c[CtrlB] = boolFloat(in.Buttons&BitB != 0)
	c[CtrlX] = boolFloat(in.Buttons&BitX != 0)
	c[CtrlY] = boolFloat(in.Buttons&BitY != 0)
	c[CtrlZ] = boolFloat(in.Buttons&BitZ != 0)
	c[CtrlL] = boolFloat(in.ButtonsExt&BitL != 0)
	c[CtrlR] = boolFloat(in.ButtonsExt&BitR != 0)
	c[CtrlDUp] = boolFloat(in.ButtonsExt&BitDUp != 0)
	return c
}

// InputFromController is the inverse of ControllerFromInput up to the
// 1/255 quantization. The shoulder value is written to both triggers.
func InputFromController(c ControllerVector) ControllerInput {
	axis := func(v float32) int8 {
		return int8(clampInt(int64(math.Round(float64(v)*255))-128, math.MinInt8, math.MaxInt8))
	}
	var in ControllerInput
	in.StickX = axis(c[CtrlMainX])
	in.StickY = axis(c[CtrlMainY])
	in.CStickX = axis(c[CtrlCX])
	in.CStickY = axis(c[CtrlCY])
	trig := uint8(clampInt(int64(math.Round(float64(c[CtrlShoulder])*255)), 0, math.MaxUint8))
	in.TriggerL, in.TriggerR = trig, trig

	b := c.Buttons()
	bits := [...]struct {
		btn int
		ext bool
		bit uint8
	}{
		{CtrlA, false, BitA}, {CtrlB, false, BitB}, {CtrlX, false, BitX},
		{CtrlY, false, BitY}, {CtrlZ, false, BitZ},
		{CtrlL, true, BitL}, {CtrlR, true, BitR}, {CtrlDUp, true, BitDUp},
	}
	for _, m := range bits {
		if !b[m.btn-CtrlA] {
			continue
		}
		if m.ext {
			in.ButtonsExt |= m.bit
		} else {
			in.Buttons |= m.bit
		}
	}
	return in
}

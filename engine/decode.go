package engine

// PlayerRecord is the visualizer-facing summary of one player, in unscaled
// game units. Field names are part of the match output contract.
type PlayerRecord struct {
	Percent        float64 `json:"percent"`
	X              float64 `json:"x"`
	Y              float64 `json:"y"`
	ShieldStrength float64 `json:"shield_strength"`
	SpeedAirX      float64 `json:"speed_air_x"`
	SpeedY         float64 `json:"speed_y"`
	SpeedGroundX   float64 `json:"speed_ground_x"`
	SpeedAttackX   float64 `json:"speed_attack_x"`
	SpeedAttackY   float64 `json:"speed_attack_y"`
	StateAge       float64 `json:"state_age"`
	Hitlag         float64 `json:"hitlag"`
	Stocks         float64 `json:"stocks"`
	ComboCount     float64 `json:"combo_count"`
	Facing         float64 `json:"facing"`
	OnGround       float64 `json:"on_ground"`
	ActionState    int     `json:"action_state"`
	JumpsLeft      int     `json:"jumps_left"`
	Character      int     `json:"character"`
}

// FrameRecord is one decoded frame of the match output.
type FrameRecord struct {
	Players [2]PlayerRecord `json:"players"`
	Stage   int             `json:"stage"`
}

func unscale(v, scale float32) float64 { return float64(v) / float64(scale) }

func threshold(v float32) float64 {
	if v > 0.5 {
		return 1
	}
	return 0
}

// DecodeFrame converts an encoded frame to its output record.
func (l Layout) DecodeFrame(f Frame) FrameRecord {
	cfg := l.Config
	var out FrameRecord
	for p := 0; p < 2; p++ {
		at := func(idx int) float32 { return f.Floats[l.PlayerFloat(p, idx)] }
		v := l.Velocity.Start
		r := PlayerRecord{
			Percent:        unscale(at(l.Percent), cfg.PercentScale),
			X:              unscale(at(l.X), cfg.XYScale),
			Y:              unscale(at(l.Y), cfg.XYScale),
			ShieldStrength: unscale(at(l.Shield), cfg.ShieldScale),
			SpeedAirX:      unscale(at(v), cfg.VelocityScale),
			SpeedY:         unscale(at(v+1), cfg.VelocityScale),
			SpeedGroundX:   unscale(at(v+2), cfg.VelocityScale),
			SpeedAttackX:   unscale(at(v+3), cfg.VelocityScale),
			SpeedAttackY:   unscale(at(v+4), cfg.VelocityScale),
			Hitlag:         unscale(at(l.Hitlag), cfg.HitlagScale),
			Stocks:         unscale(at(l.Stocks), cfg.StocksScale),
			ComboCount:     unscale(at(l.Combo), cfg.ComboCountScale),
			Facing:         threshold(at(l.Facing)),
			OnGround:       threshold(at(l.OnGround)),
			ActionState:    int(f.Ints[l.PlayerInt(p, IntAction)]),
			JumpsLeft:      int(f.Ints[l.PlayerInt(p, IntJumps)]),
			Character:      int(f.Ints[l.PlayerInt(p, IntCharacter)]),
		}
		if cfg.StateAgeAsEmbed {
			r.StateAge = float64(f.Ints[l.PlayerInt(p, IntStateAge)])
		} else {
			r.StateAge = unscale(at(l.StateAge), cfg.StateAgeScale)
		}
		out.Players[p] = r
	}
	out.Stage = int(f.Ints[l.StageCol()])
	return out
}

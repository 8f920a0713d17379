package engine

import "math"

// Physical ranges enforced after every model step, in game units.
var (
	PercentRange = [2]float32{0, 999}
	XRange       = [2]float32{-300, 300}
	YRange       = [2]float32{-200, 300}
	ShieldRange  = [2]float32{0, 60}
	StocksRange  = [2]float32{0, 4}
	HitlagRange  = [2]float32{0, 50}
	ComboRange   = [2]float32{0, 50}
	HitstunRange = [2]float32{0, 50}
)

func clampScaled(v float32, r [2]float32, scale float32) float32 {
	lo, hi := r[0]*scale, r[1]*scale
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// ClampFrame saturates every ranged field of both players in place.
// It never fails; clamping an already clamped frame changes nothing.
func (l Layout) ClampFrame(f Frame) {
	cfg := l.Config
	for p := 0; p < 2; p++ {
		at := func(idx int) *float32 { return &f.Floats[l.PlayerFloat(p, idx)] }
		*at(l.Percent) = clampScaled(*at(l.Percent), PercentRange, cfg.PercentScale)
		*at(l.X) = clampScaled(*at(l.X), XRange, cfg.XYScale)
		*at(l.Y) = clampScaled(*at(l.Y), YRange, cfg.XYScale)
		*at(l.Shield) = clampScaled(*at(l.Shield), ShieldRange, cfg.ShieldScale)
		*at(l.Hitlag) = clampScaled(*at(l.Hitlag), HitlagRange, cfg.HitlagScale)
		*at(l.Stocks) = clampScaled(*at(l.Stocks), StocksRange, cfg.StocksScale)
		*at(l.Combo) = clampScaled(*at(l.Combo), ComboRange, cfg.ComboCountScale)
		if l.Hitstun >= 0 {
			*at(l.Hitstun) = clampScaled(*at(l.Hitstun), HitstunRange, cfg.HitstunScale)
		}
	}
}

// AdvanceStateAge applies the state-age rule to next given the previous
// frame: a player whose action index is unchanged ages by one frame
// (saturating at MaxStateAge), otherwise the age resets to zero.
func (l Layout) AdvanceStateAge(prev, next Frame) {
	cfg := l.Config
	limit := cfg.MaxStateAge()
	for p := 0; p < 2; p++ {
		act := l.PlayerInt(p, IntAction)
		same := next.Ints[act] == prev.Ints[act]

		if cfg.StateAgeAsEmbed {
			col := l.PlayerInt(p, IntStateAge)
			if same {
				next.Ints[col] = int32(min(int(prev.Ints[col])+1, limit))
			} else {
				next.Ints[col] = 0
			}
			continue
		}

		col := l.PlayerFloat(p, l.StateAge)
		if same {
			// Recount from the rounded integer age so float error never accumulates.
			age := int(math.Round(float64(prev.Floats[col]) / float64(cfg.StateAgeScale)))
			age = max(min(age+1, limit), 0)
			next.Floats[col] = unitToFloat(int64(age), cfg.StateAgeScale)
		} else {
			next.Floats[col] = 0
		}
	}
}

// PlayerStateAge reads a player's age in frames from f.
func (l Layout) PlayerStateAge(f Frame, player int) int {
	if l.Config.StateAgeAsEmbed {
		return int(f.Ints[l.PlayerInt(player, IntStateAge)])
	}
	return int(math.Round(float64(f.Floats[l.PlayerFloat(player, l.StateAge)]) / float64(l.Config.StateAgeScale)))
}

package rollout

import engine "github.com/ScavieFae/autonomous-world-model/engine"

// Conditioning builds the controller vector the world model is conditioned
// on. Each of the 1+Lookahead steps is
//
//	p0 controller | p1 controller | p0 presses | p1 presses
//
// with the press blocks present only when PressEvents is set. Future steps
// repeat the current pair, so their press events are zero.
func Conditioning(cfg engine.EncodingConfig, prev, cur [2]engine.ControllerVector) []float32 {
	out := make([]float32, 0, cfg.CtrlConditioningDim())
	for step := 0; step <= cfg.Lookahead; step++ {
		out = append(out, cur[0][:]...)
		out = append(out, cur[1][:]...)
		if !cfg.PressEvents {
			continue
		}
		for p := 0; p < 2; p++ {
			if step == 0 {
				presses := engine.PressEvents(prev[p], cur[p])
				out = append(out, presses[:]...)
			} else {
				out = append(out, make([]float32, engine.NumButtons)...)
			}
		}
	}
	return out
}

package rollout

import (
	"fmt"

	engine "github.com/ScavieFae/autonomous-world-model/engine"
	"github.com/ScavieFae/autonomous-world-model/engine/model"
)

type headWidth struct {
	name      string
	got, want int
}

// CheckPrediction verifies every head of pred has the width cfg implies.
func CheckPrediction(cfg engine.EncodingConfig, pred *model.Prediction) error {
	if pred == nil {
		return fmt.Errorf("nil prediction: %w", ErrPredictionShape)
	}
	heads := []headWidth{
		{"continuous", len(pred.ContinuousDelta), cfg.PredictedContinuousDim()},
		{"velocity", len(pred.VelocityDelta), cfg.PredictedVelocityDim()},
		{"dynamics", len(pred.Dynamics), cfg.PredictedDynamicsDim()},
		{"binary", len(pred.BinaryLogits), cfg.PredictedBinaryDim()},
	}
	for p, c := range pred.Players {
		prefix := fmt.Sprintf("p%d ", p)
		heads = append(heads,
			headWidth{prefix + "action", len(c.Action), cfg.ActionVocab},
			headWidth{prefix + "jumps", len(c.Jumps), cfg.JumpsVocab},
			headWidth{prefix + "l_cancel", len(c.LCancel), cfg.LCancelVocab},
			headWidth{prefix + "hurtbox", len(c.Hurtbox), cfg.HurtboxVocab},
			headWidth{prefix + "ground", len(c.Ground), cfg.GroundVocab},
			headWidth{prefix + "last_attack", len(c.LastAttack), cfg.LastAttackVocab},
		)
	}
	for _, h := range heads {
		if h.got != h.want {
			return fmt.Errorf("%s head has %d values, want %d: %w", h.name, h.got, h.want, ErrPredictionShape)
		}
	}
	return nil
}

// Integrate derives the frame that follows prev from a prediction and the
// controllers both players used:
//
//   - core continuous and velocity fields add their predicted deltas
//   - hitlag, stocks, combo (and hitstun) take the predicted value
//   - binary flags are set where the logit is positive
//   - each player's controller block is overwritten with ctrls
//   - categoricals take the argmax; character and stage carry over
//   - state age follows the age rule, then every range is clamped
//
// prev is not modified. pred must pass CheckPrediction.
func Integrate(l engine.Layout, prev engine.Frame, pred *model.Prediction, ctrls [2]engine.ControllerVector) engine.Frame {
	next := prev.Clone()
	cfg := l.Config
	core := cfg.CoreContinuousDim()
	vel := cfg.VelocityDim()
	dyn := l.DynamicsTargets()
	bin := l.Binary.Len()

	for p := 0; p < 2; p++ {
		at := func(idx int) *float32 { return &next.Floats[l.PlayerFloat(p, idx)] }

		for i := 0; i < core; i++ {
			*at(i) += pred.ContinuousDelta[p*core+i]
		}
		for i := 0; i < vel; i++ {
			*at(l.Velocity.Start + i) += pred.VelocityDelta[p*vel+i]
		}
		for i, col := range dyn {
			*at(col) = pred.Dynamics[p*len(dyn)+i]
		}
		for i := 0; i < bin; i++ {
			v := float32(0)
			if pred.BinaryLogits[p*bin+i] > 0 {
				v = 1
			}
			*at(l.Binary.Start + i) = v
		}
		l.SetController(next, p, ctrls[p])

		heads := pred.Players[p]
		next.Ints[l.PlayerInt(p, engine.IntAction)] = int32(model.Argmax(heads.Action))
		next.Ints[l.PlayerInt(p, engine.IntJumps)] = int32(model.Argmax(heads.Jumps))
		next.Ints[l.PlayerInt(p, engine.IntLCancel)] = int32(model.Argmax(heads.LCancel))
		next.Ints[l.PlayerInt(p, engine.IntHurtbox)] = int32(model.Argmax(heads.Hurtbox))
		next.Ints[l.PlayerInt(p, engine.IntGround)] = int32(model.Argmax(heads.Ground))
		next.Ints[l.PlayerInt(p, engine.IntLastAttack)] = int32(model.Argmax(heads.LastAttack))
	}

	l.AdvanceStateAge(prev, next)
	l.ClampFrame(next)
	return next
}

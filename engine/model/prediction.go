package model

// CategoricalLogits holds one player's categorical heads, one logit per
// vocabulary entry.
type CategoricalLogits struct {
	Action     []float32
	Jumps      []float32
	LCancel    []float32
	Hurtbox    []float32
	Ground     []float32
	LastAttack []float32
}

// Prediction is the world model output for one step.
//
//	ContinuousDelta [8]   percent, x, y, shield deltas for p0 then p1
//	VelocityDelta   [10]  5 velocity deltas per player
//	Dynamics        [6|8] absolute hitlag, stocks, combo (, hitstun) per player
//	BinaryLogits    [2*BinaryDim]
type Prediction struct {
	ContinuousDelta []float32
	VelocityDelta   []float32
	Dynamics        []float32
	BinaryLogits    []float32
	Players         [2]CategoricalLogits
}

// Argmax returns the index of the largest logit; ties resolve to the lowest
// index. An empty slice yields 0.
func Argmax(logits []float32) int {
	best := 0
	for i, v := range logits {
		if v > logits[best] {
			best = i
		}
	}
	return best
}

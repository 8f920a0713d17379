package engine

import (
	"math/rand/v2"
	"testing"
)

func TestClampIdempotent(t *testing.T) {
	for _, hitstun := range []bool{false, true} {
		cfg := DefaultEncodingConfig()
		cfg.Hitstun = hitstun
		l := NewLayout(cfg)
		rng := rand.New(rand.NewPCG(3, 4))

		for i := 0; i < 500; i++ {
			f := NewFrame(cfg)
			for j := range f.Floats {
				f.Floats[j] = float32(rng.NormFloat64() * 40)
			}
			l.ClampFrame(f)
			once := f.Clone()
			l.ClampFrame(f)
			for j := range f.Floats {
				if f.Floats[j] != once.Floats[j] {
					t.Fatalf("hitstun=%v col %d: second clamp %v, first %v", hitstun, j, f.Floats[j], once.Floats[j])
				}
			}
		}
	}
}

func TestClampSaturates(t *testing.T) {
	cfg := DefaultEncodingConfig()
	l := NewLayout(cfg)
	f := NewFrame(cfg)
	f.Floats[l.PlayerFloat(0, l.X)] = 500 * cfg.XYScale
	f.Floats[l.PlayerFloat(0, l.Y)] = -1000 * cfg.XYScale
	f.Floats[l.PlayerFloat(1, l.Stocks)] = -2
	f.Floats[l.PlayerFloat(1, l.Percent)] = 20

	l.ClampFrame(f)

	if got, want := f.Floats[l.PlayerFloat(0, l.X)], 300*cfg.XYScale; got != want {
		t.Errorf("x = %v, want %v", got, want)
	}
	if got, want := f.Floats[l.PlayerFloat(0, l.Y)], -200*cfg.XYScale; got != want {
		t.Errorf("y = %v, want %v", got, want)
	}
	if got := f.Floats[l.PlayerFloat(1, l.Stocks)]; got != 0 {
		t.Errorf("stocks = %v, want 0", got)
	}
	if got, want := f.Floats[l.PlayerFloat(1, l.Percent)], 999*cfg.PercentScale; got != want {
		t.Errorf("percent = %v, want %v", got, want)
	}
}

func TestClampLeavesInRangeValues(t *testing.T) {
	cfg := DefaultEncodingConfig()
	l := NewLayout(cfg)
	w := GenerateSyntheticSeed(cfg, 1, StageFinalDestination, 2, 2)
	f := w[0].Clone()
	f.Floats[l.PlayerFloat(0, l.Percent)] = 0.42
	before := f.Clone()

	l.ClampFrame(f)
	for j := range f.Floats {
		if f.Floats[j] != before.Floats[j] {
			t.Errorf("col %d changed: %v -> %v", j, before.Floats[j], f.Floats[j])
		}
	}
}

func TestStateAgeFloatMode(t *testing.T) {
	cfg := DefaultEncodingConfig()
	l := NewLayout(cfg)
	prev := NewFrame(cfg)
	prev.Floats[l.PlayerFloat(0, l.StateAge)] = 5 * cfg.StateAgeScale
	prev.Floats[l.PlayerFloat(1, l.StateAge)] = 9 * cfg.StateAgeScale
	prev.Ints[l.PlayerInt(0, IntAction)] = 14
	prev.Ints[l.PlayerInt(1, IntAction)] = 20

	next := prev.Clone()
	next.Ints[l.PlayerInt(1, IntAction)] = 21
	l.AdvanceStateAge(prev, next)

	if got := l.PlayerStateAge(next, 0); got != 6 {
		t.Errorf("p0 age = %d, want 6", got)
	}
	if got := l.PlayerStateAge(next, 1); got != 0 {
		t.Errorf("p1 age = %d, want 0", got)
	}
}

func TestStateAgeEmbedModeSaturates(t *testing.T) {
	cfg := DefaultEncodingConfig()
	cfg.StateAgeAsEmbed = true
	l := NewLayout(cfg)
	prev := NewFrame(cfg)
	prev.Ints[l.PlayerInt(0, IntStateAge)] = int32(cfg.StateAgeEmbedVocab - 1)
	prev.Ints[l.PlayerInt(1, IntStateAge)] = 3

	next := prev.Clone()
	l.AdvanceStateAge(prev, next)

	if got, want := l.PlayerStateAge(next, 0), cfg.StateAgeEmbedVocab-1; got != want {
		t.Errorf("p0 age = %d, want %d", got, want)
	}
	if got := l.PlayerStateAge(next, 1); got != 4 {
		t.Errorf("p1 age = %d, want 4", got)
	}

	next2 := next.Clone()
	next2.Ints[l.PlayerInt(0, IntAction)] = 1
	l.AdvanceStateAge(next, next2)
	if got := l.PlayerStateAge(next2, 0); got != 0 {
		t.Errorf("p0 age after action change = %d, want 0", got)
	}
}

// TestStateAgeNoDrift runs the float counter for many frames.
func TestStateAgeNoDrift(t *testing.T) {
	cfg := DefaultEncodingConfig()
	l := NewLayout(cfg)
	prev := NewFrame(cfg)
	for i := 0; i < 5000; i++ {
		next := prev.Clone()
		l.AdvanceStateAge(prev, next)
		prev = next
	}
	if got := l.PlayerStateAge(prev, 0); got != 5000 {
		t.Errorf("age after 5000 frames = %d, want 5000", got)
	}
}

package model

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	engine "github.com/ScavieFae/autonomous-world-model/engine"
)

func smallWorldArch() Arch {
	return Arch{Kind: ArchMamba2, ContextLen: 4, DModel: 8, DState: 4, NLayers: 2, HeadDim: 4}
}

func smallPolicyArch() Arch {
	return Arch{Kind: ArchPolicyMLP, ContextLen: 3, HiddenDim: 16, TrunkDim: 8}
}

func newSmallWorld(t *testing.T, cfg engine.EncodingConfig, arch Arch, seed uint64) *WorldModel {
	t.Helper()
	m, err := NewWorldModel(cfg, arch)
	if err != nil {
		t.Fatalf("NewWorldModel: %v", err)
	}
	m.Randomize(seed)
	return m
}

func neutralCtrl(cfg engine.EncodingConfig) []float32 {
	ctrl := make([]float32, cfg.CtrlConditioningDim())
	n := engine.NeutralController()
	for i := 0; i < 2; i++ {
		copy(ctrl[i*engine.ControllerDim:], n[:])
	}
	return ctrl
}

func flatten(p *Prediction) []float32 {
	var out []float32
	out = append(out, p.ContinuousDelta...)
	out = append(out, p.VelocityDelta...)
	out = append(out, p.Dynamics...)
	out = append(out, p.BinaryLogits...)
	for _, c := range p.Players {
		out = append(out, c.Action...)
		out = append(out, c.Jumps...)
		out = append(out, c.LCancel...)
		out = append(out, c.Hurtbox...)
		out = append(out, c.Ground...)
		out = append(out, c.LastAttack...)
	}
	return out
}

func assertSame(t *testing.T, label string, got, want []float32, tol float64) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("%s: len %d, want %d", label, len(got), len(want))
	}
	for i := range want {
		if math.Abs(float64(got[i])-float64(want[i])) > tol*math.Max(1, math.Abs(float64(want[i]))) {
			t.Fatalf("%s: [%d] = %v, want %v", label, i, got[i], want[i])
		}
	}
}

func TestWorldModelOutputShapes(t *testing.T) {
	for _, hitstun := range []bool{false, true} {
		cfg := engine.DefaultEncodingConfig()
		cfg.Hitstun = hitstun
		cfg.PressEvents = true
		m := newSmallWorld(t, cfg, smallWorldArch(), 1)

		w := engine.GenerateSyntheticSeed(cfg, 4, engine.StageFinalDestination, 2, 2)
		pred, err := m.Forward(w, neutralCtrl(cfg))
		if err != nil {
			t.Fatalf("Forward: %v", err)
		}
		if len(pred.ContinuousDelta) != 8 {
			t.Errorf("continuous = %d, want 8", len(pred.ContinuousDelta))
		}
		if len(pred.VelocityDelta) != 10 {
			t.Errorf("velocity = %d, want 10", len(pred.VelocityDelta))
		}
		if len(pred.Dynamics) != cfg.PredictedDynamicsDim() {
			t.Errorf("dynamics = %d, want %d", len(pred.Dynamics), cfg.PredictedDynamicsDim())
		}
		if len(pred.BinaryLogits) != cfg.PredictedBinaryDim() {
			t.Errorf("binary = %d, want %d", len(pred.BinaryLogits), cfg.PredictedBinaryDim())
		}
		for p, c := range pred.Players {
			if len(c.Action) != cfg.ActionVocab || len(c.LastAttack) != cfg.LastAttackVocab {
				t.Errorf("p%d action/last_attack = %d/%d", p, len(c.Action), len(c.LastAttack))
			}
		}
	}
}

func TestWorldModelRejectsBadInputs(t *testing.T) {
	cfg := engine.DefaultEncodingConfig()
	m := newSmallWorld(t, cfg, smallWorldArch(), 1)
	w := engine.GenerateSyntheticSeed(cfg, 4, engine.StageBattlefield, 2, 2)

	if _, err := m.Forward(w[:3], neutralCtrl(cfg)); !errors.Is(err, ErrWindowLen) {
		t.Errorf("short window err = %v, want ErrWindowLen", err)
	}
	if _, err := m.Forward(w, make([]float32, 5)); !errors.Is(err, ErrCtrlWidth) {
		t.Errorf("ctrl err = %v, want ErrCtrlWidth", err)
	}
	bad := append(engine.Window{}, w...)
	bad[2] = engine.Frame{Floats: bad[2].Floats[:10], Ints: bad[2].Ints}
	if _, err := m.Forward(bad, neutralCtrl(cfg)); !errors.Is(err, ErrFrameShape) {
		t.Errorf("frame err = %v, want ErrFrameShape", err)
	}
}

func TestZeroWorldModelPredictsZero(t *testing.T) {
	cfg := engine.DefaultEncodingConfig()
	m, err := NewWorldModel(cfg, smallWorldArch())
	if err != nil {
		t.Fatal(err)
	}
	pred, err := m.Forward(engine.GenerateSyntheticSeed(cfg, 4, 32, 2, 2), neutralCtrl(cfg))
	if err != nil {
		t.Fatal(err)
	}
	for i, v := range flatten(pred) {
		if v != 0 {
			t.Fatalf("output[%d] = %v, want 0", i, v)
		}
	}
}

// TestWorldModelScanModesAgree runs the same weights with and without chunking.
func TestWorldModelScanModesAgree(t *testing.T) {
	cfg := engine.DefaultEncodingConfig()
	arch := smallWorldArch()
	seq := newSmallWorld(t, cfg, arch, 7)
	arch.ChunkSize = 2
	chunked := newSmallWorld(t, cfg, arch, 7)

	w := engine.GenerateSyntheticSeed(cfg, 4, 32, 2, 9)
	w[3].Floats[3] = 0.7 // perturb the last frame so the window is not constant

	a, err := seq.Forward(w, neutralCtrl(cfg))
	if err != nil {
		t.Fatal(err)
	}
	b, err := chunked.Forward(w, neutralCtrl(cfg))
	if err != nil {
		t.Fatal(err)
	}
	assertSame(t, "chunked", flatten(b), flatten(a), 1e-4)
}

func TestWorldModelIsDeterministic(t *testing.T) {
	cfg := engine.DefaultEncodingConfig()
	m := newSmallWorld(t, cfg, smallWorldArch(), 3)
	w := engine.GenerateSyntheticSeed(cfg, 4, 32, 2, 2)

	a, err := m.Forward(w, neutralCtrl(cfg))
	if err != nil {
		t.Fatal(err)
	}
	b, err := m.Forward(w, neutralCtrl(cfg))
	if err != nil {
		t.Fatal(err)
	}
	assertSame(t, "repeat", flatten(b), flatten(a), 0)
}

func TestPolicyForward(t *testing.T) {
	cfg := engine.DefaultEncodingConfig()
	p, err := NewPolicy(cfg, smallPolicyArch())
	if err != nil {
		t.Fatal(err)
	}
	p.Randomize(5)
	if p.InputDim() != 3*cfg.FrameDim() {
		t.Errorf("InputDim = %d, want %d", p.InputDim(), 3*cfg.FrameDim())
	}

	w := engine.GenerateSyntheticSeed(cfg, 6, 32, 2, 2)
	analog, _, err := p.Forward(w)
	if err != nil {
		t.Fatalf("Forward: %v", err)
	}
	for i, v := range analog {
		if v < 0 || v > 1 {
			t.Errorf("analog[%d] = %v, want in [0,1]", i, v)
		}
	}

	// Only the last ContextLen frames matter.
	w[0].Floats[0] = 9
	again, _, err := p.Forward(w)
	if err != nil {
		t.Fatal(err)
	}
	if again != analog {
		t.Errorf("analog changed with a frame outside the context: %v vs %v", again, analog)
	}

	if _, _, err := p.Forward(w[:2]); !errors.Is(err, ErrWindowLen) {
		t.Errorf("short window err = %v, want ErrWindowLen", err)
	}
}

func TestZeroPolicyIsCentered(t *testing.T) {
	cfg := engine.DefaultEncodingConfig()
	p, err := NewPolicy(cfg, smallPolicyArch())
	if err != nil {
		t.Fatal(err)
	}
	analog, buttons, err := p.Forward(engine.GenerateSyntheticSeed(cfg, 3, 32, 2, 2))
	if err != nil {
		t.Fatal(err)
	}
	for i := range analog {
		if analog[i] != 0.5 {
			t.Errorf("analog[%d] = %v, want 0.5", i, analog[i])
		}
	}
	for i := range buttons {
		if buttons[i] != 0 {
			t.Errorf("button logit[%d] = %v, want 0", i, buttons[i])
		}
	}
}

func TestWorldBundleRoundTrip(t *testing.T) {
	cfg := engine.DefaultEncodingConfig()
	cfg.StateAgeAsEmbed = true
	arch := smallWorldArch()
	src := newSmallWorld(t, cfg, arch, 11)

	dir := t.TempDir()
	if _, err := SaveBundle(dir, arch, &cfg, src.Params()); err != nil {
		t.Fatalf("SaveBundle: %v", err)
	}
	loaded, m, err := LoadWorldModel(dir)
	if err != nil {
		t.Fatalf("LoadWorldModel: %v", err)
	}
	if m.EncodingConfig() != cfg {
		t.Errorf("encoding = %+v, want %+v", m.EncodingConfig(), cfg)
	}
	if shape, ok := m.TensorShape("state_age_embed.weight"); !ok || shape[0] != cfg.StateAgeEmbedVocab {
		t.Errorf("state_age_embed shape = %v, %v", shape, ok)
	}

	w := engine.GenerateSyntheticSeed(cfg, 4, 32, 2, 2)
	want, err := src.Forward(w, neutralCtrl(cfg))
	if err != nil {
		t.Fatal(err)
	}
	got, err := loaded.Forward(w, neutralCtrl(cfg))
	if err != nil {
		t.Fatal(err)
	}
	assertSame(t, "loaded", flatten(got), flatten(want), 0)
}

func TestBundleChecksumMismatch(t *testing.T) {
	cfg := engine.DefaultEncodingConfig()
	src := newSmallWorld(t, cfg, smallWorldArch(), 2)
	dir := t.TempDir()
	m, err := SaveBundle(dir, src.Arch, nil, src.Params())
	if err != nil {
		t.Fatal(err)
	}

	path := filepath.Join(dir, m.WeightsFile)
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	raw[0] ^= 0xff
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		t.Fatal(err)
	}
	if _, _, err := LoadWorldModel(dir); !errors.Is(err, ErrChecksum) {
		t.Errorf("err = %v, want ErrChecksum", err)
	}
}

func TestBundleShapeAndKindMismatch(t *testing.T) {
	cfg := engine.DefaultEncodingConfig()
	src := newSmallWorld(t, cfg, smallWorldArch(), 2)
	dir := t.TempDir()
	m, err := SaveBundle(dir, src.Arch, nil, src.Params())
	if err != nil {
		t.Fatal(err)
	}

	wider := smallWorldArch()
	wider.DModel = 16
	other, err := NewWorldModel(cfg, wider)
	if err != nil {
		t.Fatal(err)
	}
	if err := m.LoadWeights(other.Params()); !errors.Is(err, ErrTensorShape) {
		t.Errorf("err = %v, want ErrTensorShape", err)
	}

	embed := cfg
	embed.StateAgeAsEmbed = true
	withAge, err := NewWorldModel(embed, smallWorldArch())
	if err != nil {
		t.Fatal(err)
	}
	if err := m.LoadWeights(withAge.Params()); !errors.Is(err, ErrMissingTensor) {
		t.Errorf("err = %v, want ErrMissingTensor", err)
	}

	if _, err := LoadPolicy(m, cfg, 4); !errors.Is(err, ErrArchKind) {
		t.Errorf("err = %v, want ErrArchKind", err)
	}
}

func TestPolicyBundleRoundTrip(t *testing.T) {
	cfg := engine.DefaultEncodingConfig()
	arch := smallPolicyArch()
	src, err := NewPolicy(cfg, arch)
	if err != nil {
		t.Fatal(err)
	}
	src.Randomize(4)

	dir := t.TempDir()
	if _, err := SaveBundle(dir, arch, nil, src.Params()); err != nil {
		t.Fatal(err)
	}
	m, err := LoadBundle(dir)
	if err != nil {
		t.Fatal(err)
	}
	width, err := m.PolicyInputDim()
	if err != nil {
		t.Fatal(err)
	}
	if width != 3*cfg.FrameDim() {
		t.Errorf("input width = %d, want %d", width, 3*cfg.FrameDim())
	}

	loaded, err := LoadPolicy(m, cfg, width/cfg.FrameDim())
	if err != nil {
		t.Fatalf("LoadPolicy: %v", err)
	}
	if loaded.Arch.HiddenDim != 16 || loaded.Arch.TrunkDim != 8 {
		t.Errorf("arch = %+v", loaded.Arch)
	}

	w := engine.GenerateSyntheticSeed(cfg, 3, 32, 2, 2)
	wantA, wantB, _ := src.Forward(w)
	gotA, gotB, err := loaded.Forward(w)
	if err != nil {
		t.Fatal(err)
	}
	if gotA != wantA || gotB != wantB {
		t.Errorf("loaded policy output differs: %v %v vs %v %v", gotA, gotB, wantA, wantB)
	}
}

func TestArgmax(t *testing.T) {
	cases := []struct {
		in   []float32
		want int
	}{
		{nil, 0},
		{[]float32{0, 0, 0}, 0},
		{[]float32{-1, 3, 2}, 1},
		{[]float32{1, 5, 5}, 1},
	}
	for _, tc := range cases {
		if got := Argmax(tc.in); got != tc.want {
			t.Errorf("Argmax(%v) = %d, want %d", tc.in, got, tc.want)
		}
	}
}

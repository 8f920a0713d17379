// internal/crank/crank_test.go
package crank

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	engine "github.com/ScavieFae/autonomous-world-model/engine"
	"github.com/ScavieFae/autonomous-world-model/engine/model"
	"github.com/ScavieFae/autonomous-world-model/engine/rollout"
)

const (
	sessionKey = "session"
	inputKey   = "input"
)

// holdPredictor predicts that nothing changes.
type holdPredictor struct {
	k      int
	layout engine.Layout
}

func (m *holdPredictor) ContextLen() int { return m.k }

func (m *holdPredictor) Forward(w engine.Window, _ []float32) (*model.Prediction, error) {
	l, cfg := m.layout, m.layout.Config
	f := w.Last()
	pred := &model.Prediction{
		ContinuousDelta: make([]float32, cfg.PredictedContinuousDim()),
		VelocityDelta:   make([]float32, cfg.PredictedVelocityDim()),
	}
	oneHot := func(n int, idx int32) []float32 {
		out := make([]float32, n)
		out[idx] = 1
		return out
	}
	for p := 0; p < 2; p++ {
		for _, col := range l.DynamicsTargets() {
			pred.Dynamics = append(pred.Dynamics, f.Floats[l.PlayerFloat(p, col)])
		}
		for i := l.Binary.Start; i < l.Binary.End; i++ {
			logit := float32(-1)
			if f.Floats[l.PlayerFloat(p, i)] > 0.5 {
				logit = 1
			}
			pred.BinaryLogits = append(pred.BinaryLogits, logit)
		}
		at := func(col int) int32 { return f.Ints[l.PlayerInt(p, col)] }
		pred.Players[p] = model.CategoricalLogits{
			Action:     oneHot(cfg.ActionVocab, at(engine.IntAction)),
			Jumps:      oneHot(cfg.JumpsVocab, at(engine.IntJumps)),
			LCancel:    oneHot(cfg.LCancelVocab, at(engine.IntLCancel)),
			Hurtbox:    oneHot(cfg.HurtboxVocab, at(engine.IntHurtbox)),
			Ground:     oneHot(cfg.GroundVocab, at(engine.IntGround)),
			LastAttack: oneHot(cfg.LastAttackVocab, at(engine.IntLastAttack)),
		}
	}
	return pred, nil
}

// truncatedPredictor drops the velocity head of every prediction.
type truncatedPredictor struct{ holdPredictor }

func (m *truncatedPredictor) Forward(w engine.Window, ctrl []float32) (*model.Prediction, error) {
	pred, err := m.holdPredictor.Forward(w, ctrl)
	if err != nil {
		return nil, err
	}
	pred.VelocityDelta = pred.VelocityDelta[:1]
	return pred, nil
}

type fixedAgent struct{ c engine.ControllerVector }

func (a fixedAgent) Controller(engine.Window, int) (engine.ControllerVector, error) { return a.c, nil }

func setupSession(t *testing.T, maxFrames uint32) (*MemoryLedger, engine.EncodingConfig) {
	t.Helper()
	cfg := engine.DefaultEncodingConfig()
	seed := engine.GenerateSyntheticSeed(cfg, 1, engine.StageFinalDestination, 2, 9)
	s := engine.NewCodec(cfg).DecodeSession(seed[0], 0)
	s.MaxFrames = maxFrames
	s.Seed = 42
	s.CreatedAt = 1000
	l := NewMemoryLedger()
	require.NoError(t, l.Write(context.Background(), sessionKey, engine.MarshalSession(s)))
	return l, cfg
}

func readSession(t *testing.T, l *MemoryLedger) engine.SessionState {
	t.Helper()
	data, err := l.Read(context.Background(), sessionKey)
	require.NoError(t, err)
	s, err := engine.UnmarshalSession(data)
	require.NoError(t, err)
	return s
}

func newTestCrank(l Ledger, cfg engine.EncodingConfig, k int) *Crank {
	c := New(&holdPredictor{k: k, layout: engine.NewLayout(cfg)}, cfg, l, sessionKey, inputKey, nil)
	c.now = func() time.Time { return time.Unix(5000, 0) }
	c.Poll = time.Millisecond
	return c
}

func TestTickCollectsContextThenWritesBack(t *testing.T) {
	ctx := context.Background()
	l, cfg := setupSession(t, 100)
	c := newTestCrank(l, cfg, 3)

	for i := 0; i < 2; i++ {
		advanced, err := c.Tick(ctx)
		require.NoError(t, err)
		assert.False(t, advanced)
		assert.Len(t, c.Window(), i+1)
	}
	assert.Equal(t, 1, l.Writes())

	advanced, err := c.Tick(ctx)
	require.NoError(t, err)
	assert.True(t, advanced)
	assert.Len(t, c.Window(), 3)

	s := readSession(t, l)
	assert.Equal(t, uint32(1), s.Frame)
	assert.Equal(t, engine.StatusActive, s.Status)
	assert.Equal(t, uint32(100), s.MaxFrames)
	assert.Equal(t, uint64(42), s.Seed)
	assert.Equal(t, int64(1000), s.CreatedAt)
	assert.Equal(t, int64(5000), s.LastUpdate)
	assert.Equal(t, uint8(engine.StageFinalDestination), s.Stage)
	for _, p := range s.Players {
		assert.Equal(t, uint8(4), p.Stocks)
	}
	assert.Equal(t, uint8(2), s.Players[0].Character)
	assert.Equal(t, uint8(9), s.Players[1].Character)

	advanced, err = c.Tick(ctx)
	require.NoError(t, err)
	assert.True(t, advanced)
	assert.Len(t, c.Window(), 3)
	assert.Equal(t, uint32(2), readSession(t, l).Frame)
}

func TestControllersFromInputBuffer(t *testing.T) {
	ctx := context.Background()
	l, cfg := setupSession(t, 100)
	layout := engine.NewLayout(cfg)
	c := newTestCrank(l, cfg, 1)

	buf := engine.InputBuffer{Frame: 0, P1Ready: true}
	buf.Player1.StickX = 127
	buf.Player1.Buttons = engine.BitA
	require.NoError(t, l.Write(ctx, inputKey, engine.MarshalInputBuffer(buf)))

	pressed := engine.NeutralController()
	pressed[engine.CtrlB] = 1
	c.Agents[1] = fixedAgent{pressed}

	advanced, err := c.Tick(ctx)
	require.NoError(t, err)
	require.True(t, advanced)

	// The next ingested frame carries the controllers that produced it.
	_, err = c.Tick(ctx)
	require.NoError(t, err)
	last := c.Window().Last()
	p0 := layout.PlayerController(last, 0)
	assert.InDelta(t, 1.0, p0[engine.CtrlMainX], 1e-6)
	assert.Equal(t, float32(1), p0[engine.CtrlA])
	assert.Equal(t, pressed, layout.PlayerController(last, 1))
}

func TestStaleInputFallsBackToNeutral(t *testing.T) {
	ctx := context.Background()
	l, cfg := setupSession(t, 100)
	layout := engine.NewLayout(cfg)
	c := newTestCrank(l, cfg, 1)

	buf := engine.InputBuffer{Frame: 7, P1Ready: true, P2Ready: true}
	buf.Player1.Buttons = engine.BitA
	require.NoError(t, l.Write(ctx, inputKey, engine.MarshalInputBuffer(buf)))

	for i := 0; i < 2; i++ {
		_, err := c.Tick(ctx)
		require.NoError(t, err)
	}
	last := c.Window().Last()
	assert.Equal(t, engine.NeutralController(), layout.PlayerController(last, 0))
	assert.Equal(t, engine.NeutralController(), layout.PlayerController(last, 1))
}

func TestRunStopsAtFrameBudget(t *testing.T) {
	l, cfg := setupSession(t, 3)
	c := newTestCrank(l, cfg, 1)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, c.Run(ctx))

	s := readSession(t, l)
	assert.Equal(t, uint32(3), s.Frame)
	assert.Equal(t, engine.StatusEnded, s.Status)
	assert.Equal(t, 4, l.Writes())

	_, err := c.Tick(ctx)
	assert.ErrorIs(t, err, ErrSessionInactive)
}

func TestZeroModelEndsSessionOnKO(t *testing.T) {
	l, cfg := setupSession(t, 100)
	wm, err := model.NewWorldModel(cfg, model.Arch{Kind: model.ArchMamba2, ContextLen: 1, DModel: 8, DState: 4, NLayers: 1, HeadDim: 4})
	require.NoError(t, err)
	c := New(wm, cfg, l, sessionKey, inputKey, nil)

	advanced, err := c.Tick(context.Background())
	require.NoError(t, err)
	assert.True(t, advanced)
	s := readSession(t, l)
	assert.Equal(t, engine.StatusEnded, s.Status)
	assert.Equal(t, uint32(1), s.Frame)
}

func TestTickErrors(t *testing.T) {
	ctx := context.Background()
	cfg := engine.DefaultEncodingConfig()
	l := NewMemoryLedger()
	c := newTestCrank(l, cfg, 1)

	_, err := c.Tick(ctx)
	assert.ErrorIs(t, err, ErrNoRecord)

	require.NoError(t, l.Write(ctx, sessionKey, []byte{1, 2, 3}))
	_, err = c.Tick(ctx)
	assert.ErrorIs(t, err, engine.ErrShortRecord)

	require.NoError(t, l.Write(ctx, sessionKey, engine.MarshalSession(engine.SessionState{Status: engine.StatusWaitingPlayers})))
	_, err = c.Tick(ctx)
	assert.ErrorIs(t, err, ErrSessionInactive)
}

func TestTickRejectsMalformedPrediction(t *testing.T) {
	l, cfg := setupSession(t, 100)
	m := &truncatedPredictor{holdPredictor{k: 1, layout: engine.NewLayout(cfg)}}
	c := New(m, cfg, l, sessionKey, inputKey, nil)

	_, err := c.Tick(context.Background())
	assert.ErrorIs(t, err, rollout.ErrPredictionShape)
	assert.Equal(t, 1, l.Writes())
	assert.Equal(t, uint32(0), readSession(t, l).Frame)
}

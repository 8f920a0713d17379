// Package model implements the world model and policy forward passes and the
// weight bundle format they load from.
package model

import (
	engine "github.com/ScavieFae/autonomous-world-model/engine"
	"github.com/ScavieFae/autonomous-world-model/engine/ssm"
)

// Embedding is a lookup table [Vocab][Dim].
type Embedding struct {
	Vocab, Dim int
	W          []float32
}

// NewEmbedding allocates a zeroed table.
func NewEmbedding(vocab, dim int) *Embedding {
	return &Embedding{Vocab: vocab, Dim: dim, W: make([]float32, vocab*dim)}
}

func (e *Embedding) Params(prefix string) []ssm.Param {
	return []ssm.Param{{Name: prefix + ".weight", Shape: []int{e.Vocab, e.Dim}, Data: e.W, Init: ssm.InitNormal}}
}

// Lookup returns the row for idx, saturated into the vocabulary.
func (e *Embedding) Lookup(idx int32) []float32 {
	i := max(0, min(int(idx), e.Vocab-1))
	return e.W[i*e.Dim : (i+1)*e.Dim]
}

// FrameEncoder turns one Frame into the per-frame vector
//
//	floats | p0 embeds | p1 embeds | stage embed
//
// where each player's embeds are action, jumps, character, l_cancel,
// hurtbox, ground, last_attack and, in embed mode, state_age.
type FrameEncoder struct {
	Config engine.EncodingConfig
	Layout engine.Layout

	Action     *Embedding
	Jumps      *Embedding
	Character  *Embedding
	Stage      *Embedding
	LCancel    *Embedding
	Hurtbox    *Embedding
	Ground     *Embedding
	LastAttack *Embedding
	StateAge   *Embedding // nil unless StateAgeAsEmbed
}

// NewFrameEncoder allocates zeroed embedding tables for cfg.
func NewFrameEncoder(cfg engine.EncodingConfig) *FrameEncoder {
	e := &FrameEncoder{
		Config:     cfg,
		Layout:     engine.NewLayout(cfg),
		Action:     NewEmbedding(cfg.ActionVocab, cfg.ActionEmbedDim),
		Jumps:      NewEmbedding(cfg.JumpsVocab, cfg.JumpsEmbedDim),
		Character:  NewEmbedding(cfg.CharacterVocab, cfg.CharacterEmbedDim),
		Stage:      NewEmbedding(cfg.StageVocab, cfg.StageEmbedDim),
		LCancel:    NewEmbedding(cfg.LCancelVocab, cfg.LCancelEmbedDim),
		Hurtbox:    NewEmbedding(cfg.HurtboxVocab, cfg.HurtboxEmbedDim),
		Ground:     NewEmbedding(cfg.GroundVocab, cfg.GroundEmbedDim),
		LastAttack: NewEmbedding(cfg.LastAttackVocab, cfg.LastAttackEmbedDim),
	}
	if cfg.StateAgeAsEmbed {
		e.StateAge = NewEmbedding(cfg.StateAgeEmbedVocab, cfg.StateAgeEmbedDim)
	}
	return e
}

func (e *FrameEncoder) Params() []ssm.Param {
	var ps []ssm.Param
	ps = append(ps, e.Action.Params("action_embed")...)
	ps = append(ps, e.Jumps.Params("jumps_embed")...)
	ps = append(ps, e.Character.Params("character_embed")...)
	ps = append(ps, e.Stage.Params("stage_embed")...)
	ps = append(ps, e.LCancel.Params("l_cancel_embed")...)
	ps = append(ps, e.Hurtbox.Params("hurtbox_embed")...)
	ps = append(ps, e.Ground.Params("ground_embed")...)
	ps = append(ps, e.LastAttack.Params("last_attack_embed")...)
	if e.StateAge != nil {
		ps = append(ps, e.StateAge.Params("state_age_embed")...)
	}
	return ps
}

// playerTables lists the per-player tables in int-column order.
func (e *FrameEncoder) playerTables() []*Embedding {
	t := []*Embedding{e.Action, e.Jumps, e.Character, e.LCancel, e.Hurtbox, e.Ground, e.LastAttack}
	if e.StateAge != nil {
		t = append(t, e.StateAge)
	}
	return t
}

// Encode writes the FrameDim-wide vector for f into out and returns it.
// out is allocated when nil.
func (e *FrameEncoder) Encode(f engine.Frame, out []float32) []float32 {
	if out == nil {
		out = make([]float32, e.Config.FrameDim())
	}
	offset := copy(out, f.Floats)
	// offset = 2 * FloatPerPlayer

	tables := e.playerTables()
	for p := 0; p < 2; p++ {
		for col, tbl := range tables {
			offset += copy(out[offset:], tbl.Lookup(f.Ints[e.Layout.PlayerInt(p, col)]))
		}
	}
	// offset = 2 * PlayerDim

	copy(out[offset:], e.Stage.Lookup(f.Ints[e.Layout.StageCol()]))
	// offset = FrameDim
	return out
}

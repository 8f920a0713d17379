// Package engine implements the fixed numeric layout of a two-player frame
// and the codec between external fixed-point game records and model inputs.
//
// Every width and offset used by the model, the rollout loop and the agents
// derives from an EncodingConfig through a Layout; nothing else hardcodes a
// column position.
package engine

// ControllerDim is the width of one player's controller vector:
// 4 stick axes, 1 shoulder, 8 buttons.
const ControllerDim = 13

// NumButtons is the number of digital buttons in a controller vector.
const NumButtons = 8

// EncodingConfig defines normalization scales, categorical vocabularies and
// the experiment flags that toggle feature groups. It is an immutable value:
// identical stored fields always yield identical derived widths.
type EncodingConfig struct {
	// Normalization scales
	XYScale         float32 `yaml:"xy_scale" json:"xy_scale"`
	PercentScale    float32 `yaml:"percent_scale" json:"percent_scale"`
	ShieldScale     float32 `yaml:"shield_scale" json:"shield_scale"`
	VelocityScale   float32 `yaml:"velocity_scale" json:"velocity_scale"`
	StateAgeScale   float32 `yaml:"state_age_scale" json:"state_age_scale"`
	HitlagScale     float32 `yaml:"hitlag_scale" json:"hitlag_scale"`
	StocksScale     float32 `yaml:"stocks_scale" json:"stocks_scale"`
	ComboCountScale float32 `yaml:"combo_count_scale" json:"combo_count_scale"`
	HitstunScale    float32 `yaml:"hitstun_scale" json:"hitstun_scale"`

	// Categorical vocabularies and embedding widths
	ActionVocab        int `yaml:"action_vocab" json:"action_vocab"`
	ActionEmbedDim     int `yaml:"action_embed_dim" json:"action_embed_dim"`
	JumpsVocab         int `yaml:"jumps_vocab" json:"jumps_vocab"`
	JumpsEmbedDim      int `yaml:"jumps_embed_dim" json:"jumps_embed_dim"`
	CharacterVocab     int `yaml:"character_vocab" json:"character_vocab"`
	CharacterEmbedDim  int `yaml:"character_embed_dim" json:"character_embed_dim"`
	StageVocab         int `yaml:"stage_vocab" json:"stage_vocab"`
	StageEmbedDim      int `yaml:"stage_embed_dim" json:"stage_embed_dim"`
	LCancelVocab       int `yaml:"l_cancel_vocab" json:"l_cancel_vocab"`
	LCancelEmbedDim    int `yaml:"l_cancel_embed_dim" json:"l_cancel_embed_dim"`
	HurtboxVocab       int `yaml:"hurtbox_vocab" json:"hurtbox_vocab"`
	HurtboxEmbedDim    int `yaml:"hurtbox_embed_dim" json:"hurtbox_embed_dim"`
	GroundVocab        int `yaml:"ground_vocab" json:"ground_vocab"`
	GroundEmbedDim     int `yaml:"ground_embed_dim" json:"ground_embed_dim"`
	LastAttackVocab    int `yaml:"last_attack_vocab" json:"last_attack_vocab"`
	LastAttackEmbedDim int `yaml:"last_attack_embed_dim" json:"last_attack_embed_dim"`
	StateAgeEmbedVocab int `yaml:"state_age_embed_vocab" json:"state_age_embed_vocab"`
	StateAgeEmbedDim   int `yaml:"state_age_embed_dim" json:"state_age_embed_dim"`

	// Experiment flags
	StateAgeAsEmbed bool `yaml:"state_age_as_embed" json:"state_age_as_embed"`
	PressEvents     bool `yaml:"press_events" json:"press_events"`
	Lookahead       int  `yaml:"lookahead" json:"lookahead"`
	Projectiles     bool `yaml:"projectiles" json:"projectiles"`
	StateFlags      bool `yaml:"state_flags" json:"state_flags"`
	Hitstun         bool `yaml:"hitstun" json:"hitstun"`
}

// DefaultEncodingConfig returns the standard encoding: all experiment flags off.
func DefaultEncodingConfig() EncodingConfig {
	return EncodingConfig{
		XYScale:         0.05,
		PercentScale:    0.01,
		ShieldScale:     0.01,
		VelocityScale:   0.05,
		StateAgeScale:   0.01,
		HitlagScale:     0.1,
		StocksScale:     0.25,
		ComboCountScale: 0.1,
		HitstunScale:    0.02,

		ActionVocab:        400,
		ActionEmbedDim:     32,
		JumpsVocab:         8,
		JumpsEmbedDim:      4,
		CharacterVocab:     33,
		CharacterEmbedDim:  8,
		StageVocab:         33,
		StageEmbedDim:      4,
		LCancelVocab:       3,
		LCancelEmbedDim:    2,
		HurtboxVocab:       3,
		HurtboxEmbedDim:    2,
		GroundVocab:        32,
		GroundEmbedDim:     4,
		LastAttackVocab:    64,
		LastAttackEmbedDim: 8,
		StateAgeEmbedVocab: 150,
		StateAgeEmbedDim:   8,
	}
}

// ---------------------------------------------------------------------------
// Derived widths
// ---------------------------------------------------------------------------

// CoreContinuousDim: percent, x, y, shield.
func (c EncodingConfig) CoreContinuousDim() int { return 4 }

// VelocityDim: air x, y, ground x, attack x, attack y.
func (c EncodingConfig) VelocityDim() int { return 5 }

// DynamicsDim counts hitlag and stocks, plus state age in float mode and
// hitstun when enabled.
func (c EncodingConfig) DynamicsDim() int {
	n := 3
	if c.StateAgeAsEmbed {
		n = 2
	}
	if c.Hitstun {
		n++
	}
	return n
}

// CombatContinuousDim: combo count.
func (c EncodingConfig) CombatContinuousDim() int { return 1 }

func (c EncodingConfig) ProjectileContinuousDim() int {
	if c.Projectiles {
		return 3
	}
	return 0
}

func (c EncodingConfig) ContinuousDim() int {
	return c.CoreContinuousDim() + c.VelocityDim() + c.DynamicsDim() +
		c.CombatContinuousDim() + c.ProjectileContinuousDim()
}

// BinaryDim: facing, invulnerable, on_ground, plus 40 state-flag bits.
func (c EncodingConfig) BinaryDim() int {
	if c.StateFlags {
		return 3 + 40
	}
	return 3
}

func (c EncodingConfig) ControllerDim() int { return ControllerDim }

func (c EncodingConfig) FloatPerPlayer() int {
	return c.ContinuousDim() + c.BinaryDim() + ControllerDim
}

// FloatPerFrame is the float vector width of a whole frame.
func (c EncodingConfig) FloatPerFrame() int { return 2 * c.FloatPerPlayer() }

// EmbedDim is the total categorical embedding width of one player.
func (c EncodingConfig) EmbedDim() int {
	n := c.ActionEmbedDim + c.JumpsEmbedDim + c.CharacterEmbedDim +
		c.LCancelEmbedDim + c.HurtboxEmbedDim + c.GroundEmbedDim + c.LastAttackEmbedDim
	if c.StateAgeAsEmbed {
		n += c.StateAgeEmbedDim
	}
	return n
}

func (c EncodingConfig) IntPerPlayer() int {
	if c.StateAgeAsEmbed {
		return 8
	}
	return 7
}

// IntPerFrame includes the shared stage column.
func (c EncodingConfig) IntPerFrame() int { return 2*c.IntPerPlayer() + 1 }

// CtrlExtraDim is the width of the press-event features for both players.
func (c EncodingConfig) CtrlExtraDim() int {
	if c.PressEvents {
		return 2 * NumButtons
	}
	return 0
}

// CtrlStepDim is the conditioning width of a single future step.
func (c EncodingConfig) CtrlStepDim() int { return 2*ControllerDim + c.CtrlExtraDim() }

func (c EncodingConfig) CtrlConditioningDim() int {
	return c.CtrlStepDim() * (1 + c.Lookahead)
}

func (c EncodingConfig) PlayerDim() int { return c.FloatPerPlayer() + c.EmbedDim() }

// FrameDim is the width of the per-frame vector fed to the backbone.
func (c EncodingConfig) FrameDim() int { return 2*c.PlayerDim() + c.StageEmbedDim }

func (c EncodingConfig) PredictedBinaryDim() int   { return 2 * c.BinaryDim() }
func (c EncodingConfig) PredictedVelocityDim() int { return 2 * c.VelocityDim() }

// PredictedContinuousDim is fixed: core deltas for both players.
func (c EncodingConfig) PredictedContinuousDim() int { return 2 * c.CoreContinuousDim() }

// PredictedDynamicsDim: hitlag, stocks, combo (and hitstun) for both players.
func (c EncodingConfig) PredictedDynamicsDim() int {
	if c.Hitstun {
		return 8
	}
	return 6
}

// MaxStateAge is the saturation point of the state-age counter.
func (c EncodingConfig) MaxStateAge() int {
	if c.StateAgeAsEmbed {
		return c.StateAgeEmbedVocab - 1
	}
	return 65535
}

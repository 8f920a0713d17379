package rollout

import engine "github.com/ScavieFae/autonomous-world-model/engine"

// ModeAgentVsAgent is the only match mode the runner produces.
const ModeAgentVsAgent = "agent-vs-agent"

// Ref names a stage or character by id.
type Ref struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// Characters holds both players' character refs.
type Characters struct {
	P0 Ref `json:"p0"`
	P1 Ref `json:"p1"`
}

// Meta describes a finished match. The model and agent fields are filled
// only when the caller supplies them.
type Meta struct {
	Mode        string     `json:"mode"`
	TotalFrames int        `json:"total_frames"`
	SeedFrames  int        `json:"seed_frames"`
	Stage       Ref        `json:"stage"`
	Characters  Characters `json:"characters"`

	ModelCheckpoint string `json:"model_checkpoint,omitempty"`
	Arch            string `json:"arch,omitempty"`
	ContextLen      int    `json:"context_len,omitempty"`
	P0Agent         string `json:"p0_agent,omitempty"`
	P1Agent         string `json:"p1_agent,omitempty"`
}

// MatchRecord is the complete output of one match: the seed frames followed
// by every generated frame.
type MatchRecord struct {
	Meta          Meta                 `json:"meta"`
	StageGeometry engine.StageGeometry `json:"stage_geometry"`
	Frames        []engine.FrameRecord `json:"frames"`
}

package engine

import (
	"errors"
	"math/rand/v2"
	"testing"
)

func randomPlayerState(rng *rand.Rand, cfg EncodingConfig) PlayerState {
	maxAge := 65535
	if cfg.StateAgeAsEmbed {
		maxAge = cfg.StateAgeEmbedVocab - 1
	}
	return PlayerState{
		X:              int32(rng.IntN(2*300*256+1) - 300*256),
		Y:              int32(rng.IntN(500*256+1) - 200*256),
		Percent:        uint16(rng.IntN(1000)),
		ShieldStrength: uint16(rng.IntN(60*256 + 1)),
		SpeedAirX:      int16(rng.IntN(65536) - 32768),
		SpeedY:         int16(rng.IntN(65536) - 32768),
		SpeedGroundX:   int16(rng.IntN(65536) - 32768),
		SpeedAttackX:   int16(rng.IntN(65536) - 32768),
		SpeedAttackY:   int16(rng.IntN(65536) - 32768),
		StateAge:       uint16(rng.IntN(maxAge + 1)),
		Hitlag:         uint8(rng.IntN(51)),
		Stocks:         uint8(rng.IntN(5)),
		Facing:         uint8(rng.IntN(2)),
		OnGround:       uint8(rng.IntN(2)),
		ActionState:    uint16(rng.IntN(cfg.ActionVocab)),
		JumpsLeft:      uint8(rng.IntN(cfg.JumpsVocab)),
		Character:      uint8(rng.IntN(cfg.CharacterVocab)),
	}
}

// TestPlayerRoundTrip verifies decode(encode(p)) == p for in-range records in
// both state-age modes.
func TestPlayerRoundTrip(t *testing.T) {
	for _, embed := range []bool{false, true} {
		cfg := DefaultEncodingConfig()
		cfg.StateAgeAsEmbed = embed
		c := NewCodec(cfg)
		rng := rand.New(rand.NewPCG(7, 11))

		for i := 0; i < 2000; i++ {
			p := randomPlayerState(rng, cfg)
			floats, ints := c.EncodePlayer(p)
			got := c.DecodePlayer(floats, ints)
			if got != p {
				t.Fatalf("embed=%v round trip:\n got %+v\nwant %+v", embed, got, p)
			}
		}
	}
}

func TestEncodePlayerSaturatesCategoricals(t *testing.T) {
	cfg := DefaultEncodingConfig()
	c := NewCodec(cfg)
	_, ints := c.EncodePlayer(PlayerState{ActionState: 1000, JumpsLeft: 50, Character: 200})
	if ints[IntAction] != int32(cfg.ActionVocab-1) {
		t.Errorf("action = %d, want %d", ints[IntAction], cfg.ActionVocab-1)
	}
	if ints[IntJumps] != int32(cfg.JumpsVocab-1) {
		t.Errorf("jumps = %d, want %d", ints[IntJumps], cfg.JumpsVocab-1)
	}
	if ints[IntCharacter] != int32(cfg.CharacterVocab-1) {
		t.Errorf("character = %d, want %d", ints[IntCharacter], cfg.CharacterVocab-1)
	}
}

func TestDecodePlayerClampsNegatives(t *testing.T) {
	cfg := DefaultEncodingConfig()
	c := NewCodec(cfg)
	l := c.Layout
	floats := make([]float32, l.FloatPerPlayer)
	ints := make([]int32, l.IntPerPlayer)
	floats[l.Percent] = -0.5
	floats[l.Shield] = -1
	floats[l.Stocks] = 3 // 12 stocks before clamping

	p := c.DecodePlayer(floats, ints)
	if p.Percent != 0 || p.ShieldStrength != 0 {
		t.Errorf("percent, shield = %d, %d, want 0, 0", p.Percent, p.ShieldStrength)
	}
	if p.Stocks != 4 {
		t.Errorf("stocks = %d, want 4", p.Stocks)
	}
}

func TestSessionFrameRoundTrip(t *testing.T) {
	cfg := DefaultEncodingConfig()
	c := NewCodec(cfg)
	rng := rand.New(rand.NewPCG(1, 2))
	s := SessionState{Status: StatusActive, Frame: 42, Stage: StageBattlefield}
	s.Players[0] = randomPlayerState(rng, cfg)
	s.Players[1] = randomPlayerState(rng, cfg)

	got := c.DecodeSession(c.EncodeSession(s), 42)
	if got.Stage != s.Stage || got.Frame != 42 || got.Status != StatusActive {
		t.Errorf("header = %d/%d/%d, want %d/42/%d", got.Stage, got.Frame, got.Status, s.Stage, StatusActive)
	}
	if got.Players != s.Players {
		t.Errorf("players differ after frame round trip")
	}
}

func TestRecordSizes(t *testing.T) {
	if n := len(MarshalPlayerState(PlayerState{})); n != PlayerStateSize {
		t.Errorf("player state = %d bytes, want %d", n, PlayerStateSize)
	}
	// 1 + 4 + 4 + 32 + 32 + 1 + 64 + 32 + 8 + 8 + 8
	if n := len(MarshalSession(SessionState{})); n != DiscriminatorSize+194 {
		t.Errorf("session = %d bytes, want %d", n, DiscriminatorSize+194)
	}
	// 4 + 8 + 8 + 1 + 1
	if n := len(MarshalInputBuffer(InputBuffer{})); n != DiscriminatorSize+22 {
		t.Errorf("input buffer = %d bytes, want %d", n, DiscriminatorSize+22)
	}
}

func TestPlayerStateByteLayout(t *testing.T) {
	p := PlayerState{X: -256, Percent: 0x1234, ActionState: 0x0102, Character: 9}
	b := MarshalPlayerState(p)
	// x = -256 little-endian
	if b[0] != 0x00 || b[1] != 0xFF || b[2] != 0xFF || b[3] != 0xFF {
		t.Errorf("x bytes = % x, want 00 ff ff ff", b[0:4])
	}
	if b[8] != 0x34 || b[9] != 0x12 {
		t.Errorf("percent bytes = % x, want 34 12", b[8:10])
	}
	// action_state at offset 28
	if b[28] != 0x02 || b[29] != 0x01 {
		t.Errorf("action bytes = % x, want 02 01", b[28:30])
	}
	if b[31] != 9 {
		t.Errorf("character byte = %d, want 9", b[31])
	}

	got, err := UnmarshalPlayerState(b)
	if err != nil {
		t.Fatalf("UnmarshalPlayerState: %v", err)
	}
	if got != p {
		t.Errorf("unmarshal = %+v, want %+v", got, p)
	}
}

func TestSessionRecordRoundTrip(t *testing.T) {
	s := SessionState{Status: StatusActive, Frame: 7, MaxFrames: 3600, Stage: 32, Seed: 99}
	s.Player1[0] = 0xAA
	s.Players[1] = PlayerState{X: 30 * 256, Stocks: 4, Facing: 0, OnGround: 1}

	data := MarshalSession(s)
	d := Discriminator("SessionState")
	for i := range d {
		if data[i] != d[i] {
			t.Fatalf("discriminator byte %d = %x, want %x", i, data[i], d[i])
		}
	}
	got, err := UnmarshalSession(data)
	if err != nil {
		t.Fatalf("UnmarshalSession: %v", err)
	}
	if got != s {
		t.Errorf("session = %+v, want %+v", got, s)
	}

	if _, err := UnmarshalSession(data[:20]); !errors.Is(err, ErrShortRecord) {
		t.Errorf("short session err = %v, want ErrShortRecord", err)
	}
}

func TestInputBufferRoundTrip(t *testing.T) {
	b := InputBuffer{
		Frame:   12,
		Player1: ControllerInput{StickX: -128, StickY: 127, Buttons: BitA | BitZ},
		Player2: ControllerInput{TriggerR: 255, ButtonsExt: BitL},
		P1Ready: true,
	}
	got, err := UnmarshalInputBuffer(MarshalInputBuffer(b))
	if err != nil {
		t.Fatalf("UnmarshalInputBuffer: %v", err)
	}
	if got != b {
		t.Errorf("input buffer = %+v, want %+v", got, b)
	}
}

func TestControllerFromInput(t *testing.T) {
	in := ControllerInput{
		StickX: 127, StickY: -128, CStickX: 0, CStickY: -1,
		TriggerL: 51, TriggerR: 102,
		Buttons:    BitA | BitY,
		ButtonsExt: BitR | BitDUp,
	}
	c := ControllerFromInput(in)
	if c[CtrlMainX] != 1 || c[CtrlMainY] != 0 {
		t.Errorf("main stick = %v,%v, want 1,0", c[CtrlMainX], c[CtrlMainY])
	}
	if c[CtrlShoulder] != float32(102)/255 {
		t.Errorf("shoulder = %v, want %v", c[CtrlShoulder], float32(102)/255)
	}
	want := map[int]float32{CtrlA: 1, CtrlB: 0, CtrlX: 0, CtrlY: 1, CtrlZ: 0, CtrlL: 0, CtrlR: 1, CtrlDUp: 1}
	for idx, v := range want {
		if c[idx] != v {
			t.Errorf("button %d = %v, want %v", idx, c[idx], v)
		}
	}

	back := InputFromController(c)
	if back.StickX != 127 || back.StickY != -128 || back.CStickX != 0 || back.CStickY != -1 {
		t.Errorf("sticks = %d %d %d %d, want 127 -128 0 -1", back.StickX, back.StickY, back.CStickX, back.CStickY)
	}
	if back.Buttons != in.Buttons || back.ButtonsExt != in.ButtonsExt {
		t.Errorf("buttons = %#x/%#x, want %#x/%#x", back.Buttons, back.ButtonsExt, in.Buttons, in.ButtonsExt)
	}
}

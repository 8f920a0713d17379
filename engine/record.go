package engine

import (
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrShortRecord is returned when a byte record is shorter than its layout.
var ErrShortRecord = errors.New("engine: record too short")

// FixedPointScale is the x256 scale of positions, shield and velocities in
// the external record.
const FixedPointScale = 256

// DiscriminatorSize is the account discriminator prefix before every record.
const DiscriminatorSize = 8

// Session status values.
const (
	StatusCreated        uint8 = 0
	StatusWaitingPlayers uint8 = 1
	StatusActive         uint8 = 2
	StatusEnded          uint8 = 3
)

// PlayerState is one player's external fixed-point record.
// Packed little-endian to exactly 32 bytes.
type PlayerState struct {
	X              int32  // x256, 4 bytes
	Y              int32  // x256, 4 bytes
	Percent        uint16 // 2 bytes
	ShieldStrength uint16 // x256, 2 bytes
	SpeedAirX      int16  // x256
	SpeedY         int16  // x256
	SpeedGroundX   int16  // x256
	SpeedAttackX   int16  // x256
	SpeedAttackY   int16  // x256, 5*2 = 10 bytes
	StateAge       uint16 // 2 bytes
	Hitlag         uint8
	Stocks         uint8
	Facing         uint8 // 1 = right
	OnGround       uint8
	ActionState    uint16
	JumpsLeft      uint8
	Character      uint8 // 4+2+1+1 = 8 bytes → total 32
}

// PlayerStateSize is the packed size of a PlayerState.
const PlayerStateSize = 32

// SessionState is the shared match record read and written by the crank.
type SessionState struct {
	Status     uint8
	Frame      uint32
	MaxFrames  uint32
	Player1    [32]byte
	Player2    [32]byte
	Stage      uint8
	Players    [2]PlayerState
	Model      [32]byte
	CreatedAt  int64
	LastUpdate int64
	Seed       uint64
}

// ControllerInput is one player's raw controller sample, 8 bytes.
type ControllerInput struct {
	StickX     int8
	StickY     int8
	CStickX    int8
	CStickY    int8
	TriggerL   uint8
	TriggerR   uint8
	Buttons    uint8 // bit 0 A, 1 B, 2 X, 3 Y, 4 Z
	ButtonsExt uint8 // bit 0 D-up, 2 L, 3 R
}

// Button bits of ControllerInput.Buttons.
const (
	BitA uint8 = 0x01
	BitB uint8 = 0x02
	BitX uint8 = 0x04
	BitY uint8 = 0x08
	BitZ uint8 = 0x10
)

// Button bits of ControllerInput.ButtonsExt.
const (
	BitDUp uint8 = 0x01
	BitL   uint8 = 0x04
	BitR   uint8 = 0x08
)

// InputBuffer carries both players' inputs for one frame.
type InputBuffer struct {
	Frame   uint32
	Player1 ControllerInput
	Player2 ControllerInput
	P1Ready bool
	P2Ready bool
}

// Discriminator returns the 8-byte account prefix for a record type name.
func Discriminator(name string) [DiscriminatorSize]byte {
	sum := sha256.Sum256([]byte("account:" + name))
	var d [DiscriminatorSize]byte
	copy(d[:], sum[:DiscriminatorSize])
	return d
}

var (
	sessionDiscriminator = Discriminator("SessionState")
	inputDiscriminator   = Discriminator("InputBuffer")
)

// ---------------------------------------------------------------------------
// Marshal / unmarshal
// ---------------------------------------------------------------------------

// MarshalPlayerState packs p into 32 little-endian bytes.
func MarshalPlayerState(p PlayerState) []byte {
	buf := make([]byte, PlayerStateSize)
	// fixed-size struct into an exactly sized buffer cannot fail
	_, _ = binary.Encode(buf, binary.LittleEndian, p)
	return buf
}

// UnmarshalPlayerState parses a 32-byte record.
func UnmarshalPlayerState(data []byte) (PlayerState, error) {
	var p PlayerState
	if len(data) < PlayerStateSize {
		return p, fmt.Errorf("player state: %d bytes: %w", len(data), ErrShortRecord)
	}
	if _, err := binary.Decode(data[:PlayerStateSize], binary.LittleEndian, &p); err != nil {
		return p, fmt.Errorf("player state: %w", err)
	}
	return p, nil
}

// MarshalSession writes the discriminator followed by the packed session.
func MarshalSession(s SessionState) []byte {
	buf := make([]byte, DiscriminatorSize+binary.Size(s))
	copy(buf, sessionDiscriminator[:])
	_, _ = binary.Encode(buf[DiscriminatorSize:], binary.LittleEndian, s)
	return buf
}

// UnmarshalSession parses a session record. The discriminator is skipped,
// not verified.
func UnmarshalSession(data []byte) (SessionState, error) {
	var s SessionState
	need := DiscriminatorSize + binary.Size(s)
	if len(data) < need {
		return s, fmt.Errorf("session: %d of %d bytes: %w", len(data), need, ErrShortRecord)
	}
	if _, err := binary.Decode(data[DiscriminatorSize:need], binary.LittleEndian, &s); err != nil {
		return s, fmt.Errorf("session: %w", err)
	}
	return s, nil
}

// MarshalInputBuffer writes the discriminator followed by the packed buffer.
func MarshalInputBuffer(b InputBuffer) []byte {
	buf := make([]byte, DiscriminatorSize+binary.Size(b))
	copy(buf, inputDiscriminator[:])
	_, _ = binary.Encode(buf[DiscriminatorSize:], binary.LittleEndian, b)
	return buf
}

// UnmarshalInputBuffer parses an input buffer record.
func UnmarshalInputBuffer(data []byte) (InputBuffer, error) {
	var b InputBuffer
	need := DiscriminatorSize + binary.Size(b)
	if len(data) < need {
		return b, fmt.Errorf("input buffer: %d of %d bytes: %w", len(data), need, ErrShortRecord)
	}
	if _, err := binary.Decode(data[DiscriminatorSize:need], binary.LittleEndian, &b); err != nil {
		return b, fmt.Errorf("input buffer: %w", err)
	}
	return b, nil
}

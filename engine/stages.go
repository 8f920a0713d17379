package engine

import "fmt"

// Bounds is an axis-aligned box in stage units.
type Bounds struct {
	Left   float64 `json:"left"`
	Right  float64 `json:"right"`
	Top    float64 `json:"top"`
	Bottom float64 `json:"bottom"`
}

// Platform is a pass-through platform.
type Platform struct {
	XRange [2]float64 `json:"x_range"`
	Y      float64    `json:"y"`
}

// StageGeometry describes a stage for visualizers.
type StageGeometry struct {
	Name         string     `json:"name"`
	GroundY      float64    `json:"ground_y"`
	GroundXRange [2]float64 `json:"ground_x_range"`
	Platforms    []Platform `json:"platforms"`
	BlastZones   Bounds     `json:"blast_zones"`
	CameraBounds Bounds     `json:"camera_bounds"`
}

// Stage ids of the legal stage list.
const (
	StageFountainOfDreams = 2
	StagePokemonStadium   = 3
	StageYoshisStory      = 8
	StageDreamLandN64     = 28
	StageBattlefield      = 31
	StageFinalDestination = 32
)

var stageGeometry = map[int]StageGeometry{
	StageFinalDestination: {
		Name:         "Final Destination",
		GroundXRange: [2]float64{-85.57, 85.57},
		Platforms:    []Platform{},
		BlastZones:   Bounds{Left: -246, Right: 246, Top: 188, Bottom: -140},
		CameraBounds: Bounds{Left: -160, Right: 160, Top: 100, Bottom: -50},
	},
	StageBattlefield: {
		Name:         "Battlefield",
		GroundXRange: [2]float64{-68.4, 68.4},
		Platforms: []Platform{
			{XRange: [2]float64{-57.6, -20}, Y: 27.2},
			{XRange: [2]float64{20, 57.6}, Y: 27.2},
			{XRange: [2]float64{-18.8, 18.8}, Y: 54.4},
		},
		BlastZones:   Bounds{Left: -224, Right: 224, Top: 200, Bottom: -108.8},
		CameraBounds: Bounds{Left: -150, Right: 150, Top: 100, Bottom: -50},
	},
	StagePokemonStadium: {
		Name:         "Pokemon Stadium",
		GroundXRange: [2]float64{-87.75, 87.75},
		Platforms: []Platform{
			{XRange: [2]float64{-55, -25}, Y: 25},
			{XRange: [2]float64{25, 55}, Y: 25},
		},
		BlastZones:   Bounds{Left: -230, Right: 230, Top: 200, Bottom: -111},
		CameraBounds: Bounds{Left: -160, Right: 160, Top: 100, Bottom: -50},
	},
	StageYoshisStory: {
		Name:         "Yoshi's Story",
		GroundXRange: [2]float64{-56, 56},
		Platforms: []Platform{
			{XRange: [2]float64{-60, -28}, Y: 23.45},
			{XRange: [2]float64{28, 60}, Y: 23.45},
			{XRange: [2]float64{-15.75, 15.75}, Y: 42},
		},
		BlastZones:   Bounds{Left: -175.7, Right: 173.6, Top: 168, Bottom: -91},
		CameraBounds: Bounds{Left: -120, Right: 120, Top: 80, Bottom: -40},
	},
	StageDreamLandN64: {
		Name:         "Dream Land N64",
		GroundXRange: [2]float64{-77.27, 77.27},
		Platforms: []Platform{
			{XRange: [2]float64{-61.39, -31.73}, Y: 30.14},
			{XRange: [2]float64{31.73, 63.03}, Y: 30.14},
			{XRange: [2]float64{-19.02, 19.02}, Y: 51.43},
		},
		BlastZones:   Bounds{Left: -255, Right: 255, Top: 250, Bottom: -123},
		CameraBounds: Bounds{Left: -170, Right: 170, Top: 100, Bottom: -50},
	},
	StageFountainOfDreams: {
		Name:         "Fountain of Dreams",
		GroundXRange: [2]float64{-63.35, 63.35},
		Platforms: []Platform{
			{XRange: [2]float64{-50.5, -20.5}, Y: 27.2},
			{XRange: [2]float64{20.5, 50.5}, Y: 27.2},
			{XRange: [2]float64{-15, 15}, Y: 42.75},
		},
		BlastZones:   Bounds{Left: -198.75, Right: 198.75, Top: 202.5, Bottom: -146.25},
		CameraBounds: Bounds{Left: -140, Right: 140, Top: 90, Bottom: -50},
	},
}

// LookupStage returns the geometry for a stage id. Unknown ids get a generic
// flat stage named "Stage <id>".
func LookupStage(id int) StageGeometry {
	if g, ok := stageGeometry[id]; ok {
		return g
	}
	return StageGeometry{
		Name:         fmt.Sprintf("Stage %d", id),
		GroundXRange: [2]float64{-85, 85},
		Platforms:    []Platform{},
		BlastZones:   Bounds{Left: -240, Right: 240, Top: 200, Bottom: -140},
		CameraBounds: Bounds{Left: -160, Right: 160, Top: 100, Bottom: -50},
	}
}

var characterNames = map[int]string{
	0: "MARIO", 1: "FOX", 2: "CPTFALCON", 3: "DK", 4: "KIRBY",
	5: "BOWSER", 6: "LINK", 7: "SHEIK", 8: "NESS", 9: "PEACH",
	10: "POPO", 12: "PIKACHU", 13: "SAMUS", 14: "YOSHI",
	15: "JIGGLYPUFF", 16: "MEWTWO", 17: "LUIGI", 18: "MARTH",
	19: "ZELDA", 20: "YOUNGLINK", 21: "DOC", 22: "FALCO",
	23: "PICHU", 24: "GAMEANDWATCH", 25: "GANONDORF", 26: "ROY",
}

// CharacterName returns the internal character name, or CHAR_<id>.
func CharacterName(id int) string {
	if n, ok := characterNames[id]; ok {
		return n
	}
	return fmt.Sprintf("CHAR_%d", id)
}

// TournamentCharacters is the pool streamed matches draw from.
var TournamentCharacters = []int{1, 2, 7, 9, 10, 12, 13, 15, 17, 18, 21, 22, 25, 26}

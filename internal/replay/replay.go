// Package replay holds the format-independent view of a decoded
// Minesweeper replay: board layout, mine placement, game properties and
// the raw input event stream. The per-format decoders live in the avf,
// evf and rmv packages and all return values implementing Replay.
package replay

import (
	"time"
)

type Format string

const (
	FormatAVF Format = "avf"
	FormatEVF Format = "evf"
	FormatRMV Format = "rmv"
)

type Level string

const (
	LevelBeginner     Level = "beginner"
	LevelIntermediate Level = "intermediate"
	LevelExpert       Level = "expert"
	LevelCustom       Level = "custom"
)

// Mode is the gameplay variant. The set of valid values depends on the format.
type Mode string

const (
	ModeNormal                Mode = "normal"
	ModeUPK                   Mode = "UPK"
	ModeCheat                 Mode = "cheat"
	ModeDensity               Mode = "density"
	ModeWin7                  Mode = "win7"
	ModeCompetitiveSolvable   Mode = "competitive_solvable"
	ModeStrongSolvable        Mode = "strong_solvable"
	ModeWeakSolvable          Mode = "weak_solvable"
	ModeToBeSolvable          Mode = "to_be_solvable"
	ModeStrongGuessable       Mode = "strong_guessable"
	ModeWeakGuessable         Mode = "weak_guessable"
	ModeChordingRecursive     Mode = "chording_recursive"
	ModeFlagRecursive         Mode = "flag_recursive"
	ModeChordingFlagRecursive Mode = "chording_flag_recursive"
)

type Dimensions struct {
	Rows int `json:"rows"`
	Cols int `json:"cols"`
}

type Cell struct {
	Row int `json:"row"`
	Col int `json:"col"`
}

type Properties struct {
	Level         Level `json:"level"`
	Mode          Mode  `json:"mode,omitempty"`
	QuestionMarks bool  `json:"questionmarks"`
	// NonFlagging is nil for formats that do not record it.
	NonFlagging *bool `json:"nonflagging,omitempty"`
}

func (p Properties) clone() Properties {
	if p.NonFlagging != nil {
		v := *p.NonFlagging
		p.NonFlagging = &v
	}
	return p
}

// Replay is the read-only surface shared by every decoded format.
type Replay interface {
	Format() Format
	// Name is the human readable source name, usually the file path.
	Name() string
	Dimensions() Dimensions
	MineCount() int
	Mines() []Cell
	Properties() Properties
	Events() []Event
	// Metadata is a flat, format specific bag of the remaining header fields.
	Metadata() map[string]string
	// BestTokenSource is the most reliable player identifying string the format carries.
	BestTokenSource() string
	BoardGenerationTime() (time.Time, bool)
}

// BoolPtr is a small helper for optional properties.
func BoolPtr(v bool) *bool {
	return &v
}

// Package evf decodes Metasweeper replays (.evf). Only format version 3 is
// understood.
package evf

import (
	"encoding/hex"
	"fmt"
	"io"
	"math/bits"
	"strconv"
	"time"

	"github.com/g960059/sweepview/internal/cursor"
	"github.com/g960059/sweepview/internal/replay"
	"github.com/g960059/sweepview/internal/source"
)

const (
	SupportedVersion = 3
	checksumSize     = 32

	opChecksum = 0
	opEnd      = 255
)

var modes = map[int]replay.Mode{
	0:  replay.ModeNormal,
	1:  replay.ModeUPK,
	2:  replay.ModeCheat,
	3:  replay.ModeDensity,
	4:  replay.ModeWin7,
	5:  replay.ModeCompetitiveSolvable,
	6:  replay.ModeStrongSolvable,
	7:  replay.ModeWeakSolvable,
	8:  replay.ModeToBeSolvable,
	9:  replay.ModeStrongGuessable,
	10: replay.ModeWeakGuessable,
	11: replay.ModeChordingRecursive,
	12: replay.ModeFlagRecursive,
	13: replay.ModeChordingFlagRecursive,
}

var mouseActions = map[byte]replay.MouseAction{
	1:  replay.MouseMove,
	2:  replay.MouseLeftDown,
	3:  replay.MouseLeftUp,
	4:  replay.MouseRightDown,
	5:  replay.MouseRightUp,
	6:  replay.MouseMiddleDown,
	7:  replay.MouseMiddleUp,
	8:  replay.MousePreflag,
	9:  replay.MouseChord,
	10: replay.MouseLeftClick,
	11: replay.MouseRightClick,
	12: replay.MouseMiddleClick,
}

type levelKey struct{ cols, rows, mines int }

var levels = map[levelKey]replay.Level{
	{8, 8, 10}:   replay.LevelBeginner,
	{16, 16, 40}: replay.LevelIntermediate,
	{30, 16, 99}: replay.LevelExpert,
}

type Replay struct {
	replay.Board

	Version int
	// Summary flags. The masks are 127>>n as written by Metasweeper, so
	// they overlap; they are reported as decoded.
	Completed bool
	Official  bool
	Fair      bool
	// Settings flags.
	BoardClip       bool
	LossAutorestart bool

	CellSize int
	BBBV     int
	// TotalTime uses the same unit as the event game times.
	TotalTime int

	VersionInfo           string
	UserIdentifier        string
	CompetitionIdentifier string
	UniqueIdentifier      string
	// StartTimestamp and EndTimestamp are decimal microseconds since the
	// epoch, kept as written.
	StartTimestamp string
	EndTimestamp   string
	CountryCode    string
	UUID           string

	// Checksum is nil when the event stream was closed without one.
	Checksum []byte
}

var _ replay.Replay = (*Replay)(nil)

func (r *Replay) Format() replay.Format {
	return replay.FormatEVF
}

func (r *Replay) BestTokenSource() string {
	return r.CompetitionIdentifier
}

// BoardGenerationTime is the start timestamp truncated to whole seconds.
func (r *Replay) BoardGenerationTime() (time.Time, bool) {
	if r.StartTimestamp == "" {
		return time.Time{}, false
	}
	us, err := strconv.ParseInt(r.StartTimestamp, 10, 64)
	if err != nil {
		return time.Time{}, false
	}
	return time.Unix(us/1_000_000, 0).UTC(), true
}

func (r *Replay) Metadata() map[string]string {
	return map[string]string{
		"version":                strconv.Itoa(r.Version),
		"completed":              strconv.FormatBool(r.Completed),
		"official":               strconv.FormatBool(r.Official),
		"fair":                   strconv.FormatBool(r.Fair),
		"board_clip":             strconv.FormatBool(r.BoardClip),
		"loss_autorestart":       strconv.FormatBool(r.LossAutorestart),
		"cell_size":              strconv.Itoa(r.CellSize),
		"bbbv":                   strconv.Itoa(r.BBBV),
		"total_time":             strconv.Itoa(r.TotalTime),
		"version_info":           r.VersionInfo,
		"user_identifier":        r.UserIdentifier,
		"competition_identifier": r.CompetitionIdentifier,
		"unique_identifier":      r.UniqueIdentifier,
		"start_ts":               r.StartTimestamp,
		"end_ts":                 r.EndTimestamp,
		"country_code":           r.CountryCode,
		"uuid":                   r.UUID,
		"checksum":               hex.EncodeToString(r.Checksum),
	}
}

func Decode(r io.Reader, name string) (*Replay, error) {
	cur, err := cursor.FromReader(r)
	if err != nil {
		return nil, fmt.Errorf("evf: %w", err)
	}
	return decode(cur, name)
}

func DecodeBytes(b []byte, name string) (*Replay, error) {
	return decode(cursor.New(b), name)
}

func DecodeFile(path string) (*Replay, error) {
	b, err := source.ReadFile(path, 0)
	if err != nil {
		return nil, err
	}
	return DecodeBytes(b, path)
}

func decode(cur *cursor.Cursor, name string) (*Replay, error) {
	fr := replay.NewFieldReader(cur, replay.FormatEVF, name)
	rp := &Replay{}
	c := replay.Contents{Name: name}

	rp.Version = int(fr.Byte("version"))
	if err := fr.Err(); err != nil {
		return nil, err
	}
	if rp.Version != SupportedVersion {
		return nil, fr.FailAt("version", 0, fmt.Errorf("%w: %d", replay.ErrUnknownFormatVersion, rp.Version))
	}

	summary := fr.Byte("summary")
	rp.Completed = summary&(127>>0) != 0
	rp.Official = summary&(127>>1) != 0
	rp.Fair = summary&(127>>2) != 0
	c.Properties.NonFlagging = replay.BoolPtr(summary&(127>>3) != 0)

	settings := fr.Byte("settings")
	c.Properties.QuestionMarks = settings&(127>>0) == 0
	rp.BoardClip = settings&(127>>1) != 0
	rp.LossAutorestart = settings&(127>>2) != 0

	c.Dimensions.Rows = int(fr.Byte("rows"))
	c.Dimensions.Cols = int(fr.Byte("cols"))
	c.MineCount = fr.Uint("mine_count", 2)
	rp.CellSize = int(fr.Byte("cell_size"))

	modeAt := cur.Offset()
	modeCode := fr.Uint("mode", 2)
	if err := fr.Err(); err != nil {
		return nil, err
	}
	mode, ok := modes[modeCode]
	if !ok {
		return nil, fr.FailAt("mode", modeAt, replay.Invalid("invalid game mode %d", modeCode))
	}
	c.Properties.Mode = mode

	rp.BBBV = fr.Uint("bbbv", 2)
	rp.TotalTime = fr.Uint("total_time", 3)

	for _, s := range []struct {
		field string
		dst   *string
	}{
		{"version_info", &rp.VersionInfo},
		{"user_identifier", &rp.UserIdentifier},
		{"competition_identifier", &rp.CompetitionIdentifier},
		{"unique_identifier", &rp.UniqueIdentifier},
		{"start_ts", &rp.StartTimestamp},
		{"end_ts", &rp.EndTimestamp},
		{"country_code", &rp.CountryCode},
		{"uuid", &rp.UUID},
	} {
		at := cur.Offset()
		raw := fr.CString(s.field)
		if fr.Err() != nil {
			break
		}
		text, err := replay.DecodeText(raw, replay.UTF8)
		if err != nil {
			return nil, fr.FailAt(s.field, at, err)
		}
		*s.dst = text
	}
	if err := fr.Err(); err != nil {
		return nil, err
	}
	if rp.StartTimestamp != "" {
		if _, err := strconv.ParseInt(rp.StartTimestamp, 10, 64); err != nil {
			return nil, fr.Fail("start_ts", replay.Invalid("bad start timestamp %q", rp.StartTimestamp))
		}
	}

	boardAt := cur.Offset()
	cells := c.Dimensions.Rows * c.Dimensions.Cols
	if cells == 0 {
		return nil, fr.FailAt("board", boardAt, replay.Invalid("empty board %dx%d", c.Dimensions.Rows, c.Dimensions.Cols))
	}
	board := fr.Bytes("board", (cells+7)/8)
	if err := fr.Err(); err != nil {
		return nil, err
	}
	c.Mines = minesFromBitboard(board, c.Dimensions)
	if len(c.Mines) != c.MineCount {
		return nil, fr.FailAt("board", boardAt, replay.Invalid(
			"number of mines in header (%d) is inconsistent with the board (%d)", c.MineCount, len(c.Mines)))
	}

	level, ok := levels[levelKey{c.Dimensions.Cols, c.Dimensions.Rows, c.MineCount}]
	if !ok {
		level = replay.LevelCustom
	}
	c.Properties.Level = level

	events, err := readEvents(fr, rp)
	if err != nil {
		return nil, err
	}
	c.Events = events

	b, err := replay.NewBoard(c)
	if err != nil {
		return nil, fr.FailAt("board", boardAt, err)
	}
	rp.Board = b
	return rp, nil
}

// minesFromBitboard walks the packed row-major board column by column so
// the mines come out ordered by column, then row.
func minesFromBitboard(board []byte, dims replay.Dimensions) []replay.Cell {
	total := 0
	for _, b := range board {
		total += bits.OnesCount8(b)
	}
	mines := make([]replay.Cell, 0, total)
	for col := 0; col < dims.Cols; col++ {
		for row := 0; row < dims.Rows; row++ {
			bit := row*dims.Cols + col
			if board[bit/8]&(0x80>>(bit%8)) != 0 {
				mines = append(mines, replay.Cell{Row: row, Col: col})
			}
		}
	}
	return mines
}

func readEvents(fr *replay.FieldReader, rp *Replay) ([]replay.Event, error) {
	cur := fr.Cursor()
	var events []replay.Event
	for {
		at := cur.Offset()
		op := fr.Byte("events")
		if err := fr.Err(); err != nil {
			return nil, err
		}
		switch op {
		case opChecksum:
			rp.Checksum = fr.Bytes("checksum", checksumSize)
			if err := fr.Err(); err != nil {
				return nil, err
			}
			return events, nil
		case opEnd:
			return events, nil
		}
		action, ok := mouseActions[op]
		if !ok {
			return nil, fr.FailAt("events", at, replay.Invalid("unknown mouse operation %d", op))
		}
		ev := replay.MouseEvent{Action: action}
		ev.GameTime = fr.Uint("events", 3)
		ev.X = fr.Uint("events", 2)
		ev.Y = fr.Uint("events", 2)
		if err := fr.Err(); err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
}

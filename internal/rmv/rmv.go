// Package rmv decodes Viennasweeper replays (.rmv), revisions 1 and 2.
//
// Both revisions start with a table of section sizes. The sizes are
// trusted as written: the result string, version info, preflag list,
// properties and checksum are read with them, the other sections are
// self-delimiting.
package rmv

import (
	"encoding/hex"
	"fmt"
	"io"
	"maps"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/g960059/sweepview/internal/cursor"
	"github.com/g960059/sweepview/internal/logging"
	"github.com/g960059/sweepview/internal/replay"
	"github.com/g960059/sweepview/internal/source"
)

const defaultSquareSize = 16

var modes = map[byte]replay.Mode{
	0: replay.ModeNormal,
	1: replay.ModeUPK,
	2: replay.ModeCheat,
	3: replay.ModeDensity,
}

var levels = map[byte]replay.Level{
	0: replay.LevelBeginner,
	1: replay.LevelIntermediate,
	2: replay.LevelExpert,
	3: replay.LevelCustom,
}

// PlayerFields names the positional player info fields.
var PlayerFields = []string{"name", "nickname", "country", "token"}

// SectionSizes is the second header. ResultString is only present in
// revision 1 and ExtensionProperties only in revision 2.
type SectionSizes struct {
	ResultString        int `json:"result_string,omitempty"`
	VersionInfo         int `json:"version_info"`
	PlayerInfo          int `json:"player_info"`
	Board               int `json:"board"`
	Preflagged          int `json:"preflagged"`
	Properties          int `json:"properties"`
	ExtensionProperties int `json:"extension_properties,omitempty"`
	Video               int `json:"video"`
	Checksum            int `json:"checksum"`
}

type Replay struct {
	replay.Board

	Magic         [4]byte
	FormatVersion int
	// CloneID and CloneMajorVersion are zero for revision 1.
	CloneID           int
	CloneMajorVersion int
	FileSize          int
	Sections          SectionSizes

	VersionInfo string
	// BoardTimestamp is the board generation time in epoch seconds.
	BoardTimestamp int64
	SquareSize     int
	BBBV           int
	UTF8           bool
	TotalTime      int
	Checksum       []byte

	player    map[string]string
	result    map[string]string
	extension map[string][]byte
	preflags  []replay.Cell
}

var _ replay.Replay = (*Replay)(nil)

func (r *Replay) Format() replay.Format {
	return replay.FormatRMV
}

// BestTokenSource prefers the player token, then the nickname from the
// revision 1 result string.
func (r *Replay) BestTokenSource() string {
	if tok, ok := r.player["token"]; ok {
		return tok
	}
	return r.result["NICK"]
}

func (r *Replay) BoardGenerationTime() (time.Time, bool) {
	return time.Unix(r.BoardTimestamp, 0).UTC(), true
}

func (r *Replay) Player(field string) (string, bool) {
	v, ok := r.player[field]
	return v, ok
}

// PlayerData returns a copy of the player fields present in the file.
func (r *Replay) PlayerData() map[string]string {
	return maps.Clone(r.player)
}

func (r *Replay) ResultField(key string) (string, bool) {
	v, ok := r.result[key]
	return v, ok
}

func (r *Replay) ExtensionProperty(key string) ([]byte, bool) {
	v, ok := r.extension[key]
	return slices.Clone(v), ok
}

func (r *Replay) Preflags() []replay.Cell {
	return slices.Clone(r.preflags)
}

func (r *Replay) Metadata() map[string]string {
	md := map[string]string{
		"magic":          string(r.Magic[:]),
		"format_version": strconv.Itoa(r.FormatVersion),
		"file_size":      strconv.Itoa(r.FileSize),
		"version_info":   r.VersionInfo,
		"boardgen_ts":    strconv.FormatInt(r.BoardTimestamp, 10),
		"square_size":    strconv.Itoa(r.SquareSize),
		"bbbv":           strconv.Itoa(r.BBBV),
		"utf8":           strconv.FormatBool(r.UTF8),
		"total_time":     strconv.Itoa(r.TotalTime),
		"checksum":       hex.EncodeToString(r.Checksum),
		"preflags":       strconv.Itoa(len(r.preflags)),
	}
	if r.FormatVersion >= 2 {
		md["clone_id"] = strconv.Itoa(r.CloneID)
		md["clone_major_version"] = strconv.Itoa(r.CloneMajorVersion)
	}
	for k, v := range r.player {
		md["player."+k] = v
	}
	for k, v := range r.result {
		md["result."+k] = v
	}
	for k, v := range r.extension {
		md["extension."+k] = hex.EncodeToString(v)
	}
	return md
}

func Decode(r io.Reader, name string) (*Replay, error) {
	cur, err := cursor.FromReader(r)
	if err != nil {
		return nil, fmt.Errorf("rmv: %w", err)
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

// raw holds byte strings whose encoding is only known once the
// properties block has been read.
type raw struct {
	resultString []byte
	versionInfo  []byte
	player       [][]byte
}

func decode(cur *cursor.Cursor, name string) (*Replay, error) {
	fr := replay.NewFieldReader(cur, replay.FormatRMV, name)
	rp := &Replay{}
	c := replay.Contents{Name: name}
	var rw raw

	if err := header(fr, rp); err != nil {
		return nil, err
	}
	sz := &rp.Sections

	if rp.FormatVersion == 1 {
		rw.resultString = fr.Bytes("result_string", sz.ResultString)
	}
	rw.versionInfo = fr.Bytes("version_info", sz.VersionInfo)

	nplayer := fr.Uint("player_info", 2)
	for i := 0; i < nplayer && fr.Err() == nil; i++ {
		n := int(fr.Byte("player_info"))
		rw.player = append(rw.player, fr.Bytes("player_info", n))
	}

	rp.BoardTimestamp = int64(fr.Uint("boardgen_ts", 4))
	c.Dimensions.Cols = int(fr.Byte("cols"))
	c.Dimensions.Rows = int(fr.Byte("rows"))
	c.MineCount = fr.Uint("mine_count", 2)
	minesAt := cur.Offset()
	c.Mines = readCells(fr, "mines", c.MineCount)
	if sz.Preflagged > 0 {
		n := fr.Uint("preflagged", 2)
		rp.preflags = readCells(fr, "preflagged", n)
	}
	if err := fr.Err(); err != nil {
		return nil, err
	}

	if err := properties(fr, rp, &c); err != nil {
		return nil, err
	}
	if err := decodeStrings(fr, rp, rw); err != nil {
		return nil, err
	}
	if rp.FormatVersion >= 2 {
		if err := extension(fr, rp); err != nil {
			return nil, err
		}
	}

	events, err := newEventReader(fr, rp.FormatVersion, logging.For("rmv").WithField("replay", name)).readAll()
	if err != nil {
		return nil, err
	}
	c.Events = events

	rp.TotalTime = fr.Uint("total_time", 3)
	rp.Checksum = fr.Bytes("checksum", sz.Checksum)
	if err := fr.Err(); err != nil {
		return nil, err
	}

	b, err := replay.NewBoard(c)
	if err != nil {
		return nil, fr.FailAt("mines", minesAt, err)
	}
	rp.Board = b
	return rp, nil
}

func header(fr *replay.FieldReader, rp *Replay) error {
	copy(rp.Magic[:], fr.Bytes("magic", 4))
	typeAt := fr.Cursor().Offset()
	rp.FormatVersion = fr.Uint("type", 2)
	if err := fr.Err(); err != nil {
		return err
	}
	if rp.FormatVersion != 1 && rp.FormatVersion != 2 {
		return fr.FailAt("type", typeAt, fmt.Errorf("%w: type %d", replay.ErrUnknownFormatVersion, rp.FormatVersion))
	}
	if rp.FormatVersion >= 2 {
		rp.CloneID = int(fr.Byte("clone_id"))
		rp.CloneMajorVersion = int(fr.Byte("clone_major_version"))
	}
	rp.FileSize = fr.Uint("file_size", 4)

	sz := &rp.Sections
	if rp.FormatVersion == 1 {
		sz.ResultString = fr.Uint("result_string_size", 2)
	}
	sz.VersionInfo = fr.Uint("version_info_size", 2)
	sz.PlayerInfo = fr.Uint("player_info_size", 2)
	sz.Board = fr.Uint("board_size", 2)
	sz.Preflagged = fr.Uint("preflagged_size", 2)
	sz.Properties = fr.Uint("properties_size", 2)
	if rp.FormatVersion >= 2 {
		sz.ExtensionProperties = fr.Uint("extension_properties_size", 2)
	}
	sz.Video = fr.Uint("video_size", 4)
	sz.Checksum = fr.Uint("checksum_size", 2)
	return fr.Err()
}

// readCells reads n (col, row) byte pairs.
func readCells(fr *replay.FieldReader, field string, n int) []replay.Cell {
	cells := make([]replay.Cell, 0, n)
	for i := 0; i < n && fr.Err() == nil; i++ {
		col := fr.Byte(field)
		row := fr.Byte(field)
		cells = append(cells, replay.Cell{Row: int(row), Col: int(col)})
	}
	return cells
}

func properties(fr *replay.FieldReader, rp *Replay, c *replay.Contents) error {
	at := fr.Cursor().Offset()
	props := fr.Bytes("properties", rp.Sections.Properties)
	if err := fr.Err(); err != nil {
		return err
	}
	need := 4
	if rp.FormatVersion >= 2 {
		need = 7
	}
	if len(props) < need {
		return fr.FailAt("properties", at, replay.Invalid("properties block has %d bytes, want at least %d", len(props), need))
	}

	c.Properties.QuestionMarks = props[0] != 0
	c.Properties.NonFlagging = replay.BoolPtr(props[1] != 0)
	mode, ok := modes[props[2]]
	if !ok {
		return fr.FailAt("mode", at+2, replay.Invalid("invalid mode %d", props[2]))
	}
	level, ok := levels[props[3]]
	if !ok {
		return fr.FailAt("level", at+3, replay.Invalid("invalid level %d", props[3]))
	}
	c.Properties.Mode = mode
	c.Properties.Level = level

	rp.SquareSize = defaultSquareSize
	rp.BBBV = -1
	switch {
	case rp.FormatVersion >= 2:
		rp.UTF8 = true
		rp.BBBV = int(props[4]) | int(props[5])<<8
		rp.SquareSize = int(props[6])
	case len(props) > 4:
		rp.UTF8 = props[4] != 0
	}
	return nil
}

func decodeStrings(fr *replay.FieldReader, rp *Replay, rw raw) error {
	enc := replay.CP1252
	if rp.UTF8 {
		enc = replay.UTF8
	}

	vi, err := replay.DecodeText(rw.versionInfo, enc)
	if err != nil {
		return fr.Fail("version_info", err)
	}
	rp.VersionInfo = vi

	rp.player = map[string]string{}
	for i, field := range rw.player {
		if i >= len(PlayerFields) {
			break
		}
		v, err := replay.DecodeText(field, enc)
		if err != nil {
			return fr.Fail("player_info", err)
		}
		rp.player[PlayerFields[i]] = v
	}

	rp.result = map[string]string{}
	if rp.FormatVersion == 1 {
		text, err := replay.DecodeText(rw.resultString, enc)
		if err != nil {
			return fr.Fail("result_string", err)
		}
		if rp.result, err = parseResultString(text); err != nil {
			return fr.Fail("result_string", err)
		}
	}
	if rp.BBBV < 0 {
		v, ok := rp.result["3BV"]
		if !ok {
			return fr.Fail("result_string", replay.Invalid("no 3BV in result string"))
		}
		if rp.BBBV, err = strconv.Atoi(v); err != nil {
			return fr.Fail("result_string", replay.Invalid("bad 3BV %q", v))
		}
	}
	return nil
}

// parseResultString splits "#KEY:value#KEY:value#" into a map.
func parseResultString(s string) (map[string]string, error) {
	out := map[string]string{}
	for _, field := range strings.Split(s, "#") {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		key, value, ok := strings.Cut(field, ":")
		if !ok {
			return nil, replay.Invalid("result string field %q has no value", field)
		}
		out[strings.TrimSpace(key)] = strings.TrimSpace(value)
	}
	return out, nil
}

func extension(fr *replay.FieldReader, rp *Replay) error {
	rp.extension = map[string][]byte{}
	n := fr.Uint("extension_properties", 2)
	for i := 0; i < n && fr.Err() == nil; i++ {
		at := fr.Cursor().Offset()
		key := fr.Bytes("extension_properties", int(fr.Byte("extension_properties")))
		value := fr.Bytes("extension_properties", int(fr.Byte("extension_properties")))
		if fr.Err() != nil {
			break
		}
		k, err := replay.DecodeText(key, replay.UTF8)
		if err != nil {
			return fr.FailAt("extension_properties", at, err)
		}
		rp.extension[k] = value
	}
	return fr.Err()
}

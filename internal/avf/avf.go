// Package avf decodes Minesweeper Arbiter replays (.avf), including the
// Freesweeper flavour which writes version 0 and carries extra timing
// corrections.
//
// The layout has no length prefixes past the mine list: the info block,
// the event stream and the footer are located by scanning for markers,
// and two of those scans back up a few bytes after the marker is found.
// Those look-backs reproduce what Arbiter writes and are kept strict.
package avf

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/sirupsen/logrus"

	"github.com/g960059/sweepview/internal/cursor"
	"github.com/g960059/sweepview/internal/logging"
	"github.com/g960059/sweepview/internal/replay"
	"github.com/g960059/sweepview/internal/source"
)

const (
	questionMarksFlag = 17
	checksumSkip      = 17
	footerSeparator   = '\r'
)

var (
	infoOpen       = []byte{'['}
	eventsMarker   = []byte{0, 1}
	checksumMarker = []byte("cs=")
)

// Several raw codes alias the same logical action.
var mouseActions = map[byte]replay.MouseAction{
	1:   replay.MouseMove,
	3:   replay.MouseLeftDown,
	5:   replay.MouseLeftUp,
	9:   replay.MouseRightDown,
	17:  replay.MouseRightUp,
	33:  replay.MouseMiddleDown,
	65:  replay.MouseMiddleUp,
	145: replay.MouseRightUp,
	193: replay.MouseMiddleUp,
	11:  replay.MouseShiftLeftDown,
	21:  replay.MouseLeftUp,
}

type Replay struct {
	replay.Board

	Version     int
	Freesweeper bool
	Reserved    [4]byte
	LevelCode   int
	// Info is the decoded text between the brackets of the info block.
	Info string
	BBBV int
	// GameTime is the final game time in milliseconds.
	GameTime    int
	PlayerName  string
	VersionInfo string

	footer      map[string]string
	boardgen    time.Time
	hasBoardgen bool
}

var _ replay.Replay = (*Replay)(nil)

func (r *Replay) Format() replay.Format {
	return replay.FormatAVF
}

// BestTokenSource is the player name from the footer.
func (r *Replay) BestTokenSource() string {
	return r.PlayerName
}

// BoardGenerationTime is only recorded for the preset levels, as a wall
// clock without zone; it is reported in UTC.
func (r *Replay) BoardGenerationTime() (time.Time, bool) {
	return r.boardgen, r.hasBoardgen
}

// Footer returns a key:value field of the footer.
func (r *Replay) Footer(key string) (string, bool) {
	v, ok := r.footer[key]
	return v, ok
}

func (r *Replay) Metadata() map[string]string {
	md := map[string]string{
		"version":      strconv.Itoa(r.Version),
		"freesweeper":  strconv.FormatBool(r.Freesweeper),
		"reserved":     hex.EncodeToString(r.Reserved[:]),
		"level_code":   strconv.Itoa(r.LevelCode),
		"info":         r.Info,
		"bbbv":         strconv.Itoa(r.BBBV),
		"game_time":    strconv.Itoa(r.GameTime),
		"player_name":  r.PlayerName,
		"version_info": r.VersionInfo,
	}
	for k, v := range r.footer {
		md["footer."+k] = v
	}
	return md
}

func Decode(r io.Reader, name string) (*Replay, error) {
	cur, err := cursor.FromReader(r)
	if err != nil {
		return nil, fmt.Errorf("avf: %w", err)
	}
	return decode(cur, name)
}

func DecodeBytes(b []byte, name string) (*Replay, error) {
	return decode(cursor.New(b), name)
}

// DecodeFile reads path (optionally gzip or zstd compressed) and names the
// replay after it.
func DecodeFile(path string) (*Replay, error) {
	b, err := source.ReadFile(path, 0)
	if err != nil {
		return nil, err
	}
	return DecodeBytes(b, path)
}

type decoder struct {
	cur *cursor.Cursor
	fr  *replay.FieldReader
	log *logrus.Entry
}

func decode(cur *cursor.Cursor, name string) (*Replay, error) {
	d := &decoder{
		cur: cur,
		fr:  replay.NewFieldReader(cur, replay.FormatAVF, name),
		log: logging.For("avf").WithField("replay", name),
	}
	rp := &Replay{}
	c := replay.Contents{Name: name, MineOrigin: 1}

	if err := d.header(rp, &c); err != nil {
		return nil, err
	}
	minesAt := cur.Offset()
	c.Mines = make([]replay.Cell, 0, c.MineCount)
	for i := 0; i < c.MineCount; i++ {
		row := d.fr.Byte("mines")
		col := d.fr.Byte("mines")
		c.Mines = append(c.Mines, replay.Cell{Row: int(row), Col: int(col)})
	}
	if err := d.fr.Err(); err != nil {
		return nil, err
	}
	if err := d.info(rp, &c); err != nil {
		return nil, err
	}
	mouse, err := d.events()
	if err != nil {
		return nil, err
	}
	if err := d.footer(rp, mouse); err != nil {
		return nil, err
	}
	// the terminal record carries the -1 sentinel, so the real end of the
	// game is the record before it
	if len(mouse) < 2 {
		return nil, d.fr.Fail("events", replay.Invalid("need at least 2 events, got %d", len(mouse)))
	}
	rp.GameTime = mouse[len(mouse)-2].GameTime

	c.Events = make([]replay.Event, len(mouse))
	for i, ev := range mouse {
		c.Events[i] = ev
	}
	board, err := replay.NewBoard(c)
	if err != nil {
		return nil, d.fr.FailAt("mines", minesAt, err)
	}
	rp.Board = board
	return rp, nil
}

func (d *decoder) header(rp *Replay, c *replay.Contents) error {
	rp.Version = int(d.fr.Byte("version"))
	rp.Freesweeper = rp.Version == 0
	copy(rp.Reserved[:], d.fr.Bytes("reserved", 4))
	levelAt := d.cur.Offset()
	code := d.fr.Byte("level")
	if err := d.fr.Err(); err != nil {
		return err
	}
	rp.LevelCode = int(code)
	level, dims, mines, ok := preset(code)
	if !ok {
		return d.fr.FailAt("level", levelAt, replay.Invalid("bad level %d", code))
	}
	c.Properties.Level = level
	if level == replay.LevelCustom {
		dims.Cols = int(d.fr.Byte("cols")) + 1
		dims.Rows = int(d.fr.Byte("rows")) + 1
		mines = d.fr.Uint("mine_count", 2)
	}
	c.Dimensions = dims
	c.MineCount = mines
	if rp.Freesweeper {
		d.log.Debug("freesweeper variant")
	}
	return d.fr.Err()
}

func preset(code byte) (replay.Level, replay.Dimensions, int, bool) {
	switch code {
	case 3:
		return replay.LevelBeginner, replay.Dimensions{Rows: 8, Cols: 8}, 10, true
	case 4:
		return replay.LevelIntermediate, replay.Dimensions{Rows: 16, Cols: 16}, 40, true
	case 5:
		return replay.LevelExpert, replay.Dimensions{Rows: 16, Cols: 30}, 99, true
	case 6:
		return replay.LevelCustom, replay.Dimensions{}, 0, true
	default:
		return "", replay.Dimensions{}, 0, false
	}
}

func (d *decoder) info(rp *Replay, c *replay.Contents) error {
	if err := d.cur.ScanFor(infoOpen); err != nil {
		return d.fr.Fail("info", invalidScan(err))
	}
	// the question mark flag sits two bytes before the bracket
	if err := d.cur.Seek(-3); err != nil {
		return d.fr.Fail("questionmarks", replay.Invalid("info block too early: %v", err))
	}
	c.Properties.QuestionMarks = d.fr.Byte("questionmarks") == questionMarksFlag
	d.fr.Skip("info", 2)
	if err := d.fr.Err(); err != nil {
		return err
	}

	infoAt := d.cur.Offset()
	raw, err := d.cur.ReadUntil(']')
	if err != nil {
		return d.fr.FailAt("info", infoAt, invalidScan(err))
	}
	text, err := replay.DecodeText(raw, replay.CP1252)
	if err != nil {
		return d.fr.FailAt("info", infoAt, err)
	}
	rp.Info = text

	segments := strings.Split(text, "|")
	last := segments[len(segments)-1]
	_, size := utf8.DecodeRuneInString(last)
	bbbv, _, _ := strings.Cut(last[size:], "T")
	rp.BBBV, err = strconv.Atoi(bbbv)
	if err != nil {
		return d.fr.FailAt("bbbv", infoAt, replay.Invalid("bad bbbv %q", bbbv))
	}

	if c.Properties.Level != replay.LevelCustom && len(segments) > 1 {
		ts, ok, err := parseBoardgen(segments[0])
		if err != nil {
			return d.fr.FailAt("boardgen_time", infoAt, err)
		}
		rp.boardgen, rp.hasBoardgen = ts, ok
	}
	return nil
}

func (d *decoder) events() ([]replay.MouseEvent, error) {
	if err := d.cur.ScanFor(eventsMarker); err != nil {
		return nil, d.fr.Fail("events", invalidScan(err))
	}
	// the marker is the x high byte and time low byte of the first record
	if err := d.cur.Seek(-3); err != nil {
		return nil, d.fr.Fail("events", replay.Invalid("event stream too early: %v", err))
	}

	var out []replay.MouseEvent
	for {
		at := d.cur.Offset()
		rec := d.fr.Bytes("events", 8)
		if err := d.fr.Err(); err != nil {
			return nil, err
		}
		code, xHi, timeLo, xLo, hundredths, yHi, timeHi, yLo := rec[0], rec[1], rec[2], rec[3], rec[4], rec[5], rec[6], rec[7]
		action, ok := mouseActions[code]
		if !ok {
			return nil, d.fr.FailAt("events", at, replay.Invalid("unknown mouse event %d", code))
		}
		seconds := (int(timeHi)<<8 | int(timeLo)) - 1
		out = append(out, replay.MouseEvent{
			Action:   action,
			GameTime: 1000*seconds + 10*int(hundredths),
			X:        int(xHi)<<8 | int(xLo),
			Y:        int(yHi)<<8 | int(yLo),
		})
		if seconds < 0 {
			return out, nil
		}
	}
}

func (d *decoder) footer(rp *Replay, mouse []replay.MouseEvent) error {
	if err := d.cur.ScanFor(checksumMarker); err != nil {
		return d.fr.Fail("checksum", invalidScan(err))
	}
	if rp.Freesweeper {
		for i := range mouse {
			mouse[i].GameTime += int(d.fr.Byte("corrections") & 0x0f)
		}
	}
	d.fr.Skip("checksum", checksumSkip)
	if err := d.fr.Err(); err != nil {
		return err
	}
	if rp.Freesweeper {
		if err := d.cur.ScanFor([]byte{footerSeparator}); err != nil {
			return d.fr.Fail("footer", invalidScan(err))
		}
	}

	footerAt := d.cur.Offset()
	rp.footer = map[string]string{}
	var positional []string
	for _, field := range bytes.Split(d.cur.Rest(), []byte{footerSeparator}) {
		text, err := replay.DecodeText(field, replay.CP1252)
		if err != nil {
			return d.fr.FailAt("footer", footerAt, err)
		}
		if key, value, ok := strings.Cut(text, ":"); ok {
			rp.footer[strings.TrimSpace(key)] = strings.TrimSpace(value)
			continue
		}
		positional = append(positional, text)
	}
	if len(positional) != 2 {
		return d.fr.FailAt("footer", footerAt, replay.Invalid("footer has %d positional fields, want 2", len(positional)))
	}
	rp.PlayerName, rp.VersionInfo = positional[0], positional[1]
	return nil
}

func invalidScan(err error) error {
	return fmt.Errorf("%w: %w", replay.ErrInvalidReplay, err)
}

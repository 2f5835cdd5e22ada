package rmv

import (
	"github.com/sirupsen/logrus"

	"github.com/g960059/sweepview/internal/replay"
)

const (
	evTimestampChange = 0
	evReducedMove     = 28
)

var mouseActions = map[byte]replay.MouseAction{
	1: replay.MouseMove,
	2: replay.MouseLeftDown,
	3: replay.MouseLeftUp,
	4: replay.MouseRightDown,
	5: replay.MouseRightUp,
	6: replay.MouseMiddleDown,
	7: replay.MouseMiddleUp,
}

var cellActions = map[byte]replay.CellAction{
	9:  replay.CellPressed,
	10: replay.CellPressedQM,
	11: replay.CellClosed,
	12: replay.CellQM,
	13: replay.CellFlag,
	14: replay.CellOpen,
	18: replay.CellOpen0,
	19: replay.CellOpen1,
	20: replay.CellOpen2,
	21: replay.CellOpen3,
	22: replay.CellOpen4,
	23: replay.CellOpen5,
	24: replay.CellOpen6,
	25: replay.CellOpen7,
	26: replay.CellOpen8,
	27: replay.CellOpenBlast,
}

var outcomes = map[byte]replay.Outcome{
	15: replay.OutcomeBlast,
	16: replay.OutcomeWin,
	17: replay.OutcomeOther,
}

// coordOffset is subtracted from mouse positions. Revision 1 records them
// relative to the whole window rather than the board.
type coordOffset struct{ x, y int }

func offsetFor(version int) coordOffset {
	if version == 1 {
		return coordOffset{12, 56}
	}
	return coordOffset{}
}

// eventReader decodes the video section. Reduced moves are deltas against
// the last mouse event, so the raw (pre-offset) position, time and flag
// count are carried between events.
type eventReader struct {
	fr  *replay.FieldReader
	off coordOffset
	log *logrus.Entry

	seeded bool
	x, y   int
	time   int
	nflags int
	events []replay.Event
}

func newEventReader(fr *replay.FieldReader, version int, log *logrus.Entry) *eventReader {
	return &eventReader{fr: fr, off: offsetFor(version), log: log}
}

func (e *eventReader) readAll() ([]replay.Event, error) {
	cur := e.fr.Cursor()
	for {
		at := cur.Offset()
		code := e.fr.Byte("events")
		if err := e.fr.Err(); err != nil {
			return nil, err
		}
		switch {
		case code == evTimestampChange:
			ts := e.fr.Uint("events", 4)
			if err := e.fr.Err(); err != nil {
				return nil, err
			}
			e.log.WithField("new_timestamp", ts).Warn("timestamp change events are deprecated")
			e.events = append(e.events, replay.TimestampChangeEvent{NewTimestamp: ts})
		case code == evReducedMove:
			if !e.seeded {
				return nil, e.fr.FailAt("events", at, replay.Invalid("reduced mouse move before any mouse event"))
			}
			dt := e.fr.Byte("events")
			mv := e.fr.Byte("events")
			if err := e.fr.Err(); err != nil {
				return nil, err
			}
			dx, dy := ReducedDelta(mv)
			e.time += int(dt)
			e.x += dx
			e.y += dy
			e.appendMouse(replay.MouseMove)
		case mouseActions[code] != "":
			e.time = e.fr.Uint("events", 3)
			e.nflags = int(e.fr.Byte("events"))
			e.x = e.fr.Uint("events", 2)
			e.y = e.fr.Uint("events", 2)
			if err := e.fr.Err(); err != nil {
				return nil, err
			}
			e.seeded = true
			e.appendMouse(mouseActions[code])
		case cellActions[code] != "":
			col := e.fr.Byte("events")
			row := e.fr.Byte("events")
			if err := e.fr.Err(); err != nil {
				return nil, err
			}
			e.events = append(e.events, replay.BoardEvent{Action: cellActions[code], Col: int(col), Row: int(row)})
		case outcomes[code] != "":
			e.events = append(e.events, replay.TerminateEvent{How: outcomes[code]})
			return e.events, nil
		default:
			return nil, e.fr.FailAt("events", at, replay.Invalid("unknown event code %d", code))
		}
	}
}

func (e *eventReader) appendMouse(action replay.MouseAction) {
	flags := e.nflags
	e.events = append(e.events, replay.MouseEvent{
		Action:   action,
		GameTime: e.time,
		X:        e.x - e.off.x,
		Y:        e.y - e.off.y,
		Flags:    &flags,
	})
}

// ReducedDelta unpacks a reduced move byte: the high nibble is the x delta
// and the low nibble the y delta, each a 4-bit two's complement value.
func ReducedDelta(mv byte) (dx, dy int) {
	hi, lo := int(mv>>4), int(mv)
	return (hi & 7) - (hi & 8), (lo & 7) - (lo & 8)
}

package replay

import "encoding/json"

type EventKind string

const (
	KindMouse           EventKind = "mouse"
	KindBoard           EventKind = "board"
	KindTerminate       EventKind = "terminate"
	KindTimestampChange EventKind = "timestamp_change"
)

// Event is one record of the input stream. The set of implementations is
// closed: MouseEvent, BoardEvent, TerminateEvent and TimestampChangeEvent.
type Event interface {
	Kind() EventKind
	isEvent()
}

type MouseAction string

const (
	MouseMove          MouseAction = "move"
	MouseLeftDown      MouseAction = "lmb_down"
	MouseLeftUp        MouseAction = "lmb_up"
	MouseRightDown     MouseAction = "rmb_down"
	MouseRightUp       MouseAction = "rmb_up"
	MouseMiddleDown    MouseAction = "mmb_down"
	MouseMiddleUp      MouseAction = "mmb_up"
	MouseShiftLeftDown MouseAction = "shift_lmb_down"
	MousePreflag       MouseAction = "preflag"
	MouseChord         MouseAction = "chord"
	MouseLeftClick     MouseAction = "lmb"
	MouseRightClick    MouseAction = "rmb"
	MouseMiddleClick   MouseAction = "mmb"
)

type CellAction string

const (
	CellPressed   CellAction = "pressed"
	CellPressedQM CellAction = "pressed_qm"
	CellClosed    CellAction = "closed"
	CellQM        CellAction = "qm"
	CellFlag      CellAction = "flag"
	CellOpen      CellAction = "open"
	CellOpen0     CellAction = "open_0"
	CellOpen1     CellAction = "open_1"
	CellOpen2     CellAction = "open_2"
	CellOpen3     CellAction = "open_3"
	CellOpen4     CellAction = "open_4"
	CellOpen5     CellAction = "open_5"
	CellOpen6     CellAction = "open_6"
	CellOpen7     CellAction = "open_7"
	CellOpen8     CellAction = "open_8"
	CellOpenBlast CellAction = "open_blast"
)

type Outcome string

const (
	OutcomeBlast Outcome = "blast"
	OutcomeWin   Outcome = "win"
	OutcomeOther Outcome = "other"
)

// MouseEvent positions are pixels for AVF and EVF and for RMV after the
// per-revision window offset has been removed.
type MouseEvent struct {
	Action MouseAction `json:"subtype"`
	// GameTime is in milliseconds.
	GameTime int  `json:"gametime"`
	X        int  `json:"xpos"`
	Y        int  `json:"ypos"`
	Flags    *int `json:"nflags,omitempty"`
}

type BoardEvent struct {
	Action CellAction `json:"subtype"`
	Col    int        `json:"col"`
	Row    int        `json:"row"`
}

type TerminateEvent struct {
	How Outcome `json:"how"`
}

// TimestampChangeEvent is deprecated in every format that still emits it.
type TimestampChangeEvent struct {
	NewTimestamp int `json:"new_timestamp"`
}

func (MouseEvent) Kind() EventKind           { return KindMouse }
func (BoardEvent) Kind() EventKind           { return KindBoard }
func (TerminateEvent) Kind() EventKind       { return KindTerminate }
func (TimestampChangeEvent) Kind() EventKind { return KindTimestampChange }

func (MouseEvent) isEvent()           {}
func (BoardEvent) isEvent()           {}
func (TerminateEvent) isEvent()       {}
func (TimestampChangeEvent) isEvent() {}

func (e MouseEvent) MarshalJSON() ([]byte, error) {
	type fields MouseEvent
	return json.Marshal(struct {
		Type EventKind `json:"type"`
		fields
	}{KindMouse, fields(e)})
}

func (e BoardEvent) MarshalJSON() ([]byte, error) {
	type fields BoardEvent
	return json.Marshal(struct {
		Type EventKind `json:"type"`
		fields
	}{KindBoard, fields(e)})
}

func (e TerminateEvent) MarshalJSON() ([]byte, error) {
	type fields TerminateEvent
	return json.Marshal(struct {
		Type EventKind `json:"type"`
		fields
	}{KindTerminate, fields(e)})
}

func (e TimestampChangeEvent) MarshalJSON() ([]byte, error) {
	type fields TimestampChangeEvent
	return json.Marshal(struct {
		Type EventKind `json:"type"`
		fields
	}{KindTimestampChange, fields(e)})
}

// Terminal returns the terminate event if it is the last event of the stream.
func Terminal(events []Event) (TerminateEvent, bool) {
	if len(events) == 0 {
		return TerminateEvent{}, false
	}
	te, ok := events[len(events)-1].(TerminateEvent)
	return te, ok
}

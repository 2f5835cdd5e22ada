package export

import (
	"encoding/json"
	"fmt"

	"github.com/g960059/sweepview/internal/replay"
)

// DecodeEvents turns an exported event array back into typed events using
// each element's "type" tag.
func DecodeEvents(raw json.RawMessage) ([]replay.Event, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("decode events: %w", err)
	}
	out := make([]replay.Event, 0, len(items))
	for i, item := range items {
		var head struct {
			Type replay.EventKind `json:"type"`
		}
		if err := json.Unmarshal(item, &head); err != nil {
			return nil, fmt.Errorf("decode event %d: %w", i, err)
		}
		ev, err := decodeEvent(head.Type, item)
		if err != nil {
			return nil, fmt.Errorf("decode event %d: %w", i, err)
		}
		out = append(out, ev)
	}
	return out, nil
}

func decodeEvent(kind replay.EventKind, item json.RawMessage) (replay.Event, error) {
	switch kind {
	case replay.KindMouse:
		var ev replay.MouseEvent
		err := json.Unmarshal(item, &ev)
		return ev, err
	case replay.KindBoard:
		var ev replay.BoardEvent
		err := json.Unmarshal(item, &ev)
		return ev, err
	case replay.KindTerminate:
		var ev replay.TerminateEvent
		err := json.Unmarshal(item, &ev)
		return ev, err
	case replay.KindTimestampChange:
		var ev replay.TimestampChangeEvent
		err := json.Unmarshal(item, &ev)
		return ev, err
	default:
		return nil, fmt.Errorf("%w: unknown event type %q", ErrInvalidFrame, kind)
	}
}

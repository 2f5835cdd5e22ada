// Package export streams decoded replays as length-prefixed JSON frames.
package export

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/g960059/sweepview/internal/replay"
	"github.com/g960059/sweepview/internal/security"
)

const (
	SchemaVersion   = "sweepview.export.v1"
	DefaultMaxFrame = 16 << 20

	TypeReplay = "replay"
	TypeError  = "error"
)

var (
	ErrInvalidFrame    = errors.New("export: invalid frame")
	ErrFrameTooLarge   = errors.New("export: frame too large")
	ErrUnsupportedVers = errors.New("export: unsupported schema version")
)

type Envelope struct {
	SchemaVersion string          `json:"schema_version"`
	Type          string          `json:"type"`
	FrameSeq      uint64          `json:"frame_seq"`
	ExportedAt    time.Time       `json:"exported_at"`
	Source        string          `json:"source,omitempty"`
	Payload       json.RawMessage `json:"payload"`
}

type ReplayPayload struct {
	Format           replay.Format     `json:"format"`
	Dimensions       replay.Dimensions `json:"dimensions"`
	MineCount        int               `json:"mine_count"`
	Mines            []replay.Cell     `json:"mines"`
	Properties       replay.Properties `json:"properties"`
	EventCount       int               `json:"event_count"`
	Events           json.RawMessage   `json:"events,omitempty"`
	BestToken        string            `json:"best_token,omitempty"`
	BoardGeneratedAt *time.Time        `json:"board_generated_at,omitempty"`
	Metadata         map[string]string `json:"metadata,omitempty"`
}

type ErrorPayload struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

type Options struct {
	// Events includes the full event stream; otherwise only its length.
	Events bool
	// Redact masks the best token and scrubs secret-looking metadata.
	Redact bool
}

func NewEnvelope(frameType string, frameSeq uint64, source string, payload any) (Envelope, error) {
	if strings.TrimSpace(frameType) == "" {
		return Envelope{}, fmt.Errorf("%w: type is required", ErrInvalidFrame)
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("marshal payload: %w", err)
	}
	return Envelope{
		SchemaVersion: SchemaVersion,
		Type:          strings.TrimSpace(frameType),
		FrameSeq:      frameSeq,
		ExportedAt:    time.Now().UTC(),
		Source:        strings.TrimSpace(source),
		Payload:       body,
	}, nil
}

func NewReplayEnvelope(frameSeq uint64, r replay.Replay, opts Options) (Envelope, error) {
	if r == nil {
		return Envelope{}, fmt.Errorf("%w: replay is required", ErrInvalidFrame)
	}
	events := r.Events()
	p := ReplayPayload{
		Format:     r.Format(),
		Dimensions: r.Dimensions(),
		MineCount:  r.MineCount(),
		Mines:      r.Mines(),
		Properties: r.Properties(),
		EventCount: len(events),
		BestToken:  r.BestTokenSource(),
		Metadata:   r.Metadata(),
	}
	if t, ok := r.BoardGenerationTime(); ok {
		p.BoardGeneratedAt = &t
	}
	if opts.Events {
		raw, err := json.Marshal(events)
		if err != nil {
			return Envelope{}, fmt.Errorf("marshal events: %w", err)
		}
		p.Events = raw
	}
	if opts.Redact {
		p.Metadata = security.RedactMetadata(p.Metadata, p.BestToken)
		p.BestToken = security.MaskToken(p.BestToken)
	}
	return NewEnvelope(TypeReplay, frameSeq, r.Name(), p)
}

func NewErrorEnvelope(frameSeq uint64, source, kind string, cause error) (Envelope, error) {
	if cause == nil {
		return Envelope{}, fmt.Errorf("%w: error is required", ErrInvalidFrame)
	}
	return NewEnvelope(TypeError, frameSeq, source, ErrorPayload{Kind: kind, Message: cause.Error()})
}

func (e Envelope) Validate() error {
	if strings.TrimSpace(e.SchemaVersion) != SchemaVersion {
		return ErrUnsupportedVers
	}
	if strings.TrimSpace(e.Type) == "" {
		return fmt.Errorf("%w: type is required", ErrInvalidFrame)
	}
	if len(e.Payload) == 0 {
		return fmt.Errorf("%w: payload is required", ErrInvalidFrame)
	}
	return nil
}

func (e Envelope) DecodePayload(dst any) error {
	if len(e.Payload) == 0 {
		return fmt.Errorf("%w: empty payload", ErrInvalidFrame)
	}
	if err := json.Unmarshal(e.Payload, dst); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	return nil
}

// WriteFrame writes env as a 4-byte big-endian length followed by its JSON
// encoding. maxFrameSize <= 0 selects DefaultMaxFrame.
func WriteFrame(w io.Writer, env Envelope, maxFrameSize int) error {
	if err := env.Validate(); err != nil {
		return err
	}
	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal frame: %w", err)
	}
	if len(body) > frameLimit(maxFrameSize) {
		return ErrFrameTooLarge
	}
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(body)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return fmt.Errorf("write frame length: %w", err)
	}
	if _, err := w.Write(body); err != nil {
		return fmt.Errorf("write frame body: %w", err)
	}
	return nil
}

// ReadFrame reads one frame written by WriteFrame. A clean end of stream
// before the length prefix returns io.EOF unwrapped.
func ReadFrame(r io.Reader, maxFrameSize int) (Envelope, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		if errors.Is(err, io.EOF) {
			return Envelope{}, io.EOF
		}
		return Envelope{}, fmt.Errorf("read frame length: %w", err)
	}
	size := int(binary.BigEndian.Uint32(lenBuf[:]))
	if size <= 0 || size > frameLimit(maxFrameSize) {
		return Envelope{}, ErrFrameTooLarge
	}
	body := make([]byte, size)
	if _, err := io.ReadFull(r, body); err != nil {
		return Envelope{}, fmt.Errorf("read frame body: %w", err)
	}
	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return Envelope{}, fmt.Errorf("decode frame: %w", err)
	}
	if err := env.Validate(); err != nil {
		return Envelope{}, err
	}
	return env, nil
}

func frameLimit(n int) int {
	if n <= 0 {
		return DefaultMaxFrame
	}
	return n
}

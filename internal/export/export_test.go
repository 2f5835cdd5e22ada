package export

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/g960059/sweepview/internal/replay"
	"github.com/g960059/sweepview/internal/rmv"
	"github.com/g960059/sweepview/internal/testutil"
)

func decodeRMVv2(t *testing.T) *rmv.Replay {
	t.Helper()
	r, err := rmv.DecodeBytes(testutil.RMVv2().Bytes(), "game.rmv")
	require.NoError(t, err)
	return r
}

func TestReplayFrameRoundTrip(t *testing.T) {
	r := decodeRMVv2(t)
	env, err := NewReplayEnvelope(7, r, Options{Events: true})
	require.NoError(t, err)
	assert.Equal(t, SchemaVersion, env.SchemaVersion)
	assert.Equal(t, TypeReplay, env.Type)
	assert.Equal(t, "game.rmv", env.Source)

	var buf bytes.Buffer
	require.NoError(t, WriteFrame(&buf, env, 0))
	assert.Equal(t, uint32(buf.Len()-4), binary.BigEndian.Uint32(buf.Bytes()[:4]))

	got, err := ReadFrame(&buf, 0)
	require.NoError(t, err)
	assert.Equal(t, uint64(7), got.FrameSeq)

	var p ReplayPayload
	require.NoError(t, got.DecodePayload(&p))
	assert.Equal(t, replay.FormatRMV, p.Format)
	assert.Equal(t, replay.Dimensions{Rows: 8, Cols: 8}, p.Dimensions)
	assert.Equal(t, 10, p.MineCount)
	assert.Equal(t, r.Mines(), p.Mines)
	assert.Equal(t, replay.LevelBeginner, p.Properties.Level)
	assert.Equal(t, "tok-ralokt", p.BestToken)
	require.NotNil(t, p.BoardGeneratedAt)
	assert.Equal(t, int64(1700000000), p.BoardGeneratedAt.Unix())
	assert.Equal(t, "ralokt", p.Metadata["player.nickname"])

	events, err := DecodeEvents(p.Events)
	require.NoError(t, err)
	assert.Equal(t, r.Events(), events)
	assert.Equal(t, len(events), p.EventCount)

	_, err = ReadFrame(&buf, 0)
	assert.Equal(t, io.EOF, err)
}

func TestReplayEnvelopeWithoutEvents(t *testing.T) {
	r := decodeRMVv2(t)
	env, err := NewReplayEnvelope(1, r, Options{})
	require.NoError(t, err)

	var p ReplayPayload
	require.NoError(t, env.DecodePayload(&p))
	assert.Empty(t, p.Events)
	assert.Equal(t, len(r.Events()), p.EventCount)
	events, err := DecodeEvents(p.Events)
	require.NoError(t, err)
	assert.Nil(t, events)
}

func TestReplayEnvelopeRedacts(t *testing.T) {
	r := decodeRMVv2(t)
	env, err := NewReplayEnvelope(1, r, Options{Redact: true})
	require.NoError(t, err)
	assert.NotContains(t, string(env.Payload), "tok-ralokt")

	var p ReplayPayload
	require.NoError(t, env.DecodePayload(&p))
	assert.Equal(t, "t***", p.BestToken)
	assert.Equal(t, "[REDACTED]", p.Metadata["player.token"])
	assert.Equal(t, "Thomas", p.Metadata["player.name"])
}

func TestErrorEnvelope(t *testing.T) {
	env, err := NewErrorEnvelope(3, "bad.avf", "invalid_replay", errors.New("avf bad.avf: level at offset 5: invalid"))
	require.NoError(t, err)
	assert.Equal(t, TypeError, env.Type)

	var p ErrorPayload
	require.NoError(t, env.DecodePayload(&p))
	assert.Equal(t, "invalid_replay", p.Kind)
	assert.Contains(t, p.Message, "level at offset 5")

	_, err = NewErrorEnvelope(3, "bad.avf", "io", nil)
	assert.ErrorIs(t, err, ErrInvalidFrame)
}

func TestFrameLimits(t *testing.T) {
	env, err := NewEnvelope("replay", 1, "x", map[string]string{"k": strings.Repeat("v", 256)})
	require.NoError(t, err)

	assert.ErrorIs(t, WriteFrame(io.Discard, env, 64), ErrFrameTooLarge)

	var buf bytes.Buffer
	require.NoError(t, WriteFrame(&buf, env, 0))
	_, err = ReadFrame(bytes.NewReader(buf.Bytes()), 64)
	assert.ErrorIs(t, err, ErrFrameTooLarge)

	_, err = ReadFrame(bytes.NewReader([]byte{0, 0, 0, 0}), 0)
	assert.ErrorIs(t, err, ErrFrameTooLarge)

	_, err = ReadFrame(bytes.NewReader(buf.Bytes()[:10]), 0)
	require.Error(t, err)
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestEnvelopeValidation(t *testing.T) {
	_, err := NewEnvelope(" ", 1, "", struct{}{})
	assert.ErrorIs(t, err, ErrInvalidFrame)

	bad := Envelope{SchemaVersion: "v0", Type: "replay", Payload: []byte(`{}`)}
	assert.ErrorIs(t, WriteFrame(io.Discard, bad, 0), ErrUnsupportedVers)

	empty := Envelope{SchemaVersion: SchemaVersion, Type: "replay"}
	assert.ErrorIs(t, WriteFrame(io.Discard, empty, 0), ErrInvalidFrame)
	assert.ErrorIs(t, empty.DecodePayload(&struct{}{}), ErrInvalidFrame)
}

func TestDecodeEventsRejectsUnknownType(t *testing.T) {
	_, err := DecodeEvents([]byte(`[{"type":"mouse","subtype":"move","gametime":5,"xpos":1,"ypos":2},{"type":"wheel"}]`))
	assert.ErrorIs(t, err, ErrInvalidFrame)

	events, err := DecodeEvents([]byte(`[{"type":"terminate","how":"win"}]`))
	require.NoError(t, err)
	assert.Equal(t, []replay.Event{replay.TerminateEvent{How: replay.OutcomeWin}}, events)
}

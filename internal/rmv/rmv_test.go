package rmv

import (
	"bytes"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/g960059/sweepview/internal/replay"
	"github.com/g960059/sweepview/internal/testutil"
)

func intPtr(v int) *int { return &v }

func TestDecodeV2(t *testing.T) {
	rp, err := DecodeBytes(testutil.RMVv2().Bytes(), "v2.rmv")
	require.NoError(t, err)

	assert.Equal(t, replay.FormatRMV, rp.Format())
	assert.Equal(t, 2, rp.FormatVersion)
	assert.Equal(t, 1, rp.CloneID)
	assert.Equal(t, 3, rp.CloneMajorVersion)
	assert.Equal(t, [4]byte{'*', 'r', 'm', 'v'}, rp.Magic)
	assert.Equal(t, "Viennasweeper 3.1", rp.VersionInfo)

	nick, ok := rp.Player("nickname")
	require.True(t, ok)
	assert.Equal(t, "ralokt", nick)
	assert.Equal(t, map[string]string{
		"name": "Thomas", "nickname": "ralokt", "country": "Österreich", "token": "tok-ralokt",
	}, rp.PlayerData())
	assert.Equal(t, "tok-ralokt", rp.BestTokenSource())

	assert.Equal(t, replay.Dimensions{Rows: 8, Cols: 8}, rp.Dimensions())
	assert.Equal(t, testutil.RMVv1Mines, rp.Mines())
	assert.Equal(t, []replay.Cell{{Row: 0, Col: 7}}, rp.Preflags())

	props := rp.Properties()
	assert.False(t, props.QuestionMarks)
	require.NotNil(t, props.NonFlagging)
	assert.True(t, *props.NonFlagging)
	assert.Equal(t, replay.ModeNormal, props.Mode)
	assert.Equal(t, replay.LevelBeginner, props.Level)

	assert.True(t, rp.UTF8)
	assert.Equal(t, 268, rp.BBBV)
	assert.Equal(t, 24, rp.SquareSize)
	assert.Equal(t, 181, rp.TotalTime)
	assert.Equal(t, bytes.Repeat([]byte{0x5a}, 16), rp.Checksum)

	seed, ok := rp.ExtensionProperty("seed")
	require.True(t, ok)
	assert.Equal(t, []byte{0x00, 0x2a}, seed)

	ts, ok := rp.BoardGenerationTime()
	require.True(t, ok)
	assert.Equal(t, time.Unix(1700000000, 0).UTC(), ts)
}

func TestDecodeV2Events(t *testing.T) {
	rp, err := DecodeBytes(testutil.RMVv2().Bytes(), "v2.rmv")
	require.NoError(t, err)

	events := rp.Events()
	require.Len(t, events, 7)
	assert.Equal(t, []replay.Event{
		replay.BoardEvent{Action: replay.CellOpen1, Col: 7, Row: 7},
		replay.TerminateEvent{How: replay.OutcomeWin},
	}, events[5:])

	assert.Equal(t, replay.MouseEvent{Action: replay.MouseMove, GameTime: 5, X: 9, Y: 17, Flags: intPtr(0)}, events[1])
	assert.Equal(t, replay.MouseEvent{Action: replay.MouseMove, GameTime: 8, X: 1, Y: 16, Flags: intPtr(0)}, events[2])
	assert.Equal(t, replay.MouseEvent{Action: replay.MouseLeftDown, GameTime: 100, X: 120, Y: 120, Flags: intPtr(1)}, events[3])

	how, ok := replay.Terminal(events)
	require.True(t, ok)
	assert.Equal(t, replay.OutcomeWin, how.How)
}

func TestDecodeV1(t *testing.T) {
	hook := logtest.NewGlobal()
	t.Cleanup(hook.Reset)

	rp, err := DecodeBytes(testutil.RMVv1().Bytes(), "v1.rmv")
	require.NoError(t, err)

	assert.Equal(t, 1, rp.FormatVersion)
	assert.Equal(t, 0, rp.CloneID)
	assert.False(t, rp.UTF8)
	assert.Equal(t, 14, rp.BBBV)
	assert.Equal(t, 16, rp.SquareSize)
	assert.Nil(t, rp.Preflags())

	country, ok := rp.Player("country")
	require.True(t, ok)
	assert.Equal(t, "Österreich", country)
	_, ok = rp.Player("token")
	assert.False(t, ok)
	assert.Equal(t, "tkolar", rp.BestTokenSource())

	nick, ok := rp.ResultField("NICK")
	require.True(t, ok)
	assert.Equal(t, "tkolar", nick)

	props := rp.Properties()
	assert.True(t, props.QuestionMarks)
	assert.Equal(t, replay.LevelBeginner, props.Level)

	events := rp.Events()
	require.Len(t, events, 8)
	assert.Equal(t, replay.MouseEvent{Action: replay.MouseMove, GameTime: 0, X: 100, Y: 100, Flags: intPtr(0)}, events[0])
	assert.Equal(t, replay.BoardEvent{Action: replay.CellOpen, Col: 6, Row: 6}, events[3])
	assert.Equal(t, replay.TimestampChangeEvent{NewTimestamp: 1621701550}, events[4])
	assert.Equal(t, replay.MouseEvent{Action: replay.MouseLeftDown, GameTime: 1500, X: 16, Y: 16, Flags: intPtr(0)}, events[5])
	assert.Equal(t, replay.TerminateEvent{How: replay.OutcomeBlast}, events[7])

	var warned bool
	for _, e := range hook.AllEntries() {
		if e.Level == logrus.WarnLevel && e.Data["replay"] == "v1.rmv" {
			warned = true
			assert.Equal(t, 1621701550, e.Data["new_timestamp"])
		}
	}
	assert.True(t, warned)
}

func TestDecodeV1UTF8Flag(t *testing.T) {
	f := testutil.RMVv1()
	f.Properties = []byte{0, 0, 0, 0, 1}
	f.Player = [][]byte{[]byte("tkolar"), []byte("tk"), []byte("Österreich")}
	rp, err := DecodeBytes(f.Bytes(), "utf8.rmv")
	require.NoError(t, err)
	assert.True(t, rp.UTF8)
	country, _ := rp.Player("country")
	assert.Equal(t, "Österreich", country)
}

func TestDecodeIsDeterministic(t *testing.T) {
	for _, f := range []testutil.RMVFile{testutil.RMVv1(), testutil.RMVv2()} {
		b := f.Bytes()
		first, err := DecodeBytes(b, "x.rmv")
		require.NoError(t, err)
		second, err := Decode(bytes.NewReader(b), "x.rmv")
		require.NoError(t, err)
		assert.Equal(t, first, second)
	}
}

func TestReducedDelta(t *testing.T) {
	tests := []struct {
		mv     byte
		dx, dy int
	}{
		{0xf0, -1, 0},
		{0x80, -8, 0},
		{0x70, 7, 0},
		{0x0f, 0, -1},
		{0x08, 0, -8},
		{0x07, 0, 7},
		{0x00, 0, 0},
		{0x9e, -7, -2},
	}
	for _, tt := range tests {
		dx, dy := ReducedDelta(tt.mv)
		assert.Equal(t, tt.dx, dx, "dx of %#x", tt.mv)
		assert.Equal(t, tt.dy, dy, "dy of %#x", tt.mv)
	}
}

func TestDecodeRejects(t *testing.T) {
	tests := []struct {
		name string
		file func() testutil.RMVFile
		want error
	}{
		{"unknown type", func() testutil.RMVFile {
			f := testutil.RMVv2()
			f.Type = 3
			return f
		}, replay.ErrUnknownFormatVersion},
		{"reduced move first", func() testutil.RMVFile {
			f := testutil.RMVv2()
			f.Events = f.Events[1:]
			return f
		}, replay.ErrInvalidReplay},
		{"unknown event", func() testutil.RMVFile {
			f := testutil.RMVv1()
			f.Events = append([][]byte{{8}}, f.Events...)
			return f
		}, replay.ErrInvalidReplay},
		{"bad mode", func() testutil.RMVFile {
			f := testutil.RMVv1()
			f.Properties = []byte{0, 0, 4, 0}
			return f
		}, replay.ErrInvalidReplay},
		{"bad level", func() testutil.RMVFile {
			f := testutil.RMVv1()
			f.Properties = []byte{0, 0, 0, 4}
			return f
		}, replay.ErrInvalidReplay},
		{"short v2 properties", func() testutil.RMVFile {
			f := testutil.RMVv2()
			f.Properties = []byte{0, 0, 0, 0}
			return f
		}, replay.ErrInvalidReplay},
		{"no 3BV", func() testutil.RMVFile {
			f := testutil.RMVv1()
			f.ResultString = []byte("#NICK:tkolar#")
			return f
		}, replay.ErrInvalidReplay},
		{"malformed result string", func() testutil.RMVFile {
			f := testutil.RMVv1()
			f.ResultString = []byte("#NICK#3BV:14#")
			return f
		}, replay.ErrInvalidReplay},
		{"mine outside board", func() testutil.RMVFile {
			f := testutil.RMVv1()
			f.Mines = append([]replay.Cell{{Row: 8, Col: 0}}, f.Mines[1:]...)
			return f
		}, replay.ErrInvalidReplay},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeBytes(tt.file().Bytes(), "bad.rmv")
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestDecodeWithoutTerminateFails(t *testing.T) {
	f := testutil.RMVv2()
	f.Events = f.Events[:len(f.Events)-1]
	_, err := DecodeBytes(f.Bytes(), "noterm.rmv")
	assert.Error(t, err)
}

func TestDecodeTruncated(t *testing.T) {
	b := testutil.RMVv2().Bytes()
	for _, n := range []int{0, 3, 5, 9, 20, 40, len(b) - 1} {
		_, err := DecodeBytes(b[:n], "short.rmv")
		assert.ErrorIs(t, err, replay.ErrUnexpectedEndOfData, "cut at %d", n)
	}
}

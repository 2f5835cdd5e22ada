package avf

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/g960059/sweepview/internal/replay"
	"github.com/g960059/sweepview/internal/testutil"
)

func TestDecodeBeginner(t *testing.T) {
	rp, err := DecodeBytes(testutil.AVFBeginner().Bytes(), "beginner.avf")
	require.NoError(t, err)

	assert.Equal(t, replay.FormatAVF, rp.Format())
	assert.Equal(t, "beginner.avf", rp.Name())
	assert.Equal(t, replay.Dimensions{Rows: 8, Cols: 8}, rp.Dimensions())
	assert.Equal(t, 10, rp.MineCount())
	assert.Equal(t, testutil.AVFBeginnerMines, rp.Mines())

	props := rp.Properties()
	assert.Equal(t, replay.LevelBeginner, props.Level)
	assert.True(t, props.QuestionMarks)
	assert.Nil(t, props.NonFlagging)

	assert.Equal(t, 52, rp.Version)
	assert.False(t, rp.Freesweeper)
	assert.Equal(t, [4]byte{1, 2, 3, 4}, rp.Reserved)
	assert.Equal(t, 7, rp.BBBV)
	assert.Equal(t, 3200, rp.GameTime)
	assert.Equal(t, "Tommy", rp.PlayerName)
	assert.Equal(t, "Tommy", rp.BestTokenSource())
	assert.Equal(t, "Arbiter 0.52.3", rp.VersionInfo)

	skin, ok := rp.Footer("Skin")
	assert.True(t, ok)
	assert.Equal(t, "Classic", skin)

	ts, ok := rp.BoardGenerationTime()
	require.True(t, ok)
	assert.Equal(t, "2021-05-22T16:39:05.912000", ts.Format("2006-01-02T15:04:05.000000"))

	md := rp.Metadata()
	assert.Equal(t, "01020304", md["reserved"])
	assert.Equal(t, "Classic", md["footer.Mode"])
}

func TestDecodeEvents(t *testing.T) {
	rp, err := DecodeBytes(testutil.AVFBeginner().Bytes(), "beginner.avf")
	require.NoError(t, err)

	events := rp.Events()
	require.Len(t, events, 5)
	want := []replay.MouseEvent{
		{Action: replay.MouseMove, GameTime: 50, X: 20, Y: 20},
		{Action: replay.MouseLeftDown, GameTime: 500, X: 300, Y: 40},
		{Action: replay.MouseLeftUp, GameTime: 1100, X: 300, Y: 40},
		{Action: replay.MouseLeftUp, GameTime: 3200, X: 70, Y: 90},
		{Action: replay.MouseMove, GameTime: -1000},
	}
	for i, ev := range events {
		assert.Equal(t, want[i], ev, "event %d", i)
	}
}

func TestDecodeIsDeterministic(t *testing.T) {
	b := testutil.AVFBeginner().Bytes()
	first, err := DecodeBytes(b, "a.avf")
	require.NoError(t, err)
	second, err := Decode(bytes.NewReader(b), "a.avf")
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestDecodeFreesweeper(t *testing.T) {
	f := testutil.AVFBeginner()
	f.Version = 0
	f.Corrections = []byte{0x13, 0x20, 0xf1, 0x05, 0x00}
	f.Preamble = []byte("FS")
	rp, err := DecodeBytes(f.Bytes(), "fs.avf")
	require.NoError(t, err)

	assert.True(t, rp.Freesweeper)
	events := rp.Events()
	require.Len(t, events, 5)
	times := make([]int, len(events))
	for i, ev := range events {
		times[i] = ev.(replay.MouseEvent).GameTime
	}
	assert.Equal(t, []int{53, 500, 1101, 3205, -1000}, times)
	assert.Equal(t, 3205, rp.GameTime)
	assert.Equal(t, "Tommy", rp.PlayerName)
}

func TestDecodeCustomLevel(t *testing.T) {
	f := testutil.AVFBeginner()
	f.LevelCode = 6
	f.Cols, f.Rows = 9, 12
	f.MineCount = 2
	f.Mines = []replay.Cell{{Row: 1, Col: 1}, {Row: 12, Col: 9}}
	rp, err := DecodeBytes(f.Bytes(), "custom.avf")
	require.NoError(t, err)

	assert.Equal(t, replay.LevelCustom, rp.Properties().Level)
	assert.Equal(t, replay.Dimensions{Rows: 12, Cols: 9}, rp.Dimensions())
	assert.Equal(t, f.Mines, rp.Mines())
	_, ok := rp.BoardGenerationTime()
	assert.False(t, ok)
}

func TestDecodeWithoutQuestionMarks(t *testing.T) {
	f := testutil.AVFBeginner()
	f.QuestionMarks = false
	rp, err := DecodeBytes(f.Bytes(), "noqm.avf")
	require.NoError(t, err)
	assert.False(t, rp.Properties().QuestionMarks)
}

func TestBoardgenWithoutYear(t *testing.T) {
	f := testutil.AVFBeginner()
	f.Info = []byte("22.16:39:05:8912|22.16:39:09:3412|B7T3.52")
	rp, err := DecodeBytes(f.Bytes(), "short.avf")
	require.NoError(t, err)
	_, ok := rp.BoardGenerationTime()
	assert.False(t, ok)
}

func TestDecodeRejects(t *testing.T) {
	tests := []struct {
		name string
		edit func(*testutil.AVFFile)
		kind string
	}{
		{
			name: "bad level",
			edit: func(f *testutil.AVFFile) { f.LevelCode = 9 },
			kind: "invalid_replay",
		},
		{
			name: "mine outside board",
			edit: func(f *testutil.AVFFile) {
				f.Mines = append([]replay.Cell{{Row: 9, Col: 1}}, f.Mines[1:]...)
			},
			kind: "invalid_replay",
		},
		{
			name: "unknown mouse code",
			edit: func(f *testutil.AVFFile) { f.Events[1].Code = 2 },
			kind: "invalid_replay",
		},
		{
			name: "bad bbbv",
			edit: func(f *testutil.AVFFile) { f.Info = []byte("22.05.2021.16:39:05:8912|BxT3.52") },
			kind: "invalid_replay",
		},
		{
			name: "bad timestamp",
			edit: func(f *testutil.AVFFile) { f.Info = []byte("22.05.2021.16:39|B7T3.52") },
			kind: "invalid_replay",
		},
		{
			name: "one positional footer field",
			edit: func(f *testutil.AVFFile) { f.Footer = []byte("Tommy\rSkin:Classic") },
			kind: "invalid_replay",
		},
		{
			name: "three positional footer fields",
			edit: func(f *testutil.AVFFile) { f.Footer = []byte("Tommy\rArbiter\r\rSkin:Classic") },
			kind: "invalid_replay",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := testutil.AVFBeginner()
			f.Events = append([]testutil.AVFEvent(nil), f.Events...)
			tt.edit(&f)
			_, err := DecodeBytes(f.Bytes(), "bad.avf")
			require.Error(t, err)
			assert.Equal(t, tt.kind, replay.ErrorKind(err))
			var de *replay.DecodeError
			assert.True(t, errors.As(err, &de))
		})
	}
}

func TestDecodeTruncated(t *testing.T) {
	b := testutil.AVFBeginner().Bytes()
	// empty, inside the header, inside the mine list
	for _, n := range []int{0, 3, 12} {
		_, err := DecodeBytes(b[:n], "short.avf")
		require.Error(t, err, "cut at %d", n)
		assert.ErrorIs(t, err, replay.ErrUnexpectedEndOfData, "cut at %d", n)
	}

	eventsAt := bytes.Index(b, []byte{0x05, 0x20, 0x30}) + 3
	_, err := DecodeBytes(b[:eventsAt+12], "short.avf")
	assert.ErrorIs(t, err, replay.ErrUnexpectedEndOfData)
}

func TestDecodeMissingMarker(t *testing.T) {
	b := testutil.AVFBeginner().Bytes()
	cut := bytes.Index(b, []byte("cs="))
	_, err := DecodeBytes(b[:cut], "nocs.avf")
	require.Error(t, err)
	assert.ErrorIs(t, err, replay.ErrInvalidReplay)
}

func TestDecodeFileGzip(t *testing.T) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, err := zw.Write(testutil.AVFBeginner().Bytes())
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	path := filepath.Join(t.TempDir(), "beginner.avf.gz")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
	rp, err := DecodeFile(path)
	require.NoError(t, err)
	assert.Equal(t, path, rp.Name())
	assert.Equal(t, "Tommy", rp.PlayerName)
}

func TestParseBoardgen(t *testing.T) {
	ts, ok, err := parseBoardgen("01.12.2020.08:00:00:12")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 12000, ts.Nanosecond()/1000)

	_, _, err = parseBoardgen("31.02.2020.08:00:00:0000")
	assert.ErrorIs(t, err, replay.ErrInvalidReplay)

	_, ok, err = parseBoardgen("31.02.08:00:00:0000")
	require.NoError(t, err)
	assert.False(t, ok)
}

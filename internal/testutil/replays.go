package testutil

import (
	"bytes"

	"github.com/g960059/sweepview/internal/replay"
)

// BE encodes v as a width byte big-endian unsigned integer.
func BE(v, width int) []byte {
	out := make([]byte, width)
	for i := width - 1; i >= 0; i-- {
		out[i] = byte(v)
		v >>= 8
	}
	return out
}

// AVFEvent is one raw 8 byte Arbiter mouse record. TimeField carries the
// +1 bias of the format: 0 marks the terminal record.
type AVFEvent struct {
	Code       byte
	X, Y       int
	TimeField  int
	Hundredths byte
}

type AVFFile struct {
	Version       byte
	Reserved      [4]byte
	LevelCode     byte
	Cols, Rows    int
	MineCount     int
	Mines         []replay.Cell
	QuestionMarks bool
	Info          []byte
	Events        []AVFEvent
	// Corrections holds one byte per event, written only for version 0.
	Corrections []byte
	// Preamble is written by version 0 files between the fixed skip and the CR.
	Preamble []byte
	Footer   []byte
}

func (f AVFFile) Bytes() []byte {
	var b bytes.Buffer
	b.WriteByte(f.Version)
	b.Write(f.Reserved[:])
	b.WriteByte(f.LevelCode)
	if f.LevelCode == 6 {
		b.WriteByte(byte(f.Cols - 1))
		b.WriteByte(byte(f.Rows - 1))
		b.Write(BE(f.MineCount, 2))
	}
	for _, m := range f.Mines {
		b.WriteByte(byte(m.Row))
		b.WriteByte(byte(m.Col))
	}
	flag := byte(0)
	if f.QuestionMarks {
		flag = 17
	}
	b.Write([]byte{0x0a, 0x00, flag, 0x7c, '['})
	b.Write(f.Info)
	b.WriteByte(']')
	b.Write([]byte{0x05, 0x20, 0x30})
	for _, e := range f.Events {
		b.Write([]byte{
			e.Code,
			byte(e.X >> 8), byte(e.TimeField), byte(e.X),
			e.Hundredths,
			byte(e.Y >> 8), byte(e.TimeField >> 8), byte(e.Y),
		})
	}
	b.Write([]byte{0x00, 0x00, 0x2a})
	b.WriteString("cs=")
	if f.Version == 0 {
		b.Write(f.Corrections)
	}
	b.Write(bytes.Repeat([]byte{'0'}, 17))
	if f.Version == 0 {
		b.Write(f.Preamble)
		b.WriteByte('\r')
	}
	b.Write(f.Footer)
	return b.Bytes()
}

// AVFBeginnerMines are the mines of the documented beginner sample.
var AVFBeginnerMines = []replay.Cell{
	{Row: 4, Col: 1}, {Row: 5, Col: 2}, {Row: 8, Col: 2}, {Row: 2, Col: 3}, {Row: 6, Col: 3},
	{Row: 4, Col: 5}, {Row: 8, Col: 5}, {Row: 6, Col: 6}, {Row: 8, Col: 6}, {Row: 4, Col: 7},
}

// AVFBeginner is a beginner game played by "Tommy", generated on
// 2021-05-22 16:39:05.912.
func AVFBeginner() AVFFile {
	return AVFFile{
		Version:       52,
		Reserved:      [4]byte{0x01, 0x02, 0x03, 0x04},
		LevelCode:     3,
		Mines:         AVFBeginnerMines,
		QuestionMarks: true,
		Info:          []byte("22.05.2021.16:39:05:8912|22.05.2021.16:39:09:3412|B7T3.52"),
		Events: []AVFEvent{
			{Code: 1, X: 20, Y: 20, TimeField: 1, Hundredths: 5},
			{Code: 3, X: 300, Y: 40, TimeField: 1, Hundredths: 50},
			{Code: 21, X: 300, Y: 40, TimeField: 2, Hundredths: 10},
			{Code: 5, X: 70, Y: 90, TimeField: 4, Hundredths: 20},
			{Code: 1, TimeField: 0},
		},
		Footer: []byte("Tommy\rArbiter 0.52.3\rSkin: Classic \rMode:Classic"),
	}
}

type EVFEvent struct {
	Op   byte
	Time int
	X, Y int
}

type EVFFile struct {
	Version   byte
	Summary   byte
	Settings  byte
	Rows      int
	Cols      int
	MineCount int
	CellSize  byte
	Mode      int
	BBBV      int
	TotalTime int
	// Strings are version info, user, competition, unique id, start and
	// end timestamps, country and uuid.
	Strings    [8]string
	Mines      []replay.Cell
	Events     []EVFEvent
	Terminator byte
	Checksum   []byte
}

func (f EVFFile) Bytes() []byte {
	var b bytes.Buffer
	b.WriteByte(f.Version)
	b.WriteByte(f.Summary)
	b.WriteByte(f.Settings)
	b.WriteByte(byte(f.Rows))
	b.WriteByte(byte(f.Cols))
	b.Write(BE(f.MineCount, 2))
	b.WriteByte(f.CellSize)
	b.Write(BE(f.Mode, 2))
	b.Write(BE(f.BBBV, 2))
	b.Write(BE(f.TotalTime, 3))
	for _, s := range f.Strings {
		b.WriteString(s)
		b.WriteByte(0)
	}
	board := make([]byte, (f.Rows*f.Cols+7)/8)
	for _, m := range f.Mines {
		bit := m.Row*f.Cols + m.Col
		board[bit/8] |= 0x80 >> (bit % 8)
	}
	b.Write(board)
	for _, e := range f.Events {
		b.WriteByte(e.Op)
		b.Write(BE(e.Time, 3))
		b.Write(BE(e.X, 2))
		b.Write(BE(e.Y, 2))
	}
	b.WriteByte(f.Terminator)
	if f.Terminator == 0 {
		b.Write(f.Checksum)
	}
	return b.Bytes()
}

// EVFExpertMines are the 99 mines of the expert sample as (row, col).
var EVFExpertMines = []replay.Cell{
	{Row: 4, Col: 0}, {Row: 10, Col: 0}, {Row: 12, Col: 0}, {Row: 14, Col: 0}, {Row: 6, Col: 1}, {Row: 7, Col: 2}, {Row: 9, Col: 2}, {Row: 10, Col: 2}, {Row: 15, Col: 2}, {Row: 5, Col: 3},
	{Row: 6, Col: 3}, {Row: 10, Col: 3}, {Row: 2, Col: 4}, {Row: 7, Col: 4}, {Row: 8, Col: 4}, {Row: 11, Col: 4}, {Row: 13, Col: 4}, {Row: 8, Col: 5}, {Row: 11, Col: 5}, {Row: 8, Col: 6},
	{Row: 13, Col: 6}, {Row: 5, Col: 7}, {Row: 6, Col: 7}, {Row: 8, Col: 7}, {Row: 10, Col: 7}, {Row: 12, Col: 7}, {Row: 2, Col: 8}, {Row: 3, Col: 8}, {Row: 7, Col: 8}, {Row: 7, Col: 9},
	{Row: 2, Col: 10}, {Row: 3, Col: 10}, {Row: 5, Col: 10}, {Row: 7, Col: 10}, {Row: 3, Col: 11}, {Row: 11, Col: 11}, {Row: 13, Col: 11}, {Row: 6, Col: 12}, {Row: 7, Col: 12}, {Row: 8, Col: 12},
	{Row: 11, Col: 12}, {Row: 3, Col: 13}, {Row: 9, Col: 13}, {Row: 11, Col: 13}, {Row: 9, Col: 14}, {Row: 14, Col: 14}, {Row: 0, Col: 15}, {Row: 8, Col: 15}, {Row: 8, Col: 16}, {Row: 9, Col: 16},
	{Row: 3, Col: 17}, {Row: 5, Col: 17}, {Row: 7, Col: 17}, {Row: 9, Col: 18}, {Row: 10, Col: 18}, {Row: 13, Col: 18}, {Row: 6, Col: 19}, {Row: 7, Col: 19}, {Row: 9, Col: 19}, {Row: 12, Col: 19},
	{Row: 4, Col: 20}, {Row: 7, Col: 20}, {Row: 14, Col: 20}, {Row: 15, Col: 20}, {Row: 0, Col: 21}, {Row: 3, Col: 21}, {Row: 6, Col: 21}, {Row: 8, Col: 21}, {Row: 10, Col: 21}, {Row: 13, Col: 21},
	{Row: 4, Col: 22}, {Row: 7, Col: 22}, {Row: 8, Col: 22}, {Row: 9, Col: 22}, {Row: 10, Col: 22}, {Row: 14, Col: 22}, {Row: 2, Col: 23}, {Row: 7, Col: 23}, {Row: 8, Col: 23}, {Row: 9, Col: 23},
	{Row: 12, Col: 24}, {Row: 13, Col: 24}, {Row: 1, Col: 25}, {Row: 2, Col: 25}, {Row: 5, Col: 25}, {Row: 10, Col: 25}, {Row: 15, Col: 25}, {Row: 11, Col: 26}, {Row: 14, Col: 26}, {Row: 1, Col: 27},
	{Row: 5, Col: 27}, {Row: 8, Col: 27}, {Row: 14, Col: 27}, {Row: 1, Col: 28}, {Row: 11, Col: 28}, {Row: 2, Col: 29}, {Row: 9, Col: 29}, {Row: 13, Col: 29}, {Row: 14, Col: 29},
}

// EVFExpert is an expert game by "Szymon_M" closed with a checksum.
func EVFExpert() EVFFile {
	return EVFFile{
		Version:   3,
		Summary:   0x70,
		Settings:  0x00,
		Rows:      16,
		Cols:      30,
		MineCount: len(EVFExpertMines),
		CellSize:  16,
		Mode:      0,
		BBBV:      167,
		TotalTime: 69597,
		Strings: [8]string{
			"Metasweeper 3.1.9", "Szymon_M", "", "", "1700000000123456", "1700000069720456", "PL", "c0ffee00-0000-4000-8000-000000000001",
		},
		Mines: EVFExpertMines,
		Events: []EVFEvent{
			{Op: 1, Time: 0, X: 100, Y: 100},
			{Op: 2, Time: 320, X: 104, Y: 98},
			{Op: 3, Time: 410, X: 104, Y: 98},
			{Op: 4, Time: 69000, X: 200, Y: 17},
			{Op: 5, Time: 69597, X: 200, Y: 17},
		},
		Terminator: 0,
		Checksum:   bytes.Repeat([]byte{0xab}, 32),
	}
}

// RMV event encoders.

func RMVMouse(code byte, time, flags, x, y int) []byte {
	out := []byte{code}
	out = append(out, BE(time, 3)...)
	out = append(out, byte(flags))
	out = append(out, BE(x, 2)...)
	return append(out, BE(y, 2)...)
}

func RMVReducedMove(dt byte, packed byte) []byte {
	return []byte{28, dt, packed}
}

func RMVBoard(code byte, col, row int) []byte {
	return []byte{code, byte(col), byte(row)}
}

func RMVTerminate(code byte) []byte {
	return []byte{code}
}

func RMVTimestampChange(ts int) []byte {
	return append([]byte{0}, BE(ts, 4)...)
}

type RMVProperty struct {
	Key   string
	Value []byte
}

type RMVFile struct {
	Magic          [4]byte
	Type           int
	CloneID        byte
	CloneMajor     byte
	ResultString   []byte
	VersionInfo    []byte
	Player         [][]byte
	BoardTimestamp int
	Cols, Rows     int
	Mines          []replay.Cell
	// Preflags is written only when non-nil.
	Preflags   []replay.Cell
	Properties []byte
	Extension  []RMVProperty
	Events     [][]byte
	TotalTime  int
	Checksum   []byte
}

func cellPairs(cells []replay.Cell) []byte {
	var out []byte
	for _, c := range cells {
		out = append(out, byte(c.Col), byte(c.Row))
	}
	return out
}

func (f RMVFile) Bytes() []byte {
	var player bytes.Buffer
	player.Write(BE(len(f.Player), 2))
	for _, p := range f.Player {
		player.WriteByte(byte(len(p)))
		player.Write(p)
	}
	var board bytes.Buffer
	board.Write(BE(f.BoardTimestamp, 4))
	board.WriteByte(byte(f.Cols))
	board.WriteByte(byte(f.Rows))
	board.Write(BE(len(f.Mines), 2))
	board.Write(cellPairs(f.Mines))
	var preflags bytes.Buffer
	if f.Preflags != nil {
		preflags.Write(BE(len(f.Preflags), 2))
		preflags.Write(cellPairs(f.Preflags))
	}
	var ext bytes.Buffer
	if f.Type >= 2 {
		ext.Write(BE(len(f.Extension), 2))
		for _, p := range f.Extension {
			ext.WriteByte(byte(len(p.Key)))
			ext.WriteString(p.Key)
			ext.WriteByte(byte(len(p.Value)))
			ext.Write(p.Value)
		}
	}
	video := bytes.Join(f.Events, nil)

	var b bytes.Buffer
	b.Write(f.Magic[:])
	b.Write(BE(f.Type, 2))
	if f.Type >= 2 {
		b.WriteByte(f.CloneID)
		b.WriteByte(f.CloneMajor)
	}
	sizePos := b.Len()
	b.Write(BE(0, 4))
	if f.Type == 1 {
		b.Write(BE(len(f.ResultString), 2))
	}
	b.Write(BE(len(f.VersionInfo), 2))
	b.Write(BE(player.Len(), 2))
	b.Write(BE(board.Len(), 2))
	b.Write(BE(preflags.Len(), 2))
	b.Write(BE(len(f.Properties), 2))
	if f.Type >= 2 {
		b.Write(BE(ext.Len(), 2))
	}
	b.Write(BE(len(video)+3, 4))
	b.Write(BE(len(f.Checksum), 2))
	if f.Type == 1 {
		b.Write(f.ResultString)
	}
	b.Write(f.VersionInfo)
	b.Write(player.Bytes())
	b.Write(board.Bytes())
	b.Write(preflags.Bytes())
	b.Write(f.Properties)
	b.Write(ext.Bytes())
	b.Write(video)
	b.Write(BE(f.TotalTime, 3))
	b.Write(f.Checksum)

	out := b.Bytes()
	copy(out[sizePos:sizePos+4], BE(len(out), 4))
	return out
}

// RMVv1Mines are the mines of the v1 beginner sample as (row, col).
var RMVv1Mines = []replay.Cell{
	{Row: 1, Col: 3}, {Row: 2, Col: 3}, {Row: 4, Col: 2}, {Row: 4, Col: 3}, {Row: 4, Col: 4}, {Row: 4, Col: 5}, {Row: 4, Col: 6}, {Row: 5, Col: 4}, {Row: 6, Col: 6}, {Row: 7, Col: 6},
}

// RMVv1 is a lost beginner game by "tkolar" using the cp1252 code page.
func RMVv1() RMVFile {
	return RMVFile{
		Magic:          [4]byte{'*', 'r', 'm', 'v'},
		Type:           1,
		ResultString:   []byte("#NICK:tkolar#3BV:14#TIME:5.23#"),
		VersionInfo:    []byte("Vienna MineSweeper 1.0"),
		Player:         [][]byte{[]byte("tkolar"), []byte("tk"), {0xd6, 's', 't', 'e', 'r', 'r', 'e', 'i', 'c', 'h'}},
		BoardTimestamp: 1621701545,
		Cols:           8,
		Rows:           8,
		Mines:          RMVv1Mines,
		Properties:     []byte{1, 0, 0, 0, 0},
		Events: [][]byte{
			RMVMouse(1, 0, 0, 112, 156),
			RMVMouse(2, 850, 0, 112, 156),
			RMVMouse(3, 910, 0, 112, 156),
			RMVBoard(14, 6, 6),
			RMVTimestampChange(1621701550),
			RMVMouse(2, 1500, 0, 28, 72),
			RMVBoard(27, 1, 1),
			RMVTerminate(15),
		},
		TotalTime: 1520,
		Checksum:  []byte("v1sum"),
	}
}

// RMVv2 is a won beginner game by "ralokt" written by clone 1.
func RMVv2() RMVFile {
	return RMVFile{
		Magic:          [4]byte{'*', 'r', 'm', 'v'},
		Type:           2,
		CloneID:        1,
		CloneMajor:     3,
		VersionInfo:    []byte("Viennasweeper 3.1"),
		Player:         [][]byte{[]byte("Thomas"), []byte("ralokt"), []byte("Österreich"), []byte("tok-ralokt")},
		BoardTimestamp: 1700000000,
		Cols:           8,
		Rows:           8,
		Mines:          RMVv1Mines,
		Preflags:       []replay.Cell{{Row: 0, Col: 7}},
		Properties:     []byte{0, 1, 0, 0, 0x0c, 0x01, 24},
		Extension: []RMVProperty{
			{Key: "skin", Value: []byte("classic")},
			{Key: "seed", Value: []byte{0x00, 0x2a}},
		},
		Events: [][]byte{
			RMVMouse(1, 0, 0, 10, 10),
			RMVReducedMove(5, 0xf7),
			RMVReducedMove(3, 0x8f),
			RMVMouse(2, 100, 1, 120, 120),
			RMVMouse(3, 180, 1, 120, 120),
			RMVBoard(19, 7, 7),
			RMVTerminate(16),
		},
		TotalTime: 181,
		Checksum:  bytes.Repeat([]byte{0x5a}, 16),
	}
}

package avf

import (
	"strconv"
	"strings"
	"time"

	"github.com/g960059/sweepview/internal/replay"
)

// parseBoardgen reads a "dd[.mm[.yyyy]].hh:mm:ss:ffff" info segment. The
// date parts are optional in the wild; without all three there is no
// usable timestamp, which is reported as ok == false rather than an error.
func parseBoardgen(seg string) (time.Time, bool, error) {
	parts := strings.Split(strings.TrimSpace(seg), ".")
	if len(parts) < 2 || len(parts) > 4 {
		return time.Time{}, false, replay.Invalid("bad timestamp %q", seg)
	}
	clock := strings.Split(parts[len(parts)-1], ":")
	if len(clock) != 4 {
		return time.Time{}, false, replay.Invalid("bad timestamp %q", seg)
	}
	hour, e1 := bounded(clock[0], 0, 23)
	minute, e2 := bounded(clock[1], 0, 59)
	second, e3 := bounded(clock[2], 0, 59)
	micros, e4 := fractionMicros(clock[3])
	if e1 != nil || e2 != nil || e3 != nil || e4 != nil {
		return time.Time{}, false, replay.Invalid("bad timestamp %q", seg)
	}

	date := parts[:len(parts)-1]
	day, err := bounded(date[0], 1, 31)
	if err != nil {
		return time.Time{}, false, replay.Invalid("bad timestamp %q", seg)
	}
	if len(date) < 3 {
		return time.Time{}, false, nil
	}
	month, e1 := bounded(date[1], 1, 12)
	year, e2 := bounded(date[2], 1, 9999)
	if e1 != nil || e2 != nil {
		return time.Time{}, false, replay.Invalid("bad timestamp %q", seg)
	}
	ts := time.Date(year, time.Month(month), day, hour, minute, second, micros*1000, time.UTC)
	if ts.Day() != day {
		return time.Time{}, false, replay.Invalid("bad timestamp %q", seg)
	}
	return ts, true, nil
}

// fractionMicros converts the sub-second group. Arbiter writes four
// digits whose leading digit is not part of the millisecond value: only
// the last three count, as milliseconds.
func fractionMicros(s string) (int, error) {
	switch len(s) {
	case 4:
		s = s[1:]
	case 1, 2, 3:
	default:
		return 0, strconv.ErrSyntax
	}
	ms, err := bounded(s, 0, 999)
	if err != nil {
		return 0, err
	}
	return ms * 1000, nil
}

func bounded(s string, lo, hi int) (int, error) {
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, err
	}
	if v < lo || v > hi {
		return 0, strconv.ErrRange
	}
	return v, nil
}

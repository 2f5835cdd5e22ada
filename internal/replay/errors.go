package replay

import (
	"errors"
	"fmt"

	"github.com/g960059/sweepview/internal/cursor"
)

var (
	ErrInvalidReplay        = errors.New("replay: invalid replay")
	ErrUnknownFormatVersion = errors.New("replay: unknown format version")
	ErrUnexpectedEndOfData  = cursor.ErrUnexpectedEnd
)

// DecodeError carries the decoder, the field being read and the byte offset
// where the field started. Err wraps exactly one of the sentinels above.
type DecodeError struct {
	Format Format
	Name   string
	Field  string
	Offset int
	Err    error
}

func (e *DecodeError) Error() string {
	src := ""
	if e.Name != "" {
		src = " " + e.Name
	}
	return fmt.Sprintf("%s%s: %s at offset %d: %v", e.Format, src, e.Field, e.Offset, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Invalid builds an ErrInvalidReplay with a formatted reason.
func Invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidReplay, fmt.Sprintf(format, args...))
}

// ErrorKind names the sentinel an error matches, for logs and the catalog.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrUnknownFormatVersion):
		return "unknown_format_version"
	case errors.Is(err, ErrInvalidReplay):
		return "invalid_replay"
	case errors.Is(err, ErrUnexpectedEndOfData):
		return "unexpected_end_of_data"
	default:
		return "error"
	}
}

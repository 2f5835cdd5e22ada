// Package cursor implements a forward-reading cursor over an in-memory
// replay file. All reads are bounds checked: running off the end of the
// source is always reported as ErrUnexpectedEnd, never as a panic or a
// silent zero fill.
package cursor

import (
	"bytes"
	"errors"
	"fmt"
	"io"
)

var (
	ErrUnexpectedEnd  = errors.New("cursor: unexpected end of data")
	ErrMarkerNotFound = errors.New("cursor: marker not found")
	ErrSeekOutOfRange = errors.New("cursor: seek out of range")
	ErrIntWidth       = errors.New("cursor: unsupported integer width")
)

type Cursor struct {
	buf []byte
	off int
}

func New(b []byte) *Cursor {
	return &Cursor{buf: b}
}

// FromReader drains r into memory. Replay files are small, and the AVF
// framing needs to look back a few bytes after a marker.
func FromReader(r io.Reader) (*Cursor, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read source: %w", err)
	}
	return New(b), nil
}

// Offset is the number of bytes consumed so far.
func (c *Cursor) Offset() int {
	return c.off
}

// Len is the number of bytes left.
func (c *Cursor) Len() int {
	return len(c.buf) - c.off
}

// Read returns exactly n bytes. The slice aliases the source buffer.
func (c *Cursor) Read(n int) ([]byte, error) {
	if n < 0 {
		return nil, fmt.Errorf("%w: negative length %d", ErrSeekOutOfRange, n)
	}
	if c.Len() < n {
		return nil, fmt.Errorf("%w: need %d bytes at offset %d, %d left", ErrUnexpectedEnd, n, c.off, c.Len())
	}
	b := c.buf[c.off : c.off+n]
	c.off += n
	return b, nil
}

func (c *Cursor) ReadByte() (byte, error) {
	if c.Len() < 1 {
		return 0, fmt.Errorf("%w: need 1 byte at offset %d", ErrUnexpectedEnd, c.off)
	}
	b := c.buf[c.off]
	c.off++
	return b, nil
}

func (c *Cursor) Skip(n int) error {
	_, err := c.Read(n)
	return err
}

// ReadUintBE interprets the next n bytes (1..8) as a big-endian unsigned integer.
func (c *Cursor) ReadUintBE(n int) (uint64, error) {
	if n < 1 || n > 8 {
		return 0, fmt.Errorf("%w: %d", ErrIntWidth, n)
	}
	b, err := c.Read(n)
	if err != nil {
		return 0, err
	}
	var v uint64
	for _, x := range b {
		v = v<<8 | uint64(x)
	}
	return v, nil
}

// ReadCString reads up to a NUL byte. The terminator is consumed but not returned.
func (c *Cursor) ReadCString() ([]byte, error) {
	i := bytes.IndexByte(c.buf[c.off:], 0)
	if i < 0 {
		return nil, fmt.Errorf("%w: unterminated string at offset %d", ErrUnexpectedEnd, c.off)
	}
	s := c.buf[c.off : c.off+i]
	c.off += i + 1
	return s, nil
}

// ReadUntil returns the bytes before the next delim and consumes the delim.
func (c *Cursor) ReadUntil(delim byte) ([]byte, error) {
	i := bytes.IndexByte(c.buf[c.off:], delim)
	if i < 0 {
		start := c.off
		c.off = len(c.buf)
		return nil, fmt.Errorf("%w: %q after offset %d: %w", ErrMarkerNotFound, delim, start, ErrUnexpectedEnd)
	}
	s := c.buf[c.off : c.off+i]
	c.off += i + 1
	return s, nil
}

// Seek moves the cursor relative to its current position.
func (c *Cursor) Seek(offset int) error {
	next := c.off + offset
	if next < 0 || next > len(c.buf) {
		return fmt.Errorf("%w: %d from offset %d", ErrSeekOutOfRange, offset, c.off)
	}
	c.off = next
	return nil
}

// ScanUntil advances one byte at a time until the last window bytes
// consumed by this scan satisfy match. The cursor is left just past the
// matching window. Exhausting the source is ErrMarkerNotFound, which also
// matches ErrUnexpectedEnd.
func (c *Cursor) ScanUntil(window int, match func(tail []byte) bool) error {
	if window < 1 {
		return fmt.Errorf("%w: window %d", ErrSeekOutOfRange, window)
	}
	start := c.off
	for c.off < len(c.buf) {
		c.off++
		if c.off-start >= window && match(c.buf[c.off-window:c.off]) {
			return nil
		}
	}
	return fmt.Errorf("%w: scan from offset %d: %w", ErrMarkerNotFound, start, ErrUnexpectedEnd)
}

// ScanFor is ScanUntil with a literal marker.
func (c *Cursor) ScanFor(marker []byte) error {
	err := c.ScanUntil(len(marker), func(tail []byte) bool {
		return bytes.Equal(tail, marker)
	})
	if err != nil {
		return fmt.Errorf("scan for %q: %w", marker, err)
	}
	return nil
}

// Rest consumes and returns everything that is left.
func (c *Cursor) Rest() []byte {
	b := c.buf[c.off:]
	c.off = len(c.buf)
	return b
}

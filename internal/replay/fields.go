package replay

import (
	"github.com/g960059/sweepview/internal/cursor"
)

// FieldReader reads named header fields from a cursor and keeps the first
// failure, so a decoder can read a run of fixed fields and check Err once.
// After a failure every read returns a zero value without touching the
// cursor.
type FieldReader struct {
	cur    *cursor.Cursor
	format Format
	name   string
	err    error
}

func NewFieldReader(cur *cursor.Cursor, format Format, name string) *FieldReader {
	return &FieldReader{cur: cur, format: format, name: name}
}

func (r *FieldReader) Cursor() *cursor.Cursor {
	return r.cur
}

func (r *FieldReader) Err() error {
	return r.err
}

// Fail records err against field unless an earlier failure is already held.
// It returns the held error.
func (r *FieldReader) Fail(field string, err error) error {
	return r.FailAt(field, r.cur.Offset(), err)
}

// FailAt is Fail with an explicit field offset, for values rejected after
// they were read.
func (r *FieldReader) FailAt(field string, offset int, err error) error {
	if r.err == nil && err != nil {
		r.err = &DecodeError{Format: r.format, Name: r.name, Field: field, Offset: offset, Err: err}
	}
	return r.err
}

func (r *FieldReader) Uint(field string, n int) int {
	if r.err != nil {
		return 0
	}
	off := r.cur.Offset()
	v, err := r.cur.ReadUintBE(n)
	if err != nil {
		r.FailAt(field, off, err)
		return 0
	}
	return int(v)
}

func (r *FieldReader) Byte(field string) byte {
	if r.err != nil {
		return 0
	}
	off := r.cur.Offset()
	b, err := r.cur.ReadByte()
	if err != nil {
		r.FailAt(field, off, err)
		return 0
	}
	return b
}

// Bytes returns a copy so decoded records never alias the source buffer.
func (r *FieldReader) Bytes(field string, n int) []byte {
	if r.err != nil {
		return nil
	}
	off := r.cur.Offset()
	b, err := r.cur.Read(n)
	if err != nil {
		r.FailAt(field, off, err)
		return nil
	}
	return append([]byte(nil), b...)
}

func (r *FieldReader) CString(field string) []byte {
	if r.err != nil {
		return nil
	}
	off := r.cur.Offset()
	b, err := r.cur.ReadCString()
	if err != nil {
		r.FailAt(field, off, err)
		return nil
	}
	return append([]byte(nil), b...)
}

func (r *FieldReader) Skip(field string, n int) {
	if r.err != nil {
		return
	}
	off := r.cur.Offset()
	if err := r.cur.Skip(n); err != nil {
		r.FailAt(field, off, err)
	}
}

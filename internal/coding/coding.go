package coding

import (
	"encoding/binary"
	"errors"
	"math"
)

var (
	// ErrTruncated is returned when input ends in the middle of a field.
	ErrTruncated = errors.New("truncated input")

	// ErrOverflow is returned when a varint does not fit the requested width.
	ErrOverflow = errors.New("varint overflow")

	// ErrLengthExceeded is returned when a length prefix is larger than the
	// remaining input.
	ErrLengthExceeded = errors.New("length prefix exceeds remaining input")
)

// AppendUvarint64 appends v as a varint.
func AppendUvarint64(dst []byte, v uint64) []byte {
	return binary.AppendUvarint(dst, v)
}

// AppendUvarint32 appends v as a varint.
func AppendUvarint32(dst []byte, v uint32) []byte {
	return binary.AppendUvarint(dst, uint64(v))
}

// AppendLengthPrefixed appends a varint32 length followed by b.
func AppendLengthPrefixed(dst, b []byte) []byte {
	dst = AppendUvarint32(dst, uint32(len(b))) //nolint:gosec // callers never pass >4GiB fields
	return append(dst, b...)
}

// Reader decodes primitives from a byte slice.
type Reader struct {
	buf []byte
	pos int
	err error
}

// NewReader returns a Reader positioned at the start of b.
func NewReader(b []byte) *Reader {
	return &Reader{buf: b}
}

// Err returns the first error encountered, if any.
func (r *Reader) Err() error { return r.err }

// Len returns the number of unread bytes.
func (r *Reader) Len() int { return len(r.buf) - r.pos }

// Remaining returns the unread bytes without copying.
func (r *Reader) Remaining() []byte { return r.buf[r.pos:] }

// Uvarint64 reads a varint.
func (r *Reader) Uvarint64() uint64 {
	if r.err != nil {
		return 0
	}
	v, n := binary.Uvarint(r.buf[r.pos:])
	switch {
	case n == 0:
		r.err = ErrTruncated
		return 0
	case n < 0:
		r.err = ErrOverflow
		return 0
	}
	r.pos += n
	return v
}

// Uvarint32 reads a varint that must fit in 32 bits.
func (r *Reader) Uvarint32() uint32 {
	if r.err != nil {
		return 0
	}
	start := r.pos
	v := r.Uvarint64()
	if r.err != nil {
		return 0
	}
	if v > math.MaxUint32 {
		r.pos = start
		r.err = ErrOverflow
		return 0
	}
	return uint32(v)
}

// LengthPrefixed reads a length-prefixed field. The returned slice aliases the
// underlying buffer.
func (r *Reader) LengthPrefixed() []byte {
	if r.err != nil {
		return nil
	}
	n := r.Uvarint32()
	if r.err != nil {
		return nil
	}
	if uint64(n) > uint64(r.Len()) {
		r.err = ErrLengthExceeded
		return nil
	}
	b := r.buf[r.pos : r.pos+int(n)]
	r.pos += int(n)
	return b
}

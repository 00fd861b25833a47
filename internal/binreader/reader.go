// Package binreader provides a bounds-checked big-endian cursor over a byte slice.
package binreader

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"strings"

	"golang.org/x/text/encoding/unicode"
)

// ErrShortRead is returned when a read needs more bytes than remain.
var ErrShortRead = errors.New("binreader: short read")

// ErrLengthOverflow is returned when a 64-bit length does not fit in an int.
var ErrLengthOverflow = errors.New("binreader: length overflows int")

// Reader is a cursor over an immutable byte slice.
// Reads never allocate before checking the remaining size.
type Reader struct {
	buf  []byte
	pos  int
	base int // absolute offset of buf[0] in the root buffer
}

// New returns a Reader positioned at the start of b.
func New(b []byte) *Reader {
	return &Reader{buf: b}
}

// Pos returns the absolute offset of the cursor in the root buffer.
func (r *Reader) Pos() int { return r.base + r.pos }

// Offset returns the cursor position relative to this reader's start.
func (r *Reader) Offset() int { return r.pos }

// Len returns the number of unread bytes.
func (r *Reader) Len() int { return len(r.buf) - r.pos }

func (r *Reader) need(n int) error {
	if n < 0 || n > r.Len() {
		return fmt.Errorf("%w: need %d bytes at offset %d, have %d", ErrShortRead, n, r.Pos(), r.Len())
	}
	return nil
}

// Bytes returns the next n bytes without copying.
func (r *Reader) Bytes(n int) ([]byte, error) {
	if err := r.need(n); err != nil {
		return nil, err
	}
	b := r.buf[r.pos : r.pos+n : r.pos+n]
	r.pos += n
	return b, nil
}

// Skip advances the cursor by n bytes.
func (r *Reader) Skip(n int) error {
	if err := r.need(n); err != nil {
		return err
	}
	r.pos += n
	return nil
}

// Sub returns a reader over the next n bytes and advances past them.
func (r *Reader) Sub(n int) (*Reader, error) {
	start := r.Pos()
	b, err := r.Bytes(n)
	if err != nil {
		return nil, err
	}
	return &Reader{buf: b, base: start}, nil
}

// Align advances the cursor to the next multiple of n relative to this reader's start.
func (r *Reader) Align(n int) error {
	if n <= 1 {
		return nil
	}
	if rem := r.pos % n; rem != 0 {
		return r.Skip(n - rem)
	}
	return nil
}

// Uint8 reads one byte.
func (r *Reader) Uint8() (uint8, error) {
	if err := r.need(1); err != nil {
		return 0, err
	}
	v := r.buf[r.pos]
	r.pos++
	return v, nil
}

// Uint16 reads a big-endian uint16.
func (r *Reader) Uint16() (uint16, error) {
	b, err := r.Bytes(2)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(b), nil
}

// Int16 reads a big-endian int16.
func (r *Reader) Int16() (int16, error) {
	v, err := r.Uint16()
	return int16(v), err
}

// Uint32 reads a big-endian uint32.
func (r *Reader) Uint32() (uint32, error) {
	b, err := r.Bytes(4)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b), nil
}

// Int32 reads a big-endian int32.
func (r *Reader) Int32() (int32, error) {
	v, err := r.Uint32()
	return int32(v), err
}

// Uint64 reads a big-endian uint64.
func (r *Reader) Uint64() (uint64, error) {
	b, err := r.Bytes(8)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(b), nil
}

// Int64 reads a big-endian int64.
func (r *Reader) Int64() (int64, error) {
	v, err := r.Uint64()
	return int64(v), err
}

// Float64 reads a big-endian IEEE 754 double.
func (r *Reader) Float64() (float64, error) {
	v, err := r.Uint64()
	if err != nil {
		return 0, err
	}
	return math.Float64frombits(v), nil
}

// Length reads a 32-bit length prefix, or a 64-bit one when wide is set.
// The value is not checked against Len; pass it to Sub or Skip for that.
func (r *Reader) Length(wide bool) (int, error) {
	if !wide {
		v, err := r.Uint32()
		if err != nil {
			return 0, err
		}
		if uint64(v) > math.MaxInt {
			return 0, ErrLengthOverflow
		}
		return int(v), nil
	}
	v, err := r.Uint64()
	if err != nil {
		return 0, err
	}
	if v > uint64(math.MaxInt) {
		return 0, ErrLengthOverflow
	}
	return int(v), nil
}

// FourCC reads a four-byte ASCII code.
func (r *Reader) FourCC() (string, error) {
	b, err := r.Bytes(4)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// PascalString reads a length byte and that many bytes, then pads the
// total (length byte included) to a multiple of pad.
func (r *Reader) PascalString(pad int) (string, error) {
	n, err := r.Uint8()
	if err != nil {
		return "", err
	}
	b, err := r.Bytes(int(n))
	if err != nil {
		return "", err
	}
	if pad > 1 {
		if rem := (int(n) + 1) % pad; rem != 0 {
			if err := r.Skip(pad - rem); err != nil {
				return "", err
			}
		}
	}
	return string(b), nil
}

var utf16be = unicode.UTF16(unicode.BigEndian, unicode.UseBOM)

// UnicodeString reads a uint32 count of UTF-16 code units followed by the
// big-endian units. A trailing NUL is dropped.
func (r *Reader) UnicodeString() (string, error) {
	n, err := r.Uint32()
	if err != nil {
		return "", err
	}
	if uint64(n)*2 > uint64(r.Len()) {
		return "", fmt.Errorf("%w: unicode string of %d units at offset %d", ErrShortRead, n, r.Pos())
	}
	b, err := r.Bytes(int(n) * 2)
	if err != nil {
		return "", err
	}
	s, err := DecodeUTF16BE(b)
	if err != nil {
		return "", err
	}
	return strings.TrimRight(s, "\x00"), nil
}

// DecodeUTF16BE decodes big-endian UTF-16 bytes. A leading BOM is honoured and stripped.
func DecodeUTF16BE(b []byte) (string, error) {
	out, err := utf16be.NewDecoder().Bytes(b)
	if err != nil {
		return "", fmt.Errorf("binreader: utf-16: %w", err)
	}
	return string(out), nil
}

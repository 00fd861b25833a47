package binreader

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestReader_Primitives(t *testing.T) {
	buf := []byte{
		0x7F,       // uint8
		0x01, 0x02, // uint16
		0xFF, 0xFE, // int16 = -2
		0x00, 0x00, 0x01, 0x00, // uint32 = 256
		0xFF, 0xFF, 0xFF, 0xFF, // int32 = -1
		0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x2A, // uint64 = 42
	}
	r := New(buf)

	u8, err := r.Uint8()
	require.NoError(t, err)
	require.Equal(t, uint8(0x7F), u8)

	u16, err := r.Uint16()
	require.NoError(t, err)
	require.Equal(t, uint16(0x0102), u16)

	i16, err := r.Int16()
	require.NoError(t, err)
	require.Equal(t, int16(-2), i16)

	u32, err := r.Uint32()
	require.NoError(t, err)
	require.Equal(t, uint32(256), u32)

	i32, err := r.Int32()
	require.NoError(t, err)
	require.Equal(t, int32(-1), i32)

	u64, err := r.Uint64()
	require.NoError(t, err)
	require.Equal(t, uint64(42), u64)

	require.Equal(t, 0, r.Len())
	require.Equal(t, len(buf), r.Pos())
}

func TestReader_Float64(t *testing.T) {
	bits := math.Float64bits(1.5)
	buf := make([]byte, 8)
	for i := 0; i < 8; i++ {
		buf[i] = byte(bits >> (56 - 8*i))
	}
	v, err := New(buf).Float64()
	require.NoError(t, err)
	require.Equal(t, 1.5, v)
}

func TestReader_ShortRead(t *testing.T) {
	r := New([]byte{0x01, 0x02, 0x03})

	_, err := r.Uint32()
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrShortRead))

	// A failed read does not move the cursor.
	require.Equal(t, 0, r.Pos())
	require.Equal(t, 3, r.Len())
}

func TestReader_BytesRejectsNegativeAndOversized(t *testing.T) {
	r := New([]byte{1, 2, 3, 4})

	_, err := r.Bytes(-1)
	require.ErrorIs(t, err, ErrShortRead)

	_, err = r.Bytes(5)
	require.ErrorIs(t, err, ErrShortRead)

	b, err := r.Bytes(4)
	require.NoError(t, err)
	require.Equal(t, []byte{1, 2, 3, 4}, b)
}

func TestReader_SubTracksAbsoluteOffset(t *testing.T) {
	r := New([]byte{0xAA, 0xBB, 0x00, 0x05, 0xCC})
	require.NoError(t, r.Skip(2))

	sub, err := r.Sub(2)
	require.NoError(t, err)
	require.Equal(t, 2, sub.Pos())
	require.Equal(t, 0, sub.Offset())

	v, err := sub.Uint16()
	require.NoError(t, err)
	require.Equal(t, uint16(5), v)

	// Sub reads cannot escape their window.
	_, err = sub.Uint8()
	require.ErrorIs(t, err, ErrShortRead)

	// Parent already advanced past the window.
	next, err := r.Uint8()
	require.NoError(t, err)
	require.Equal(t, uint8(0xCC), next)
}

func TestReader_SubLargerThanRemaining(t *testing.T) {
	r := New([]byte{1, 2})
	_, err := r.Sub(3)
	require.ErrorIs(t, err, ErrShortRead)
}

func TestReader_Length(t *testing.T) {
	n, err := New([]byte{0, 0, 0, 9}).Length(false)
	require.NoError(t, err)
	require.Equal(t, 9, n)

	n, err = New([]byte{0, 0, 0, 0, 0, 0, 1, 0}).Length(true)
	require.NoError(t, err)
	require.Equal(t, 256, n)

	_, err = New([]byte{0xFF, 0, 0, 0, 0, 0, 0, 0}).Length(true)
	require.ErrorIs(t, err, ErrLengthOverflow)
}

func TestReader_PascalString(t *testing.T) {
	tests := []struct {
		name    string
		buf     []byte
		pad     int
		want    string
		wantPos int
	}{
		{name: "empty padded to 2", buf: []byte{0, 0, 0xEE}, pad: 2, want: "", wantPos: 2},
		{name: "odd total needs no pad", buf: []byte{1, 'a', 0xEE}, pad: 2, want: "a", wantPos: 2},
		{name: "padded to 4", buf: []byte{3, 'a', 'b', 'c', 0xEE}, pad: 4, want: "abc", wantPos: 4},
		{name: "padded to 4 with fill", buf: []byte{1, 'x', 0, 0, 0xEE}, pad: 4, want: "x", wantPos: 4},
		{name: "no padding", buf: []byte{2, 'h', 'i'}, pad: 1, want: "hi", wantPos: 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := New(tt.buf)
			got, err := r.PascalString(tt.pad)
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
			require.Equal(t, tt.wantPos, r.Pos())
		})
	}
}

func TestReader_UnicodeString(t *testing.T) {
	// "Hé" plus trailing NUL
	buf := []byte{0, 0, 0, 3, 0x00, 'H', 0x00, 0xE9, 0x00, 0x00}
	s, err := New(buf).UnicodeString()
	require.NoError(t, err)
	require.Equal(t, "Hé", s)
}

func TestReader_UnicodeStringCountExceedsInput(t *testing.T) {
	buf := []byte{0x7F, 0xFF, 0xFF, 0xFF, 0x00, 'H'}
	_, err := New(buf).UnicodeString()
	require.ErrorIs(t, err, ErrShortRead)
}

func TestDecodeUTF16BE_StripsBOM(t *testing.T) {
	s, err := DecodeUTF16BE([]byte{0xFE, 0xFF, 0x00, 'O', 0x00, 'K'})
	require.NoError(t, err)
	require.Equal(t, "OK", s)
}

func TestReader_Align(t *testing.T) {
	r := New([]byte{1, 2, 3, 4, 5, 6, 7, 8})
	require.NoError(t, r.Skip(1))
	require.NoError(t, r.Align(4))
	require.Equal(t, 4, r.Offset())
	require.NoError(t, r.Align(4))
	require.Equal(t, 4, r.Offset())
}

func TestReader_FourCC(t *testing.T) {
	code, err := New([]byte("8BPSrest")).FourCC()
	require.NoError(t, err)
	require.Equal(t, "8BPS", code)
}

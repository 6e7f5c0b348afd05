// Package bitio provides the bit-level cursor used by all JPEG XL decode
// stages. Bits are read LSB-first within each byte, matching the codestream
// bit packing.
package bitio

import (
	"fmt"
	"math"

	"github.com/cocosip/go-jxl/jxl/jxlerr"
)

// U32 describes one branch of a four-way variable-width integer field:
// a constant base plus an optional bit suffix.
type U32 struct {
	Base uint32
	Bits int
}

// Val is a U32 branch with no suffix bits.
func Val(v uint32) U32 { return U32{Base: v} }

// BitsOffset is a U32 branch reading n bits added to base.
func BitsOffset(n int, base uint32) U32 { return U32{Base: base, Bits: n} }

// Bits is a U32 branch reading n raw bits.
func Bits(n int) U32 { return U32{Bits: n} }

// Reader is a forward-only bit cursor over a byte slice. Reading past the
// end returns jxlerr.ErrInsufficientData without advancing the cursor, so
// a caller can retry after more bytes arrive.
type Reader struct {
	data []byte
	pos  int // bit position
}

// NewReader creates a Reader over data. The slice is not copied.
func NewReader(data []byte) *Reader {
	return &Reader{data: data}
}

// BitsRead returns the number of bits consumed so far.
func (r *Reader) BitsRead() int {
	return r.pos
}

// Remaining returns the number of unread bits.
func (r *Reader) Remaining() int {
	return len(r.data)*8 - r.pos
}

// ReadBits reads n bits (0 <= n <= 32) and returns them as an unsigned
// integer, first bit in the least significant position.
func (r *Reader) ReadBits(n int) (uint32, error) {
	if n < 0 || n > 32 {
		return 0, fmt.Errorf("%w: read of %d bits", jxlerr.ErrInternalInvariant, n)
	}
	if r.pos+n > len(r.data)*8 {
		return 0, jxlerr.ErrInsufficientData
	}
	v := r.peek(n)
	r.pos += n
	return v, nil
}

// peek returns the next n bits without consuming them. Bits past the end
// of the buffer read as zero; the caller must bounds-check separately.
func (r *Reader) peek(n int) uint32 {
	var v uint64
	byteIdx := r.pos >> 3
	shift := r.pos & 7
	for i := 0; i < 8 && byteIdx+i < len(r.data); i++ {
		v |= uint64(r.data[byteIdx+i]) << (8 * i)
	}
	v >>= uint(shift)
	if n < 64 {
		v &= (1 << uint(n)) - 1
	}
	return uint32(v)
}

// PeekBits returns the next n bits (n <= 15 guaranteed by callers) without
// consuming them. Bits beyond the available input read as zero.
func (r *Reader) PeekBits(n int) uint32 {
	return r.peek(n)
}

// SkipBits consumes n bits previously observed via PeekBits.
func (r *Reader) SkipBits(n int) error {
	if r.pos+n > len(r.data)*8 {
		return jxlerr.ErrInsufficientData
	}
	r.pos += n
	return nil
}

// ReadBool reads a single bit as a boolean.
func (r *Reader) ReadBool() (bool, error) {
	v, err := r.ReadBits(1)
	return v == 1, err
}

// ReadU32 reads a 2-bit selector followed by the selected branch.
func (r *Reader) ReadU32(d0, d1, d2, d3 U32) (uint32, error) {
	sel, err := r.ReadBits(2)
	if err != nil {
		return 0, err
	}
	d := [4]U32{d0, d1, d2, d3}[sel]
	if d.Bits == 0 {
		return d.Base, nil
	}
	v, err := r.ReadBits(d.Bits)
	if err != nil {
		return 0, err
	}
	return d.Base + v, nil
}

// ReadU64 reads a variable-length 64-bit integer: a 2-bit selector for
// 0, 1+u(4), 17+u(8), or a chunked continuation form.
func (r *Reader) ReadU64() (uint64, error) {
	sel, err := r.ReadBits(2)
	if err != nil {
		return 0, err
	}
	switch sel {
	case 0:
		return 0, nil
	case 1:
		v, err := r.ReadBits(4)
		return uint64(v) + 1, err
	case 2:
		v, err := r.ReadBits(8)
		return uint64(v) + 17, err
	}
	v, err := r.ReadBits(12)
	if err != nil {
		return 0, err
	}
	value := uint64(v)
	shift := uint(12)
	for {
		more, err := r.ReadBool()
		if err != nil {
			return 0, err
		}
		if !more {
			return value, nil
		}
		if shift >= 64 {
			return 0, fmt.Errorf("%w: u64 overflow", jxlerr.ErrMalformedBitstream)
		}
		n := 8
		if shift == 60 {
			n = 4
		}
		chunk, err := r.ReadBits(n)
		if err != nil {
			return 0, err
		}
		value |= uint64(chunk) << shift
		shift += 8
	}
}

// ReadEnum reads an enumerated value (U32 selector 0 / 1 / 2+u(4) / 18+u(6))
// and validates it against the given exclusive upper bound.
func (r *Reader) ReadEnum(max uint32) (uint32, error) {
	v, err := r.ReadU32(Val(0), Val(1), BitsOffset(4, 2), BitsOffset(6, 18))
	if err != nil {
		return 0, err
	}
	if v >= max {
		return 0, fmt.Errorf("%w: enum value %d out of range", jxlerr.ErrMalformedBitstream, v)
	}
	return v, nil
}

// ReadF16 reads a 16-bit binary16 float and widens it to float32.
func (r *Reader) ReadF16() (float32, error) {
	v, err := r.ReadBits(16)
	if err != nil {
		return 0, err
	}
	sign := uint32(v>>15) & 1
	exp := int32(v>>10) & 0x1f
	mant := uint32(v) & 0x3ff
	if exp == 0x1f {
		return 0, fmt.Errorf("%w: non-finite f16", jxlerr.ErrMalformedBitstream)
	}
	var bits uint32
	switch {
	case exp == 0 && mant == 0:
		bits = sign << 31
	case exp == 0:
		// subnormal: normalize into float32 range
		e := int32(-14)
		for mant&0x400 == 0 {
			mant <<= 1
			e--
		}
		mant &= 0x3ff
		bits = sign<<31 | uint32(e+127)<<23 | mant<<13
	default:
		bits = sign<<31 | uint32(exp-15+127)<<23 | mant<<13
	}
	return math.Float32frombits(bits), nil
}

// ZeroPadToByte consumes bits up to the next byte boundary and verifies
// they are zero, as required at section boundaries.
func (r *Reader) ZeroPadToByte() error {
	n := (8 - r.pos&7) & 7
	if n == 0 {
		return nil
	}
	v, err := r.ReadBits(n)
	if err != nil {
		return err
	}
	if v != 0 {
		return fmt.Errorf("%w: nonzero padding bits", jxlerr.ErrMalformedBitstream)
	}
	return nil
}

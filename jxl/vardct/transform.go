// Package vardct implements the spectral decoder: varblock transform
// types, quantization state, HF coefficient entropy decoding and the
// inverse transforms that turn dequantized coefficients into samples.
package vardct

import (
	"fmt"

	"github.com/cocosip/go-jxl/jxl/jxlerr"
)

// TransformType identifies the variable-size transform of one varblock.
// Rectangular names follow rows x columns, so Dct16x8 covers a block 8
// samples wide and 16 samples tall.
type TransformType uint8

const (
	Dct8 TransformType = iota
	Hornuss
	Dct2
	Dct4
	Dct16
	Dct32
	Dct16x8
	Dct8x16
	Dct32x8
	Dct8x32
	Dct32x16
	Dct16x32
	Dct4x8
	Dct8x4
	Afv0
	Afv1
	Afv2
	Afv3
	Dct64
	Dct64x32
	Dct32x64
	Dct128
	Dct128x64
	Dct64x128
	Dct256
	Dct256x128
	Dct128x256

	numTransformTypes
)

var transformNames = [numTransformTypes]string{
	"DCT8", "Hornuss", "DCT2", "DCT4", "DCT16", "DCT32",
	"DCT16x8", "DCT8x16", "DCT32x8", "DCT8x32", "DCT32x16", "DCT16x32",
	"DCT4x8", "DCT8x4", "AFV0", "AFV1", "AFV2", "AFV3",
	"DCT64", "DCT64x32", "DCT32x64", "DCT128", "DCT128x64", "DCT64x128",
	"DCT256", "DCT256x128", "DCT128x256",
}

func (t TransformType) String() string {
	if t < numTransformTypes {
		return transformNames[t]
	}
	return fmt.Sprintf("TransformType(%d)", uint8(t))
}

// ParseTransformType validates a raw transform id from the block info
// channel.
func ParseTransformType(v int32) (TransformType, error) {
	if v < 0 || v >= int32(numTransformTypes) {
		return 0, fmt.Errorf("vardct: transform type %d out of range: %w", v, jxlerr.ErrMalformedBitstream)
	}
	return TransformType(v), nil
}

// Supported reports whether the decoder implements the inverse transform.
// The AFV variants and the 128/256 giants are valid bitstream features the
// library does not implement.
func (t TransformType) Supported() bool {
	switch t {
	case Afv0, Afv1, Afv2, Afv3, Dct128, Dct128x64, Dct64x128, Dct256, Dct256x128, Dct128x256:
		return false
	}
	return true
}

// BlockSize returns the footprint of the varblock in 8x8 block units,
// width first.
func (t TransformType) BlockSize() (w8, h8 int) {
	switch t {
	case Dct16:
		return 2, 2
	case Dct32:
		return 4, 4
	case Dct16x8:
		return 1, 2
	case Dct8x16:
		return 2, 1
	case Dct32x8:
		return 1, 4
	case Dct8x32:
		return 4, 1
	case Dct32x16:
		return 2, 4
	case Dct16x32:
		return 4, 2
	case Dct64:
		return 8, 8
	case Dct64x32:
		return 4, 8
	case Dct32x64:
		return 8, 4
	case Dct128:
		return 16, 16
	case Dct128x64:
		return 8, 16
	case Dct64x128:
		return 16, 8
	case Dct256:
		return 32, 32
	case Dct256x128:
		return 16, 32
	case Dct128x256:
		return 32, 16
	}
	return 1, 1
}

// MatrixSize returns the dequantization matrix dimensions, long side first.
func (t TransformType) MatrixSize() (w, h int) {
	switch t {
	case Dct16:
		return 16, 16
	case Dct32:
		return 32, 32
	case Dct16x8, Dct8x16:
		return 16, 8
	case Dct32x8, Dct8x32:
		return 32, 8
	case Dct32x16, Dct16x32:
		return 32, 16
	case Dct64:
		return 64, 64
	case Dct64x32, Dct32x64:
		return 64, 32
	case Dct128:
		return 128, 128
	case Dct128x64, Dct64x128:
		return 128, 64
	case Dct256:
		return 256, 256
	case Dct256x128, Dct128x256:
		return 256, 128
	}
	return 8, 8
}

// MatrixIndex returns the dequantization parameter class, an index into
// the 17-entry matrix set.
func (t TransformType) MatrixIndex() int {
	switch t {
	case Dct8:
		return 0
	case Hornuss:
		return 1
	case Dct2:
		return 2
	case Dct4:
		return 3
	case Dct16:
		return 4
	case Dct32:
		return 5
	case Dct16x8, Dct8x16:
		return 6
	case Dct32x8, Dct8x32:
		return 7
	case Dct32x16, Dct16x32:
		return 8
	case Dct4x8, Dct8x4:
		return 9
	case Afv0, Afv1, Afv2, Afv3:
		return 10
	case Dct64:
		return 11
	case Dct64x32, Dct32x64:
		return 12
	case Dct128:
		return 13
	case Dct128x64, Dct64x128:
		return 14
	case Dct256:
		return 15
	}
	return 16
}

// OrderID returns the coefficient order table this transform scans with.
func (t TransformType) OrderID() int {
	switch t {
	case Dct8:
		return 0
	case Hornuss, Dct2, Dct4, Dct4x8, Dct8x4, Afv0, Afv1, Afv2, Afv3:
		return 1
	case Dct16:
		return 2
	case Dct32:
		return 3
	case Dct16x8, Dct8x16:
		return 4
	case Dct32x8, Dct8x32:
		return 5
	case Dct32x16, Dct16x32:
		return 6
	case Dct64:
		return 7
	case Dct64x32, Dct32x64:
		return 8
	case Dct128:
		return 9
	case Dct128x64, Dct64x128:
		return 10
	case Dct256:
		return 11
	}
	return 12
}

// NeedTranspose reports whether coefficient coordinates and the dequant
// matrix are transposed before writing into the block rect. Tall blocks
// and the square multi-block DCTs transpose; the 8x8 specials never do.
func (t TransformType) NeedTranspose() bool {
	switch t {
	case Hornuss, Dct2, Dct4, Dct4x8, Dct8x4, Afv0, Afv1, Afv2, Afv3:
		return false
	}
	w8, h8 := t.BlockSize()
	return h8 >= w8
}

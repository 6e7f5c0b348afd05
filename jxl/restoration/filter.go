// Package restoration implements the in-loop restoration filters: the
// gaborish sharpening convolution, the edge-preserving filter, noise
// synthesis and the non-separable upsamplers.
package restoration

import (
	"fmt"
	"math"

	"github.com/cocosip/go-jxl/jxl/bitio"
	"github.com/cocosip/go-jxl/jxl/jxlerr"
)

// Gabor holds the gaborish filter state. Weights are per channel in
// X, Y, B order, inner ring then corner ring.
type Gabor struct {
	Enabled bool
	Weights [3][2]float32
}

var defaultGaborWeights = [2]float32{0.115169525, 0.061248592}

// DefaultGabor is the filter state an all-default frame header implies:
// enabled, stock weights on every channel.
func DefaultGabor() Gabor {
	g := Gabor{Enabled: true}
	for c := range g.Weights {
		g.Weights[c] = defaultGaborWeights
	}
	return g
}

// ParseGabor reads the gaborish bundle of the frame header.
func ParseGabor(r *bitio.Reader) (Gabor, error) {
	enabled, err := r.ReadBool()
	if err != nil || !enabled {
		return Gabor{}, err
	}

	g := Gabor{Enabled: true}
	custom, err := r.ReadBool()
	if err != nil {
		return g, err
	}
	if !custom {
		for c := range g.Weights {
			g.Weights[c] = defaultGaborWeights
		}
		return g, nil
	}

	for c := range g.Weights {
		for i := range g.Weights[c] {
			if g.Weights[c][i], err = r.ReadF16(); err != nil {
				return g, err
			}
		}
		norm := 1.0 + (g.Weights[c][0]+g.Weights[c][1])*4.0
		if math.Abs(float64(norm)) < 1e-8 {
			return g, fmt.Errorf("restoration: gabor weights sum to a zero kernel: %w", jxlerr.ErrMalformedBitstream)
		}
	}
	return g, nil
}

// EPF holds the edge-preserving filter configuration. Iters of zero
// disables the filter.
type EPF struct {
	Iters           uint32
	SharpLUT        [8]float32
	ChannelScale    [3]float32
	QuantMul        float32
	Pass0SigmaScale float32
	Pass2SigmaScale float32
	BorderSADMul    float32
	SigmaForModular float32
}

// Enabled reports whether any filter pass runs.
func (e EPF) Enabled() bool { return e.Iters > 0 }

var epfSharpLUTDefault = [8]float32{
	0, 1.0 / 7, 2.0 / 7, 3.0 / 7, 4.0 / 7, 5.0 / 7, 6.0 / 7, 1,
}

// DefaultEPF is the two-iteration configuration an all-default frame
// header implies.
func DefaultEPF() EPF {
	return EPF{
		Iters:           2,
		SharpLUT:        epfSharpLUTDefault,
		ChannelScale:    [3]float32{40, 5, 3.5},
		QuantMul:        0.46,
		Pass0SigmaScale: 0.9,
		Pass2SigmaScale: 6.5,
		BorderSADMul:    2.0 / 3,
		SigmaForModular: 1,
	}
}

// ParseEPF reads the edge-preserving filter bundle. Some fields are only
// coded for VarDCT frames.
func ParseEPF(r *bitio.Reader, isVarDCT bool) (EPF, error) {
	e := EPF{
		SharpLUT:        epfSharpLUTDefault,
		ChannelScale:    [3]float32{40, 5, 3.5},
		QuantMul:        0.46,
		Pass0SigmaScale: 0.9,
		Pass2SigmaScale: 6.5,
		BorderSADMul:    2.0 / 3,
		SigmaForModular: 1,
	}

	var err error
	if e.Iters, err = r.ReadBits(2); err != nil || e.Iters == 0 {
		return e, err
	}

	if isVarDCT {
		sharpCustom, err := r.ReadBool()
		if err != nil {
			return e, err
		}
		if sharpCustom {
			for i := range e.SharpLUT {
				if e.SharpLUT[i], err = r.ReadF16(); err != nil {
					return e, err
				}
			}
		}
	}

	weightCustom, err := r.ReadBool()
	if err != nil {
		return e, err
	}
	if weightCustom {
		for i := range e.ChannelScale {
			if e.ChannelScale[i], err = r.ReadF16(); err != nil {
				return e, err
			}
		}
		// Reserved field.
		if _, err := r.ReadBits(32); err != nil {
			return e, err
		}
	}

	sigmaCustom, err := r.ReadBool()
	if err != nil {
		return e, err
	}
	if sigmaCustom {
		if isVarDCT {
			if e.QuantMul, err = r.ReadF16(); err != nil {
				return e, err
			}
		}
		if e.Pass0SigmaScale, err = r.ReadF16(); err != nil {
			return e, err
		}
		if e.Pass2SigmaScale, err = r.ReadF16(); err != nil {
			return e, err
		}
		if e.BorderSADMul, err = r.ReadF16(); err != nil {
			return e, err
		}
	}

	if !isVarDCT {
		if e.SigmaForModular, err = r.ReadF16(); err != nil {
			return e, err
		}
	}
	return e, nil
}

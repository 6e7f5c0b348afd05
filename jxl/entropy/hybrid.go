package entropy

import (
	"fmt"
	"math/bits"

	"github.com/cocosip/go-jxl/jxl/bitio"
	"github.com/cocosip/go-jxl/jxl/jxlerr"
)

// IntegerConfig is the hybrid integer configuration attached to each
// distribution cluster. Tokens below the split value are literal; larger
// tokens carry an exponent plus explicit MSB/LSB payload bits.
type IntegerConfig struct {
	splitExponent uint32
	split         uint32
	msbInToken    uint32
	lsbInToken    uint32
}

// addLog2Ceil returns ceil(log2(x + 1)), the bit width used for nested
// configuration fields.
func addLog2Ceil(x uint32) uint32 {
	return uint32(bits.Len32(x))
}

func parseIntegerConfig(r *bitio.Reader, logAlphabetSize uint32) (IntegerConfig, error) {
	splitExponent, err := r.ReadBits(int(addLog2Ceil(logAlphabetSize)))
	if err != nil {
		return IntegerConfig{}, err
	}
	var msbInToken, lsbInToken uint32
	if splitExponent != logAlphabetSize {
		msbInToken, err = r.ReadBits(int(addLog2Ceil(splitExponent)))
		if err != nil {
			return IntegerConfig{}, err
		}
		if msbInToken > splitExponent {
			return IntegerConfig{}, fmt.Errorf("%w: msb bits exceed split exponent", jxlerr.ErrMalformedBitstream)
		}
		lsbInToken, err = r.ReadBits(int(addLog2Ceil(splitExponent - msbInToken)))
		if err != nil {
			return IntegerConfig{}, err
		}
	}
	if msbInToken+lsbInToken > splitExponent {
		return IntegerConfig{}, fmt.Errorf("%w: token bits exceed split exponent", jxlerr.ErrMalformedBitstream)
	}
	return IntegerConfig{
		splitExponent: splitExponent,
		split:         1 << splitExponent,
		msbInToken:    msbInToken,
		lsbInToken:    lsbInToken,
	}, nil
}

// readUint expands a decoded token into its integer value, reading any
// payload bits the configuration calls for.
func (c *IntegerConfig) readUint(r *bitio.Reader, token uint32) (uint32, error) {
	if token < c.split {
		return token, nil
	}
	// The token itself carries the low and high payload bits; only the
	// middle n bits come from the bitstream.
	token -= c.split
	lowBits := token & (1<<c.lsbInToken - 1)
	token >>= c.lsbInToken
	high := token&(1<<c.msbInToken-1) | 1<<c.msbInToken
	n := c.splitExponent - (c.msbInToken + c.lsbInToken) + (token >> c.msbInToken)
	if n > 32 {
		return 0, fmt.Errorf("%w: hybrid integer too wide (%d bits)", jxlerr.ErrMalformedBitstream, n)
	}
	rest, err := r.ReadBits(int(n))
	if err != nil {
		return 0, err
	}
	return ((high<<n)|rest)<<c.lsbInToken | lowBits, nil
}

// UnpackSigned maps an unsigned residual onto the signed integers
// (0, -1, 1, -2, 2, ...).
func UnpackSigned(u uint32) int32 {
	if u&1 == 0 {
		return int32(u >> 1)
	}
	return -int32(u>>1) - 1
}

package modular

import (
	"fmt"

	"github.com/cocosip/go-jxl/jxl/jxlerr"
)

// inverseRCT undoes a reversible color transform on three channels of equal
// size. The transform id encodes a decorrelation type (id % 7) and an output
// permutation (id / 7).
func (t *Transform) inverseRCT(img *Image) error {
	begin := int(t.BeginC)
	if begin+3 > len(img.Channels) {
		return fmt.Errorf("%w: rct channels out of range", jxlerr.ErrInternalInvariant)
	}
	ty := t.RCTType % 7
	perm := t.RCTType / 7

	ca := img.Channels[begin]
	cb := img.Channels[begin+1]
	cc := img.Channels[begin+2]
	for y := 0; y < ca.Height; y++ {
		ra, rb, rc := ca.Row(y), cb.Row(y), cc.Row(y)
		for x := range ra {
			a, b, c := ra[x], rb[x], rc[x]
			var d, e, f int32
			if ty == 6 {
				tmp := a - (c >> 1)
				e = c + tmp
				f = tmp - (b >> 1)
				d = f + b
			} else {
				d = a
				f = c
				if ty&1 != 0 {
					f = c + a
				}
				switch ty >> 1 {
				case 1:
					e = b + a
				case 2:
					e = b + ((a + f) >> 1)
				default:
					e = b
				}
			}
			switch perm {
			case 0:
				ra[x], rb[x], rc[x] = d, e, f
			case 1:
				ra[x], rb[x], rc[x] = f, d, e
			case 2:
				ra[x], rb[x], rc[x] = e, f, d
			case 3:
				ra[x], rb[x], rc[x] = d, f, e
			case 4:
				ra[x], rb[x], rc[x] = e, d, f
			case 5:
				ra[x], rb[x], rc[x] = f, e, d
			}
		}
	}
	return nil
}

package modular

import (
	"fmt"

	"github.com/cocosip/go-jxl/jxl/jxlerr"
)

func (t *Transform) inverseSqueeze(img *Image) error {
	for i := len(t.Squeeze) - 1; i >= 0; i-- {
		sp := t.Squeeze[i]
		begin := int(sp.BeginC)
		numC := int(sp.NumC)
		end := begin + numC

		var residus []*Channel
		if sp.InPlace {
			if end+numC > len(img.Channels) {
				return fmt.Errorf("%w: missing squeeze residuals", jxlerr.ErrInternalInvariant)
			}
			residus = append(residus, img.Channels[end:end+numC]...)
			img.Channels = append(img.Channels[:end], img.Channels[end+numC:]...)
		} else {
			if numC > len(img.Channels)-end {
				return fmt.Errorf("%w: missing squeeze residuals", jxlerr.ErrInternalInvariant)
			}
			residus = append(residus, img.Channels[len(img.Channels)-numC:]...)
			img.Channels = img.Channels[:len(img.Channels)-numC]
		}

		for j := 0; j < numC; j++ {
			avg := img.Channels[begin+j]
			if sp.Horizontal {
				img.Channels[begin+j] = unsqueezeHorizontal(avg, residus[j])
			} else {
				img.Channels[begin+j] = unsqueezeVertical(avg, residus[j])
			}
		}
	}
	img.NbMetaChannels -= t.metaDelta
	return nil
}

// unsqueezeHorizontal merges an averages channel and its residual channel
// back into one channel of the combined width.
func unsqueezeHorizontal(avg, residu *Channel) *Channel {
	w := avg.Width + residu.Width
	hs := avg.HShift
	if hs > 0 {
		hs--
	}
	out := NewChannel(w, avg.Height, hs, avg.VShift)
	for y := 0; y < avg.Height; y++ {
		avgRow := avg.Row(y)
		outRow := out.Row(y)
		var resRow []int32
		if residu.Width > 0 {
			resRow = residu.Row(y)
		}
		left := avgRow[0]
		for x := 0; x < residu.Width; x++ {
			a := avgRow[x]
			nextAvg := a
			if x+1 < avg.Width {
				nextAvg = avgRow[x+1]
			}
			diff := resRow[x] + tendency(left, a, nextAvg)
			first := a + diff/2
			outRow[2*x] = first
			outRow[2*x+1] = first - diff
			left = first - diff
		}
		if w&1 == 1 {
			outRow[w-1] = avgRow[avg.Width-1]
		}
	}
	return out
}

func unsqueezeVertical(avg, residu *Channel) *Channel {
	h := avg.Height + residu.Height
	vs := avg.VShift
	if vs > 0 {
		vs--
	}
	out := NewChannel(avg.Width, h, avg.HShift, vs)
	for x := 0; x < avg.Width; x++ {
		left := avg.At(x, 0)
		for y := 0; y < residu.Height; y++ {
			a := avg.At(x, y)
			nextAvg := a
			if y+1 < avg.Height {
				nextAvg = avg.At(x, y+1)
			}
			diff := residu.At(x, y) + tendency(left, a, nextAvg)
			first := a + diff/2
			out.Set(x, 2*y, first)
			out.Set(x, 2*y+1, first-diff)
			left = first - diff
		}
		if h&1 == 1 {
			out.Set(x, h-1, avg.At(x, avg.Height-1))
		}
	}
	return out
}

// tendency estimates the local gradient of three consecutive smoothed
// samples, clamped so the reconstruction cannot overshoot either neighbor.
func tendency(a, b, c int32) int32 {
	if a >= b && b >= c {
		x := (4*a - 3*c - b + 6) / 12
		if x-(x&1) > 2*(a-b) {
			x = 2*(a-b) + 1
		}
		if x+(x&1) > 2*(b-c) {
			x = 2 * (b - c)
		}
		return x
	}
	if a <= b && b <= c {
		x := (4*a - 3*c - b - 6) / 12
		if x+(x&1) < 2*(a-b) {
			x = 2*(a-b) - 1
		}
		if x-(x&1) < 2*(b-c) {
			x = 2 * (b - c)
		}
		return x
	}
	return 0
}

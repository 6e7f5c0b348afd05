package modular

import (
	"fmt"

	"github.com/cocosip/go-jxl/jxl/jxlerr"
)

// deltaPalette is the fixed table of small color deltas addressed by
// negative palette indices.
var deltaPalette = [72][3]int16{
	{0, 0, 0}, {4, 4, 4}, {11, 0, 0}, {0, 0, -13}, {0, -12, 0}, {-10, -10, -10},
	{-18, -18, -18}, {-27, -27, -27}, {-18, -18, 0}, {0, 0, -32}, {-32, 0, 0}, {-37, -37, -37},
	{0, -32, -32}, {24, 24, 45}, {50, 50, 50}, {-45, -24, -24}, {-24, -45, -45}, {0, -24, -24},
	{-34, -34, 0}, {-24, 0, -24}, {-45, -45, -24}, {64, 64, 64}, {-32, 0, -32}, {0, -32, 0},
	{-32, 0, 32}, {-24, -45, -24}, {45, 24, 45}, {24, -24, -45}, {-45, -24, 24}, {80, 80, 80},
	{64, 0, 0}, {0, 0, -64}, {0, -64, -64}, {-24, -24, 45}, {96, 96, 96}, {64, 64, 0},
	{45, -24, -24}, {34, -34, 0}, {112, 112, 112}, {24, -45, -45}, {45, 45, -24}, {0, -32, 32},
	{24, -24, 45}, {0, 96, 96}, {45, -24, 24}, {24, -45, -24}, {-24, -45, 24}, {0, -64, 0},
	{96, 0, 0}, {128, 128, 128}, {64, 0, 64}, {144, 144, 144}, {96, 96, 0}, {-36, -36, 36},
	{45, -24, -45}, {45, -45, -24}, {0, 0, -96}, {0, 128, 128}, {0, 96, 0}, {45, 24, -45},
	{-128, 0, 0}, {24, -45, 24}, {-45, 24, -45}, {64, 0, -64}, {64, -64, -64}, {96, 0, 96},
	{45, -45, 24}, {24, 45, -45}, {64, 64, -64}, {128, 128, 0}, {0, 0, -128}, {-24, 45, -45},
}

func (t *Transform) inversePalette(img *Image, bitDepth uint32) error {
	if len(img.Channels) == 0 {
		return fmt.Errorf("%w: palette channel missing", jxlerr.ErrInternalInvariant)
	}
	pal := img.Channels[0]
	img.Channels = img.Channels[1:]

	begin := int(t.BeginC)
	numC := int(t.NumC)
	if begin >= len(img.Channels) || pal.Height != numC {
		return fmt.Errorf("%w: palette channels out of range", jxlerr.ErrInternalInvariant)
	}
	leader := img.Channels[begin]

	targets := make([]*Channel, numC)
	targets[0] = leader
	for i := 1; i < numC; i++ {
		targets[i] = NewChannel(leader.Width, leader.Height, leader.HShift, leader.VShift)
	}

	// splice the re-expanded channels back in after the index channel
	tail := append([]*Channel{}, img.Channels[begin+1:]...)
	img.Channels = append(img.Channels[:begin+1], targets[1:]...)
	img.Channels = append(img.Channels, tail...)
	img.NbMetaChannels -= t.metaDelta

	nbColours := int32(t.NbColours)
	nbDeltas := int32(t.NbDeltas)

	simple := true
	for _, v := range leader.Pix {
		if v < 0 || v >= nbColours {
			simple = false
			break
		}
	}
	if simple {
		// the index channel is rewritten last since the others read from it
		for c := numC - 1; c >= 0; c-- {
			tgt := targets[c]
			for i, idx := range leader.Pix {
				tgt.Pix[i] = pal.At(int(idx), c)
			}
		}
		return nil
	}

	width := leader.Width
	height := leader.Height
	var needDelta []int
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			i := y*width + x
			index := leader.Pix[i]
			if index < nbDeltas {
				needDelta = append(needDelta, i)
			}
			switch {
			case index >= 0 && index < nbColours:
				for c := numC - 1; c >= 0; c-- {
					targets[c].Pix[i] = pal.At(int(index), c)
				}
			case index >= nbColours:
				idx := index - nbColours
				if idx < 64 {
					for c := 0; c < numC; c++ {
						targets[c].Pix[i] = ((idx>>(2*c))%4)*((1<<bitDepth)-1)/4 +
							1<<satSub(bitDepth, 3)
					}
				} else {
					idx -= 64
					for c := 0; c < numC; c++ {
						targets[c].Pix[i] = (idx % 5) * ((1 << bitDepth) - 1) / 4
						idx /= 5
					}
				}
			default:
				for c := 0; c < numC; c++ {
					if c >= 3 {
						targets[c].Pix[i] = 0
						continue
					}
					di := int(-(index + 1)) % 143
					v := int32(deltaPalette[(di+1)>>1][c])
					if di&1 == 0 {
						v = -v
					}
					if bitDepth > 8 {
						v <<= minU32(bitDepth, 24) - 8
					}
					targets[c].Pix[i] = v
				}
			}
		}
	}
	if len(needDelta) == 0 {
		return nil
	}

	// delta entries are offsets from a predicted value; run the predictor
	// over each channel and add the prediction in at delta positions
	needSC := t.DPred == PredSelfCorrecting
	for _, ch := range targets {
		var sc *scState
		if needSC {
			sc = newSCState(width, t.WP)
		}
		st := newPredictorState(width, 0, 0, sc, nil)
		var cache [16]int32
		di := 0
	pixels:
		for y := 0; y < height; y++ {
			for x := 0; x < width; x++ {
				i := y*width + x
				scp := st.properties(needSC, &cache)
				v := ch.Pix[i]
				if needDelta[di] == i {
					var diff int64
					if needSC {
						diff = (scp.prediction + 3) >> 3
					} else {
						diff = st.predict(t.DPred)
					}
					v += int32(diff)
					ch.Pix[i] = v
					di++
					if di >= len(needDelta) {
						break pixels
					}
				}
				st.record(v, scp, cache[9])
			}
		}
	}
	return nil
}

func satSub(a, b uint32) uint32 {
	if a <= b {
		return 0
	}
	return a - b
}

func minU32(a, b uint32) uint32 {
	if a < b {
		return a
	}
	return b
}

package vardct

import (
	"github.com/cocosip/go-jxl/jxl/bitio"
	"github.com/cocosip/go-jxl/jxl/entropy"
)

// HFPass holds the per-pass coefficient orders and the HF coefficient
// entropy decoder shared by the pass groups.
type HFPass struct {
	// order[orderID][channel] lists matrix positions, long dimension
	// first; the first blockCount entries are the LLF positions.
	order [13][3][][2]uint8
	dist  *entropy.Decoder
}

// ParseHFPass reads the order permutations and the coefficient decoder
// for one pass.
func ParseHFPass(r *bitio.Reader, blockCtx *HFBlockContext, numHFPresets int) (*HFPass, error) {
	usedOrders, err := r.ReadU32(
		bitio.Val(0x5F), bitio.Val(0x13), bitio.Val(0), bitio.Bits(13))
	if err != nil {
		return nil, err
	}

	var permDecoder *entropy.Decoder
	if usedOrders != 0 {
		permDecoder, err = entropy.NewDecoder(r, 8)
		if err != nil {
			return nil, err
		}
		if err := permDecoder.Begin(r); err != nil {
			return nil, err
		}
	}

	hp := &HFPass{}
	for id := 0; id < 13; id++ {
		natural := naturalOrder(id)
		if usedOrders&(1<<id) != 0 {
			size := uint32(len(natural))
			for c := 0; c < 3; c++ {
				perm, err := entropy.ReadPermutation(r, permDecoder, size, size/64)
				if err != nil {
					return nil, err
				}
				order := make([][2]uint8, size)
				for i, p := range perm {
					order[i] = natural[p]
				}
				hp.order[id][c] = order
			}
		} else {
			for c := 0; c < 3; c++ {
				hp.order[id][c] = natural
			}
		}
	}
	if permDecoder != nil {
		if err := permDecoder.Finalize(); err != nil {
			return nil, err
		}
	}

	hp.dist, err = entropy.NewDecoder(r, 495*numHFPresets*blockCtx.NumBlockClusters)
	if err != nil {
		return nil, err
	}
	return hp, nil
}

// Order returns the coefficient scan for one order id and channel.
func (hp *HFPass) Order(orderID, channel int) [][2]uint8 {
	return hp.order[orderID][channel]
}

// CloneDecoder returns a fresh decoder over the shared distributions, so
// each pass group decodes with independent state.
func (hp *HFPass) CloneDecoder() *entropy.Decoder {
	return hp.dist.Clone()
}

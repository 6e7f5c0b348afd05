package entropy

import (
	"fmt"

	"github.com/cocosip/go-jxl/jxl/bitio"
	"github.com/cocosip/go-jxl/jxl/jxlerr"
)

func permutationContext(x uint32) int {
	ctx := addLog2Ceil(x)
	if ctx > 7 {
		ctx = 7
	}
	return int(ctx)
}

// ReadPermutation decodes a Lehmer-coded permutation of [0, size). The
// first skip entries are fixed to the identity.
func ReadPermutation(r *bitio.Reader, d *Decoder, size, skip uint32) ([]uint32, error) {
	end, err := d.ReadVarint(r, permutationContext(size))
	if err != nil {
		return nil, err
	}
	if end > size-skip {
		return nil, fmt.Errorf("%w: permutation end %d exceeds %d", jxlerr.ErrMalformedBitstream, end, size-skip)
	}

	lehmer := make([]uint32, end)
	prev := uint32(0)
	for i := range lehmer {
		lehmer[i], err = d.ReadVarint(r, permutationContext(prev))
		if err != nil {
			return nil, err
		}
		if lehmer[i] >= size-skip-uint32(i) {
			return nil, fmt.Errorf("%w: lehmer code out of range", jxlerr.ErrMalformedBitstream)
		}
		prev = lehmer[i]
	}

	temp := make([]uint32, 0, size-skip)
	for i := skip; i < size; i++ {
		temp = append(temp, i)
	}
	perm := make([]uint32, 0, size)
	for i := uint32(0); i < skip; i++ {
		perm = append(perm, i)
	}
	for _, idx := range lehmer {
		perm = append(perm, temp[idx])
		temp = append(temp[:idx], temp[idx+1:]...)
	}
	perm = append(perm, temp...)
	return perm, nil
}

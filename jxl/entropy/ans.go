package entropy

import (
	"fmt"

	"github.com/cocosip/go-jxl/jxl/bitio"
	"github.com/cocosip/go-jxl/jxl/jxlerr"
)

// ansHistogram is a 12-bit ANS distribution in alias-table form. The alias
// construction keeps every bucket the same size so symbol lookup is a single
// index plus one comparison.
type ansHistogram struct {
	buckets       []ansBucket
	logBucketSize uint32
	bucketMask    uint32
	single        int32 // symbol index, -1 if none
}

type ansBucket struct {
	aliasSymbol uint16
	aliasCutoff uint16
	aliasOffset uint16 // pre-adjusted by cutoff; wraps intentionally
	dist        uint16
}

const ansDistBits = 12

// readANSVarU8 reads the variable-length byte used inside ANS histogram
// headers: a presence bit, then a 3-bit exponent and that many mantissa bits.
func readANSVarU8(r *bitio.Reader) (uint32, error) {
	b, err := r.ReadBool()
	if err != nil {
		return 0, err
	}
	if !b {
		return 0, nil
	}
	n, err := r.ReadBits(3)
	if err != nil {
		return 0, err
	}
	m, err := r.ReadBits(int(n))
	if err != nil {
		return 0, err
	}
	return 1<<n + m, nil
}

// readShiftedPrefix reads one distribution code of the compressed histogram
// form (a fixed 3-bit code with two-level refinements).
func readShiftedPrefix(r *bitio.Reader) (uint16, error) {
	v, err := r.ReadBits(3)
	if err != nil {
		return 0, err
	}
	switch v {
	case 0:
		return 10, nil
	case 1:
		for _, val := range [4]uint16{4, 0, 11, 13} {
			b, err := r.ReadBool()
			if err != nil {
				return 0, err
			}
			if b {
				return val, nil
			}
		}
		return 12, nil
	case 2:
		return 7, nil
	case 3:
		b, err := r.ReadBool()
		if err != nil {
			return 0, err
		}
		if b {
			return 1, nil
		}
		return 3, nil
	case 4:
		return 6, nil
	case 5:
		return 8, nil
	case 6:
		return 9, nil
	default:
		b, err := r.ReadBool()
		if err != nil {
			return 0, err
		}
		if b {
			return 2, nil
		}
		return 5, nil
	}
}

func parseANSHistogram(r *bitio.Reader, logAlphabetSize uint32) (ansHistogram, error) {
	tableSize := 1 << logAlphabetSize
	logBucketSize := ansDistBits - logAlphabetSize
	bucketSize := uint16(1) << logBucketSize

	dist := make([]uint16, tableSize)
	alphabetSize := 0

	b, err := r.ReadBool()
	if err != nil {
		return ansHistogram{}, err
	}
	if b {
		b2, err := r.ReadBool()
		if err != nil {
			return ansHistogram{}, err
		}
		if b2 {
			// two symbols with an explicit 12-bit split
			v0, err := readANSVarU8(r)
			if err != nil {
				return ansHistogram{}, err
			}
			v1, err := readANSVarU8(r)
			if err != nil {
				return ansHistogram{}, err
			}
			if v0 == v1 {
				return ansHistogram{}, fmt.Errorf("%w: duplicate ANS symbol", jxlerr.ErrMalformedBitstream)
			}
			alphabetSize = int(maxU32(v0, v1)) + 1
			if alphabetSize > tableSize {
				return ansHistogram{}, fmt.Errorf("%w: ANS alphabet exceeds table", jxlerr.ErrMalformedBitstream)
			}
			prob, err := r.ReadBits(ansDistBits)
			if err != nil {
				return ansHistogram{}, err
			}
			dist[v0] = uint16(prob)
			dist[v1] = 1<<ansDistBits - uint16(prob)
		} else {
			// single symbol
			val, err := readANSVarU8(r)
			if err != nil {
				return ansHistogram{}, err
			}
			alphabetSize = int(val) + 1
			if alphabetSize > tableSize {
				return ansHistogram{}, fmt.Errorf("%w: ANS alphabet exceeds table", jxlerr.ErrMalformedBitstream)
			}
			dist[val] = 1 << ansDistBits
		}
	} else {
		b2, err := r.ReadBool()
		if err != nil {
			return ansHistogram{}, err
		}
		if b2 {
			// evenly distributed
			val, err := readANSVarU8(r)
			if err != nil {
				return ansHistogram{}, err
			}
			alphabetSize = int(val) + 1
			if alphabetSize > tableSize {
				return ansHistogram{}, fmt.Errorf("%w: ANS alphabet exceeds table", jxlerr.ErrMalformedBitstream)
			}
			base := (1 << ansDistBits) / alphabetSize
			leftover := (1 << ansDistBits) % alphabetSize
			for i := 0; i < alphabetSize; i++ {
				if i < leftover {
					dist[i] = uint16(base) + 1
				} else {
					dist[i] = uint16(base)
				}
			}
		} else {
			if err := parseANSCompressed(r, dist, tableSize, &alphabetSize); err != nil {
				return ansHistogram{}, err
			}
		}
	}

	return buildAliasTable(dist, alphabetSize, logBucketSize, bucketSize)
}

func parseANSCompressed(r *bitio.Reader, dist []uint16, tableSize int, alphabetSize *int) error {
	length := 0
	for length < 3 {
		b, err := r.ReadBool()
		if err != nil {
			return err
		}
		if !b {
			break
		}
		length++
	}
	v, err := r.ReadBits(length)
	if err != nil {
		return err
	}
	shift := int(v) + 1<<length - 1
	if shift > 13 {
		return fmt.Errorf("%w: ANS shift out of range", jxlerr.ErrMalformedBitstream)
	}
	val, err := readANSVarU8(r)
	if err != nil {
		return err
	}
	*alphabetSize = int(val) + 3
	if *alphabetSize > tableSize {
		return fmt.Errorf("%w: ANS alphabet exceeds table", jxlerr.ErrMalformedBitstream)
	}

	type span struct{ start, end int }
	var repeatRanges []span

	omitPos := -1
	omitLog := uint16(0)
	idx := 0
	for idx < *alphabetSize {
		code, err := readShiftedPrefix(r)
		if err != nil {
			return err
		}
		dist[idx] = code
		if code == 13 {
			rc, err := readANSVarU8(r)
			if err != nil {
				return err
			}
			repeatCount := int(rc) + 4
			if idx+repeatCount > *alphabetSize {
				return fmt.Errorf("%w: ANS repeat range overflow", jxlerr.ErrMalformedBitstream)
			}
			repeatRanges = append(repeatRanges, span{idx, idx + repeatCount})
			idx += repeatCount
			continue
		}
		if omitPos < 0 || code > omitLog {
			omitLog = code
			omitPos = idx
		}
		idx++
	}
	if omitPos < 0 {
		return fmt.Errorf("%w: ANS histogram with no omitted entry", jxlerr.ErrMalformedBitstream)
	}
	if omitPos+1 < len(dist) && dist[omitPos+1] == 13 {
		return fmt.Errorf("%w: ANS repeat after omitted entry", jxlerr.ErrMalformedBitstream)
	}

	rangeIdx := 0
	acc := 0
	prevDist := uint16(0)
	for i := range dist {
		if rangeIdx < len(repeatRanges) && repeatRanges[rangeIdx].start <= i {
			if repeatRanges[rangeIdx].end == i {
				rangeIdx++
			} else {
				dist[i] = prevDist
				acc += int(dist[i])
				if acc > 1<<ansDistBits {
					return fmt.Errorf("%w: ANS distribution overfull", jxlerr.ErrMalformedBitstream)
				}
				continue
			}
		}
		if dist[i] == 0 {
			prevDist = 0
			continue
		}
		if i == omitPos {
			prevDist = 0
			continue
		}
		if dist[i] > 1 {
			zeros := int(dist[i]) - 1
			bitcount := shift - (ansDistBits-zeros)>>1
			if bitcount < 0 {
				bitcount = 0
			}
			if bitcount > zeros {
				bitcount = zeros
			}
			extra, err := r.ReadBits(bitcount)
			if err != nil {
				return err
			}
			dist[i] = uint16(1<<zeros) + uint16(extra)<<(zeros-bitcount)
		}
		prevDist = dist[i]
		acc += int(dist[i])
		if acc > 1<<ansDistBits {
			return fmt.Errorf("%w: ANS distribution overfull", jxlerr.ErrMalformedBitstream)
		}
	}
	dist[omitPos] = uint16(1<<ansDistBits - acc)
	return nil
}

func buildAliasTable(dist []uint16, alphabetSize int, logBucketSize uint32, bucketSize uint16) (ansHistogram, error) {
	h := ansHistogram{
		logBucketSize: logBucketSize,
		bucketMask:    uint32(bucketSize) - 1,
		single:        -1,
	}

	for i, d := range dist {
		if d == 1<<ansDistBits {
			// degenerate distribution: every bucket aliases the symbol
			h.single = int32(i)
			h.buckets = make([]ansBucket, len(dist))
			for j := range h.buckets {
				h.buckets[j] = ansBucket{
					dist:        dist[j],
					aliasSymbol: uint16(i),
					aliasOffset: bucketSize * uint16(j),
					aliasCutoff: 0,
				}
			}
			h.buckets[i].dist = 1 << ansDistBits
			return h, nil
		}
	}

	type workBucket struct {
		dist, aliasSymbol, aliasOffset, aliasCutoff uint16
	}
	work := make([]workBucket, len(dist))
	var underfull, overfull []int
	for i, d := range dist {
		work[i] = workBucket{dist: d, aliasCutoff: d}
		if i < alphabetSize {
			work[i].aliasSymbol = uint16(i)
		}
		switch {
		case d < bucketSize:
			underfull = append(underfull, i)
		case d > bucketSize:
			overfull = append(overfull, i)
		}
	}
	for len(overfull) > 0 && len(underfull) > 0 {
		o := overfull[len(overfull)-1]
		overfull = overfull[:len(overfull)-1]
		u := underfull[len(underfull)-1]
		underfull = underfull[:len(underfull)-1]

		by := bucketSize - work[u].aliasCutoff
		work[o].aliasCutoff -= by
		work[u].aliasSymbol = uint16(o)
		work[u].aliasOffset = work[o].aliasCutoff
		switch {
		case work[o].aliasCutoff < bucketSize:
			underfull = append(underfull, o)
		case work[o].aliasCutoff > bucketSize:
			overfull = append(overfull, o)
		}
	}

	h.buckets = make([]ansBucket, len(work))
	for i, w := range work {
		if w.aliasCutoff == bucketSize {
			h.buckets[i] = ansBucket{dist: w.dist, aliasSymbol: uint16(i)}
		} else {
			h.buckets[i] = ansBucket{
				dist:        w.dist,
				aliasSymbol: w.aliasSymbol,
				aliasOffset: w.aliasOffset - w.aliasCutoff,
				aliasCutoff: w.aliasCutoff,
			}
		}
	}
	return h, nil
}

// readSymbol decodes one symbol and advances the ANS state, appending 16
// bits from the stream whenever the state drops below the renormalization
// threshold.
func (h *ansHistogram) readSymbol(r *bitio.Reader, state *uint32) (uint16, error) {
	idx := *state & 0xfff
	i := idx >> h.logBucketSize
	pos := idx & h.bucketMask
	b := h.buckets[i]

	var symbol uint16
	var dist uint32
	var offset uint32
	if uint16(pos) >= b.aliasCutoff {
		symbol = b.aliasSymbol
		dist = uint32(h.buckets[b.aliasSymbol].dist)
		offset = uint32(b.aliasOffset + uint16(pos))
	} else {
		symbol = uint16(i)
		dist = uint32(b.dist)
		offset = pos
	}

	next := (*state>>ansDistBits)*dist + offset
	if next < 1<<16 {
		next = next<<16 | r.PeekBits(16)
		if err := r.SkipBits(16); err != nil {
			return 0, err
		}
	}
	*state = next
	return symbol, nil
}

func (h *ansHistogram) singleSymbol() (uint16, bool) {
	if h.single >= 0 {
		return uint16(h.single), true
	}
	return 0, false
}

func maxU32(a, b uint32) uint32 {
	if a > b {
		return a
	}
	return b
}

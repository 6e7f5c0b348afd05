package entropy

import (
	"fmt"
	"math/bits"

	"github.com/cocosip/go-jxl/jxl/bitio"
	"github.com/cocosip/go-jxl/jxl/jxlerr"
)

// prefixHistogram is a canonical prefix code in first-code form: configs[i]
// packs the cumulative code-space boundary for length i+1 in the high bits
// and the symbol table offset in the low 16 bits.
type prefixHistogram struct {
	configs []uint32
	symbols []uint16
}

func prefixSingleSymbol(symbol uint16) prefixHistogram {
	return prefixHistogram{symbols: []uint16{symbol}}
}

func prefixWithCodeLengths(codeLengths []uint8) (prefixHistogram, error) {
	var symsForLength [15][]uint16
	maxLen := 0
	for sym, length := range codeLengths {
		if length == 0 {
			continue
		}
		symsForLength[length-1] = append(symsForLength[length-1], uint16(sym))
		if int(length) > maxLen {
			maxLen = int(length)
		}
	}

	h := prefixHistogram{}
	currentBits := uint32(0)
	for idx := 0; idx < maxLen; idx++ {
		syms := symsForLength[idx]
		currentBits += uint32(len(syms)) << (14 - idx)
		h.configs = append(h.configs, currentBits<<16|uint32(len(h.symbols)))
		for _, s := range syms {
			h.symbols = append(h.symbols, s)
		}
	}

	if currentBits != 1<<15 {
		return prefixHistogram{}, fmt.Errorf("%w: prefix code lengths do not fill the code space", jxlerr.ErrMalformedBitstream)
	}
	return h, nil
}

func parsePrefixHistogram(r *bitio.Reader, alphabetSize uint32) (prefixHistogram, error) {
	if alphabetSize == 1 {
		return prefixSingleSymbol(0), nil
	}
	hskip, err := r.ReadBits(2)
	if err != nil {
		return prefixHistogram{}, err
	}
	if hskip == 1 {
		return parsePrefixSimple(r, alphabetSize)
	}
	return parsePrefixComplex(r, alphabetSize, hskip)
}

func parsePrefixSimple(r *bitio.Reader, alphabetSize uint32) (prefixHistogram, error) {
	alphabetBits := bits.Len32(alphabetSize - 1)
	nsym, err := r.ReadBits(2)
	if err != nil {
		return prefixHistogram{}, err
	}
	nsym++

	syms := make([]uint32, nsym)
	for i := range syms {
		syms[i], err = r.ReadBits(alphabetBits)
		if err != nil {
			return prefixHistogram{}, err
		}
		if syms[i] >= alphabetSize {
			return prefixHistogram{}, fmt.Errorf("%w: prefix symbol out of alphabet", jxlerr.ErrMalformedBitstream)
		}
	}

	var lens []uint8
	switch nsym {
	case 1:
		return prefixSingleSymbol(uint16(syms[0])), nil
	case 2:
		lens = []uint8{1, 1}
	case 3:
		lens = []uint8{1, 2, 2}
	case 4:
		treeSelector, err := r.ReadBool()
		if err != nil {
			return prefixHistogram{}, err
		}
		if treeSelector {
			lens = []uint8{1, 2, 3, 3}
		} else {
			lens = []uint8{2, 2, 2, 2}
		}
	}

	codeLengths := make([]uint8, alphabetSize)
	for i, sym := range syms {
		codeLengths[sym] = lens[i]
	}
	return prefixWithCodeLengths(codeLengths)
}

var codeLengthOrder = [18]int{1, 2, 3, 4, 0, 5, 17, 6, 16, 7, 8, 9, 10, 11, 12, 13, 14, 15}

func parsePrefixComplex(r *bitio.Reader, alphabetSize, hskip uint32) (prefixHistogram, error) {
	var codeLengthCodeLengths [18]uint8
	bitacc := 0
	nonzeroCount := 0
	nonzeroSym := 0
	for _, idx := range codeLengthOrder[hskip:] {
		base, err := r.ReadU32(bitio.Val(0), bitio.Val(4), bitio.Val(3), bitio.Val(8))
		if err != nil {
			return prefixHistogram{}, err
		}
		length := uint8(base)
		if base == 8 {
			b, err := r.ReadBool()
			if err != nil {
				return prefixHistogram{}, err
			}
			if b {
				b2, err := r.ReadBool()
				if err != nil {
					return prefixHistogram{}, err
				}
				if b2 {
					length = 5
				} else {
					length = 1
				}
			} else {
				length = 2
			}
		}

		codeLengthCodeLengths[idx] = length
		if length != 0 {
			nonzeroCount++
			nonzeroSym = idx
			bitacc += 32 >> length
			if bitacc == 32 {
				break
			}
			if bitacc > 32 {
				return prefixHistogram{}, fmt.Errorf("%w: code length code overfull", jxlerr.ErrMalformedBitstream)
			}
		}
	}

	var clHistogram prefixHistogram
	if nonzeroCount == 1 {
		clHistogram = prefixSingleSymbol(uint16(nonzeroSym))
	} else if bitacc != 32 {
		return prefixHistogram{}, fmt.Errorf("%w: code length code underfull", jxlerr.ErrMalformedBitstream)
	} else {
		var err error
		clHistogram, err = prefixWithCodeLengths(codeLengthCodeLengths[:])
		if err != nil {
			return prefixHistogram{}, err
		}
	}

	codeLengths := make([]uint8, alphabetSize)
	bitacc = 0
	prevSym := uint8(8)
	lastNonzeroSym := uint8(8)
	lastRepeatCount := 0
	repeatCount := 0
	repeatSym := uint8(0)
	for i := range codeLengths {
		if repeatCount > 0 {
			codeLengths[i] = repeatSym
			repeatCount--
		} else {
			symVal, err := clHistogram.readSymbol(r)
			if err != nil {
				return prefixHistogram{}, err
			}
			sym := uint8(symVal)
			switch {
			case sym == 0:
			case sym <= 15:
				codeLengths[i] = sym
				lastNonzeroSym = sym
			case sym == 16:
				extra, err := r.ReadBits(2)
				if err != nil {
					return prefixHistogram{}, err
				}
				repeatCount = int(extra) + 3
				if prevSym == 16 {
					repeatCount += lastRepeatCount*3 - 8
					lastRepeatCount += repeatCount
				} else {
					lastRepeatCount = repeatCount
				}
				repeatSym = lastNonzeroSym
				codeLengths[i] = repeatSym
				repeatCount--
			case sym == 17:
				extra, err := r.ReadBits(3)
				if err != nil {
					return prefixHistogram{}, err
				}
				repeatCount = int(extra) + 3
				if prevSym == 17 {
					repeatCount += lastRepeatCount*7 - 16
					lastRepeatCount += repeatCount
				} else {
					lastRepeatCount = repeatCount
				}
				repeatSym = 0
				codeLengths[i] = repeatSym
				repeatCount--
			default:
				return prefixHistogram{}, fmt.Errorf("%w: invalid code length symbol %d", jxlerr.ErrMalformedBitstream, sym)
			}
			prevSym = sym
		}

		if codeLengths[i] != 0 {
			bitacc += 32768 >> codeLengths[i]
			if bitacc > 32768 {
				return prefixHistogram{}, fmt.Errorf("%w: prefix code overfull", jxlerr.ErrMalformedBitstream)
			}
			if bitacc == 32768 && repeatCount == 0 {
				break
			}
		}
	}

	if bitacc != 32768 || repeatCount > 0 {
		return prefixHistogram{}, fmt.Errorf("%w: prefix code underfull", jxlerr.ErrMalformedBitstream)
	}
	return prefixWithCodeLengths(codeLengths)
}

// readSymbol decodes one symbol by locating the 15-bit reversed lookahead
// within the cumulative first-code boundaries.
func (h *prefixHistogram) readSymbol(r *bitio.Reader) (uint16, error) {
	peeked := r.PeekBits(15)
	lookahead := bits.Reverse32(peeked)>>1 | 0xffff
	prev := uint32(0)
	for count, config := range h.configs {
		if lookahead < config {
			if err := r.SkipBits(count + 1); err != nil {
				return 0, err
			}
			offset := (lookahead-prev)>>(30-count) + config&0xffff
			if int(offset) >= len(h.symbols) {
				return 0, fmt.Errorf("%w: prefix symbol offset out of range", jxlerr.ErrMalformedBitstream)
			}
			return h.symbols[offset], nil
		}
		prev = config
	}
	if err := r.SkipBits(len(h.configs)); err != nil {
		return 0, err
	}
	return h.symbols[0], nil
}

// singleSymbol reports the only symbol this histogram can produce, if any.
func (h *prefixHistogram) singleSymbol() (uint16, bool) {
	if len(h.symbols) == 1 {
		return h.symbols[0], true
	}
	return 0, false
}

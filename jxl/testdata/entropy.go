package testdata

import "sort"

// SymbolCoder writes tokens for a simple prefix-coded distribution built by
// WriteSimpleDecoder. Tokens decode to their own value (the integer
// configuration puts the whole value in the token).
type SymbolCoder struct {
	codes map[uint32]symbolCode
}

type symbolCode struct {
	bits uint32
	n    int
}

// WriteSimpleDecoder emits a full distribution-bundle header for numDist
// contexts, all clustered onto a single prefix-coded distribution over the
// given token alphabet (1 to 4 distinct tokens, each below 32768). The
// returned coder writes tokens for the stream body.
//
// The integer configuration uses splitExponent 15, so every decoded token
// is its own value and no extra payload bits are consumed.
func WriteSimpleDecoder(w *BitWriter, numDist int, tokens ...uint32) *SymbolCoder {
	if len(tokens) < 1 || len(tokens) > 4 {
		panic("testdata: token alphabet must have 1 to 4 entries")
	}
	sorted := append([]uint32(nil), tokens...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	for i := 1; i < len(sorted); i++ {
		if sorted[i] == sorted[i-1] {
			panic("testdata: duplicate token")
		}
	}

	w.WriteBool(false) // lz77 disabled
	if numDist > 1 {
		w.WriteBool(true) // simple clustering
		w.WriteBits(0, 2) // zero-bit cluster ids: everything in cluster 0
	}
	w.WriteBool(true)  // prefix code backend
	w.WriteBits(15, 4) // splitExponent = 15: token is the value
	alphabetSize := sorted[len(sorted)-1] + 1
	if alphabetSize < 2 {
		w.WriteBool(false) // count = 1, single-symbol histogram, no more bits
		return &SymbolCoder{codes: map[uint32]symbolCode{sorted[0]: {}}}
	}

	// alphabet size as 1 + (1<<n) + m
	n, m := encodeCount(alphabetSize)
	w.WriteBool(true)
	w.WriteBits(n, 4)
	w.WriteBits(m, int(n))

	alphabetBits := ceilLog2(alphabetSize)
	w.WriteBits(1, 2) // hskip = 1: simple histogram form
	w.WriteBits(uint32(len(sorted)-1), 2)

	codes := make(map[uint32]symbolCode, len(sorted))
	switch len(sorted) {
	case 1:
		w.WriteBits(sorted[0], alphabetBits)
		codes[sorted[0]] = symbolCode{}
	case 2:
		w.WriteBits(sorted[0], alphabetBits)
		w.WriteBits(sorted[1], alphabetBits)
		// canonical 1-bit codes in ascending symbol order
		codes[sorted[0]] = symbolCode{bits: 0, n: 1}
		codes[sorted[1]] = symbolCode{bits: 1, n: 1}
	case 3:
		for _, s := range sorted {
			w.WriteBits(s, alphabetBits)
		}
		// lengths 1,2,2: codes 0, 01, 11 read LSB-first
		codes[sorted[0]] = symbolCode{bits: 0, n: 1}
		codes[sorted[1]] = symbolCode{bits: 1, n: 2}
		codes[sorted[2]] = symbolCode{bits: 3, n: 2}
	case 4:
		for _, s := range sorted {
			w.WriteBits(s, alphabetBits)
		}
		w.WriteBool(false) // flat 2-bit tree
		for i, s := range sorted {
			codes[s] = symbolCode{bits: uint32(i&1)<<1 | uint32(i>>1), n: 2}
		}
	}
	return &SymbolCoder{codes: codes}
}

// Write emits the code for one token.
func (c *SymbolCoder) Write(w *BitWriter, token uint32) {
	code, ok := c.codes[token]
	if !ok {
		panic("testdata: token not in alphabet")
	}
	w.WriteBits(code.bits, code.n)
}

func encodeCount(count uint32) (n, m uint32) {
	v := count - 1
	n = uint32(0)
	for 1<<(n+1) <= v {
		n++
	}
	return n, v - 1<<n
}

func ceilLog2(v uint32) int {
	n := 0
	for 1<<n < int(v) {
		n++
	}
	return n
}

// Package testdata builds synthetic codestreams in memory for decoder
// tests. The writers here mirror the bit layout the decoder consumes, so
// tests can construct small valid streams without binary fixtures.
package testdata

// BitWriter packs bits LSB-first within each byte, matching the codestream
// bit order the decoder reads.
type BitWriter struct {
	data   []byte
	bitPos int
}

// NewBitWriter creates an empty writer.
func NewBitWriter() *BitWriter {
	return &BitWriter{}
}

// WriteBits appends the n low bits of v, least significant bit first.
func (w *BitWriter) WriteBits(v uint32, n int) {
	for i := 0; i < n; i++ {
		if w.bitPos&7 == 0 {
			w.data = append(w.data, 0)
		}
		if v>>uint(i)&1 == 1 {
			w.data[w.bitPos>>3] |= 1 << uint(w.bitPos&7)
		}
		w.bitPos++
	}
}

// WriteBool appends a single bit.
func (w *BitWriter) WriteBool(b bool) {
	if b {
		w.WriteBits(1, 1)
	} else {
		w.WriteBits(0, 1)
	}
}

// WriteU32 appends a 2-bit selector followed by n suffix bits holding
// value-base.
func (w *BitWriter) WriteU32(selector uint32, value, base uint32, n int) {
	w.WriteBits(selector, 2)
	if n > 0 {
		w.WriteBits(value-base, n)
	}
}

// ZeroPadToByte appends zero bits up to the next byte boundary.
func (w *BitWriter) ZeroPadToByte() {
	for w.bitPos&7 != 0 {
		w.WriteBits(0, 1)
	}
}

// BitsWritten returns the number of bits appended so far.
func (w *BitWriter) BitsWritten() int {
	return w.bitPos
}

// Bytes returns the packed stream.
func (w *BitWriter) Bytes() []byte {
	return w.data
}

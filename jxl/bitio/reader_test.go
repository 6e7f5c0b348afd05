package bitio

import (
	"errors"
	"testing"

	"github.com/cocosip/go-jxl/jxl/jxlerr"
)

func TestReadBitsLSBFirst(t *testing.T) {
	r := NewReader([]byte{0b10110100, 0b00000110})

	tests := []struct {
		n    int
		want uint32
	}{
		{2, 0b00},
		{3, 0b101},
		{3, 0b101},
		{4, 0b0110},
	}
	for i, tt := range tests {
		got, err := r.ReadBits(tt.n)
		if err != nil {
			t.Fatalf("read %d: %v", i, err)
		}
		if got != tt.want {
			t.Errorf("read %d: got %#b, want %#b", i, got, tt.want)
		}
	}
	if r.BitsRead() != 12 {
		t.Errorf("BitsRead = %d, want 12", r.BitsRead())
	}
}

func TestReadBitsAcrossBytes(t *testing.T) {
	r := NewReader([]byte{0xff, 0x00, 0xff, 0x00, 0xff})
	if _, err := r.ReadBits(3); err != nil {
		t.Fatal(err)
	}
	got, err := r.ReadBits(32)
	if err != nil {
		t.Fatal(err)
	}
	// bits 3..34: 11111 00000000 11111111 00000000 111
	want := uint32(0b111_00000000_11111111_00000000_11111)
	if got != want {
		t.Errorf("got %#032b, want %#032b", got, want)
	}
}

func TestReadPastEnd(t *testing.T) {
	r := NewReader([]byte{0xab})
	if _, err := r.ReadBits(8); err != nil {
		t.Fatal(err)
	}
	_, err := r.ReadBits(1)
	if !errors.Is(err, jxlerr.ErrInsufficientData) {
		t.Errorf("got %v, want ErrInsufficientData", err)
	}
	// cursor must not advance on failure
	if r.BitsRead() != 8 {
		t.Errorf("cursor moved on failed read: %d", r.BitsRead())
	}
}

func TestPeekZeroPadsPastEnd(t *testing.T) {
	r := NewReader([]byte{0xff})
	if got := r.PeekBits(15); got != 0xff {
		t.Errorf("PeekBits(15) = %#x, want 0xff", got)
	}
}

func TestReadU32(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want uint32
	}{
		// selector bits are the two lowest bits of the first byte
		{"val branch", []byte{0b00}, 7},
		{"bits branch", []byte{0b101_10, 0}, 5 + 10},
	}
	r := NewReader(tests[0].data)
	got, err := r.ReadU32(Val(7), Val(8), BitsOffset(4, 10), Bits(12))
	if err != nil {
		t.Fatal(err)
	}
	if got != 7 {
		t.Errorf("val branch: got %d", got)
	}

	r = NewReader([]byte{0b0101_10, 0})
	got, err = r.ReadU32(Val(7), Val(8), BitsOffset(4, 10), Bits(12))
	if err != nil {
		t.Fatal(err)
	}
	if got != 10+0b0101 {
		t.Errorf("bits branch: got %d, want %d", got, 10+0b0101)
	}
}

func TestReadU64Forms(t *testing.T) {
	// selector 0 -> 0
	r := NewReader([]byte{0b00})
	v, err := r.ReadU64()
	if err != nil || v != 0 {
		t.Errorf("selector 0: v=%d err=%v", v, err)
	}

	// selector 1 -> 1 + u(4)
	r = NewReader([]byte{0b1001_01})
	v, err = r.ReadU64()
	if err != nil || v != 1+0b1001 {
		t.Errorf("selector 1: v=%d err=%v", v, err)
	}

	// selector 2 -> 17 + u(8)
	r = NewReader([]byte{0b101010_10, 0b10})
	v, err = r.ReadU64()
	if err != nil || v != 17+0b10101010 {
		t.Errorf("selector 2: v=%d err=%v", v, err)
	}
}

func TestReadEnumRange(t *testing.T) {
	r := NewReader([]byte{0b01})
	v, err := r.ReadEnum(4)
	if err != nil || v != 1 {
		t.Fatalf("v=%d err=%v", v, err)
	}

	r = NewReader([]byte{0b11111_10, 0b1})
	_, err = r.ReadEnum(4)
	if !errors.Is(err, jxlerr.ErrMalformedBitstream) {
		t.Errorf("out-of-range enum: got %v", err)
	}
}

func TestReadF16(t *testing.T) {
	tests := []struct {
		bits uint16
		want float32
	}{
		{0x3c00, 1.0},
		{0xbc00, -1.0},
		{0x0000, 0.0},
		{0x4000, 2.0},
		{0x3800, 0.5},
	}
	for _, tt := range tests {
		r := NewReader([]byte{byte(tt.bits), byte(tt.bits >> 8)})
		got, err := r.ReadF16()
		if err != nil {
			t.Fatalf("bits %#x: %v", tt.bits, err)
		}
		if got != tt.want {
			t.Errorf("bits %#x: got %v, want %v", tt.bits, got, tt.want)
		}
	}
}

func TestZeroPadToByte(t *testing.T) {
	r := NewReader([]byte{0b0000_0101, 0xff})
	if _, err := r.ReadBits(3); err != nil {
		t.Fatal(err)
	}
	if err := r.ZeroPadToByte(); err != nil {
		t.Fatalf("zero padding rejected: %v", err)
	}
	if r.BitsRead() != 8 {
		t.Errorf("BitsRead = %d, want 8", r.BitsRead())
	}

	r = NewReader([]byte{0b1000_0101})
	if _, err := r.ReadBits(3); err != nil {
		t.Fatal(err)
	}
	if err := r.ZeroPadToByte(); !errors.Is(err, jxlerr.ErrMalformedBitstream) {
		t.Errorf("nonzero padding: got %v", err)
	}
}

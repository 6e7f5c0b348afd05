package vardct

import "testing"

func TestTransformTypeGeometry(t *testing.T) {
	tests := []struct {
		t              TransformType
		w8, h8         int
		matrixIdx      int
		orderID        int
		needsTranspose bool
	}{
		{Dct8, 1, 1, 0, 0, true},
		{Hornuss, 1, 1, 1, 1, false},
		{Dct2, 1, 1, 2, 1, false},
		{Dct4, 1, 1, 3, 1, false},
		{Dct4x8, 1, 1, 9, 1, false},
		{Dct8x4, 1, 1, 9, 1, false},
		{Dct16, 2, 2, 4, 2, true},
		{Dct16x8, 1, 2, 6, 4, true},
		{Dct8x16, 2, 1, 6, 4, false},
		{Dct32x8, 1, 4, 7, 5, true},
		{Dct8x32, 4, 1, 7, 5, false},
		{Dct32x16, 2, 4, 8, 6, true},
		{Dct64, 8, 8, 11, 7, true},
		{Dct32x64, 8, 4, 12, 8, false},
		{Dct256x128, 16, 32, 16, 12, true},
	}
	for _, tt := range tests {
		w8, h8 := tt.t.BlockSize()
		if w8 != tt.w8 || h8 != tt.h8 {
			t.Errorf("%v block size = (%d, %d), want (%d, %d)", tt.t, w8, h8, tt.w8, tt.h8)
		}
		if got := tt.t.MatrixIndex(); got != tt.matrixIdx {
			t.Errorf("%v matrix index = %d, want %d", tt.t, got, tt.matrixIdx)
		}
		if got := tt.t.OrderID(); got != tt.orderID {
			t.Errorf("%v order id = %d, want %d", tt.t, got, tt.orderID)
		}
		if got := tt.t.NeedTranspose(); got != tt.needsTranspose {
			t.Errorf("%v transpose = %v, want %v", tt.t, got, tt.needsTranspose)
		}
	}
}

func TestParseTransformType(t *testing.T) {
	if got, err := ParseTransformType(4); err != nil || got != Dct16 {
		t.Errorf("ParseTransformType(4) = %v, %v", got, err)
	}
	if _, err := ParseTransformType(27); err == nil {
		t.Error("transform id 27 accepted")
	}
	if _, err := ParseTransformType(-1); err == nil {
		t.Error("negative transform id accepted")
	}
}

func TestSupported(t *testing.T) {
	for _, tt := range []TransformType{Dct8, Hornuss, Dct2, Dct4, Dct16, Dct64, Dct16x8, Dct32x64} {
		if !tt.Supported() {
			t.Errorf("%v reported unsupported", tt)
		}
	}
	for _, tt := range []TransformType{Afv0, Afv3, Dct128, Dct64x128, Dct256, Dct128x256} {
		if tt.Supported() {
			t.Errorf("%v reported supported", tt)
		}
	}
}

func TestNaturalOrderTilesCoefficientSpace(t *testing.T) {
	for id := 0; id < 13; id++ {
		long := orderSizes[id][0]
		short := orderSizes[id][1]
		order := naturalOrder(id)
		if len(order) != long*short {
			t.Fatalf("order %d has %d entries, want %d", id, len(order), long*short)
		}

		seen := make(map[[2]uint8]bool, len(order))
		for _, coord := range order {
			if int(coord[0]) >= long || int(coord[1]) >= short {
				t.Fatalf("order %d coordinate (%d, %d) outside %dx%d", id, coord[0], coord[1], long, short)
			}
			if seen[coord] {
				t.Fatalf("order %d repeats coordinate (%d, %d)", id, coord[0], coord[1])
			}
			seen[coord] = true
		}

		lbw := long / 8
		lbh := short / 8
		for i := 0; i < lbw*lbh; i++ {
			want := [2]uint8{uint8(i % lbw), uint8(i / lbw)}
			if order[i] != want {
				t.Errorf("order %d LLF entry %d = %v, want %v", id, i, order[i], want)
			}
		}
	}
}

func TestNaturalOrder8x8Prefix(t *testing.T) {
	// The classic zig-zag start of the 8x8 scan, after the DC entry.
	want := [][2]uint8{{0, 0}, {1, 0}, {0, 1}, {0, 2}, {1, 1}, {2, 0}, {3, 0}, {2, 1}}
	order := naturalOrder(0)
	for i := range want {
		if order[i] != want[i] {
			t.Errorf("entry %d = %v, want %v", i, order[i], want[i])
		}
	}
}

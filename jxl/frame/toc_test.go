package frame

import (
	"testing"

	"github.com/cocosip/go-jxl/jxl/bitio"
	"github.com/cocosip/go-jxl/jxl/testdata"
)

func writeTOCSizes(w *testdata.BitWriter, sizes ...uint32) {
	w.WriteBool(false) // not permuted
	w.ZeroPadToByte()
	for _, s := range sizes {
		w.WriteBits(0, 2) // 10-bit size form
		w.WriteBits(s, 10)
	}
	w.ZeroPadToByte()
}

func TestParseTOCSingleEntry(t *testing.T) {
	h := &Header{Width: 100, Height: 100, Upsampling: 1, GroupSizeShift: 1, Passes: defaultPasses()}
	if h.NumGroups() != 1 {
		t.Fatalf("num groups %d, want 1", h.NumGroups())
	}

	w := testdata.NewBitWriter()
	writeTOCSizes(w, 42)
	toc, err := ParseTOC(bitio.NewReader(w.Bytes()), h)
	if err != nil {
		t.Fatal(err)
	}
	if !toc.SingleEntry() {
		t.Fatal("want single entry")
	}
	if toc.All().Kind != SectionAll || toc.All().Size != 42 || toc.TotalSize() != 42 {
		t.Errorf("section %+v total %d, want size 42", toc.All(), toc.TotalSize())
	}
}

func TestParseTOCSections(t *testing.T) {
	h := &Header{Width: 512, Height: 256, Upsampling: 1, GroupSizeShift: 1, Passes: defaultPasses()}
	if h.NumGroups() != 2 || h.NumLFGroups() != 1 {
		t.Fatalf("groups %d lf %d, want 2 and 1", h.NumGroups(), h.NumLFGroups())
	}

	w := testdata.NewBitWriter()
	writeTOCSizes(w, 7, 0, 0, 3, 9)
	toc, err := ParseTOC(bitio.NewReader(w.Bytes()), h)
	if err != nil {
		t.Fatal(err)
	}
	if toc.SingleEntry() {
		t.Fatal("want five entries")
	}
	if s := toc.LFGlobal(); s.Kind != SectionLFGlobal || s.Offset != 0 || s.Size != 7 {
		t.Errorf("lf global %+v", s)
	}
	if s := toc.LFGroup(0); s.Kind != SectionLFGroup || s.LFGroup != 0 || s.Offset != 7 {
		t.Errorf("lf group %+v", s)
	}
	if s := toc.HFGlobal(); s.Kind != SectionHFGlobal || s.Offset != 7 || s.Size != 0 {
		t.Errorf("hf global %+v", s)
	}
	if s := toc.PassGroup(0, 0); s.Kind != SectionPassGroup || s.Offset != 7 || s.Size != 3 {
		t.Errorf("pass group 0 %+v", s)
	}
	if s := toc.PassGroup(0, 1); s.Pass != 0 || s.Group != 1 || s.Offset != 10 || s.Size != 9 {
		t.Errorf("pass group 1 %+v", s)
	}
	if toc.TotalSize() != 19 {
		t.Errorf("total %d, want 19", toc.TotalSize())
	}
}

package modular

import (
	"errors"
	"testing"

	"github.com/cocosip/go-jxl/jxl/bitio"
	"github.com/cocosip/go-jxl/jxl/jxlerr"
	"github.com/cocosip/go-jxl/jxl/testdata"
)

// writeEmptyStreamHeader emits a local-tree stream header with default
// weighted-predictor parameters and no transforms.
func writeEmptyStreamHeader(w *testdata.BitWriter) {
	w.WriteBool(false) // local tree
	w.WriteBool(true)  // default wp header
	w.WriteBits(0, 2)  // no transforms
}

func TestDecodeConstantChannel(t *testing.T) {
	w := testdata.NewBitWriter()
	writeEmptyStreamHeader(w)
	// a single-leaf tree: every context decodes the fixed token 0, so the
	// root is a zero-predictor leaf with offset 0 and multiplier 1
	testdata.WriteSimpleDecoder(w, 6, 0)
	// leaf distributions: the only leaf always decodes token 5
	testdata.WriteSimpleDecoder(w, 1, 5)

	r := bitio.NewReader(w.Bytes())
	s, err := ParseStream(r, Params{Shapes: []ChannelShape{{Width: 4, Height: 4}}, BitDepth: 8})
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Decode(r); err != nil {
		t.Fatal(err)
	}
	for i, v := range s.Image().Channels[0].Pix {
		if v != -3 {
			t.Errorf("pix[%d] = %d, want -3", i, v)
		}
	}
}

// writeDecisionTree emits a two-leaf tree splitting on the x coordinate:
// x > 1 selects a west-predictor leaf, otherwise a zero-predictor leaf
// with offset 1.
func writeDecisionTree(w *testdata.BitWriter) {
	coder := testdata.WriteSimpleDecoder(w, 6, 0, 1, 2, 4)
	coder.Write(w, 4) // property 3 (x)
	coder.Write(w, 2) // threshold 1
	// left leaf: west predictor
	coder.Write(w, 0)
	coder.Write(w, 1)
	coder.Write(w, 0)
	coder.Write(w, 0)
	coder.Write(w, 0)
	// right leaf: zero predictor, offset 1
	coder.Write(w, 0)
	coder.Write(w, 0)
	coder.Write(w, 2)
	coder.Write(w, 0)
	coder.Write(w, 0)
}

func TestDecodeTreePredictors(t *testing.T) {
	w := testdata.NewBitWriter()
	writeEmptyStreamHeader(w)
	writeDecisionTree(w)
	coder := testdata.WriteSimpleDecoder(w, 2, 0, 2)
	for _, tok := range []uint32{2, 0, 2, 0} {
		coder.Write(w, tok)
	}

	r := bitio.NewReader(w.Bytes())
	s, err := ParseStream(r, Params{Shapes: []ChannelShape{{Width: 4, Height: 1}}, BitDepth: 8})
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Decode(r); err != nil {
		t.Fatal(err)
	}
	want := []int32{2, 1, 2, 2}
	got := s.Image().Channels[0].Pix
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("pix[%d] = %d, want %d", i, got[i], want[i])
		}
	}
}

func TestDecodeWithGlobalTree(t *testing.T) {
	// the tree and its leaf distributions live in one stream
	tw := testdata.NewBitWriter()
	testdata.WriteSimpleDecoder(tw, 6, 0)
	coder := testdata.WriteSimpleDecoder(tw, 1, 0, 3)
	tree, err := ParseTree(bitio.NewReader(tw.Bytes()), TreeLimits{})
	if err != nil {
		t.Fatal(err)
	}

	// the channel data arrives in a second stream decoded with a clone
	w := testdata.NewBitWriter()
	w.WriteBool(true) // global tree
	w.WriteBool(true) // default wp header
	w.WriteBits(0, 2) // no transforms
	for _, tok := range []uint32{3, 0, 0, 3} {
		coder.Write(w, tok)
	}

	r := bitio.NewReader(w.Bytes())
	s, err := ParseStream(r, Params{
		Shapes:     []ChannelShape{{Width: 2, Height: 2}},
		GlobalTree: tree,
		BitDepth:   8,
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Decode(r); err != nil {
		t.Fatal(err)
	}
	want := []int32{-2, 0, 0, -2}
	got := s.Image().Channels[0].Pix
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("pix[%d] = %d, want %d", i, got[i], want[i])
		}
	}
}

func TestMissingGlobalTree(t *testing.T) {
	w := testdata.NewBitWriter()
	w.WriteBool(true) // global tree, but none supplied
	w.WriteBool(true)
	w.WriteBits(0, 2)

	r := bitio.NewReader(w.Bytes())
	_, err := ParseStream(r, Params{Shapes: []ChannelShape{{Width: 1, Height: 1}}})
	if !errors.Is(err, jxlerr.ErrMalformedBitstream) {
		t.Errorf("got %v, want ErrMalformedBitstream", err)
	}
}

func TestTreeNodeLimit(t *testing.T) {
	w := testdata.NewBitWriter()
	writeDecisionTree(w)

	_, err := ParseTree(bitio.NewReader(w.Bytes()), TreeLimits{MaxNodes: 2})
	if !errors.Is(err, jxlerr.ErrResourceLimit) {
		t.Errorf("got %v, want ErrResourceLimit", err)
	}
}

func TestParseTruncatedStream(t *testing.T) {
	w := testdata.NewBitWriter()
	writeEmptyStreamHeader(w)
	writeDecisionTree(w)
	testdata.WriteSimpleDecoder(w, 2, 0, 2)

	// cut into the leaf distribution header
	data := w.Bytes()
	r := bitio.NewReader(data[:len(data)-2])
	s, err := ParseStream(r, Params{Shapes: []ChannelShape{{Width: 4, Height: 1}}, BitDepth: 8})
	if err == nil {
		err = s.Decode(r)
	}
	if !errors.Is(err, jxlerr.ErrInsufficientData) {
		t.Errorf("got %v, want ErrInsufficientData", err)
	}
}

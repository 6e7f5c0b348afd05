package jxl

import (
	"errors"
	"testing"

	"github.com/cocosip/go-jxl/jxl/frame"
	"github.com/cocosip/go-jxl/jxl/image"
	"github.com/cocosip/go-jxl/jxl/jxlerr"
)

func TestUpsamplePlaneGeometry(t *testing.T) {
	g := image.NewFGrid(4, 3)
	g.Fill(1)
	out, err := upsamplePlane(g, 2, 7, 5, [3][]float32{})
	if err != nil {
		t.Fatal(err)
	}
	if out.Width != 7 || out.Height != 5 {
		t.Fatalf("upsampled to %dx%d, want cropped 7x5", out.Width, out.Height)
	}
}

func TestUpsamplePlaneIdentity(t *testing.T) {
	g := image.NewFGrid(4, 4)
	g.Set(1, 2, 9)
	out, err := upsamplePlane(g, 1, 4, 4, [3][]float32{})
	if err != nil {
		t.Fatal(err)
	}
	if out.At(1, 2) != 9 {
		t.Fatalf("sample %g, want 9", out.At(1, 2))
	}
}

func patchTestDecoder(hdr *image.Header) *Decoder {
	return &Decoder{hdr: hdr, lfSources: make(map[uint32][3]*image.FGrid)}
}

func TestRenderPatchesReplace(t *testing.T) {
	hdr := &image.Header{Width: 8, Height: 8}
	d := patchTestDecoder(hdr)

	ref := &renderedFrame{}
	for c := range ref.color {
		ref.color[c] = image.NewFGrid(8, 8)
		ref.color[c].Fill(float32(c + 1))
	}
	d.refs[1] = ref

	out := &renderedFrame{}
	for c := range out.color {
		out.color[c] = image.NewFGrid(8, 8)
	}

	patches := &frame.Patches{Refs: []frame.PatchRef{{
		RefIdx: 1, X0: 0, Y0: 0, Width: 2, Height: 2,
		Targets: []frame.PatchTarget{{
			X: 3, Y: 3,
			Blending: []frame.PatchBlending{{Mode: frame.PatchReplace}},
		}},
	}}}
	if err := d.renderPatches(patches, out); err != nil {
		t.Fatal(err)
	}
	for c := 0; c < 3; c++ {
		if got := out.color[c].At(3, 3); got != float32(c+1) {
			t.Errorf("channel %d patched sample %g, want %d", c, got, c+1)
		}
		if got := out.color[c].At(5, 5); got != 0 {
			t.Errorf("channel %d outside patch %g, want 0", c, got)
		}
	}
}

func TestRenderPatchesEmptySlot(t *testing.T) {
	d := patchTestDecoder(&image.Header{Width: 8, Height: 8})
	out := &renderedFrame{}
	for c := range out.color {
		out.color[c] = image.NewFGrid(8, 8)
	}
	patches := &frame.Patches{Refs: []frame.PatchRef{{
		RefIdx: 2, Width: 1, Height: 1,
		Targets: []frame.PatchTarget{{Blending: []frame.PatchBlending{{Mode: frame.PatchReplace}}}},
	}}}
	if err := d.renderPatches(patches, out); !errors.Is(err, jxlerr.ErrMalformedBitstream) {
		t.Fatalf("got %v, want ErrMalformedBitstream", err)
	}
}

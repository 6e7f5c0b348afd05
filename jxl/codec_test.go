package jxl

import (
	"errors"
	"testing"

	"github.com/cocosip/go-jxl/codec"
)

func TestCodecRegistered(t *testing.T) {
	byName, err := codec.Get("JPEGXL")
	if err != nil {
		t.Fatal(err)
	}
	byUID, err := codec.Get("1.2.840.10008.1.2.4.112")
	if err != nil {
		t.Fatal(err)
	}
	if byName != byUID {
		t.Error("name and UID resolve to different codecs")
	}
}

func TestCodecEncodeNotSupported(t *testing.T) {
	_, err := NewCodec().Encode(codec.EncodeParams{Width: 8, Height: 8})
	if !errors.Is(err, codec.ErrEncodingNotSupported) {
		t.Fatalf("got %v, want ErrEncodingNotSupported", err)
	}
}

func TestCodecDecodeGray(t *testing.T) {
	res, err := NewCodec().Decode(buildGrayStream(t, 4))
	if err != nil {
		t.Fatal(err)
	}
	if res.Width != 8 || res.Height != 8 {
		t.Fatalf("size %dx%d, want 8x8", res.Width, res.Height)
	}
	if res.Components != 1 || res.BitDepth != 8 {
		t.Fatalf("components %d depth %d, want grayscale 8-bit", res.Components, res.BitDepth)
	}
	if len(res.PixelData) != 64 {
		t.Fatalf("pixel data %d bytes, want 64", len(res.PixelData))
	}
	for i, b := range res.PixelData {
		if b != 2 {
			t.Fatalf("sample %d = %d, want 2", i, b)
		}
	}
}

func TestCodecDecodeWithAlpha(t *testing.T) {
	res, err := NewCodec().Decode(buildAlphaBlendStream(t))
	if err != nil {
		t.Fatal(err)
	}
	if res.Components != 2 {
		t.Fatalf("components %d, want gray plus alpha", res.Components)
	}
	// first pixel lies outside the overlay: background gray and alpha
	if res.PixelData[0] != 2 || res.PixelData[1] != 2 {
		t.Errorf("first pixel %v, want background 2 2", res.PixelData[:2])
	}
}

package modular

import (
	"fmt"

	"github.com/cocosip/go-jxl/jxl/bitio"
	"github.com/cocosip/go-jxl/jxl/jxlerr"
)

// TransformKind identifies one of the three channel transforms.
type TransformKind uint8

const (
	TransformRCT TransformKind = iota
	TransformPalette
	TransformSqueeze
)

// SqueezeParams directs one squeeze step over a channel range.
type SqueezeParams struct {
	Horizontal bool
	InPlace    bool
	BeginC     uint32
	NumC       uint32
}

// Transform is one parsed channel transform. Fields are populated according
// to Kind; applying it rewrites the channel list, inverting it restores the
// original channels from decoded data.
type Transform struct {
	Kind    TransformKind
	BeginC  uint32
	RCTType uint32

	NumC      uint32
	NbColours uint32
	NbDeltas  uint32
	DPred     Predictor
	WP        WPHeader

	Squeeze []SqueezeParams

	metaDelta int
}

func channelRangeDist(r *bitio.Reader) (uint32, error) {
	return r.ReadU32(bitio.Bits(3), bitio.BitsOffset(6, 8), bitio.BitsOffset(10, 72), bitio.BitsOffset(13, 1096))
}

func parseTransform(r *bitio.Reader, wp WPHeader) (Transform, error) {
	id, err := r.ReadBits(2)
	if err != nil {
		return Transform{}, err
	}
	var t Transform
	switch id {
	case 0:
		t.Kind = TransformRCT
		if t.BeginC, err = channelRangeDist(r); err != nil {
			return Transform{}, err
		}
		if t.RCTType, err = r.ReadU32(bitio.Val(6), bitio.Bits(2), bitio.BitsOffset(4, 2), bitio.BitsOffset(6, 10)); err != nil {
			return Transform{}, err
		}
		if t.RCTType >= 42 {
			return Transform{}, fmt.Errorf("%w: rct type %d", jxlerr.ErrMalformedBitstream, t.RCTType)
		}
	case 1:
		t.Kind = TransformPalette
		if t.BeginC, err = channelRangeDist(r); err != nil {
			return Transform{}, err
		}
		if t.NumC, err = r.ReadU32(bitio.Val(1), bitio.Val(3), bitio.Val(4), bitio.BitsOffset(13, 1)); err != nil {
			return Transform{}, err
		}
		if t.NbColours, err = r.ReadU32(bitio.Bits(8), bitio.BitsOffset(10, 256), bitio.BitsOffset(12, 1280), bitio.BitsOffset(16, 5376)); err != nil {
			return Transform{}, err
		}
		if t.NbDeltas, err = r.ReadU32(bitio.Val(0), bitio.BitsOffset(8, 1), bitio.BitsOffset(10, 257), bitio.BitsOffset(16, 1281)); err != nil {
			return Transform{}, err
		}
		dp, err := r.ReadBits(4)
		if err != nil {
			return Transform{}, err
		}
		if t.DPred, err = parsePredictor(dp); err != nil {
			return Transform{}, err
		}
		if t.DPred == PredSelfCorrecting {
			t.WP = wp
		}
	case 2:
		t.Kind = TransformSqueeze
		count, err := r.ReadU32(bitio.Val(0), bitio.BitsOffset(4, 1), bitio.BitsOffset(6, 9), bitio.BitsOffset(8, 41))
		if err != nil {
			return Transform{}, err
		}
		t.Squeeze = make([]SqueezeParams, count)
		for i := range t.Squeeze {
			sp := &t.Squeeze[i]
			if sp.Horizontal, err = r.ReadBool(); err != nil {
				return Transform{}, err
			}
			if sp.InPlace, err = r.ReadBool(); err != nil {
				return Transform{}, err
			}
			if sp.BeginC, err = channelRangeDist(r); err != nil {
				return Transform{}, err
			}
			if sp.NumC, err = r.ReadU32(bitio.Val(1), bitio.Val(2), bitio.Val(3), bitio.BitsOffset(4, 4)); err != nil {
				return Transform{}, err
			}
		}
	default:
		return Transform{}, fmt.Errorf("%w: transform id %d", jxlerr.ErrMalformedBitstream, id)
	}
	return t, nil
}

// apply rewrites the channel list to reflect the transform, before any
// channel data is decoded.
func (t *Transform) apply(img *Image) error {
	switch t.Kind {
	case TransformRCT:
		return t.applyRCT(img)
	case TransformPalette:
		return t.applyPalette(img)
	case TransformSqueeze:
		return t.applySqueeze(img)
	}
	return fmt.Errorf("%w: transform kind %d", jxlerr.ErrInternalInvariant, t.Kind)
}

// inverse restores the original channels from decoded data. Transforms are
// inverted in the reverse of their application order.
func (t *Transform) inverse(img *Image, bitDepth uint32) error {
	switch t.Kind {
	case TransformRCT:
		return t.inverseRCT(img)
	case TransformPalette:
		return t.inversePalette(img, bitDepth)
	case TransformSqueeze:
		return t.inverseSqueeze(img)
	}
	return fmt.Errorf("%w: transform kind %d", jxlerr.ErrInternalInvariant, t.Kind)
}

func (t *Transform) applyRCT(img *Image) error {
	begin := int(t.BeginC)
	if begin+3 > len(img.Channels) {
		return fmt.Errorf("%w: rct channel range %d+3 of %d", jxlerr.ErrMalformedBitstream, begin, len(img.Channels))
	}
	first := img.Channels[begin]
	for _, ch := range img.Channels[begin+1 : begin+3] {
		if ch.Width != first.Width || ch.Height != first.Height {
			return fmt.Errorf("%w: rct over mismatched channels", jxlerr.ErrMalformedBitstream)
		}
	}
	return nil
}

func (t *Transform) applyPalette(img *Image) error {
	begin := int(t.BeginC)
	end := begin + int(t.NumC)
	if end > len(img.Channels) {
		return fmt.Errorf("%w: palette channel range %d..%d of %d", jxlerr.ErrMalformedBitstream, begin, end, len(img.Channels))
	}
	if begin < img.NbMetaChannels {
		if end > img.NbMetaChannels {
			return fmt.Errorf("%w: palette straddles meta channels", jxlerr.ErrMalformedBitstream)
		}
		t.metaDelta = 2 - int(t.NumC)
	} else {
		t.metaDelta = 1
	}
	img.NbMetaChannels += t.metaDelta

	first := img.Channels[begin]
	for _, ch := range img.Channels[begin+1 : end] {
		if ch.Width != first.Width || ch.Height != first.Height {
			return fmt.Errorf("%w: palette over mismatched channels", jxlerr.ErrMalformedBitstream)
		}
	}

	// channels begin+1..end collapse into the index channel at begin; the
	// palette itself becomes a new meta channel at the front
	img.Channels = append(img.Channels[:begin+1], img.Channels[end:]...)
	pal := &Channel{
		Width:  int(t.NbColours),
		Height: int(t.NumC),
		HShift: -1,
		VShift: -1,
	}
	img.Channels = append([]*Channel{pal}, img.Channels...)
	return nil
}

func (t *Transform) applySqueeze(img *Image) error {
	if len(t.Squeeze) == 0 {
		sp, err := defaultSqueezeParams(img)
		if err != nil {
			return err
		}
		t.Squeeze = sp
	}
	for _, sp := range t.Squeeze {
		begin := int(sp.BeginC)
		end := begin + int(sp.NumC)
		if end > len(img.Channels) {
			return fmt.Errorf("%w: squeeze channel range %d..%d of %d", jxlerr.ErrMalformedBitstream, begin, end, len(img.Channels))
		}
		if begin < img.NbMetaChannels {
			if !sp.InPlace || end > img.NbMetaChannels {
				return fmt.Errorf("%w: squeeze straddles meta channels", jxlerr.ErrMalformedBitstream)
			}
			img.NbMetaChannels += int(sp.NumC)
			t.metaDelta += int(sp.NumC)
		}

		residus := make([]*Channel, 0, int(sp.NumC))
		for _, ch := range img.Channels[begin:end] {
			if ch.Width == 0 || ch.Height == 0 {
				return fmt.Errorf("%w: squeeze of empty channel", jxlerr.ErrMalformedBitstream)
			}
			if ch.HShift > 30 || ch.VShift > 30 {
				return fmt.Errorf("%w: channel squeezed too far", jxlerr.ErrMalformedBitstream)
			}
			residu := &Channel{
				Width:  ch.Width,
				Height: ch.Height,
				HShift: ch.HShift,
				VShift: ch.VShift,
			}
			if sp.Horizontal {
				w := ch.Width
				ch.Width = (w + 1) / 2
				residu.Width = w / 2
				if ch.HShift >= 0 {
					ch.HShift++
					residu.HShift = ch.HShift
				}
			} else {
				h := ch.Height
				ch.Height = (h + 1) / 2
				residu.Height = h / 2
				if ch.VShift >= 0 {
					ch.VShift++
					residu.VShift = ch.VShift
				}
			}
			residus = append(residus, residu)
		}

		if sp.InPlace {
			tail := append(residus, img.Channels[end:]...)
			img.Channels = append(img.Channels[:end], tail...)
		} else {
			img.Channels = append(img.Channels, residus...)
		}
	}
	return nil
}

// defaultSqueezeParams builds the squeeze schedule used when the bitstream
// leaves the parameter list empty: halve chroma once in each direction when
// present, then squeeze everything down to at most 8x8.
func defaultSqueezeParams(img *Image) ([]SqueezeParams, error) {
	first := img.NbMetaChannels
	if first >= len(img.Channels) {
		return nil, fmt.Errorf("%w: squeeze with no image channels", jxlerr.ErrMalformedBitstream)
	}
	w := img.Channels[first].Width
	h := img.Channels[first].Height

	var sp []SqueezeParams
	if len(img.Channels)-first >= 3 {
		next := img.Channels[first+1]
		if next.Width == w && next.Height == h {
			base := SqueezeParams{BeginC: uint32(first + 1), NumC: 2}
			sp = append(sp,
				SqueezeParams{Horizontal: true, BeginC: base.BeginC, NumC: base.NumC},
				base)
		}
	}

	base := SqueezeParams{InPlace: true, BeginC: uint32(first), NumC: uint32(len(img.Channels) - first)}
	if h >= w && h > 8 {
		v := base
		sp = append(sp, v)
		h = (h + 1) / 2
	}
	for w > 8 || h > 8 {
		if w > 8 {
			hp := base
			hp.Horizontal = true
			sp = append(sp, hp)
			w = (w + 1) / 2
		}
		if h > 8 {
			sp = append(sp, base)
			h = (h + 1) / 2
		}
	}
	return sp, nil
}

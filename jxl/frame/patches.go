package frame

import (
	"fmt"

	"github.com/cocosip/go-jxl/jxl/bitio"
	"github.com/cocosip/go-jxl/jxl/entropy"
	"github.com/cocosip/go-jxl/jxl/image"
	"github.com/cocosip/go-jxl/jxl/jxlerr"
)

// PatchBlendMode selects how one patch target blends a channel.
type PatchBlendMode uint8

const (
	PatchNone PatchBlendMode = iota
	PatchReplace
	PatchAdd
	PatchMul
	PatchBlendAbove
	PatchBlendBelow
	PatchMulAddAbove
	PatchMulAddBelow
)

// UsesAlpha reports whether the mode reads an alpha channel.
func (m PatchBlendMode) UsesAlpha() bool { return m >= PatchBlendAbove }

// PatchBlending is the per-channel blending choice of one patch target.
type PatchBlending struct {
	Mode         PatchBlendMode
	AlphaChannel uint32
	Clamp        bool
}

// PatchTarget places one copy of a patch onto the frame.
type PatchTarget struct {
	X, Y uint32
	// Blending holds one entry for the color channels followed by one
	// per extra channel.
	Blending []PatchBlending
}

// PatchRef selects a rectangle of a reference frame to paste.
type PatchRef struct {
	RefIdx        uint32
	X0, Y0        uint32
	Width, Height uint32
	Targets       []PatchTarget
}

// Patches is the decoded patch list of a frame.
type Patches struct {
	Refs []PatchRef
}

const maxPatches = 1 << 24

// ParsePatches reads the patch list from its 10-context entropy stream.
func ParsePatches(r *bitio.Reader, img *image.Header) (*Patches, error) {
	var alphaIndices []uint32
	for i, ec := range img.ExtraChannels {
		if ec.Type == image.ExtraAlpha {
			alphaIndices = append(alphaIndices, uint32(i))
		}
	}
	numExtra := len(img.ExtraChannels)

	d, err := entropy.NewDecoder(r, 10)
	if err != nil {
		return nil, err
	}
	if err := d.Begin(r); err != nil {
		return nil, err
	}

	numPatches, err := d.ReadVarint(r, 0)
	if err != nil {
		return nil, err
	}
	if numPatches > maxPatches {
		return nil, fmt.Errorf("frame: %d patches: %w", numPatches, jxlerr.ErrResourceLimit)
	}

	p := &Patches{Refs: make([]PatchRef, 0, numPatches)}
	for i := uint32(0); i < numPatches; i++ {
		var ref PatchRef
		if ref.RefIdx, err = d.ReadVarint(r, 1); err != nil {
			return nil, err
		}
		if ref.RefIdx >= numReferenceSlots {
			return nil, fmt.Errorf("frame: patch reference slot %d: %w", ref.RefIdx, jxlerr.ErrMalformedBitstream)
		}
		if ref.X0, err = d.ReadVarint(r, 3); err != nil {
			return nil, err
		}
		if ref.Y0, err = d.ReadVarint(r, 3); err != nil {
			return nil, err
		}
		if ref.Width, err = d.ReadVarint(r, 2); err != nil {
			return nil, err
		}
		ref.Width++
		if ref.Height, err = d.ReadVarint(r, 2); err != nil {
			return nil, err
		}
		ref.Height++
		count, err := d.ReadVarint(r, 7)
		if err != nil {
			return nil, err
		}
		count++

		var prevX, prevY uint32
		for t := uint32(0); t < count; t++ {
			var target PatchTarget
			if t == 0 {
				if target.X, err = d.ReadVarint(r, 4); err != nil {
					return nil, err
				}
				if target.Y, err = d.ReadVarint(r, 4); err != nil {
					return nil, err
				}
			} else {
				dx, err := d.ReadVarint(r, 6)
				if err != nil {
					return nil, err
				}
				dy, err := d.ReadVarint(r, 6)
				if err != nil {
					return nil, err
				}
				target.X = prevX + dx
				target.Y = prevY + dy
			}
			prevX, prevY = target.X, target.Y

			target.Blending = make([]PatchBlending, numExtra+1)
			for c := range target.Blending {
				raw, err := d.ReadVarint(r, 5)
				if err != nil {
					return nil, err
				}
				if raw > uint32(PatchMulAddBelow) {
					return nil, fmt.Errorf("frame: patch blend mode %d: %w", raw, jxlerr.ErrMalformedBitstream)
				}
				b := PatchBlending{Mode: PatchBlendMode(raw)}
				if b.Mode.UsesAlpha() && len(alphaIndices) >= 2 {
					if b.AlphaChannel, err = d.ReadVarint(r, 8); err != nil {
						return nil, err
					}
				} else if len(alphaIndices) > 0 {
					b.AlphaChannel = alphaIndices[0]
				}
				if raw >= uint32(PatchMul) {
					v, err := d.ReadVarint(r, 9)
					if err != nil {
						return nil, err
					}
					b.Clamp = v != 0
				}
				if b.Mode.UsesAlpha() && int(b.AlphaChannel) >= numExtra {
					return nil, fmt.Errorf("frame: patch alpha channel %d out of range: %w",
						b.AlphaChannel, jxlerr.ErrMalformedBitstream)
				}
				target.Blending[c] = b
			}
			ref.Targets = append(ref.Targets, target)
		}
		p.Refs = append(p.Refs, ref)
	}
	if err := d.Finalize(); err != nil {
		return nil, err
	}
	return p, nil
}

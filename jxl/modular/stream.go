// Package modular implements the lossless image decoder: MA-tree driven
// per-sample prediction over an ordered channel list, reshaped by reversible
// channel transforms.
package modular

import (
	"fmt"

	"github.com/cocosip/go-jxl/jxl/bitio"
	"github.com/cocosip/go-jxl/jxl/entropy"
	"github.com/cocosip/go-jxl/jxl/jxlerr"
)

// Params configures parsing of one modular sub-bitstream.
type Params struct {
	// StreamIndex distinguishes sub-bitstreams of the same frame; it is
	// visible to the MA tree as a decision property.
	StreamIndex int

	// Shapes describes the channels the stream codes, before transforms.
	Shapes []ChannelShape

	// NbMetaChannels counts leading channels in Shapes that are transform
	// metadata rather than image planes.
	NbMetaChannels int

	// GlobalTree is the frame-wide MA tree, when one was coded.
	GlobalTree *Tree

	// BitDepth of the originating samples, used by palette reconstruction.
	BitDepth uint32

	TreeLimits TreeLimits
}

// Stream is one parsed modular sub-bitstream: a header, a channel list
// already reshaped by the header's transforms, and the entropy decoder the
// channel data is coded with.
type Stream struct {
	streamIndex int
	bitDepth    uint32
	wp          WPHeader
	transforms  []Transform
	tree        *Tree
	decoder     *entropy.Decoder
	img         *Image
}

// ParseStream reads a modular sub-bitstream header and prepares the channel
// list for decoding. Channel data is read by a following Decode call.
func ParseStream(r *bitio.Reader, p Params) (*Stream, error) {
	useGlobalTree, err := r.ReadBool()
	if err != nil {
		return nil, err
	}
	wp, err := parseWPHeader(r)
	if err != nil {
		return nil, err
	}
	nTransforms, err := r.ReadU32(bitio.Val(0), bitio.Val(1), bitio.BitsOffset(4, 2), bitio.BitsOffset(8, 18))
	if err != nil {
		return nil, err
	}

	s := &Stream{
		streamIndex: p.StreamIndex,
		bitDepth:    p.BitDepth,
		wp:          wp,
		transforms:  make([]Transform, 0, nTransforms),
	}

	channels := make([]*Channel, len(p.Shapes))
	for i, sh := range p.Shapes {
		channels[i] = &Channel{
			Width:  sh.Width,
			Height: sh.Height,
			HShift: sh.HShift,
			VShift: sh.VShift,
		}
	}
	s.img = &Image{Channels: channels, NbMetaChannels: p.NbMetaChannels}

	for i := 0; i < int(nTransforms); i++ {
		t, err := parseTransform(r, wp)
		if err != nil {
			return nil, fmt.Errorf("transform %d: %w", i, err)
		}
		s.transforms = append(s.transforms, t)
		if err := s.transforms[i].apply(s.img); err != nil {
			return nil, fmt.Errorf("transform %d: %w", i, err)
		}
	}

	if useGlobalTree {
		if p.GlobalTree == nil {
			return nil, fmt.Errorf("%w: stream references absent global tree", jxlerr.ErrMalformedBitstream)
		}
		s.tree = p.GlobalTree
	} else {
		limits := p.TreeLimits
		if limits.MaxNodes == 0 {
			limits.MaxNodes = localTreeNodeLimit(s.img)
		}
		s.tree, err = ParseTree(r, limits)
		if err != nil {
			return nil, err
		}
	}
	s.decoder = s.tree.decoder.Clone()
	return s, nil
}

// localTreeNodeLimit bounds a stream-local tree by the amount of data it
// can possibly describe.
func localTreeNodeLimit(img *Image) int {
	limit := 1024
	for _, ch := range img.Channels {
		limit += ch.Width * ch.Height
		if limit >= maxTreeNodes {
			return maxTreeNodes
		}
	}
	return limit
}

// Decode reads every channel of the stream.
func (s *Stream) Decode(r *bitio.Reader) error {
	return s.DecodePartial(r, nil)
}

// DecodePartial reads the channels selected by include, in stream order.
// Channels left out are not represented in the bitstream at all; they are
// expected to arrive through other streams. A nil include selects every
// channel.
func (s *Stream) DecodePartial(r *bitio.Reader, include func(i int, ch *Channel) bool) error {
	if err := s.decoder.Begin(r); err != nil {
		return err
	}
	distMultiplier := uint32(0)
	for _, ch := range s.img.Channels[s.img.NbMetaChannels:] {
		if uint32(ch.Width) > distMultiplier {
			distMultiplier = uint32(ch.Width)
		}
	}
	for i, ch := range s.img.Channels {
		if include != nil && !include(i, ch) {
			continue
		}
		if err := s.decodeChannel(r, i, distMultiplier); err != nil {
			return fmt.Errorf("channel %d: %w", i, err)
		}
	}
	return s.decoder.Finalize()
}

func (s *Stream) decodeChannel(r *bitio.Reader, idx int, distMultiplier uint32) error {
	ch := s.img.Channels[idx]
	if ch.Width == 0 || ch.Height == 0 {
		return nil
	}
	if ch.Pix == nil {
		ch.Pix = make([]int32, ch.Width*ch.Height)
	}

	tree := s.tree
	var prev []*Channel
	if tree.maxProperty() >= 16 {
		for j := idx - 1; j >= 0; j-- {
			p := s.img.Channels[j]
			if p.Pix != nil && p.sameGeometry(ch) {
				prev = append(prev, p)
			}
		}
	}

	needSC := tree.usesWeightedPredictor()
	var sc *scState
	if needSC {
		sc = newSCState(ch.Width, s.wp)
	}
	st := newPredictorState(ch.Width, idx, s.streamIndex, sc, prev)
	leaf, singleNode := tree.singleLeaf()
	var cache [16]int32

	for y := 0; y < ch.Height; y++ {
		row := ch.Row(y)
		for x := 0; x < ch.Width; x++ {
			scp := st.properties(needSC, &cache)
			node := leaf
			if !singleNode {
				node = tree.lookup(&cache, st)
			}

			var pred int64
			if node.predictor == PredSelfCorrecting {
				pred = (scp.prediction + 3) >> 3
			} else {
				pred = st.predict(node.predictor)
			}

			token, err := s.decoder.ReadVarintClustered(r, node.cluster, distMultiplier)
			if err != nil {
				return err
			}
			v := int64(entropy.UnpackSigned(token))*int64(node.multiplier) +
				int64(node.offset) + pred
			row[x] = int32(v)
			st.record(int32(v), scp, cache[9])
		}
	}
	return nil
}

// InverseTransforms undoes the header's transforms, in reverse order, once
// all channel data is present.
func (s *Stream) InverseTransforms() error {
	for i := len(s.transforms) - 1; i >= 0; i-- {
		if err := s.transforms[i].inverse(s.img, s.bitDepth); err != nil {
			return err
		}
	}
	return nil
}

// Image returns the stream's channel list in its current state.
func (s *Stream) Image() *Image {
	return s.img
}

// Tree returns the MA tree the stream decodes with.
func (s *Stream) Tree() *Tree {
	return s.tree
}

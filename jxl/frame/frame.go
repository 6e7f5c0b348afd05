package frame

import (
	"fmt"

	"github.com/cocosip/go-jxl/jxl/bitio"
	"github.com/cocosip/go-jxl/jxl/image"
	"github.com/cocosip/go-jxl/jxl/jxlerr"
	"github.com/cocosip/go-jxl/jxl/modular"
	"github.com/cocosip/go-jxl/jxl/restoration"
	"github.com/cocosip/go-jxl/jxl/vardct"
)

// numReferenceSlots is the size of the session's reference frame table.
const numReferenceSlots = 4

// filterPad is the margin the per-group filter window borrows from its
// neighbors: one pixel for the gaborish kernel plus two per edge
// preserving filter step. Eight keeps the window origin block-aligned.
const filterPad = 8

var defaultQuantBias = [3]float32{
	1.0 - 0.05465007330715401,
	1.0 - 0.07005449891748593,
	1.0 - 0.049935103337343655,
}

const defaultQuantBiasNumerator = 0.145

// GroupState tracks one pass group through the pipeline. Transitions
// run strictly forward; Failed is absorbing.
type GroupState uint8

const (
	GroupPending GroupState = iota
	GroupLFReady
	GroupHFDecoded
	GroupFiltered
	GroupComposited
	GroupFailed
)

func (s GroupState) String() string {
	switch s {
	case GroupPending:
		return "pending"
	case GroupLFReady:
		return "lf-ready"
	case GroupHFDecoded:
		return "hf-decoded"
	case GroupFiltered:
		return "filtered"
	case GroupComposited:
		return "composited"
	case GroupFailed:
		return "failed"
	}
	return "invalid"
}

// Frame is one frame being decoded. Parse reads the header and TOC;
// Decode makes as much progress as the fed payload allows.
type Frame struct {
	img *image.Header
	hdr *Header
	toc *TOC

	// payload is the frame data following the TOC; it may be shorter
	// than the TOC's total size while streaming.
	payload []byte

	lfGlobal     *LFGlobal
	hfGlobal     *HFGlobal
	hfGlobalDone bool

	lfGroups []*LFGroup
	lfStates []GroupState
	// lfPlanes holds the dequantized LF image of each LF group at block
	// resolution, X, Y, B order.
	lfPlanes [][3]*image.FGrid

	states     []GroupState
	passesDone []int
	coeff      [][3]*image.Grid

	// planes are the frame sample planes before filtering, filtered the
	// planes after; both at coded color resolution.
	planes   [3]*image.FGrid
	filtered [3]*image.FGrid
	// sigma is the frame-level EPF sigma grid, one value per 8x8 block.
	sigma *image.FGrid

	extra       []*image.FGrid
	modularDone bool

	// lfSource carries the LF image of a referenced LF frame when the
	// frame header requests LF prediction.
	lfSource [3]*image.FGrid

	workers int
	failed  bool
	err     error
}

// Parse reads a frame header and TOC from the start of data. The
// returned offset is the byte length of header plus TOC; the frame
// payload follows it.
func Parse(data []byte, img *image.Header, workers int) (*Frame, int, error) {
	r := bitio.NewReader(data)
	hdr, err := ParseHeader(r, img)
	if err != nil {
		return nil, 0, err
	}
	toc, err := ParseTOC(r, hdr)
	if err != nil {
		return nil, 0, err
	}
	off := r.BitsRead() / 8

	f := &Frame{
		img:     img,
		hdr:     hdr,
		toc:     toc,
		workers: workers,
	}
	f.lfGroups = make([]*LFGroup, hdr.NumLFGroups())
	f.lfStates = make([]GroupState, hdr.NumLFGroups())
	f.lfPlanes = make([][3]*image.FGrid, hdr.NumLFGroups())
	f.states = make([]GroupState, hdr.NumGroups())
	f.passesDone = make([]int, hdr.NumGroups())
	f.coeff = make([][3]*image.Grid, hdr.NumGroups())

	w, h := hdr.ColorSampleWidth(), hdr.ColorSampleHeight()
	for c := 0; c < 3; c++ {
		f.planes[c] = image.NewFGrid(w, h)
		f.filtered[c] = image.NewFGrid(w, h)
	}
	f.sigma = image.NewFGrid(ceilDiv(w, 8), ceilDiv(h, 8))
	if hdr.Encoding == EncodingModular {
		f.sigma.Fill(hdr.Restoration.EPF.SigmaForModular)
	}

	if len(data) > off {
		f.payload = data[off:]
	}
	return f, off, nil
}

// Header returns the parsed frame header.
func (f *Frame) Header() *Header { return f.hdr }

// TOC returns the parsed table of contents.
func (f *Frame) TOC() *TOC { return f.toc }

// SetPayload replaces the frame data window. The window always starts
// at the first byte after the TOC; feeding more input only ever extends
// it.
func (f *Frame) SetPayload(p []byte) {
	if len(p) > len(f.payload) {
		f.payload = p
	}
}

// SetLFSource hands the frame the LF image of a previously decoded LF
// frame, at this frame's block resolution.
func (f *Frame) SetLFSource(planes [3]*image.FGrid) {
	f.lfSource = planes
}

// Failed reports whether an unrecoverable group error marked the frame
// failed.
func (f *Frame) Failed() bool { return f.failed }

// Err returns the first group error, if any.
func (f *Frame) Err() error { return f.err }

// Done reports whether every group reached at least Filtered and the
// modular image is finished.
func (f *Frame) Done() bool {
	if f.failed || !f.modularDone {
		return false
	}
	for _, s := range f.states {
		if s != GroupFiltered && s != GroupComposited {
			return false
		}
	}
	return true
}

// GroupStates returns a snapshot of the pass-group states.
func (f *Frame) GroupStates() []GroupState {
	out := make([]GroupState, len(f.states))
	copy(out, f.states)
	return out
}

// MarkComposited transitions every filtered group to Composited; the
// compositor calls it after blending the frame onto the canvas.
func (f *Frame) MarkComposited() error {
	for g := range f.states {
		if err := f.advance(g, GroupComposited); err != nil {
			return err
		}
	}
	return nil
}

// Planes returns the filtered sample planes.
func (f *Frame) Planes() [3]*image.FGrid { return f.filtered }

// ExtraPlanes returns the decoded extra channel planes, normalized to
// the unit range.
func (f *Frame) ExtraPlanes() []*image.FGrid { return f.extra }

// LFGlobal returns the parsed LF global section, or nil while it is
// still pending.
func (f *Frame) LFGlobal() *LFGlobal { return f.lfGlobal }

// advance moves one pass group to the given state, enforcing the
// forward-only transition order.
func (f *Frame) advance(g int, to GroupState) error {
	cur := f.states[g]
	if cur == GroupFailed {
		return nil
	}
	ok := to == GroupFailed || to == cur+1
	if !ok {
		return fmt.Errorf("frame: group %d transition %s to %s: %w", g, cur, to, jxlerr.ErrInternalInvariant)
	}
	f.states[g] = to
	return nil
}

func (f *Frame) sectionReader(s Section) (*bitio.Reader, bool) {
	if s.Offset+s.Size > len(f.payload) {
		return nil, false
	}
	return bitio.NewReader(f.payload[s.Offset : s.Offset+s.Size]), true
}

// decodeLFGlobalSection parses the LF global section and prepares the
// frame-level state derived from it.
func (f *Frame) decodeLFGlobalSection(r *bitio.Reader) error {
	g, err := ParseLFGlobal(r, f.img, f.hdr)
	if err != nil {
		return err
	}
	f.lfGlobal = g
	return nil
}

// decodeLFGroupSection parses one LF group and derives its dequantized
// LF planes.
func (f *Frame) decodeLFGroupSection(r *bitio.Reader, idx int) error {
	lfg, err := ParseLFGroup(r, f.hdr, f.lfGlobal, idx)
	if err != nil {
		return err
	}
	f.lfGroups[idx] = lfg

	if f.hdr.Encoding == EncodingVarDCT {
		if err := f.buildLFPlanes(idx, lfg); err != nil {
			return err
		}
		// Stitch the group's sigma grid into the frame-level grid.
		if lfg.HFMeta != nil && lfg.HFMeta.EPFSigma != nil {
			sg := lfg.HFMeta.EPFSigma
			bx, by := f.hdr.LFGroupOrigin(idx)
			f.sigma.CopyRect(sg, 0, 0, bx/8, by/8, sg.Width, sg.Height)
		}
	}
	return nil
}

func (f *Frame) buildLFPlanes(idx int, lfg *LFGroup) error {
	hdr := f.hdr
	lfW, lfH := hdr.LFGroupSizeFor(idx)
	bw, bh := ceilDiv(lfW, 8), ceilDiv(lfH, 8)

	if hdr.Flags.UseLFFrame() {
		if f.lfSource[0] == nil {
			return fmt.Errorf("frame: LF frame requested but none supplied: %w", jxlerr.ErrMalformedBitstream)
		}
		px, py := hdr.LFGroupOrigin(idx)
		for c := 0; c < 3; c++ {
			f.lfPlanes[idx][c] = f.lfSource[c].SubRect(px/8, py/8, bw, bh)
		}
		return nil
	}
	if lfg.LFCoeff == nil {
		return fmt.Errorf("frame: LF group %d without LF image: %w", idx, jxlerr.ErrInternalInvariant)
	}

	q := f.lfGlobal.VarDCT.Quantizer
	d := f.lfGlobal.LFDequant
	mLF := [3]float32{d.MXlf, d.MYlf, d.MBlf}
	var planes [3]*image.FGrid
	for c := 0; c < 3; c++ {
		planes[c] = image.NewFGrid(bw, bh)
		if err := vardct.DequantLF(planes[c], lfg.LFCoeff.Quant[c], q, mLF[c], lfg.LFCoeff.ExtraPrecision); err != nil {
			return err
		}
	}
	vardct.ChromaFromLumaLF(planes, f.lfGlobal.VarDCT.LFCorr)
	if !hdr.Flags.SkipAdaptiveLFSmoothing() {
		vardct.AdaptiveLFSmoothing(planes, d, q)
	}
	f.lfPlanes[idx] = planes
	return nil
}

// decodeHFGlobalSection parses the HF global section of a VarDCT frame;
// modular frames have nothing to read here.
func (f *Frame) decodeHFGlobalSection(r *bitio.Reader) error {
	if f.hdr.Encoding == EncodingVarDCT {
		hf, err := ParseHFGlobal(r, f.hdr, f.lfGlobal)
		if err != nil {
			return err
		}
		f.hfGlobal = hf
	}
	f.hfGlobalDone = true
	return nil
}

// decodePassSection reads pass passIdx of group groupIdx.
func (f *Frame) decodePassSection(r *bitio.Reader, passIdx, groupIdx int) error {
	var lfg *LFGroup
	if f.hdr.Encoding == EncodingVarDCT {
		lfg = f.lfGroups[f.hdr.LFGroupIdxForGroup(groupIdx)]
		if f.coeff[groupIdx][0] == nil {
			_, _, bw, bh := groupBlockRect(f.hdr, lfg, groupIdx)
			for c := 0; c < 3; c++ {
				f.coeff[groupIdx][c] = image.NewGrid(bw*8, bh*8)
			}
		}
	}
	return DecodePassGroup(r, f.hdr, f.lfGlobal, f.hfGlobal, lfg, passIdx, groupIdx, f.coeff[groupIdx])
}

// renderGroup turns a VarDCT group's accumulated coefficients into
// samples in the frame planes.
func (f *Frame) renderGroup(groupIdx int) error {
	hdr := f.hdr
	if hdr.Encoding != EncodingVarDCT {
		return nil
	}
	lfIdx := hdr.LFGroupIdxForGroup(groupIdx)
	lfg := f.lfGroups[lfIdx]
	left, top, bw, bh := groupBlockRect(hdr, lfg, groupIdx)
	blocks := lfg.HFMeta.Blocks.Sub(left, top, bw, bh)

	var coeffF [3]*image.FGrid
	for c := 0; c < 3; c++ {
		coeffF[c] = image.NewFGrid(bw*8, bh*8)
	}
	vardct.DequantHF(coeffF, f.coeff[groupIdx], blocks, vardct.DequantParams{
		Set:                f.hfGlobal.Dequant,
		Quantizer:          f.lfGlobal.VarDCT.Quantizer,
		XQMScale:           hdr.XQMScale,
		BQMScale:           hdr.BQMScale,
		QuantBias:          defaultQuantBias,
		QuantBiasNumerator: defaultQuantBiasNumerator,
	})

	cflW := ceilDiv(bw*8, 64) + 1
	cflH := ceilDiv(bh*8, 64) + 1
	xSub := lfg.HFMeta.XFromY.SubRect(left*8/64, top*8/64, cflW, cflH)
	bSub := lfg.HFMeta.BFromY.SubRect(left*8/64, top*8/64, cflW, cflH)
	vardct.ChromaFromLumaHF(coeffF, xSub, bSub, f.lfGlobal.VarDCT.LFCorr)

	var lfSub [3]*image.FGrid
	for c := 0; c < 3; c++ {
		lfSub[c] = f.lfPlanes[lfIdx][c].SubRect(left, top, bw, bh)
	}
	vardct.TransformWithLF(coeffF, lfSub, blocks)

	gx, gy := hdr.GroupOrigin(groupIdx)
	gw, gh := hdr.GroupSizeFor(groupIdx)
	for c := 0; c < 3; c++ {
		for y := 0; y < gh; y++ {
			copy(f.planes[c].Row(gy + y)[gx:gx+gw], coeffF[c].Row(y)[:gw])
		}
	}
	return nil
}

// finishModular inverts the frame-level modular transforms and converts
// the channels into sample and extra channel planes.
func (f *Frame) finishModular() error {
	gm := f.lfGlobal.Modular
	img, err := gm.Finish()
	if err != nil {
		return err
	}

	if f.hdr.Encoding == EncodingModular {
		chans := img.Channels[img.NbMetaChannels:]
		ecc := f.hdr.EncodedColorChannels(f.img)
		if len(chans) < ecc {
			return fmt.Errorf("frame: %d modular channels, want %d color: %w",
				len(chans), ecc, jxlerr.ErrInternalInvariant)
		}
		if f.img.XYBEncoded {
			f.convertModularXYB(chans)
		} else {
			scale := 1 / float32(uint64(1)<<f.hdr.BitDepth-1)
			for c := 0; c < ecc; c++ {
				copyScaled(f.planes[c], chans[c], scale)
			}
			if ecc == 1 {
				// Grayscale decodes once and shares the plane.
				copyScaled(f.planes[1], chans[0], scale)
				copyScaled(f.planes[2], chans[0], scale)
			}
		}
	}

	// Extra channels, normalized to the unit range.
	ecFrom := gm.ExtraChannelFrom + img.NbMetaChannels
	f.extra = make([]*image.FGrid, 0, len(f.img.ExtraChannels))
	for i := range f.img.ExtraChannels {
		idx := ecFrom + i
		if idx >= len(img.Channels) {
			return fmt.Errorf("frame: extra channel %d missing: %w", i, jxlerr.ErrInternalInvariant)
		}
		ch := img.Channels[idx]
		bd := f.img.ExtraChannels[i].BitDepth
		if bd == 0 {
			bd = f.hdr.BitDepth
		}
		plane := image.NewFGrid(ch.Width, ch.Height)
		copyScaled(plane, ch, 1/float32(uint64(1)<<bd-1))
		f.extra = append(f.extra, plane)
	}
	f.modularDone = true
	return nil
}

// convertModularXYB dequantizes the coded Y, X, B-minus-Y channels into
// XYB planes.
func (f *Frame) convertModularXYB(chans []*modular.Channel) {
	d := f.lfGlobal.LFDequant
	for y := 0; y < f.planes[0].Height; y++ {
		cy, cx, cb := chans[0].Row(y), chans[1].Row(y), chans[2].Row(y)
		px, py, pb := f.planes[0].Row(y), f.planes[1].Row(y), f.planes[2].Row(y)
		for x := range px {
			px[x] = d.MXlf * float32(cx[x])
			py[x] = d.MYlf * float32(cy[x])
			pb[x] = d.MBlf * float32(cb[x]+cy[x])
		}
	}
}

func copyScaled(dst *image.FGrid, src *modular.Channel, scale float32) {
	for y := 0; y < dst.Height; y++ {
		srow := src.Row(y)
		drow := dst.Row(y)
		for x := range drow {
			drow[x] = float32(srow[x]) * scale
		}
	}
}

// filterGroup runs the in-loop filters over one group's window and
// writes the inner rectangle into the filtered planes.
func (f *Frame) filterGroup(groupIdx int) error {
	hdr := f.hdr
	gx, gy := hdr.GroupOrigin(groupIdx)
	gw, gh := hdr.GroupSizeFor(groupIdx)

	rf := hdr.Restoration
	if !rf.Gabor.Enabled && !rf.EPF.Enabled() {
		for c := 0; c < 3; c++ {
			for y := 0; y < gh; y++ {
				copy(f.filtered[c].Row(gy + y)[gx:gx+gw], f.planes[c].Row(gy + y)[gx:gx+gw])
			}
		}
		return nil
	}

	// Expand the window so kernel support at the group border reads real
	// neighbor samples; the window origin stays block-aligned.
	x0 := maxIntLocal(0, gx-filterPad)
	y0 := maxIntLocal(0, gy-filterPad)
	x1 := minInt(f.planes[0].Width, gx+gw+filterPad)
	y1 := minInt(f.planes[0].Height, gy+gh+filterPad)

	var window [3]*image.FGrid
	for c := 0; c < 3; c++ {
		window[c] = f.planes[c].SubRect(x0, y0, x1-x0, y1-y0)
	}
	if rf.Gabor.Enabled {
		restoration.ApplyGabor(window, rf.Gabor)
	}
	if rf.EPF.Enabled() {
		sigma := f.sigma.SubRect(x0/8, y0/8, ceilDiv(x1-x0, 8), ceilDiv(y1-y0, 8))
		restoration.ApplyEPF(window, sigma, rf.EPF)
	}
	for c := 0; c < 3; c++ {
		for y := 0; y < gh; y++ {
			copy(f.filtered[c].Row(gy + y)[gx:gx+gw], window[c].Row(gy - y0 + y)[gx-x0:gx-x0+gw])
		}
	}
	return nil
}

// Flush renders a best-effort snapshot: filtered groups as they are,
// rendered groups unfiltered, LF-only groups upsampled from the LF
// image.
func (f *Frame) Flush() [3]*image.FGrid {
	var out [3]*image.FGrid
	for c := 0; c < 3; c++ {
		out[c] = f.filtered[c].Clone()
	}
	if f.hdr.Encoding != EncodingVarDCT {
		return out
	}
	for g, st := range f.states {
		if st >= GroupFiltered && st != GroupFailed {
			continue
		}
		gx, gy := f.hdr.GroupOrigin(g)
		gw, gh := f.hdr.GroupSizeFor(g)
		if st == GroupHFDecoded {
			for c := 0; c < 3; c++ {
				for y := 0; y < gh; y++ {
					copy(out[c].Row(gy + y)[gx:gx+gw], f.planes[c].Row(gy + y)[gx:gx+gw])
				}
			}
			continue
		}
		lfIdx := f.hdr.LFGroupIdxForGroup(g)
		if f.lfStates[lfIdx] != GroupLFReady || f.lfPlanes[lfIdx][0] == nil {
			continue
		}
		left, top, bw, bh := 0, 0, ceilDiv(gw, 8), ceilDiv(gh, 8)
		perRow := f.hdr.GroupsPerRow()
		left = (g % perRow % 8) * (f.hdr.GroupDim() / 8)
		top = (g / perRow % 8) * (f.hdr.GroupDim() / 8)

		var lfSub, target [3]*image.FGrid
		for c := 0; c < 3; c++ {
			lfSub[c] = f.lfPlanes[lfIdx][c].SubRect(left, top, bw, bh)
			target[c] = image.NewFGrid(gw, gh)
		}
		vardct.UpsampleLFInto(target, lfSub)
		for c := 0; c < 3; c++ {
			for y := 0; y < gh; y++ {
				copy(out[c].Row(gy + y)[gx:gx+gw], target[c].Row(y))
			}
		}
	}
	return out
}

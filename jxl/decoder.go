package jxl

import (
	"io"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/cocosip/go-jxl/jxl/bitio"
	"github.com/cocosip/go-jxl/jxl/frame"
	"github.com/cocosip/go-jxl/jxl/image"
	"github.com/cocosip/go-jxl/jxl/jxlerr"
)

// referenceSlots is the number of saved reference frames a codestream
// may address.
const referenceSlots = 4

// Decoder is a streaming decode session over a bare codestream. Feed
// appends bytes; DecodeFrame makes progress whenever the buffered input
// covers the next frame.
type Decoder struct {
	opts DecodeOptions
	log  *logrus.Logger

	buf []byte
	pos int

	hdr       *image.Header
	transform ColorTransform
	canvas    *Canvas

	refs      [referenceSlots]*renderedFrame
	lfSources map[uint32][3]*image.FGrid

	visibleFrames   int
	invisibleFrames int
	frameIndex      int

	cur      *frame.Frame
	curStart int

	finished bool
}

// NewDecoder starts a session with no input buffered yet.
func NewDecoder(opts DecodeOptions) (*Decoder, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	return &Decoder{
		opts:      opts,
		log:       opts.logger(),
		lfSources: make(map[uint32][3]*image.FGrid),
	}, nil
}

// Feed appends codestream bytes to the session buffer.
func (d *Decoder) Feed(p []byte) {
	d.buf = append(d.buf, p...)
	if d.cur != nil {
		d.cur.SetPayload(d.buf[d.curStart:])
	}
}

// ImageHeader returns the parsed image-wide header, or nil before
// enough input arrived.
func (d *Decoder) ImageHeader() *image.Header { return d.hdr }

// Finished reports whether the last frame of the codestream has been
// decoded.
func (d *Decoder) Finished() bool { return d.finished }

func isContainer(p []byte) bool {
	return len(p) >= 8 && p[0] == 0 && p[1] == 0 && p[2] == 0 && p[3] == 0x0c &&
		p[4] == 'J' && p[5] == 'X' && p[6] == 'L' && p[7] == ' '
}

func (d *Decoder) parseImageHeader() error {
	if isContainer(d.buf) {
		return errors.Wrap(jxlerr.ErrUnsupportedFeature, "jxl: container format")
	}
	r := bitio.NewReader(d.buf[d.pos:])
	hdr, err := image.ParseCodestreamHeader(r)
	if err != nil {
		return err
	}
	if pixels := uint64(hdr.Width) * uint64(hdr.Height); pixels > d.opts.maxPixels() {
		return errors.Wrapf(jxlerr.ErrResourceLimit, "jxl: %dx%d image over pixel limit", hdr.Width, hdr.Height)
	}
	d.hdr = hdr
	d.pos += r.BitsRead() / 8
	d.canvas = newCanvas(hdr)
	d.transform = d.pickTransform(nil)
	d.log.WithFields(logrus.Fields{
		"width":  hdr.Width,
		"height": hdr.Height,
		"xyb":    hdr.XYBEncoded,
		"extra":  len(hdr.ExtraChannels),
	}).Debug("jxl: image header parsed")
	return nil
}

// pickTransform chooses the color transform a frame's output needs.
func (d *Decoder) pickTransform(h *frame.Header) ColorTransform {
	if d.opts.Transform != nil {
		return d.opts.Transform
	}
	if h != nil && h.DoYCbCr {
		return YCbCrTransform{}
	}
	if d.hdr.XYBEncoded {
		return NewXYBTransform(d.hdr)
	}
	return IdentityTransform{}
}

// DecodeFrame decodes the next frame out of the buffered input. It
// returns the frame header on success, ErrInsufficientData when more
// input is needed, and io.EOF once the last frame has been decoded.
func (d *Decoder) DecodeFrame() (*frame.Header, error) {
	if d.finished {
		return nil, io.EOF
	}
	if d.hdr == nil {
		if err := d.parseImageHeader(); err != nil {
			return nil, err
		}
	}

	if d.cur == nil {
		// A skipped frame may have advanced the position past the
		// buffered input.
		if d.pos > len(d.buf) {
			return nil, errors.Wrapf(jxlerr.ErrInsufficientData,
				"jxl: frame %d starts %d bytes past buffered input", d.frameIndex, d.pos-len(d.buf))
		}
		f, off, err := frame.Parse(d.buf[d.pos:], d.hdr, d.opts.Workers)
		if err != nil {
			return nil, errors.Wrapf(err, "jxl: frame %d header", d.frameIndex)
		}
		d.cur = f
		d.curStart = d.pos + off
		if f.Header().Flags.UseLFFrame() {
			src, ok := d.lfSources[f.Header().LFLevel+1]
			if !ok {
				return nil, errors.Wrapf(jxlerr.ErrMalformedBitstream,
					"jxl: frame %d needs missing LF frame at level %d", d.frameIndex, f.Header().LFLevel+1)
			}
			f.SetLFSource(src)
		}
	}
	d.cur.SetPayload(d.buf[d.curStart:])

	if err := d.cur.Decode(); err != nil {
		if errors.Is(err, jxlerr.ErrInsufficientData) && !d.cur.Failed() {
			return nil, err
		}
		// The TOC bounds the frame, so a failed frame can be skipped
		// without losing stream position.
		hdr := d.cur.Header()
		d.log.WithError(err).WithField("frame", d.frameIndex).Warn("jxl: frame failed")
		d.pos = d.curStart + d.cur.TOC().TotalSize()
		d.cur = nil
		d.frameIndex++
		return hdr, errors.Wrapf(err, "jxl: frame %d", d.frameIndex-1)
	}

	f := d.cur
	hdr := f.Header()

	if hdr.Type == frame.FrameLF {
		planes := f.Planes()
		var src [3]*image.FGrid
		for c := range src {
			src[c] = planes[c].Clone()
		}
		d.lfSources[hdr.LFLevel] = src
	} else {
		rendered, err := d.renderFeatures(f, f.Planes())
		if err != nil {
			d.pos = d.curStart + f.TOC().TotalSize()
			d.cur = nil
			d.frameIndex++
			return hdr, errors.Wrapf(err, "jxl: frame %d render", d.frameIndex-1)
		}

		saveSlot := int(hdr.SaveAsReference)
		if hdr.CanReference() && hdr.SaveBeforeCT {
			d.refs[saveSlot] = rendered.clone()
		}

		if hdr.Type.IsNormal() {
			if err := d.pickTransform(hdr).Apply(rendered.color); err != nil {
				return hdr, errors.Wrapf(err, "jxl: frame %d color transform", d.frameIndex)
			}
			d.compositeFrame(hdr, rendered)
			if err := f.MarkComposited(); err != nil {
				return hdr, err
			}
			if hdr.IsKeyframe() {
				d.visibleFrames++
			} else {
				d.invisibleFrames++
			}
		}

		if hdr.CanReference() && !hdr.SaveBeforeCT {
			if hdr.Type.IsNormal() {
				// Visible frames save their blended output.
				cv := d.canvas.clone()
				d.refs[saveSlot] = &renderedFrame{color: cv.Color, extra: cv.Extra}
			} else {
				d.refs[saveSlot] = rendered.clone()
			}
		}
	}

	d.log.WithFields(logrus.Fields{
		"frame":    d.frameIndex,
		"type":     hdr.Type.String(),
		"encoding": hdr.Encoding.String(),
		"last":     hdr.IsLast,
	}).Debug("jxl: frame decoded")

	d.pos = d.curStart + f.TOC().TotalSize()
	d.cur = nil
	d.frameIndex++
	if hdr.IsLast {
		d.finished = true
	}
	return hdr, nil
}

// Canvas returns the composed image with the header orientation
// applied.
func (d *Decoder) Canvas() *Canvas {
	if d.canvas == nil {
		return nil
	}
	return d.canvas.Snapshot(d.hdr.Orientation)
}

// Flush renders a best-effort snapshot: the canvas as composed so far,
// with the partially decoded current frame overlaid when the options
// allow it.
func (d *Decoder) Flush() *Canvas {
	if d.canvas == nil {
		return nil
	}
	if d.cur == nil || !d.opts.RenderOnPartial || !d.cur.Header().Type.IsNormal() {
		return d.Canvas()
	}

	hdr := d.cur.Header()
	planes := d.cur.Flush()
	snapshot := d.canvas.clone()

	targetW, targetH := int(hdr.Width), int(hdr.Height)
	var color [3]*image.FGrid
	for c := range color {
		up, err := upsamplePlane(planes[c], int(hdr.Upsampling), targetW, targetH, d.hdr.UpsampleWeights)
		if err != nil {
			return d.Canvas()
		}
		color[c] = up
	}
	if err := d.pickTransform(hdr).Apply(color); err != nil {
		return d.Canvas()
	}
	for c := range color {
		snapshot.Color[c].CopyRect(color[c], 0, 0, int(hdr.X0), int(hdr.Y0), color[c].Width, color[c].Height)
	}
	return snapshot.Snapshot(d.hdr.Orientation)
}

// Decode runs a whole codestream through a fresh session and returns
// the final canvas and the image header.
func Decode(data []byte, opts DecodeOptions) (*Canvas, *image.Header, error) {
	d, err := NewDecoder(opts)
	if err != nil {
		return nil, nil, err
	}
	d.Feed(data)
	for {
		_, err := d.DecodeFrame()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, d.hdr, err
		}
		if d.Finished() {
			break
		}
	}
	return d.Canvas(), d.hdr, nil
}

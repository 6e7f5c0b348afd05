// Package jxl drives a full decode session: it parses the codestream
// header, schedules frame decoding, applies the rendering features and
// composites frames onto the session canvas.
package jxl

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/cocosip/go-jxl/jxl/jxlerr"
)

// DecodeOptions configures a decode session.
type DecodeOptions struct {
	// Workers bounds the per-frame section worker pool; zero means one
	// worker per CPU.
	Workers int

	// MaxPixels rejects images whose coded dimensions multiply beyond
	// the limit. Zero selects the default of 2^30.
	MaxPixels uint64

	// RenderOnPartial lets Flush render groups of the frame currently
	// being decoded from whatever sections have arrived.
	RenderOnPartial bool

	// Transform overrides the color transform chosen from the image
	// header.
	Transform ColorTransform

	// Logger receives session progress; nil selects the standard logger.
	Logger *logrus.Logger
}

const defaultMaxPixels = 1 << 30

// Validate checks the options for values no session can honor.
func (o *DecodeOptions) Validate() error {
	if o.Workers < 0 {
		return fmt.Errorf("jxl: negative worker count %d: %w", o.Workers, jxlerr.ErrInternalInvariant)
	}
	return nil
}

func (o *DecodeOptions) maxPixels() uint64 {
	if o.MaxPixels == 0 {
		return defaultMaxPixels
	}
	return o.MaxPixels
}

func (o *DecodeOptions) logger() *logrus.Logger {
	if o.Logger == nil {
		return logrus.StandardLogger()
	}
	return o.Logger
}

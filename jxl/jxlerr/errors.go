// Package jxlerr defines the error taxonomy shared by every stage of the
// JPEG XL decoder. Callers classify failures with errors.Is against these
// sentinels regardless of which package produced them.
package jxlerr

import "errors"

var (
	// ErrInsufficientData is returned when decoding needs bytes that have
	// not been supplied yet. Recoverable: feed more input and retry.
	ErrInsufficientData = errors.New("insufficient data")

	// ErrMalformedBitstream is returned when a section violates format
	// constraints. Fails the current frame, not the session.
	ErrMalformedBitstream = errors.New("malformed bitstream")

	// ErrUnsupportedFeature is returned for valid but unimplemented
	// feature combinations. Fails the current frame, not the session.
	ErrUnsupportedFeature = errors.New("unsupported feature")

	// ErrResourceLimit is returned when a safety bound (tree depth, node
	// count, allocation size) is exceeded. Guards against adversarial
	// input; fails the current frame.
	ErrResourceLimit = errors.New("resource limit exceeded")

	// ErrInternalInvariant indicates a scheduler or dependency invariant
	// was violated. Fatal to the whole decode session.
	ErrInternalInvariant = errors.New("internal invariant violated")
)

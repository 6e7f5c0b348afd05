package codec

import "errors"

var (
	// ErrCodecNotFound is returned when a codec is not found in the registry
	ErrCodecNotFound = errors.New("codec not found")

	// ErrEncodingNotSupported is returned by decode-only codecs
	ErrEncodingNotSupported = errors.New("encoding not supported")
)

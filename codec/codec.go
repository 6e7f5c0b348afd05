package codec

// Codec is the adapter interface an image codec exposes to callers that
// address codecs by DICOM transfer syntax. Decode-only codecs return
// ErrEncodingNotSupported from Encode.
type Codec interface {
	// Encode encodes pixel data
	Encode(params EncodeParams) ([]byte, error)

	// Decode decodes compressed data
	Decode(data []byte) (*DecodeResult, error)

	// UID returns the unique identifier (typically DICOM Transfer Syntax UID)
	UID() string

	// Name returns a human-readable name
	Name() string
}

// EncodeParams contains parameters for encoding
type EncodeParams struct {
	PixelData  []byte // Raw pixel data
	Width      int    // Image width
	Height     int    // Image height
	Components int    // Number of color components (1=grayscale, 3=RGB)
	BitDepth   int    // Bits per sample (8, 12, 16, etc.)
}

// DecodeResult contains the result of decoding
type DecodeResult struct {
	PixelData  []byte // Decoded pixel data
	Width      int    // Image width
	Height     int    // Image height
	Components int    // Number of color components
	BitDepth   int    // Bits per sample
}

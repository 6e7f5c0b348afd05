package codec_test

import (
	"testing"

	"github.com/cocosip/go-jxl/codec"
	_ "github.com/cocosip/go-jxl/jxl"
)

func TestCodecRegistry(t *testing.T) {
	tests := []struct {
		name      string
		key       string
		wantFound bool
		wantUID   string
		wantName  string
	}{
		{
			name:      "Get JPEG XL by UID",
			key:       "1.2.840.10008.1.2.4.112",
			wantFound: true,
			wantUID:   "1.2.840.10008.1.2.4.112",
			wantName:  "JPEGXL",
		},
		{
			name:      "Get JPEG XL by name",
			key:       "JPEGXL",
			wantFound: true,
			wantUID:   "1.2.840.10008.1.2.4.112",
			wantName:  "JPEGXL",
		},
		{
			name:      "Get non-existent codec",
			key:       "non-existent",
			wantFound: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := codec.Get(tt.key)

			if tt.wantFound {
				if err != nil {
					t.Errorf("Get(%q) unexpected error: %v", tt.key, err)
					return
				}
				if c == nil {
					t.Errorf("Get(%q) returned nil codec", tt.key)
					return
				}
				if c.UID() != tt.wantUID {
					t.Errorf("Get(%q).UID() = %q, want %q", tt.key, c.UID(), tt.wantUID)
				}
				if c.Name() != tt.wantName {
					t.Errorf("Get(%q).Name() = %q, want %q", tt.key, c.Name(), tt.wantName)
				}
			} else {
				if err == nil {
					t.Errorf("Get(%q) expected error, got nil", tt.key)
				}
				if err != codec.ErrCodecNotFound {
					t.Errorf("Get(%q) error = %v, want %v", tt.key, err, codec.ErrCodecNotFound)
				}
			}
		})
	}
}

func TestListCodecs(t *testing.T) {
	codecs := codec.List()

	if len(codecs) < 1 {
		t.Fatalf("List() returned %d codecs, want at least 1", len(codecs))
	}

	found := false
	for _, c := range codecs {
		if c.UID() == "1.2.840.10008.1.2.4.112" {
			found = true
			if c.Name() != "JPEGXL" {
				t.Errorf("JPEG XL codec name = %q, want %q", c.Name(), "JPEGXL")
			}
		}
	}
	if !found {
		t.Error("List() did not include the JPEG XL codec")
	}
}

type stubCodec struct {
	name, uid string
}

func (s *stubCodec) Encode(codec.EncodeParams) ([]byte, error) { return nil, nil }
func (s *stubCodec) Decode([]byte) (*codec.DecodeResult, error) {
	return &codec.DecodeResult{}, nil
}
func (s *stubCodec) UID() string  { return s.uid }
func (s *stubCodec) Name() string { return s.name }

func TestRegistryIsolation(t *testing.T) {
	r := codec.NewRegistry()
	r.Register(&stubCodec{name: "stub", uid: "0.0.1"})

	byName, err := r.Get("stub")
	if err != nil {
		t.Fatalf("Get by name failed: %v", err)
	}
	byUID, err := r.Get("0.0.1")
	if err != nil {
		t.Fatalf("Get by UID failed: %v", err)
	}
	if byName != byUID {
		t.Error("name and UID resolve to different codecs")
	}

	if list := r.List(); len(list) != 1 {
		t.Errorf("List() = %d codecs, want 1 deduplicated entry", len(list))
	}

	if _, err := r.Get("missing"); err != codec.ErrCodecNotFound {
		t.Errorf("Get(missing) error = %v, want ErrCodecNotFound", err)
	}
}

package frame

import (
	"fmt"

	"github.com/cocosip/go-jxl/jxl/bitio"
	"github.com/cocosip/go-jxl/jxl/entropy"
	"github.com/cocosip/go-jxl/jxl/jxlerr"
)

// SectionKind identifies what a TOC entry holds.
type SectionKind uint8

const (
	SectionAll SectionKind = iota
	SectionLFGlobal
	SectionLFGroup
	SectionHFGlobal
	SectionPassGroup
)

func (k SectionKind) String() string {
	switch k {
	case SectionAll:
		return "all"
	case SectionLFGlobal:
		return "lf-global"
	case SectionLFGroup:
		return "lf-group"
	case SectionHFGlobal:
		return "hf-global"
	case SectionPassGroup:
		return "pass-group"
	}
	return "invalid"
}

// Section is one TOC entry: a byte window of the frame data.
type Section struct {
	Kind SectionKind
	// LFGroup is the LF group index for SectionLFGroup entries.
	LFGroup int
	// Pass and Group locate SectionPassGroup entries.
	Pass, Group int
	// Offset is the byte offset from the end of the TOC.
	Offset int
	// Size is the section length in bytes.
	Size int
}

// TOC is the frame's table of contents. Sections are addressed in
// semantic order; Permuted streams store them in a different bitstream
// order.
type TOC struct {
	sections    []Section
	bitstreamTo []int
	totalSize   int

	numLFGroups int
	numGroups   int
	numPasses   int
}

const maxTOCEntries = 65536

// ParseTOC reads the table of contents following a frame header. The
// reader must be positioned right after the header; the TOC leaves it
// byte-aligned at the start of the first section.
func ParseTOC(r *bitio.Reader, h *Header) (*TOC, error) {
	numGroups := h.NumGroups()
	numLFGroups := h.NumLFGroups()
	numPasses := int(h.Passes.NumPasses)

	entryCount := 1
	if numGroups != 1 || numPasses != 1 {
		entryCount = 1 + numLFGroups + 1 + numGroups*numPasses
	}
	if entryCount > maxTOCEntries {
		return nil, fmt.Errorf("frame: %d TOC entries: %w", entryCount, jxlerr.ErrMalformedBitstream)
	}

	permuted, err := r.ReadBool()
	if err != nil {
		return nil, err
	}
	var perm []uint32
	if permuted {
		d, err := entropy.NewDecoder(r, 8)
		if err != nil {
			return nil, err
		}
		if err := d.Begin(r); err != nil {
			return nil, err
		}
		if perm, err = entropy.ReadPermutation(r, d, uint32(entryCount), 0); err != nil {
			return nil, err
		}
		if err := d.Finalize(); err != nil {
			return nil, err
		}
	}

	if err := r.ZeroPadToByte(); err != nil {
		return nil, err
	}
	sizes := make([]int, entryCount)
	for i := range sizes {
		v, err := r.ReadU32(bitio.Bits(10), bitio.BitsOffset(14, 1024), bitio.BitsOffset(22, 17408), bitio.BitsOffset(30, 4211712))
		if err != nil {
			return nil, err
		}
		sizes[i] = int(v)
	}
	if err := r.ZeroPadToByte(); err != nil {
		return nil, err
	}

	// Byte offsets in bitstream order, measured from the end of the TOC.
	offsets := make([]int, entryCount)
	total := 0
	for i, size := range sizes {
		offsets[i] = total
		total += size
	}

	t := &TOC{
		sections:    make([]Section, entryCount),
		totalSize:   total,
		numLFGroups: numLFGroups,
		numGroups:   numGroups,
		numPasses:   numPasses,
	}
	for i := range t.sections {
		pos := i
		if perm != nil {
			pos = int(perm[i])
		}
		s := Section{Offset: offsets[pos], Size: sizes[pos]}
		switch {
		case entryCount == 1:
			s.Kind = SectionAll
		case i == 0:
			s.Kind = SectionLFGlobal
		case i <= numLFGroups:
			s.Kind = SectionLFGroup
			s.LFGroup = i - 1
		case i == numLFGroups+1:
			s.Kind = SectionHFGlobal
		default:
			s.Kind = SectionPassGroup
			rel := i - numLFGroups - 2
			s.Pass = rel / numGroups
			s.Group = rel % numGroups
		}
		t.sections[i] = s
	}
	if perm != nil {
		t.bitstreamTo = make([]int, entryCount)
		for i, p := range perm {
			t.bitstreamTo[p] = i
		}
	}
	return t, nil
}

// SingleEntry reports whether the whole frame is one section.
func (t *TOC) SingleEntry() bool { return len(t.sections) == 1 }

// TotalSize is the byte length of the frame data after the TOC.
func (t *TOC) TotalSize() int { return t.totalSize }

// All returns the sole section of a single-entry frame.
func (t *TOC) All() Section { return t.sections[0] }

// LFGlobal returns the LF global section.
func (t *TOC) LFGlobal() Section { return t.sections[0] }

// LFGroup returns the section of the given LF group.
func (t *TOC) LFGroup(idx int) Section { return t.sections[1+idx] }

// HFGlobal returns the HF global section.
func (t *TOC) HFGlobal() Section { return t.sections[1+t.numLFGroups] }

// PassGroup returns the section of the given pass and group.
func (t *TOC) PassGroup(pass, group int) Section {
	return t.sections[1+t.numLFGroups+1+pass*t.numGroups+group]
}

// Sections returns every entry in semantic order.
func (t *TOC) Sections() []Section { return t.sections }

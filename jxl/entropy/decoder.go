// Package entropy implements the symbol decoder shared by all coding paths:
// context-clustered distributions with two interchangeable backends (a
// static canonical prefix code and an ANS alias-table coder), hybrid
// integer expansion, and an optional LZ77 layer over the decoded values.
package entropy

import (
	"fmt"

	"github.com/cocosip/go-jxl/jxl/bitio"
	"github.com/cocosip/go-jxl/jxl/jxlerr"
)

const lz77WindowLen = 1 << 20

// specialDistances maps the first 120 LZ77 distance symbols onto small
// two-dimensional offsets scaled by the row stride.
var specialDistances = [120][2]int8{
	{0, 1}, {1, 0}, {1, 1}, {-1, 1}, {0, 2}, {2, 0}, {1, 2}, {-1, 2}, {2, 1}, {-2, 1}, {2, 2},
	{-2, 2}, {0, 3}, {3, 0}, {1, 3}, {-1, 3}, {3, 1}, {-3, 1}, {2, 3}, {-2, 3}, {3, 2},
	{-3, 2}, {0, 4}, {4, 0}, {1, 4}, {-1, 4}, {4, 1}, {-4, 1}, {3, 3}, {-3, 3}, {2, 4},
	{-2, 4}, {4, 2}, {-4, 2}, {0, 5}, {3, 4}, {-3, 4}, {4, 3}, {-4, 3}, {5, 0}, {1, 5},
	{-1, 5}, {5, 1}, {-5, 1}, {2, 5}, {-2, 5}, {5, 2}, {-5, 2}, {4, 4}, {-4, 4}, {3, 5},
	{-3, 5}, {5, 3}, {-5, 3}, {0, 6}, {6, 0}, {1, 6}, {-1, 6}, {6, 1}, {-6, 1}, {2, 6},
	{-2, 6}, {6, 2}, {-6, 2}, {4, 5}, {-4, 5}, {5, 4}, {-5, 4}, {3, 6}, {-3, 6}, {6, 3},
	{-6, 3}, {0, 7}, {7, 0}, {1, 7}, {-1, 7}, {5, 5}, {-5, 5}, {7, 1}, {-7, 1}, {4, 6},
	{-4, 6}, {6, 4}, {-6, 4}, {2, 7}, {-2, 7}, {7, 2}, {-7, 2}, {3, 7}, {-3, 7}, {7, 3},
	{-7, 3}, {5, 6}, {-5, 6}, {6, 5}, {-6, 5}, {8, 0}, {4, 7}, {-4, 7}, {7, 4}, {-7, 4},
	{8, 1}, {8, 2}, {6, 6}, {-6, 6}, {8, 3}, {5, 7}, {-5, 7}, {7, 5}, {-7, 5}, {8, 4}, {6, 7},
	{-6, 7}, {7, 6}, {-7, 6}, {8, 5}, {7, 7}, {-7, 7}, {8, 6}, {8, 7},
}

// coder is the symbol source backing a Decoder: either a set of prefix
// histograms or a set of ANS histograms sharing one state word.
type coder struct {
	prefix  []prefixHistogram
	ans     []ansHistogram
	state   uint32
	initial bool
}

func (c *coder) readSymbol(r *bitio.Reader, cluster uint8) (uint16, error) {
	if c.prefix != nil {
		return c.prefix[cluster].readSymbol(r)
	}
	if c.initial {
		state, err := r.ReadBits(32)
		if err != nil {
			return 0, err
		}
		c.state = state
		c.initial = false
	}
	return c.ans[cluster].readSymbol(r, &c.state)
}

func (c *coder) begin(r *bitio.Reader) error {
	if c.prefix != nil {
		return nil
	}
	state, err := r.ReadBits(32)
	if err != nil {
		return err
	}
	c.state = state
	c.initial = false
	return nil
}

func (c *coder) finalize() error {
	if c.prefix != nil {
		return nil
	}
	if c.initial || c.state == 0x130000 {
		return nil
	}
	return fmt.Errorf("%w: ANS stream ended in state %#x", jxlerr.ErrMalformedBitstream, c.state)
}

func (c *coder) singleSymbol(cluster uint8) (uint16, bool) {
	if c.prefix != nil {
		return c.prefix[cluster].singleSymbol()
	}
	return c.ans[cluster].singleSymbol()
}

// Decoder decodes hybrid-coded integers from context-clustered
// distributions, optionally wrapped in an LZ77 copy layer.
type Decoder struct {
	lzEnabled bool
	minSymbol uint32
	minLength uint32
	lzLenConf IntegerConfig

	window     []uint32
	numToCopy  uint32
	copyPos    uint32
	numDecoded uint32

	clusters []uint8
	configs  []IntegerConfig
	coder    coder
}

// NewDecoder reads LZ77 configuration, context clustering, integer
// configurations and the symbol distributions for numDist contexts.
func NewDecoder(r *bitio.Reader, numDist int) (*Decoder, error) {
	lzEnabled, err := r.ReadBool()
	if err != nil {
		return nil, err
	}
	d := &Decoder{lzEnabled: lzEnabled}
	if lzEnabled {
		d.minSymbol, err = r.ReadU32(bitio.Val(224), bitio.Val(512), bitio.Val(4096), bitio.BitsOffset(15, 8))
		if err != nil {
			return nil, err
		}
		d.minLength, err = r.ReadU32(bitio.Val(3), bitio.Val(4), bitio.BitsOffset(2, 5), bitio.BitsOffset(8, 9))
		if err != nil {
			return nil, err
		}
		d.lzLenConf, err = parseIntegerConfig(r, 8)
		if err != nil {
			return nil, err
		}
		d.window = make([]uint32, lz77WindowLen)
		numDist++
	}
	if err := d.parseInner(r, numDist); err != nil {
		return nil, err
	}
	return d, nil
}

// newDecoderNoLZ77 parses a decoder for contexts where the LZ77 layer is
// not permitted (nested cluster-map streams).
func newDecoderNoLZ77(r *bitio.Reader, numDist int) (*Decoder, error) {
	lzEnabled, err := r.ReadBool()
	if err != nil {
		return nil, err
	}
	if lzEnabled {
		return nil, fmt.Errorf("%w: lz77 in nested stream", jxlerr.ErrMalformedBitstream)
	}
	d := &Decoder{}
	if err := d.parseInner(r, numDist); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *Decoder) parseInner(r *bitio.Reader, numDist int) error {
	numClusters, clusters, err := ReadClusters(r, numDist)
	if err != nil {
		return err
	}
	d.clusters = clusters

	usePrefix, err := r.ReadBool()
	if err != nil {
		return err
	}
	logAlphabetSize := uint32(15)
	if !usePrefix {
		v, err := r.ReadBits(2)
		if err != nil {
			return err
		}
		logAlphabetSize = 5 + v
	}

	d.configs = make([]IntegerConfig, numClusters)
	for i := range d.configs {
		d.configs[i], err = parseIntegerConfig(r, logAlphabetSize)
		if err != nil {
			return err
		}
	}

	if usePrefix {
		counts := make([]uint32, numClusters)
		for i := range counts {
			present, err := r.ReadBool()
			if err != nil {
				return err
			}
			if present {
				n, err := r.ReadBits(4)
				if err != nil {
					return err
				}
				m, err := r.ReadBits(int(n))
				if err != nil {
					return err
				}
				counts[i] = 1 + 1<<n + m
				if counts[i] > 1<<15 {
					return fmt.Errorf("%w: prefix alphabet too large", jxlerr.ErrMalformedBitstream)
				}
			} else {
				counts[i] = 1
			}
		}
		d.coder.prefix = make([]prefixHistogram, numClusters)
		for i, count := range counts {
			d.coder.prefix[i], err = parsePrefixHistogram(r, count)
			if err != nil {
				return err
			}
		}
	} else {
		d.coder.ans = make([]ansHistogram, numClusters)
		for i := range d.coder.ans {
			d.coder.ans[i], err = parseANSHistogram(r, logAlphabetSize)
			if err != nil {
				return err
			}
		}
		d.coder.initial = true
	}
	return nil
}

// Clone returns a decoder sharing this decoder's distributions but with
// fresh coder and LZ77 state, for use on an independent stream.
func (d *Decoder) Clone() *Decoder {
	c := *d
	if c.coder.ans != nil {
		c.coder.state = 0
		c.coder.initial = true
	}
	if c.lzEnabled {
		c.window = make([]uint32, lz77WindowLen)
		c.numToCopy = 0
		c.copyPos = 0
		c.numDecoded = 0
	}
	return &c
}

// Begin explicitly reads the initial ANS state. Optional; the state is
// initialized lazily on the first read otherwise.
func (d *Decoder) Begin(r *bitio.Reader) error {
	return d.coder.begin(r)
}

// Finalize checks that an ANS stream ended in the expected state. Always
// succeeds for prefix-coded streams.
func (d *Decoder) Finalize() error {
	return d.coder.finalize()
}

// ClusterMap returns the context-to-cluster mapping.
func (d *Decoder) ClusterMap() []uint8 {
	return d.clusters
}

// ReadVarint decodes the next integer for the given context.
func (d *Decoder) ReadVarint(r *bitio.Reader, ctx int) (uint32, error) {
	return d.ReadVarintMul(r, ctx, 0)
}

// ReadVarintMul decodes the next integer for the given context, using
// distMultiplier as the row stride for special LZ77 distances.
func (d *Decoder) ReadVarintMul(r *bitio.Reader, ctx int, distMultiplier uint32) (uint32, error) {
	if ctx < 0 || ctx >= len(d.clusters) {
		return 0, fmt.Errorf("%w: context %d out of range", jxlerr.ErrInternalInvariant, ctx)
	}
	return d.ReadVarintClustered(r, d.clusters[ctx], distMultiplier)
}

// ReadVarintClustered decodes the next integer for an already-resolved
// cluster id.
func (d *Decoder) ReadVarintClustered(r *bitio.Reader, cluster uint8, distMultiplier uint32) (uint32, error) {
	if !d.lzEnabled {
		token, err := d.coder.readSymbol(r, cluster)
		if err != nil {
			return 0, err
		}
		return d.configs[cluster].readUint(r, uint32(token))
	}
	return d.readLZ77(r, cluster, distMultiplier)
}

func (d *Decoder) readLZ77(r *bitio.Reader, cluster uint8, distMultiplier uint32) (uint32, error) {
	var value uint32
	if d.numToCopy > 0 {
		value = d.window[d.copyPos&(lz77WindowLen-1)]
		d.copyPos++
		d.numToCopy--
	} else {
		token, err := d.coder.readSymbol(r, cluster)
		if err != nil {
			return 0, err
		}
		if uint32(token) >= d.minSymbol {
			lzDistCluster := d.clusters[len(d.clusters)-1]

			length, err := d.lzLenConf.readUint(r, uint32(token)-d.minSymbol)
			if err != nil {
				return 0, err
			}
			d.numToCopy = length + d.minLength

			distToken, err := d.coder.readSymbol(r, lzDistCluster)
			if err != nil {
				return 0, err
			}
			distance, err := d.configs[lzDistCluster].readUint(r, uint32(distToken))
			if err != nil {
				return 0, err
			}
			switch {
			case distMultiplier == 0:
				distance++
			case distance < 120:
				sd := specialDistances[distance]
				dist := int32(sd[0]) + int32(distMultiplier)*int32(sd[1])
				if dist < 1 {
					dist = 1
				}
				distance = uint32(dist)
			default:
				distance -= 119
			}
			if distance > lz77WindowLen {
				distance = lz77WindowLen
			}
			if distance > d.numDecoded {
				distance = d.numDecoded
			}
			d.copyPos = d.numDecoded - distance

			value = d.window[d.copyPos&(lz77WindowLen-1)]
			d.copyPos++
			d.numToCopy--
		} else {
			value, err = d.configs[cluster].readUint(r, uint32(token))
			if err != nil {
				return 0, err
			}
		}
	}
	d.window[d.numDecoded&(lz77WindowLen-1)] = value
	d.numDecoded++
	return value, nil
}

// SingleToken reports whether the given cluster always decodes to one fixed
// value without consuming bits, and that value.
func (d *Decoder) SingleToken(cluster uint8) (uint32, bool) {
	sym, ok := d.coder.singleSymbol(cluster)
	if !ok {
		return 0, false
	}
	if uint32(sym) >= d.configs[cluster].split {
		return 0, false
	}
	return uint32(sym), true
}

// ReadClusters reads the context clustering map for numDist contexts and
// returns the number of active clusters.
func ReadClusters(r *bitio.Reader, numDist int) (int, []uint8, error) {
	if numDist == 1 {
		return 1, []uint8{0}, nil
	}

	simple, err := r.ReadBool()
	if err != nil {
		return 0, nil, err
	}
	clusters := make([]uint8, numDist)
	if simple {
		nbits, err := r.ReadBits(2)
		if err != nil {
			return 0, nil, err
		}
		for i := range clusters {
			v, err := r.ReadBits(int(nbits))
			if err != nil {
				return 0, nil, err
			}
			clusters[i] = uint8(v)
		}
	} else {
		useMTF, err := r.ReadBool()
		if err != nil {
			return 0, nil, err
		}
		var nested *Decoder
		if numDist <= 2 {
			nested, err = newDecoderNoLZ77(r, 1)
		} else {
			nested, err = NewDecoder(r, 1)
		}
		if err != nil {
			return 0, nil, err
		}
		if err := nested.Begin(r); err != nil {
			return 0, nil, err
		}
		for i := range clusters {
			v, err := nested.ReadVarint(r, 0)
			if err != nil {
				return 0, nil, err
			}
			clusters[i] = uint8(v)
		}
		if err := nested.Finalize(); err != nil {
			return 0, nil, err
		}
		if useMTF {
			var mtf [256]uint8
			for i := range mtf {
				mtf[i] = uint8(i)
			}
			for i, c := range clusters {
				idx := int(c)
				clusters[i] = mtf[idx]
				copy(mtf[1:idx+1], mtf[:idx])
				mtf[0] = clusters[i]
			}
		}
	}

	numClusters := 0
	for _, c := range clusters {
		if int(c)+1 > numClusters {
			numClusters = int(c) + 1
		}
	}
	return numClusters, clusters, nil
}

package modular

import (
	"fmt"

	"github.com/cocosip/go-jxl/jxl/bitio"
	"github.com/cocosip/go-jxl/jxl/entropy"
	"github.com/cocosip/go-jxl/jxl/jxlerr"
)

const (
	// maxTreeNodes is the format-level ceiling on MA tree size.
	maxTreeNodes = 1 << 26
	// defaultMaxTreeDepth bounds traversal depth on adversarial input.
	defaultMaxTreeDepth = 2048
)

// treeNode is one MA tree node in BFS order. Inner nodes split on a
// property; leaves carry (predictor, offset, multiplier) and the entropy
// cluster decoded residuals come from.
type treeNode struct {
	property int32 // -1 for leaves
	value    int32
	left     int32
	right    int32

	predictor  Predictor
	offset     int32
	multiplier uint32
	cluster    uint8
}

// Tree is a parsed MA tree together with the leaf-context entropy decoder
// it was serialized with. Immutable after construction; shared read-only
// across group streams.
type Tree struct {
	nodes   []treeNode
	decoder *entropy.Decoder
	depth   int
}

// TreeLimits bounds tree parsing against adversarial input.
type TreeLimits struct {
	MaxNodes int
	MaxDepth int
}

// ParseTree reads an MA tree and its leaf-context distributions.
func ParseTree(r *bitio.Reader, limits TreeLimits) (*Tree, error) {
	if limits.MaxNodes <= 0 || limits.MaxNodes > maxTreeNodes {
		limits.MaxNodes = maxTreeNodes
	}
	if limits.MaxDepth <= 0 {
		limits.MaxDepth = defaultMaxTreeDepth
	}

	treeDecoder, err := entropy.NewDecoder(r, 6)
	if err != nil {
		return nil, fmt.Errorf("MA tree distributions: %w", err)
	}
	if isInfiniteTreeDist(treeDecoder) {
		return nil, fmt.Errorf("%w: MA tree never terminates", jxlerr.ErrMalformedBitstream)
	}
	if err := treeDecoder.Begin(r); err != nil {
		return nil, err
	}

	type pendingSlot struct {
		parent int32
		right  bool
	}
	var nodes []treeNode
	var pending []pendingSlot
	ctx := 0
	nodesLeft := 1
	for nodesLeft > 0 {
		if len(nodes) >= limits.MaxNodes {
			return nil, fmt.Errorf("%w: MA tree node limit %d", jxlerr.ErrResourceLimit, limits.MaxNodes)
		}
		nodesLeft--

		idx := int32(len(nodes))
		if len(pending) > 0 {
			slot := pending[0]
			pending = pending[1:]
			if slot.right {
				nodes[slot.parent].right = idx
			} else {
				nodes[slot.parent].left = idx
			}
		}

		property, err := treeDecoder.ReadVarint(r, 1)
		if err != nil {
			return nil, err
		}
		if property > 0 {
			v, err := treeDecoder.ReadVarint(r, 0)
			if err != nil {
				return nil, err
			}
			nodes = append(nodes, treeNode{
				property: int32(property) - 1,
				value:    entropy.UnpackSigned(v),
			})
			pending = append(pending, pendingSlot{idx, false}, pendingSlot{idx, true})
			nodesLeft += 2
			continue
		}

		predRaw, err := treeDecoder.ReadVarint(r, 2)
		if err != nil {
			return nil, err
		}
		predictor, err := parsePredictor(predRaw)
		if err != nil {
			return nil, err
		}
		offsetRaw, err := treeDecoder.ReadVarint(r, 3)
		if err != nil {
			return nil, err
		}
		mulLog, err := treeDecoder.ReadVarint(r, 4)
		if err != nil {
			return nil, err
		}
		if mulLog > 30 {
			return nil, fmt.Errorf("%w: multiplier log %d", jxlerr.ErrMalformedBitstream, mulLog)
		}
		mulBits, err := treeDecoder.ReadVarint(r, 5)
		if err != nil {
			return nil, err
		}
		if mulBits > (1<<(31-mulLog))-2 {
			return nil, fmt.Errorf("%w: multiplier bits %d", jxlerr.ErrMalformedBitstream, mulBits)
		}
		nodes = append(nodes, treeNode{
			property:   -1,
			value:      int32(ctx), // leaf context, resolved to a cluster below
			predictor:  predictor,
			offset:     entropy.UnpackSigned(offsetRaw),
			multiplier: (mulBits + 1) << mulLog,
		})
		ctx++
	}
	if err := treeDecoder.Finalize(); err != nil {
		return nil, err
	}

	decoder, err := entropy.NewDecoder(r, ctx)
	if err != nil {
		return nil, fmt.Errorf("leaf distributions: %w", err)
	}
	clusterMap := decoder.ClusterMap()
	for i := range nodes {
		if nodes[i].property < 0 {
			nodes[i].cluster = clusterMap[nodes[i].value]
			nodes[i].value = 0
		}
	}

	t := &Tree{nodes: nodes, decoder: decoder}
	t.depth = t.measureDepth(0, limits.MaxDepth)
	if t.depth < 0 {
		return nil, fmt.Errorf("%w: MA tree depth exceeds %d", jxlerr.ErrResourceLimit, limits.MaxDepth)
	}
	return t, nil
}

// isInfiniteTreeDist reports whether the node-kind distribution can never
// produce a leaf, which would make the tree unbounded.
func isInfiniteTreeDist(d *entropy.Decoder) bool {
	cluster := d.ClusterMap()[1]
	token, ok := d.SingleToken(cluster)
	return ok && token != 0
}

// measureDepth returns the subtree depth, or -1 past the limit.
func (t *Tree) measureDepth(root int32, limit int) int {
	type frame struct {
		node  int32
		depth int
	}
	stack := []frame{{root, 1}}
	max := 0
	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if f.depth > limit {
			return -1
		}
		if f.depth > max {
			max = f.depth
		}
		n := &t.nodes[f.node]
		if n.property >= 0 {
			stack = append(stack, frame{n.left, f.depth + 1}, frame{n.right, f.depth + 1})
		}
	}
	return max
}

// Depth returns the tree depth.
func (t *Tree) Depth() int {
	return t.depth
}

// singleLeaf returns the root leaf when the tree has no decisions.
func (t *Tree) singleLeaf() (*treeNode, bool) {
	if len(t.nodes) == 1 {
		return &t.nodes[0], true
	}
	return nil, false
}

// usesWeightedPredictor reports whether any leaf selects the
// self-correcting predictor or any decision reads its max-error property.
func (t *Tree) usesWeightedPredictor() bool {
	for i := range t.nodes {
		n := &t.nodes[i]
		if n.property == 15 || (n.property < 0 && n.predictor == PredSelfCorrecting) {
			return true
		}
	}
	return false
}

// maxProperty returns the largest property index any decision reads.
func (t *Tree) maxProperty() int {
	max := -1
	for i := range t.nodes {
		if int(t.nodes[i].property) > max {
			max = int(t.nodes[i].property)
		}
	}
	return max
}

// lookup walks the tree against the property cache and returns the leaf.
func (t *Tree) lookup(cache *[16]int32, state *predictorState) *treeNode {
	n := &t.nodes[0]
	for n.property >= 0 {
		var v int32
		if n.property < 16 {
			v = cache[n.property]
		} else {
			v = state.extraProperty(int(n.property) - 16)
		}
		if v > n.value {
			n = &t.nodes[n.left]
		} else {
			n = &t.nodes[n.right]
		}
	}
	return n
}

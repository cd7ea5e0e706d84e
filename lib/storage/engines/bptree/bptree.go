package bptree

import (
	"fmt"

	"github.com/ValentinKolb/sTensor/lib/storage"
	"github.com/ValentinKolb/sTensor/lib/storage/util"
	"github.com/lni/dragonboat/v4/logger"
)

var plog = logger.GetLogger("bptree")

// --------------------------------------------------------------------------
// Constants
// --------------------------------------------------------------------------

const (
	defaultOrder = 32 // Default branching factor
	minOrder     = 4  // Smallest order for which both halves of a split are non-empty
)

// --------------------------------------------------------------------------
// Core B+ tree structure
// --------------------------------------------------------------------------

// bptreeImpl is an order-k B+ tree without parent pointers.
// The root starts as an empty leaf and grows a new internal level every time it splits.
type bptreeImpl struct {
	order    int
	root     node
	height   int // number of levels, 1 for a single leaf
	entries  int
	modCount uint64 // incremented on every structural change, checked by iterators
	counters *util.Counters
	closed   bool
}

// Options configures the B+ tree behavior during initialization
type Options struct {
	Order    int            // Maximum entries per node, must be even and >= 4 (0 = use default: 32)
	Counters *util.Counters // Operation counters (nil = no counting)
}

// DefaultOptions returns the default B+ tree options
func DefaultOptions() *Options {
	return &Options{
		Order: defaultOrder,
	}
}

// --------------------------------------------------------------------------
// Initialization and Setup
// --------------------------------------------------------------------------

// NewBPTree creates a new empty B+ tree with the specified options (optional)
func NewBPTree(opts *Options) (storage.Backend, error) {
	if opts == nil {
		opts = DefaultOptions()
	}

	order := opts.Order
	if order == 0 {
		order = defaultOrder
	}
	if order < minOrder || order%2 != 0 {
		return nil, fmt.Errorf("bptree: invalid order %d: must be even and at least %d", order, minOrder)
	}

	opts.Counters.Mem(1) // allocate root
	return &bptreeImpl{
		order:    order,
		root:     newLeaf(order),
		height:   1,
		counters: opts.Counters,
	}, nil
}

// NewFactory returns a storage.Factory creating B+ trees with the given options.
// The capacity hint is ignored because the tree grows by splitting.
func NewFactory(opts *Options) storage.Factory {
	return func(_ int) (storage.Backend, error) {
		var o Options
		if opts != nil {
			o = *opts
		}
		return NewBPTree(&o)
	}
}

// --------------------------------------------------------------------------
// Backend Interface Methods - Write Operations
// --------------------------------------------------------------------------

// Upsert inserts key or overwrites its value. Inserting never fails, the tree
// grows a level if the root splits.
func (t *bptreeImpl) Upsert(key storage.Key, value storage.Value) (bool, error) {
	t.counters.Mem(1) // fetch root
	sibling, created := t.insert(t.root, key, value)

	if sibling != nil {
		// root split during insertion, so grow a new root above both halves
		newRoot := newInternal(t.order)
		newRoot.keys[0] = t.root.minKey()
		newRoot.children[0] = t.root
		newRoot.keys[1] = sibling.minKey()
		newRoot.children[1] = sibling
		newRoot.count = 2
		t.root = newRoot
		t.height++
		t.counters.Mem(1) // store new root

		plog.Debugf("root split, tree height is now %d (%d entries)", t.height, t.entries+1)
	}

	if created {
		t.entries++
		t.modCount++
	}
	return created, nil
}

// insert adds (key, value) to the subtree of n.
// It returns the new right sibling of n if n had to be split, and whether a new key was created.
func (t *bptreeImpl) insert(n node, key storage.Key, value storage.Value) (node, bool) {
	t.counters.Mem(2) // load and store the node we interact with

	switch n := n.(type) {
	case *leafNode:
		// find the first slot whose key is >= key
		idx := n.count
		for i := 0; i < n.count; i++ {
			t.counters.Cmp(1)
			if n.keys[i] == key {
				// update existing value instead of inserting
				n.values[i] = value
				return nil, false
			}
			if key < n.keys[i] {
				idx = i
				break
			}
		}

		t.counters.Cmp(1) // count check
		if n.count == t.order {
			return t.splitLeaf(n, key, value, idx), true
		}

		insertSlot(n.keys, n.values, n.count, idx, key, value)
		n.count++
		t.counters.Add(1)
		return nil, true

	case *internalNode:
		idx := n.childIndex(key, t.counters)
		child := n.children[idx]
		t.counters.Mem(1) // fetch child

		sibling, created := t.insert(child, key, value)

		// a smaller key can only reach the first child, keep its separator equal to its minimum
		t.counters.Cmp(1)
		if idx == 0 {
			n.keys[0] = child.minKey()
		}

		if sibling == nil {
			return nil, created
		}

		// place the sibling after the child it was split from, unless it holds the smaller keys
		pos := idx + 1
		t.counters.Cmp(1)
		if sibling.minKey() < n.keys[idx] {
			pos = idx
		}

		t.counters.Cmp(1) // child count check
		if n.count == t.order {
			return t.splitInternal(n, sibling, pos), created
		}

		insertSlot(n.keys, n.children, n.count, pos, sibling.minKey(), sibling)
		n.count++
		t.counters.Add(1)
		t.counters.Mem(1) // store new child
		return nil, created

	default:
		panic(unknownNode(n))
	}
}

// splitLeaf splits the full leaf n while inserting (key, value) at its sorted position idx.
// n keeps the lower keys, the returned sibling the upper keys.
func (t *bptreeImpl) splitLeaf(n *leafNode, key storage.Key, value storage.Value, idx int) node {
	sibling := newLeaf(t.order)
	n.count, sibling.count = splitSlots(n.keys, n.values, sibling.keys, sibling.values, idx, key, value)

	t.counters.Mem(3) // read old node, write both halves
	t.counters.Add(1)
	t.counters.Cmp(1)
	return sibling
}

// splitInternal splits the full internal node n while inserting newChild at position idx.
// The separator of newChild is its own minimum key.
func (t *bptreeImpl) splitInternal(n *internalNode, newChild node, idx int) node {
	sibling := newInternal(t.order)
	n.count, sibling.count = splitSlots(n.keys, n.children, sibling.keys, sibling.children, idx, newChild.minKey(), newChild)

	t.counters.Mem(3)
	t.counters.Add(1)
	t.counters.Cmp(1)
	return sibling
}

// --------------------------------------------------------------------------
// Backend Interface Methods - Read Operations
// --------------------------------------------------------------------------

// Lookup retrieves the value for key. The boolean indicates whether the key was found.
func (t *bptreeImpl) Lookup(key storage.Key) (storage.Value, bool) {
	t.counters.Mem(1) // fetch root
	return t.search(t.root, key)
}

func (t *bptreeImpl) search(n node, key storage.Key) (storage.Value, bool) {
	switch n := n.(type) {
	case *leafNode:
		for i := 0; i < n.count; i++ {
			t.counters.Cmp(1)
			if n.keys[i] == key {
				return n.values[i], true
			}
			if n.keys[i] > key {
				break
			}
		}
		return 0, false

	case *internalNode:
		idx := n.childIndex(key, t.counters)
		t.counters.Mem(1) // fetch child
		return t.search(n.children[idx], key)

	default:
		panic(unknownNode(n))
	}
}

// Len returns the number of keys in the tree
func (t *bptreeImpl) Len() int {
	return t.entries
}

// Iter returns an iterator yielding all entries in ascending key order
func (t *bptreeImpl) Iter() storage.Iterator {
	return newIterator(t)
}

// --------------------------------------------------------------------------
// Backend Interface Implementation - Features and Metadata
// --------------------------------------------------------------------------

// GetInfo returns statistics about the tree.
// It walks the whole tree, so it is O(number of nodes).
func (t *bptreeImpl) GetInfo() storage.Info {
	var (
		leaves    int
		internals int
		leafFill  []float64
	)

	var walk func(n node)
	walk = func(n node) {
		switch n := n.(type) {
		case *leafNode:
			leaves++
			leafFill = append(leafFill, float64(n.count))
		case *internalNode:
			internals++
			for i := 0; i < n.count; i++ {
				walk(n.children[i])
			}
		default:
			panic(unknownNode(n))
		}
	}
	walk(t.root)

	// per slot: 8 byte key + 4 byte value (leaf) or 8 byte key + 16 byte interface (internal),
	// per node: 24 byte slice headers for each array plus count
	leafBytes := t.order*(8+4) + 2*24 + 8
	internalBytes := t.order*(8+16) + 2*24 + 8

	meta := &struct {
		Order         int                    `json:"order"`
		Height        int                    `json:"height"`
		LeafNodes     int                    `json:"leaf_nodes"`
		InternalNodes int                    `json:"internal_nodes"`
		LeafFill      util.DistributionStats `json:"leaf_fill"`
	}{
		Order:         t.order,
		Height:        t.height,
		LeafNodes:     leaves,
		InternalNodes: internals,
		LeafFill:      util.NewDistributionStats(leafFill),
	}

	return storage.Info{
		SizeBytes: leaves*leafBytes + internals*internalBytes,
		Impl:      storage.ImplBPTree,
		Entries:   t.entries,
		SupportedFeatures: []storage.Feature{
			storage.FeatureUpsert, storage.FeatureLookup,
			storage.FeatureIterate, storage.FeatureOrderedIteration,
		},
		Metadata: meta,
	}
}

// SupportsFeature checks if this implementation supports a specific feature
func (t *bptreeImpl) SupportsFeature(feature storage.Feature) bool {
	supportedFeatures := storage.FeatureUpsert |
		storage.FeatureLookup |
		storage.FeatureIterate |
		storage.FeatureOrderedIteration
	return supportedFeatures&feature == feature
}

// Close drops the tree. Open iterators are invalidated.
func (t *bptreeImpl) Close() error {
	if t.closed {
		return nil
	}
	t.closed = true
	t.root = newLeaf(t.order)
	t.height = 1
	t.entries = 0
	t.modCount++
	return nil
}

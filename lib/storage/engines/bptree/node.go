package bptree

import (
	"fmt"

	"github.com/ValentinKolb/sTensor/lib/storage"
	"github.com/ValentinKolb/sTensor/lib/storage/util"
)

// --------------------------------------------------------------------------
// Node Types
// --------------------------------------------------------------------------

// node is either a *leafNode or an *internalNode.
// Code that handles nodes switches on the concrete type, a node of any other
// type is a programming error.
type node interface {
	// minKey returns the smallest key stored in the subtree of the node
	minKey() storage.Key
	// size returns the number of live slots
	size() int
}

// leafNode holds up to order sorted (key, value) pairs.
// Slots at index >= count are logically empty.
type leafNode struct {
	keys   []storage.Key
	values []storage.Value
	count  int
}

// internalNode holds up to order (separator, child) pairs where every separator
// equals the minimum key of the subtree of its child.
// Slots at index >= count are logically empty.
type internalNode struct {
	keys     []storage.Key
	children []node
	count    int
}

func newLeaf(order int) *leafNode {
	return &leafNode{
		keys:   make([]storage.Key, order),
		values: make([]storage.Value, order),
	}
}

func newInternal(order int) *internalNode {
	return &internalNode{
		keys:     make([]storage.Key, order),
		children: make([]node, order),
	}
}

func (l *leafNode) minKey() storage.Key { return l.keys[0] }
func (l *leafNode) size() int { return l.count }
func (in *internalNode) minKey() storage.Key { return in.keys[0] }
func (in *internalNode) size() int { return in.count }

// childIndex returns the index of the child whose subtree key belongs to:
// the greatest index whose separator is <= key, or 0 if key is smaller than every separator.
func (in *internalNode) childIndex(key storage.Key, c *util.Counters) int {
	idx := 0
	for idx+1 < in.count {
		c.Cmp(1)
		if in.keys[idx+1] > key {
			break
		}
		idx++
	}
	return idx
}

func unknownNode(n node) string {
	return fmt.Sprintf("bptree: unknown node type %T", n)
}

// --------------------------------------------------------------------------
// Slot helpers (shared by leaf and internal nodes)
// --------------------------------------------------------------------------

// insertSlot shifts the live slots [idx, count) one to the right and stores
// (key, val) at idx. The arrays must have room for count+1 slots.
func insertSlot[V any](keys []storage.Key, vals []V, count, idx int, key storage.Key, val V) {
	copy(keys[idx+1:count+1], keys[idx:count])
	copy(vals[idx+1:count+1], vals[idx:count])
	keys[idx] = key
	vals[idx] = val
}

// splitSlots distributes the full arrays (keys, vals) plus the new pair
// (key, val), whose sorted position is idx, over the original arrays and the
// empty sibling arrays (sibKeys, sibVals). The original keeps the lower part,
// the sibling receives the upper part, vacated slots of the original are cleared.
// It returns the new live counts of the original and the sibling.
//
// With half = len(keys)/2 the halves are (half+1, half) if idx < half and
// (half, half+1) otherwise.
func splitSlots[V any](keys []storage.Key, vals []V, sibKeys []storage.Key, sibVals []V, idx int, key storage.Key, val V) (int, int) {
	order := len(keys)
	half := order / 2

	if idx < half {
		// the new pair stays in the original: move the upper half out, then shift-insert
		copy(sibKeys, keys[half:])
		copy(sibVals, vals[half:])
		clear(keys[half:])
		clear(vals[half:])
		insertSlot(keys, vals, half, idx, key, val)
		return half + 1, half
	}

	// the new pair goes to the sibling: copy the slots before idx, leave a gap, copy the rest
	gap := copy(sibKeys, keys[half:idx])
	copy(sibVals, vals[half:idx])
	sibKeys[gap] = key
	sibVals[gap] = val
	copy(sibKeys[gap+1:], keys[idx:])
	copy(sibVals[gap+1:], vals[idx:])
	clear(keys[half:])
	clear(vals[half:])
	return half, half + 1
}

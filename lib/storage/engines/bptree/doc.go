// Package bptree provides an order-k B+ tree implementation of the storage.Backend interface.
//
// Structure:
//
// Every node holds up to Order slots in fixed-size arrays plus a live count.
// Leaves store sorted (key, value) pairs. Internal nodes store (separator, child)
// pairs where each separator equals the minimum key of the child's subtree.
// Nodes do not point to their parents; each internal node exclusively owns its
// children.
//
// Insertion:
//
// Upsert descends recursively to the leaf that owns the key. An existing key is
// overwritten in place. Otherwise the pair is shift-inserted, and a full node is
// split in two halves (Order/2 and Order/2+1 entries) with the new right sibling
// returned to the caller, which inserts it next to the split child. When the root
// splits, a new internal root with exactly two children is created and the tree
// grows by one level. After every insertion into the first child of an internal
// node the first separator is refreshed to that child's new minimum.
//
// Iteration:
//
// Iterators keep an explicit stack of (node, next index) frames along the path
// from the root to the current leaf, so the stack depth is bounded by the tree
// height. Keys are yielded in strictly ascending order. Creating a new key after
// Iter was called invalidates the iterator (see storage.ErrIteratorInvalidated);
// overwriting the value of an existing key does not.
//
// Usage:
//
//	tree, err := bptree.NewBPTree(&bptree.Options{Order: 16})
//	if err != nil {
//		return err
//	}
//	tree.Upsert(42, 1.5)
//	value, found := tree.Lookup(42)
//
// The tree is not safe for concurrent use.
package bptree

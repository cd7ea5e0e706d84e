package bptree

import (
	"github.com/ValentinKolb/sTensor/lib/storage"
)

// frame is one level of the ancestor stack.
// For a leaf idx is the next entry to emit, for an internal node the next child to descend into.
type frame struct {
	n   node
	idx int
}

// iterator walks the tree in key order with an explicit stack of ancestors,
// since nodes do not know their parents. The stack never grows beyond the tree height.
type iterator struct {
	tree     *bptreeImpl
	stack    []frame
	modCount uint64
	err      error
}

func newIterator(t *bptreeImpl) *iterator {
	it := &iterator{
		tree:     t,
		stack:    make([]frame, 0, t.height),
		modCount: t.modCount,
	}
	it.stack = append(it.stack, frame{n: t.root})
	t.counters.Mem(1) // fetch root
	it.descend()
	return it
}

// descend pushes frames along the leftmost remaining path until the top of the stack is a leaf
func (it *iterator) descend() {
	for {
		top := &it.stack[len(it.stack)-1]
		in, ok := top.n.(*internalNode)
		if !ok {
			return
		}
		child := in.children[top.idx]
		top.idx++
		it.tree.counters.Mem(1) // fetch child
		it.stack = append(it.stack, frame{n: child})
	}
}

// Next returns the next entry in ascending key order
func (it *iterator) Next() (storage.Key, storage.Value, bool) {
	if it.stack == nil {
		return 0, 0, false
	}
	if it.modCount != it.tree.modCount {
		it.err = storage.ErrIteratorInvalidated
		it.stack = nil
		return 0, 0, false
	}

	for {
		top := &it.stack[len(it.stack)-1]

		it.tree.counters.Cmp(1)
		if leaf, ok := top.n.(*leafNode); ok && top.idx < leaf.count {
			key, value := leaf.keys[top.idx], leaf.values[top.idx]
			top.idx++
			it.tree.counters.Add(1)
			return key, value, true
		}

		// pop the exhausted leaf and every exhausted ancestor
		it.stack = it.stack[:len(it.stack)-1]
		for len(it.stack) > 0 {
			it.tree.counters.Cmp(1)
			top = &it.stack[len(it.stack)-1]
			if top.idx < top.n.size() {
				break
			}
			it.stack = it.stack[:len(it.stack)-1]
		}

		if len(it.stack) == 0 {
			// iteration is finished
			it.stack = nil
			return 0, 0, false
		}

		it.descend()
	}
}

// Err reports whether the iteration ended because the tree was modified
func (it *iterator) Err() error {
	return it.err
}

// Close releases the stack
func (it *iterator) Close() {
	it.stack = nil
}

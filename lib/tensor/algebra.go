package tensor

import (
	"errors"
	"fmt"
	"math"

	"github.com/ValentinKolb/sTensor/lib/storage"
)

// ErrIncompatibleModes is returned when the modes passed to Trace or Contract
// do not exist or have different extents
var ErrIncompatibleModes = errors.New("incompatible modes")

// --------------------------------------------------------------------------
// Trace
// --------------------------------------------------------------------------

// Trace sums t over the diagonal of modes a and b:
//
//	C[i...] = sum_k t[..., k (mode a), ..., k (mode b), ...]
//
// The result has rank t.Rank()-2 and is created with opts. Only coordinates
// that received at least one contribution are stored.
func Trace(t *Tensor, a, b int, opts *Options) (*Tensor, error) {
	if opts == nil {
		opts = DefaultOptions()
	}
	if a < 0 || b < 0 || a >= t.Rank() || b >= t.Rank() || a == b {
		return nil, fmt.Errorf("%w: cannot trace modes %d and %d of a rank %d tensor", ErrIncompatibleModes, a, b, t.Rank())
	}
	if t.shape[a] != t.shape[b] {
		return nil, fmt.Errorf("%w: extents %d and %d differ", ErrIncompatibleModes, t.shape[a], t.shape[b])
	}

	shape := dropModes(t.shape, make([]uint32, 0, t.Rank()-2), a, b)

	// every diagonal entry contributes to exactly one result coordinate
	bound := uint64(0)
	for coords := range t.All() {
		if coords[a] == coords[b] {
			bound++
		}
	}

	c, err := New(shape, opts.withCapacity(capacityHint(bound, shape)))
	if err != nil {
		return nil, err
	}

	out := make([]uint32, 0, len(shape))
	it := t.Iter()
	defer it.Close()
	for {
		coords, value, ok := it.Next()
		if !ok {
			break
		}
		if coords[a] != coords[b] {
			continue
		}

		out = dropModes(coords, out[:0], a, b)
		if err := c.Set(out, c.Get(out)+value); err != nil {
			c.Close()
			return nil, err
		}
	}
	if err := it.Err(); err != nil {
		c.Close()
		return nil, err
	}

	plog.Debugf("trace over modes %d and %d: %d entries -> %d entries", a, b, t.Len(), c.Len())
	return c, nil
}

// --------------------------------------------------------------------------
// Contraction
// --------------------------------------------------------------------------

// partner is an entry of the right operand without its contracted mode
type partner struct {
	rest  []uint32
	value storage.Value
}

// Contract computes the sum-product of x and y over mode a of x and mode b of y:
//
//	C[i..., j...] = sum_k x[i..., k (mode a), ...] * y[j..., k (mode b), ...]
//
// The result shape is the shape of x without mode a followed by the shape of y
// without mode b, its rank must not exceed MaxRank. The result is created with
// opts and stores only coordinates that received at least one contribution.
// x and y may be the same tensor.
func Contract(x, y *Tensor, a, b int, opts *Options) (*Tensor, error) {
	if opts == nil {
		opts = DefaultOptions()
	}
	if a < 0 || a >= x.Rank() || b < 0 || b >= y.Rank() {
		return nil, fmt.Errorf("%w: cannot contract mode %d of a rank %d tensor with mode %d of a rank %d tensor",
			ErrIncompatibleModes, a, x.Rank(), b, y.Rank())
	}
	if x.shape[a] != y.shape[b] {
		return nil, fmt.Errorf("%w: extents %d and %d differ", ErrIncompatibleModes, x.shape[a], y.shape[b])
	}

	shape := dropModes(x.shape, make([]uint32, 0, x.Rank()+y.Rank()-2), a, -1)
	shape = dropModes(y.shape, shape, b, -1)

	// group the right operand by its contracted index
	partners := make(map[uint32][]partner)
	for coords, value := range y.All() {
		k := coords[b]
		partners[k] = append(partners[k], partner{
			rest:  dropModes(coords, make([]uint32, 0, y.Rank()-1), b, -1),
			value: value,
		})
	}

	// every (x entry, partner) pair contributes to one result coordinate
	bound := uint64(0)
	for coords := range x.All() {
		bound += uint64(len(partners[coords[a]]))
	}

	c, err := New(shape, opts.withCapacity(capacityHint(bound, shape)))
	if err != nil {
		return nil, err
	}

	out := make([]uint32, 0, len(shape))
	it := x.Iter()
	defer it.Close()
	for {
		coords, value, ok := it.Next()
		if !ok {
			break
		}

		prefix := dropModes(coords, out[:0], a, -1)
		for _, p := range partners[coords[a]] {
			out = append(prefix, p.rest...)
			if err := c.Set(out, c.Get(out)+value*p.value); err != nil {
				c.Close()
				return nil, err
			}
		}
	}
	if err := it.Err(); err != nil {
		c.Close()
		return nil, err
	}

	plog.Debugf("contraction of modes %d and %d: %d x %d entries -> %d entries", a, b, x.Len(), y.Len(), c.Len())
	return c, nil
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

// dropModes appends all components of src except those at index skip1 and skip2 to dst
func dropModes(src, dst []uint32, skip1, skip2 int) []uint32 {
	for mode, c := range src {
		if mode == skip1 || mode == skip2 {
			continue
		}
		dst = append(dst, c)
	}
	return dst
}

// capacityHint limits the number of contributions to the number of coordinates of the result
func capacityHint(contributions uint64, shape []uint32) int {
	bound := min(contributions, VolumeOf(shape))
	if bound > math.MaxInt {
		return math.MaxInt
	}
	return int(bound)
}

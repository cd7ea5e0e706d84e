package tensor

import (
	"errors"
	"fmt"
	"iter"
	"math"
	"slices"

	"github.com/ValentinKolb/sTensor/lib/storage"
	"github.com/ValentinKolb/sTensor/lib/storage/engines/bptree"
	"github.com/ValentinKolb/sTensor/lib/storage/engines/hashtable"
	"github.com/ValentinKolb/sTensor/lib/storage/util"
	"github.com/lni/dragonboat/v4/logger"
)

var plog = logger.GetLogger("tensor")

var (
	// ErrInvalidShape is returned when a shape has too many modes or an extent that does not fit a key field
	ErrInvalidShape = errors.New("invalid shape")
	// ErrRankMismatch is returned when a coordinate has a different number of components than the tensor has modes
	ErrRankMismatch = errors.New("coordinate rank does not match tensor rank")
	// ErrOutOfBounds is returned when a coordinate component is not smaller than the extent of its mode
	ErrOutOfBounds = errors.New("coordinate out of bounds")
)

// --------------------------------------------------------------------------
// Options
// --------------------------------------------------------------------------

// Options select and configure the backend of a tensor
type Options struct {
	Backend       storage.Implementation // Backend kind (empty = bptree)
	Capacity      int                    // Expected number of entries, sizes the hash table
	Order         int                    // B+ tree order (0 = engine default)
	Overprovision float64                // Hash table overprovision factor (0 = engine default)
	Counters      *util.Counters         // Operation counters shared with the backend (nil = no counting)
}

// DefaultOptions returns options for a B+ tree backed tensor
func DefaultOptions() *Options {
	return &Options{
		Backend: storage.ImplBPTree,
	}
}

// withCapacity returns a copy of opts with a different capacity hint
func (o *Options) withCapacity(capacity int) *Options {
	c := *o
	c.Capacity = capacity
	return &c
}

// Factory returns the storage factory for the configured backend
func (o *Options) Factory() (storage.Factory, error) {
	switch o.Backend {
	case "", storage.ImplBPTree:
		return bptree.NewFactory(&bptree.Options{
			Order:    o.Order,
			Counters: o.Counters,
		}), nil
	case storage.ImplHashTable:
		return hashtable.NewFactory(&hashtable.Options{
			Overprovision: o.Overprovision,
			Counters:      o.Counters,
		}), nil
	default:
		return nil, fmt.Errorf("unknown backend %q", o.Backend)
	}
}

// --------------------------------------------------------------------------
// Tensor Container
// --------------------------------------------------------------------------

// Tensor is a sparse tensor with a fixed shape. Absent coordinates hold zero.
// A Tensor exclusively owns its backend and is not safe for concurrent use.
type Tensor struct {
	shape   []uint32
	entries int
	backend storage.Backend
}

// New creates an empty tensor with the given shape (optional options).
// Every extent must be in [1, MaxExtent] and the rank must not exceed MaxRank.
// A rank 0 tensor holds a single scalar.
func New(shape []uint32, opts *Options) (*Tensor, error) {
	if opts == nil {
		opts = DefaultOptions()
	}

	if err := validateShape(shape); err != nil {
		return nil, err
	}

	factory, err := opts.Factory()
	if err != nil {
		return nil, err
	}
	backend, err := factory(opts.Capacity)
	if err != nil {
		return nil, fmt.Errorf("failed to create backend: %w", err)
	}

	plog.Debugf("created tensor with shape %v (backend %q, capacity hint %d)", shape, opts.Backend, opts.Capacity)
	return &Tensor{
		shape:   slices.Clone(shape),
		backend: backend,
	}, nil
}

func validateShape(shape []uint32) error {
	if len(shape) > MaxRank {
		return fmt.Errorf("%w: rank %d exceeds maximum rank %d", ErrInvalidShape, len(shape), MaxRank)
	}
	for mode, extent := range shape {
		if extent == 0 || extent > MaxExtent {
			return fmt.Errorf("%w: extent %d of mode %d must be in [1, %d]", ErrInvalidShape, extent, mode, MaxExtent)
		}
	}
	return nil
}

// checkBounds validates coords against the shape without touching the backend
func (t *Tensor) checkBounds(coords []uint32) error {
	if len(coords) != len(t.shape) {
		return fmt.Errorf("%w: got %d components, want %d", ErrRankMismatch, len(coords), len(t.shape))
	}
	for mode, c := range coords {
		if c >= t.shape[mode] {
			return fmt.Errorf("%w: component %d of mode %d, extent is %d", ErrOutOfBounds, c, mode, t.shape[mode])
		}
	}
	return nil
}

// Set stores value at coords, overwriting any previous value.
// Out of bounds coordinates are rejected without modifying the tensor.
// A hash table backend reports storage.ErrCapacityExhausted once it is full.
func (t *Tensor) Set(coords []uint32, value storage.Value) error {
	if err := t.checkBounds(coords); err != nil {
		return err
	}

	created, err := t.backend.Upsert(Encode(coords), value)
	if err != nil {
		return fmt.Errorf("failed to set %v: %w", coords, err)
	}
	if created {
		t.entries++
	}
	return nil
}

// Get returns the value at coords, or zero if coords is out of bounds or absent
func (t *Tensor) Get(coords []uint32) storage.Value {
	value, _ := t.Lookup(coords)
	return value
}

// Lookup returns the value at coords and whether it is stored.
// In contrast to Get it distinguishes a stored zero from an absent coordinate.
func (t *Tensor) Lookup(coords []uint32) (storage.Value, bool) {
	if t.checkBounds(coords) != nil {
		return 0, false
	}
	return t.backend.Lookup(Encode(coords))
}

// Len returns the number of stored coordinates
func (t *Tensor) Len() int {
	return t.entries
}

// Rank returns the number of modes
func (t *Tensor) Rank() int {
	return len(t.shape)
}

// Shape returns a copy of the extents of all modes
func (t *Tensor) Shape() []uint32 {
	return slices.Clone(t.shape)
}

// Volume returns the number of coordinates inside the shape, saturating at math.MaxUint64
func (t *Tensor) Volume() uint64 {
	return VolumeOf(t.shape)
}

// VolumeOf returns the product of the extents, saturating at math.MaxUint64
func VolumeOf(shape []uint32) uint64 {
	volume := uint64(1)
	for _, extent := range shape {
		if extent != 0 && volume > math.MaxUint64/uint64(extent) {
			return math.MaxUint64
		}
		volume *= uint64(extent)
	}
	return volume
}

// Density returns the fraction of coordinates that are stored
func (t *Tensor) Density() float64 {
	return float64(t.entries) / float64(t.Volume())
}

// Info returns the statistics of the backend
func (t *Tensor) Info() storage.Info {
	return t.backend.GetInfo()
}

// Close releases the backend. The tensor must not be used afterwards.
func (t *Tensor) Close() error {
	t.entries = 0
	return t.backend.Close()
}

// --------------------------------------------------------------------------
// Iteration
// --------------------------------------------------------------------------

// Iterator yields the stored (coordinate, value) pairs of a tensor.
// The order is ascending lexicographic for a B+ tree backend and unspecified
// for a hash table backend.
//
// The coordinate slice returned by Next is reused by the following call and
// must be copied by callers that need to keep it.
type Iterator struct {
	it     storage.Iterator
	coords []uint32
}

// Iter starts a new iteration. The iterator must be closed on every exit path.
// Setting a new coordinate while the iterator is open invalidates it.
func (t *Tensor) Iter() *Iterator {
	return &Iterator{
		it:     t.backend.Iter(),
		coords: make([]uint32, len(t.shape)),
	}
}

// Next returns the next pair. ok is false once the iteration is finished or invalidated.
func (it *Iterator) Next() (coords []uint32, value storage.Value, ok bool) {
	key, value, ok := it.it.Next()
	if !ok {
		return nil, 0, false
	}
	Decode(key, it.coords)
	return it.coords, value, true
}

// Err returns storage.ErrIteratorInvalidated if the tensor was modified during iteration
func (it *Iterator) Err() error {
	return it.it.Err()
}

// Close releases the iterator
func (it *Iterator) Close() {
	it.it.Close()
	it.coords = nil
}

// All returns a range-over-func sequence of all stored pairs.
// The iterator is closed when the loop ends. An invalidated iteration simply
// stops, use Iter when the error matters.
func (t *Tensor) All() iter.Seq2[[]uint32, storage.Value] {
	return func(yield func([]uint32, storage.Value) bool) {
		it := t.Iter()
		defer it.Close()

		for {
			coords, value, ok := it.Next()
			if !ok || !yield(coords, value) {
				return
			}
		}
	}
}

// Copy stores every entry of src in a new tensor created with opts.
// The entry count of src is used as capacity hint.
func Copy(src *Tensor, opts *Options) (*Tensor, error) {
	if opts == nil {
		opts = DefaultOptions()
	}

	dst, err := New(src.shape, opts.withCapacity(src.Len()))
	if err != nil {
		return nil, err
	}

	it := src.Iter()
	defer it.Close()
	for {
		coords, value, ok := it.Next()
		if !ok {
			break
		}
		if err := dst.Set(coords, value); err != nil {
			dst.Close()
			return nil, err
		}
	}
	if err := it.Err(); err != nil {
		dst.Close()
		return nil, err
	}
	return dst, nil
}

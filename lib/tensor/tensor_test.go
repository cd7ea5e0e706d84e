package tensor

import (
	"errors"
	"math/rand"
	"slices"
	"testing"

	"github.com/ValentinKolb/sTensor/lib/storage"
	"github.com/ValentinKolb/sTensor/lib/storage/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// backendOptions returns one option set per backend, the hash table sized for capacity entries
func backendOptions(capacity int) map[string]*Options {
	return map[string]*Options{
		"BPTree":    {Backend: storage.ImplBPTree, Order: 4},
		"HashTable": {Backend: storage.ImplHashTable, Capacity: capacity},
	}
}

// entriesOf collects all entries of t keyed by their packed coordinate
func entriesOf(t *testing.T, x *Tensor) map[storage.Key]storage.Value {
	t.Helper()
	out := make(map[storage.Key]storage.Value)

	it := x.Iter()
	defer it.Close()
	for {
		coords, value, ok := it.Next()
		if !ok {
			break
		}
		key := Encode(coords)
		require.NotContains(t, out, key, "coordinate %v yielded twice", coords)
		out[key] = value
	}
	require.NoError(t, it.Err())
	return out
}

func TestCodecRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(1))

	for rank := 0; rank <= MaxRank; rank++ {
		coords := make([]uint32, rank)
		decoded := make([]uint32, rank)
		for i := 0; i < 1000; i++ {
			for m := range coords {
				coords[m] = uint32(rng.Intn(MaxExtent))
			}
			Decode(Encode(coords), decoded)
			require.Equal(t, coords, decoded)
		}

		// extremes
		for m := range coords {
			coords[m] = MaxExtent - 1
		}
		Decode(Encode(coords), decoded)
		require.Equal(t, coords, decoded)
	}
}

func TestCodecOrder(t *testing.T) {
	// the first mode is the most significant field
	assert.Less(t, Encode([]uint32{0, 9}), Encode([]uint32{1, 0}))
	assert.Less(t, Encode([]uint32{1, 2, 3}), Encode([]uint32{1, 3, 0}))
	assert.Equal(t, storage.Key(1<<FieldWidth|2), Encode([]uint32{1, 2}))
	assert.Equal(t, storage.Key(0), Encode(nil))
}

func TestNewValidation(t *testing.T) {
	cases := map[string][]uint32{
		"zero extent":    {4, 0},
		"extent too big": {MaxExtent + 1},
		"rank too big":   {2, 2, 2, 2, 2},
	}
	for name, shape := range cases {
		_, err := New(shape, nil)
		assert.True(t, errors.Is(err, ErrInvalidShape), "%s: %v", name, err)
	}

	_, err := New([]uint32{4}, &Options{Backend: "btree"})
	assert.Error(t, err)

	_, err = New([]uint32{4}, &Options{Backend: storage.ImplBPTree, Order: 5})
	assert.Error(t, err)

	_, err = New([]uint32{4}, &Options{Backend: storage.ImplHashTable, Overprovision: 0.5})
	assert.Error(t, err)

	x, err := New([]uint32{MaxExtent, MaxExtent, MaxExtent, MaxExtent}, nil)
	require.NoError(t, err)
	assert.Equal(t, MaxRank, x.Rank())
}

func TestEndToEnd(t *testing.T) {
	for name, opts := range backendOptions(3) {
		t.Run(name, func(t *testing.T) {
			x, err := New([]uint32{4, 4}, opts)
			require.NoError(t, err)
			defer x.Close()

			require.NoError(t, x.Set([]uint32{0, 0}, 1.0))
			require.NoError(t, x.Set([]uint32{1, 2}, 3.5))
			require.NoError(t, x.Set([]uint32{3, 3}, 9.0))

			assert.Equal(t, storage.Value(3.5), x.Get([]uint32{1, 2}))
			assert.Equal(t, storage.Value(0), x.Get([]uint32{2, 2}))
			assert.Equal(t, 3, x.Len())

			want := map[storage.Key]storage.Value{
				Encode([]uint32{0, 0}): 1.0,
				Encode([]uint32{1, 2}): 3.5,
				Encode([]uint32{3, 3}): 9.0,
			}
			assert.Equal(t, want, entriesOf(t, x))
		})
	}
}

func TestBounds(t *testing.T) {
	for name, opts := range backendOptions(8) {
		t.Run(name, func(t *testing.T) {
			x, err := New([]uint32{2, 3}, opts)
			require.NoError(t, err)

			err = x.Set([]uint32{2, 0}, 1)
			assert.True(t, errors.Is(err, ErrOutOfBounds), err)
			err = x.Set([]uint32{0, 3}, 1)
			assert.True(t, errors.Is(err, ErrOutOfBounds), err)
			err = x.Set([]uint32{0}, 1)
			assert.True(t, errors.Is(err, ErrRankMismatch), err)
			err = x.Set([]uint32{0, 0, 0}, 1)
			assert.True(t, errors.Is(err, ErrRankMismatch), err)

			assert.Equal(t, 0, x.Len(), "rejected writes must not change the tensor")
			assert.Equal(t, 0, x.Info().Entries)

			assert.Zero(t, x.Get([]uint32{5, 5}))
			assert.Zero(t, x.Get([]uint32{1}))
			_, found := x.Lookup([]uint32{5, 5})
			assert.False(t, found)
		})
	}
}

func TestOverwrite(t *testing.T) {
	for name, opts := range backendOptions(4) {
		t.Run(name, func(t *testing.T) {
			x, err := New([]uint32{8}, opts)
			require.NoError(t, err)

			require.NoError(t, x.Set([]uint32{5}, 1))
			require.NoError(t, x.Set([]uint32{5}, 1))
			assert.Equal(t, 1, x.Len(), "idempotent set must not add entries")

			require.NoError(t, x.Set([]uint32{5}, 2))
			assert.Equal(t, 1, x.Len())
			assert.Equal(t, storage.Value(2), x.Get([]uint32{5}))
		})
	}
}

func TestZeroIsStored(t *testing.T) {
	for name, opts := range backendOptions(4) {
		t.Run(name, func(t *testing.T) {
			x, err := New([]uint32{8}, opts)
			require.NoError(t, err)

			require.NoError(t, x.Set([]uint32{3}, 0))

			value, found := x.Lookup([]uint32{3})
			assert.True(t, found)
			assert.Zero(t, value)

			_, found = x.Lookup([]uint32{4})
			assert.False(t, found)
			assert.Equal(t, 1, x.Len())
		})
	}
}

func TestScalar(t *testing.T) {
	x, err := New(nil, nil)
	require.NoError(t, err)

	assert.Equal(t, 0, x.Rank())
	assert.Equal(t, uint64(1), x.Volume())
	require.NoError(t, x.Set([]uint32{}, 42))
	assert.Equal(t, storage.Value(42), x.Get(nil))

	n := 0
	for coords, value := range x.All() {
		assert.Empty(t, coords)
		assert.Equal(t, storage.Value(42), value)
		n++
	}
	assert.Equal(t, 1, n)
}

func TestOrderedIteration(t *testing.T) {
	x, err := New([]uint32{50, 50, 50}, &Options{Backend: storage.ImplBPTree, Order: 6})
	require.NoError(t, err)

	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 2000; i++ {
		coords := []uint32{uint32(rng.Intn(50)), uint32(rng.Intn(50)), uint32(rng.Intn(50))}
		require.NoError(t, x.Set(coords, storage.Value(i)))
	}

	var prev []uint32
	n := 0
	for coords := range x.All() {
		if prev != nil {
			require.Equal(t, -1, slices.Compare(prev, coords), "%v not before %v", prev, coords)
		}
		prev = slices.Clone(coords)
		n++
	}
	assert.Equal(t, x.Len(), n)
}

func TestIteratorReusesBuffer(t *testing.T) {
	x, err := New([]uint32{4, 4}, nil)
	require.NoError(t, err)
	require.NoError(t, x.Set([]uint32{0, 1}, 1))
	require.NoError(t, x.Set([]uint32{2, 3}, 2))

	it := x.Iter()
	defer it.Close()

	first, _, ok := it.Next()
	require.True(t, ok)
	kept := first
	second, _, ok := it.Next()
	require.True(t, ok)

	assert.Equal(t, []uint32{2, 3}, second)
	assert.Equal(t, []uint32{2, 3}, kept, "the coordinate buffer is shared between steps")
}

func TestIteratorInvalidation(t *testing.T) {
	for name, opts := range backendOptions(16) {
		t.Run(name, func(t *testing.T) {
			x, err := New([]uint32{16}, opts)
			require.NoError(t, err)
			for i := uint32(0); i < 4; i++ {
				require.NoError(t, x.Set([]uint32{i}, 1))
			}

			it := x.Iter()
			defer it.Close()
			_, _, ok := it.Next()
			require.True(t, ok)

			require.NoError(t, x.Set([]uint32{10}, 1))
			_, _, ok = it.Next()
			assert.False(t, ok)
			assert.True(t, errors.Is(it.Err(), storage.ErrIteratorInvalidated))
		})
	}
}

func TestAllStopsEarly(t *testing.T) {
	x, err := New([]uint32{10}, nil)
	require.NoError(t, err)
	for i := uint32(0); i < 10; i++ {
		require.NoError(t, x.Set([]uint32{i}, 1))
	}

	n := 0
	for range x.All() {
		n++
		if n == 3 {
			break
		}
	}
	assert.Equal(t, 3, n)

	// the iterator of the loop above is closed, so writing is fine and a new loop sees everything
	require.NoError(t, x.Set([]uint32{0}, 2))
	n = 0
	for range x.All() {
		n++
	}
	assert.Equal(t, 10, n)
}

func TestCapacityExhausted(t *testing.T) {
	x, err := New([]uint32{100}, &Options{Backend: storage.ImplHashTable, Capacity: 2, Overprovision: 1.5})
	require.NoError(t, err)

	for i := uint32(0); i < 3; i++ {
		require.NoError(t, x.Set([]uint32{i}, storage.Value(i+1)))
	}

	err = x.Set([]uint32{50}, 1)
	assert.True(t, errors.Is(err, storage.ErrCapacityExhausted), err)
	assert.Equal(t, 3, x.Len())
	for i := uint32(0); i < 3; i++ {
		assert.Equal(t, storage.Value(i+1), x.Get([]uint32{i}))
	}
}

func TestCopy(t *testing.T) {
	src, err := New([]uint32{30, 30}, nil)
	require.NoError(t, err)
	for i := uint32(0); i < 30; i++ {
		require.NoError(t, src.Set([]uint32{i, 29 - i}, storage.Value(i)))
	}

	counters := util.NewCounters()
	dst, err := Copy(src, &Options{Backend: storage.ImplHashTable, Counters: counters})
	require.NoError(t, err)

	assert.Equal(t, src.Len(), dst.Len())
	assert.Equal(t, entriesOf(t, src), entriesOf(t, dst))
	assert.Equal(t, storage.ImplHashTable, dst.Info().Impl)
	assert.NotZero(t, counters.Snapshot().Mem)
	assert.InDelta(t, 30.0/900.0, dst.Density(), 1e-9)
}

package tensor

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/ValentinKolb/sTensor/lib/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// dense is a reference tensor stored as a flat row-major array
type dense struct {
	shape  []uint32
	values []float64
	set    []bool
}

func newDense(shape []uint32) *dense {
	n := VolumeOf(shape)
	return &dense{shape: shape, values: make([]float64, n), set: make([]bool, n)}
}

func (d *dense) index(coords []uint32) int {
	idx := 0
	for mode, c := range coords {
		idx = idx*int(d.shape[mode]) + int(c)
	}
	return idx
}

// each calls fn for every coordinate of the shape in row-major order
func (d *dense) each(fn func(coords []uint32)) {
	coords := make([]uint32, len(d.shape))
	for i := 0; i < len(d.values); i++ {
		rest := i
		for mode := len(d.shape) - 1; mode >= 0; mode-- {
			coords[mode] = uint32(rest % int(d.shape[mode]))
			rest /= int(d.shape[mode])
		}
		fn(coords)
	}
}

// randomPair fills a sparse tensor and its dense reference with the same random entries
func randomPair(t *testing.T, shape []uint32, density float64, opts *Options, rng *rand.Rand) (*Tensor, *dense) {
	x, err := New(shape, opts)
	require.NoError(t, err)
	d := newDense(shape)

	d.each(func(coords []uint32) {
		if rng.Float64() < density {
			value := float64(rng.Intn(50) + 1)
			require.NoError(t, x.Set(coords, storage.Value(value)))
			d.values[d.index(coords)] = value
			d.set[d.index(coords)] = true
		}
	})
	return x, d
}

func requireMatchesDense(t *testing.T, want *dense, got *Tensor) {
	t.Helper()
	require.Equal(t, want.shape, got.Shape())

	stored := 0
	want.each(func(coords []uint32) {
		idx := want.index(coords)
		value, found := got.Lookup(coords)
		require.Equal(t, want.set[idx], found, "presence of %v", coords)
		require.InDelta(t, want.values[idx], float64(value), 1e-3, "value of %v", coords)
		if found {
			stored++
		}
	})
	require.Equal(t, stored, got.Len())
}

func TestTrace(t *testing.T) {
	for name, opts := range backendOptions(64) {
		t.Run(name, func(t *testing.T) {
			rng := rand.New(rand.NewSource(11))
			x, d := randomPair(t, []uint32{4, 3, 4}, 0.3, opts, rng)

			want := newDense([]uint32{3})
			d.each(func(coords []uint32) {
				if coords[0] == coords[2] && d.set[d.index(coords)] {
					idx := want.index([]uint32{coords[1]})
					want.values[idx] += d.values[d.index(coords)]
					want.set[idx] = true
				}
			})

			got, err := Trace(x, 0, 2, opts)
			require.NoError(t, err)
			requireMatchesDense(t, want, got)

			// argument order does not matter
			swapped, err := Trace(x, 2, 0, opts)
			require.NoError(t, err)
			requireMatchesDense(t, want, swapped)
		})
	}
}

func TestTraceToScalar(t *testing.T) {
	x, err := New([]uint32{3, 3}, nil)
	require.NoError(t, err)
	for i := uint32(0); i < 3; i++ {
		require.NoError(t, x.Set([]uint32{i, i}, storage.Value(i+1)))
	}
	require.NoError(t, x.Set([]uint32{0, 2}, 100))

	c, err := Trace(x, 0, 1, &Options{Backend: storage.ImplHashTable})
	require.NoError(t, err)
	assert.Equal(t, 0, c.Rank())
	assert.Equal(t, 1, c.Len())
	assert.Equal(t, storage.Value(6), c.Get(nil))
}

func TestTraceErrors(t *testing.T) {
	x, err := New([]uint32{3, 4, 3}, nil)
	require.NoError(t, err)

	for _, modes := range [][2]int{{0, 0}, {0, 3}, {-1, 1}, {0, 1}} {
		_, err := Trace(x, modes[0], modes[1], nil)
		assert.True(t, errors.Is(err, ErrIncompatibleModes), "modes %v: %v", modes, err)
	}
}

func TestContract(t *testing.T) {
	for name, opts := range backendOptions(64) {
		t.Run(name, func(t *testing.T) {
			rng := rand.New(rand.NewSource(5))
			x, dx := randomPair(t, []uint32{3, 4, 5}, 0.4, opts, rng)
			y, dy := randomPair(t, []uint32{5, 2}, 0.5, opts, rng)

			want := newDense([]uint32{3, 4, 2})
			want.each(func(coords []uint32) {
				idx := want.index(coords)
				for k := uint32(0); k < 5; k++ {
					xi := dx.index([]uint32{coords[0], coords[1], k})
					yi := dy.index([]uint32{k, coords[2]})
					if dx.set[xi] && dy.set[yi] {
						want.values[idx] += dx.values[xi] * dy.values[yi]
						want.set[idx] = true
					}
				}
			})

			got, err := Contract(x, y, 2, 0, opts)
			require.NoError(t, err)
			requireMatchesDense(t, want, got)
		})
	}
}

func TestContractMatrixProduct(t *testing.T) {
	// [1 2]   [5 6]   [19 22]
	// [3 4] x [7 8] = [43 50]
	a, err := New([]uint32{2, 2}, nil)
	require.NoError(t, err)
	b, err := New([]uint32{2, 2}, nil)
	require.NoError(t, err)
	for i, v := range []storage.Value{1, 2, 3, 4} {
		require.NoError(t, a.Set([]uint32{uint32(i / 2), uint32(i % 2)}, v))
	}
	for i, v := range []storage.Value{5, 6, 7, 8} {
		require.NoError(t, b.Set([]uint32{uint32(i / 2), uint32(i % 2)}, v))
	}

	c, err := Contract(a, b, 1, 0, &Options{Backend: storage.ImplHashTable})
	require.NoError(t, err)
	assert.Equal(t, storage.Value(19), c.Get([]uint32{0, 0}))
	assert.Equal(t, storage.Value(22), c.Get([]uint32{0, 1}))
	assert.Equal(t, storage.Value(43), c.Get([]uint32{1, 0}))
	assert.Equal(t, storage.Value(50), c.Get([]uint32{1, 1}))

	// self contraction of a over mode 0 with mode 1: C[j, i] = sum_k a[k, j] * a[i, k]
	s, err := Contract(a, a, 0, 1, nil)
	require.NoError(t, err)
	assert.Equal(t, storage.Value(1*1+3*2), s.Get([]uint32{0, 0}))
	assert.Equal(t, storage.Value(1*3+3*4), s.Get([]uint32{0, 1}))
	assert.Equal(t, storage.Value(2*1+4*2), s.Get([]uint32{1, 0}))
	assert.Equal(t, storage.Value(2*3+4*4), s.Get([]uint32{1, 1}))
}

func TestContractSparseResult(t *testing.T) {
	a, err := New([]uint32{100, 100}, nil)
	require.NoError(t, err)
	b, err := New([]uint32{100, 100}, nil)
	require.NoError(t, err)
	require.NoError(t, a.Set([]uint32{1, 7}, 2))
	require.NoError(t, b.Set([]uint32{7, 3}, 4))
	require.NoError(t, b.Set([]uint32{8, 3}, 4)) // no partner in a

	c, err := Contract(a, b, 1, 0, &Options{Backend: storage.ImplHashTable})
	require.NoError(t, err)
	assert.Equal(t, 1, c.Len())
	assert.Equal(t, storage.Value(8), c.Get([]uint32{1, 3}))

	// the hash table was sized by the number of contributions, not by the volume
	assert.Less(t, c.Info().SizeBytes, 1024)
}

func TestContractErrors(t *testing.T) {
	a, err := New([]uint32{2, 3, 4, 5}, nil)
	require.NoError(t, err)
	b, err := New([]uint32{3, 2, 2, 2}, nil)
	require.NoError(t, err)

	_, err = Contract(a, b, 0, 0, nil)
	assert.True(t, errors.Is(err, ErrIncompatibleModes), err)
	_, err = Contract(a, b, 4, 0, nil)
	assert.True(t, errors.Is(err, ErrIncompatibleModes), err)

	// rank 3 + rank 3 exceeds the maximum rank
	_, err = Contract(a, b, 1, 0, nil)
	assert.True(t, errors.Is(err, ErrInvalidShape), err)
}

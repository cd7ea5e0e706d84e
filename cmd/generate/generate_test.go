package generate

import (
	"math/rand/v2"
	"testing"

	"github.com/ValentinKolb/sTensor/lib/storage"
	"github.com/ValentinKolb/sTensor/lib/tensor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRandom(t *testing.T) {
	for _, backend := range []storage.Implementation{storage.ImplBPTree, storage.ImplHashTable} {
		t.Run(string(backend), func(t *testing.T) {
			rng := rand.New(rand.NewPCG(1, 2))
			x, err := Random([]uint32{20, 30}, 0.1, rng, &tensor.Options{Backend: backend})
			require.NoError(t, err)

			assert.Equal(t, []uint32{20, 30}, x.Shape())
			assert.LessOrEqual(t, x.Len(), 60)
			assert.Greater(t, x.Len(), 40, "only duplicate draws may be lost")
			for _, value := range x.All() {
				assert.GreaterOrEqual(t, value, storage.Value(1))
				assert.LessOrEqual(t, value, storage.Value(50))
			}
		})
	}
}

func TestRandomDeterministic(t *testing.T) {
	a, err := Random([]uint32{8, 8, 8}, 0.2, rand.New(rand.NewPCG(7, 7)), &tensor.Options{})
	require.NoError(t, err)
	b, err := Random([]uint32{8, 8, 8}, 0.2, rand.New(rand.NewPCG(7, 7)), &tensor.Options{})
	require.NoError(t, err)

	require.Equal(t, a.Len(), b.Len())
	for coords, value := range a.All() {
		assert.Equal(t, value, b.Get(coords))
	}
}

func TestRandomErrors(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 1))

	_, err := Random([]uint32{4, 0}, 0.5, rng, &tensor.Options{})
	assert.ErrorIs(t, err, tensor.ErrInvalidShape)

	_, err = Random([]uint32{65536, 65536, 65536}, 1, rng, &tensor.Options{})
	assert.Error(t, err)

	empty, err := Random([]uint32{10}, 0, rng, &tensor.Options{Backend: storage.ImplHashTable})
	require.NoError(t, err)
	assert.Equal(t, 0, empty.Len())
}

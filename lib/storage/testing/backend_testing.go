package testing

import (
	"errors"
	"math/rand"
	"sort"
	"testing"

	"github.com/ValentinKolb/sTensor/lib/storage"
)

// RunBackendTests runs a comprehensive test suite for a storage.Backend implementation.
func RunBackendTests(t *testing.T, name string, factory storage.Factory) {
	t.Run(name, func(t *testing.T) {
		t.Run("Upsert&Lookup", func(t *testing.T) {
			testUpsertLookup(t, newBackend(t, factory, 16))
		})

		t.Run("UpsertIdempotence", func(t *testing.T) {
			testUpsertIdempotence(t, newBackend(t, factory, 16))
		})

		t.Run("ZeroValue", func(t *testing.T) {
			testZeroValue(t, newBackend(t, factory, 16))
		})

		t.Run("Absence", func(t *testing.T) {
			testAbsence(t, newBackend(t, factory, 64))
		})

		t.Run("EmptyIteration", func(t *testing.T) {
			testEmptyIteration(t, newBackend(t, factory, 1))
		})

		t.Run("Iteration", func(t *testing.T) {
			testIteration(t, newBackend(t, factory, 1000))
		})

		t.Run("IteratorEarlyClose", func(t *testing.T) {
			testIteratorEarlyClose(t, newBackend(t, factory, 100))
		})

		t.Run("IteratorInvalidation", func(t *testing.T) {
			testIteratorInvalidation(t, newBackend(t, factory, 100))
		})

		t.Run("CapacityExhaustion", func(t *testing.T) {
			testCapacityExhaustion(t, newBackend(t, factory, 8))
		})

		t.Run("Info", func(t *testing.T) {
			testInfo(t, newBackend(t, factory, 100))
		})

		t.Run("RealisticUsage", func(t *testing.T) {
			testRealisticUsage(t, newBackend(t, factory, 5000))
		})
	})
}

// --------------------------------------------------------------------------
// Helper functions
// --------------------------------------------------------------------------

// newBackend creates a backend or fails the test
func newBackend(t testing.TB, factory storage.Factory, capacityHint int) storage.Backend {
	backend, err := factory(capacityHint)
	if err != nil {
		t.Fatalf("Failed to create backend: %v", err)
	}
	return backend
}

// Checks if the backend supports the specified feature
// Skip the test if it is not supported
func requireFeature(t testing.TB, backend storage.Backend, feature storage.Feature) {
	if !backend.SupportsFeature(feature) {
		t.Skip()
	}
}

// collect drains a fresh iterator into a slice of keys and a map of values
func collect(t testing.TB, backend storage.Backend) ([]storage.Key, map[storage.Key]storage.Value) {
	it := backend.Iter()
	defer it.Close()

	var keys []storage.Key
	values := make(map[storage.Key]storage.Value)
	for {
		key, value, ok := it.Next()
		if !ok {
			break
		}
		if _, dup := values[key]; dup {
			t.Errorf("Iterator yielded key %d more than once", key)
		}
		keys = append(keys, key)
		values[key] = value
	}
	if err := it.Err(); err != nil {
		t.Errorf("Unexpected iterator error: %v", err)
	}
	return keys, values
}

// --------------------------------------------------------------------------
// Test functions
// --------------------------------------------------------------------------

func testUpsertLookup(t *testing.T, backend storage.Backend) {
	defer backend.Close()

	requireFeature(t, backend, storage.FeatureUpsert|storage.FeatureLookup)

	var testKey storage.Key = 0x0001_0002_0003
	created, err := backend.Upsert(testKey, 1.5)
	if err != nil {
		t.Fatalf("Unexpected error on Upsert: %v", err)
	}
	if !created {
		t.Errorf("Expected first Upsert of key %d to create it", testKey)
	}

	value, found := backend.Lookup(testKey)
	if !found {
		t.Errorf("Expected key %d to exist after Upsert", testKey)
	}
	if value != 1.5 {
		t.Errorf("Expected value %v, got %v", 1.5, value)
	}

	created, err = backend.Upsert(testKey, 2.5)
	if err != nil {
		t.Fatalf("Unexpected error on overwrite: %v", err)
	}
	if created {
		t.Errorf("Expected overwrite of key %d not to create a new entry", testKey)
	}

	value, _ = backend.Lookup(testKey)
	if value != 2.5 {
		t.Errorf("Expected overwritten value %v, got %v", 2.5, value)
	}

	if backend.Len() != 1 {
		t.Errorf("Expected 1 entry after overwrite, got %d", backend.Len())
	}

	value, found = backend.Lookup(testKey + 1)
	if found || value != 0 {
		t.Errorf("Expected nonexistent key to return (0, false), got (%v, %v)", value, found)
	}
}

func testUpsertIdempotence(t *testing.T, backend storage.Backend) {
	defer backend.Close()

	requireFeature(t, backend, storage.FeatureUpsert|storage.FeatureLookup)

	for i := 0; i < 3; i++ {
		if _, err := backend.Upsert(99, 4.25); err != nil {
			t.Fatalf("Unexpected error on Upsert: %v", err)
		}
		if backend.Len() != 1 {
			t.Errorf("Expected 1 entry after %d identical upserts, got %d", i+1, backend.Len())
		}
		if value, _ := backend.Lookup(99); value != 4.25 {
			t.Errorf("Expected value %v, got %v", 4.25, value)
		}
	}
}

func testZeroValue(t *testing.T, backend storage.Backend) {
	defer backend.Close()

	requireFeature(t, backend, storage.FeatureUpsert|storage.FeatureLookup)

	created, err := backend.Upsert(7, 0)
	if err != nil {
		t.Fatalf("Unexpected error on Upsert: %v", err)
	}
	if !created {
		t.Errorf("Expected an explicit zero to be stored as an entry")
	}

	value, found := backend.Lookup(7)
	if !found || value != 0 {
		t.Errorf("Expected stored zero to be found, got (%v, %v)", value, found)
	}
	if backend.Len() != 1 {
		t.Errorf("Expected 1 entry, got %d", backend.Len())
	}
}

func testAbsence(t *testing.T, backend storage.Backend) {
	defer backend.Close()

	requireFeature(t, backend, storage.FeatureUpsert|storage.FeatureLookup)

	// multiples of 1024 share their home slot for every power of two capacity up to 1024
	for i := storage.Key(0); i < 8; i++ {
		if _, err := backend.Upsert(i*1024, storage.Value(i+1)); err != nil {
			t.Fatalf("Unexpected error on Upsert: %v", err)
		}
	}

	for i := storage.Key(8); i < 16; i++ {
		if value, found := backend.Lookup(i * 1024); found || value != 0 {
			t.Errorf("Expected colliding key %d to be absent, got (%v, %v)", i*1024, value, found)
		}
	}
	for i := storage.Key(0); i < 8; i++ {
		if value, found := backend.Lookup(i*1024 + 1); found || value != 0 {
			t.Errorf("Expected neighbor key %d to be absent, got (%v, %v)", i*1024+1, value, found)
		}
		if value, _ := backend.Lookup(i * 1024); value != storage.Value(i+1) {
			t.Errorf("Expected key %d to hold %v, got %v", i*1024, i+1, value)
		}
	}
}

func testEmptyIteration(t *testing.T, backend storage.Backend) {
	defer backend.Close()

	requireFeature(t, backend, storage.FeatureIterate)

	keys, _ := collect(t, backend)
	if len(keys) != 0 {
		t.Errorf("Expected empty backend to yield no entries, got %d", len(keys))
	}
}

func testIteration(t *testing.T, backend storage.Backend) {
	defer backend.Close()

	requireFeature(t, backend, storage.FeatureUpsert|storage.FeatureIterate)

	rng := rand.New(rand.NewSource(1))
	expected := make(map[storage.Key]storage.Value)
	for len(expected) < 1000 {
		key := storage.Key(rng.Int63n(1 << 48))
		value := storage.Value(rng.Intn(50) + 1)
		if _, err := backend.Upsert(key, value); err != nil {
			t.Fatalf("Unexpected error on Upsert: %v", err)
		}
		expected[key] = value
	}

	keys, values := collect(t, backend)
	if len(keys) != len(expected) {
		t.Errorf("Expected %d entries, iterator yielded %d", len(expected), len(keys))
	}
	for key, value := range expected {
		if got, ok := values[key]; !ok {
			t.Errorf("Iterator omitted key %d", key)
		} else if got != value {
			t.Errorf("Expected key %d to hold %v, iterator yielded %v", key, value, got)
		}
	}

	if backend.SupportsFeature(storage.FeatureOrderedIteration) {
		for i := 1; i < len(keys); i++ {
			if keys[i-1] >= keys[i] {
				t.Fatalf("Expected strictly ascending keys, got %d before %d at position %d", keys[i-1], keys[i], i)
			}
		}
	}
}

func testIteratorEarlyClose(t *testing.T, backend storage.Backend) {
	defer backend.Close()

	requireFeature(t, backend, storage.FeatureUpsert|storage.FeatureIterate)

	for i := storage.Key(0); i < 50; i++ {
		if _, err := backend.Upsert(i, 1); err != nil {
			t.Fatalf("Unexpected error on Upsert: %v", err)
		}
	}

	it := backend.Iter()
	for i := 0; i < 10; i++ {
		if _, _, ok := it.Next(); !ok {
			t.Fatalf("Expected entry %d before close", i)
		}
	}
	it.Close()
	it.Close() // closing twice is allowed

	if _, _, ok := it.Next(); ok {
		t.Errorf("Expected closed iterator to yield nothing")
	}
	if err := it.Err(); err != nil {
		t.Errorf("Expected no error after close, got %v", err)
	}
}

func testIteratorInvalidation(t *testing.T, backend storage.Backend) {
	defer backend.Close()

	requireFeature(t, backend, storage.FeatureUpsert|storage.FeatureIterate)

	for i := storage.Key(0); i < 20; i++ {
		if _, err := backend.Upsert(i, 1); err != nil {
			t.Fatalf("Unexpected error on Upsert: %v", err)
		}
	}

	// overwriting existing keys keeps the iterator valid
	it := backend.Iter()
	defer it.Close()
	count := 0
	for {
		key, value, ok := it.Next()
		if !ok {
			break
		}
		if _, err := backend.Upsert(key, value*2); err != nil {
			t.Fatalf("Unexpected error on overwrite: %v", err)
		}
		count++
	}
	if it.Err() != nil || count != 20 {
		t.Errorf("Expected 20 entries without error while overwriting, got %d (%v)", count, it.Err())
	}

	// creating a new key invalidates it
	it2 := backend.Iter()
	defer it2.Close()
	if _, _, ok := it2.Next(); !ok {
		t.Fatalf("Expected an entry")
	}
	if _, err := backend.Upsert(1000, 1); err != nil {
		t.Fatalf("Unexpected error on Upsert: %v", err)
	}
	if _, _, ok := it2.Next(); ok {
		t.Errorf("Expected invalidated iterator to stop")
	}
	if !errors.Is(it2.Err(), storage.ErrIteratorInvalidated) {
		t.Errorf("Expected ErrIteratorInvalidated, got %v", it2.Err())
	}
}

func testCapacityExhaustion(t *testing.T, backend storage.Backend) {
	defer backend.Close()

	requireFeature(t, backend, storage.FeatureUpsert|storage.FeatureLookup|storage.FeatureFixedCapacity)

	const limit = 1 << 20

	var (
		failedKey storage.Key
		failed    bool
	)
	for i := storage.Key(0); i < limit; i++ {
		key := i*7 + 3
		_, err := backend.Upsert(key, storage.Value(i))
		if err != nil {
			if !errors.Is(err, storage.ErrCapacityExhausted) {
				t.Fatalf("Expected ErrCapacityExhausted, got %v", err)
			}
			failedKey = key
			failed = true
			break
		}
	}
	if !failed {
		t.Fatalf("Expected a fixed capacity backend to fail within %d inserts", limit)
	}

	stored := backend.Len()
	for i := 0; i < stored; i++ {
		key := storage.Key(i)*7 + 3
		value, found := backend.Lookup(key)
		if !found || value != storage.Value(i) {
			t.Errorf("Expected key %d to keep value %d after overflow, got (%v, %v)", key, i, value, found)
		}
	}

	// retrying fails deterministically and leaves the backend unchanged
	if _, err := backend.Upsert(failedKey, 1); !errors.Is(err, storage.ErrCapacityExhausted) {
		t.Errorf("Expected retry to fail again, got %v", err)
	}
	if backend.Len() != stored {
		t.Errorf("Expected %d entries after failed upserts, got %d", stored, backend.Len())
	}
	if _, found := backend.Lookup(failedKey); found {
		t.Errorf("Expected rejected key %d to be absent", failedKey)
	}

	// overwriting an existing key still works on a full table
	if created, err := backend.Upsert(3, 42); err != nil || created {
		t.Errorf("Expected overwrite on a full backend to succeed, got (%v, %v)", created, err)
	}
}

func testInfo(t *testing.T, backend storage.Backend) {
	defer backend.Close()

	for i := storage.Key(0); i < 50; i++ {
		if _, err := backend.Upsert(i*i, 1); err != nil {
			t.Fatalf("Unexpected error on Upsert: %v", err)
		}
	}

	info := backend.GetInfo()
	if info.Entries != backend.Len() {
		t.Errorf("Expected info to report %d entries, got %d", backend.Len(), info.Entries)
	}
	if info.Impl == "" {
		t.Errorf("Expected info to name the implementation")
	}
	if info.SizeBytes <= 0 {
		t.Errorf("Expected a positive size estimate, got %d", info.SizeBytes)
	}
	for _, feature := range info.SupportedFeatures {
		if !backend.SupportsFeature(feature) {
			t.Errorf("Info lists feature %s that SupportsFeature denies", feature)
		}
	}
}

func testRealisticUsage(t *testing.T, backend storage.Backend) {
	defer backend.Close()

	requireFeature(t, backend, storage.FeatureUpsert|storage.FeatureLookup|storage.FeatureIterate)

	rng := rand.New(rand.NewSource(42))
	reference := make(map[storage.Key]storage.Value)

	// a small key space forces plenty of overwrites
	for i := 0; i < 20000; i++ {
		key := storage.Key(rng.Intn(4000)) << 16
		value := storage.Value(rng.Intn(1000))
		created, err := backend.Upsert(key, value)
		if err != nil {
			t.Fatalf("Unexpected error on Upsert %d: %v", i, err)
		}
		_, existed := reference[key]
		if created == existed {
			t.Fatalf("Upsert %d of key %d reported created=%v, but key existed=%v", i, key, created, existed)
		}
		reference[key] = value

		if i%97 == 0 {
			probe := storage.Key(rng.Intn(4000)) << 16
			want, ok := reference[probe]
			got, found := backend.Lookup(probe)
			if found != ok || got != want {
				t.Fatalf("Lookup of key %d returned (%v, %v), expected (%v, %v)", probe, got, found, want, ok)
			}
		}
	}

	if backend.Len() != len(reference) {
		t.Errorf("Expected %d entries, got %d", len(reference), backend.Len())
	}

	keys, values := collect(t, backend)
	if len(keys) != len(reference) {
		t.Errorf("Expected iteration to yield %d entries, got %d", len(reference), len(keys))
	}
	for key, want := range reference {
		if values[key] != want {
			t.Errorf("Expected key %d to hold %v, got %v", key, want, values[key])
		}
	}

	if backend.SupportsFeature(storage.FeatureOrderedIteration) {
		if !sort.SliceIsSorted(keys, func(i, j int) bool { return keys[i] < keys[j] }) {
			t.Errorf("Expected ordered iteration")
		}
	}
}

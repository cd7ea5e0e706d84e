package testing

import (
	"math/rand"
	"testing"

	"github.com/ValentinKolb/sTensor/lib/storage"
)

// RunBackendBenchmarks runs all benchmarks for a storage backend implementation
func RunBackendBenchmarks(b *testing.B, name string, factory storage.Factory) {

	b.Run("UpsertSequential", func(b *testing.B) {
		benchmarkUpsertSequential(b, factory)
	})

	b.Run("UpsertRandom", func(b *testing.B) {
		benchmarkUpsertRandom(b, factory)
	})

	b.Run("UpsertExisting", func(b *testing.B) {
		benchmarkUpsertExisting(b, factory)
	})

	b.Run("Lookup", func(b *testing.B) {
		benchmarkLookup(b, factory)
	})

	b.Run("Lookup(not)", func(b *testing.B) {
		benchmarkLookupMissing(b, factory)
	})

	b.Run("Iterate", func(b *testing.B) {
		benchmarkIterate(b, factory)
	})
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

// fill creates a backend holding n random keys and returns the keys
func fill(b *testing.B, factory storage.Factory, n int) (storage.Backend, []storage.Key) {
	backend := newBackend(b, factory, n)
	rng := rand.New(rand.NewSource(7))
	keys := make([]storage.Key, 0, n)
	for len(keys) < n {
		key := storage.Key(rng.Int63n(1 << 48))
		created, err := backend.Upsert(key, 1)
		if err != nil {
			b.Fatalf("Failed to prepare backend: %v", err)
		}
		if created {
			keys = append(keys, key)
		}
	}
	return backend, keys
}

// --------------------------------------------------------------------------
// Benchmark functions
// --------------------------------------------------------------------------

// Benchmark for Upsert with ascending keys, the worst case for right-heavy trees
func benchmarkUpsertSequential(b *testing.B, factory storage.Factory) {
	backend := newBackend(b, factory, b.N)
	b.Cleanup(func() {
		backend.Close()
	})

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := backend.Upsert(storage.Key(i), 1); err != nil {
			b.Fatalf("Upsert failed: %v", err)
		}
	}
}

// Benchmark for Upsert with random keys
func benchmarkUpsertRandom(b *testing.B, factory storage.Factory) {
	backend := newBackend(b, factory, b.N)
	b.Cleanup(func() {
		backend.Close()
	})

	rng := rand.New(rand.NewSource(1))
	keys := make([]storage.Key, b.N)
	for i := range keys {
		keys[i] = storage.Key(rng.Int63n(1 << 48))
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := backend.Upsert(keys[i], 1); err != nil {
			b.Fatalf("Upsert failed: %v", err)
		}
	}
}

// Benchmark for Upsert overwriting existing keys
func benchmarkUpsertExisting(b *testing.B, factory storage.Factory) {
	backend, keys := fill(b, factory, 10000)
	b.Cleanup(func() {
		backend.Close()
	})

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := backend.Upsert(keys[i%len(keys)], storage.Value(i)); err != nil {
			b.Fatalf("Upsert failed: %v", err)
		}
	}
}

// Benchmark for Lookup of existing keys
func benchmarkLookup(b *testing.B, factory storage.Factory) {
	backend, keys := fill(b, factory, 10000)
	b.Cleanup(func() {
		backend.Close()
	})

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		backend.Lookup(keys[i%len(keys)])
	}
}

// Benchmark for Lookup of absent keys
func benchmarkLookupMissing(b *testing.B, factory storage.Factory) {
	backend, _ := fill(b, factory, 10000)
	b.Cleanup(func() {
		backend.Close()
	})

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		// keys of fill are below 1<<48
		backend.Lookup(storage.Key(i) | 1<<50)
	}
}

// Benchmark for a full iteration
func benchmarkIterate(b *testing.B, factory storage.Factory) {
	backend, _ := fill(b, factory, 10000)
	b.Cleanup(func() {
		backend.Close()
	})

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		it := backend.Iter()
		for {
			if _, _, ok := it.Next(); !ok {
				break
			}
		}
		it.Close()
	}
}

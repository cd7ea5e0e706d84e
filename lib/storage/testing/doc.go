// Package testing provides standardised tests and benchmarks for
// storage engines that satisfy the storage.Backend interface.
//
// The package contains:
//   - testing: A conformance suite for the Backend contract (upsert semantics, absence,
//     iteration order and completeness, iterator invalidation, capacity exhaustion)
//   - benchmark: Performance tests for upserts, lookups and iteration
//
// Tests for optional guarantees are skipped when the backend does not advertise the
// corresponding storage.Feature.
//
// Example usage:
//
//	// Running the standard test suite
//	storagetesting.RunBackendTests(t, "MyBackend", myengine.NewFactory(nil))
//
//	// Running performance benchmarks
//	storagetesting.RunBackendBenchmarks(b, "MyBackend", myengine.NewFactory(nil))
package testing

// Package storage provides the standardized interface for the key-value backends
// a sparse tensor stores its non-zero entries in.
//
// Keys are packed coordinates (see the tensor package), values are float32.
// A key that is not present in a backend implicitly holds zero.
//
// Key Components:
//
//   - Backend Interface: The contract every engine must satisfy: Upsert, Lookup,
//     Len, Iter, feature discovery (SupportsFeature), metadata (GetInfo) and Close.
//
//   - Iterator Interface: A forward-only cursor created by Iter, advanced by Next
//     and released by Close. Iterators are invalidated by any later write to their
//     backend and then report ErrIteratorInvalidated.
//
//   - Feature Flags: Engines advertise optional guarantees, most importantly
//     FeatureOrderedIteration (ascending key order) and FeatureFixedCapacity
//     (Upsert may fail with ErrCapacityExhausted).
//
// Related Packages:
//
// The engines/bptree package provides an order-k B+ tree that grows by splitting
// and iterates in ascending key order.
//
// The engines/hashtable package provides a fixed capacity open-addressing hash table
// with linear probing.
//
// The testing package provides a conformance suite (RunBackendTests) and
// benchmarks (RunBackendBenchmarks) every engine runs.
//
// The util package provides operation counters used to compare the engines and
// small statistics helpers used by GetInfo.
package storage

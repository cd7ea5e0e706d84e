// Package util provides utility components for
// storage backends that satisfy the storage.Backend interface.
//
// The package contains:
//   - counters: Operation counters (memory transactions, additions, multiplications,
//     comparisons) passed explicitly to backends and exportable as prometheus metrics
//   - statistics: Summary statistics and a bucketed histogram used by GetInfo
//
// This package is particularly useful for:
//   - Comparing backends independent of the hardware (see the bench command)
//   - Monitoring the internal shape of a backend (tree fill, probe lengths)
package util

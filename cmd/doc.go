// Package cmd implements the command-line interface of sTensor. It provides a
// hierarchical command structure to inspect, convert, generate and combine sparse
// tensor files and to compare the storage engines.
//
// The package is organized into several subpackages:
//
//   - inspect: Commands working on a single tensor file (info, print, convert)
//   - algebra: Trace and contraction of tensor files
//   - generate: Random sparse tensor generator
//   - bench: Side by side comparison of the B+ tree and the hash table
//   - util: Shared utilities for command-line processing and configuration (internal use)
//
// See stensor -help for a list of all commands.
package cmd

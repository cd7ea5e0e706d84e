// Package tensor implements sparse tensors on top of the storage backends.
// A tensor has a fixed shape of up to MaxRank modes, every coordinate that is
// not stored implicitly holds zero.
//
// Key Components:
//
//   - Coordinate Codec: Encode packs a coordinate vector into one storage.Key with
//     FieldWidth bits per mode, the first mode being the most significant field.
//     Ascending keys therefore enumerate coordinates in lexicographic order.
//     Decode is the inverse.
//
//   - Tensor: Owns the shape and exactly one backend. Set and Get validate
//     coordinates against the shape before they are encoded. The backend is chosen
//     with Options (B+ tree or hash table), the hash table is sized by
//     Options.Capacity.
//
//   - Iterator: Yields (coordinate, value) pairs, decoding keys into one reused
//     coordinate buffer. All wraps it as a range-over-func sequence.
//
//   - I/O: ReadCOO and WriteCOO handle the coordinate list text format,
//     Save and Load a compact little endian binary snapshot.
//
//   - Algebra: Trace and Contract work only through Iter, Get and Set, so they
//     run unchanged on every backend.
//
// Thread-safety: A Tensor is not safe for concurrent use. Different tensors may be
// used from different goroutines as long as they do not share util.Counters.
package tensor

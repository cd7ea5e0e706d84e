// Package hashtable provides a fixed capacity open-addressing hash table
// implementation of the storage.Backend interface.
//
// The table is sized once at creation: capacity = expected entries * Overprovision,
// rounded up. Keys are already well distributed packed coordinates, so the home slot
// of a key is simply key mod capacity. Collisions are resolved by linear probing with
// wrap-around; Upsert and Lookup follow the identical probe sequence, so a lookup can
// stop at the first free slot.
//
// There is no deletion and no resizing. When the probe sequence of a new key returns
// to its home slot the table is full and Upsert fails with storage.ErrCapacityExhausted
// without modifying the table. Callers should treat this as a configuration error
// (the overprovision factor or the capacity hint was too small) rather than retry.
//
// Iteration scans the backing array in slot order, so entries are not ordered by key.
//
// The table is not safe for concurrent use.
package hashtable

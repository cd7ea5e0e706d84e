package hashtable

import (
	"fmt"
	"math"

	"github.com/ValentinKolb/sTensor/lib/storage"
	"github.com/ValentinKolb/sTensor/lib/storage/util"
	"github.com/lni/dragonboat/v4/logger"
)

var plog = logger.GetLogger("hashtable")

// --------------------------------------------------------------------------
// Constants
// --------------------------------------------------------------------------

const (
	defaultOverprovision = 2.0 // Default ratio of slots to expected entries
	entrySize            = 24  // valid flag + key + value, padded
)

// --------------------------------------------------------------------------
// Core hash table structure
// --------------------------------------------------------------------------

// entry is one slot of the table. A slot is used once valid is set and never
// changes its key afterwards.
type entry struct {
	valid bool
	key   storage.Key
	value storage.Value
}

// hashtableImpl is a fixed capacity open-addressing table with linear probing
type hashtableImpl struct {
	table    []entry
	entries  int
	modCount uint64
	counters *util.Counters
}

// Options configures the hash table behavior during initialization
type Options struct {
	Overprovision float64        // Slots per expected entry, must be > 1 (0 = use default: 2.0)
	Counters      *util.Counters // Operation counters (nil = no counting)
}

// DefaultOptions returns the default hash table options
func DefaultOptions() *Options {
	return &Options{
		Overprovision: defaultOverprovision,
	}
}

// --------------------------------------------------------------------------
// Initialization and Setup
// --------------------------------------------------------------------------

// NewHashTable creates a table for expectedEntries entries with the specified options (optional).
// The capacity is expectedEntries * Overprovision rounded up, at least one slot.
func NewHashTable(expectedEntries int, opts *Options) (storage.Backend, error) {
	if opts == nil {
		opts = DefaultOptions()
	}

	factor := opts.Overprovision
	if factor == 0 {
		factor = defaultOverprovision
	}
	if factor <= 1 || math.IsNaN(factor) || math.IsInf(factor, 0) {
		return nil, fmt.Errorf("hashtable: invalid overprovision factor %v: must be greater than 1", factor)
	}
	if expectedEntries < 0 {
		return nil, fmt.Errorf("hashtable: invalid expected entry count %d", expectedEntries)
	}

	capacity := int(math.Ceil(float64(expectedEntries) * factor))
	if capacity < 1 {
		capacity = 1
	}

	return &hashtableImpl{
		table:    make([]entry, capacity),
		counters: opts.Counters,
	}, nil
}

// NewFactory returns a storage.Factory creating hash tables sized by the capacity hint
func NewFactory(opts *Options) storage.Factory {
	return func(capacityHint int) (storage.Backend, error) {
		var o Options
		if opts != nil {
			o = *opts
		}
		return NewHashTable(capacityHint, &o)
	}
}

// --------------------------------------------------------------------------
// Backend Interface Methods - Write Operations
// --------------------------------------------------------------------------

// Upsert inserts key or overwrites its value.
// If the probe sequence wraps around to its start without finding the key or a
// free slot, storage.ErrCapacityExhausted is returned and the table is unchanged.
func (ht *hashtableImpl) Upsert(key storage.Key, value storage.Value) (bool, error) {
	capacity := uint64(len(ht.table))

	ht.counters.Mul(1) // counting hash as MUL
	start := key % capacity
	i := start

	ht.counters.Mem(1)
	for ht.table[i].valid {
		ht.counters.Cmp(1)
		if ht.table[i].key == key {
			// overwrite, no new entry
			ht.table[i].value = value
			ht.counters.Mem(1)
			return false, nil
		}

		// increment but loop around the end
		ht.counters.Add(1)
		i = (i + 1) % capacity

		// check if we just circled around the parking lot
		ht.counters.Cmp(1)
		if i == start {
			plog.Warningf("capacity of %d slots exhausted, rejecting key %d", capacity, key)
			return false, storage.ErrCapacityExhausted
		}
		ht.counters.Mem(1)
	}

	ht.table[i] = entry{valid: true, key: key, value: value}
	ht.entries++
	ht.modCount++
	ht.counters.Mem(1) // store new value
	return true, nil
}

// --------------------------------------------------------------------------
// Backend Interface Methods - Read Operations
// --------------------------------------------------------------------------

// Lookup retrieves the value for key with the same probe sequence Upsert uses
func (ht *hashtableImpl) Lookup(key storage.Key) (storage.Value, bool) {
	_, e := ht.probe(key)
	if e == nil {
		return 0, false
	}
	return e.value, true
}

// probe follows the probe sequence of key and returns the number of slots
// visited and the matching entry, or nil if the key is absent.
func (ht *hashtableImpl) probe(key storage.Key) (int, *entry) {
	capacity := uint64(len(ht.table))

	ht.counters.Mul(1)
	start := key % capacity
	i := start
	visited := 1

	for {
		ht.counters.Mem(1)
		e := &ht.table[i]
		if !e.valid {
			return visited, nil
		}

		ht.counters.Cmp(1)
		if e.key == key {
			return visited, e
		}

		ht.counters.Add(1)
		i = (i + 1) % capacity
		visited++

		ht.counters.Cmp(1)
		if i == start {
			return visited - 1, nil
		}
	}
}

// Len returns the number of keys in the table
func (ht *hashtableImpl) Len() int {
	return ht.entries
}

// Capacity returns the number of slots
func (ht *hashtableImpl) Capacity() int {
	return len(ht.table)
}

// Iter returns an iterator yielding all entries in slot order
func (ht *hashtableImpl) Iter() storage.Iterator {
	return &iterator{
		table:    ht,
		modCount: ht.modCount,
	}
}

// --------------------------------------------------------------------------
// Backend Interface Implementation - Features and Metadata
// --------------------------------------------------------------------------

// GetInfo returns statistics about the table including the probe length distribution.
// It probes every stored key, so it is O(capacity).
func (ht *hashtableImpl) GetInfo() storage.Info {
	probes := util.NewHistogram(8)
	for i := range ht.table {
		if ht.table[i].valid {
			// distance from the home slot, wrapping around the end
			home := int(ht.table[i].key % uint64(len(ht.table)))
			dist := (i - home + len(ht.table)) % len(ht.table)
			probes.AddSample(dist + 1)
		}
	}

	meta := &struct {
		Capacity     int                   `json:"capacity"`
		LoadFactor   float64               `json:"load_factor"`
		ProbeLengths util.HistogramSummary `json:"probe_lengths"`
	}{
		Capacity:     len(ht.table),
		LoadFactor:   float64(ht.entries) / float64(len(ht.table)),
		ProbeLengths: probes.Summary(),
	}

	return storage.Info{
		SizeBytes: entrySize * len(ht.table),
		Impl:      storage.ImplHashTable,
		Entries:   ht.entries,
		SupportedFeatures: []storage.Feature{
			storage.FeatureUpsert, storage.FeatureLookup,
			storage.FeatureIterate, storage.FeatureFixedCapacity,
		},
		Metadata: meta,
	}
}

// SupportsFeature checks if this implementation supports a specific feature
func (ht *hashtableImpl) SupportsFeature(feature storage.Feature) bool {
	supportedFeatures := storage.FeatureUpsert |
		storage.FeatureLookup |
		storage.FeatureIterate |
		storage.FeatureFixedCapacity
	return supportedFeatures&feature == feature
}

// Close releases the backing array. Open iterators are invalidated.
func (ht *hashtableImpl) Close() error {
	ht.table = make([]entry, 1)
	ht.entries = 0
	ht.modCount++
	return nil
}

// --------------------------------------------------------------------------
// Iterator
// --------------------------------------------------------------------------

// iterator scans the backing array in index order and skips free slots
type iterator struct {
	table    *hashtableImpl
	i        int
	modCount uint64
	err      error
	done     bool
}

// Next returns the entry in the next used slot
func (it *iterator) Next() (storage.Key, storage.Value, bool) {
	if it.done {
		return 0, 0, false
	}
	if it.modCount != it.table.modCount {
		it.err = storage.ErrIteratorInvalidated
		it.done = true
		return 0, 0, false
	}

	ht := it.table
	for ; it.i < len(ht.table); it.i++ {
		ht.counters.Mem(1)
		ht.counters.Cmp(1)
		if !ht.table[it.i].valid {
			continue
		}

		e := ht.table[it.i]
		ht.counters.Add(1)
		it.i++
		return e.key, e.value, true
	}

	it.done = true
	return 0, 0, false
}

// Err reports whether the iteration ended because the table was modified
func (it *iterator) Err() error {
	return it.err
}

// Close ends the iteration
func (it *iterator) Close() {
	it.done = true
}

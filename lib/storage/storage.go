package storage

import "errors"

// --------------------------------------------------------------------------
// Helper Types
// --------------------------------------------------------------------------

// Key is the packed coordinate a backend is indexed by
type Key = uint64

// Value is the numeric payload stored per key
type Value = float32

type Implementation string

const (
	ImplBPTree    Implementation = "bptree"
	ImplHashTable Implementation = "hashtable"
)

// ParseImplementation converts a user supplied name to an Implementation
func ParseImplementation(s string) (Implementation, error) {
	switch Implementation(s) {
	case ImplBPTree, ImplHashTable:
		return Implementation(s), nil
	case "bpt", "btree", "b+tree":
		return ImplBPTree, nil
	case "ht", "hash":
		return ImplHashTable, nil
	default:
		return "", errors.New("unknown storage implementation " + s + " (expected bptree or hashtable)")
	}
}

// Feature represents backend features as bit flags
type Feature uint64

const (
	FeatureUpsert           Feature = 1 << iota // Support for Upsert operations
	FeatureLookup                               // Support for Lookup operations
	FeatureIterate                              // Support for full iteration
	FeatureOrderedIteration                     // Iteration yields keys in ascending order
	FeatureFixedCapacity                        // Capacity is fixed at creation and Upsert may fail
)

func (f Feature) String() string {
	switch f {
	case FeatureUpsert:
		return "Upsert"
	case FeatureLookup:
		return "Lookup"
	case FeatureIterate:
		return "Iterate"
	case FeatureOrderedIteration:
		return "OrderedIteration"
	case FeatureFixedCapacity:
		return "FixedCapacity"
	default:
		return "Unknown"
	}
}

type Info struct {
	SizeBytes         int            `json:"size_bytes"`
	Impl              Implementation `json:"impl"`
	Entries           int            `json:"entries"`
	SupportedFeatures []Feature      `json:"supported_features"`
	Metadata          interface{}    `json:"metadata"`
}

// --------------------------------------------------------------------------
// Errors
// --------------------------------------------------------------------------

var (
	// ErrCapacityExhausted is returned by fixed capacity backends when no free slot is left.
	// Retrying with the same key fails again, the backend has to be recreated with more capacity.
	ErrCapacityExhausted = errors.New("storage: capacity exhausted")

	// ErrIteratorInvalidated is reported by an iterator whose backend was modified after the iterator was created.
	ErrIteratorInvalidated = errors.New("storage: backend modified during iteration")
)

// --------------------------------------------------------------------------
// Backend Interface
// --------------------------------------------------------------------------

// Factory creates a new empty backend. The capacityHint is the number of entries the caller expects to store.
// Backends that grow dynamically may ignore it.
type Factory func(capacityHint int) (Backend, error)

// Backend defines the interface every key-value storage engine of a tensor must implement.
// Keys are packed coordinates, absent keys implicitly hold zero.
// Implementations are not safe for concurrent use.
type Backend interface {

	// --------------------------------------------------------------------------
	// Write Operations
	// --------------------------------------------------------------------------

	// Upsert inserts or overwrites the value for key.
	// created is true only if the key was not present before.
	// On error the backend is left unchanged.
	Upsert(key Key, value Value) (created bool, err error)

	// --------------------------------------------------------------------------
	// Query Operations
	// --------------------------------------------------------------------------

	// Lookup retrieves the value for an exact key.
	// The boolean return value indicates whether the key was found, the value is 0 otherwise.
	Lookup(key Key) (value Value, found bool)

	// Len returns the number of stored keys.
	Len() int

	// Iter creates a new iterator over all entries.
	// The iterator must be closed by the caller. It is invalidated by any later Upsert.
	Iter() Iterator

	// --------------------------------------------------------------------------
	// Feature Support
	// --------------------------------------------------------------------------

	// SupportsFeature checks if the backend supports the specified feature.
	// Multiple features can be checked at once using bitwise OR (|) operator.
	SupportsFeature(feature Feature) (ok bool)

	// GetInfo returns information about the backend.
	GetInfo() (info Info)

	// Close releases the backend storage. The backend must not be used afterwards.
	Close() (err error)
}

// Iterator is a forward-only, single pass cursor over the entries of a backend.
type Iterator interface {
	// Next returns the next entry. ok is false once the iterator is exhausted, closed or invalidated.
	Next() (key Key, value Value, ok bool)

	// Err returns the reason the iteration stopped early, or nil.
	Err() error

	// Close releases the iterator state. It is safe to call Close more than once.
	Close()
}

package tensor

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/ValentinKolb/sTensor/lib/storage"
)

// --------------------------------------------------------------------------
// Binary snapshot
// --------------------------------------------------------------------------

const (
	SnapshotMagic = "STENSOR\x00" // File format identifier of binary snapshots
	formatVersion = 1             // Snapshot format version
)

// Save writes t as a binary snapshot:
//
//	magic | version u8 | rank u8 | shape u32 * rank | count u64 | (key u64, value f32) * count
//
// All numbers are little endian. Entries are written in iteration order.
func (t *Tensor) Save(w io.Writer) error {
	// Use a buffered writer for better performance
	bw := bufio.NewWriterSize(w, 1024*1024) // 1 MB buffer

	// Write file header
	if _, err := bw.WriteString(SnapshotMagic); err != nil {
		return err
	}
	if err := binary.Write(bw, binary.LittleEndian, uint8(formatVersion)); err != nil {
		return err
	}

	// Write shape
	if err := binary.Write(bw, binary.LittleEndian, uint8(len(t.shape))); err != nil {
		return err
	}
	if err := binary.Write(bw, binary.LittleEndian, t.shape); err != nil {
		return err
	}

	// Write total entry count
	if err := binary.Write(bw, binary.LittleEndian, uint64(t.entries)); err != nil {
		return err
	}

	// Write entries with their raw keys, the codec is fixed by the format version
	it := t.backend.Iter()
	defer it.Close()

	written := 0
	for {
		key, value, ok := it.Next()
		if !ok {
			break
		}
		if err := binary.Write(bw, binary.LittleEndian, key); err != nil {
			return err
		}
		if err := binary.Write(bw, binary.LittleEndian, value); err != nil {
			return err
		}
		written++
	}
	if err := it.Err(); err != nil {
		return err
	}
	if written != t.entries {
		return fmt.Errorf("snapshot wrote %d entries, expected %d", written, t.entries)
	}

	// Flush buffer to ensure all data is written
	return bw.Flush()
}

// snapshotEntry is the on-disk layout of one entry
type snapshotEntry struct {
	Key   storage.Key
	Value storage.Value
}

// maxPrealloc bounds the entry slice allocated up front from the header count
const maxPrealloc = 1 << 16

// Load reads a snapshot written by Save into a new tensor created with opts.
// The number of entries read is used as capacity hint, opts.Capacity is ignored.
func Load(r io.Reader, opts *Options) (*Tensor, error) {
	if opts == nil {
		opts = DefaultOptions()
	}

	// Use a buffered reader for better performance
	br := bufio.NewReaderSize(r, 1024*1024) // 1 MB buffer

	// Read and verify magic number
	magicBytes := make([]byte, len(SnapshotMagic))
	if _, err := io.ReadFull(br, magicBytes); err != nil {
		return nil, err
	}
	if string(magicBytes) != SnapshotMagic {
		return nil, fmt.Errorf("%w: magic number mismatch", ErrFormat)
	}

	// Read and verify version
	var version uint8
	if err := binary.Read(br, binary.LittleEndian, &version); err != nil {
		return nil, err
	}
	if version != formatVersion {
		return nil, fmt.Errorf("%w: unsupported version: %d (expected %d)", ErrFormat, version, formatVersion)
	}

	// Read shape
	var rank uint8
	if err := binary.Read(br, binary.LittleEndian, &rank); err != nil {
		return nil, err
	}
	if int(rank) > MaxRank {
		return nil, fmt.Errorf("%w: rank %d exceeds maximum rank %d", ErrFormat, rank, MaxRank)
	}
	shape := make([]uint32, rank)
	if err := binary.Read(br, binary.LittleEndian, shape); err != nil {
		return nil, err
	}

	// Read entry count
	var count uint64
	if err := binary.Read(br, binary.LittleEndian, &count); err != nil {
		return nil, err
	}
	if count > 0 && count-1 >= VolumeOf(shape) {
		return nil, fmt.Errorf("%w: %d entries do not fit shape %v", ErrFormat, count, shape)
	}
	if err := validateShape(shape); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFormat, err)
	}

	// read all entries before the backend is sized, the header count is not trusted
	entries := make([]snapshotEntry, 0, min(count, maxPrealloc))
	coords := make([]uint32, rank)
	for i := uint64(0); i < count; i++ {
		var e snapshotEntry
		if err := binary.Read(br, binary.LittleEndian, &e); err != nil {
			return nil, fmt.Errorf("%w: entry %d of %d: %v", ErrFormat, i, count, err)
		}

		// decode to validate the key against the shape
		Decode(e.Key, coords)
		if Encode(coords) != e.Key {
			return nil, fmt.Errorf("%w: entry %d: key %#x is not a valid rank %d key", ErrFormat, i, e.Key, rank)
		}
		entries = append(entries, e)
	}

	t, err := New(shape, opts.withCapacity(len(entries)))
	if err != nil {
		return nil, err
	}

	for i, e := range entries {
		Decode(e.Key, coords)
		if err := t.Set(coords, e.Value); err != nil {
			t.Close()
			return nil, fmt.Errorf("%w: entry %d: %v", ErrFormat, i, err)
		}
	}

	return t, nil
}

package tensor

import (
	"github.com/ValentinKolb/sTensor/lib/storage"
)

// --------------------------------------------------------------------------
// Coordinate Codec
// --------------------------------------------------------------------------

const (
	// FieldWidth is the number of key bits reserved for one coordinate component
	FieldWidth = 16
	// MaxRank is the largest rank whose fields fit into one key
	MaxRank = 64 / FieldWidth
	// MaxExtent is the largest extent a single mode may have
	MaxExtent = 1 << FieldWidth

	fieldMask = MaxExtent - 1
)

// Encode packs coords into a single key. The first mode occupies the most
// significant field, so ascending keys enumerate coordinates in lexicographic order.
//
// Components must be smaller than MaxExtent and len(coords) must not exceed
// MaxRank, otherwise fields collide. Tensor validates both before encoding.
func Encode(coords []uint32) storage.Key {
	var key storage.Key
	for _, c := range coords {
		key = key<<FieldWidth | storage.Key(c&fieldMask)
	}
	return key
}

// Decode unpacks key into dst, whose length is the rank the key was encoded with
func Decode(key storage.Key, dst []uint32) {
	for i := len(dst) - 1; i >= 0; i-- {
		dst[i] = uint32(key & fieldMask)
		key >>= FieldWidth
	}
}

package tensor

import (
	"bytes"
	"encoding/binary"
	"errors"
	"strings"
	"testing"

	"github.com/ValentinKolb/sTensor/lib/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadCOO(t *testing.T) {
	// layout written by the dataset generator: extra blanks and a trailing comma before the value
	input := "order:  3\nshape:  4, 5, 6\nvalues:\n0, 1, 2, 3.0\n3, 4, 5, 1.5\n\n1, 0, 0, -2\n"

	for name, opts := range backendOptions(0) {
		t.Run(name, func(t *testing.T) {
			x, err := ReadCOO(strings.NewReader(input), opts)
			require.NoError(t, err)

			assert.Equal(t, []uint32{4, 5, 6}, x.Shape())
			assert.Equal(t, 3, x.Len())
			assert.Equal(t, storage.Value(3), x.Get([]uint32{0, 1, 2}))
			assert.Equal(t, storage.Value(1.5), x.Get([]uint32{3, 4, 5}))
			assert.Equal(t, storage.Value(-2), x.Get([]uint32{1, 0, 0}))
		})
	}
}

func TestReadCOOErrors(t *testing.T) {
	cases := map[string]string{
		"empty":             "",
		"missing order":     "shape: 2\nvalues:\n",
		"bad order":         "order: x\nshape: 2\nvalues:\n",
		"shape rank":        "order: 2\nshape: 2\nvalues:\n",
		"bad extent":        "order: 1\nshape: -2\nvalues:\n",
		"missing values":    "order: 1\nshape: 2\n",
		"field count":       "order: 2\nshape: 2, 2\nvalues:\n0, 1\n",
		"bad coordinate":    "order: 1\nshape: 2\nvalues:\nx, 1\n",
		"bad value":         "order: 1\nshape: 2\nvalues:\n1, one\n",
		"zero extent shape": "order: 1\nshape: 0\nvalues:\n",
	}

	for name, input := range cases {
		_, err := ReadCOO(strings.NewReader(input), nil)
		assert.Error(t, err, name)
	}

	_, err := ReadCOO(strings.NewReader("order: 1\nshape: 2\nvalues:\n0, 1\n0, 2, 3\n"), nil)
	require.True(t, errors.Is(err, ErrFormat), err)
	assert.Contains(t, err.Error(), "line 5")

	_, err = ReadCOO(strings.NewReader("order: 1\nshape: 2\nvalues:\n0, 1\n2, 1\n"), nil)
	require.True(t, errors.Is(err, ErrOutOfBounds), err)
	assert.Contains(t, err.Error(), "line 5")
}

func TestCOORoundTrip(t *testing.T) {
	for name, opts := range backendOptions(64) {
		t.Run(name, func(t *testing.T) {
			x, err := New([]uint32{10, 20}, opts)
			require.NoError(t, err)
			for i := uint32(0); i < 10; i++ {
				require.NoError(t, x.Set([]uint32{i, 2 * i}, storage.Value(i)*0.1))
			}
			require.NoError(t, x.Set([]uint32{9, 0}, 0))

			var buf bytes.Buffer
			require.NoError(t, WriteCOO(&buf, x))
			assert.True(t, strings.HasPrefix(buf.String(), "order: 2\nshape: 10, 20\nvalues:\n"), buf.String())

			y, err := ReadCOO(&buf, opts)
			require.NoError(t, err)
			assert.Equal(t, x.Shape(), y.Shape())
			assert.Equal(t, entriesOf(t, x), entriesOf(t, y))
		})
	}
}

func TestWriteCOOOrdered(t *testing.T) {
	x, err := New([]uint32{3, 3}, nil)
	require.NoError(t, err)
	require.NoError(t, x.Set([]uint32{2, 0}, 1))
	require.NoError(t, x.Set([]uint32{0, 2}, 2.5))

	var buf bytes.Buffer
	require.NoError(t, WriteCOO(&buf, x))
	assert.Equal(t, "order: 2\nshape: 3, 3\nvalues:\n0, 2, 2.5\n2, 0, 1\n", buf.String())
}

func TestBinaryRoundTrip(t *testing.T) {
	for name, opts := range backendOptions(128) {
		t.Run(name, func(t *testing.T) {
			x, err := New([]uint32{7, 300, 2}, opts)
			require.NoError(t, err)
			for i := uint32(0); i < 100; i++ {
				require.NoError(t, x.Set([]uint32{i % 7, i * 3, i % 2}, storage.Value(i)-50.25))
			}

			var buf bytes.Buffer
			require.NoError(t, x.Save(&buf))
			assert.Equal(t, len(SnapshotMagic)+1+1+3*4+8+x.Len()*12, buf.Len())

			// load into the other backend to check the format is backend independent
			other := &Options{Backend: storage.ImplHashTable}
			if opts.Backend == storage.ImplHashTable {
				other = &Options{Backend: storage.ImplBPTree}
			}
			y, err := Load(&buf, other)
			require.NoError(t, err)
			assert.Equal(t, x.Shape(), y.Shape())
			assert.Equal(t, x.Len(), y.Len())
			assert.Equal(t, entriesOf(t, x), entriesOf(t, y))
		})
	}
}

func TestLoadErrors(t *testing.T) {
	x, err := New([]uint32{4}, nil)
	require.NoError(t, err)
	require.NoError(t, x.Set([]uint32{3}, 1))

	var buf bytes.Buffer
	require.NoError(t, x.Save(&buf))
	valid := buf.Bytes()

	// wrong magic
	corrupt := bytes.Clone(valid)
	corrupt[0] = 'X'
	_, err = Load(bytes.NewReader(corrupt), nil)
	assert.True(t, errors.Is(err, ErrFormat), err)

	// wrong version
	corrupt = bytes.Clone(valid)
	corrupt[len(SnapshotMagic)] = 99
	_, err = Load(bytes.NewReader(corrupt), nil)
	assert.True(t, errors.Is(err, ErrFormat), err)

	// key outside of the shape: patch the low byte of the first key
	corrupt = bytes.Clone(valid)
	corrupt[len(SnapshotMagic)+1+1+4+8] = 9
	_, err = Load(bytes.NewReader(corrupt), nil)
	assert.True(t, errors.Is(err, ErrFormat), err)

	// truncated
	_, err = Load(bytes.NewReader(valid[:len(valid)-2]), nil)
	assert.Error(t, err)
}

func TestLoadOversizedCount(t *testing.T) {
	// header claims 1<<50 entries of a rank 4 tensor but carries none
	var buf bytes.Buffer
	buf.WriteString(SnapshotMagic)
	buf.WriteByte(formatVersion)
	buf.WriteByte(4)
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, []uint32{65535, 65535, 65535, 65535}))
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, uint64(1)<<50))
	require.Equal(t, 31, buf.Len())

	for name, opts := range backendOptions(0) {
		t.Run(name, func(t *testing.T) {
			var err error
			require.NotPanics(t, func() {
				_, err = Load(bytes.NewReader(buf.Bytes()), opts)
			})
			assert.True(t, errors.Is(err, ErrFormat), err)
		})
	}

	// a count larger than the entries present fails once the data runs out
	x, err := New([]uint32{2000}, nil)
	require.NoError(t, err)
	require.NoError(t, x.Set([]uint32{1}, 2))
	var snap bytes.Buffer
	require.NoError(t, x.Save(&snap))
	raw := snap.Bytes()
	binary.LittleEndian.PutUint64(raw[len(SnapshotMagic)+1+1+4:], 1000)
	_, err = Load(bytes.NewReader(raw), &Options{Backend: storage.ImplHashTable})
	assert.True(t, errors.Is(err, ErrFormat), err)
}

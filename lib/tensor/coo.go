package tensor

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/ValentinKolb/sTensor/lib/storage"
)

// ErrFormat is returned when a tensor file cannot be parsed
var ErrFormat = errors.New("malformed tensor file")

// --------------------------------------------------------------------------
// Coordinate list text format
// --------------------------------------------------------------------------
//
// A COO file has a three line header followed by one line per entry:
//
//	order: 2
//	shape: 4, 4
//	values:
//	0, 0, 1
//	1, 2, 3.5
//
// Fields are separated by a comma and optional blanks.

// cooHeaderLines is the number of lines before the first entry
const cooHeaderLines = 3

type cooEntry struct {
	coords []uint32
	value  storage.Value
}

// ReadCOO parses a tensor in coordinate list format and stores it on the
// backend selected by opts. The number of entries in the file is used as
// capacity hint, opts.Capacity is ignored.
func ReadCOO(r io.Reader, opts *Options) (*Tensor, error) {
	if opts == nil {
		opts = DefaultOptions()
	}
	br := bufio.NewReader(r)

	// header
	orderField, err := readHeaderLine(br, 1, "order")
	if err != nil {
		return nil, err
	}
	rank, err := strconv.Atoi(orderField)
	if err != nil || rank < 0 {
		return nil, fmt.Errorf("%w: line 1: invalid order %q", ErrFormat, orderField)
	}

	shapeField, err := readHeaderLine(br, 2, "shape")
	if err != nil {
		return nil, err
	}
	shape, err := parseShape(shapeField, rank)
	if err != nil {
		return nil, fmt.Errorf("%w: line 2: %v", ErrFormat, err)
	}

	if _, err := readHeaderLine(br, 3, "values"); err != nil {
		return nil, err
	}

	// entries
	entries, err := readEntries(br, rank)
	if err != nil {
		return nil, err
	}

	t, err := New(shape, opts.withCapacity(len(entries)))
	if err != nil {
		return nil, err
	}
	for i, e := range entries {
		if err := t.Set(e.coords, e.value); err != nil {
			t.Close()
			return nil, fmt.Errorf("line %d: %w", cooHeaderLines+i+1, err)
		}
	}

	plog.Infof("read tensor with shape %v and %d entries", shape, t.Len())
	return t, nil
}

// readHeaderLine reads one "name: field" line and returns the trimmed field
func readHeaderLine(br *bufio.Reader, line int, name string) (string, error) {
	s, err := br.ReadString('\n')
	if err != nil && (err != io.EOF || s == "") {
		if err == io.EOF {
			return "", fmt.Errorf("%w: line %d: unexpected end of file, want %q", ErrFormat, line, name)
		}
		return "", err
	}

	key, value, found := strings.Cut(strings.TrimSpace(s), ":")
	if !found || strings.TrimSpace(key) != name {
		return "", fmt.Errorf("%w: line %d: want %q header, got %q", ErrFormat, line, name, strings.TrimSpace(s))
	}
	return strings.TrimSpace(value), nil
}

func parseShape(field string, rank int) ([]uint32, error) {
	shape := make([]uint32, 0, rank)
	if field != "" {
		for _, part := range strings.Split(field, ",") {
			extent, err := strconv.ParseUint(strings.TrimSpace(part), 10, 32)
			if err != nil {
				return nil, fmt.Errorf("invalid extent %q", part)
			}
			shape = append(shape, uint32(extent))
		}
	}
	if len(shape) != rank {
		return nil, fmt.Errorf("shape has %d extents, order is %d", len(shape), rank)
	}
	return shape, nil
}

// readEntries parses all remaining records, each holding rank coordinates and a value
func readEntries(r io.Reader, rank int) ([]cooEntry, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = rank + 1
	cr.TrimLeadingSpace = true
	cr.ReuseRecord = true

	var entries []cooEntry
	for {
		record, err := cr.Read()
		if err == io.EOF {
			return entries, nil
		}
		if err != nil {
			var perr *csv.ParseError
			if errors.As(err, &perr) {
				return nil, fmt.Errorf("%w: line %d: %v", ErrFormat, cooHeaderLines+perr.Line, perr.Err)
			}
			return nil, err
		}

		line, _ := cr.FieldPos(0)
		line += cooHeaderLines

		e := cooEntry{coords: make([]uint32, rank)}
		for mode := 0; mode < rank; mode++ {
			c, err := strconv.ParseUint(strings.TrimSpace(record[mode]), 10, 32)
			if err != nil {
				return nil, fmt.Errorf("%w: line %d: invalid coordinate %q", ErrFormat, line, record[mode])
			}
			e.coords[mode] = uint32(c)
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(record[rank]), 32)
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: invalid value %q", ErrFormat, line, record[rank])
		}
		e.value = storage.Value(v)

		entries = append(entries, e)
	}
}

// WriteCOO writes t in coordinate list format, entries in iteration order
func WriteCOO(w io.Writer, t *Tensor) error {
	bw := bufio.NewWriter(w)

	shape := make([]string, len(t.shape))
	for i, extent := range t.shape {
		shape[i] = strconv.FormatUint(uint64(extent), 10)
	}
	if _, err := fmt.Fprintf(bw, "order: %d\nshape: %s\nvalues:\n", t.Rank(), strings.Join(shape, ", ")); err != nil {
		return err
	}

	it := t.Iter()
	defer it.Close()

	var buf []byte
	for {
		coords, value, ok := it.Next()
		if !ok {
			break
		}

		buf = buf[:0]
		for _, c := range coords {
			buf = strconv.AppendUint(buf, uint64(c), 10)
			buf = append(buf, ", "...)
		}
		buf = strconv.AppendFloat(buf, float64(value), 'f', -1, 32)
		buf = append(buf, '\n')
		if _, err := bw.Write(buf); err != nil {
			return err
		}
	}
	if err := it.Err(); err != nil {
		return err
	}

	return bw.Flush()
}

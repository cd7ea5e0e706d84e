package util

import (
	"fmt"
	"strings"

	"github.com/VictoriaMetrics/metrics"
)

// --------------------------------------------------------------------------
// Operation Counters
// --------------------------------------------------------------------------

// Counters tallies the abstract machine operations a backend performs.
// It is used to compare engines independent of the hardware they run on:
//   - mem: node/slot reads and writes (RAM transactions)
//   - add: index increments
//   - mul: hashing (counted as one multiplication)
//   - cmp: key and bound comparisons
//
// A nil *Counters is valid and counts nothing, so engines can call the
// methods unconditionally.
//
// Thread-safety: Counters is not thread-safe, share one instance only between
// backends used from the same goroutine.
type Counters struct {
	mem uint64
	add uint64
	mul uint64
	cmp uint64
}

// OpCounts is an immutable copy of Counters
type OpCounts struct {
	Mem uint64 `json:"mem"`
	Add uint64 `json:"add"`
	Mul uint64 `json:"mul"`
	Cmp uint64 `json:"cmp"`
}

// NewCounters returns zeroed counters
func NewCounters() *Counters {
	return &Counters{}
}

func (c *Counters) Mem(n uint64) {
	if c != nil {
		c.mem += n
	}
}

func (c *Counters) Add(n uint64) {
	if c != nil {
		c.add += n
	}
}

func (c *Counters) Mul(n uint64) {
	if c != nil {
		c.mul += n
	}
}

func (c *Counters) Cmp(n uint64) {
	if c != nil {
		c.cmp += n
	}
}

// Reset sets all counters back to zero
func (c *Counters) Reset() {
	if c != nil {
		*c = Counters{}
	}
}

// Snapshot copies the current counter values
func (c *Counters) Snapshot() OpCounts {
	if c == nil {
		return OpCounts{}
	}
	return OpCounts{Mem: c.mem, Add: c.add, Mul: c.mul, Cmp: c.cmp}
}

// ALU returns the sum of all arithmetic and comparison operations
func (o OpCounts) ALU() uint64 {
	return o.Add + o.Mul + o.Cmp
}

// String returns a formatted multi-line representation of the counts
func (o OpCounts) String() string {
	var sb strings.Builder
	sb.WriteString("Stats:\n")
	sb.WriteString(fmt.Sprintf("    RAM transactions: %d\n", o.Mem))
	sb.WriteString(fmt.Sprintf("    ALU operations:   %d\n", o.ALU()))
	sb.WriteString(fmt.Sprintf("        - ADD: %d\n", o.Add))
	sb.WriteString(fmt.Sprintf("        - MUL: %d\n", o.Mul))
	sb.WriteString(fmt.Sprintf("        - CMP: %d\n", o.Cmp))
	return sb.String()
}

// Publish exports the counts as prometheus counters labeled with the backend
// and the measured phase. Existing counters in the set are overwritten.
func (o OpCounts) Publish(set *metrics.Set, backend, phase string) {
	publish := func(op string, v uint64) {
		name := fmt.Sprintf(`stensor_ops_total{backend=%q,phase=%q,op=%q}`, backend, phase, op)
		set.GetOrCreateCounter(name).Set(v)
	}
	publish("mem", o.Mem)
	publish("add", o.Add)
	publish("mul", o.Mul)
	publish("cmp", o.Cmp)
}

package util

import (
	"bytes"
	"testing"

	"github.com/VictoriaMetrics/metrics"
	"github.com/stretchr/testify/assert"
)

func TestNilCounters(t *testing.T) {
	var c *Counters
	c.Mem(1)
	c.Add(1)
	c.Mul(1)
	c.Cmp(1)
	c.Reset()
	assert.Equal(t, OpCounts{}, c.Snapshot())
}

func TestCounters(t *testing.T) {
	c := NewCounters()
	c.Mem(3)
	c.Add(2)
	c.Mul(1)
	c.Cmp(4)
	c.Cmp(1)

	snap := c.Snapshot()
	assert.Equal(t, OpCounts{Mem: 3, Add: 2, Mul: 1, Cmp: 5}, snap)
	assert.Equal(t, uint64(8), snap.ALU())
	assert.Contains(t, snap.String(), "RAM transactions: 3")
	assert.Contains(t, snap.String(), "ALU operations:   8")

	// the snapshot is a copy
	c.Reset()
	assert.Equal(t, OpCounts{}, c.Snapshot())
	assert.Equal(t, uint64(3), snap.Mem)
}

func TestPublish(t *testing.T) {
	set := metrics.NewSet()
	OpCounts{Mem: 3, Add: 1}.Publish(set, "bptree", "load")
	OpCounts{Mem: 7}.Publish(set, "hashtable", "load")

	var buf bytes.Buffer
	set.WritePrometheus(&buf)
	assert.Contains(t, buf.String(), `stensor_ops_total{backend="bptree",phase="load",op="mem"} 3`)
	assert.Contains(t, buf.String(), `stensor_ops_total{backend="bptree",phase="load",op="add"} 1`)
	assert.Contains(t, buf.String(), `stensor_ops_total{backend="hashtable",phase="load",op="mem"} 7`)

	// publishing again overwrites
	OpCounts{Mem: 5}.Publish(set, "bptree", "load")
	buf.Reset()
	set.WritePrometheus(&buf)
	assert.Contains(t, buf.String(), `stensor_ops_total{backend="bptree",phase="load",op="mem"} 5`)
	assert.Contains(t, buf.String(), `stensor_ops_total{backend="bptree",phase="load",op="add"} 0`)
}

func TestStats(t *testing.T) {
	assert.Equal(t, Stats{}, NewStats(nil))

	stats := NewStats([]float64{2, 4, 4, 4, 5, 5, 7, 9})
	assert.Equal(t, 5.0, stats.Mean)
	assert.Equal(t, 2.0, stats.StdDeviation)
	assert.Equal(t, 2.0, stats.Min)
	assert.Equal(t, 9.0, stats.Max)
	assert.InDelta(t, 2.0/9.0, stats.MinMaxRatio, 1e-12)

	even := NewDistributionStats([]float64{3, 3, 3})
	assert.Equal(t, 1.0, even.DistributionQuality)
	uneven := NewDistributionStats([]float64{1, 3, 8})
	assert.Less(t, uneven.DistributionQuality, even.DistributionQuality)
}

func TestHistogram(t *testing.T) {
	h := NewHistogram(4) // 1, 2, 4, 8, overflow
	assert.Equal(t, HistogramSummary{}, h.Summary())

	for _, v := range []int{1, 1, 3, 5, 20} {
		h.AddSample(v)
	}

	assert.Equal(t, int64(5), h.Count())
	assert.Equal(t, 20, h.Max())
	assert.Equal(t, 6.0, h.Average())
	assert.Equal(t, 4, h.PercentileEstimate(50))
	assert.Equal(t, 20, h.PercentileEstimate(99))
	assert.Equal(t, 0, h.PercentileEstimate(101))

	boundaries, percentages := h.Distribution()
	assert.Equal(t, []int{1, 2, 4, 8}, boundaries)
	assert.Equal(t, []float64{40, 0, 20, 20, 20}, percentages)

	assert.Equal(t, HistogramSummary{Count: 5, Average: 6, P50: 4, P99: 20, Max: 20}, h.Summary())
}

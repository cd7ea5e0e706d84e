package util

// Summary statistics and a bucketed histogram that backends use in GetInfo to
// report on their internal shape (leaf fill of the B+ tree, probe lengths of
// the hash table) without exposing their internals.

import (
	"math"
)

// ----------------------------------------------------------------------------
// Summary statistics
// ----------------------------------------------------------------------------

type Stats struct {
	StdDeviation float64 `json:"std_deviation"`
	Min          float64 `json:"min"`
	Max          float64 `json:"max"`
	Mean         float64 `json:"mean"`
	MinMaxRatio  float64 `json:"min_max_ratio"`
}

// NewStats computes the standard deviation, minimum, maximum and mean
// from an array of float64 values.
func NewStats(values []float64) Stats {
	if len(values) == 0 {
		return Stats{}
	}

	// initialize min and max with the first value
	min := values[0]
	max := values[0]

	var sum float64
	for _, v := range values {
		sum += v
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}

	mean := sum / float64(len(values))

	// sum of squared differences from mean
	var sumSquaredDiffs float64
	for _, v := range values {
		diff := v - mean
		sumSquaredDiffs += diff * diff
	}

	// population standard deviation
	stdDev := math.Sqrt(sumSquaredDiffs / float64(len(values)))

	var minMaxRatio float64 = 1.0
	if max > 0 {
		minMaxRatio = min / max
	}

	return Stats{
		StdDeviation: stdDev,
		Min:          min,
		Max:          max,
		Mean:         mean,
		MinMaxRatio:  minMaxRatio,
	}
}

type DistributionStats struct {
	Stats
	DistributionQuality float64 `json:"distribution_quality"`
}

// NewDistributionStats computes quality metrics for how evenly values are spread,
// e.g. the fill level of all B+ tree leaves.
func NewDistributionStats(values []float64) DistributionStats {
	stats := NewStats(values)

	// coefficient of variation
	var cv float64
	if stats.Mean > 0 {
		cv = stats.StdDeviation / stats.Mean
	}

	// lower CV and higher min/max ratio indicate a better distribution
	distributionQuality := (1.0-math.Min(1.0, cv))*0.5 + stats.MinMaxRatio*0.5

	return DistributionStats{
		Stats:               stats,
		DistributionQuality: distributionQuality,
	}
}

// ----------------------------------------------------------------------------
// Histogram
// ----------------------------------------------------------------------------

// Histogram counts integer samples in buckets with exponentially growing
// upper bounds (1, 2, 4, ...). The last bucket collects everything above the
// largest boundary.
type Histogram struct {
	boundaries []int
	buckets    []int64
	count      int64
	sum        int64
	max        int
}

// NewHistogram creates a histogram with the boundaries 1, 2, 4, ..., 2^(n-1)
func NewHistogram(n int) *Histogram {
	if n < 1 {
		n = 1
	}
	boundaries := make([]int, n)
	for i := range boundaries {
		boundaries[i] = 1 << i
	}
	return &Histogram{
		boundaries: boundaries,
		buckets:    make([]int64, n+1),
	}
}

// AddSample adds one sample to the histogram
func (h *Histogram) AddSample(v int) {
	bucketIndex := len(h.boundaries)
	for i, boundary := range h.boundaries {
		if v <= boundary {
			bucketIndex = i
			break
		}
	}

	h.buckets[bucketIndex]++
	h.count++
	h.sum += int64(v)
	if v > h.max {
		h.max = v
	}
}

// Count returns the total number of samples
func (h *Histogram) Count() int64 {
	return h.count
}

// Max returns the largest sample seen
func (h *Histogram) Max() int {
	return h.max
}

// Average returns the mean of all samples
func (h *Histogram) Average() float64 {
	if h.count == 0 {
		return 0
	}
	return float64(h.sum) / float64(h.count)
}

// PercentileEstimate returns the upper bound of the bucket that contains the
// given percentile (0-100). For the overflow bucket the largest sample is returned.
func (h *Histogram) PercentileEstimate(percentile int) int {
	if h.count == 0 || percentile < 0 || percentile > 100 {
		return 0
	}

	targetCount := int64(math.Ceil(float64(h.count) * float64(percentile) / 100.0))
	cumulativeCount := int64(0)

	for i, count := range h.buckets {
		cumulativeCount += count
		if cumulativeCount >= targetCount {
			if i < len(h.boundaries) {
				return h.boundaries[i]
			}
			return h.max
		}
	}

	return h.max
}

// Distribution returns the bucket boundaries and the percentage of samples in each bucket.
// The returned percentages have one more element than the boundaries (the overflow bucket).
func (h *Histogram) Distribution() ([]int, []float64) {
	percentages := make([]float64, len(h.buckets))
	if h.count == 0 {
		return h.boundaries, percentages
	}
	for i, count := range h.buckets {
		percentages[i] = float64(count) * 100.0 / float64(h.count)
	}
	return h.boundaries, percentages
}

// HistogramSummary is the JSON friendly digest of a Histogram
type HistogramSummary struct {
	Count   int64   `json:"count"`
	Average float64 `json:"average"`
	P50     int     `json:"p50"`
	P99     int     `json:"p99"`
	Max     int     `json:"max"`
}

// Summary digests the histogram for reporting
func (h *Histogram) Summary() HistogramSummary {
	return HistogramSummary{
		Count:   h.count,
		Average: h.Average(),
		P50:     h.PercentileEstimate(50),
		P99:     h.PercentileEstimate(99),
		Max:     h.max,
	}
}

package graph

import (
	"math"
	"sort"
)

// NormalizationMethod is one of the four elementwise normalizations
// supported by a Normalizer.
type NormalizationMethod int

const (
	MinMax NormalizationMethod = iota
	ZScore
	LogScale
	Robust
)

// dimensionStats holds whatever a Normalizer needs to remember about one
// feature dimension after Fit, so Apply can be called repeatedly
// (idempotently) against new values without refitting.
type dimensionStats struct {
	min, max       float64
	mean, std      float64
	median, iqr    float64
}

// Normalizer fits per-dimension statistics once over a set of feature
// vectors and then applies the configured method elementwise.
// Fit-then-apply is idempotent: calling Apply twice with the same fitted
// stats on the same input yields the same output.
type Normalizer struct {
	method NormalizationMethod
	stats  map[string]dimensionStats
}

// NewNormalizer constructs an unfit Normalizer for the given method.
func NewNormalizer(method NormalizationMethod) *Normalizer {
	return &Normalizer{method: method, stats: make(map[string]dimensionStats)}
}

// Fit computes per-dimension statistics across every feature map in vectors.
// Dimensions absent from a given vector are treated as 0 for that vector.
func (n *Normalizer) Fit(vectors []map[string]float64) {
	dims := make(map[string]bool)
	for _, v := range vectors {
		for k := range v {
			dims[k] = true
		}
	}

	for dim := range dims {
		values := make([]float64, len(vectors))
		for i, v := range vectors {
			values[i] = v[dim]
		}
		n.stats[dim] = fitDimension(values)
	}
}

func fitDimension(values []float64) dimensionStats {
	if len(values) == 0 {
		return dimensionStats{}
	}

	sorted := append([]float64{}, values...)
	sort.Float64s(sorted)

	min, max := sorted[0], sorted[len(sorted)-1]

	var sum float64
	for _, v := range values {
		sum += v
	}
	mean := sum / float64(len(values))

	var sqSum float64
	for _, v := range values {
		d := v - mean
		sqSum += d * d
	}
	std := math.Sqrt(sqSum / float64(len(values)))

	median := percentile(sorted, 0.5)
	q1 := percentile(sorted, 0.25)
	q3 := percentile(sorted, 0.75)

	return dimensionStats{min: min, max: max, mean: mean, std: std, median: median, iqr: q3 - q1}
}

func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := p * float64(len(sorted)-1)
	lo := int(math.Floor(idx))
	hi := int(math.Ceil(idx))
	if lo == hi {
		return sorted[lo]
	}
	frac := idx - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}

// Apply normalizes one feature vector in place using the previously fit
// statistics. Dimensions not seen during Fit pass through unchanged.
func (n *Normalizer) Apply(vector map[string]float64) {
	for dim, val := range vector {
		st, ok := n.stats[dim]
		if !ok {
			continue
		}
		vector[dim] = n.apply(st, val)
	}
}

func (n *Normalizer) apply(st dimensionStats, v float64) float64 {
	switch n.method {
	case ZScore:
		if st.std == 0 {
			return 0
		}
		return (v - st.mean) / st.std
	case LogScale:
		sign := 1.0
		if v < 0 {
			sign = -1.0
		}
		return sign * math.Log(math.Abs(v)+1)
	case Robust:
		if st.iqr == 0 {
			return 0
		}
		return (v - st.median) / st.iqr
	default: // MinMax
		span := st.max - st.min
		if span == 0 {
			return 0
		}
		return (v - st.min) / span
	}
}

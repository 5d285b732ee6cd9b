package fingerprint

import (
	"math"
	"sort"
	"strconv"

	"synthledger/internal/amount"
	"synthledger/pkg/decimal"
)

// Column is one in-memory column of raw string values, the external
// collaborator's projection of a domain record's field. An empty string is a null.
type Column struct {
	Name   string
	Values []string
}

// Table is one in-memory table: a name plus its columns, all of equal
// length. Columns of differing length are a caller error; Extract fits each
// column over all of its own values, and the correlation pass aligns two
// columns over their shared prefix.
type Table struct {
	Name    string
	Columns []Column
}

// numericParseThreshold is the majority-parseable heuristic: a column is
// inferred numeric when at least this fraction of its non-null values
// parse as a float.
const numericParseThreshold = 0.8

// inferSemanticType classifies a column numeric vs categorical by the
// fraction of non-null values that parse as a number.
func inferSemanticType(values []string) (semantic string, nullable bool) {
	var nonNull, numeric int
	for _, v := range values {
		if v == "" {
			nullable = true
			continue
		}
		nonNull++
		if _, err := strconv.ParseFloat(v, 64); err == nil {
			numeric++
		}
	}
	if nonNull == 0 {
		return "categorical", nullable
	}
	if float64(numeric)/float64(nonNull) >= numericParseThreshold {
		return "numeric", nullable
	}
	return "categorical", nullable
}

// parsedNumeric is one column's non-null values as float64, in original
// order, used by both the numeric-stats fit and the correlation pass.
func parsedNumeric(values []string) []float64 {
	out := make([]float64, 0, len(values))
	for _, v := range values {
		if v == "" {
			continue
		}
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			out = append(out, f)
		}
	}
	return out
}

// fitNumericRaw computes the pre-noise numeric statistics: winsorization is
// applied before mean/std, but min/max/percentiles are reported over the
// winsorized sample too so every released figure is internally consistent.
func fitNumericRaw(values []float64, winsorizeLow, winsorizeHigh float64) NumericStats {
	if len(values) == 0 {
		return NumericStats{Percentiles: map[string]float64{}}
	}

	sorted := append([]float64{}, values...)
	sort.Float64s(sorted)

	lowBound := percentile(sorted, winsorizeLow)
	highBound := percentile(sorted, winsorizeHigh)
	if highBound < lowBound {
		highBound = lowBound
	}

	winsorized := make([]float64, len(sorted))
	for i, v := range sorted {
		switch {
		case v < lowBound:
			winsorized[i] = lowBound
		case v > highBound:
			winsorized[i] = highBound
		default:
			winsorized[i] = v
		}
	}
	sort.Float64s(winsorized)

	var sum float64
	var zeroCount, negCount int
	for _, v := range values {
		if v == 0 {
			zeroCount++
		}
		if v < 0 {
			negCount++
		}
	}
	for _, v := range winsorized {
		sum += v
	}
	n := float64(len(winsorized))
	mean := sum / n

	var sqSum float64
	for _, v := range winsorized {
		d := v - mean
		sqSum += d * d
	}
	std := math.Sqrt(sqSum / n)

	percentiles := map[string]float64{
		"p1":  percentile(winsorized, 0.01),
		"p25": percentile(winsorized, 0.25),
		"p50": percentile(winsorized, 0.50),
		"p75": percentile(winsorized, 0.75),
		"p99": percentile(winsorized, 0.99),
	}

	var benford [9]float64
	var benfordN int
	for _, v := range values {
		av := math.Abs(v)
		if av == 0 {
			continue
		}
		if d, ok := amount.FirstDigit(decimal.FromFloat64(av, 6)); ok {
			benford[d-1]++
			benfordN++
		}
	}
	if benfordN > 0 {
		for i := range benford {
			benford[i] /= float64(benfordN)
		}
	}

	return NumericStats{
		Count:              len(values),
		Min:                winsorized[0],
		Max:                winsorized[len(winsorized)-1],
		Mean:               mean,
		Std:                std,
		Percentiles:        percentiles,
		DistributionFamily: classifyDistribution(winsorized, mean, std),
		ZeroRate:           float64(zeroCount) / float64(len(values)),
		NegativeRate:       float64(negCount) / float64(len(values)),
		BenfordHistogram:   benford,
	}
}

// classifyDistribution picks one of {Uniform, LogNormal, Normal} by the
// heuristics below: a range close to its theoretical uniform spread
// (range/sqrt(12) ~= std) suggests Uniform; an all-positive, right-skewed
// sample suggests LogNormal; otherwise Normal.
func classifyDistribution(sorted []float64, mean, std float64) string {
	if len(sorted) < 2 || std == 0 {
		return "Normal"
	}
	rangeSpan := sorted[len(sorted)-1] - sorted[0]
	uniformStd := rangeSpan / math.Sqrt(12)
	if uniformStd > 0 && math.Abs(std-uniformStd)/uniformStd < 0.15 {
		return "Uniform"
	}

	allPositive := sorted[0] > 0
	if allPositive && skewness(sorted, mean, std) > 0.5 {
		return "LogNormal"
	}
	return "Normal"
}

func skewness(values []float64, mean, std float64) float64 {
	if std == 0 {
		return 0
	}
	var cube float64
	for _, v := range values {
		cube += math.Pow((v-mean)/std, 3)
	}
	return cube / float64(len(values))
}

func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	if p <= 0 {
		return sorted[0]
	}
	if p >= 1 {
		return sorted[len(sorted)-1]
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

// fitCategoricalRaw computes pre-noise categorical statistics: count,
// cardinality, Shannon entropy, and the k-anonymity-filtered top-K
// frequency table.
func fitCategoricalRaw(values []string, k, topK int) CategoricalStats {
	counts := make(map[string]int)
	var nonNull int
	for _, v := range values {
		if v == "" {
			continue
		}
		counts[v]++
		nonNull++
	}

	var entropy float64
	for _, c := range counts {
		p := float64(c) / float64(nonNull)
		if p > 0 {
			entropy -= p * math.Log2(p)
		}
	}

	type kv struct {
		value string
		count int
	}
	var kept []kv
	for v, c := range counts {
		if c < k {
			continue // k-anonymity suppression: see RecordKAnonymitySuppression caller
		}
		kept = append(kept, kv{v, c})
	}
	sort.Slice(kept, func(i, j int) bool {
		if kept[i].count != kept[j].count {
			return kept[i].count > kept[j].count
		}
		return kept[i].value < kept[j].value
	})
	if topK > 0 && len(kept) > topK {
		kept = kept[:topK]
	}

	freqs := make([]CategoryFrequency, len(kept))
	for i, e := range kept {
		freqs[i] = CategoryFrequency{Value: e.value, Count: e.count}
	}

	return CategoricalStats{
		Count:       nonNull,
		Cardinality: len(counts),
		Entropy:     entropy,
		TopK:        freqs,
	}
}

// suppressedCategories reports how many distinct categories fitCategoricalRaw
// dropped for falling below k, so the extractor can emit a metric/log line
// without recomputing the count filter.
func suppressedCategories(values []string, k int) int {
	counts := make(map[string]int)
	for _, v := range values {
		if v != "" {
			counts[v]++
		}
	}
	var dropped int
	for _, c := range counts {
		if c < k {
			dropped++
		}
	}
	return dropped
}

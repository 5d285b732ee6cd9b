package evaluator

import "math"

// highMissingRateThreshold, highCardinalityThreshold, and highSkewThreshold
// are the fixed thresholds a column's feature analysis is flagged against.
const (
	highMissingRateThreshold  = 0.2
	highCardinalityThreshold  = 1000
	highSkewThreshold         = 2.0
	highCorrelationThreshold  = 0.95
)

// FeatureFlag is one problem flagged against a single feature dimension.
type FeatureFlag struct {
	Feature string
	Reason  string // "zero_variance", "high_missing_rate", "high_cardinality", "high_skewness"
	Value   float64
}

// CorrelatedPair is one pair of features whose absolute correlation is at
// or above highCorrelationThreshold, surfaced because near-duplicate features waste
// downstream model capacity.
type CorrelatedPair struct {
	FeatureA    string
	FeatureB    string
	Correlation float64
}

// FeatureReport is the feature-analysis output.
type FeatureReport struct {
	Flags             []FeatureFlag
	CorrelatedPairs   []CorrelatedPair
	SamplesEvaluated  int
}

// EvaluateFeatures scans a set of numeric feature vectors (a record missing
// a dimension simply omits the key, counted toward that dimension's missing
// rate) plus a parallel set of categorical cardinalities, flagging zero
// variance, high missing rate, high cardinality, and high skewness, and
// reporting any feature pair correlated at or above 0.95.
func (e *Evaluator) EvaluateFeatures(numeric []map[string]float64, categoricalCardinality map[string]int) *FeatureReport {
	report := &FeatureReport{SamplesEvaluated: len(numeric)}
	if len(numeric) == 0 && len(categoricalCardinality) == 0 {
		return report
	}

	dims := make(map[string]bool)
	for _, sample := range numeric {
		for k := range sample {
			dims[k] = true
		}
	}

	series := make(map[string][]float64, len(dims))
	for dim := range dims {
		present := 0
		values := make([]float64, 0, len(numeric))
		for _, sample := range numeric {
			if v, ok := sample[dim]; ok {
				values = append(values, v)
				present++
			}
		}
		series[dim] = values

		missingRate := 1 - float64(present)/float64(len(numeric))
		if missingRate > highMissingRateThreshold {
			report.Flags = append(report.Flags, FeatureFlag{Feature: dim, Reason: "high_missing_rate", Value: missingRate})
		}

		if variance(values) == 0 {
			report.Flags = append(report.Flags, FeatureFlag{Feature: dim, Reason: "zero_variance", Value: 0})
		}

		if skew := skewness(values); math.Abs(skew) > highSkewThreshold {
			report.Flags = append(report.Flags, FeatureFlag{Feature: dim, Reason: "high_skewness", Value: skew})
		}
	}

	for name, card := range categoricalCardinality {
		if card > highCardinalityThreshold {
			report.Flags = append(report.Flags, FeatureFlag{Feature: name, Reason: "high_cardinality", Value: float64(card)})
		}
	}

	names := make([]string, 0, len(series))
	for name := range series {
		names = append(names, name)
	}
	for i := 0; i < len(names); i++ {
		for j := i + 1; j < len(names); j++ {
			a, b := names[i], names[j]
			if len(series[a]) != len(series[b]) || len(series[a]) < 2 {
				continue
			}
			corr := pearson(series[a], series[b])
			if math.Abs(corr) >= highCorrelationThreshold {
				report.CorrelatedPairs = append(report.CorrelatedPairs, CorrelatedPair{FeatureA: a, FeatureB: b, Correlation: corr})
			}
		}
	}

	return report
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func variance(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	m := mean(values)
	var sqSum float64
	for _, v := range values {
		d := v - m
		sqSum += d * d
	}
	return sqSum / float64(len(values))
}

func skewness(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	m := mean(values)
	std := math.Sqrt(variance(values))
	if std == 0 {
		return 0
	}
	var cube float64
	for _, v := range values {
		cube += math.Pow((v-m)/std, 3)
	}
	return cube / float64(len(values))
}

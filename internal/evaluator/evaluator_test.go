package evaluator

import (
	"os"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"synthledger/internal/graph"
)

func testLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	l.SetLevel(logrus.ErrorLevel)
	return l
}

func TestNewRejectsBadSignificanceThreshold(t *testing.T) {
	_, err := New(Config{SignificanceThreshold: 1.5}, testLogger())
	assert.Error(t, err)
}

func TestEvaluateEmptyInputIsValid(t *testing.T) {
	ev, err := New(Config{SignificanceThreshold: 0.01}, testLogger())
	require.NoError(t, err)

	report := ev.Evaluate(Input{})

	assert.True(t, report.IsValid)
	assert.Equal(t, 0, report.Temporal.DaysCompared)
	assert.Equal(t, 0, report.Features.SamplesEvaluated)
	assert.Equal(t, 0, report.Graph.Components)
	assert.Nil(t, report.BaselineSummary)
}

func TestEvaluateTemporalPatternTracksWeekendDip(t *testing.T) {
	ev, err := New(Config{SignificanceThreshold: 0.01}, testLogger())
	require.NoError(t, err)

	start := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC) // a Monday
	observed := make(map[time.Time]int, 14)
	for i := 0; i < 14; i++ {
		d := start.AddDate(0, 0, i)
		if d.Weekday() == time.Saturday || d.Weekday() == time.Sunday {
			observed[d] = 2
		} else {
			observed[d] = 100
		}
	}

	report := ev.EvaluateTemporalPattern(observed)
	assert.Equal(t, 14, report.DaysCompared)
	assert.Greater(t, report.Correlation, 0.5)
}

func TestEvaluateFeaturesFlagsZeroVarianceAndCardinality(t *testing.T) {
	ev, err := New(Config{SignificanceThreshold: 0.01}, testLogger())
	require.NoError(t, err)

	numeric := []map[string]float64{
		{"constant": 5, "varied": 1},
		{"constant": 5, "varied": 2},
		{"constant": 5, "varied": 3},
		{"constant": 5, "varied": 4},
	}
	cardinality := map[string]int{"vendor_id": 5000}

	report := ev.EvaluateFeatures(numeric, cardinality)

	var sawZeroVariance, sawHighCardinality bool
	for _, f := range report.Flags {
		if f.Feature == "constant" && f.Reason == "zero_variance" {
			sawZeroVariance = true
		}
		if f.Feature == "vendor_id" && f.Reason == "high_cardinality" {
			sawHighCardinality = true
		}
	}
	assert.True(t, sawZeroVariance)
	assert.True(t, sawHighCardinality)
}

func TestEvaluateFeaturesFlagsHighMissingRate(t *testing.T) {
	ev, err := New(Config{SignificanceThreshold: 0.01}, testLogger())
	require.NoError(t, err)

	numeric := []map[string]float64{
		{"sparse": 1, "dense": 1},
		{"dense": 2},
		{"dense": 3},
		{"dense": 4},
		{"dense": 5},
	}

	report := ev.EvaluateFeatures(numeric, nil)

	var sawMissing bool
	for _, f := range report.Flags {
		if f.Feature == "sparse" && f.Reason == "high_missing_rate" {
			sawMissing = true
		}
	}
	assert.True(t, sawMissing)
}

func TestEvaluateFeaturesReportsCorrelatedPairs(t *testing.T) {
	ev, err := New(Config{SignificanceThreshold: 0.01}, testLogger())
	require.NoError(t, err)

	numeric := make([]map[string]float64, 20)
	for i := range numeric {
		v := float64(i)
		numeric[i] = map[string]float64{"a": v, "b": v * 2, "c": float64(20 - i)}
	}

	report := ev.EvaluateFeatures(numeric, nil)
	require.NotEmpty(t, report.CorrelatedPairs)

	found := false
	for _, p := range report.CorrelatedPairs {
		if (p.FeatureA == "a" && p.FeatureB == "b") || (p.FeatureA == "b" && p.FeatureB == "a") {
			found = true
			assert.Greater(t, p.Correlation, 0.95)
		}
	}
	assert.True(t, found)
}

func TestEvaluateGraphOnEmptyGraph(t *testing.T) {
	ev, err := New(Config{SignificanceThreshold: 0.01}, testLogger())
	require.NoError(t, err)

	report := ev.EvaluateGraph(graph.New())
	assert.Equal(t, 0, report.Components)
	assert.Equal(t, 0.0, report.Density)
}

func TestEvaluateGraphComputesConnectivityAndDegrees(t *testing.T) {
	ev, err := New(Config{SignificanceThreshold: 0.01}, testLogger())
	require.NoError(t, err)

	g := graph.New()
	for _, id := range []string{"a", "b", "c", "isolated"} {
		g.EnsureNode(id, "account")
	}
	g.AddEdge(&graph.Edge{ID: "e1", From: "a", To: "b", Kind: "transaction"})
	g.AddEdge(&graph.Edge{ID: "e2", From: "b", To: "c", Kind: "transaction"})

	report := ev.EvaluateGraph(g)

	assert.Equal(t, 2, report.Components) // {a,b,c} and {isolated}
	assert.InDelta(t, 0.75, report.LargestComponentRatio, 1e-9)
	assert.InDelta(t, 0.25, report.IsolatedNodeRatio, 1e-9)
	assert.Greater(t, report.DegreeMean, 0.0)
}

func TestCompareToBaselineClassifiesSeverityAndDirection(t *testing.T) {
	ev, err := New(Config{
		SignificanceThreshold: 0.001,
		MetricDirections:      map[string]bool{"error_rate": false},
	}, testLogger())
	require.NoError(t, err)

	baseline := map[string]float64{
		"throughput": 1000,
		"error_rate": 0.01,
		"unchanged":  50,
	}
	current := map[string]float64{
		"throughput": 1250, // +25%, higher is better by default -> improved, critical
		"error_rate": 0.015, // +50%, higher is worse -> regressed, critical
		"unchanged":  50,
	}

	summary := ev.CompareToBaseline(baseline, current)
	require.Len(t, summary.Comparisons, 3)

	byMetric := make(map[string]MetricComparison, len(summary.Comparisons))
	for _, c := range summary.Comparisons {
		byMetric[c.Metric] = c
	}

	assert.Equal(t, Improved, byMetric["throughput"].Direction)
	assert.Equal(t, SeverityCritical, byMetric["throughput"].Severity)

	assert.Equal(t, Regressed, byMetric["error_rate"].Direction)
	assert.Equal(t, SeverityCritical, byMetric["error_rate"].Severity)

	assert.Equal(t, Unchanged, byMetric["unchanged"].Direction)
	assert.Equal(t, SeverityNegligible, byMetric["unchanged"].Severity)

	assert.Equal(t, 1, summary.RegressedCount)
	assert.Equal(t, 2, summary.CriticalCount)
}

func TestCompareToBaselineSkipsMetricsMissingFromEither(t *testing.T) {
	ev, err := New(Config{SignificanceThreshold: 0.01}, testLogger())
	require.NoError(t, err)

	summary := ev.CompareToBaseline(map[string]float64{"only_in_baseline": 1}, map[string]float64{"only_in_current": 2})
	assert.Empty(t, summary.Comparisons)
}

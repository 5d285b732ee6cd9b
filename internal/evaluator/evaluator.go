// Package evaluator implements the evaluator subsystem: it scores a
// finished corpus's temporal pattern fidelity, audits its feature
// distributions, analyzes the connectivity of a built graph, and optionally
// compares a run's metrics against a recorded baseline.
//
// Logging and metrics conventions follow the rest of the module (see
// DESIGN.md). Of internal/graph it uses only the Graph type and its Out/In
// adjacency; the temporal weighting and Pearson correlation are computed in
// this package.
package evaluator

import (
	"time"

	"github.com/sirupsen/logrus"

	"synthledger/internal/graph"
	"synthledger/internal/metrics"
	"synthledger/pkg/errors"
)

// Config parameterizes one evaluation pass: the significance threshold the
// baseline comparison uses to classify a change as Unchanged (absolute delta
// at or below it) and, per metric, whether a higher value is better.
type Config struct {
	SignificanceThreshold float64
	MetricDirections      map[string]bool
}

// Validate fails at construction per the Configuration error kind.
func (c Config) Validate() error {
	if c.SignificanceThreshold < 0 || c.SignificanceThreshold > 1 {
		return errors.ConfigurationError("evaluator.validate", "significance_threshold must be within [0,1]")
	}
	return nil
}

// Evaluator runs the four analyses below against a finished corpus.
type Evaluator struct {
	cfg    Config
	logger *logrus.Logger
}

// New validates cfg and constructs an Evaluator.
func New(cfg Config, logger *logrus.Logger) (*Evaluator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.MetricDirections == nil {
		cfg.MetricDirections = map[string]bool{}
	}
	return &Evaluator{cfg: cfg, logger: logger}, nil
}

// Report is the evaluator's full output for one corpus: always populated
// with IsValid=true and zero-valued sections when Evaluate is called with
// no data.
type Report struct {
	IsValid         bool
	Temporal        *TemporalReport
	Features        *FeatureReport
	Graph           *GraphReport
	BaselineSummary *BaselineSummary
}

// Input bundles everything one evaluation pass can look at. Baseline is
// optional: when nil, Report.BaselineSummary is left nil rather than an
// empty comparison (there is nothing to compare against).
type Input struct {
	ObservedDailyVolume    map[time.Time]int
	NumericFeatures        []map[string]float64
	CategoricalCardinality map[string]int
	Graph                  *graph.Graph
	Baseline               map[string]float64
	CurrentMetrics         map[string]float64
}

// Evaluate runs every applicable analysis against in and assembles a single
// Report. Called with a zero Input it still returns IsValid=true with
// zero-valued sections.
func (e *Evaluator) Evaluate(in Input) *Report {
	report := &Report{
		IsValid:  true,
		Temporal: e.EvaluateTemporalPattern(in.ObservedDailyVolume),
		Features: e.EvaluateFeatures(in.NumericFeatures, in.CategoricalCardinality),
	}

	if in.Graph != nil {
		report.Graph = e.EvaluateGraph(in.Graph)
	} else {
		report.Graph = &GraphReport{}
	}

	if in.Baseline != nil {
		report.BaselineSummary = e.CompareToBaseline(in.Baseline, in.CurrentMetrics)
	}

	for _, flag := range report.Features.Flags {
		metrics.RecordEvaluationFinding(flag.Reason)
	}
	if report.BaselineSummary != nil {
		for _, cmp := range report.BaselineSummary.Comparisons {
			if cmp.Direction == Regressed {
				metrics.RecordEvaluationFinding(string(cmp.Severity))
			}
		}
	}

	if e.logger != nil {
		e.logger.WithField("component", "evaluator").WithField("days_compared", report.Temporal.DaysCompared).
			Info("evaluation pass complete")
	}

	return report
}

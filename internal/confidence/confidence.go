// Package confidence implements the confidence & provenance engine: a
// weighted four-factor anomaly score plus the structured causal-reason and
// strategy provenance attached to every LabeledAnomaly.
//
// The weighted-factor shape, a table of per-type base scores blended with
// live context and summed under validated weights, keeps scoring
// consistent across every anomaly category the generators produce.
package confidence

import (
	"fmt"
	"math"
	"time"

	"github.com/sirupsen/logrus"

	"synthledger/pkg/errors"
	"synthledger/pkg/types"
)

// Category is the top-level anomaly category an AnomalyType belongs to.
type Category string

const (
	CategoryFraud      Category = "fraud"
	CategoryError      Category = "error"
	CategoryProcess    Category = "process_issue"
	CategoryStatistical Category = "statistical"
	CategoryRelational Category = "relational"
	CategoryCustom     Category = "custom"
)

// AnomalyType names the specific anomaly within its category, matching the
// original's AnomalyType/FraudType/ErrorType/... enums closely enough to
// drive the same clarity/detectability tables.
type AnomalyType struct {
	Category Category
	Name     string
}

// Config holds the four component weights (must sum to 1 ± 0.01).
type Config struct {
	PatternClarityWeight float64
	StrengthWeight       float64
	DetectabilityWeight  float64
	ContextWeight        float64
}

// DefaultConfig matches the original's defaults (0.30/0.25/0.25/0.20).
func DefaultConfig() Config {
	return Config{
		PatternClarityWeight: 0.30,
		StrengthWeight:       0.25,
		DetectabilityWeight:  0.25,
		ContextWeight:        0.20,
	}
}

// Validate checks the weights sum to 1.0 within tolerance.
func (c Config) Validate() error {
	sum := c.PatternClarityWeight + c.StrengthWeight + c.DetectabilityWeight + c.ContextWeight
	if sum < 0.99 || sum > 1.01 {
		return errors.ConfigurationError("confidence.Validate",
			fmt.Sprintf("confidence weights must sum to 1.0 +/- 0.01, got %.4f", sum))
	}
	return nil
}

// Context carries the evidence a single confidence calculation draws on.
type Context struct {
	Amount           *float64
	ExpectedAmount   *float64
	PriorAnomalyCount int
	EntityRiskScore  float64
	AutoDetected     bool
	EvidenceCount    int
	PatternConfidence float64
	TimingScore      float64
}

// Calculator scores anomalies under a validated Config.
type Calculator struct {
	config Config
	logger *logrus.Logger
}

// New constructs a Calculator, validating the weights once.
func New(config Config, logger *logrus.Logger) (*Calculator, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Calculator{config: config, logger: logger}, nil
}

// Calculate returns the weighted confidence score (clamped to [0,1]) and its
// contributing factors for one anomaly instance.
func (c *Calculator) Calculate(t AnomalyType, ctx Context) (float64, []types.ConfidenceFactor) {
	clarity := c.patternClarity(t, ctx)
	strength := c.anomalyStrength(t, ctx)
	detect := c.detectability(t, ctx)
	match := c.contextMatch(ctx)

	factors := []types.ConfidenceFactor{
		{Name: "pattern_clarity", Value: clarity, Weight: c.config.PatternClarityWeight, Contributed: clarity * c.config.PatternClarityWeight},
		{Name: "strength", Value: strength, Weight: c.config.StrengthWeight, Contributed: strength * c.config.StrengthWeight},
		{Name: "detectability", Value: detect, Weight: c.config.DetectabilityWeight, Contributed: detect * c.config.DetectabilityWeight},
		{Name: "context_match", Value: match, Weight: c.config.ContextWeight, Contributed: match * c.config.ContextWeight},
	}

	score := clarity*c.config.PatternClarityWeight +
		strength*c.config.StrengthWeight +
		detect*c.config.DetectabilityWeight +
		match*c.config.ContextWeight

	return clampUnit(score), factors
}

var fraudClarity = map[string]float64{
	"duplicate_payment":              0.95,
	"self_approval":                  0.90,
	"segregation_of_duties_violation": 0.85,
	"just_below_threshold":           0.80,
	"round_dollar_manipulation":      0.70,
	"fictitious_vendor":              0.60,
	"collusive_approval":             0.50,
}

var errorClarity = map[string]float64{
	"duplicate_entry":  0.95,
	"reversed_amount":  0.90,
	"unbalanced_entry": 0.95,
	"missing_field":    0.85,
}

var processClarity = map[string]float64{
	"skipped_approval":       0.90,
	"missing_documentation":  0.85,
	"manual_override":        0.80,
}

var statisticalClarity = map[string]float64{
	"benford_violation":       0.75,
	"statistical_outlier":     0.70,
	"unusually_high_amount":   0.65,
}

var relationalClarity = map[string]float64{
	"circular_transaction":     0.85,
	"dormant_account_activity": 0.80,
}

func lookupOr(table map[string]float64, key string, fallback float64) float64 {
	if v, ok := table[key]; ok {
		return v
	}
	return fallback
}

func (c *Calculator) patternClarity(t AnomalyType, ctx Context) float64 {
	var base float64
	switch t.Category {
	case CategoryFraud:
		base = lookupOr(fraudClarity, t.Name, 0.65)
	case CategoryError:
		base = lookupOr(errorClarity, t.Name, 0.75)
	case CategoryProcess:
		base = lookupOr(processClarity, t.Name, 0.70)
	case CategoryStatistical:
		base = lookupOr(statisticalClarity, t.Name, 0.60)
	case CategoryRelational:
		base = lookupOr(relationalClarity, t.Name, 0.65)
	default:
		base = 0.50
	}
	return clampUnit(base*0.7 + ctx.PatternConfidence*0.3)
}

func (c *Calculator) anomalyStrength(t AnomalyType, ctx Context) float64 {
	amountStrength := 0.5
	if ctx.Amount != nil && ctx.ExpectedAmount != nil {
		expected := *ctx.ExpectedAmount
		deviation := math.Abs(*ctx.Amount - expected)
		if math.Abs(expected) > 0.01 {
			ratio := deviation / math.Abs(expected)
			if ratio > 1.0 {
				ratio = 1.0
			}
			amountStrength = ratio
		}
	}

	var typeModifier float64
	switch t.Category {
	case CategoryFraud:
		typeModifier = 1.2
	case CategoryStatistical:
		typeModifier = 1.0
	case CategoryRelational:
		typeModifier = 1.1
	case CategoryError:
		typeModifier = 0.9
	case CategoryProcess:
		typeModifier = 0.85
	default:
		typeModifier = 1.0
	}

	return clampUnit(amountStrength * typeModifier)
}

var fraudDetectability = map[string]float64{
	"duplicate_payment":   0.90,
	"self_approval":       0.85,
	"just_below_threshold": 0.75,
	"collusive_approval":  0.40,
	"fictitious_vendor":   0.45,
}

var errorDetectability = map[string]float64{
	"unbalanced_entry": 1.0,
	"duplicate_entry":  0.95,
	"missing_field":    0.90,
}

func (c *Calculator) detectability(t AnomalyType, ctx Context) float64 {
	var base float64
	switch t.Category {
	case CategoryError:
		base = lookupOr(errorDetectability, t.Name, 0.80)
	case CategoryFraud:
		base = lookupOr(fraudDetectability, t.Name, 0.60)
	case CategoryProcess:
		base = 0.70
	case CategoryStatistical:
		base = 0.65
	case CategoryRelational:
		base = 0.55
	default:
		base = 0.50
	}
	boost := 0.0
	if ctx.AutoDetected {
		boost = 0.2
	}
	return clampUnit(base + boost)
}

func (c *Calculator) contextMatch(ctx Context) float64 {
	score := ctx.EntityRiskScore * 0.4
	score += minF(float64(ctx.PriorAnomalyCount)/5.0, 1.0) * 0.3
	score += minF(float64(ctx.EvidenceCount)/3.0, 1.0) * 0.2
	score += ctx.TimingScore * 0.1
	return clampUnit(score)
}

func clampUnit(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func minF(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

// LabelParams carries the identifying fields a caller supplies when turning
// a scored anomaly into the append-only LabeledAnomaly record.
type LabelParams struct {
	ID             string
	DocumentID     string
	DocumentType   string
	Company        string
	Date           time.Time
	RelatedEntities []string
	RunID          string
	GenerationSeed uint64
	CausalReason   types.CausalReason
	Strategy       types.Strategy
	ParentID       string
	ChildIDs       []string
	ScenarioID     string
	MonetaryImpact *string
	Description    string
}

// BuildLabel scores the anomaly and assembles the full LabeledAnomaly,
// attaching the structured strategy and causal reason so downstream
// consumers get a full provenance trail without recomputing it.
func (c *Calculator) BuildLabel(t AnomalyType, ctx Context, p LabelParams) types.LabeledAnomaly {
	score, factors := c.Calculate(t, ctx)
	severity := severityFromScore(score)

	return types.LabeledAnomaly{
		ID:                 p.ID,
		Category:           string(t.Category),
		Type:               t.Name,
		Date:               p.Date,
		Confidence:         score,
		Factors:            factors,
		Severity:           severity,
		MonetaryImpact:     p.MonetaryImpact,
		RelatedEntities:    p.RelatedEntities,
		CausalReason:       p.CausalReason,
		StructuredStrategy: p.Strategy,
		ParentID:           p.ParentID,
		ChildIDs:           p.ChildIDs,
		ScenarioID:         p.ScenarioID,
		RunID:              p.RunID,
		GenerationSeed:     p.GenerationSeed,
		DocumentID:         p.DocumentID,
		DocumentType:       p.DocumentType,
		Company:            p.Company,
		Description:        p.Description,
		IsInjected:         true,
	}
}

func severityFromScore(score float64) int {
	switch {
	case score >= 0.8:
		return 5
	case score >= 0.6:
		return 4
	case score >= 0.4:
		return 3
	case score >= 0.2:
		return 2
	default:
		return 1
	}
}

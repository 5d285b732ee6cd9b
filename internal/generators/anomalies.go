package generators

import (
	"fmt"
	"time"

	"synthledger/internal/confidence"
	"synthledger/pkg/decimal"
	"synthledger/pkg/types"
)

// AmountAnomalyContext bundles what a generator observed while drawing a
// non-Normal amount so the confidence engine can
// score it without the generator reimplementing the weighting itself.
type AmountAnomalyContext struct {
	DocumentID      string
	DocumentType    string
	Company         string
	Date            time.Time
	Amount          decimal.Decimal
	ExpectedAmount  decimal.Decimal
	EntityRiskScore float64
	RunID           string
	GenerationSeed  uint64
	CausalReason    types.CausalReason
	StrategyName    string
}

// anomalyTypeForPattern maps a fraud amount pattern to its anomaly taxonomy
// key so the confidence calculator's clarity/detectability tables apply.
func anomalyTypeForPattern(patternName string) confidence.AnomalyType {
	switch patternName {
	case "statistically_improbable":
		return confidence.AnomalyType{Category: confidence.CategoryStatistical, Name: "benford_violation"}
	case "threshold_adjacent":
		return confidence.AnomalyType{Category: confidence.CategoryFraud, Name: "just_below_threshold"}
	case "obvious_round_numbers":
		return confidence.AnomalyType{Category: confidence.CategoryFraud, Name: "round_dollar_manipulation"}
	default:
		return confidence.AnomalyType{Category: confidence.CategoryStatistical, Name: "statistical_outlier"}
	}
}

// BuildAmountAnomalyLabel scores a non-Normal amount draw through the
// confidence engine and assembles the full LabeledAnomaly, so every
// generator that injects a fraud amount pattern gets the same provenance
// trail instead of hand-rolling one.
func BuildAmountAnomalyLabel(calc *confidence.Calculator, patternName string, ctx AmountAnomalyContext) types.LabeledAnomaly {
	amt := ctx.Amount.Float64()
	expected := ctx.ExpectedAmount.Float64()

	t := anomalyTypeForPattern(patternName)
	impact := ctx.Amount.String()

	label := calc.BuildLabel(t, confidence.Context{
		Amount:          &amt,
		ExpectedAmount:  &expected,
		EntityRiskScore: ctx.EntityRiskScore,
		AutoDetected:    true,
		PatternConfidence: 0.6,
	}, confidence.LabelParams{
		ID:             fmt.Sprintf("anomaly-%s-%s", ctx.DocumentID, patternName),
		DocumentID:     ctx.DocumentID,
		DocumentType:   ctx.DocumentType,
		Company:        ctx.Company,
		Date:           ctx.Date,
		RunID:          ctx.RunID,
		GenerationSeed: ctx.GenerationSeed,
		CausalReason:   ctx.CausalReason,
		Strategy:       types.Strategy{Name: ctx.StrategyName, Parameters: map[string]string{"pattern": patternName}},
		MonetaryImpact: &impact,
		Description:    fmt.Sprintf("amount %s sampled under fraud pattern %s", ctx.Amount.String(), patternName),
	})
	label.DetectedAt = ctx.Date
	return label
}

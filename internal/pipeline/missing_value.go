package pipeline

import (
	"math/rand/v2"

	"synthledger/pkg/types"
)

// MissingValueStrategyKind is one of the four missing-data mechanisms the
// injector supports.
type MissingValueStrategyKind int

const (
	MCAR MissingValueStrategyKind = iota // missing completely at random
	MAR                                  // missing at random, conditional on other fields
	MNAR                                 // missing not at random, value-pattern triggered
	Systematic                           // whole field-groups drop together
)

// MARCondition triggers a higher drop rate for TargetField when
// ConditionField equals ConditionValue.
type MARCondition struct {
	ConditionField string
	ConditionValue string
	TargetField    string
	Rate           float64
}

// MNARPattern drops TargetField whenever it currently holds one of the
// listed trigger values (e.g. very small or very large amounts are more
// likely to go unrecorded).
type MNARPattern struct {
	TargetField    string
	TriggerValues  []string
	Rate           float64
}

// MissingValueConfig parameterizes the missing-value injector.
type MissingValueConfig struct {
	Strategy          MissingValueStrategyKind
	GlobalRate        float64
	PerFieldRate      map[string]float64 // overrides GlobalRate for named fields
	MARBaseRate       float64
	MARConditions     []MARCondition
	MNARPatterns      []MNARPattern
	SystematicGroups  [][]string
	SystematicRate    float64
}

// missingRepresentations is the fixed set of surface values a missing
// field is replaced with.
var missingRepresentations = []string{"", "N/A", "NULL", "NONE", "#N/A", "-", "?"}

// MissingValueProcessor injects missing-value defects per Config.Strategy,
// never dropping a field named in RequiredFields.
type MissingValueProcessor struct {
	cfg    MissingValueConfig
	rnd    *rand.Rand
}

// NewMissingValueProcessor constructs a processor over its own RNG stream
//, so it is deterministic given the same master seed and independent
// of every other processor's draws.
func NewMissingValueProcessor(cfg MissingValueConfig, rnd *rand.Rand) *MissingValueProcessor {
	return &MissingValueProcessor{cfg: cfg, rnd: rnd}
}

func (p *MissingValueProcessor) Name() string { return "missing_value_injector" }

func (p *MissingValueProcessor) rateFor(field string) float64 {
	if r, ok := p.cfg.PerFieldRate[field]; ok {
		return r
	}
	return p.cfg.GlobalRate
}

func (p *MissingValueProcessor) Process(r *FieldRecord, ctx *types.ProcessContext) ([]types.Label, error) {
	var labels []types.Label

	switch p.cfg.Strategy {
	case Systematic:
		for _, group := range p.cfg.SystematicGroups {
			if p.rnd.Float64() >= p.cfg.SystematicRate {
				continue
			}
			for _, field := range group {
				if lbl, ok := p.drop(r, field); ok {
					labels = append(labels, lbl)
				}
			}
		}
	case MAR:
		for _, cond := range p.cfg.MARConditions {
			if r.Fields[cond.ConditionField] != cond.ConditionValue {
				continue
			}
			if p.rnd.Float64() < cond.Rate {
				if lbl, ok := p.drop(r, cond.TargetField); ok {
					labels = append(labels, lbl)
				}
			}
		}
		for _, field := range r.FieldOrder {
			if p.rnd.Float64() < p.cfg.MARBaseRate {
				if lbl, ok := p.drop(r, field); ok {
					labels = append(labels, lbl)
				}
			}
		}
	case MNAR:
		for _, pat := range p.cfg.MNARPatterns {
			val, present := r.Fields[pat.TargetField]
			if !present {
				continue
			}
			triggered := false
			for _, tv := range pat.TriggerValues {
				if val == tv {
					triggered = true
					break
				}
			}
			if triggered && p.rnd.Float64() < pat.Rate {
				if lbl, ok := p.drop(r, pat.TargetField); ok {
					labels = append(labels, lbl)
				}
			}
		}
	default: // MCAR
		for _, field := range r.FieldOrder {
			if p.rnd.Float64() < p.rateFor(field) {
				if lbl, ok := p.drop(r, field); ok {
					labels = append(labels, lbl)
				}
			}
		}
	}

	return labels, nil
}

func (p *MissingValueProcessor) drop(r *FieldRecord, field string) (types.QualityIssueLabel, bool) {
	if r.IsRequired(field) {
		return types.QualityIssueLabel{}, false
	}
	original, ok := r.Fields[field]
	if !ok || original == "" {
		return types.QualityIssueLabel{}, false
	}
	repr := missingRepresentations[p.rnd.IntN(len(missingRepresentations))]
	r.Fields[field] = repr

	return types.QualityIssueLabel{
		DocumentID:    r.DocumentID,
		Kind:          types.QualityIssueMissingValue,
		Subtype:       strategyName(p.cfg.Strategy),
		Field:         field,
		OriginalValue: original,
		ModifiedValue: repr,
		Severity:      2,
		Producer:      p.Name(),
		DetectedAt:    r.Date,
	}, true
}

func strategyName(k MissingValueStrategyKind) string {
	switch k {
	case MAR:
		return "mar"
	case MNAR:
		return "mnar"
	case Systematic:
		return "systematic"
	default:
		return "mcar"
	}
}

package pipeline

import (
	"fmt"
	"math/rand/v2"

	"synthledger/pkg/types"
)

// DuplicateSubtype is one of the three duplication fidelities the
// injector produces.
type DuplicateSubtype string

const (
	DuplicateExact DuplicateSubtype = "exact"
	DuplicateNear  DuplicateSubtype = "near"  // one field perturbed
	DuplicateFuzzy DuplicateSubtype = "fuzzy" // several fields perturbed, still recognizable
)

// DuplicateConfig parameterizes the duplicate injector.
type DuplicateConfig struct {
	Rate          float64
	NearFields    []string // fields eligible for near-duplicate perturbation
	NearProb      float64  // probability of Near vs Exact given a duplicate fires
	FuzzyProb     float64  // probability of Fuzzy vs Near given not Exact
}

// DuplicateProcessor emits a second FieldRecord cloned from the current one
//. Per the pipeline's documented ordering constraint this processor
// must run before the field-level mutators, so a near/fuzzy duplicate's
// perturbations are independent of whatever the later processors do to the
// original.
//
// Emitted duplicates are appended to Emitted rather than returned from
// Process, since Process's signature only allows mutating the record passed
// in and returning labels for it — the duplicate is a second record with its
// own identity that the caller (the generation driver) must also push
// downstream.
type DuplicateProcessor struct {
	cfg     DuplicateConfig
	rnd     *rand.Rand
	counter int
	Emitted []*FieldRecord
}

func NewDuplicateProcessor(cfg DuplicateConfig, rnd *rand.Rand) *DuplicateProcessor {
	return &DuplicateProcessor{cfg: cfg, rnd: rnd}
}

func (p *DuplicateProcessor) Name() string { return "duplicate_injector" }

func (p *DuplicateProcessor) Process(r *FieldRecord, ctx *types.ProcessContext) ([]types.Label, error) {
	if p.rnd.Float64() >= p.cfg.Rate {
		return nil, nil
	}

	p.counter++
	dup := r.Clone(fmt.Sprintf("%s-DUP%d", r.DocumentID, p.counter))

	subtype := DuplicateExact
	if p.rnd.Float64() < p.cfg.NearProb {
		subtype = DuplicateNear
		fieldCount := 1
		if p.rnd.Float64() < p.cfg.FuzzyProb {
			subtype = DuplicateFuzzy
			fieldCount = 2 + p.rnd.IntN(3)
		}
		p.perturb(dup, fieldCount)
	}

	p.Emitted = append(p.Emitted, dup)

	return []types.Label{types.QualityIssueLabel{
		DocumentID:    dup.DocumentID,
		Kind:          types.QualityIssueDuplicate,
		Subtype:       string(subtype),
		Field:         "",
		OriginalValue: r.DocumentID,
		ModifiedValue: dup.DocumentID,
		Severity:      3,
		Producer:      p.Name(),
		DetectedAt:    r.Date,
	}}, nil
}

// perturb lightly mutates up to n of the configured near-duplicate fields on
// dup so it reads as "almost but not quite" the original rather than a
// byte-identical copy.
func (p *DuplicateProcessor) perturb(dup *FieldRecord, n int) {
	if len(p.cfg.NearFields) == 0 {
		return
	}
	touched := 0
	order := p.rnd.Perm(len(p.cfg.NearFields))
	for _, idx := range order {
		if touched >= n {
			break
		}
		field := p.cfg.NearFields[idx]
		val, ok := dup.Fields[field]
		if !ok || val == "" {
			continue
		}
		dup.Fields[field] = perturbString(p.rnd, val)
		touched++
	}
}

func perturbString(rnd *rand.Rand, s string) string {
	b := []byte(s)
	i := rnd.IntN(len(b))
	b[i] = b[i] + byte(1+rnd.IntN(2))
	return string(b)
}

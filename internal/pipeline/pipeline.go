package pipeline

import (
	"time"

	"synthledger/internal/rng"
	"synthledger/pkg/types"
)

// Pipeline drives an ordered list of processors sequentially per record
//. Each processor may mutate the record in place and emit zero or
// more labels; the pipeline aggregates per-processor stats as it goes.
//
// Ordering constraint: the duplicate injector must be positioned
// before the field-level mutators so near-duplicates inherit independent
// mutations — Pipeline does not enforce this itself (it runs whatever order
// it is given), the caller is responsible for constructing the processor
// list in the required order; see NewDefaultPipeline.
type Pipeline struct {
	processors []types.Processor[*FieldRecord]
	stats      map[string]*types.ProcessorStats
}

// New constructs a Pipeline over the given ordered processor list.
func New(processors ...types.Processor[*FieldRecord]) *Pipeline {
	stats := make(map[string]*types.ProcessorStats, len(processors))
	for _, p := range processors {
		stats[p.Name()] = &types.ProcessorStats{Name: p.Name()}
	}
	return &Pipeline{processors: processors, stats: stats}
}

// Run drives record through every processor in order, returning every label
// emitted by any processor. A processor error is recorded in that
// processor's stats and the pipeline continues to the next processor — a
// single injector failing on one record must not drop the rest of the
// record's processing.
func (p *Pipeline) Run(record *FieldRecord, ctx *types.ProcessContext) []types.Label {
	var labels []types.Label
	for _, proc := range p.processors {
		start := time.Now()
		before := snapshot(record)

		out, err := proc.Process(record, ctx)

		st := p.stats[proc.Name()]
		st.RecordsProcessed++
		st.TotalDuration += time.Since(start)
		if err != nil {
			st.Errors++
			continue
		}
		if modified(before, record) {
			st.RecordsModified++
		}
		st.LabelsEmitted += uint64(len(out))
		labels = append(labels, out...)
	}
	return labels
}

// Stats returns a stable-ordered snapshot of every processor's aggregated
// stats.
func (p *Pipeline) Stats() []types.ProcessorStats {
	out := make([]types.ProcessorStats, 0, len(p.processors))
	for _, proc := range p.processors {
		out = append(out, *p.stats[proc.Name()])
	}
	return out
}

func snapshot(r *FieldRecord) map[string]string {
	m := make(map[string]string, len(r.Fields))
	for k, v := range r.Fields {
		m[k] = v
	}
	return m
}

func modified(before map[string]string, r *FieldRecord) bool {
	if len(before) != len(r.Fields) {
		return true
	}
	for k, v := range before {
		if r.Fields[k] != v {
			return true
		}
	}
	return false
}

// DefaultPipelineConfig names which fields each format-sensitive injector
// may touch. Field names follow the generators' FieldRecord projections
//: date-shaped fields, amount-shaped fields, identifier-shaped
// fields, and free-text name/description fields.
type DefaultPipelineConfig struct {
	DateFields       []string
	AmountFields     []string
	IdentifierFields []string
	CaseFields       []string

	MissingValueRate float64
	TypoRate         float64
	FormatRate       float64
	DuplicateRate    float64
	EncodingRate     float64
}

// DefaultDefectRates mirrors the moderate defaults a typical scenario
// config uses.
func DefaultDefectRates() DefaultPipelineConfig {
	return DefaultPipelineConfig{
		MissingValueRate: 0.02,
		TypoRate:         0.01,
		FormatRate:       0.03,
		DuplicateRate:    0.005,
		EncodingRate:     0.005,
	}
}

// NewDefaultPipeline assembles the five post-processor injectors in the
// required order: the duplicate injector first, so a near/fuzzy
// duplicate's perturbations are independent of whatever the field-level
// mutators do afterward, followed by missing-value, typo, format-variation,
// and encoding-corruption. Each processor draws from its own named RNG
// stream so defect injection is deterministic and independent of
// generation order.
func NewDefaultPipeline(svc *rng.Service, cfg DefaultPipelineConfig) (*Pipeline, *DuplicateProcessor) {
	dup := NewDuplicateProcessor(DuplicateConfig{
		Rate:       cfg.DuplicateRate,
		NearFields: append(append([]string{}, cfg.AmountFields...), cfg.IdentifierFields...),
		NearProb:   0.6,
		FuzzyProb:  0.3,
	}, svc.StreamFor("pipeline/duplicate"))

	missing := NewMissingValueProcessor(MissingValueConfig{
		Strategy:   MCAR,
		GlobalRate: cfg.MissingValueRate,
	}, svc.StreamFor("pipeline/missing_value"))

	typo := NewTypoProcessor(TypoConfig{
		Fields: append(append([]string{}, cfg.IdentifierFields...), cfg.CaseFields...),
		Rate:   cfg.TypoRate,
	}, svc.StreamFor("pipeline/typo"))

	var specs []FormatFieldSpec
	for _, f := range cfg.DateFields {
		specs = append(specs, FormatFieldSpec{Field: f, Kind: FormatDate})
	}
	for _, f := range cfg.AmountFields {
		specs = append(specs, FormatFieldSpec{Field: f, Kind: FormatAmount})
	}
	for _, f := range cfg.IdentifierFields {
		specs = append(specs, FormatFieldSpec{Field: f, Kind: FormatIdentifier})
	}
	for _, f := range cfg.CaseFields {
		specs = append(specs, FormatFieldSpec{Field: f, Kind: FormatCase})
	}
	format := NewFormatVariationProcessor(FormatVariationConfig{
		Specs: specs,
		Rate:  cfg.FormatRate,
	}, svc.StreamFor("pipeline/format_variation"))

	encoding := NewEncodingProcessor(EncodingConfig{
		Fields: cfg.CaseFields,
		Rate:   cfg.EncodingRate,
	}, svc.StreamFor("pipeline/encoding"))

	p := New(dup, missing, typo, format, encoding)
	return p, dup
}

package pipeline

import (
	"math/rand/v2"
	"testing"
	"time"

	"synthledger/internal/rng"
	"synthledger/pkg/types"
)

func testRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x1234))
}

func testRecord() *FieldRecord {
	return NewFieldRecord("DOC-0001", "ap_invoice", time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		[][2]string{
			{"company", "ACME-CO"},
			{"reference", "APINV-2026-00000001"},
			{"memo", "widgets and gadgets"},
			{"gross_amount", "1234.56"},
		}, map[string]bool{"reference": true})
}

func testCtx() *types.ProcessContext {
	return &types.ProcessContext{RunID: "test-run", Seed: 1, Sequence: 1, Timestamp: time.Now()}
}

func TestMissingValueProcessorNeverDropsRequiredField(t *testing.T) {
	p := NewMissingValueProcessor(MissingValueConfig{Strategy: MCAR, GlobalRate: 1.0}, testRand(1))
	r := testRecord()
	if _, err := p.Process(r, testCtx()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.Fields["reference"] != "APINV-2026-00000001" {
		t.Fatalf("required field was dropped: %q", r.Fields["reference"])
	}
}

func TestMissingValueProcessorDropsAtRateOne(t *testing.T) {
	p := NewMissingValueProcessor(MissingValueConfig{Strategy: MCAR, GlobalRate: 1.0}, testRand(2))
	r := testRecord()
	labels, err := p.Process(r, testCtx())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(labels) == 0 {
		t.Fatal("expected at least one dropped field at rate 1.0")
	}
	for _, l := range labels {
		ql, ok := l.(types.QualityIssueLabel)
		if !ok {
			t.Fatalf("unexpected label type: %T", l)
		}
		if ql.Kind != types.QualityIssueMissingValue {
			t.Fatalf("unexpected label kind: %v", ql.Kind)
		}
	}
}

func TestTypoProcessorMutatesEligibleField(t *testing.T) {
	p := NewTypoProcessor(TypoConfig{Fields: []string{"memo"}, Rate: 1.0}, testRand(3))
	r := testRecord()
	original := r.Fields["memo"]
	labels, err := p.Process(r, testCtx())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(labels) == 0 {
		t.Fatal("expected a typo label at rate 1.0")
	}
	if r.Fields["memo"] == original {
		t.Fatalf("memo field was not mutated despite a rate-1.0 typo label")
	}
}

func TestDuplicateProcessorEmitsClone(t *testing.T) {
	p := NewDuplicateProcessor(DuplicateConfig{Rate: 1.0, NearFields: []string{"gross_amount"}, NearProb: 1.0, FuzzyProb: 0.0}, testRand(4))
	r := testRecord()
	labels, err := p.Process(r, testCtx())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(labels) != 1 {
		t.Fatalf("expected exactly one duplicate label, got %d", len(labels))
	}
	if len(p.Emitted) != 1 {
		t.Fatalf("expected one emitted duplicate, got %d", len(p.Emitted))
	}
	dup := p.Emitted[0]
	if dup.DocumentID == r.DocumentID {
		t.Fatal("duplicate shares the original document ID")
	}
}

func TestEncodingProcessorCorruptsEligibleField(t *testing.T) {
	p := NewEncodingProcessor(EncodingConfig{Fields: []string{"memo"}, Rate: 1.0}, testRand(5))
	r := testRecord()
	r.Fields["memo"] = "café invoice"
	labels, err := p.Process(r, testCtx())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(labels) == 0 {
		t.Fatal("expected an encoding corruption label at rate 1.0")
	}
}

func TestFormatVariationProcessorRewritesDateSurface(t *testing.T) {
	p := NewFormatVariationProcessor(FormatVariationConfig{
		Specs: []FormatFieldSpec{{Field: "posting_date", Kind: FormatDate}},
		Rate:  1.0,
	}, testRand(6))
	r := testRecord()
	r.Fields["posting_date"] = "2026-03-01"
	r.FieldOrder = append(r.FieldOrder, "posting_date")

	labels, err := p.Process(r, testCtx())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(labels) == 0 {
		t.Fatal("expected a date format variation label at rate 1.0")
	}
	if r.Fields["posting_date"] == "2026-03-01" {
		t.Fatal("posting_date was not rewritten")
	}
}

func TestPipelineRunAggregatesStatsAcrossProcessors(t *testing.T) {
	missing := NewMissingValueProcessor(MissingValueConfig{Strategy: MCAR, GlobalRate: 0}, testRand(7))
	typo := NewTypoProcessor(TypoConfig{Fields: []string{"memo"}, Rate: 1.0}, testRand(8))
	pipe := New(missing, typo)

	r := testRecord()
	labels := pipe.Run(r, testCtx())
	if len(labels) == 0 {
		t.Fatal("expected the typo processor to emit at least one label")
	}

	stats := pipe.Stats()
	if len(stats) != 2 {
		t.Fatalf("expected stats for 2 processors, got %d", len(stats))
	}
	for _, s := range stats {
		if s.RecordsProcessed != 1 {
			t.Fatalf("processor %q: expected 1 record processed, got %d", s.Name, s.RecordsProcessed)
		}
	}
}

func TestNewDefaultPipelineOrdersDuplicateFirst(t *testing.T) {
	svc := rng.New(1)
	pipe, dup := NewDefaultPipeline(svc, DefaultDefectRates())
	if dup == nil {
		t.Fatal("expected a non-nil duplicate processor handle")
	}
	stats := pipe.Stats()
	if len(stats) == 0 || stats[0].Name != dup.Name() {
		t.Fatalf("expected the duplicate injector to run first, got stats order %+v", stats)
	}
}

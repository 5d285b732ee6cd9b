package confidence

import (
	"testing"
	"time"
)

func TestConfigValidateRejectsWeightsNotSummingToOne(t *testing.T) {
	cfg := Config{PatternClarityWeight: 0.5, StrengthWeight: 0.5, DetectabilityWeight: 0.5, ContextWeight: 0.5}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected an error for weights summing well past 1.0")
	}
}

func TestNewAcceptsDefaultConfig(t *testing.T) {
	c, err := New(DefaultConfig(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c == nil {
		t.Fatal("expected a non-nil Calculator")
	}
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	_, err := New(Config{PatternClarityWeight: 0.1}, nil)
	if err == nil {
		t.Fatal("expected an error constructing a Calculator from unvalidated weights")
	}
}

func TestCalculateScoreIsWithinUnitInterval(t *testing.T) {
	c, err := New(DefaultConfig(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	amt, expected := 50000.0, 1000.0
	score, factors := c.Calculate(AnomalyType{Category: CategoryFraud, Name: "duplicate_payment"}, Context{
		Amount:            &amt,
		ExpectedAmount:    &expected,
		PriorAnomalyCount: 10,
		EntityRiskScore:   0.9,
		AutoDetected:      true,
		EvidenceCount:     5,
		PatternConfidence: 1.0,
		TimingScore:       1.0,
	})
	if score < 0 || score > 1 {
		t.Fatalf("score %v out of [0,1] bounds", score)
	}
	if len(factors) != 4 {
		t.Fatalf("expected 4 contributing factors, got %d", len(factors))
	}
	var sum float64
	for _, f := range factors {
		sum += f.Contributed
	}
	if diff := sum - score; diff > 1e-9 || diff < -1e-9 {
		t.Fatalf("factor contributions %v do not sum to the reported score %v", sum, score)
	}
}

func TestCalculateHighEvidenceAnomalyScoresAboveLowEvidence(t *testing.T) {
	c, err := New(DefaultConfig(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	amt, expected := 10000.0, 100.0
	high, _ := c.Calculate(AnomalyType{Category: CategoryFraud, Name: "duplicate_payment"}, Context{
		Amount: &amt, ExpectedAmount: &expected,
		PriorAnomalyCount: 10, EntityRiskScore: 1.0, AutoDetected: true,
		EvidenceCount: 10, PatternConfidence: 1.0, TimingScore: 1.0,
	})
	low, _ := c.Calculate(AnomalyType{Category: CategoryFraud, Name: "duplicate_payment"}, Context{
		PriorAnomalyCount: 0, EntityRiskScore: 0, AutoDetected: false,
		EvidenceCount: 0, PatternConfidence: 0, TimingScore: 0,
	})
	if high <= low {
		t.Fatalf("expected high-evidence score (%v) to exceed low-evidence score (%v)", high, low)
	}
}

func TestBuildLabelMarksInjectedAndDerivesSeverity(t *testing.T) {
	c, err := New(DefaultConfig(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	amt, expected := 90000.0, 100.0
	label := c.BuildLabel(AnomalyType{Category: CategoryFraud, Name: "duplicate_payment"}, Context{
		Amount: &amt, ExpectedAmount: &expected, EntityRiskScore: 1.0, AutoDetected: true, EvidenceCount: 5, PatternConfidence: 1.0,
	}, LabelParams{
		ID:           "ANOM-0001",
		DocumentID:   "JE-0001",
		DocumentType: "journal_entry",
		Date:         time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		RunID:        "run-1",
	})
	if !label.IsInjected {
		t.Fatal("expected IsInjected to be true for a generator-built label")
	}
	if label.Severity < 1 || label.Severity > 5 {
		t.Fatalf("severity %d out of [1,5] range", label.Severity)
	}
	if label.Category != string(CategoryFraud) || label.Type != "duplicate_payment" {
		t.Fatalf("unexpected category/type: %s/%s", label.Category, label.Type)
	}
}

func TestSeverityFromScoreBoundaries(t *testing.T) {
	cases := []struct {
		score float64
		want  int
	}{
		{0.95, 5},
		{0.65, 4},
		{0.45, 3},
		{0.25, 2},
		{0.05, 1},
	}
	for _, c := range cases {
		if got := severityFromScore(c.score); got != c.want {
			t.Errorf("severityFromScore(%v) = %d, want %d", c.score, got, c.want)
		}
	}
}

package types

import "time"

// Label is the append-only, serializable union of the two label kinds the
// pipeline emits: field-level data-quality defects and flagged anomalies.
type Label interface {
	LabelKind() string
}

// QualityIssueKind enumerates the post-processor injectors that can attach a
// QualityIssueLabel to a record.
type QualityIssueKind string

const (
	QualityIssueMissingValue    QualityIssueKind = "missing_value"
	QualityIssueTypo            QualityIssueKind = "typo"
	QualityIssueFormatVariation QualityIssueKind = "format_variation"
	QualityIssueDuplicate       QualityIssueKind = "duplicate"
	QualityIssueEncoding        QualityIssueKind = "encoding_issue"
)

// QualityIssueLabel records a single field-level defect injected by the
// post-processor pipeline.
type QualityIssueLabel struct {
	DocumentID    string           `json:"document_id"`
	Kind          QualityIssueKind `json:"kind"`
	Subtype       string           `json:"subtype"`
	Field         string           `json:"field"`
	OriginalValue string           `json:"original_value"`
	ModifiedValue string           `json:"modified_value"`
	Severity      int              `json:"severity"` // 1-5
	Producer      string           `json:"producer"`
	DetectedAt    time.Time        `json:"detected_at"`
}

func (QualityIssueLabel) LabelKind() string { return "quality_issue" }

// CausalReason enumerates why an anomaly generator chose to inject a given
// anomaly, carried for provenance.
type CausalReason string

const (
	CausalRandomRate          CausalReason = "random_rate"
	CausalTemporalPattern     CausalReason = "temporal_pattern"
	CausalEntityTargeting     CausalReason = "entity_targeting"
	CausalClusterMembership   CausalReason = "cluster_membership"
	CausalScenarioStep        CausalReason = "scenario_step"
	CausalDataQualityProfile  CausalReason = "data_quality_profile"
	CausalMLTrainingBalance   CausalReason = "ml_training_balance"
)

// ConfidenceFactor is one of the four weighted components contributing to an
// anomaly's confidence score.
type ConfidenceFactor struct {
	Name        string  `json:"name"`
	Value       float64 `json:"value"`
	Weight      float64 `json:"weight"`
	Contributed float64 `json:"contributed"`
}

// Strategy is the structured description of how an anomaly was constructed,
// distinct from the free-text causal reason.
type Strategy struct {
	Name       string            `json:"name"`
	Parameters map[string]string `json:"parameters,omitempty"`
}

// LabeledAnomaly carries a flagged anomaly together with its full confidence
// and provenance trail.
type LabeledAnomaly struct {
	ID               string             `json:"id"`
	Category         string             `json:"category"`
	Type             string             `json:"type"`
	Date             time.Time          `json:"date"`
	Confidence       float64            `json:"confidence"` // 0-1
	Factors          []ConfidenceFactor `json:"factors"`
	Severity         int                `json:"severity"`
	MonetaryImpact   *string            `json:"monetary_impact,omitempty"` // decimal string
	RelatedEntities  []string           `json:"related_entities"`
	ClusterID        string             `json:"cluster_id,omitempty"`
	CausalReason     CausalReason       `json:"causal_reason"`
	StructuredStrategy Strategy         `json:"structured_strategy"`
	ParentID         string             `json:"parent_id,omitempty"`
	ChildIDs         []string           `json:"child_ids,omitempty"`
	ScenarioID       string             `json:"scenario_id,omitempty"`
	RunID            string             `json:"run_id"`
	GenerationSeed   uint64             `json:"generation_seed"`
	DocumentID       string             `json:"document_id"`
	DocumentType     string             `json:"document_type"`
	Company          string             `json:"company,omitempty"`
	Description      string            `json:"description,omitempty"`
	IsInjected       bool               `json:"is_injected"`
	DetectedAt       time.Time          `json:"detected_at"`
	Metadata         map[string]string  `json:"metadata,omitempty"`
}

func (LabeledAnomaly) LabelKind() string { return "anomaly" }

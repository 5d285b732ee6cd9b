// Package fingerprint implements the statistical fingerprint extractor: it
// scans a tabular data source, infers column semantic types, fits
// per-column numeric/categorical statistics under a declared ε-budget and
// k-anonymity floor, computes pairwise numeric correlations, and
// serializes the result into a versioned, checksummed ZIP archive that a
// driver can feed back into the record generators as generation
// configuration.
//
// The column-inference heuristics, DP noise calibration, and archive
// layout are purpose-built for this use case; logging and error-kind
// conventions follow the rest of the module (see DESIGN.md).
package fingerprint

import "time"

// ArchiveVersion is the manifest version string written by this build.
const ArchiveVersion = "1.0"

// Manifest is the ZIP archive's root record: the version and a SHA-256
// checksum of every other member, checked on load.
type Manifest struct {
	Version   string            `json:"version"`
	CreatedAt time.Time         `json:"created_at"`
	Checksums map[string]string `json:"checksums"`
}

// ColumnSchema is one column's inferred shape, carried in schema.yaml.
type ColumnSchema struct {
	Name         string `yaml:"name"`
	SemanticType string `yaml:"semantic_type"` // "numeric" or "categorical"
	Nullable     bool   `yaml:"nullable"`
}

// TableSchema is one table's column list.
type TableSchema struct {
	Name    string         `yaml:"name"`
	Columns []ColumnSchema `yaml:"columns"`
}

// SchemaFingerprint is the schema.yaml member: every scanned table's
// inferred column list.
type SchemaFingerprint struct {
	Tables []TableSchema `yaml:"tables"`
}

// NumericStats is the DP-released numeric-column statistics shape: count,
// min/max, mean/std (post-winsorization), five key percentiles, a fitted
// distribution family, zero/negative rate, and a Benford first-digit
// histogram.
type NumericStats struct {
	Count              int                `json:"count"`
	Min                float64            `json:"min"`
	Max                float64            `json:"max"`
	Mean               float64            `json:"mean"`
	Std                float64            `json:"std"`
	Percentiles        map[string]float64 `json:"percentiles"` // "p1","p25","p50","p75","p99"
	DistributionFamily string             `json:"distribution_family"`
	ZeroRate           float64            `json:"zero_rate"`
	NegativeRate       float64            `json:"negative_rate"`
	BenfordHistogram   [9]float64         `json:"benford_histogram"`
}

// CategoryFrequency is one top-K category surviving the k-anonymity filter.
type CategoryFrequency struct {
	Value string `json:"value"`
	Count int    `json:"count"`
}

// CategoricalStats is the DP-released categorical-column statistics shape:
// count, cardinality, entropy, and top-K frequencies after k-anonymity
// suppression.
type CategoricalStats struct {
	Count       int                 `json:"count"`
	Cardinality int                 `json:"cardinality"`
	Entropy     float64             `json:"entropy"`
	TopK        []CategoryFrequency `json:"top_k"`
}

// ColumnStats is a tagged union over the two per-column statistic shapes:
// exactly one of Numeric or Categorical is populated, selected by the
// column's inferred SemanticType.
type ColumnStats struct {
	SemanticType string             `json:"semantic_type"`
	Numeric      *NumericStats      `json:"numeric,omitempty"`
	Categorical  *CategoricalStats  `json:"categorical,omitempty"`
}

// StatisticsFingerprint is the statistics.json member: table -> column ->
// stats.
type StatisticsFingerprint struct {
	Tables map[string]map[string]ColumnStats `json:"tables"`
}

// StatEpsilonSpend records the ε share one released statistic consumed, for
// the privacy_audit.json per-statistic ledger.
type StatEpsilonSpend struct {
	Table     string  `json:"table"`
	Column    string  `json:"column"`
	Statistic string  `json:"statistic"`
	Epsilon   float64 `json:"epsilon"`
}

// PrivacyAudit is the privacy_audit.json member: the declared budget, the
// total actually spent, the configured k-anonymity floor, and the
// per-statistic ledger that sums to it.
type PrivacyAudit struct {
	EpsilonBudget           float64            `json:"epsilon_budget"`
	TotalEpsilonSpent       float64            `json:"total_epsilon_spent"`
	KAnonymity              int                `json:"k_anonymity"`
	PerStatisticEpsilonSpent []StatEpsilonSpend `json:"per_statistic_epsilon_spent"`
}

// CorrelationEntry is one DP-noised Pearson correlation between two numeric
// columns of the same table.
type CorrelationEntry struct {
	Table    string  `json:"table"`
	ColumnA  string  `json:"column_a"`
	ColumnB  string  `json:"column_b"`
	Pearson  float64 `json:"pearson"`
}

// Correlations is the optional correlations.json member.
type Correlations struct {
	Entries []CorrelationEntry `json:"entries"`
}

// Fingerprint is the full in-memory tree: Manifest plus the required
// Schema/Statistics/PrivacyAudit members and the optional
// Correlations/Integrity/Rules/Anomalies members. Integrity, Rules, and
// Anomalies are out-of-scope domain content (chart-of-accounts rule sets,
// detected anomaly summaries a caller may attach); the core only round-trips
// them opaquely as raw JSON so a domain collaborator can populate them
// without this package depending on their concrete shape.
type Fingerprint struct {
	Manifest     Manifest
	Schema       SchemaFingerprint
	Statistics   StatisticsFingerprint
	PrivacyAudit PrivacyAudit
	Correlations *Correlations
	Integrity    []byte // optional integrity.json, opaque
	Rules        []byte // optional rules.json, opaque
	Anomalies    []byte // optional anomalies.json, opaque
}

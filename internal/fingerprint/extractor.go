package fingerprint

import (
	"math"
	"time"

	"synthledger/internal/metrics"
)

// statsPerNumericColumn and statsPerCategoricalColumn are the counts of
// distinct released statistics noisyNumericStats/noisyCategoricalStats
// spend epsilon on, used to divide the total budget evenly across every
// statistic Extract will release.
const (
	statsPerNumericColumn     = 8 // mean, std, min, max, percentiles, zero_rate, negative_rate, benford_histogram
	statsPerCategoricalColumn = 2 // entropy, top_k
)

// Extract scans every table, infers each column's semantic type, fits and
// DP-noises its statistics, computes pairwise numeric correlations within
// each table, and assembles the full Fingerprint tree. The
// ε-budget is divided evenly across every statistic this call will release,
// computed up front so Extract never has to renegotiate shares mid-run.
func (e *Extractor) Extract(tables []Table) *Fingerprint {
	totalStats := e.countStatistics(tables)
	epsPerStat := e.cfg.EpsilonBudget
	if totalStats > 0 {
		epsPerStat = e.cfg.EpsilonBudget / float64(totalStats)
	}

	schema := SchemaFingerprint{}
	stats := StatisticsFingerprint{Tables: make(map[string]map[string]ColumnStats)}
	corr := &Correlations{}

	for _, table := range tables {
		tableSchema := TableSchema{Name: table.Name}
		columnStats := make(map[string]ColumnStats)
		numericColumns := make(map[string][]float64)

		for _, col := range table.Columns {
			semantic, nullable := inferSemanticType(col.Values)
			tableSchema.Columns = append(tableSchema.Columns, ColumnSchema{
				Name:         col.Name,
				SemanticType: semantic,
				Nullable:     nullable,
			})

			if semantic == "numeric" {
				values := parsedNumeric(col.Values)
				raw := fitNumericRaw(values, e.cfg.WinsorizeLowPct, e.cfg.WinsorizeHighPct)
				numericColumns[col.Name] = values
				columnStats[col.Name] = ColumnStats{
					SemanticType: semantic,
					Numeric:      ptr(e.noisyNumericStats(table.Name, col.Name, raw, epsPerStat)),
				}
			} else {
				if dropped := suppressedCategories(col.Values, e.cfg.KAnonymity); dropped > 0 {
					metrics.RecordKAnonymitySuppression(table.Name + "." + col.Name)
					e.logger.WithField("table", table.Name).WithField("column", col.Name).
						WithField("suppressed_categories", dropped).
						Debug("categories suppressed below k-anonymity floor")
				}
				raw := fitCategoricalRaw(col.Values, e.cfg.KAnonymity, e.cfg.TopKCategories)
				columnStats[col.Name] = ColumnStats{
					SemanticType: semantic,
					Categorical:  ptr(e.noisyCategoricalStats(table.Name, col.Name, raw, epsPerStat)),
				}
			}
		}

		stats.Tables[table.Name] = columnStats
		schema.Tables = append(schema.Tables, tableSchema)
		corr.Entries = append(corr.Entries, e.correlateTable(table.Name, numericColumns, epsPerStat)...)
	}

	e.logger.WithField("total_epsilon_spent", e.spent).WithField("budget", e.cfg.EpsilonBudget).
		Info("fingerprint extraction complete")

	return &Fingerprint{
		Manifest: Manifest{
			Version:   ArchiveVersion,
			CreatedAt: time.Now(),
			Checksums: map[string]string{},
		},
		Schema:     schema,
		Statistics: stats,
		PrivacyAudit: PrivacyAudit{
			EpsilonBudget:            e.cfg.EpsilonBudget,
			TotalEpsilonSpent:        e.spent,
			KAnonymity:               e.cfg.KAnonymity,
			PerStatisticEpsilonSpent: e.ledger,
		},
		Correlations: corr,
	}
}

// countStatistics pre-computes how many statistic releases Extract will
// perform, so the ε-budget can be divided evenly up front.
func (e *Extractor) countStatistics(tables []Table) int {
	var total int
	for _, table := range tables {
		numericCount := 0
		for _, col := range table.Columns {
			semantic, _ := inferSemanticType(col.Values)
			if semantic == "numeric" {
				total += statsPerNumericColumn
				numericCount++
			} else {
				total += statsPerCategoricalColumn
			}
		}
		if numericCount > 1 {
			total += numericCount * (numericCount - 1) / 2 // one pearson spend per pair
		}
	}
	return total
}

// correlateTable computes the DP-noised Pearson correlation between every
// pair of numeric columns within one table; pearson aligns columns of
// different length over their shared prefix.
func (e *Extractor) correlateTable(table string, columns map[string][]float64, epsPerStat float64) []CorrelationEntry {
	names := make([]string, 0, len(columns))
	for name := range columns {
		names = append(names, name)
	}

	var out []CorrelationEntry
	for i := 0; i < len(names); i++ {
		for j := i + 1; j < len(names); j++ {
			a, b := names[i], names[j]
			raw := pearson(columns[a], columns[b])
			noised := e.noiseForCorrelation(table, a, b, raw, epsPerStat)
			out = append(out, CorrelationEntry{Table: table, ColumnA: a, ColumnB: b, Pearson: noised})
		}
	}
	return out
}

// pearson computes the Pearson correlation coefficient over the shared
// prefix of x and y (different-length numeric columns are aligned by
// position, not by any join key the core does not have visibility into).
func pearson(x, y []float64) float64 {
	n := len(x)
	if len(y) < n {
		n = len(y)
	}
	if n < 2 {
		return 0
	}
	x, y = x[:n], y[:n]

	var sumX, sumY float64
	for i := 0; i < n; i++ {
		sumX += x[i]
		sumY += y[i]
	}
	meanX, meanY := sumX/float64(n), sumY/float64(n)

	var cov, varX, varY float64
	for i := 0; i < n; i++ {
		dx, dy := x[i]-meanX, y[i]-meanY
		cov += dx * dy
		varX += dx * dx
		varY += dy * dy
	}
	if varX == 0 || varY == 0 {
		return 0
	}
	return cov / math.Sqrt(varX*varY)
}

func ptr[T any](v T) *T { return &v }

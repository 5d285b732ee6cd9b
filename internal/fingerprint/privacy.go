package fingerprint

import (
	"math"

	"github.com/sirupsen/logrus"

	"synthledger/internal/metrics"
	"synthledger/internal/rng"
	"synthledger/pkg/errors"
)

// Config parameterizes one extraction run: the declared ε-budget and k-anonymity floor, the winsorization
// bounds, and how many top categories a categorical column releases.
type Config struct {
	EpsilonBudget    float64
	KAnonymity       int
	WinsorizeLowPct  float64
	WinsorizeHighPct float64
	TopKCategories   int
	MasterSeed       uint64
}

// Validate fails at construction per the Configuration error kind: a
// non-positive ε-budget or a k below 1 is never a recoverable condition.
func (c Config) Validate() error {
	if c.EpsilonBudget <= 0 {
		return errors.ConfigurationError("fingerprint.validate", "epsilon_budget must be > 0")
	}
	if c.KAnonymity < 1 {
		return errors.ConfigurationError("fingerprint.validate", "k_anonymity must be >= 1")
	}
	if c.WinsorizeLowPct < 0 || c.WinsorizeHighPct > 1 || c.WinsorizeLowPct >= c.WinsorizeHighPct {
		return errors.ConfigurationError("fingerprint.validate", "winsorize bounds must satisfy 0 <= low < high <= 1")
	}
	return nil
}

// Extractor computes the fingerprint of one or more tables under Config's
// declared privacy budget, drawing its Laplace noise from the shared
// deterministic RNG service so a fingerprint extraction is as
// reproducible, given the same master seed and source data, as record
// generation is.
type Extractor struct {
	cfg    Config
	rngSvc *rng.Service
	logger *logrus.Logger

	spent float64
	ledger []StatEpsilonSpend
}

// NewExtractor validates cfg and constructs an Extractor.
func NewExtractor(cfg Config, logger *logrus.Logger) (*Extractor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.TopKCategories <= 0 {
		cfg.TopKCategories = 20
	}
	return &Extractor{
		cfg:    cfg,
		rngSvc: rng.New(cfg.MasterSeed),
		logger: logger,
	}, nil
}

// laplaceNoise draws Laplace(0, scale) noise from the key's dedicated RNG
// stream via inverse-CDF sampling on a uniform draw in [-0.5, 0.5):
// x = -scale * sign(u) * ln(1 - 2|u|).
func (e *Extractor) laplaceNoise(key string, scale float64) float64 {
	if scale <= 0 {
		return 0
	}
	r := e.rngSvc.StreamFor(key)
	u := r.Float64() - 0.5
	sign := 1.0
	if u < 0 {
		sign = -1.0
	}
	return -scale * sign * math.Log(1-2*math.Abs(u))
}

// spend records an ε allocation against the declared budget and emits a
// ledger entry. Callers are responsible for never requesting more than
// EpsilonBudget/totalStatistics per call; spend itself only accumulates and
// reports, it does not clip, so a caller bug surfaces as TotalEpsilonSpent
// exceeding the budget in the final PrivacyAudit rather than being silently
// absorbed.
func (e *Extractor) spend(table, column, statistic string, epsilon float64) {
	e.spent += epsilon
	e.ledger = append(e.ledger, StatEpsilonSpend{Table: table, Column: column, Statistic: statistic, Epsilon: epsilon})
	metrics.SetEpsilonSpent(e.spent)
}

// noisyNumericStats applies the Extractor's calibrated Laplace noise to a
// raw NumericStats, spending one ε share per released statistic. Sensitivity
// is a crude per-statistic bound acceptable for a synthetic fingerprint:
// range-scaled for
// location/spread statistics, 1/n for rate statistics.
func (e *Extractor) noisyNumericStats(table, column string, raw NumericStats, epsPerStat float64) NumericStats {
	n := float64(raw.Count)
	if n == 0 {
		return raw
	}
	rangeSpan := raw.Max - raw.Min
	if rangeSpan <= 0 {
		rangeSpan = 1
	}

	key := func(stat string) string { return "fingerprint/" + table + "/" + column + "/" + stat }

	out := raw
	out.Mean = raw.Mean + e.laplaceNoise(key("mean"), rangeSpan/n/epsPerStat)
	e.spend(table, column, "mean", epsPerStat)

	out.Std = math.Max(0, raw.Std+e.laplaceNoise(key("std"), rangeSpan/n/epsPerStat))
	e.spend(table, column, "std", epsPerStat)

	out.Min = raw.Min + e.laplaceNoise(key("min"), rangeSpan/n/epsPerStat)
	e.spend(table, column, "min", epsPerStat)

	out.Max = raw.Max + e.laplaceNoise(key("max"), rangeSpan/n/epsPerStat)
	e.spend(table, column, "max", epsPerStat)

	out.Percentiles = make(map[string]float64, len(raw.Percentiles))
	for name, v := range raw.Percentiles {
		out.Percentiles[name] = v + e.laplaceNoise(key("percentile_"+name), rangeSpan/n/epsPerStat)
	}
	e.spend(table, column, "percentiles", epsPerStat)

	out.ZeroRate = clip01(raw.ZeroRate + e.laplaceNoise(key("zero_rate"), 1/n/epsPerStat))
	e.spend(table, column, "zero_rate", epsPerStat)

	out.NegativeRate = clip01(raw.NegativeRate + e.laplaceNoise(key("negative_rate"), 1/n/epsPerStat))
	e.spend(table, column, "negative_rate", epsPerStat)

	var benfordSum float64
	for i, p := range raw.BenfordHistogram {
		noised := math.Max(0, p+e.laplaceNoise(key("benford_digit")+string(rune('1'+i)), 1/n/epsPerStat))
		out.BenfordHistogram[i] = noised
		benfordSum += noised
	}
	if benfordSum > 0 {
		for i := range out.BenfordHistogram {
			out.BenfordHistogram[i] /= benfordSum
		}
	}
	e.spend(table, column, "benford_histogram", epsPerStat)

	return out
}

// noisyCategoricalStats applies Laplace noise to the entropy and top-K
// counts of a raw CategoricalStats. The TopK entries already passed the
// k-anonymity filter (fitCategoricalRaw) before noise is added here, and a
// noised count is floored at k. Count and Cardinality are released as
// computed; Cardinality counts every distinct non-null value, including
// those suppressed from TopK.
func (e *Extractor) noisyCategoricalStats(table, column string, raw CategoricalStats, epsPerStat float64) CategoricalStats {
	key := func(stat string) string { return "fingerprint/" + table + "/" + column + "/" + stat }

	out := raw
	out.Entropy = math.Max(0, raw.Entropy+e.laplaceNoise(key("entropy"), 1/epsPerStat))
	e.spend(table, column, "entropy", epsPerStat)

	out.TopK = make([]CategoryFrequency, len(raw.TopK))
	for i, c := range raw.TopK {
		noisedCount := int(math.Round(float64(c.Count) + e.laplaceNoise(key("topk_count"), 1/epsPerStat)))
		if noisedCount < e.cfg.KAnonymity {
			noisedCount = e.cfg.KAnonymity
		}
		out.TopK[i] = CategoryFrequency{Value: c.Value, Count: noisedCount}
	}
	e.spend(table, column, "top_k", epsPerStat)

	return out
}

func clip01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// noiseForCorrelation perturbs one Pearson coefficient, spending its own ε
// share and clipping the result back into [-1, 1] (DP noise can otherwise
// push a correlation outside its valid range).
func (e *Extractor) noiseForCorrelation(table, a, b string, raw, epsPerStat float64) float64 {
	key := "fingerprint/" + table + "/corr/" + a + "/" + b
	noised := raw + e.laplaceNoise(key, 2.0/float64(1)/epsPerStat)
	e.spend(table, a+"~"+b, "pearson", epsPerStat)
	if noised > 1 {
		noised = 1
	}
	if noised < -1 {
		noised = -1
	}
	return noised
}

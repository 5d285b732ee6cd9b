// Package amount implements the amount distribution engine:
// Benford-compliant sampling plus the three fraud amount patterns, all
// backed by the fixed-point pkg/decimal type so no floating point enters the
// monetary arithmetic path beyond intermediate probability draws.
package amount

import (
	"math"
	"math/rand/v2"

	"synthledger/pkg/decimal"
)

// BenfordProbabilities is P(d) = log10(1 + 1/d) for d in 1..9, precomputed.
var BenfordProbabilities = [9]float64{
	0.30103, 0.17609, 0.12494, 0.09691, 0.07918, 0.06695, 0.05799, 0.05115, 0.04576,
}

// BenfordCDF is the cumulative form of BenfordProbabilities.
var BenfordCDF = [9]float64{
	0.30103, 0.47712, 0.60206, 0.69897, 0.77815, 0.84510, 0.90309, 0.95424, 1.00000,
}

// antiBenfordRaw over-weights digits 5, 7, 9 (commonly rare in natural
// data) so StatisticallyImprobable amounts are statistically detectable.
// The source table sums to 1.00 exactly here, but per SPEC_FULL.md's Open
// Question resolution (section 9) it is renormalized regardless,
// defensively, rather than assuming any particular source table is exact.
var antiBenfordRaw = [9]float64{
	0.05, 0.05, 0.05, 0.10, 0.25, 0.10, 0.20, 0.05, 0.15,
}

// antiBenfordCDF is computed once at init from the renormalized weights.
var antiBenfordCDF [9]float64

func init() {
	var sum float64
	for _, p := range antiBenfordRaw {
		sum += p
	}
	var cum float64
	for i, p := range antiBenfordRaw {
		cum += p / sum
		antiBenfordCDF[i] = cum
	}
	antiBenfordCDF[8] = 1.0
}

// FraudAmountPattern is one of the four sampling strategies the amount
// engine supports.
type FraudAmountPattern int

const (
	Normal FraudAmountPattern = iota
	StatisticallyImprobable
	ObviousRoundNumbers
	ThresholdAdjacent
)

// String renders the pattern's stable name, used as a lookup key by the
// confidence engine's anomaly-type mapping and by labels/reports.
func (p FraudAmountPattern) String() string {
	switch p {
	case StatisticallyImprobable:
		return "statistically_improbable"
	case ObviousRoundNumbers:
		return "obvious_round_numbers"
	case ThresholdAdjacent:
		return "threshold_adjacent"
	default:
		return "normal"
	}
}

// Config parameterizes every pattern's magnitude bounds and rounding bias.
type Config struct {
	Min                   float64
	Max                   float64
	DecimalPlaces         int32
	RoundNumberProbability float64
	NiceNumberProbability  float64
}

// ThresholdConfig parameterizes the ThresholdAdjacent pattern.
type ThresholdConfig struct {
	Thresholds []float64
	MinBelowPct float64
	MaxBelowPct float64
}

// DefaultThresholdConfig mirrors the original's default threshold ladder.
func DefaultThresholdConfig() ThresholdConfig {
	return ThresholdConfig{
		Thresholds:  []float64{1000, 5000, 10000, 25000, 50000, 100000},
		MinBelowPct: 0.01,
		MaxBelowPct: 0.15,
	}
}

// Sampler draws amounts for one (seed, config) pair. It is not safe for
// concurrent use — each generator invocation should own its own Sampler
// drawn from a distinct rng.Service stream key.
type Sampler struct {
	rng       *rand.Rand
	config    Config
	threshold ThresholdConfig
}

// New constructs a Sampler over the given rng stream.
func New(r *rand.Rand, config Config, threshold ThresholdConfig) *Sampler {
	return &Sampler{rng: r, config: config, threshold: threshold}
}

// Sample draws one amount for the given pattern. Given the same rng state,
// config, and pattern, consecutive calls are bit-identical.
func (s *Sampler) Sample(pattern FraudAmountPattern) decimal.Decimal {
	switch pattern {
	case StatisticallyImprobable:
		return s.sampleWithFirstDigit(s.sampleAntiBenfordDigit())
	case ObviousRoundNumbers:
		return s.sampleObviousRound()
	case ThresholdAdjacent:
		return s.sampleThresholdAdjacent()
	default:
		return s.sampleWithFirstDigit(s.sampleBenfordDigit())
	}
}

func (s *Sampler) sampleBenfordDigit() int {
	p := s.rng.Float64()
	for i, cum := range BenfordCDF {
		if p < cum {
			return i + 1
		}
	}
	return 9
}

func (s *Sampler) sampleAntiBenfordDigit() int {
	p := s.rng.Float64()
	for i, cum := range antiBenfordCDF {
		if p < cum {
			return i + 1
		}
	}
	return 9
}

// sampleWithFirstDigit implements the Normal-pattern construction:
// (d+f)*10^m clamped and then optionally rounded to a "nice" multiple.
func (s *Sampler) sampleWithFirstDigit(firstDigit int) decimal.Decimal {
	if firstDigit < 1 {
		firstDigit = 1
	}
	if firstDigit > 9 {
		firstDigit = 9
	}

	minMagnitude := int(math.Floor(math.Log10(s.config.Min)))
	maxMagnitude := int(math.Floor(math.Log10(s.config.Max)))
	if maxMagnitude < minMagnitude {
		maxMagnitude = minMagnitude
	}
	magnitude := minMagnitude
	if maxMagnitude > minMagnitude {
		magnitude = minMagnitude + s.rng.IntN(maxMagnitude-minMagnitude+1)
	}
	base := math.Pow10(magnitude)

	remaining := s.rng.Float64()
	mantissa := float64(firstDigit) + remaining
	value := mantissa * base
	value = clamp(value, s.config.Min, s.config.Max)

	p := s.rng.Float64()
	switch {
	case p < s.config.RoundNumberProbability:
		value = math.Round(value/100) * 100
	case p < s.config.RoundNumberProbability+s.config.NiceNumberProbability:
		value = math.Round(value/5) * 5
	}

	d := decimal.FromFloat64(value, s.config.DecimalPlaces)
	floor := decimal.FromFloat64(s.config.Min, s.config.DecimalPlaces)
	if d.Cmp(floor) < 0 {
		d = floor
	}
	return d
}

func (s *Sampler) sampleObviousRound() decimal.Decimal {
	choice := s.rng.IntN(5)
	var value float64
	switch choice {
	case 0: // multiples of 1,000
		value = float64(1+s.rng.IntN(99)) * 1000
	case 1: // N*10,000 - 0.01
		value = float64(1+s.rng.IntN(9))*10000 - 0.01
	case 2: // multiples of 10,000
		value = float64(1+s.rng.IntN(19)) * 10000
	case 3: // multiples of 5,000
		value = float64(1+s.rng.IntN(39)) * 5000
	default: // N*1,000 - 0.01
		value = float64(1+s.rng.IntN(99))*1000 - 0.01
	}
	value = clamp(value, s.config.Min, s.config.Max)
	return decimal.FromFloat64(value, s.config.DecimalPlaces)
}

func (s *Sampler) sampleThresholdAdjacent() decimal.Decimal {
	threshold := 10000.0
	if len(s.threshold.Thresholds) > 0 {
		threshold = s.threshold.Thresholds[s.rng.IntN(len(s.threshold.Thresholds))]
	}

	pctBelow := lerp(s.rng.Float64(), s.threshold.MinBelowPct, s.threshold.MaxBelowPct)
	base := threshold * (1 - pctBelow)

	noise := 1.0 + lerp(s.rng.Float64(), -0.005, 0.005)
	value := base * noise

	rounded := math.Round(value*100) / 100
	capped := math.Min(rounded, threshold-0.01)
	capped = clamp(capped, s.config.Min, s.config.Max)
	return decimal.FromFloat64(capped, 2)
}

func clamp(v, min, max float64) float64 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

func lerp(t, lo, hi float64) float64 {
	return lo + t*(hi-lo)
}

// FirstDigit extracts the leading non-zero digit of a decimal amount, used
// by both the sampler's self-tests and the graph/fingerprint Benford
// features.
func FirstDigit(d decimal.Decimal) (int, bool) {
	s := d.String()
	for _, c := range s {
		if c >= '1' && c <= '9' {
			return int(c - '0'), true
		}
	}
	return 0, false
}

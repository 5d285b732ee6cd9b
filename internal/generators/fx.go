package generators

import (
	"fmt"
	"math"
	"math/rand/v2"
	"time"
)

// FXConfig parameterizes one currency's daily evolution: an Ornstein-Uhlenbeck step on log(rate), with an occasional
// fat-tailed shock.
type FXConfig struct {
	Currency           string
	StartRate          float64
	MeanRate           float64 // mu, the long-run mean the process reverts to
	ReversionSpeed     float64 // theta
	Volatility         float64 // sigma
	FatTailProbability float64
	FatTailMultiplier  float64
	SkipWeekends       bool
}

// GenerateFXSeries evolves Δx = θ(μ-x) + σZ, Z~N(0,1), day by day from start
// to end inclusive, emitting a daily spot FXRate plus one closing and one
// average rate per calendar month encountered.
func GenerateFXSeries(cfg FXConfig, start, end time.Time, rnd *rand.Rand) []FXRate {
	if cfg.MeanRate <= 0 {
		cfg.MeanRate = cfg.StartRate
	}
	logRate := math.Log(cfg.StartRate)

	var out []FXRate
	var monthSpots []float64
	var lastMonthKey string
	seq := 0

	flushMonth := func(monthEndDate time.Time) {
		if len(monthSpots) == 0 {
			return
		}
		closing := monthSpots[len(monthSpots)-1]
		var sum float64
		for _, s := range monthSpots {
			sum += s
		}
		avg := sum / float64(len(monthSpots))
		seq++
		out = append(out, FXRate{
			ID:       fmt.Sprintf("FX-%s-%04d%02d-CLOSE", cfg.Currency, monthEndDate.Year(), monthEndDate.Month()),
			Currency: cfg.Currency,
			Date:     monthEndDate,
			Rate:     closing,
			Kind:     RateClosing,
		})
		out = append(out, FXRate{
			ID:       fmt.Sprintf("FX-%s-%04d%02d-AVG", cfg.Currency, monthEndDate.Year(), monthEndDate.Month()),
			Currency: cfg.Currency,
			Date:     monthEndDate,
			Rate:     avg,
			Kind:     RateAverage,
		})
		monthSpots = monthSpots[:0]
	}

	logMu := math.Log(cfg.MeanRate)
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		if cfg.SkipWeekends && (d.Weekday() == time.Saturday || d.Weekday() == time.Sunday) {
			continue
		}

		sigma := cfg.Volatility
		if rnd.Float64() < cfg.FatTailProbability {
			sigma *= cfg.FatTailMultiplier
		}
		z := sampleStandardNormal(rnd)
		delta := cfg.ReversionSpeed*(logMu-logRate) + sigma*z
		logRate += delta
		rate := math.Exp(logRate)

		seq++
		out = append(out, FXRate{
			ID:       fmt.Sprintf("FX-%s-%s-%06d", cfg.Currency, d.Format("20060102"), seq),
			Currency: cfg.Currency,
			Date:     d,
			Rate:     rate,
			Kind:     RateSpot,
		})
		monthKey := d.Format("200601")
		if lastMonthKey != "" && monthKey != lastMonthKey {
			// a new month began: close the previous one, dated its last calendar day.
			flushMonth(time.Date(d.Year(), d.Month(), 1, 0, 0, 0, 0, d.Location()).AddDate(0, 0, -1))
		}
		lastMonthKey = monthKey
		monthSpots = append(monthSpots, rate)
	}
	flushMonth(end)

	return out
}

// sampleStandardNormal draws Z~N(0,1) via the Box-Muller transform, since
// math/rand/v2 exposes only uniform draws directly.
func sampleStandardNormal(rnd *rand.Rand) float64 {
	u1 := rnd.Float64()
	u2 := rnd.Float64()
	if u1 < 1e-12 {
		u1 = 1e-12
	}
	return math.Sqrt(-2*math.Log(u1)) * math.Cos(2*math.Pi*u2)
}

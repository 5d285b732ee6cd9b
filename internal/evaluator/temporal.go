package evaluator

import (
	"math"
	"sort"
	"time"
)

// DefaultWeekdayWeights is the baseline relative daily-volume weight by
// time.Weekday (Sunday=0..Saturday=6), derived from a flat weekend ratio:
// weekdays get weight 1.0, weekend days get the 0.10 ratio.
var DefaultWeekdayWeights = [7]float64{0.10, 1.0, 1.0, 1.0, 1.0, 1.0, 0.10}

// TemporalReport is the expected-vs-observed daily volume comparison.
type TemporalReport struct {
	Correlation float64
	DaysCompared int
}

// EvaluateTemporalPattern builds the expected daily volume curve (weekday
// weights, month-end x2.5, quarter-end x4, year-end x6) over the distinct
// dates present in observed, then returns the Pearson correlation against
// the observed per-day counts.
func (e *Evaluator) EvaluateTemporalPattern(observed map[time.Time]int) *TemporalReport {
	if len(observed) == 0 {
		return &TemporalReport{}
	}

	dates := make([]time.Time, 0, len(observed))
	for d := range observed {
		dates = append(dates, d)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })

	observedSeries := make([]float64, len(dates))
	expectedSeries := make([]float64, len(dates))
	for i, d := range dates {
		observedSeries[i] = float64(observed[d])
		expectedSeries[i] = expectedDailyWeight(d)
	}

	return &TemporalReport{
		Correlation:  pearson(observedSeries, expectedSeries),
		DaysCompared: len(dates),
	}
}

// expectedDailyWeight is one day's expected relative volume: the weekday
// baseline weight multiplied by whichever period-boundary multiplier
// applies (month-end, quarter-end, or year-end; the highest-order boundary
// wins since year-end and quarter-end and month-end can coincide).
func expectedDailyWeight(d time.Time) float64 {
	weight := DefaultWeekdayWeights[int(d.Weekday())]

	monthEnd := d.AddDate(0, 0, 1).Month() != d.Month()
	if !monthEnd {
		return weight
	}

	switch {
	case d.Month() == time.December:
		return weight * 6.0
	case d.Month()%3 == 0:
		return weight * 4.0
	default:
		return weight * 2.5
	}
}

// pearson computes the Pearson correlation coefficient between two
// equal-length series, returning 0 for degenerate (zero-variance or
// length<2) input rather than NaN.
func pearson(x, y []float64) float64 {
	n := len(x)
	if n != len(y) || n < 2 {
		return 0
	}

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

package graph

import (
	"math"
	"time"

	"synthledger/internal/amount"
	"synthledger/pkg/decimal"
)

// ComputeNodeFeatures fills every node's Features map with degree, weight,
// and clustering statistics. Call once after the graph is fully built;
// node features are a read-only summary of the finished edge set.
func ComputeNodeFeatures(g *Graph) {
	for id, n := range g.Nodes {
		out := g.Out(id)
		in := g.In(id)

		inDegree := float64(len(in))
		outDegree := float64(len(out))
		total := inDegree + outDegree

		var inWeight, outWeight float64
		for _, e := range in {
			inWeight += e.Weight
		}
		for _, e := range out {
			outWeight += e.Weight
		}

		n.Features["in_degree"] = inDegree
		n.Features["out_degree"] = outDegree
		n.Features["total_degree"] = total
		n.Features["log_in_degree"] = math.Log(inDegree + 1)
		n.Features["log_out_degree"] = math.Log(outDegree + 1)
		n.Features["in_share"] = safeDiv(inDegree, total)
		n.Features["out_share"] = safeDiv(outDegree, total)
		n.Features["log_in_weight"] = math.Log(inWeight + 1)
		n.Features["log_out_weight"] = math.Log(outWeight + 1)
		n.Features["avg_in_weight"] = safeDiv(inWeight, inDegree)
		n.Features["avg_out_weight"] = safeDiv(outWeight, outDegree)
		n.Features["clustering_coefficient"] = localClusteringCoefficient(g, id)
	}
}

// localClusteringCoefficient is triangles over k*(k-1)/2, where k is the
// count of id's distinct neighbors.
func localClusteringCoefficient(g *Graph, id string) float64 {
	neighbors := g.Neighbors(id)
	k := len(neighbors)
	if k < 2 {
		return 0
	}

	neighborSet := make(map[string]bool, k)
	for _, nb := range neighbors {
		neighborSet[nb] = true
	}

	var triangles int
	for i := 0; i < len(neighbors); i++ {
		for j := i + 1; j < len(neighbors); j++ {
			a, b := neighbors[i], neighbors[j]
			if connected(g, a, b) {
				triangles++
			}
		}
	}

	possible := float64(k*(k-1)) / 2.0
	return float64(triangles) / possible
}

func connected(g *Graph, a, b string) bool {
	for _, e := range g.Out(a) {
		if e.To == b {
			return true
		}
	}
	for _, e := range g.In(a) {
		if e.From == b {
			return true
		}
	}
	return false
}

func safeDiv(num, den float64) float64 {
	if den == 0 {
		return 0
	}
	return num / den
}

// ComputeTransactionEdgeFeatures fills every transaction-kind edge's
// Features map with its amount/temporal features. Non-transaction edges
// (ownership, ownership_indirect) are left untouched.
func ComputeTransactionEdgeFeatures(g *Graph) {
	for _, e := range g.Edges {
		if e.Kind != "transaction" {
			continue
		}
		e.Features["log_amount"] = math.Log(math.Abs(e.Weight) + 1)
		e.Features["debit_indicator"] = 1.0 // every transaction edge originates at the debited account

		weekday := e.Timestamp.Weekday()
		e.Features["weekday_norm"] = float64(weekday) / 6.0
		e.Features["day_norm"] = float64(e.Timestamp.Day()-1) / 30.0
		e.Features["month_norm"] = float64(e.Timestamp.Month()-1) / 11.0
		e.Features["month_end"] = boolFloat(isMonthEnd(e.Timestamp))
		e.Features["year_end"] = boolFloat(e.Timestamp.Month() == time.December && isMonthEnd(e.Timestamp))

		if d, ok := amountFirstDigit(e.Weight); ok {
			e.Features["benford_probability"] = amount.BenfordProbabilities[d-1]
		}
	}
}

func amountFirstDigit(weight float64) (int, bool) {
	return amount.FirstDigit(decimal.FromFloat64(math.Abs(weight), 2))
}

func isMonthEnd(t time.Time) bool {
	return t.AddDate(0, 0, 1).Month() != t.Month()
}

func boolFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// TemporalFeatures is the cyclical + scalar temporal encoding, computed
// independently of any graph edge (it is a pure function of a timestamp).
type TemporalFeatures struct {
	DayOfYearSin float64
	DayOfYearCos float64
	WeekdaySin   float64
	WeekdayCos   float64
	Quarter      int
	DayOfMonth   int
	IsWeekend    bool
	IsMonthEnd   bool
	IsQuarterEnd bool
	IsYearEnd    bool
}

// ComputeTemporalFeatures derives the cyclical and scalar temporal encoding
// for t.
func ComputeTemporalFeatures(t time.Time) TemporalFeatures {
	dayOfYear := float64(t.YearDay())
	daysInYear := 365.0
	if isLeapYear(t.Year()) {
		daysInYear = 366.0
	}
	weekday := float64(t.Weekday())

	quarter := int(t.Month()-1)/3 + 1
	monthEnd := isMonthEnd(t)

	return TemporalFeatures{
		DayOfYearSin: math.Sin(2 * math.Pi * dayOfYear / daysInYear),
		DayOfYearCos: math.Cos(2 * math.Pi * dayOfYear / daysInYear),
		WeekdaySin:   math.Sin(2 * math.Pi * weekday / 7.0),
		WeekdayCos:   math.Cos(2 * math.Pi * weekday / 7.0),
		Quarter:      quarter,
		DayOfMonth:   t.Day(),
		IsWeekend:    t.Weekday() == time.Saturday || t.Weekday() == time.Sunday,
		IsMonthEnd:   monthEnd,
		IsQuarterEnd: monthEnd && t.Month()%3 == 0,
		IsYearEnd:    monthEnd && t.Month() == time.December,
	}
}

func isLeapYear(year int) bool {
	return year%4 == 0 && (year%100 != 0 || year%400 == 0)
}

package graph

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"synthledger/internal/generators"
	"synthledger/pkg/decimal"
)

func TestBuildTransactionGraphBalancedEntry(t *testing.T) {
	je := generators.JournalEntry{
		ID:      "JE1",
		Company: "US01",
		Date:    time.Date(2026, 3, 31, 0, 0, 0, 0, time.UTC),
		Lines: []generators.JELine{
			{Account: "6000", Debit: decimal.FromFloat64(100, 2)},
			{Account: "2000", Credit: decimal.FromFloat64(100, 2)},
		},
	}

	g := BuildTransactionGraph([]generators.JournalEntry{je})
	require.Len(t, g.Edges, 1)
	assert.Equal(t, "US01:6000", g.Edges[0].From)
	assert.Equal(t, "US01:2000", g.Edges[0].To)
	assert.InDelta(t, 100.0, g.Edges[0].Weight, 0.001)
}

func TestComputeNodeFeaturesDegree(t *testing.T) {
	g := New()
	g.EnsureNode("a", "account")
	g.EnsureNode("b", "account")
	g.AddEdge(&Edge{ID: "e1", From: "a", To: "b", Kind: "transaction", Weight: 50})

	ComputeNodeFeatures(g)

	assert.Equal(t, 1.0, g.Nodes["a"].Features["out_degree"])
	assert.Equal(t, 0.0, g.Nodes["a"].Features["in_degree"])
	assert.Equal(t, 1.0, g.Nodes["b"].Features["in_degree"])
}

func TestBuildOwnershipGraphIndirectMultiplication(t *testing.T) {
	g, converged := BuildOwnershipGraph([]OwnershipStake{
		{Owner: "A", Owned: "B", PercentOwn: 100},
		{Owner: "B", Owned: "C", PercentOwn: 50},
	})
	assert.True(t, converged)

	var found bool
	for _, e := range g.Edges {
		if e.From == "A" && e.To == "C" {
			found = true
			assert.InDelta(t, 50.0, e.Weight, 0.001)
			assert.Equal(t, "ownership_indirect", e.Kind)
		}
	}
	assert.True(t, found, "expected an indirect A->C ownership edge")
}

func TestNormalizerMinMaxIdempotent(t *testing.T) {
	n := NewNormalizer(MinMax)
	vectors := []map[string]float64{
		{"x": 0}, {"x": 5}, {"x": 10},
	}
	n.Fit(vectors)

	v := map[string]float64{"x": 5}
	n.Apply(v)
	assert.InDelta(t, 0.5, v["x"], 1e-9)

	v2 := map[string]float64{"x": 5}
	n.Apply(v2)
	assert.Equal(t, v["x"], v2["x"])
}

func TestComputeTemporalFeaturesQuarterEnd(t *testing.T) {
	f := ComputeTemporalFeatures(time.Date(2026, 6, 30, 0, 0, 0, 0, time.UTC))
	assert.True(t, f.IsMonthEnd)
	assert.True(t, f.IsQuarterEnd)
	assert.False(t, f.IsYearEnd)
	assert.Equal(t, 2, f.Quarter)
}

package graph

import (
	"fmt"

	"synthledger/internal/generators"
)

// BuildTransactionGraph constructs one directed edge per debit/credit line
// pair within each journal entry: an edge from the debited account's node to
// the credited account's node, weighted by the line amount. A journal
// entry with more than one debit and one credit line fans every debit line
// out to every credit line: each edge weighs the debit amount times the
// credit amount divided by the entry's total debit, so the sum of edge
// weights for a balanced entry equals its total debit.
func BuildTransactionGraph(entries []generators.JournalEntry) *Graph {
	g := New()

	for _, je := range entries {
		var debits, credits []generators.JELine
		for _, l := range je.Lines {
			if !l.Debit.IsZero() {
				debits = append(debits, l)
			}
			if !l.Credit.IsZero() {
				credits = append(credits, l)
			}
		}
		for _, d := range debits {
			g.EnsureNode(accountKey(je.Company, d.Account), "account")
		}
		for _, c := range credits {
			g.EnsureNode(accountKey(je.Company, c.Account), "account")
		}

		total := je.DebitTotal().Float64()
		if total == 0 {
			continue
		}

		edgeSeq := 0
		for _, d := range debits {
			dAmt := d.Debit.Float64()
			for _, c := range credits {
				cAmt := c.Credit.Float64()
				share := dAmt * (cAmt / total)
				if share == 0 {
					continue
				}
				edgeSeq++
				g.AddEdge(&Edge{
					ID:        fmt.Sprintf("%s-tx-%d", je.ID, edgeSeq),
					From:      accountKey(je.Company, d.Account),
					To:        accountKey(je.Company, c.Account),
					Kind:      "transaction",
					Weight:    share,
					Timestamp: je.Date,
				})
			}
		}
	}

	return g
}

func accountKey(company, account string) string {
	return company + ":" + account
}

// OwnershipStake is one direct ownership edge to seed BuildOwnershipGraph
// with, before indirect multiplication runs.
type OwnershipStake struct {
	Owner      string
	Owned      string
	PercentOwn float64 // 0-100
}

// BuildOwnershipGraph constructs the entity-ownership graph from direct
// stakes, then computes indirect-ownership edges by iterative
// multiplication `ownership(A->C) = ownership(A->B) * ownership(B->C) / 100`
// until a fixed point or a bounded iteration count, keeping the maximum percentage found per (A,C) pair.
func BuildOwnershipGraph(stakes []OwnershipStake) (*Graph, bool) {
	g := New()
	direct := make(map[[2]string]float64)

	for _, s := range stakes {
		g.EnsureNode(s.Owner, "entity")
		g.EnsureNode(s.Owned, "entity")
		key := [2]string{s.Owner, s.Owned}
		if s.PercentOwn > direct[key] {
			direct[key] = s.PercentOwn
		}
	}

	best := make(map[[2]string]float64, len(direct))
	for k, v := range direct {
		best[k] = v
	}

	converged := false
	for iter := 0; iter < 10; iter++ {
		changed := false
		snapshot := make(map[[2]string]float64, len(best))
		for k, v := range best {
			snapshot[k] = v
		}

		for ab, pAB := range snapshot {
			for bc, pBC := range snapshot {
				if ab[1] != bc[0] || ab[0] == bc[1] {
					continue
				}
				ac := [2]string{ab[0], bc[1]}
				indirect := pAB * pBC / 100.0
				if indirect > best[ac]+1e-9 {
					best[ac] = indirect
					changed = true
				}
			}
		}

		if !changed {
			converged = true
			break
		}
	}

	for pair, pct := range best {
		kind := "ownership"
		if _, isDirect := direct[pair]; !isDirect {
			kind = "ownership_indirect"
		}
		g.AddEdge(&Edge{
			ID:     fmt.Sprintf("own-%s-%s", pair[0], pair[1]),
			From:   pair[0],
			To:     pair[1],
			Kind:   kind,
			Weight: pct,
		})
	}

	return g, converged
}

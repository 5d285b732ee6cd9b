package generators

import (
	"fmt"
	"math/rand/v2"
	"time"

	"synthledger/internal/allocator"
	"synthledger/pkg/decimal"
)

// IntercompanyConfig parameterizes one intercompany mirror posting
//: a booked AP/AR pair across two company
// codes with opposite signs on an intercompany clearing account, so
// consolidated elimination nets to zero.
type IntercompanyConfig struct {
	CompanyA        string
	CompanyB        string
	ClearingAccount string
	CounterAccountA string
	CounterAccountB string
	Date            time.Time
	Amount          decimal.Decimal
	Currency        string
}

// GenerateIntercompanyElimination books a mirrored JE in each company: A
// debits (or credits) the clearing account and B posts the opposite side, so
// summing both across the consolidation nets the clearing account to zero.
func GenerateIntercompanyElimination(cfg IntercompanyConfig, alloc *allocator.Allocator, rnd *rand.Rand) (IntercompanyElimination, JournalEntry, JournalEntry, error) {
	seq := alloc.Next("intercompany", cfg.Date.Year())
	icID := allocator.Render(allocator.YearPrefixed, "IC", cfg.CompanyA, cfg.Date.Year(), int(cfg.Date.Month()), seq, rnd)

	jeAID := fmt.Sprintf("JE-%s-A", icID)
	linesA := Balance([]JELine{
		{Account: cfg.CounterAccountA, Description: "intercompany charge to " + cfg.CompanyB, Debit: cfg.Amount},
	}, cfg.ClearingAccount, "intercompany clearing", 2)
	jeA := JournalEntry{
		ID: jeAID, Company: cfg.CompanyA, Currency: cfg.Currency, Date: cfg.Date,
		Reference: icID, SourceDoc: icID, Memo: "intercompany elimination " + icID, Lines: linesA,
	}
	if err := ValidateBalanced(jeA); err != nil {
		return IntercompanyElimination{}, JournalEntry{}, JournalEntry{}, err
	}

	jeBID := fmt.Sprintf("JE-%s-B", icID)
	linesB := Balance([]JELine{
		{Account: cfg.ClearingAccount, Description: "intercompany clearing", Debit: cfg.Amount},
	}, cfg.CounterAccountB, "intercompany charge from "+cfg.CompanyA, 2)
	jeB := JournalEntry{
		ID: jeBID, Company: cfg.CompanyB, Currency: cfg.Currency, Date: cfg.Date,
		Reference: icID, SourceDoc: icID, Memo: "intercompany elimination " + icID, Lines: linesB,
	}
	if err := ValidateBalanced(jeB); err != nil {
		return IntercompanyElimination{}, JournalEntry{}, JournalEntry{}, err
	}

	ic := IntercompanyElimination{
		ID:              icID,
		CompanyA:        cfg.CompanyA,
		CompanyB:        cfg.CompanyB,
		ClearingAccount: cfg.ClearingAccount,
		Date:            cfg.Date,
		Amount:          cfg.Amount,
		JEIDCompanyA:    jeAID,
		JEIDCompanyB:    jeBID,
	}
	return ic, jeA, jeB, nil
}

package generators

import (
	"fmt"
	"math/rand/v2"
	"time"

	"synthledger/internal/allocator"
	"synthledger/internal/amount"
	"synthledger/pkg/decimal"
	"synthledger/pkg/errors"
)

// ARInvoiceConfig parameterizes one AR invoice generation call, symmetric to
// APInvoiceConfig.
type ARInvoiceConfig struct {
	Customer      string
	Company       string
	Currency      string
	LineCount     int
	TaxRate       float64
	Date          time.Time
	TermsDays     int
	Amount        amount.Config
	Pattern       amount.FraudAmountPattern
	RevenueAccts  []string
}

// GenerateARInvoice mirrors GenerateAPInvoice: the JE posts DR AR, CR
// revenue, CR output tax.
func GenerateARInvoice(cfg ARInvoiceConfig, sampler *amount.Sampler, alloc *allocator.Allocator, rnd *rand.Rand) (ARInvoice, JournalEntry, error) {
	if cfg.LineCount < 1 {
		return ARInvoice{}, JournalEntry{}, errors.GenerationError("generate_ar_invoice", "line count must be >= 1")
	}
	if len(cfg.RevenueAccts) == 0 {
		cfg.RevenueAccts = []string{"4000-REVENUE"}
	}

	seq := alloc.Next("ar_invoice", cfg.Date.Year())
	invoiceID := allocator.Render(allocator.YearPrefixed, "ARINV", cfg.Company, cfg.Date.Year(), int(cfg.Date.Month()), seq, rnd)

	lines := make([]InvoiceLine, 0, cfg.LineCount)
	gross := decimal.Zero(2)
	var jeLines []JELine
	taxTotal := decimal.Zero(2)

	for i := 0; i < cfg.LineCount; i++ {
		amt := sampler.Sample(cfg.Pattern)
		tax := amt.DivRat(decimal.New(100, 0), 2).MulInt64(int64(cfg.TaxRate * 100)).Round(2)
		acct := cfg.RevenueAccts[i%len(cfg.RevenueAccts)]
		lines = append(lines, InvoiceLine{
			Description: fmt.Sprintf("line %d", i+1),
			Amount:      amt,
			TaxAmount:   tax,
			Account:     acct,
		})
		gross = gross.Add(amt).Add(tax)
		taxTotal = taxTotal.Add(tax)
		jeLines = append(jeLines, JELine{Account: acct, Description: "AR invoice revenue", Credit: amt})
	}
	if !taxTotal.IsZero() {
		jeLines = append(jeLines, JELine{Account: "2450-OUTPUT-TAX", Description: "output tax", Credit: taxTotal})
	}

	jeID := fmt.Sprintf("JE-%s", invoiceID)
	jeLines = Balance(jeLines, "1200-ACCOUNTS-RECEIVABLE", "AR invoice accrual", 2)
	je := JournalEntry{
		ID:        jeID,
		Company:   cfg.Company,
		Currency:  cfg.Currency,
		Date:      cfg.Date,
		Reference: invoiceID,
		SourceDoc: invoiceID,
		Memo:      "AR invoice " + invoiceID,
		Lines:     jeLines,
	}
	if err := ValidateBalanced(je); err != nil {
		return ARInvoice{}, JournalEntry{}, err
	}

	due := cfg.Date.AddDate(0, 0, cfg.TermsDays)
	inv := ARInvoice{
		ID:       invoiceID,
		Customer: cfg.Customer,
		Company:  cfg.Company,
		Currency: cfg.Currency,
		Date:     cfg.Date,
		DueDate:  due,
		Lines:    lines,
		JEID:     jeID,
		Gross:    gross,
	}
	return inv, je, nil
}

// ARCreditMemoConfig parameterizes a credit memo against a previously issued
// AR invoice.
type ARCreditMemoConfig struct {
	ReferenceInvoice   ARInvoice
	Date               time.Time
	Amount             amount.Config
	Pattern            amount.FraudAmountPattern
	ApprovalThreshold  decimal.Decimal
}

// GenerateARCreditMemo issues a credit memo against ReferenceInvoice, setting
// ApprovalRequired when the gross amount exceeds ApprovalThreshold.
func GenerateARCreditMemo(cfg ARCreditMemoConfig, sampler *amount.Sampler, alloc *allocator.Allocator, rnd *rand.Rand) (ARCreditMemo, JournalEntry, error) {
	seq := alloc.Next("ar_credit_memo", cfg.Date.Year())
	memoID := allocator.Render(allocator.YearPrefixed, "ARCM", cfg.ReferenceInvoice.Company, cfg.Date.Year(), int(cfg.Date.Month()), seq, rnd)

	amt := sampler.Sample(cfg.Pattern)
	if amt.Cmp(cfg.ReferenceInvoice.Gross) > 0 {
		amt = cfg.ReferenceInvoice.Gross
	}

	jeID := fmt.Sprintf("JE-%s", memoID)
	revenueAcct := "4000-REVENUE"
	if len(cfg.ReferenceInvoice.Lines) > 0 {
		revenueAcct = cfg.ReferenceInvoice.Lines[0].Account
	}
	lines := Balance([]JELine{
		{Account: revenueAcct, Description: "AR credit memo reversal", Debit: amt},
	}, "1200-ACCOUNTS-RECEIVABLE", "AR credit memo", 2)

	je := JournalEntry{
		ID:        jeID,
		Company:   cfg.ReferenceInvoice.Company,
		Currency:  cfg.ReferenceInvoice.Currency,
		Date:      cfg.Date,
		Reference: memoID,
		SourceDoc: memoID,
		Memo:      "AR credit memo " + memoID,
		Lines:     lines,
	}
	if err := ValidateBalanced(je); err != nil {
		return ARCreditMemo{}, JournalEntry{}, err
	}

	memo := ARCreditMemo{
		ID:                 memoID,
		Customer:            cfg.ReferenceInvoice.Customer,
		Company:              cfg.ReferenceInvoice.Company,
		Currency:             cfg.ReferenceInvoice.Currency,
		Date:                 cfg.Date,
		Lines:                []InvoiceLine{{Description: "credit", Amount: amt, Account: revenueAcct}},
		JEID:                 jeID,
		Gross:                amt,
		ApprovalRequired:     amt.Cmp(cfg.ApprovalThreshold) > 0,
		ReferenceInvoiceID:   cfg.ReferenceInvoice.ID,
	}
	return memo, je, nil
}

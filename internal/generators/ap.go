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

// APInvoiceConfig parameterizes one AP invoice generation call.
type APInvoiceConfig struct {
	Vendor       string
	PONumber     string // optional
	Company      string
	Currency     string
	LineCount    int
	TaxRate      float64
	Date         time.Time
	TermsDays    int
	Amount       amount.Config
	Pattern      amount.FraudAmountPattern
	ExpenseAccts []string // line expense accounts to cycle through
}

// GenerateAPInvoice draws N lines from the amount engine, applies tax
// per line, attaches a match status, and produces the paired JE (DR expense,
// DR input tax, CR AP) plus the invoice object. Document numbers are drawn
// from the shared allocator, never a private counter.
func GenerateAPInvoice(cfg APInvoiceConfig, sampler *amount.Sampler, alloc *allocator.Allocator, rnd *rand.Rand) (APInvoice, JournalEntry, error) {
	if cfg.LineCount < 1 {
		return APInvoice{}, JournalEntry{}, errors.GenerationError("generate_ap_invoice", "line count must be >= 1")
	}
	if len(cfg.ExpenseAccts) == 0 {
		cfg.ExpenseAccts = []string{"6000-EXPENSE"}
	}

	seq := alloc.Next("ap_invoice", cfg.Date.Year())
	invoiceID := allocator.Render(allocator.YearPrefixed, "APINV", cfg.Company, cfg.Date.Year(), int(cfg.Date.Month()), seq, rnd)

	lines := make([]InvoiceLine, 0, cfg.LineCount)
	gross := decimal.Zero(2)
	var jeLines []JELine
	taxTotal := decimal.Zero(2)

	for i := 0; i < cfg.LineCount; i++ {
		amt := sampler.Sample(cfg.Pattern)
		tax := amt.DivRat(decimal.New(100, 0), 2).MulInt64(int64(cfg.TaxRate * 100)).Round(2)
		acct := cfg.ExpenseAccts[i%len(cfg.ExpenseAccts)]
		lines = append(lines, InvoiceLine{
			Description: fmt.Sprintf("line %d", i+1),
			Amount:      amt,
			TaxAmount:   tax,
			Account:     acct,
		})
		gross = gross.Add(amt).Add(tax)
		taxTotal = taxTotal.Add(tax)
		jeLines = append(jeLines, JELine{Account: acct, Description: "AP invoice expense", Debit: amt})
	}
	if !taxTotal.IsZero() {
		jeLines = append(jeLines, JELine{Account: "1450-INPUT-TAX", Description: "input tax", Debit: taxTotal})
	}

	matchStatus := MatchMatched
	if rnd.Float64() >= 0.95 {
		matchStatus = MatchMatchedVariance
	}

	jeID := fmt.Sprintf("JE-%s", invoiceID)
	jeLines = Balance(jeLines, "2100-ACCOUNTS-PAYABLE", "AP invoice accrual", 2)
	je := JournalEntry{
		ID:        jeID,
		Company:   cfg.Company,
		Currency:  cfg.Currency,
		Date:      cfg.Date,
		Reference: invoiceID,
		SourceDoc: invoiceID,
		Memo:      "AP invoice " + invoiceID,
		Lines:     jeLines,
	}
	if err := ValidateBalanced(je); err != nil {
		return APInvoice{}, JournalEntry{}, err
	}

	due := cfg.Date.AddDate(0, 0, cfg.TermsDays)
	inv := APInvoice{
		ID:          invoiceID,
		Vendor:      cfg.Vendor,
		PONumber:    cfg.PONumber,
		Company:     cfg.Company,
		Currency:    cfg.Currency,
		Date:        cfg.Date,
		DueDate:     due,
		Lines:       lines,
		MatchStatus: matchStatus,
		JEID:        jeID,
		Gross:       gross,
	}
	return inv, je, nil
}

// PaymentMethod distribution for AP payments.
var paymentMethodWeights = []struct {
	method string
	weight float64
}{
	{"ach", 0.55},
	{"wire", 0.15},
	{"check", 0.25},
	{"card", 0.05},
}

func choosePaymentMethod(rnd *rand.Rand) string {
	p := rnd.Float64()
	var cum float64
	for _, m := range paymentMethodWeights {
		cum += m.weight
		if p < cum {
			return m.method
		}
	}
	return paymentMethodWeights[len(paymentMethodWeights)-1].method
}

// APPaymentConfig parameterizes one AP payment run against a set of open
// invoices.
type APPaymentConfig struct {
	Company          string
	Currency         string
	ValueDate        time.Time
	Invoices         []APInvoice
	DiscountPct      float64 // early-payment discount, applied if within terms
	DiscountDays     int
}

// GenerateAPPayment allocates the payment to invoices greedily in input
// order, computing a discount when paid within DiscountDays of the invoice
// date, and emits the paired JE (DR AP, CR cash, optional CR discount
// income).
func GenerateAPPayment(cfg APPaymentConfig, alloc *allocator.Allocator, rnd *rand.Rand) (APPayment, JournalEntry, error) {
	if len(cfg.Invoices) == 0 {
		return APPayment{}, JournalEntry{}, errors.GenerationError("generate_ap_payment", "no invoices to pay")
	}

	seq := alloc.Next("ap_payment", cfg.ValueDate.Year())
	paymentID := allocator.Render(allocator.YearPrefixed, "APPMT", cfg.Company, cfg.ValueDate.Year(), int(cfg.ValueDate.Month()), seq, rnd)

	var allocations []PaymentAllocation
	apTotal := decimal.Zero(2)
	discountTotal := decimal.Zero(2)
	cashTotal := decimal.Zero(2)

	for _, inv := range cfg.Invoices {
		discount := decimal.Zero(2)
		daysSinceInvoice := cfg.ValueDate.Sub(inv.Date).Hours() / 24
		if cfg.DiscountPct > 0 && daysSinceInvoice <= float64(cfg.DiscountDays) {
			discount = inv.Gross.DivRat(decimal.New(100, 0), 4).MulInt64(int64(cfg.DiscountPct * 100)).Round(2)
		}
		applied := inv.Gross.Sub(discount)
		allocations = append(allocations, PaymentAllocation{
			InvoiceID:     inv.ID,
			AppliedAmount: applied,
			DiscountTaken: discount,
		})
		apTotal = apTotal.Add(inv.Gross)
		discountTotal = discountTotal.Add(discount)
		cashTotal = cashTotal.Add(applied)
	}

	jeID := fmt.Sprintf("JE-%s", paymentID)
	lines := []JELine{
		{Account: "2100-ACCOUNTS-PAYABLE", Description: "AP payment clears accrual", Debit: apTotal},
	}
	if !discountTotal.IsZero() {
		lines = append(lines, JELine{Account: "7100-DISCOUNT-INCOME", Description: "early payment discount", Credit: discountTotal})
	}
	lines = append(lines, JELine{Account: "1000-CASH", Description: "AP payment disbursed", Credit: cashTotal})

	je := JournalEntry{
		ID:        jeID,
		Company:   cfg.Company,
		Currency:  cfg.Currency,
		Date:      cfg.ValueDate,
		Reference: paymentID,
		SourceDoc: paymentID,
		Memo:      "AP payment " + paymentID,
		Lines:     lines,
	}
	if err := ValidateBalanced(je); err != nil {
		return APPayment{}, JournalEntry{}, err
	}

	pay := APPayment{
		ID:          paymentID,
		Company:     cfg.Company,
		ValueDate:   cfg.ValueDate,
		Method:      choosePaymentMethod(rnd),
		Allocations: allocations,
		JEID:        jeID,
	}
	return pay, je, nil
}

package generators

import (
	"math/rand/v2"
	"testing"
	"time"

	"synthledger/internal/allocator"
	"synthledger/internal/amount"
	"synthledger/pkg/decimal"
)

func testSampler(seed uint64) *amount.Sampler {
	rnd := rand.New(rand.NewPCG(seed, seed^0xdeadbeef))
	return amount.New(rnd, amount.Config{Min: 1, Max: 50000, DecimalPlaces: 2, RoundNumberProbability: 0.05, NiceNumberProbability: 0.1}, amount.DefaultThresholdConfig())
}

func TestGenerateAPInvoiceProducesBalancedJournalEntry(t *testing.T) {
	alloc := allocator.New(1)
	rnd := rand.New(rand.NewPCG(1, 2))
	sampler := testSampler(1)

	inv, je, err := GenerateAPInvoice(APInvoiceConfig{
		Vendor:    "VENDOR-0001",
		Company:   "ACME-CO",
		Currency:  "USD",
		LineCount: 3,
		TaxRate:   0.08,
		Date:      time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC),
		TermsDays: 30,
		Amount:    amount.Config{Min: 1, Max: 50000, DecimalPlaces: 2},
		Pattern:   amount.Normal,
	}, sampler, alloc, rnd)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !je.IsBalanced() {
		t.Fatalf("journal entry does not balance: debits=%s credits=%s", je.DebitTotal(), je.CreditTotal())
	}
	if inv.JEID != je.ID {
		t.Fatalf("invoice JEID %q does not reference journal entry ID %q", inv.JEID, je.ID)
	}
	if err := ValidateBalanced(je); err != nil {
		t.Fatalf("ValidateBalanced rejected a balanced entry: %v", err)
	}
}

func TestGenerateAPInvoiceRejectsZeroLineCount(t *testing.T) {
	alloc := allocator.New(1)
	rnd := rand.New(rand.NewPCG(1, 2))
	sampler := testSampler(1)

	_, _, err := GenerateAPInvoice(APInvoiceConfig{
		Company:   "ACME-CO",
		Currency:  "USD",
		LineCount: 0,
		Date:      time.Now(),
		Amount:    amount.Config{Min: 1, Max: 50000, DecimalPlaces: 2},
	}, sampler, alloc, rnd)
	if err == nil {
		t.Fatal("expected an error for line count 0")
	}
}

func TestGenerateARInvoiceProducesBalancedJournalEntry(t *testing.T) {
	alloc := allocator.New(1)
	rnd := rand.New(rand.NewPCG(3, 4))
	sampler := testSampler(2)

	_, je, err := GenerateARInvoice(ARInvoiceConfig{
		Customer:  "CUST-0001",
		Company:   "ACME-CO",
		Currency:  "EUR",
		LineCount: 2,
		TaxRate:   0.20,
		Date:      time.Date(2026, 12, 31, 0, 0, 0, 0, time.UTC),
		TermsDays: 15,
		Amount:    amount.Config{Min: 1, Max: 50000, DecimalPlaces: 2},
		Pattern:   amount.ObviousRoundNumbers,
	}, sampler, alloc, rnd)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !je.IsBalanced() {
		t.Fatalf("journal entry does not balance: debits=%s credits=%s", je.DebitTotal(), je.CreditTotal())
	}
}

func TestBalanceAppendsOffsettingLine(t *testing.T) {
	lines := []JELine{
		{Account: "6000-EXPENSE", Debit: decimal.New(10000, 2)},
	}
	balanced := Balance(lines, "2100-ACCOUNTS-PAYABLE", "accrual", 2)

	je := JournalEntry{ID: "JE-TEST", Lines: balanced}
	if !je.IsBalanced() {
		t.Fatalf("Balance did not produce a balanced entry: debits=%s credits=%s", je.DebitTotal(), je.CreditTotal())
	}
	last := balanced[len(balanced)-1]
	if last.Account != "2100-ACCOUNTS-PAYABLE" || last.Credit.Cmp(decimal.New(10000, 2)) != 0 {
		t.Fatalf("unexpected offset line: %+v", last)
	}
}

func TestBalanceIsNoOpWhenAlreadyBalanced(t *testing.T) {
	lines := []JELine{
		{Account: "6000-EXPENSE", Debit: decimal.New(5000, 2)},
		{Account: "1000-CASH", Credit: decimal.New(5000, 2)},
	}
	balanced := Balance(lines, "9999-SUSPENSE", "should not appear", 2)
	if len(balanced) != len(lines) {
		t.Fatalf("Balance appended an offset line to an already-balanced entry: %+v", balanced)
	}
}

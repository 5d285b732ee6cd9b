// Package generators implements the record generators: a double-entry
// balancer plus the AP/AR/fixed-asset/FX/OCPM generators and the
// supplemented intercompany-elimination and goods-receipt generators.
//
// Every generator takes its config, the shared services it draws from and a
// *rand.Rand, and returns its record or records; the posting generators also
// return their balanced JournalEntry side-record(s) and an error. Generators
// do not return labels: a label for a fraud-pattern amount is built
// separately by BuildAmountAnomalyLabel.
// Amounts are drawn through internal/amount, document numbers through
// internal/allocator, and randomness through internal/rng, never a private
// per-generator shortcut, matching the decisions recorded in DESIGN.md.
package generators

import (
	"time"

	"synthledger/pkg/decimal"
)

// JELine is one debit or credit line of a JournalEntry. Exactly one of Debit
// or Credit is non-zero by convention, though both fields are carried so a
// line total can be read without a type switch.
type JELine struct {
	Account     string
	Description string
	Debit       decimal.Decimal
	Credit      decimal.Decimal
}

// JournalEntry is the core's Balanced record: every generator that posts
// accounting impact constructs one of these, directly or as a side-record.
type JournalEntry struct {
	ID        string
	Company   string
	Currency  string
	Date      time.Time
	Reference string
	SourceDoc string
	Memo      string
	Lines     []JELine
}

func (j JournalEntry) RecordID() string         { return j.ID }
func (j JournalEntry) RecordType() string       { return "journal_entry" }
func (j JournalEntry) PostingDate() time.Time   { return j.Date }

func (j JournalEntry) DebitTotal() decimal.Decimal {
	total := decimal.Zero(2)
	for _, l := range j.Lines {
		total = total.Add(l.Debit)
	}
	return total
}

func (j JournalEntry) CreditTotal() decimal.Decimal {
	total := decimal.Zero(2)
	for _, l := range j.Lines {
		total = total.Add(l.Credit)
	}
	return total
}

// IsBalanced reports Invariant 1: Σdebits - Σcredits == 0 exactly.
func (j JournalEntry) IsBalanced() bool {
	return j.DebitTotal().Sub(j.CreditTotal()).IsZero()
}

// InvoiceLine is one line of an AP or AR invoice, net of tax.
type InvoiceLine struct {
	Description string
	Amount      decimal.Decimal
	TaxAmount   decimal.Decimal
	Account     string
}

// MatchStatus is the three-way-match outcome an AP invoice carries.
type MatchStatus string

const (
	MatchMatched           MatchStatus = "matched"
	MatchMatchedVariance   MatchStatus = "matched_with_variance"
	MatchPriceVariance     MatchStatus = "price_variance"
	MatchQuantityVariance  MatchStatus = "quantity_variance"
)

// APInvoice is the AP sub-ledger document the AP invoice generator emits.
type APInvoice struct {
	ID          string
	Vendor      string
	PONumber    string
	Company     string
	Currency    string
	Date        time.Time
	DueDate     time.Time
	Lines       []InvoiceLine
	MatchStatus MatchStatus
	JEID        string
	Gross       decimal.Decimal
}

func (a APInvoice) RecordID() string       { return a.ID }
func (a APInvoice) RecordType() string     { return "ap_invoice" }
func (a APInvoice) PostingDate() time.Time { return a.Date }

// PaymentAllocation assigns part of a payment to one invoice.
type PaymentAllocation struct {
	InvoiceID      string
	AppliedAmount  decimal.Decimal
	DiscountTaken  decimal.Decimal
}

// APPayment is the AP payment document the AP payment generator emits.
type APPayment struct {
	ID          string
	Company     string
	ValueDate   time.Time
	Method      string
	Allocations []PaymentAllocation
	JEID        string
}

func (p APPayment) RecordID() string       { return p.ID }
func (p APPayment) RecordType() string     { return "ap_payment" }
func (p APPayment) PostingDate() time.Time { return p.ValueDate }

// ARInvoice is the AR sub-ledger document the AR invoice generator emits.
type ARInvoice struct {
	ID       string
	Customer string
	Company  string
	Currency string
	Date     time.Time
	DueDate  time.Time
	Lines    []InvoiceLine
	JEID     string
	Gross    decimal.Decimal
}

func (a ARInvoice) RecordID() string       { return a.ID }
func (a ARInvoice) RecordType() string     { return "ar_invoice" }
func (a ARInvoice) PostingDate() time.Time { return a.Date }

// ARCreditMemo is the AR credit-memo document, symmetric to ARInvoice, which
// may require approval when its gross amount exceeds a configured threshold.
type ARCreditMemo struct {
	ID                 string
	Customer           string
	Company            string
	Currency           string
	Date               time.Time
	Lines              []InvoiceLine
	JEID               string
	Gross              decimal.Decimal
	ApprovalRequired   bool
	ReferenceInvoiceID string
}

func (c ARCreditMemo) RecordID() string       { return c.ID }
func (c ARCreditMemo) RecordType() string     { return "ar_credit_memo" }
func (c ARCreditMemo) PostingDate() time.Time { return c.Date }

// AssetStatus is one of the fixed-asset lifecycle states.
type AssetStatus string

const (
	AssetUnderConstruction AssetStatus = "under_construction"
	AssetActive            AssetStatus = "active"
	AssetDisposed          AssetStatus = "disposed"
	AssetImpaired          AssetStatus = "impaired"
)

// DepreciationMethod is one of the three methods the fixed-asset generator
// supports.
type DepreciationMethod string

const (
	StraightLine       DepreciationMethod = "straight_line"
	DecliningBalance   DepreciationMethod = "declining_balance"
	UnitsOfProduction  DepreciationMethod = "units_of_production"
)

// DepreciationRun is one monthly depreciation posting against an asset.
type DepreciationRun struct {
	Period           time.Time
	Amount           decimal.Decimal
	AccumulatedAfter decimal.Decimal
	JEID             string
}

// FixedAsset is the fixed-asset lifecycle record the fixed-asset generator
// evolves across acquisition, depreciation, and disposal.
type FixedAsset struct {
	ID                  string
	Company             string
	Description         string
	AcquisitionDate     time.Time
	AcquisitionCost     decimal.Decimal
	SalvageValue        decimal.Decimal
	UsefulLifeMonths    int
	Method              DepreciationMethod
	Status              AssetStatus
	AccumulatedDeprec   decimal.Decimal
	DepreciationRuns    []DepreciationRun
	DisposalDate        *time.Time
	DisposalProceeds    *decimal.Decimal
	DisposalGainLoss    *decimal.Decimal
	DisposalJEID        string
	AcquisitionJEID     string
}

func (f FixedAsset) RecordID() string   { return f.ID }
func (f FixedAsset) RecordType() string { return "fixed_asset" }
func (f FixedAsset) PostingDate() time.Time {
	if f.DisposalDate != nil {
		return *f.DisposalDate
	}
	return f.AcquisitionDate
}

// NetBookValue is AcquisitionCost - AccumulatedDeprec, used for the disposal
// gain/loss computation.
func (f FixedAsset) NetBookValue() decimal.Decimal {
	return f.AcquisitionCost.Sub(f.AccumulatedDeprec)
}

// FXRateKind discriminates a spot quote from a monthly closing/average rate.
type FXRateKind string

const (
	RateSpot    FXRateKind = "spot"
	RateClosing FXRateKind = "closing"
	RateAverage FXRateKind = "average"
)

// FXRate is one currency quotation the FX rate generator emits, either a
// daily spot or a month-end closing/average summary.
type FXRate struct {
	ID        string
	Currency  string
	Date      time.Time
	Rate      float64
	Kind      FXRateKind
}

func (r FXRate) RecordID() string       { return r.ID }
func (r FXRate) RecordType() string     { return "fx_rate" }
func (r FXRate) PostingDate() time.Time { return r.Date }

// CaseVariant is the probabilistic path flavor an OCPM case follows.
type CaseVariant string

const (
	VariantHappy  CaseVariant = "happy_path"
	VariantRework CaseVariant = "rework"
	VariantError  CaseVariant = "error_path"
)

// CaseEvent is one object-centric process-mining event: it may reference
// multiple objects.
type CaseEvent struct {
	ID          string
	CaseID      string
	ObjectType  string
	Activity    string
	Timestamp   time.Time
	Resource    string
	ObjectRefs  []string
	Variant     CaseVariant
}

func (e CaseEvent) RecordID() string       { return e.ID }
func (e CaseEvent) RecordType() string     { return "ocpm_event" }
func (e CaseEvent) PostingDate() time.Time { return e.Timestamp }

// IntercompanyElimination mirrors a booked AP/AR pair across two company
// codes.
type IntercompanyElimination struct {
	ID              string
	CompanyA        string
	CompanyB        string
	ClearingAccount string
	Date            time.Time
	Amount          decimal.Decimal
	JEIDCompanyA    string
	JEIDCompanyB    string
}

func (i IntercompanyElimination) RecordID() string       { return i.ID }
func (i IntercompanyElimination) RecordType() string     { return "intercompany_elimination" }
func (i IntercompanyElimination) PostingDate() time.Time { return i.Date }

// GoodsReceipt is the PO -> goods-receipt -> invoice triangulation record the
// supplemented three-way-match generator emits.
type GoodsReceipt struct {
	ID            string
	PONumber      string
	Vendor        string
	Date          time.Time
	OrderedQty    float64
	ReceivedQty   float64
	OrderedPrice  decimal.Decimal
	InvoicedPrice decimal.Decimal
	MatchStatus   MatchStatus
}

func (g GoodsReceipt) RecordID() string       { return g.ID }
func (g GoodsReceipt) RecordType() string     { return "goods_receipt" }
func (g GoodsReceipt) PostingDate() time.Time { return g.Date }

package generators

import (
	"fmt"
	"math/rand/v2"
	"time"

	"synthledger/internal/allocator"
	"synthledger/pkg/decimal"
	"synthledger/pkg/errors"
)

// FixedAssetConfig parameterizes an acquisition. Depreciation and disposal are driven separately via
// DepreciateFixedAsset / DisposeFixedAsset against the returned asset, since
// a single asset's lifecycle spans many calendar periods.
type FixedAssetConfig struct {
	Company          string
	Description      string
	AcquisitionDate  time.Time
	AcquisitionCost  decimal.Decimal
	SalvageValue     decimal.Decimal
	UsefulLifeMonths int
	Method           DepreciationMethod
	UnderConstruction bool
}

// GenerateFixedAsset books the acquisition JE (DR asset, CR cash/AP) and
// returns the asset in Active or UnderConstruction state; depreciation is
// only permitted once the asset reaches Active.
func GenerateFixedAsset(cfg FixedAssetConfig, alloc *allocator.Allocator, rnd *rand.Rand) (FixedAsset, JournalEntry, error) {
	if cfg.UsefulLifeMonths < 1 {
		return FixedAsset{}, JournalEntry{}, errors.GenerationError("generate_fixed_asset", "useful life must be >= 1 month")
	}

	seq := alloc.Next("fa_asset", cfg.AcquisitionDate.Year())
	assetID := allocator.Render(allocator.YearPrefixed, "FA", cfg.Company, cfg.AcquisitionDate.Year(), int(cfg.AcquisitionDate.Month()), seq, rnd)
	jeID := fmt.Sprintf("JE-%s-ACQ", assetID)

	lines := Balance([]JELine{
		{Account: "1500-FIXED-ASSETS", Description: "asset acquisition", Debit: cfg.AcquisitionCost},
	}, "2000-ACCOUNTS-PAYABLE", "asset acquisition payable", 2)

	je := JournalEntry{
		ID:        jeID,
		Company:   cfg.Company,
		Currency:  "USD",
		Date:      cfg.AcquisitionDate,
		Reference: assetID,
		SourceDoc: assetID,
		Memo:      "fixed asset acquisition " + assetID,
		Lines:     lines,
	}
	if err := ValidateBalanced(je); err != nil {
		return FixedAsset{}, JournalEntry{}, err
	}

	status := AssetActive
	if cfg.UnderConstruction {
		status = AssetUnderConstruction
	}

	asset := FixedAsset{
		ID:               assetID,
		Company:          cfg.Company,
		Description:      cfg.Description,
		AcquisitionDate:  cfg.AcquisitionDate,
		AcquisitionCost:  cfg.AcquisitionCost,
		SalvageValue:     cfg.SalvageValue,
		UsefulLifeMonths: cfg.UsefulLifeMonths,
		Method:           cfg.Method,
		Status:           status,
		AccumulatedDeprec: decimal.Zero(2),
		AcquisitionJEID:  jeID,
	}
	return asset, je, nil
}

// DepreciateFixedAsset posts one monthly depreciation run. Depreciation is
// permitted only while the asset is Active; any other
// status is a fatal Generation error for this call.
func DepreciateFixedAsset(asset FixedAsset, period time.Time, unitsThisPeriod, totalUnits float64) (FixedAsset, JournalEntry, error) {
	if asset.Status != AssetActive {
		return asset, JournalEntry{}, errors.GenerationError("depreciate_fixed_asset",
			fmt.Sprintf("asset %s is not Active (status=%s), depreciation not permitted", asset.ID, asset.Status))
	}

	depreciableBase := asset.AcquisitionCost.Sub(asset.SalvageValue)
	var amt decimal.Decimal

	switch asset.Method {
	case DecliningBalance:
		rate := decimal.New(2, 0).DivRat(decimal.New(int64(asset.UsefulLifeMonths), 0), 6)
		amt = asset.NetBookValue().Mul(rate).Round(2)
	case UnitsOfProduction:
		if totalUnits <= 0 {
			amt = decimal.Zero(2)
		} else {
			amt = depreciableBase.DivRat(decimal.FromFloat64(totalUnits, 2), 6).MulInt64(int64(unitsThisPeriod))
			amt = amt.Round(2)
		}
	default: // StraightLine
		amt = depreciableBase.DivRat(decimal.New(int64(asset.UsefulLifeMonths), 0), 6).Round(2)
	}

	remaining := depreciableBase.Sub(asset.AccumulatedDeprec)
	if amt.Cmp(remaining) > 0 {
		amt = remaining
	}
	if amt.Sign() < 0 {
		amt = decimal.Zero(2)
	}

	jeID := fmt.Sprintf("JE-%s-DEP-%04d%02d", asset.ID, period.Year(), period.Month())
	lines := Balance([]JELine{
		{Account: "6900-DEPRECIATION-EXPENSE", Description: "monthly depreciation", Debit: amt},
	}, "1590-ACCUMULATED-DEPRECIATION", "accumulated depreciation", 2)

	je := JournalEntry{
		ID:        jeID,
		Company:   asset.Company,
		Currency:  "USD",
		Date:      period,
		Reference: asset.ID,
		SourceDoc: asset.ID,
		Memo:      "depreciation " + asset.ID,
		Lines:     lines,
	}
	if err := ValidateBalanced(je); err != nil {
		return asset, JournalEntry{}, err
	}

	updated := asset
	updated.AccumulatedDeprec = asset.AccumulatedDeprec.Add(amt)
	updated.DepreciationRuns = append(append([]DepreciationRun{}, asset.DepreciationRuns...), DepreciationRun{
		Period:           period,
		Amount:           amt,
		AccumulatedAfter: updated.AccumulatedDeprec,
		JEID:             jeID,
	})
	return updated, je, nil
}

// DisposalMethod is one of the three ways a fixed asset leaves service.
type DisposalMethod string

const (
	DisposalSale   DisposalMethod = "sale"
	DisposalScrap  DisposalMethod = "scrap"
	DisposalImpair DisposalMethod = "impair"
)

// DisposeFixedAsset transitions the asset to Disposed (sale/scrap) or
// Impaired, computing gain/loss = proceeds - net book value.
func DisposeFixedAsset(asset FixedAsset, date time.Time, method DisposalMethod, proceeds decimal.Decimal) (FixedAsset, JournalEntry, error) {
	if asset.Status != AssetActive {
		return asset, JournalEntry{}, errors.GenerationError("dispose_fixed_asset",
			fmt.Sprintf("asset %s is not Active (status=%s), disposal not permitted", asset.ID, asset.Status))
	}

	nbv := asset.NetBookValue()
	gainLoss := proceeds.Sub(nbv)

	jeID := fmt.Sprintf("JE-%s-DISP", asset.ID)
	var lines []JELine
	lines = append(lines,
		JELine{Account: "1590-ACCUMULATED-DEPRECIATION", Description: "derecognize accumulated depreciation", Debit: asset.AccumulatedDeprec},
	)
	if proceeds.Sign() > 0 {
		lines = append(lines, JELine{Account: "1000-CASH", Description: "disposal proceeds", Debit: proceeds})
	}
	switch gainLoss.Sign() {
	case 1:
		lines = append(lines, JELine{Account: "7500-GAIN-ON-DISPOSAL", Description: "gain on disposal", Credit: gainLoss})
	case -1:
		lines = append(lines, JELine{Account: "7600-LOSS-ON-DISPOSAL", Description: "loss on disposal", Debit: gainLoss.Neg()})
	}
	lines = Balance(lines, "1500-FIXED-ASSETS", "derecognize asset cost", 2)

	je := JournalEntry{
		ID:        jeID,
		Company:   asset.Company,
		Currency:  "USD",
		Date:      date,
		Reference: asset.ID,
		SourceDoc: asset.ID,
		Memo:      "disposal " + asset.ID,
		Lines:     lines,
	}
	if err := ValidateBalanced(je); err != nil {
		return asset, JournalEntry{}, err
	}

	updated := asset
	status := AssetDisposed
	if method == DisposalImpair {
		status = AssetImpaired
	}
	updated.Status = status
	updated.DisposalDate = &date
	updated.DisposalProceeds = &proceeds
	updated.DisposalGainLoss = &gainLoss
	updated.DisposalJEID = jeID
	return updated, je, nil
}

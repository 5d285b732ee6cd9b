package generators

import (
	"math"
	"math/rand/v2"
	"time"

	"synthledger/internal/allocator"
	"synthledger/pkg/decimal"
)

// GoodsReceiptConfig parameterizes the PO -> goods-receipt -> invoice
// three-way-match triangulation.
type GoodsReceiptConfig struct {
	PONumber      string
	Vendor        string
	Date          time.Time
	OrderedQty    float64
	OrderedPrice  decimal.Decimal
	ReceivedQtyPct   float64 // fraction of OrderedQty actually received
	InvoicedPriceVariancePct float64 // fraction off OrderedPrice the invoice bills
}

// GenerateGoodsReceipt computes the three-way-match status consumed by the
// AP invoice generator's MatchStatus field: quantity variance when received
// != ordered, price variance when invoiced price != ordered price, both at
// once classified as the quantity variance taking precedence.
func GenerateGoodsReceipt(cfg GoodsReceiptConfig, alloc *allocator.Allocator, rnd *rand.Rand) GoodsReceipt {
	seq := alloc.Next("goods_receipt", cfg.Date.Year())
	grID := allocator.Render(allocator.YearPrefixed, "GR", cfg.Vendor, cfg.Date.Year(), int(cfg.Date.Month()), seq, rnd)

	received := cfg.OrderedQty * cfg.ReceivedQtyPct
	invoicedPrice := cfg.OrderedPrice.Mul(decimal.FromFloat64(1+cfg.InvoicedPriceVariancePct, 6)).Round(2)

	status := MatchMatched
	qtyOff := math.Abs(received-cfg.OrderedQty) > 0.001
	priceOff := invoicedPrice.Cmp(cfg.OrderedPrice) != 0
	switch {
	case qtyOff && priceOff:
		status = MatchQuantityVariance
	case qtyOff:
		status = MatchQuantityVariance
	case priceOff:
		status = MatchPriceVariance
	}

	return GoodsReceipt{
		ID:            grID,
		PONumber:      cfg.PONumber,
		Vendor:        cfg.Vendor,
		Date:          cfg.Date,
		OrderedQty:    cfg.OrderedQty,
		ReceivedQty:   received,
		OrderedPrice:  cfg.OrderedPrice,
		InvoicedPrice: invoicedPrice,
		MatchStatus:   status,
	}
}

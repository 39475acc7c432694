// Package pricing holds the pure pricing rules: wholesale-tier line totals
// and derived stock for bundle children. Nothing here touches persistence.
package pricing

import "kokopos/backend/internal/domain"

// LineTotal computes the chargeable total for one cart line. When the item
// carries a wholesale tier (both threshold and pack price set), the quantity
// is split into full packs charged at the pack price and a remainder charged
// per unit. The result is what gets persisted as FinalLineTotalSatang at
// settlement.
func LineTotal(item domain.CartItem) int64 {
	if item.WholesaleQty > 0 && item.WholesalePriceSatang > 0 {
		packs := int64(item.Qty / item.WholesaleQty)
		remainder := int64(item.Qty % item.WholesaleQty)
		return packs*item.WholesalePriceSatang + remainder*item.PriceSatang
	}
	return int64(item.Qty) * item.PriceSatang
}

// HistoricalLineTotal prefers the total cached at settlement over a
// recomputation, because unit prices may have changed since.
func HistoricalLineTotal(item domain.CartItem) int64 {
	if item.FinalLineTotalSatang > 0 {
		return item.FinalLineTotalSatang
	}
	return LineTotal(item)
}

// CartTotal sums LineTotal over all lines.
func CartTotal(items []domain.CartItem) int64 {
	var total int64
	for _, item := range items {
		total += LineTotal(item)
	}
	return total
}

// DisplayedStock resolves the sellable stock of a product. For a bundle
// child it is floor(parent.stock / packSize); a missing parent degrades to
// zero rather than failing. parent may be nil for non-bundle products.
func DisplayedStock(p domain.Product, parent *domain.Product) int {
	if !p.IsBundleChild() {
		return p.Stock
	}
	if parent == nil || p.PackSize < 1 {
		return 0
	}
	if parent.Stock < 0 {
		// Negative parent stock (quick-sale debt) floors toward zero packs,
		// not toward negative ones.
		return 0
	}
	return parent.Stock / p.PackSize
}

// NeedsWholesalePrompt signals the one-time-per-line pack-price prompt: the
// line's quantity has reached the wholesale threshold, no pack price is
// known yet, and the operator has not been asked before on this line.
func NeedsWholesalePrompt(item domain.CartItem) bool {
	return item.WholesaleQty > 0 &&
		item.WholesalePriceSatang <= 0 &&
		item.Qty >= item.WholesaleQty &&
		!item.WholesalePrompted
}

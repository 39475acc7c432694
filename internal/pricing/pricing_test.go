package pricing

import (
	"testing"

	"kokopos/backend/internal/domain"
)

func TestLineTotalWithoutWholesaleTier(t *testing.T) {
	total := LineTotal(domain.CartItem{PriceSatang: 700, Qty: 3})
	if total != 2100 {
		t.Fatalf("expected 2100, got %d", total)
	}
}

func TestLineTotalSplitsPacksAndRemainder(t *testing.T) {
	item := domain.CartItem{
		PriceSatang:          1000,
		Qty:                  30,
		WholesaleQty:         12,
		WholesalePriceSatang: 10000,
	}
	// 2 packs of 12 at the pack price plus 6 loose units.
	total := LineTotal(item)
	if total != 2*10000+6*1000 {
		t.Fatalf("expected 26000, got %d", total)
	}
}

func TestLineTotalIgnoresTierWithoutPackPrice(t *testing.T) {
	item := domain.CartItem{
		PriceSatang:  600,
		Qty:          15,
		WholesaleQty: 10,
	}
	if total := LineTotal(item); total != 9000 {
		t.Fatalf("expected per-unit pricing 9000, got %d", total)
	}
}

func TestHistoricalLineTotalPrefersCachedValue(t *testing.T) {
	item := domain.CartItem{PriceSatang: 999, Qty: 5, FinalLineTotalSatang: 1234}
	if total := HistoricalLineTotal(item); total != 1234 {
		t.Fatalf("expected cached 1234, got %d", total)
	}

	item.FinalLineTotalSatang = 0
	if total := HistoricalLineTotal(item); total != 4995 {
		t.Fatalf("expected recomputed 4995, got %d", total)
	}
}

func TestCartTotal(t *testing.T) {
	items := []domain.CartItem{
		{PriceSatang: 700, Qty: 2},
		{PriceSatang: 1500, Qty: 1},
	}
	if total := CartTotal(items); total != 2900 {
		t.Fatalf("expected 2900, got %d", total)
	}
}

func TestDisplayedStockForBundleChild(t *testing.T) {
	parent := domain.Product{ID: "tray", Stock: 65}
	child := domain.Product{ID: "single", ParentID: "tray", PackSize: 30}

	if got := DisplayedStock(child, &parent); got != 2 {
		t.Fatalf("expected floor(65/30)=2, got %d", got)
	}

	parent.Stock = -10
	if got := DisplayedStock(child, &parent); got != 0 {
		t.Fatalf("expected 0 for negative parent stock, got %d", got)
	}

	if got := DisplayedStock(child, nil); got != 0 {
		t.Fatalf("expected 0 for missing parent, got %d", got)
	}
}

func TestDisplayedStockForPlainProduct(t *testing.T) {
	p := domain.Product{ID: "coke", Stock: 24}
	if got := DisplayedStock(p, nil); got != 24 {
		t.Fatalf("expected 24, got %d", got)
	}
}

func TestNeedsWholesalePrompt(t *testing.T) {
	item := domain.CartItem{PriceSatang: 600, Qty: 10, WholesaleQty: 10}
	if !NeedsWholesalePrompt(item) {
		t.Fatalf("expected prompt at threshold without a pack price")
	}

	item.WholesalePrompted = true
	if NeedsWholesalePrompt(item) {
		t.Fatalf("expected no second prompt on the same line")
	}

	item.WholesalePrompted = false
	item.WholesalePriceSatang = 5500
	if NeedsWholesalePrompt(item) {
		t.Fatalf("expected no prompt once a pack price is known")
	}

	item.WholesalePriceSatang = 0
	item.Qty = 9
	if NeedsWholesalePrompt(item) {
		t.Fatalf("expected no prompt below the threshold")
	}
}

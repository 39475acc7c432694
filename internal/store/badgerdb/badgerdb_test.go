package badgerdb

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"kokopos/backend/internal/domain"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("open badger store: %v", err)
	}
	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Errorf("close store: %v", err)
		}
	})
	return s
}

func TestEmptyCollectionsDefaultToEmpty(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	products, err := s.GetProducts(ctx)
	if err != nil {
		t.Fatalf("get products: %v", err)
	}
	if len(products) != 0 {
		t.Fatalf("expected empty products, got %d", len(products))
	}

	counters, err := s.GetBillCounters(ctx)
	if err != nil {
		t.Fatalf("get counters: %v", err)
	}
	if counters == nil || len(counters) != 0 {
		t.Fatalf("expected empty non-nil counters, got %v", counters)
	}

	settings, err := s.GetSettings(ctx)
	if err != nil {
		t.Fatalf("get settings: %v", err)
	}
	if settings.StoreName != "" {
		t.Fatalf("expected zero settings, got %+v", settings)
	}
}

func TestProductsRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	in := []domain.Product{
		{ID: "a", Barcode: "a", Name: "ไวไว", PriceSatang: 600, Stock: 48, WholesaleQty: 10, WholesalePriceSatang: 5500},
		{ID: "single", Barcode: "s", Name: "ไข่ฟอง", PriceSatang: 450, ParentID: "tray", PackSize: 30},
	}
	if err := s.PutProducts(ctx, in); err != nil {
		t.Fatalf("put products: %v", err)
	}

	out, err := s.GetProducts(ctx)
	if err != nil {
		t.Fatalf("get products: %v", err)
	}
	if len(out) != 2 || out[0].Name != "ไวไว" || out[1].PackSize != 30 {
		t.Fatalf("round trip mismatch: %+v", out)
	}
}

func TestSalesAndCountersRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	sale := domain.Sale{
		BillID:      "B250901-001",
		Date:        time.Date(2025, time.September, 1, 9, 0, 0, 0, time.UTC),
		Items:       []domain.CartItem{{ProductID: "a", Name: "a", PriceSatang: 100, Qty: 2, FinalLineTotalSatang: 200}},
		TotalSatang: 200,
		StoreName:   "KOKOJOY",
	}
	if err := s.PutSales(ctx, []domain.Sale{sale}); err != nil {
		t.Fatalf("put sales: %v", err)
	}
	if err := s.PutBillCounters(ctx, map[string]int{"B250901": 1}); err != nil {
		t.Fatalf("put counters: %v", err)
	}

	sales, err := s.GetSales(ctx)
	if err != nil {
		t.Fatalf("get sales: %v", err)
	}
	if len(sales) != 1 || sales[0].BillID != "B250901-001" || !sales[0].Date.Equal(sale.Date) {
		t.Fatalf("sales round trip mismatch: %+v", sales)
	}
	if sales[0].Items[0].FinalLineTotalSatang != 200 {
		t.Fatalf("expected cached line total to survive, got %+v", sales[0].Items)
	}

	counters, err := s.GetBillCounters(ctx)
	if err != nil {
		t.Fatalf("get counters: %v", err)
	}
	if counters["B250901"] != 1 {
		t.Fatalf("counters round trip mismatch: %v", counters)
	}
}

func TestDataSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	s, err := Open(dir)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := s.PutSettings(ctx, domain.Settings{StoreName: "KOKOJOY", PINHash: "$2a$10$x"}); err != nil {
		t.Fatalf("put settings: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened, err := Open(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()

	settings, err := reopened.GetSettings(ctx)
	if err != nil {
		t.Fatalf("get settings: %v", err)
	}
	if settings.StoreName != "KOKOJOY" || settings.PINHash != "$2a$10$x" {
		t.Fatalf("expected settings to survive reopen, got %+v", settings)
	}
}

func TestCorruptCollectionDegradesToEmpty(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.put(keyProducts, json.RawMessage(`{"this is": "not a product slice"}`)); err != nil {
		t.Fatalf("seed corrupt payload: %v", err)
	}

	products, err := s.GetProducts(ctx)
	if err != nil {
		t.Fatalf("expected corrupt collection to degrade, got %v", err)
	}
	if len(products) != 0 {
		t.Fatalf("expected empty products, got %+v", products)
	}
}

func TestCorruptCollectionNeverDecodesPartially(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	// Valid JSON that fails mid-decode: the first element parses, the second
	// has the wrong type. The whole collection must degrade, not just the tail.
	payload := `[{"id": "a", "barcode": "a", "name": "ok", "price_satang": 100, "stock": 1}, {"id": 42}]`
	if err := s.put(keyProducts, json.RawMessage(payload)); err != nil {
		t.Fatalf("seed corrupt payload: %v", err)
	}

	products, err := s.GetProducts(ctx)
	if err != nil {
		t.Fatalf("expected corrupt collection to degrade, got %v", err)
	}
	if len(products) != 0 {
		t.Fatalf("expected no partial decode, got %+v", products)
	}
}

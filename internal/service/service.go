// Package service implements the ledger operations: catalog management,
// quoting, the parking queue and its trash, settlement with date-scoped bill
// ids, historical edits and the backup contract. All persistence goes through
// store.Repository as full-collection rewrites.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"regexp"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"kokopos/backend/internal/billid"
	"kokopos/backend/internal/cache"
	"kokopos/backend/internal/domain"
	"kokopos/backend/internal/pricing"
	"kokopos/backend/internal/store"
)

const (
	// MaxParkedCarts bounds the active parking queue; inserting into a full
	// queue evicts the oldest entry into the trash.
	MaxParkedCarts = 5
	// MaxTrashEntries bounds the parking trash; overflow drops the oldest.
	MaxTrashEntries = 10

	backupVersion   = "1.0"
	barcodeCacheTTL = 5 * time.Minute
)

var (
	// ErrSettlementInProgress rejects a settlement while another one is
	// still being written, so a double-tap cannot produce two bills.
	ErrSettlementInProgress = errors.New("settlement already in progress")
	// ErrDuplicateBarcode signals a catalog write that collides with an
	// existing product and carries no resolution.
	ErrDuplicateBarcode = errors.New("barcode already registered")
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

type Service struct {
	repo        store.Repository
	cache       cache.BarcodeCache
	storeName   string
	strictStock bool

	now      func() time.Time
	settling atomic.Bool
}

func New(repo store.Repository, barcodeCache cache.BarcodeCache, storeName string, strictStock bool) *Service {
	if storeName == "" {
		storeName = "KOKOJOY"
	}
	if barcodeCache == nil {
		barcodeCache = cache.NoopBarcodeCache{}
	}

	return &Service{
		repo:        repo,
		cache:       barcodeCache,
		storeName:   storeName,
		strictStock: strictStock,
		now:         time.Now,
	}
}

func requireOwner(ctx context.Context) error {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != domain.RoleOwner {
		return fmt.Errorf("%w: owner role required", store.ErrForbidden)
	}
	return nil
}

// ---- catalog ----

func (s *Service) ListProducts(ctx context.Context) ([]domain.Product, error) {
	products, err := s.repo.GetProducts(ctx)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(products, func(i, j int) bool {
		if products[i].Group != products[j].Group {
			return products[i].Group < products[j].Group
		}
		return products[i].Name < products[j].Name
	})
	return products, nil
}

// GetByBarcode resolves a scanned code against unit barcodes first, then
// pack barcodes. A pack match tells the caller to add WholesaleQty units.
func (s *Service) GetByBarcode(ctx context.Context, code string) (domain.BarcodeMatch, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return domain.BarcodeMatch{}, fmt.Errorf("%w: barcode required", store.ErrInvalidInput)
	}

	if cached, ok, err := s.cache.Get(ctx, code); err == nil && ok {
		return *cached, nil
	} else if err != nil {
		log.Printf("[service] barcode cache read failed: %v", err)
	}

	products, err := s.repo.GetProducts(ctx)
	if err != nil {
		return domain.BarcodeMatch{}, err
	}

	for _, p := range products {
		if p.Barcode == code {
			return s.cacheMatch(ctx, code, domain.BarcodeMatch{Product: p}), nil
		}
	}
	for _, p := range products {
		if p.PackBarcode != "" && p.PackBarcode == code {
			return s.cacheMatch(ctx, code, domain.BarcodeMatch{Product: p, IsPack: true}), nil
		}
	}

	return domain.BarcodeMatch{}, fmt.Errorf("%w: barcode %s", store.ErrNotFound, code)
}

func (s *Service) cacheMatch(ctx context.Context, code string, match domain.BarcodeMatch) domain.BarcodeMatch {
	if err := s.cache.Set(ctx, code, &match, barcodeCacheTTL); err != nil {
		log.Printf("[service] barcode cache write failed: %v", err)
	}
	return match
}

// SaveProduct registers a new product or edits an existing one. A barcode
// collision with a different product is rejected unless the request carries a
// resolution: combine the stocks, or net out a quick-sale placeholder's
// accumulated negative stock into the incoming quantity.
func (s *Service) SaveProduct(ctx context.Context, req domain.ProductSaveRequest) (domain.Product, error) {
	if err := requireOwner(ctx); err != nil {
		return domain.Product{}, err
	}

	p := req.Product
	p.Barcode = strings.TrimSpace(p.Barcode)
	p.Name = strings.TrimSpace(p.Name)
	if p.Barcode == "" || p.Name == "" {
		return domain.Product{}, fmt.Errorf("%w: barcode and name required", store.ErrInvalidInput)
	}
	if p.PriceSatang < 0 || p.CostSatang < 0 || p.WholesaleQty < 0 || p.WholesalePriceSatang < 0 {
		return domain.Product{}, fmt.Errorf("%w: negative money or tier values", store.ErrInvalidInput)
	}
	if p.ParentID != "" && p.PackSize < 1 {
		return domain.Product{}, fmt.Errorf("%w: bundle child needs pack size >= 1", store.ErrInvalidInput)
	}
	if p.ID == "" {
		p.ID = p.Barcode
	}

	products, err := s.repo.GetProducts(ctx)
	if err != nil {
		return domain.Product{}, err
	}

	if p.ParentID != "" && findProductIndex(products, p.ParentID) < 0 {
		return domain.Product{}, fmt.Errorf("%w: bundle parent %s", store.ErrNotFound, p.ParentID)
	}

	// Same-id write is an edit, not a collision.
	for i, existing := range products {
		if existing.ID == p.ID {
			products[i] = p
			return p, s.persistProducts(ctx, products)
		}
	}

	if idx := findByBarcode(products, p.Barcode); idx >= 0 {
		existing := products[idx]
		switch req.OnDuplicate {
		case domain.DuplicateCombineStock:
			existing.Stock += p.Stock
			products[idx] = existing
			return existing, s.persistProducts(ctx, products)
		case domain.DuplicateNetQuickSale:
			if !existing.IsQuickSalePlaceholder() {
				return domain.Product{}, fmt.Errorf("%w: %s is not a quick-sale placeholder", store.ErrInvalidInput, existing.ID)
			}
			// The placeholder's negative stock is debt from units already
			// sold; the registration absorbs it.
			p.ID = existing.ID
			p.Stock += existing.Stock
			products[idx] = p
			return p, s.persistProducts(ctx, products)
		default:
			return existing, fmt.Errorf("%w: %s", ErrDuplicateBarcode, p.Barcode)
		}
	}

	products = append(products, p)
	return p, s.persistProducts(ctx, products)
}

// CreateQuickSaleProduct registers the placeholder behind an unknown-barcode
// quick sale: id equals barcode, zero stock. Settling the sale drives the
// stock negative, which a later proper registration nets out.
func (s *Service) CreateQuickSaleProduct(ctx context.Context, barcode string, name string, priceSatang int64) (domain.Product, error) {
	barcode = strings.TrimSpace(barcode)
	name = strings.TrimSpace(name)
	if barcode == "" || name == "" || priceSatang < 0 {
		return domain.Product{}, fmt.Errorf("%w: barcode, name and non-negative price required", store.ErrInvalidInput)
	}

	products, err := s.repo.GetProducts(ctx)
	if err != nil {
		return domain.Product{}, err
	}
	if idx := findByBarcode(products, barcode); idx >= 0 {
		return products[idx], nil
	}

	p := domain.Product{
		ID:          barcode,
		Barcode:     barcode,
		Name:        name,
		PriceSatang: priceSatang,
	}
	products = append(products, p)
	return p, s.persistProducts(ctx, products)
}

// AdjustStock applies a signed delta against a product's own stock count
// (positive delta deducts, mirroring a sale). An unknown id is a no-op:
// the product may have been deleted while a cart referencing it was parked.
func (s *Service) AdjustStock(ctx context.Context, productID string, delta int) error {
	products, err := s.repo.GetProducts(ctx)
	if err != nil {
		return err
	}
	idx := findProductIndex(products, productID)
	if idx < 0 {
		return nil
	}
	products[idx].Stock -= delta
	return s.persistProducts(ctx, products)
}

// SetWholesalePrice persists an interactively learned pack price onto the
// catalog product so the next sale does not have to ask again.
func (s *Service) SetWholesalePrice(ctx context.Context, productID string, priceSatang int64) error {
	if priceSatang <= 0 {
		return fmt.Errorf("%w: wholesale price must be positive", store.ErrInvalidInput)
	}

	products, err := s.repo.GetProducts(ctx)
	if err != nil {
		return err
	}
	idx := findProductIndex(products, productID)
	if idx < 0 {
		return fmt.Errorf("%w: product %s", store.ErrNotFound, productID)
	}
	products[idx].WholesalePriceSatang = priceSatang
	return s.persistProducts(ctx, products)
}

func (s *Service) persistProducts(ctx context.Context, products []domain.Product) error {
	if err := s.repo.PutProducts(ctx, products); err != nil {
		return err
	}
	if err := s.cache.Flush(ctx); err != nil {
		log.Printf("[service] barcode cache flush failed: %v", err)
	}
	return nil
}

// ---- quoting ----

// Quote prices a set of cart lines without touching stock or the ledger.
// Each line carries its wholesale-tier total and the ask-once prompt signal.
func (s *Service) Quote(_ context.Context, items []domain.CartItem) (domain.QuoteResponse, error) {
	resp := domain.QuoteResponse{Lines: make([]domain.QuoteLine, 0, len(items))}
	for _, item := range items {
		if item.Qty < 1 {
			return domain.QuoteResponse{}, fmt.Errorf("%w: quantity must be >= 1", store.ErrInvalidInput)
		}
		line := domain.QuoteLine{
			Item:                 item,
			LineTotalSatang:      pricing.LineTotal(item),
			PromptWholesalePrice: pricing.NeedsWholesalePrompt(item),
		}
		resp.Lines = append(resp.Lines, line)
		resp.TotalSatang += line.LineTotalSatang
	}
	return resp, nil
}

// ---- parking queue ----

// Park suspends a cart into the bounded queue. When the queue is full the
// oldest entry (smallest timestamp) is evicted into the trash first. A
// request carrying the original timestamp of a restored cart keeps its place
// in line instead of jumping to the back.
func (s *Service) Park(ctx context.Context, req domain.ParkRequest) (domain.ParkedCart, error) {
	if len(req.Items) == 0 {
		return domain.ParkedCart{}, fmt.Errorf("%w: cannot park an empty cart", store.ErrInvalidInput)
	}

	parked, err := s.repo.GetParkedCarts(ctx)
	if err != nil {
		return domain.ParkedCart{}, err
	}

	// A loop, not a single eviction: trash restores can push the active set
	// past the cap, and the next park drains it back down.
	for len(parked) >= MaxParkedCarts {
		sort.Slice(parked, func(i, j int) bool { return parked[i].Timestamp < parked[j].Timestamp })
		evicted := parked[0]
		parked = parked[1:]
		if err := s.pushTrash(ctx, evicted); err != nil {
			return domain.ParkedCart{}, err
		}
		log.Printf("[service] parking queue full, evicted bill %s to trash", evicted.ID)
	}

	ts := req.Timestamp
	if ts <= 0 {
		ts = s.now().UnixMilli()
	}
	cart := domain.ParkedCart{
		ID:        uuid.NewString(),
		Timestamp: ts,
		Note:      strings.TrimSpace(req.Note),
		Items:     req.Items,
	}
	parked = append(parked, cart)

	if err := s.repo.PutParkedCarts(ctx, parked); err != nil {
		return domain.ParkedCart{}, err
	}
	return cart, nil
}

// ListParked returns the queue oldest-first, the order eviction targets it.
func (s *Service) ListParked(ctx context.Context) ([]domain.ParkedCart, error) {
	parked, err := s.repo.GetParkedCarts(ctx)
	if err != nil {
		return nil, err
	}
	sort.Slice(parked, func(i, j int) bool { return parked[i].Timestamp < parked[j].Timestamp })
	return parked, nil
}

// Restore removes a parked cart from the queue and returns it for loading
// into the active cart. Removal and return are one operation so the bill can
// never exist in both places.
func (s *Service) Restore(ctx context.Context, id string) (domain.ParkedCart, error) {
	parked, err := s.repo.GetParkedCarts(ctx)
	if err != nil {
		return domain.ParkedCart{}, err
	}
	idx := findParkedIndex(parked, id)
	if idx < 0 {
		return domain.ParkedCart{}, fmt.Errorf("%w: parked cart %s", store.ErrNotFound, id)
	}
	cart := parked[idx]
	parked = append(parked[:idx], parked[idx+1:]...)
	if err := s.repo.PutParkedCarts(ctx, parked); err != nil {
		return domain.ParkedCart{}, err
	}
	return cart, nil
}

// RemoveParked moves a parked cart from the queue into the trash.
func (s *Service) RemoveParked(ctx context.Context, id string) error {
	parked, err := s.repo.GetParkedCarts(ctx)
	if err != nil {
		return err
	}
	idx := findParkedIndex(parked, id)
	if idx < 0 {
		return fmt.Errorf("%w: parked cart %s", store.ErrNotFound, id)
	}
	removed := parked[idx]
	parked = append(parked[:idx], parked[idx+1:]...)
	if err := s.repo.PutParkedCarts(ctx, parked); err != nil {
		return err
	}
	return s.pushTrash(ctx, removed)
}

// pushTrash prepends a cart to the trash (newest first) and enforces the
// cap by dropping the oldest entry.
func (s *Service) pushTrash(ctx context.Context, cart domain.ParkedCart) error {
	trash, err := s.repo.GetParkedTrash(ctx)
	if err != nil {
		return err
	}
	trash = append([]domain.ParkedCart{cart}, trash...)
	for len(trash) > MaxTrashEntries {
		oldest := 0
		for i := range trash {
			if trash[i].Timestamp < trash[oldest].Timestamp {
				oldest = i
			}
		}
		trash = append(trash[:oldest], trash[oldest+1:]...)
	}
	return s.repo.PutParkedTrash(ctx, trash)
}

// ListTrash returns trashed carts newest-first.
func (s *Service) ListTrash(ctx context.Context) ([]domain.ParkedCart, error) {
	trash, err := s.repo.GetParkedTrash(ctx)
	if err != nil {
		return nil, err
	}
	sort.Slice(trash, func(i, j int) bool { return trash[i].Timestamp > trash[j].Timestamp })
	return trash, nil
}

// RestoreFromTrash moves a trashed cart back into the active parking queue.
// The cap is not checked here: the queue may temporarily exceed it, and the
// next park drains it back down. Checking it would make the restore lossy.
func (s *Service) RestoreFromTrash(ctx context.Context, id string) (domain.ParkedCart, error) {
	trash, err := s.repo.GetParkedTrash(ctx)
	if err != nil {
		return domain.ParkedCart{}, err
	}
	idx := findParkedIndex(trash, id)
	if idx < 0 {
		return domain.ParkedCart{}, fmt.Errorf("%w: trashed cart %s", store.ErrNotFound, id)
	}
	cart := trash[idx]
	trash = append(trash[:idx], trash[idx+1:]...)

	parked, err := s.repo.GetParkedCarts(ctx)
	if err != nil {
		return domain.ParkedCart{}, err
	}
	parked = append(parked, cart)
	if err := s.repo.PutParkedCarts(ctx, parked); err != nil {
		return domain.ParkedCart{}, err
	}

	if err := s.repo.PutParkedTrash(ctx, trash); err != nil {
		return domain.ParkedCart{}, err
	}
	return cart, nil
}

// DeleteFromTrash permanently discards one trashed cart.
func (s *Service) DeleteFromTrash(ctx context.Context, id string) error {
	trash, err := s.repo.GetParkedTrash(ctx)
	if err != nil {
		return err
	}
	idx := findParkedIndex(trash, id)
	if idx < 0 {
		return fmt.Errorf("%w: trashed cart %s", store.ErrNotFound, id)
	}
	trash = append(trash[:idx], trash[idx+1:]...)
	return s.repo.PutParkedTrash(ctx, trash)
}

func (s *Service) ClearTrash(ctx context.Context) error {
	return s.repo.PutParkedTrash(ctx, []domain.ParkedCart{})
}

// ---- bill ids ----

// NextBillID mints the next id for the day of t. Counters are per day prefix
// and never reset within a day, even if sales are deleted; abandoned ids
// leave visible gaps rather than risking reuse.
func (s *Service) NextBillID(ctx context.Context, t time.Time) (string, error) {
	counters, err := s.repo.GetBillCounters(ctx)
	if err != nil {
		return "", err
	}
	prefix := billid.Prefix(t)
	counters[prefix]++
	if err := s.repo.PutBillCounters(ctx, counters); err != nil {
		return "", err
	}
	return billid.Format(prefix, counters[prefix]), nil
}

// ---- settlement and the sales ledger ----

// RecordSale finalizes a cart into the ledger. A request without a bill id is
// a fresh settlement and gets a freshly minted id and the current time; a
// request carrying one is the tail of a historical edit and overwrites the
// existing record in place. Stock is deducted bundle-aware: a child line
// deducts qty*packSize from its parent.
func (s *Service) RecordSale(ctx context.Context, req domain.SettleRequest) (domain.Sale, error) {
	if !s.settling.CompareAndSwap(false, true) {
		return domain.Sale{}, ErrSettlementInProgress
	}
	defer s.settling.Store(false)

	if len(req.Items) == 0 {
		return domain.Sale{}, fmt.Errorf("%w: cannot settle an empty cart", store.ErrInvalidInput)
	}

	items := make([]domain.CartItem, len(req.Items))
	copy(items, req.Items)
	var total int64
	for i := range items {
		if items[i].Qty < 1 {
			return domain.Sale{}, fmt.Errorf("%w: quantity must be >= 1", store.ErrInvalidInput)
		}
		items[i].FinalLineTotalSatang = pricing.LineTotal(items[i])
		total += items[i].FinalLineTotalSatang
	}

	if req.ReceivedSatang > 0 && req.ReceivedSatang < total {
		return domain.Sale{}, fmt.Errorf("%w: received %d below total %d", store.ErrInvalidInput, req.ReceivedSatang, total)
	}

	if err := s.deductStock(ctx, items); err != nil {
		return domain.Sale{}, err
	}

	settings, err := s.repo.GetSettings(ctx)
	if err != nil {
		return domain.Sale{}, err
	}
	storeName := settings.StoreName
	if storeName == "" {
		storeName = s.storeName
	}

	sale := domain.Sale{
		BillID:         req.BillID,
		Date:           req.Date,
		Items:          items,
		TotalSatang:    total,
		ReceivedSatang: req.ReceivedSatang,
		ChangeSatang:   req.ReceivedSatang - total,
		StoreName:      storeName,
	}
	if req.ReceivedSatang == 0 {
		sale.ChangeSatang = 0
	}
	if sale.BillID == "" {
		sale.Date = s.now()
		sale.BillID, err = s.NextBillID(ctx, sale.Date)
		if err != nil {
			return domain.Sale{}, err
		}
	}

	sales, err := s.repo.GetSales(ctx)
	if err != nil {
		return domain.Sale{}, err
	}
	if idx := findSaleIndex(sales, sale.BillID); idx >= 0 {
		// Overwrite-in-place of an edited bill. Payment fields absent from
		// the edit keep their recorded values.
		if sale.ReceivedSatang == 0 {
			sale.ReceivedSatang = sales[idx].ReceivedSatang
			sale.ChangeSatang = sale.ReceivedSatang - sale.TotalSatang
		}
		if sale.Date.IsZero() {
			sale.Date = sales[idx].Date
		}
		sales[idx] = sale
	} else {
		sales = append(sales, sale)
	}

	if err := s.repo.PutSales(ctx, sales); err != nil {
		return domain.Sale{}, err
	}

	log.Printf("[service] settled bill %s total=%d items=%d", sale.BillID, sale.TotalSatang, len(sale.Items))
	return sale, nil
}

// deductStock applies a settled cart to the catalog. Without strict stock
// enabled, counts go negative rather than blocking a real sale at the till.
func (s *Service) deductStock(ctx context.Context, items []domain.CartItem) error {
	products, err := s.repo.GetProducts(ctx)
	if err != nil {
		return err
	}

	for _, item := range items {
		targetID, units := stockEffect(item)
		idx := findProductIndex(products, targetID)
		if idx < 0 {
			// Catalog product deleted after the cart was built; nothing to
			// deduct from.
			log.Printf("[service] stock target %s missing, skipping deduction", targetID)
			continue
		}
		if s.strictStock && products[idx].Stock < units {
			return fmt.Errorf("%w: %s has %d, need %d", store.ErrInsufficientStock, products[idx].Name, products[idx].Stock, units)
		}
		products[idx].Stock -= units
	}

	return s.persistProducts(ctx, products)
}

// stockEffect resolves which product a line draws stock from and how many
// units: a bundle child draws qty*packSize from its parent.
func stockEffect(item domain.CartItem) (productID string, units int) {
	if item.ParentID != "" && item.PackSize >= 1 {
		return item.ParentID, item.Qty * item.PackSize
	}
	return item.ProductID, item.Qty
}

// BeginEdit reopens a settled bill for correction: the sale's stock effect is
// reversed so the cart starts from a clean slate, and the returned session is
// tagged with the original bill id and date for the overwriting settlement.
// The ledger record itself stays until that settlement replaces it.
func (s *Service) BeginEdit(ctx context.Context, billID string) (domain.EditSession, error) {
	sales, err := s.repo.GetSales(ctx)
	if err != nil {
		return domain.EditSession{}, err
	}
	idx := findSaleIndex(sales, billID)
	if idx < 0 {
		return domain.EditSession{}, fmt.Errorf("%w: bill %s", store.ErrNotFound, billID)
	}
	sale := sales[idx]

	products, err := s.repo.GetProducts(ctx)
	if err != nil {
		return domain.EditSession{}, err
	}
	for _, item := range sale.Items {
		targetID, units := stockEffect(item)
		if pIdx := findProductIndex(products, targetID); pIdx >= 0 {
			products[pIdx].Stock += units
		}
	}
	if err := s.persistProducts(ctx, products); err != nil {
		return domain.EditSession{}, err
	}

	items := make([]domain.CartItem, len(sale.Items))
	copy(items, sale.Items)
	return domain.EditSession{BillID: sale.BillID, Date: sale.Date, Items: items}, nil
}

func (s *Service) FindSale(ctx context.Context, billID string) (domain.Sale, error) {
	sales, err := s.repo.GetSales(ctx)
	if err != nil {
		return domain.Sale{}, err
	}
	idx := findSaleIndex(sales, billID)
	if idx < 0 {
		return domain.Sale{}, fmt.Errorf("%w: bill %s", store.ErrNotFound, billID)
	}
	return sales[idx], nil
}

// ListSales returns the ledger newest-first.
func (s *Service) ListSales(ctx context.Context) ([]domain.Sale, error) {
	sales, err := s.repo.GetSales(ctx)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(sales, func(i, j int) bool { return sales[i].Date.After(sales[j].Date) })
	return sales, nil
}

// ---- backup ----

// Export snapshots every collection into one self-describing document.
func (s *Service) Export(ctx context.Context) (domain.BackupDocument, error) {
	doc := domain.BackupDocument{
		Meta: domain.BackupMeta{
			ExportDate: s.now().UTC().Format(time.RFC3339),
			Version:    backupVersion,
		},
	}

	var err error
	if doc.Products, err = s.repo.GetProducts(ctx); err != nil {
		return domain.BackupDocument{}, err
	}
	if doc.ParkedCarts, err = s.repo.GetParkedCarts(ctx); err != nil {
		return domain.BackupDocument{}, err
	}
	if doc.ParkedTrash, err = s.repo.GetParkedTrash(ctx); err != nil {
		return domain.BackupDocument{}, err
	}
	if doc.Sales, err = s.repo.GetSales(ctx); err != nil {
		return domain.BackupDocument{}, err
	}
	if doc.Suppliers, err = s.repo.GetSuppliers(ctx); err != nil {
		return domain.BackupDocument{}, err
	}
	if doc.SupplierPrices, err = s.repo.GetSupplierPrices(ctx); err != nil {
		return domain.BackupDocument{}, err
	}
	if doc.BillCounters, err = s.repo.GetBillCounters(ctx); err != nil {
		return domain.BackupDocument{}, err
	}
	settings, err := s.repo.GetSettings(ctx)
	if err != nil {
		return domain.BackupDocument{}, err
	}
	doc.Settings = &settings

	if doc.Products == nil {
		doc.Products = []domain.Product{}
	}
	if doc.ParkedCarts == nil {
		doc.ParkedCarts = []domain.ParkedCart{}
	}
	if doc.ParkedTrash == nil {
		doc.ParkedTrash = []domain.ParkedCart{}
	}
	if doc.Sales == nil {
		doc.Sales = []domain.Sale{}
	}
	if doc.Suppliers == nil {
		doc.Suppliers = []domain.Supplier{}
	}
	if doc.SupplierPrices == nil {
		doc.SupplierPrices = []domain.SupplierPrice{}
	}

	return doc, nil
}

// Import replaces every collection with the contents of a backup document.
// It never returns an error: every failure mode is reported as a structured
// result so the caller can show exactly what went wrong and current data is
// only replaced after the document validates.
func (s *Service) Import(ctx context.Context, raw []byte) domain.ImportResult {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(raw, &probe); err != nil {
		return domain.ImportResult{OK: false, Reason: domain.ImportReasonInvalidStructure}
	}
	if _, ok := probe["products"]; !ok {
		return domain.ImportResult{OK: false, Reason: domain.ImportReasonInvalidStructure}
	}
	if _, ok := probe["meta"]; !ok {
		return domain.ImportResult{OK: false, Reason: domain.ImportReasonInvalidStructure}
	}

	var doc domain.BackupDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		return domain.ImportResult{OK: false, Reason: domain.ImportReasonInvalidStructure}
	}

	// Collections absent from the document become empty, not untouched:
	// a restore is a full replacement.
	if doc.Products == nil {
		doc.Products = []domain.Product{}
	}
	if doc.ParkedCarts == nil {
		doc.ParkedCarts = []domain.ParkedCart{}
	}
	if doc.ParkedTrash == nil {
		doc.ParkedTrash = []domain.ParkedCart{}
	}
	if doc.Sales == nil {
		doc.Sales = []domain.Sale{}
	}
	if doc.Suppliers == nil {
		doc.Suppliers = []domain.Supplier{}
	}
	if doc.SupplierPrices == nil {
		doc.SupplierPrices = []domain.SupplierPrice{}
	}

	counters := reconcileCounters(doc.BillCounters, doc.Sales)

	writes := []struct {
		name string
		fn   func() error
	}{
		{"products", func() error { return s.repo.PutProducts(ctx, doc.Products) }},
		{"parked carts", func() error { return s.repo.PutParkedCarts(ctx, doc.ParkedCarts) }},
		{"parked trash", func() error { return s.repo.PutParkedTrash(ctx, doc.ParkedTrash) }},
		{"sales", func() error { return s.repo.PutSales(ctx, doc.Sales) }},
		{"suppliers", func() error { return s.repo.PutSuppliers(ctx, doc.Suppliers) }},
		{"supplier prices", func() error { return s.repo.PutSupplierPrices(ctx, doc.SupplierPrices) }},
		{"bill counters", func() error { return s.repo.PutBillCounters(ctx, counters) }},
	}
	for _, w := range writes {
		if err := w.fn(); err != nil {
			log.Printf("[service] import failed writing %s: %v", w.name, err)
			reason := domain.ImportReasonStorageError
			if errors.Is(err, store.ErrStorageQuota) {
				reason = domain.ImportReasonStorageQuota
			}
			return domain.ImportResult{OK: false, Reason: reason}
		}
	}

	if doc.Settings != nil {
		if err := s.repo.PutSettings(ctx, *doc.Settings); err != nil {
			log.Printf("[service] import failed writing settings: %v", err)
			return domain.ImportResult{OK: false, Reason: domain.ImportReasonStorageError}
		}
	}

	if err := s.cache.Flush(ctx); err != nil {
		log.Printf("[service] barcode cache flush failed: %v", err)
	}

	return domain.ImportResult{
		OK:               true,
		Products:         len(doc.Products),
		Sales:            len(doc.Sales),
		ParkedCarts:      len(doc.ParkedCarts),
		CountersRestored: len(counters),
	}
}

// reconcileCounters merges imported counters with the highest sequence found
// in the imported sales, so bill ids minted after a restore can never collide
// with restored history even if the counter collection is stale or missing.
func reconcileCounters(imported map[string]int, sales []domain.Sale) map[string]int {
	counters := make(map[string]int, len(imported))
	for k, v := range imported {
		counters[k] = v
	}
	for _, sale := range sales {
		prefix, seq, ok := billid.Parse(sale.BillID)
		if !ok {
			continue
		}
		if seq > counters[prefix] {
			counters[prefix] = seq
		}
	}
	return counters
}

// ---- settings ----

func (s *Service) GetSettings(ctx context.Context) (domain.Settings, error) {
	settings, err := s.repo.GetSettings(ctx)
	if err != nil {
		return domain.Settings{}, err
	}
	if settings.StoreName == "" {
		settings.StoreName = s.storeName
	}
	// The hash never leaves the service.
	settings.PINHash = ""
	return settings, nil
}

// UpdateSettings replaces the store profile. An empty pin keeps the existing
// one; a non-empty pin is bcrypt-hashed before storage.
func (s *Service) UpdateSettings(ctx context.Context, storeName string, pin string) (domain.Settings, error) {
	if err := requireOwner(ctx); err != nil {
		return domain.Settings{}, err
	}

	storeName = strings.TrimSpace(storeName)
	if storeName == "" {
		return domain.Settings{}, fmt.Errorf("%w: store name required", store.ErrInvalidInput)
	}

	current, err := s.repo.GetSettings(ctx)
	if err != nil {
		return domain.Settings{}, err
	}
	next := domain.Settings{StoreName: storeName, PINHash: current.PINHash}

	if pin != "" {
		if len(pin) < 4 {
			return domain.Settings{}, fmt.Errorf("%w: pin must be at least 4 digits", store.ErrInvalidInput)
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(pin), bcrypt.DefaultCost)
		if err != nil {
			return domain.Settings{}, fmt.Errorf("hash pin: %w", err)
		}
		next.PINHash = string(hash)
	}

	if err := s.repo.PutSettings(ctx, next); err != nil {
		return domain.Settings{}, err
	}
	next.PINHash = ""
	return next, nil
}

// VerifySettingsPIN reports whether pin matches the stored hash. A store
// without a pin configured accepts any attempt, matching first-run behavior.
func (s *Service) VerifySettingsPIN(ctx context.Context, pin string) (bool, error) {
	settings, err := s.repo.GetSettings(ctx)
	if err != nil {
		return false, err
	}
	if settings.PINHash == "" {
		return true, nil
	}
	return bcrypt.CompareHashAndPassword([]byte(settings.PINHash), []byte(pin)) == nil, nil
}

// ---- supplier directory ----

// Thai phone numbers: leading zero plus 8 or 9 further digits.
var supplierPhonePattern = regexp.MustCompile(`^0\d{8,9}$`)

// ListSuppliers returns the restock directory sorted by name.
func (s *Service) ListSuppliers(ctx context.Context) ([]domain.Supplier, error) {
	suppliers, err := s.repo.GetSuppliers(ctx)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(suppliers, func(i, j int) bool { return suppliers[i].Name < suppliers[j].Name })
	return suppliers, nil
}

// SaveSupplier registers a new supplier or edits an existing one by id.
func (s *Service) SaveSupplier(ctx context.Context, supplier domain.Supplier) (domain.Supplier, error) {
	if err := requireOwner(ctx); err != nil {
		return domain.Supplier{}, err
	}

	supplier.Name = strings.TrimSpace(supplier.Name)
	supplier.Contact = strings.TrimSpace(supplier.Contact)
	supplier.Phone = strings.TrimSpace(supplier.Phone)
	if supplier.Name == "" {
		return domain.Supplier{}, fmt.Errorf("%w: supplier name required", store.ErrInvalidInput)
	}
	if !supplierPhonePattern.MatchString(supplier.Phone) {
		return domain.Supplier{}, fmt.Errorf("%w: phone must start with 0 and have 9-10 digits", store.ErrInvalidInput)
	}
	if supplier.ID == "" {
		supplier.ID = uuid.NewString()
	}

	suppliers, err := s.repo.GetSuppliers(ctx)
	if err != nil {
		return domain.Supplier{}, err
	}
	replaced := false
	for i := range suppliers {
		if suppliers[i].ID == supplier.ID {
			suppliers[i] = supplier
			replaced = true
			break
		}
	}
	if !replaced {
		suppliers = append(suppliers, supplier)
	}
	return supplier, s.repo.PutSuppliers(ctx, suppliers)
}

// DeleteSupplier removes a supplier and every price quote linked to it.
func (s *Service) DeleteSupplier(ctx context.Context, id string) error {
	if err := requireOwner(ctx); err != nil {
		return err
	}

	suppliers, err := s.repo.GetSuppliers(ctx)
	if err != nil {
		return err
	}
	idx := -1
	for i := range suppliers {
		if suppliers[i].ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return fmt.Errorf("%w: supplier %s", store.ErrNotFound, id)
	}
	suppliers = append(suppliers[:idx], suppliers[idx+1:]...)
	if err := s.repo.PutSuppliers(ctx, suppliers); err != nil {
		return err
	}

	prices, err := s.repo.GetSupplierPrices(ctx)
	if err != nil {
		return err
	}
	kept := prices[:0]
	for _, p := range prices {
		if p.SupplierID != id {
			kept = append(kept, p)
		}
	}
	return s.repo.PutSupplierPrices(ctx, kept)
}

// ListSupplierPrices returns the price quotes for one supplier.
func (s *Service) ListSupplierPrices(ctx context.Context, supplierID string) ([]domain.SupplierPrice, error) {
	prices, err := s.repo.GetSupplierPrices(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]domain.SupplierPrice, 0, len(prices))
	for _, p := range prices {
		if p.SupplierID == supplierID {
			out = append(out, p)
		}
	}
	return out, nil
}

// SetSupplierPrice records a supplier's quote for a product, upserting by the
// (supplier, product) pair. Both sides of the link must exist.
func (s *Service) SetSupplierPrice(ctx context.Context, price domain.SupplierPrice) (domain.SupplierPrice, error) {
	if err := requireOwner(ctx); err != nil {
		return domain.SupplierPrice{}, err
	}

	if price.BuyPriceSatang <= 0 {
		return domain.SupplierPrice{}, fmt.Errorf("%w: buy price must be positive", store.ErrInvalidInput)
	}
	switch price.BuyUnit {
	case domain.BuyUnitPiece:
		price.PackSize = 0
	case domain.BuyUnitPack, domain.BuyUnitCarton:
		if price.PackSize < 2 {
			return domain.SupplierPrice{}, fmt.Errorf("%w: pack size must be >= 2 for %s quotes", store.ErrInvalidInput, price.BuyUnit)
		}
	default:
		return domain.SupplierPrice{}, fmt.Errorf("%w: unknown buy unit %q", store.ErrInvalidInput, price.BuyUnit)
	}

	suppliers, err := s.repo.GetSuppliers(ctx)
	if err != nil {
		return domain.SupplierPrice{}, err
	}
	found := false
	for i := range suppliers {
		if suppliers[i].ID == price.SupplierID {
			found = true
			break
		}
	}
	if !found {
		return domain.SupplierPrice{}, fmt.Errorf("%w: supplier %s", store.ErrNotFound, price.SupplierID)
	}

	products, err := s.repo.GetProducts(ctx)
	if err != nil {
		return domain.SupplierPrice{}, err
	}
	if findProductIndex(products, price.ProductID) < 0 {
		return domain.SupplierPrice{}, fmt.Errorf("%w: product %s", store.ErrNotFound, price.ProductID)
	}

	prices, err := s.repo.GetSupplierPrices(ctx)
	if err != nil {
		return domain.SupplierPrice{}, err
	}
	replaced := false
	for i := range prices {
		if prices[i].SupplierID == price.SupplierID && prices[i].ProductID == price.ProductID {
			prices[i] = price
			replaced = true
			break
		}
	}
	if !replaced {
		prices = append(prices, price)
	}
	return price, s.repo.PutSupplierPrices(ctx, prices)
}

// DeleteSupplierPrice removes one quote by its (supplier, product) pair.
func (s *Service) DeleteSupplierPrice(ctx context.Context, supplierID, productID string) error {
	if err := requireOwner(ctx); err != nil {
		return err
	}

	prices, err := s.repo.GetSupplierPrices(ctx)
	if err != nil {
		return err
	}
	for i := range prices {
		if prices[i].SupplierID == supplierID && prices[i].ProductID == productID {
			prices = append(prices[:i], prices[i+1:]...)
			return s.repo.PutSupplierPrices(ctx, prices)
		}
	}
	return fmt.Errorf("%w: price for supplier %s product %s", store.ErrNotFound, supplierID, productID)
}

// ---- lookup helpers ----

func findProductIndex(products []domain.Product, id string) int {
	for i := range products {
		if products[i].ID == id {
			return i
		}
	}
	return -1
}

func findByBarcode(products []domain.Product, barcode string) int {
	for i := range products {
		if products[i].Barcode == barcode {
			return i
		}
	}
	return -1
}

func findParkedIndex(carts []domain.ParkedCart, id string) int {
	for i := range carts {
		if carts[i].ID == id {
			return i
		}
	}
	return -1
}

func findSaleIndex(sales []domain.Sale, billID string) int {
	for i := range sales {
		if sales[i].BillID == billID {
			return i
		}
	}
	return -1
}

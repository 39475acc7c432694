package domain

import "time"

// Product is a catalog entry. All money fields are integer satang (1/100
// baht). A product with ParentID set is a bundle child: it carries no stock
// of its own, its sellable stock is derived from the parent divided by
// PackSize. Wholesale fields are independent of bundling; a product may be
// both a bundle child and wholesale tiered.
type Product struct {
	ID                   string `json:"id"`
	Barcode              string `json:"barcode"`
	PackBarcode          string `json:"pack_barcode,omitempty"`
	Name                 string `json:"name"`
	Group                string `json:"group,omitempty"`
	PriceSatang          int64  `json:"price_satang"`
	CostSatang           int64  `json:"cost_satang,omitempty"`
	Stock                int    `json:"stock"`
	ParentID             string `json:"parent_id,omitempty"`
	PackSize             int    `json:"pack_size,omitempty"`
	WholesaleQty         int    `json:"wholesale_qty,omitempty"`
	WholesalePriceSatang int64  `json:"wholesale_price_satang,omitempty"`
}

// IsBundleChild reports whether the product's stock is derived from a parent.
func (p Product) IsBundleChild() bool {
	return p.ParentID != "" && p.PackSize >= 1
}

// IsQuickSalePlaceholder reports whether the product was auto-created by the
// unknown-barcode quick-sale flow: its id equals its barcode and it has
// accumulated negative stock that a later proper registration should net out.
func (p Product) IsQuickSalePlaceholder() bool {
	return p.ID != "" && p.ID == p.Barcode && p.Stock < 0
}

// BarcodeMatch is the result of a catalog barcode lookup. IsPack is set when
// the scanned code matched the product's pack/carton barcode rather than the
// unit barcode; the caller is expected to multiply quantity by WholesaleQty.
type BarcodeMatch struct {
	Product Product `json:"product"`
	IsPack  bool    `json:"is_pack"`
}

// CartItem is a denormalized snapshot of a product plus a quantity. It is
// owned by exactly one cart, parked cart or sale and never shared.
// WholesalePriceSatang may be learned interactively after the snapshot was
// taken; FinalLineTotalSatang is cached at settlement so historical display
// survives later price changes.
type CartItem struct {
	ProductID            string `json:"product_id"`
	Barcode              string `json:"barcode,omitempty"`
	Name                 string `json:"name"`
	PriceSatang          int64  `json:"price_satang"`
	CostSatang           int64  `json:"cost_satang,omitempty"`
	Qty                  int    `json:"qty"`
	ParentID             string `json:"parent_id,omitempty"`
	PackSize             int    `json:"pack_size,omitempty"`
	WholesaleQty         int    `json:"wholesale_qty,omitempty"`
	WholesalePriceSatang int64  `json:"wholesale_price_satang,omitempty"`
	WholesalePrompted    bool   `json:"wholesale_prompted,omitempty"`
	FinalLineTotalSatang int64  `json:"final_line_total_satang,omitempty"`
}

// ParkedCart is a suspended order. Timestamp is epoch milliseconds and
// doubles as the queue position: the active parking queue is ordered by it
// ascending, and eviction always targets the smallest value. The same shape
// is stored in the parking trash collection.
type ParkedCart struct {
	ID        string     `json:"id"`
	Timestamp int64      `json:"timestamp"`
	Note      string     `json:"note"`
	Items     []CartItem `json:"items"`
}

// Sale is a settled transaction. Immutable except through the explicit
// historical-edit flow, which overwrites the record under the same BillID.
// StoreName is snapshotted at write time.
type Sale struct {
	BillID         string     `json:"bill_id"`
	Date           time.Time  `json:"date"`
	Items          []CartItem `json:"items"`
	TotalSatang    int64      `json:"total_satang"`
	ReceivedSatang int64      `json:"received_satang"`
	ChangeSatang   int64      `json:"change_satang"`
	StoreName      string     `json:"store_name"`
}

// Supplier is a wholesale vendor in the restock directory.
type Supplier struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Contact string `json:"contact,omitempty"`
	Phone   string `json:"phone"`
}

// Purchase units for supplier price quotes.
const (
	BuyUnitPiece  = "piece"
	BuyUnitPack   = "pack"
	BuyUnitCarton = "carton"
)

// SupplierPrice links a catalog product to one supplier's quote, keyed by
// the (supplier, product) pair. The quote may be per piece or per pack or
// carton of PackSize units; UnitCostSatang normalizes it for margin
// comparison against the retail price.
type SupplierPrice struct {
	SupplierID     string `json:"supplier_id"`
	ProductID      string `json:"product_id"`
	BuyUnit        string `json:"buy_unit"`
	PackSize       int    `json:"pack_size,omitempty"`
	BuyPriceSatang int64  `json:"buy_price_satang"`
}

// UnitCostSatang is the per-piece cost implied by the quote.
func (p SupplierPrice) UnitCostSatang() int64 {
	if p.PackSize > 1 {
		return p.BuyPriceSatang / int64(p.PackSize)
	}
	return p.BuyPriceSatang
}

// Settings is the store profile. The settings PIN gates protected actions
// at the API layer; it is stored bcrypt-hashed.
type Settings struct {
	StoreName string `json:"store_name"`
	PINHash   string `json:"pin_hash,omitempty"`
}

// UserAccount is an internal persistence model for auth credentials.
type UserAccount struct {
	Username  string    `json:"username"`
	Password  string    `json:"password"`
	Role      string    `json:"role"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

type Actor struct {
	Username string
	Role     string
}

// DuplicateResolution selects how a barcode collision is handled when
// registering a product. The decision is made by the caller before any
// catalog write.
type DuplicateResolution string

const (
	// DuplicateReject refuses the write and surfaces the conflicting product.
	DuplicateReject DuplicateResolution = "reject"
	// DuplicateCombineStock adds the incoming stock onto the existing product.
	DuplicateCombineStock DuplicateResolution = "combine_stock"
	// DuplicateNetQuickSale replaces a quick-sale placeholder, netting its
	// accumulated negative stock into the incoming quantity.
	DuplicateNetQuickSale DuplicateResolution = "net_quick_sale"
)

// ProductSaveRequest registers or edits a catalog product.
type ProductSaveRequest struct {
	Product     Product             `json:"product"`
	OnDuplicate DuplicateResolution `json:"on_duplicate,omitempty"`
}

// ParkRequest suspends the current cart. Timestamp may be supplied to keep
// an already-restored bill's original queue position when re-parking.
type ParkRequest struct {
	Note      string     `json:"note"`
	Timestamp int64      `json:"timestamp,omitempty"`
	Items     []CartItem `json:"items"`
}

// SettleRequest finalizes a cart into a sale. BillID and Date are set only
// on the historical-edit path; a fresh settlement leaves both zero and lets
// the ledger mint them.
type SettleRequest struct {
	BillID         string     `json:"bill_id,omitempty"`
	Date           time.Time  `json:"date,omitempty"`
	Items          []CartItem `json:"items"`
	ReceivedSatang int64      `json:"received_satang"`
}

// EditSession is the result of re-opening a historical sale: the sale's
// stock effect has been reversed and the items are ready to be loaded into
// a cart tagged with the original bill id and date.
type EditSession struct {
	BillID string     `json:"bill_id"`
	Date   time.Time  `json:"date"`
	Items  []CartItem `json:"items"`
}

// QuoteLine is a priced cart line plus the wholesale ask-once signal.
type QuoteLine struct {
	Item                 CartItem `json:"item"`
	LineTotalSatang      int64    `json:"line_total_satang"`
	PromptWholesalePrice bool     `json:"prompt_wholesale_price"`
}

type QuoteResponse struct {
	Lines       []QuoteLine `json:"lines"`
	TotalSatang int64       `json:"total_satang"`
}

// BackupMeta describes an exported backup document.
type BackupMeta struct {
	ExportDate string `json:"exportDate"`
	Version    string `json:"version"`
}

// BackupDocument aggregates every persisted collection into one JSON
// document. Field names follow the export format of version 1.0.
type BackupDocument struct {
	Products       []Product       `json:"products"`
	ParkedCarts    []ParkedCart    `json:"parkedCarts"`
	ParkedTrash    []ParkedCart    `json:"parkedTrash"`
	Sales          []Sale          `json:"sales"`
	Suppliers      []Supplier      `json:"suppliers"`
	SupplierPrices []SupplierPrice `json:"supplierPrices"`
	Settings       *Settings       `json:"settings,omitempty"`
	BillCounters   map[string]int  `json:"billCounters,omitempty"`
	Meta           BackupMeta      `json:"meta"`
}

// Import failure reasons. Quota is kept distinct from generic storage
// failure because it is user-actionable (free up space, remove images).
const (
	ImportReasonInvalidStructure = "invalid_structure"
	ImportReasonStorageQuota     = "storage_quota"
	ImportReasonStorageError     = "storage_error"
)

// ImportResult is the structured outcome of a backup import. Import never
// panics or propagates an error past its boundary.
type ImportResult struct {
	OK               bool   `json:"ok"`
	Reason           string `json:"reason,omitempty"`
	Products         int    `json:"products"`
	Sales            int    `json:"sales"`
	ParkedCarts      int    `json:"parked_carts"`
	CountersRestored int    `json:"counters_restored"`
}

const (
	RoleOwner = "owner"
	RoleClerk = "clerk"
)

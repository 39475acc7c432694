// Package cart is the in-memory working set for the order currently being
// built. It owns its line items exclusively and carries the trackers that
// link it to a restored parked bill or to a historical sale being edited.
package cart

import (
	"time"

	"kokopos/backend/internal/domain"
	"kokopos/backend/internal/pricing"
)

// State describes what the cart is currently linked to.
type State string

const (
	StateEmpty             State = "empty"
	StateBuilding          State = "building"
	StateEditingParked     State = "editing-parked"
	StateEditingHistorical State = "editing-historical-sale"
)

// ActiveBill remembers the note and original queue timestamp of a restored
// parked cart so re-parking does not reset its place in line.
type ActiveBill struct {
	Note      string
	Timestamp int64
}

type Cart struct {
	items []domain.CartItem

	activeBill      *ActiveBill
	editingBillID   string
	editingSaleDate time.Time
}

func New() *Cart {
	return &Cart{}
}

func (c *Cart) State() State {
	switch {
	case len(c.items) == 0:
		return StateEmpty
	case c.editingBillID != "":
		return StateEditingHistorical
	case c.activeBill != nil:
		return StateEditingParked
	default:
		return StateBuilding
	}
}

// Add merges qty units of product into the cart: an existing line with the
// same product id is incremented, otherwise a new denormalized snapshot line
// is appended. Stock sufficiency is advisory only; the caller decides
// whether to warn. qty values below 1 are treated as 1.
func (c *Cart) Add(product domain.Product, qty int) {
	if qty < 1 {
		qty = 1
	}
	for i := range c.items {
		if c.items[i].ProductID == product.ID {
			c.items[i].Qty += qty
			return
		}
	}
	c.items = append(c.items, domain.CartItem{
		ProductID:            product.ID,
		Barcode:              product.Barcode,
		Name:                 product.Name,
		PriceSatang:          product.PriceSatang,
		CostSatang:           product.CostSatang,
		Qty:                  qty,
		ParentID:             product.ParentID,
		PackSize:             product.PackSize,
		WholesaleQty:         product.WholesaleQty,
		WholesalePriceSatang: product.WholesalePriceSatang,
	})
}

// SetQty sets the quantity of the line at index. Values below 1 remove the
// line (the caller confirms before getting here).
func (c *Cart) SetQty(index int, qty int) {
	if index < 0 || index >= len(c.items) {
		return
	}
	if qty < 1 {
		c.Remove(index)
		return
	}
	c.items[index].Qty = qty
}

// Remove drops the line at index. When the last line goes, the active-bill
// and editing trackers are cleared so a stale note or bill id cannot attach
// to an unrelated future park or settlement.
func (c *Cart) Remove(index int) {
	if index < 0 || index >= len(c.items) {
		return
	}
	c.items = append(c.items[:index], c.items[index+1:]...)
	if len(c.items) == 0 {
		c.clearTrackers()
	}
}

// MarkWholesalePrompted latches the ask-once wholesale prompt on a line.
func (c *Cart) MarkWholesalePrompted(index int) {
	if index < 0 || index >= len(c.items) {
		return
	}
	c.items[index].WholesalePrompted = true
}

// SetWholesalePrice applies an interactively supplied pack price to a line.
// Persisting it back onto the catalog product is the ledger's job.
func (c *Cart) SetWholesalePrice(index int, priceSatang int64) {
	if index < 0 || index >= len(c.items) || priceSatang <= 0 {
		return
	}
	c.items[index].WholesalePriceSatang = priceSatang
	c.items[index].WholesalePrompted = true
}

func (c *Cart) Total() int64 {
	return pricing.CartTotal(c.items)
}

func (c *Cart) Len() int {
	return len(c.items)
}

// Items returns a copy; cart lines are never shared.
func (c *Cart) Items() []domain.CartItem {
	out := make([]domain.CartItem, len(c.items))
	copy(out, c.items)
	return out
}

// LoadParked replaces the cart contents with a restored parked bill and
// remembers its note and original timestamp for smart re-parking.
func (c *Cart) LoadParked(parked domain.ParkedCart) {
	c.items = make([]domain.CartItem, len(parked.Items))
	copy(c.items, parked.Items)
	c.clearTrackers()
	c.activeBill = &ActiveBill{Note: parked.Note, Timestamp: parked.Timestamp}
}

// LoadEditSession replaces the cart contents with a historical sale being
// corrected; the next settlement must reuse the tagged bill id and date.
func (c *Cart) LoadEditSession(session domain.EditSession) {
	c.items = make([]domain.CartItem, len(session.Items))
	copy(c.items, session.Items)
	c.clearTrackers()
	c.editingBillID = session.BillID
	c.editingSaleDate = session.Date
}

func (c *Cart) ActiveBill() *ActiveBill {
	return c.activeBill
}

func (c *Cart) EditingBill() (string, time.Time) {
	return c.editingBillID, c.editingSaleDate
}

// Clear empties the cart and all trackers, e.g. after a park or settlement.
func (c *Cart) Clear() {
	c.items = nil
	c.clearTrackers()
}

func (c *Cart) clearTrackers() {
	c.activeBill = nil
	c.editingBillID = ""
	c.editingSaleDate = time.Time{}
}

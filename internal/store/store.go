package store

import (
	"context"
	"errors"

	"kokopos/backend/internal/domain"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrInvalidInput      = errors.New("invalid input")
	ErrForbidden         = errors.New("forbidden")
	// ErrStorageQuota marks a write rejected because the backing store is
	// out of space. Kept distinct from generic failures so callers can
	// surface a user-actionable message.
	ErrStorageQuota = errors.New("storage quota exceeded")
)

// Repository is the persistence abstraction: typed whole-collection reads
// and writes. There are no cross-collection transactions; every Put is a
// full-collection rewrite, which is safe because the application has a
// single active writer (one operator, one device).
//
// Implementations must degrade a corrupt stored collection to its empty
// default instead of returning a decode error, so one damaged collection
// cannot take down the whole application.
type Repository interface {
	GetProducts(ctx context.Context) ([]domain.Product, error)
	PutProducts(ctx context.Context, products []domain.Product) error

	GetParkedCarts(ctx context.Context) ([]domain.ParkedCart, error)
	PutParkedCarts(ctx context.Context, carts []domain.ParkedCart) error

	GetParkedTrash(ctx context.Context) ([]domain.ParkedCart, error)
	PutParkedTrash(ctx context.Context, carts []domain.ParkedCart) error

	GetSales(ctx context.Context) ([]domain.Sale, error)
	PutSales(ctx context.Context, sales []domain.Sale) error

	GetSuppliers(ctx context.Context) ([]domain.Supplier, error)
	PutSuppliers(ctx context.Context, suppliers []domain.Supplier) error

	GetSupplierPrices(ctx context.Context) ([]domain.SupplierPrice, error)
	PutSupplierPrices(ctx context.Context, prices []domain.SupplierPrice) error

	GetBillCounters(ctx context.Context) (map[string]int, error)
	PutBillCounters(ctx context.Context, counters map[string]int) error

	GetSettings(ctx context.Context) (domain.Settings, error)
	PutSettings(ctx context.Context, settings domain.Settings) error

	GetUsers(ctx context.Context) ([]domain.UserAccount, error)
	PutUsers(ctx context.Context, users []domain.UserAccount) error
}

// Package postgres persists collections in PostgreSQL, one jsonb payload per
// collection. It is the backend for deployments that already run a database
// server; the write pattern mirrors the embedded backend (full-collection
// upsert per Put) so both sides honor the same contract.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"kokopos/backend/internal/domain"
	"kokopos/backend/internal/store"
)

const (
	collProducts       = "products"
	collParkedCarts    = "parked_carts"
	collParkedTrash    = "parked_trash"
	collSales          = "sales"
	collSuppliers      = "suppliers"
	collSupplierPrices = "supplier_prices"
	collBillCounters   = "bill_counters"
	collSettings       = "settings"
	collUsers          = "users"
)

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(4)
	db.SetMaxOpenConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &Store{db: db}
	if err := s.ensureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) ensureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS collections (
			name       text PRIMARY KEY,
			payload    jsonb NOT NULL,
			updated_at timestamptz NOT NULL DEFAULT now()
		)
	`)
	if err != nil {
		return fmt.Errorf("ensure collections table: %w", err)
	}
	return nil
}

// get decodes the named collection. A missing row yields the zero value; a
// corrupt payload is logged and degraded to the empty default. Decoding goes
// through a temporary so a mid-decode failure can never leak a half-filled
// collection to the caller.
func get[T any](ctx context.Context, s *Store, name string) (T, error) {
	var out T
	var payload []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT payload FROM collections WHERE name = $1
	`, name).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return out, nil
	}
	if err != nil {
		var zero T
		return zero, fmt.Errorf("read collection %s: %w", name, err)
	}
	var decoded T
	if err := json.Unmarshal(payload, &decoded); err != nil {
		log.Printf("[postgres-store] corrupt collection %q, resetting to empty: %v", name, err)
		return out, nil
	}
	return decoded, nil
}

func (s *Store) put(ctx context.Context, name string, in any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("encode collection %s: %w", name, err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO collections (name, payload, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (name) DO UPDATE
		SET payload = EXCLUDED.payload, updated_at = now()
	`, name, payload)
	if err != nil {
		if isDiskFull(err) {
			return fmt.Errorf("%w: write collection %s: %v", store.ErrStorageQuota, name, err)
		}
		return fmt.Errorf("write collection %s: %w", name, err)
	}
	return nil
}

func isDiskFull(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "53100"
	}
	return false
}

func (s *Store) GetProducts(ctx context.Context) ([]domain.Product, error) {
	return get[[]domain.Product](ctx, s, collProducts)
}

func (s *Store) PutProducts(ctx context.Context, products []domain.Product) error {
	return s.put(ctx, collProducts, products)
}

func (s *Store) GetParkedCarts(ctx context.Context) ([]domain.ParkedCart, error) {
	return get[[]domain.ParkedCart](ctx, s, collParkedCarts)
}

func (s *Store) PutParkedCarts(ctx context.Context, carts []domain.ParkedCart) error {
	return s.put(ctx, collParkedCarts, carts)
}

func (s *Store) GetParkedTrash(ctx context.Context) ([]domain.ParkedCart, error) {
	return get[[]domain.ParkedCart](ctx, s, collParkedTrash)
}

func (s *Store) PutParkedTrash(ctx context.Context, carts []domain.ParkedCart) error {
	return s.put(ctx, collParkedTrash, carts)
}

func (s *Store) GetSales(ctx context.Context) ([]domain.Sale, error) {
	return get[[]domain.Sale](ctx, s, collSales)
}

func (s *Store) PutSales(ctx context.Context, sales []domain.Sale) error {
	return s.put(ctx, collSales, sales)
}

func (s *Store) GetSuppliers(ctx context.Context) ([]domain.Supplier, error) {
	return get[[]domain.Supplier](ctx, s, collSuppliers)
}

func (s *Store) PutSuppliers(ctx context.Context, suppliers []domain.Supplier) error {
	return s.put(ctx, collSuppliers, suppliers)
}

func (s *Store) GetSupplierPrices(ctx context.Context) ([]domain.SupplierPrice, error) {
	return get[[]domain.SupplierPrice](ctx, s, collSupplierPrices)
}

func (s *Store) PutSupplierPrices(ctx context.Context, prices []domain.SupplierPrice) error {
	return s.put(ctx, collSupplierPrices, prices)
}

func (s *Store) GetBillCounters(ctx context.Context) (map[string]int, error) {
	counters, err := get[map[string]int](ctx, s, collBillCounters)
	if err != nil {
		return nil, err
	}
	if counters == nil {
		counters = map[string]int{}
	}
	return counters, nil
}

func (s *Store) PutBillCounters(ctx context.Context, counters map[string]int) error {
	return s.put(ctx, collBillCounters, counters)
}

func (s *Store) GetSettings(ctx context.Context) (domain.Settings, error) {
	return get[domain.Settings](ctx, s, collSettings)
}

func (s *Store) PutSettings(ctx context.Context, settings domain.Settings) error {
	return s.put(ctx, collSettings, settings)
}

func (s *Store) GetUsers(ctx context.Context) ([]domain.UserAccount, error) {
	return get[[]domain.UserAccount](ctx, s, collUsers)
}

func (s *Store) PutUsers(ctx context.Context, users []domain.UserAccount) error {
	return s.put(ctx, collUsers, users)
}

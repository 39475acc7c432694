// Package badgerdb persists collections in an embedded Badger key-value
// store, one JSON-encoded value per collection. This is the default durable
// backend: no server process, a single data directory, fsync on write.
package badgerdb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"

	badger "github.com/dgraph-io/badger/v4"

	"kokopos/backend/internal/domain"
	"kokopos/backend/internal/store"
)

const (
	keyProducts       = "collection/products"
	keyParkedCarts    = "collection/parked_carts"
	keyParkedTrash    = "collection/parked_trash"
	keySales          = "collection/sales"
	keySuppliers      = "collection/suppliers"
	keySupplierPrices = "collection/supplier_prices"
	keyBillCounters   = "collection/bill_counters"
	keySettings       = "collection/settings"
	keyUsers          = "collection/users"
)

type Store struct {
	db *badger.DB
}

// Open opens (or creates) the Badger database at path.
func Open(path string) (*Store, error) {
	opts := badger.DefaultOptions(path)
	opts.Logger = nil
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger at %s: %w", path, err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// get decodes the collection stored under key. A missing key yields the zero
// value; a corrupt value is logged and likewise degraded to the empty
// default so one damaged collection cannot block startup. Decoding goes
// through a temporary so a mid-decode failure can never leak a half-filled
// collection to the caller.
func get[T any](s *Store, key string) (T, error) {
	var out T
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			var decoded T
			if err := json.Unmarshal(val, &decoded); err != nil {
				log.Printf("[badger-store] corrupt collection %q, resetting to empty: %v", key, err)
				return nil
			}
			out = decoded
			return nil
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return out, nil
	}
	if err != nil {
		var zero T
		return zero, fmt.Errorf("read %s: %w", key, err)
	}
	return out, nil
}

func (s *Store) put(key string, in any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), payload)
	})
	if err != nil {
		if isQuotaError(err) {
			return fmt.Errorf("%w: write %s: %v", store.ErrStorageQuota, key, err)
		}
		return fmt.Errorf("write %s: %w", key, err)
	}
	return nil
}

// isQuotaError classifies write failures caused by exhausted space, which the
// caller surfaces differently from generic storage errors.
func isQuotaError(err error) bool {
	if errors.Is(err, badger.ErrTxnTooBig) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "no space left") || strings.Contains(msg, "disk quota")
}

func (s *Store) GetProducts(_ context.Context) ([]domain.Product, error) {
	return get[[]domain.Product](s, keyProducts)
}

func (s *Store) PutProducts(_ context.Context, products []domain.Product) error {
	return s.put(keyProducts, products)
}

func (s *Store) GetParkedCarts(_ context.Context) ([]domain.ParkedCart, error) {
	return get[[]domain.ParkedCart](s, keyParkedCarts)
}

func (s *Store) PutParkedCarts(_ context.Context, carts []domain.ParkedCart) error {
	return s.put(keyParkedCarts, carts)
}

func (s *Store) GetParkedTrash(_ context.Context) ([]domain.ParkedCart, error) {
	return get[[]domain.ParkedCart](s, keyParkedTrash)
}

func (s *Store) PutParkedTrash(_ context.Context, carts []domain.ParkedCart) error {
	return s.put(keyParkedTrash, carts)
}

func (s *Store) GetSales(_ context.Context) ([]domain.Sale, error) {
	return get[[]domain.Sale](s, keySales)
}

func (s *Store) PutSales(_ context.Context, sales []domain.Sale) error {
	return s.put(keySales, sales)
}

func (s *Store) GetSuppliers(_ context.Context) ([]domain.Supplier, error) {
	return get[[]domain.Supplier](s, keySuppliers)
}

func (s *Store) PutSuppliers(_ context.Context, suppliers []domain.Supplier) error {
	return s.put(keySuppliers, suppliers)
}

func (s *Store) GetSupplierPrices(_ context.Context) ([]domain.SupplierPrice, error) {
	return get[[]domain.SupplierPrice](s, keySupplierPrices)
}

func (s *Store) PutSupplierPrices(_ context.Context, prices []domain.SupplierPrice) error {
	return s.put(keySupplierPrices, prices)
}

func (s *Store) GetBillCounters(_ context.Context) (map[string]int, error) {
	counters, err := get[map[string]int](s, keyBillCounters)
	if err != nil {
		return nil, err
	}
	if counters == nil {
		counters = map[string]int{}
	}
	return counters, nil
}

func (s *Store) PutBillCounters(_ context.Context, counters map[string]int) error {
	return s.put(keyBillCounters, counters)
}

func (s *Store) GetSettings(_ context.Context) (domain.Settings, error) {
	return get[domain.Settings](s, keySettings)
}

func (s *Store) PutSettings(_ context.Context, settings domain.Settings) error {
	return s.put(keySettings, settings)
}

func (s *Store) GetUsers(_ context.Context) ([]domain.UserAccount, error) {
	return get[[]domain.UserAccount](s, keyUsers)
}

func (s *Store) PutUsers(_ context.Context, users []domain.UserAccount) error {
	return s.put(keyUsers, users)
}

package memory

import (
	"context"
	"log"
	"os"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"kokopos/backend/internal/domain"
)

// Store is the in-memory repository. It keeps one slice/map per collection
// and copies everything on the way in and out, matching the full-collection
// rewrite contract of the durable backends.
type Store struct {
	mu             sync.RWMutex
	products       []domain.Product
	parked         []domain.ParkedCart
	trash          []domain.ParkedCart
	sales          []domain.Sale
	suppliers      []domain.Supplier
	supplierPrices []domain.SupplierPrice
	counters       map[string]int
	settings       domain.Settings
	users          []domain.UserAccount
}

func New() *Store {
	return &Store{counters: map[string]int{}}
}

// NewSeeded returns a store preloaded with a small demo catalog for
// dev/demo mode, including a carton parent with a bundle child and a
// wholesale-tiered item so every pricing path is exercisable out of the box.
func NewSeeded() *Store {
	s := New()
	s.products = []domain.Product{
		{ID: "8850987123456", Barcode: "8850987123456", Name: "ไวไว ปรุงสำเร็จ (60g)", Group: "instant", PriceSatang: 600, CostSatang: 450, Stock: 48, WholesaleQty: 10, WholesalePriceSatang: 5500},
		{ID: "8851987123456", Barcode: "8851987123456", Name: "มาม่า หมูสับ (60g)", Group: "instant", PriceSatang: 700, CostSatang: 520, Stock: 12},
		{ID: "8852987123456", Barcode: "8852987123456", Name: "โค้ก (325ml)", Group: "beverage", PriceSatang: 1500, CostSatang: 1100, Stock: 24},
		{ID: "egg-tray-30", Barcode: "8859100200301", Name: "ไข่ไก่ แผง 30 ฟอง", Group: "fresh", PriceSatang: 12000, CostSatang: 10200, Stock: 6},
		{ID: "egg-single", Barcode: "8859100200302", Name: "ไข่ไก่ ฟองเดียว", Group: "fresh", PriceSatang: 450, ParentID: "egg-tray-30", PackSize: 30},
		{ID: "123456", Barcode: "123456", PackBarcode: "1234560012", Name: "ขนมปัง ฟาร์ม (แถว)", Group: "bakery", PriceSatang: 4200, CostSatang: 3400, Stock: 5, WholesaleQty: 6, WholesalePriceSatang: 22800},
	}
	s.settings = domain.Settings{StoreName: "KOKOJOY"}
	s.users = seedUsers()
	return s
}

// seedUsers builds the initial user accounts for dev/demo mode. Credentials
// come from SEED_OWNER_PASSWORD and SEED_CLERK_PASSWORD; hardcoded dev
// defaults are used with a warning when unset. Production deployments use a
// durable backend where accounts are created explicitly.
func seedUsers() []domain.UserAccount {
	ownerPwd := envOr("SEED_OWNER_PASSWORD", "owner123")
	clerkPwd := envOr("SEED_CLERK_PASSWORD", "clerk123")
	if os.Getenv("SEED_OWNER_PASSWORD") == "" || os.Getenv("SEED_CLERK_PASSWORD") == "" {
		log.Println("[memory-store] WARNING: using default dev credentials. Set SEED_OWNER_PASSWORD and SEED_CLERK_PASSWORD to override.")
	}

	now := time.Now().UTC()
	users := make([]domain.UserAccount, 0, 2)
	for _, u := range []struct {
		username string
		password string
		role     string
	}{
		{"owner", ownerPwd, domain.RoleOwner},
		{"clerk", clerkPwd, domain.RoleClerk},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			log.Fatalf("[memory-store] failed to hash seed password for %s: %v", u.username, err)
		}
		users = append(users, domain.UserAccount{
			Username:  u.username,
			Password:  string(hash),
			Role:      u.role,
			Active:    true,
			CreatedAt: now,
		})
	}
	return users
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func (s *Store) GetProducts(_ context.Context) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return copySlice(s.products), nil
}

func (s *Store) PutProducts(_ context.Context, products []domain.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.products = copySlice(products)
	return nil
}

func (s *Store) GetParkedCarts(_ context.Context) ([]domain.ParkedCart, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return copyParked(s.parked), nil
}

func (s *Store) PutParkedCarts(_ context.Context, carts []domain.ParkedCart) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.parked = copyParked(carts)
	return nil
}

func (s *Store) GetParkedTrash(_ context.Context) ([]domain.ParkedCart, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return copyParked(s.trash), nil
}

func (s *Store) PutParkedTrash(_ context.Context, carts []domain.ParkedCart) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.trash = copyParked(carts)
	return nil
}

func (s *Store) GetSales(_ context.Context) ([]domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sales := make([]domain.Sale, len(s.sales))
	for i, sale := range s.sales {
		sale.Items = copySlice(sale.Items)
		sales[i] = sale
	}
	return sales, nil
}

func (s *Store) PutSales(_ context.Context, sales []domain.Sale) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := make([]domain.Sale, len(sales))
	for i, sale := range sales {
		sale.Items = copySlice(sale.Items)
		copied[i] = sale
	}
	s.sales = copied
	return nil
}

func (s *Store) GetSuppliers(_ context.Context) ([]domain.Supplier, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return copySlice(s.suppliers), nil
}

func (s *Store) PutSuppliers(_ context.Context, suppliers []domain.Supplier) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.suppliers = copySlice(suppliers)
	return nil
}

func (s *Store) GetSupplierPrices(_ context.Context) ([]domain.SupplierPrice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return copySlice(s.supplierPrices), nil
}

func (s *Store) PutSupplierPrices(_ context.Context, prices []domain.SupplierPrice) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.supplierPrices = copySlice(prices)
	return nil
}

func (s *Store) GetBillCounters(_ context.Context) (map[string]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	counters := make(map[string]int, len(s.counters))
	for k, v := range s.counters {
		counters[k] = v
	}
	return counters, nil
}

func (s *Store) PutBillCounters(_ context.Context, counters map[string]int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := make(map[string]int, len(counters))
	for k, v := range counters {
		copied[k] = v
	}
	s.counters = copied
	return nil
}

func (s *Store) GetSettings(_ context.Context) (domain.Settings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings, nil
}

func (s *Store) PutSettings(_ context.Context, settings domain.Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings = settings
	return nil
}

func (s *Store) GetUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return copySlice(s.users), nil
}

func (s *Store) PutUsers(_ context.Context, users []domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users = copySlice(users)
	return nil
}

func copySlice[T any](in []T) []T {
	out := make([]T, len(in))
	copy(out, in)
	return out
}

func copyParked(in []domain.ParkedCart) []domain.ParkedCart {
	out := make([]domain.ParkedCart, len(in))
	for i, cart := range in {
		cart.Items = copySlice(cart.Items)
		out[i] = cart
	}
	return out
}

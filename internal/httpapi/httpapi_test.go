package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"kokopos/backend/internal/domain"
	"kokopos/backend/internal/service"
	"kokopos/backend/internal/store/memory"
)

const testSecret = "test-secret-test-secret-test-secret!"

func newTestAPI(t *testing.T, products ...domain.Product) (http.Handler, *service.Service) {
	t.Helper()
	repo := memory.New()
	if len(products) > 0 {
		if err := repo.PutProducts(context.Background(), products); err != nil {
			t.Fatalf("seed products: %v", err)
		}
	}

	users := make([]domain.UserAccount, 0, 2)
	for _, u := range []struct{ name, password, role string }{
		{"owner", "owner-pass", domain.RoleOwner},
		{"clerk", "clerk-pass", domain.RoleClerk},
	} {
		hash, err := hashPassword(u.password)
		if err != nil {
			t.Fatalf("hash password: %v", err)
		}
		users = append(users, domain.UserAccount{
			Username: u.name, Password: hash, Role: u.role, Active: true, CreatedAt: time.Now().UTC(),
		})
	}
	if err := repo.PutUsers(context.Background(), users); err != nil {
		t.Fatalf("seed users: %v", err)
	}

	svc := service.New(repo, nil, "KOKOJOY", false)
	auth := NewAuthManager(testSecret, time.Hour, repo)
	api := New(svc, auth, "http://127.0.0.1:3000")
	return api.Handler(), svc
}

func login(t *testing.T, handler http.Handler, username string, password string) string {
	t.Helper()
	body := fmt.Sprintf(`{"username":%q,"password":%q}`, username, password)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("login as %s failed: %d %s", username, rec.Code, rec.Body.String())
	}
	var resp domain.LoginResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode login response: %v", err)
	}
	return resp.AccessToken
}

func doJSON(handler http.Handler, method string, path string, token string, payload any) *httptest.ResponseRecorder {
	var body *bytes.Reader
	if payload != nil {
		raw, _ := json.Marshal(payload)
		body = bytes.NewReader(raw)
	} else {
		body = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	handler, _ := newTestAPI(t)

	body := `{"username":"owner","password":"wrong"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", strings.NewReader(body))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestEndpointsRequireBearerToken(t *testing.T) {
	handler, _ := newTestAPI(t)

	rec := doJSON(handler, http.MethodGet, "/api/v1/products", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without a token, got %d", rec.Code)
	}
}

func TestBackupRoutesAreOwnerOnly(t *testing.T) {
	handler, _ := newTestAPI(t)
	clerkToken := login(t, handler, "clerk", "clerk-pass")

	rec := doJSON(handler, http.MethodGet, "/api/v1/backup/export", clerkToken, nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for clerk export, got %d", rec.Code)
	}

	ownerToken := login(t, handler, "owner", "owner-pass")
	rec = doJSON(handler, http.MethodGet, "/api/v1/backup/export", ownerToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for owner export, got %d %s", rec.Code, rec.Body.String())
	}
	var doc domain.BackupDocument
	if err := json.Unmarshal(rec.Body.Bytes(), &doc); err != nil {
		t.Fatalf("decode export: %v", err)
	}
	if doc.Meta.Version != "1.0" {
		t.Fatalf("unexpected export meta %+v", doc.Meta)
	}
}

func TestBarcodeLookupStatusMapping(t *testing.T) {
	handler, _ := newTestAPI(t, domain.Product{
		ID: "bread", Barcode: "123456", PackBarcode: "1234560012", Name: "bread", PriceSatang: 4200,
	})
	token := login(t, handler, "clerk", "clerk-pass")

	rec := doJSON(handler, http.MethodGet, "/api/v1/products/barcode/123456", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var match domain.BarcodeMatch
	if err := json.Unmarshal(rec.Body.Bytes(), &match); err != nil {
		t.Fatalf("decode match: %v", err)
	}
	if match.IsPack || match.Product.ID != "bread" {
		t.Fatalf("unexpected match %+v", match)
	}

	rec = doJSON(handler, http.MethodGet, "/api/v1/products/barcode/1234560012", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for pack code, got %d", rec.Code)
	}
	_ = json.Unmarshal(rec.Body.Bytes(), &match)
	if !match.IsPack {
		t.Fatalf("expected pack match, got %+v", match)
	}

	rec = doJSON(handler, http.MethodGet, "/api/v1/products/barcode/unknown", token, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown barcode, got %d", rec.Code)
	}
}

func TestSettleValidationStatusMapping(t *testing.T) {
	handler, _ := newTestAPI(t)
	token := login(t, handler, "clerk", "clerk-pass")

	rec := doJSON(handler, http.MethodPost, "/api/v1/sales", token, domain.SettleRequest{})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for empty settle, got %d %s", rec.Code, rec.Body.String())
	}
}

func TestParkAndRestoreOverHTTP(t *testing.T) {
	handler, _ := newTestAPI(t)
	token := login(t, handler, "clerk", "clerk-pass")

	rec := doJSON(handler, http.MethodPost, "/api/v1/parked", token, domain.ParkRequest{
		Note:  "pump 2",
		Items: []domain.CartItem{{ProductID: "a", Name: "a", PriceSatang: 100, Qty: 1}},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d %s", rec.Code, rec.Body.String())
	}
	var created struct {
		Parked domain.ParkedCart `json:"parked"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode park response: %v", err)
	}
	if created.Parked.ID == "" || created.Parked.Timestamp == 0 {
		t.Fatalf("expected id and timestamp assigned, got %+v", created.Parked)
	}

	rec = doJSON(handler, http.MethodPost, "/api/v1/parked/"+created.Parked.ID+"/restore", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(handler, http.MethodPost, "/api/v1/parked/"+created.Parked.ID+"/restore", token, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 on second restore, got %d", rec.Code)
	}
}

func TestSettingsPINGate(t *testing.T) {
	handler, svc := newTestAPI(t)
	ownerToken := login(t, handler, "owner", "owner-pass")

	adminCtx := service.WithActor(context.Background(), domain.Actor{Username: "owner", Role: domain.RoleOwner})
	if _, err := svc.UpdateSettings(adminCtx, "KOKOJOY", "1234"); err != nil {
		t.Fatalf("seed settings: %v", err)
	}

	payload := map[string]string{"store_name": "renamed"}
	raw, _ := json.Marshal(payload)

	req := httptest.NewRequest(http.MethodPut, "/api/v1/settings", bytes.NewReader(raw))
	req.Header.Set("Authorization", "Bearer "+ownerToken)
	req.Header.Set(settingsPINHeader, "9999")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 with wrong pin, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodPut, "/api/v1/settings", bytes.NewReader(raw))
	req.Header.Set("Authorization", "Bearer "+ownerToken)
	req.Header.Set(settingsPINHeader, "1234")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 with correct pin, got %d %s", rec.Code, rec.Body.String())
	}
}

func TestImportStatusForInvalidDocument(t *testing.T) {
	handler, _ := newTestAPI(t)
	ownerToken := login(t, handler, "owner", "owner-pass")

	req := httptest.NewRequest(http.MethodPost, "/api/v1/backup/import", strings.NewReader(`{"sales": []}`))
	req.Header.Set("Authorization", "Bearer "+ownerToken)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for invalid document, got %d", rec.Code)
	}
	var result domain.ImportResult
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if result.OK || result.Reason != domain.ImportReasonInvalidStructure {
		t.Fatalf("unexpected result %+v", result)
	}
}

func TestOwnerOnlyServiceOpsMapToForbidden(t *testing.T) {
	handler, _ := newTestAPI(t)
	clerkToken := login(t, handler, "clerk", "clerk-pass")

	rec := doJSON(handler, http.MethodPost, "/api/v1/products", clerkToken, domain.ProductSaveRequest{
		Product: domain.Product{Barcode: "111", Name: "x", PriceSatang: 100},
	})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for clerk product save, got %d %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(handler, http.MethodPost, "/api/v1/suppliers", clerkToken, domain.Supplier{
		Name: "x", Phone: "0812345678",
	})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for clerk supplier save, got %d %s", rec.Code, rec.Body.String())
	}
}

func TestSupplierRoutes(t *testing.T) {
	handler, _ := newTestAPI(t, domain.Product{ID: "a", Barcode: "a", Name: "a", PriceSatang: 600, Stock: 10})
	ownerToken := login(t, handler, "owner", "owner-pass")

	rec := doJSON(handler, http.MethodPost, "/api/v1/suppliers", ownerToken, domain.Supplier{
		Name: "ยี่ปั๊วสมชาย", Phone: "0812345678",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d %s", rec.Code, rec.Body.String())
	}
	var created struct {
		Supplier domain.Supplier `json:"supplier"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode supplier response: %v", err)
	}
	if created.Supplier.ID == "" {
		t.Fatalf("expected supplier id assigned, got %+v", created.Supplier)
	}

	rec = doJSON(handler, http.MethodPost, "/api/v1/suppliers", ownerToken, domain.Supplier{
		Name: "bad phone", Phone: "12345",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for invalid phone, got %d", rec.Code)
	}

	rec = doJSON(handler, http.MethodPost, "/api/v1/suppliers/"+created.Supplier.ID+"/prices", ownerToken, domain.SupplierPrice{
		ProductID: "a", BuyUnit: domain.BuyUnitPack, PackSize: 12, BuyPriceSatang: 6000,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201 for price quote, got %d %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(handler, http.MethodGet, "/api/v1/suppliers/"+created.Supplier.ID+"/prices", ownerToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var listed struct {
		Prices []domain.SupplierPrice `json:"prices"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &listed); err != nil {
		t.Fatalf("decode prices: %v", err)
	}
	if len(listed.Prices) != 1 || listed.Prices[0].ProductID != "a" {
		t.Fatalf("unexpected prices %+v", listed.Prices)
	}

	rec = doJSON(handler, http.MethodDelete, "/api/v1/suppliers/"+created.Supplier.ID+"/prices/a", ownerToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for price delete, got %d %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(handler, http.MethodDelete, "/api/v1/suppliers/"+created.Supplier.ID, ownerToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for supplier delete, got %d %s", rec.Code, rec.Body.String())
	}
	rec = doJSON(handler, http.MethodGet, "/api/v1/suppliers", ownerToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var remaining struct {
		Suppliers []domain.Supplier `json:"suppliers"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &remaining); err != nil {
		t.Fatalf("decode suppliers: %v", err)
	}
	if len(remaining.Suppliers) != 0 {
		t.Fatalf("expected empty directory after delete, got %+v", remaining.Suppliers)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	handler, _ := newTestAPI(t)
	token := login(t, handler, "clerk", "clerk-pass")

	rec := doJSON(handler, http.MethodDelete, "/api/v1/products", token, nil)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
}

func TestLoginRateLimit(t *testing.T) {
	handler, _ := newTestAPI(t)

	var last int
	for i := 0; i < 6; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", strings.NewReader(`{"username":"owner","password":"wrong"}`))
		req.RemoteAddr = "10.0.0.9:1234"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		last = rec.Code
	}
	if last != http.StatusTooManyRequests {
		t.Fatalf("expected 429 after repeated attempts, got %d", last)
	}
}

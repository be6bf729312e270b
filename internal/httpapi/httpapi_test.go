package httpapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"inventario/backend/internal/cache"
	"inventario/backend/internal/service"
	"inventario/backend/internal/store/memory"
)

const testAdminPass = "correct-horse-battery"

func newTestAPI(t *testing.T) *httptest.Server {
	t.Helper()
	svc := service.New(memory.New(), cache.NoopReportCache{}, nil, service.Options{DirectStockUpdates: true})
	api := New(svc, NewAdminGate(testAdminPass, ""), "http://127.0.0.1:3000", nil)
	server := httptest.NewServer(api.Handler())
	t.Cleanup(server.Close)
	return server
}

func doJSON(t *testing.T, method string, url string, payload any, headers map[string]string) (*http.Response, map[string]any) {
	t.Helper()

	var body *bytes.Buffer
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("marshal payload: %v", err)
		}
		body = bytes.NewBuffer(encoded)
	} else {
		body = bytes.NewBuffer(nil)
	}

	req, err := http.NewRequest(method, url, body)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	t.Cleanup(func() { _ = resp.Body.Close() })

	decoded := map[string]any{}
	_ = json.NewDecoder(resp.Body).Decode(&decoded)
	return resp, decoded
}

func createTestProduct(t *testing.T, base string, name string, price string, stock int) int64 {
	t.Helper()
	resp, body := doJSON(t, http.MethodPost, base+"/api/v1/products", map[string]any{
		"name":  name,
		"price": price,
		"stock": stock,
	}, nil)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create product: status %d body %v", resp.StatusCode, body)
	}
	id, ok := body["id"].(float64)
	if !ok {
		t.Fatalf("create product: missing id in %v", body)
	}
	return int64(id)
}

func TestHealthEndpoint(t *testing.T) {
	server := newTestAPI(t)

	resp, body := doJSON(t, http.MethodGet, server.URL+"/healthz", nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if body["ok"] != true {
		t.Fatalf("expected ok=true, got %v", body)
	}
}

func TestProductLifecycle(t *testing.T) {
	server := newTestAPI(t)
	id := createTestProduct(t, server.URL, "Lamp", "35.50", 6)

	resp, body := doJSON(t, http.MethodGet, fmt.Sprintf("%s/api/v1/products/%d", server.URL, id), nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get product: status %d", resp.StatusCode)
	}
	if body["name"] != "Lamp" {
		t.Fatalf("expected name Lamp, got %v", body["name"])
	}

	resp, body = doJSON(t, http.MethodPatch, fmt.Sprintf("%s/api/v1/products/%d", server.URL, id), map[string]any{
		"name": "Desk Lamp",
	}, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("patch product: status %d body %v", resp.StatusCode, body)
	}
	if body["name"] != "Desk Lamp" || body["stock"] != float64(6) {
		t.Fatalf("partial update changed wrong fields: %v", body)
	}

	resp, _ = doJSON(t, http.MethodPatch, fmt.Sprintf("%s/api/v1/products/%d", server.URL, id), map[string]any{}, nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for empty update, got %d", resp.StatusCode)
	}

	resp, _ = doJSON(t, http.MethodDelete, fmt.Sprintf("%s/api/v1/products/%d", server.URL, id), nil, nil)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 without admin pass, got %d", resp.StatusCode)
	}

	resp, _ = doJSON(t, http.MethodDelete, fmt.Sprintf("%s/api/v1/products/%d", server.URL, id), nil, map[string]string{
		"X-Admin-Pass": testAdminPass,
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("delete with admin pass: status %d", resp.StatusCode)
	}

	resp, _ = doJSON(t, http.MethodGet, fmt.Sprintf("%s/api/v1/products/%d", server.URL, id), nil, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 after delete, got %d", resp.StatusCode)
	}
}

func TestUnknownJSONFieldsAreRejected(t *testing.T) {
	server := newTestAPI(t)

	resp, _ := doJSON(t, http.MethodPost, server.URL+"/api/v1/products", map[string]any{
		"name":     "Rug",
		"surprise": true,
	}, nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown field, got %d", resp.StatusCode)
	}
}

func TestStockMovementEndpoints(t *testing.T) {
	server := newTestAPI(t)
	id := createTestProduct(t, server.URL, "Widget", "9.99", 10)
	movementsURL := fmt.Sprintf("%s/api/v1/products/%d/movements", server.URL, id)

	resp, body := doJSON(t, http.MethodPost, movementsURL, map[string]any{
		"kind":     "outflow",
		"quantity": 3,
	}, nil)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("adjust stock: status %d body %v", resp.StatusCode, body)
	}
	if body["stock_before"] != float64(10) || body["stock_after"] != float64(7) {
		t.Fatalf("expected before=10 after=7, got %v", body)
	}

	resp, body = doJSON(t, http.MethodPost, movementsURL, map[string]any{
		"kind":     "outflow",
		"quantity": 8,
	}, nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for oversell, got %d body %v", resp.StatusCode, body)
	}

	resp, body = doJSON(t, http.MethodPost, movementsURL, map[string]any{
		"kind":     "sideways",
		"quantity": 1,
	}, nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad kind, got %d body %v", resp.StatusCode, body)
	}

	resp, body = doJSON(t, http.MethodGet, movementsURL, nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list movements: status %d", resp.StatusCode)
	}
	movements, ok := body["movements"].([]any)
	if !ok || len(movements) != 2 {
		t.Fatalf("expected 2 movements (seed inflow + outflow), got %v", body)
	}
}

func TestSaleEndpoints(t *testing.T) {
	server := newTestAPI(t)
	id := createTestProduct(t, server.URL, "Monitor", "300.00", 5)

	resp, body := doJSON(t, http.MethodPost, server.URL+"/api/v1/sales", map[string]any{
		"items":    []map[string]any{{"product_id": id, "quantity": 2}},
		"total":    "600.00",
		"received": "650.00",
	}, nil)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("record sale: status %d body %v", resp.StatusCode, body)
	}
	saleID, ok := body["sale_id"].(float64)
	if !ok {
		t.Fatalf("missing sale_id in %v", body)
	}
	if body["change"] != "50" && body["change"] != "50.00" {
		t.Fatalf("expected change 50, got %v", body["change"])
	}

	resp, body = doJSON(t, http.MethodGet, fmt.Sprintf("%s/api/v1/sales/%d", server.URL, int64(saleID)), nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get sale: status %d", resp.StatusCode)
	}
	items, ok := body["items"].([]any)
	if !ok || len(items) != 1 {
		t.Fatalf("expected 1 sale item, got %v", body)
	}

	resp, body = doJSON(t, http.MethodPost, server.URL+"/api/v1/sales", map[string]any{
		"items":    []map[string]any{{"product_id": id, "quantity": 9}},
		"total":    "2700.00",
		"received": "2700.00",
	}, nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for oversell, got %d body %v", resp.StatusCode, body)
	}

	resp, _ = doJSON(t, http.MethodDelete, fmt.Sprintf("%s/api/v1/sales/%d", server.URL, int64(saleID)), nil, map[string]string{
		"X-Admin-Pass": testAdminPass,
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("reverse sale: status %d", resp.StatusCode)
	}

	resp, body = doJSON(t, http.MethodGet, fmt.Sprintf("%s/api/v1/products/%d", server.URL, id), nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get product: status %d", resp.StatusCode)
	}
	if body["stock"] != float64(5) {
		t.Fatalf("expected stock restored to 5, got %v", body["stock"])
	}
}

func TestSalesStatsEndpoint(t *testing.T) {
	server := newTestAPI(t)
	id := createTestProduct(t, server.URL, "Chair", "75.00", 25)

	resp, _ := doJSON(t, http.MethodPost, server.URL+"/api/v1/sales", map[string]any{
		"items":    []map[string]any{{"product_id": id, "quantity": 4}},
		"total":    "300.00",
		"received": "300.00",
	}, nil)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("record sale: status %d", resp.StatusCode)
	}

	resp, body := doJSON(t, http.MethodGet, server.URL+"/api/v1/sales/stats", nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("stats: status %d", resp.StatusCode)
	}
	summary, ok := body["summary"].(map[string]any)
	if !ok || summary["sales"] != float64(1) {
		t.Fatalf("unexpected summary: %v", body)
	}

	resp, _ = doJSON(t, http.MethodGet, server.URL+"/api/v1/sales/stats?from=not-a-date", nil, nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad date, got %d", resp.StatusCode)
	}

	resp, body = doJSON(t, http.MethodGet, server.URL+"/api/v1/sales/comparison?granularity=weekly", nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("comparison: status %d", resp.StatusCode)
	}
	if _, ok := body["periods"].([]any); !ok {
		t.Fatalf("expected periods array, got %v", body)
	}
}

func TestSpecialDateEndpoints(t *testing.T) {
	server := newTestAPI(t)
	id := createTestProduct(t, server.URL, "Necklace", "250.00", 10)
	datesURL := fmt.Sprintf("%s/api/v1/products/%d/dates", server.URL, id)
	adminHeader := map[string]string{"X-Admin-Pass": testAdminPass}

	resp, _ := doJSON(t, http.MethodPost, datesURL, map[string]any{"date": "2026-02-14"}, nil)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 without admin pass, got %d", resp.StatusCode)
	}

	resp, body := doJSON(t, http.MethodPost, datesURL, map[string]any{"date": "2026-02-14"}, adminHeader)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create date: status %d body %v", resp.StatusCode, body)
	}
	dateID := int64(body["id"].(float64))

	resp, _ = doJSON(t, http.MethodPost, datesURL, map[string]any{"date": "14/02/2026"}, adminHeader)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad date format, got %d", resp.StatusCode)
	}

	resp, body = doJSON(t, http.MethodGet, datesURL, nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list dates: status %d", resp.StatusCode)
	}
	if dates, ok := body["dates"].([]any); !ok || len(dates) != 1 {
		t.Fatalf("expected 1 date, got %v", body)
	}

	resp, _ = doJSON(t, http.MethodDelete, fmt.Sprintf("%s/%d", datesURL, dateID), nil, adminHeader)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("delete date: status %d", resp.StatusCode)
	}
}

func TestAdminGateBcryptMode(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte(testAdminPass), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}
	gate := NewAdminGate("", string(hash))

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/products/1", nil)
	if err := gate.Authorize(req); err == nil {
		t.Fatalf("expected missing header to be rejected")
	}

	req.Header.Set("X-Admin-Pass", "wrong")
	if err := gate.Authorize(req); err == nil {
		t.Fatalf("expected wrong password to be rejected")
	}

	req.Header.Set("X-Admin-Pass", testAdminPass)
	if err := gate.Authorize(req); err != nil {
		t.Fatalf("expected hash match to pass, got %v", err)
	}
}

func TestCategorySupplierEndpoints(t *testing.T) {
	server := newTestAPI(t)

	resp, body := doJSON(t, http.MethodPost, server.URL+"/api/v1/categories", map[string]any{"name": "Electronics"}, nil)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create category: status %d body %v", resp.StatusCode, body)
	}
	categoryID := int64(body["id"].(float64))

	resp, body = doJSON(t, http.MethodGet, server.URL+"/api/v1/categories", nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list categories: status %d", resp.StatusCode)
	}
	if categories, ok := body["categories"].([]any); !ok || len(categories) != 1 {
		t.Fatalf("expected 1 category, got %v", body)
	}

	resp, _ = doJSON(t, http.MethodDelete, fmt.Sprintf("%s/api/v1/categories/%d", server.URL, categoryID), nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("delete category: status %d", resp.StatusCode)
	}

	resp, _ = doJSON(t, http.MethodPost, server.URL+"/api/v1/suppliers", map[string]any{"contact": "x@y.z"}, nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing supplier name, got %d", resp.StatusCode)
	}

	resp, body = doJSON(t, http.MethodPost, server.URL+"/api/v1/suppliers", map[string]any{"name": "Supplier A", "contact": "a@example.com"}, nil)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create supplier: status %d body %v", resp.StatusCode, body)
	}
}

package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"inventario/backend/internal/domain"
	"inventario/backend/internal/reqid"
	"inventario/backend/internal/service"
	"inventario/backend/internal/store"
)

type API struct {
	service       *service.Service
	admin         *AdminGate
	allowedOrigin string
	logger        *zap.Logger
	validate      *validator.Validate
}

func New(svc *service.Service, admin *AdminGate, allowedOrigin string, logger *zap.Logger) *API {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &API{
		service:       svc,
		admin:         admin,
		allowedOrigin: allowedOrigin,
		logger:        logger,
		validate:      validator.New(),
	}
}

func (a *API) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", a.handleHealth)

	mux.HandleFunc("/api/v1/products", a.handleProducts)
	mux.HandleFunc("/api/v1/products/", a.handleProductActions)
	mux.HandleFunc("/api/v1/categories", a.handleCategories)
	mux.HandleFunc("/api/v1/categories/", a.handleCategoryActions)
	mux.HandleFunc("/api/v1/suppliers", a.handleSuppliers)
	mux.HandleFunc("/api/v1/suppliers/", a.handleSupplierActions)
	mux.HandleFunc("/api/v1/sales", a.handleSales)
	mux.HandleFunc("/api/v1/sales/stats", a.handleSalesStats)
	mux.HandleFunc("/api/v1/sales/comparison", a.handleSalesComparison)
	mux.HandleFunc("/api/v1/sales/", a.handleSaleActions)

	return a.withMiddleware(mux)
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"ok": true,
		"at": time.Now().UTC().Format(time.RFC3339),
	})
}

func (a *API) handleProducts(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		products, err := a.service.ListProducts(r.Context())
		if err != nil {
			a.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"products": products})
	case http.MethodPost:
		var req domain.ProductCreateRequest
		if err := a.decodeValid(r, &req); err != nil {
			a.writeError(w, http.StatusBadRequest, err)
			return
		}
		product, err := a.service.CreateProduct(r.Context(), req)
		if err != nil {
			a.fail(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, product)
	default:
		writeMethodNotAllowed(w)
	}
}

// handleProductActions dispatches /api/v1/products/{id}[/dates[/{dateID}] | /movements].
func (a *API) handleProductActions(w http.ResponseWriter, r *http.Request) {
	segments := pathSegments(r.URL.Path, "/api/v1/products/")
	if len(segments) == 0 {
		a.writeError(w, http.StatusNotFound, errors.New("not found"))
		return
	}

	productID, err := strconv.ParseInt(segments[0], 10, 64)
	if err != nil || productID < 1 {
		a.writeError(w, http.StatusBadRequest, errors.New("invalid product id"))
		return
	}

	switch {
	case len(segments) == 1:
		a.handleProduct(w, r, productID)
	case len(segments) == 2 && segments[1] == "dates":
		a.handleProductDates(w, r, productID)
	case len(segments) == 3 && segments[1] == "dates":
		dateID, err := strconv.ParseInt(segments[2], 10, 64)
		if err != nil || dateID < 1 {
			a.writeError(w, http.StatusBadRequest, errors.New("invalid date id"))
			return
		}
		a.handleProductDate(w, r, productID, dateID)
	case len(segments) == 2 && segments[1] == "movements":
		a.handleProductMovements(w, r, productID)
	default:
		a.writeError(w, http.StatusNotFound, errors.New("not found"))
	}
}

func (a *API) handleProduct(w http.ResponseWriter, r *http.Request, productID int64) {
	switch r.Method {
	case http.MethodGet:
		product, err := a.service.GetProduct(r.Context(), productID)
		if err != nil {
			a.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, product)
	case http.MethodPatch, http.MethodPut:
		var req domain.ProductUpdateRequest
		if err := decodeJSON(r, &req); err != nil {
			a.writeError(w, http.StatusBadRequest, err)
			return
		}
		product, err := a.service.UpdateProduct(r.Context(), productID, req)
		if err != nil {
			a.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, product)
	case http.MethodDelete:
		if !a.requireAdmin(w, r) {
			return
		}
		if err := a.service.DeleteProduct(r.Context(), productID); err != nil {
			a.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"deleted": productID})
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleProductDates(w http.ResponseWriter, r *http.Request, productID int64) {
	switch r.Method {
	case http.MethodGet:
		dates, err := a.service.ListSpecialDates(r.Context(), productID)
		if err != nil {
			a.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"dates": dates})
	case http.MethodPost:
		if !a.requireAdmin(w, r) {
			return
		}
		var req domain.SpecialDateCreateRequest
		if err := a.decodeValid(r, &req); err != nil {
			a.writeError(w, http.StatusBadRequest, err)
			return
		}
		date, err := a.service.CreateSpecialDate(r.Context(), productID, req)
		if err != nil {
			a.fail(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, date)
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleProductDate(w http.ResponseWriter, r *http.Request, productID int64, dateID int64) {
	if r.Method != http.MethodDelete {
		writeMethodNotAllowed(w)
		return
	}
	if !a.requireAdmin(w, r) {
		return
	}
	if err := a.service.DeleteSpecialDate(r.Context(), productID, dateID); err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": dateID})
}

func (a *API) handleProductMovements(w http.ResponseWriter, r *http.Request, productID int64) {
	switch r.Method {
	case http.MethodGet:
		movements, err := a.service.ListMovements(r.Context(), productID)
		if err != nil {
			a.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"movements": movements})
	case http.MethodPost:
		var req domain.StockAdjustmentRequest
		if err := a.decodeValid(r, &req); err != nil {
			a.writeError(w, http.StatusBadRequest, err)
			return
		}
		result, err := a.service.AdjustStock(r.Context(), productID, req)
		if err != nil {
			a.fail(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, result)
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleCategories(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		categories, err := a.service.ListCategories(r.Context())
		if err != nil {
			a.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"categories": categories})
	case http.MethodPost:
		var req domain.CategoryCreateRequest
		if err := a.decodeValid(r, &req); err != nil {
			a.writeError(w, http.StatusBadRequest, err)
			return
		}
		category, err := a.service.CreateCategory(r.Context(), req)
		if err != nil {
			a.fail(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, category)
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleCategoryActions(w http.ResponseWriter, r *http.Request) {
	id, ok := a.singleID(w, r.URL.Path, "/api/v1/categories/")
	if !ok {
		return
	}
	if r.Method != http.MethodDelete {
		writeMethodNotAllowed(w)
		return
	}
	if err := a.service.DeleteCategory(r.Context(), id); err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": id})
}

func (a *API) handleSuppliers(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		suppliers, err := a.service.ListSuppliers(r.Context())
		if err != nil {
			a.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"suppliers": suppliers})
	case http.MethodPost:
		var req domain.SupplierCreateRequest
		if err := a.decodeValid(r, &req); err != nil {
			a.writeError(w, http.StatusBadRequest, err)
			return
		}
		supplier, err := a.service.CreateSupplier(r.Context(), req)
		if err != nil {
			a.fail(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, supplier)
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleSupplierActions(w http.ResponseWriter, r *http.Request) {
	id, ok := a.singleID(w, r.URL.Path, "/api/v1/suppliers/")
	if !ok {
		return
	}
	if r.Method != http.MethodDelete {
		writeMethodNotAllowed(w)
		return
	}
	if err := a.service.DeleteSupplier(r.Context(), id); err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": id})
}

func (a *API) handleSales(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		limit := parsePositiveLimit(r.URL.Query().Get("limit"), 50, 500)
		sales, err := a.service.ListSales(r.Context(), limit)
		if err != nil {
			a.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"sales": sales})
	case http.MethodPost:
		var req domain.SaleCreateRequest
		if err := a.decodeValid(r, &req); err != nil {
			a.writeError(w, http.StatusBadRequest, err)
			return
		}
		result, err := a.service.RecordSale(r.Context(), req)
		if err != nil {
			a.fail(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, result)
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleSaleActions(w http.ResponseWriter, r *http.Request) {
	id, ok := a.singleID(w, r.URL.Path, "/api/v1/sales/")
	if !ok {
		return
	}

	switch r.Method {
	case http.MethodGet:
		sale, err := a.service.GetSale(r.Context(), id)
		if err != nil {
			a.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, sale)
	case http.MethodDelete:
		if !a.requireAdmin(w, r) {
			return
		}
		if err := a.service.ReverseSale(r.Context(), id); err != nil {
			a.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"reversed": id})
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleSalesStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	from, err := parseDateParam(r.URL.Query().Get("from"), false)
	if err != nil {
		a.writeError(w, http.StatusBadRequest, err)
		return
	}
	to, err := parseDateParam(r.URL.Query().Get("to"), true)
	if err != nil {
		a.writeError(w, http.StatusBadRequest, err)
		return
	}

	stats, err := a.service.SalesStats(r.Context(), from, to)
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (a *API) handleSalesComparison(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	totals, err := a.service.SalesComparison(r.Context(), r.URL.Query().Get("granularity"))
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"periods": totals})
}

func (a *API) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Access-Control-Allow-Origin", a.allowedOrigin)
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-Admin-Pass")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,PATCH,PUT,DELETE,OPTIONS")
		w.Header().Set("Vary", "Origin")

		if r.Method == http.MethodPost || r.Method == http.MethodPatch || r.Method == http.MethodPut {
			r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		requestID := strings.TrimSpace(r.Header.Get("X-Request-ID"))
		if requestID == "" {
			requestID = reqid.New()
		}
		w.Header().Set("X-Request-ID", requestID)

		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		startedAt := time.Now()
		next.ServeHTTP(recorder, r)

		a.logger.Info("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", recorder.status),
			zap.Duration("duration", time.Since(startedAt)),
			zap.String("request_id", requestID))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// fail maps storage sentinels onto HTTP statuses. Anything unrecognized is an
// internal error and its detail stays out of the response body.
func (a *API) fail(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		a.writeError(w, http.StatusNotFound, err)
	case errors.Is(err, store.ErrInvalidArgument), errors.Is(err, store.ErrInsufficientStock):
		a.writeError(w, http.StatusBadRequest, err)
	default:
		a.writeError(w, http.StatusInternalServerError, err)
	}
}

func (a *API) singleID(w http.ResponseWriter, path string, prefix string) (int64, bool) {
	segments := pathSegments(path, prefix)
	if len(segments) != 1 {
		a.writeError(w, http.StatusNotFound, errors.New("not found"))
		return 0, false
	}
	id, err := strconv.ParseInt(segments[0], 10, 64)
	if err != nil || id < 1 {
		a.writeError(w, http.StatusBadRequest, errors.New("invalid id"))
		return 0, false
	}
	return id, true
}

func pathSegments(path string, prefix string) []string {
	rest := strings.Trim(strings.TrimPrefix(path, prefix), "/")
	if rest == "" {
		return nil
	}
	return strings.Split(rest, "/")
}

// decodeValid decodes a JSON body with unknown-field rejection, then runs the
// struct's validation tags.
func (a *API) decodeValid(r *http.Request, dest any) error {
	if err := decodeJSON(r, dest); err != nil {
		return err
	}
	return a.validate.Struct(dest)
}

func decodeJSON(r *http.Request, dest any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(dest)
}

func parsePositiveLimit(raw string, fallback int, max int) int {
	limit := fallback
	trimmed := strings.TrimSpace(raw)
	if trimmed != "" {
		if parsed, err := strconv.Atoi(trimmed); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if max > 0 && limit > max {
		return max
	}
	return limit
}

// parseDateParam parses a YYYY-MM-DD query value; endOfDay pushes the result
// to the last second of the day so a date-only upper bound stays inclusive.
func parseDateParam(raw string, endOfDay bool) (time.Time, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return time.Time{}, nil
	}
	parsed, err := time.ParseInLocation("2006-01-02", trimmed, time.UTC)
	if err != nil {
		return time.Time{}, errors.New("dates must be YYYY-MM-DD")
	}
	if endOfDay {
		parsed = parsed.AddDate(0, 0, 1).Add(-time.Second)
	}
	return parsed, nil
}

func writeMethodNotAllowed(w http.ResponseWriter) {
	writeJSON(w, http.StatusMethodNotAllowed, map[string]any{"error": "method not allowed"})
}

func (a *API) writeError(w http.ResponseWriter, status int, err error) {
	msg := err.Error()
	if status >= 500 {
		a.logger.Error("internal error", zap.Int("status", status), zap.Error(err))
		msg = "internal server error"
	}
	writeJSON(w, status, map[string]any{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

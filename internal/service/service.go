package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"inventario/backend/internal/cache"
	"inventario/backend/internal/domain"
	"inventario/backend/internal/store"
)

const dateLayout = "2006-01-02"

// Service orchestrates the catalog, the ledger core, and the reporting
// projections on top of a storage backend. Transactional guarantees live in
// the store; the service owns request-level validation and policy.
type Service struct {
	ledger             store.Ledger
	reports            cache.ReportCache
	logger             *zap.Logger
	directStockUpdates bool
	reportTTL          time.Duration
}

type Options struct {
	// DirectStockUpdates permits stock edits through the product update
	// path. Such edits bypass the movement trail and will show up in the
	// reconciliation sweep.
	DirectStockUpdates bool
	ReportCacheTTL     time.Duration
}

func New(ledger store.Ledger, reports cache.ReportCache, logger *zap.Logger, opts Options) *Service {
	if reports == nil {
		reports = cache.NoopReportCache{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.ReportCacheTTL <= 0 {
		opts.ReportCacheTTL = 30 * time.Second
	}

	return &Service{
		ledger:             ledger,
		reports:            reports,
		logger:             logger,
		directStockUpdates: opts.DirectStockUpdates,
		reportTTL:          opts.ReportCacheTTL,
	}
}

func (s *Service) ListProducts(ctx context.Context) ([]domain.Product, error) {
	return s.ledger.ListProducts(ctx)
}

func (s *Service) GetProduct(ctx context.Context, id int64) (*domain.Product, error) {
	return s.ledger.GetProduct(ctx, id)
}

func (s *Service) CreateProduct(ctx context.Context, req domain.ProductCreateRequest) (*domain.Product, error) {
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return nil, fmt.Errorf("%w: name is required", store.ErrInvalidArgument)
	}
	if req.Price.IsNegative() {
		return nil, fmt.Errorf("%w: price must not be negative", store.ErrInvalidArgument)
	}
	if req.Stock < 0 {
		return nil, fmt.Errorf("%w: stock must not be negative", store.ErrInvalidArgument)
	}

	created, err := s.ledger.CreateProduct(ctx, domain.Product{
		Name:       req.Name,
		Price:      req.Price,
		Stock:      req.Stock,
		CategoryID: req.CategoryID,
		SupplierID: req.SupplierID,
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("product created",
		zap.Int64("product_id", created.ID),
		zap.String("name", created.Name),
		zap.Int("stock", created.Stock))
	return created, nil
}

func (s *Service) UpdateProduct(ctx context.Context, id int64, req domain.ProductUpdateRequest) (*domain.Product, error) {
	if req.Stock != nil && !s.directStockUpdates {
		return nil, fmt.Errorf("%w: direct stock updates are disabled, use a stock movement", store.ErrInvalidArgument)
	}

	updated, err := s.ledger.UpdateProduct(ctx, id, req)
	if err != nil {
		return nil, err
	}

	if req.Stock != nil {
		// Unaudited stock write: allowed by policy, but it drifts the
		// trail until an operator reconciles it.
		s.logger.Warn("stock updated without movement",
			zap.Int64("product_id", id),
			zap.Int("stock", *req.Stock))
	}
	return updated, nil
}

func (s *Service) DeleteProduct(ctx context.Context, id int64) error {
	if err := s.ledger.DeleteProduct(ctx, id); err != nil {
		return err
	}
	s.logger.Info("product deleted", zap.Int64("product_id", id))
	return nil
}

func (s *Service) ListCategories(ctx context.Context) ([]domain.Category, error) {
	return s.ledger.ListCategories(ctx)
}

func (s *Service) CreateCategory(ctx context.Context, req domain.CategoryCreateRequest) (*domain.Category, error) {
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return nil, fmt.Errorf("%w: name is required", store.ErrInvalidArgument)
	}
	return s.ledger.CreateCategory(ctx, domain.Category{Name: req.Name})
}

func (s *Service) DeleteCategory(ctx context.Context, id int64) error {
	return s.ledger.DeleteCategory(ctx, id)
}

func (s *Service) ListSuppliers(ctx context.Context) ([]domain.Supplier, error) {
	return s.ledger.ListSuppliers(ctx)
}

func (s *Service) CreateSupplier(ctx context.Context, req domain.SupplierCreateRequest) (*domain.Supplier, error) {
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return nil, fmt.Errorf("%w: name is required", store.ErrInvalidArgument)
	}
	return s.ledger.CreateSupplier(ctx, domain.Supplier{Name: req.Name, Contact: strings.TrimSpace(req.Contact)})
}

func (s *Service) DeleteSupplier(ctx context.Context, id int64) error {
	return s.ledger.DeleteSupplier(ctx, id)
}

func (s *Service) ListSpecialDates(ctx context.Context, productID int64) ([]domain.SpecialDate, error) {
	return s.ledger.ListSpecialDates(ctx, productID)
}

func (s *Service) CreateSpecialDate(ctx context.Context, productID int64, req domain.SpecialDateCreateRequest) (*domain.SpecialDate, error) {
	date, err := time.ParseInLocation(dateLayout, req.Date, time.UTC)
	if err != nil {
		return nil, fmt.Errorf("%w: date must be YYYY-MM-DD", store.ErrInvalidArgument)
	}
	return s.ledger.CreateSpecialDate(ctx, productID, date)
}

func (s *Service) DeleteSpecialDate(ctx context.Context, productID int64, dateID int64) error {
	return s.ledger.DeleteSpecialDate(ctx, productID, dateID)
}

func (s *Service) ListMovements(ctx context.Context, productID int64) ([]domain.StockMovement, error) {
	return s.ledger.ListMovements(ctx, productID)
}

func (s *Service) AdjustStock(ctx context.Context, productID int64, req domain.StockAdjustmentRequest) (*domain.StockAdjustmentResult, error) {
	if !req.Kind.Valid() {
		return nil, fmt.Errorf("%w: kind must be inflow or outflow", store.ErrInvalidArgument)
	}
	if req.Quantity < 1 {
		return nil, fmt.Errorf("%w: quantity must be positive", store.ErrInvalidArgument)
	}

	result, err := s.ledger.AdjustStock(ctx, productID, req.Kind, req.Quantity)
	if err != nil {
		return nil, err
	}

	s.logger.Info("stock adjusted",
		zap.Int64("product_id", productID),
		zap.String("kind", string(req.Kind)),
		zap.Int("quantity", req.Quantity),
		zap.Int("stock_after", result.StockAfter))
	return result, nil
}

// RecordSale validates the payment arithmetic and hands the draft to the
// store, which owns stock validation and the atomic write.
func (s *Service) RecordSale(ctx context.Context, req domain.SaleCreateRequest) (*domain.SaleCreateResult, error) {
	if len(req.Items) == 0 {
		return nil, fmt.Errorf("%w: sale needs at least one item", store.ErrInvalidArgument)
	}
	if !req.Total.IsPositive() {
		return nil, fmt.Errorf("%w: total must be positive", store.ErrInvalidArgument)
	}
	if req.Received.LessThan(req.Total) {
		return nil, fmt.Errorf("%w: received amount is less than the total", store.ErrInvalidArgument)
	}

	draft := domain.SaleDraft{
		Items:       req.Items,
		Total:       req.Total,
		Received:    req.Received,
		Change:      req.Received.Sub(req.Total),
		Description: strings.TrimSpace(req.Description),
	}
	if req.OccurredAt != nil {
		draft.OccurredAt = req.OccurredAt.UTC()
	}

	sale, err := s.ledger.RecordSale(ctx, draft)
	if err != nil {
		return nil, err
	}

	s.logger.Info("sale recorded",
		zap.Int64("sale_id", sale.ID),
		zap.Int("items", len(sale.Items)),
		zap.String("total", sale.Total.String()))
	return &domain.SaleCreateResult{SaleID: sale.ID, Total: sale.Total, Change: sale.Change}, nil
}

func (s *Service) ReverseSale(ctx context.Context, saleID int64) error {
	if err := s.ledger.ReverseSale(ctx, saleID); err != nil {
		return err
	}
	s.logger.Info("sale reversed", zap.Int64("sale_id", saleID))
	return nil
}

func (s *Service) ListSales(ctx context.Context, limit int) ([]domain.SaleSummary, error) {
	return s.ledger.ListSales(ctx, limit)
}

func (s *Service) GetSale(ctx context.Context, id int64) (*domain.Sale, error) {
	return s.ledger.GetSale(ctx, id)
}

// SalesStats assembles the summary, per-day breakdown, and top products for a
// date range. Zero from/to default to the trailing 30 days. Responses are
// cached briefly; a cache failure falls through to the store.
func (s *Service) SalesStats(ctx context.Context, from time.Time, to time.Time) (*domain.SalesStats, error) {
	if to.IsZero() {
		to = time.Now().UTC()
	}
	if from.IsZero() {
		from = to.AddDate(0, 0, -30)
	}
	if from.After(to) {
		return nil, fmt.Errorf("%w: from is after to", store.ErrInvalidArgument)
	}

	key := fmt.Sprintf("reports:stats:%d:%d", from.Unix(), to.Unix())
	var cached domain.SalesStats
	if hit, err := s.reports.Get(ctx, key, &cached); err != nil {
		s.logger.Warn("report cache read failed", zap.String("key", key), zap.Error(err))
	} else if hit {
		return &cached, nil
	}

	summary, err := s.ledger.SalesSummary(ctx, from, to)
	if err != nil {
		return nil, err
	}
	perDay, err := s.ledger.RevenueByDay(ctx, from, to)
	if err != nil {
		return nil, err
	}
	top, err := s.ledger.TopProducts(ctx, from, to, 10)
	if err != nil {
		return nil, err
	}

	stats := &domain.SalesStats{
		From:        from.UTC().Format(dateLayout),
		To:          to.UTC().Format(dateLayout),
		Summary:     summary,
		PerDay:      perDay,
		TopProducts: top,
	}

	if err := s.reports.Set(ctx, key, stats, s.reportTTL); err != nil {
		s.logger.Warn("report cache write failed", zap.String("key", key), zap.Error(err))
	}
	return stats, nil
}

// SalesComparison returns recent per-period totals, monthly or ISO-weekly.
func (s *Service) SalesComparison(ctx context.Context, granularity string) ([]domain.PeriodTotal, error) {
	if granularity == "" {
		granularity = domain.ComparisonMonthly
	}
	if granularity != domain.ComparisonMonthly && granularity != domain.ComparisonWeekly {
		return nil, fmt.Errorf("%w: granularity must be monthly or weekly", store.ErrInvalidArgument)
	}

	key := "reports:comparison:" + granularity
	var cached []domain.PeriodTotal
	if hit, err := s.reports.Get(ctx, key, &cached); err != nil {
		s.logger.Warn("report cache read failed", zap.String("key", key), zap.Error(err))
	} else if hit {
		return cached, nil
	}

	totals, err := s.ledger.PeriodTotals(ctx, granularity, 12)
	if err != nil {
		return nil, err
	}

	if err := s.reports.Set(ctx, key, totals, s.reportTTL); err != nil {
		s.logger.Warn("report cache write failed", zap.String("key", key), zap.Error(err))
	}
	return totals, nil
}

// ReconcileStock compares every product's stock against the net of its
// movement trail and logs each drift. Read-only.
func (s *Service) ReconcileStock(ctx context.Context) ([]domain.StockDiscrepancy, error) {
	discrepancies, err := s.ledger.StockDiscrepancies(ctx)
	if err != nil {
		return nil, err
	}

	for _, d := range discrepancies {
		s.logger.Error("stock drift detected",
			zap.Int64("product_id", d.ProductID),
			zap.String("name", d.ProductName),
			zap.Int("stock", d.Stock),
			zap.Int("movement_net", d.MovementNet),
			zap.Int("drift", d.Stock-d.MovementNet))
	}
	if len(discrepancies) == 0 {
		s.logger.Debug("stock reconciliation clean")
	}
	return discrepancies, nil
}

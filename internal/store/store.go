package store

import (
	"context"
	"errors"
	"time"

	"inventario/backend/internal/domain"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidArgument   = errors.New("invalid argument")
	ErrInsufficientStock = errors.New("insufficient stock")
)

// Ledger is the transactional storage contract. Every mutating operation is
// all-or-nothing: on any error no partial state is observable. Implementations
// must make concurrent RecordSale calls against the same product safe — two
// sales must never both pass validation for more units than are available.
type Ledger interface {
	// Catalog
	ListProducts(ctx context.Context) ([]domain.Product, error)
	GetProduct(ctx context.Context, id int64) (*domain.Product, error)
	CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	UpdateProduct(ctx context.Context, id int64, update domain.ProductUpdateRequest) (*domain.Product, error)
	DeleteProduct(ctx context.Context, id int64) error

	ListCategories(ctx context.Context) ([]domain.Category, error)
	CreateCategory(ctx context.Context, category domain.Category) (*domain.Category, error)
	DeleteCategory(ctx context.Context, id int64) error

	ListSuppliers(ctx context.Context) ([]domain.Supplier, error)
	CreateSupplier(ctx context.Context, supplier domain.Supplier) (*domain.Supplier, error)
	DeleteSupplier(ctx context.Context, id int64) error

	ListSpecialDates(ctx context.Context, productID int64) ([]domain.SpecialDate, error)
	CreateSpecialDate(ctx context.Context, productID int64, date time.Time) (*domain.SpecialDate, error)
	DeleteSpecialDate(ctx context.Context, productID int64, dateID int64) error

	// Ledger core
	ListMovements(ctx context.Context, productID int64) ([]domain.StockMovement, error)
	AdjustStock(ctx context.Context, productID int64, kind domain.MovementKind, quantity int) (*domain.StockAdjustmentResult, error)
	RecordSale(ctx context.Context, draft domain.SaleDraft) (*domain.Sale, error)
	ReverseSale(ctx context.Context, saleID int64) error

	// Sales reads
	ListSales(ctx context.Context, limit int) ([]domain.SaleSummary, error)
	GetSale(ctx context.Context, id int64) (*domain.Sale, error)

	// Reporting projections
	SalesSummary(ctx context.Context, from time.Time, to time.Time) (domain.SalesSummary, error)
	RevenueByDay(ctx context.Context, from time.Time, to time.Time) ([]domain.DailyRevenue, error)
	TopProducts(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.ProductSales, error)
	PeriodTotals(ctx context.Context, granularity string, limit int) ([]domain.PeriodTotal, error)

	// Reconciliation
	StockDiscrepancies(ctx context.Context) ([]domain.StockDiscrepancy, error)
}

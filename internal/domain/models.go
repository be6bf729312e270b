package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// MovementKind classifies a stock movement. Inflows add to stock,
// outflows subtract from it.
type MovementKind string

const (
	MovementInflow  MovementKind = "inflow"
	MovementOutflow MovementKind = "outflow"
)

func (k MovementKind) Valid() bool {
	return k == MovementInflow || k == MovementOutflow
}

type Category struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type CategoryCreateRequest struct {
	Name string `json:"name" validate:"required"`
}

type Supplier struct {
	ID      int64  `json:"id"`
	Name    string `json:"name"`
	Contact string `json:"contact"`
}

type SupplierCreateRequest struct {
	Name    string `json:"name" validate:"required"`
	Contact string `json:"contact"`
}

type Product struct {
	ID           int64           `json:"id"`
	Name         string          `json:"name"`
	Price        decimal.Decimal `json:"price"`
	Stock        int             `json:"stock"`
	CategoryID   *int64          `json:"category_id,omitempty"`
	SupplierID   *int64          `json:"supplier_id,omitempty"`
	CategoryName string          `json:"category_name,omitempty"`
	SupplierName string          `json:"supplier_name,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
}

type ProductCreateRequest struct {
	Name       string          `json:"name" validate:"required"`
	Price      decimal.Decimal `json:"price"`
	Stock      int             `json:"stock" validate:"gte=0"`
	CategoryID *int64          `json:"category_id,omitempty"`
	SupplierID *int64          `json:"supplier_id,omitempty"`
}

// ProductUpdateRequest carries a partial update: only non-nil fields are
// applied. An update with no fields set is rejected.
type ProductUpdateRequest struct {
	Name       *string          `json:"name,omitempty"`
	Price      *decimal.Decimal `json:"price,omitempty"`
	Stock      *int             `json:"stock,omitempty"`
	CategoryID *int64           `json:"category_id,omitempty"`
	SupplierID *int64           `json:"supplier_id,omitempty"`
}

func (r ProductUpdateRequest) Empty() bool {
	return r.Name == nil && r.Price == nil && r.Stock == nil && r.CategoryID == nil && r.SupplierID == nil
}

type SpecialDate struct {
	ID        int64     `json:"id"`
	ProductID int64     `json:"product_id"`
	Date      time.Time `json:"date"`
}

type SpecialDateCreateRequest struct {
	Date string `json:"date" validate:"required"`
}

// StockMovement is one row of the append-only movement trail. Movements are
// inserted by the ledger core and never updated afterwards.
type StockMovement struct {
	ID         int64        `json:"id"`
	ProductID  int64        `json:"product_id"`
	Kind       MovementKind `json:"kind"`
	Quantity   int          `json:"quantity"`
	OccurredAt time.Time    `json:"occurred_at"`
}

type StockAdjustmentRequest struct {
	Kind     MovementKind `json:"kind" validate:"required,oneof=inflow outflow"`
	Quantity int          `json:"quantity" validate:"required,gt=0"`
}

type StockAdjustmentResult struct {
	ProductID   int64        `json:"product_id"`
	Kind        MovementKind `json:"kind"`
	Quantity    int          `json:"quantity"`
	StockBefore int          `json:"stock_before"`
	StockAfter  int          `json:"stock_after"`
}

type SaleItem struct {
	ID          int64           `json:"id"`
	SaleID      int64           `json:"sale_id"`
	ProductID   *int64          `json:"product_id,omitempty"`
	ProductName string          `json:"product_name"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Subtotal    decimal.Decimal `json:"subtotal"`
}

type Sale struct {
	ID          int64           `json:"id"`
	OccurredAt  time.Time       `json:"occurred_at"`
	Total       decimal.Decimal `json:"total"`
	Received    decimal.Decimal `json:"received"`
	Change      decimal.Decimal `json:"change"`
	Description string          `json:"description"`
	Items       []SaleItem      `json:"items,omitempty"`
}

// SaleSummary is the list-view projection of a sale header.
type SaleSummary struct {
	ID          int64           `json:"id"`
	OccurredAt  time.Time       `json:"occurred_at"`
	Total       decimal.Decimal `json:"total"`
	Received    decimal.Decimal `json:"received"`
	Change      decimal.Decimal `json:"change"`
	Description string          `json:"description"`
	ItemCount   int             `json:"item_count"`
}

type SaleLineRequest struct {
	ProductID int64 `json:"product_id" validate:"required,gt=0"`
	Quantity  int   `json:"quantity" validate:"required,gt=0"`
}

type SaleCreateRequest struct {
	Items       []SaleLineRequest `json:"items" validate:"required,min=1,dive"`
	Total       decimal.Decimal   `json:"total"`
	Received    decimal.Decimal   `json:"received"`
	Description string            `json:"description"`
	OccurredAt  *time.Time        `json:"occurred_at,omitempty"`
}

// SaleDraft is the store-level input for recording a sale. The request
// surface validates the payload shape; the transactional store owns stock
// validation and the name/price snapshots.
type SaleDraft struct {
	Items       []SaleLineRequest
	Total       decimal.Decimal
	Received    decimal.Decimal
	Change      decimal.Decimal
	Description string
	OccurredAt  time.Time
}

type SaleCreateResult struct {
	SaleID int64           `json:"sale_id"`
	Total  decimal.Decimal `json:"total"`
	Change decimal.Decimal `json:"change"`
}

type SalesSummary struct {
	Sales       int64           `json:"sales"`
	Revenue     decimal.Decimal `json:"revenue"`
	AverageSale decimal.Decimal `json:"average_sale"`
	UnitsSold   int64           `json:"units_sold"`
}

type DailyRevenue struct {
	Date    string          `json:"date"`
	Sales   int64           `json:"sales"`
	Revenue decimal.Decimal `json:"revenue"`
}

type ProductSales struct {
	ProductName string          `json:"product_name"`
	UnitsSold   int64           `json:"units_sold"`
	Revenue     decimal.Decimal `json:"revenue"`
}

type SalesStats struct {
	From        string         `json:"from"`
	To          string         `json:"to"`
	Summary     SalesSummary   `json:"summary"`
	PerDay      []DailyRevenue `json:"per_day"`
	TopProducts []ProductSales `json:"top_products"`
}

type PeriodTotal struct {
	Period  string          `json:"period"`
	Sales   int64           `json:"sales"`
	Revenue decimal.Decimal `json:"revenue"`
}

const (
	ComparisonMonthly = "monthly"
	ComparisonWeekly  = "weekly"
)

// StockDiscrepancy reports a product whose stock field has drifted from the
// net of its movement trail. Produced by the reconciliation sweep; a nonzero
// drift usually means stock was edited through the unaudited catalog path.
type StockDiscrepancy struct {
	ProductID   int64  `json:"product_id"`
	ProductName string `json:"product_name"`
	Stock       int    `json:"stock"`
	MovementNet int    `json:"movement_net"`
}

// Package memory implements the storage contract with in-process maps. It
// backs the test suites and lets the server run without Postgres.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"inventario/backend/internal/domain"
	"inventario/backend/internal/store"
)

type Store struct {
	mu sync.Mutex

	categories   map[int64]domain.Category
	suppliers    map[int64]domain.Supplier
	products     map[int64]domain.Product
	specialDates map[int64]domain.SpecialDate
	movements    map[int64]domain.StockMovement
	sales        map[int64]domain.Sale

	nextCategoryID    int64
	nextSupplierID    int64
	nextProductID     int64
	nextSpecialDateID int64
	nextMovementID    int64
	nextSaleID        int64
	nextSaleItemID    int64
}

func New() *Store {
	return &Store{
		categories:   make(map[int64]domain.Category),
		suppliers:    make(map[int64]domain.Supplier),
		products:     make(map[int64]domain.Product),
		specialDates: make(map[int64]domain.SpecialDate),
		movements:    make(map[int64]domain.StockMovement),
		sales:        make(map[int64]domain.Sale),
	}
}

// NewSeeded returns a store preloaded with a small demo catalog. Each
// product's opening stock is mirrored by an inflow movement so the trail
// balances from the start.
func NewSeeded() *Store {
	s := New()
	ctx := context.Background()

	electronics, _ := s.CreateCategory(ctx, domain.Category{Name: "Electronics"})
	furniture, _ := s.CreateCategory(ctx, domain.Category{Name: "Furniture"})
	jewelry, _ := s.CreateCategory(ctx, domain.Category{Name: "Jewelry"})

	supplierA, _ := s.CreateSupplier(ctx, domain.Supplier{Name: "Supplier A", Contact: "contact-a@example.com"})
	supplierB, _ := s.CreateSupplier(ctx, domain.Supplier{Name: "Supplier B", Contact: "contact-b@example.com"})

	seed := []domain.Product{
		{Name: "Laptop", Price: decimal.RequireFromString("800.00"), Stock: 15, CategoryID: &electronics.ID, SupplierID: &supplierA.ID},
		{Name: "Desk", Price: decimal.RequireFromString("150.00"), Stock: 20, CategoryID: &furniture.ID, SupplierID: &supplierB.ID},
		{Name: "Silver Necklace", Price: decimal.RequireFromString("250.00"), Stock: 10, CategoryID: &jewelry.ID, SupplierID: &supplierA.ID},
		{Name: "Chair", Price: decimal.RequireFromString("75.00"), Stock: 25, CategoryID: &furniture.ID, SupplierID: &supplierB.ID},
		{Name: "Monitor", Price: decimal.RequireFromString("300.00"), Stock: 18, CategoryID: &electronics.ID, SupplierID: &supplierA.ID},
	}
	for _, p := range seed {
		_, _ = s.CreateProduct(ctx, p)
	}

	return s
}

func (s *Store) ListProducts(_ context.Context) ([]domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	products := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		products = append(products, s.withJoinedNames(p))
	}
	sort.Slice(products, func(i, j int) bool { return products[i].ID > products[j].ID })
	return products, nil
}

func (s *Store) GetProduct(_ context.Context, id int64) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, exists := s.products[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	joined := s.withJoinedNames(p)
	return &joined, nil
}

// withJoinedNames resolves category/supplier names for display. Dangling refs
// simply resolve to empty names.
func (s *Store) withJoinedNames(p domain.Product) domain.Product {
	if p.CategoryID != nil {
		if c, exists := s.categories[*p.CategoryID]; exists {
			p.CategoryName = c.Name
		}
	}
	if p.SupplierID != nil {
		if sp, exists := s.suppliers[*p.SupplierID]; exists {
			p.SupplierName = sp.Name
		}
	}
	return p
}

func (s *Store) CreateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	if strings.TrimSpace(product.Name) == "" || product.Price.IsNegative() || product.Stock < 0 {
		return nil, store.ErrInvalidArgument
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextProductID++
	product.ID = s.nextProductID
	product.CreatedAt = time.Now().UTC()
	s.products[product.ID] = product

	if product.Stock > 0 {
		s.appendMovementLocked(product.ID, domain.MovementInflow, product.Stock, product.CreatedAt)
	}

	created := s.withJoinedNames(product)
	return &created, nil
}

func (s *Store) UpdateProduct(_ context.Context, id int64, update domain.ProductUpdateRequest) (*domain.Product, error) {
	if update.Empty() {
		return nil, fmt.Errorf("%w: no fields to update", store.ErrInvalidArgument)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	p, exists := s.products[id]
	if !exists {
		return nil, store.ErrNotFound
	}

	if update.Name != nil {
		name := strings.TrimSpace(*update.Name)
		if name == "" {
			return nil, fmt.Errorf("%w: name must not be empty", store.ErrInvalidArgument)
		}
		p.Name = name
	}
	if update.Price != nil {
		if update.Price.IsNegative() {
			return nil, fmt.Errorf("%w: price must not be negative", store.ErrInvalidArgument)
		}
		p.Price = *update.Price
	}
	if update.Stock != nil {
		if *update.Stock < 0 {
			return nil, fmt.Errorf("%w: stock must not be negative", store.ErrInvalidArgument)
		}
		p.Stock = *update.Stock
	}
	if update.CategoryID != nil {
		categoryID := *update.CategoryID
		p.CategoryID = &categoryID
	}
	if update.SupplierID != nil {
		supplierID := *update.SupplierID
		p.SupplierID = &supplierID
	}

	s.products[id] = p
	updated := s.withJoinedNames(p)
	return &updated, nil
}

func (s *Store) DeleteProduct(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.products[id]; !exists {
		return store.ErrNotFound
	}
	delete(s.products, id)

	for dateID, d := range s.specialDates {
		if d.ProductID == id {
			delete(s.specialDates, dateID)
		}
	}
	for movementID, m := range s.movements {
		if m.ProductID == id {
			delete(s.movements, movementID)
		}
	}

	// Sale line snapshots survive the product; only the reference is cut.
	for saleID, sale := range s.sales {
		changed := false
		for i := range sale.Items {
			if sale.Items[i].ProductID != nil && *sale.Items[i].ProductID == id {
				sale.Items[i].ProductID = nil
				changed = true
			}
		}
		if changed {
			s.sales[saleID] = sale
		}
	}
	return nil
}

func (s *Store) ListCategories(_ context.Context) ([]domain.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	categories := make([]domain.Category, 0, len(s.categories))
	for _, c := range s.categories {
		categories = append(categories, c)
	}
	sort.Slice(categories, func(i, j int) bool { return categories[i].Name < categories[j].Name })
	return categories, nil
}

func (s *Store) CreateCategory(_ context.Context, category domain.Category) (*domain.Category, error) {
	if strings.TrimSpace(category.Name) == "" {
		return nil, store.ErrInvalidArgument
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextCategoryID++
	category.ID = s.nextCategoryID
	s.categories[category.ID] = category
	return &category, nil
}

func (s *Store) DeleteCategory(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.categories[id]; !exists {
		return store.ErrNotFound
	}
	delete(s.categories, id)
	return nil
}

func (s *Store) ListSuppliers(_ context.Context) ([]domain.Supplier, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	suppliers := make([]domain.Supplier, 0, len(s.suppliers))
	for _, sp := range s.suppliers {
		suppliers = append(suppliers, sp)
	}
	sort.Slice(suppliers, func(i, j int) bool { return suppliers[i].Name < suppliers[j].Name })
	return suppliers, nil
}

func (s *Store) CreateSupplier(_ context.Context, supplier domain.Supplier) (*domain.Supplier, error) {
	if strings.TrimSpace(supplier.Name) == "" {
		return nil, store.ErrInvalidArgument
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextSupplierID++
	supplier.ID = s.nextSupplierID
	s.suppliers[supplier.ID] = supplier
	return &supplier, nil
}

func (s *Store) DeleteSupplier(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.suppliers[id]; !exists {
		return store.ErrNotFound
	}
	delete(s.suppliers, id)
	return nil
}

func (s *Store) ListSpecialDates(_ context.Context, productID int64) ([]domain.SpecialDate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	dates := make([]domain.SpecialDate, 0, 8)
	for _, d := range s.specialDates {
		if d.ProductID == productID {
			dates = append(dates, d)
		}
	}
	sort.Slice(dates, func(i, j int) bool {
		if dates[i].Date.Equal(dates[j].Date) {
			return dates[i].ID > dates[j].ID
		}
		return dates[i].Date.After(dates[j].Date)
	})
	return dates, nil
}

func (s *Store) CreateSpecialDate(_ context.Context, productID int64, date time.Time) (*domain.SpecialDate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.products[productID]; !exists {
		return nil, store.ErrNotFound
	}

	s.nextSpecialDateID++
	created := domain.SpecialDate{ID: s.nextSpecialDateID, ProductID: productID, Date: date.UTC()}
	s.specialDates[created.ID] = created
	return &created, nil
}

func (s *Store) DeleteSpecialDate(_ context.Context, productID int64, dateID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, exists := s.specialDates[dateID]
	if !exists || d.ProductID != productID {
		return store.ErrNotFound
	}
	delete(s.specialDates, dateID)
	return nil
}

func (s *Store) ListMovements(_ context.Context, productID int64) ([]domain.StockMovement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	movements := make([]domain.StockMovement, 0, 16)
	for _, m := range s.movements {
		if m.ProductID == productID {
			movements = append(movements, m)
		}
	}
	sort.Slice(movements, func(i, j int) bool { return movements[i].ID > movements[j].ID })
	return movements, nil
}

func (s *Store) appendMovementLocked(productID int64, kind domain.MovementKind, quantity int, occurredAt time.Time) {
	s.nextMovementID++
	s.movements[s.nextMovementID] = domain.StockMovement{
		ID:         s.nextMovementID,
		ProductID:  productID,
		Kind:       kind,
		Quantity:   quantity,
		OccurredAt: occurredAt,
	}
}

func (s *Store) AdjustStock(_ context.Context, productID int64, kind domain.MovementKind, quantity int) (*domain.StockAdjustmentResult, error) {
	if !kind.Valid() || quantity < 1 {
		return nil, store.ErrInvalidArgument
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	p, exists := s.products[productID]
	if !exists {
		return nil, store.ErrNotFound
	}

	before := p.Stock
	after := before + quantity
	if kind == domain.MovementOutflow {
		if quantity > before {
			return nil, store.ErrInsufficientStock
		}
		after = before - quantity
	}

	p.Stock = after
	s.products[productID] = p
	s.appendMovementLocked(productID, kind, quantity, time.Now().UTC())

	return &domain.StockAdjustmentResult{
		ProductID:   productID,
		Kind:        kind,
		Quantity:    quantity,
		StockBefore: before,
		StockAfter:  after,
	}, nil
}

func (s *Store) RecordSale(_ context.Context, draft domain.SaleDraft) (*domain.Sale, error) {
	if len(draft.Items) == 0 {
		return nil, store.ErrInvalidArgument
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Validate every line against a shared remaining count before touching
	// anything, so a failing line leaves no partial state.
	remaining := make(map[int64]int, len(draft.Items))
	for _, item := range draft.Items {
		if item.Quantity < 1 {
			return nil, store.ErrInvalidArgument
		}
		p, exists := s.products[item.ProductID]
		if !exists {
			return nil, fmt.Errorf("%w: product %d", store.ErrNotFound, item.ProductID)
		}
		if _, seen := remaining[item.ProductID]; !seen {
			remaining[item.ProductID] = p.Stock
		}
		if item.Quantity > remaining[item.ProductID] {
			return nil, fmt.Errorf("%w: product %q (id %d)", store.ErrInsufficientStock, p.Name, item.ProductID)
		}
		remaining[item.ProductID] -= item.Quantity
	}

	occurredAt := draft.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now().UTC()
	}

	s.nextSaleID++
	sale := domain.Sale{
		ID:          s.nextSaleID,
		OccurredAt:  occurredAt,
		Total:       draft.Total,
		Received:    draft.Received,
		Change:      draft.Change,
		Description: draft.Description,
		Items:       make([]domain.SaleItem, 0, len(draft.Items)),
	}

	for _, item := range draft.Items {
		p := s.products[item.ProductID]
		p.Stock -= item.Quantity
		s.products[item.ProductID] = p
		s.appendMovementLocked(item.ProductID, domain.MovementOutflow, item.Quantity, occurredAt)

		s.nextSaleItemID++
		productID := item.ProductID
		sale.Items = append(sale.Items, domain.SaleItem{
			ID:          s.nextSaleItemID,
			SaleID:      sale.ID,
			ProductID:   &productID,
			ProductName: p.Name,
			Quantity:    item.Quantity,
			UnitPrice:   p.Price,
			Subtotal:    p.Price.Mul(decimal.NewFromInt(int64(item.Quantity))),
		})
	}

	s.sales[sale.ID] = sale
	result := sale
	result.Items = append([]domain.SaleItem(nil), sale.Items...)
	return &result, nil
}

func (s *Store) ReverseSale(_ context.Context, saleID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sale, exists := s.sales[saleID]
	if !exists {
		return store.ErrNotFound
	}

	now := time.Now().UTC()
	for _, item := range sale.Items {
		if item.ProductID == nil {
			continue
		}
		p, alive := s.products[*item.ProductID]
		if !alive {
			continue
		}
		p.Stock += item.Quantity
		s.products[*item.ProductID] = p
		s.appendMovementLocked(*item.ProductID, domain.MovementInflow, item.Quantity, now)
	}

	delete(s.sales, saleID)
	return nil
}

func (s *Store) ListSales(_ context.Context, limit int) ([]domain.SaleSummary, error) {
	if limit < 1 {
		limit = 50
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sales := make([]domain.SaleSummary, 0, len(s.sales))
	for _, sale := range s.sales {
		sales = append(sales, domain.SaleSummary{
			ID:          sale.ID,
			OccurredAt:  sale.OccurredAt,
			Total:       sale.Total,
			Received:    sale.Received,
			Change:      sale.Change,
			Description: sale.Description,
			ItemCount:   len(sale.Items),
		})
	}
	sort.Slice(sales, func(i, j int) bool {
		if sales[i].OccurredAt.Equal(sales[j].OccurredAt) {
			return sales[i].ID > sales[j].ID
		}
		return sales[i].OccurredAt.After(sales[j].OccurredAt)
	})
	if len(sales) > limit {
		sales = sales[:limit]
	}
	return sales, nil
}

func (s *Store) GetSale(_ context.Context, id int64) (*domain.Sale, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sale, exists := s.sales[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	result := sale
	result.Items = append([]domain.SaleItem(nil), sale.Items...)
	return &result, nil
}

func (s *Store) SalesSummary(_ context.Context, from time.Time, to time.Time) (domain.SalesSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	summary := domain.SalesSummary{
		Revenue:     decimal.Zero,
		AverageSale: decimal.Zero,
	}
	for _, sale := range s.sales {
		if !inRange(sale.OccurredAt, from, to) {
			continue
		}
		summary.Sales++
		summary.Revenue = summary.Revenue.Add(sale.Total)
		for _, item := range sale.Items {
			summary.UnitsSold += int64(item.Quantity)
		}
	}
	if summary.Sales > 0 {
		summary.AverageSale = summary.Revenue.Div(decimal.NewFromInt(summary.Sales)).Round(2)
	}
	return summary, nil
}

func (s *Store) RevenueByDay(_ context.Context, from time.Time, to time.Time) ([]domain.DailyRevenue, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	byDay := make(map[string]*domain.DailyRevenue)
	for _, sale := range s.sales {
		if !inRange(sale.OccurredAt, from, to) {
			continue
		}
		day := sale.OccurredAt.UTC().Format("2006-01-02")
		entry, exists := byDay[day]
		if !exists {
			entry = &domain.DailyRevenue{Date: day, Revenue: decimal.Zero}
			byDay[day] = entry
		}
		entry.Sales++
		entry.Revenue = entry.Revenue.Add(sale.Total)
	}

	days := make([]domain.DailyRevenue, 0, len(byDay))
	for _, entry := range byDay {
		days = append(days, *entry)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Date < days[j].Date })
	return days, nil
}

func (s *Store) TopProducts(_ context.Context, from time.Time, to time.Time, limit int) ([]domain.ProductSales, error) {
	if limit < 1 {
		limit = 10
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	byName := make(map[string]*domain.ProductSales)
	for _, sale := range s.sales {
		if !inRange(sale.OccurredAt, from, to) {
			continue
		}
		for _, item := range sale.Items {
			entry, exists := byName[item.ProductName]
			if !exists {
				entry = &domain.ProductSales{ProductName: item.ProductName, Revenue: decimal.Zero}
				byName[item.ProductName] = entry
			}
			entry.UnitsSold += int64(item.Quantity)
			entry.Revenue = entry.Revenue.Add(item.Subtotal)
		}
	}

	top := make([]domain.ProductSales, 0, len(byName))
	for _, entry := range byName {
		top = append(top, *entry)
	}
	sort.Slice(top, func(i, j int) bool {
		if top[i].UnitsSold == top[j].UnitsSold {
			return top[i].ProductName < top[j].ProductName
		}
		return top[i].UnitsSold > top[j].UnitsSold
	})
	if len(top) > limit {
		top = top[:limit]
	}
	return top, nil
}

func (s *Store) PeriodTotals(_ context.Context, granularity string, limit int) ([]domain.PeriodTotal, error) {
	if granularity != domain.ComparisonMonthly && granularity != domain.ComparisonWeekly {
		return nil, store.ErrInvalidArgument
	}
	if limit < 1 {
		limit = 12
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	byPeriod := make(map[string]*domain.PeriodTotal)
	for _, sale := range s.sales {
		occurred := sale.OccurredAt.UTC()
		var period string
		if granularity == domain.ComparisonMonthly {
			period = occurred.Format("2006-01")
		} else {
			year, week := occurred.ISOWeek()
			period = fmt.Sprintf("%04d-%02d", year, week)
		}
		entry, exists := byPeriod[period]
		if !exists {
			entry = &domain.PeriodTotal{Period: period, Revenue: decimal.Zero}
			byPeriod[period] = entry
		}
		entry.Sales++
		entry.Revenue = entry.Revenue.Add(sale.Total)
	}

	totals := make([]domain.PeriodTotal, 0, len(byPeriod))
	for _, entry := range byPeriod {
		totals = append(totals, *entry)
	}
	sort.Slice(totals, func(i, j int) bool { return totals[i].Period > totals[j].Period })
	if len(totals) > limit {
		totals = totals[:limit]
	}
	return totals, nil
}

func (s *Store) StockDiscrepancies(_ context.Context) ([]domain.StockDiscrepancy, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	net := make(map[int64]int, len(s.products))
	for _, m := range s.movements {
		if m.Kind == domain.MovementInflow {
			net[m.ProductID] += m.Quantity
		} else {
			net[m.ProductID] -= m.Quantity
		}
	}

	discrepancies := make([]domain.StockDiscrepancy, 0)
	for _, p := range s.products {
		if p.Stock != net[p.ID] {
			discrepancies = append(discrepancies, domain.StockDiscrepancy{
				ProductID:   p.ID,
				ProductName: p.Name,
				Stock:       p.Stock,
				MovementNet: net[p.ID],
			})
		}
	}
	sort.Slice(discrepancies, func(i, j int) bool { return discrepancies[i].ProductID < discrepancies[j].ProductID })
	return discrepancies, nil
}

func inRange(t time.Time, from time.Time, to time.Time) bool {
	return !t.Before(from) && !t.After(to)
}

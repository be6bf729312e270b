package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/shopspring/decimal"

	"inventario/backend/internal/domain"
	"inventario/backend/internal/store"
)

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// schema mirrors the seven-table layout: catalog tables, the append-only
// movement trail, and sale headers with cascade-deleted line items. Product
// category/supplier refs are plain nullable columns (dangling refs tolerated);
// sale line items keep their snapshot when the product is later deleted.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS categories (
		id BIGSERIAL PRIMARY KEY,
		name VARCHAR(50) NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS suppliers (
		id BIGSERIAL PRIMARY KEY,
		name VARCHAR(100) NOT NULL,
		contact VARCHAR(100) NOT NULL DEFAULT ''
	)`,
	`CREATE TABLE IF NOT EXISTS products (
		id BIGSERIAL PRIMARY KEY,
		name VARCHAR(100) NOT NULL,
		price DECIMAL(10,2) NOT NULL DEFAULT 0,
		stock INTEGER NOT NULL DEFAULT 0,
		category_id BIGINT,
		supplier_id BIGINT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS special_dates (
		id BIGSERIAL PRIMARY KEY,
		product_id BIGINT NOT NULL REFERENCES products(id) ON DELETE CASCADE,
		date DATE NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS stock_movements (
		id BIGSERIAL PRIMARY KEY,
		product_id BIGINT NOT NULL REFERENCES products(id) ON DELETE CASCADE,
		kind TEXT NOT NULL CHECK (kind IN ('inflow','outflow')),
		quantity INTEGER NOT NULL CHECK (quantity > 0),
		occurred_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS sales (
		id BIGSERIAL PRIMARY KEY,
		occurred_at TIMESTAMPTZ NOT NULL,
		total DECIMAL(10,2) NOT NULL,
		received DECIMAL(10,2) NOT NULL,
		change_due DECIMAL(10,2) NOT NULL,
		description TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE TABLE IF NOT EXISTS sale_items (
		id BIGSERIAL PRIMARY KEY,
		sale_id BIGINT NOT NULL REFERENCES sales(id) ON DELETE CASCADE,
		product_id BIGINT REFERENCES products(id) ON DELETE SET NULL,
		product_name VARCHAR(100) NOT NULL,
		quantity INTEGER NOT NULL CHECK (quantity > 0),
		unit_price DECIMAL(10,2) NOT NULL,
		subtotal DECIMAL(10,2) NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_stock_movements_product ON stock_movements (product_id, occurred_at DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_sales_occurred_at ON sales (occurred_at)`,
	`CREATE INDEX IF NOT EXISTS idx_sale_items_sale ON sale_items (sale_id)`,
}

func (s *Store) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

// beginWrite opens a serializable transaction with a local statement timeout
// so a stuck operation cannot hold row locks indefinitely.
func (s *Store) beginWrite(ctx context.Context) (*sql.Tx, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx, `SET LOCAL statement_timeout = '5s'`); err != nil {
		_ = tx.Rollback()
		return nil, err
	}
	return tx, nil
}

func (s *Store) ListProducts(ctx context.Context) ([]domain.Product, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT p.id, p.name, p.price, p.stock, p.category_id, p.supplier_id,
			c.name, sp.name, p.created_at
		FROM products p
		LEFT JOIN categories c ON c.id = p.category_id
		LEFT JOIN suppliers sp ON sp.id = p.supplier_id
		ORDER BY p.id DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 128)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return products, nil
}

func (s *Store) GetProduct(ctx context.Context, id int64) (*domain.Product, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT p.id, p.name, p.price, p.stock, p.category_id, p.supplier_id,
			c.name, sp.name, p.created_at
		FROM products p
		LEFT JOIN categories c ON c.id = p.category_id
		LEFT JOIN suppliers sp ON sp.id = p.supplier_id
		WHERE p.id = $1
	`, id)

	p, err := scanProduct(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(row rowScanner) (domain.Product, error) {
	var p domain.Product
	var categoryID, supplierID sql.NullInt64
	var categoryName, supplierName sql.NullString
	err := row.Scan(&p.ID, &p.Name, &p.Price, &p.Stock, &categoryID, &supplierID, &categoryName, &supplierName, &p.CreatedAt)
	if err != nil {
		return domain.Product{}, err
	}
	if categoryID.Valid {
		p.CategoryID = &categoryID.Int64
	}
	if supplierID.Valid {
		p.SupplierID = &supplierID.Int64
	}
	p.CategoryName = categoryName.String
	p.SupplierName = supplierName.String
	p.CreatedAt = p.CreatedAt.UTC()
	return p, nil
}

func (s *Store) CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if strings.TrimSpace(product.Name) == "" || product.Price.IsNegative() || product.Stock < 0 {
		return nil, store.ErrInvalidArgument
	}

	tx, err := s.beginWrite(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	created := product
	err = tx.QueryRowContext(ctx, `
		INSERT INTO products (name, price, stock, category_id, supplier_id)
		VALUES ($1,$2,$3,$4,$5)
		RETURNING id, created_at
	`, product.Name, product.Price, product.Stock, nullID(product.CategoryID), nullID(product.SupplierID)).
		Scan(&created.ID, &created.CreatedAt)
	if err != nil {
		return nil, err
	}

	// Initial stock enters the ledger as an inflow so the movement trail
	// stays the source of truth from day one.
	if product.Stock > 0 {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO stock_movements (product_id, kind, quantity)
			VALUES ($1,$2,$3)
		`, created.ID, domain.MovementInflow, product.Stock)
		if err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	created.CreatedAt = created.CreatedAt.UTC()
	return &created, nil
}

// UpdateProduct applies a partial field update through a parameterized
// builder. Values are never interpolated into the statement text.
func (s *Store) UpdateProduct(ctx context.Context, id int64, update domain.ProductUpdateRequest) (*domain.Product, error) {
	if update.Empty() {
		return nil, fmt.Errorf("%w: no fields to update", store.ErrInvalidArgument)
	}

	assignments := make([]string, 0, 5)
	args := make([]any, 0, 6)
	args = append(args, id)

	appendField := func(column string, value any) {
		args = append(args, value)
		assignments = append(assignments, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if update.Name != nil {
		name := strings.TrimSpace(*update.Name)
		if name == "" {
			return nil, fmt.Errorf("%w: name must not be empty", store.ErrInvalidArgument)
		}
		appendField("name", name)
	}
	if update.Price != nil {
		if update.Price.IsNegative() {
			return nil, fmt.Errorf("%w: price must not be negative", store.ErrInvalidArgument)
		}
		appendField("price", *update.Price)
	}
	if update.Stock != nil {
		if *update.Stock < 0 {
			return nil, fmt.Errorf("%w: stock must not be negative", store.ErrInvalidArgument)
		}
		appendField("stock", *update.Stock)
	}
	if update.CategoryID != nil {
		appendField("category_id", *update.CategoryID)
	}
	if update.SupplierID != nil {
		appendField("supplier_id", *update.SupplierID)
	}

	query := fmt.Sprintf(`UPDATE products SET %s WHERE id = $1`, strings.Join(assignments, ", "))
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}

	return s.GetProduct(ctx, id)
}

func (s *Store) DeleteProduct(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) ListCategories(ctx context.Context) ([]domain.Category, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name FROM categories ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	categories := make([]domain.Category, 0, 32)
	for rows.Next() {
		var c domain.Category
		if err := rows.Scan(&c.ID, &c.Name); err != nil {
			return nil, err
		}
		categories = append(categories, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return categories, nil
}

func (s *Store) CreateCategory(ctx context.Context, category domain.Category) (*domain.Category, error) {
	if strings.TrimSpace(category.Name) == "" {
		return nil, store.ErrInvalidArgument
	}
	created := category
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO categories (name) VALUES ($1) RETURNING id
	`, category.Name).Scan(&created.ID)
	if err != nil {
		return nil, err
	}
	return &created, nil
}

func (s *Store) DeleteCategory(ctx context.Context, id int64) error {
	return s.deleteByID(ctx, "categories", id)
}

func (s *Store) ListSuppliers(ctx context.Context) ([]domain.Supplier, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, contact FROM suppliers ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	suppliers := make([]domain.Supplier, 0, 32)
	for rows.Next() {
		var sp domain.Supplier
		if err := rows.Scan(&sp.ID, &sp.Name, &sp.Contact); err != nil {
			return nil, err
		}
		suppliers = append(suppliers, sp)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return suppliers, nil
}

func (s *Store) CreateSupplier(ctx context.Context, supplier domain.Supplier) (*domain.Supplier, error) {
	if strings.TrimSpace(supplier.Name) == "" {
		return nil, store.ErrInvalidArgument
	}
	created := supplier
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO suppliers (name, contact) VALUES ($1,$2) RETURNING id
	`, supplier.Name, supplier.Contact).Scan(&created.ID)
	if err != nil {
		return nil, err
	}
	return &created, nil
}

func (s *Store) DeleteSupplier(ctx context.Context, id int64) error {
	return s.deleteByID(ctx, "suppliers", id)
}

func (s *Store) deleteByID(ctx context.Context, table string, id int64) error {
	if table != "categories" && table != "suppliers" {
		return fmt.Errorf("unsupported delete table")
	}
	res, err := s.db.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE id = $1`, table), id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) ListSpecialDates(ctx context.Context, productID int64) ([]domain.SpecialDate, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, product_id, date
		FROM special_dates
		WHERE product_id = $1
		ORDER BY date DESC
	`, productID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	dates := make([]domain.SpecialDate, 0, 16)
	for rows.Next() {
		var d domain.SpecialDate
		if err := rows.Scan(&d.ID, &d.ProductID, &d.Date); err != nil {
			return nil, err
		}
		d.Date = d.Date.UTC()
		dates = append(dates, d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return dates, nil
}

func (s *Store) CreateSpecialDate(ctx context.Context, productID int64, date time.Time) (*domain.SpecialDate, error) {
	var exists bool
	if err := s.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM products WHERE id = $1)`, productID).Scan(&exists); err != nil {
		return nil, err
	}
	if !exists {
		return nil, store.ErrNotFound
	}

	created := domain.SpecialDate{ProductID: productID, Date: date}
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO special_dates (product_id, date) VALUES ($1,$2) RETURNING id
	`, productID, date).Scan(&created.ID)
	if err != nil {
		return nil, err
	}
	return &created, nil
}

func (s *Store) DeleteSpecialDate(ctx context.Context, productID int64, dateID int64) error {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM special_dates WHERE id = $1 AND product_id = $2
	`, dateID, productID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) ListMovements(ctx context.Context, productID int64) ([]domain.StockMovement, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, product_id, kind, quantity, occurred_at
		FROM stock_movements
		WHERE product_id = $1
		ORDER BY occurred_at DESC, id DESC
	`, productID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	movements := make([]domain.StockMovement, 0, 64)
	for rows.Next() {
		var m domain.StockMovement
		if err := rows.Scan(&m.ID, &m.ProductID, &m.Kind, &m.Quantity, &m.OccurredAt); err != nil {
			return nil, err
		}
		m.OccurredAt = m.OccurredAt.UTC()
		movements = append(movements, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return movements, nil
}

// AdjustStock records a single inflow or outflow. The stock row is locked for
// the duration of the transaction so the availability check and the decrement
// cannot be split by a concurrent writer.
func (s *Store) AdjustStock(ctx context.Context, productID int64, kind domain.MovementKind, quantity int) (*domain.StockAdjustmentResult, error) {
	if !kind.Valid() || quantity < 1 {
		return nil, store.ErrInvalidArgument
	}

	tx, err := s.beginWrite(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var before int
	err = tx.QueryRowContext(ctx, `
		SELECT stock FROM products WHERE id = $1 FOR UPDATE
	`, productID).Scan(&before)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}

	after := before + quantity
	if kind == domain.MovementOutflow {
		if quantity > before {
			return nil, store.ErrInsufficientStock
		}
		after = before - quantity
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO stock_movements (product_id, kind, quantity)
		VALUES ($1,$2,$3)
	`, productID, kind, quantity); err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE products SET stock = $2 WHERE id = $1
	`, productID, after); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	return &domain.StockAdjustmentResult{
		ProductID:   productID,
		Kind:        kind,
		Quantity:    quantity,
		StockBefore: before,
		StockAfter:  after,
	}, nil
}

// RecordSale commits a sale header, its line items, the per-line stock
// decrements, and the outflow movements in one serializable transaction.
// All product rows are locked up front and every line is validated against
// the locked snapshot before the first write, so a mid-list failure leaves
// nothing behind.
func (s *Store) RecordSale(ctx context.Context, draft domain.SaleDraft) (*domain.Sale, error) {
	if len(draft.Items) == 0 {
		return nil, store.ErrInvalidArgument
	}

	tx, err := s.beginWrite(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	ids := uniqueProductIDs(draft.Items)
	rows, err := tx.QueryContext(ctx, `
		SELECT id, name, price, stock
		FROM products
		WHERE id = ANY($1)
		FOR UPDATE
	`, ids)
	if err != nil {
		return nil, err
	}

	type lockedProduct struct {
		name      string
		price     decimal.Decimal
		remaining int
	}
	locked := make(map[int64]*lockedProduct, len(ids))
	for rows.Next() {
		var id int64
		var p lockedProduct
		if err := rows.Scan(&id, &p.name, &p.price, &p.remaining); err != nil {
			_ = rows.Close()
			return nil, err
		}
		locked[id] = &p
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, err
	}
	_ = rows.Close()

	// Validation pass over the consistent locked snapshot. Lines for the
	// same product draw down a shared remaining count so a split cart
	// cannot oversell in aggregate.
	for _, item := range draft.Items {
		if item.Quantity < 1 {
			return nil, store.ErrInvalidArgument
		}
		p, exists := locked[item.ProductID]
		if !exists {
			return nil, fmt.Errorf("%w: product %d", store.ErrNotFound, item.ProductID)
		}
		if item.Quantity > p.remaining {
			return nil, fmt.Errorf("%w: product %q (id %d)", store.ErrInsufficientStock, p.name, item.ProductID)
		}
		p.remaining -= item.Quantity
	}

	if draft.OccurredAt.IsZero() {
		draft.OccurredAt = time.Now().UTC()
	}

	sale := domain.Sale{
		OccurredAt:  draft.OccurredAt,
		Total:       draft.Total,
		Received:    draft.Received,
		Change:      draft.Change,
		Description: draft.Description,
	}
	err = tx.QueryRowContext(ctx, `
		INSERT INTO sales (occurred_at, total, received, change_due, description)
		VALUES ($1,$2,$3,$4,$5)
		RETURNING id
	`, sale.OccurredAt, sale.Total, sale.Received, sale.Change, sale.Description).Scan(&sale.ID)
	if err != nil {
		return nil, err
	}

	sale.Items = make([]domain.SaleItem, 0, len(draft.Items))
	for _, item := range draft.Items {
		p := locked[item.ProductID]
		subtotal := p.price.Mul(decimal.NewFromInt(int64(item.Quantity)))

		line := domain.SaleItem{
			SaleID:      sale.ID,
			ProductName: p.name,
			Quantity:    item.Quantity,
			UnitPrice:   p.price,
			Subtotal:    subtotal,
		}
		productID := item.ProductID
		line.ProductID = &productID

		err = tx.QueryRowContext(ctx, `
			INSERT INTO sale_items (sale_id, product_id, product_name, quantity, unit_price, subtotal)
			VALUES ($1,$2,$3,$4,$5,$6)
			RETURNING id
		`, sale.ID, item.ProductID, p.name, item.Quantity, p.price, subtotal).Scan(&line.ID)
		if err != nil {
			return nil, err
		}

		if _, err := tx.ExecContext(ctx, `
			UPDATE products SET stock = stock - $1 WHERE id = $2
		`, item.Quantity, item.ProductID); err != nil {
			return nil, err
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO stock_movements (product_id, kind, quantity, occurred_at)
			VALUES ($1,$2,$3,$4)
		`, item.ProductID, domain.MovementOutflow, item.Quantity, sale.OccurredAt); err != nil {
			return nil, err
		}

		sale.Items = append(sale.Items, line)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &sale, nil
}

// ReverseSale credits every line's quantity back to its product, records a
// matching inflow movement, and removes the sale with its items. The original
// outflow rows stay in the trail; the reversal is a new audit event. Lines
// whose product has been deleted since the sale have no target to credit and
// are skipped.
func (s *Store) ReverseSale(ctx context.Context, saleID int64) error {
	tx, err := s.beginWrite(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var exists bool
	err = tx.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM sales WHERE id = $1 FOR UPDATE)
	`, saleID).Scan(&exists)
	if err != nil {
		return err
	}
	if !exists {
		return store.ErrNotFound
	}

	itemRows, err := tx.QueryContext(ctx, `
		SELECT product_id, quantity
		FROM sale_items
		WHERE sale_id = $1
		ORDER BY id ASC
	`, saleID)
	if err != nil {
		return err
	}
	type creditLine struct {
		productID sql.NullInt64
		quantity  int
	}
	lines := make([]creditLine, 0, 8)
	for itemRows.Next() {
		var line creditLine
		if err := itemRows.Scan(&line.productID, &line.quantity); err != nil {
			_ = itemRows.Close()
			return err
		}
		lines = append(lines, line)
	}
	if err := itemRows.Err(); err != nil {
		_ = itemRows.Close()
		return err
	}
	_ = itemRows.Close()

	for _, line := range lines {
		if !line.productID.Valid {
			continue
		}
		res, err := tx.ExecContext(ctx, `
			UPDATE products SET stock = stock + $1 WHERE id = $2
		`, line.quantity, line.productID.Int64)
		if err != nil {
			return err
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 0 {
			continue
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO stock_movements (product_id, kind, quantity)
			VALUES ($1,$2,$3)
		`, line.productID.Int64, domain.MovementInflow, line.quantity); err != nil {
			return err
		}
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM sales WHERE id = $1`, saleID); err != nil {
		return err
	}

	return tx.Commit()
}

func (s *Store) ListSales(ctx context.Context, limit int) ([]domain.SaleSummary, error) {
	if limit < 1 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT s.id, s.occurred_at, s.total, s.received, s.change_due, s.description,
			COUNT(si.id)
		FROM sales s
		LEFT JOIN sale_items si ON si.sale_id = s.id
		GROUP BY s.id, s.occurred_at, s.total, s.received, s.change_due, s.description
		ORDER BY s.occurred_at DESC, s.id DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sales := make([]domain.SaleSummary, 0, limit)
	for rows.Next() {
		var sale domain.SaleSummary
		if err := rows.Scan(&sale.ID, &sale.OccurredAt, &sale.Total, &sale.Received, &sale.Change, &sale.Description, &sale.ItemCount); err != nil {
			return nil, err
		}
		sale.OccurredAt = sale.OccurredAt.UTC()
		sales = append(sales, sale)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return sales, nil
}

func (s *Store) GetSale(ctx context.Context, id int64) (*domain.Sale, error) {
	var sale domain.Sale
	err := s.db.QueryRowContext(ctx, `
		SELECT id, occurred_at, total, received, change_due, description
		FROM sales
		WHERE id = $1
	`, id).Scan(&sale.ID, &sale.OccurredAt, &sale.Total, &sale.Received, &sale.Change, &sale.Description)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	sale.OccurredAt = sale.OccurredAt.UTC()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, sale_id, product_id, product_name, quantity, unit_price, subtotal
		FROM sale_items
		WHERE sale_id = $1
		ORDER BY id ASC
	`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]domain.SaleItem, 0, 8)
	for rows.Next() {
		var item domain.SaleItem
		var productID sql.NullInt64
		if err := rows.Scan(&item.ID, &item.SaleID, &productID, &item.ProductName, &item.Quantity, &item.UnitPrice, &item.Subtotal); err != nil {
			return nil, err
		}
		if productID.Valid {
			item.ProductID = &productID.Int64
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	sale.Items = items

	return &sale, nil
}

func (s *Store) SalesSummary(ctx context.Context, from time.Time, to time.Time) (domain.SalesSummary, error) {
	var summary domain.SalesSummary
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(id), COALESCE(SUM(total), 0), COALESCE(AVG(total), 0)
		FROM sales
		WHERE occurred_at BETWEEN $1 AND $2
	`, from, to).Scan(&summary.Sales, &summary.Revenue, &summary.AverageSale)
	if err != nil {
		return domain.SalesSummary{}, err
	}

	err = s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(si.quantity), 0)
		FROM sale_items si
		JOIN sales s ON s.id = si.sale_id
		WHERE s.occurred_at BETWEEN $1 AND $2
	`, from, to).Scan(&summary.UnitsSold)
	if err != nil {
		return domain.SalesSummary{}, err
	}
	summary.AverageSale = summary.AverageSale.Round(2)

	return summary, nil
}

func (s *Store) RevenueByDay(ctx context.Context, from time.Time, to time.Time) ([]domain.DailyRevenue, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT TO_CHAR(occurred_at AT TIME ZONE 'UTC', 'YYYY-MM-DD') AS day,
			COUNT(id), COALESCE(SUM(total), 0)
		FROM sales
		WHERE occurred_at BETWEEN $1 AND $2
		GROUP BY day
		ORDER BY day ASC
	`, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	days := make([]domain.DailyRevenue, 0, 31)
	for rows.Next() {
		var d domain.DailyRevenue
		if err := rows.Scan(&d.Date, &d.Sales, &d.Revenue); err != nil {
			return nil, err
		}
		days = append(days, d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return days, nil
}

// TopProducts groups by the denormalized name snapshot so products deleted
// after the fact still show up in historical rankings.
func (s *Store) TopProducts(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.ProductSales, error) {
	if limit < 1 {
		limit = 10
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT si.product_name, COALESCE(SUM(si.quantity), 0), COALESCE(SUM(si.subtotal), 0)
		FROM sale_items si
		JOIN sales s ON s.id = si.sale_id
		WHERE s.occurred_at BETWEEN $1 AND $2
		GROUP BY si.product_name
		ORDER BY 2 DESC
		LIMIT $3
	`, from, to, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	top := make([]domain.ProductSales, 0, limit)
	for rows.Next() {
		var p domain.ProductSales
		if err := rows.Scan(&p.ProductName, &p.UnitsSold, &p.Revenue); err != nil {
			return nil, err
		}
		top = append(top, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return top, nil
}

func (s *Store) PeriodTotals(ctx context.Context, granularity string, limit int) ([]domain.PeriodTotal, error) {
	if limit < 1 {
		limit = 12
	}

	format := "YYYY-MM"
	if granularity == domain.ComparisonWeekly {
		format = "IYYY-IW"
	} else if granularity != domain.ComparisonMonthly {
		return nil, store.ErrInvalidArgument
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT TO_CHAR(occurred_at AT TIME ZONE 'UTC', $1) AS period,
			COUNT(id), COALESCE(SUM(total), 0)
		FROM sales
		GROUP BY period
		ORDER BY period DESC
		LIMIT $2
	`, format, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	totals := make([]domain.PeriodTotal, 0, limit)
	for rows.Next() {
		var p domain.PeriodTotal
		if err := rows.Scan(&p.Period, &p.Sales, &p.Revenue); err != nil {
			return nil, err
		}
		totals = append(totals, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return totals, nil
}

func (s *Store) StockDiscrepancies(ctx context.Context) ([]domain.StockDiscrepancy, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT p.id, p.name, p.stock,
			COALESCE(SUM(CASE WHEN m.kind = 'inflow' THEN m.quantity ELSE -m.quantity END), 0) AS net
		FROM products p
		LEFT JOIN stock_movements m ON m.product_id = p.id
		GROUP BY p.id, p.name, p.stock
		HAVING p.stock <> COALESCE(SUM(CASE WHEN m.kind = 'inflow' THEN m.quantity ELSE -m.quantity END), 0)
		ORDER BY p.id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	discrepancies := make([]domain.StockDiscrepancy, 0, 8)
	for rows.Next() {
		var d domain.StockDiscrepancy
		if err := rows.Scan(&d.ProductID, &d.ProductName, &d.Stock, &d.MovementNet); err != nil {
			return nil, err
		}
		discrepancies = append(discrepancies, d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return discrepancies, nil
}

func uniqueProductIDs(items []domain.SaleLineRequest) []int64 {
	seen := make(map[int64]struct{}, len(items))
	ids := make([]int64, 0, len(items))
	for _, item := range items {
		if _, ok := seen[item.ProductID]; ok {
			continue
		}
		seen[item.ProductID] = struct{}{}
		ids = append(ids, item.ProductID)
	}
	return ids
}

func nullID(id *int64) any {
	if id == nil {
		return nil
	}
	return *id
}

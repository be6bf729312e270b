package postgres

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"inventario/backend/internal/domain"
)

func TestSaleRoundTripRestocksInventory(t *testing.T) {
	databaseURL := os.Getenv("INVENTARIO_TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("set INVENTARIO_TEST_DATABASE_URL to run postgres integration test")
	}

	ctx := context.Background()
	s, err := New(ctx, databaseURL)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(func() {
		_ = s.Close()
	})

	if err := s.EnsureSchema(ctx); err != nil {
		t.Fatalf("ensure schema: %v", err)
	}

	name := fmt.Sprintf("it-roundtrip-%d", time.Now().UnixNano())
	product, err := s.CreateProduct(ctx, domain.Product{
		Name:  name,
		Price: decimal.RequireFromString("25.00"),
		Stock: 10,
	})
	if err != nil {
		t.Fatalf("create product: %v", err)
	}
	t.Cleanup(func() {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM sale_items WHERE product_name = $1`, name)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM sales WHERE description = $1`, name)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, product.ID)
	})

	sale, err := s.RecordSale(ctx, domain.SaleDraft{
		Items:       []domain.SaleLineRequest{{ProductID: product.ID, Quantity: 2}},
		Total:       decimal.RequireFromString("50.00"),
		Received:    decimal.RequireFromString("50.00"),
		Change:      decimal.Zero,
		Description: name,
	})
	if err != nil {
		t.Fatalf("record sale: %v", err)
	}
	if len(sale.Items) != 1 || !sale.Items[0].Subtotal.Equal(decimal.RequireFromString("50.00")) {
		t.Fatalf("unexpected sale items: %+v", sale.Items)
	}

	after, err := s.GetProduct(ctx, product.ID)
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	if after.Stock != 8 {
		t.Fatalf("expected stock 8 after sale, got %d", after.Stock)
	}

	if err := s.ReverseSale(ctx, sale.ID); err != nil {
		t.Fatalf("reverse sale: %v", err)
	}

	restored, err := s.GetProduct(ctx, product.ID)
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	if restored.Stock != 10 {
		t.Fatalf("expected stock restored to 10, got %d", restored.Stock)
	}

	movements, err := s.ListMovements(ctx, product.ID)
	if err != nil {
		t.Fatalf("list movements: %v", err)
	}
	if len(movements) != 3 {
		t.Fatalf("expected seed inflow + sale outflow + reversal inflow, got %d movements", len(movements))
	}
}

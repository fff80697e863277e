package store

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/soyeahso/orderbot/internal/domain"
)

// SQLiteCatalog implements conversation.Catalog over the products table.
type SQLiteCatalog struct {
	db *DB
}

// NewSQLiteCatalog creates a catalog using the given database.
func NewSQLiteCatalog(db *DB) *SQLiteCatalog {
	return &SQLiteCatalog{db: db}
}

// sampleProducts is the demo catalog installed by Seed.
var sampleProducts = []domain.Product{
	{Name: "T-Shirt", Description: "Cotton T-Shirt - Various Colors", UnitPrice: decimal.RequireFromString("25.00"), Category: "Clothing"},
	{Name: "Jeans", Description: "Denim Jeans - Classic Fit", UnitPrice: decimal.RequireFromString("65.00"), Category: "Clothing"},
	{Name: "Sneakers", Description: "Comfortable Running Shoes", UnitPrice: decimal.RequireFromString("85.00"), Category: "Footwear"},
	{Name: "Backpack", Description: "Durable School/Work Backpack", UnitPrice: decimal.RequireFromString("45.00"), Category: "Accessories"},
	{Name: "Smartphone Case", Description: "Protective Phone Case", UnitPrice: decimal.RequireFromString("15.00"), Category: "Electronics"},
}

// Seed installs the sample products when the catalog is empty. It reports
// whether anything was inserted.
func (c *SQLiteCatalog) Seed(ctx context.Context) (bool, error) {
	var n int
	if err := c.db.sql.QueryRowContext(ctx, `SELECT COUNT(*) FROM products`).Scan(&n); err != nil {
		return false, fmt.Errorf("counting products: %w", err)
	}
	if n > 0 {
		return false, nil
	}
	for _, p := range sampleProducts {
		if _, err := c.Add(ctx, p); err != nil {
			return false, err
		}
	}
	c.db.log.Info().Int("count", len(sampleProducts)).Msg("seeded sample catalog")
	return true, nil
}

// Add inserts an available product and returns it with its new ID.
func (c *SQLiteCatalog) Add(ctx context.Context, p domain.Product) (domain.Product, error) {
	res, err := c.db.sql.ExecContext(ctx,
		`INSERT INTO products (name, description, price, category) VALUES (?, ?, ?, ?)`,
		p.Name, p.Description, p.UnitPrice.StringFixed(2), p.Category,
	)
	if err != nil {
		return p, fmt.Errorf("adding product %q: %w", p.Name, err)
	}
	p.ID, err = res.LastInsertId()
	return p, err
}

// SetAvailable toggles whether a product is offered.
func (c *SQLiteCatalog) SetAvailable(ctx context.Context, id int64, available bool) error {
	flag := 0
	if available {
		flag = 1
	}
	res, err := c.db.sql.ExecContext(ctx, `UPDATE products SET is_available = ? WHERE id = ?`, flag, id)
	if err != nil {
		return fmt.Errorf("updating product %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("product %d not found", id)
	}
	return nil
}

// ListAvailable returns offered products ordered by category, then name.
func (c *SQLiteCatalog) ListAvailable(ctx context.Context) ([]domain.Product, error) {
	rows, err := c.db.sql.QueryContext(ctx,
		`SELECT id, name, description, price, category
		 FROM products WHERE is_available = 1
		 ORDER BY category, name`)
	if err != nil {
		return nil, fmt.Errorf("listing products: %w", err)
	}
	defer rows.Close()

	var out []domain.Product
	for rows.Next() {
		var p domain.Product
		if err := rows.Scan(&p.ID, &p.Name, &p.Description, &p.UnitPrice, &p.Category); err != nil {
			return nil, fmt.Errorf("scanning product: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

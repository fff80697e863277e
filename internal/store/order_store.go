package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/soyeahso/orderbot/internal/domain"
	"github.com/soyeahso/orderbot/internal/orders"
)

// OrderStore implements orders.Repository.
type OrderStore struct {
	db *DB
}

// NewOrderStore creates an order store using the given database.
func NewOrderStore(db *DB) *OrderStore {
	return &OrderStore{db: db}
}

// CreateOrder upserts the customer and writes the order with all its lines
// in one transaction. Nothing is written when any statement fails.
func (s *OrderStore) CreateOrder(ctx context.Context, o *domain.Order) error {
	err := s.db.inTx(ctx, func(tx *sql.Tx) error {
		customerID, err := upsertCustomer(ctx, tx, o.CustomerPhone, o.CustomerName, o.CreatedAt)
		if err != nil {
			return err
		}

		res, err := tx.ExecContext(ctx,
			`INSERT INTO orders (order_number, customer_id, customer_phone, customer_name,
				total_amount, payment_method, status, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			o.OrderNumber, customerID, o.CustomerPhone, o.CustomerName,
			o.TotalAmount.StringFixed(2), string(o.PaymentMethod), string(o.Status),
			formatTime(o.CreatedAt), formatTime(o.UpdatedAt),
		)
		if isUniqueViolation(err, "orders.order_number") {
			return fmt.Errorf("%w: %s", orders.ErrDuplicateOrderNumber, o.OrderNumber)
		}
		if err != nil {
			return fmt.Errorf("inserting order: %w", err)
		}
		orderID, err := res.LastInsertId()
		if err != nil {
			return err
		}

		stmt, err := tx.PrepareContext(ctx,
			`INSERT INTO order_items (order_id, product_id, product_name, quantity, unit_price, line_total)
			 VALUES (?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("preparing line insert: %w", err)
		}
		defer stmt.Close()

		for i, l := range o.Lines {
			if _, err := stmt.ExecContext(ctx, orderID, l.ProductID, l.Name, l.Quantity,
				l.UnitPrice.StringFixed(2), l.LineTotal.StringFixed(2)); err != nil {
				return fmt.Errorf("inserting line %d: %w", i+1, err)
			}
		}

		o.ID, o.CustomerID = orderID, customerID
		return nil
	})
	return err
}

// upsertCustomer creates the customer or refreshes it. An empty name never
// overwrites a stored one.
func upsertCustomer(ctx context.Context, tx *sql.Tx, phone, name string, at time.Time) (int64, error) {
	var id int64
	err := tx.QueryRowContext(ctx,
		`INSERT INTO customers (phone_number, name, created_at, updated_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(phone_number) DO UPDATE SET
			name = CASE WHEN excluded.name <> '' THEN excluded.name ELSE customers.name END,
			updated_at = excluded.updated_at
		 RETURNING id`,
		phone, strings.TrimSpace(name), formatTime(at), formatTime(at),
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("upserting customer: %w", err)
	}
	return id, nil
}

const orderColumns = `id, order_number, customer_id, customer_phone, customer_name,
	total_amount, payment_method, status, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (domain.Order, error) {
	var (
		o                    domain.Order
		method, status       string
		createdAt, updatedAt string
	)
	err := row.Scan(&o.ID, &o.OrderNumber, &o.CustomerID, &o.CustomerPhone, &o.CustomerName,
		&o.TotalAmount, &method, &status, &createdAt, &updatedAt)
	o.PaymentMethod = domain.PaymentMethod(method)
	o.Status = domain.OrderStatus(status)
	o.CreatedAt, o.UpdatedAt = parseTime(createdAt), parseTime(updatedAt)
	return o, err
}

// GetByNumber returns the order with its lines.
func (s *OrderStore) GetByNumber(ctx context.Context, number string) (*domain.Order, error) {
	o, err := scanOrder(s.db.sql.QueryRowContext(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE order_number = ?`, number))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", orders.ErrOrderNotFound, number)
	}
	if err != nil {
		return nil, fmt.Errorf("loading order %s: %w", number, err)
	}

	rows, err := s.db.sql.QueryContext(ctx,
		`SELECT product_id, product_name, quantity, unit_price, line_total
		 FROM order_items WHERE order_id = ? ORDER BY id`, o.ID)
	if err != nil {
		return nil, fmt.Errorf("loading order lines: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var l domain.LineItem
		if err := rows.Scan(&l.ProductID, &l.Name, &l.Quantity, &l.UnitPrice, &l.LineTotal); err != nil {
			return nil, fmt.Errorf("scanning order line: %w", err)
		}
		o.Lines = append(o.Lines, l)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &o, nil
}

// ListOrders returns orders newest first, without lines.
func (s *OrderStore) ListOrders(ctx context.Context, f orders.Filter) ([]domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders`
	var args []any
	if f.Status != "" {
		query += ` WHERE status = ?`
		args = append(args, string(f.Status))
	}
	query += ` ORDER BY created_at DESC, id DESC`
	if f.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, f.Limit)
	}
	return s.queryOrders(ctx, query, args...)
}

// ListByPhone returns a customer's most recent orders, without lines.
func (s *OrderStore) ListByPhone(ctx context.Context, phone string, limit int) ([]domain.Order, error) {
	if limit <= 0 {
		limit = 5
	}
	return s.queryOrders(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE customer_phone = ?
		 ORDER BY created_at DESC, id DESC LIMIT ?`, phone, limit)
}

func (s *OrderStore) queryOrders(ctx context.Context, query string, args ...any) ([]domain.Order, error) {
	rows, err := s.db.sql.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing orders: %w", err)
	}
	defer rows.Close()

	var out []domain.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning order: %w", err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// AdvanceStatus moves an order from one status to another. It fails with
// orders.ErrInvalidTransition when the stored status is no longer from.
func (s *OrderStore) AdvanceStatus(ctx context.Context, number string, from, to domain.OrderStatus, at time.Time) error {
	res, err := s.db.sql.ExecContext(ctx,
		`UPDATE orders SET status = ?, updated_at = ? WHERE order_number = ? AND status = ?`,
		string(to), formatTime(at), number, string(from))
	if err != nil {
		return fmt.Errorf("updating order %s: %w", number, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s is no longer %s", orders.ErrInvalidTransition, number, from)
	}
	return nil
}

// GetCustomer returns the customer stored for phone.
func (s *OrderStore) GetCustomer(ctx context.Context, phone string) (*domain.Customer, error) {
	var (
		c                    domain.Customer
		createdAt, updatedAt string
	)
	err := s.db.sql.QueryRowContext(ctx,
		`SELECT id, phone_number, name, created_at, updated_at FROM customers WHERE phone_number = ?`, phone,
	).Scan(&c.ID, &c.Phone, &c.Name, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading customer: %w", err)
	}
	c.CreatedAt, c.UpdatedAt = parseTime(createdAt), parseTime(updatedAt)
	return &c, nil
}

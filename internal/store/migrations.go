package store

// migration represents a single schema migration.
type migration struct {
	Version int
	Name    string
	SQL     string
}

// migrations is the ordered list of all schema migrations.
var migrations = []migration{
	{
		Version: 1,
		Name:    "create conversation sessions",
		SQL: `
			CREATE TABLE sessions (
				identity    TEXT PRIMARY KEY,
				step        TEXT NOT NULL,
				draft       TEXT NOT NULL,
				created_at  TEXT NOT NULL,
				updated_at  TEXT NOT NULL
			);
		`,
	},
	{
		Version: 2,
		Name:    "create catalog, customers and orders",
		SQL: `
			CREATE TABLE products (
				id            INTEGER PRIMARY KEY AUTOINCREMENT,
				name          TEXT NOT NULL,
				description   TEXT NOT NULL DEFAULT '',
				price         TEXT NOT NULL,
				category      TEXT NOT NULL DEFAULT '',
				is_available  INTEGER NOT NULL DEFAULT 1,
				created_at    TEXT NOT NULL DEFAULT (datetime('now'))
			);

			CREATE INDEX idx_products_listing ON products (is_available, category, name);

			CREATE TABLE customers (
				id            INTEGER PRIMARY KEY AUTOINCREMENT,
				phone_number  TEXT NOT NULL UNIQUE,
				name          TEXT NOT NULL DEFAULT '',
				created_at    TEXT NOT NULL,
				updated_at    TEXT NOT NULL
			);

			CREATE TABLE orders (
				id              INTEGER PRIMARY KEY AUTOINCREMENT,
				order_number    TEXT NOT NULL UNIQUE,
				customer_id     INTEGER NOT NULL REFERENCES customers(id),
				customer_phone  TEXT NOT NULL,
				customer_name   TEXT NOT NULL,
				total_amount    TEXT NOT NULL,
				payment_method  TEXT NOT NULL CHECK (payment_method IN ('instant', '30_days')),
				status          TEXT NOT NULL DEFAULT 'pending'
				                CHECK (status IN ('pending', 'confirmed', 'processing', 'delivered', 'cancelled')),
				created_at      TEXT NOT NULL,
				updated_at      TEXT NOT NULL
			);

			CREATE INDEX idx_orders_customer ON orders (customer_phone, created_at);
			CREATE INDEX idx_orders_status ON orders (status, created_at);

			CREATE TABLE order_items (
				id            INTEGER PRIMARY KEY AUTOINCREMENT,
				order_id      INTEGER NOT NULL REFERENCES orders(id) ON DELETE CASCADE,
				product_id    INTEGER NOT NULL,
				product_name  TEXT NOT NULL,
				quantity      INTEGER NOT NULL CHECK (quantity > 0),
				unit_price    TEXT NOT NULL,
				line_total    TEXT NOT NULL
			);

			CREATE INDEX idx_order_items_order ON order_items (order_id, id);
		`,
	},
}

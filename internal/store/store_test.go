package store

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soyeahso/orderbot/internal/conversation"
	"github.com/soyeahso/orderbot/internal/domain"
	"github.com/soyeahso/orderbot/internal/logging"
	"github.com/soyeahso/orderbot/internal/orders"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(":memory:", logging.New(nil, "silent"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func countRows(t *testing.T, db *DB, table string) int {
	t.Helper()
	var n int
	require.NoError(t, db.sql.QueryRow("SELECT COUNT(*) FROM "+table).Scan(&n))
	return n
}

// --- DB/Migration tests ---

func TestMigrations_AppliedOnce(t *testing.T) {
	db := testDB(t)
	assert.Equal(t, len(migrations), countRows(t, db, "schema_migrations"))

	require.NoError(t, db.migrate())
	assert.Equal(t, len(migrations), countRows(t, db, "schema_migrations"))
}

func TestSchema_TablesExist(t *testing.T) {
	db := testDB(t)
	for _, table := range []string{"sessions", "products", "customers", "orders", "order_items"} {
		var name string
		err := db.sql.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		require.NoError(t, err, "table %s should exist", table)
	}
}

func TestOpen_File(t *testing.T) {
	path := t.TempDir() + "/nested/orderbot.db"
	db, err := Open(path, logging.New(nil, "silent"))
	require.NoError(t, err)
	require.NoError(t, db.Ping(context.Background()))
	require.NoError(t, db.Close())

	db, err = Open(path, logging.New(nil, "silent"))
	require.NoError(t, err)
	defer db.Close()
	assert.Equal(t, len(migrations), countRows(t, db, "schema_migrations"))
}

// --- Session store tests ---

func TestSessionStore_GetAbsent(t *testing.T) {
	ss := NewSQLiteSessionStore(testDB(t))
	sess, err := ss.Get(context.Background(), "+1000")
	require.NoError(t, err)
	assert.Nil(t, sess)
}

func TestSessionStore_PutGetReplaceDelete(t *testing.T) {
	ctx := context.Background()
	ss := NewSQLiteSessionStore(testDB(t))

	jeans := domain.Product{ID: 2, Name: "Jeans", UnitPrice: decimal.RequireFromString("65.00")}
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, ss.Put(ctx, &domain.Session{
		Identity:  "+1000",
		Step:      domain.StepSpecifyQuantity,
		Draft:     domain.Draft{SelectedProduct: &jeans, AvailableProducts: []domain.Product{jeans}},
		UpdatedAt: at,
	}))

	got, err := ss.Get(ctx, "+1000")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, domain.StepSpecifyQuantity, got.Step)
	require.NotNil(t, got.Draft.SelectedProduct)
	assert.True(t, got.Draft.SelectedProduct.UnitPrice.Equal(jeans.UnitPrice))
	assert.True(t, got.UpdatedAt.Equal(at))

	require.NoError(t, ss.Put(ctx, &domain.Session{
		Identity: "+1000",
		Step:     domain.StepAddMoreProducts,
		Draft:    domain.Draft{Items: []domain.LineItem{domain.NewLineItem(jeans, 3)}},
	}))
	got, err = ss.Get(ctx, "+1000")
	require.NoError(t, err)
	assert.Equal(t, domain.StepAddMoreProducts, got.Step)
	assert.Nil(t, got.Draft.SelectedProduct)
	n, err := ss.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.NoError(t, ss.Delete(ctx, "+1000"))
	require.NoError(t, ss.Delete(ctx, "+1000"))
	got, err = ss.Get(ctx, "+1000")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSessionStore_CorruptRows(t *testing.T) {
	ctx := context.Background()
	db := testDB(t)
	ss := NewSQLiteSessionStore(db)
	now := formatTime(time.Now())

	_, err := db.sql.Exec(`INSERT INTO sessions VALUES ('bad-step', 'checkout', '{"version":1,"draft":{}}', ?, ?)`, now, now)
	require.NoError(t, err)
	_, err = db.sql.Exec(`INSERT INTO sessions VALUES ('bad-draft', 'main_menu', '{"items":[]}', ?, ?)`, now, now)
	require.NoError(t, err)

	_, err = ss.Get(ctx, "bad-step")
	assert.ErrorIs(t, err, conversation.ErrCorruptSession)
	_, err = ss.Get(ctx, "bad-draft")
	assert.ErrorIs(t, err, conversation.ErrCorruptSession)
}

func TestSessionStore_PurgeIdle(t *testing.T) {
	ctx := context.Background()
	ss := NewSQLiteSessionStore(testDB(t))
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, ss.Put(ctx, &domain.Session{Identity: "old", Step: domain.StepMainMenu, UpdatedAt: base}))
	require.NoError(t, ss.Put(ctx, &domain.Session{Identity: "new", Step: domain.StepMainMenu, UpdatedAt: base.Add(90 * time.Minute)}))

	n, err := ss.PurgeIdle(ctx, base.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	got, err := ss.Get(ctx, "new")
	require.NoError(t, err)
	assert.NotNil(t, got)
}

// --- Catalog tests ---

func TestCatalog_SeedAndOrdering(t *testing.T) {
	ctx := context.Background()
	cat := NewSQLiteCatalog(testDB(t))

	seeded, err := cat.Seed(ctx)
	require.NoError(t, err)
	assert.True(t, seeded)
	seeded, err = cat.Seed(ctx)
	require.NoError(t, err)
	assert.False(t, seeded)

	products, err := cat.ListAvailable(ctx)
	require.NoError(t, err)
	names := make([]string, len(products))
	for i, p := range products {
		names[i] = p.Name
	}
	assert.Equal(t, []string{"Backpack", "Jeans", "T-Shirt", "Smartphone Case", "Sneakers"}, names)
	assert.Equal(t, "65.00", products[1].UnitPrice.StringFixed(2))
}

func TestCatalog_Availability(t *testing.T) {
	ctx := context.Background()
	cat := NewSQLiteCatalog(testDB(t))

	p, err := cat.Add(ctx, domain.Product{Name: "Mug", UnitPrice: decimal.RequireFromString("9.99"), Category: "Kitchen"})
	require.NoError(t, err)
	require.NoError(t, cat.SetAvailable(ctx, p.ID, false))

	products, err := cat.ListAvailable(ctx)
	require.NoError(t, err)
	assert.Empty(t, products)
	assert.Error(t, cat.SetAvailable(ctx, 999, true))
}

// --- Order store tests ---

func testOrder(number, phone, name string, lines ...domain.LineItem) *domain.Order {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	return &domain.Order{
		OrderNumber:   number,
		CustomerPhone: phone,
		CustomerName:  name,
		Lines:         lines,
		TotalAmount:   domain.SumLines(lines),
		PaymentMethod: domain.PaymentInstant,
		Status:        domain.StatusPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

func jeansLine(qty int) domain.LineItem {
	return domain.NewLineItem(domain.Product{ID: 2, Name: "Jeans", UnitPrice: decimal.RequireFromString("65.00")}, qty)
}

func TestOrderStore_CreateAndGet(t *testing.T) {
	ctx := context.Background()
	db := testDB(t)
	os := NewOrderStore(db)

	o := testOrder("ORD-20240501-AAAA0001", "+1000", "Jane Doe", jeansLine(3), jeansLine(1))
	require.NoError(t, os.CreateOrder(ctx, o))
	assert.NotZero(t, o.ID)
	assert.NotZero(t, o.CustomerID)

	got, err := os.GetByNumber(ctx, o.OrderNumber)
	require.NoError(t, err)
	assert.Equal(t, "260.00", got.TotalAmount.StringFixed(2))
	assert.Equal(t, domain.StatusPending, got.Status)
	assert.Equal(t, domain.PaymentInstant, got.PaymentMethod)
	require.Len(t, got.Lines, 2)
	assert.Equal(t, 3, got.Lines[0].Quantity)
	assert.Equal(t, "195.00", got.Lines[0].LineTotal.StringFixed(2))

	_, err = os.GetByNumber(ctx, "ORD-NOPE")
	assert.ErrorIs(t, err, orders.ErrOrderNotFound)
}

func TestOrderStore_DuplicateNumber(t *testing.T) {
	ctx := context.Background()
	db := testDB(t)
	os := NewOrderStore(db)

	require.NoError(t, os.CreateOrder(ctx, testOrder("ORD-DUP", "+1000", "Jane", jeansLine(1))))
	err := os.CreateOrder(ctx, testOrder("ORD-DUP", "+2000", "John", jeansLine(1)))
	assert.ErrorIs(t, err, orders.ErrDuplicateOrderNumber)

	assert.Equal(t, 1, countRows(t, db, "orders"))
	assert.Equal(t, 1, countRows(t, db, "order_items"))
	assert.Equal(t, 1, countRows(t, db, "customers"))
}

func TestOrderStore_RollbackOnLineFailure(t *testing.T) {
	ctx := context.Background()
	db := testDB(t)
	_, err := db.sql.Exec(`CREATE TRIGGER fail_line BEFORE INSERT ON order_items
		WHEN NEW.product_name = 'boom'
		BEGIN SELECT RAISE(ABORT, 'boom'); END;`)
	require.NoError(t, err)

	boom := domain.NewLineItem(domain.Product{ID: 9, Name: "boom", UnitPrice: decimal.NewFromInt(1)}, 1)
	err = NewOrderStore(db).CreateOrder(ctx, testOrder("ORD-BOOM", "+1000", "Jane", jeansLine(1), boom))
	require.Error(t, err)

	assert.Zero(t, countRows(t, db, "orders"))
	assert.Zero(t, countRows(t, db, "order_items"))
	assert.Zero(t, countRows(t, db, "customers"))
}

func TestOrderStore_CustomerUpsertKeepsName(t *testing.T) {
	ctx := context.Background()
	os := NewOrderStore(testDB(t))

	first := testOrder("ORD-1", "+1000", "Jane Doe", jeansLine(1))
	require.NoError(t, os.CreateOrder(ctx, first))
	second := testOrder("ORD-2", "+1000", "", jeansLine(1))
	require.NoError(t, os.CreateOrder(ctx, second))
	assert.Equal(t, first.CustomerID, second.CustomerID)

	c, err := os.GetCustomer(ctx, "+1000")
	require.NoError(t, err)
	assert.Equal(t, "Jane Doe", c.Name)

	require.NoError(t, os.CreateOrder(ctx, testOrder("ORD-3", "+1000", "Jane Smith", jeansLine(1))))
	c, err = os.GetCustomer(ctx, "+1000")
	require.NoError(t, err)
	assert.Equal(t, "Jane Smith", c.Name)

	missing, err := os.GetCustomer(ctx, "+9999")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestOrderStore_ListingAndAdvance(t *testing.T) {
	ctx := context.Background()
	os := NewOrderStore(testDB(t))

	for i := 1; i <= 3; i++ {
		o := testOrder(fmt.Sprintf("ORD-%d", i), "+1000", "Jane", jeansLine(i))
		o.CreatedAt = o.CreatedAt.Add(time.Duration(i) * time.Minute)
		require.NoError(t, os.CreateOrder(ctx, o))
	}
	require.NoError(t, os.CreateOrder(ctx, testOrder("ORD-OTHER", "+2000", "John", jeansLine(1))))

	mine, err := os.ListByPhone(ctx, "+1000", 2)
	require.NoError(t, err)
	require.Len(t, mine, 2)
	assert.Equal(t, "ORD-3", mine[0].OrderNumber)
	assert.Equal(t, "ORD-2", mine[1].OrderNumber)

	at := time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC)
	require.NoError(t, os.AdvanceStatus(ctx, "ORD-1", domain.StatusPending, domain.StatusConfirmed, at))
	err = os.AdvanceStatus(ctx, "ORD-1", domain.StatusPending, domain.StatusConfirmed, at)
	assert.ErrorIs(t, err, orders.ErrInvalidTransition)

	confirmed, err := os.ListOrders(ctx, orders.Filter{Status: domain.StatusConfirmed})
	require.NoError(t, err)
	require.Len(t, confirmed, 1)
	assert.Equal(t, "ORD-1", confirmed[0].OrderNumber)
	assert.True(t, confirmed[0].UpdatedAt.Equal(at))

	all, err := os.ListOrders(ctx, orders.Filter{Limit: 10})
	require.NoError(t, err)
	assert.Len(t, all, 4)
}

func TestManagerOverStore_ConcurrentCommits(t *testing.T) {
	ctx := context.Background()
	db := testDB(t)
	m := orders.NewManager(NewOrderStore(db), orders.Config{}, logging.New(nil, "silent"))

	var wg sync.WaitGroup
	errs := make(chan error, 10)
	for i := range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := m.Commit(ctx, orders.CommitRequest{
				Phone:         fmt.Sprintf("+%d", 1000+i%3),
				CustomerName:  "Customer",
				Items:         []domain.LineItem{jeansLine(1 + i)},
				PaymentMethod: domain.PaymentNet30,
			})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	assert.Equal(t, 10, countRows(t, db, "orders"))
	assert.Equal(t, 10, countRows(t, db, "order_items"))
	assert.Equal(t, 3, countRows(t, db, "customers"))
}

func TestManagerOverStore_RetriesCollision(t *testing.T) {
	ctx := context.Background()
	db := testDB(t)
	suffixes := []string{"SAME0000", "SAME0000", "FRESH000"}
	var i int
	m := orders.NewManager(NewOrderStore(db), orders.Config{}, logging.New(nil, "silent"),
		orders.WithSuffixSource(func() string { s := suffixes[i]; i++; return s }))

	req := orders.CommitRequest{Phone: "+1000", CustomerName: "Jane", Items: []domain.LineItem{jeansLine(1)}, PaymentMethod: domain.PaymentInstant}
	first, err := m.Commit(ctx, req)
	require.NoError(t, err)
	second, err := m.Commit(ctx, req)
	require.NoError(t, err)

	assert.NotEqual(t, first.OrderNumber, second.OrderNumber)
	assert.Contains(t, second.OrderNumber, "FRESH000")
	assert.Equal(t, 2, countRows(t, db, "orders"))
}

// Package orders turns completed drafts into committed orders and manages
// their status afterwards.
package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/soyeahso/orderbot/internal/domain"
	"github.com/soyeahso/orderbot/internal/hooks"
	"github.com/soyeahso/orderbot/internal/logging"
	"github.com/soyeahso/orderbot/internal/metrics"
)

var (
	ErrDuplicateOrderNumber = errors.New("orders: duplicate order number")
	ErrOrderNotFound        = errors.New("orders: order not found")
	ErrInvalidTransition    = errors.New("orders: invalid status transition")
	ErrInvalidOrder         = errors.New("orders: invalid order")
)

// CommitRequest is a finished draft ready to become an order.
type CommitRequest struct {
	Phone         string
	CustomerName  string
	Items         []domain.LineItem
	PaymentMethod domain.PaymentMethod
}

// Filter narrows order listings. Zero values mean no constraint.
type Filter struct {
	Status domain.OrderStatus
	Limit  int
}

// Repository persists orders. CreateOrder must write the customer, the order
// and all lines atomically, fill in the generated IDs, and report an order
// number collision as ErrDuplicateOrderNumber.
type Repository interface {
	CreateOrder(ctx context.Context, o *domain.Order) error
	GetByNumber(ctx context.Context, number string) (*domain.Order, error)
	ListOrders(ctx context.Context, f Filter) ([]domain.Order, error)
	ListByPhone(ctx context.Context, phone string, limit int) ([]domain.Order, error)
	AdvanceStatus(ctx context.Context, number string, from, to domain.OrderStatus, at time.Time) error
}

// Config tunes order numbering and commit retries.
type Config struct {
	NumberPrefix   string
	CommitAttempts int
}

// Manager is the order transaction manager.
type Manager struct {
	repo    Repository
	cfg     Config
	log     *logging.Logger
	hooks   *hooks.Manager
	metrics *metrics.Metrics
	tracer  trace.Tracer
	now     func() time.Time
	suffix  func() string
}

// Option configures a Manager.
type Option func(*Manager)

// WithHooks emits order events on h.
func WithHooks(h *hooks.Manager) Option { return func(m *Manager) { m.hooks = h } }

// WithMetrics records commits on mt.
func WithMetrics(mt *metrics.Metrics) Option { return func(m *Manager) { m.metrics = mt } }

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option { return func(m *Manager) { m.now = now } }

// WithSuffixSource overrides the random order number suffix generator.
func WithSuffixSource(fn func() string) Option { return func(m *Manager) { m.suffix = fn } }

// NewManager creates a Manager over repo.
func NewManager(repo Repository, cfg Config, log *logging.Logger, opts ...Option) *Manager {
	if cfg.NumberPrefix == "" {
		cfg.NumberPrefix = "ORD"
	}
	if cfg.CommitAttempts < 1 {
		cfg.CommitAttempts = 5
	}
	m := &Manager{
		repo:   repo,
		cfg:    cfg,
		log:    log.Sub("orders"),
		tracer: otel.Tracer("github.com/soyeahso/orderbot/internal/orders"),
		now:    time.Now,
		suffix: RandomSuffix,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// RandomSuffix returns 8 uppercase hex characters taken from a random UUID.
func RandomSuffix() string {
	return strings.ToUpper(uuid.NewString()[:8])
}

// NewOrderNumber formats PREFIX-YYYYMMDD-SUFFIX using the UTC day of at.
func NewOrderNumber(prefix string, at time.Time, suffix string) string {
	return fmt.Sprintf("%s-%s-%s", prefix, at.UTC().Format("20060102"), suffix)
}

// Commit validates req, recomputes every amount and persists the order in a
// single transaction. Order number collisions are retried with a fresh
// suffix up to the configured number of attempts.
func (m *Manager) Commit(ctx context.Context, req CommitRequest) (*domain.Order, error) {
	ctx, span := m.tracer.Start(ctx, "orders.Commit", trace.WithAttributes(
		attribute.Int("order.lines", len(req.Items)),
		attribute.String("order.payment_method", string(req.PaymentMethod)),
	))
	defer span.End()

	order, err := m.build(req)
	if err != nil {
		m.metrics.CommitFailed("invalid")
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	for attempt := 1; ; attempt++ {
		order.OrderNumber = NewOrderNumber(m.cfg.NumberPrefix, order.CreatedAt, m.suffix())
		err = m.repo.CreateOrder(ctx, order)
		if err == nil {
			break
		}
		if errors.Is(err, ErrDuplicateOrderNumber) && attempt < m.cfg.CommitAttempts {
			m.log.Warn().Str("orderNumber", order.OrderNumber).Int("attempt", attempt).Msg("order number collision, retrying")
			continue
		}
		reason := "store"
		if errors.Is(err, ErrDuplicateOrderNumber) {
			reason = "duplicate_number"
		}
		m.metrics.CommitFailed(reason)
		span.RecordError(err)
		span.SetStatus(codes.Error, "commit failed")
		return nil, fmt.Errorf("committing order: %w", err)
	}

	span.SetAttributes(attribute.String("order.number", order.OrderNumber))
	m.metrics.OrderCommitted()
	m.log.Info().
		Str("orderNumber", order.OrderNumber).
		Str("phone", order.CustomerPhone).
		Str("total", order.TotalAmount.StringFixed(2)).
		Msg("order committed")
	// Subscribers publish to brokers and sockets; none of that may delay the
	// caller, which still has to close the conversation.
	published := *order
	m.hooks.EmitAsync(ctx, hooks.Payload{Event: hooks.EventOrderCommitted, Identity: order.CustomerPhone, Order: &published})
	return order, nil
}

func (m *Manager) build(req CommitRequest) (*domain.Order, error) {
	phone := strings.TrimSpace(req.Phone)
	name := strings.TrimSpace(req.CustomerName)
	switch {
	case phone == "":
		return nil, fmt.Errorf("%w: missing customer phone", ErrInvalidOrder)
	case utf8.RuneCountInString(name) < 2:
		return nil, fmt.Errorf("%w: customer name too short", ErrInvalidOrder)
	case len(req.Items) == 0:
		return nil, fmt.Errorf("%w: no items", ErrInvalidOrder)
	case !req.PaymentMethod.Valid():
		return nil, fmt.Errorf("%w: unknown payment method %q", ErrInvalidOrder, req.PaymentMethod)
	}

	lines := make([]domain.LineItem, len(req.Items))
	for i, item := range req.Items {
		if item.Quantity <= 0 {
			return nil, fmt.Errorf("%w: line %d has quantity %d", ErrInvalidOrder, i+1, item.Quantity)
		}
		if item.UnitPrice.IsNegative() {
			return nil, fmt.Errorf("%w: line %d has negative price", ErrInvalidOrder, i+1)
		}
		item.LineTotal = item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity)))
		lines[i] = item
	}

	now := m.now().UTC()
	return &domain.Order{
		CustomerPhone: phone,
		CustomerName:  name,
		Lines:         lines,
		TotalAmount:   domain.SumLines(lines),
		PaymentMethod: req.PaymentMethod,
		Status:        domain.StatusPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}

// Advance moves an order to a later status.
func (m *Manager) Advance(ctx context.Context, number string, to domain.OrderStatus) (*domain.Order, error) {
	o, err := m.repo.GetByNumber(ctx, number)
	if err != nil {
		return nil, err
	}
	if !o.Status.CanAdvanceTo(to) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, o.Status, to)
	}

	from, at := o.Status, m.now().UTC()
	if err := m.repo.AdvanceStatus(ctx, number, from, to, at); err != nil {
		return nil, err
	}
	o.Status, o.UpdatedAt = to, at

	m.log.Info().Str("orderNumber", number).Str("from", string(from)).Str("to", string(to)).Msg("order status advanced")
	published := *o
	m.hooks.EmitAsync(ctx, hooks.Payload{
		Event:    hooks.EventOrderStatusChanged,
		Identity: o.CustomerPhone,
		Order:    &published,
		Data:     map[string]any{"from": string(from)},
	})
	return o, nil
}

// Get returns the order with the given number, including its lines.
func (m *Manager) Get(ctx context.Context, number string) (*domain.Order, error) {
	return m.repo.GetByNumber(ctx, number)
}

// List returns orders newest first.
func (m *Manager) List(ctx context.Context, f Filter) ([]domain.Order, error) {
	return m.repo.ListOrders(ctx, f)
}

// ListByPhone returns a customer's most recent orders.
func (m *Manager) ListByPhone(ctx context.Context, phone string, limit int) ([]domain.Order, error) {
	return m.repo.ListByPhone(ctx, phone, limit)
}

// Package events publishes order lifecycle events to RabbitMQ.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/soyeahso/orderbot/internal/domain"
	"github.com/soyeahso/orderbot/internal/hooks"
	"github.com/soyeahso/orderbot/internal/logging"
)

// RoutingKeyStatusChanged is used for order status transitions.
const RoutingKeyStatusChanged = "order.status_changed"

// Publisher sends an encoded event under a routing key.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, body []byte) error
}

// AMQP is a Publisher on a durable topic exchange.
type AMQP struct {
	mu       sync.Mutex
	conn     *amqp.Connection
	ch       *amqp.Channel
	exchange string
}

// Dial connects to url and declares exchange.
func Dial(url, exchange string) (*AMQP, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("amqp dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("amqp channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		conn.Close()
		return nil, fmt.Errorf("declaring exchange %s: %w", exchange, err)
	}
	return &AMQP{conn: conn, ch: ch, exchange: exchange}, nil
}

func (a *AMQP) Publish(ctx context.Context, routingKey string, body []byte) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.ch.PublishWithContext(ctx, a.exchange, routingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now(),
		Body:         body,
	})
}

// Close closes the channel and the connection.
func (a *AMQP) Close() error {
	if a.ch != nil {
		_ = a.ch.Close()
	}
	if a.conn != nil {
		return a.conn.Close()
	}
	return nil
}

// OrderEvent is the message body published for order events.
type OrderEvent struct {
	Type          string               `json:"type"`
	OrderNumber   string               `json:"orderNumber"`
	CustomerPhone string               `json:"customerPhone"`
	CustomerName  string               `json:"customerName"`
	TotalAmount   string               `json:"totalAmount"`
	PaymentMethod domain.PaymentMethod `json:"paymentMethod"`
	Status        domain.OrderStatus   `json:"status"`
	Lines         []Line               `json:"lines,omitempty"`
	OccurredAt    time.Time            `json:"occurredAt"`
}

// Line is one order line in an OrderEvent.
type Line struct {
	ProductID int64  `json:"productId"`
	Name      string `json:"name"`
	Quantity  int    `json:"quantity"`
	UnitPrice string `json:"unitPrice"`
	LineTotal string `json:"lineTotal"`
}

// NewOrderEvent snapshots o. Amounts are fixed two-decimal strings.
func NewOrderEvent(typ string, o *domain.Order, at time.Time) OrderEvent {
	ev := OrderEvent{
		Type:          typ,
		OrderNumber:   o.OrderNumber,
		CustomerPhone: o.CustomerPhone,
		CustomerName:  o.CustomerName,
		TotalAmount:   o.TotalAmount.StringFixed(2),
		PaymentMethod: o.PaymentMethod,
		Status:        o.Status,
		OccurredAt:    at.UTC(),
	}
	for _, l := range o.Lines {
		ev.Lines = append(ev.Lines, Line{
			ProductID: l.ProductID,
			Name:      l.Name,
			Quantity:  l.Quantity,
			UnitPrice: l.UnitPrice.StringFixed(2),
			LineTotal: l.LineTotal.StringFixed(2),
		})
	}
	return ev
}

// Relay forwards order hooks to a Publisher.
type Relay struct {
	pub        Publisher
	createdKey string
	log        *logging.Logger
	now        func() time.Time
}

// NewRelay creates a Relay publishing committed orders under createdKey.
func NewRelay(pub Publisher, createdKey string, log *logging.Logger) *Relay {
	if createdKey == "" {
		createdKey = "order.created"
	}
	return &Relay{pub: pub, createdKey: createdKey, log: log.Sub("events"), now: time.Now}
}

// Register subscribes the relay to order hooks on h.
func (r *Relay) Register(h *hooks.Manager) {
	h.On(hooks.EventOrderCommitted, "amqp", r.handle(r.createdKey))
	h.On(hooks.EventOrderStatusChanged, "amqp", r.handle(RoutingKeyStatusChanged))
}

func (r *Relay) handle(routingKey string) hooks.Handler {
	return func(ctx context.Context, p hooks.Payload) error {
		if p.Order == nil {
			return nil
		}
		body, err := json.Marshal(NewOrderEvent(routingKey, p.Order, r.now()))
		if err != nil {
			return fmt.Errorf("encoding %s: %w", routingKey, err)
		}
		if err := r.pub.Publish(ctx, routingKey, body); err != nil {
			return fmt.Errorf("publishing %s for %s: %w", routingKey, p.Order.OrderNumber, err)
		}
		r.log.Debug().Str("key", routingKey).Str("order", p.Order.OrderNumber).Msg("order event published")
		return nil
	}
}

// Package hooks dispatches orderbot lifecycle events to registered handlers.
package hooks

import (
	"context"
	"sync"

	"github.com/soyeahso/orderbot/internal/domain"
	"github.com/soyeahso/orderbot/internal/logging"
)

// Event names for the hook system.
const (
	EventMessageReceived    = "message_received"
	EventSessionCleared     = "session_cleared"
	EventOrderCommitted     = "order_committed"
	EventOrderStatusChanged = "order_status_changed"
	EventGatewayStart       = "gateway_start"
	EventGatewayStop        = "gateway_stop"
)

// AllEvents lists all known hook event names.
var AllEvents = []string{
	EventMessageReceived,
	EventSessionCleared,
	EventOrderCommitted,
	EventOrderStatusChanged,
	EventGatewayStart,
	EventGatewayStop,
}

// Payload carries event data to hook handlers. Order is set for order
// events, Identity and ChannelID for conversation events.
type Payload struct {
	Event     string         `json:"event"`
	Identity  string         `json:"identity,omitempty"`
	ChannelID string         `json:"channelId,omitempty"`
	Order     *domain.Order  `json:"order,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
}

// Handler is a function that handles a hook event.
// Returning an error logs the failure but does not stop processing.
type Handler func(ctx context.Context, p Payload) error

// Manager manages hook registrations and dispatches events.
type Manager struct {
	mu       sync.RWMutex
	handlers map[string][]namedHandler
	log      *logging.Logger
}

type namedHandler struct {
	name    string
	handler Handler
}

// NewManager creates a hook manager.
func NewManager(log *logging.Logger) *Manager {
	return &Manager{
		handlers: make(map[string][]namedHandler),
		log:      log.Sub("hooks"),
	}
}

// On registers a handler for the given event.
func (m *Manager) On(event, name string, handler Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[event] = append(m.handlers[event], namedHandler{name: name, handler: handler})
	m.log.Debug().Str("event", event).Str("handler", name).Msg("hook registered")
}

// Off removes all handlers with the given name from the event.
func (m *Manager) Off(event, name string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	kept := m.handlers[event][:0:0]
	for _, h := range m.handlers[event] {
		if h.name != name {
			kept = append(kept, h)
		}
	}
	m.handlers[event] = kept
}

func (m *Manager) snapshot(event string) []namedHandler {
	if m == nil {
		return nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]namedHandler(nil), m.handlers[event]...)
}

// Emit dispatches p to every handler of p.Event in registration order.
// Handler errors are logged and never abort the caller. A nil Manager is a
// no-op so components can run without hooks.
func (m *Manager) Emit(ctx context.Context, p Payload) {
	for _, h := range m.snapshot(p.Event) {
		if err := h.handler(ctx, p); err != nil {
			m.log.Warn().Err(err).Str("event", p.Event).Str("handler", h.name).Msg("hook handler error")
		}
	}
}

// EmitAsync runs each handler on its own goroutine and returns immediately.
// Handlers receive a context detached from ctx's cancellation.
func (m *Manager) EmitAsync(ctx context.Context, p Payload) {
	ctx = context.WithoutCancel(ctx)
	for _, h := range m.snapshot(p.Event) {
		go func(h namedHandler) {
			if err := h.handler(ctx, p); err != nil {
				m.log.Warn().Err(err).Str("event", p.Event).Str("handler", h.name).Msg("async hook handler error")
			}
		}(h)
	}
}

// Count returns the number of handlers registered for an event.
func (m *Manager) Count(event string) int {
	return len(m.snapshot(event))
}

// Events returns the events that have at least one handler registered.
func (m *Manager) Events() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	events := make([]string, 0, len(m.handlers))
	for event, handlers := range m.handlers {
		if len(handlers) > 0 {
			events = append(events, event)
		}
	}
	return events
}

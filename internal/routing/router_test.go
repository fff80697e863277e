package routing

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soyeahso/orderbot/internal/channel"
	"github.com/soyeahso/orderbot/internal/conversation"
	"github.com/soyeahso/orderbot/internal/domain"
	"github.com/soyeahso/orderbot/internal/hooks"
	"github.com/soyeahso/orderbot/internal/logging"
	"github.com/soyeahso/orderbot/internal/metrics"
	"github.com/soyeahso/orderbot/internal/orders"
)

func testLogger() *logging.Logger {
	return logging.New(nil, "silent")
}

// mockChannel is a test double for domain.Channel.
type mockChannel struct {
	id      string
	caps    domain.ChannelCapabilities
	mu      sync.Mutex
	sent    []domain.OutboundMessage
	handler func(domain.InboundEvent)
}

func (m *mockChannel) ID() string                                { return m.id }
func (m *mockChannel) Capabilities() domain.ChannelCapabilities { return m.caps }
func (m *mockChannel) Start(_ context.Context) error             { return nil }
func (m *mockChannel) Stop(_ context.Context) error              { return nil }
func (m *mockChannel) Send(_ context.Context, msg domain.OutboundMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, msg)
	return nil
}
func (m *mockChannel) OnMessage(handler func(domain.InboundEvent)) {
	m.handler = handler
}
func (m *mockChannel) messages() []domain.OutboundMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.OutboundMessage(nil), m.sent...)
}

type staticCatalog []domain.Product

func (c staticCatalog) ListAvailable(context.Context) ([]domain.Product, error) { return c, nil }

type nopCommitter struct{}

func (nopCommitter) Commit(context.Context, orders.CommitRequest) (*domain.Order, error) {
	return nil, orders.ErrInvalidOrder
}

func newTestEngine() *conversation.Engine {
	catalog := staticCatalog{{ID: 1, Name: "T-Shirt", UnitPrice: decimal.RequireFromString("25"), Category: "Clothing"}}
	return conversation.NewEngine(conversation.Config{Business: conversation.Business{Name: "Test Shop"}},
		conversation.NewMemorySessionStore(), catalog, nopCommitter{}, testLogger())
}

func event(id, channelID, text string) domain.InboundEvent {
	return domain.InboundEvent{
		ID:        id,
		ChannelID: channelID,
		SenderID:  "+1000",
		Kind:      domain.EventKindText,
		Text:      text,
		Timestamp: time.Now(),
	}
}

func TestRouter_HandleInbound_RepliesOnOriginChannel(t *testing.T) {
	log := testLogger()
	wa := &mockChannel{id: "whatsapp", caps: domain.ChannelCapabilities{Choices: true}}
	reg := channel.NewRegistry(log)
	reg.Register(wa)

	router := NewRouter(reg, newTestEngine(), Config{}, log)
	router.HandleInbound(context.Background(), event("wamid.1", "whatsapp", "hi"))

	sent := wa.messages()
	require.Len(t, sent, 1)
	assert.Equal(t, "+1000", sent[0].To)
	assert.Equal(t, "whatsapp", sent[0].ChannelID)
	assert.Equal(t, "wamid.1", sent[0].ReplyToID)
	assert.Equal(t, domain.PromptChoice, sent[0].Prompt.Kind)
	assert.Contains(t, sent[0].Prompt.Body, "Test Shop")
}

func TestRouter_HandleInbound_FlattensForTextChannels(t *testing.T) {
	log := testLogger()
	irc := &mockChannel{id: "irc"}
	reg := channel.NewRegistry(log)
	reg.Register(irc)

	router := NewRouter(reg, newTestEngine(), Config{}, log)
	router.HandleInbound(context.Background(), event("1", "irc", "hi"))

	sent := irc.messages()
	require.Len(t, sent, 1)
	assert.Equal(t, domain.PromptText, sent[0].Prompt.Kind)
	assert.Contains(t, sent[0].Prompt.Body, "[browse_products]")
}

type countingHandler struct {
	mu  sync.Mutex
	evs []domain.InboundEvent
}

func (h *countingHandler) Handle(_ context.Context, ev domain.InboundEvent, _ conversation.Notifier) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.evs = append(h.evs, ev)
	return nil
}

func (h *countingHandler) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.evs)
}

func TestRouter_DropsRedeliveries(t *testing.T) {
	log := testLogger()
	m := metrics.New("test")
	h := &countingHandler{}
	router := NewRouter(channel.NewRegistry(log), h, Config{DedupSize: 16, DedupTTL: time.Minute}, log, WithMetrics(m))

	ctx := context.Background()
	router.HandleInbound(ctx, event("wamid.1", "whatsapp", "hi"))
	router.HandleInbound(ctx, event("wamid.1", "whatsapp", "hi"))
	// same id on another channel is a different event
	router.HandleInbound(ctx, event("wamid.1", "irc", "hi"))
	// events without ids are never deduplicated
	router.HandleInbound(ctx, event("", "irc", "hi"))
	router.HandleInbound(ctx, event("", "irc", "hi"))

	assert.Equal(t, 4, h.count())
	expected := `
# HELP test_duplicate_events_total Redelivered events dropped by the dedup filter.
# TYPE test_duplicate_events_total counter
test_duplicate_events_total{channel="whatsapp"} 1
`
	assert.NoError(t, testutil.GatherAndCompare(m.Gatherer(), strings.NewReader(expected), "test_duplicate_events_total"))
}

func TestRouter_DedupConcurrent(t *testing.T) {
	log := testLogger()
	h := &countingHandler{}
	router := NewRouter(channel.NewRegistry(log), h, Config{}, log)

	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			router.HandleInbound(context.Background(), event("wamid.9", "whatsapp", "hi"))
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, h.count())
}

func TestRouter_EmitsMessageReceived(t *testing.T) {
	log := testLogger()
	hm := hooks.NewManager(log)
	var got []hooks.Payload
	hm.On(hooks.EventMessageReceived, "test", func(_ context.Context, p hooks.Payload) error {
		got = append(got, p)
		return nil
	})
	router := NewRouter(channel.NewRegistry(log), &countingHandler{}, Config{}, log, WithHooks(hm))
	router.HandleInbound(context.Background(), event("e1", "irc", "hi"))

	require.Len(t, got, 1)
	assert.Equal(t, "+1000", got[0].Identity)
	assert.Equal(t, "irc", got[0].ChannelID)
}

func TestRouter_HandleInbound_NoHandler(t *testing.T) {
	log := testLogger()
	ch := &mockChannel{id: "irc"}
	reg := channel.NewRegistry(log)
	reg.Register(ch)

	router := NewRouter(reg, nil, Config{}, log)
	router.HandleInbound(context.Background(), event("m3", "irc", "hi"))
	assert.Empty(t, ch.messages())
}

func TestRouter_HandleInbound_ChannelNotFound(t *testing.T) {
	log := testLogger()
	router := NewRouter(channel.NewRegistry(log), newTestEngine(), Config{}, log)

	// delivery fails; the router logs and returns
	router.HandleInbound(context.Background(), event("m4", "nonexistent", "hi"))
}

func TestRouter_Wire(t *testing.T) {
	log := testLogger()
	ch := &mockChannel{id: "irc"}
	reg := channel.NewRegistry(log)
	reg.Register(ch)

	router := NewRouter(reg, newTestEngine(), Config{}, log)
	router.Wire()
	require.NotNil(t, ch.handler)

	ch.handler(event("w1", "irc", "hi"))
	assert.Eventually(t, func() bool { return len(ch.messages()) == 1 }, time.Second, 10*time.Millisecond)
}

// orderedHandler records the text of each event it handles and can hold
// one sender's turns until released.
type orderedHandler struct {
	mu    sync.Mutex
	seen  map[string][]string
	block map[string]chan struct{}
}

func (h *orderedHandler) Handle(_ context.Context, ev domain.InboundEvent, _ conversation.Notifier) error {
	h.mu.Lock()
	gate := h.block[ev.SenderID]
	h.mu.Unlock()
	if gate != nil {
		<-gate
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.seen[ev.SenderID] = append(h.seen[ev.SenderID], ev.Text)
	return nil
}

func (h *orderedHandler) texts(sender string) []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.seen[sender]...)
}

func TestRouter_Wire_PreservesSenderOrder(t *testing.T) {
	log := testLogger()
	ch := &mockChannel{id: "whatsapp"}
	reg := channel.NewRegistry(log)
	reg.Register(ch)
	h := &orderedHandler{seen: map[string][]string{}}

	router := NewRouter(reg, h, Config{}, log)
	router.Wire()

	var want []string
	for i := range 20 {
		text := fmt.Sprintf("%d", i)
		want = append(want, text)
		ch.handler(event(fmt.Sprintf("wamid.%d", i), "whatsapp", text))
	}

	require.Eventually(t, func() bool { return len(h.texts("+1000")) == 20 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, want, h.texts("+1000"))
	assert.Eventually(t, func() bool { return router.activeMailboxes() == 0 }, time.Second, 5*time.Millisecond)
}

func TestRouter_Enqueue_SendersDoNotBlockEachOther(t *testing.T) {
	log := testLogger()
	gate := make(chan struct{})
	h := &orderedHandler{seen: map[string][]string{}, block: map[string]chan struct{}{"+1000": gate}}
	router := NewRouter(channel.NewRegistry(log), h, Config{}, log)
	ctx := context.Background()

	router.Enqueue(ctx, event("a1", "whatsapp", "first"))
	router.Enqueue(ctx, event("a2", "whatsapp", "second"))
	other := event("b1", "whatsapp", "hello")
	other.SenderID = "+2000"
	router.Enqueue(ctx, other)

	require.Eventually(t, func() bool { return len(h.texts("+2000")) == 1 }, time.Second, 5*time.Millisecond)
	assert.Empty(t, h.texts("+1000"))
	assert.Eventually(t, func() bool { return router.activeMailboxes() == 1 }, time.Second, 5*time.Millisecond)

	close(gate)
	require.Eventually(t, func() bool { return len(h.texts("+1000")) == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"first", "second"}, h.texts("+1000"))
}

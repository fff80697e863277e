// Package routing connects messaging channels to the conversation engine.
package routing

import (
	"context"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/soyeahso/orderbot/internal/channel"
	"github.com/soyeahso/orderbot/internal/conversation"
	"github.com/soyeahso/orderbot/internal/domain"
	"github.com/soyeahso/orderbot/internal/hooks"
	"github.com/soyeahso/orderbot/internal/logging"
	"github.com/soyeahso/orderbot/internal/metrics"
)

// Handler runs one conversation turn and delivers its prompts through n.
type Handler interface {
	Handle(ctx context.Context, ev domain.InboundEvent, n conversation.Notifier) error
}

// Config bounds the duplicate-delivery filter.
type Config struct {
	DedupSize int
	DedupTTL  time.Duration
}

// Router routes inbound events to the engine and replies back to the
// originating channel. Redelivered events are dropped.
type Router struct {
	channels *channel.Registry
	handler  Handler
	hooks    *hooks.Manager
	metrics  *metrics.Metrics
	log      *logging.Logger

	seenMu sync.Mutex
	seen   *expirable.LRU[string, struct{}]

	mbMu      sync.Mutex
	mailboxes map[string]*mailbox
}

// mailbox queues one sender's events. A single worker drains it and
// removes it once empty.
type mailbox struct {
	queue []domain.InboundEvent
}

// Option configures a Router.
type Option func(*Router)

func WithHooks(h *hooks.Manager) Option { return func(r *Router) { r.hooks = h } }

func WithMetrics(m *metrics.Metrics) Option { return func(r *Router) { r.metrics = m } }

// NewRouter creates a message router.
func NewRouter(channels *channel.Registry, handler Handler, cfg Config, log *logging.Logger, opts ...Option) *Router {
	if cfg.DedupSize < 1 {
		cfg.DedupSize = 4096
	}
	if cfg.DedupTTL <= 0 {
		cfg.DedupTTL = 10 * time.Minute
	}
	r := &Router{
		channels: channels,
		handler:  handler,
		log:      log.Sub("routing"),
		seen:     expirable.NewLRU[string, struct{}](cfg.DedupSize, nil, cfg.DedupTTL),

		mailboxes: make(map[string]*mailbox),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// duplicate records ev and reports whether it was already seen. Events
// without an ID are never treated as duplicates.
func (r *Router) duplicate(ev domain.InboundEvent) bool {
	if ev.ID == "" {
		return false
	}
	key := ev.ChannelID + ":" + ev.ID

	r.seenMu.Lock()
	defer r.seenMu.Unlock()
	if r.seen.Contains(key) {
		return true
	}
	r.seen.Add(key, struct{}{})
	return false
}

// HandleInbound processes an inbound event from any channel.
func (r *Router) HandleInbound(ctx context.Context, ev domain.InboundEvent) {
	r.metrics.InboundEvent(ev.ChannelID)
	if r.duplicate(ev) {
		r.metrics.DuplicateEvent(ev.ChannelID)
		r.log.Debug().Str("channel", ev.ChannelID).Str("id", ev.ID).Msg("dropping redelivered event")
		return
	}

	r.log.Info().
		Str("channel", ev.ChannelID).
		Str("from", ev.SenderID).
		Str("kind", string(ev.Kind)).
		Msg("routing inbound event")

	r.hooks.Emit(ctx, hooks.Payload{
		Event:     hooks.EventMessageReceived,
		Identity:  ev.SenderID,
		ChannelID: ev.ChannelID,
		Data:      map[string]any{"id": ev.ID, "kind": string(ev.Kind)},
	})

	if r.handler == nil {
		r.log.Warn().Msg("no conversation handler configured, dropping event")
		return
	}

	n := &channelNotifier{channels: r.channels, channelID: ev.ChannelID, replyTo: ev.ID}
	if err := r.handler.Handle(ctx, ev, n); err != nil {
		r.log.Error().Err(err).
			Str("channel", ev.ChannelID).
			Str("from", ev.SenderID).
			Msg("turn did not complete cleanly")
	}
}

// Wire registers the router as the event handler on all channels. Events
// from one sender are handled one at a time in arrival order; different
// senders proceed in parallel.
func (r *Router) Wire() {
	for _, id := range r.channels.List() {
		ch, ok := r.channels.Get(id)
		if !ok {
			continue
		}
		ch.OnMessage(func(ev domain.InboundEvent) {
			r.Enqueue(context.Background(), ev)
		})
		r.log.Debug().Str("channel", id).Msg("wired message handler")
	}
}

// Enqueue appends ev to its sender's mailbox and starts a worker for the
// mailbox if none is running. It never blocks on the handler.
func (r *Router) Enqueue(ctx context.Context, ev domain.InboundEvent) {
	key := ev.SenderID

	r.mbMu.Lock()
	mb, running := r.mailboxes[key]
	if !running {
		mb = &mailbox{}
		r.mailboxes[key] = mb
	}
	mb.queue = append(mb.queue, ev)
	r.mbMu.Unlock()

	if !running {
		go r.drain(ctx, key, mb)
	}
}

func (r *Router) drain(ctx context.Context, key string, mb *mailbox) {
	for {
		r.mbMu.Lock()
		if len(mb.queue) == 0 {
			delete(r.mailboxes, key)
			r.mbMu.Unlock()
			return
		}
		ev := mb.queue[0]
		mb.queue[0] = domain.InboundEvent{}
		mb.queue = mb.queue[1:]
		r.mbMu.Unlock()

		r.HandleInbound(ctx, ev)
	}
}

// activeMailboxes reports how many senders have queued or running events.
func (r *Router) activeMailboxes() int {
	r.mbMu.Lock()
	defer r.mbMu.Unlock()
	return len(r.mailboxes)
}

// channelNotifier delivers prompts back through the channel an event came from.
type channelNotifier struct {
	channels  *channel.Registry
	channelID string
	replyTo   string
}

func (n *channelNotifier) Notify(ctx context.Context, to string, p domain.Prompt) error {
	return n.channels.Deliver(ctx, domain.OutboundMessage{
		ChannelID: n.channelID,
		To:        to,
		Prompt:    p,
		ReplyToID: n.replyTo,
	})
}

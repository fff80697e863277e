package conversation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/soyeahso/orderbot/internal/domain"
	"github.com/soyeahso/orderbot/internal/hooks"
	"github.com/soyeahso/orderbot/internal/logging"
	"github.com/soyeahso/orderbot/internal/metrics"
	"github.com/soyeahso/orderbot/internal/orders"
)

// ErrNoIdentity is returned for events without a sender.
var ErrNoIdentity = errors.New("conversation: event has no sender identity")

// Config tunes the dialogue.
type Config struct {
	Business Business
	// PageSize is the number of products shown per catalog listing.
	PageSize int
	// IdleTimeout discards sessions untouched for longer. Zero disables it.
	IdleTimeout  time.Duration
	RecentOrders int
}

// Engine drives conversations. Turns for the same identity are serialized;
// different identities proceed in parallel.
type Engine struct {
	cfg       Config
	sessions  SessionStore
	catalog   Catalog
	committer Committer
	orders    OrderLookup
	receipts  ReceiptIssuer
	hooks     *hooks.Manager
	metrics   *metrics.Metrics
	log       *logging.Logger
	tracer    trace.Tracer
	now       func() time.Time
	locks     *keyedMutex
}

// Option configures an Engine.
type Option func(*Engine)

// WithOrderLookup enables the "my orders" menu entry.
func WithOrderLookup(l OrderLookup) Option { return func(e *Engine) { e.orders = l } }

// WithReceipts sends a receipt document after each committed order.
func WithReceipts(r ReceiptIssuer) Option { return func(e *Engine) { e.receipts = r } }

func WithHooks(h *hooks.Manager) Option { return func(e *Engine) { e.hooks = h } }

func WithMetrics(m *metrics.Metrics) Option { return func(e *Engine) { e.metrics = m } }

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option { return func(e *Engine) { e.now = now } }

// NewEngine creates an Engine.
func NewEngine(cfg Config, sessions SessionStore, catalog Catalog, committer Committer, log *logging.Logger, opts ...Option) *Engine {
	if cfg.PageSize < 1 {
		cfg.PageSize = 5
	}
	if cfg.RecentOrders < 1 {
		cfg.RecentOrders = 5
	}
	e := &Engine{
		cfg:       cfg,
		sessions:  sessions,
		catalog:   catalog,
		committer: committer,
		log:       log.Sub("conversation"),
		tracer:    otel.Tracer("github.com/soyeahso/orderbot/internal/conversation"),
		now:       time.Now,
		locks:     newKeyedMutex(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Handle runs one turn for ev and delivers the resulting prompts through n,
// in order. The session is persisted before anything is sent.
func (e *Engine) Handle(ctx context.Context, ev domain.InboundEvent, n Notifier) error {
	prompts, err := e.Turn(ctx, ev)
	if err != nil {
		return err
	}
	var errs []error
	for i, p := range prompts {
		if err := n.Notify(ctx, ev.SenderID, p); err != nil {
			e.log.Warn().Err(err).Str("identity", ev.SenderID).Int("prompt", i).Msg("failed to deliver prompt")
			errs = append(errs, fmt.Errorf("prompt %d: %w", i, err))
		}
	}
	return errors.Join(errs...)
}

// Turn applies ev to the sender's session and returns the prompts to send.
// Storage failures are logged and answered with an apology rather than
// returned.
func (e *Engine) Turn(ctx context.Context, ev domain.InboundEvent) ([]domain.Prompt, error) {
	identity := ev.SenderID
	if identity == "" {
		return nil, ErrNoIdentity
	}
	start := e.now()
	defer e.metrics.ObserveTurn(start)

	unlock := e.locks.Lock(identity)
	defer unlock()

	ctx, span := e.tracer.Start(ctx, "conversation.Turn", trace.WithAttributes(
		attribute.String("channel.id", ev.ChannelID),
		attribute.String("event.kind", string(ev.Kind)),
	))
	defer span.End()

	log := e.log.With("identity", identity)

	if isRestart(ev.Input()) {
		return e.restart(ctx, log, ev), nil
	}

	t := &turn{event: ev, identity: identity, step: domain.StepStart}
	sess, err := e.load(ctx, log, identity)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		log.Error().Err(err).Msg("failed to load session")
		return e.abandon(ctx, log, identity), nil
	}
	if sess != nil {
		t.step = sess.Step
		t.draft = sess.Draft
	}
	span.SetAttributes(attribute.String("step.from", string(t.step)))

	out, err := handlers[t.step](e, ctx, t)
	if err == nil && out.effect != effectNone && !allowed(t.step, out.next) {
		err = fmt.Errorf("step %s may not move to %s", t.step, out.next)
	}
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		log.Error().Err(err).Str("step", string(t.step)).Msg("turn failed")
		return e.abandon(ctx, log, identity), nil
	}
	span.SetAttributes(attribute.String("step.to", string(out.next)))

	switch out.effect {
	case effectSave:
		sess := &domain.Session{Identity: identity, Step: out.next, Draft: out.draft, UpdatedAt: e.now()}
		if err := e.sessions.Put(ctx, sess); err != nil {
			span.SetStatus(codes.Error, err.Error())
			log.Error().Err(err).Msg("failed to save session")
			return e.abandon(ctx, log, identity), nil
		}
	case effectClear:
		if err := e.sessions.Delete(ctx, identity); err != nil {
			log.Error().Err(err).Msg("failed to clear session")
			return []domain.Prompt{domain.TextPrompt(msgGenericApology)}, nil
		}
		e.hooks.EmitAsync(ctx, hooks.Payload{Event: hooks.EventSessionCleared, Identity: identity, ChannelID: ev.ChannelID,
			Data: map[string]any{"reason": "cancelled"}})
	case effectCommit:
		out.prompts = e.commit(ctx, log, t)
	}

	if out.effect != effectNone {
		e.metrics.Transition(string(t.step), string(out.next))
		log.Debug().Str("from", string(t.step)).Str("to", string(out.next)).Msg("step transition")
	}
	return out.prompts, nil
}

// load fetches the session, discarding it when it cannot be used. Only a
// failed read is returned as an error; unusable sessions come back as nil.
func (e *Engine) load(ctx context.Context, log *logging.Logger, identity string) (*domain.Session, error) {
	sess, err := e.sessions.Get(ctx, identity)
	switch {
	case errors.Is(err, ErrCorruptSession):
		log.Warn().Err(err).Msg("discarding corrupt session")
		e.discard(ctx, log, identity)
		return nil, nil
	case err != nil:
		return nil, err
	case sess == nil:
		return nil, nil
	case !sess.Step.Valid():
		log.Warn().Str("step", string(sess.Step)).Msg("discarding session with unknown step")
		e.discard(ctx, log, identity)
		return nil, nil
	case e.cfg.IdleTimeout > 0 && e.now().Sub(sess.UpdatedAt) > e.cfg.IdleTimeout:
		log.Info().Time("updated_at", sess.UpdatedAt).Msg("session expired")
		e.discard(ctx, log, identity)
		return nil, nil
	}
	return sess, nil
}

func (e *Engine) discard(ctx context.Context, log *logging.Logger, identity string) {
	if err := e.sessions.Delete(ctx, identity); err != nil {
		log.Warn().Err(err).Msg("failed to delete session")
	}
}

// abandon drops whatever state the customer had and apologizes.
func (e *Engine) abandon(ctx context.Context, log *logging.Logger, identity string) []domain.Prompt {
	e.discard(ctx, log, identity)
	return []domain.Prompt{domain.TextPrompt(msgGenericApology)}
}

// restart deletes the session and greets the customer again. The session
// stays absent until the next message.
func (e *Engine) restart(ctx context.Context, log *logging.Logger, ev domain.InboundEvent) []domain.Prompt {
	if err := e.sessions.Delete(ctx, ev.SenderID); err != nil {
		log.Error().Err(err).Msg("failed to delete session on restart")
		return []domain.Prompt{domain.TextPrompt(msgGenericApology)}
	}
	log.Info().Msg("conversation restarted")
	e.hooks.EmitAsync(ctx, hooks.Payload{Event: hooks.EventSessionCleared, Identity: ev.SenderID, ChannelID: ev.ChannelID,
		Data: map[string]any{"reason": "restart"}})
	return []domain.Prompt{domain.TextPrompt(msgRestarted), welcomePrompt(e.cfg.Business)}
}

// commit places the order. The session is cleared whatever the result so a
// failed commit cannot be confirmed twice.
func (e *Engine) commit(ctx context.Context, log *logging.Logger, t *turn) []domain.Prompt {
	order, err := e.committer.Commit(ctx, orders.CommitRequest{
		Phone:         t.identity,
		CustomerName:  t.draft.CustomerName,
		Items:         t.draft.Items,
		PaymentMethod: t.draft.PaymentMethod,
	})
	e.discard(ctx, log, t.identity)
	if err != nil {
		log.Error().Err(err).Msg("order commit failed")
		return []domain.Prompt{domain.TextPrompt(msgCommitFailed)}
	}
	log.Info().Str("order", order.OrderNumber).Msg("order placed")

	prompts := []domain.Prompt{successPrompt(order, e.cfg.Business)}
	if e.receipts == nil {
		return prompts
	}
	doc, err := e.receipts.Issue(ctx, order)
	if err != nil {
		log.Warn().Err(err).Str("order", order.OrderNumber).Msg("receipt generation failed")
		return append(prompts, domain.TextPrompt(msgReceiptFailed))
	}
	return append(prompts, doc, receiptLinkPrompt(doc.Body))
}

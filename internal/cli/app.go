package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/soyeahso/orderbot/internal/config"
	"github.com/soyeahso/orderbot/internal/conversation"
	"github.com/soyeahso/orderbot/internal/events"
	"github.com/soyeahso/orderbot/internal/hooks"
	"github.com/soyeahso/orderbot/internal/metrics"
	"github.com/soyeahso/orderbot/internal/orders"
	"github.com/soyeahso/orderbot/internal/receipt"
	"github.com/soyeahso/orderbot/internal/store"
)

// app holds the components shared by the gateway, chat and admin commands.
type app struct {
	cfg      config.Config
	db       *store.DB
	catalog  *store.SQLiteCatalog
	orders   *orders.Manager
	sessions conversation.SessionStore
	engine   *conversation.Engine
	receipts *receipt.Issuer
	hooks    *hooks.Manager
	metrics  *metrics.Metrics
	amqp     *events.AMQP
}

// openApp opens the database and builds the order pipeline from cfg.
func openApp(ctx context.Context, cfg config.Config) (*app, error) {
	if err := paths.EnsureDirs(); err != nil {
		return nil, fmt.Errorf("creating data directories: %w", err)
	}

	db, err := store.Open(paths.Database, log)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	a := &app{cfg: cfg, db: db, hooks: hooks.NewManager(log)}

	a.catalog = store.NewSQLiteCatalog(db)
	if cfg.Catalog.Seed {
		seeded, err := a.catalog.Seed(ctx)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("seeding catalog: %w", err)
		}
		if seeded {
			log.Info().Msg("catalog seeded with sample products")
		}
	}

	if cfg.Metrics.Enabled {
		a.metrics = metrics.New(cfg.Metrics.Namespace)
	}

	a.orders = orders.NewManager(
		store.NewOrderStore(db),
		orders.Config{NumberPrefix: cfg.Orders.NumberPrefix, CommitAttempts: cfg.Orders.CommitAttempts},
		log,
		orders.WithHooks(a.hooks),
		orders.WithMetrics(a.metrics),
	)

	if ac := cfg.Events.AMQP; ac != nil && ac.URL != "" {
		pub, err := events.Dial(ac.URL, ac.Exchange)
		if err != nil {
			// orders still commit without the broker
			log.Error().Err(err).Str("exchange", ac.Exchange).Msg("AMQP unavailable, order events will not be published")
		} else {
			a.amqp = pub
			events.NewRelay(pub, ac.RoutingKey, log).Register(a.hooks)
			log.Info().Str("exchange", ac.Exchange).Msg("publishing order events")
		}
	}

	switch cfg.Session.Store {
	case "memory":
		a.sessions = conversation.NewMemorySessionStore()
		log.Info().Msg("using in-memory session store")
	default:
		a.sessions = store.NewSQLiteSessionStore(db)
		log.Info().Str("path", paths.Database).Msg("using SQLite session store")
	}

	engineOpts := []conversation.Option{
		conversation.WithOrderLookup(a.orders),
		conversation.WithHooks(a.hooks),
		conversation.WithMetrics(a.metrics),
	}
	if cfg.Receipts.Enabled {
		dir := cfg.Receipts.Dir
		if dir == "" {
			dir = paths.Receipts
		}
		a.receipts = receipt.New(dir, cfg.Gateway.PublicURL, cfg.Business, log)
		engineOpts = append(engineOpts, conversation.WithReceipts(a.receipts))
	}

	a.engine = conversation.NewEngine(
		conversation.Config{
			Business: conversation.Business{
				Name:    cfg.Business.Name,
				Email:   cfg.Business.Email,
				Phone:   cfg.Business.Phone,
				Address: cfg.Business.Address,
			},
			PageSize:     cfg.Orders.PageSize,
			IdleTimeout:  time.Duration(cfg.Session.IdleMinutes) * time.Minute,
			RecentOrders: cfg.Orders.RecentOrders,
		},
		a.sessions,
		a.catalog,
		a.orders,
		log,
		engineOpts...,
	)
	return a, nil
}

// sweepSessions deletes persisted sessions idle past the timeout until ctx
// is done. The engine already ignores them; this only reclaims rows.
func (a *app) sweepSessions(ctx context.Context) {
	sqlStore, ok := a.sessions.(*store.SQLiteSessionStore)
	if !ok || a.cfg.Session.IdleMinutes <= 0 {
		return
	}
	idle := time.Duration(a.cfg.Session.IdleMinutes) * time.Minute
	ticker := time.NewTicker(max(idle/2, time.Minute))
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			n, err := sqlStore.PurgeIdle(ctx, now.Add(-idle))
			if err != nil {
				log.Warn().Err(err).Msg("session sweep failed")
				continue
			}
			if n > 0 {
				log.Debug().Int64("purged", n).Msg("idle sessions removed")
			}
		}
	}
}

// Close releases the broker connection and the database.
func (a *app) Close() {
	if a.amqp != nil {
		if err := a.amqp.Close(); err != nil {
			log.Warn().Err(err).Msg("closing AMQP connection")
		}
	}
	if err := a.db.Close(); err != nil {
		log.Warn().Err(err).Msg("closing database")
	}
}

package cli

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/soyeahso/orderbot/internal/channel"
	"github.com/soyeahso/orderbot/internal/channel/irc"
	"github.com/soyeahso/orderbot/internal/channel/whatsapp"
	"github.com/soyeahso/orderbot/internal/config"
	"github.com/soyeahso/orderbot/internal/gateway"
	"github.com/soyeahso/orderbot/internal/routing"
	"github.com/spf13/cobra"
)

func newGatewayCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "gateway",
		Short: "Manage the orderbot gateway server",
	}

	cmd.AddCommand(newGatewayRunCmd())
	return cmd
}

func newGatewayRunCmd() *cobra.Command {
	var (
		port int
		bind string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start the gateway server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			if port != 0 {
				cfg.Gateway.Port = port
			}
			if bind != "" {
				cfg.Gateway.Bind = bind
			}

			issues := config.Validate(&cfg)
			if len(issues) > 0 {
				for _, issue := range issues {
					log.Error().Str("path", issue.Path).Msg(issue.Message)
				}
				return fmt.Errorf("config validation failed with %d issue(s)", len(issues))
			}

			// Block until SIGINT/SIGTERM
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := openApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			opts := []gateway.ServerOption{
				gateway.WithOrders(a.orders),
				gateway.WithCatalog(a.catalog),
				gateway.WithDatabase(a.db),
				gateway.WithHooks(a.hooks),
			}
			if a.metrics != nil {
				opts = append(opts, gateway.WithMetrics(a.metrics))
			}
			if a.receipts != nil {
				opts = append(opts, gateway.WithReceipts(a.receipts.Dir()))
			}

			channels := channel.NewRegistry(log)

			if cfg.Channels.WhatsApp != nil {
				wa := whatsapp.New(*cfg.Channels.WhatsApp, log)
				channels.Register(wa)
				opts = append(opts, gateway.WithWebhook(wa))
			}
			if cfg.Channels.IRC != nil {
				channels.Register(irc.New(*cfg.Channels.IRC, log))
			}
			opts = append(opts, gateway.WithChannels(channels))

			srv := gateway.New(cfg, log, opts...)

			if channels.Count() > 0 {
				router := routing.NewRouter(channels, a.engine, routing.Config{
					DedupSize: cfg.Dedup.Size,
					DedupTTL:  time.Duration(cfg.Dedup.TTLMinutes) * time.Minute,
				}, log, routing.WithHooks(a.hooks), routing.WithMetrics(a.metrics))
				router.Wire()

				if err := channels.StartAll(ctx); err != nil {
					return fmt.Errorf("starting channels: %w", err)
				}
				defer channels.StopAll(context.Background())

				log.Info().
					Strs("channels", channels.List()).
					Msg("message routing active")
			} else {
				log.Warn().Msg("no channels configured; only the admin API is available")
			}

			go a.sweepSessions(ctx)

			return srv.Start(ctx)
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "override gateway port")
	cmd.Flags().StringVar(&bind, "bind", "", "override bind mode (loopback, lan, custom)")

	return cmd
}

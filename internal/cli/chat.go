package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/soyeahso/orderbot/internal/channel"
	"github.com/soyeahso/orderbot/internal/channel/console"
	"github.com/soyeahso/orderbot/internal/domain"
	"github.com/soyeahso/orderbot/internal/logging"
	"github.com/soyeahso/orderbot/internal/routing"
	"github.com/spf13/cobra"
)

func newChatCmd() *cobra.Command {
	var identity string

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Talk to the order bot from the terminal",
		Long:  "chat runs the purchasing conversation on stdin/stdout, acting as the customer identified by --as. Orders are stored in the configured database.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if logLevel == "" {
				// keep the transcript readable
				log = logging.NewStyled(nil, "warn", cfg.Logging.ConsoleStyle)
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := openApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			con := console.New(os.Stdin, os.Stdout, identity)
			channels := channel.NewRegistry(log)
			channels.Register(con)

			router := routing.NewRouter(channels, a.engine, routing.Config{
				DedupSize: cfg.Dedup.Size,
				DedupTTL:  time.Duration(cfg.Dedup.TTLMinutes) * time.Minute,
			}, log, routing.WithHooks(a.hooks), routing.WithMetrics(a.metrics))
			// answered in order, one line at a time
			con.OnMessage(func(ev domain.InboundEvent) {
				router.HandleInbound(ctx, ev)
			})

			fmt.Printf("Chatting with %s as %s. Say \"hi\" to begin, Ctrl-D to quit.\n", cfg.Business.Name, identity)
			err = con.Start(ctx)
			if err != nil && ctx.Err() == nil {
				return err
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&identity, "as", "+15550100", "customer phone number to chat as")

	return cmd
}

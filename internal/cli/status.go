package cli

import (
	"fmt"
	"os"

	"github.com/soyeahso/orderbot/internal/config"
	"github.com/soyeahso/orderbot/internal/gateway"
	"github.com/soyeahso/orderbot/internal/version"
	"github.com/spf13/cobra"
)

func newStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show orderbot status and configuration summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Printf("orderbot %s (commit %s)\n\n", version.Version, version.Commit)

			fmt.Printf("Config:   %s\n", paths.Config)
			fmt.Printf("Database: %s\n", paths.Database)
			fmt.Printf("Receipts: %s\n", paths.Receipts)
			fmt.Println()

			if _, err := os.Stat(paths.Config); os.IsNotExist(err) {
				fmt.Println("Config file not found, using defaults")
			}
			cfg, err := config.Load(paths.Config)
			if err != nil {
				fmt.Printf("Config:   error loading: %v\n", err)
				return nil
			}

			auth := "none"
			if gateway.ResolveAuth(cfg.Gateway.Auth).Token != "" {
				auth = "token"
			}
			fmt.Printf("Gateway:  port=%d bind=%s auth=%s tls=%v\n",
				cfg.Gateway.Port, cfg.Gateway.Bind, auth, cfg.Gateway.TLS.Enabled)
			fmt.Printf("Business: %s\n", cfg.Business.Name)
			fmt.Printf("Session:  store=%s idle=%dm\n", cfg.Session.Store, cfg.Session.IdleMinutes)
			fmt.Printf("Orders:   prefix=%s page=%d\n", cfg.Orders.NumberPrefix, cfg.Orders.PageSize)

			if wa := cfg.Channels.WhatsApp; wa != nil {
				fmt.Printf("WhatsApp: phoneNumberId=%s api=%s/%s signed=%v\n",
					wa.PhoneNumberID, wa.APIBaseURL, wa.APIVersion, wa.AppSecret != "")
			} else {
				fmt.Println("WhatsApp: (not configured)")
			}
			if irc := cfg.Channels.IRC; irc != nil {
				fmt.Printf("IRC:      server=%s:%d nick=%s tls=%v\n", irc.Server, irc.Port, irc.Nick, irc.UseTLS)
			} else {
				fmt.Println("IRC:      (not configured)")
			}

			if a := cfg.Events.AMQP; a != nil {
				fmt.Printf("Events:   amqp exchange=%s key=%s\n", a.Exchange, a.RoutingKey)
			}
			if cfg.Metrics.Enabled {
				fmt.Printf("Metrics:  /metrics namespace=%s\n", cfg.Metrics.Namespace)
			}
			if cfg.Receipts.Enabled {
				fmt.Println("Receipts: enabled")
			}

			issues := config.Validate(&cfg)
			if len(issues) > 0 {
				fmt.Printf("\nValidation issues (%d):\n", len(issues))
				for _, issue := range issues {
					fmt.Printf("  - %s: %s\n", issue.Path, issue.Message)
				}
			}

			return nil
		},
	}

	return cmd
}

// Package whatsapp implements the WhatsApp Cloud API channel. Inbound
// messages arrive on the webhook served by the gateway; replies are posted
// to the Graph API with retries.
package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/soyeahso/orderbot/internal/config"
	"github.com/soyeahso/orderbot/internal/domain"
	"github.com/soyeahso/orderbot/internal/logging"
	"github.com/soyeahso/orderbot/internal/version"
)

// Cloud API limits for interactive messages.
const (
	maxButtonTitle     = 20
	maxInteractiveBody = 1024
	maxTextBody        = 4096
)

// Channel implements domain.Channel for the WhatsApp Cloud API.
type Channel struct {
	cfg  config.WhatsAppConfig
	http *retryablehttp.Client
	log  *logging.Logger

	mu      sync.RWMutex
	handler func(ev domain.InboundEvent)
	running bool
	lastErr string
}

// New creates a WhatsApp channel from configuration.
func New(cfg config.WhatsAppConfig, log *logging.Logger) *Channel {
	if cfg.APIBaseURL == "" {
		cfg.APIBaseURL = "https://graph.facebook.com"
	}
	if cfg.APIVersion == "" {
		cfg.APIVersion = "v18.0"
	}
	log = log.Sub("whatsapp")

	client := retryablehttp.NewClient()
	client.RetryMax = cfg.RetryMax
	client.RetryWaitMin = 200 * time.Millisecond
	client.RetryWaitMax = 2 * time.Second
	client.HTTPClient.Timeout = 15 * time.Second
	client.Logger = leveledLogger{log}

	return &Channel{cfg: cfg, http: client, log: log}
}

func (c *Channel) ID() string { return "whatsapp" }

func (c *Channel) Capabilities() domain.ChannelCapabilities {
	return domain.ChannelCapabilities{Choices: true, Documents: true}
}

func (c *Channel) OnMessage(handler func(ev domain.InboundEvent)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handler = handler
}

// Status returns the current runtime status.
func (c *Channel) Status() domain.ChannelStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return domain.ChannelStatus{
		ChannelID: "whatsapp",
		Connected: c.running,
		Running:   c.running,
		LastError: c.lastErr,
	}
}

// Start marks the channel live and blocks until ctx ends. Delivery is push
// based, so there is no connection to hold.
func (c *Channel) Start(ctx context.Context) error {
	c.mu.Lock()
	c.running = true
	c.mu.Unlock()
	c.log.Info().Str("phoneNumberId", c.cfg.PhoneNumberID).Msg("whatsapp channel ready")

	<-ctx.Done()
	c.mu.Lock()
	c.running = false
	c.mu.Unlock()
	return nil
}

func (c *Channel) Stop(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.running = false
	return nil
}

func (c *Channel) messagesURL() string {
	return fmt.Sprintf("%s/%s/%s/messages", strings.TrimRight(c.cfg.APIBaseURL, "/"), c.cfg.APIVersion, c.cfg.PhoneNumberID)
}

// Send posts a prompt to the Graph API.
func (c *Channel) Send(ctx context.Context, msg domain.OutboundMessage) error {
	if msg.To == "" {
		return fmt.Errorf("whatsapp: no recipient")
	}
	body, err := json.Marshal(buildPayload(msg))
	if err != nil {
		return fmt.Errorf("whatsapp: encoding message: %w", err)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, c.messagesURL(), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("whatsapp: building request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.AccessToken)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", version.UserAgent())

	resp, err := c.http.Do(req)
	if err != nil {
		c.setErr(err)
		return fmt.Errorf("whatsapp: sending message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		err := fmt.Errorf("whatsapp: graph api returned %d: %s", resp.StatusCode, strings.TrimSpace(string(detail)))
		c.setErr(err)
		return err
	}
	c.log.Debug().Str("to", msg.To).Str("kind", string(msg.Prompt.Kind)).Msg("sent whatsapp message")
	return nil
}

func (c *Channel) setErr(err error) {
	c.mu.Lock()
	c.lastErr = err.Error()
	c.mu.Unlock()
}

func (c *Channel) dispatch(events []domain.InboundEvent) {
	c.mu.RLock()
	handler := c.handler
	c.mu.RUnlock()
	if handler == nil {
		c.log.Warn().Int("events", len(events)).Msg("no handler registered, dropping events")
		return
	}
	for _, ev := range events {
		handler(ev)
	}
}

// leveledLogger routes retryablehttp's logging into zerolog at debug and warn.
type leveledLogger struct{ log *logging.Logger }

func (l leveledLogger) Error(msg string, kv ...any) { l.log.Warn().Fields(kv).Msg(msg) }
func (l leveledLogger) Warn(msg string, kv ...any)  { l.log.Warn().Fields(kv).Msg(msg) }
func (l leveledLogger) Info(msg string, kv ...any)  { l.log.Debug().Fields(kv).Msg(msg) }
func (l leveledLogger) Debug(msg string, kv ...any) { l.log.Debug().Fields(kv).Msg(msg) }

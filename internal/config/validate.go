package config

import (
	"fmt"
	"net/url"
	"slices"
)

// ValidationIssue describes a problem with a config value.
type ValidationIssue struct {
	Path    string
	Message string
}

func (v ValidationIssue) String() string {
	return fmt.Sprintf("%s: %s", v.Path, v.Message)
}

// Validate checks a Config for issues. Returns nil if valid.
func Validate(cfg *Config) []ValidationIssue {
	var issues []ValidationIssue
	add := func(path, format string, args ...any) {
		issues = append(issues, ValidationIssue{Path: path, Message: fmt.Sprintf(format, args...)})
	}
	oneOf := func(path, value string, valid []string) {
		if value != "" && !slices.Contains(valid, value) {
			add(path, "must be one of %v, got %q", valid, value)
		}
	}

	if cfg.Gateway.Port < 0 || cfg.Gateway.Port > 65535 {
		add("gateway.port", "port must be 0-65535, got %d", cfg.Gateway.Port)
	}
	oneOf("gateway.bind", cfg.Gateway.Bind, []string{"loopback", "lan", "custom"})
	if cfg.Gateway.Bind == "custom" && cfg.Gateway.CustomBindHost == "" {
		add("gateway.customBindHost", "required when bind is custom")
	}
	if cfg.Gateway.PublicURL != "" {
		if u, err := url.Parse(cfg.Gateway.PublicURL); err != nil || u.Scheme == "" || u.Host == "" {
			add("gateway.publicUrl", "must be an absolute URL, got %q", cfg.Gateway.PublicURL)
		}
	}
	if cfg.Gateway.TLS.Enabled && (cfg.Gateway.TLS.CertPath == "" || cfg.Gateway.TLS.KeyPath == "") {
		add("gateway.tls", "certPath and keyPath are required when TLS is enabled")
	}

	if wa := cfg.Channels.WhatsApp; wa != nil {
		if wa.PhoneNumberID == "" {
			add("channels.whatsapp.phoneNumberId", "phoneNumberId is required")
		}
		if wa.AccessToken == "" {
			add("channels.whatsapp.accessToken", "accessToken is required")
		}
		if wa.VerifyToken == "" {
			add("channels.whatsapp.verifyToken", "verifyToken is required")
		}
		if wa.RetryMax < 0 {
			add("channels.whatsapp.retryMax", "must not be negative, got %d", wa.RetryMax)
		}
	}

	if irc := cfg.Channels.IRC; irc != nil {
		if irc.Server == "" {
			add("channels.irc.server", "server is required")
		}
		if irc.Nick == "" {
			add("channels.irc.nick", "nick is required")
		}
		if irc.Port < 0 || irc.Port > 65535 {
			add("channels.irc.port", "port must be 0-65535, got %d", irc.Port)
		}
		if irc.SASL && irc.Password == "" {
			add("channels.irc.sasl", "SASL requires a password to be set")
		}
	}

	oneOf("session.store", cfg.Session.Store, []string{"sqlite", "memory"})
	if cfg.Session.IdleMinutes < 0 {
		add("session.idleMinutes", "must not be negative, got %d", cfg.Session.IdleMinutes)
	}

	if cfg.Orders.PageSize < 1 || cfg.Orders.PageSize > 50 {
		add("orders.pageSize", "must be 1-50, got %d", cfg.Orders.PageSize)
	}
	if cfg.Orders.CommitAttempts < 1 {
		add("orders.commitAttempts", "must be at least 1, got %d", cfg.Orders.CommitAttempts)
	}
	if cfg.Orders.RecentOrders < 1 {
		add("orders.recentOrders", "must be at least 1, got %d", cfg.Orders.RecentOrders)
	}

	if a := cfg.Events.AMQP; a != nil && a.URL == "" {
		add("events.amqp.url", "url is required")
	}

	if cfg.Dedup.Size < 1 {
		add("dedup.size", "must be at least 1, got %d", cfg.Dedup.Size)
	}
	if cfg.Dedup.TTLMinutes < 1 {
		add("dedup.ttlMinutes", "must be at least 1, got %d", cfg.Dedup.TTLMinutes)
	}

	oneOf("logging.level", cfg.Logging.Level, []string{"silent", "fatal", "error", "warn", "info", "debug", "trace"})
	oneOf("logging.consoleStyle", cfg.Logging.ConsoleStyle, []string{"pretty", "json"})

	return issues
}

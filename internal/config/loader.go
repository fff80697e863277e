package config

import (
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// envVarPattern matches ${VAR_NAME} patterns in strings.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// expandEnvVars replaces ${VAR} patterns with environment variable values.
// Unset variables are left unchanged.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		if val, ok := os.LookupEnv(match[2 : len(match)-1]); ok {
			return val
		}
		return match
	})
}

// expandSensitiveFields resolves ${ENV_VAR} references in credential fields.
func expandSensitiveFields(cfg *Config) {
	cfg.Gateway.Auth.Token = expandEnvVars(cfg.Gateway.Auth.Token)
	if wa := cfg.Channels.WhatsApp; wa != nil {
		wa.AccessToken = expandEnvVars(wa.AccessToken)
		wa.VerifyToken = expandEnvVars(wa.VerifyToken)
		wa.AppSecret = expandEnvVars(wa.AppSecret)
	}
	if cfg.Channels.IRC != nil {
		cfg.Channels.IRC.Password = expandEnvVars(cfg.Channels.IRC.Password)
	}
	if cfg.Events.AMQP != nil {
		cfg.Events.AMQP.URL = expandEnvVars(cfg.Events.AMQP.URL)
	}
}

// LoadDotEnv loads KEY=VALUE pairs from the given .env files into the
// process environment without overriding variables that are already set.
// Missing files are ignored.
func LoadDotEnv(paths ...string) error {
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return &ConfigError{Message: "failed to load " + p + ": " + err.Error()}
		}
	}
	return nil
}

// Load reads the config file, applies environment overrides, and returns
// a merged Config. Missing files produce defaults only.
func Load(path string) (Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			applyEnvOverrides(&cfg)
			return cfg, nil
		}
		return cfg, err
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, &ConfigError{Message: "failed to parse config: " + err.Error()}
	}

	applyDefaults(&cfg)
	applyEnvOverrides(&cfg)
	expandSensitiveFields(&cfg)
	return cfg, nil
}

// LoadRaw reads the config file into a generic map for path-based access.
func LoadRaw(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]any{}, nil
		}
		return nil, err
	}

	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, &ConfigError{Message: "failed to parse config: " + err.Error()}
	}
	if raw == nil {
		raw = map[string]any{}
	}
	return raw, nil
}

// SaveRaw writes a generic map back to a YAML config file.
func SaveRaw(path string, raw map[string]any) error {
	data, err := yaml.Marshal(raw)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

// applyDefaults fills zero-value fields with sensible defaults.
func applyDefaults(cfg *Config) {
	if cfg.Gateway.Port == 0 {
		cfg.Gateway.Port = 18790
	}
	if cfg.Gateway.Bind == "" {
		cfg.Gateway.Bind = "loopback"
	}
	if cfg.Business.Name == "" {
		cfg.Business.Name = "Our Store"
	}
	if wa := cfg.Channels.WhatsApp; wa != nil {
		if wa.APIBaseURL == "" {
			wa.APIBaseURL = "https://graph.facebook.com"
		}
		if wa.APIVersion == "" {
			wa.APIVersion = "v18.0"
		}
		if wa.RetryMax == 0 {
			wa.RetryMax = 3
		}
	}
	if irc := cfg.Channels.IRC; irc != nil && irc.Port == 0 {
		irc.Port = 6667
		if irc.UseTLS {
			irc.Port = 6697
		}
	}
	if cfg.Session.Store == "" {
		cfg.Session.Store = "sqlite"
	}
	if cfg.Session.IdleMinutes == 0 {
		cfg.Session.IdleMinutes = 60
	}
	if cfg.Orders.NumberPrefix == "" {
		cfg.Orders.NumberPrefix = "ORD"
	}
	if cfg.Orders.PageSize == 0 {
		cfg.Orders.PageSize = 5
	}
	if cfg.Orders.CommitAttempts == 0 {
		cfg.Orders.CommitAttempts = 5
	}
	if cfg.Orders.RecentOrders == 0 {
		cfg.Orders.RecentOrders = 5
	}
	if cfg.Metrics.Namespace == "" {
		cfg.Metrics.Namespace = "orderbot"
	}
	if a := cfg.Events.AMQP; a != nil {
		if a.Exchange == "" {
			a.Exchange = "orders"
		}
		if a.RoutingKey == "" {
			a.RoutingKey = "order.created"
		}
	}
	if cfg.Dedup.Size == 0 {
		cfg.Dedup.Size = 4096
	}
	if cfg.Dedup.TTLMinutes == 0 {
		cfg.Dedup.TTLMinutes = 10
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.ConsoleStyle == "" {
		cfg.Logging.ConsoleStyle = "pretty"
	}
}

// applyEnvOverrides reads ORDERBOT_* environment variables and overrides config values.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("ORDERBOT_GATEWAY_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Gateway.Port = port
		}
	}
	if v := os.Getenv("ORDERBOT_GATEWAY_BIND"); v != "" {
		cfg.Gateway.Bind = v
	}
	if v := os.Getenv("ORDERBOT_PUBLIC_URL"); v != "" {
		cfg.Gateway.PublicURL = v
	}
	if v := os.Getenv("ORDERBOT_BUSINESS_NAME"); v != "" {
		cfg.Business.Name = v
	}
	if v := os.Getenv("ORDERBOT_SESSION_STORE"); v != "" {
		cfg.Session.Store = strings.ToLower(v)
	}
	if v := os.Getenv("ORDERBOT_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = strings.ToLower(v)
	}
	if v := os.Getenv("ORDERBOT_AMQP_URL"); v != "" {
		if cfg.Events.AMQP == nil {
			cfg.Events.AMQP = &AMQPConfig{Exchange: "orders", RoutingKey: "order.created"}
		}
		cfg.Events.AMQP.URL = v
	}
}

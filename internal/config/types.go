package config

// Config is the root configuration for orderbot.
type Config struct {
	Gateway  GatewayConfig  `yaml:"gateway,omitempty"`
	Business BusinessConfig `yaml:"business,omitempty"`
	Channels ChannelsConfig `yaml:"channels,omitempty"`
	Session  SessionConfig  `yaml:"session,omitempty"`
	Orders   OrdersConfig   `yaml:"orders,omitempty"`
	Catalog  CatalogConfig  `yaml:"catalog,omitempty"`
	Receipts ReceiptsConfig `yaml:"receipts,omitempty"`
	Metrics  MetricsConfig  `yaml:"metrics,omitempty"`
	Events   EventsConfig   `yaml:"events,omitempty"`
	Dedup    DedupConfig    `yaml:"dedup,omitempty"`
	Logging  LoggingConfig  `yaml:"logging,omitempty"`
}

// GatewayConfig controls the gateway HTTP/WebSocket server.
type GatewayConfig struct {
	Port           int         `yaml:"port,omitempty"`
	Bind           string      `yaml:"bind,omitempty"` // "loopback" | "lan" | "custom"
	CustomBindHost string      `yaml:"customBindHost,omitempty"`
	PublicURL      string      `yaml:"publicUrl,omitempty"` // base URL used in receipt links
	Auth           GatewayAuth `yaml:"auth,omitempty"`
	TLS            GatewayTLS  `yaml:"tls,omitempty"`
	AllowedOrigins []string    `yaml:"allowedOrigins,omitempty"`
}

// GatewayAuth configures the admin bearer token.
type GatewayAuth struct {
	Token string `yaml:"token,omitempty"`
}

// GatewayTLS configures TLS for the gateway.
type GatewayTLS struct {
	Enabled  bool   `yaml:"enabled,omitempty"`
	CertPath string `yaml:"certPath,omitempty"`
	KeyPath  string `yaml:"keyPath,omitempty"`
}

// BusinessConfig is the shop identity shown in prompts and receipts.
type BusinessConfig struct {
	Name    string `yaml:"name,omitempty"`
	Email   string `yaml:"email,omitempty"`
	Phone   string `yaml:"phone,omitempty"`
	Address string `yaml:"address,omitempty"`
}

// ChannelsConfig defines channel-specific configurations.
type ChannelsConfig struct {
	WhatsApp *WhatsAppConfig `yaml:"whatsapp,omitempty"`
	IRC      *IRCConfig      `yaml:"irc,omitempty"`
}

// WhatsAppConfig configures the WhatsApp Cloud API channel.
type WhatsAppConfig struct {
	PhoneNumberID string `yaml:"phoneNumberId"`
	AccessToken   string `yaml:"accessToken"`
	VerifyToken   string `yaml:"verifyToken"`
	AppSecret     string `yaml:"appSecret,omitempty"` // enables X-Hub-Signature-256 checks
	APIBaseURL    string `yaml:"apiBaseUrl,omitempty"`
	APIVersion    string `yaml:"apiVersion,omitempty"`
	RetryMax      int    `yaml:"retryMax,omitempty"`
}

// IRCConfig defines IRC channel settings. Customers order over private messages.
type IRCConfig struct {
	Server   string `yaml:"server"`
	Port     int    `yaml:"port,omitempty"`
	Nick     string `yaml:"nick"`
	Password string `yaml:"password,omitempty"`
	UseTLS   bool   `yaml:"useTLS,omitempty"`
	SASL     bool   `yaml:"sasl,omitempty"`
}

// SessionConfig defines conversation session behavior.
type SessionConfig struct {
	Store       string `yaml:"store,omitempty"` // "sqlite" | "memory"
	IdleMinutes int    `yaml:"idleMinutes,omitempty"`
}

// OrdersConfig tunes browsing and order commit.
type OrdersConfig struct {
	NumberPrefix   string `yaml:"numberPrefix,omitempty"`
	PageSize       int    `yaml:"pageSize,omitempty"`
	CommitAttempts int    `yaml:"commitAttempts,omitempty"`
	RecentOrders   int    `yaml:"recentOrders,omitempty"`
}

// CatalogConfig controls the product catalog.
type CatalogConfig struct {
	Seed bool `yaml:"seed"`
}

// ReceiptsConfig controls receipt generation.
type ReceiptsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Dir     string `yaml:"dir,omitempty"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Namespace string `yaml:"namespace,omitempty"`
}

// EventsConfig configures outbound order events.
type EventsConfig struct {
	AMQP *AMQPConfig `yaml:"amqp,omitempty"`
}

// AMQPConfig configures the RabbitMQ publisher.
type AMQPConfig struct {
	URL        string `yaml:"url"`
	Exchange   string `yaml:"exchange,omitempty"`
	RoutingKey string `yaml:"routingKey,omitempty"`
}

// DedupConfig bounds the duplicate-delivery filter.
type DedupConfig struct {
	Size       int `yaml:"size,omitempty"`
	TTLMinutes int `yaml:"ttlMinutes,omitempty"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level        string `yaml:"level,omitempty"`        // "silent" | "fatal" | "error" | "warn" | "info" | "debug" | "trace"
	ConsoleStyle string `yaml:"consoleStyle,omitempty"` // "pretty" | "json"
}

package domain

import "context"

// ChannelCapabilities describes what a channel implementation can render.
type ChannelCapabilities struct {
	// Choices reports native quick-reply buttons. Channels without them get
	// choice prompts flattened into text.
	Choices   bool `json:"choices"`
	Documents bool `json:"documents,omitempty"`
}

// ChannelStatus reports the runtime state of a channel.
type ChannelStatus struct {
	ChannelID string `json:"channelId"`
	Connected bool   `json:"connected"`
	Running   bool   `json:"running"`
	LastError string `json:"lastError,omitempty"`
}

// Channel is the interface that all messaging channel implementations must satisfy.
type Channel interface {
	// ID returns the channel identifier (e.g., "whatsapp", "irc").
	ID() string

	// Capabilities returns what this channel supports.
	Capabilities() ChannelCapabilities

	// Start connects the channel and begins listening for messages.
	Start(ctx context.Context) error

	// Stop gracefully disconnects the channel.
	Stop(ctx context.Context) error

	// Send delivers an outbound prompt through this channel.
	Send(ctx context.Context, msg OutboundMessage) error

	// OnMessage registers a handler for inbound events.
	OnMessage(handler func(ev InboundEvent))
}

package domain

import (
	"strings"
	"time"
)

// EventKind tells free text apart from a tapped quick reply.
type EventKind string

const (
	EventKindText            EventKind = "text"
	EventKindStructuredReply EventKind = "structured_reply"
)

// InboundEvent is a message received from a customer on some channel.
type InboundEvent struct {
	ID         string    `json:"id"`
	ChannelID  string    `json:"channelId"`
	SenderID   string    `json:"senderId"`
	SenderName string    `json:"senderName,omitempty"`
	Kind       EventKind `json:"kind"`
	Text       string    `json:"text"`
	ReplyID    string    `json:"replyId,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
	Raw        any       `json:"raw,omitempty"`
}

// Selection resolves the customer's choice: the reply id of a structured
// reply, otherwise the lowercased free text.
func (e InboundEvent) Selection() string {
	if e.Kind == EventKindStructuredReply && e.ReplyID != "" {
		return e.ReplyID
	}
	return strings.ToLower(strings.TrimSpace(e.Text))
}

// Input returns the trimmed text, falling back to the reply id when a
// structured reply carries no title.
func (e InboundEvent) Input() string {
	if s := strings.TrimSpace(e.Text); s != "" {
		return s
	}
	return e.ReplyID
}

// PromptKind classifies outbound prompts.
type PromptKind string

const (
	PromptText     PromptKind = "text"
	PromptChoice   PromptKind = "choice"
	PromptDocument PromptKind = "document"
)

// MaxChoiceOptions is the most quick replies a single choice prompt may carry.
const MaxChoiceOptions = 3

// Option is one quick reply of a choice prompt.
type Option struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

// Prompt is an outbound message produced by the conversation engine. For
// document prompts Body holds the document URL.
type Prompt struct {
	Kind     PromptKind `json:"kind"`
	Body     string     `json:"body"`
	Options  []Option   `json:"options,omitempty"`
	Caption  string     `json:"caption,omitempty"`
	Filename string     `json:"filename,omitempty"`
}

// TextPrompt builds a plain text prompt.
func TextPrompt(body string) Prompt {
	return Prompt{Kind: PromptText, Body: body}
}

// ChoicePrompt builds a quick-reply prompt. Options beyond MaxChoiceOptions
// are dropped.
func ChoicePrompt(body string, opts ...Option) Prompt {
	if len(opts) > MaxChoiceOptions {
		opts = opts[:MaxChoiceOptions]
	}
	return Prompt{Kind: PromptChoice, Body: body, Options: opts}
}

// DocumentPrompt builds a prompt pointing at a downloadable document.
func DocumentPrompt(url, filename, caption string) Prompt {
	return Prompt{Kind: PromptDocument, Body: url, Filename: filename, Caption: caption}
}

// OutboundMessage is a prompt addressed to a recipient on a channel.
type OutboundMessage struct {
	ChannelID string `json:"channelId"`
	To        string `json:"to"`
	Prompt    Prompt `json:"prompt"`
	ReplyToID string `json:"replyToId,omitempty"`
}

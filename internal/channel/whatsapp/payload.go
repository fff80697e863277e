package whatsapp

import (
	"strconv"
	"time"
	"unicode/utf8"

	"github.com/soyeahso/orderbot/internal/domain"
)

// Outbound Graph API message shapes.
type outbound struct {
	MessagingProduct string       `json:"messaging_product"`
	RecipientType    string       `json:"recipient_type"`
	To               string       `json:"to"`
	Type             string       `json:"type"`
	Context          *msgContext  `json:"context,omitempty"`
	Text             *textBody    `json:"text,omitempty"`
	Interactive      *interactive `json:"interactive,omitempty"`
	Document         *document    `json:"document,omitempty"`
}

type msgContext struct {
	MessageID string `json:"message_id"`
}

type textBody struct {
	Body       string `json:"body"`
	PreviewURL bool   `json:"preview_url,omitempty"`
}

type interactive struct {
	Type   string            `json:"type"`
	Body   textBody          `json:"body"`
	Action interactiveAction `json:"action"`
}

type interactiveAction struct {
	Buttons []button `json:"buttons"`
}

type button struct {
	Type  string      `json:"type"`
	Reply buttonReply `json:"reply"`
}

type buttonReply struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

type document struct {
	Link     string `json:"link"`
	Filename string `json:"filename,omitempty"`
	Caption  string `json:"caption,omitempty"`
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n-1]) + "…"
}

// buildPayload maps a prompt onto the Graph API message type that renders it.
func buildPayload(msg domain.OutboundMessage) outbound {
	out := outbound{MessagingProduct: "whatsapp", RecipientType: "individual", To: msg.To}
	p := msg.Prompt
	switch p.Kind {
	case domain.PromptChoice:
		buttons := make([]button, len(p.Options))
		for i, o := range p.Options {
			buttons[i] = button{Type: "reply", Reply: buttonReply{ID: o.ID, Title: truncate(o.Label, maxButtonTitle)}}
		}
		out.Type = "interactive"
		out.Interactive = &interactive{
			Type:   "button",
			Body:   textBody{Body: truncate(p.Body, maxInteractiveBody)},
			Action: interactiveAction{Buttons: buttons},
		}
	case domain.PromptDocument:
		out.Type = "document"
		out.Document = &document{Link: p.Body, Filename: p.Filename, Caption: p.Caption}
	default:
		out.Type = "text"
		out.Text = &textBody{Body: truncate(p.Body, maxTextBody)}
	}
	if msg.ReplyToID != "" && p.Kind == domain.PromptText {
		out.Context = &msgContext{MessageID: msg.ReplyToID}
	}
	return out
}

// Inbound webhook notification shapes.
type notification struct {
	Object string  `json:"object"`
	Entry  []entry `json:"entry"`
}

type entry struct {
	ID      string   `json:"id"`
	Changes []change `json:"changes"`
}

type change struct {
	Field string      `json:"field"`
	Value changeValue `json:"value"`
}

type changeValue struct {
	MessagingProduct string    `json:"messaging_product"`
	Contacts         []contact `json:"contacts"`
	Messages         []message `json:"messages"`
}

type contact struct {
	WaID    string `json:"wa_id"`
	Profile struct {
		Name string `json:"name"`
	} `json:"profile"`
}

type message struct {
	ID          string `json:"id"`
	From        string `json:"from"`
	Timestamp   string `json:"timestamp"`
	Type        string `json:"type"`
	Text        *struct {
		Body string `json:"body"`
	} `json:"text,omitempty"`
	Interactive *struct {
		Type        string       `json:"type"`
		ButtonReply *buttonReply `json:"button_reply,omitempty"`
		ListReply   *buttonReply `json:"list_reply,omitempty"`
	} `json:"interactive,omitempty"`
	Button *struct {
		Payload string `json:"payload"`
		Text    string `json:"text"`
	} `json:"button,omitempty"`
}

// events converts a notification into inbound events. Unsupported message
// types (media, reactions, status updates) are skipped.
func (n notification) events() []domain.InboundEvent {
	if n.Object != "whatsapp_business_account" {
		return nil
	}
	var out []domain.InboundEvent
	for _, e := range n.Entry {
		for _, ch := range e.Changes {
			if ch.Field != "messages" {
				continue
			}
			names := make(map[string]string, len(ch.Value.Contacts))
			for _, c := range ch.Value.Contacts {
				names[c.WaID] = c.Profile.Name
			}
			for _, m := range ch.Value.Messages {
				ev, ok := m.event()
				if !ok {
					continue
				}
				ev.SenderName = names[m.From]
				out = append(out, ev)
			}
		}
	}
	return out
}

func (m message) event() (domain.InboundEvent, bool) {
	ev := domain.InboundEvent{
		ID:        m.ID,
		ChannelID: "whatsapp",
		SenderID:  m.From,
		Timestamp: parseUnix(m.Timestamp),
		Raw:       m,
	}
	switch {
	case m.Type == "text" && m.Text != nil:
		ev.Kind = domain.EventKindText
		ev.Text = m.Text.Body
	case m.Type == "interactive" && m.Interactive != nil:
		reply := m.Interactive.ButtonReply
		if reply == nil {
			reply = m.Interactive.ListReply
		}
		if reply == nil {
			return ev, false
		}
		ev.Kind = domain.EventKindStructuredReply
		ev.ReplyID = reply.ID
		ev.Text = reply.Title
	case m.Type == "button" && m.Button != nil:
		ev.Kind = domain.EventKindStructuredReply
		ev.ReplyID = m.Button.Payload
		ev.Text = m.Button.Text
	default:
		return ev, false
	}
	return ev, m.From != ""
}

func parseUnix(s string) time.Time {
	secs, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Now()
	}
	return time.Unix(secs, 0).UTC()
}

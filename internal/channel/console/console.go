// Package console is a terminal channel for trying the ordering dialogue
// locally. Each input line is one text message from a fixed identity.
package console

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/soyeahso/orderbot/internal/channel"
	"github.com/soyeahso/orderbot/internal/domain"
)

// ID is the channel identifier.
const ID = "console"

// Channel reads customer messages from in and prints prompts to out.
type Channel struct {
	in       io.Reader
	out      io.Writer
	identity string
	prompt   string

	mu      sync.Mutex
	handler func(ev domain.InboundEvent)
	running bool
}

// New creates a console channel speaking as identity.
func New(in io.Reader, out io.Writer, identity string) *Channel {
	return &Channel{in: in, out: out, identity: identity, prompt: "> "}
}

func (c *Channel) ID() string { return ID }

// Capabilities reports plain text; choices are printed as "[id] Label" lines.
func (c *Channel) Capabilities() domain.ChannelCapabilities {
	return domain.ChannelCapabilities{}
}

func (c *Channel) OnMessage(handler func(ev domain.InboundEvent)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handler = handler
}

func (c *Channel) Status() domain.ChannelStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return domain.ChannelStatus{ChannelID: ID, Connected: c.running, Running: c.running}
}

// Start reads lines until EOF or ctx is done. The handler runs on the
// reading goroutine, so each line is fully answered before the next is read.
func (c *Channel) Start(ctx context.Context) error {
	c.mu.Lock()
	c.running = true
	handler := c.handler
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.running = false
		c.mu.Unlock()
	}()

	lines := make(chan string)
	errc := make(chan error, 1)
	go func() {
		sc := bufio.NewScanner(c.in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
		errc <- sc.Err()
	}()

	for {
		c.printPrompt()
		select {
		case <-ctx.Done():
			return nil
		case err := <-errc:
			fmt.Fprintln(c.out)
			return err
		case line := <-lines:
			text := strings.TrimSpace(line)
			if text == "" || handler == nil {
				continue
			}
			handler(domain.InboundEvent{
				ID:        uuid.NewString(),
				ChannelID: ID,
				SenderID:  c.identity,
				Kind:      domain.EventKindText,
				Text:      text,
				Timestamp: time.Now(),
			})
		}
	}
}

func (c *Channel) Stop(_ context.Context) error { return nil }

func (c *Channel) printPrompt() {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprint(c.out, c.prompt)
}

// Send prints a prompt as a block of text.
func (c *Channel) Send(_ context.Context, msg domain.OutboundMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := fmt.Fprintf(c.out, "\n%s\n", channel.RenderPlain(msg.Prompt))
	return err
}

package whatsapp

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soyeahso/orderbot/internal/config"
	"github.com/soyeahso/orderbot/internal/domain"
	"github.com/soyeahso/orderbot/internal/logging"
)

func testLogger() *logging.Logger {
	return logging.New(nil, "silent")
}

// graphAPI records the messages posted to it.
type graphAPI struct {
	mu       sync.Mutex
	bodies   []map[string]any
	auth     []string
	paths    []string
	failures int32 // respond 500 this many times first
}

func (g *graphAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if atomic.AddInt32(&g.failures, -1) >= 0 {
		http.Error(w, `{"error":"try later"}`, http.StatusInternalServerError)
		return
	}
	var body map[string]any
	json.NewDecoder(r.Body).Decode(&body)
	g.mu.Lock()
	g.bodies = append(g.bodies, body)
	g.auth = append(g.auth, r.Header.Get("Authorization"))
	g.paths = append(g.paths, r.URL.Path)
	g.mu.Unlock()
	w.Write([]byte(`{"messages":[{"id":"wamid.out"}]}`))
}

func newTestChannel(t *testing.T, api http.Handler) *Channel {
	t.Helper()
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)
	return New(config.WhatsAppConfig{
		PhoneNumberID: "106540352242922",
		AccessToken:   "token-123",
		VerifyToken:   "verify-me",
		APIBaseURL:    srv.URL,
		APIVersion:    "v18.0",
		RetryMax:      2,
	}, testLogger())
}

func TestCapabilities(t *testing.T) {
	ch := New(config.WhatsAppConfig{}, testLogger())
	assert.Equal(t, "whatsapp", ch.ID())
	assert.True(t, ch.Capabilities().Choices)
	assert.True(t, ch.Capabilities().Documents)
}

func TestSend_Text(t *testing.T) {
	api := &graphAPI{}
	ch := newTestChannel(t, api)

	err := ch.Send(context.Background(), domain.OutboundMessage{To: "15551234567", Prompt: domain.TextPrompt("hello"), ReplyToID: "wamid.in"})
	require.NoError(t, err)

	require.Len(t, api.bodies, 1)
	assert.Equal(t, "/v18.0/106540352242922/messages", api.paths[0])
	assert.Equal(t, "Bearer token-123", api.auth[0])
	body := api.bodies[0]
	assert.Equal(t, "whatsapp", body["messaging_product"])
	assert.Equal(t, "15551234567", body["to"])
	assert.Equal(t, "text", body["type"])
	assert.Equal(t, "hello", body["text"].(map[string]any)["body"])
	assert.Equal(t, "wamid.in", body["context"].(map[string]any)["message_id"])
}

func TestSend_ChoiceBecomesButtons(t *testing.T) {
	api := &graphAPI{}
	ch := newTestChannel(t, api)

	p := domain.ChoicePrompt("Pay how?",
		domain.Option{ID: "instant", Label: "💳 Pay Now"},
		domain.Option{ID: "30_days", Label: "A very long button label indeed"},
	)
	require.NoError(t, ch.Send(context.Background(), domain.OutboundMessage{To: "1", Prompt: p}))

	body := api.bodies[0]
	assert.Equal(t, "interactive", body["type"])
	inter := body["interactive"].(map[string]any)
	assert.Equal(t, "button", inter["type"])
	buttons := inter["action"].(map[string]any)["buttons"].([]any)
	require.Len(t, buttons, 2)
	reply := buttons[1].(map[string]any)["reply"].(map[string]any)
	assert.Equal(t, "30_days", reply["id"])
	assert.LessOrEqual(t, len([]rune(reply["title"].(string))), maxButtonTitle)
}

func TestSend_Document(t *testing.T) {
	api := &graphAPI{}
	ch := newTestChannel(t, api)

	p := domain.DocumentPrompt("https://shop.example.com/receipts/r.txt", "r.txt", "Your receipt")
	require.NoError(t, ch.Send(context.Background(), domain.OutboundMessage{To: "1", Prompt: p}))

	doc := api.bodies[0]["document"].(map[string]any)
	assert.Equal(t, "https://shop.example.com/receipts/r.txt", doc["link"])
	assert.Equal(t, "r.txt", doc["filename"])
	assert.Equal(t, "Your receipt", doc["caption"])
}

func TestSend_RetriesServerErrors(t *testing.T) {
	api := &graphAPI{failures: 2}
	ch := newTestChannel(t, api)
	ch.http.RetryWaitMin = time.Millisecond
	ch.http.RetryWaitMax = time.Millisecond

	require.NoError(t, ch.Send(context.Background(), domain.OutboundMessage{To: "1", Prompt: domain.TextPrompt("hi")}))
	assert.Len(t, api.bodies, 1)
}

func TestSend_ClientError(t *testing.T) {
	ch := newTestChannel(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"error":{"message":"Invalid OAuth access token"}}`, http.StatusUnauthorized)
	}))

	err := ch.Send(context.Background(), domain.OutboundMessage{To: "1", Prompt: domain.TextPrompt("hi")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
	assert.Contains(t, ch.Status().LastError, "Invalid OAuth")
}

func TestSend_NoRecipient(t *testing.T) {
	ch := New(config.WhatsAppConfig{}, testLogger())
	assert.Error(t, ch.Send(context.Background(), domain.OutboundMessage{Prompt: domain.TextPrompt("hi")}))
}

func TestWebhook_Verify(t *testing.T) {
	ch := New(config.WhatsAppConfig{VerifyToken: "verify-me"}, testLogger())

	rec := httptest.NewRecorder()
	ch.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/webhook?hub.mode=subscribe&hub.verify_token=verify-me&hub.challenge=1158201444", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "1158201444", rec.Body.String())

	rec = httptest.NewRecorder()
	ch.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/webhook?hub.mode=subscribe&hub.verify_token=wrong&hub.challenge=1", nil))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = httptest.NewRecorder()
	ch.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/webhook?hub.mode=unsubscribe&hub.verify_token=verify-me", nil))
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func readFixture(t *testing.T) []byte {
	t.Helper()
	data, err := os.ReadFile("testdata/webhook.json")
	require.NoError(t, err)
	return data
}

func TestWebhook_DispatchesMessages(t *testing.T) {
	ch := New(config.WhatsAppConfig{}, testLogger())
	var got []domain.InboundEvent
	ch.OnMessage(func(ev domain.InboundEvent) { got = append(got, ev) })

	rec := httptest.NewRecorder()
	ch.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(string(readFixture(t)))))
	require.Equal(t, http.StatusOK, rec.Code)

	require.Len(t, got, 3)

	assert.Equal(t, "wamid.text1", got[0].ID)
	assert.Equal(t, "15551234567", got[0].SenderID)
	assert.Equal(t, "Alice", got[0].SenderName)
	assert.Equal(t, domain.EventKindText, got[0].Kind)
	assert.Equal(t, "hi", got[0].Text)
	assert.Equal(t, time.Unix(1710028800, 0).UTC(), got[0].Timestamp)

	assert.Equal(t, domain.EventKindStructuredReply, got[1].Kind)
	assert.Equal(t, "browse_products", got[1].Selection())

	assert.Equal(t, "wamid.tpl1", got[2].ID)
	assert.Equal(t, "confirm_order", got[2].Selection())
}

func TestWebhook_IgnoresOtherObjects(t *testing.T) {
	ch := New(config.WhatsAppConfig{}, testLogger())
	called := false
	ch.OnMessage(func(domain.InboundEvent) { called = true })

	rec := httptest.NewRecorder()
	ch.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(`{"object":"page","entry":[]}`)))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, called)
}

func TestWebhook_Malformed(t *testing.T) {
	ch := New(config.WhatsAppConfig{}, testLogger())
	rec := httptest.NewRecorder()
	ch.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(`{not json`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWebhook_Signature(t *testing.T) {
	ch := New(config.WhatsAppConfig{AppSecret: "s3cret"}, testLogger())
	var got int
	ch.OnMessage(func(domain.InboundEvent) { got++ })
	body := readFixture(t)

	post := func(sig string) int {
		req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(string(body)))
		if sig != "" {
			req.Header.Set("X-Hub-Signature-256", sig)
		}
		rec := httptest.NewRecorder()
		ch.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusForbidden, post(""))
	assert.Equal(t, http.StatusForbidden, post("sha256=deadbeef"))
	assert.Equal(t, http.StatusForbidden, post("sha1=abc"))
	assert.Zero(t, got)

	assert.Equal(t, http.StatusOK, post("sha256="+hex.EncodeToString(sign("s3cret", body))))
	assert.Equal(t, 3, got)
}

func TestWebhook_MethodNotAllowed(t *testing.T) {
	ch := New(config.WhatsAppConfig{}, testLogger())
	rec := httptest.NewRecorder()
	ch.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/webhook", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestStartStop(t *testing.T) {
	ch := New(config.WhatsAppConfig{}, testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- ch.Start(ctx) }()

	assert.Eventually(t, func() bool { return ch.Status().Running }, time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)
	assert.False(t, ch.Status().Running)
}

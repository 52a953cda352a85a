package api

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ysdkz/graycells/internal/line"
	"github.com/ysdkz/graycells/internal/models"
)

type fakeHandler struct {
	replies []models.Reply
	err     error
	handled []models.Event
}

func (h *fakeHandler) HandleEvent(ctx context.Context, event models.Event) ([]models.Reply, error) {
	h.handled = append(h.handled, event)
	return h.replies, h.err
}

type fakeTransport struct {
	events   []models.Event
	parseErr error
	tokens   []string
	replied  [][]models.Reply
	replyErr error
}

func (t *fakeTransport) ParseRequest(r *http.Request) ([]models.Event, error) {
	return t.events, t.parseErr
}

func (t *fakeTransport) Reply(ctx context.Context, replyToken string, replies []models.Reply) error {
	t.tokens = append(t.tokens, replyToken)
	t.replied = append(t.replied, replies)
	return t.replyErr
}

func postWebhook(t *testing.T, server *Server, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(body))
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder) models.APIResponse {
	t.Helper()
	var resp models.APIResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response body %q: %v", rec.Body.String(), err)
	}
	return resp
}

func TestWebhookRejectsNonPost(t *testing.T) {
	server := NewServer(&fakeHandler{}, &fakeTransport{})
	req := httptest.NewRequest(http.MethodGet, "/webhook", nil)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected 405, got %d", rec.Code)
	}
}

func TestWebhookInvalidSignature(t *testing.T) {
	server := NewServer(&fakeHandler{}, &fakeTransport{parseErr: line.ErrInvalidSignature})
	rec := postWebhook(t, server, "{}")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
	if resp := decodeResponse(t, rec); resp.Status != models.APIStatusError {
		t.Errorf("expected error envelope, got %+v", resp)
	}
}

func TestWebhookParseFailure(t *testing.T) {
	server := NewServer(&fakeHandler{}, &fakeTransport{parseErr: fmt.Errorf("bad payload")})
	rec := postWebhook(t, server, "not json")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

func TestWebhookDispatchesAndReplies(t *testing.T) {
	handler := &fakeHandler{replies: []models.Reply{models.TextReply("hello")}}
	transport := &fakeTransport{events: []models.Event{
		{UserID: "u1", ReplyToken: "tok1", Kind: models.EventKindText, Text: "a"},
		{UserID: "u2", ReplyToken: "tok2", Kind: models.EventKindText, Text: "b"},
	}}
	server := NewServer(handler, transport)

	rec := postWebhook(t, server, "{}")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if resp := decodeResponse(t, rec); resp.Message != "ok" {
		t.Errorf("expected acknowledgement body, got %+v", resp)
	}
	if len(handler.handled) != 2 {
		t.Errorf("expected 2 handled events, got %d", len(handler.handled))
	}
	if len(transport.tokens) != 2 || transport.tokens[0] != "tok1" || transport.tokens[1] != "tok2" {
		t.Errorf("replies not delivered per event: %v", transport.tokens)
	}
}

func TestWebhookHandlerFailureStillAcknowledged(t *testing.T) {
	handler := &fakeHandler{err: fmt.Errorf("engine down")}
	transport := &fakeTransport{events: []models.Event{
		{UserID: "u1", ReplyToken: "tok1", Kind: models.EventKindText, Text: "a"},
	}}
	server := NewServer(handler, transport)

	rec := postWebhook(t, server, "{}")
	if rec.Code != http.StatusOK {
		t.Errorf("a failing turn must not fail the delivery, got %d", rec.Code)
	}
	if len(transport.tokens) != 0 {
		t.Errorf("no reply expected after a handler failure, got %v", transport.tokens)
	}
}

func TestWebhookSkipsEmptyReplies(t *testing.T) {
	handler := &fakeHandler{} // nil replies
	transport := &fakeTransport{events: []models.Event{
		{UserID: "u1", ReplyToken: "tok1", Kind: models.EventKindText, Text: "a"},
	}}
	server := NewServer(handler, transport)

	postWebhook(t, server, "{}")
	if len(transport.tokens) != 0 {
		t.Errorf("no reply expected for an empty turn, got %v", transport.tokens)
	}
}

func TestHealthHandler(t *testing.T) {
	server := NewServer(&fakeHandler{}, &fakeTransport{})
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if resp := decodeResponse(t, rec); resp.Status != models.APIStatusOK {
		t.Errorf("expected ok envelope, got %+v", resp)
	}
}

// TestWebhookSignatureVerification runs the real LINE parser against a body
// signed with the channel secret.
func TestWebhookSignatureVerification(t *testing.T) {
	const secret = "test-channel-secret"
	lineClient, err := line.NewClient(line.WithChannelSecret(secret), line.WithChannelToken("token"))
	if err != nil {
		t.Fatalf("failed to create LINE client: %v", err)
	}
	// An event set the engine produces no replies for, so the transport's
	// reply path is never exercised.
	handler := &fakeHandler{}
	server := NewServer(handler, lineClient)

	body := `{"destination":"U0","events":[{"type":"message","replyToken":"tok","source":{"type":"user","userId":"u1"},"message":{"type":"text","id":"1","text":"hello"}}]}`

	sign := func(payload, key string) string {
		mac := hmac.New(sha256.New, []byte(key))
		mac.Write([]byte(payload))
		return base64.StdEncoding.EncodeToString(mac.Sum(nil))
	}

	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(body))
	req.Header.Set("X-Line-Signature", sign(body, secret))
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("valid signature rejected: %d %s", rec.Code, rec.Body.String())
	}
	if len(handler.handled) != 1 || handler.handled[0].Text != "hello" {
		t.Errorf("event not dispatched: %+v", handler.handled)
	}

	req = httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(body))
	req.Header.Set("X-Line-Signature", sign(body, "wrong-secret"))
	rec = httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("forged signature accepted: %d", rec.Code)
	}
}

package line

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/line/line-bot-sdk-go/v7/linebot"

	"github.com/ysdkz/graycells/internal/models"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()
	client, err := NewClient(WithChannelSecret("secret"), WithChannelToken("token"))
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	return client
}

func TestNewClientRequiresCredentials(t *testing.T) {
	if _, err := NewClient(WithChannelToken("token")); err == nil {
		t.Error("expected error without channel secret")
	}
	if _, err := NewClient(WithChannelSecret("secret")); err == nil {
		t.Error("expected error without channel token")
	}
}

func TestConvertEvents(t *testing.T) {
	source := &linebot.EventSource{Type: linebot.EventSourceTypeUser, UserID: "u1"}
	events := []*linebot.Event{
		{
			Type:       linebot.EventTypeMessage,
			ReplyToken: "tok1",
			Source:     source,
			Message:    &linebot.TextMessage{Text: "hello"},
		},
		{
			Type:       linebot.EventTypePostback,
			ReplyToken: "tok2",
			Source:     source,
			Postback:   &linebot.Postback{Data: models.PostbackTryToAnswer},
		},
		// Dropped: non-text message, missing source, follow event.
		{
			Type:       linebot.EventTypeMessage,
			ReplyToken: "tok3",
			Source:     source,
			Message:    &linebot.StickerMessage{PackageID: "1", StickerID: "2"},
		},
		{
			Type:       linebot.EventTypeMessage,
			ReplyToken: "tok4",
			Message:    &linebot.TextMessage{Text: "no source"},
		},
		{
			Type:       linebot.EventTypeFollow,
			ReplyToken: "tok5",
			Source:     source,
		},
	}

	converted := convertEvents(events)
	if len(converted) != 2 {
		t.Fatalf("expected 2 events, got %d", len(converted))
	}
	if converted[0].Kind != models.EventKindText || converted[0].Text != "hello" || converted[0].ReplyToken != "tok1" {
		t.Errorf("text event converted wrong: %+v", converted[0])
	}
	if converted[1].Kind != models.EventKindPostback || converted[1].Postback != models.PostbackTryToAnswer {
		t.Errorf("postback event converted wrong: %+v", converted[1])
	}
	for _, ev := range converted {
		if ev.UserID != "u1" {
			t.Errorf("user id lost: %+v", ev)
		}
	}
}

func TestBuildMessages(t *testing.T) {
	replies := []models.Reply{
		{Text: "plain"},
		{
			Text: "with actions",
			Actions: []models.QuickAction{
				{Label: "クイズに挑戦", Kind: models.ActionKindPostback, Data: models.PostbackTryToAnswer, DisplayText: "クイズに挑戦"},
				{Label: "1", Kind: models.ActionKindMessage, Data: "1"},
			},
		},
	}

	messages := buildMessages(replies)
	if len(messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(messages))
	}

	// The SDK keeps quick replies in unexported fields, so assert through
	// the wire form it marshals.
	first, err := json.Marshal(messages[0])
	if err != nil {
		t.Fatalf("failed to marshal first message: %v", err)
	}
	if !strings.Contains(string(first), `"text":"plain"`) {
		t.Errorf("plain message built wrong: %s", first)
	}
	if strings.Contains(string(first), "quickReply") {
		t.Errorf("plain message must not carry quick replies: %s", first)
	}

	second, err := json.Marshal(messages[1])
	if err != nil {
		t.Fatalf("failed to marshal second message: %v", err)
	}
	for _, want := range []string{
		`"quickReply"`,
		`"type":"postback"`,
		`"data":"` + models.PostbackTryToAnswer + `"`,
		`"type":"message"`,
		`"text":"1"`,
	} {
		if !strings.Contains(string(second), want) {
			t.Errorf("quick replies not attached as expected: missing %s in %s", want, second)
		}
	}
}

func TestNotifyLoading(t *testing.T) {
	var gotAuth string
	var gotBody map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &gotBody)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	client := newTestClient(t)
	client.loadingURL = server.URL
	client.NotifyLoading(context.Background(), "u1")

	if gotAuth != "Bearer token" {
		t.Errorf("wrong authorization header: %q", gotAuth)
	}
	if gotBody["chatId"] != "u1" {
		t.Errorf("wrong chat id: %v", gotBody["chatId"])
	}
	if secs, ok := gotBody["loadingSeconds"].(float64); !ok || int(secs) != loadingSeconds {
		t.Errorf("wrong loading seconds: %v", gotBody["loadingSeconds"])
	}
}

func TestNotifyLoadingSwallowsFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	client := newTestClient(t)
	client.loadingURL = server.URL
	// Must not panic or block.
	client.NotifyLoading(context.Background(), "u1")
}

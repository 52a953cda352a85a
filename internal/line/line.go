// Package line adapts the LINE Messaging API to the engine's event and
// reply types. Webhook parsing, reply delivery, and the loading indicator
// all live here so the rest of the service never sees SDK types.
package line

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/line/line-bot-sdk-go/v7/linebot"

	"github.com/ysdkz/graycells/internal/models"
)

// ErrInvalidSignature indicates a webhook request whose X-Line-Signature
// does not match the channel secret.
var ErrInvalidSignature = linebot.ErrInvalidSignature

const (
	// defaultLoadingEndpoint is the chat loading indicator endpoint; the
	// v7 SDK does not cover it, so it is called directly.
	defaultLoadingEndpoint = "https://api.line.me/v2/bot/chat/loading/start"

	// loadingSeconds is how long the typing indicator stays up. LINE
	// accepts 5..60 in steps of 5 and dismisses it early when a reply
	// arrives.
	loadingSeconds = 30

	defaultHTTPTimeout = 10 * time.Second
)

// Opts holds the configuration for the LINE client.
type Opts struct {
	// ChannelSecret verifies webhook signatures.
	ChannelSecret string
	// ChannelToken authenticates Messaging API calls.
	ChannelToken string
	// HTTPClient optionally overrides the HTTP client used for the
	// loading indicator endpoint.
	HTTPClient *http.Client
}

// Option defines a configuration option for the LINE client.
type Option func(*Opts)

// WithChannelSecret sets the channel secret.
func WithChannelSecret(secret string) Option {
	return func(o *Opts) {
		o.ChannelSecret = secret
	}
}

// WithChannelToken sets the channel access token.
func WithChannelToken(token string) Option {
	return func(o *Opts) {
		o.ChannelToken = token
	}
}

// WithHTTPClient sets the HTTP client for direct endpoint calls.
func WithHTTPClient(client *http.Client) Option {
	return func(o *Opts) {
		o.HTTPClient = client
	}
}

// Client talks to the LINE Messaging API for one channel.
type Client struct {
	bot        *linebot.Client
	token      string
	httpClient *http.Client
	loadingURL string
}

// NewClient creates a LINE client. The channel secret and access token are
// required.
func NewClient(opts ...Option) (*Client, error) {
	var o Opts
	for _, opt := range opts {
		opt(&o)
	}
	if o.ChannelSecret == "" {
		return nil, errors.New("LINE channel secret is required")
	}
	if o.ChannelToken == "" {
		return nil, errors.New("LINE channel access token is required")
	}

	bot, err := linebot.New(o.ChannelSecret, o.ChannelToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create LINE bot client: %w", err)
	}

	httpClient := o.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultHTTPTimeout}
	}

	slog.Debug("LINE client created")
	return &Client{
		bot:        bot,
		token:      o.ChannelToken,
		httpClient: httpClient,
		loadingURL: defaultLoadingEndpoint,
	}, nil
}

// ParseRequest verifies and decodes a webhook request into engine events.
// Event types the engine does not handle (follows, stickers, images, ...)
// are dropped here. Returns ErrInvalidSignature on a signature mismatch.
func (c *Client) ParseRequest(r *http.Request) ([]models.Event, error) {
	events, err := c.bot.ParseRequest(r)
	if err != nil {
		if errors.Is(err, linebot.ErrInvalidSignature) {
			return nil, ErrInvalidSignature
		}
		return nil, fmt.Errorf("failed to parse webhook request: %w", err)
	}
	return convertEvents(events), nil
}

func convertEvents(events []*linebot.Event) []models.Event {
	var out []models.Event
	for _, ev := range events {
		if ev.Source == nil || ev.Source.UserID == "" {
			continue
		}
		switch ev.Type {
		case linebot.EventTypeMessage:
			text, ok := ev.Message.(*linebot.TextMessage)
			if !ok {
				slog.Debug("LINE ignoring non-text message", "userID", ev.Source.UserID)
				continue
			}
			out = append(out, models.Event{
				UserID:     ev.Source.UserID,
				ReplyToken: ev.ReplyToken,
				Kind:       models.EventKindText,
				Text:       text.Text,
			})
		case linebot.EventTypePostback:
			if ev.Postback == nil {
				continue
			}
			out = append(out, models.Event{
				UserID:     ev.Source.UserID,
				ReplyToken: ev.ReplyToken,
				Kind:       models.EventKindPostback,
				Postback:   ev.Postback.Data,
			})
		default:
			slog.Debug("LINE ignoring event", "type", ev.Type, "userID", ev.Source.UserID)
		}
	}
	return out
}

// Reply delivers the turn's replies against one reply token. LINE accepts
// at most five messages per reply; the engine never produces more than
// four, so no chunking is done.
func (c *Client) Reply(ctx context.Context, replyToken string, replies []models.Reply) error {
	if len(replies) == 0 {
		return nil
	}
	messages := buildMessages(replies)
	if _, err := c.bot.ReplyMessage(replyToken, messages...).WithContext(ctx).Do(); err != nil {
		return fmt.Errorf("failed to send reply: %w", err)
	}
	slog.Debug("LINE reply sent", "messages", len(messages))
	return nil
}

func buildMessages(replies []models.Reply) []linebot.SendingMessage {
	messages := make([]linebot.SendingMessage, 0, len(replies))
	for _, reply := range replies {
		msg := linebot.NewTextMessage(reply.Text)
		if len(reply.Actions) == 0 {
			messages = append(messages, msg)
			continue
		}
		buttons := make([]*linebot.QuickReplyButton, 0, len(reply.Actions))
		for _, action := range reply.Actions {
			buttons = append(buttons, linebot.NewQuickReplyButton("", quickReplyAction(action)))
		}
		messages = append(messages, msg.WithQuickReplies(linebot.NewQuickReplyItems(buttons...)))
	}
	return messages
}

func quickReplyAction(action models.QuickAction) linebot.QuickReplyAction {
	if action.Kind == models.ActionKindPostback {
		return linebot.NewPostbackAction(action.Label, action.Data, "", action.DisplayText, "", "")
	}
	return linebot.NewMessageAction(action.Label, action.Data)
}

// Push sends a text message outside a reply context, e.g. the diary
// reminder.
func (c *Client) Push(ctx context.Context, userID string, text string) error {
	if _, err := c.bot.PushMessage(userID, linebot.NewTextMessage(text)).WithContext(ctx).Do(); err != nil {
		return fmt.Errorf("failed to push message: %w", err)
	}
	slog.Debug("LINE push sent", "userID", userID)
	return nil
}

// NotifyLoading shows the typing indicator in the user's chat. Failures
// are logged and swallowed; the indicator is cosmetic.
func (c *Client) NotifyLoading(ctx context.Context, userID string) {
	payload, err := json.Marshal(map[string]any{
		"chatId":         userID,
		"loadingSeconds": loadingSeconds,
	})
	if err != nil {
		slog.Error("LINE NotifyLoading marshal failed", "error", err)
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.loadingURL, bytes.NewReader(payload))
	if err != nil {
		slog.Error("LINE NotifyLoading request failed", "error", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		slog.Warn("LINE NotifyLoading call failed", "error", err, "userID", userID)
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted && resp.StatusCode != http.StatusOK {
		slog.Warn("LINE NotifyLoading rejected", "status", resp.StatusCode, "userID", userID)
	}
}

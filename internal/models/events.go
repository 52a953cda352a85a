// Package models defines the event and reply shapes exchanged with the
// webhook adapter.
package models

// EventKind discriminates inbound webhook events.
type EventKind string

const (
	// EventKindText is a plain text message from the user.
	EventKindText EventKind = "text"
	// EventKindPostback is a selection of a quick action.
	EventKindPostback EventKind = "postback"
)

// Postback payload keys understood by the conversation engine.
const (
	// PostbackTryToAnswer starts the open diary's quiz.
	PostbackTryToAnswer = "try_to_answer"
	// PostbackAskQuestion opens a free-form question session about the diary.
	PostbackAskQuestion = "ask_question"
)

// Event is one decoded inbound webhook event.
type Event struct {
	UserID     string    `json:"user_id"`
	ReplyToken string    `json:"reply_token"` // opaque token used for outbound routing
	Kind       EventKind `json:"kind"`
	Text       string    `json:"text,omitempty"`     // set when Kind is EventKindText
	Postback   string    `json:"postback,omitempty"` // payload key, set when Kind is EventKindPostback
}

// Validate checks that the event satisfies the engine's input contract.
func (e Event) Validate() error {
	if e.UserID == "" {
		return ErrEmptyUserID
	}
	switch e.Kind {
	case EventKindText:
		if e.Text == "" {
			return ErrEmptyMessageText
		}
	case EventKindPostback:
		if e.Postback == "" {
			return ErrEmptyPostbackKey
		}
	default:
		return ErrUnknownEventKind
	}
	return nil
}

// ActionKind discriminates quick actions attached to a reply.
type ActionKind string

const (
	// ActionKindMessage sends Data as a text message on the user's behalf.
	ActionKindMessage ActionKind = "message"
	// ActionKindPostback delivers Data back to the engine as a postback key.
	ActionKindPostback ActionKind = "postback"
)

// QuickAction is one selectable action attached to a reply message.
type QuickAction struct {
	Label       string     `json:"label"`
	Kind        ActionKind `json:"kind"`
	Data        string     `json:"data"`
	DisplayText string     `json:"display_text,omitempty"` // chat echo for postback actions
}

// Reply is one outbound message, optionally with selectable quick actions.
type Reply struct {
	Text    string        `json:"text"`
	Actions []QuickAction `json:"actions,omitempty"`
}

// TextReply builds a plain text reply.
func TextReply(text string) Reply {
	return Reply{Text: text}
}

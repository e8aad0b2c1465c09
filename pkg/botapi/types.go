package botapi

import "strings"

// Event kinds delivered by the Bot API events/get endpoint. Only the ones the
// bot reacts to are modeled; anything else is skipped by the poll loop.
type EventType string

const (
	EventTypeNewMessage    EventType = "newMessage"
	EventTypeCallbackQuery EventType = "callbackQuery"
)

// Chat kinds as reported by the API.
const (
	ChatTypePrivate = "private"
	ChatTypeGroup   = "group"
)

type Chat struct {
	ChatID string `json:"chatId"`
	Type   string `json:"type"`
	Title  string `json:"title,omitempty"`
}

type Contact struct {
	UserID    string `json:"userId"`
	FirstName string `json:"firstName,omitempty"`
	LastName  string `json:"lastName,omitempty"`
}

// DisplayName returns "First Last" trimmed, falling back to the user id.
// Callers that need a non-empty label apply their own default on top.
func (c Contact) DisplayName() string {
	name := strings.TrimSpace(strings.TrimSpace(c.FirstName) + " " + strings.TrimSpace(c.LastName))
	if name != "" {
		return name
	}
	return c.UserID
}

// MessageContext is the originating message attached to a callbackQuery.
type MessageContext struct {
	MsgID string `json:"msgId"`
	Chat  Chat   `json:"chat"`
	Text  string `json:"text,omitempty"`
}

// EventPayload is a union of the newMessage and callbackQuery payload fields.
type EventPayload struct {
	// newMessage
	MsgID     string `json:"msgId,omitempty"`
	Chat      Chat   `json:"chat,omitempty"`
	Text      string `json:"text,omitempty"`
	Timestamp int64  `json:"timestamp,omitempty"`

	// callbackQuery
	QueryID      string          `json:"queryId,omitempty"`
	CallbackData string          `json:"callbackData,omitempty"`
	Message      *MessageContext `json:"message,omitempty"`

	From Contact `json:"from"`
}

type Event struct {
	EventID int64        `json:"eventId"`
	Type    EventType    `json:"type"`
	Payload EventPayload `json:"payload"`
}

// ChatID returns the chat the event originated in, regardless of event kind.
func (e Event) ChatID() string {
	if e.Type == EventTypeCallbackQuery {
		if e.Payload.Message != nil {
			return e.Payload.Message.Chat.ChatID
		}
		return ""
	}
	return e.Payload.Chat.ChatID
}

// ChatType returns the kind of the originating chat.
func (e Event) ChatType() string {
	if e.Type == EventTypeCallbackQuery {
		if e.Payload.Message != nil {
			return e.Payload.Message.Chat.Type
		}
		return ""
	}
	return e.Payload.Chat.Type
}

// Button styles understood by the client UI.
const (
	ButtonStylePrimary   = "primary"
	ButtonStyleSecondary = "secondary"
	ButtonStyleAttention = "attention"
)

// Button is one labeled key of an inline keyboard. A button carries either a
// callback token or nothing actionable.
type Button struct {
	Text         string `json:"text"`
	CallbackData string `json:"callbackData,omitempty"`
	URL          string `json:"url,omitempty"`
	Style        string `json:"style,omitempty"`
}

// Keyboard is a declarative grid of buttons, row-major.
type Keyboard [][]Button

// Row appends one row of buttons and returns the keyboard for chaining.
func (k Keyboard) Row(buttons ...Button) Keyboard {
	return append(k, buttons)
}

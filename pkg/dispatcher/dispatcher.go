// Event dispatcher - the single-threaded loop between the Bot API and the
// handlers
package dispatcher

import (
	"context"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/revubot/revubot/pkg/botapi"
	"github.com/revubot/revubot/pkg/handler"
	"github.com/revubot/revubot/pkg/service"
	"github.com/revubot/revubot/pkg/utils"
)

// EventSource delivers inbound events. *botapi.Client satisfies it.
type EventSource interface {
	Poll(ctx context.Context, handler func(botapi.Event)) error
}

// CallbackAnswerer acknowledges button presses. *botapi.Client satisfies it.
type CallbackAnswerer interface {
	AnswerCallbackQuery(ctx context.Context, queryID, text string) error
}

// Dispatcher routes inbound events to the command, message and callback
// handlers. Events are processed one at a time, in delivery order, on the
// polling goroutine; no handler runs concurrently with another.
type Dispatcher struct {
	source    EventSource
	answerer  CallbackAnswerer
	sender    service.Sender
	states    *service.StateService
	commands  *handler.CommandHandler
	messages  *handler.MessageHandler
	callbacks *handler.CallbackHandler
	logger    *slog.Logger
}

func New(
	source EventSource,
	answerer CallbackAnswerer,
	sender service.Sender,
	states *service.StateService,
	commands *handler.CommandHandler,
	messages *handler.MessageHandler,
	callbacks *handler.CallbackHandler,
) *Dispatcher {
	return &Dispatcher{
		source:    source,
		answerer:  answerer,
		sender:    sender,
		states:    states,
		commands:  commands,
		messages:  messages,
		callbacks: callbacks,
		logger:    utils.GetLogger(),
	}
}

// Run blocks polling for events until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) error {
	return d.source.Poll(ctx, func(ev botapi.Event) {
		d.Dispatch(ctx, ev)
	})
}

// Dispatch handles one event. Unexpected failures are caught here, at the
// router boundary: they are logged with context, answered with a generic
// apology, and the affected user's dialogue state is cleared so the session
// cannot get stuck. The loop itself always survives.
func (d *Dispatcher) Dispatch(ctx context.Context, ev botapi.Event) {
	eventID := uuid.NewString()

	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("Panic while handling event",
				"event", eventID, "type", ev.Type, "panic", r)
			d.recoverUser(ctx, ev)
		}
	}()

	// The bot only talks in private chats; group traffic is broadcast-only.
	if ev.ChatType() != botapi.ChatTypePrivate {
		return
	}

	var err error
	switch ev.Type {
	case botapi.EventTypeNewMessage:
		text := strings.TrimSpace(ev.Payload.Text)
		if isStartCommand(text) {
			err = d.commands.HandleStart(ctx, ev)
		} else {
			err = d.messages.Handle(ctx, ev)
		}
	case botapi.EventTypeCallbackQuery:
		if d.answerer != nil && ev.Payload.QueryID != "" {
			if ackErr := d.answerer.AnswerCallbackQuery(ctx, ev.Payload.QueryID, ""); ackErr != nil {
				d.logger.Warn("Failed to answer callback query", "event", eventID, "error", ackErr)
			}
		}
		err = d.callbacks.Handle(ctx, ev)
	default:
		return
	}

	if err != nil {
		d.logger.Error("Failed to handle event",
			"event", eventID, "type", ev.Type, "user", ev.Payload.From.UserID, "error", err)
		d.recoverUser(ctx, ev)
	}
}

// recoverUser apologizes to the chat and drops any dialogue state of the
// affected user.
func (d *Dispatcher) recoverUser(ctx context.Context, ev botapi.Event) {
	if userID := ev.Payload.From.UserID; userID != "" {
		d.states.Clear(userID)
	}
	if chatID := ev.ChatID(); chatID != "" {
		if err := d.sender.SendText(ctx, chatID, "Something went wrong. Please try again.", nil); err != nil {
			d.logger.Warn("Failed to send apology", "error", err)
		}
	}
}

func isStartCommand(text string) bool {
	return text == "/start" || strings.HasPrefix(text, "/start ")
}

package dispatcher

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/pkg/errors"

	"github.com/revubot/revubot/pkg/botapi"
	"github.com/revubot/revubot/pkg/db"
	"github.com/revubot/revubot/pkg/handler"
	"github.com/revubot/revubot/pkg/service"
)

type sentMessage struct {
	ChatID string
	Text   string
}

// fakeSender records sends and can fail the next N of them.
type fakeSender struct {
	sent     []sentMessage
	failNext int
}

func (f *fakeSender) SendText(_ context.Context, chatID, text string, _ botapi.Keyboard) error {
	if f.failNext > 0 {
		f.failNext--
		return errors.New("send failed")
	}
	f.sent = append(f.sent, sentMessage{ChatID: chatID, Text: text})
	return nil
}

type fakeAnswerer struct {
	answered []string
}

func (f *fakeAnswerer) AnswerCallbackQuery(_ context.Context, queryID, _ string) error {
	f.answered = append(f.answered, queryID)
	return nil
}

// fakeSource delivers a fixed batch of events and stops.
type fakeSource struct {
	events []botapi.Event
}

func (f *fakeSource) Poll(_ context.Context, h func(botapi.Event)) error {
	for _, ev := range f.events {
		h(ev)
	}
	return nil
}

type fixture struct {
	disp     *Dispatcher
	source   *fakeSource
	sender   *fakeSender
	answerer *fakeAnswerer
	states   *service.StateService
	tasks    *service.TaskService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	gdb, err := db.OpenInMemory()
	if err != nil {
		t.Fatalf("open in-memory db: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	sender := &fakeSender{}
	answerer := &fakeAnswerer{}
	tasks := service.NewTaskService(gdb)
	states := service.NewStateService()
	notifications := service.NewNotificationService(sender, "")

	commands := handler.NewCommandHandler(sender, logger)
	messages := handler.NewMessageHandler(states, sender, logger)
	callbacks := handler.NewCallbackHandler(tasks, states, notifications, sender, logger)

	source := &fakeSource{}
	return &fixture{
		disp:     New(source, answerer, sender, states, commands, messages, callbacks),
		source:   source,
		sender:   sender,
		answerer: answerer,
		states:   states,
		tasks:    tasks,
	}
}

func privateMessage(userID, text string) botapi.Event {
	return botapi.Event{
		Type: botapi.EventTypeNewMessage,
		Payload: botapi.EventPayload{
			Chat: botapi.Chat{ChatID: "chat-" + userID, Type: botapi.ChatTypePrivate},
			Text: text,
			From: botapi.Contact{UserID: userID, FirstName: "Alice"},
		},
	}
}

func callbackQuery(userID, token string) botapi.Event {
	return botapi.Event{
		Type: botapi.EventTypeCallbackQuery,
		Payload: botapi.EventPayload{
			QueryID:      "query-1",
			CallbackData: token,
			Message: &botapi.MessageContext{
				Chat: botapi.Chat{ChatID: "chat-" + userID, Type: botapi.ChatTypePrivate},
			},
			From: botapi.Contact{UserID: userID, FirstName: "Alice"},
		},
	}
}

func TestDispatch_StartCommand(t *testing.T) {
	f := newFixture(t)

	f.disp.Dispatch(context.Background(), privateMessage("alice", "/start"))
	if len(f.sender.sent) != 1 || !strings.Contains(f.sender.sent[0].Text, "Choose an action") {
		t.Fatalf("sent = %+v", f.sender.sent)
	}

	// The command also matches with trailing arguments.
	f.disp.Dispatch(context.Background(), privateMessage("alice", "/start please"))
	if len(f.sender.sent) != 2 {
		t.Fatalf("argumented /start not routed: %+v", f.sender.sent)
	}
}

func TestDispatch_IgnoresGroupChats(t *testing.T) {
	f := newFixture(t)

	ev := privateMessage("alice", "/start")
	ev.Payload.Chat.Type = botapi.ChatTypeGroup
	f.disp.Dispatch(context.Background(), ev)

	if len(f.sender.sent) != 0 {
		t.Fatalf("replied in a group chat: %+v", f.sender.sent)
	}
}

func TestDispatch_AnswersCallbackQueries(t *testing.T) {
	f := newFixture(t)

	f.disp.Dispatch(context.Background(), callbackQuery("alice", "my_tasks"))
	if len(f.answerer.answered) != 1 || f.answerer.answered[0] != "query-1" {
		t.Fatalf("answered = %v", f.answerer.answered)
	}
	if len(f.sender.sent) != 1 {
		t.Fatalf("callback not handled: %+v", f.sender.sent)
	}
}

func TestDispatch_HandlerErrorClearsStateAndApologizes(t *testing.T) {
	f := newFixture(t)
	f.states.Begin("alice", "chat-alice")

	// The re-prompt for the invalid URL fails; the dispatcher must recover.
	f.sender.failNext = 1
	f.disp.Dispatch(context.Background(), privateMessage("alice", "not a url"))

	if _, ok := f.states.Get("alice"); ok {
		t.Fatalf("dialogue state survived a handler failure")
	}
	if len(f.sender.sent) != 1 || !strings.Contains(f.sender.sent[0].Text, "Something went wrong") {
		t.Fatalf("no apology sent: %+v", f.sender.sent)
	}
}

func TestDispatch_RecoversFromPanic(t *testing.T) {
	f := newFixture(t)
	f.states.Begin("alice", "chat-alice")

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	// A handler wired against a nil task service panics on first use.
	broken := handler.NewCallbackHandler(nil, f.states, service.NewNotificationService(f.sender, ""), f.sender, logger)
	disp := New(&fakeSource{}, f.answerer, f.sender, f.states, nil, nil, broken)

	disp.Dispatch(context.Background(), callbackQuery("alice", "my_tasks"))

	if _, ok := f.states.Get("alice"); ok {
		t.Fatalf("dialogue state survived a panic")
	}
	found := false
	for _, msg := range f.sender.sent {
		if strings.Contains(msg.Text, "Something went wrong") {
			found = true
		}
	}
	if !found {
		t.Fatalf("no apology after panic: %+v", f.sender.sent)
	}
}

func TestRun_DrainsSource(t *testing.T) {
	f := newFixture(t)
	f.source.events = []botapi.Event{
		privateMessage("alice", "/start"),
		privateMessage("bob", "/start"),
	}

	if err := f.disp.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(f.sender.sent) != 2 {
		t.Fatalf("events not dispatched: %+v", f.sender.sent)
	}
}

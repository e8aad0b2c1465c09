package handler

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/revubot/revubot/pkg/botapi"
	"github.com/revubot/revubot/pkg/service"
)

// minDescriptionLen is the minimum description length, counted in runes.
const minDescriptionLen = 10

var urlPattern = regexp.MustCompile(`^https?://\S+$`)

// MessageHandler drives the submission dialogue with free-text input. Each
// step validates its input: valid input stores the field and advances exactly
// one step, invalid input re-prompts without advancing.
type MessageHandler struct {
	states *service.StateService
	sender service.Sender
	logger *slog.Logger
}

func NewMessageHandler(states *service.StateService, sender service.Sender, logger *slog.Logger) *MessageHandler {
	return &MessageHandler{states: states, sender: sender, logger: logger}
}

// Handle processes one free-text message. Messages from users with no active
// dialogue are silently ignored; so is free text while the dialogue is
// waiting for the confirm/cancel buttons.
func (h *MessageHandler) Handle(ctx context.Context, ev botapi.Event) error {
	userID := ev.Payload.From.UserID
	state, ok := h.states.Get(userID)
	if !ok {
		return nil
	}

	text := strings.TrimSpace(ev.Payload.Text)

	switch state.Step {
	case service.StepTrackerURL:
		return h.handleTrackerURL(ctx, userID, state.ChatID, text)
	case service.StepDescription:
		return h.handleDescription(ctx, userID, state.ChatID, text)
	case service.StepDocsURL:
		return h.handleDocsURL(ctx, userID, state.ChatID, text)
	case service.StepConfirm:
		// Only the confirm/cancel buttons move the dialogue from here.
		return nil
	}
	return nil
}

func (h *MessageHandler) handleTrackerURL(ctx context.Context, userID, chatID, text string) error {
	if !urlPattern.MatchString(text) {
		return h.sender.SendText(ctx, chatID, "That does not look like a valid URL. Send the tracker issue link:", nil)
	}

	h.states.Update(userID, func(s *service.ConversationState) {
		s.Draft.TrackerURL = text
		s.Step = service.StepDescription
	})
	return h.sender.SendText(ctx, chatID, "Describe the task:", nil)
}

func (h *MessageHandler) handleDescription(ctx context.Context, userID, chatID, text string) error {
	if utf8.RuneCountInString(text) < minDescriptionLen {
		return h.sender.SendText(ctx, chatID, "The description is too short. Please add more detail:", nil)
	}

	h.states.Update(userID, func(s *service.ConversationState) {
		s.Draft.Description = text
		s.Step = service.StepDocsURL
	})
	return h.sender.SendText(ctx, chatID, "Send the documentation page link:", nil)
}

func (h *MessageHandler) handleDocsURL(ctx context.Context, userID, chatID, text string) error {
	if !urlPattern.MatchString(text) {
		return h.sender.SendText(ctx, chatID, "That does not look like a valid URL. Send the documentation page link:", nil)
	}

	var draft service.ConversationState
	h.states.Update(userID, func(s *service.ConversationState) {
		s.Draft.DocsURL = text
		s.Step = service.StepConfirm
		draft = *s
	})

	summary := fmt.Sprintf(
		"Please check the task details:\n\nTracker: %s\nDescription: %s\nDocs: %s",
		draft.Draft.TrackerURL, draft.Draft.Description, draft.Draft.DocsURL,
	)
	return h.sender.SendText(ctx, chatID, summary, confirmationKeyboard())
}

package handler

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/revubot/revubot/pkg/botapi"
	"github.com/revubot/revubot/pkg/service"
)

// CommandHandler answers slash commands. /start is the only one the bot
// knows; it shows the main menu.
type CommandHandler struct {
	sender service.Sender
	logger *slog.Logger
}

func NewCommandHandler(sender service.Sender, logger *slog.Logger) *CommandHandler {
	return &CommandHandler{sender: sender, logger: logger}
}

// HandleStart greets the user and renders the main menu keyboard.
func (h *CommandHandler) HandleStart(ctx context.Context, ev botapi.Event) error {
	name := ev.Payload.From.DisplayName()
	text := fmt.Sprintf("Hi, %s! Choose an action:", name)
	return h.sender.SendText(ctx, ev.ChatID(), text, mainKeyboard())
}

// Notification service - group broadcasts, author pings, daily digest
package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/revubot/revubot/pkg/botapi"
	"github.com/revubot/revubot/pkg/models"
	"github.com/revubot/revubot/pkg/utils"
)

// Sender is the outbound message capability the notification service needs.
// *botapi.Client satisfies it.
type Sender interface {
	SendText(ctx context.Context, chatID, text string, keyboard botapi.Keyboard) error
}

// NotificationService sends the informational messages around the review
// workflow. Every send is best-effort: a transport failure never rolls back
// the storage mutation that preceded it.
type NotificationService struct {
	sender    Sender
	groupChat string
	logger    *slog.Logger
}

func NewNotificationService(sender Sender, groupChat string) *NotificationService {
	return &NotificationService{
		sender:    sender,
		groupChat: groupChat,
		logger:    utils.GetLogger(),
	}
}

// BroadcastNewTask announces a freshly submitted task in the group chat.
func (s *NotificationService) BroadcastNewTask(ctx context.Context, task *models.Task) error {
	if s.groupChat == "" {
		return nil
	}
	text := fmt.Sprintf(
		"New task for review from %s:\nTracker: %s\nDescription: %s\nDocs: %s",
		task.Creator, task.TrackerURL, task.Description, task.DocsURL,
	)
	if err := s.sender.SendText(ctx, s.groupChat, text, nil); err != nil {
		s.logger.Error("Failed to broadcast new task", "task", task.ID, "error", err)
		return err
	}
	return nil
}

// BroadcastCompletion announces a task that just reached quorum, naming all
// approvers.
func (s *NotificationService) BroadcastCompletion(ctx context.Context, task *models.Task) error {
	if s.groupChat == "" {
		return nil
	}
	approvers := strings.Join(task.ApprovedBy, ", ")
	text := fmt.Sprintf(
		"Task %s\nTracker: %s\nDocs: %s\nPassed review.\nApproved by: %s",
		task.Description, task.TrackerURL, task.DocsURL, approvers,
	)
	if err := s.sender.SendText(ctx, s.groupChat, text, nil); err != nil {
		s.logger.Error("Failed to broadcast completion", "task", task.ID, "error", err)
		return err
	}
	return nil
}

// NotifyAuthor sends a direct message to the task author that a reviewer
// requested revision.
func (s *NotificationService) NotifyAuthor(ctx context.Context, task *models.Task, reviewer string) error {
	text := fmt.Sprintf(
		"Reviewer %s requested revision:\nTask ID: %d\nDescription: %s",
		reviewer, task.ID, task.Description,
	)
	if err := s.sender.SendText(ctx, task.UserID, text, nil); err != nil {
		s.logger.Error("Failed to notify author", "task", task.ID, "author", task.UserID, "error", err)
		return err
	}
	return nil
}

// SendDailyDigest posts the open-queue summary to the group chat. An empty
// queue sends nothing.
func (s *NotificationService) SendDailyDigest(ctx context.Context, tasks []models.Task) error {
	if s.groupChat == "" {
		return nil
	}
	if len(tasks) == 0 {
		s.logger.Info("No open tasks, skipping daily digest")
		return nil
	}
	if err := s.sender.SendText(ctx, s.groupChat, DigestText(tasks), nil); err != nil {
		s.logger.Error("Failed to send daily digest", "error", err)
		return err
	}
	return nil
}

// DigestText renders the daily digest body.
func DigestText(tasks []models.Task) string {
	var b strings.Builder
	b.WriteString("Good morning, these tasks are waiting for review:\n\n")
	for _, task := range tasks {
		fmt.Fprintf(&b, "• Creator: %s\n", task.Creator)
		fmt.Fprintf(&b, "• Description: %s\n", task.Description)
		fmt.Fprintf(&b, "• Tracker: %s\n", task.TrackerURL)
		fmt.Fprintf(&b, "• Docs: %s\n\n", task.DocsURL)
	}
	return strings.TrimRight(b.String(), "\n")
}

// Daily digest scheduler
package notifier

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/revubot/revubot/pkg/service"
	"github.com/revubot/revubot/pkg/utils"
)

// Notifier fires the open-task digest once per calendar day at a fixed local
// wall-clock time. It reads the task store and sends to the group chat; it
// never touches conversation state.
type Notifier struct {
	tasks         *service.TaskService
	notifications *service.NotificationService
	hour          int
	minute        int
	loc           *time.Location
	logger        *slog.Logger
}

// New parses the fire time ("HH:MM") and IANA timezone (empty means local
// time) and returns a ready notifier.
func New(tasks *service.TaskService, notifications *service.NotificationService, at, timezone string) (*Notifier, error) {
	parsed, err := time.Parse("15:04", at)
	if err != nil {
		return nil, fmt.Errorf("parse notify time %q: %w", at, err)
	}

	loc := time.Local
	if timezone != "" {
		loc, err = time.LoadLocation(timezone)
		if err != nil {
			return nil, fmt.Errorf("load notify timezone %q: %w", timezone, err)
		}
	}

	return &Notifier{
		tasks:         tasks,
		notifications: notifications,
		hour:          parsed.Hour(),
		minute:        parsed.Minute(),
		loc:           loc,
		logger:        utils.GetLogger(),
	}, nil
}

// Run blocks, firing the digest at each daily boundary, until ctx is
// cancelled.
func (n *Notifier) Run(ctx context.Context) {
	for {
		next := n.nextRun(time.Now().In(n.loc))
		timer := time.NewTimer(time.Until(next))

		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			n.runOnce(ctx)
		}
	}
}

// nextRun returns the next occurrence of the configured wall-clock time
// strictly after now. time.Date normalizes across DST transitions.
func (n *Notifier) nextRun(now time.Time) time.Time {
	next := time.Date(now.Year(), now.Month(), now.Day(), n.hour, n.minute, 0, 0, n.loc)
	if !next.After(now) {
		next = time.Date(now.Year(), now.Month(), now.Day()+1, n.hour, n.minute, 0, 0, n.loc)
	}
	return next
}

func (n *Notifier) runOnce(ctx context.Context) {
	tasks, err := n.tasks.ListOpen()
	if err != nil {
		n.logger.Error("Failed to load open tasks for digest", "error", err)
		return
	}
	if err := n.notifications.SendDailyDigest(ctx, tasks); err == nil {
		n.logger.Info("Daily digest sent", "open_tasks", len(tasks))
	}
}

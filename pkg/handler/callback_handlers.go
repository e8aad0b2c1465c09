package handler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/revubot/revubot/pkg/botapi"
	"github.com/revubot/revubot/pkg/models"
	"github.com/revubot/revubot/pkg/service"
)

// CallbackHandler runs the approval, revision-request and removal workflows.
// Every mutating flow goes through a confirmation round-trip: the first
// button press only renders an are-you-sure keyboard, the second one mutates.
type CallbackHandler struct {
	tasks         *service.TaskService
	states        *service.StateService
	notifications *service.NotificationService
	sender        service.Sender
	logger        *slog.Logger

	// Whether a confirmed revision request is also recorded as a rejection
	// vote (review.record_revision_votes).
	recordRevisionVotes bool
}

func NewCallbackHandler(
	tasks *service.TaskService,
	states *service.StateService,
	notifications *service.NotificationService,
	sender service.Sender,
	logger *slog.Logger,
) *CallbackHandler {
	return &CallbackHandler{
		tasks:         tasks,
		states:        states,
		notifications: notifications,
		sender:        sender,
		logger:        logger,
		recordRevisionVotes: true,
	}
}

// SetRecordRevisionVotes toggles rejection bookkeeping for revision requests.
func (h *CallbackHandler) SetRecordRevisionVotes(v bool) {
	h.recordRevisionVotes = v
}

// Handle decodes the callback token and dispatches the action. Unknown
// tokens get a visible reply instead of a silent drop.
func (h *CallbackHandler) Handle(ctx context.Context, ev botapi.Event) error {
	action := ParseAction(ev.Payload.CallbackData)
	chatID := ev.ChatID()
	userID := ev.Payload.From.UserID

	switch action.Kind {
	case ActionStartSubmission:
		return h.startSubmission(ctx, userID, chatID)
	case ActionMyTasks:
		return h.showMyTasks(ctx, userID, chatID)
	case ActionStartReview:
		return h.startReview(ctx, userID, chatID)
	case ActionStartRemoval:
		return h.startRemoval(ctx, userID, chatID)
	case ActionConfirmSubmission:
		return h.confirmSubmission(ctx, ev, chatID)
	case ActionCancelSubmission:
		h.states.Clear(userID)
		return h.sender.SendText(ctx, chatID, "Task submission cancelled.", mainKeyboard())
	case ActionCancelRemoval:
		return h.sender.SendText(ctx, chatID, "Withdrawal cancelled.", mainKeyboard())
	case ActionCancel:
		return h.sender.SendText(ctx, chatID, "Action cancelled.", mainKeyboard())
	case ActionShowReviewTask:
		return h.showTaskForReview(ctx, action.TaskID, userID, chatID)
	case ActionApproveTask:
		text := "Are you sure you want to approve this task?"
		return h.sender.SendText(ctx, chatID, text, approveConfirmKeyboard(action.TaskID))
	case ActionRequestRevision:
		text := "Are you sure you want to request revision?"
		return h.sender.SendText(ctx, chatID, text, revisionConfirmKeyboard(action.TaskID))
	case ActionConfirmApprove:
		return h.confirmApprove(ctx, action.TaskID, ev, chatID)
	case ActionConfirmRevision:
		return h.confirmRevision(ctx, action.TaskID, ev, chatID)
	case ActionSelectForRemoval:
		return h.showTaskForRemoval(ctx, action.TaskID, userID, chatID)
	case ActionConfirmRemoval:
		return h.confirmRemoval(ctx, action.TaskID, userID, chatID)
	default:
		return h.sender.SendText(ctx, chatID, "Unknown command.", mainKeyboard())
	}
}

// startSubmission opens the multi-step dialogue; any previous draft for the
// user is discarded.
func (h *CallbackHandler) startSubmission(ctx context.Context, userID, chatID string) error {
	h.states.Begin(userID, chatID)
	return h.sender.SendText(ctx, chatID, "Send the tracker issue link:", nil)
}

func (h *CallbackHandler) confirmSubmission(ctx context.Context, ev botapi.Event, chatID string) error {
	userID := ev.Payload.From.UserID

	state, ok := h.states.Get(userID)
	if !ok || state.Step != service.StepConfirm {
		return h.sender.SendText(ctx, chatID, "There is no draft waiting for confirmation.", mainKeyboard())
	}

	task, err := h.tasks.Create(state.Draft, userID, ev.Payload.From.DisplayName())
	if err != nil {
		return err
	}
	h.states.Clear(userID)

	// Broadcast is best-effort; the task row already exists.
	if err := h.notifications.BroadcastNewTask(ctx, task); err != nil {
		_ = h.sender.SendText(ctx, state.ChatID, "Could not announce the task in the group chat. Check the bot's permissions.", nil)
	}

	return h.sender.SendText(ctx, state.ChatID, "The task was submitted for review!", mainKeyboard())
}

func (h *CallbackHandler) showMyTasks(ctx context.Context, userID, chatID string) error {
	tasks, err := h.tasks.ListOpenForUser(userID)
	if err != nil {
		return err
	}
	if len(tasks) == 0 {
		return h.sender.SendText(ctx, chatID, "You have no tasks under review.", nil)
	}

	text := "Your tasks under review:\n\n"
	for _, task := range tasks {
		text += fmt.Sprintf(
			"ID: %d\nDescription: %s\nTracker: %s\nDocs: %s\n\n",
			task.ID, task.Description, task.TrackerURL, task.DocsURL,
		)
	}
	return h.sender.SendText(ctx, chatID, text, nil)
}

func (h *CallbackHandler) startReview(ctx context.Context, userID, chatID string) error {
	tasks, err := h.tasks.ListReviewable(userID)
	if err != nil {
		return err
	}
	if len(tasks) == 0 {
		return h.sender.SendText(ctx, chatID, "No tasks to review.", mainKeyboard())
	}
	return h.sender.SendText(ctx, chatID, "Pick a task to review:", reviewListKeyboard(tasks))
}

func (h *CallbackHandler) showTaskForReview(ctx context.Context, taskID int64, userID, chatID string) error {
	task, err := h.tasks.Get(taskID)
	if err != nil {
		if errors.Is(err, service.ErrTaskNotFound) {
			return h.sender.SendText(ctx, chatID, "Task not found.", mainKeyboard())
		}
		return err
	}
	if task.UserID == userID {
		return h.sender.SendText(ctx, chatID, "You cannot review your own tasks!", mainKeyboard())
	}
	if task.Closed {
		return h.sender.SendText(ctx, chatID, "This task is already closed!", mainKeyboard())
	}

	text := fmt.Sprintf(
		"Task under review:\n\nID: %d\nCreator: %s\nTracker: %s\nDescription: %s\nDocs: %s\nApprovals: %d",
		task.ID, task.Creator, task.TrackerURL, task.Description, task.DocsURL, task.ApproveCount,
	)
	return h.sender.SendText(ctx, chatID, text, taskReviewKeyboard(task.ID))
}

func (h *CallbackHandler) confirmApprove(ctx context.Context, taskID int64, ev botapi.Event, chatID string) error {
	reviewerID := ev.Payload.From.UserID

	task, quorumReached, err := h.tasks.RecordApproval(taskID, reviewerID)
	switch {
	case errors.Is(err, service.ErrTaskNotFound):
		return h.sender.SendText(ctx, chatID, "Task not found.", mainKeyboard())
	case errors.Is(err, service.ErrSelfReview):
		return h.sender.SendText(ctx, chatID, "You cannot review your own tasks!", mainKeyboard())
	case errors.Is(err, service.ErrTaskClosed):
		return h.sender.SendText(ctx, chatID, "This task is already closed!", mainKeyboard())
	case errors.Is(err, service.ErrAlreadyApproved):
		return h.sender.SendText(ctx, chatID, "You have already approved this task.", mainKeyboard())
	case err != nil:
		return err
	}

	if quorumReached {
		// Storage mutation is committed; the broadcast is best-effort.
		_ = h.notifications.BroadcastCompletion(ctx, task)
	}
	return h.sender.SendText(ctx, chatID, "The task was approved!", mainKeyboard())
}

func (h *CallbackHandler) confirmRevision(ctx context.Context, taskID int64, ev botapi.Event, chatID string) error {
	reviewerID := ev.Payload.From.UserID

	var task *models.Task
	var err error
	if h.recordRevisionVotes {
		task, err = h.tasks.RecordRejection(taskID, reviewerID)
		switch {
		case errors.Is(err, service.ErrTaskNotFound):
			return h.sender.SendText(ctx, chatID, "Task not found.", mainKeyboard())
		case errors.Is(err, service.ErrSelfReview):
			return h.sender.SendText(ctx, chatID, "You cannot review your own tasks!", mainKeyboard())
		case errors.Is(err, service.ErrTaskClosed):
			return h.sender.SendText(ctx, chatID, "This task is already closed!", mainKeyboard())
		case errors.Is(err, service.ErrAlreadyRejected):
			return h.sender.SendText(ctx, chatID, "You have already requested revision for this task.", mainKeyboard())
		case err != nil:
			return err
		}
	} else {
		task, err = h.tasks.Get(taskID)
		if err != nil {
			if errors.Is(err, service.ErrTaskNotFound) {
				return h.sender.SendText(ctx, chatID, "Task not found.", mainKeyboard())
			}
			return err
		}
	}

	// Direct message to the author is best-effort.
	_ = h.notifications.NotifyAuthor(ctx, task, ev.Payload.From.DisplayName())

	return h.sender.SendText(ctx, chatID, "The revision request was sent to the task author.", mainKeyboard())
}

func (h *CallbackHandler) startRemoval(ctx context.Context, userID, chatID string) error {
	tasks, err := h.tasks.ListOpenForUser(userID)
	if err != nil {
		return err
	}
	if len(tasks) == 0 {
		return h.sender.SendText(ctx, chatID, "You have no tasks under review.", nil)
	}
	return h.sender.SendText(ctx, chatID, "Which task do you want to withdraw?", removalListKeyboard(tasks))
}

func (h *CallbackHandler) showTaskForRemoval(ctx context.Context, taskID int64, userID, chatID string) error {
	task, err := h.tasks.Get(taskID)
	if err != nil {
		if errors.Is(err, service.ErrTaskNotFound) {
			return h.sender.SendText(ctx, chatID, "Task not found.", mainKeyboard())
		}
		return err
	}
	if task.UserID != userID {
		return h.sender.SendText(ctx, chatID, "You can only withdraw your own tasks.", mainKeyboard())
	}

	text := fmt.Sprintf(
		"Do you really want to withdraw this task from review?\n\nID: %d\nCreator: %s\nTracker: %s\nDescription: %s\nDocs: %s\nApprovals: %d",
		task.ID, task.Creator, task.TrackerURL, task.Description, task.DocsURL, task.ApproveCount,
	)
	return h.sender.SendText(ctx, chatID, text, yesNoKeyboard(task.ID))
}

// confirmRemoval deletes the task. Ownership is re-verified by the store at
// confirmation time, so a stale or forged token cannot delete someone else's
// task.
func (h *CallbackHandler) confirmRemoval(ctx context.Context, taskID int64, userID, chatID string) error {
	err := h.tasks.Delete(taskID, userID)
	switch {
	case errors.Is(err, service.ErrTaskNotFound):
		return h.sender.SendText(ctx, chatID, "Task not found.", mainKeyboard())
	case errors.Is(err, service.ErrNotTaskOwner):
		return h.sender.SendText(ctx, chatID, "You can only withdraw your own tasks.", mainKeyboard())
	case err != nil:
		return err
	}
	return h.sender.SendText(ctx, chatID, "The task was withdrawn from review!", mainKeyboard())
}

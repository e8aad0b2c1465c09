// Callback token routing: every button press carries an opaque token that is
// decoded here, exactly once, into a closed Action variant.
package handler

import (
	"strconv"
	"strings"
)

// Menu-level tokens (whole-string match).
const (
	tokenOnReview     = "on_review"
	tokenMyTasks      = "my_tasks"
	tokenDoReview     = "do_review"
	tokenRemoveReview = "remove_review"
	tokenConfirmTask  = "confirm_task"
	tokenCancelTask   = "cancel_task"
	tokenCancelRemove = "cancel_remove"
	tokenCancelAction = "cancel_action"
)

// Per-task token prefixes; the suffix is the decimal task id.
const (
	prefixReviewTask      = "review_task_"
	prefixApproveTask     = "approve_task_"
	prefixRequestRevision = "request_revision_"
	prefixConfirmApprove  = "confirm_approve_"
	prefixConfirmRevision = "confirm_revision_"
	prefixSelectTask      = "select_task_"
	prefixConfirmRemove   = "confirm_remove_"
)

type ActionKind int

const (
	ActionUnknown ActionKind = iota

	// Menu actions
	ActionStartSubmission
	ActionMyTasks
	ActionStartReview
	ActionStartRemoval
	ActionConfirmSubmission
	ActionCancelSubmission
	ActionCancelRemoval
	ActionCancel

	// Per-task actions
	ActionShowReviewTask
	ActionApproveTask
	ActionRequestRevision
	ActionConfirmApprove
	ActionConfirmRevision
	ActionSelectForRemoval
	ActionConfirmRemoval
)

// Action is a decoded callback token.
type Action struct {
	Kind   ActionKind
	TaskID int64
}

var menuActions = map[string]ActionKind{
	tokenOnReview:     ActionStartSubmission,
	tokenMyTasks:      ActionMyTasks,
	tokenDoReview:     ActionStartReview,
	tokenRemoveReview: ActionStartRemoval,
	tokenConfirmTask:  ActionConfirmSubmission,
	tokenCancelTask:   ActionCancelSubmission,
	tokenCancelRemove: ActionCancelRemoval,
	tokenCancelAction: ActionCancel,
}

var taskActions = []struct {
	prefix string
	kind   ActionKind
}{
	{prefixReviewTask, ActionShowReviewTask},
	{prefixApproveTask, ActionApproveTask},
	{prefixRequestRevision, ActionRequestRevision},
	{prefixConfirmApprove, ActionConfirmApprove},
	{prefixConfirmRevision, ActionConfirmRevision},
	{prefixSelectTask, ActionSelectForRemoval},
	{prefixConfirmRemove, ActionConfirmRemoval},
}

// ParseAction decodes a callback token. Malformed tokens, including per-task
// tokens with a non-numeric suffix, decode to ActionUnknown rather than an
// error or a panic.
func ParseAction(token string) Action {
	token = strings.TrimSpace(token)

	if kind, ok := menuActions[token]; ok {
		return Action{Kind: kind}
	}

	for _, ta := range taskActions {
		rest, ok := strings.CutPrefix(token, ta.prefix)
		if !ok {
			continue
		}
		id, err := strconv.ParseInt(rest, 10, 64)
		if err != nil || id <= 0 {
			return Action{Kind: ActionUnknown}
		}
		return Action{Kind: ta.kind, TaskID: id}
	}

	return Action{Kind: ActionUnknown}
}

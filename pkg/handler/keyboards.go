package handler

import (
	"fmt"

	"github.com/revubot/revubot/pkg/botapi"
	"github.com/revubot/revubot/pkg/models"
)

const labelDescriptionLimit = 50

func mainKeyboard() botapi.Keyboard {
	return botapi.Keyboard{}.
		Row(
			botapi.Button{Text: "Submit for review", CallbackData: tokenOnReview, Style: botapi.ButtonStylePrimary},
			botapi.Button{Text: "My tasks", CallbackData: tokenMyTasks, Style: botapi.ButtonStyleSecondary},
		).
		Row(
			botapi.Button{Text: "Withdraw from review", CallbackData: tokenRemoveReview, Style: botapi.ButtonStyleAttention},
			botapi.Button{Text: "Review a task", CallbackData: tokenDoReview, Style: botapi.ButtonStylePrimary},
		)
}

func confirmationKeyboard() botapi.Keyboard {
	return botapi.Keyboard{}.Row(
		botapi.Button{Text: "Confirm", CallbackData: tokenConfirmTask, Style: botapi.ButtonStylePrimary},
		botapi.Button{Text: "Cancel", CallbackData: tokenCancelTask, Style: botapi.ButtonStyleAttention},
	)
}

func taskReviewKeyboard(taskID int64) botapi.Keyboard {
	return botapi.Keyboard{}.Row(
		botapi.Button{Text: "Approve", CallbackData: fmt.Sprintf("%s%d", prefixApproveTask, taskID), Style: botapi.ButtonStylePrimary},
		botapi.Button{Text: "Request revision", CallbackData: fmt.Sprintf("%s%d", prefixRequestRevision, taskID), Style: botapi.ButtonStyleAttention},
	)
}

func approveConfirmKeyboard(taskID int64) botapi.Keyboard {
	return botapi.Keyboard{}.Row(
		botapi.Button{Text: "Confirm approval", CallbackData: fmt.Sprintf("%s%d", prefixConfirmApprove, taskID), Style: botapi.ButtonStylePrimary},
		botapi.Button{Text: "Cancel", CallbackData: tokenCancelAction, Style: botapi.ButtonStyleAttention},
	)
}

func revisionConfirmKeyboard(taskID int64) botapi.Keyboard {
	return botapi.Keyboard{}.Row(
		botapi.Button{Text: "Confirm revision request", CallbackData: fmt.Sprintf("%s%d", prefixConfirmRevision, taskID), Style: botapi.ButtonStylePrimary},
		botapi.Button{Text: "Cancel", CallbackData: tokenCancelAction, Style: botapi.ButtonStyleAttention},
	)
}

func yesNoKeyboard(taskID int64) botapi.Keyboard {
	return botapi.Keyboard{}.Row(
		botapi.Button{Text: "Yes", CallbackData: fmt.Sprintf("%s%d", prefixConfirmRemove, taskID), Style: botapi.ButtonStylePrimary},
		botapi.Button{Text: "No", CallbackData: tokenCancelRemove, Style: botapi.ButtonStyleAttention},
	)
}

// reviewListKeyboard renders one short labeled button per reviewable task.
func reviewListKeyboard(tasks []models.Task) botapi.Keyboard {
	kb := botapi.Keyboard{}
	for _, task := range tasks {
		kb = kb.Row(botapi.Button{
			Text:         fmt.Sprintf("Task #%d: %s", task.ID, truncate(task.Description, labelDescriptionLimit)),
			CallbackData: fmt.Sprintf("%s%d", prefixReviewTask, task.ID),
		})
	}
	return kb
}

// removalListKeyboard renders the caller's own open tasks for withdrawal.
func removalListKeyboard(tasks []models.Task) botapi.Keyboard {
	kb := botapi.Keyboard{}
	for _, task := range tasks {
		kb = kb.Row(botapi.Button{
			Text:         truncate(task.Description, labelDescriptionLimit),
			CallbackData: fmt.Sprintf("%s%d", prefixSelectTask, task.ID),
		})
	}
	return kb
}

// truncate shortens s to at most limit runes, appending an ellipsis when
// anything was cut.
func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit]) + "..."
}

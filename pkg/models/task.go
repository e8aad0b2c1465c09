package models

import (
	"github.com/revubot/revubot/pkg/db"
)

// ========== Type aliases for database types ==========
// These allow other packages to use models.Task instead of db.Task

type Task = db.Task
type StringList = db.StringList

// UnknownCreator is the display name stored when the chat transport gives us
// no usable name fields for the submitter.
const UnknownCreator = "Unknown"

// TaskDraft holds the fields collected step by step during the submission
// dialogue, before a Task row exists.
type TaskDraft struct {
	TrackerURL  string `json:"tracker_url"`
	Description string `json:"description"`
	DocsURL     string `json:"docs_url"`
}

// Response is the admin API response envelope.
type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// TaskListResponse wraps a task listing for the admin API.
type TaskListResponse struct {
	Tasks []Task `json:"tasks"`
	Total int    `json:"total"`
}

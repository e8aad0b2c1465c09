// Database model for review tasks
package db

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// StringList stores a set of user ids as a JSON array in a single column.
type StringList []string

func (l StringList) Value() (driver.Value, error) {
	if l == nil {
		l = StringList{}
	}
	b, err := json.Marshal([]string(l))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (l *StringList) Scan(src interface{}) error {
	if src == nil {
		*l = StringList{}
		return nil
	}
	var b []byte
	switch v := src.(type) {
	case []byte:
		b = v
	case string:
		b = []byte(v)
	default:
		return fmt.Errorf("unsupported type %T for StringList", src)
	}
	if len(b) == 0 {
		*l = StringList{}
		return nil
	}
	return json.Unmarshal(b, (*[]string)(l))
}

// Contains reports whether user is already in the list.
func (l StringList) Contains(user string) bool {
	for _, u := range l {
		if u == user {
			return true
		}
	}
	return false
}

// Task represents a review request submitted to the shared queue.
type Task struct {
	ID           int64      `json:"id" gorm:"primaryKey;autoIncrement"`
	UserID       string     `json:"user_id" gorm:"index;size:50;not null"`
	Creator      string     `json:"creator" gorm:"size:100;not null"`
	Description  string     `json:"description" gorm:"size:500;not null"`
	TrackerURL   string     `json:"tracker_url" gorm:"size:200"`
	DocsURL      string     `json:"docs_url" gorm:"size:200"`
	Closed       bool       `json:"is_closed" gorm:"column:is_closed;index;default:false"`
	ApproveCount int        `json:"approve_count" gorm:"default:0"`
	ApprovedBy   StringList `json:"approved_by" gorm:"type:json"`
	RejectCount  int        `json:"reject_count" gorm:"default:0"`
	RejectedBy   StringList `json:"rejected_by" gorm:"type:json"`
	CreatedAt    time.Time  `json:"created_at"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
}

func (Task) TableName() string {
	return "tasks"
}

// ApprovedByUser reports whether the reviewer already approved this task.
func (t *Task) ApprovedByUser(user string) bool {
	return t.ApprovedBy.Contains(user)
}

// RejectedByUser reports whether the reviewer already requested revision.
func (t *Task) RejectedByUser(user string) bool {
	return t.RejectedBy.Contains(user)
}

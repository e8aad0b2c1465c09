// Task service - owns every read and write against the review queue
package service

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/revubot/revubot/pkg/models"
	"github.com/revubot/revubot/pkg/utils"
)

// ApprovalQuorum is the number of distinct approvals that closes a task.
const ApprovalQuorum = 2

var (
	ErrTaskNotFound    = errors.New("task not found")
	ErrNotTaskOwner    = errors.New("task belongs to another user")
	ErrSelfReview      = errors.New("cannot review own task")
	ErrAlreadyApproved = errors.New("task already approved by this reviewer")
	ErrAlreadyRejected = errors.New("revision already requested by this reviewer")
	ErrTaskClosed      = errors.New("task already closed")
)

// TaskService handles review task storage operations.
type TaskService struct {
	db     *gorm.DB
	logger *slog.Logger

	// Closed tasks reject further review actions unless explicitly allowed
	// (review.allow_closed_approvals).
	allowClosedApprovals bool
}

// NewTaskService creates a new task service.
func NewTaskService(gdb *gorm.DB) *TaskService {
	return &TaskService{
		db:     gdb,
		logger: utils.GetLogger(),
	}
}

// SetAllowClosedApprovals toggles the late-approval escape hatch.
func (s *TaskService) SetAllowClosedApprovals(v bool) {
	s.allowClosedApprovals = v
}

// Create stores a new task from a completed submission draft. The creator
// display name is resolved once here; an empty name becomes the explicit
// Unknown default.
func (s *TaskService) Create(draft models.TaskDraft, submitterID, creatorName string) (*models.Task, error) {
	creatorName = strings.TrimSpace(creatorName)
	if creatorName == "" {
		creatorName = models.UnknownCreator
	}

	task := &models.Task{
		UserID:      submitterID,
		Creator:     creatorName,
		Description: draft.Description,
		TrackerURL:  draft.TrackerURL,
		DocsURL:     draft.DocsURL,
		ApprovedBy:  models.StringList{},
		RejectedBy:  models.StringList{},
	}

	if err := s.db.Create(task).Error; err != nil {
		return nil, fmt.Errorf("failed to create task: %w", err)
	}
	return task, nil
}

// Get retrieves a task by id.
func (s *TaskService) Get(id int64) (*models.Task, error) {
	var task models.Task
	if err := s.db.First(&task, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTaskNotFound
		}
		return nil, fmt.Errorf("failed to get task %d: %w", id, err)
	}
	return &task, nil
}

// ListOpen returns every open task, oldest first. Used by the daily digest
// and the admin API.
func (s *TaskService) ListOpen() ([]models.Task, error) {
	var tasks []models.Task
	if err := s.db.Where("is_closed = ?", false).Order("id").Find(&tasks).Error; err != nil {
		return nil, fmt.Errorf("failed to list open tasks: %w", err)
	}
	return tasks, nil
}

// ListClosed returns every closed task, newest completion first.
func (s *TaskService) ListClosed() ([]models.Task, error) {
	var tasks []models.Task
	if err := s.db.Where("is_closed = ?", true).Order("completed_at desc").Find(&tasks).Error; err != nil {
		return nil, fmt.Errorf("failed to list closed tasks: %w", err)
	}
	return tasks, nil
}

// ListOpenForUser returns the open tasks authored by userID.
func (s *TaskService) ListOpenForUser(userID string) ([]models.Task, error) {
	var tasks []models.Task
	if err := s.db.Where("is_closed = ? AND user_id = ?", false, userID).Order("id").Find(&tasks).Error; err != nil {
		return nil, fmt.Errorf("failed to list tasks for user %s: %w", userID, err)
	}
	return tasks, nil
}

// ListReviewable returns the open tasks userID may still review: not authored
// by them and not already approved or rejected by them. The membership sets
// live in JSON columns, so that part of the filter runs in memory.
func (s *TaskService) ListReviewable(userID string) ([]models.Task, error) {
	var tasks []models.Task
	if err := s.db.Where("is_closed = ? AND user_id <> ?", false, userID).Order("id").Find(&tasks).Error; err != nil {
		return nil, fmt.Errorf("failed to list reviewable tasks: %w", err)
	}

	reviewable := make([]models.Task, 0, len(tasks))
	for _, task := range tasks {
		if task.ApprovedByUser(userID) || task.RejectedByUser(userID) {
			continue
		}
		reviewable = append(reviewable, task)
	}
	return reviewable, nil
}

// Delete permanently removes a task. Ownership is verified inside the same
// transaction, so a stale or forged token naming someone else's task fails
// without touching the row.
func (s *TaskService) Delete(id int64, owner string) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		var task models.Task
		if err := tx.First(&task, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrTaskNotFound
			}
			return fmt.Errorf("failed to load task %d: %w", id, err)
		}
		if task.UserID != owner {
			return ErrNotTaskOwner
		}
		if err := tx.Delete(&models.Task{}, "id = ?", id).Error; err != nil {
			return fmt.Errorf("failed to delete task %d: %w", id, err)
		}
		return nil
	})
}

// RecordApproval adds reviewer to the approver set and recomputes the cached
// count. When the new count reaches the quorum, the task is closed and
// stamped inside the same transaction, so a count at quorum is never
// observable with the task still open. The returned bool reports whether
// this call closed the task.
func (s *TaskService) RecordApproval(id int64, reviewer string) (*models.Task, bool, error) {
	var task models.Task
	quorumReached := false

	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&task, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrTaskNotFound
			}
			return fmt.Errorf("failed to load task %d: %w", id, err)
		}
		if task.UserID == reviewer {
			return ErrSelfReview
		}
		if task.Closed && !s.allowClosedApprovals {
			return ErrTaskClosed
		}
		if task.ApprovedByUser(reviewer) {
			return ErrAlreadyApproved
		}

		task.ApprovedBy = append(task.ApprovedBy, reviewer)
		task.ApproveCount = len(task.ApprovedBy)

		// CompletedAt is set exactly once, even with late approvals enabled.
		if task.ApproveCount >= ApprovalQuorum && !task.Closed {
			now := time.Now()
			task.Closed = true
			task.CompletedAt = &now
			quorumReached = true
		}

		if err := tx.Save(&task).Error; err != nil {
			return fmt.Errorf("failed to save approval on task %d: %w", id, err)
		}
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return &task, quorumReached, nil
}

// RecordRejection adds reviewer to the rejecter set and recomputes the cached
// count. Rejecting never removes a prior approval and never closes or reopens
// the task.
func (s *TaskService) RecordRejection(id int64, reviewer string) (*models.Task, error) {
	var task models.Task

	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&task, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrTaskNotFound
			}
			return fmt.Errorf("failed to load task %d: %w", id, err)
		}
		if task.UserID == reviewer {
			return ErrSelfReview
		}
		if task.Closed && !s.allowClosedApprovals {
			return ErrTaskClosed
		}
		if task.RejectedByUser(reviewer) {
			return ErrAlreadyRejected
		}

		task.RejectedBy = append(task.RejectedBy, reviewer)
		task.RejectCount = len(task.RejectedBy)

		if err := tx.Save(&task).Error; err != nil {
			return fmt.Errorf("failed to save rejection on task %d: %w", id, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &task, nil
}

// Conversation state service - tracks where each user is in the task
// submission dialogue
package service

import (
	"sync"

	"github.com/revubot/revubot/pkg/models"
)

// Step is the position of a user within the submission dialogue.
type Step int

const (
	StepTrackerURL Step = iota
	StepDescription
	StepDocsURL
	StepConfirm
)

func (s Step) String() string {
	switch s {
	case StepTrackerURL:
		return "collecting_tracker_url"
	case StepDescription:
		return "collecting_description"
	case StepDocsURL:
		return "collecting_docs_url"
	case StepConfirm:
		return "awaiting_confirmation"
	default:
		return "unknown"
	}
}

// ConversationState is the ephemeral per-user dialogue record. It is never
// persisted; a process restart drops all active dialogues.
type ConversationState struct {
	Step   Step
	Draft  models.TaskDraft
	ChatID string
}

// StateService owns the conversation state map. All access goes through its
// mutex, so callers do not have to rely on the dispatcher being
// single-threaded.
type StateService struct {
	mu     sync.Mutex
	states map[string]*ConversationState
}

// NewStateService creates an empty state store.
func NewStateService() *StateService {
	return &StateService{
		states: make(map[string]*ConversationState),
	}
}

// Begin starts (or restarts) the submission dialogue for a user. At most one
// dialogue exists per user; beginning again discards any previous draft.
func (s *StateService) Begin(userID, chatID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[userID] = &ConversationState{
		Step:   StepTrackerURL,
		ChatID: chatID,
	}
}

// Get returns a copy of the user's state. The second result is false when no
// dialogue is active.
func (s *StateService) Get(userID string) (ConversationState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, ok := s.states[userID]
	if !ok {
		return ConversationState{}, false
	}
	return *state, true
}

// Update applies fn to the user's state under the lock. It reports whether a
// dialogue was active.
func (s *StateService) Update(userID string, fn func(*ConversationState)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, ok := s.states[userID]
	if !ok {
		return false
	}
	fn(state)
	return true
}

// Clear destroys the user's dialogue state. Clearing an absent state is a
// no-op.
func (s *StateService) Clear(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.states, userID)
}

// Active returns the number of users mid-dialogue.
func (s *StateService) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.states)
}

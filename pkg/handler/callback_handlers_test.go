package handler

import (
	"context"
	"strconv"
	"strings"
	"testing"

	"github.com/revubot/revubot/pkg/db"
	"github.com/revubot/revubot/pkg/models"
	"github.com/revubot/revubot/pkg/service"
)

const testGroupChat = "group@chat"

type callbackFixture struct {
	handler *CallbackHandler
	tasks   *service.TaskService
	states  *service.StateService
	sender  *fakeSender
}

func newCallbackFixture(t *testing.T) *callbackFixture {
	t.Helper()
	gdb, err := db.OpenInMemory()
	if err != nil {
		t.Fatalf("open in-memory db: %v", err)
	}

	sender := &fakeSender{}
	tasks := service.NewTaskService(gdb)
	states := service.NewStateService()
	notifications := service.NewNotificationService(sender, testGroupChat)

	return &callbackFixture{
		handler: NewCallbackHandler(tasks, states, notifications, sender, testLogger()),
		tasks:   tasks,
		states:  states,
		sender:  sender,
	}
}

func (f *callbackFixture) createTask(t *testing.T, owner string) *models.Task {
	t.Helper()
	task, err := f.tasks.Create(models.TaskDraft{
		TrackerURL:  "https://yt/1",
		Description: "Fix the login flow",
		DocsURL:     "https://conf/1",
	}, owner, "Alice A")
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	return task
}

func (f *callbackFixture) press(t *testing.T, userID, token string) {
	t.Helper()
	if err := f.handler.Handle(context.Background(), callbackEvent(userID, "chat-"+userID, token)); err != nil {
		t.Fatalf("Handle(%q) error = %v", token, err)
	}
}

// groupSends returns the messages broadcast to the review group chat.
func (f *callbackFixture) groupSends() []sentMessage {
	var out []sentMessage
	for _, msg := range f.sender.sent {
		if msg.ChatID == testGroupChat {
			out = append(out, msg)
		}
	}
	return out
}

func TestSubmissionFlow_EndToEnd(t *testing.T) {
	f := newCallbackFixture(t)
	messages := NewMessageHandler(f.states, f.sender, testLogger())
	ctx := context.Background()

	f.press(t, "alice", "on_review")
	if !strings.Contains(f.sender.last(t).Text, "tracker issue link") {
		t.Fatalf("no tracker prompt: %s", f.sender.last(t).Text)
	}

	for _, text := range []string{"https://yt/TASK-1", "Fix the login flow", "https://conf/review"} {
		if err := messages.Handle(ctx, textEvent("alice", "chat-alice", text)); err != nil {
			t.Fatalf("message %q error = %v", text, err)
		}
	}

	f.press(t, "alice", "confirm_task")

	tasks, err := f.tasks.ListOpenForUser("alice")
	if err != nil {
		t.Fatalf("ListOpenForUser() error = %v", err)
	}
	if len(tasks) != 1 {
		t.Fatalf("tasks after confirm = %d, want 1", len(tasks))
	}
	if tasks[0].TrackerURL != "https://yt/TASK-1" || tasks[0].Creator != "Alice A" {
		t.Fatalf("stored task = %+v", tasks[0])
	}

	if _, ok := f.states.Get("alice"); ok {
		t.Fatalf("dialogue state survived confirmation")
	}

	group := f.groupSends()
	if len(group) != 1 || !strings.Contains(group[0].Text, "https://yt/TASK-1") {
		t.Fatalf("group broadcast = %+v", group)
	}
	if !strings.Contains(f.sender.last(t).Text, "submitted for review") {
		t.Fatalf("no success reply: %s", f.sender.last(t).Text)
	}
}

func TestConfirmSubmission_WithoutDraft(t *testing.T) {
	f := newCallbackFixture(t)

	f.press(t, "alice", "confirm_task")
	if !strings.Contains(f.sender.last(t).Text, "no draft") {
		t.Fatalf("unexpected reply: %s", f.sender.last(t).Text)
	}

	// Confirming mid-dialogue (before the summary) must also refuse.
	f.states.Begin("alice", "chat-alice")
	f.press(t, "alice", "confirm_task")
	if !strings.Contains(f.sender.last(t).Text, "no draft") {
		t.Fatalf("unexpected reply: %s", f.sender.last(t).Text)
	}
}

func TestCancelSubmission_ClearsState(t *testing.T) {
	f := newCallbackFixture(t)
	f.states.Begin("alice", "chat-alice")

	f.press(t, "alice", "cancel_task")
	if _, ok := f.states.Get("alice"); ok {
		t.Fatalf("state survived cancellation")
	}
	if !strings.Contains(f.sender.last(t).Text, "cancelled") {
		t.Fatalf("unexpected reply: %s", f.sender.last(t).Text)
	}
}

func TestApprovalFlow_QuorumClosesAndBroadcastsOnce(t *testing.T) {
	f := newCallbackFixture(t)
	task := f.createTask(t, "alice")
	id := task.ID

	f.press(t, "bob", "review_task_"+itoa(id))
	msg := f.sender.last(t)
	if !strings.Contains(msg.Text, "Fix the login flow") || msg.Keyboard == nil {
		t.Fatalf("review detail = %+v", msg)
	}

	f.press(t, "bob", "approve_task_"+itoa(id))
	if !strings.Contains(f.sender.last(t).Text, "sure") {
		t.Fatalf("no confirmation prompt: %s", f.sender.last(t).Text)
	}

	f.press(t, "bob", "confirm_approve_"+itoa(id))
	if !strings.Contains(f.sender.last(t).Text, "approved") {
		t.Fatalf("no approval reply: %s", f.sender.last(t).Text)
	}
	got, err := f.tasks.Get(id)
	if err != nil || got.Closed || got.ApproveCount != 1 {
		t.Fatalf("after first approval: %+v err=%v", got, err)
	}
	if len(f.groupSends()) != 0 {
		t.Fatalf("completion broadcast below quorum: %+v", f.groupSends())
	}

	f.press(t, "carol", "confirm_approve_"+itoa(id))
	got, err = f.tasks.Get(id)
	if err != nil || !got.Closed || got.ApproveCount != 2 {
		t.Fatalf("after quorum: %+v err=%v", got, err)
	}

	group := f.groupSends()
	if len(group) != 1 {
		t.Fatalf("completion broadcasts = %d, want exactly 1", len(group))
	}
	if !strings.Contains(group[0].Text, "bob") || !strings.Contains(group[0].Text, "carol") {
		t.Fatalf("completion missing approvers:\n%s", group[0].Text)
	}
}

func TestApprovalFlow_GuardsAtListingAndConfirmation(t *testing.T) {
	f := newCallbackFixture(t)
	task := f.createTask(t, "alice")
	id := task.ID

	// Own tasks never appear in the review list.
	f.press(t, "alice", "do_review")
	if !strings.Contains(f.sender.last(t).Text, "No tasks to review") {
		t.Fatalf("author offered own task: %s", f.sender.last(t).Text)
	}

	// A forged token naming the own task is refused at the detail step.
	f.press(t, "alice", "review_task_"+itoa(id))
	if !strings.Contains(f.sender.last(t).Text, "your own tasks") {
		t.Fatalf("self-review detail not blocked: %s", f.sender.last(t).Text)
	}

	// And again at the store, if the detail step is bypassed entirely.
	f.press(t, "alice", "confirm_approve_"+itoa(id))
	if !strings.Contains(f.sender.last(t).Text, "your own tasks") {
		t.Fatalf("self-review approval not blocked: %s", f.sender.last(t).Text)
	}
	got, _ := f.tasks.Get(id)
	if got.ApproveCount != 0 {
		t.Fatalf("self-approval counted: %+v", got)
	}
}

func TestApprovalFlow_DuplicateApproval(t *testing.T) {
	f := newCallbackFixture(t)
	task := f.createTask(t, "alice")
	id := task.ID

	f.press(t, "bob", "confirm_approve_"+itoa(id))
	f.press(t, "bob", "confirm_approve_"+itoa(id))
	if !strings.Contains(f.sender.last(t).Text, "already approved") {
		t.Fatalf("duplicate approval reply: %s", f.sender.last(t).Text)
	}
	got, _ := f.tasks.Get(id)
	if got.ApproveCount != 1 {
		t.Fatalf("duplicate approval changed count: %d", got.ApproveCount)
	}
}

func TestRevisionFlow_RecordsVoteAndNotifiesAuthor(t *testing.T) {
	f := newCallbackFixture(t)
	task := f.createTask(t, "alice")
	id := task.ID

	f.press(t, "bob", "request_revision_"+itoa(id))
	if !strings.Contains(f.sender.last(t).Text, "sure") {
		t.Fatalf("no confirmation prompt: %s", f.sender.last(t).Text)
	}

	f.press(t, "bob", "confirm_revision_"+itoa(id))
	if !strings.Contains(f.sender.last(t).Text, "revision request was sent") {
		t.Fatalf("no revision reply: %s", f.sender.last(t).Text)
	}

	got, _ := f.tasks.Get(id)
	if got.RejectCount != 1 || !got.RejectedByUser("bob") {
		t.Fatalf("rejection not recorded: %+v", got)
	}

	// The author receives a direct message naming the reviewer.
	var authorDM *sentMessage
	for i := range f.sender.sent {
		if f.sender.sent[i].ChatID == "alice" {
			authorDM = &f.sender.sent[i]
		}
	}
	if authorDM == nil || !strings.Contains(authorDM.Text, "requested revision") {
		t.Fatalf("no author DM: %+v", f.sender.sent)
	}
}

func TestRevisionFlow_VoteRecordingDisabled(t *testing.T) {
	f := newCallbackFixture(t)
	f.handler.SetRecordRevisionVotes(false)
	task := f.createTask(t, "alice")
	id := task.ID

	f.press(t, "bob", "confirm_revision_"+itoa(id))

	got, _ := f.tasks.Get(id)
	if got.RejectCount != 0 {
		t.Fatalf("rejection recorded while disabled: %+v", got)
	}

	// The author is still notified.
	found := false
	for _, msg := range f.sender.sent {
		if msg.ChatID == "alice" && strings.Contains(msg.Text, "requested revision") {
			found = true
		}
	}
	if !found {
		t.Fatalf("author DM missing: %+v", f.sender.sent)
	}
}

func TestRemovalFlow_OwnershipEnforced(t *testing.T) {
	f := newCallbackFixture(t)
	task := f.createTask(t, "alice")
	id := task.ID

	// A forged token from a non-owner is refused at the selection step.
	f.press(t, "mallory", "select_task_"+itoa(id))
	if !strings.Contains(f.sender.last(t).Text, "your own tasks") {
		t.Fatalf("selection not blocked: %s", f.sender.last(t).Text)
	}

	// And at confirmation, if the selection step is bypassed.
	f.press(t, "mallory", "confirm_remove_"+itoa(id))
	if !strings.Contains(f.sender.last(t).Text, "your own tasks") {
		t.Fatalf("removal not blocked: %s", f.sender.last(t).Text)
	}
	if _, err := f.tasks.Get(id); err != nil {
		t.Fatalf("task deleted by non-owner: %v", err)
	}

	// The owner's own flow succeeds.
	f.press(t, "alice", "select_task_"+itoa(id))
	if !strings.Contains(f.sender.last(t).Text, "withdraw this task") {
		t.Fatalf("no removal confirmation: %s", f.sender.last(t).Text)
	}
	f.press(t, "alice", "confirm_remove_"+itoa(id))
	if !strings.Contains(f.sender.last(t).Text, "withdrawn from review") {
		t.Fatalf("no removal reply: %s", f.sender.last(t).Text)
	}
	if _, err := f.tasks.Get(id); err == nil {
		t.Fatalf("task still present after removal")
	}
}

func TestMyTasks_ListsOnlyOwn(t *testing.T) {
	f := newCallbackFixture(t)
	f.createTask(t, "alice")
	f.createTask(t, "bob")

	f.press(t, "alice", "my_tasks")
	msg := f.sender.last(t)
	if !strings.Contains(msg.Text, "Your tasks under review") {
		t.Fatalf("unexpected reply: %s", msg.Text)
	}
	if strings.Count(msg.Text, "ID: ") != 1 {
		t.Fatalf("listing shows foreign tasks:\n%s", msg.Text)
	}

	f.press(t, "carol", "my_tasks")
	if !strings.Contains(f.sender.last(t).Text, "no tasks under review") {
		t.Fatalf("unexpected reply: %s", f.sender.last(t).Text)
	}
}

func TestUnknownToken_GetsVisibleReply(t *testing.T) {
	f := newCallbackFixture(t)

	f.press(t, "alice", "review_task_abc")
	msg := f.sender.last(t)
	if !strings.Contains(msg.Text, "Unknown command") || msg.Keyboard == nil {
		t.Fatalf("unknown token reply = %+v", msg)
	}
}

func TestClosedTask_BlockedFromReviewDetail(t *testing.T) {
	f := newCallbackFixture(t)
	task := f.createTask(t, "alice")
	id := task.ID

	f.press(t, "bob", "confirm_approve_"+itoa(id))
	f.press(t, "carol", "confirm_approve_"+itoa(id))

	f.press(t, "dave", "review_task_"+itoa(id))
	if !strings.Contains(f.sender.last(t).Text, "already closed") {
		t.Fatalf("closed task shown for review: %s", f.sender.last(t).Text)
	}

	f.press(t, "dave", "confirm_approve_"+itoa(id))
	if !strings.Contains(f.sender.last(t).Text, "already closed") {
		t.Fatalf("closed task approved: %s", f.sender.last(t).Text)
	}
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}

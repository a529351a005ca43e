package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"course_messaging/internal/domain"
	"course_messaging/internal/repository"
	"course_messaging/internal/repository/memstore"
	apperrors "course_messaging/pkg/errors"
	"course_messaging/pkg/logger"
)

type recordedUpdate struct {
	userID int64
	update domain.ConversationUpdate
}

type recordingNotifier struct {
	mu       sync.Mutex
	messages []domain.Message
	updates  []recordedUpdate
}

func (n *recordingNotifier) MessageCreated(msg *domain.Message) {
	n.mu.Lock()
	n.messages = append(n.messages, *msg)
	n.mu.Unlock()
}

func (n *recordingNotifier) ConversationUpdated(userID int64, update domain.ConversationUpdate) {
	n.mu.Lock()
	n.updates = append(n.updates, recordedUpdate{userID: userID, update: update})
	n.mu.Unlock()
}

type failingTouch struct {
	repository.ConversationRepository
}

func (failingTouch) Touch(context.Context, int64, time.Time) error {
	return errors.New("connection reset")
}

var (
	student    = domain.Identity{UserID: 1, Role: domain.RoleStudent}
	instructor = domain.Identity{UserID: 2, Role: domain.RoleInstructor}
	admin      = domain.Identity{UserID: 3, Role: domain.RoleAdmin}
	student2   = domain.Identity{UserID: 4, Role: domain.RoleStudent}
)

type fixture struct {
	store    *memstore.Store
	notifier *recordingNotifier
	svc      MessagingService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memstore.New()
	current := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store.SetClock(func() time.Time {
		current = current.Add(time.Second)
		return current
	})
	store.AddUser(domain.User{ID: 1, Email: "a@x.com", Role: domain.RoleStudent})
	store.AddUser(domain.User{ID: 2, Email: "b@x.com", Role: domain.RoleInstructor})
	store.AddUser(domain.User{ID: 3, Email: "c@x.com", Role: domain.RoleAdmin})
	store.AddUser(domain.User{ID: 4, Email: "d@x.com", Role: domain.RoleStudent})

	repos := store.Repositories()
	notifier := &recordingNotifier{}
	log := logger.Nop()
	svc := NewMessagingService(repos.User, repos.Conversation, repos.Message, NewAuditService(repos.Audit, log), notifier, log)

	return &fixture{store: store, notifier: notifier, svc: svc}
}

func TestStartConversationCanonicalPair(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	fromA, err := f.svc.StartConversation(ctx, student, "b@x.com")
	if err != nil {
		t.Fatalf("StartConversation a->b: %v", err)
	}
	if !fromA.Created || fromA.Other.ID != 2 || fromA.Other.Username != "b" {
		t.Fatalf("unexpected result: %+v", fromA)
	}

	fromB, err := f.svc.StartConversation(ctx, instructor, "a@x.com")
	if err != nil {
		t.Fatalf("StartConversation b->a: %v", err)
	}
	if fromB.ConversationID != fromA.ConversationID || fromB.Created {
		t.Fatalf("expected b->a to reuse conversation %d, got %+v", fromA.ConversationID, fromB)
	}

	again, err := f.svc.StartConversation(ctx, student, "b@x.com")
	if err != nil || again.ConversationID != fromA.ConversationID {
		t.Fatalf("expected idempotent start, got %+v err=%v", again, err)
	}

	if f.store.ConversationCount() != 1 {
		t.Fatalf("expected a single conversation row, got %d", f.store.ConversationCount())
	}
	conv, _ := f.store.Conversation(fromA.ConversationID)
	if conv.ParticipantLow != 1 || conv.ParticipantHigh != 2 {
		t.Fatalf("expected canonical (1,2), got (%d,%d)", conv.ParticipantLow, conv.ParticipantHigh)
	}

	logs := f.store.AuditLogs()
	if len(logs) != 1 || logs[0].EventType != domain.EventTypeConversationStarted {
		t.Fatalf("expected exactly one start audit entry, got %+v", logs)
	}
}

func TestStartConversationNormalizesEmail(t *testing.T) {
	f := newFixture(t)

	result, err := f.svc.StartConversation(context.Background(), student, "  B@X.COM ")
	if err != nil {
		t.Fatalf("StartConversation: %v", err)
	}
	if result.Other.ID != 2 {
		t.Fatalf("expected instructor 2, got %+v", result.Other)
	}
}

func TestStartConversationErrors(t *testing.T) {
	tests := []struct {
		name      string
		initiator domain.Identity
		email     string
		kind      error
		message   string
	}{
		{"blank email", student, "   ", apperrors.ErrBadRequest, "email is required"},
		{"unknown user", student, "nobody@x.com", apperrors.ErrNotFound, "User not found"},
		{"self", student, "A@x.com", apperrors.ErrInvalidOperation, "You cannot chat with yourself."},
		{"student to student", student, "d@x.com", apperrors.ErrForbidden, "You are not allowed to chat with this user."},
		{"unknown role", domain.Identity{UserID: 1, Role: "guest"}, "b@x.com", apperrors.ErrForbidden, "You are not allowed to chat with this user."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			_, err := f.svc.StartConversation(context.Background(), tt.initiator, tt.email)
			if !errors.Is(err, tt.kind) {
				t.Fatalf("expected %v, got %v", tt.kind, err)
			}
			if apperrors.PublicMessage(err) != tt.message {
				t.Fatalf("expected message %q, got %q", tt.message, apperrors.PublicMessage(err))
			}
			if f.store.ConversationCount() != 0 {
				t.Fatalf("expected no conversation to be created")
			}
		})
	}
}

func TestStudentMayStartWithInstructorAndAdmin(t *testing.T) {
	f := newFixture(t)

	for _, email := range []string{"b@x.com", "c@x.com"} {
		result, err := f.svc.StartConversation(context.Background(), student, email)
		if err != nil {
			t.Fatalf("student -> %s: %v", email, err)
		}
		if !result.Created {
			t.Fatalf("student -> %s: expected a new conversation, got %+v", email, result)
		}
	}
	if f.store.ConversationCount() != 2 {
		t.Fatalf("expected 2 conversations, got %d", f.store.ConversationCount())
	}
}

func TestAdminMayStartWithAnyone(t *testing.T) {
	f := newFixture(t)

	for _, email := range []string{"a@x.com", "b@x.com", "d@x.com"} {
		if _, err := f.svc.StartConversation(context.Background(), admin, email); err != nil {
			t.Fatalf("admin -> %s: %v", email, err)
		}
	}
}

func TestParticipancyGateIsIndistinguishable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	started, _ := f.svc.StartConversation(ctx, student, "b@x.com")

	_, errMember := f.svc.GetMessages(ctx, admin.UserID, started.ConversationID, domain.MessageCursor{})
	_, errMissing := f.svc.GetMessages(ctx, admin.UserID, 9999, domain.MessageCursor{})
	_, errZero := f.svc.GetMessages(ctx, admin.UserID, 0, domain.MessageCursor{})

	for _, err := range []error{errMember, errMissing, errZero} {
		if !errors.Is(err, apperrors.ErrForbidden) || apperrors.PublicMessage(err) != "Not allowed" {
			t.Fatalf("expected Not allowed, got %v", err)
		}
	}
	if errMember.Error() != errMissing.Error() {
		t.Fatalf("non-member and missing conversation must look the same: %q vs %q", errMember, errMissing)
	}

	if _, err := f.svc.SendMessage(ctx, admin.UserID, started.ConversationID, "hi"); !errors.Is(err, apperrors.ErrForbidden) {
		t.Fatalf("expected forbidden send for non-member, got %v", err)
	}
	if f.store.MessageCount(started.ConversationID) != 0 || len(f.notifier.messages) != 0 {
		t.Fatalf("forbidden send must not persist or notify")
	}
}

func TestSendMessageOrderingAndNotifications(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	started, _ := f.svc.StartConversation(ctx, student, "b@x.com")
	convID := started.ConversationID
	other, _ := f.svc.StartConversation(ctx, admin, "b@x.com")
	otherID := other.ConversationID

	for _, send := range []struct {
		from int64
		conv int64
		body string
	}{
		{1, convID, "M1"},
		{3, otherID, "X1"},
		{2, convID, "M2"},
		{2, otherID, "X2"},
		{1, convID, "  M3  "},
	} {
		if _, err := f.svc.SendMessage(ctx, send.from, send.conv, send.body); err != nil {
			t.Fatalf("SendMessage %q: %v", send.body, err)
		}
	}

	history, err := f.svc.GetMessages(ctx, 2, convID, domain.MessageCursor{})
	if err != nil {
		t.Fatalf("GetMessages: %v", err)
	}
	if len(history) != 3 || history[0].Body != "M1" || history[1].Body != "M2" || history[2].Body != "M3" {
		t.Fatalf("unexpected history: %+v", history)
	}
	if history[1].SenderUsername != "b" {
		t.Fatalf("expected sender username fallback, got %q", history[1].SenderUsername)
	}

	otherHistory, err := f.svc.GetMessages(ctx, 3, otherID, domain.MessageCursor{})
	if err != nil {
		t.Fatalf("GetMessages other: %v", err)
	}
	if len(otherHistory) != 2 || otherHistory[0].Body != "X1" || otherHistory[1].Body != "X2" {
		t.Fatalf("unexpected other history: %+v", otherHistory)
	}

	if len(f.notifier.messages) != 5 || len(f.notifier.updates) != 10 {
		t.Fatalf("expected 5 message and 10 update notifications, got %d and %d",
			len(f.notifier.messages), len(f.notifier.updates))
	}
	last := f.notifier.updates[8:]
	if last[0].userID != 1 || last[1].userID != 2 {
		t.Fatalf("expected updates for sender then counterparty, got %d and %d", last[0].userID, last[1].userID)
	}
	if last[0].update.LastMessage != "M3" || !last[0].update.LastTime.Equal(history[2].CreatedAt) {
		t.Fatalf("unexpected update payload: %+v", last[0].update)
	}

	conv, _ := f.store.Conversation(convID)
	if conv.LastMessageAt == nil || !conv.LastMessageAt.Equal(history[2].CreatedAt) {
		t.Fatalf("expected last_message_at to follow the newest message, got %v", conv.LastMessageAt)
	}
}

func TestSendMessageRejectsBlankBody(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	started, _ := f.svc.StartConversation(ctx, student, "b@x.com")

	_, err := f.svc.SendMessage(ctx, 1, started.ConversationID, " \n\t ")
	if !errors.Is(err, apperrors.ErrBadRequest) || apperrors.PublicMessage(err) != "Message is empty" {
		t.Fatalf("expected Message is empty, got %v", err)
	}
	if f.store.MessageCount(started.ConversationID) != 0 || len(f.notifier.messages) != 0 {
		t.Fatalf("blank message must not persist or notify")
	}
}

func TestSendMessageSurvivesTouchFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	started, _ := f.svc.StartConversation(ctx, student, "b@x.com")

	repos := f.store.Repositories()
	log := logger.Nop()
	svc := NewMessagingService(repos.User, failingTouch{repos.Conversation}, repos.Message, NewAuditService(repos.Audit, log), f.notifier, log)

	msg, err := svc.SendMessage(ctx, 2, started.ConversationID, "still delivered")
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if msg.Body != "still delivered" || len(f.notifier.messages) != 1 {
		t.Fatalf("expected the message to be stored and announced")
	}
}

func TestGetMessagesCursor(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	started, _ := f.svc.StartConversation(ctx, student, "b@x.com")

	var ids []int64
	for _, body := range []string{"m1", "m2", "m3", "m4"} {
		msg, err := f.svc.SendMessage(ctx, 1, started.ConversationID, body)
		if err != nil {
			t.Fatalf("SendMessage: %v", err)
		}
		ids = append(ids, msg.ID)
	}

	page, err := f.svc.GetMessages(ctx, 1, started.ConversationID, domain.MessageCursor{BeforeID: ids[3], Limit: 2})
	if err != nil {
		t.Fatalf("GetMessages: %v", err)
	}
	if len(page) != 2 || page[0].Body != "m2" || page[1].Body != "m3" {
		t.Fatalf("unexpected page: %+v", page)
	}
}

func TestListConversationsShowsCounterparty(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	started, _ := f.svc.StartConversation(ctx, student, "b@x.com")
	if _, err := f.svc.SendMessage(ctx, 1, started.ConversationID, "Hello"); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}

	list, err := f.svc.ListConversations(ctx, 2)
	if err != nil {
		t.Fatalf("ListConversations: %v", err)
	}
	if len(list) != 1 || list[0].OtherID != 1 || list[0].OtherName != "a" {
		t.Fatalf("unexpected list: %+v", list)
	}
	if list[0].LastMessage == nil || *list[0].LastMessage != "Hello" {
		t.Fatalf("expected last message preview, got %+v", list[0])
	}

	empty, err := f.svc.ListConversations(ctx, student2.UserID)
	if err != nil || len(empty) != 0 {
		t.Fatalf("expected no conversations for user 4, got %+v err=%v", empty, err)
	}
}

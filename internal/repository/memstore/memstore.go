// Package memstore keeps users, conversations and messages in process memory.
// It backs STORAGE_DRIVER=memory and the test suites.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"course_messaging/internal/domain"
	"course_messaging/internal/repository"
)

type Store struct {
	mu            sync.RWMutex
	now           func() time.Time
	users         map[int64]domain.User
	conversations map[int64]*domain.Conversation
	pairs         map[[2]int64]int64
	messages      map[int64][]domain.Message
	audit         []domain.AuditLog
	nextConvID    int64
	nextMessageID int64
	nextAuditID   int64
}

func New() *Store {
	return &Store{
		now:           time.Now,
		users:         make(map[int64]domain.User),
		conversations: make(map[int64]*domain.Conversation),
		pairs:         make(map[[2]int64]int64),
		messages:      make(map[int64][]domain.Message),
	}
}

// Repositories exposes the store through the repository interfaces.
// RateLimit stays nil: limiting needs Redis.
func (s *Store) Repositories() *repository.Repositories {
	return &repository.Repositories{
		User:         Users{s},
		Conversation: Conversations{s},
		Message:      Messages{s},
		Audit:        Audit{s},
	}
}

// SetClock replaces the time source used for created_at stamps.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	s.now = now
	s.mu.Unlock()
}

func (s *Store) AddUser(u domain.User) {
	s.mu.Lock()
	s.users[u.ID] = u
	s.mu.Unlock()
}

func (s *Store) MessageCount(conversationID int64) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.messages[conversationID])
}

func (s *Store) ConversationCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.conversations)
}

func (s *Store) AuditLogs() []domain.AuditLog {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.AuditLog(nil), s.audit...)
}

func (s *Store) Conversation(id int64) (domain.Conversation, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.conversations[id]
	if !ok {
		return domain.Conversation{}, false
	}
	return *c, true
}

type Users struct{ s *Store }

func (u Users) GetByID(_ context.Context, id int64) (*domain.User, error) {
	u.s.mu.RLock()
	defer u.s.mu.RUnlock()
	user, ok := u.s.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &user, nil
}

func (u Users) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	u.s.mu.RLock()
	defer u.s.mu.RUnlock()
	for _, user := range u.s.users {
		if domain.NormalizeEmail(user.Email) == email {
			found := user
			return &found, nil
		}
	}
	return nil, repository.ErrNotFound
}

type Conversations struct{ s *Store }

func (c Conversations) GetOrCreate(_ context.Context, low, high int64) (*domain.Conversation, bool, error) {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()

	key := [2]int64{low, high}
	if id, ok := c.s.pairs[key]; ok {
		existing := *c.s.conversations[id]
		return &existing, false, nil
	}

	c.s.nextConvID++
	conv := &domain.Conversation{
		ID:              c.s.nextConvID,
		ParticipantLow:  low,
		ParticipantHigh: high,
		CreatedAt:       c.s.now(),
	}
	c.s.conversations[conv.ID] = conv
	c.s.pairs[key] = conv.ID

	created := *conv
	return &created, true, nil
}

func (c Conversations) GetForParticipant(_ context.Context, conversationID, userID int64) (*domain.Conversation, error) {
	c.s.mu.RLock()
	defer c.s.mu.RUnlock()
	conv, ok := c.s.conversations[conversationID]
	if !ok || !conv.HasParticipant(userID) {
		return nil, repository.ErrNotFound
	}
	found := *conv
	return &found, nil
}

func (c Conversations) IsParticipant(_ context.Context, conversationID, userID int64) (bool, error) {
	c.s.mu.RLock()
	defer c.s.mu.RUnlock()
	conv, ok := c.s.conversations[conversationID]
	return ok && conv.HasParticipant(userID), nil
}

func (c Conversations) ListForParticipant(_ context.Context, userID int64) ([]domain.ConversationSummary, error) {
	c.s.mu.RLock()
	defer c.s.mu.RUnlock()

	summaries := make([]domain.ConversationSummary, 0)
	for _, conv := range c.s.conversations {
		if !conv.HasParticipant(userID) {
			continue
		}
		other := c.s.users[conv.Counterpart(userID)]
		summary := domain.ConversationSummary{
			ID:         conv.ID,
			OtherID:    other.ID,
			OtherName:  other.Username(),
			OtherEmail: other.Email,
			OtherRole:  other.Role,
			OtherImage: other.ImagePath,
		}
		if msgs := c.s.messages[conv.ID]; len(msgs) > 0 {
			last := latest(msgs)
			body, at := last.Body, last.CreatedAt
			summary.LastMessage = &body
			summary.LastTime = &at
		}
		summaries = append(summaries, summary)
	}

	sort.Slice(summaries, func(i, j int) bool {
		ti, tj := lastTime(summaries[i]), lastTime(summaries[j])
		if !ti.Equal(tj) {
			return ti.After(tj)
		}
		return summaries[i].ID > summaries[j].ID
	})

	return summaries, nil
}

func (c Conversations) Touch(_ context.Context, conversationID int64, at time.Time) error {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	if conv, ok := c.s.conversations[conversationID]; ok {
		if conv.LastMessageAt == nil || at.After(*conv.LastMessageAt) {
			conv.LastMessageAt = &at
		}
	}
	return nil
}

type Messages struct{ s *Store }

func (m Messages) Create(_ context.Context, conversationID, senderID int64, body string) (*domain.Message, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()

	if _, ok := m.s.conversations[conversationID]; !ok {
		return nil, repository.ErrNotFound
	}
	sender, ok := m.s.users[senderID]
	if !ok {
		return nil, repository.ErrNotFound
	}

	m.s.nextMessageID++
	msg := domain.Message{
		ID:             m.s.nextMessageID,
		ConversationID: conversationID,
		SenderID:       senderID,
		SenderUsername: sender.Username(),
		Body:           body,
		CreatedAt:      m.s.now(),
	}
	m.s.messages[conversationID] = append(m.s.messages[conversationID], msg)
	return &msg, nil
}

func (m Messages) ListByConversation(_ context.Context, conversationID int64, cursor domain.MessageCursor) ([]domain.Message, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()

	all := append([]domain.Message(nil), m.s.messages[conversationID]...)
	sort.SliceStable(all, func(i, j int) bool { return before(all[i], all[j]) })

	page := make([]domain.Message, 0, len(all))
	for _, msg := range all {
		if cursor.BeforeID > 0 && msg.ID >= cursor.BeforeID {
			continue
		}
		// Sender names are resolved at read time, like the SQL join.
		if sender, ok := m.s.users[msg.SenderID]; ok {
			msg.SenderUsername = sender.Username()
		}
		page = append(page, msg)
	}
	if cursor.Limit > 0 && len(page) > cursor.Limit {
		page = page[len(page)-cursor.Limit:]
	}
	return page, nil
}

type Audit struct{ s *Store }

func (a Audit) CreateLog(_ context.Context, log *domain.AuditLog) error {
	a.s.mu.Lock()
	defer a.s.mu.Unlock()
	a.s.nextAuditID++
	log.ID = a.s.nextAuditID
	a.s.audit = append(a.s.audit, *log)
	return nil
}

func before(a, b domain.Message) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.ID < b.ID
}

func latest(msgs []domain.Message) domain.Message {
	last := msgs[0]
	for _, m := range msgs[1:] {
		if before(last, m) {
			last = m
		}
	}
	return last
}

func lastTime(s domain.ConversationSummary) time.Time {
	if s.LastTime == nil {
		return time.Unix(0, 0)
	}
	return *s.LastTime
}

// SeedDemoUsers adds one user per role for local runs of the memory driver.
func (s *Store) SeedDemoUsers() {
	instructor := "Instructor Demo"
	for _, u := range []domain.User{
		{ID: 1, Email: "student@example.com", Role: domain.RoleStudent},
		{ID: 2, Email: "instructor@example.com", DisplayName: &instructor, Role: domain.RoleInstructor},
		{ID: 3, Email: "admin@example.com", Role: domain.RoleAdmin},
	} {
		s.AddUser(u)
	}
}

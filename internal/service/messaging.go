package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"course_messaging/internal/domain"
	"course_messaging/internal/repository"
	apperrors "course_messaging/pkg/errors"
	"course_messaging/pkg/logger"
)

// Notifier receives realtime fan-out requests after a message is persisted.
// Implementations must not block on slow clients.
type Notifier interface {
	MessageCreated(msg *domain.Message)
	ConversationUpdated(userID int64, update domain.ConversationUpdate)
}

type MessagingService interface {
	ListConversations(ctx context.Context, userID int64) ([]domain.ConversationSummary, error)
	StartConversation(ctx context.Context, initiator domain.Identity, email string) (*domain.StartedConversation, error)
	GetMessages(ctx context.Context, userID, conversationID int64, cursor domain.MessageCursor) ([]domain.Message, error)
	SendMessage(ctx context.Context, userID, conversationID int64, body string) (*domain.Message, error)
}

var (
	errEmailRequired    = apperrors.Wrap(apperrors.ErrBadRequest, "email is required")
	errEmptyMessage     = apperrors.Wrap(apperrors.ErrBadRequest, "Message is empty")
	errUserNotFound     = apperrors.Wrap(apperrors.ErrNotFound, "User not found")
	errSelfConversation = apperrors.Wrap(apperrors.ErrInvalidOperation, "You cannot chat with yourself.")
	errPairNotPermitted = apperrors.Wrap(apperrors.ErrForbidden, "You are not allowed to chat with this user.")
	// Returned for unknown conversations and for non-participants alike.
	errNotAllowed = apperrors.Wrap(apperrors.ErrForbidden, "Not allowed")
)

type messagingService struct {
	userRepo         repository.UserRepository
	conversationRepo repository.ConversationRepository
	messageRepo      repository.MessageRepository
	audit            AuditService
	notifier         Notifier
	log              logger.Logger
}

func NewMessagingService(
	userRepo repository.UserRepository,
	conversationRepo repository.ConversationRepository,
	messageRepo repository.MessageRepository,
	audit AuditService,
	notifier Notifier,
	log logger.Logger,
) MessagingService {
	if notifier == nil {
		notifier = nopNotifier{}
	}
	return &messagingService{
		userRepo:         userRepo,
		conversationRepo: conversationRepo,
		messageRepo:      messageRepo,
		audit:            audit,
		notifier:         notifier,
		log:              log,
	}
}

func (s *messagingService) ListConversations(ctx context.Context, userID int64) ([]domain.ConversationSummary, error) {
	summaries, err := s.conversationRepo.ListForParticipant(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	return summaries, nil
}

func (s *messagingService) StartConversation(ctx context.Context, initiator domain.Identity, email string) (*domain.StartedConversation, error) {
	email = domain.NormalizeEmail(email)
	if email == "" {
		return nil, errEmailRequired
	}

	target, err := s.userRepo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, errUserNotFound
		}
		return nil, fmt.Errorf("lookup target user: %w", err)
	}

	if target.ID == initiator.UserID {
		return nil, errSelfConversation
	}

	if !domain.CanConverse(initiator.Role, target.Role) {
		return nil, errPairNotPermitted
	}

	low, high := domain.CanonicalPair(initiator.UserID, target.ID)
	conv, created, err := s.conversationRepo.GetOrCreate(ctx, low, high)
	if err != nil {
		return nil, fmt.Errorf("get or create conversation: %w", err)
	}

	if created {
		s.log.Info("Conversation started", "conversation_id", conv.ID, "initiator_id", initiator.UserID, "target_id", target.ID)
		s.recordStart(ctx, initiator, conv.ID, target.ID)
	}

	return &domain.StartedConversation{
		ConversationID: conv.ID,
		Other:          domain.ParticipantFromUser(target),
		Created:        created,
	}, nil
}

func (s *messagingService) GetMessages(ctx context.Context, userID, conversationID int64, cursor domain.MessageCursor) ([]domain.Message, error) {
	if _, err := s.participantConversation(ctx, userID, conversationID); err != nil {
		return nil, err
	}

	if cursor.Limit < 0 {
		cursor.Limit = 0
	}
	if cursor.Limit > domain.MaxHistoryPage {
		cursor.Limit = domain.MaxHistoryPage
	}
	if cursor.BeforeID < 0 {
		cursor.BeforeID = 0
	}

	messages, err := s.messageRepo.ListByConversation(ctx, conversationID, cursor)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	return messages, nil
}

func (s *messagingService) SendMessage(ctx context.Context, userID, conversationID int64, body string) (*domain.Message, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, errEmptyMessage
	}

	conv, err := s.participantConversation(ctx, userID, conversationID)
	if err != nil {
		return nil, err
	}

	message, err := s.messageRepo.Create(ctx, conv.ID, userID, body)
	if err != nil {
		return nil, fmt.Errorf("create message: %w", err)
	}

	// Secondary effect: the freshness marker may fail without failing the send.
	if err := s.conversationRepo.Touch(ctx, conv.ID, message.CreatedAt); err != nil {
		s.log.Warn("Conversation last activity not updated", "conversation_id", conv.ID, "error", err)
	}

	update := domain.ConversationUpdate{
		ID:          conv.ID,
		LastMessage: message.Body,
		LastTime:    message.CreatedAt,
	}
	s.notifier.MessageCreated(message)
	s.notifier.ConversationUpdated(userID, update)
	s.notifier.ConversationUpdated(conv.Counterpart(userID), update)

	return message, nil
}

func (s *messagingService) participantConversation(ctx context.Context, userID, conversationID int64) (*domain.Conversation, error) {
	if conversationID <= 0 {
		return nil, errNotAllowed
	}
	conv, err := s.conversationRepo.GetForParticipant(ctx, conversationID, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, errNotAllowed
		}
		return nil, fmt.Errorf("load conversation: %w", err)
	}
	return conv, nil
}

func (s *messagingService) recordStart(ctx context.Context, initiator domain.Identity, conversationID, targetID int64) {
	if s.audit == nil {
		return
	}
	err := s.audit.LogEvent(ctx, initiator.UserID, initiator.Role, &conversationID, domain.EventTypeConversationStarted,
		map[string]interface{}{"target_user_id": targetID})
	if err != nil {
		s.log.Warn("Failed to audit conversation start", "conversation_id", conversationID, "error", err)
	}
}

type nopNotifier struct{}

func (nopNotifier) MessageCreated(*domain.Message)                       {}
func (nopNotifier) ConversationUpdated(int64, domain.ConversationUpdate) {}

package handler

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"course_messaging/internal/domain"
	"course_messaging/internal/service"
	apperrors "course_messaging/pkg/errors"
	"course_messaging/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/leebenson/conform"
)

type MessagingHandler struct {
	messagingService service.MessagingService
	log              logger.Logger
}

func NewMessagingHandler(messagingService service.MessagingService, log logger.Logger) *MessagingHandler {
	return &MessagingHandler{
		messagingService: messagingService,
		log:              log,
	}
}

type StartConversationRequest struct {
	Email string `json:"email" conform:"trim,lower"`
}

type SendMessageRequest struct {
	Body string `json:"body" conform:"trim"`
}

func (h *MessagingHandler) ListConversations(c *gin.Context) {
	summaries, err := h.messagingService.ListConversations(c.Request.Context(), identity(c).UserID)
	if err != nil {
		_ = c.Error(err)
		return
	}
	if summaries == nil {
		summaries = []domain.ConversationSummary{}
	}

	respond(c, http.StatusOK, summaries)
}

func (h *MessagingHandler) StartConversation(c *gin.Context) {
	var req StartConversationRequest
	if !bindBody(c, &req) {
		return
	}

	result, err := h.messagingService.StartConversation(c.Request.Context(), identity(c), req.Email)
	if err != nil {
		_ = c.Error(err)
		return
	}

	status := http.StatusOK
	if result.Created {
		status = http.StatusCreated
	}
	respond(c, status, result)
}

func (h *MessagingHandler) GetMessages(c *gin.Context) {
	cursor, err := parseCursor(c)
	if err != nil {
		_ = c.Error(err)
		return
	}

	messages, err := h.messagingService.GetMessages(c.Request.Context(), identity(c).UserID, conversationID(c), cursor)
	if err != nil {
		_ = c.Error(err)
		return
	}
	if messages == nil {
		messages = []domain.Message{}
	}

	respond(c, http.StatusOK, messages)
}

func (h *MessagingHandler) SendMessage(c *gin.Context) {
	var req SendMessageRequest
	if !bindBody(c, &req) {
		return
	}

	message, err := h.messagingService.SendMessage(c.Request.Context(), identity(c).UserID, conversationID(c), req.Body)
	if err != nil {
		_ = c.Error(err)
		return
	}

	respond(c, http.StatusCreated, message)
}

// bindBody decodes an optional JSON body. A missing body leaves req zeroed so
// the service reports the missing field.
func bindBody(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil && !errors.Is(err, io.EOF) {
		_ = c.Error(apperrors.Wrap(apperrors.ErrBadRequest, "Invalid request body"))
		return false
	}
	if err := conform.Strings(req); err != nil {
		_ = c.Error(apperrors.Wrap(apperrors.ErrBadRequest, "Invalid request body"))
		return false
	}
	return true
}

// conversationID parses :id. Anything unparsable becomes 0, which the service
// rejects exactly like an unknown conversation.
func conversationID(c *gin.Context) int64 {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id < 0 {
		return 0
	}
	return id
}

func parseCursor(c *gin.Context) (domain.MessageCursor, error) {
	var cursor domain.MessageCursor

	if raw := c.Query("before_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id < 0 {
			return cursor, apperrors.Wrap(apperrors.ErrBadRequest, "before_id must be a positive integer")
		}
		cursor.BeforeID = id
	}

	if raw := c.Query("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			return cursor, apperrors.Wrap(apperrors.ErrBadRequest, "limit must be a positive integer")
		}
		cursor.Limit = limit
	}

	return cursor, nil
}

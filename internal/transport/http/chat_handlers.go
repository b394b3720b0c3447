package http

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/coursechat/coursechat-server/internal/chat"
	"github.com/coursechat/coursechat-server/internal/hub"
	"github.com/coursechat/coursechat-server/internal/proto"
	"github.com/coursechat/coursechat-server/internal/store"
)

// ChatHandlers provides the REST surface over the chat service. The send
// path triggers the same fan-out as the socket path.
type ChatHandlers struct {
	hub   *hub.Hub
	chats *chat.Service
	log   *zerolog.Logger
}

// NewChatHandlers creates a new chat handlers instance.
func NewChatHandlers(h *hub.Hub, chats *chat.Service, logger *zerolog.Logger) *ChatHandlers {
	return &ChatHandlers{
		hub:   h,
		chats: chats,
		log:   logger,
	}
}

// CreateChatRequest represents the create chat request body.
type CreateChatRequest struct {
	ParticipantIDs []int64 `json:"participantIds" binding:"required,min=1"`
	ChatType       string  `json:"chatType" binding:"required"`
	CourseID       *int64  `json:"courseId"`
	Title          string  `json:"title"`
	Description    string  `json:"description"`
}

// SendMessageRequest represents the append message request body.
type SendMessageRequest struct {
	Content     string                 `json:"content"`
	MessageType string                 `json:"messageType"`
	Attachments []proto.AttachmentView `json:"attachments"`
}

func errorBody(message string) gin.H {
	return gin.H{"success": false, "message": message}
}

// respondError maps a domain error to conventional status semantics with
// the uniform error body.
func respondError(c *gin.Context, logger *zerolog.Logger, err error) {
	switch {
	case errors.Is(err, chat.ErrNotAuthorized):
		c.JSON(http.StatusForbidden, errorBody("not authorized"))
	case errors.Is(err, chat.ErrChatNotFound):
		c.JSON(http.StatusNotFound, errorBody("chat not found"))
	case errors.Is(err, chat.ErrChatInactive):
		c.JSON(http.StatusGone, errorBody("chat is inactive"))
	case errors.Is(err, chat.ErrParticipantsNotFound):
		c.JSON(http.StatusBadRequest, errorBody("one or more participants not found"))
	case errors.Is(err, chat.ErrBadRequest):
		c.JSON(http.StatusBadRequest, errorBody(err.Error()))
	default:
		logger.Error().Err(err).Msg("chat operation failed")
		c.JSON(http.StatusInternalServerError, errorBody("internal server error"))
	}
}

// ListChats lists the caller's chats with unread counts.
// GET /api/chats
func (h *ChatHandlers) ListChats(c *gin.Context) {
	identity, ok := identityFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, errorBody("unauthorized"))
		return
	}

	summaries, err := h.chats.ListForUser(c.Request.Context(), identity.UserID)
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	chats := make([]proto.ChatView, 0, len(summaries))
	for _, s := range summaries {
		chats = append(chats, proto.ChatFromStore(s.Chat, identity.UserID))
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "chats": chats})
}

// CreateChat creates a chat with the caller as initiator.
// POST /api/chats
func (h *ChatHandlers) CreateChat(c *gin.Context) {
	identity, ok := identityFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, errorBody("unauthorized"))
		return
	}

	var req CreateChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Debug().Err(err).Msg("invalid create chat request")
		c.JSON(http.StatusBadRequest, errorBody("invalid request body"))
		return
	}

	chatRec, err := h.chats.Create(
		c.Request.Context(),
		identity,
		req.ParticipantIDs,
		store.ChatKind(req.ChatType),
		req.CourseID,
		req.Title,
		req.Description,
	)
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"success": true, "chat": proto.ChatFromStore(chatRec, identity.UserID)})
}

// GetMessages returns one page of messages. Fetching a page implicitly
// marks the chat read for the caller, mirroring "viewing" semantics.
// GET /api/chats/:chatId?page=&limit=
func (h *ChatHandlers) GetMessages(c *gin.Context) {
	identity, ok := identityFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, errorBody("unauthorized"))
		return
	}

	chatID := c.Param("chatId")
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "0"))

	messages, err := h.chats.Page(c.Request.Context(), chatID, identity.UserID, page, limit)
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	if err := h.chats.MarkRead(c.Request.Context(), chatID, identity.UserID); err != nil {
		h.log.Warn().Err(err).Str("chat_id", chatID).Msg("implicit mark-read failed")
	}

	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"chatId":   chatID,
		"page":     page,
		"messages": proto.MessagesFromStore(messages),
	})
}

// SendMessage appends a message and fans it out exactly like the socket
// path does.
// POST /api/chats/:chatId/messages
func (h *ChatHandlers) SendMessage(c *gin.Context) {
	identity, ok := identityFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, errorBody("unauthorized"))
		return
	}

	chatID := c.Param("chatId")

	var req SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Debug().Err(err).Msg("invalid send message request")
		c.JSON(http.StatusBadRequest, errorBody("invalid request body"))
		return
	}

	chatRec, msg, err := h.chats.Append(
		c.Request.Context(),
		chatID,
		identity,
		req.Content,
		store.MessageKind(req.MessageType),
		proto.AttachmentsToStore(req.Attachments),
	)
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	h.hub.FanOutMessage(c.Request.Context(), chatRec, msg)

	c.JSON(http.StatusCreated, gin.H{"success": true, "message": proto.MessageFromStore(msg)})
}

// MarkRead zeroes the caller's unread counter for the chat.
// PUT /api/chats/:chatId/read
func (h *ChatHandlers) MarkRead(c *gin.Context) {
	identity, ok := identityFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, errorBody("unauthorized"))
		return
	}

	chatID := c.Param("chatId")
	if err := h.chats.MarkRead(c.Request.Context(), chatID, identity.UserID); err != nil {
		respondError(c, h.log, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}

// SearchMessages searches within one chat, capped at 100 results.
// GET /api/chats/:chatId/search?query=&messageType=&dateFrom=&dateTo=
func (h *ChatHandlers) SearchMessages(c *gin.Context) {
	identity, ok := identityFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, errorBody("unauthorized"))
		return
	}

	chatID := c.Param("chatId")

	filter := store.MessageFilter{
		Query: c.Query("query"),
		Kind:  store.MessageKind(c.Query("messageType")),
	}
	if from := c.Query("dateFrom"); from != "" {
		t, err := time.Parse(time.RFC3339, from)
		if err != nil {
			c.JSON(http.StatusBadRequest, errorBody("invalid dateFrom"))
			return
		}
		filter.DateFrom = &t
	}
	if to := c.Query("dateTo"); to != "" {
		t, err := time.Parse(time.RFC3339, to)
		if err != nil {
			c.JSON(http.StatusBadRequest, errorBody("invalid dateTo"))
			return
		}
		filter.DateTo = &t
	}

	messages, err := h.chats.Search(c.Request.Context(), chatID, identity.UserID, filter)
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"chatId":   chatID,
		"messages": proto.MessagesFromStore(messages),
	})
}

// DeleteChat soft-deletes a chat; instructor or admin role in the chat is
// required. History is never purged.
// DELETE /api/chats/:chatId
func (h *ChatHandlers) DeleteChat(c *gin.Context) {
	identity, ok := identityFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, errorBody("unauthorized"))
		return
	}

	chatID := c.Param("chatId")
	if err := h.chats.SoftDelete(c.Request.Context(), chatID, identity); err != nil {
		respondError(c, h.log, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}

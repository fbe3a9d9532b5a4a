package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/revaristo12/chatliver1404/internal/middleware"
	"github.com/revaristo12/chatliver1404/internal/services"
	"github.com/revaristo12/chatliver1404/pkg/response"
)

type MessageHandler struct {
	messages *services.MessageService
	rooms    *services.RoomService
}

func NewMessageHandler(messages *services.MessageService, rooms *services.RoomService) *MessageHandler {
	return &MessageHandler{messages: messages, rooms: rooms}
}

type createMessageRequest struct {
	Content       string `json:"content" validate:"omitempty,max=1000"`
	AttachmentRef string `json:"attachment_ref" validate:"omitempty,max=512"`
}

type editMessageRequest struct {
	Content string `json:"content" validate:"required,max=1000"`
}

// POST /api/rooms/:slug/messages
func (h *MessageHandler) Create(c *gin.Context) {
	userID := c.GetString(middleware.CtxUserIDKey)

	var req createMessageRequest
	if !bindAndValidate(c, &req) {
		return
	}

	ctx := requestContext(c)
	room, err := h.rooms.GetBySlug(ctx, c.Param("slug"))
	if err != nil {
		response.Error(c, err)
		return
	}

	message, err := h.messages.Create(ctx, services.CreateMessageInput{
		RoomID:        room.ID,
		UserID:        userID,
		Content:       req.Content,
		AttachmentRef: req.AttachmentRef,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusCreated, message)
}

// GET /api/rooms/:slug/messages?limit=&offset=
func (h *MessageHandler) List(c *gin.Context) {
	userID := c.GetString(middleware.CtxUserIDKey)
	ctx := requestContext(c)

	room, err := h.rooms.GetBySlug(ctx, c.Param("slug"))
	if err != nil {
		response.Error(c, err)
		return
	}

	limit := parseIntQuery(c, "limit", 50)
	offset := parseIntQuery(c, "offset", 0)

	messages, total, err := h.messages.List(ctx, room.ID, userID, limit, offset)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.SuccessWithMeta(c, http.StatusOK, messages, &response.Meta{
		Limit:  limit,
		Offset: offset,
		Total:  int(total),
	})
}

// PUT /api/messages/:id
func (h *MessageHandler) Edit(c *gin.Context) {
	userID := c.GetString(middleware.CtxUserIDKey)

	var req editMessageRequest
	if !bindAndValidate(c, &req) {
		return
	}

	message, err := h.messages.Edit(requestContext(c), c.Param("id"), userID, req.Content)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, message)
}

// DELETE /api/messages/:id
func (h *MessageHandler) Delete(c *gin.Context) {
	userID := c.GetString(middleware.CtxUserIDKey)

	if err := h.messages.Delete(requestContext(c), c.Param("id"), userID); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"deleted": true})
}

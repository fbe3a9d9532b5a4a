package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/revaristo12/chatliver1404/internal/middleware"
	"github.com/revaristo12/chatliver1404/internal/services"
	appErrors "github.com/revaristo12/chatliver1404/pkg/errors"
	"github.com/revaristo12/chatliver1404/pkg/response"
)

type AccessRequestHandler struct {
	requests *services.AccessRequestService
	rooms    *services.RoomService
}

func NewAccessRequestHandler(requests *services.AccessRequestService, rooms *services.RoomService) *AccessRequestHandler {
	return &AccessRequestHandler{requests: requests, rooms: rooms}
}

type accessRequestBody struct {
	Notes string `json:"notes" validate:"omitempty,max=512"`
}

// POST /api/rooms/:slug/requests
func (h *AccessRequestHandler) Create(c *gin.Context) {
	userID := c.GetString(middleware.CtxUserIDKey)

	var req accessRequestBody
	if !bindAndValidate(c, &req) {
		return
	}

	ctx := requestContext(c)
	room, err := h.rooms.GetBySlug(ctx, c.Param("slug"))
	if err != nil {
		response.Error(c, err)
		return
	}

	request, err := h.requests.Request(ctx, room.ID, userID, req.Notes)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusCreated, request)
}

// GET /api/rooms/:slug/requests
func (h *AccessRequestHandler) ListPending(c *gin.Context) {
	userID := c.GetString(middleware.CtxUserIDKey)
	ctx := requestContext(c)

	room, err := h.rooms.GetBySlug(ctx, c.Param("slug"))
	if err != nil {
		response.Error(c, err)
		return
	}

	role, err := h.rooms.Role(ctx, room.ID, userID)
	if err != nil {
		response.Error(c, err)
		return
	}
	if !services.CanManageRoom(role) {
		response.Error(c, appErrors.ErrForbidden)
		return
	}

	requests, err := h.requests.ListPending(ctx, room.ID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, requests)
}

// POST /api/requests/:id/approve
func (h *AccessRequestHandler) Approve(c *gin.Context) {
	requestID := c.Param("id")
	userID, ok := h.authorize(c, requestID)
	if !ok {
		return
	}

	member, err := h.requests.Approve(requestContext(c), requestID, userID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, member)
}

// POST /api/requests/:id/reject
func (h *AccessRequestHandler) Reject(c *gin.Context) {
	requestID := c.Param("id")
	userID, ok := h.authorize(c, requestID)
	if !ok {
		return
	}

	if err := h.requests.Reject(requestContext(c), requestID, userID); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"rejected": true})
}

// authorize requires the acting user to manage the room the request targets.
func (h *AccessRequestHandler) authorize(c *gin.Context, requestID string) (string, bool) {
	userID := c.GetString(middleware.CtxUserIDKey)
	ctx := requestContext(c)

	request, err := h.requests.Get(ctx, requestID)
	if err != nil {
		response.Error(c, err)
		return "", false
	}

	role, err := h.rooms.Role(ctx, request.RoomID, userID)
	if err != nil {
		response.Error(c, err)
		return "", false
	}
	if !services.CanManageRoom(role) {
		response.Error(c, appErrors.ErrForbidden)
		return "", false
	}
	return userID, true
}

package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/revaristo12/chatliver1404/internal/middleware"
	"github.com/revaristo12/chatliver1404/internal/services"
	appErrors "github.com/revaristo12/chatliver1404/pkg/errors"
	"github.com/revaristo12/chatliver1404/pkg/response"
)

type InviteHandler struct {
	invites *services.InviteService
	rooms   *services.RoomService
}

func NewInviteHandler(invites *services.InviteService, rooms *services.RoomService) *InviteHandler {
	return &InviteHandler{invites: invites, rooms: rooms}
}

type createRoomInviteRequest struct {
	TTLHours    int    `json:"ttl_hours" validate:"required,min=1,max=168"`
	MaxUses     *int   `json:"max_uses" validate:"omitempty,min=1,max=100"`
	NotifyEmail string `json:"notify_email" validate:"omitempty,email"`
}

// manageRoom resolves the room by slug and requires the acting user to be an
// admin or the creator.
func (h *InviteHandler) manageRoom(c *gin.Context, slug string) (string, bool) {
	userID := c.GetString(middleware.CtxUserIDKey)
	ctx := requestContext(c)

	room, err := h.rooms.GetBySlug(ctx, slug)
	if err != nil {
		response.Error(c, err)
		return "", false
	}
	role, err := h.rooms.Role(ctx, room.ID, userID)
	if err != nil {
		response.Error(c, err)
		return "", false
	}
	if !services.CanManageRoom(role) {
		response.Error(c, appErrors.ErrForbidden)
		return "", false
	}
	return room.ID, true
}

// POST /api/rooms/:slug/invites
func (h *InviteHandler) Create(c *gin.Context) {
	var req createRoomInviteRequest
	if !bindAndValidate(c, &req) {
		return
	}

	roomID, ok := h.manageRoom(c, c.Param("slug"))
	if !ok {
		return
	}

	invite, err := h.invites.Create(requestContext(c), services.CreateInviteInput{
		RoomID:      roomID,
		CreatedBy:   c.GetString(middleware.CtxUserIDKey),
		TTLHours:    req.TTLHours,
		MaxUses:     req.MaxUses,
		NotifyEmail: req.NotifyEmail,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusCreated, invite)
}

// GET /api/rooms/:slug/invites
func (h *InviteHandler) List(c *gin.Context) {
	roomID, ok := h.manageRoom(c, c.Param("slug"))
	if !ok {
		return
	}

	invites, err := h.invites.ListForRoom(requestContext(c), roomID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, invites)
}

// GET /api/invites/:code
func (h *InviteHandler) Validate(c *gin.Context) {
	invite, err := h.invites.Validate(requestContext(c), c.Param("code"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, invite)
}

// POST /api/invites/:code/redeem
func (h *InviteHandler) Redeem(c *gin.Context) {
	userID := c.GetString(middleware.CtxUserIDKey)

	room, err := h.invites.Redeem(requestContext(c), c.Param("code"), userID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, room)
}

// POST /api/rooms/:slug/invites/:id/revoke
func (h *InviteHandler) Revoke(c *gin.Context) {
	roomID, ok := h.manageRoom(c, c.Param("slug"))
	if !ok {
		return
	}

	ctx := requestContext(c)
	invite, err := h.invites.Get(ctx, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	if invite.RoomID != roomID {
		response.Error(c, services.ErrInviteNotFound)
		return
	}

	if err := h.invites.Revoke(ctx, invite.ID); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"revoked": true})
}

// DELETE /api/rooms/:slug/invites/:id
func (h *InviteHandler) Delete(c *gin.Context) {
	roomID, ok := h.manageRoom(c, c.Param("slug"))
	if !ok {
		return
	}

	ctx := requestContext(c)
	invite, err := h.invites.Get(ctx, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	if invite.RoomID != roomID {
		response.Error(c, services.ErrInviteNotFound)
		return
	}

	if err := h.invites.Delete(ctx, invite.ID); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"deleted": true})
}

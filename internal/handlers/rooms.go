package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/revaristo12/chatliver1404/internal/middleware"
	"github.com/revaristo12/chatliver1404/internal/services"
	appErrors "github.com/revaristo12/chatliver1404/pkg/errors"
	"github.com/revaristo12/chatliver1404/pkg/response"
)

type RoomHandler struct {
	rooms *services.RoomService
}

func NewRoomHandler(rooms *services.RoomService) *RoomHandler {
	return &RoomHandler{rooms: rooms}
}

type createRoomRequest struct {
	Name        string `json:"name" validate:"required,min=1,max=128"`
	Description string `json:"description" validate:"omitempty,max=512"`
	IsPrivate   bool   `json:"is_private"`
	AllowImages bool   `json:"allow_images"`
	AllowVideos bool   `json:"allow_videos"`
}

type setMemberRoleRequest struct {
	Role string `json:"role" validate:"required,oneof=admin member"`
}

// POST /api/rooms
func (h *RoomHandler) Create(c *gin.Context) {
	userID := c.GetString(middleware.CtxUserIDKey)

	var req createRoomRequest
	if !bindAndValidate(c, &req) {
		return
	}

	room, err := h.rooms.Create(requestContext(c), services.CreateRoomInput{
		Name:        req.Name,
		Description: req.Description,
		IsPrivate:   req.IsPrivate,
		AllowImages: req.AllowImages,
		AllowVideos: req.AllowVideos,
		CreatorID:   userID,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusCreated, room)
}

// GET /api/rooms
func (h *RoomHandler) ListPublic(c *gin.Context) {
	userID := c.GetString(middleware.CtxUserIDKey)

	summaries, err := h.rooms.ListPublic(requestContext(c), userID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, summaries)
}

// GET /api/rooms/mine
func (h *RoomHandler) ListMine(c *gin.Context) {
	userID := c.GetString(middleware.CtxUserIDKey)

	summaries, err := h.rooms.ListForUser(requestContext(c), userID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, summaries)
}

// GET /api/rooms/:slug
func (h *RoomHandler) Get(c *gin.Context) {
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
	// Private rooms stay invisible to outsiders.
	if room.IsPrivate && !services.IsMember(role) {
		response.Error(c, services.ErrRoomNotFound)
		return
	}

	response.Success(c, http.StatusOK, services.RoomSummary{Room: *room, Role: role})
}

// DELETE /api/rooms/:slug
func (h *RoomHandler) Delete(c *gin.Context) {
	userID := c.GetString(middleware.CtxUserIDKey)

	if err := h.rooms.Delete(requestContext(c), c.Param("slug"), userID); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"deleted": true})
}

// GET /api/rooms/:slug/members
func (h *RoomHandler) Members(c *gin.Context) {
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
	if !services.IsMember(role) {
		response.Error(c, appErrors.ErrForbidden)
		return
	}

	members, err := h.rooms.Members(ctx, room.ID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, members)
}

// PUT /api/rooms/:slug/members/:userID/role
func (h *RoomHandler) SetMemberRole(c *gin.Context) {
	actorID := c.GetString(middleware.CtxUserIDKey)
	targetID := c.Param("userID")

	var req setMemberRoleRequest
	if !bindAndValidate(c, &req) {
		return
	}

	ctx := requestContext(c)
	slug := c.Param("slug")

	var err error
	if req.Role == "admin" {
		err = h.rooms.Promote(ctx, slug, actorID, targetID)
	} else {
		err = h.rooms.Demote(ctx, slug, actorID, targetID)
	}
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"role": req.Role})
}

// DELETE /api/rooms/:slug/members/:userID
func (h *RoomHandler) RemoveMember(c *gin.Context) {
	actorID := c.GetString(middleware.CtxUserIDKey)
	targetID := c.Param("userID")

	if err := h.rooms.Remove(requestContext(c), c.Param("slug"), actorID, targetID); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"removed": true})
}

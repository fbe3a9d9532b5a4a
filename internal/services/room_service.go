package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/revaristo12/chatliver1404/internal/models"
	apperrors "github.com/revaristo12/chatliver1404/pkg/errors"
)

var (
	// ErrRoomNotFound indicates the requested room does not exist.
	ErrRoomNotFound = apperrors.New("ROOM_NOT_FOUND", "Room not found", http.StatusNotFound)
	// ErrMemberNotFound indicates the target user holds no membership in the room.
	ErrMemberNotFound = apperrors.New("MEMBER_NOT_FOUND", "User is not a member of this room", http.StatusNotFound)
	// ErrAlreadyMember signals the user already holds a membership in the room.
	ErrAlreadyMember = apperrors.NewConflict("ALREADY_MEMBER", "You are already a member of this room")
	// ErrNotDemotable signals a demote attempt on a plain member.
	ErrNotDemotable = apperrors.NewBadRequest("User is not an admin")
	// ErrNotPromotable signals a promote attempt on a user who is not a plain member.
	ErrNotPromotable = apperrors.NewBadRequest("User is not a regular member")
)

const slugAttempts = 100

// CreateRoomInput captures new room metadata.
type CreateRoomInput struct {
	Name        string
	Description string
	IsPrivate   bool
	AllowImages bool
	AllowVideos bool
	CreatorID   string
}

// RoomSummary pairs a room with the requesting user's standing in it.
type RoomSummary struct {
	Room           models.Room     `json:"room"`
	Role           models.RoomRole `json:"role,omitempty"`
	PendingRequest bool            `json:"pending_request,omitempty"`
}

// RoomOption customises RoomService behaviour.
type RoomOption func(*RoomService)

// WithRoomClock injects a custom clock primarily for testing.
func WithRoomClock(clock func() time.Time) RoomOption {
	return func(s *RoomService) {
		if clock != nil {
			s.now = clock
		}
	}
}

// RoomService owns rooms and the (room, user, role) membership relation.
type RoomService struct {
	db  *gorm.DB
	now func() time.Time
}

// NewRoomService constructs a RoomService.
func NewRoomService(db *gorm.DB, opts ...RoomOption) (*RoomService, error) {
	if db == nil {
		return nil, errors.New("room service: db is required")
	}

	service := &RoomService{db: db, now: time.Now}
	for _, opt := range opts {
		opt(service)
	}
	return service, nil
}

// Create inserts the room and its creator membership as one atomic unit. The
// slug is derived from the name and disambiguated with a numeric suffix when
// taken.
func (s *RoomService) Create(ctx context.Context, input CreateRoomInput) (*models.Room, error) {
	ctx = ensureContext(ctx)

	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, apperrors.NewBadRequest("room name is required")
	}
	creatorID := strings.TrimSpace(input.CreatorID)
	if creatorID == "" {
		return nil, errors.New("room service: creator id is required")
	}

	room := &models.Room{
		Name:        name,
		Description: strings.TrimSpace(input.Description),
		IsPrivate:   input.IsPrivate,
		AllowImages: input.AllowImages,
		AllowVideos: input.AllowVideos,
		CreatorID:   creatorID,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		slug, err := s.uniqueSlug(tx, name)
		if err != nil {
			return err
		}
		room.Slug = slug

		if err := tx.Create(room).Error; err != nil {
			return fmt.Errorf("create room: %w", err)
		}

		member := &models.RoomMember{
			RoomID:   room.ID,
			UserID:   creatorID,
			Role:     models.RoleCreator,
			JoinedAt: s.now(),
		}
		if err := tx.Create(member).Error; err != nil {
			return fmt.Errorf("create creator membership: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return room, nil
}

func (s *RoomService) uniqueSlug(tx *gorm.DB, name string) (string, error) {
	base := slugify(name)
	if base == "" {
		base = "room"
	}

	slug := base
	for i := 1; i <= slugAttempts; i++ {
		var count int64
		if err := tx.Model(&models.Room{}).Where("slug = ?", slug).Count(&count).Error; err != nil {
			return "", fmt.Errorf("check slug: %w", err)
		}
		if count == 0 {
			return slug, nil
		}
		slug = fmt.Sprintf("%s-%d", base, i)
	}
	return "", fmt.Errorf("room service: could not find a free slug for %q", name)
}

// GetBySlug loads a room by its slug.
func (s *RoomService) GetBySlug(ctx context.Context, slug string) (*models.Room, error) {
	ctx = ensureContext(ctx)

	var room models.Room
	err := s.db.WithContext(ctx).First(&room, "slug = ?", strings.TrimSpace(slug)).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrRoomNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("room service: load room: %w", err)
	}
	return &room, nil
}

// Delete removes the room and everything it owns. Creator only; the cascade
// covers memberships, invites, messages, and access requests in one
// transaction.
func (s *RoomService) Delete(ctx context.Context, slug, actorID string) error {
	ctx = ensureContext(ctx)

	room, err := s.GetBySlug(ctx, slug)
	if err != nil {
		return err
	}

	role, err := s.Role(ctx, room.ID, actorID)
	if err != nil {
		return err
	}
	if !CanAdministerMembers(role) {
		return apperrors.ErrForbidden
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, model := range []any{
			&models.RoomMember{}, &models.RoomInvite{}, &models.Message{}, &models.AccessRequest{},
		} {
			if err := tx.Where("room_id = ?", room.ID).Delete(model).Error; err != nil {
				return fmt.Errorf("delete room children: %w", err)
			}
		}
		if err := tx.Delete(&models.Room{}, "id = ?", room.ID).Error; err != nil {
			return fmt.Errorf("delete room: %w", err)
		}
		return nil
	})
}

// Role returns the user's role in the room, or RoleNone when no membership
// exists. Reads go straight to the store so authorization always observes the
// latest committed write.
func (s *RoomService) Role(ctx context.Context, roomID, userID string) (models.RoomRole, error) {
	ctx = ensureContext(ctx)

	var member models.RoomMember
	err := s.db.WithContext(ctx).
		Where("room_id = ? AND user_id = ?", roomID, userID).
		First(&member).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return RoleNone, nil
	}
	if err != nil {
		return RoleNone, fmt.Errorf("room service: load role: %w", err)
	}
	return member.Role, nil
}

// AddMember inserts a membership row. Used by invite redemption and access
// request approval; the creator role is only ever written by Create.
func (s *RoomService) AddMember(ctx context.Context, roomID, userID string, role models.RoomRole) (*models.RoomMember, error) {
	ctx = ensureContext(ctx)

	if role == models.RoleCreator {
		return nil, ErrCreatorImmutable
	}
	if !role.Valid() {
		return nil, apperrors.NewBadRequest("invalid role")
	}

	member := &models.RoomMember{
		RoomID:   roomID,
		UserID:   userID,
		Role:     role,
		JoinedAt: s.now(),
	}
	if err := s.db.WithContext(ctx).Create(member).Error; err != nil {
		if isUniqueConstraintError(err) {
			return nil, ErrAlreadyMember
		}
		return nil, fmt.Errorf("room service: add member: %w", err)
	}
	return member, nil
}

// Members lists the memberships of a room including user details.
func (s *RoomService) Members(ctx context.Context, roomID string) ([]models.RoomMember, error) {
	ctx = ensureContext(ctx)

	var members []models.RoomMember
	err := s.db.WithContext(ctx).
		Preload("User").
		Where("room_id = ?", roomID).
		Order("joined_at ASC").
		Find(&members).Error
	if err != nil {
		return nil, fmt.Errorf("room service: list members: %w", err)
	}
	return members, nil
}

// ListForUser returns the rooms the user belongs to with their role in each.
func (s *RoomService) ListForUser(ctx context.Context, userID string) ([]RoomSummary, error) {
	ctx = ensureContext(ctx)

	var members []models.RoomMember
	err := s.db.WithContext(ctx).
		Preload("Room").
		Where("user_id = ?", userID).
		Order("joined_at ASC").
		Find(&members).Error
	if err != nil {
		return nil, fmt.Errorf("room service: list rooms: %w", err)
	}

	summaries := make([]RoomSummary, 0, len(members))
	for _, m := range members {
		if m.Room == nil {
			continue
		}
		summaries = append(summaries, RoomSummary{Room: *m.Room, Role: m.Role})
	}
	return summaries, nil
}

// ListPublic returns all public rooms annotated with the user's membership
// role and whether an access request is pending.
func (s *RoomService) ListPublic(ctx context.Context, userID string) ([]RoomSummary, error) {
	ctx = ensureContext(ctx)

	var rooms []models.Room
	if err := s.db.WithContext(ctx).Where("is_private = ?", false).Order("name ASC").Find(&rooms).Error; err != nil {
		return nil, fmt.Errorf("room service: list public rooms: %w", err)
	}

	summaries := make([]RoomSummary, 0, len(rooms))
	for _, room := range rooms {
		role, err := s.Role(ctx, room.ID, userID)
		if err != nil {
			return nil, err
		}

		var pending int64
		err = s.db.WithContext(ctx).
			Model(&models.AccessRequest{}).
			Where("room_id = ? AND user_id = ? AND status = ?", room.ID, userID, models.RequestPending).
			Count(&pending).Error
		if err != nil {
			return nil, fmt.Errorf("room service: count pending requests: %w", err)
		}

		summaries = append(summaries, RoomSummary{
			Room:           room,
			Role:           role,
			PendingRequest: pending > 0,
		})
	}
	return summaries, nil
}

// Promote raises a member to admin. Creator only; self-targeting and the
// creator membership are rejected before anything is written.
func (s *RoomService) Promote(ctx context.Context, slug, actorID, targetID string) error {
	return s.setRole(ctx, slug, actorID, targetID, models.RoleAdmin)
}

// Demote lowers an admin back to member under the same rules as Promote.
func (s *RoomService) Demote(ctx context.Context, slug, actorID, targetID string) error {
	return s.setRole(ctx, slug, actorID, targetID, models.RoleMember)
}

func (s *RoomService) setRole(ctx context.Context, slug, actorID, targetID string, newRole models.RoomRole) error {
	ctx = ensureContext(ctx)

	room, target, err := s.authorizeMemberAction(ctx, slug, actorID, targetID)
	if err != nil {
		return err
	}

	switch newRole {
	case models.RoleAdmin:
		if target.Role != models.RoleMember {
			return ErrNotPromotable
		}
	case models.RoleMember:
		if target.Role != models.RoleAdmin {
			return ErrNotDemotable
		}
	default:
		return apperrors.NewBadRequest("invalid role")
	}

	err = s.db.WithContext(ctx).
		Model(&models.RoomMember{}).
		Where("room_id = ? AND user_id = ?", room.ID, targetID).
		Update("role", newRole).Error
	if err != nil {
		return fmt.Errorf("room service: set role: %w", err)
	}
	return nil
}

// Remove deletes a non-creator membership. Creator only.
func (s *RoomService) Remove(ctx context.Context, slug, actorID, targetID string) error {
	ctx = ensureContext(ctx)

	room, _, err := s.authorizeMemberAction(ctx, slug, actorID, targetID)
	if err != nil {
		return err
	}

	err = s.db.WithContext(ctx).
		Where("room_id = ? AND user_id = ?", room.ID, targetID).
		Delete(&models.RoomMember{}).Error
	if err != nil {
		return fmt.Errorf("room service: remove member: %w", err)
	}
	return nil
}

// authorizeMemberAction runs every role check for promote/demote/remove
// before any mutation: actor must be the creator, the target must hold a
// membership, and self/creator targeting is rejected.
func (s *RoomService) authorizeMemberAction(ctx context.Context, slug, actorID, targetID string) (*models.Room, *models.RoomMember, error) {
	room, err := s.GetBySlug(ctx, slug)
	if err != nil {
		return nil, nil, err
	}

	actorRole, err := s.Role(ctx, room.ID, actorID)
	if err != nil {
		return nil, nil, err
	}
	if !CanAdministerMembers(actorRole) {
		return nil, nil, apperrors.ErrForbidden
	}

	var target models.RoomMember
	err = s.db.WithContext(ctx).
		Where("room_id = ? AND user_id = ?", room.ID, targetID).
		First(&target).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil, ErrMemberNotFound
	}
	if err != nil {
		return nil, nil, fmt.Errorf("room service: load target member: %w", err)
	}

	if err := checkMemberTarget(actorID, targetID, target.Role); err != nil {
		return nil, nil, err
	}
	return room, &target, nil
}

package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/revaristo12/chatliver1404/internal/models"
	"github.com/revaristo12/chatliver1404/pkg/crypto"
	apperrors "github.com/revaristo12/chatliver1404/pkg/errors"
	"github.com/revaristo12/chatliver1404/pkg/logger"
	"github.com/revaristo12/chatliver1404/pkg/mail"
	"github.com/revaristo12/chatliver1404/pkg/metrics"
)

const (
	defaultInviteCodeLength = 12
	codeGenerationAttempts  = 10

	minInviteTTLHours = 1
	maxInviteTTLHours = 168
	minInviteMaxUses  = 1
	maxInviteMaxUses  = 100
)

var (
	// ErrInviteNotFound indicates no invite matches the provided code.
	ErrInviteNotFound = apperrors.New("INVITE_NOT_FOUND", "Invite not found", http.StatusNotFound)
	// ErrInviteExpired indicates the invite code has expired or was revoked.
	ErrInviteExpired = apperrors.NewConflict("INVITE_EXPIRED", "Invite has expired")
	// ErrInviteExhausted indicates the invite reached its use limit.
	ErrInviteExhausted = apperrors.NewConflict("INVITE_EXHAUSTED", "Invite use limit reached")
	// ErrInviteBadTTL indicates the requested lifetime is outside the allowed window.
	ErrInviteBadTTL = apperrors.NewBadRequest("Invite lifetime must be between 1 and 168 hours")
	// ErrInviteBadMaxUses indicates the requested use limit is out of range.
	ErrInviteBadMaxUses = apperrors.NewBadRequest("Invite use limit must be between 1 and 100")
)

// CreateInviteInput carries the parameters for a new invite.
type CreateInviteInput struct {
	RoomID    string
	CreatedBy string
	TTLHours  int
	MaxUses   *int
	// NotifyEmail optionally receives the invite code by mail.
	NotifyEmail string
}

// InviteOption customises InviteService behaviour.
type InviteOption func(*InviteService)

// WithInviteClock injects a custom clock primarily for testing.
func WithInviteClock(clock func() time.Time) InviteOption {
	return func(s *InviteService) {
		if clock != nil {
			s.now = clock
		}
	}
}

// WithInviteCodeLength adjusts the generated code length.
func WithInviteCodeLength(length int) InviteOption {
	return func(s *InviteService) {
		if length > 0 {
			s.codeLength = length
		}
	}
}

// InviteService generates, validates, and redeems room invite codes.
type InviteService struct {
	db         *gorm.DB
	mailer     mail.Mailer
	codeLength int
	now        func() time.Time
	log        *zap.Logger
}

// NewInviteService constructs an InviteService with the provided dependencies.
func NewInviteService(db *gorm.DB, mailer mail.Mailer, opts ...InviteOption) (*InviteService, error) {
	if db == nil {
		return nil, errors.New("invite service: db is required")
	}

	service := &InviteService{
		db:         db,
		mailer:     mailer,
		codeLength: defaultInviteCodeLength,
		now:        time.Now,
		log:        logger.WithModule("invites"),
	}
	for _, opt := range opts {
		opt(service)
	}
	return service, nil
}

// Create generates a collision-free random code and stores the invite. The
// caller is responsible for having authorized the creating user.
func (s *InviteService) Create(ctx context.Context, input CreateInviteInput) (*models.RoomInvite, error) {
	ctx = ensureContext(ctx)

	if input.TTLHours < minInviteTTLHours || input.TTLHours > maxInviteTTLHours {
		return nil, ErrInviteBadTTL
	}
	if input.MaxUses != nil && (*input.MaxUses < minInviteMaxUses || *input.MaxUses > maxInviteMaxUses) {
		return nil, ErrInviteBadMaxUses
	}

	code, err := s.generateCode(ctx)
	if err != nil {
		return nil, err
	}

	invite := &models.RoomInvite{
		RoomID:    input.RoomID,
		Code:      code,
		CreatedBy: input.CreatedBy,
		ExpiresAt: s.now().Add(time.Duration(input.TTLHours) * time.Hour),
		MaxUses:   input.MaxUses,
		IsActive:  true,
	}
	if err := s.db.WithContext(ctx).Create(invite).Error; err != nil {
		return nil, fmt.Errorf("invite service: create invite: %w", err)
	}

	s.notifyInvite(ctx, invite, input.NotifyEmail)
	return invite, nil
}

// generateCode draws random alphanumeric codes until one is free. Uniqueness
// is checked against existing rows rather than assumed.
func (s *InviteService) generateCode(ctx context.Context) (string, error) {
	for i := 0; i < codeGenerationAttempts; i++ {
		code, err := crypto.GenerateCode(s.codeLength)
		if err != nil {
			return "", fmt.Errorf("invite service: generate code: %w", err)
		}
		code = strings.ToLower(code)

		var count int64
		if err := s.db.WithContext(ctx).Model(&models.RoomInvite{}).Where("code = ?", code).Count(&count).Error; err != nil {
			return "", fmt.Errorf("invite service: check code: %w", err)
		}
		if count == 0 {
			return code, nil
		}
	}
	return "", errors.New("invite service: could not generate a unique code")
}

// Validate performs a case-insensitive lookup and evaluates the usability
// invariant: active, unexpired, and not past its use limit.
func (s *InviteService) Validate(ctx context.Context, code string) (*models.RoomInvite, error) {
	ctx = ensureContext(ctx)

	code = strings.ToLower(strings.TrimSpace(code))
	if code == "" {
		return nil, ErrInviteNotFound
	}

	var invite models.RoomInvite
	err := s.db.WithContext(ctx).First(&invite, "code = ?", code).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrInviteNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("invite service: find invite: %w", err)
	}

	now := s.now()
	if !invite.IsActive || !now.Before(invite.ExpiresAt) {
		return nil, ErrInviteExpired
	}
	if invite.Exhausted() {
		return nil, ErrInviteExhausted
	}
	return &invite, nil
}

// Redeem validates the code and mints a membership. The use-count increment
// and the membership insert run in one transaction; the increment is a
// conditional update so concurrent redemptions can never drive used_count
// past max_uses.
func (s *InviteService) Redeem(ctx context.Context, code, userID string) (*models.Room, error) {
	ctx = ensureContext(ctx)

	var room models.Room
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		invite, err := s.validateTx(tx, code)
		if err != nil {
			return err
		}

		var existing int64
		err = tx.Model(&models.RoomMember{}).
			Where("room_id = ? AND user_id = ?", invite.RoomID, userID).
			Count(&existing).Error
		if err != nil {
			return fmt.Errorf("invite service: check membership: %w", err)
		}
		if existing > 0 {
			return ErrAlreadyMember
		}

		res := tx.Model(&models.RoomInvite{}).
			Where("id = ? AND is_active = ? AND (max_uses IS NULL OR used_count < max_uses)", invite.ID, true).
			UpdateColumn("used_count", gorm.Expr("used_count + 1"))
		if res.Error != nil {
			return fmt.Errorf("invite service: increment use count: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrInviteExhausted
		}

		member := &models.RoomMember{
			RoomID:   invite.RoomID,
			UserID:   userID,
			Role:     models.RoleMember,
			JoinedAt: s.now(),
		}
		if err := tx.Create(member).Error; err != nil {
			if isUniqueConstraintError(err) {
				return ErrAlreadyMember
			}
			return fmt.Errorf("invite service: add member: %w", err)
		}

		return tx.First(&room, "id = ?", invite.RoomID).Error
	})
	if err != nil {
		metrics.InviteRedemptions.WithLabelValues(redemptionResult(err)).Inc()
		return nil, err
	}

	metrics.InviteRedemptions.WithLabelValues("success").Inc()
	return &room, nil
}

func (s *InviteService) validateTx(tx *gorm.DB, code string) (*models.RoomInvite, error) {
	code = strings.ToLower(strings.TrimSpace(code))
	if code == "" {
		return nil, ErrInviteNotFound
	}

	var invite models.RoomInvite
	err := tx.First(&invite, "code = ?", code).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrInviteNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("invite service: find invite: %w", err)
	}

	now := s.now()
	if !invite.IsActive || !now.Before(invite.ExpiresAt) {
		return nil, ErrInviteExpired
	}
	if invite.Exhausted() {
		return nil, ErrInviteExhausted
	}
	return &invite, nil
}

func redemptionResult(err error) string {
	switch {
	case errors.Is(err, ErrInviteNotFound):
		return "invalid"
	case errors.Is(err, ErrInviteExpired):
		return "expired"
	case errors.Is(err, ErrInviteExhausted):
		return "exhausted"
	case errors.Is(err, ErrAlreadyMember):
		return "already_member"
	default:
		return "error"
	}
}

// Revoke forces the invite's expiry to now, keeping the row for audit. It is
// distinct from Delete, which removes the row entirely.
func (s *InviteService) Revoke(ctx context.Context, inviteID string) error {
	ctx = ensureContext(ctx)

	res := s.db.WithContext(ctx).
		Model(&models.RoomInvite{}).
		Where("id = ?", inviteID).
		Updates(map[string]any{"expires_at": s.now(), "is_active": false})
	if res.Error != nil {
		return fmt.Errorf("invite service: revoke invite: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrInviteNotFound
	}
	return nil
}

// Delete hard-deletes an invite.
func (s *InviteService) Delete(ctx context.Context, inviteID string) error {
	ctx = ensureContext(ctx)

	res := s.db.WithContext(ctx).Delete(&models.RoomInvite{}, "id = ?", inviteID)
	if res.Error != nil {
		return fmt.Errorf("invite service: delete invite: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrInviteNotFound
	}
	return nil
}

// Get loads an invite by id.
func (s *InviteService) Get(ctx context.Context, inviteID string) (*models.RoomInvite, error) {
	ctx = ensureContext(ctx)

	var invite models.RoomInvite
	err := s.db.WithContext(ctx).First(&invite, "id = ?", inviteID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrInviteNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("invite service: load invite: %w", err)
	}
	return &invite, nil
}

// ListForRoom lists every invite of a room, newest first.
func (s *InviteService) ListForRoom(ctx context.Context, roomID string) ([]models.RoomInvite, error) {
	ctx = ensureContext(ctx)

	var invites []models.RoomInvite
	err := s.db.WithContext(ctx).
		Where("room_id = ?", roomID).
		Order("created_at DESC").
		Find(&invites).Error
	if err != nil {
		return nil, fmt.Errorf("invite service: list invites: %w", err)
	}
	return invites, nil
}

// notifyInvite sends the invite code by email when a recipient was supplied.
// Delivery is best effort and never fails the creating request.
func (s *InviteService) notifyInvite(ctx context.Context, invite *models.RoomInvite, email string) {
	email = strings.TrimSpace(email)
	if s.mailer == nil || email == "" {
		return
	}

	var room models.Room
	if err := s.db.WithContext(ctx).First(&room, "id = ?", invite.RoomID).Error; err != nil {
		s.log.Warn("invite email skipped", zap.Error(err))
		return
	}

	msg := mail.Message{
		To:      []string{email},
		Subject: fmt.Sprintf("Invitation to room: %s", room.Name),
		Body: fmt.Sprintf(
			"You have been invited to the room %q.\n\nInvite code: %s\nExpires at: %s\n",
			room.Name, invite.Code, invite.ExpiresAt.Format(time.RFC1123),
		),
	}
	if err := s.mailer.Send(ctx, msg); err != nil && !errors.Is(err, mail.ErrSMTPDisabled) {
		s.log.Warn("invite email failed", zap.String("room", room.Slug), zap.Error(err))
	}
}

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
	apperrors "github.com/revaristo12/chatliver1404/pkg/errors"
	"github.com/revaristo12/chatliver1404/pkg/logger"
	"github.com/revaristo12/chatliver1404/pkg/mail"
)

var (
	// ErrRequestNotFound indicates the access request does not exist.
	ErrRequestNotFound = apperrors.New("REQUEST_NOT_FOUND", "Access request not found", http.StatusNotFound)
	// ErrRequestPending signals a duplicate pending request for the same room.
	ErrRequestPending = apperrors.NewConflict("REQUEST_PENDING", "You already have a pending request for this room")
	// ErrRequestProcessed signals a second approve/reject on a processed request.
	ErrRequestProcessed = apperrors.NewConflict("REQUEST_PROCESSED", "Access request has already been processed")
)

// AccessRequestOption customises AccessRequestService behaviour.
type AccessRequestOption func(*AccessRequestService)

// WithRequestClock injects a custom clock primarily for testing.
func WithRequestClock(clock func() time.Time) AccessRequestOption {
	return func(s *AccessRequestService) {
		if clock != nil {
			s.now = clock
		}
	}
}

// AccessRequestService manages join requests from non-members. Requests move
// from pending to exactly one of approved or rejected; processed statuses are
// terminal.
type AccessRequestService struct {
	db     *gorm.DB
	mailer mail.Mailer
	now    func() time.Time
	log    *zap.Logger
}

// NewAccessRequestService constructs an AccessRequestService.
func NewAccessRequestService(db *gorm.DB, mailer mail.Mailer, opts ...AccessRequestOption) (*AccessRequestService, error) {
	if db == nil {
		return nil, errors.New("access request service: db is required")
	}

	service := &AccessRequestService{
		db:     db,
		mailer: mailer,
		now:    time.Now,
		log:    logger.WithModule("access-requests"),
	}
	for _, opt := range opts {
		opt(service)
	}
	return service, nil
}

// Request queues a join request. Members and users with a pending request
// are rejected with a conflict.
func (s *AccessRequestService) Request(ctx context.Context, roomID, userID, notes string) (*models.AccessRequest, error) {
	ctx = ensureContext(ctx)

	var member int64
	err := s.db.WithContext(ctx).
		Model(&models.RoomMember{}).
		Where("room_id = ? AND user_id = ?", roomID, userID).
		Count(&member).Error
	if err != nil {
		return nil, fmt.Errorf("access request service: check membership: %w", err)
	}
	if member > 0 {
		return nil, ErrAlreadyMember
	}

	var pending int64
	err = s.db.WithContext(ctx).
		Model(&models.AccessRequest{}).
		Where("room_id = ? AND user_id = ? AND status = ?", roomID, userID, models.RequestPending).
		Count(&pending).Error
	if err != nil {
		return nil, fmt.Errorf("access request service: check pending: %w", err)
	}
	if pending > 0 {
		return nil, ErrRequestPending
	}

	request := &models.AccessRequest{
		RoomID:      roomID,
		UserID:      userID,
		Status:      models.RequestPending,
		Notes:       strings.TrimSpace(notes),
		RequestedAt: s.now(),
	}
	if err := s.db.WithContext(ctx).Create(request).Error; err != nil {
		return nil, fmt.Errorf("access request service: create request: %w", err)
	}
	return request, nil
}

// Approve flips the request to approved and inserts the membership in one
// transaction. The status flip is a conditional update on the pending
// status, so processing the same request twice fails; a failed membership
// insert rolls the flip back.
func (s *AccessRequestService) Approve(ctx context.Context, requestID, processorID string) (*models.RoomMember, error) {
	ctx = ensureContext(ctx)

	var member *models.RoomMember
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		request, err := s.markProcessed(tx, requestID, processorID, models.RequestApproved)
		if err != nil {
			return err
		}

		member = &models.RoomMember{
			RoomID:   request.RoomID,
			UserID:   request.UserID,
			Role:     models.RoleMember,
			JoinedAt: s.now(),
		}
		if err := tx.Create(member).Error; err != nil {
			if isUniqueConstraintError(err) {
				return ErrAlreadyMember
			}
			return fmt.Errorf("access request service: add member: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.notify(ctx, requestID, "approved")
	return member, nil
}

// Reject flips the request to rejected; no membership side effect.
func (s *AccessRequestService) Reject(ctx context.Context, requestID, processorID string) error {
	ctx = ensureContext(ctx)

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		_, err := s.markProcessed(tx, requestID, processorID, models.RequestRejected)
		return err
	})
	if err != nil {
		return err
	}

	s.notify(ctx, requestID, "rejected")
	return nil
}

func (s *AccessRequestService) markProcessed(tx *gorm.DB, requestID, processorID string, status models.RequestStatus) (*models.AccessRequest, error) {
	var request models.AccessRequest
	err := tx.First(&request, "id = ?", requestID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrRequestNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("access request service: load request: %w", err)
	}

	now := s.now()
	res := tx.Model(&models.AccessRequest{}).
		Where("id = ? AND status = ?", requestID, models.RequestPending).
		Updates(map[string]any{
			"status":       status,
			"processed_at": now,
			"processed_by": processorID,
		})
	if res.Error != nil {
		return nil, fmt.Errorf("access request service: update status: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, ErrRequestProcessed
	}

	request.Status = status
	request.ProcessedAt = &now
	request.ProcessedBy = &processorID
	return &request, nil
}

// Get loads a request by id.
func (s *AccessRequestService) Get(ctx context.Context, requestID string) (*models.AccessRequest, error) {
	ctx = ensureContext(ctx)

	var request models.AccessRequest
	err := s.db.WithContext(ctx).First(&request, "id = ?", requestID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrRequestNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("access request service: load request: %w", err)
	}
	return &request, nil
}

// ListPending lists the pending requests of a room, oldest first.
func (s *AccessRequestService) ListPending(ctx context.Context, roomID string) ([]models.AccessRequest, error) {
	ctx = ensureContext(ctx)

	var requests []models.AccessRequest
	err := s.db.WithContext(ctx).
		Preload("User").
		Where("room_id = ? AND status = ?", roomID, models.RequestPending).
		Order("requested_at ASC").
		Find(&requests).Error
	if err != nil {
		return nil, fmt.Errorf("access request service: list pending: %w", err)
	}
	return requests, nil
}

// notify emails the requesting user about the decision, best effort.
func (s *AccessRequestService) notify(ctx context.Context, requestID, decision string) {
	if s.mailer == nil {
		return
	}

	var request models.AccessRequest
	err := s.db.WithContext(ctx).
		Preload("User").
		Preload("Room").
		First(&request, "id = ?", requestID).Error
	if err != nil || request.User == nil || request.Room == nil {
		return
	}

	msg := mail.Message{
		To:      []string{request.User.Email},
		Subject: fmt.Sprintf("Access %s for room: %s", decision, request.Room.Name),
		Body:    fmt.Sprintf("Your request to join %q has been %s.\n", request.Room.Name, decision),
	}
	if err := s.mailer.Send(ctx, msg); err != nil && !errors.Is(err, mail.ErrSMTPDisabled) {
		s.log.Warn("access request email failed", zap.String("request", requestID), zap.Error(err))
	}
}

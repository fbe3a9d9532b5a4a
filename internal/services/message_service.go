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

	"github.com/revaristo12/chatliver1404/internal/encoding"
	"github.com/revaristo12/chatliver1404/internal/models"
	apperrors "github.com/revaristo12/chatliver1404/pkg/errors"
	"github.com/revaristo12/chatliver1404/pkg/logger"
)

const maxMessageLength = 1000

var (
	// ErrMessageNotFound indicates the message does not exist.
	ErrMessageNotFound = apperrors.New("MESSAGE_NOT_FOUND", "Message not found", http.StatusNotFound)
	// ErrMessageEmpty rejects messages without content or attachment.
	ErrMessageEmpty = apperrors.NewBadRequest("Message must have content or an attachment")
	// ErrMessageTooLong rejects content over the length limit.
	ErrMessageTooLong = apperrors.NewBadRequest(fmt.Sprintf("Message content exceeds %d characters", maxMessageLength))
)

// MessageBroadcaster receives committed messages for fan-out to connected
// room subscribers. Implemented by the realtime hub; a nil broadcaster
// disables fan-out.
type MessageBroadcaster interface {
	BroadcastMessage(roomID string, message *models.Message)
}

// MessageOption customises MessageService behaviour.
type MessageOption func(*MessageService)

// WithMessageClock injects a custom clock primarily for testing.
func WithMessageClock(clock func() time.Time) MessageOption {
	return func(s *MessageService) {
		if clock != nil {
			s.now = clock
		}
	}
}

// WithBroadcaster wires the realtime fan-out target.
func WithBroadcaster(b MessageBroadcaster) MessageOption {
	return func(s *MessageService) {
		s.broadcaster = b
	}
}

// MessageService persists room messages. Content is stored twice, a display
// column and an encoded column produced by the configured codec; reads hand
// back the display column after verifying the encoded one still decodes.
type MessageService struct {
	db          *gorm.DB
	codec       encoding.Codec
	broadcaster MessageBroadcaster
	now         func() time.Time
	log         *zap.Logger
}

// NewMessageService constructs a MessageService.
func NewMessageService(db *gorm.DB, codec encoding.Codec, opts ...MessageOption) (*MessageService, error) {
	if db == nil {
		return nil, errors.New("message service: db is required")
	}
	if codec == nil {
		codec = encoding.PlainCodec{}
	}

	service := &MessageService{
		db:    db,
		codec: codec,
		now:   time.Now,
		log:   logger.WithModule("messages"),
	}
	for _, opt := range opts {
		opt(service)
	}
	return service, nil
}

// CreateMessageInput carries the fields for a new message.
type CreateMessageInput struct {
	RoomID        string
	UserID        string
	Content       string
	AttachmentRef string
}

// CreateFromClient persists a message frame arriving over the realtime
// channel. Same path as Create; the hub drops the frame when this errors.
func (s *MessageService) CreateFromClient(ctx context.Context, roomID, userID, content string) (*models.Message, error) {
	return s.Create(ctx, CreateMessageInput{RoomID: roomID, UserID: userID, Content: content})
}

// Create validates, encodes and persists a message, then hands the committed
// row to the broadcaster. Fan-out happens strictly after commit so slow or
// absent subscribers never affect persistence.
func (s *MessageService) Create(ctx context.Context, input CreateMessageInput) (*models.Message, error) {
	ctx = ensureContext(ctx)

	role, err := memberRole(ctx, s.db, input.RoomID, input.UserID)
	if err != nil {
		return nil, err
	}
	if !IsMember(role) {
		return nil, apperrors.ErrForbidden
	}

	content := strings.TrimSpace(input.Content)
	attachment := strings.TrimSpace(input.AttachmentRef)
	if content == "" && attachment == "" {
		return nil, ErrMessageEmpty
	}
	if len([]rune(content)) > maxMessageLength {
		return nil, ErrMessageTooLong
	}

	encoded, err := s.codec.Encode(content)
	if err != nil {
		return nil, fmt.Errorf("message service: encode: %w", err)
	}

	message := &models.Message{
		RoomID:         input.RoomID,
		UserID:         input.UserID,
		Content:        content,
		EncodedContent: encoded,
		AttachmentRef:  attachment,
	}
	if err := s.db.WithContext(ctx).Create(message).Error; err != nil {
		return nil, fmt.Errorf("message service: create: %w", err)
	}
	if err := s.db.WithContext(ctx).Preload("User").First(message, "id = ?", message.ID).Error; err != nil {
		return nil, fmt.Errorf("message service: reload: %w", err)
	}

	if s.broadcaster != nil {
		s.broadcaster.BroadcastMessage(input.RoomID, message)
	}
	return message, nil
}

// Edit replaces the content of a message. Only the author may edit; admins
// cannot edit other people's messages, they can only delete them.
func (s *MessageService) Edit(ctx context.Context, messageID, userID, content string) (*models.Message, error) {
	ctx = ensureContext(ctx)

	message, err := s.Get(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if message.UserID != userID {
		return nil, apperrors.ErrForbidden
	}

	content = strings.TrimSpace(content)
	if content == "" && message.AttachmentRef == "" {
		return nil, ErrMessageEmpty
	}
	if len([]rune(content)) > maxMessageLength {
		return nil, ErrMessageTooLong
	}

	encoded, err := s.codec.Encode(content)
	if err != nil {
		return nil, fmt.Errorf("message service: encode: %w", err)
	}

	err = s.db.WithContext(ctx).Model(message).Updates(map[string]any{
		"content":         content,
		"encoded_content": encoded,
	}).Error
	if err != nil {
		return nil, fmt.Errorf("message service: update: %w", err)
	}

	message.Content = content
	message.EncodedContent = encoded
	return message, nil
}

// Delete removes a message. Allowed for the author and for anyone who can
// manage the room.
func (s *MessageService) Delete(ctx context.Context, messageID, userID string) error {
	ctx = ensureContext(ctx)

	message, err := s.Get(ctx, messageID)
	if err != nil {
		return err
	}

	if message.UserID != userID {
		role, err := memberRole(ctx, s.db, message.RoomID, userID)
		if err != nil {
			return err
		}
		if !CanManageRoom(role) {
			return apperrors.ErrForbidden
		}
	}

	if err := s.db.WithContext(ctx).Delete(&models.Message{}, "id = ?", messageID).Error; err != nil {
		return fmt.Errorf("message service: delete: %w", err)
	}
	return nil
}

// Get loads a message by id.
func (s *MessageService) Get(ctx context.Context, messageID string) (*models.Message, error) {
	ctx = ensureContext(ctx)

	var message models.Message
	err := s.db.WithContext(ctx).Preload("User").First(&message, "id = ?", messageID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrMessageNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("message service: load: %w", err)
	}
	return &message, nil
}

// List returns up to limit messages of a room ending at the newest, ordered
// oldest first so clients can append in place. Offset skips from the newest
// end. Non-members are refused.
func (s *MessageService) List(ctx context.Context, roomID, userID string, limit, offset int) ([]models.Message, int64, error) {
	ctx = ensureContext(ctx)

	role, err := memberRole(ctx, s.db, roomID, userID)
	if err != nil {
		return nil, 0, err
	}
	if !IsMember(role) {
		return nil, 0, apperrors.ErrForbidden
	}

	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	var total int64
	query := s.db.WithContext(ctx).Model(&models.Message{}).Where("room_id = ?", roomID)
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("message service: count: %w", err)
	}

	var messages []models.Message
	err = s.db.WithContext(ctx).
		Preload("User").
		Where("room_id = ?", roomID).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Offset(offset).
		Find(&messages).Error
	if err != nil {
		return nil, 0, fmt.Errorf("message service: list: %w", err)
	}

	// Reverse into chronological order and spot-check the encoded column.
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	for i := range messages {
		if messages[i].EncodedContent == "" {
			continue
		}
		if _, err := s.codec.Decode(messages[i].EncodedContent); err != nil {
			s.log.Warn("stored message failed to decode",
				zap.String("message", messages[i].ID),
				zap.Error(err))
		}
	}
	return messages, total, nil
}

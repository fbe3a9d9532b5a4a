package services

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/revaristo12/chatliver1404/internal/encoding"
	"github.com/revaristo12/chatliver1404/internal/models"
	apperrors "github.com/revaristo12/chatliver1404/pkg/errors"
)

type recordingBroadcaster struct {
	roomIDs  []string
	messages []*models.Message
}

func (r *recordingBroadcaster) BroadcastMessage(roomID string, message *models.Message) {
	r.roomIDs = append(r.roomIDs, roomID)
	r.messages = append(r.messages, message)
}

func newMessageFixture(t *testing.T) (*RoomService, *MessageService, *recordingBroadcaster, *models.User, *models.Room) {
	t.Helper()

	db := openTestDB(t)
	rooms, err := NewRoomService(db)
	require.NoError(t, err)

	codec, err := encoding.NewAESCodec("test-secret")
	require.NoError(t, err)

	sink := &recordingBroadcaster{}
	messages, err := NewMessageService(db, codec, WithBroadcaster(sink))
	require.NoError(t, err)

	alice := seedUser(t, db, "alice")
	room := seedRoom(t, db, rooms, alice, "General")
	return rooms, messages, sink, alice, room
}

func TestMessageCreatePersistsAndBroadcasts(t *testing.T) {
	_, messages, sink, alice, room := newMessageFixture(t)
	ctx := context.Background()

	message, err := messages.Create(ctx, CreateMessageInput{
		RoomID:  room.ID,
		UserID:  alice.ID,
		Content: "hello, room",
	})
	require.NoError(t, err)
	require.Equal(t, "hello, room", message.Content)
	require.NotEmpty(t, message.EncodedContent)
	require.NotEqual(t, message.Content, message.EncodedContent)
	require.NotNil(t, message.User)
	require.Equal(t, "alice", message.User.Username)

	require.Len(t, sink.messages, 1)
	require.Equal(t, room.ID, sink.roomIDs[0])
	require.Equal(t, message.ID, sink.messages[0].ID)
}

func TestMessageCreateValidation(t *testing.T) {
	rooms, messages, _, alice, room := newMessageFixture(t)
	ctx := context.Background()

	_, err := messages.Create(ctx, CreateMessageInput{RoomID: room.ID, UserID: alice.ID, Content: "   "})
	require.ErrorIs(t, err, ErrMessageEmpty)

	_, err = messages.Create(ctx, CreateMessageInput{
		RoomID:  room.ID,
		UserID:  alice.ID,
		Content: strings.Repeat("x", 1001),
	})
	require.ErrorIs(t, err, ErrMessageTooLong)

	// Attachment-only messages are allowed.
	_, err = messages.Create(ctx, CreateMessageInput{
		RoomID:        room.ID,
		UserID:        alice.ID,
		AttachmentRef: "uploads/cat.png",
	})
	require.NoError(t, err)

	// Non-members cannot post.
	outsider := seedUser(t, rooms.db, "mallory")
	_, err = messages.Create(ctx, CreateMessageInput{RoomID: room.ID, UserID: outsider.ID, Content: "hi"})
	require.ErrorIs(t, err, apperrors.ErrForbidden)
}

func TestMessageEditAuthorOnly(t *testing.T) {
	rooms, messages, _, alice, room := newMessageFixture(t)
	ctx := context.Background()

	bob := seedUser(t, rooms.db, "bob")
	_, err := rooms.AddMember(ctx, room.ID, bob.ID, models.RoleAdmin)
	require.NoError(t, err)

	message, err := messages.Create(ctx, CreateMessageInput{RoomID: room.ID, UserID: alice.ID, Content: "draft"})
	require.NoError(t, err)

	// Even an admin cannot edit someone else's message.
	_, err = messages.Edit(ctx, message.ID, bob.ID, "hijacked")
	require.ErrorIs(t, err, apperrors.ErrForbidden)

	edited, err := messages.Edit(ctx, message.ID, alice.ID, "final")
	require.NoError(t, err)
	require.Equal(t, "final", edited.Content)
}

func TestMessageDeleteAuthorOrManager(t *testing.T) {
	rooms, messages, _, alice, room := newMessageFixture(t)
	ctx := context.Background()

	bob := seedUser(t, rooms.db, "bob")
	carol := seedUser(t, rooms.db, "carol")
	_, err := rooms.AddMember(ctx, room.ID, bob.ID, models.RoleMember)
	require.NoError(t, err)
	_, err = rooms.AddMember(ctx, room.ID, carol.ID, models.RoleAdmin)
	require.NoError(t, err)

	first, err := messages.Create(ctx, CreateMessageInput{RoomID: room.ID, UserID: bob.ID, Content: "one"})
	require.NoError(t, err)
	second, err := messages.Create(ctx, CreateMessageInput{RoomID: room.ID, UserID: bob.ID, Content: "two"})
	require.NoError(t, err)

	// A plain member cannot delete someone else's message.
	third, err := messages.Create(ctx, CreateMessageInput{RoomID: room.ID, UserID: alice.ID, Content: "three"})
	require.NoError(t, err)
	err = messages.Delete(ctx, third.ID, bob.ID)
	require.ErrorIs(t, err, apperrors.ErrForbidden)

	// The author can delete their own, an admin anyone's.
	require.NoError(t, messages.Delete(ctx, first.ID, bob.ID))
	require.NoError(t, messages.Delete(ctx, second.ID, carol.ID))

	_, err = messages.Get(ctx, first.ID)
	require.ErrorIs(t, err, ErrMessageNotFound)
}

func TestMessageListReturnsChronologicalPage(t *testing.T) {
	_, messages, _, alice, room := newMessageFixture(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := messages.Create(ctx, CreateMessageInput{
			RoomID:  room.ID,
			UserID:  alice.ID,
			Content: fmt.Sprintf("message %d", i),
		})
		require.NoError(t, err)
	}

	page, total, err := messages.List(ctx, room.ID, alice.ID, 3, 0)
	require.NoError(t, err)
	require.EqualValues(t, 5, total)
	require.Len(t, page, 3)

	// The newest three, oldest first.
	require.Equal(t, "message 2", page[0].Content)
	require.Equal(t, "message 3", page[1].Content)
	require.Equal(t, "message 4", page[2].Content)

	older, _, err := messages.List(ctx, room.ID, alice.ID, 3, 3)
	require.NoError(t, err)
	require.Len(t, older, 2)
	require.Equal(t, "message 0", older[0].Content)
	require.Equal(t, "message 1", older[1].Content)
}

func TestMessageListRefusesOutsiders(t *testing.T) {
	rooms, messages, _, _, room := newMessageFixture(t)

	outsider := seedUser(t, rooms.db, "mallory")
	_, _, err := messages.List(context.Background(), room.ID, outsider.ID, 10, 0)
	require.ErrorIs(t, err, apperrors.ErrForbidden)
}

package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/revaristo12/chatliver1404/internal/models"
	apperrors "github.com/revaristo12/chatliver1404/pkg/errors"
)

func TestRoomCreateAddsCreatorMembership(t *testing.T) {
	db := openTestDB(t)
	rooms, err := NewRoomService(db)
	require.NoError(t, err)

	alice := seedUser(t, db, "alice")
	room := seedRoom(t, db, rooms, alice, "General")

	require.Equal(t, "general", room.Slug)
	require.Equal(t, alice.ID, room.CreatorID)

	role, err := rooms.Role(context.Background(), room.ID, alice.ID)
	require.NoError(t, err)
	require.Equal(t, models.RoleCreator, role)
}

func TestRoomCreateDisambiguatesSlugs(t *testing.T) {
	db := openTestDB(t)
	rooms, err := NewRoomService(db)
	require.NoError(t, err)

	alice := seedUser(t, db, "alice")

	first := seedRoom(t, db, rooms, alice, "Team Chat")
	second := seedRoom(t, db, rooms, alice, "Team Chat")
	third := seedRoom(t, db, rooms, alice, "Team Chat")

	require.Equal(t, "team-chat", first.Slug)
	require.Equal(t, "team-chat-1", second.Slug)
	require.Equal(t, "team-chat-2", third.Slug)
}

func TestRoomRoleReturnsNoneForOutsider(t *testing.T) {
	db := openTestDB(t)
	rooms, err := NewRoomService(db)
	require.NoError(t, err)

	alice := seedUser(t, db, "alice")
	bob := seedUser(t, db, "bob")
	room := seedRoom(t, db, rooms, alice, "General")

	role, err := rooms.Role(context.Background(), room.ID, bob.ID)
	require.NoError(t, err)
	require.Equal(t, RoleNone, role)
}

func TestRoomAddMemberRejectsDuplicates(t *testing.T) {
	db := openTestDB(t)
	rooms, err := NewRoomService(db)
	require.NoError(t, err)

	alice := seedUser(t, db, "alice")
	bob := seedUser(t, db, "bob")
	room := seedRoom(t, db, rooms, alice, "General")

	ctx := context.Background()
	_, err = rooms.AddMember(ctx, room.ID, bob.ID, models.RoleMember)
	require.NoError(t, err)

	_, err = rooms.AddMember(ctx, room.ID, bob.ID, models.RoleMember)
	require.ErrorIs(t, err, ErrAlreadyMember)

	_, err = rooms.AddMember(ctx, room.ID, bob.ID, models.RoleCreator)
	require.ErrorIs(t, err, ErrCreatorImmutable)
}

func TestRoomPromoteDemoteRules(t *testing.T) {
	db := openTestDB(t)
	rooms, err := NewRoomService(db)
	require.NoError(t, err)

	alice := seedUser(t, db, "alice")
	bob := seedUser(t, db, "bob")
	carol := seedUser(t, db, "carol")
	room := seedRoom(t, db, rooms, alice, "General")

	ctx := context.Background()
	_, err = rooms.AddMember(ctx, room.ID, bob.ID, models.RoleMember)
	require.NoError(t, err)
	_, err = rooms.AddMember(ctx, room.ID, carol.ID, models.RoleMember)
	require.NoError(t, err)

	// Only the creator may promote.
	err = rooms.Promote(ctx, room.Slug, bob.ID, carol.ID)
	require.ErrorIs(t, err, apperrors.ErrForbidden)

	require.NoError(t, rooms.Promote(ctx, room.Slug, alice.ID, bob.ID))
	role, err := rooms.Role(ctx, room.ID, bob.ID)
	require.NoError(t, err)
	require.Equal(t, models.RoleAdmin, role)

	// An admin still cannot promote; member administration is creator only.
	err = rooms.Promote(ctx, room.Slug, bob.ID, carol.ID)
	require.ErrorIs(t, err, apperrors.ErrForbidden)

	// A plain member cannot be demoted, an admin cannot be promoted again.
	err = rooms.Demote(ctx, room.Slug, alice.ID, carol.ID)
	require.ErrorIs(t, err, ErrNotDemotable)
	err = rooms.Promote(ctx, room.Slug, alice.ID, bob.ID)
	require.ErrorIs(t, err, ErrNotPromotable)

	require.NoError(t, rooms.Demote(ctx, room.Slug, alice.ID, bob.ID))
	role, err = rooms.Role(ctx, room.ID, bob.ID)
	require.NoError(t, err)
	require.Equal(t, models.RoleMember, role)
}

func TestRoomCreatorIsImmovable(t *testing.T) {
	db := openTestDB(t)
	rooms, err := NewRoomService(db)
	require.NoError(t, err)

	alice := seedUser(t, db, "alice")
	room := seedRoom(t, db, rooms, alice, "General")

	ctx := context.Background()

	// Self-targeting is rejected before the creator check fires.
	err = rooms.Promote(ctx, room.Slug, alice.ID, alice.ID)
	require.ErrorIs(t, err, ErrSelfTarget)
	err = rooms.Remove(ctx, room.Slug, alice.ID, alice.ID)
	require.ErrorIs(t, err, ErrSelfTarget)
}

func TestRoomRemoveMember(t *testing.T) {
	db := openTestDB(t)
	rooms, err := NewRoomService(db)
	require.NoError(t, err)

	alice := seedUser(t, db, "alice")
	bob := seedUser(t, db, "bob")
	room := seedRoom(t, db, rooms, alice, "General")

	ctx := context.Background()
	_, err = rooms.AddMember(ctx, room.ID, bob.ID, models.RoleMember)
	require.NoError(t, err)

	require.NoError(t, rooms.Remove(ctx, room.Slug, alice.ID, bob.ID))

	role, err := rooms.Role(ctx, room.ID, bob.ID)
	require.NoError(t, err)
	require.Equal(t, RoleNone, role)

	err = rooms.Remove(ctx, room.Slug, alice.ID, bob.ID)
	require.ErrorIs(t, err, ErrMemberNotFound)
}

func TestRoomDeleteCascades(t *testing.T) {
	db := openTestDB(t)
	rooms, err := NewRoomService(db)
	require.NoError(t, err)

	alice := seedUser(t, db, "alice")
	bob := seedUser(t, db, "bob")
	room := seedRoom(t, db, rooms, alice, "General")

	ctx := context.Background()
	_, err = rooms.AddMember(ctx, room.ID, bob.ID, models.RoleMember)
	require.NoError(t, err)
	require.NoError(t, db.Create(&models.Message{RoomID: room.ID, UserID: bob.ID, Content: "hi"}).Error)

	// Non-creator cannot delete.
	err = rooms.Delete(ctx, room.Slug, bob.ID)
	require.ErrorIs(t, err, apperrors.ErrForbidden)

	require.NoError(t, rooms.Delete(ctx, room.Slug, alice.ID))

	_, err = rooms.GetBySlug(ctx, room.Slug)
	require.ErrorIs(t, err, ErrRoomNotFound)

	var members, messages int64
	require.NoError(t, db.Model(&models.RoomMember{}).Where("room_id = ?", room.ID).Count(&members).Error)
	require.NoError(t, db.Model(&models.Message{}).Where("room_id = ?", room.ID).Count(&messages).Error)
	require.Zero(t, members)
	require.Zero(t, messages)
}

func TestRoomListingsAnnotateRoleAndPendingRequest(t *testing.T) {
	db := openTestDB(t)
	rooms, err := NewRoomService(db)
	require.NoError(t, err)

	alice := seedUser(t, db, "alice")
	bob := seedUser(t, db, "bob")
	public := seedRoom(t, db, rooms, alice, "Public Lounge")

	_, err = rooms.Create(context.Background(), CreateRoomInput{
		Name:      "Secret Den",
		IsPrivate: true,
		CreatorID: alice.ID,
	})
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, db.Create(&models.AccessRequest{
		RoomID: public.ID,
		UserID: bob.ID,
		Status: models.RequestPending,
	}).Error)

	listed, err := rooms.ListPublic(ctx, bob.ID)
	require.NoError(t, err)
	require.Len(t, listed, 1)
	require.Equal(t, public.ID, listed[0].Room.ID)
	require.Equal(t, RoleNone, listed[0].Role)
	require.True(t, listed[0].PendingRequest)

	mine, err := rooms.ListForUser(ctx, alice.ID)
	require.NoError(t, err)
	require.Len(t, mine, 2)
	for _, summary := range mine {
		require.Equal(t, models.RoleCreator, summary.Role)
	}
}

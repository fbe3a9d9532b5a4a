package services

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/revaristo12/chatliver1404/internal/database/testutil"
	"github.com/revaristo12/chatliver1404/internal/models"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	return testutil.MustOpenTestDB(t)
}

func seedUser(t *testing.T, db *gorm.DB, username string) *models.User {
	t.Helper()

	user := &models.User{
		Username: username,
		Email:    fmt.Sprintf("%s@example.com", username),
		Password: "hashed",
		IsActive: true,
	}
	require.NoError(t, db.Create(user).Error)
	return user
}

func seedRoom(t *testing.T, db *gorm.DB, rooms *RoomService, creator *models.User, name string) *models.Room {
	t.Helper()

	room, err := rooms.Create(context.Background(), CreateRoomInput{
		Name:      name,
		CreatorID: creator.ID,
	})
	require.NoError(t, err)
	return room
}

package maintenance

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/revaristo12/chatliver1404/internal/database/testutil"
	"github.com/revaristo12/chatliver1404/internal/models"
)

func TestDeactivateExpiredInvites(t *testing.T) {
	db := testutil.MustOpenTestDB(t)
	now := time.Now()

	user := &models.User{Username: "alice", Email: "alice@example.com", Password: "x", IsActive: true}
	require.NoError(t, db.Create(user).Error)
	room := &models.Room{Name: "General", Slug: "general", CreatorID: user.ID}
	require.NoError(t, db.Create(room).Error)

	expired := &models.RoomInvite{
		RoomID:    room.ID,
		Code:      "expiredcode1",
		CreatedBy: user.ID,
		ExpiresAt: now.Add(-time.Hour),
		IsActive:  true,
	}
	live := &models.RoomInvite{
		RoomID:    room.ID,
		Code:      "livecode0001",
		CreatedBy: user.ID,
		ExpiresAt: now.Add(time.Hour),
		IsActive:  true,
	}
	require.NoError(t, db.Create(expired).Error)
	require.NoError(t, db.Create(live).Error)

	changed, err := DeactivateExpiredInvites(context.Background(), db, now)
	require.NoError(t, err)
	require.EqualValues(t, 1, changed)

	var reloaded models.RoomInvite
	require.NoError(t, db.First(&reloaded, "id = ?", expired.ID).Error)
	require.False(t, reloaded.IsActive)

	reloaded = models.RoomInvite{}
	require.NoError(t, db.First(&reloaded, "id = ?", live.ID).Error)
	require.True(t, reloaded.IsActive)
}

func TestPruneProcessedRequests(t *testing.T) {
	db := testutil.MustOpenTestDB(t)
	now := time.Now()

	user := &models.User{Username: "bob", Email: "bob@example.com", Password: "x", IsActive: true}
	require.NoError(t, db.Create(user).Error)
	room := &models.Room{Name: "General", Slug: "general", CreatorID: user.ID}
	require.NoError(t, db.Create(room).Error)

	old := now.Add(-40 * 24 * time.Hour)
	recent := now.Add(-time.Hour)

	stale := &models.AccessRequest{RoomID: room.ID, UserID: user.ID, Status: models.RequestRejected, ProcessedAt: &old}
	fresh := &models.AccessRequest{RoomID: room.ID, UserID: user.ID, Status: models.RequestApproved, ProcessedAt: &recent}
	pending := &models.AccessRequest{RoomID: room.ID, UserID: user.ID, Status: models.RequestPending}
	require.NoError(t, db.Create(stale).Error)
	require.NoError(t, db.Create(fresh).Error)
	require.NoError(t, db.Create(pending).Error)

	cutoff := now.Add(-30 * 24 * time.Hour)
	removed, err := PruneProcessedRequests(context.Background(), db, cutoff)
	require.NoError(t, err)
	require.EqualValues(t, 1, removed)

	var remaining []models.AccessRequest
	require.NoError(t, db.Find(&remaining).Error)
	require.Len(t, remaining, 2)
	for _, r := range remaining {
		require.NotEqual(t, stale.ID, r.ID)
	}
}

func TestCleanerRunOnce(t *testing.T) {
	db := testutil.MustOpenTestDB(t)
	now := time.Now()

	user := &models.User{Username: "carol", Email: "carol@example.com", Password: "x", IsActive: true}
	require.NoError(t, db.Create(user).Error)
	room := &models.Room{Name: "General", Slug: "general", CreatorID: user.ID}
	require.NoError(t, db.Create(room).Error)
	require.NoError(t, db.Create(&models.RoomInvite{
		RoomID:    room.ID,
		Code:      "staleinvite1",
		CreatedBy: user.ID,
		ExpiresAt: now.Add(-time.Minute),
		IsActive:  true,
	}).Error)

	cleaner := NewCleaner(db, WithNow(func() time.Time { return now }))
	require.NoError(t, cleaner.RunOnce(context.Background()))

	var active int64
	require.NoError(t, db.Model(&models.RoomInvite{}).Where("is_active = ?", true).Count(&active).Error)
	require.Zero(t, active)
}

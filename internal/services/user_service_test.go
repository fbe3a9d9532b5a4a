package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	apperrors "github.com/revaristo12/chatliver1404/pkg/errors"
)

func TestUserRegisterAndAuthenticate(t *testing.T) {
	db := openTestDB(t)
	users, err := NewUserService(db)
	require.NoError(t, err)

	ctx := context.Background()
	user, err := users.Register(ctx, RegisterInput{
		Username: "alice",
		Email:    "Alice@Example.com",
		Password: "correct horse battery",
	})
	require.NoError(t, err)
	require.Equal(t, "alice@example.com", user.Email)
	require.NotEqual(t, "correct horse battery", user.Password)
	require.True(t, user.IsActive)

	authed, err := users.Authenticate(ctx, "alice", "correct horse battery")
	require.NoError(t, err)
	require.Equal(t, user.ID, authed.ID)
	require.NotNil(t, authed.LastSeenAt)

	_, err = users.Authenticate(ctx, "alice", "wrong")
	require.ErrorIs(t, err, apperrors.ErrInvalidCredentials)
	_, err = users.Authenticate(ctx, "nobody", "whatever")
	require.ErrorIs(t, err, apperrors.ErrInvalidCredentials)
}

func TestUserRegisterRejectsDuplicates(t *testing.T) {
	db := openTestDB(t)
	users, err := NewUserService(db)
	require.NoError(t, err)

	ctx := context.Background()
	_, err = users.Register(ctx, RegisterInput{Username: "alice", Email: "alice@example.com", Password: "password-one"})
	require.NoError(t, err)

	_, err = users.Register(ctx, RegisterInput{Username: "alice", Email: "other@example.com", Password: "password-two"})
	require.ErrorIs(t, err, ErrUsernameTaken)

	_, err = users.Register(ctx, RegisterInput{Username: "alice2", Email: "alice@example.com", Password: "password-two"})
	require.ErrorIs(t, err, ErrEmailTaken)
}

func TestUserAuthenticateRejectsInactive(t *testing.T) {
	db := openTestDB(t)
	users, err := NewUserService(db)
	require.NoError(t, err)

	ctx := context.Background()
	user, err := users.Register(ctx, RegisterInput{Username: "bob", Email: "bob@example.com", Password: "some-password"})
	require.NoError(t, err)

	require.NoError(t, db.Model(user).Update("is_active", false).Error)

	_, err = users.Authenticate(ctx, "bob", "some-password")
	require.ErrorIs(t, err, apperrors.ErrInvalidCredentials)
}

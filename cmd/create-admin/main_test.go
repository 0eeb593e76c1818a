package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PaulBabatuyi/support-chat/internal/auth"
	"github.com/PaulBabatuyi/support-chat/internal/data"
	"github.com/PaulBabatuyi/support-chat/internal/data/memory"
)

func TestEnsureAdminCreatesOnce(t *testing.T) {
	ctx := context.Background()
	users := memory.NewUsersStore()

	first, created, err := ensureAdmin(ctx, users, " Admin@Test.com ", "admin123", false)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "admin@test.com", first.Email)
	assert.Equal(t, data.RoleAdmin, first.Role)
	assert.True(t, first.IsVerified)
	assert.NotEqual(t, "admin123", first.Password)
	assert.NoError(t, auth.CheckPassword(first.Password, "admin123"))

	second, created, err := ensureAdmin(ctx, users, "admin@test.com", "", false)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)

	ids, err := users.ListAdminIDs(ctx)
	require.NoError(t, err)
	assert.Len(t, ids, 1)
}

func TestEnsureAdminVerify(t *testing.T) {
	ctx := context.Background()
	users := memory.NewUsersStore()
	_, _, err := ensureAdmin(ctx, users, "admin@test.com", "admin123", false)
	require.NoError(t, err)

	_, _, err = ensureAdmin(ctx, users, "admin@test.com", "admin123", true)
	assert.NoError(t, err)

	_, _, err = ensureAdmin(ctx, users, "admin@test.com", "wrong", true)
	assert.Error(t, err)
}

func TestEnsureAdminRefusesNonAdmin(t *testing.T) {
	ctx := context.Background()
	users := memory.NewUsersStore()
	_, err := users.CreateUser(ctx, &data.User{Email: "client@example.com", Role: data.RoleIndividual})
	require.NoError(t, err)

	_, _, err = ensureAdmin(ctx, users, "client@example.com", "pw", false)
	assert.ErrorIs(t, err, errNotAdmin)
}

func TestEnsureAdminRequiresInput(t *testing.T) {
	ctx := context.Background()
	users := memory.NewUsersStore()

	_, _, err := ensureAdmin(ctx, users, "", "pw", false)
	assert.Error(t, err)

	_, _, err = ensureAdmin(ctx, users, "new@test.com", "", false)
	assert.Error(t, err)
}

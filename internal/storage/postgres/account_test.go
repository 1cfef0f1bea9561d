package postgres_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/pcollard/wordhall/internal/storage/postgres"
	"github.com/pcollard/wordhall/internal/testutil"
)

func uniqueName(prefix string) string {
	return fmt.Sprintf("%s_%d", prefix, time.Now().UnixNano())
}

func TestHashPassword(t *testing.T) {
	hash, err := postgres.HashPassword("secret123")
	assert.NoError(t, err)
	assert.NotEmpty(t, hash)
	assert.NotEqual(t, "secret123", hash)
}

func TestCheckPassword_Correct(t *testing.T) {
	hash, err := postgres.HashPassword("mypassword")
	assert.NoError(t, err)
	assert.True(t, postgres.CheckPassword("mypassword", hash))
}

func TestCheckPassword_Wrong(t *testing.T) {
	hash, err := postgres.HashPassword("mypassword")
	assert.NoError(t, err)
	assert.False(t, postgres.CheckPassword("wrongpassword", hash))
}

// Property: HashPassword always produces a hash that CheckPassword verifies.
func TestPropertyHashAndCheck(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		// bcrypt has a max input length of 72 bytes
		password := rapid.StringMatching(`[a-zA-Z0-9!@#$%^&*]{1,64}`).Draw(t, "password")
		hash, err := postgres.HashPassword(password)
		if err != nil {
			t.Fatalf("HashPassword failed: %v", err)
		}
		if !postgres.CheckPassword(password, hash) {
			t.Fatalf("CheckPassword failed for password %q", password)
		}
	})
}

func TestAccountRepository_Create(t *testing.T) {
	repo := postgres.NewAccountRepository(testutil.NewPool(t))
	ctx := context.Background()

	name := uniqueName("alice")
	acct, err := repo.Create(ctx, name, "Alice", "password123")
	require.NoError(t, err)

	assert.Greater(t, acct.ID, int64(0))
	assert.Equal(t, name, acct.Username)
	assert.Equal(t, "Alice", acct.DisplayName)
	assert.NotEqual(t, "password123", acct.PasswordHash)
	assert.False(t, acct.CreatedAt.IsZero())
}

func TestAccountRepository_CreateDuplicate(t *testing.T) {
	repo := postgres.NewAccountRepository(testutil.NewPool(t))
	ctx := context.Background()

	name := uniqueName("bob")
	_, err := repo.Create(ctx, name, "Bob", "password123")
	require.NoError(t, err)

	_, err = repo.Create(ctx, name, "Bobby", "password456")
	assert.ErrorIs(t, err, postgres.ErrAccountExists)
}

func TestAccountRepository_Authenticate(t *testing.T) {
	repo := postgres.NewAccountRepository(testutil.NewPool(t))
	ctx := context.Background()

	name := uniqueName("carol")
	created, err := repo.Create(ctx, name, "Carol", "password123")
	require.NoError(t, err)

	acct, err := repo.Authenticate(ctx, name, "password123")
	require.NoError(t, err)
	assert.Equal(t, created.ID, acct.ID)

	_, err = repo.Authenticate(ctx, name, "wrongpass")
	assert.ErrorIs(t, err, postgres.ErrInvalidCredentials)

	_, err = repo.Authenticate(ctx, uniqueName("nobody"), "password123")
	assert.ErrorIs(t, err, postgres.ErrAccountNotFound)
}

func TestAccountRepository_GetByUsername(t *testing.T) {
	repo := postgres.NewAccountRepository(testutil.NewPool(t))
	ctx := context.Background()

	name := uniqueName("dave")
	created, err := repo.Create(ctx, name, "Dave", "password123")
	require.NoError(t, err)

	acct, err := repo.GetByUsername(ctx, name)
	require.NoError(t, err)
	assert.Equal(t, created.ID, acct.ID)
	assert.Equal(t, "Dave", acct.DisplayName)

	_, err = repo.GetByUsername(ctx, uniqueName("nobody"))
	assert.ErrorIs(t, err, postgres.ErrAccountNotFound)
}

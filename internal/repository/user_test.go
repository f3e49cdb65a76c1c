package repository

import (
	"context"
	"testing"
	"time"

	"inkwell/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUserRepository_GetByUsername(t *testing.T) {
	db := setupTestDB(t)
	repo := NewUserRepository(db)
	ctx := context.Background()
	createTestUser(t, db, "alice")

	user, err := repo.GetByUsername(ctx, "alice")
	require.NoError(t, err)
	require.NotNil(t, user)
	assert.Equal(t, "alice", user.Username)

	// Unknown username is nil, not an error
	missing, err := repo.GetByUsername(ctx, "nobody")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestUserRepository_GetByEmail(t *testing.T) {
	db := setupTestDB(t)
	repo := NewUserRepository(db)
	ctx := context.Background()
	createTestUser(t, db, "bob")

	user, err := repo.GetByEmail(ctx, "bob@example.com")
	require.NoError(t, err)
	require.NotNil(t, user)

	missing, err := repo.GetByEmail(ctx, "nope@example.com")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestUserRepository_CreateDuplicate(t *testing.T) {
	db := setupTestDB(t)
	repo := NewUserRepository(db)
	ctx := context.Background()
	createTestUser(t, db, "carol")

	err := repo.Create(ctx, &models.User{
		Username: "carol",
		Email:    "carol@example.com",
		Password: "hashed",
	})
	require.Error(t, err)
	var appErr *models.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "VALIDATION_ERROR", appErr.Code)
}

func TestUserRepository_DeleteCascadesPosts(t *testing.T) {
	db := setupTestDB(t)
	userRepo := NewUserRepository(db)
	postRepo := NewPostRepository(db)
	ctx := context.Background()

	alice := createTestUser(t, db, "alice")
	bob := createTestUser(t, db, "bob")
	createTestPost(t, db, alice, "A1", "x", time.Now().UTC())
	createTestPost(t, db, alice, "A2", "x", time.Now().UTC())
	kept := createTestPost(t, db, bob, "B1", "x", time.Now().UTC())

	require.NoError(t, userRepo.Delete(ctx, alice.ID))

	count, err := postRepo.CountByAuthor(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)

	// Other authors' posts survive
	got, err := postRepo.GetByID(ctx, kept.ID)
	require.NoError(t, err)
	assert.Equal(t, "B1", got.Title)

	missing, err := userRepo.GetByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

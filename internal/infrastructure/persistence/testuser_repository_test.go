package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/ecdemo/backend/internal/domain/shared"
	"github.com/ecdemo/backend/internal/domain/testuser"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// setupTestUserDB creates an in-memory SQLite database for testing
func setupTestUserDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	err = db.Exec(`
		CREATE TABLE users (
			id TEXT PRIMARY KEY,
			username TEXT NOT NULL UNIQUE,
			email TEXT NOT NULL,
			password_hash TEXT NOT NULL,
			is_test_user INTEGER NOT NULL DEFAULT 0,
			test_batch_id TEXT,
			created_by_bulk INTEGER NOT NULL DEFAULT 0,
			custom_attributes TEXT,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)
	`).Error
	require.NoError(t, err)

	return db
}

func makeBatchUser(t *testing.T, i byte, batchID uuid.UUID) *testuser.User {
	t.Helper()
	name := "testuser_" + batchID.String()[:8] + "_" + string(rune('a'+i))
	user := &testuser.User{
		BaseEntity:    shared.NewBaseEntity(),
		Username:      name,
		Email:         name + "@example.com",
		PasswordHash:  "$2a$10$hash",
		IsTestUser:    true,
		CreatedByBulk: true,
		TestBatchID:   &batchID,
		CustomAttributes: map[string]any{
			"test_type": "load",
		},
	}
	return user
}

func TestGormTestUserRepository_CreateAndFind(t *testing.T) {
	repo := NewGormTestUserRepository(setupTestUserDB(t))
	ctx := context.Background()
	batchID := uuid.New()

	user := makeBatchUser(t, 0, batchID)
	require.NoError(t, repo.Create(ctx, user))

	found, err := repo.FindByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, user.Username, found.Username)
	assert.True(t, found.IsTestUser)
	assert.True(t, found.CreatedByBulk)
	require.NotNil(t, found.TestBatchID)
	assert.Equal(t, batchID, *found.TestBatchID)
	assert.Equal(t, "load", found.CustomAttributes["test_type"])

	byName, err := repo.FindByUsername(ctx, user.Username)
	require.NoError(t, err)
	assert.Equal(t, user.ID, byName.ID)

	_, err = repo.FindByID(ctx, uuid.New())
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestGormTestUserRepository_DuplicateUsername(t *testing.T) {
	repo := NewGormTestUserRepository(setupTestUserDB(t))
	ctx := context.Background()
	batchID := uuid.New()

	first := makeBatchUser(t, 0, batchID)
	require.NoError(t, repo.Create(ctx, first))

	dup := makeBatchUser(t, 1, batchID)
	dup.Username = first.Username

	err := repo.Create(ctx, dup)
	assert.ErrorIs(t, err, shared.ErrAlreadyExists)
}

func TestGormTestUserRepository_CreateBatchAllOrNothing(t *testing.T) {
	repo := NewGormTestUserRepository(setupTestUserDB(t))
	ctx := context.Background()
	batchID := uuid.New()

	existing := makeBatchUser(t, 0, batchID)
	require.NoError(t, repo.Create(ctx, existing))

	// One row in the batch collides; no row of the batch may survive.
	fresh := makeBatchUser(t, 1, batchID)
	collider := makeBatchUser(t, 2, batchID)
	collider.Username = existing.Username

	err := repo.CreateBatch(ctx, []*testuser.User{fresh, collider})
	assert.ErrorIs(t, err, shared.ErrAlreadyExists)

	count, err := repo.Count(ctx, testuser.Filter{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestGormTestUserRepository_FilterAndCount(t *testing.T) {
	repo := NewGormTestUserRepository(setupTestUserDB(t))
	ctx := context.Background()

	batchA := uuid.New()
	batchB := uuid.New()
	require.NoError(t, repo.CreateBatch(ctx, []*testuser.User{
		makeBatchUser(t, 0, batchA),
		makeBatchUser(t, 1, batchA),
		makeBatchUser(t, 2, batchB),
	}))

	prod := &testuser.User{
		BaseEntity:   shared.NewBaseEntity(),
		Username:     "alice",
		Email:        "alice@company.com",
		PasswordHash: "$2a$10$hash",
	}
	require.NoError(t, repo.Create(ctx, prod))

	testOnly, err := repo.Count(ctx, testuser.Filter{TestUsersOnly: true})
	require.NoError(t, err)
	assert.Equal(t, int64(3), testOnly)

	members, err := repo.FindByBatchID(ctx, batchA)
	require.NoError(t, err)
	assert.Len(t, members, 2)

	counts, err := repo.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(4), counts.TotalUsers)
	assert.Equal(t, int64(3), counts.TestUsers)
	assert.Equal(t, int64(1), counts.ProductionUsers)
	assert.Equal(t, int64(3), counts.BulkCreated)
}

func TestGormTestUserRepository_BatchSummaries(t *testing.T) {
	repo := NewGormTestUserRepository(setupTestUserDB(t))
	ctx := context.Background()

	batchID := uuid.New()
	old := makeBatchUser(t, 0, batchID)
	old.CreatedAt = time.Now().AddDate(0, 0, -9)
	newer := makeBatchUser(t, 1, batchID)

	require.NoError(t, repo.Create(ctx, old))
	require.NoError(t, repo.Create(ctx, newer))

	summaries, err := repo.BatchSummaries(ctx)
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	assert.Equal(t, batchID, summaries[0].BatchID)
	assert.Equal(t, int64(2), summaries[0].UserCount)
	assert.True(t, summaries[0].OldestAt.Before(summaries[0].NewestAt))
	assert.Equal(t, 0, summaries[0].AgeDays)
}

func TestGormTestUserRepository_DeleteBatchMembers(t *testing.T) {
	repo := NewGormTestUserRepository(setupTestUserDB(t))
	ctx := context.Background()

	batchID := uuid.New()
	users := []*testuser.User{
		makeBatchUser(t, 0, batchID),
		makeBatchUser(t, 1, batchID),
		makeBatchUser(t, 2, batchID),
	}
	require.NoError(t, repo.CreateBatch(ctx, users))

	deleted, err := repo.DeleteBatchMembers(ctx, []uuid.UUID{users[0].ID, users[2].ID})
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)

	remaining, err := repo.FindByBatchID(ctx, batchID)
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, users[1].ID, remaining[0].ID)

	deleted, err = repo.DeleteBatchMembers(ctx, nil)
	require.NoError(t, err)
	assert.Zero(t, deleted)
}

func TestGormTestUserRepository_Update(t *testing.T) {
	repo := NewGormTestUserRepository(setupTestUserDB(t))
	ctx := context.Background()

	user := makeBatchUser(t, 0, uuid.New())
	require.NoError(t, repo.Create(ctx, user))

	user.IsTestUser = false
	require.NoError(t, repo.Update(ctx, user))

	found, err := repo.FindByID(ctx, user.ID)
	require.NoError(t, err)
	assert.False(t, found.IsTestUser)
	assert.True(t, found.CreatedByBulk)

	ghost := makeBatchUser(t, 1, uuid.New())
	assert.ErrorIs(t, repo.Update(ctx, ghost), shared.ErrNotFound)
}

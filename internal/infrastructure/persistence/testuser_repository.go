package persistence

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/ecdemo/backend/internal/domain/shared"
	"github.com/ecdemo/backend/internal/domain/testuser"
	"github.com/ecdemo/backend/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/gorm"
)

// GormTestUserRepository implements testuser.Repository using GORM
type GormTestUserRepository struct {
	db *gorm.DB
}

// NewGormTestUserRepository creates a new GormTestUserRepository
func NewGormTestUserRepository(db *gorm.DB) *GormTestUserRepository {
	return &GormTestUserRepository{db: db}
}

// Create inserts a single user
func (r *GormTestUserRepository) Create(ctx context.Context, user *testuser.User) error {
	var model models.UserModel
	model.FromDomain(user)
	if err := r.db.WithContext(ctx).Create(&model).Error; err != nil {
		return translateInsertError(err)
	}
	return nil
}

// CreateBatch inserts all users in one transaction. Either every row lands
// or none do; callers fall back to Create per row on failure.
func (r *GormTestUserRepository) CreateBatch(ctx context.Context, users []*testuser.User) error {
	if len(users) == 0 {
		return nil
	}
	rows := make([]models.UserModel, len(users))
	for i, u := range users {
		rows[i].FromDomain(u)
	}
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.CreateInBatches(rows, len(rows)).Error
	})
	if err != nil {
		return translateInsertError(err)
	}
	return nil
}

// Update saves all fields of an existing user
func (r *GormTestUserRepository) Update(ctx context.Context, user *testuser.User) error {
	var model models.UserModel
	model.FromDomain(user)
	result := r.db.WithContext(ctx).Model(&models.UserModel{}).
		Where("id = ?", model.ID).
		Select("*").Omit("id", "created_at").
		Updates(&model)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// Delete removes a user by ID
func (r *GormTestUserRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result := r.db.WithContext(ctx).Delete(&models.UserModel{}, "id = ?", id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// FindByID finds a user by its ID
func (r *GormTestUserRepository) FindByID(ctx context.Context, id uuid.UUID) (*testuser.User, error) {
	var model models.UserModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindByUsername finds a user by exact username
func (r *GormTestUserRepository) FindByUsername(ctx context.Context, username string) (*testuser.User, error) {
	var model models.UserModel
	if err := r.db.WithContext(ctx).First(&model, "username = ?", username).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindAll returns users matching the filter, ordered by username
func (r *GormTestUserRepository) FindAll(ctx context.Context, filter testuser.Filter) ([]*testuser.User, error) {
	var rows []models.UserModel
	if err := r.applyFilter(r.db.WithContext(ctx), filter).
		Order("username ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	users := make([]*testuser.User, len(rows))
	for i := range rows {
		users[i] = rows[i].ToDomain()
	}
	return users, nil
}

// FindByBatchID returns every member of one creation batch
func (r *GormTestUserRepository) FindByBatchID(ctx context.Context, batchID uuid.UUID) ([]*testuser.User, error) {
	return r.FindAll(ctx, testuser.Filter{BatchID: &batchID})
}

// Count returns the number of users matching the filter
func (r *GormTestUserRepository) Count(ctx context.Context, filter testuser.Filter) (int64, error) {
	var count int64
	if err := r.applyFilter(r.db.WithContext(ctx).Model(&models.UserModel{}), filter).
		Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// Counts aggregates store-wide totals in one scan
func (r *GormTestUserRepository) Counts(ctx context.Context) (testuser.Counts, error) {
	var row struct {
		TotalUsers  int64
		TestUsers   int64
		BulkCreated int64
	}
	err := r.db.WithContext(ctx).Model(&models.UserModel{}).
		Select("COUNT(*) AS total_users, " +
			"COUNT(*) FILTER (WHERE is_test_user) AS test_users, " +
			"COUNT(*) FILTER (WHERE created_by_bulk) AS bulk_created").
		Scan(&row).Error
	if err != nil {
		// SQLite lacks FILTER on older versions; fall back to plain counts.
		return r.countsFallback(ctx)
	}
	return testuser.Counts{
		TotalUsers:      row.TotalUsers,
		TestUsers:       row.TestUsers,
		ProductionUsers: row.TotalUsers - row.TestUsers,
		BulkCreated:     row.BulkCreated,
	}, nil
}

func (r *GormTestUserRepository) countsFallback(ctx context.Context) (testuser.Counts, error) {
	var c testuser.Counts
	db := r.db.WithContext(ctx).Model(&models.UserModel{})
	if err := db.Count(&c.TotalUsers).Error; err != nil {
		return c, err
	}
	if err := db.Where("is_test_user = ?", true).Count(&c.TestUsers).Error; err != nil {
		return c, err
	}
	if err := r.db.WithContext(ctx).Model(&models.UserModel{}).
		Where("created_by_bulk = ?", true).Count(&c.BulkCreated).Error; err != nil {
		return c, err
	}
	c.ProductionUsers = c.TotalUsers - c.TestUsers
	return c, nil
}

// BatchSummaries groups batch-tagged users by batch with age information
func (r *GormTestUserRepository) BatchSummaries(ctx context.Context) ([]testuser.BatchSummary, error) {
	var rows []struct {
		TestBatchID uuid.UUID
		UserCount   int64
		OldestAt    time.Time
		NewestAt    time.Time
	}
	err := r.db.WithContext(ctx).Model(&models.UserModel{}).
		Select("test_batch_id, COUNT(*) AS user_count, MIN(created_at) AS oldest_at, MAX(created_at) AS newest_at").
		Where("test_batch_id IS NOT NULL").
		Group("test_batch_id").
		Order("newest_at DESC").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	now := time.Now()
	summaries := make([]testuser.BatchSummary, len(rows))
	for i, row := range rows {
		summaries[i] = testuser.BatchSummary{
			BatchID:   row.TestBatchID,
			UserCount: row.UserCount,
			OldestAt:  row.OldestAt,
			NewestAt:  row.NewestAt,
			AgeDays:   int(now.Sub(row.NewestAt).Hours() / 24),
		}
	}
	return summaries, nil
}

// DeleteBatchMembers removes the given users inside one transaction
func (r *GormTestUserRepository) DeleteBatchMembers(ctx context.Context, ids []uuid.UUID) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	var deleted int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Delete(&models.UserModel{}, "id IN ?", ids)
		if result.Error != nil {
			return result.Error
		}
		deleted = result.RowsAffected
		return nil
	})
	if err != nil {
		return 0, err
	}
	return deleted, nil
}

func (r *GormTestUserRepository) applyFilter(db *gorm.DB, filter testuser.Filter) *gorm.DB {
	if filter.TestUsersOnly {
		db = db.Where("is_test_user = ?", true)
	}
	if filter.BulkOnly {
		db = db.Where("created_by_bulk = ?", true)
	}
	if filter.BatchID != nil {
		db = db.Where("test_batch_id = ?", *filter.BatchID)
	}
	if len(filter.IDs) > 0 {
		db = db.Where("id IN ?", filter.IDs)
	}
	return db
}

// translateInsertError maps driver-level uniqueness violations to the domain
// error the fallback logic keys on.
func translateInsertError(err error) error {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return shared.ErrAlreadyExists
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return shared.ErrAlreadyExists
	}
	if strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return shared.ErrAlreadyExists
	}
	return err
}

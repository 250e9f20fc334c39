package testuser

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Filter narrows user queries. The zero value matches every user; the
// default for sync/export callers is TestUsersOnly.
type Filter struct {
	TestUsersOnly bool
	BulkOnly      bool
	BatchID       *uuid.UUID
	IDs           []uuid.UUID
}

// CanonicalKey returns a stable string identifying the filter, used to key
// the differential-sync hash registry.
func (f Filter) CanonicalKey() string {
	key := "all"
	if f.TestUsersOnly {
		key = "test"
	}
	if f.BulkOnly {
		key += "|bulk"
	}
	if f.BatchID != nil {
		key += "|batch=" + f.BatchID.String()
	}
	return key
}

// BatchSummary describes one creation batch for reporting and cleanup
// candidate scans.
type BatchSummary struct {
	BatchID   uuid.UUID `json:"batch_id"`
	UserCount int64     `json:"user_count"`
	OldestAt  time.Time `json:"created_at"`
	NewestAt  time.Time `json:"newest_at"`
	AgeDays   int       `json:"age_days"`
}

// Counts aggregates store-wide totals for lifecycle reporting.
type Counts struct {
	TotalUsers      int64
	TestUsers       int64
	ProductionUsers int64
	BulkCreated     int64
}

// Repository defines persistence for user records. CreateBatch is the bulk
// fast path: all rows in one insert, all-or-nothing; callers fall back to
// row-by-row Create when it fails.
type Repository interface {
	Create(ctx context.Context, user *User) error
	CreateBatch(ctx context.Context, users []*User) error
	Update(ctx context.Context, user *User) error
	Delete(ctx context.Context, id uuid.UUID) error

	FindByID(ctx context.Context, id uuid.UUID) (*User, error)
	FindByUsername(ctx context.Context, username string) (*User, error)
	FindAll(ctx context.Context, filter Filter) ([]*User, error)
	FindByBatchID(ctx context.Context, batchID uuid.UUID) ([]*User, error)

	Count(ctx context.Context, filter Filter) (int64, error)
	Counts(ctx context.Context) (Counts, error)
	BatchSummaries(ctx context.Context) ([]BatchSummary, error)

	// DeleteBatchMembers deletes the given users inside one transaction so a
	// mid-batch failure leaves no partial deletions visible.
	DeleteBatchMembers(ctx context.Context, ids []uuid.UUID) (int64, error)
}

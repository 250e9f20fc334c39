package handler

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ecdemo/backend/internal/domain/shared"
	"github.com/ecdemo/backend/internal/domain/testuser"
	"github.com/google/uuid"
)

// memRepo is an in-memory testuser.Repository for handler tests.
type memRepo struct {
	mu    sync.Mutex
	users map[uuid.UUID]*testuser.User
}

func newMemRepo() *memRepo {
	return &memRepo{users: make(map[uuid.UUID]*testuser.User)}
}

func (r *memRepo) Create(ctx context.Context, user *testuser.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.users {
		if existing.Username == user.Username {
			return shared.ErrAlreadyExists
		}
	}
	r.users[user.ID] = user
	return nil
}

func (r *memRepo) CreateBatch(ctx context.Context, users []*testuser.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	seen := make(map[string]bool, len(r.users))
	for _, existing := range r.users {
		seen[existing.Username] = true
	}
	for _, u := range users {
		if seen[u.Username] {
			return shared.ErrAlreadyExists
		}
	}
	for _, u := range users {
		r.users[u.ID] = u
	}
	return nil
}

func (r *memRepo) Update(ctx context.Context, user *testuser.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[user.ID]; !ok {
		return shared.ErrNotFound
	}
	r.users[user.ID] = user
	return nil
}

func (r *memRepo) Delete(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[id]; !ok {
		return shared.ErrNotFound
	}
	delete(r.users, id)
	return nil
}

func (r *memRepo) FindByID(ctx context.Context, id uuid.UUID) (*testuser.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return u, nil
}

func (r *memRepo) FindByUsername(ctx context.Context, username string) (*testuser.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Username == username {
			return u, nil
		}
	}
	return nil, shared.ErrNotFound
}

func (r *memRepo) FindAll(ctx context.Context, filter testuser.Filter) ([]*testuser.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*testuser.User
	for _, u := range r.users {
		if memMatches(u, filter) {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out, nil
}

func (r *memRepo) FindByBatchID(ctx context.Context, batchID uuid.UUID) ([]*testuser.User, error) {
	return r.FindAll(ctx, testuser.Filter{BatchID: &batchID})
}

func (r *memRepo) Count(ctx context.Context, filter testuser.Filter) (int64, error) {
	users, _ := r.FindAll(ctx, filter)
	return int64(len(users)), nil
}

func (r *memRepo) Counts(ctx context.Context) (testuser.Counts, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var c testuser.Counts
	for _, u := range r.users {
		c.TotalUsers++
		if u.IsTestUser {
			c.TestUsers++
		} else {
			c.ProductionUsers++
		}
		if u.CreatedByBulk {
			c.BulkCreated++
		}
	}
	return c, nil
}

func (r *memRepo) BatchSummaries(ctx context.Context) ([]testuser.BatchSummary, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	byBatch := make(map[uuid.UUID]*testuser.BatchSummary)
	for _, u := range r.users {
		if u.TestBatchID == nil {
			continue
		}
		s, ok := byBatch[*u.TestBatchID]
		if !ok {
			s = &testuser.BatchSummary{BatchID: *u.TestBatchID, OldestAt: u.CreatedAt, NewestAt: u.CreatedAt}
			byBatch[*u.TestBatchID] = s
		}
		s.UserCount++
		if u.CreatedAt.Before(s.OldestAt) {
			s.OldestAt = u.CreatedAt
		}
		if u.CreatedAt.After(s.NewestAt) {
			s.NewestAt = u.CreatedAt
		}
	}
	var out []testuser.BatchSummary
	for _, s := range byBatch {
		s.AgeDays = int(time.Since(s.NewestAt).Hours() / 24)
		out = append(out, *s)
	}
	return out, nil
}

func (r *memRepo) DeleteBatchMembers(ctx context.Context, ids []uuid.UUID) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var deleted int64
	for _, id := range ids {
		if _, ok := r.users[id]; ok {
			delete(r.users, id)
			deleted++
		}
	}
	return deleted, nil
}

func memMatches(u *testuser.User, f testuser.Filter) bool {
	if f.TestUsersOnly && !u.IsTestUser {
		return false
	}
	if f.BulkOnly && !u.CreatedByBulk {
		return false
	}
	if f.BatchID != nil {
		if u.TestBatchID == nil || *u.TestBatchID != *f.BatchID {
			return false
		}
	}
	if len(f.IDs) > 0 {
		found := false
		for _, id := range f.IDs {
			if id == u.ID {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

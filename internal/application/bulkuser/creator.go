package bulkuser

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ecdemo/backend/internal/domain/testuser"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// CreatedUser is the caller-visible record of one persisted account.
type CreatedUser struct {
	ID       uuid.UUID `json:"id"`
	Username string    `json:"username"`
	Email    string    `json:"email"`
}

// BulkCreationResult summarizes one creation run. Successful plus failed
// always equals requested, so a caller can account for every identity.
type BulkCreationResult struct {
	BatchID       uuid.UUID     `json:"batch_id"`
	Requested     int           `json:"requested"`
	Successful    int           `json:"successful"`
	CreatedUsers  []CreatedUser `json:"created_users"`
	FailedUsers   []FailedUser  `json:"failed_users"`
	Duration      time.Duration `json:"-"`
	DurationMS    int64         `json:"duration_ms"`
	UsersPerSec   float64       `json:"users_per_second"`
	ChunksWritten int           `json:"chunks_written"`
}

// Creator orchestrates bulk user creation: credential generation, chunking,
// and a bounded worker pool writing chunks concurrently.
type Creator struct {
	repo   testuser.Repository
	writer *BatchWriter
	logger *zap.Logger
}

// NewCreator wires a creator over the repository.
func NewCreator(repo testuser.Repository, logger *zap.Logger) *Creator {
	return &Creator{
		repo:   repo,
		writer: NewBatchWriter(repo, logger),
		logger: logger,
	}
}

type chunkJob struct {
	index int
	users []*testuser.User
}

// CreateBulkUsers creates count synthetic accounts under a fresh batch id.
// The run succeeds even when individual rows fail; only an invalid request
// or a fully unreachable store produces an error.
func (c *Creator) CreateBulkUsers(ctx context.Context, count int, cfg CreationConfig) (*BulkCreationResult, error) {
	if count < 1 {
		return nil, errInvalidCount(count)
	}
	limit := cfg.MaxUsersPerBatch
	if limit <= 0 || limit > MaxUsersPerBatch {
		limit = MaxUsersPerBatch
	}
	if count > limit {
		return nil, errCountOverLimit(count, limit)
	}
	if v := cfg.Validate(); !v.IsValid {
		return nil, errConfigInvalid(v.Errors)
	}

	batchID := uuid.New()
	start := time.Now()
	stamp := runStamp()

	c.logger.Info("starting bulk user creation",
		zap.String("batch_id", batchID.String()),
		zap.Int("count", count),
		zap.Int("chunk_size", cfg.BatchSize),
		zap.Int("workers", cfg.workers()))

	jobs := c.buildChunks(count, stamp, batchID, cfg)

	var mu sync.Mutex
	results := make([]ChunkResult, len(jobs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.workers())
	for _, job := range jobs {
		job := job
		g.Go(func() error {
			res, err := c.writeWithRetry(gctx, job.users)
			if err != nil {
				// Outage: account for the chunk's unwritten rows as failures
				// rather than aborting sibling chunks mid-flight.
				accounted := make(map[string]struct{}, len(res.Failed))
				for _, f := range res.Failed {
					accounted[f.Username] = struct{}{}
				}
				for _, u := range pendingRows(job.users, res.Created) {
					if _, ok := accounted[u.Username]; ok {
						continue
					}
					res.Failed = append(res.Failed, FailedUser{
						Username: u.Username,
						Email:    u.Email,
						Error:    err.Error(),
						Code:     "CONNECTIVITY",
					})
				}
			}
			mu.Lock()
			results[job.index] = res
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	result := c.collect(batchID, count, results, time.Since(start))
	if result.Successful == 0 && count > 0 {
		c.logger.Error("bulk creation produced no users",
			zap.String("batch_id", batchID.String()),
			zap.Int("requested", count))
	} else {
		c.logger.Info("bulk user creation finished",
			zap.String("batch_id", batchID.String()),
			zap.Int("successful", result.Successful),
			zap.Int("failed", len(result.FailedUsers)),
			zap.Duration("duration", result.Duration))
	}
	return result, nil
}

func (c *Creator) buildChunks(count int, stamp int64, batchID uuid.UUID, cfg CreationConfig) []chunkJob {
	var jobs []chunkJob
	for offset := 0; offset < count; offset += cfg.BatchSize {
		size := cfg.BatchSize
		if offset+size > count {
			size = count - offset
		}
		creds := GenerateCredentials(size, offset, stamp, cfg)
		users := make([]*testuser.User, 0, size)
		for _, cred := range creds {
			user, err := testuser.NewTestUser(cred.Username, cred.Email, cred.Password, batchID, cfg.CustomAttributes)
			if err != nil {
				// Generated identities always satisfy the user invariants;
				// reaching here means the pattern itself is broken.
				c.logger.Error("generated credential rejected",
					zap.String("username", cred.Username),
					zap.Error(err))
				continue
			}
			users = append(users, user)
		}
		jobs = append(jobs, chunkJob{index: len(jobs), users: users})
	}
	return jobs
}

// writeWithRetry gives a chunk one additional attempt after a connectivity
// failure before giving up on it.
func (c *Creator) writeWithRetry(ctx context.Context, users []*testuser.User) (ChunkResult, error) {
	res, err := c.writer.WriteChunk(ctx, users)
	if err == nil || ctx.Err() != nil {
		return res, err
	}

	// Re-attempt only the rows that did not make it in the first pass.
	pending := pendingRows(users, res.Created)
	if len(pending) == 0 {
		return res, nil
	}
	time.Sleep(250 * time.Millisecond)
	retry, retryErr := c.writer.WriteChunk(ctx, pending)
	res.Created = append(res.Created, retry.Created...)
	res.Failed = append(res.Failed, retry.Failed...)
	if retryErr != nil {
		res2 := ChunkResult{Created: res.Created, Failed: res.Failed}
		// Report only rows still unwritten to the caller's failure path.
		remaining := pendingRows(pending, retry.Created)
		return res2, chunkRemainderError(remaining, retryErr)
	}
	return res, nil
}

func pendingRows(all, created []*testuser.User) []*testuser.User {
	done := make(map[uuid.UUID]struct{}, len(created))
	for _, u := range created {
		done[u.ID] = struct{}{}
	}
	var pending []*testuser.User
	for _, u := range all {
		if _, ok := done[u.ID]; !ok {
			pending = append(pending, u)
		}
	}
	return pending
}

func (c *Creator) collect(batchID uuid.UUID, requested int, results []ChunkResult, elapsed time.Duration) *BulkCreationResult {
	out := &BulkCreationResult{
		BatchID:       batchID,
		Requested:     requested,
		Duration:      elapsed,
		DurationMS:    elapsed.Milliseconds(),
		ChunksWritten: len(results),
	}
	for _, res := range results {
		for _, u := range res.Created {
			out.CreatedUsers = append(out.CreatedUsers, CreatedUser{ID: u.ID, Username: u.Username, Email: u.Email})
		}
		out.FailedUsers = append(out.FailedUsers, res.Failed...)
	}
	sort.Slice(out.CreatedUsers, func(i, j int) bool {
		return out.CreatedUsers[i].Username < out.CreatedUsers[j].Username
	})
	out.Successful = len(out.CreatedUsers)
	if secs := elapsed.Seconds(); secs > 0 {
		out.UsersPerSec = float64(out.Successful) / secs
	}
	return out
}

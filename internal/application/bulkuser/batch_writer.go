package bulkuser

import (
	"context"
	"errors"

	"github.com/ecdemo/backend/internal/domain/shared"
	"github.com/ecdemo/backend/internal/domain/testuser"
	"go.uber.org/zap"
)

// FailedUser records one identity that could not be persisted.
type FailedUser struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Error    string `json:"error"`
	Code     string `json:"code,omitempty"`
}

// ChunkResult is the outcome of writing one chunk of users.
type ChunkResult struct {
	Created []*testuser.User
	Failed  []FailedUser
}

// BatchWriter persists chunks of users with a two-phase strategy: one bulk
// insert first, then a per-row fallback when the bulk insert is rejected.
// The fallback salvages every insertable row instead of losing the whole
// chunk to a single duplicate.
type BatchWriter struct {
	repo   testuser.Repository
	logger *zap.Logger
}

// NewBatchWriter creates a batch writer over the given repository.
func NewBatchWriter(repo testuser.Repository, logger *zap.Logger) *BatchWriter {
	return &BatchWriter{repo: repo, logger: logger}
}

// WriteChunk persists the given users. Returns an error only when the store
// itself is unreachable; per-row rejections are reported in the result.
func (w *BatchWriter) WriteChunk(ctx context.Context, users []*testuser.User) (ChunkResult, error) {
	if len(users) == 0 {
		return ChunkResult{}, nil
	}

	err := w.repo.CreateBatch(ctx, users)
	if err == nil {
		return ChunkResult{Created: users}, nil
	}
	if isConnectivity(err) {
		return ChunkResult{}, err
	}

	w.logger.Warn("bulk insert rejected, falling back to row-by-row",
		zap.Int("chunk_size", len(users)),
		zap.Error(err))
	return w.writeRows(ctx, users)
}

func (w *BatchWriter) writeRows(ctx context.Context, users []*testuser.User) (ChunkResult, error) {
	var result ChunkResult
	for _, user := range users {
		err := w.repo.Create(ctx, user)
		if err == nil {
			result.Created = append(result.Created, user)
			continue
		}
		if isConnectivity(err) {
			// Everything still pending in this chunk is lost to the outage.
			return result, err
		}

		failed := FailedUser{Username: user.Username, Email: user.Email, Error: err.Error()}
		var derr *shared.DomainError
		if errors.As(err, &derr) {
			failed.Code = derr.Code
		}
		result.Failed = append(result.Failed, failed)

		w.logger.Debug("row insert failed",
			zap.String("username", user.Username),
			zap.Error(err))
	}
	return result, nil
}

func isConnectivity(err error) bool {
	var derr *shared.DomainError
	if errors.As(err, &derr) {
		return derr.Code == shared.ErrConnectivity.Code
	}
	return false
}

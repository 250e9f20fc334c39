package bulkuser

import (
	"context"
	"fmt"
	"time"

	"github.com/ecdemo/backend/internal/domain/shared"
	"github.com/ecdemo/backend/internal/domain/testuser"
	"github.com/ecdemo/backend/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// PeerCleaner cascades a batch deletion to the load-tester peer so both
// stores drop the same accounts.
type PeerCleaner interface {
	CleanupBatch(ctx context.Context, batchID uuid.UUID) (int, error)
}

// IdentifiedUser is one classified record in an identification scan.
type IdentifiedUser struct {
	ID             uuid.UUID `json:"id"`
	Username       string    `json:"username"`
	Email          string    `json:"email"`
	Classification string    `json:"classification"`
	BatchID        string    `json:"batch_id,omitempty"`
}

// IdentificationReport groups a scan of the store by classification.
type IdentificationReport struct {
	TotalScanned    int              `json:"total_scanned"`
	TestCount       int              `json:"test_count"`
	ProductionCount int              `json:"production_count"`
	UnknownCount    int              `json:"unknown_count"`
	TestUsers       []IdentifiedUser `json:"test_users"`
	UnknownUsers    []IdentifiedUser `json:"unknown_users"`
}

// CleanupResult reports one protected batch deletion.
type CleanupResult struct {
	BatchID            uuid.UUID `json:"batch_id"`
	DeletedCount       int64     `json:"deleted_count"`
	ProtectedCount     int       `json:"protected_count"`
	SafetyChecksPassed bool      `json:"safety_checks_passed"`
	PeerDeletedCount   int       `json:"peer_deleted_count"`
	PeerError          string    `json:"peer_error,omitempty"`
}

// StatsReport aggregates store-wide counts for the stats endpoint.
type StatsReport struct {
	TotalTestUsers  int64                   `json:"total_test_users"`
	ProductionUsers int64                   `json:"production_users"`
	BulkCreated     int64                   `json:"bulk_created"`
	BatchCount      int                     `json:"batch_count"`
	OldBatchCount   int                     `json:"old_batch_count"`
	Batches         []testuser.BatchSummary `json:"batches"`
}

// LifecycleReport is the store-wide health summary.
type LifecycleReport struct {
	GeneratedAt     time.Time               `json:"generated_at"`
	TotalUsers      int64                   `json:"total_users"`
	TestUsers       int64                   `json:"test_users"`
	ProductionUsers int64                   `json:"production_users"`
	BulkCreated     int64                   `json:"bulk_created"`
	Batches         []testuser.BatchSummary `json:"batches"`
	Recommendations []string                `json:"recommendations"`
}

// Lifecycle owns identification, cleanup-candidate scans, and protected
// deletion of synthetic accounts. Every destructive path re-classifies each
// record at execution time; stored flags alone are never trusted for
// deletion.
type Lifecycle struct {
	repo       testuser.Repository
	classifier *testuser.Classifier
	peer       PeerCleaner
	logger     *zap.Logger

	staleAgeDays int
}

// NewLifecycle wires the lifecycle service. peer may be nil when no
// load-tester peer is configured.
func NewLifecycle(repo testuser.Repository, classifier *testuser.Classifier, peer PeerCleaner, logger *zap.Logger) *Lifecycle {
	return &Lifecycle{
		repo:         repo,
		classifier:   classifier,
		peer:         peer,
		logger:       logger,
		staleAgeDays: 7,
	}
}

// IdentifyUsers classifies every record in the store, or only the given ids
// when the caller narrows the scan.
func (l *Lifecycle) IdentifyUsers(ctx context.Context, ids []uuid.UUID) (*IdentificationReport, error) {
	users, err := l.repo.FindAll(ctx, testuser.Filter{IDs: ids})
	if err != nil {
		return nil, err
	}

	report := &IdentificationReport{TotalScanned: len(users)}
	for _, user := range users {
		class := l.classifier.Classify(user)
		entry := IdentifiedUser{
			ID:             user.ID,
			Username:       user.Username,
			Email:          user.Email,
			Classification: string(class),
			BatchID:        user.BatchIDString(),
		}
		switch class {
		case testuser.ClassTest:
			report.TestCount++
			report.TestUsers = append(report.TestUsers, entry)
		case testuser.ClassProduction:
			report.ProductionCount++
		default:
			report.UnknownCount++
			report.UnknownUsers = append(report.UnknownUsers, entry)
		}
	}
	return report, nil
}

// BatchDetail summarizes one creation batch.
func (l *Lifecycle) BatchDetail(ctx context.Context, batchID uuid.UUID) (*testuser.BatchSummary, error) {
	members, err := l.repo.FindByBatchID(ctx, batchID)
	if err != nil {
		return nil, err
	}
	if len(members) == 0 {
		return nil, shared.NewDomainError("NOT_FOUND", fmt.Sprintf("no users found for batch %s", batchID))
	}

	summary := &testuser.BatchSummary{
		BatchID:   batchID,
		UserCount: int64(len(members)),
		OldestAt:  members[0].CreatedAt,
		NewestAt:  members[0].CreatedAt,
	}
	for _, u := range members[1:] {
		if u.CreatedAt.Before(summary.OldestAt) {
			summary.OldestAt = u.CreatedAt
		}
		if u.CreatedAt.After(summary.NewestAt) {
			summary.NewestAt = u.CreatedAt
		}
	}
	summary.AgeDays = int(time.Since(summary.NewestAt).Hours() / 24)
	return summary, nil
}

// Stats aggregates the store-wide counters exposed by the stats endpoint.
func (l *Lifecycle) Stats(ctx context.Context) (*StatsReport, error) {
	counts, err := l.repo.Counts(ctx)
	if err != nil {
		return nil, err
	}
	batches, err := l.repo.BatchSummaries(ctx)
	if err != nil {
		return nil, err
	}

	stats := &StatsReport{
		TotalTestUsers:  counts.TestUsers,
		ProductionUsers: counts.ProductionUsers,
		BulkCreated:     counts.BulkCreated,
		BatchCount:      len(batches),
		Batches:         batches,
	}
	for _, b := range batches {
		if b.AgeDays >= l.staleAgeDays {
			stats.OldBatchCount++
		}
	}
	return stats, nil
}

// CleanupCandidates lists batches whose newest member is at least ageDays
// old. ageDays zero means every batch qualifies.
func (l *Lifecycle) CleanupCandidates(ctx context.Context, ageDays int) ([]testuser.BatchSummary, error) {
	if ageDays < 0 {
		return nil, shared.NewDomainError("INVALID_INPUT", "age_days must not be negative")
	}

	summaries, err := l.repo.BatchSummaries(ctx)
	if err != nil {
		return nil, err
	}

	cutoff := time.Now().AddDate(0, 0, -ageDays)
	var candidates []testuser.BatchSummary
	for _, s := range summaries {
		if !s.NewestAt.After(cutoff) {
			candidates = append(candidates, s)
		}
	}
	return candidates, nil
}

// Cleanup deletes one batch's test users in a single transaction. Records
// that no longer classify as test users are counted as protected and left
// untouched; their presence never blocks deletion of the rest.
func (l *Lifecycle) Cleanup(ctx context.Context, batchID uuid.UUID, cascadeToPeer bool) (*CleanupResult, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "lifecycle", "cleanup",
		telemetry.WithAttribute(telemetry.SpanAttrBatchID, batchID.String()))
	defer span.End()

	members, err := l.repo.FindByBatchID(ctx, batchID)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	if len(members) == 0 {
		return nil, shared.NewDomainError("NOT_FOUND", fmt.Sprintf("no users found for batch %s", batchID))
	}

	result := &CleanupResult{BatchID: batchID}
	var deletable []uuid.UUID
	for _, user := range members {
		if l.classifier.Classify(user).Deletable() {
			deletable = append(deletable, user.ID)
		} else {
			result.ProtectedCount++
			l.logger.Warn("cleanup skipping protected record",
				zap.String("batch_id", batchID.String()),
				zap.String("username", user.Username))
		}
	}
	result.SafetyChecksPassed = true

	if len(deletable) > 0 {
		deleted, err := l.repo.DeleteBatchMembers(ctx, deletable)
		if err != nil {
			telemetry.RecordError(span, err)
			return nil, err
		}
		result.DeletedCount = deleted
	}

	telemetry.SetAttributes(span,
		telemetry.SpanAttrDeletedCount, result.DeletedCount,
		telemetry.SpanAttrProtectedCount, result.ProtectedCount)
	l.logger.Info("batch cleanup finished",
		zap.String("batch_id", batchID.String()),
		zap.Int64("deleted", result.DeletedCount),
		zap.Int("protected", result.ProtectedCount))

	if cascadeToPeer && l.peer != nil {
		peerDeleted, err := l.peer.CleanupBatch(ctx, batchID)
		if err != nil {
			// Local deletion already committed; surface the peer failure
			// without undoing it.
			telemetry.AddEvent(span, "peer_cleanup_failed", "error", err.Error())
			result.PeerError = err.Error()
			l.logger.Error("peer cleanup failed",
				zap.String("batch_id", batchID.String()),
				zap.Error(err))
		} else {
			result.PeerDeletedCount = peerDeleted
		}
	}
	return result, nil
}

// Report builds the store-wide lifecycle summary with recommendations.
func (l *Lifecycle) Report(ctx context.Context) (*LifecycleReport, error) {
	counts, err := l.repo.Counts(ctx)
	if err != nil {
		return nil, err
	}
	batches, err := l.repo.BatchSummaries(ctx)
	if err != nil {
		return nil, err
	}

	report := &LifecycleReport{
		GeneratedAt:     time.Now(),
		TotalUsers:      counts.TotalUsers,
		TestUsers:       counts.TestUsers,
		ProductionUsers: counts.ProductionUsers,
		BulkCreated:     counts.BulkCreated,
		Batches:         batches,
	}

	var stale int
	for _, b := range batches {
		if b.AgeDays >= l.staleAgeDays {
			stale++
		}
	}
	if stale > 0 {
		report.Recommendations = append(report.Recommendations,
			fmt.Sprintf("%d batches are older than %d days and can be cleaned up", stale, l.staleAgeDays))
	}
	if counts.TotalUsers > 0 && counts.TestUsers*2 > counts.TotalUsers {
		report.Recommendations = append(report.Recommendations,
			"test users make up more than half of the store; schedule a cleanup")
	}
	if len(report.Recommendations) == 0 {
		report.Recommendations = append(report.Recommendations, "no action needed")
	}
	return report, nil
}

package usersync

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/ecdemo/backend/internal/domain/shared"
	"github.com/ecdemo/backend/internal/domain/testuser"
	"github.com/ecdemo/backend/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// Service implements differential export, import, and integrity validation
// between this store and a load-tester peer. Exports are change-detected by
// a content hash per filter; an unchanged store yields an empty export.
type Service struct {
	repo   testuser.Repository
	hashes HashStore
	logger *zap.Logger
}

// NewService wires the sync service.
func NewService(repo testuser.Repository, hashes HashStore, logger *zap.Logger) *Service {
	return &Service{repo: repo, hashes: hashes, logger: logger}
}

// ComputeHash builds the canonical content hash over a record set: the
// SHA-256 of the sorted "id:username:email:batch" tuples joined by "|".
// Order-insensitive, so two stores with the same accounts always agree.
func ComputeHash(records []UserRecord) string {
	tuples := make([]string, 0, len(records))
	for _, r := range records {
		batch := ""
		if r.TestBatchID != nil {
			batch = r.TestBatchID.String()
		}
		tuples = append(tuples, fmt.Sprintf("%s:%s:%s:%s", r.ID, r.Username, r.Email, batch))
	}
	sort.Strings(tuples)
	sum := sha256.Sum256([]byte(strings.Join(tuples, "|")))
	return hex.EncodeToString(sum[:])
}

// Export produces the current test-user dataset for the given filter. When
// the content hash matches the previous export for the same filter, the
// result carries Unchanged and no user records.
func (s *Service) Export(ctx context.Context, filter testuser.Filter) (*ExportData, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "usersync", "export",
		telemetry.WithAttribute(telemetry.SpanAttrFilter, filter.CanonicalKey()))
	defer span.End()

	users, err := s.repo.FindAll(ctx, filter)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	records := make([]UserRecord, 0, len(users))
	for _, u := range users {
		records = append(records, recordFromUser(u))
	}
	hash := ComputeHash(records)

	key := filter.CanonicalKey()
	previous, err := s.hashes.Get(ctx, key)
	if err != nil {
		// A broken hash store must not block the sync; fall back to a full
		// export.
		s.logger.Warn("hash store unavailable, exporting full dataset", zap.Error(err))
		previous = ""
	}

	export := &ExportData{
		SourceSystem:  SourceSystem,
		Filter:        key,
		SyncTimestamp: time.Now().UTC(),
		DataHash:      hash,
	}
	if previous == hash {
		export.Unchanged = true
		telemetry.SetAttributes(span, telemetry.SpanAttrUnchanged, true)
		s.logger.Info("export unchanged since last sync",
			zap.String("filter", key),
			zap.String("hash", hash))
		return export, nil
	}

	export.Users = records
	export.UserCount = len(records)
	telemetry.SetAttributes(span, telemetry.SpanAttrUserCount, len(records))

	if err := s.hashes.Set(ctx, key, hash); err != nil {
		s.logger.Warn("failed to persist export hash", zap.Error(err))
	}

	s.logger.Info("exported user dataset",
		zap.String("filter", key),
		zap.Int("users", len(records)),
		zap.String("hash", hash))
	return export, nil
}

// Import applies an export payload to this store. Records are added or
// updated, never deleted; a record that fails is reported and skipped so one
// bad row cannot poison the rest.
func (s *Service) Import(ctx context.Context, data *ExportData) (*ImportResult, error) {
	if data == nil {
		return nil, shared.NewDomainError("INVALID_INPUT", "import payload is empty")
	}

	ctx, span := telemetry.StartServiceSpan(ctx, "usersync", "import",
		telemetry.WithAttribute(telemetry.SpanAttrSourceSystem, data.SourceSystem),
		telemetry.WithAttribute(telemetry.SpanAttrUserCount, len(data.Users)))
	defer span.End()

	if data.Unchanged {
		telemetry.SetAttributes(span, telemetry.SpanAttrUnchanged, true)
		return &ImportResult{}, nil
	}
	if got := ComputeHash(data.Users); data.DataHash != "" && got != data.DataHash {
		err := shared.NewDomainError("VALIDATION_FAILED",
			fmt.Sprintf("payload hash mismatch: declared %s, computed %s", data.DataHash, got))
		telemetry.RecordError(span, err)
		return nil, err
	}

	result := &ImportResult{Received: len(data.Users)}
	for _, record := range data.Users {
		updated, err := s.applyRecord(ctx, record)
		if err != nil {
			result.Failed++
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %s", record.Username, err.Error()))
			continue
		}
		if updated {
			result.Updated++
		} else {
			result.Added++
		}
	}

	s.logger.Info("import applied",
		zap.Int("received", result.Received),
		zap.Int("added", result.Added),
		zap.Int("updated", result.Updated),
		zap.Int("failed", result.Failed))
	return result, nil
}

func (s *Service) applyRecord(ctx context.Context, record UserRecord) (updated bool, err error) {
	existing, err := s.repo.FindByUsername(ctx, record.Username)
	switch {
	case err == nil:
		existing.Email = record.Email
		existing.PasswordHash = record.PasswordHash
		existing.IsTestUser = record.IsTestUser
		existing.TestBatchID = record.TestBatchID
		existing.CreatedByBulk = record.CreatedByBulk
		existing.CustomAttributes = record.CustomAttributes
		existing.Touch()
		return true, s.repo.Update(ctx, existing)
	case isNotFound(err):
		user := &testuser.User{
			BaseEntity:       shared.NewBaseEntity(),
			Username:         record.Username,
			Email:            record.Email,
			PasswordHash:     record.PasswordHash,
			IsTestUser:       record.IsTestUser,
			TestBatchID:      record.TestBatchID,
			CreatedByBulk:    record.CreatedByBulk,
			CustomAttributes: record.CustomAttributes,
		}
		user.ID = record.ID
		user.CreatedAt = record.CreatedAt
		return false, s.repo.Create(ctx, user)
	default:
		return false, err
	}
}

// ValidateIntegrity compares a remote export against the local store without
// modifying anything.
func (s *Service) ValidateIntegrity(ctx context.Context, remote *ExportData, filter testuser.Filter) (*IntegrityReport, error) {
	if remote == nil {
		return nil, shared.NewDomainError("INVALID_INPUT", "remote payload is empty")
	}

	users, err := s.repo.FindAll(ctx, filter)
	if err != nil {
		return nil, err
	}
	local := make([]UserRecord, 0, len(users))
	localSet := make(map[string]struct{}, len(users))
	for _, u := range users {
		local = append(local, recordFromUser(u))
		localSet[u.Username] = struct{}{}
	}

	remoteHash := remote.DataHash
	if remoteHash == "" {
		remoteHash = ComputeHash(remote.Users)
	}

	report := &IntegrityReport{
		PayloadHashValid: remote.Unchanged || ComputeHash(remote.Users) == remoteHash,
		LocalHash:        ComputeHash(local),
		RemoteHash:       remoteHash,
		LocalCount:       len(local),
		RemoteCount:      len(remote.Users),
	}
	report.InSync = report.LocalHash == report.RemoteHash

	remoteSet := make(map[string]struct{}, len(remote.Users))
	for _, r := range remote.Users {
		remoteSet[r.Username] = struct{}{}
		if _, ok := localSet[r.Username]; !ok {
			report.MissingLocally++
		}
	}
	for username := range localSet {
		if _, ok := remoteSet[username]; !ok {
			report.MissingRemotely++
		}
	}
	return report, nil
}

// CurrentStatus reports whether the store has drifted from its last export.
func (s *Service) CurrentStatus(ctx context.Context, filter testuser.Filter) (*Status, error) {
	users, err := s.repo.FindAll(ctx, filter)
	if err != nil {
		return nil, err
	}
	records := make([]UserRecord, 0, len(users))
	for _, u := range users {
		records = append(records, recordFromUser(u))
	}

	current := ComputeHash(records)
	previous, err := s.hashes.Get(ctx, filter.CanonicalKey())
	if err != nil {
		return nil, err
	}

	return &Status{
		LastExportHash: previous,
		CurrentHash:    current,
		Dirty:          previous != current,
		UserCount:      len(records),
		CheckedAt:      time.Now().UTC(),
	}, nil
}

func isNotFound(err error) bool {
	var derr *shared.DomainError
	if errors.As(err, &derr) {
		return derr.Code == shared.ErrNotFound.Code
	}
	return false
}

package usersync

import (
	"time"

	"github.com/ecdemo/backend/internal/domain/testuser"
	"github.com/google/uuid"
)

// UserRecord is the wire form of one account in an export payload.
type UserRecord struct {
	ID               uuid.UUID      `json:"id"`
	Username         string         `json:"username"`
	Email            string         `json:"email"`
	PasswordHash     string         `json:"password_hash"`
	IsTestUser       bool           `json:"is_test_user"`
	TestBatchID      *uuid.UUID     `json:"test_batch_id,omitempty"`
	CreatedByBulk    bool           `json:"created_by_bulk"`
	CustomAttributes map[string]any `json:"custom_attributes,omitempty"`
	CreatedAt        time.Time      `json:"created_at"`
}

func recordFromUser(u *testuser.User) UserRecord {
	return UserRecord{
		ID:               u.ID,
		Username:         u.Username,
		Email:            u.Email,
		PasswordHash:     u.PasswordHash,
		IsTestUser:       u.IsTestUser,
		TestBatchID:      u.TestBatchID,
		CreatedByBulk:    u.CreatedByBulk,
		CustomAttributes: u.CustomAttributes,
		CreatedAt:        u.CreatedAt,
	}
}

// SourceSystem identifies this service in export payloads so the receiver
// can tell which side produced the data.
const SourceSystem = "main_application"

// ExportData is one differential export. When Unchanged is set the store
// state matches the last export for the same filter and Users is empty.
// Filter carries the canonical key of the filter criteria the export was
// produced under, so receivers can reconcile against the same record set.
type ExportData struct {
	SourceSystem  string       `json:"source_system"`
	Filter        string       `json:"filter,omitempty"`
	SyncTimestamp time.Time    `json:"sync_timestamp"`
	UserCount     int          `json:"user_count"`
	DataHash      string       `json:"data_hash"`
	Unchanged     bool         `json:"unchanged"`
	Users         []UserRecord `json:"users"`
}

// ImportResult accounts for every record of an applied import.
type ImportResult struct {
	Received int      `json:"received"`
	Added    int      `json:"added"`
	Updated  int      `json:"updated"`
	Failed   int      `json:"failed"`
	Errors   []string `json:"errors,omitempty"`
}

// IntegrityReport is the read-only comparison of two stores.
type IntegrityReport struct {
	PayloadHashValid bool   `json:"payload_hash_valid"`
	InSync           bool   `json:"in_sync"`
	LocalHash        string `json:"local_hash"`
	RemoteHash       string `json:"remote_hash"`
	LocalCount       int    `json:"local_count"`
	RemoteCount      int    `json:"remote_count"`
	MissingLocally   int    `json:"missing_locally"`
	MissingRemotely  int    `json:"missing_remotely"`
}

// Status describes the sync state of this store for one filter.
type Status struct {
	LastExportHash string    `json:"last_export_hash,omitempty"`
	CurrentHash    string    `json:"current_hash"`
	Dirty          bool      `json:"dirty"`
	UserCount      int       `json:"user_count"`
	CheckedAt      time.Time `json:"checked_at"`
}

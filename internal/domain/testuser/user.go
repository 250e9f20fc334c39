package testuser

import (
	"regexp"
	"strings"
	"time"

	"github.com/ecdemo/backend/internal/domain/shared"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// Password cost for bcrypt. Synthetic accounts are created in bulk, so the
// cost is lower than what a production identity service would use.
const bcryptCost = 10

var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)

// User represents an account in the primary store. Synthetic accounts carry
// the test markers (IsTestUser, TestBatchID, CreatedByBulk); anything without
// them is treated as production data and protected from lifecycle operations.
type User struct {
	shared.BaseEntity
	Username         string
	Email            string
	PasswordHash     string
	IsTestUser       bool
	TestBatchID      *uuid.UUID
	CreatedByBulk    bool
	CustomAttributes map[string]any
}

// NewUser creates a regular (production) user.
func NewUser(username, email, password string) (*User, error) {
	if err := validateUsername(username); err != nil {
		return nil, err
	}
	if err := validateEmail(email); err != nil {
		return nil, err
	}

	hash, err := HashPassword(password)
	if err != nil {
		return nil, shared.NewDomainError("PASSWORD_HASH_ERROR", "Failed to hash password")
	}

	return &User{
		BaseEntity:   shared.NewBaseEntity(),
		Username:     strings.TrimSpace(username),
		Email:        strings.ToLower(strings.TrimSpace(email)),
		PasswordHash: hash,
	}, nil
}

// NewTestUser creates a synthetic account tagged with its creation batch.
// Test accounts always carry all three markers so the classifier never has
// to guess.
func NewTestUser(username, email, password string, batchID uuid.UUID, attrs map[string]any) (*User, error) {
	user, err := NewUser(username, email, password)
	if err != nil {
		return nil, err
	}

	user.IsTestUser = true
	user.CreatedByBulk = true
	user.TestBatchID = &batchID
	user.CustomAttributes = attrs
	return user, nil
}

// VerifyPassword checks a plaintext password against the stored hash.
func (u *User) VerifyPassword(password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) == nil
}

// SetPassword replaces the stored password hash.
func (u *User) SetPassword(password string) error {
	hash, err := HashPassword(password)
	if err != nil {
		return shared.NewDomainError("PASSWORD_HASH_ERROR", "Failed to hash password")
	}
	u.PasswordHash = hash
	u.UpdatedAt = time.Now()
	return nil
}

// BatchIDString returns the batch id as a string, or "" when unset.
func (u *User) BatchIDString() string {
	if u.TestBatchID == nil {
		return ""
	}
	return u.TestBatchID.String()
}

// HashPassword hashes a plaintext password with bcrypt.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

func validateUsername(username string) error {
	username = strings.TrimSpace(username)
	if username == "" {
		return shared.NewDomainError("INVALID_USERNAME", "Username cannot be empty")
	}
	if len(username) > 200 {
		return shared.NewDomainError("INVALID_USERNAME", "Username cannot exceed 200 characters")
	}
	return nil
}

func validateEmail(email string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return shared.NewDomainError("INVALID_EMAIL", "Email cannot be empty")
	}
	if !emailRegex.MatchString(email) {
		return shared.NewDomainError("INVALID_EMAIL", "Invalid email format")
	}
	return nil
}

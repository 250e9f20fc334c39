package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"

	"github.com/ecdemo/backend/internal/domain/testuser"
	"github.com/google/uuid"
)

// JSONMap stores a free-form attribute map as a JSON column. Postgres uses
// jsonb; SQLite (tests) stores the serialized text.
type JSONMap map[string]any

// Value implements driver.Valuer
func (m JSONMap) Value() (driver.Value, error) {
	if m == nil {
		return nil, nil
	}
	return json.Marshal(m)
}

// Scan implements sql.Scanner
func (m *JSONMap) Scan(value any) error {
	if value == nil {
		*m = nil
		return nil
	}
	var raw []byte
	switch v := value.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("unsupported JSONMap source type %T", value)
	}
	return json.Unmarshal(raw, m)
}

// UserModel is the persistence mapping for user accounts.
type UserModel struct {
	BaseModel
	Username         string     `gorm:"size:200;not null;uniqueIndex"`
	Email            string     `gorm:"size:254;not null"`
	PasswordHash     string     `gorm:"size:128;not null"`
	IsTestUser       bool       `gorm:"not null;default:false;index"`
	TestBatchID      *uuid.UUID `gorm:"type:uuid;index"`
	CreatedByBulk    bool       `gorm:"not null;default:false"`
	CustomAttributes JSONMap    `gorm:"type:jsonb"`
}

// TableName overrides the GORM table name
func (UserModel) TableName() string {
	return "users"
}

// ToDomain converts the persistence model to a domain user
func (m *UserModel) ToDomain() *testuser.User {
	return &testuser.User{
		BaseEntity:       m.BaseModel.ToDomain(),
		Username:         m.Username,
		Email:            m.Email,
		PasswordHash:     m.PasswordHash,
		IsTestUser:       m.IsTestUser,
		TestBatchID:      m.TestBatchID,
		CreatedByBulk:    m.CreatedByBulk,
		CustomAttributes: m.CustomAttributes,
	}
}

// FromDomain populates the model from a domain user
func (m *UserModel) FromDomain(u *testuser.User) {
	m.FromDomainBaseEntity(u.BaseEntity)
	m.Username = u.Username
	m.Email = u.Email
	m.PasswordHash = u.PasswordHash
	m.IsTestUser = u.IsTestUser
	m.TestBatchID = u.TestBatchID
	m.CreatedByBulk = u.CreatedByBulk
	m.CustomAttributes = u.CustomAttributes
}

package bulkuser

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/ecdemo/backend/internal/domain/shared"
)

const (
	// MaxUsersPerBatch is the hard system ceiling for one creation run.
	MaxUsersPerBatch = 1000
	// MaxChunkSize bounds the bulk-insert chunk size.
	MaxChunkSize = 500
	// DefaultWorkers is the worker pool size when none is configured.
	DefaultWorkers = 4
)

const idPlaceholder = "{id}"

var emailDomainRegex = regexp.MustCompile(`^[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)

// PasswordPolicy constrains the fixed password used for synthetic accounts.
// These are non-production identities; the policy exists to keep test
// credentials from degenerating into trivially guessable strings.
type PasswordPolicy struct {
	MinLength      int  `json:"min_length"`
	RequireUpper   bool `json:"require_upper"`
	RequireLower   bool `json:"require_lower"`
	RequireNumbers bool `json:"require_numbers"`
	RequireSpecial bool `json:"require_special"`
}

// CreationConfig controls one bulk-creation run.
type CreationConfig struct {
	UsernamePattern  string         `json:"username_pattern"`
	Password         string         `json:"password"`
	EmailDomain      string         `json:"email_domain"`
	UserRole         string         `json:"user_role"`
	BatchSize        int            `json:"batch_size"`
	MaxWorkers       int            `json:"max_workers"`
	MaxUsersPerBatch int            `json:"max_users_per_batch"`
	PasswordPolicy   PasswordPolicy `json:"password_policy"`
	CustomAttributes map[string]any `json:"custom_attributes,omitempty"`
}

// ValidationResult is the structured outcome of validating a config.
type ValidationResult struct {
	IsValid  bool     `json:"is_valid"`
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
}

// Validate checks the config and returns every problem found rather than
// stopping at the first.
func (c CreationConfig) Validate() ValidationResult {
	var errs, warns []string

	if c.UsernamePattern == "" {
		errs = append(errs, "username pattern is empty")
	} else if strings.Count(c.UsernamePattern, idPlaceholder) != 1 {
		errs = append(errs, "username pattern must contain exactly one {id} placeholder")
	}

	if c.EmailDomain == "" {
		errs = append(errs, "email domain is empty")
	} else if !emailDomainRegex.MatchString(c.EmailDomain) {
		errs = append(errs, fmt.Sprintf("invalid email domain: %s", c.EmailDomain))
	}

	errs = append(errs, c.validatePassword()...)

	if c.BatchSize < 1 {
		errs = append(errs, "batch size must be at least 1")
	} else if c.BatchSize > MaxChunkSize {
		errs = append(errs, fmt.Sprintf("batch size must not exceed %d", MaxChunkSize))
	}

	if c.MaxUsersPerBatch < 1 {
		errs = append(errs, "max users per batch must be at least 1")
	} else if c.MaxUsersPerBatch > MaxUsersPerBatch {
		errs = append(errs, fmt.Sprintf("max users per batch must not exceed %d", MaxUsersPerBatch))
	}

	if c.MaxWorkers < 0 {
		errs = append(errs, "max workers must not be negative")
	}

	switch c.UserRole {
	case "", "user", "admin", "moderator", "test":
	default:
		warns = append(warns, fmt.Sprintf("unknown user role: %s", c.UserRole))
	}

	return ValidationResult{IsValid: len(errs) == 0, Errors: errs, Warnings: warns}
}

func (c CreationConfig) validatePassword() []string {
	var errs []string
	p := c.PasswordPolicy

	if len(c.Password) < p.MinLength {
		errs = append(errs, fmt.Sprintf("password must be at least %d characters", p.MinLength))
	}
	if p.RequireUpper && !strings.ContainsAny(c.Password, "ABCDEFGHIJKLMNOPQRSTUVWXYZ") {
		errs = append(errs, "password must contain an uppercase letter")
	}
	if p.RequireLower && !strings.ContainsAny(c.Password, "abcdefghijklmnopqrstuvwxyz") {
		errs = append(errs, "password must contain a lowercase letter")
	}
	if p.RequireNumbers && !strings.ContainsAny(c.Password, "0123456789") {
		errs = append(errs, "password must contain a digit")
	}
	if p.RequireSpecial && !strings.ContainsAny(c.Password, "!@#$%^&*(),.?\":{}|<>") {
		errs = append(errs, "password must contain a special character")
	}
	return errs
}

// workers returns the effective worker pool size.
func (c CreationConfig) workers() int {
	if c.MaxWorkers > 0 {
		return c.MaxWorkers
	}
	return DefaultWorkers
}

// DefaultCreationConfig is the baseline template.
func DefaultCreationConfig() CreationConfig {
	return CreationConfig{
		UsernamePattern:  "testuser_{id}",
		Password:         "TestUser2025!",
		EmailDomain:      "example.com",
		UserRole:         "user",
		BatchSize:        100,
		MaxWorkers:       DefaultWorkers,
		MaxUsersPerBatch: MaxUsersPerBatch,
		PasswordPolicy: PasswordPolicy{
			MinLength:      8,
			RequireUpper:   true,
			RequireLower:   true,
			RequireNumbers: true,
		},
	}
}

// BuiltinTemplates returns the named configuration templates shipped with
// the service. Custom templates live in the configuration store on top of
// these.
func BuiltinTemplates() map[string]CreationConfig {
	loadTest := DefaultCreationConfig()
	loadTest.UsernamePattern = "loadtest_{id}"
	loadTest.Password = "LoadUser2025!"
	loadTest.EmailDomain = "loadtest.local"
	loadTest.BatchSize = 200
	loadTest.CustomAttributes = map[string]any{"test_type": "load", "auto_cleanup": true}

	perfTest := DefaultCreationConfig()
	perfTest.UsernamePattern = "perftest_{id}"
	perfTest.Password = "PerfUser2025!"
	perfTest.EmailDomain = "perftest.local"
	perfTest.BatchSize = 500
	perfTest.CustomAttributes = map[string]any{"test_type": "performance", "auto_cleanup": true, "priority": "high"}

	admin := DefaultCreationConfig()
	admin.UsernamePattern = "admin_{id}"
	admin.Password = "AdminPass123!"
	admin.UserRole = "admin"
	admin.BatchSize = 50
	admin.MaxUsersPerBatch = 100
	admin.PasswordPolicy = PasswordPolicy{
		MinLength: 12, RequireUpper: true, RequireLower: true, RequireNumbers: true, RequireSpecial: true,
	}
	admin.CustomAttributes = map[string]any{"is_admin": true}

	secTest := DefaultCreationConfig()
	secTest.UsernamePattern = "sectest_{id}"
	secTest.Password = "SecTest123!@#$%^&*"
	secTest.EmailDomain = "sectest.local"
	secTest.BatchSize = 10
	secTest.MaxUsersPerBatch = 100
	secTest.PasswordPolicy = PasswordPolicy{
		MinLength: 16, RequireUpper: true, RequireLower: true, RequireNumbers: true, RequireSpecial: true,
	}
	secTest.CustomAttributes = map[string]any{"test_type": "security", "auto_cleanup": true}

	return map[string]CreationConfig{
		"default":          DefaultCreationConfig(),
		"admin":            admin,
		"load_test":        loadTest,
		"performance_test": perfTest,
		"security_test":    secTest,
	}
}

// TemplateNames lists the built-in template names in stable order.
func TemplateNames() []string {
	templates := BuiltinTemplates()
	names := make([]string, 0, len(templates))
	for name := range templates {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// TemplateByName looks up one built-in template.
func TemplateByName(name string) (CreationConfig, error) {
	cfg, ok := BuiltinTemplates()[name]
	if !ok {
		return CreationConfig{}, shared.NewDomainError("NOT_FOUND", fmt.Sprintf("unknown template: %s", name))
	}
	return cfg, nil
}

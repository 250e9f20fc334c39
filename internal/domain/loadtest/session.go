package loadtest

import (
	"fmt"
	"sync"
	"time"

	"github.com/ecdemo/backend/internal/domain/shared"
	"github.com/google/uuid"
)

// SessionStatus is the load-test session state machine:
// PENDING -> STARTING -> RUNNING -> {COMPLETED | STOPPED | FAILED}.
type SessionStatus string

const (
	StatusPending   SessionStatus = "pending"
	StatusStarting  SessionStatus = "starting"
	StatusRunning   SessionStatus = "running"
	StatusCompleted SessionStatus = "completed"
	StatusStopped   SessionStatus = "stopped"
	StatusFailed    SessionStatus = "failed"
)

// IsTerminal reports whether the session has finished.
func (s SessionStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusStopped || s == StatusFailed
}

// IsActive reports whether workers may still be running.
func (s SessionStatus) IsActive() bool {
	return s == StatusStarting || s == StatusRunning
}

var validTransitions = map[SessionStatus][]SessionStatus{
	StatusPending:  {StatusStarting, StatusFailed},
	StatusStarting: {StatusRunning, StatusStopped, StatusFailed},
	StatusRunning:  {StatusCompleted, StatusStopped, StatusFailed},
}

// SafetyLimits bound what any single test run may request.
type SafetyLimits struct {
	MaxConcurrentUsers int `json:"max_concurrent_users" validate:"gte=1"`
	MaxDurationMinutes int `json:"max_duration_minutes" validate:"gte=1"`
	MaxSessions        int `json:"max_sessions" validate:"gte=1"`
}

// DefaultSafetyLimits mirrors the load tester's shipped configuration.
func DefaultSafetyLimits() SafetyLimits {
	return SafetyLimits{
		MaxConcurrentUsers: 50,
		MaxDurationMinutes: 120,
		MaxSessions:        3,
	}
}

// Config is the per-session load test configuration snapshot.
type Config struct {
	SessionName        string             `json:"session_name"`
	ConcurrentUsers    int                `json:"concurrent_users"`
	DurationMinutes    int                `json:"duration_minutes"`
	RequestIntervalMin time.Duration      `json:"request_interval_min"`
	RequestIntervalMax time.Duration      `json:"request_interval_max"`
	EndpointWeights    map[string]float64 `json:"endpoint_weights,omitempty"`
	MaxErrorsPerMinute int                `json:"max_errors_per_minute"`
}

// DefaultConfig returns the shipped worker defaults.
func DefaultConfig() Config {
	return Config{
		ConcurrentUsers:    10,
		DurationMinutes:    30,
		RequestIntervalMin: time.Second,
		RequestIntervalMax: 5 * time.Second,
		MaxErrorsPerMinute: 100,
	}
}

// Validate rejects configs outside the safety limits before any work begins.
func (c Config) Validate(limits SafetyLimits) error {
	if c.ConcurrentUsers < 1 {
		return shared.NewDomainError("VALIDATION_FAILED", "concurrent_users must be at least 1")
	}
	if c.ConcurrentUsers > limits.MaxConcurrentUsers {
		return shared.NewDomainError("SAFETY_LIMIT_EXCEEDED",
			fmt.Sprintf("concurrent_users %d exceeds the limit of %d", c.ConcurrentUsers, limits.MaxConcurrentUsers))
	}
	if c.DurationMinutes < 1 {
		return shared.NewDomainError("VALIDATION_FAILED", "duration_minutes must be at least 1")
	}
	if c.DurationMinutes > limits.MaxDurationMinutes {
		return shared.NewDomainError("SAFETY_LIMIT_EXCEEDED",
			fmt.Sprintf("duration_minutes %d exceeds the limit of %d", c.DurationMinutes, limits.MaxDurationMinutes))
	}
	if c.RequestIntervalMin < 0 || c.RequestIntervalMax < c.RequestIntervalMin {
		return shared.NewDomainError("VALIDATION_FAILED", "request interval range is invalid")
	}
	if c.MaxErrorsPerMinute < 1 {
		return shared.NewDomainError("VALIDATION_FAILED", "max_errors_per_minute must be at least 1")
	}
	for name, w := range c.EndpointWeights {
		if w < 0 {
			return shared.NewDomainError("VALIDATION_FAILED",
				fmt.Sprintf("endpoint weight for %q must not be negative", name))
		}
	}
	return nil
}

// Session is one load-test run. Owned exclusively by the manager; all state
// changes go through Transition so the machine can never skip states.
type Session struct {
	mu sync.Mutex

	ID         uuid.UUID
	Config     Config
	Status     SessionStatus
	StartTime  *time.Time
	EndTime    *time.Time
	StopReason string
}

// SessionView is a point-in-time copy of a session, safe to hold and
// serialize after the session has moved on.
type SessionView struct {
	ID         uuid.UUID     `json:"id"`
	Config     Config        `json:"config"`
	Status     SessionStatus `json:"status"`
	StartTime  *time.Time    `json:"start_time,omitempty"`
	EndTime    *time.Time    `json:"end_time,omitempty"`
	StopReason string        `json:"stop_reason,omitempty"`
}

// NewSession creates a pending session for the given config snapshot.
func NewSession(cfg Config) *Session {
	return &Session{
		ID:     uuid.New(),
		Config: cfg,
		Status: StatusPending,
	}
}

// Transition moves the session to the next status, enforcing the machine.
func (s *Session) Transition(next SessionStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, allowed := range validTransitions[s.Status] {
		if allowed == next {
			s.applyTransition(next)
			return nil
		}
	}
	return shared.NewDomainError("INVALID_STATE",
		fmt.Sprintf("cannot transition session from %s to %s", s.Status, next))
}

func (s *Session) applyTransition(next SessionStatus) {
	now := time.Now()
	switch next {
	case StatusRunning:
		s.StartTime = &now
	case StatusCompleted, StatusStopped, StatusFailed:
		s.EndTime = &now
	}
	s.Status = next
}

// CurrentStatus returns the status under the session lock.
func (s *Session) CurrentStatus() SessionStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Status
}

// SetStopReason records why the session halted.
func (s *Session) SetStopReason(reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.StopReason = reason
}

// Snapshot returns a copy safe for serialization.
func (s *Session) Snapshot() SessionView {
	s.mu.Lock()
	defer s.mu.Unlock()
	return SessionView{
		ID:         s.ID,
		Config:     s.Config,
		Status:     s.Status,
		StartTime:  s.StartTime,
		EndTime:    s.EndTime,
		StopReason: s.StopReason,
	}
}

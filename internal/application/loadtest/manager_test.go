package loadtest

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ecdemo/backend/internal/domain/loadtest"
	"github.com/ecdemo/backend/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func fastConfig() loadtest.Config {
	cfg := loadtest.DefaultConfig()
	cfg.ConcurrentUsers = 3
	cfg.DurationMinutes = 1
	cfg.RequestIntervalMin = time.Millisecond
	cfg.RequestIntervalMax = 5 * time.Millisecond
	cfg.MaxErrorsPerMinute = 100
	return cfg
}

func newTestManager(t *testing.T, handler http.Handler) (*Manager, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	selector := loadtest.NewSelector([]loadtest.EndpointConfig{
		{Name: "home", URL: server.URL + "/", Weight: 3, Enabled: true, Timeout: 2 * time.Second},
		{Name: "search", URL: server.URL + "/search", Weight: 1, Enabled: true, Timeout: 2 * time.Second},
	})
	m := NewManager(selector, loadtest.DefaultSafetyLimits(), server.Client(), zap.NewNop())
	m.sessionDuration = func(cfg loadtest.Config) time.Duration {
		return time.Duration(cfg.DurationMinutes) * 200 * time.Millisecond
	}
	return m, server
}

func waitTerminal(t *testing.T, m *Manager, id uuid.UUID, within time.Duration) *StatusReport {
	t.Helper()
	deadline := time.Now().Add(within)
	for time.Now().Before(deadline) {
		report, err := m.Status(id)
		require.NoError(t, err)
		if report.Session.Status.IsTerminal() {
			return report
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("session %s did not finish within %s", id, within)
	return nil
}

func TestStartTest_RunsToCompletion(t *testing.T) {
	var hits atomic.Int64
	m, _ := newTestManager(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))

	session, err := m.StartTest(context.Background(), fastConfig())
	require.NoError(t, err)
	assert.Equal(t, loadtest.StatusRunning, session.Status)

	report := waitTerminal(t, m, session.ID, 5*time.Second)
	assert.Equal(t, loadtest.StatusCompleted, report.Session.Status)
	assert.Zero(t, report.TotalErrors)
	assert.Greater(t, hits.Load(), int64(0))
	require.NotNil(t, report.Session.EndTime)

	var total int64
	for _, st := range report.EndpointStats {
		total += st.TotalRequests
	}
	assert.Greater(t, total, int64(0))
}

func TestStartTest_ErrorRateSelfStop(t *testing.T) {
	m, _ := newTestManager(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))

	cfg := fastConfig()
	cfg.MaxErrorsPerMinute = 5

	session, err := m.StartTest(context.Background(), cfg)
	require.NoError(t, err)

	report := waitTerminal(t, m, session.ID, 5*time.Second)
	assert.Equal(t, loadtest.StatusStopped, report.Session.Status)
	assert.Contains(t, report.Session.StopReason, "error rate exceeded")
	assert.Greater(t, report.TotalErrors, int64(cfg.MaxErrorsPerMinute))
}

func TestStopTest_GracefulStop(t *testing.T) {
	m, _ := newTestManager(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	cfg := fastConfig()
	session, err := m.StartTest(context.Background(), cfg)
	require.NoError(t, err)

	require.NoError(t, m.StopTest(session.ID, "test teardown"))

	report, err := m.Status(session.ID)
	require.NoError(t, err)
	assert.Equal(t, loadtest.StatusStopped, report.Session.Status)
	assert.Equal(t, "test teardown", report.Session.StopReason)

	err = m.StopTest(session.ID, "again")
	var derr *shared.DomainError
	require.True(t, errors.As(err, &derr))
	assert.Equal(t, "INVALID_STATE", derr.Code)
}

func TestStartTest_SessionCap(t *testing.T) {
	m, _ := newTestManager(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	m.limits.MaxSessions = 1
	m.sessionDuration = func(loadtest.Config) time.Duration { return time.Minute }

	first, err := m.StartTest(context.Background(), fastConfig())
	require.NoError(t, err)

	_, err = m.StartTest(context.Background(), fastConfig())
	var derr *shared.DomainError
	require.True(t, errors.As(err, &derr))
	assert.Equal(t, "SAFETY_LIMIT_EXCEEDED", derr.Code)

	require.NoError(t, m.StopTest(first.ID, ""))

	// Capacity frees up once the first session finishes.
	second, err := m.StartTest(context.Background(), fastConfig())
	require.NoError(t, err)
	require.NoError(t, m.StopTest(second.ID, ""))
}

func TestStartTest_RejectsConfigOverLimits(t *testing.T) {
	m, _ := newTestManager(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	cfg := fastConfig()
	cfg.ConcurrentUsers = m.limits.MaxConcurrentUsers + 1

	_, err := m.StartTest(context.Background(), cfg)
	var derr *shared.DomainError
	require.True(t, errors.As(err, &derr))
	assert.Equal(t, "SAFETY_LIMIT_EXCEEDED", derr.Code)
}

func TestEmergencyStop_HaltsEverything(t *testing.T) {
	m, _ := newTestManager(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	m.sessionDuration = func(loadtest.Config) time.Duration { return time.Minute }

	a, err := m.StartTest(context.Background(), fastConfig())
	require.NoError(t, err)
	b, err := m.StartTest(context.Background(), fastConfig())
	require.NoError(t, err)

	stopped := m.EmergencyStop()
	assert.Equal(t, 2, stopped)

	for _, id := range []uuid.UUID{a.ID, b.ID} {
		report, err := m.Status(id)
		require.NoError(t, err)
		assert.Equal(t, loadtest.StatusStopped, report.Session.Status)
		assert.Equal(t, "emergency stop", report.Session.StopReason)
	}
	assert.Zero(t, m.EmergencyStop())
}

func TestStartTest_NoEndpointsFailsSession(t *testing.T) {
	selector := loadtest.NewSelector([]loadtest.EndpointConfig{
		{Name: "home", URL: "http://127.0.0.1:1", Weight: 1, Enabled: false, Timeout: time.Second},
	})
	m := NewManager(selector, loadtest.DefaultSafetyLimits(), nil, zap.NewNop())
	m.sessionDuration = func(loadtest.Config) time.Duration { return time.Minute }

	cfg := fastConfig()
	cfg.ConcurrentUsers = 1

	session, err := m.StartTest(context.Background(), cfg)
	require.NoError(t, err)

	// A selector that never yields an endpoint is unrecoverable: the session
	// must end up failed, not stopped or quietly completed.
	report := waitTerminal(t, m, session.ID, 10*time.Second)
	assert.Equal(t, loadtest.StatusFailed, report.Session.Status)
	assert.Contains(t, report.Session.StopReason, "unrecoverable")
}

func TestEvictFinished_KeepsCapAndActive(t *testing.T) {
	m := NewManager(loadtest.NewSelector(nil), loadtest.DefaultSafetyLimits(), nil, zap.NewNop())

	terminal := func() *runningSession {
		s := loadtest.NewSession(fastConfig())
		require.NoError(t, s.Transition(loadtest.StatusStarting))
		require.NoError(t, s.Transition(loadtest.StatusRunning))
		require.NoError(t, s.Transition(loadtest.StatusStopped))
		return &runningSession{session: s, cancel: func() {}, done: make(chan struct{}), errWindow: newErrorWindow()}
	}

	m.mu.Lock()
	for i := 0; i < maxFinishedRetained+5; i++ {
		rs := terminal()
		m.sessions[rs.session.ID] = rs
	}
	active := loadtest.NewSession(fastConfig())
	require.NoError(t, active.Transition(loadtest.StatusStarting))
	require.NoError(t, active.Transition(loadtest.StatusRunning))
	m.sessions[active.ID] = &runningSession{session: active, cancel: func() {}, done: make(chan struct{}), errWindow: newErrorWindow()}
	m.evictFinishedLocked()
	m.mu.Unlock()

	// The cap applies to finished runs only; the active session is untouched.
	assert.Len(t, m.sessions, maxFinishedRetained+1)
	_, ok := m.sessions[active.ID]
	assert.True(t, ok)
}

func TestStatus_UnknownSession(t *testing.T) {
	m, _ := newTestManager(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	_, err := m.Status(uuid.New())
	var derr *shared.DomainError
	require.True(t, errors.As(err, &derr))
	assert.Equal(t, "NOT_FOUND", derr.Code)
}

func TestErrorWindow_RollsOff(t *testing.T) {
	w := newErrorWindow()
	w.span = 50 * time.Millisecond

	assert.Equal(t, 1, w.Record())
	assert.Equal(t, 2, w.Record())
	assert.Equal(t, 2, w.Count())

	time.Sleep(80 * time.Millisecond)
	assert.Equal(t, 0, w.Count())
	assert.Equal(t, 1, w.Record())
}

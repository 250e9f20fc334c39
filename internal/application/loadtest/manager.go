package loadtest

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ecdemo/backend/internal/domain/loadtest"
	"github.com/ecdemo/backend/internal/domain/shared"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// StatusReport is the externally visible state of one session.
type StatusReport struct {
	Session          loadtest.SessionView     `json:"session"`
	TotalErrors      int64                    `json:"total_errors"`
	ErrorsLastMinute int                      `json:"errors_last_minute"`
	EndpointStats    []loadtest.EndpointStats `json:"endpoint_stats"`
}

type runningSession struct {
	session *loadtest.Session
	cancel  context.CancelFunc
	done    chan struct{}

	errWindow   *errorWindow
	totalErrors atomic.Int64

	// stopCause is set before cancel so the finisher knows why it ended.
	stopMu    sync.Mutex
	stopState loadtest.SessionStatus
	stopWhy   string
}

func (r *runningSession) requestStop(state loadtest.SessionStatus, why string) {
	r.stopMu.Lock()
	if r.stopState == "" {
		r.stopState = state
		r.stopWhy = why
	}
	r.stopMu.Unlock()
	r.cancel()
}

func (r *runningSession) stopCause() (loadtest.SessionStatus, string) {
	r.stopMu.Lock()
	defer r.stopMu.Unlock()
	return r.stopState, r.stopWhy
}

// Manager owns the load-test session registry and the worker pools behind
// it. At most limits.MaxSessions sessions run at once; finished sessions
// stay queryable until evicted by a newer run.
type Manager struct {
	selector *loadtest.Selector
	limits   loadtest.SafetyLimits
	client   *http.Client
	logger   *zap.Logger

	mu       sync.Mutex
	sessions map[uuid.UUID]*runningSession

	// sessionDuration exists so tests can run sub-minute sessions.
	sessionDuration func(loadtest.Config) time.Duration
}

// NewManager wires a session manager over the given endpoint selector.
func NewManager(selector *loadtest.Selector, limits loadtest.SafetyLimits, client *http.Client, logger *zap.Logger) *Manager {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &Manager{
		selector: selector,
		limits:   limits,
		client:   client,
		logger:   logger,
		sessions: make(map[uuid.UUID]*runningSession),
		sessionDuration: func(cfg loadtest.Config) time.Duration {
			return time.Duration(cfg.DurationMinutes) * time.Minute
		},
	}
}

// Limits returns the active safety limits.
func (m *Manager) Limits() loadtest.SafetyLimits {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.limits
}

// SetLimits replaces the safety limits. Applies to future sessions only;
// running sessions keep the limits they started under.
func (m *Manager) SetLimits(limits loadtest.SafetyLimits) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.limits = limits
}

// StartTest validates the config, registers a session, and launches its
// worker pool. Returns the session snapshot once the pool is running.
func (m *Manager) StartTest(ctx context.Context, cfg loadtest.Config) (loadtest.SessionView, error) {
	limits := m.Limits()
	if err := cfg.Validate(limits); err != nil {
		return loadtest.SessionView{}, err
	}

	m.mu.Lock()
	active := 0
	for _, rs := range m.sessions {
		if rs.session.CurrentStatus().IsActive() {
			active++
		}
	}
	if active >= limits.MaxSessions {
		m.mu.Unlock()
		return loadtest.SessionView{}, shared.NewDomainError("SAFETY_LIMIT_EXCEEDED",
			fmt.Sprintf("%d sessions already active, limit is %d", active, limits.MaxSessions))
	}

	session := loadtest.NewSession(cfg)
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	rs := &runningSession{
		session:   session,
		cancel:    cancel,
		done:      make(chan struct{}),
		errWindow: newErrorWindow(),
	}
	m.sessions[session.ID] = rs
	m.evictFinishedLocked()
	m.mu.Unlock()

	if err := session.Transition(loadtest.StatusStarting); err != nil {
		cancel()
		return loadtest.SessionView{}, err
	}

	if len(cfg.EndpointWeights) > 0 {
		m.selector.UpdateWeights(cfg.EndpointWeights)
	}
	m.selector.ResetStats()

	m.logger.Info("starting load test session",
		zap.String("session_id", session.ID.String()),
		zap.String("name", cfg.SessionName),
		zap.Int("concurrent_users", cfg.ConcurrentUsers),
		zap.Int("duration_minutes", cfg.DurationMinutes))

	if err := session.Transition(loadtest.StatusRunning); err != nil {
		cancel()
		return loadtest.SessionView{}, err
	}
	go m.runSession(runCtx, rs)

	return session.Snapshot(), nil
}

func (m *Manager) runSession(ctx context.Context, rs *runningSession) {
	defer close(rs.done)

	cfg := rs.session.Config
	deadline := time.NewTimer(m.sessionDuration(cfg))
	defer deadline.Stop()

	workCtx, cancelWorkers := context.WithCancel(ctx)
	defer cancelWorkers()

	go func() {
		select {
		case <-deadline.C:
			rs.requestStop(loadtest.StatusCompleted, "configured duration elapsed")
		case <-ctx.Done():
		}
	}()

	onError := func() {
		rs.totalErrors.Add(1)
		if count := rs.errWindow.Record(); count > cfg.MaxErrorsPerMinute {
			rs.requestStop(loadtest.StatusStopped,
				fmt.Sprintf("error rate exceeded: %d errors in the last minute, limit %d", count, cfg.MaxErrorsPerMinute))
		}
	}

	g, gctx := errgroup.WithContext(workCtx)
	g.SetLimit(cfg.ConcurrentUsers)
	for i := 0; i < cfg.ConcurrentUsers; i++ {
		w := newWorker(i, m.selector, m.client, cfg, onError, m.logger)
		g.Go(func() error { return w.run(gctx) })
	}
	if err := g.Wait(); err != nil {
		// A worker aborted on an unrecoverable condition. Distinct from the
		// error-rate breaker and operator stops, which are deliberate halts.
		rs.requestStop(loadtest.StatusFailed, fmt.Sprintf("unrecoverable: %v", err))
	}

	state, why := rs.stopCause()
	if state == "" {
		state = loadtest.StatusCompleted
		why = "all workers finished"
	}
	if why != "" {
		rs.session.SetStopReason(why)
	}
	if err := rs.session.Transition(state); err != nil {
		m.logger.Warn("session already terminal",
			zap.String("session_id", rs.session.ID.String()),
			zap.Error(err))
	}

	m.logger.Info("load test session finished",
		zap.String("session_id", rs.session.ID.String()),
		zap.String("status", string(rs.session.CurrentStatus())),
		zap.String("reason", why),
		zap.Int64("total_errors", rs.totalErrors.Load()))
}

// maxFinishedRetained bounds how many terminal sessions stay in the
// registry for status queries. The oldest finished runs are evicted when a
// new session registers.
const maxFinishedRetained = 20

// evictFinishedLocked drops the oldest terminal sessions beyond the
// retention cap. Caller holds m.mu.
func (m *Manager) evictFinishedLocked() {
	type finished struct {
		id    uuid.UUID
		ended time.Time
	}
	var done []finished
	for id, rs := range m.sessions {
		view := rs.session.Snapshot()
		if !view.Status.IsTerminal() {
			continue
		}
		var ended time.Time
		if view.EndTime != nil {
			ended = *view.EndTime
		}
		done = append(done, finished{id: id, ended: ended})
	}
	if len(done) <= maxFinishedRetained {
		return
	}
	sort.Slice(done, func(i, j int) bool { return done[i].ended.Before(done[j].ended) })
	for _, f := range done[:len(done)-maxFinishedRetained] {
		delete(m.sessions, f.id)
	}
}

// StopTest requests a graceful stop and waits for the workers to drain.
func (m *Manager) StopTest(id uuid.UUID, reason string) error {
	m.mu.Lock()
	rs, ok := m.sessions[id]
	m.mu.Unlock()
	if !ok {
		return shared.NewDomainError("NOT_FOUND", fmt.Sprintf("no session %s", id))
	}
	if rs.session.CurrentStatus().IsTerminal() {
		return shared.NewDomainError("INVALID_STATE", "session has already finished")
	}

	if reason == "" {
		reason = "stopped by operator"
	}
	rs.requestStop(loadtest.StatusStopped, reason)
	<-rs.done
	return nil
}

// EmergencyStop halts every active session and returns how many it stopped.
func (m *Manager) EmergencyStop() int {
	m.mu.Lock()
	var targets []*runningSession
	for _, rs := range m.sessions {
		if rs.session.CurrentStatus().IsActive() {
			targets = append(targets, rs)
		}
	}
	m.mu.Unlock()

	for _, rs := range targets {
		rs.requestStop(loadtest.StatusStopped, "emergency stop")
	}
	for _, rs := range targets {
		<-rs.done
	}

	if len(targets) > 0 {
		m.logger.Warn("emergency stop executed", zap.Int("sessions", len(targets)))
	}
	return len(targets)
}

// Status returns the full report for one session.
func (m *Manager) Status(id uuid.UUID) (*StatusReport, error) {
	m.mu.Lock()
	rs, ok := m.sessions[id]
	m.mu.Unlock()
	if !ok {
		return nil, shared.NewDomainError("NOT_FOUND", fmt.Sprintf("no session %s", id))
	}

	return &StatusReport{
		Session:          rs.session.Snapshot(),
		TotalErrors:      rs.totalErrors.Load(),
		ErrorsLastMinute: rs.errWindow.Count(),
		EndpointStats:    m.selector.Stats(),
	}, nil
}

// Sessions lists every known session, finished ones included.
func (m *Manager) Sessions() []loadtest.SessionView {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]loadtest.SessionView, 0, len(m.sessions))
	for _, rs := range m.sessions {
		out = append(out, rs.session.Snapshot())
	}
	return out
}

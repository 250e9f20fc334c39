package loadtest

import (
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/ecdemo/backend/internal/domain/shared"
)

// ErrNoEndpoints is returned when every registered endpoint is disabled.
var ErrNoEndpoints = shared.NewDomainError("NO_ENDPOINTS_AVAILABLE", "No enabled endpoints to select from")

// Selector performs weighted-random endpoint selection and tracks running
// statistics. Safe for concurrent use by many workers: configuration and
// stats are guarded by separate locks so recording an outcome never blocks
// selection longer than necessary.
type Selector struct {
	mu        sync.RWMutex
	endpoints map[string]EndpointConfig

	statsMu sync.Mutex
	stats   map[string]*EndpointStats

	rngMu sync.Mutex
	rng   *rand.Rand
}

// NewSelector creates a selector over the given endpoint registry.
func NewSelector(endpoints []EndpointConfig) *Selector {
	s := &Selector{
		endpoints: make(map[string]EndpointConfig, len(endpoints)),
		stats:     make(map[string]*EndpointStats, len(endpoints)),
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for _, ep := range endpoints {
		if ep.Method == "" {
			ep.Method = "GET"
		}
		if ep.Timeout <= 0 {
			ep.Timeout = 30 * time.Second
		}
		s.endpoints[ep.Name] = ep
		s.stats[ep.Name] = &EndpointStats{Name: ep.Name}
	}
	return s
}

// Select picks an enabled endpoint by weighted random choice.
func (s *Selector) Select() (EndpointConfig, error) {
	s.mu.RLock()
	var enabled []EndpointConfig
	var totalWeight float64
	for _, ep := range s.endpoints {
		if ep.Enabled && ep.Weight > 0 {
			enabled = append(enabled, ep)
			totalWeight += ep.Weight
		}
	}
	s.mu.RUnlock()

	if len(enabled) == 0 || totalWeight <= 0 {
		return EndpointConfig{}, ErrNoEndpoints
	}

	// Stable iteration order so equal inputs give reproducible distributions.
	sort.Slice(enabled, func(i, j int) bool { return enabled[i].Name < enabled[j].Name })

	s.rngMu.Lock()
	target := s.rng.Float64() * totalWeight
	s.rngMu.Unlock()

	for _, ep := range enabled {
		target -= ep.Weight
		if target <= 0 {
			return ep, nil
		}
	}
	return enabled[len(enabled)-1], nil
}

// Replace swaps the whole endpoint registry. Stats for endpoints that no
// longer exist are dropped; running workers pick up the new set on their
// next selection.
func (s *Selector) Replace(endpoints []EndpointConfig) {
	names := make(map[string]bool, len(endpoints))

	s.mu.Lock()
	s.endpoints = make(map[string]EndpointConfig, len(endpoints))
	for _, ep := range endpoints {
		if ep.Method == "" {
			ep.Method = "GET"
		}
		if ep.Timeout <= 0 {
			ep.Timeout = 30 * time.Second
		}
		s.endpoints[ep.Name] = ep
		names[ep.Name] = true
	}
	s.mu.Unlock()

	s.statsMu.Lock()
	defer s.statsMu.Unlock()
	for name := range s.stats {
		if !names[name] {
			delete(s.stats, name)
		}
	}
	for name := range names {
		if _, ok := s.stats[name]; !ok {
			s.stats[name] = &EndpointStats{Name: name}
		}
	}
}

// UpdateWeights replaces the weights of the named endpoints. Unknown names
// are ignored. Effective on the next Select call.
func (s *Selector) UpdateWeights(weights map[string]float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for name, w := range weights {
		if ep, ok := s.endpoints[name]; ok && w >= 0 {
			ep.Weight = w
			s.endpoints[name] = ep
		}
	}
}

// SetEnabled flips the enabled flag of one endpoint.
func (s *Selector) SetEnabled(name string, enabled bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	ep, ok := s.endpoints[name]
	if !ok {
		return false
	}
	ep.Enabled = enabled
	s.endpoints[name] = ep
	return true
}

// RecordOutcome updates the running statistics for one endpoint. Counters
// only ever increment; concurrent calls never lose updates.
func (s *Selector) RecordOutcome(name string, success bool, latency time.Duration) {
	s.statsMu.Lock()
	defer s.statsMu.Unlock()

	st, ok := s.stats[name]
	if !ok {
		st = &EndpointStats{Name: name}
		s.stats[name] = st
	}

	now := time.Now()
	st.TotalRequests++
	st.LastAccessedAt = &now
	if success {
		st.SuccessfulRequests++
		st.TotalLatency += latency
	} else {
		st.FailedRequests++
	}
}

// ResetStats clears all counters; called at session start.
func (s *Selector) ResetStats() {
	s.statsMu.Lock()
	defer s.statsMu.Unlock()
	for name := range s.stats {
		s.stats[name] = &EndpointStats{Name: name}
	}
}

// Stats returns a snapshot of all endpoint statistics.
func (s *Selector) Stats() []EndpointStats {
	s.statsMu.Lock()
	defer s.statsMu.Unlock()

	out := make([]EndpointStats, 0, len(s.stats))
	for _, st := range s.stats {
		out = append(out, *st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Endpoints returns a snapshot of the current endpoint registry.
func (s *Selector) Endpoints() []EndpointConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]EndpointConfig, 0, len(s.endpoints))
	for _, ep := range s.endpoints {
		out = append(out, ep)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

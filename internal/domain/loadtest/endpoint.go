package loadtest

import (
	"time"
)

// EndpointConfig describes one load-test target. It is immutable for the
// duration of a test run; weight and enabled changes take effect on the next
// selection.
type EndpointConfig struct {
	Name        string        `json:"name" validate:"required"`
	URL         string        `json:"url" validate:"required,url"`
	Method      string        `json:"method"`
	Weight      float64       `json:"weight" validate:"gte=0"`
	Enabled     bool          `json:"enabled"`
	Timeout     time.Duration `json:"timeout"`
	Description string        `json:"description,omitempty"`
}

// EndpointStats accumulates per-endpoint counters for one test session.
// Counters are monotonic; they reset only when a session starts.
type EndpointStats struct {
	Name               string        `json:"name"`
	TotalRequests      int64         `json:"total_requests"`
	SuccessfulRequests int64         `json:"successful_requests"`
	FailedRequests     int64         `json:"failed_requests"`
	TotalLatency       time.Duration `json:"total_latency"`
	LastAccessedAt     *time.Time    `json:"last_accessed_at,omitempty"`
}

// SuccessRate returns the success percentage for the session so far.
func (s *EndpointStats) SuccessRate() float64 {
	if s.TotalRequests == 0 {
		return 0
	}
	return float64(s.SuccessfulRequests) / float64(s.TotalRequests) * 100
}

// AverageLatency returns the mean latency across successful requests.
func (s *EndpointStats) AverageLatency() time.Duration {
	if s.SuccessfulRequests == 0 {
		return 0
	}
	return s.TotalLatency / time.Duration(s.SuccessfulRequests)
}

package loadtest

import (
	"context"
	"errors"
	"io"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"github.com/ecdemo/backend/internal/domain/loadtest"
	"go.uber.org/zap"
)

// noEndpointsTolerance is how many consecutive selector misses a worker
// absorbs before declaring the session unrecoverable. A transient disable
// (operator flipping weights) recovers within the tolerance; a selector
// that stays empty cannot produce any load and aborts the run.
const noEndpointsTolerance = 3

// worker is one simulated user: select an endpoint, hit it, record the
// outcome, sleep a random interval, repeat until the session context ends.
type worker struct {
	id       int
	selector *loadtest.Selector
	client   *http.Client
	cfg      loadtest.Config
	onError  func()
	logger   *zap.Logger

	rngMu sync.Mutex
	rng   *rand.Rand
}

func newWorker(id int, selector *loadtest.Selector, client *http.Client, cfg loadtest.Config, onError func(), logger *zap.Logger) *worker {
	return &worker{
		id:       id,
		selector: selector,
		client:   client,
		cfg:      cfg,
		onError:  onError,
		logger:   logger,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano() + int64(id))),
	}
}

func (w *worker) run(ctx context.Context) error {
	selectMisses := 0
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		endpoint, err := w.selector.Select()
		if err != nil {
			// No endpoints to hit; back off instead of spinning. A selector
			// that stays empty is unrecoverable: report it so the session
			// fails instead of idling for the full duration.
			w.onError()
			selectMisses++
			if errors.Is(err, loadtest.ErrNoEndpoints) && selectMisses >= noEndpointsTolerance {
				return err
			}
			if !w.sleep(ctx, time.Second) {
				return nil
			}
			continue
		}
		selectMisses = 0

		success, latency := w.request(ctx, endpoint)
		if ctx.Err() != nil {
			// Session shutdown mid-request; do not count the aborted call.
			return nil
		}
		w.selector.RecordOutcome(endpoint.Name, success, latency)
		if !success {
			w.onError()
		}

		if !w.sleep(ctx, w.nextInterval()) {
			return nil
		}
	}
}

// request performs one call. Any transport error or HTTP status of 400 and
// above counts as a failure.
func (w *worker) request(ctx context.Context, endpoint loadtest.EndpointConfig) (bool, time.Duration) {
	reqCtx, cancel := context.WithTimeout(ctx, endpoint.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, endpoint.Method, endpoint.URL, nil)
	if err != nil {
		w.logger.Warn("bad endpoint request",
			zap.String("endpoint", endpoint.Name),
			zap.Error(err))
		return false, 0
	}

	start := time.Now()
	resp, err := w.client.Do(req)
	latency := time.Since(start)
	if err != nil {
		w.logger.Debug("request failed",
			zap.String("endpoint", endpoint.Name),
			zap.Error(err))
		return false, latency
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	return resp.StatusCode < http.StatusBadRequest, latency
}

func (w *worker) nextInterval() time.Duration {
	min, max := w.cfg.RequestIntervalMin, w.cfg.RequestIntervalMax
	if max <= min {
		return min
	}
	w.rngMu.Lock()
	defer w.rngMu.Unlock()
	return min + time.Duration(w.rng.Int63n(int64(max-min)))
}

// sleep waits for d or until the context ends; reports false on shutdown.
func (w *worker) sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

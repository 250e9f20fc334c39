package peer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ecdemo/backend/internal/application/usersync"
	"github.com/ecdemo/backend/internal/domain/shared"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Client talks to the load-tester peer's user API. All calls retry transient
// failures with a fixed backoff; a 4xx response is returned as-is since
// retrying a rejected request cannot help.
type Client struct {
	baseURL string
	http    *http.Client
	retries int
	backoff time.Duration
	logger  *zap.Logger
}

// Options configures the peer client.
type Options struct {
	BaseURL        string
	RequestTimeout time.Duration
	MaxRetries     int
	RetryBackoff   time.Duration
}

// NewClient creates a peer client.
func NewClient(opts Options, logger *zap.Logger) *Client {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 30 * time.Second
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 3
	}
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = 500 * time.Millisecond
	}
	return &Client{
		baseURL: opts.BaseURL,
		http:    &http.Client{Timeout: opts.RequestTimeout},
		retries: opts.MaxRetries,
		backoff: opts.RetryBackoff,
		logger:  logger,
	}
}

type importResponse struct {
	Success bool                  `json:"success"`
	Data    usersync.ImportResult `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Import pushes an export payload to the peer's import endpoint. The payload
// is sent as produced by EncodePayload; Content-Encoding carries the
// compression flag.
func (c *Client) Import(ctx context.Context, data *usersync.ExportData) (*usersync.ImportResult, error) {
	payload, err := usersync.EncodePayload(data)
	if err != nil {
		return nil, err
	}

	headers := map[string]string{"Content-Type": "application/json"}
	if payload.Compressed {
		headers["Content-Encoding"] = "gzip"
	}

	body, err := c.do(ctx, http.MethodPost, "/api/users/import", payload.Body, headers)
	if err != nil {
		return nil, err
	}

	var resp importResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("peer returned malformed import response: %w", err)
	}
	if !resp.Success {
		return nil, peerError(resp.Error)
	}
	return &resp.Data, nil
}

type syncStatusResponse struct {
	Success bool            `json:"success"`
	Data    usersync.Status `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// SyncStatus fetches the peer's view of its sync state.
func (c *Client) SyncStatus(ctx context.Context) (*usersync.Status, error) {
	body, err := c.do(ctx, http.MethodGet, "/api/users/sync-status", nil, nil)
	if err != nil {
		return nil, err
	}

	var resp syncStatusResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("peer returned malformed status response: %w", err)
	}
	if !resp.Success {
		return nil, peerError(resp.Error)
	}
	return &resp.Data, nil
}

type cleanupRequest struct {
	BatchID string `json:"batch_id"`
}

type cleanupResponse struct {
	Success bool `json:"success"`
	Data    struct {
		DeletedCount int `json:"deleted_count"`
	} `json:"data"`
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// CleanupBatch asks the peer to drop its copies of one creation batch.
// Implements the lifecycle service's peer cascade.
func (c *Client) CleanupBatch(ctx context.Context, batchID uuid.UUID) (int, error) {
	reqBody, err := json.Marshal(cleanupRequest{BatchID: batchID.String()})
	if err != nil {
		return 0, err
	}

	body, err := c.do(ctx, http.MethodPost, "/api/users/cleanup", reqBody,
		map[string]string{"Content-Type": "application/json"})
	if err != nil {
		return 0, err
	}

	var resp cleanupResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return 0, fmt.Errorf("peer returned malformed cleanup response: %w", err)
	}
	if !resp.Success {
		return 0, peerError(resp.Error)
	}
	return resp.Data.DeletedCount, nil
}

// do performs one request with retries on transport errors and 5xx.
func (c *Client) do(ctx context.Context, method, path string, body []byte, headers map[string]string) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt < c.retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(c.backoff):
			}
			c.logger.Debug("retrying peer request",
				zap.String("path", path),
				zap.Int("attempt", attempt+1))
		}

		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		for k, v := range headers {
			req.Header.Set(k, v)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			lastErr = err
			continue
		}

		respBody, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			lastErr = readErr
			continue
		}

		if resp.StatusCode >= http.StatusInternalServerError {
			lastErr = fmt.Errorf("peer responded %d", resp.StatusCode)
			continue
		}
		return respBody, nil
	}
	return nil, shared.NewDomainError("CONNECTIVITY",
		fmt.Sprintf("peer unreachable after %d attempts: %s", c.retries, lastErr))
}

func peerError(e *struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}) error {
	if e == nil {
		return shared.NewDomainError("CONNECTIVITY", "peer rejected the request without detail")
	}
	return shared.NewDomainError(e.Code, e.Message)
}

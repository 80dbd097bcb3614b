package api

import (
	"context"
	stderrors "errors"
	"math"
	"math/rand"
	"strconv"
	"time"

	"github.com/dl-alexandre/docsync/internal/errors"
	"github.com/dl-alexandre/docsync/internal/logging"
	"github.com/dl-alexandre/docsync/internal/types"
	"github.com/dl-alexandre/docsync/internal/utils"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"google.golang.org/api/googleapi"
)

// Client runs document service calls with bounded retries and error
// classification. It carries no service handle; callers pass closures.
type Client struct {
	service    string
	maxRetries int
	retryDelay time.Duration
	clock      clockwork.Clock
	logger     logging.Logger
}

// NewClient creates a retrying client for the named service
func NewClient(service string, maxRetries int, retryDelayMs int, logger logging.Logger) *Client {
	if logger == nil {
		logger = logging.NewNoOpLogger()
	}
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &Client{
		service:    service,
		maxRetries: maxRetries,
		retryDelay: time.Duration(retryDelayMs) * time.Millisecond,
		clock:      clockwork.NewRealClock(),
		logger:     logger,
	}
}

// WithClock returns a copy of the client that sleeps on clock
func (c *Client) WithClock(clock clockwork.Clock) *Client {
	cp := *c
	cp.clock = clock
	return &cp
}

// MaxRetries returns the configured retry bound
func (c *Client) MaxRetries() int {
	return c.maxRetries
}

// Clock returns the clock used for backoff sleeps
func (c *Client) Clock() clockwork.Clock {
	return c.clock
}

// Logger returns the client's logger
func (c *Client) Logger() logging.Logger {
	return c.logger
}

// NewRequestContext creates a new request context with trace ID
func NewRequestContext(accountKey string, folderID string, requestType types.RequestType) *types.RequestContext {
	return &types.RequestContext{
		AccountKey:  accountKey,
		FolderID:    folderID,
		NodeIDs:     []string{},
		RequestType: requestType,
		TraceID:     uuid.New().String(),
	}
}

// WithNodeIDs adds node IDs to the request context
func WithNodeIDs(ctx *types.RequestContext, nodeIDs ...string) *types.RequestContext {
	ctx.NodeIDs = append(ctx.NodeIDs, nodeIDs...)
	return ctx
}

// ExecuteWithRetry runs fn until it succeeds, fails with a non-retryable
// error, or the retry bound is exhausted. Every returned error is classified.
func ExecuteWithRetry[T any](ctx context.Context, client *Client, reqCtx *types.RequestContext, fn func() (T, error)) (T, error) {
	var result T
	var lastErr error

	logger := client.logger.WithTraceID(reqCtx.TraceID)
	logger.Debug("remote operation starting",
		logging.F("requestType", reqCtx.RequestType),
		logging.F("folderId", reqCtx.FolderID),
		logging.F("nodeIds", reqCtx.NodeIDs),
	)

	start := client.clock.Now()

	for attempt := 0; attempt <= client.maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return result, classifyError(client.service, err, reqCtx, client.logger)
		}
		if attempt > 0 {
			logger.Warn("retrying remote operation",
				logging.F("attempt", attempt),
				logging.F("maxRetries", client.maxRetries),
			)
		}

		result, lastErr = fn()
		if lastErr == nil {
			logger.Debug("remote operation completed",
				logging.F("duration_ms", client.clock.Since(start).Milliseconds()),
				logging.F("attempts", attempt+1),
			)
			return result, nil
		}

		classified := classifyError(client.service, lastErr, reqCtx, client.logger)
		if !utils.IsRetryable(classified) {
			logger.Debug("remote operation failed (non-retryable)",
				logging.F("duration_ms", client.clock.Since(start).Milliseconds()),
				logging.F("error", lastErr.Error()),
				logging.F("attempts", attempt+1),
			)
			return result, classified
		}
		lastErr = classified

		if attempt < client.maxRetries {
			delay := calculateBackoff(client.retryDelay, attempt, lastErr)
			logger.Warn("remote operation failed (retryable)",
				logging.F("attempt", attempt+1),
				logging.F("delay_ms", delay.Milliseconds()),
				logging.F("error", lastErr.Error()),
			)
			if err := Sleep(ctx, client.clock, delay); err != nil {
				return result, classifyError(client.service, err, reqCtx, client.logger)
			}
		}
	}

	logger.Error("remote operation failed after max retries",
		logging.F("duration_ms", client.clock.Since(start).Milliseconds()),
		logging.F("attempts", client.maxRetries+1),
		logging.F("error", lastErr.Error()),
	)

	return result, lastErr
}

// Sleep waits for d on clock, returning early with ctx's error on cancellation
func Sleep(ctx context.Context, clock clockwork.Clock, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-clock.After(d):
		return nil
	}
}

// Backoff returns the jittered delay before retry number attempt
func (c *Client) Backoff(attempt int, err error) time.Duration {
	return calculateBackoff(c.retryDelay, attempt, err)
}

// calculateBackoff calculates the retry delay with exponential backoff
func calculateBackoff(baseDelay time.Duration, attempt int, err error) time.Duration {
	maxDelay := time.Duration(utils.MaxRetryDelayMs) * time.Millisecond

	var apiErr *googleapi.Error
	if stderrors.As(err, &apiErr) && apiErr.Header != nil {
		if retryAfter := apiErr.Header.Get("Retry-After"); retryAfter != "" {
			if seconds, err := strconv.Atoi(retryAfter); err == nil {
				delay := time.Duration(seconds) * time.Second
				if delay > maxDelay {
					return maxDelay
				}
				return delay
			}
		}
	}

	if baseDelay <= 0 {
		return 0
	}

	// Exponential backoff: base * 2^attempt
	delay := baseDelay * time.Duration(math.Pow(2, float64(attempt)))
	if delay > maxDelay || delay <= 0 {
		delay = maxDelay
	}

	// Add jitter (±25% of delay)
	jitterRange := delay / 4
	if jitterRange > 0 {
		jitter := time.Duration(rand.Int63n(int64(jitterRange*2))) - jitterRange
		delay = delay + jitter
	}

	if delay < 0 {
		delay = baseDelay
	}

	return delay
}

// classifyError converts service errors to application errors
func classifyError(service string, err error, reqCtx *types.RequestContext, logger logging.Logger) error {
	return errors.Classify(service, err, reqCtx, logger)
}

package api

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/dl-alexandre/docsync/internal/logging"
	"github.com/dl-alexandre/docsync/internal/types"
	"github.com/dl-alexandre/docsync/internal/utils"
	"github.com/jonboulle/clockwork"
	"google.golang.org/api/googleapi"
)

func newTestClient(maxRetries int) *Client {
	return NewClient("test", maxRetries, 0, logging.NewNoOpLogger())
}

func TestExecuteWithRetry_SucceedsAfterTransientFailures(t *testing.T) {
	client := newTestClient(3)
	reqCtx := NewRequestContext("acct", "folder", types.RequestTypeList)

	calls := 0
	got, err := ExecuteWithRetry(context.Background(), client, reqCtx, func() (string, error) {
		calls++
		if calls < 3 {
			return "", &googleapi.Error{Code: 503}
		}
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("ExecuteWithRetry() error = %v", err)
	}
	if got != "ok" {
		t.Errorf("result = %q, want ok", got)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestExecuteWithRetry_NonRetryableStopsImmediately(t *testing.T) {
	client := newTestClient(5)
	reqCtx := NewRequestContext("acct", "folder", types.RequestTypeMutation)

	calls := 0
	_, err := ExecuteWithRetry(context.Background(), client, reqCtx, func() (struct{}, error) {
		calls++
		return struct{}{}, &googleapi.Error{Code: 403, Message: "insufficient permissions"}
	})
	if !utils.IsCode(err, utils.ErrCodePermissionDenied) {
		t.Fatalf("error = %v, want PERMISSION_DENIED", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestExecuteWithRetry_ExhaustsRetries(t *testing.T) {
	client := newTestClient(2)
	reqCtx := NewRequestContext("acct", "folder", types.RequestTypeDownload)

	calls := 0
	_, err := ExecuteWithRetry(context.Background(), client, reqCtx, func() (int, error) {
		calls++
		return 0, &googleapi.Error{Code: 500}
	})
	if !utils.IsCode(err, utils.ErrCodeNetworkError) {
		t.Fatalf("error = %v, want NETWORK_ERROR", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestExecuteWithRetry_WaitsOnClock(t *testing.T) {
	clock := clockwork.NewFakeClock()
	client := NewClient("test", 1, 1000, logging.NewNoOpLogger()).WithClock(clock)
	reqCtx := NewRequestContext("acct", "folder", types.RequestTypeList)

	done := make(chan error, 1)
	calls := 0
	go func() {
		_, err := ExecuteWithRetry(context.Background(), client, reqCtx, func() (int, error) {
			calls++
			if calls == 1 {
				return 0, &googleapi.Error{Code: 429}
			}
			return 1, nil
		})
		done <- err
	}()

	clock.BlockUntil(1)
	clock.Advance(2 * time.Second)

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("ExecuteWithRetry() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("ExecuteWithRetry did not resume after the clock advanced")
	}
}

func TestExecuteWithRetry_Cancelled(t *testing.T) {
	client := newTestClient(3)
	reqCtx := NewRequestContext("acct", "folder", types.RequestTypeList)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := ExecuteWithRetry(ctx, client, reqCtx, func() (int, error) {
		t.Fatal("fn must not run on a cancelled context")
		return 0, nil
	})
	if !utils.IsCode(err, utils.ErrCodeCancelled) {
		t.Errorf("error = %v, want CANCELLED", err)
	}
}

func TestCalculateBackoff(t *testing.T) {
	base := time.Second
	for attempt := 0; attempt < 4; attempt++ {
		want := base * time.Duration(1<<attempt)
		got := calculateBackoff(base, attempt, nil)
		if got < want*3/4 || got > want*5/4 {
			t.Errorf("attempt %d: backoff %v outside [%v, %v]", attempt, got, want*3/4, want*5/4)
		}
	}

	capped := calculateBackoff(base, 20, nil)
	maxDelay := time.Duration(utils.MaxRetryDelayMs) * time.Millisecond
	if capped > maxDelay*5/4 {
		t.Errorf("backoff %v exceeds cap", capped)
	}

	header := http.Header{}
	header.Set("Retry-After", "7")
	if got := calculateBackoff(base, 0, &googleapi.Error{Code: 429, Header: header}); got != 7*time.Second {
		t.Errorf("Retry-After backoff = %v, want 7s", got)
	}
}

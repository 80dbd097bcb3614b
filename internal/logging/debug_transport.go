package logging

import (
	"net/http"
	"time"
)

// DebugTransport logs method, URL, status and latency of each HTTP request.
// Authorization headers never reach the log.
type DebugTransport struct {
	base   http.RoundTripper
	logger Logger
}

// NewDebugTransport wraps base, or http.DefaultTransport when base is nil
func NewDebugTransport(base http.RoundTripper, logger Logger) *DebugTransport {
	if base == nil {
		base = http.DefaultTransport
	}
	return &DebugTransport{base: base, logger: logger}
}

// Wrap returns a copy of t that delegates to base
func (t *DebugTransport) Wrap(base http.RoundTripper) *DebugTransport {
	return NewDebugTransport(base, t.logger)
}

func (t *DebugTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	logger := t.logger.WithContext(req.Context())
	start := time.Now()

	logger.Debug("http request",
		F("method", req.Method),
		F("url", redactSensitiveData(req.URL.String())),
		F("hasAuth", req.Header.Get("Authorization") != ""),
	)

	resp, err := t.base.RoundTrip(req)
	elapsed := time.Since(start)
	if err != nil {
		logger.Debug("http request failed",
			F("method", req.Method),
			F("error", err.Error()),
			F("latencyMs", elapsed.Milliseconds()),
		)
		return nil, err
	}

	logger.Debug("http response",
		F("method", req.Method),
		F("status", resp.StatusCode),
		F("latencyMs", elapsed.Milliseconds()),
	)
	return resp, nil
}

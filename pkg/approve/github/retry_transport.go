package github

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/codeGROOVE-dev/retry"
)

const (
	// retryAttempts is the maximum number of attempts per request.
	retryAttempts = 5
	// retryDelay is the initial retry delay.
	retryDelay = 500 * time.Millisecond
	// retryMaxDelay caps the backoff so webhook deliveries answer within
	// GitHub's delivery timeout.
	retryMaxDelay = 5 * time.Second
	// retryMaxJitter adds randomness to prevent thundering herd.
	retryMaxJitter = 500 * time.Millisecond
	// maxRequestSize limits buffered request body size.
	maxRequestSize = 1 * 1024 * 1024 // 1MB
)

// RetryTransport wraps an http.RoundTripper with exponential backoff and
// jitter for transient GitHub failures: 429s, 5xx responses, and 403s that
// are really rate limits. When attempts run out on a retryable status, the
// final response is delivered to the caller so its status and body can be
// reported normally.
type RetryTransport struct {
	Base http.RoundTripper
}

// retryReason classifies a response, returning "" for responses that should
// be delivered as-is.
func retryReason(resp *http.Response) string {
	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return "rate limited"
	case resp.StatusCode >= 500 && resp.StatusCode < 600:
		return "server error"
	case resp.StatusCode == http.StatusForbidden && resp.Header.Get("X-Ratelimit-Remaining") == "0":
		return "GitHub rate limit exceeded"
	default:
		return ""
	}
}

// RoundTrip implements the http.RoundTripper interface with retry logic.
func (t *RetryTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}

	// Buffer the request body once so each attempt can replay it.
	var bodyBytes []byte
	if req.Body != nil {
		var err error
		bodyBytes, err = io.ReadAll(io.LimitReader(req.Body, maxRequestSize))
		if err != nil {
			return nil, err
		}
		if closeErr := req.Body.Close(); closeErr != nil {
			slog.DebugContext(req.Context(), "failed to close request body", "error", closeErr, "url", req.URL.String())
		}
	}

	var resp *http.Response
	var lastStatus *retryableError

	err := retry.Do(
		func() error { //nolint:contextcheck // Context is accessed via closure from req.Context()
			if bodyBytes != nil {
				req.Body = io.NopCloser(bytes.NewReader(bodyBytes))
			}

			var err error
			resp, err = base.RoundTrip(req) //nolint:bodyclose // Response body is handled by the caller on success
			if err != nil {
				lastStatus = nil
				return err
			}

			reason := retryReason(resp)
			if reason == "" {
				lastStatus = nil
				return nil
			}

			// Buffer the body so the response stays readable if this turns
			// out to be the final attempt.
			buffered, readErr := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
			if readErr != nil {
				buffered = nil
			}
			if closeErr := resp.Body.Close(); closeErr != nil {
				slog.DebugContext(req.Context(), "failed to close response body for retry", "error", closeErr)
			}
			resp.Body = io.NopCloser(bytes.NewReader(buffered))

			slog.InfoContext(req.Context(), "HTTP request will be retried",
				"status", resp.StatusCode,
				"url", req.URL.String(),
				"reason", reason)
			lastStatus = &retryableError{StatusCode: resp.StatusCode}
			return lastStatus
		},
		retry.Context(req.Context()),
		retry.Attempts(retryAttempts),
		retry.Delay(retryDelay),
		retry.MaxDelay(retryMaxDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.MaxJitter(retryMaxJitter),
		retry.RetryIf(func(err error) bool {
			var retryErr *retryableError
			return errors.As(err, &retryErr)
		}),
	)
	if err != nil {
		if lastStatus != nil && resp != nil {
			// Attempts exhausted on an HTTP status; the buffered final
			// response carries the details.
			return resp, nil
		}
		return nil, err
	}

	return resp, nil
}

// retryableError indicates a response status that should be retried.
type retryableError struct {
	StatusCode int
}

func (e *retryableError) Error() string {
	return http.StatusText(e.StatusCode)
}

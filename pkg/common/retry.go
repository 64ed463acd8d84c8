package common

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"slices"
	"time"

	"github.com/raterudder/zeverrelay/pkg/log"
)

// RetryPolicy controls how the client retries transient failures.
type RetryPolicy struct {
	// Retries is the number of retries after the first attempt so at most
	// Retries+1 requests are sent.
	Retries int
	// BackoffFactor in seconds. The delay before retry n is
	// BackoffFactor * 2^(n-1).
	BackoffFactor float64
	// StatusForcelist are the response codes that are retried.
	StatusForcelist []int
	// Timeout applies to each attempt individually.
	Timeout time.Duration
}

// DefaultRetryPolicy returns 3 retries with a 0.3s backoff factor on 500, 502
// and 504 and a 5 second timeout per attempt.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		Retries:         3,
		BackoffFactor:   0.3,
		StatusForcelist: []int{http.StatusInternalServerError, http.StatusBadGateway, http.StatusGatewayTimeout},
		Timeout:         5 * time.Second,
	}
}

// Backoff returns the delay before the given retry, starting at 1.
func (p RetryPolicy) Backoff(retry int) time.Duration {
	if retry < 1 || p.BackoffFactor <= 0 {
		return 0
	}
	secs := p.BackoffFactor * math.Pow(2, float64(retry-1))
	return time.Duration(secs * float64(time.Second))
}

func (p RetryPolicy) retryableStatus(code int) bool {
	return slices.Contains(p.StatusForcelist, code)
}

type retryTransport struct {
	transport http.RoundTripper
	policy    RetryPolicy
	sleep     func(ctx context.Context, d time.Duration) error
}

func newRetryTransport(transport http.RoundTripper, policy RetryPolicy) *retryTransport {
	return &retryTransport{
		transport: transport,
		policy:    policy,
		sleep:     Sleep,
	}
}

// RoundTrip implements http.RoundTripper. Once retries are exhausted the last
// response or error is returned as-is.
func (t *retryTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	replayable := req.Body == nil || req.Body == http.NoBody || req.GetBody != nil

	attemptReq := req
	for attempt := 0; ; attempt++ {
		if attempt > 0 {
			var err error
			attemptReq, err = rewindBody(req)
			if err != nil {
				return nil, err
			}
		}

		resp, err := t.roundTrip(attemptReq)
		if attempt >= t.policy.Retries || !replayable || !t.shouldRetry(ctx, resp, err) {
			return resp, err
		}

		delay := t.policy.Backoff(attempt + 1)
		attrs := []any{
			slog.String("method", req.Method),
			slog.String("url", req.URL.Redacted()),
			slog.Int("retry", attempt+1),
			slog.Duration("delay", delay),
		}
		if err != nil {
			attrs = append(attrs, slog.Any("error", err))
		} else {
			attrs = append(attrs, slog.Int("status", resp.StatusCode))
			// drain so the connection can be reused
			_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
			resp.Body.Close()
		}
		log.Ctx(ctx).DebugContext(ctx, "retrying request", attrs...)

		if err := t.sleep(ctx, delay); err != nil {
			return nil, err
		}
	}
}

func (t *retryTransport) shouldRetry(ctx context.Context, resp *http.Response, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	if err != nil {
		switch Classify(err) {
		case ErrorKindTimeout, ErrorKindConnection:
			return true
		default:
			return false
		}
	}
	return t.policy.retryableStatus(resp.StatusCode)
}

func (t *retryTransport) roundTrip(req *http.Request) (*http.Response, error) {
	if t.policy.Timeout <= 0 {
		return t.transport.RoundTrip(req)
	}
	ctx, cancel := context.WithTimeout(req.Context(), t.policy.Timeout)
	resp, err := t.transport.RoundTrip(req.WithContext(ctx))
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded && req.Context().Err() == nil {
			err = &attemptTimeoutError{timeout: t.policy.Timeout, err: err}
		}
		cancel()
		return nil, err
	}
	// the attempt deadline also covers reading the body
	resp.Body = &cancelOnClose{ReadCloser: resp.Body, cancel: cancel}
	return resp, nil
}

// attemptTimeoutError implements net.Error so it is classified as a timeout
// no matter how the underlying transport reported the cancellation.
type attemptTimeoutError struct {
	timeout time.Duration
	err     error
}

func (e *attemptTimeoutError) Error() string {
	return fmt.Sprintf("request timed out after %s: %v", e.timeout, e.err)
}

func (e *attemptTimeoutError) Unwrap() error   { return e.err }
func (e *attemptTimeoutError) Timeout() bool   { return true }
func (e *attemptTimeoutError) Temporary() bool { return true }

type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelOnClose) Close() error {
	err := c.ReadCloser.Close()
	c.cancel()
	return err
}

func rewindBody(req *http.Request) (*http.Request, error) {
	if req.Body == nil || req.Body == http.NoBody {
		return req, nil
	}
	if req.GetBody == nil {
		return nil, errors.New("request body cannot be replayed")
	}
	body, err := req.GetBody()
	if err != nil {
		return nil, err
	}
	r := req.Clone(req.Context())
	r.Body = body
	return r, nil
}

// Sleep waits for d or until ctx is done, whichever happens first.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

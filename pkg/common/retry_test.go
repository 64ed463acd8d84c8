package common

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingTransport struct {
	transport http.RoundTripper
	count     atomic.Int32
}

func (c *countingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	c.count.Add(1)
	return c.transport.RoundTrip(req)
}

func newTestClient(policy RetryPolicy) (*http.Client, *countingTransport, *[]time.Duration) {
	var delays []time.Duration
	counter := &countingTransport{transport: http.DefaultTransport}
	rt := newRetryTransport(counter, policy)
	rt.sleep = func(ctx context.Context, d time.Duration) error {
		delays = append(delays, d)
		return ctx.Err()
	}
	return &http.Client{Transport: rt}, counter, &delays
}

func TestRetryPolicyBackoff(t *testing.T) {
	p := DefaultRetryPolicy()
	assert.Equal(t, time.Duration(0), p.Backoff(0))
	assert.InDelta(t, float64(300*time.Millisecond), float64(p.Backoff(1)), float64(time.Millisecond))
	assert.InDelta(t, float64(600*time.Millisecond), float64(p.Backoff(2)), float64(time.Millisecond))
	assert.InDelta(t, float64(1200*time.Millisecond), float64(p.Backoff(3)), float64(time.Millisecond))

	p.BackoffFactor = 0
	assert.Equal(t, time.Duration(0), p.Backoff(2))
}

func TestRetryTransport(t *testing.T) {
	for _, code := range []int{http.StatusInternalServerError, http.StatusBadGateway, http.StatusGatewayTimeout} {
		t.Run(fmt.Sprintf("retries status %d", code), func(t *testing.T) {
			ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(code)
				_, _ = w.Write([]byte("upstream broken"))
			}))
			defer ts.Close()

			client, counter, delays := newTestClient(DefaultRetryPolicy())
			resp, err := client.Get(ts.URL)
			require.NoError(t, err, "exhausted retries return the last response")
			defer resp.Body.Close()

			assert.Equal(t, code, resp.StatusCode)
			body, err := io.ReadAll(resp.Body)
			require.NoError(t, err)
			assert.Equal(t, "upstream broken", string(body))

			assert.EqualValues(t, 4, counter.count.Load(), "one attempt plus 3 retries")
			require.Len(t, *delays, 3)
			assert.InDelta(t, float64(300*time.Millisecond), float64((*delays)[0]), float64(time.Millisecond))
			assert.InDelta(t, float64(600*time.Millisecond), float64((*delays)[1]), float64(time.Millisecond))
			assert.InDelta(t, float64(1200*time.Millisecond), float64((*delays)[2]), float64(time.Millisecond))
		})
	}

	for _, code := range []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusNotFound, http.StatusServiceUnavailable} {
		t.Run(fmt.Sprintf("does not retry status %d", code), func(t *testing.T) {
			ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(code)
			}))
			defer ts.Close()

			client, counter, delays := newTestClient(DefaultRetryPolicy())
			resp, err := client.Get(ts.URL)
			require.NoError(t, err)
			resp.Body.Close()

			assert.Equal(t, code, resp.StatusCode)
			assert.EqualValues(t, 1, counter.count.Load())
			assert.Empty(t, *delays)
		})
	}

	t.Run("custom retries", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer ts.Close()

		policy := DefaultRetryPolicy()
		policy.Retries = 1
		client, counter, _ := newTestClient(policy)
		resp, err := client.Get(ts.URL)
		require.NoError(t, err)
		resp.Body.Close()
		assert.EqualValues(t, 2, counter.count.Load())

		policy.Retries = 0
		client, counter, _ = newTestClient(policy)
		resp, err = client.Get(ts.URL)
		require.NoError(t, err)
		resp.Body.Close()
		assert.EqualValues(t, 1, counter.count.Load())
	})

	t.Run("recovers after transient failures", func(t *testing.T) {
		var requests atomic.Int32
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if requests.Add(1) <= 2 {
				w.WriteHeader(http.StatusBadGateway)
				return
			}
			_, _ = w.Write([]byte("ok"))
		}))
		defer ts.Close()

		client, counter, delays := newTestClient(DefaultRetryPolicy())
		resp, err := client.Get(ts.URL)
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.EqualValues(t, 3, counter.count.Load())
		assert.Len(t, *delays, 2)
	})

	t.Run("connection refused", func(t *testing.T) {
		ts := httptest.NewServer(http.NotFoundHandler())
		addr := ts.URL
		ts.Close()

		client, counter, delays := newTestClient(DefaultRetryPolicy())
		_, err := client.Get(addr)
		require.Error(t, err)

		assert.Equal(t, ErrorKindConnection, Classify(err))
		assert.EqualValues(t, 4, counter.count.Load())
		assert.Len(t, *delays, 3)
	})

	t.Run("replays post body", func(t *testing.T) {
		var requests atomic.Int32
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.NoError(t, r.ParseForm())
			assert.Equal(t, "4030", r.PostForm.Get("v1"))
			if requests.Add(1) == 1 {
				w.WriteHeader(http.StatusInternalServerError)
				return
			}
			w.WriteHeader(http.StatusOK)
		}))
		defer ts.Close()

		client, counter, _ := newTestClient(DefaultRetryPolicy())
		resp, err := client.PostForm(ts.URL, url.Values{"v1": {"4030"}})
		require.NoError(t, err)
		resp.Body.Close()

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.EqualValues(t, 2, counter.count.Load())
	})

	t.Run("timeout per attempt", func(t *testing.T) {
		var requests atomic.Int32
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if requests.Add(1) == 1 {
				select {
				case <-r.Context().Done():
				case <-time.After(2 * time.Second):
				}
				return
			}
			_, _ = w.Write([]byte("ok"))
		}))
		defer ts.Close()

		policy := DefaultRetryPolicy()
		policy.Timeout = 100 * time.Millisecond
		client, counter, delays := newTestClient(policy)
		resp, err := client.Get(ts.URL)
		require.NoError(t, err)
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		assert.Equal(t, "ok", string(body))
		assert.EqualValues(t, 2, counter.count.Load())
		assert.Len(t, *delays, 1)
	})

	t.Run("timeout exhausted", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-r.Context().Done():
			case <-time.After(2 * time.Second):
			}
		}))
		defer ts.Close()

		policy := DefaultRetryPolicy()
		policy.Retries = 1
		policy.Timeout = 50 * time.Millisecond
		client, counter, _ := newTestClient(policy)
		_, err := client.Get(ts.URL)
		require.Error(t, err)
		assert.Equal(t, ErrorKindTimeout, Classify(err))
		assert.EqualValues(t, 2, counter.count.Load())
	})

	t.Run("cancelled context is not retried", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer ts.Close()

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		client, _, delays := newTestClient(DefaultRetryPolicy())
		req, err := http.NewRequestWithContext(ctx, "GET", ts.URL, nil)
		require.NoError(t, err)
		_, err = client.Do(req)
		require.Error(t, err)
		assert.ErrorIs(t, err, context.Canceled)
		assert.Empty(t, *delays)
	})
}

func TestClassify(t *testing.T) {
	assert.Equal(t, ErrorKindNone, Classify(nil))
	assert.Equal(t, ErrorKindHTTP, Classify(fmt.Errorf("fetch: %w", &StatusError{StatusCode: 500})))
	assert.Equal(t, ErrorKindTimeout, Classify(&url.Error{Op: "Get", URL: "http://x", Err: context.DeadlineExceeded}))
	assert.Equal(t, ErrorKindConnection, Classify(&url.Error{
		Op:  "Get",
		URL: "http://x",
		Err: &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")},
	}))
	assert.Equal(t, ErrorKindConnection, Classify(io.ErrUnexpectedEOF))
	assert.Equal(t, ErrorKindOther, Classify(errors.New("boom")))
	assert.Equal(t, ErrorKindOther, Classify(context.Canceled))
}

func TestCheckResponse(t *testing.T) {
	assert.NoError(t, CheckResponse(&http.Response{StatusCode: http.StatusOK}))
	assert.NoError(t, CheckResponse(&http.Response{StatusCode: http.StatusNoContent}))

	err := CheckResponse(&http.Response{StatusCode: http.StatusBadRequest, Status: "400 Bad Request"})
	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusBadRequest, statusErr.StatusCode)
	assert.True(t, strings.Contains(err.Error(), "400"))
}

func TestSleep(t *testing.T) {
	require.NoError(t, Sleep(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, Sleep(ctx, time.Hour), context.Canceled)
}

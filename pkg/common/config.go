package common

import (
	"fmt"

	"github.com/levenlabs/go-lflag"
)

// ConfiguredRetryPolicy registers the flags that tune the retrying http client
// and returns the policy that is filled in once flags are parsed.
func ConfiguredRetryPolicy() *RetryPolicy {
	p := DefaultRetryPolicy()

	retries := p.Retries
	lflag.JSON(&retries, "http-retries", retries, "Number of times a failed request is retried")
	backoffFactor := p.BackoffFactor
	lflag.JSON(&backoffFactor, "http-backoff-factor", backoffFactor, "Backoff factor in seconds, retry n waits factor*2^(n-1)")
	statuses := p.StatusForcelist
	lflag.JSON(&statuses, "http-retry-statuses", statuses, "JSON list of response status codes that are retried")
	timeout := lflag.Duration("http-timeout", p.Timeout, "Timeout for each individual request attempt")

	lflag.Do(func() {
		if retries < 0 {
			panic(fmt.Sprintf("http-retries cannot be negative: %d", retries))
		}
		p.Retries = retries
		p.BackoffFactor = backoffFactor
		p.StatusForcelist = statuses
		p.Timeout = *timeout
	})

	return &p
}

package common

import (
	_ "embed"
	"net/http"
	"strings"
)

//go:embed VERSION
var version string

type userAgentTransport struct {
	transport http.RoundTripper
	userAgent string
}

// RoundTrip implements http.RoundTripper and sets the User-Agent header.
func (t *userAgentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	// Clone the request to avoid modifying the original request's headers
	// which might be shared or reused
	req = req.Clone(req.Context())
	req.Header.Set("User-Agent", t.userAgent)
	return t.transport.RoundTrip(req)
}

// UserAgent returns the User-Agent sent with every request.
func UserAgent() string {
	return "ZeverRelay/" + strings.TrimSpace(version)
}

// HTTPClient returns an http client that retries transient failures according
// to policy and sets a default user-agent. The timeout in the policy applies
// to each attempt rather than to the client as a whole so the client itself
// has no Timeout set.
func HTTPClient(policy RetryPolicy) *http.Client {
	return &http.Client{
		Transport: &userAgentTransport{
			transport: newRetryTransport(http.DefaultTransport, policy),
			userAgent: UserAgent(),
		},
	}
}

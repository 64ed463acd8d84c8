package common

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"syscall"
)

// StatusError is returned when a response has a non-2xx status.
type StatusError struct {
	StatusCode int
	Status     string
}

func (e *StatusError) Error() string {
	if e.Status != "" {
		return fmt.Sprintf("status %s", e.Status)
	}
	return fmt.Sprintf("status %d", e.StatusCode)
}

// CheckResponse returns a *StatusError if resp does not have a 2xx status.
func CheckResponse(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	return &StatusError{
		StatusCode: resp.StatusCode,
		Status:     resp.Status,
	}
}

// ErrorKind is the broad class of a failed call.
type ErrorKind int

const (
	ErrorKindNone ErrorKind = iota
	ErrorKindHTTP
	ErrorKindTimeout
	ErrorKindConnection
	ErrorKindOther
)

func (k ErrorKind) String() string {
	switch k {
	case ErrorKindNone:
		return "none"
	case ErrorKindHTTP:
		return "http"
	case ErrorKindTimeout:
		return "timeout"
	case ErrorKindConnection:
		return "connection"
	default:
		return "other"
	}
}

// Classify returns the kind of error err is so callers can react per class.
func Classify(err error) ErrorKind {
	if err == nil {
		return ErrorKindNone
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return ErrorKindHTTP
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return ErrorKindTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrorKindTimeout
	}

	var opErr *net.OpError
	var dnsErr *net.DNSError
	switch {
	case errors.As(err, &opErr),
		errors.As(err, &dnsErr),
		errors.Is(err, syscall.ECONNREFUSED),
		errors.Is(err, syscall.ECONNRESET),
		errors.Is(err, io.EOF),
		errors.Is(err, io.ErrUnexpectedEOF):
		return ErrorKindConnection
	}
	return ErrorKindOther
}

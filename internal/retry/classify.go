// Package retry runs a single remote operation under a time-bounded retry budget.
package retry

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
	"syscall"
)

// Class is the retry classification of an error.
type Class int

const (
	// Fatal errors are propagated immediately.
	Fatal Class = iota
	// Retryable errors are retried while attempts and budget remain.
	Retryable
	// Canceled means the caller gave up; never retried.
	Canceled
)

func (c Class) String() string {
	switch c {
	case Retryable:
		return "retryable"
	case Canceled:
		return "canceled"
	default:
		return "fatal"
	}
}

// StatusCoder is implemented by upstream errors that carry an HTTP status.
type StatusCoder interface {
	HTTPStatus() int
}

type classified struct {
	err   error
	class Class
}

func (c *classified) Error() string { return c.err.Error() }
func (c *classified) Unwrap() error { return c.err }

// MarkRetryable forces err to be classified as retryable.
func MarkRetryable(err error) error {
	if err == nil {
		return nil
	}
	return &classified{err: err, class: Retryable}
}

// MarkFatal forces err to be classified as fatal.
func MarkFatal(err error) error {
	if err == nil {
		return nil
	}
	return &classified{err: err, class: Fatal}
}

// Classify decides whether err is worth another attempt.
// Retryable: connection reset/refused, timeouts, DNS failures, 408/429, any 5xx.
func Classify(err error) Class {
	if err == nil {
		return Fatal
	}
	var c *classified
	if errors.As(err, &c) {
		return c.class
	}
	if errors.Is(err, context.Canceled) {
		return Canceled
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return Retryable
	}

	var sc StatusCoder
	if errors.As(err, &sc) {
		return classifyStatus(sc.HTTPStatus())
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return Retryable
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return Retryable
	}
	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.EPIPE) || errors.Is(err, io.ErrUnexpectedEOF) {
		return Retryable
	}
	if isConnectionMessage(err.Error()) {
		return Retryable
	}
	return Fatal
}

func classifyStatus(code int) Class {
	switch {
	case code == http.StatusTooManyRequests, code == http.StatusRequestTimeout:
		return Retryable
	case code >= 500:
		return Retryable
	default:
		return Fatal
	}
}

// isConnectionMessage catches transport errors that arrive as plain strings.
func isConnectionMessage(msg string) bool {
	msg = strings.ToLower(msg)
	return strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "no such host") ||
		strings.Contains(msg, "rate limit") ||
		strings.Contains(msg, "timeout")
}

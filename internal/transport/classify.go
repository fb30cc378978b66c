package transport

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"strings"

	"github.com/ligun0805/salekit/internal/chain"
)

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as a property of the request rather than the endpoint,
// so Do stops failing over and returns err as is.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// RateLimited reports throttling: HTTP 429, -32005 or a provider's own
// "rate limit" / "circuit breaker" wording.
func RateLimited(err error) bool {
	if err == nil {
		return false
	}
	if chain.HTTPStatus(err) == 429 || chain.ErrorCode(err) == -32005 {
		return true
	}
	s := strings.ToLower(err.Error())
	return strings.Contains(s, "too many requests") ||
		strings.Contains(s, "rate limit") ||
		strings.Contains(s, "ratelimit") ||
		strings.Contains(s, "circuit breaker")
}

// Retryable reports whether err is transient enough to be worth a backoff
// before the next attempt. Anything else fails over immediately.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}
	var se *json.SyntaxError
	if errors.As(err, &se) {
		return true
	}
	if RateLimited(err) {
		return true
	}
	switch chain.ErrorCode(err) {
	case -32603, -32000, -32002:
		return true
	}
	s := strings.ToLower(err.Error())
	for _, frag := range []string{"timeout", "timed out", "invalid character", "unexpected eof", "unexpected end of json", "internal error"} {
		if strings.Contains(s, frag) {
			return true
		}
	}
	return false
}

// outcome buckets an attempt result for metrics.
func outcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case chain.ErrorCode(err) != 0 || chain.HTTPStatus(err) != 0:
		return "rpc_error"
	}
	return "exception"
}

package main

import (
	"errors"
	"strings"

	"github.com/ligun0805/salekit/internal/saleerr"
)

// friendlyErr shortens the node noise that commonly wraps a failure.
func friendlyErr(err error) string {
	var rev *saleerr.RevertError
	if errors.As(err, &rev) && !errors.Is(err, saleerr.ErrConfirmationFailed) {
		return rev.Error()
	}
	s := err.Error()
	ls := strings.ToLower(s)
	switch {
	case strings.Contains(ls, "invalid character '<'"):
		return "non-JSON/HTML response from endpoint (proxy or captcha page?)"
	case strings.Contains(ls, "no such host"), strings.Contains(ls, "dial tcp"):
		return "network/DNS error: " + s
	}
	return s
}

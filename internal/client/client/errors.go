package client

import (
	"context"
	"errors"
	"net"
	"net/http"

	"github.com/dmitrijs2005/biru/internal/netx"
)

var (
	ErrUnavailable  = errors.New("server unavailable")
	ErrUnauthorized = errors.New("unauthorized")
)

// Classify maps a transport error to ErrUnauthorized or ErrUnavailable when it
// is one of those conditions and reports whether it did.
func Classify(err error) (error, bool) {
	if err == nil {
		return nil, false
	}

	var se *netx.StatusError
	if errors.As(err, &se) {
		switch {
		case se.StatusCode == http.StatusUnauthorized, se.StatusCode == http.StatusForbidden:
			return ErrUnauthorized, true
		case se.StatusCode >= 500, se.StatusCode == http.StatusTooManyRequests:
			return ErrUnavailable, true
		}
		return nil, false
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return ErrUnavailable, true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return ErrUnavailable, true
	}
	return nil, false
}

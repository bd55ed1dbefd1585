package utils

import (
	"context"
	"errors"
	"io"
	"net"
	"syscall"
)

// statusCoder is implemented by errors that carry an upstream HTTP status.
type statusCoder interface {
	HTTPStatus() int
}

// IsRecoverableError reports whether retrying the same call may succeed:
// upstream 408, 429 and 5xx replies, timeouts and dropped connections.
func IsRecoverableError(err error) bool {
	if err == nil {
		return false
	}

	var sc statusCoder
	if errors.As(err, &sc) {
		code := sc.HTTPStatus()
		return code == 408 || code == 429 || (code >= 500 && code <= 599)
	}

	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) {
		return true
	}

	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

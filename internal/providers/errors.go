package providers

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"unicode/utf8"
)

const maxErrorBodyLen = 512

// ErrStreamingUnsupported is returned by StreamChat when the provider's chat
// endpoint has no streaming counterpart.
var ErrStreamingUnsupported = errors.New("endpoint does not support streaming")

// HTTPError is returned when a provider answers with a non-2xx status.
type HTTPError struct {
	StatusCode int
	Body       []byte
}

func (e *HTTPError) Error() string {
	msg := strings.TrimSpace(string(e.Body))
	if len(msg) > maxErrorBodyLen {
		cut := maxErrorBodyLen
		for cut > 0 && !utf8.RuneStart(msg[cut]) {
			cut--
		}
		msg = msg[:cut] + "..."
	}
	if msg == "" {
		msg = http.StatusText(e.StatusCode)
	}
	return fmt.Sprintf("provider returned HTTP %d: %s", e.StatusCode, msg)
}

// HTTPStatus returns the upstream status code.
func (e *HTTPError) HTTPStatus() int {
	return e.StatusCode
}

// AsHTTPError unwraps err to an *HTTPError.
func AsHTTPError(err error) (*HTTPError, bool) {
	var he *HTTPError
	if errors.As(err, &he) {
		return he, true
	}
	return nil, false
}

// StatusCode returns the upstream status carried by err, or 0.
func StatusCode(err error) int {
	if he, ok := AsHTTPError(err); ok {
		return he.StatusCode
	}
	return 0
}

// IsAuthError reports a 401 or 403 from the provider.
func IsAuthError(err error) bool {
	code := StatusCode(err)
	return code == http.StatusUnauthorized || code == http.StatusForbidden
}

// IsRateLimited reports a 429 from the provider.
func IsRateLimited(err error) bool {
	return StatusCode(err) == http.StatusTooManyRequests
}

// IsServerError reports a 5xx from the provider.
func IsServerError(err error) bool {
	code := StatusCode(err)
	return code >= 500 && code <= 599
}

// StreamError is an error event delivered inside an event stream.
type StreamError struct {
	Type    string
	Message string
}

func (e *StreamError) Error() string {
	if e.Type == "" {
		return "stream error: " + e.Message
	}
	return fmt.Sprintf("stream error (%s): %s", e.Type, e.Message)
}

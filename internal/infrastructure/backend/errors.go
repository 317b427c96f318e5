package backend

import (
	"errors"
	"fmt"

	"github.com/tidwall/gjson"
)

// ErrCircuitOpen is returned while the backend circuit breaker rejects requests.
var ErrCircuitOpen = errors.New("backend temporarily unavailable")

// StatusError is a non-2xx answer from the backend.
type StatusError struct {
	Endpoint   string
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("backend %s returned status %d", e.Endpoint, e.StatusCode)
	}
	return fmt.Sprintf("backend %s returned status %d: %s", e.Endpoint, e.StatusCode, e.Message)
}

// Temporary reports whether retrying the request could succeed.
func (e *StatusError) Temporary() bool {
	return e.StatusCode >= 500 || e.StatusCode == 429
}

func newStatusError(endpoint string, status int, body []byte) *StatusError {
	msg := gjson.GetBytes(body, "error").String()
	if msg == "" && !gjson.ValidBytes(body) && len(body) > 0 && len(body) < 256 {
		msg = string(body)
	}
	return &StatusError{Endpoint: endpoint, StatusCode: status, Message: msg}
}

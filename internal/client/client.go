package client

import (
	"fmt"
	"net/http"
	"time"
)

const DefaultTimeout = 30 * time.Second

// ProviderError is a delivery rejected by the SMS provider itself, as
// opposed to a transport or decoding failure.
type ProviderError struct {
	Code   int
	Reason string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider rejected message (code=%d): %s", e.Code, e.Reason)
}

func newHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &http.Client{Timeout: timeout}
}

package valr

import "fmt"

// APIError is a non-retryable rejection from the exchange (4xx other than
// 429, or a 5xx that survived all retries).
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("valr: api error %d (%s): %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("valr: api error %d: %s", e.Status, e.Message)
}

// RateLimitError means the exchange kept answering 429 until retries ran out.
type RateLimitError struct {
	Message string
}

func (e *RateLimitError) Error() string {
	return "valr: rate limited: " + e.Message
}

// ConnectionError wraps a transport failure that survived all retries.
type ConnectionError struct {
	Err error
}

func (e *ConnectionError) Error() string {
	return "valr: connection failed: " + e.Err.Error()
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

package bitget

import (
	"errors"
	"fmt"
)

// Local lookup failures.
var (
	// ErrUnknownSymbol means no instrument spec was loaded for the symbol.
	ErrUnknownSymbol = errors.New("unknown symbol")
	// ErrNoActiveProduct means no flexible savings product is in progress
	// for the coin.
	ErrNoActiveProduct = errors.New("no active flexible savings product")
	// ErrBelowMinTradeSize means the truncated order size is under the
	// instrument's documented minimum.
	ErrBelowMinTradeSize = errors.New("size below minimum trade size")
)

// TransportError wraps a network or timeout failure before any HTTP status
// was received. Potentially retryable by the caller.
type TransportError struct {
	Method   string
	Endpoint string
	Err      error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport error: %s %s: %v", e.Method, e.Endpoint, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// HTTPError is a non-2xx HTTP response. Retryable only for 5xx and 429.
type HTTPError struct {
	Method   string
	Endpoint string
	Status   int
	Body     string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("http %d: %s %s: %s", e.Status, e.Method, e.Endpoint, e.Body)
}

// Retryable reports whether retrying the identical request can succeed.
func (e *HTTPError) Retryable() bool {
	return e.Status == 429 || e.Status >= 500
}

// APIError is a 2xx response whose business code is not the success
// sentinel. Generally not retryable without changing the request.
type APIError struct {
	Method   string
	Endpoint string
	Code     string
	Message  string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %s: %s %s: %s", e.Code, e.Method, e.Endpoint, e.Message)
}

// ValidationError means caller-supplied arguments violate a documented
// precondition. Raised locally, before any request is sent.
type ValidationError struct {
	Op     string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Op, e.Reason)
}

// SettlementTimeoutError means a workflow step's downstream state did not
// become consistent within the polling bound.
type SettlementTimeoutError struct {
	Step    string
	Elapsed string
}

func (e *SettlementTimeoutError) Error() string {
	return fmt.Sprintf("settlement not observed for step %q within %s", e.Step, e.Elapsed)
}

// IsRetryable reports whether err is worth repeating unchanged: transport
// failures and 5xx/429 HTTP statuses.
func IsRetryable(err error) bool {
	var te *TransportError
	if errors.As(err, &te) {
		return true
	}
	var he *HTTPError
	if errors.As(err, &he) {
		return he.Retryable()
	}
	return false
}

// AsAPIError extracts an APIError if err carries one.
func AsAPIError(err error) (*APIError, bool) {
	var ae *APIError
	if errors.As(err, &ae) {
		return ae, true
	}
	return nil, false
}

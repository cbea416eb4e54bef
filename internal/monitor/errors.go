package monitor

import (
	"errors"
	"fmt"
)

var (
	// ErrNetwork marks an upstream that could not be reached, returned a
	// non-success status, or rate-limited the request.
	ErrNetwork = errors.New("network error")

	// ErrSchema marks a response that was received but could not be understood.
	ErrSchema = errors.New("schema error")
)

// FetchError wraps a failure to obtain data from an upstream source.
type FetchError struct {
	Source string
	Err    error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.Source, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// DeliveryError wraps a failed alert delivery. It is logged, never propagated.
type DeliveryError struct {
	Category Category
	Err      error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("deliver %s alert: %v", e.Category, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

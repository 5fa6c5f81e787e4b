package client

import (
	"errors"
	"fmt"
)

// ErrDelivery matches every *DeliveryError through errors.Is.
var ErrDelivery = errors.New("delivery failed")

// DeliveryError describes one failed submission attempt.
type DeliveryError struct {
	URL        string
	Op         string
	StatusCode int
	Body       string
	Err        error
}

func (e *DeliveryError) Error() string {
	switch {
	case e.StatusCode != 0 && e.Err == nil:
		return fmt.Sprintf("delivery to %s: status %d: %s", e.URL, e.StatusCode, e.Body)
	case e.StatusCode != 0:
		return fmt.Sprintf("delivery to %s: %s (status %d): %v", e.URL, e.Op, e.StatusCode, e.Err)
	default:
		return fmt.Sprintf("delivery to %s: %s: %v", e.URL, e.Op, e.Err)
	}
}

// Unwrap exposes both ErrDelivery and the underlying cause.
func (e *DeliveryError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrDelivery}
	}
	return []error{ErrDelivery, e.Err}
}

// Package transport delivers rendered campaign messages through the
// configured SMTP smarthost.
package transport

import (
	"context"
	"errors"
)

// Message is one rendered email ready for delivery.
type Message struct {
	To             string
	ToName         string
	FromEmail      string
	FromName       string
	ReplyTo        string
	Subject        string
	HTML           string
	UnsubscribeURL string
}

// Transport sends a single message. Implementations must be safe for
// sequential reuse across a batch.
type Transport interface {
	Send(ctx context.Context, msg *Message) error
}

// DeliveryError represents a delivery error with type information
type DeliveryError struct {
	Temporary bool
	Message   string
}

func (e *DeliveryError) Error() string {
	return e.Message
}

// IsTemporaryError checks if the error is temporary
func IsTemporaryError(err error) bool {
	var de *DeliveryError
	if errors.As(err, &de) {
		return de.Temporary
	}
	return true // Assume temporary if unknown
}

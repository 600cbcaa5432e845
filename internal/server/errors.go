package server

import "errors"

// Gateway-specific errors
var (
	ErrServerClosed      = errors.New("gateway is closed")
	ErrMaxClientsReached = errors.New("maximum clients reached")
	ErrInvalidMessage    = errors.New("invalid message")
)

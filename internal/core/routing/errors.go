package routing

import "errors"

var (
	ErrRouterShutdown         = errors.New("message router is already shut down")
	ErrNotReachable           = errors.New("participant is not reachable")
	ErrMissingIncomingAddress = errors.New("incoming address is required when a parent router is configured")
	ErrMissingStubFactory     = errors.New("messaging stub factory is required")
	ErrMissingMessageQueue    = errors.New("message queue is required")
	ErrNoRoutingProxy         = errors.New("routing proxy has not been set")
	ErrInvalidMulticastID     = errors.New("invalid multicast id")
)

package dispatching

import "errors"

var (
	ErrShutdown                 = errors.New("request reply manager is already shut down")
	ErrReplyTTLExpired          = errors.New("ttl expired")
	ErrNoRequestReplyManager    = errors.New("request reply manager is not registered")
	ErrNoMessageRouter          = errors.New("message router is not registered")
	ErrNoSubscriptionManager    = errors.New("subscription manager is not registered")
	ErrNoPublicationManager     = errors.New("publication manager is not registered")
	ErrUnsupportedSubscription  = errors.New("unsupported subscription request kind")
	ErrMissingClusterController = errors.New("cluster controller messaging stub is required")
	ErrMissingRequestSender     = errors.New("request sender is required")
)

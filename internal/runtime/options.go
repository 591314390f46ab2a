package runtime

import (
	"time"

	"github.com/zeusync/joynr/internal/core/routing"
)

type options struct {
	proxy          routing.RoutingProxy
	connectTimeout time.Duration
}

type Option func(*options)

// WithRoutingProxy connects the router to its parent during New. It is
// required when routing.parent is configured, since registrations wait for
// the parent link.
func WithRoutingProxy(proxy routing.RoutingProxy) Option {
	return func(o *options) { o.proxy = proxy }
}

// WithConnectTimeout bounds the parent handshake in New. The default is the
// configured message ttl.
func WithConnectTimeout(d time.Duration) Option {
	return func(o *options) { o.connectTimeout = d }
}

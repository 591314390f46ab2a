package dispatching

import (
	"time"

	"github.com/benbjohnson/clock"

	"github.com/zeusync/joynr/internal/core/exceptions"
	"github.com/zeusync/joynr/internal/core/observability/log"
	"github.com/zeusync/joynr/internal/core/observability/metrics"
)

// DefaultReplyCleanupInterval is how often pending requests are checked for
// an expired ttl.
const DefaultReplyCleanupInterval = 1000 * time.Millisecond

type options struct {
	clock   clock.Clock
	log     log.Log
	metrics *metrics.Metrics

	// dispatcher
	ttlUplift time.Duration
	security  SecurityManager

	// request reply manager
	registry        *exceptions.Registry
	cleanupInterval time.Duration
}

func defaultOptions() options {
	return options{
		clock:           clock.New(),
		log:             log.NewNop(),
		metrics:         metrics.NewNop(),
		registry:        exceptions.NewRegistry(),
		cleanupInterval: DefaultReplyCleanupInterval,
	}
}

type Option func(*options)

func WithClock(c clock.Clock) Option {
	return func(o *options) { o.clock = c }
}

func WithLogger(l log.Log) Option {
	return func(o *options) { o.log = l }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithTTLUplift sets the time added to the expiry date of outbound envelopes
// and of inbound subscription qos. Negative values are treated as zero.
func WithTTLUplift(d time.Duration) Option {
	return func(o *options) {
		if d < 0 {
			d = 0
		}
		o.ttlUplift = d
	}
}

func WithSecurityManager(s SecurityManager) Option {
	return func(o *options) { o.security = s }
}

// WithExceptionRegistry sets the registry used to type errors of inbound replies.
func WithExceptionRegistry(r *exceptions.Registry) Option {
	return func(o *options) { o.registry = r }
}

func WithReplyCleanupInterval(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.cleanupInterval = d
		}
	}
}

package runtime

import (
	"io"

	"github.com/google/wire"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/zeusync/joynr/internal/config"
	"github.com/zeusync/joynr/internal/core/address"
	"github.com/zeusync/joynr/internal/core/dispatching"
	"github.com/zeusync/joynr/internal/core/messagequeue"
	"github.com/zeusync/joynr/internal/core/messaging"
	"github.com/zeusync/joynr/internal/core/observability/log"
	"github.com/zeusync/joynr/internal/core/observability/metrics"
	"github.com/zeusync/joynr/internal/core/persistence"
	"github.com/zeusync/joynr/internal/core/routing"
)

// ProviderSet builds a Runtime from a config.Config.
var ProviderSet = wire.NewSet(
	ProvideLogger,
	ProvideRegistry,
	ProvideMetrics,
	ProvideStore,
	ProvideMessageQueue,
	messaging.NewInProcessSkeleton,
	ProvideWebSocketStubs,
	ProvideStubFactory,
	ProvideRouter,
	ProvideDispatcher,
	ProvideRequestReplyManager,
	newRuntime,
)

func ProvideLogger(cfg config.Config) log.Log {
	return log.New(cfg.LogLevel()).With(log.String("instanceId", cfg.InstanceID))
}

// ProvideRegistry returns a registry owned by this runtime, so several
// runtimes can live in one process.
func ProvideRegistry() *prometheus.Registry {
	return prometheus.NewRegistry()
}

func ProvideMetrics(reg *prometheus.Registry) *metrics.Metrics {
	return metrics.New(reg)
}

// ProvideStore opens the bbolt store when a persistence path is configured
// and falls back to an in-memory store otherwise.
func ProvideStore(cfg config.Config, logger log.Log) (persistence.Store, func(), error) {
	if cfg.Persistence.Path == "" {
		return persistence.NewMemoryStore(), func() {}, nil
	}
	store, err := persistence.OpenBoltStore(cfg.Persistence.Path, cfg.Persistence.Bucket)
	if err != nil {
		return nil, nil, err
	}
	return store, func() { closeStore(store, logger) }, nil
}

func closeStore(store persistence.Store, logger log.Log) {
	closer, ok := store.(io.Closer)
	if !ok {
		return
	}
	if err := closer.Close(); err != nil {
		logger.Error("closing routing store failed", log.Error(err))
	}
}

// ProvideMessageQueue starts the queue sweep. The router owns the queue once
// it is built; the cleanup only matters when a later provider fails.
func ProvideMessageQueue(cfg config.Config, logger log.Log, m *metrics.Metrics) (*messagequeue.MessageQueue, func()) {
	q := messagequeue.New(cfg.Queue(), messagequeue.WithLogger(logger), messagequeue.WithMetrics(m))
	return q, q.Shutdown
}

func ProvideWebSocketStubs(logger log.Log) *messaging.WebSocketStubFactory {
	return messaging.NewWebSocketStubFactory(logger)
}

func ProvideStubFactory(ws *messaging.WebSocketStubFactory) messaging.StubFactory {
	stubs := messaging.NewMessagingStubFactory()
	stubs.Register(address.TypeInProcess, messaging.InProcessStubFactory{})
	stubs.Register(address.TypeWebSocket, ws)
	return stubs
}

func ProvideRouter(
	cfg config.Config,
	stubs messaging.StubFactory,
	queue *messagequeue.MessageQueue,
	store persistence.Store,
	logger log.Log,
	m *metrics.Metrics,
) (*routing.MessageRouter, error) {
	return routing.New(cfg.Router(), stubs, queue,
		routing.WithStore(store),
		routing.WithLogger(logger),
		routing.WithMetrics(m),
	)
}

// ProvideDispatcher sends through the router, which is the cluster
// controller stub of an embedded runtime.
func ProvideDispatcher(cfg config.Config, router *routing.MessageRouter, logger log.Log, m *metrics.Metrics) (*dispatching.Dispatcher, error) {
	d, err := dispatching.NewDispatcher(messaging.StubFunc(router.Route),
		dispatching.WithTTLUplift(cfg.TTLUplift()),
		dispatching.WithLogger(logger),
		dispatching.WithMetrics(m),
	)
	if err != nil {
		return nil, err
	}
	d.RegisterMessageRouter(router)
	return d, nil
}

func ProvideRequestReplyManager(cfg config.Config, d *dispatching.Dispatcher, logger log.Log, m *metrics.Metrics) (*dispatching.RequestReplyManager, error) {
	rrm, err := dispatching.NewRequestReplyManager(d,
		dispatching.WithReplyCleanupInterval(cfg.ReplyCleanupInterval()),
		dispatching.WithLogger(logger),
		dispatching.WithMetrics(m),
	)
	if err != nil {
		return nil, err
	}
	d.RegisterRequestReplyManager(rrm)
	return rrm, nil
}

// Package runtime assembles a joynr messaging runtime: router, dispatcher and
// request reply manager wired to each other and to the in-process skeleton.
package runtime

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/multierr"

	"github.com/zeusync/joynr/internal/config"
	"github.com/zeusync/joynr/internal/core/address"
	"github.com/zeusync/joynr/internal/core/dispatching"
	"github.com/zeusync/joynr/internal/core/message"
	"github.com/zeusync/joynr/internal/core/messaging"
	"github.com/zeusync/joynr/internal/core/observability/log"
	"github.com/zeusync/joynr/internal/core/observability/metrics"
	"github.com/zeusync/joynr/internal/core/persistence"
	"github.com/zeusync/joynr/internal/core/routing"
)

type Runtime struct {
	Config     config.Config
	Router     *routing.MessageRouter
	Dispatcher *dispatching.Dispatcher
	Requests   *dispatching.RequestReplyManager
	Registry   *prometheus.Registry
	Metrics    *metrics.Metrics

	inProcess  *address.InProcessAddress
	websockets *messaging.WebSocketStubFactory
	store      persistence.Store

	cleanup      func()
	shutdownOnce sync.Once
	shutdownErr  error

	logger log.Log
	log    log.Log
}

// New builds a runtime from cfg. With routing.parent configured the routing
// proxy has to be passed with WithRoutingProxy; New connects it and fetches
// the reply-to address before returning.
func New(cfg config.Config, opts ...Option) (*Runtime, error) {
	o := options{connectTimeout: cfg.DefaultTTL()}
	for _, opt := range opts {
		opt(&o)
	}
	hasParent := cfg.ParentAddress() != nil
	switch {
	case hasParent && o.proxy == nil:
		return nil, ErrParentNotConnected
	case !hasParent && o.proxy != nil:
		return nil, ErrUnexpectedRoutingProxy
	}

	r, cleanup, err := initialize(cfg)
	if err != nil {
		return nil, err
	}
	r.cleanup = cleanup

	if o.proxy != nil {
		ctx, cancel := context.WithTimeout(context.Background(), o.connectTimeout)
		defer cancel()
		if err = r.connectParent(ctx, o.proxy); err != nil {
			return nil, multierr.Append(err, r.Shutdown())
		}
	}
	return r, nil
}

func newRuntime(
	cfg config.Config,
	logger log.Log,
	registry *prometheus.Registry,
	m *metrics.Metrics,
	store persistence.Store,
	skeleton *messaging.InProcessSkeleton,
	websockets *messaging.WebSocketStubFactory,
	router *routing.MessageRouter,
	dispatcher *dispatching.Dispatcher,
	requests *dispatching.RequestReplyManager,
) *Runtime {
	skeleton.RegisterListener(dispatcher.Receive)
	return &Runtime{
		Config:     cfg,
		Router:     router,
		Dispatcher: dispatcher,
		Requests:   requests,
		Registry:   registry,
		Metrics:    m,
		inProcess:  address.NewInProcess(skeleton),
		websockets: websockets,
		store:      store,
		cleanup:    func() {},
		logger:     logger,
		log:        logger.Named("runtime"),
	}
}

func (r *Runtime) connectParent(ctx context.Context, proxy routing.RoutingProxy) error {
	if err := r.Router.SetRoutingProxy(ctx, proxy); err != nil {
		return err
	}
	if err := r.Router.ConfigureReplyToAddressFromRoutingProxy(ctx); err != nil {
		return err
	}
	r.log.Info("connected to parent router", log.ParticipantID(proxy.ProxyParticipantID()))
	return nil
}

// Logger is the root logger the components were built with.
func (r *Runtime) Logger() log.Log {
	return r.logger
}

// Inbound is where transports hand received envelopes.
func (r *Runtime) Inbound() messaging.MessagingStub {
	return messaging.StubFunc(r.Router.Route)
}

// RegisterProvider makes provider reachable under participantID.
func (r *Runtime) RegisterProvider(ctx context.Context, participantID string, provider *dispatching.Provider, isGloballyVisible bool) error {
	if err := r.Requests.AddRequestCaller(participantID, provider); err != nil {
		return err
	}
	if err := r.Router.AddNextHop(ctx, participantID, r.inProcess, isGloballyVisible); err != nil {
		r.rollbackNextHop(ctx, participantID)
		return multierr.Append(err, r.Requests.RemoveRequestCaller(participantID))
	}
	r.log.Info("provider registered",
		log.ParticipantID(participantID),
		log.Bool("global", isGloballyVisible))
	return nil
}

func (r *Runtime) UnregisterProvider(ctx context.Context, participantID string) error {
	return multierr.Combine(
		r.Requests.RemoveRequestCaller(participantID),
		r.Router.RemoveNextHop(ctx, participantID),
	)
}

// RegisterProxy routes replies and publications for participantID to this
// process.
func (r *Runtime) RegisterProxy(ctx context.Context, participantID string) error {
	if err := r.Router.AddNextHop(ctx, participantID, r.inProcess, false); err != nil {
		r.rollbackNextHop(ctx, participantID)
		return err
	}
	return nil
}

// rollbackNextHop drops the local entry of a registration the parent router
// refused. The upstream removal may fail as well; that is only logged.
func (r *Runtime) rollbackNextHop(ctx context.Context, participantID string) {
	err := r.Router.RemoveNextHop(ctx, participantID)
	if err != nil && !errors.Is(err, routing.ErrRouterShutdown) {
		r.log.Warn("rolling back routing entry upstream failed",
			log.ParticipantID(participantID), log.Error(err))
	}
}

// MessagingQos returns the configured default qos.
func (r *Runtime) MessagingQos() message.MessagingQos {
	return message.MessagingQos{TTL: r.Config.DefaultTTL()}
}

// Call sends request from the proxy participant to the provider described by
// to and waits for the reply.
func (r *Runtime) Call(ctx context.Context, from string, to message.DiscoveryEntry, request *message.Request) (*dispatching.ReplyResult, error) {
	settings := dispatching.SendSettings{
		From:             from,
		ToDiscoveryEntry: to,
		MessagingQos:     r.MessagingQos(),
	}
	return r.Requests.SendRequest(ctx, settings, request, nil)
}

// Shutdown stops every component, rejecting pending requests first. It is
// safe to call more than once.
func (r *Runtime) Shutdown() error {
	r.shutdownOnce.Do(func() {
		r.Requests.Shutdown()
		r.Dispatcher.Shutdown()
		r.Router.Shutdown()

		var err error
		err = multierr.Append(err, r.websockets.Close())
		if closer, ok := r.store.(io.Closer); ok {
			err = multierr.Append(err, closer.Close())
		}
		r.cleanup()
		r.shutdownErr = err
		r.log.Info("runtime shut down")
	})
	return r.shutdownErr
}

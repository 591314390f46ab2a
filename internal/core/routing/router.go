// Package routing resolves participant ids to transport addresses and hands
// envelopes to the matching messaging stub.
package routing

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/benbjohnson/clock"
	"golang.org/x/sync/singleflight"

	"github.com/zeusync/joynr/internal/core/address"
	"github.com/zeusync/joynr/internal/core/message"
	"github.com/zeusync/joynr/internal/core/messagequeue"
	"github.com/zeusync/joynr/internal/core/messaging"
	"github.com/zeusync/joynr/internal/core/observability/log"
	"github.com/zeusync/joynr/internal/core/observability/metrics"
	"github.com/zeusync/joynr/internal/core/persistence"
	"github.com/zeusync/joynr/pkg/concurrent"
)

type Config struct {
	// InstanceID prefixes the persistence keys of this router.
	InstanceID string
	// IncomingAddress is how the parent router reaches this one.
	IncomingAddress address.Address
	// ParentAddress is the next hop for participants only the parent knows.
	ParentAddress address.Address
	// RequireReplyTo holds outgoing request-type messages until a reply-to
	// address has been set.
	RequireReplyTo   bool
	PatternCacheSize int
	TableShards      int
}

type Option func(*MessageRouter)

func WithLogger(l log.Log) Option {
	return func(r *MessageRouter) { r.log = l.Named("message_router") }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(r *MessageRouter) { r.metrics = m }
}

func WithClock(c clock.Clock) Option {
	return func(r *MessageRouter) { r.clock = c }
}

// WithStore enables routing-table persistence.
func WithStore(s persistence.Store) Option {
	return func(r *MessageRouter) { r.store = s }
}

func WithMulticastAddressCalculator(c MulticastAddressCalculator) Option {
	return func(r *MessageRouter) { r.multicastCalculator = c }
}

// WithMulticastSkeleton registers the skeleton informed about multicast
// subscriptions to providers reached through addresses of typeName.
func WithMulticastSkeleton(typeName string, s MulticastSkeleton) Option {
	return func(r *MessageRouter) { r.skeletons[typeName] = s }
}

// WithInitialRoutingTable preloads entries without persisting them.
func WithInitialRoutingTable(entries map[string]address.Address) Option {
	return func(r *MessageRouter) {
		for participantID, addr := range entries {
			r.table.Put(participantID, addr)
		}
	}
}

// queuedCall is a parent router call parked until SetRoutingProxy.
type queuedCall struct {
	participantID string
	op            func(ctx context.Context, proxy RoutingProxy) error
	done          chan error
}

// MessageRouter owns the routing table and the multicast receiver registry.
type MessageRouter struct {
	cfg       Config
	table     *Table
	receivers *receiverRegistry
	patterns  *WildcardRegexFactory
	stubs     messaging.StubFactory
	queue     *messagequeue.MessageQueue
	store     persistence.Store

	multicastCalculator MulticastAddressCalculator
	skeletons           map[string]MulticastSkeleton

	resolveGroup singleflight.Group
	tasks        *concurrent.TaskGroup

	mu                     sync.Mutex
	ready                  bool
	proxy                  RoutingProxy
	queuedCalls            []*queuedCall
	replyToAddress         string
	messagesWithoutReplyTo []*message.Envelope

	clock   clock.Clock
	log     log.Log
	metrics *metrics.Metrics
}

// New creates a ready router. The queue is owned by the router from now on
// and shut down together with it.
func New(cfg Config, stubs messaging.StubFactory, queue *messagequeue.MessageQueue, opts ...Option) (*MessageRouter, error) {
	if cfg.ParentAddress != nil && cfg.IncomingAddress == nil {
		return nil, ErrMissingIncomingAddress
	}
	if stubs == nil {
		return nil, ErrMissingStubFactory
	}
	if queue == nil {
		return nil, ErrMissingMessageQueue
	}

	patterns, err := NewWildcardRegexFactory(cfg.PatternCacheSize)
	if err != nil {
		return nil, err
	}

	r := &MessageRouter{
		cfg:       cfg,
		table:     NewTable(cfg.TableShards),
		receivers: newReceiverRegistry(),
		patterns:  patterns,
		stubs:     stubs,
		queue:     queue,
		skeletons: make(map[string]MulticastSkeleton),
		ready:     true,
		clock:     clock.New(),
		log:       log.NewNop(),
		metrics:   metrics.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.tasks = concurrent.NewTaskGroup(func(recovered any) {
		r.log.Error("router task panicked", log.Any("panic", recovered))
	})
	r.metrics.RoutingTableSize.Set(float64(r.table.Len()))

	return r, nil
}

func (r *MessageRouter) isReady() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ready
}

// GetStorageKey is the persistence key of participantID's routing entry.
func (r *MessageRouter) GetStorageKey(participantID string) string {
	return fmt.Sprintf("%s_%s", r.cfg.InstanceID, participantID)
}

// AddNextHop registers addr for participantID, persists it unless it is an
// in-process address, flushes messages queued for the participant and finally
// registers the participant with the parent router.
func (r *MessageRouter) AddNextHop(ctx context.Context, participantID string, addr address.Address, isGloballyVisible bool) error {
	if !r.isReady() {
		r.log.Debug("addNextHop: ignoring call, router is shut down", log.ParticipantID(participantID))
		return ErrRouterShutdown
	}

	r.addNextHopLocal(ctx, participantID, addr)
	return r.addNextHopToParent(ctx, participantID, isGloballyVisible)
}

func (r *MessageRouter) addNextHopLocal(ctx context.Context, participantID string, addr address.Address) {
	r.table.Put(participantID, addr)
	r.metrics.RoutingTableSize.Set(float64(r.table.Len()))
	r.persist(participantID, addr)
	r.participantRegistered(ctx, participantID)
}

func (r *MessageRouter) persist(participantID string, addr address.Address) {
	if r.store == nil || address.IsInProcess(addr) {
		return
	}
	serialized, err := address.Marshal(addr)
	if err != nil {
		r.log.Info("next hop address will not be persisted",
			log.ParticipantID(participantID), log.Error(err))
		return
	}
	if err = r.store.SetItem(r.GetStorageKey(participantID), string(serialized)); err != nil {
		r.log.Error("failed to persist routing entry", log.ParticipantID(participantID), log.Error(err))
	}
}

func (r *MessageRouter) addNextHopToParent(ctx context.Context, participantID string, isGloballyVisible bool) error {
	return r.forwardToParent(ctx, participantID, func(ctx context.Context, proxy RoutingProxy) error {
		if r.cfg.IncomingAddress == nil {
			return ErrMissingIncomingAddress
		}
		return proxy.AddNextHop(ctx, participantID, r.cfg.IncomingAddress, isGloballyVisible)
	})
}

// RemoveNextHop deletes the local and the persisted entry and forwards the
// removal to the parent router.
func (r *MessageRouter) RemoveNextHop(ctx context.Context, participantID string) error {
	if !r.isReady() {
		r.log.Debug("removeNextHop: ignoring call, router is shut down", log.ParticipantID(participantID))
		return ErrRouterShutdown
	}

	r.table.Remove(participantID)
	r.metrics.RoutingTableSize.Set(float64(r.table.Len()))
	if r.store != nil {
		if err := r.store.RemoveItem(r.GetStorageKey(participantID)); err != nil {
			r.log.Error("failed to remove persisted routing entry", log.ParticipantID(participantID), log.Error(err))
		}
	}

	return r.forwardToParent(ctx, "", func(ctx context.Context, proxy RoutingProxy) error {
		return proxy.RemoveNextHop(ctx, participantID)
	})
}

// ResolveNextHop looks participantID up locally, then in persistence, then
// asks the parent router.
func (r *MessageRouter) ResolveNextHop(ctx context.Context, participantID string) (address.Address, error) {
	if !r.isReady() {
		r.log.Debug("resolveNextHop: ignoring call, router is shut down", log.ParticipantID(participantID))
		return nil, ErrRouterShutdown
	}

	if addr, ok := r.table.Get(participantID); ok {
		return addr, nil
	}
	if addr := r.addressFromPersistence(participantID); addr != nil {
		return addr, nil
	}
	return r.resolveViaParent(ctx, participantID)
}

func (r *MessageRouter) resolveViaParent(ctx context.Context, participantID string) (address.Address, error) {
	r.mu.Lock()
	proxy := r.proxy
	r.mu.Unlock()
	if proxy == nil || r.cfg.ParentAddress == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotReachable, participantID)
	}

	v, err, _ := r.resolveGroup.Do(participantID, func() (any, error) {
		resolved, err := proxy.ResolveNextHop(ctx, participantID)
		if err != nil {
			return nil, err
		}
		if !resolved {
			return nil, fmt.Errorf("%w: %s is not known to the parent router", ErrNotReachable, participantID)
		}
		r.table.Put(participantID, r.cfg.ParentAddress)
		r.metrics.RoutingTableSize.Set(float64(r.table.Len()))
		return r.cfg.ParentAddress, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(address.Address), nil
}

func (r *MessageRouter) addressFromPersistence(participantID string) address.Address {
	if r.store == nil {
		return nil
	}
	key := r.GetStorageKey(participantID)
	serialized, err := r.store.GetItem(key)
	if errors.Is(err, persistence.ErrItemNotFound) {
		return nil
	}
	if err != nil {
		r.log.Error("failed to read persisted routing entry", log.ParticipantID(participantID), log.Error(err))
		return nil
	}
	if serialized == "" || serialized == "{}" {
		_ = r.store.RemoveItem(key)
		return nil
	}

	addr, err := address.Unmarshal([]byte(serialized))
	if err != nil {
		r.log.Error("failed to decode persisted routing entry", log.ParticipantID(participantID), log.Error(err))
		return nil
	}
	r.table.Put(participantID, addr)
	r.metrics.RoutingTableSize.Set(float64(r.table.Len()))
	return addr
}

// Route delivers e. Expired envelopes are dropped, multicasts are fanned out
// to every matching receiver, unicasts to unknown participants are queued
// until AddNextHop, except replies and publications which are dropped.
// Delivery failures are logged and never returned.
func (r *MessageRouter) Route(ctx context.Context, e *message.Envelope) error {
	if !r.isReady() {
		r.log.Debug("route: ignoring call, router is shut down", log.MessageID(e.ID))
		return ErrRouterShutdown
	}

	now := r.clock.Now().UnixMilli()
	if e.IsExpired(now) {
		r.log.Warn("received expired message, dropping it",
			log.MessageID(e.ID),
			log.Int64("expiryDate", e.ExpiryDate),
			log.Int64("now", now),
		)
		r.metrics.MessagesDropped.WithLabelValues(metrics.ReasonExpired).Inc()
		return nil
	}

	r.registerGlobalRoutingEntryIfRequired(ctx, e)

	if e.Type == message.TypeMulticast {
		targets := r.addressesForMulticast(e)
		return concurrent.ForEachIndependent(ctx, targets, func(ctx context.Context, addr address.Address) error {
			r.routeInternal(ctx, addr, e)
			return nil
		})
	}

	if addr, ok := r.table.Get(e.To); ok {
		r.routeInternal(ctx, addr, e)
		return nil
	}
	r.resolveNextHopAndRoute(ctx, e)
	return nil
}

func (r *MessageRouter) resolveNextHopAndRoute(ctx context.Context, e *message.Envelope) {
	if addr := r.addressFromPersistence(e.To); addr != nil {
		r.routeInternal(ctx, addr, e)
		return
	}

	addr, err := r.resolveViaParent(ctx, e.To)
	if err == nil {
		r.routeInternal(ctx, addr, e)
		return
	}
	if !errors.Is(err, ErrNotReachable) {
		r.log.Error("parent router could not resolve next hop", log.To(e.To), log.Error(err))
	}

	if !e.Type.IsQueueable() {
		r.log.Warn("received message for unknown participant, dropping it",
			log.MessageID(e.ID),
			log.MessageType(e.Type.String()),
			log.To(e.To),
		)
		r.metrics.MessagesDropped.WithLabelValues(metrics.ReasonUnknownReplyTo).Inc()
		return
	}

	r.log.Warn("no next hop known, queuing message", log.MessageID(e.ID), log.To(e.To))
	if err = r.queue.PutMessage(e); err != nil {
		return
	}
	// the participant may have been added while this message was on its way
	// into the queue
	if _, ok := r.table.Get(e.To); ok {
		r.participantRegistered(ctx, e.To)
	}
}

// routeInternal transmits e to addr once the address is known.
func (r *MessageRouter) routeInternal(ctx context.Context, addr address.Address, e *message.Envelope) {
	if !e.IsLocalMessage && e.Type.IsRequestType() && e.ReplyTo == "" {
		r.mu.Lock()
		replyTo := r.replyToAddress
		if replyTo == "" && r.cfg.RequireReplyTo {
			r.messagesWithoutReplyTo = append(r.messagesWithoutReplyTo, e)
			r.mu.Unlock()
			r.log.Warn("reply-to address not set yet, holding message", log.MessageID(e.ID), log.To(e.To))
			return
		}
		r.mu.Unlock()
		e.ReplyTo = replyTo
	}

	stub, err := r.stubs.CreateMessagingStub(addr)
	if err != nil {
		r.log.Info("no messaging stub for next hop",
			log.MessageID(e.ID), log.To(e.To), log.String("address", addr.TypeName()), log.Error(err))
		r.metrics.MessagesDropped.WithLabelValues(metrics.ReasonNoStub).Inc()
		return
	}

	if err = stub.Transmit(ctx, e); err != nil {
		r.log.Debug("error while transmitting message", log.MessageID(e.ID), log.To(e.To), log.Error(err))
		r.metrics.MessagesDropped.WithLabelValues(metrics.ReasonTransmitFailed).Inc()
		return
	}
	r.metrics.MessagesRouted.WithLabelValues(e.Type.String()).Inc()
}

// registerGlobalRoutingEntryIfRequired learns the reply address of requests
// that arrived over a global transport.
func (r *MessageRouter) registerGlobalRoutingEntryIfRequired(ctx context.Context, e *message.Envelope) {
	if !e.IsReceivedFromGlobal || !e.Type.IsRequestType() || e.ReplyTo == "" {
		return
	}

	addr, err := address.Unmarshal([]byte(e.ReplyTo))
	if err != nil {
		r.log.Error("could not register global routing entry", log.From(e.From), log.Error(err))
		return
	}

	r.addNextHopLocal(ctx, e.From, addr)
	from := e.From
	_ = r.tasks.Go(func() {
		if err := r.addNextHopToParent(context.Background(), from, true); err != nil {
			r.log.Warn("could not register global routing entry upstream", log.From(from), log.Error(err))
		}
	})
}

func (r *MessageRouter) addressesForMulticast(e *message.Envelope) []address.Address {
	var targets []address.Address
	contains := func(addr address.Address) bool {
		for _, existing := range targets {
			if existing.Equal(addr) {
				return true
			}
		}
		return false
	}

	if !e.IsReceivedFromGlobal && r.multicastCalculator != nil {
		if addr := r.multicastCalculator.Calculate(e); addr != nil {
			targets = append(targets, addr)
		}
	}

	for pattern, subscribers := range r.receivers.snapshot() {
		if !r.patterns.Matches(pattern, e.To) {
			continue
		}
		for _, subscriberID := range subscribers {
			addr, ok := r.table.Get(subscriberID)
			if ok && !contains(addr) {
				targets = append(targets, addr)
			}
		}
	}
	return targets
}

// AddMulticastReceiver registers a subscriber for multicastID. The first
// receiver of a pattern subscribes the transport skeleton of the provider's
// address type. The call is forwarded to the parent router when the provider
// is reached through it.
func (r *MessageRouter) AddMulticastReceiver(ctx context.Context, params MulticastReceiverParams) error {
	if !r.isReady() {
		return ErrRouterShutdown
	}
	pattern, err := r.patterns.CreateIDPattern(params.MulticastID)
	if err != nil {
		return err
	}
	providerAddr, providerKnown := r.table.Get(params.ProviderParticipantID)

	if first := r.receivers.add(pattern, params.SubscriberParticipantID); first && providerKnown {
		if skeleton, ok := r.skeletons[providerAddr.TypeName()]; ok {
			if err = skeleton.RegisterMulticastSubscription(params.MulticastID); err != nil {
				r.receivers.remove(pattern, params.SubscriberParticipantID)
				return fmt.Errorf("register multicast subscription %s: %w", params.MulticastID, err)
			}
		}
	}
	r.metrics.MulticastReceivers.Set(float64(r.receivers.len()))

	if r.cfg.ParentAddress == nil || !providerKnown || address.IsInProcess(providerAddr) {
		return nil
	}
	return r.forwardToParent(ctx, "", func(ctx context.Context, proxy RoutingProxy) error {
		return proxy.AddMulticastReceiver(ctx, params)
	})
}

// RemoveMulticastReceiver undoes one AddMulticastReceiver.
func (r *MessageRouter) RemoveMulticastReceiver(ctx context.Context, params MulticastReceiverParams) error {
	if !r.isReady() {
		return ErrRouterShutdown
	}
	pattern, err := r.patterns.CreateIDPattern(params.MulticastID)
	if err != nil {
		return err
	}
	providerAddr, providerKnown := r.table.Get(params.ProviderParticipantID)

	if last := r.receivers.remove(pattern, params.SubscriberParticipantID); last && providerKnown {
		if skeleton, ok := r.skeletons[providerAddr.TypeName()]; ok {
			if err = skeleton.UnregisterMulticastSubscription(params.MulticastID); err != nil {
				r.log.Warn("failed to unregister multicast subscription",
					log.String("multicastId", params.MulticastID), log.Error(err))
			}
		}
	}
	r.metrics.MulticastReceivers.Set(float64(r.receivers.len()))

	if r.cfg.ParentAddress == nil || !providerKnown || address.IsInProcess(providerAddr) {
		return nil
	}
	return r.forwardToParent(ctx, "", func(ctx context.Context, proxy RoutingProxy) error {
		return proxy.RemoveMulticastReceiver(ctx, params)
	})
}

// HasMulticastReceivers reports whether any multicast pattern has a receiver.
func (r *MessageRouter) HasMulticastReceivers() bool {
	return r.receivers.len() > 0
}

// SetToKnown routes participantID through the parent router unless it
// already has an entry.
func (r *MessageRouter) SetToKnown(participantID string) {
	if !r.isReady() {
		r.log.Debug("setToKnown: ignoring call, router is shut down", log.ParticipantID(participantID))
		return
	}
	if r.cfg.ParentAddress != nil && r.table.PutIfAbsent(participantID, r.cfg.ParentAddress) {
		r.metrics.RoutingTableSize.Set(float64(r.table.Len()))
	}
}

// forwardToParent runs op against the routing proxy. While only the parent
// address is known, op is parked until SetRoutingProxy and the caller waits
// for it. Without a parent nothing is forwarded.
func (r *MessageRouter) forwardToParent(ctx context.Context, participantID string, op func(ctx context.Context, proxy RoutingProxy) error) error {
	r.mu.Lock()
	if !r.ready {
		r.mu.Unlock()
		return ErrRouterShutdown
	}
	proxy := r.proxy
	if proxy != nil {
		r.mu.Unlock()
		return op(ctx, proxy)
	}
	if r.cfg.ParentAddress == nil {
		r.mu.Unlock()
		return nil
	}

	call := &queuedCall{participantID: participantID, op: op, done: make(chan error, 1)}
	r.queuedCalls = append(r.queuedCalls, call)
	r.mu.Unlock()

	select {
	case err := <-call.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SetRoutingProxy connects the router to its parent. The proxy's own
// participant is registered upstream first, then all parked calls run.
func (r *MessageRouter) SetRoutingProxy(ctx context.Context, proxy RoutingProxy) error {
	r.mu.Lock()
	if !r.ready {
		r.mu.Unlock()
		return ErrRouterShutdown
	}
	r.proxy = proxy
	calls := r.queuedCalls
	r.queuedCalls = nil
	r.mu.Unlock()

	proxyParticipantID := proxy.ProxyParticipantID()
	if proxyParticipantID != "" && r.cfg.IncomingAddress != nil {
		// the routing provider is local, so the proxy is not globally visible
		if err := proxy.AddNextHop(ctx, proxyParticipantID, r.cfg.IncomingAddress, false); err != nil {
			if !r.isReady() {
				r.log.Debug("adding routing proxy upstream failed during shutdown", log.Error(err))
				return nil
			}
			r.failCalls(calls, err)
			return fmt.Errorf("add routing proxy %s to parent: %w", proxyParticipantID, err)
		}
	}

	for _, call := range calls {
		call := call // per-iteration copy (go.mod targets go1.21 loop semantics)
		if call.participantID != "" && call.participantID == proxyParticipantID {
			call.done <- nil
			continue
		}
		if err := r.tasks.Go(func() {
			call.done <- call.op(context.Background(), proxy)
		}); err != nil {
			call.done <- ErrRouterShutdown
		}
	}
	return nil
}

// ConfigureReplyToAddressFromRoutingProxy asks the parent router for the
// global reply-to address.
func (r *MessageRouter) ConfigureReplyToAddressFromRoutingProxy(ctx context.Context) error {
	r.mu.Lock()
	proxy := r.proxy
	r.mu.Unlock()
	if proxy == nil {
		return ErrNoRoutingProxy
	}
	replyTo, err := proxy.ReplyToAddress(ctx)
	if err != nil {
		return fmt.Errorf("failed to get reply-to address from parent router: %w", err)
	}
	r.SetReplyToAddress(ctx, replyTo)
	return nil
}

// SetReplyToAddress sets the reply-to address of outgoing request-type
// messages and routes the messages held back for lack of one.
func (r *MessageRouter) SetReplyToAddress(ctx context.Context, replyTo string) {
	r.mu.Lock()
	r.replyToAddress = replyTo
	held := r.messagesWithoutReplyTo
	r.messagesWithoutReplyTo = nil
	r.mu.Unlock()

	for _, e := range held {
		if err := r.Route(ctx, e); err != nil {
			r.log.Debug("could not route held message", log.MessageID(e.ID), log.Error(err))
		}
	}
}

// participantRegistered routes everything queued for participantID, oldest first.
func (r *MessageRouter) participantRegistered(ctx context.Context, participantID string) {
	ctx = context.WithoutCancel(ctx)
	for _, e := range r.queue.GetAndRemoveMessages(participantID) {
		if err := r.Route(ctx, e); err != nil {
			r.log.Debug("could not route queued message", log.MessageID(e.ID), log.Error(err))
		}
	}
}

func (r *MessageRouter) failCalls(calls []*queuedCall, err error) {
	for _, call := range calls {
		call.done <- err
	}
}

// Shutdown rejects parked parent calls, makes every later call fail with
// ErrRouterShutdown and shuts the message queue down.
func (r *MessageRouter) Shutdown() {
	r.mu.Lock()
	if !r.ready {
		r.mu.Unlock()
		return
	}
	r.ready = false
	calls := r.queuedCalls
	r.queuedCalls = nil
	r.mu.Unlock()

	r.failCalls(calls, ErrRouterShutdown)
	r.tasks.Close()
	r.queue.Shutdown()
}

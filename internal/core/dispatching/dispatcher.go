// Package dispatching turns requests, replies, subscriptions and publications
// into joynr envelopes and hands inbound envelopes to the component that
// handles their type.
package dispatching

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/multierr"

	"github.com/zeusync/joynr/internal/core/message"
	"github.com/zeusync/joynr/internal/core/messaging"
	"github.com/zeusync/joynr/internal/core/observability/log"
	"github.com/zeusync/joynr/internal/core/observability/metrics"
	"github.com/zeusync/joynr/internal/core/routing"
	"github.com/zeusync/joynr/pkg/concurrent"
)

var _ RequestSender = (*Dispatcher)(nil)

// Dispatcher builds outbound envelopes and sends them through the cluster
// controller stub, and demultiplexes inbound envelopes. Its collaborators
// depend on it in turn, so they are registered after construction.
type Dispatcher struct {
	clusterController messaging.MessagingStub
	security          SecurityManager
	ttlUpliftMs       int64
	codec             message.JSONCodec

	mu                  sync.RWMutex
	requestReplyManager RequestHandler
	messageRouter       MulticastRegistrar
	subscriptionManager SubscriptionManager
	publicationManager  PublicationManager

	tasks   *concurrent.TaskGroup
	clock   clock.Clock
	log     log.Log
	metrics *metrics.Metrics
}

func NewDispatcher(clusterController messaging.MessagingStub, opts ...Option) (*Dispatcher, error) {
	if clusterController == nil {
		return nil, ErrMissingClusterController
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	d := &Dispatcher{
		clusterController: clusterController,
		security:          o.security,
		ttlUpliftMs:       o.ttlUplift.Milliseconds(),
		clock:             o.clock,
		log:               o.log.Named("dispatcher"),
		metrics:           o.metrics,
	}
	d.tasks = concurrent.NewTaskGroup(func(recovered any) {
		d.log.Error("message handler panicked", log.Any("panic", recovered))
	})
	return d, nil
}

func (d *Dispatcher) RegisterRequestReplyManager(m RequestHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.requestReplyManager = m
}

func (d *Dispatcher) RegisterMessageRouter(r MulticastRegistrar) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.messageRouter = r
}

func (d *Dispatcher) RegisterSubscriptionManager(m SubscriptionManager) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.subscriptionManager = m
}

func (d *Dispatcher) RegisterPublicationManager(m PublicationManager) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.publicationManager = m
}

// upliftTTL adds the configured uplift to expiryDate, saturating at MaxLong.
func (d *Dispatcher) upliftTTL(expiryDate int64) int64 {
	return addSaturated(expiryDate, d.ttlUpliftMs)
}

func addSaturated(a, b int64) int64 {
	if b > 0 && a > message.MaxLong-b {
		return message.MaxLong
	}
	return a + b
}

// expiryFor returns the uplifted expiry date of an envelope sent now with ttl.
func (d *Dispatcher) expiryFor(ttl time.Duration) int64 {
	return d.upliftTTL(addSaturated(d.clock.Now().UnixMilli(), ttl.Milliseconds()))
}

func (d *Dispatcher) upliftSubscriptionQos(info *message.SubscriptionInfo) {
	if info.Qos == nil || info.Qos.ExpiryDateMs == message.NoExpiryDate {
		return
	}
	info.Qos.ExpiryDateMs = d.upliftTTL(info.Qos.ExpiryDateMs)
}

// sendJoynrMessage sets the addressing headers and transmits e.
func (d *Dispatcher) sendJoynrMessage(ctx context.Context, e *message.Envelope, settings SendSettings) error {
	if d.security != nil {
		e.Creator = d.security.CurrentProcessUserID()
	}
	e.From = settings.From
	e.To = settings.ToDiscoveryEntry.ParticipantID
	e.ExpiryDate = d.expiryFor(settings.MessagingQos.EffectiveTTL())
	if effort := settings.MessagingQos.Effort; effort != "" && effort != message.EffortNormal {
		e.Effort = effort
	}
	if settings.MessagingQos.Compress {
		e.Compress = true
	}
	e.IsLocalMessage = settings.ToDiscoveryEntry.IsLocal

	return d.transmit(ctx, e)
}

func (d *Dispatcher) transmit(ctx context.Context, e *message.Envelope) error {
	d.log.Debug("transmitting message",
		log.MessageID(e.ID),
		log.MessageType(e.Type.String()),
		log.From(e.From),
		log.To(e.To),
	)
	if err := d.clusterController.Transmit(ctx, e); err != nil {
		return fmt.Errorf("transmit %s %s: %w", e.Type, e.ID, err)
	}
	d.metrics.MessagesSent.WithLabelValues(e.Type.String()).Inc()
	return nil
}

func (d *Dispatcher) newEnvelope(t message.Type, body any) (*message.Envelope, error) {
	payload, err := d.codec.EncodePayload(body)
	if err != nil {
		return nil, err
	}
	return message.New(t, payload), nil
}

// SendRequest sends request and returns once the stub accepted the envelope.
func (d *Dispatcher) SendRequest(ctx context.Context, settings SendSettings, request *message.Request) error {
	request.EnsureID()
	e, err := d.newEnvelope(message.TypeRequest, request)
	if err != nil {
		return err
	}
	e.SetCustomHeaders(settings.MessagingQos.CustomHeaders)

	d.log.Info("calling "+request.MethodName,
		log.String("requestReplyId", request.RequestReplyID),
		log.From(settings.From),
		log.To(settings.ToDiscoveryEntry.ParticipantID),
	)
	return d.sendJoynrMessage(ctx, e, settings)
}

func (d *Dispatcher) SendOneWayRequest(ctx context.Context, settings SendSettings, request *message.OneWayRequest) error {
	e, err := d.newEnvelope(message.TypeOneWay, request)
	if err != nil {
		return err
	}
	e.SetCustomHeaders(settings.MessagingQos.CustomHeaders)

	d.log.Info("calling "+request.MethodName+" one-way",
		log.From(settings.From),
		log.To(settings.ToDiscoveryEntry.ParticipantID),
	)
	return d.sendJoynrMessage(ctx, e, settings)
}

// SendSubscriptionRequest subscribes to an attribute.
func (d *Dispatcher) SendSubscriptionRequest(ctx context.Context, settings SendSettings, request *message.SubscriptionRequest) error {
	d.log.Info("subscription to "+request.SubscribedToName,
		log.String("subscriptionId", request.SubscriptionID),
		log.From(settings.From),
		log.To(settings.ToDiscoveryEntry.ParticipantID),
	)
	e, err := d.newEnvelope(message.TypeSubscriptionRequest, request)
	if err != nil {
		return err
	}
	return d.sendJoynrMessage(ctx, e, settings)
}

// SendBroadcastSubscriptionRequest subscribes to a selective broadcast or to
// a multicast. A multicast subscriber is registered with the message router
// first; if that fails the request is not sent.
func (d *Dispatcher) SendBroadcastSubscriptionRequest(ctx context.Context, settings SendSettings, request message.AnySubscriptionRequest) error {
	info := request.Info()

	switch r := request.(type) {
	case *message.MulticastSubscriptionRequest:
		d.log.Info("multicast subscription to "+info.SubscribedToName,
			log.String("subscriptionId", info.SubscriptionID),
			log.String("multicastId", r.MulticastID),
			log.From(settings.From),
			log.To(settings.ToDiscoveryEntry.ParticipantID),
		)
		router, err := d.router()
		if err != nil {
			return err
		}
		if err = router.AddMulticastReceiver(ctx, routing.MulticastReceiverParams{
			MulticastID:             r.MulticastID,
			SubscriberParticipantID: settings.From,
			ProviderParticipantID:   settings.ToDiscoveryEntry.ParticipantID,
		}); err != nil {
			return fmt.Errorf("add multicast receiver for %s: %w", r.MulticastID, err)
		}
	case *message.BroadcastSubscriptionRequest:
		d.log.Info("broadcast subscription to "+info.SubscribedToName,
			log.String("subscriptionId", info.SubscriptionID),
			log.From(settings.From),
			log.To(settings.ToDiscoveryEntry.ParticipantID),
		)
	default:
		return fmt.Errorf("%w: %T", ErrUnsupportedSubscription, request)
	}

	e, err := d.newEnvelope(request.MessageType(), request)
	if err != nil {
		return err
	}
	return d.sendJoynrMessage(ctx, e, settings)
}

func (d *Dispatcher) SendSubscriptionStop(ctx context.Context, settings SendSettings, stop *message.SubscriptionStop) error {
	d.log.Info("subscription stop "+stop.SubscriptionID,
		log.From(settings.From),
		log.To(settings.ToDiscoveryEntry.ParticipantID),
	)
	e, err := d.newEnvelope(message.TypeSubscriptionStop, stop)
	if err != nil {
		return err
	}
	return d.sendJoynrMessage(ctx, e, settings)
}

// SendMulticastSubscriptionStop sends the stop and removes the subscriber
// from the message router. Both steps run; their errors are combined.
func (d *Dispatcher) SendMulticastSubscriptionStop(ctx context.Context, settings SendSettings, multicastID string, stop *message.SubscriptionStop) error {
	sendErr := d.SendSubscriptionStop(ctx, settings, stop)

	router, err := d.router()
	if err != nil {
		return multierr.Append(sendErr, err)
	}
	removeErr := router.RemoveMulticastReceiver(ctx, routing.MulticastReceiverParams{
		MulticastID:             multicastID,
		SubscriberParticipantID: settings.From,
		ProviderParticipantID:   settings.ToDiscoveryEntry.ParticipantID,
	})
	return multierr.Append(sendErr, removeErr)
}

// SendPublication publishes to one subscriber without waiting for the
// transmit. Failures are logged.
func (d *Dispatcher) SendPublication(ctx context.Context, settings PublicationSettings, publication *message.SubscriptionPublication) {
	e, err := d.newEnvelope(message.TypePublication, publication)
	if err != nil {
		d.log.Error("could not encode publication", log.String("subscriptionId", publication.SubscriptionID), log.Error(err))
		return
	}
	e.From = settings.From
	e.To = settings.To
	e.ExpiryDate = d.upliftTTL(settings.ExpiryDate)

	d.log.Info("publication", log.String("subscriptionId", publication.SubscriptionID), log.From(e.From), log.To(e.To))
	d.transmitDetached(ctx, e)
}

// SendMulticastPublication publishes to every subscriber of the publication's
// multicast id without waiting for the transmit. Failures are logged.
func (d *Dispatcher) SendMulticastPublication(ctx context.Context, settings MulticastPublicationSettings, publication *message.MulticastPublication) {
	e, err := d.newEnvelope(message.TypeMulticast, publication)
	if err != nil {
		d.log.Error("could not encode multicast publication", log.String("multicastId", publication.MulticastID), log.Error(err))
		return
	}
	e.From = settings.From
	e.To = publication.MulticastID
	e.ExpiryDate = d.upliftTTL(settings.ExpiryDate)

	d.log.Info("multicast publication", log.String("multicastId", publication.MulticastID), log.From(e.From))
	d.transmitDetached(ctx, e)
}

func (d *Dispatcher) transmitDetached(ctx context.Context, e *message.Envelope) {
	ctx = context.WithoutCancel(ctx)
	if err := d.tasks.Go(func() {
		if err := d.transmit(ctx, e); err != nil {
			d.log.Warn("publication not delivered", log.MessageID(e.ID), log.Error(err))
		}
	}); err != nil {
		d.log.Warn("dispatcher is shut down, dropping publication", log.MessageID(e.ID))
	}
}

// sendReply transmits an answer. Replies keep the expiry date of the
// envelope they answer.
func (d *Dispatcher) sendReply(ctx context.Context, t message.Type, settings ReplySettings, body any) error {
	e, err := d.newEnvelope(t, body)
	if err != nil {
		return err
	}
	e.From = settings.From
	e.To = settings.To
	e.ExpiryDate = settings.ExpiryDate
	e.SetCustomHeaders(settings.CustomHeaders)
	if settings.Effort != "" && settings.Effort != message.EffortNormal {
		e.Effort = settings.Effort
	}
	if settings.Compress {
		e.Compress = true
	}
	return d.transmit(ctx, e)
}

func (d *Dispatcher) sendRequestReply(ctx context.Context, settings ReplySettings, reply *message.Reply) error {
	d.log.Info("replying", log.String("requestReplyId", reply.RequestReplyID), log.From(settings.From), log.To(settings.To))
	return d.sendReply(ctx, message.TypeReply, settings, reply)
}

func (d *Dispatcher) sendSubscriptionReply(ctx context.Context, settings ReplySettings, reply *message.SubscriptionReply) error {
	d.log.Info("replying to subscription", log.String("subscriptionId", reply.SubscriptionID), log.From(settings.From), log.To(settings.To))
	return d.sendReply(ctx, message.TypeSubscriptionReply, settings, reply)
}

func replySettingsFor(e *message.Envelope) ReplySettings {
	return ReplySettings{
		From:          e.To,
		To:            e.From,
		ExpiryDate:    e.ExpiryDate,
		CustomHeaders: e.CustomHeaders,
	}
}

// Receive hands e to the component responsible for its type. It never fails:
// undecodable or unknown envelopes are logged and dropped, and handlers run
// in the background with their errors logged.
func (d *Dispatcher) Receive(ctx context.Context, e *message.Envelope) error {
	d.log.Debug("received message", log.MessageID(e.ID), log.MessageType(e.Type.String()))
	d.metrics.MessagesReceived.WithLabelValues(e.Type.String()).Inc()

	body, err := d.codec.DecodePayload(e)
	if err != nil {
		reason := metrics.ReasonParseFailed
		if errors.Is(err, message.ErrUnknownType) {
			reason = metrics.ReasonUnknownType
		}
		d.log.Error("dropping message", log.MessageID(e.ID), log.MessageType(e.Type.String()), log.Error(err))
		d.metrics.MessagesDropped.WithLabelValues(reason).Inc()
		return nil
	}

	handler := d.handlerFor(e, body)
	if handler == nil {
		return nil
	}

	ctx = context.WithoutCancel(ctx)
	if err = d.tasks.Go(func() {
		if err := handler(ctx); err != nil {
			d.log.Error("error handling message",
				log.MessageID(e.ID),
				log.MessageType(e.Type.String()),
				log.From(e.From),
				log.To(e.To),
				log.Error(err),
			)
		}
	}); err != nil {
		d.log.Warn("dispatcher is shut down, dropping message", log.MessageID(e.ID))
	}
	return nil
}

func (d *Dispatcher) handlerFor(e *message.Envelope, body any) func(ctx context.Context) error {
	switch b := body.(type) {
	case *message.Request:
		settings := replySettingsFor(e)
		if e.Effort == message.EffortBestEffort {
			settings.Effort = message.EffortBestEffort
		}
		settings.Compress = e.Compress
		d.log.Info("received request for "+b.MethodName, log.String("requestReplyId", b.RequestReplyID), log.From(e.From), log.To(e.To))
		return func(ctx context.Context) error {
			rrm, err := d.rrm()
			if err != nil {
				return err
			}
			return rrm.HandleRequest(ctx, e.To, b, d.sendRequestReply, settings)
		}

	case *message.Reply:
		d.log.Info("received reply", log.String("requestReplyId", b.RequestReplyID), log.From(e.From), log.To(e.To))
		return func(context.Context) error {
			rrm, err := d.rrm()
			if err != nil {
				return err
			}
			rrm.HandleReply(b)
			return nil
		}

	case *message.OneWayRequest:
		d.log.Info("received one way request for "+b.MethodName, log.From(e.From), log.To(e.To))
		return func(ctx context.Context) error {
			rrm, err := d.rrm()
			if err != nil {
				return err
			}
			return rrm.HandleOneWayRequest(ctx, e.To, b)
		}

	case *message.SubscriptionRequest:
		d.upliftSubscriptionQos(b.Info())
		d.log.Info("received subscription to "+b.SubscribedToName, log.From(e.From), log.To(e.To))
		return func(ctx context.Context) error {
			pm, err := d.publications()
			if err != nil {
				return err
			}
			return pm.HandleSubscriptionRequest(ctx, e.From, e.To, b, d.sendSubscriptionReply, replySettingsFor(e))
		}

	case *message.BroadcastSubscriptionRequest:
		d.upliftSubscriptionQos(b.Info())
		d.log.Info("received broadcast subscription to "+b.SubscribedToName, log.From(e.From), log.To(e.To))
		return func(ctx context.Context) error {
			pm, err := d.publications()
			if err != nil {
				return err
			}
			return pm.HandleBroadcastSubscriptionRequest(ctx, e.From, e.To, b, d.sendSubscriptionReply, replySettingsFor(e))
		}

	case *message.MulticastSubscriptionRequest:
		d.upliftSubscriptionQos(b.Info())
		d.log.Info("received multicast subscription to "+b.SubscribedToName, log.From(e.From), log.To(e.To))
		return func(ctx context.Context) error {
			pm, err := d.publications()
			if err != nil {
				return err
			}
			return pm.HandleMulticastSubscriptionRequest(ctx, e.From, e.To, b, d.sendSubscriptionReply, replySettingsFor(e))
		}

	case *message.SubscriptionStop:
		d.log.Info("received subscription stop "+b.SubscriptionID, log.From(e.From), log.To(e.To))
		return func(ctx context.Context) error {
			pm, err := d.publications()
			if err != nil {
				return err
			}
			return pm.HandleSubscriptionStop(ctx, b)
		}

	case *message.SubscriptionReply:
		d.log.Info("received subscription reply", log.String("subscriptionId", b.SubscriptionID), log.From(e.From), log.To(e.To))
		return func(ctx context.Context) error {
			sm, err := d.subscriptions()
			if err != nil {
				return err
			}
			return sm.HandleSubscriptionReply(ctx, b)
		}

	case *message.SubscriptionPublication:
		d.log.Info("received publication", log.String("subscriptionId", b.SubscriptionID), log.From(e.From), log.To(e.To))
		return func(ctx context.Context) error {
			sm, err := d.subscriptions()
			if err != nil {
				return err
			}
			return sm.HandlePublication(ctx, b)
		}

	case *message.MulticastPublication:
		d.log.Info("received multicast publication", log.String("multicastId", b.MulticastID), log.From(e.From))
		return func(ctx context.Context) error {
			sm, err := d.subscriptions()
			if err != nil {
				return err
			}
			return sm.HandleMulticastPublication(ctx, b)
		}
	}

	d.log.Error("unknown message type, discarding message", log.MessageID(e.ID), log.MessageType(e.Type.String()))
	d.metrics.MessagesDropped.WithLabelValues(metrics.ReasonUnknownType).Inc()
	return nil
}

func (d *Dispatcher) rrm() (RequestHandler, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.requestReplyManager == nil {
		return nil, ErrNoRequestReplyManager
	}
	return d.requestReplyManager, nil
}

func (d *Dispatcher) router() (MulticastRegistrar, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.messageRouter == nil {
		return nil, ErrNoMessageRouter
	}
	return d.messageRouter, nil
}

func (d *Dispatcher) subscriptions() (SubscriptionManager, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.subscriptionManager == nil {
		return nil, ErrNoSubscriptionManager
	}
	return d.subscriptionManager, nil
}

func (d *Dispatcher) publications() (PublicationManager, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.publicationManager == nil {
		return nil, ErrNoPublicationManager
	}
	return d.publicationManager, nil
}

// Shutdown waits for running handlers and background transmits. Later
// inbound messages and publications are dropped.
func (d *Dispatcher) Shutdown() {
	d.log.Debug("dispatcher shutting down")
	d.tasks.Close()
}

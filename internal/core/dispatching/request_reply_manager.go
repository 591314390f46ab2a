package dispatching

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/benbjohnson/clock"

	"github.com/zeusync/joynr/internal/core/exceptions"
	"github.com/zeusync/joynr/internal/core/message"
	"github.com/zeusync/joynr/internal/core/observability/log"
	"github.com/zeusync/joynr/internal/core/observability/metrics"
)

var _ RequestHandler = (*RequestReplyManager)(nil)

// ReplyResult is a successful reply together with the settings the caller
// passed to SendRequest.
type ReplyResult struct {
	Response []any
	Settings any
}

type replyOutcome struct {
	result *ReplyResult
	err    error
}

// replyCaller is a pending outbound request. The outcome channel is buffered
// so completing a caller never blocks.
type replyCaller struct {
	expiresAt int64
	settings  any
	outcome   chan replyOutcome
}

// RequestReplyManager correlates outbound requests with their replies and
// answers inbound requests with the registered providers. Pending requests
// expire only through the periodic sweep.
type RequestReplyManager struct {
	sender   RequestSender
	registry *exceptions.Registry

	mu           sync.Mutex
	started      bool
	replyCallers map[string]*replyCaller
	providers    map[string]*Provider

	ticker *clock.Ticker
	done   chan struct{}
	wg     sync.WaitGroup

	clock   clock.Clock
	log     log.Log
	metrics *metrics.Metrics
}

func NewRequestReplyManager(sender RequestSender, opts ...Option) (*RequestReplyManager, error) {
	if sender == nil {
		return nil, ErrMissingRequestSender
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	m := &RequestReplyManager{
		sender:       sender,
		registry:     o.registry,
		started:      true,
		replyCallers: make(map[string]*replyCaller),
		providers:    make(map[string]*Provider),
		ticker:       o.clock.Ticker(o.cleanupInterval),
		done:         make(chan struct{}),
		clock:        o.clock,
		log:          o.log.Named("request_reply_manager"),
		metrics:      o.metrics,
	}

	m.wg.Add(1)
	go m.sweepLoop()

	return m, nil
}

func (m *RequestReplyManager) checkIfReady() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.started {
		return ErrShutdown
	}
	return nil
}

// SendRequest sends request and blocks until its reply arrives, its ttl
// expires, the manager shuts down or ctx is done. If the send itself fails
// the request is forgotten and the error returned right away.
func (m *RequestReplyManager) SendRequest(ctx context.Context, settings SendSettings, request *message.Request, callbackSettings any) (*ReplyResult, error) {
	request.EnsureID()
	id := request.RequestReplyID

	caller := &replyCaller{
		expiresAt: m.clock.Now().UnixMilli() + settings.MessagingQos.EffectiveTTL().Milliseconds(),
		settings:  callbackSettings,
		outcome:   make(chan replyOutcome, 1),
	}

	m.mu.Lock()
	if !m.started {
		m.mu.Unlock()
		return nil, ErrShutdown
	}
	m.replyCallers[id] = caller
	pending := len(m.replyCallers)
	m.mu.Unlock()
	m.metrics.PendingReplies.Set(float64(pending))

	if err := m.sender.SendRequest(ctx, settings, request); err != nil {
		m.takeReplyCaller(id)
		return nil, fmt.Errorf("send request %s: %w", id, err)
	}

	select {
	case outcome := <-caller.outcome:
		return outcome.result, outcome.err
	case <-ctx.Done():
		m.takeReplyCaller(id)
		return nil, ctx.Err()
	}
}

// SendOneWayRequest sends request without expecting a reply.
func (m *RequestReplyManager) SendOneWayRequest(ctx context.Context, settings SendSettings, request *message.OneWayRequest) error {
	if err := m.checkIfReady(); err != nil {
		return err
	}
	return m.sender.SendOneWayRequest(ctx, settings, request)
}

// takeReplyCaller removes and returns the caller for id. Whoever takes a
// caller is the only one allowed to complete it.
func (m *RequestReplyManager) takeReplyCaller(id string) *replyCaller {
	m.mu.Lock()
	caller, ok := m.replyCallers[id]
	if ok {
		delete(m.replyCallers, id)
	}
	pending := len(m.replyCallers)
	m.mu.Unlock()

	if ok {
		m.metrics.PendingReplies.Set(float64(pending))
	}
	return caller
}

// AddRequestCaller registers provider to answer requests for participantID.
func (m *RequestReplyManager) AddRequestCaller(participantID string, provider *Provider) error {
	provider.freeze()

	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.started {
		return ErrShutdown
	}
	m.providers[participantID] = provider
	return nil
}

// RemoveRequestCaller unregisters the provider of participantID. Removing an
// unknown participant is not an error.
func (m *RequestReplyManager) RemoveRequestCaller(participantID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.started {
		return ErrShutdown
	}
	if _, ok := m.providers[participantID]; !ok {
		m.log.Debug("no provider registered", log.ParticipantID(participantID))
		return nil
	}
	delete(m.providers, participantID)
	return nil
}

func (m *RequestReplyManager) provider(participantID string) (*Provider, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.started {
		return nil, false
	}
	p, ok := m.providers[participantID]
	return p, ok
}

// HandleRequest invokes the requested operation or attribute accessor and
// passes the outcome as a reply to callback. Failures become error replies;
// only the callback's error is returned.
func (m *RequestReplyManager) HandleRequest(ctx context.Context, providerParticipantID string, request *message.Request, callback ReplyCallback, settings ReplySettings) error {
	var (
		response []any
		err      error
	)

	if readyErr := m.checkIfReady(); readyErr != nil {
		err = &exceptions.MethodInvocationException{
			DetailMessage: fmt.Sprintf("error handling request: %s for providerParticipantId %s. Joynr runtime already shut down.",
				describe(request), providerParticipantID),
		}
	} else if provider, ok := m.provider(providerParticipantID); !ok {
		err = &exceptions.MethodInvocationException{
			DetailMessage: fmt.Sprintf("error handling request: %s for providerParticipantId %s",
				describe(request), providerParticipantID),
		}
	} else {
		response, err = provider.invoke(ctx, request.MethodName, request.Params, request.ParamDatatypes)
	}

	if err != nil {
		response = nil
	} else if response == nil {
		response = []any{}
	}

	reply, replyErr := message.NewReply(request.RequestReplyID, response, err)
	if replyErr != nil {
		return replyErr
	}
	return callback(ctx, settings, reply)
}

// HandleOneWayRequest invokes the requested method and returns its failure,
// since there is nobody to reply to.
func (m *RequestReplyManager) HandleOneWayRequest(ctx context.Context, providerParticipantID string, request *message.OneWayRequest) error {
	if err := m.checkIfReady(); err != nil {
		return err
	}
	provider, ok := m.provider(providerParticipantID)
	if !ok {
		return &exceptions.MethodInvocationException{
			DetailMessage: fmt.Sprintf("error handling one-way request: %s for providerParticipantId %s",
				describe(request), providerParticipantID),
		}
	}
	_, err := provider.invoke(ctx, request.MethodName, request.Params, request.ParamDatatypes)
	return err
}

// HandleReply completes the pending request the reply belongs to. A reply
// without a pending request is logged and dropped.
func (m *RequestReplyManager) HandleReply(reply *message.Reply) {
	caller := m.takeReplyCaller(reply.RequestReplyID)
	if caller == nil {
		m.log.Error("error handling reply, no reply caller found", log.String("requestReplyId", reply.RequestReplyID))
		m.metrics.OrphanReplies.Inc()
		return
	}

	if reply.Error != nil {
		err := m.registry.Hydrate(reply.Error)
		m.log.Info("got reply with exception", log.String("requestReplyId", reply.RequestReplyID), log.Error(err))
		caller.outcome <- replyOutcome{err: err}
		return
	}
	caller.outcome <- replyOutcome{result: &ReplyResult{Response: reply.Response, Settings: caller.settings}}
}

func (m *RequestReplyManager) sweepLoop() {
	defer m.wg.Done()
	for {
		select {
		case <-m.done:
			return
		case <-m.ticker.C:
			m.sweep()
		}
	}
}

// sweep rejects every pending request whose ttl has passed.
func (m *RequestReplyManager) sweep() {
	now := m.clock.Now().UnixMilli()

	expired := make(map[string]*replyCaller)
	m.mu.Lock()
	for id, caller := range m.replyCallers {
		if caller.expiresAt <= now {
			expired[id] = caller
			delete(m.replyCallers, id)
		}
	}
	pending := len(m.replyCallers)
	m.mu.Unlock()

	if len(expired) == 0 {
		return
	}
	m.metrics.PendingReplies.Set(float64(pending))
	for id, caller := range expired {
		caller.outcome <- replyOutcome{err: fmt.Errorf("request with id %q failed: %w", id, ErrReplyTTLExpired)}
		m.metrics.RepliesExpired.Inc()
	}
}

// Shutdown stops the sweep and rejects every pending request with
// ErrShutdown. Every later call fails with ErrShutdown.
func (m *RequestReplyManager) Shutdown() {
	m.mu.Lock()
	if !m.started {
		m.mu.Unlock()
		return
	}
	m.started = false
	callers := m.replyCallers
	m.replyCallers = make(map[string]*replyCaller)
	m.mu.Unlock()

	m.ticker.Stop()
	close(m.done)
	m.wg.Wait()

	for _, caller := range callers {
		caller.outcome <- replyOutcome{err: ErrShutdown}
	}
	m.metrics.PendingReplies.Set(0)
}

func describe(request any) string {
	raw, err := json.Marshal(request)
	if err != nil {
		return fmt.Sprintf("%+v", request)
	}
	return string(raw)
}

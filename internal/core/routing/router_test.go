package routing

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/zeusync/joynr/internal/core/address"
	"github.com/zeusync/joynr/internal/core/message"
	"github.com/zeusync/joynr/internal/core/messagequeue"
	"github.com/zeusync/joynr/internal/core/messaging"
	"github.com/zeusync/joynr/internal/core/observability/metrics"
	"github.com/zeusync/joynr/internal/core/persistence"
)

const nowMs = 1_700_000_000_000

type delivery struct {
	addr     address.Address
	envelope *message.Envelope
}

// recordingStubs is a stub factory that records every transmit.
type recordingStubs struct {
	mu        sync.Mutex
	delivered []delivery
	failFor   address.Address
}

func (s *recordingStubs) CreateMessagingStub(addr address.Address) (messaging.MessagingStub, error) {
	return messaging.StubFunc(func(_ context.Context, e *message.Envelope) error {
		if s.failFor != nil && s.failFor.Equal(addr) {
			return errors.New("transport down")
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		s.delivered = append(s.delivered, delivery{addr: addr, envelope: e})
		return nil
	}), nil
}

func (s *recordingStubs) to(addr address.Address) []*message.Envelope {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*message.Envelope
	for _, d := range s.delivered {
		if d.addr.Equal(addr) {
			out = append(out, d.envelope)
		}
	}
	return out
}

func (s *recordingStubs) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.delivered)
}

type mockProxy struct {
	mock.Mock
}

func (m *mockProxy) ProxyParticipantID() string {
	return m.Called().String(0)
}

func (m *mockProxy) AddNextHop(ctx context.Context, participantID string, incoming address.Address, isGloballyVisible bool) error {
	return m.Called(participantID, incoming, isGloballyVisible).Error(0)
}

func (m *mockProxy) RemoveNextHop(ctx context.Context, participantID string) error {
	return m.Called(participantID).Error(0)
}

func (m *mockProxy) ResolveNextHop(ctx context.Context, participantID string) (bool, error) {
	args := m.Called(participantID)
	return args.Bool(0), args.Error(1)
}

func (m *mockProxy) AddMulticastReceiver(ctx context.Context, params MulticastReceiverParams) error {
	return m.Called(params).Error(0)
}

func (m *mockProxy) RemoveMulticastReceiver(ctx context.Context, params MulticastReceiverParams) error {
	return m.Called(params).Error(0)
}

func (m *mockProxy) ReplyToAddress(ctx context.Context) (string, error) {
	args := m.Called()
	return args.String(0), args.Error(1)
}

type fixture struct {
	router  *MessageRouter
	stubs   *recordingStubs
	queue   *messagequeue.MessageQueue
	store   *persistence.MemoryStore
	clock   *clock.Mock
	metrics *metrics.Metrics
}

func newFixture(t *testing.T, cfg Config, opts ...Option) *fixture {
	t.Helper()
	mockClock := clock.NewMock()
	mockClock.Set(time.UnixMilli(nowMs))

	f := &fixture{
		stubs:   &recordingStubs{},
		store:   persistence.NewMemoryStore(),
		clock:   mockClock,
		metrics: metrics.NewNop(),
	}
	f.queue = messagequeue.New(messagequeue.DefaultConfig(), messagequeue.WithClock(mockClock))
	if cfg.InstanceID == "" {
		cfg.InstanceID = "inst"
	}

	opts = append([]Option{WithClock(mockClock), WithStore(f.store), WithMetrics(f.metrics)}, opts...)
	router, err := New(cfg, f.stubs, f.queue, opts...)
	require.NoError(t, err)
	f.router = router
	t.Cleanup(router.Shutdown)
	return f
}

func request(to string) *message.Envelope {
	e := message.New(message.TypeRequest, `{"_typeName":"joynr.Request"}`)
	e.From = "proxy"
	e.To = to
	e.ExpiryDate = nowMs + 60_000
	e.IsLocalMessage = true
	return e
}

func mqtt(topic string) *address.MqttAddress {
	return &address.MqttAddress{BrokerURI: "tcp://broker:1883", Topic: topic}
}

func TestNew_Validation(t *testing.T) {
	q := messagequeue.New(messagequeue.DefaultConfig())
	defer q.Shutdown()

	_, err := New(Config{ParentAddress: mqtt("cc")}, &recordingStubs{}, q)
	assert.ErrorIs(t, err, ErrMissingIncomingAddress)
	_, err = New(Config{}, nil, q)
	assert.ErrorIs(t, err, ErrMissingStubFactory)
	_, err = New(Config{}, &recordingStubs{}, nil)
	assert.ErrorIs(t, err, ErrMissingMessageQueue)
}

func TestRoute_KnownParticipant(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()
	require.NoError(t, f.router.AddNextHop(ctx, "provider", mqtt("provider"), false))

	e := request("provider")
	require.NoError(t, f.router.Route(ctx, e))
	assert.Equal(t, []*message.Envelope{e}, f.stubs.to(mqtt("provider")))
	assert.Equal(t, float64(1), testutil.ToFloat64(f.metrics.MessagesRouted.WithLabelValues("request")))
}

func TestRoute_QueuesUntilAddNextHop(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()

	first := request("late-provider")
	second := request("late-provider")
	require.NoError(t, f.router.Route(ctx, first))
	require.NoError(t, f.router.Route(ctx, second))
	assert.Equal(t, 0, f.stubs.count())
	assert.Equal(t, 1, f.queue.Len())

	require.NoError(t, f.router.AddNextHop(ctx, "late-provider", mqtt("late"), false))

	assert.Equal(t, []*message.Envelope{first, second}, f.stubs.to(mqtt("late")))
	assert.Equal(t, 0, f.queue.Len())
}

func TestRoute_DropsAnswersForUnknownParticipants(t *testing.T) {
	for _, typ := range []message.Type{message.TypeReply, message.TypeSubscriptionReply, message.TypePublication} {
		t.Run(typ.String(), func(t *testing.T) {
			f := newFixture(t, Config{})
			e := request("gone-proxy")
			e.Type = typ

			require.NoError(t, f.router.Route(context.Background(), e))
			assert.Equal(t, 0, f.queue.Len())
			assert.Equal(t, 0, f.stubs.count())
			assert.Equal(t, float64(1), testutil.ToFloat64(f.metrics.MessagesDropped.WithLabelValues(metrics.ReasonUnknownReplyTo)))
		})
	}
}

func TestRoute_DropsExpired(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()
	require.NoError(t, f.router.AddNextHop(ctx, "provider", mqtt("provider"), false))

	e := request("provider")
	e.ExpiryDate = nowMs - 1
	require.NoError(t, f.router.Route(ctx, e))
	assert.Equal(t, 0, f.stubs.count())
	assert.Equal(t, float64(1), testutil.ToFloat64(f.metrics.MessagesDropped.WithLabelValues(metrics.ReasonExpired)))
}

func TestRoute_TransmitFailureIsSwallowed(t *testing.T) {
	f := newFixture(t, Config{})
	f.stubs.failFor = mqtt("flaky")
	ctx := context.Background()
	require.NoError(t, f.router.AddNextHop(ctx, "provider", mqtt("flaky"), false))

	assert.NoError(t, f.router.Route(ctx, request("provider")))
	assert.Equal(t, float64(1), testutil.ToFloat64(f.metrics.MessagesDropped.WithLabelValues(metrics.ReasonTransmitFailed)))
}

func TestAddNextHop_PersistsAllButInProcess(t *testing.T) {
	f := newFixture(t, Config{InstanceID: "inst"})
	ctx := context.Background()

	require.NoError(t, f.router.AddNextHop(ctx, "remote", mqtt("remote"), true))
	require.NoError(t, f.router.AddNextHop(ctx, "local", address.NewInProcess(nil), false))

	assert.Equal(t, "inst_remote", f.router.GetStorageKey("remote"))
	stored, err := f.store.GetItem("inst_remote")
	require.NoError(t, err)
	decoded, err := address.Unmarshal([]byte(stored))
	require.NoError(t, err)
	assert.True(t, mqtt("remote").Equal(decoded))

	_, err = f.store.GetItem("inst_local")
	assert.ErrorIs(t, err, persistence.ErrItemNotFound)

	require.NoError(t, f.router.RemoveNextHop(ctx, "remote"))
	_, err = f.store.GetItem("inst_remote")
	assert.ErrorIs(t, err, persistence.ErrItemNotFound)
	_, err = f.router.ResolveNextHop(ctx, "remote")
	assert.ErrorIs(t, err, ErrNotReachable)
}

func TestResolveNextHop_FromPersistenceAfterRestart(t *testing.T) {
	store := persistence.NewMemoryStore()
	require.NoError(t, store.SetItem("inst_p1", `{"_typeName":"joynr.system.RoutingTypes.MqttAddress","brokerUri":"tcp://broker:1883","topic":"p1"}`))
	require.NoError(t, store.SetItem("inst_empty", "{}"))

	f := newFixture(t, Config{InstanceID: "inst"}, WithStore(store))
	ctx := context.Background()

	addr, err := f.router.ResolveNextHop(ctx, "p1")
	require.NoError(t, err)
	assert.True(t, mqtt("p1").Equal(addr))

	e := request("p1")
	require.NoError(t, f.router.Route(ctx, e))
	assert.Len(t, f.stubs.to(mqtt("p1")), 1)

	_, err = f.router.ResolveNextHop(ctx, "empty")
	assert.ErrorIs(t, err, ErrNotReachable)
	_, err = store.GetItem("inst_empty")
	assert.ErrorIs(t, err, persistence.ErrItemNotFound)
}

func TestResolveNextHop_ViaParentCachesParentAddress(t *testing.T) {
	parent := mqtt("cluster-controller")
	incoming := &address.WebSocketClientAddress{ID: "me"}
	f := newFixture(t, Config{ParentAddress: parent, IncomingAddress: incoming})
	ctx := context.Background()

	proxy := &mockProxy{}
	proxy.On("ProxyParticipantID").Return("routing-proxy")
	proxy.On("AddNextHop", "routing-proxy", incoming, false).Return(nil)
	proxy.On("ResolveNextHop", "remote").Return(true, nil).Once()
	proxy.On("ResolveNextHop", "nobody").Return(false, nil)
	require.NoError(t, f.router.SetRoutingProxy(ctx, proxy))

	addr, err := f.router.ResolveNextHop(ctx, "remote")
	require.NoError(t, err)
	assert.True(t, parent.Equal(addr))

	// served from the routing table, the proxy is asked only once
	addr, err = f.router.ResolveNextHop(ctx, "remote")
	require.NoError(t, err)
	assert.True(t, parent.Equal(addr))

	_, err = f.router.ResolveNextHop(ctx, "nobody")
	assert.ErrorIs(t, err, ErrNotReachable)

	// unknown to the parent as well: queued like without a parent
	require.NoError(t, f.router.Route(ctx, request("nobody")))
	assert.Equal(t, 1, f.queue.Len())

	proxy.AssertExpectations(t)
}

func TestParentCalls_QueuedUntilRoutingProxy(t *testing.T) {
	parent := mqtt("cluster-controller")
	incoming := &address.WebSocketClientAddress{ID: "me"}
	f := newFixture(t, Config{ParentAddress: parent, IncomingAddress: incoming})
	ctx := context.Background()

	addDone := make(chan error, 1)
	go func() { addDone <- f.router.AddNextHop(ctx, "provider", mqtt("p"), true) }()

	assert.Eventually(t, func() bool {
		f.router.mu.Lock()
		defer f.router.mu.Unlock()
		return len(f.router.queuedCalls) == 1
	}, time.Second, 5*time.Millisecond)

	// local part is visible before the parent link exists
	addr, err := f.router.ResolveNextHop(ctx, "provider")
	require.NoError(t, err)
	assert.True(t, mqtt("p").Equal(addr))

	proxy := &mockProxy{}
	proxy.On("ProxyParticipantID").Return("routing-proxy")
	proxy.On("AddNextHop", "routing-proxy", incoming, false).Return(nil)
	proxy.On("AddNextHop", "provider", incoming, true).Return(nil)
	require.NoError(t, f.router.SetRoutingProxy(ctx, proxy))

	select {
	case err := <-addDone:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("queued addNextHop was not flushed")
	}
	proxy.AssertExpectations(t)
}

func TestShutdown_RejectsQueuedParentCalls(t *testing.T) {
	f := newFixture(t, Config{ParentAddress: mqtt("cc"), IncomingAddress: &address.UdsClientAddress{ID: "me"}})
	ctx := context.Background()

	removeDone := make(chan error, 1)
	go func() { removeDone <- f.router.RemoveNextHop(ctx, "provider") }()
	assert.Eventually(t, func() bool {
		f.router.mu.Lock()
		defer f.router.mu.Unlock()
		return len(f.router.queuedCalls) == 1
	}, time.Second, 5*time.Millisecond)

	f.router.Shutdown()

	select {
	case err := <-removeDone:
		assert.ErrorIs(t, err, ErrRouterShutdown)
	case <-time.After(2 * time.Second):
		t.Fatal("queued call was not rejected")
	}

	assert.ErrorIs(t, f.router.AddNextHop(ctx, "x", mqtt("x"), false), ErrRouterShutdown)
	assert.ErrorIs(t, f.router.Route(ctx, request("x")), ErrRouterShutdown)
	_, err := f.router.ResolveNextHop(ctx, "x")
	assert.ErrorIs(t, err, ErrRouterShutdown)
	assert.ErrorIs(t, f.queue.PutMessage(request("x")), messagequeue.ErrQueueShutdown)
}

func TestMulticast_FanOutDeduplicatesReceivers(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()

	require.NoError(t, f.router.AddNextHop(ctx, "provider", address.NewInProcess(nil), false))
	require.NoError(t, f.router.AddNextHop(ctx, "sub-a", mqtt("a"), false))
	require.NoError(t, f.router.AddNextHop(ctx, "sub-b", mqtt("b"), false))
	require.NoError(t, f.router.AddNextHop(ctx, "sub-b2", mqtt("b"), false))

	params := MulticastReceiverParams{MulticastID: "provider/weather/+", SubscriberParticipantID: "sub-a", ProviderParticipantID: "provider"}
	require.NoError(t, f.router.AddMulticastReceiver(ctx, params))
	require.NoError(t, f.router.AddMulticastReceiver(ctx, params))
	require.NoError(t, f.router.AddMulticastReceiver(ctx, MulticastReceiverParams{
		MulticastID: "provider/weather/*", SubscriberParticipantID: "sub-b", ProviderParticipantID: "provider",
	}))
	require.NoError(t, f.router.AddMulticastReceiver(ctx, MulticastReceiverParams{
		MulticastID: "provider/weather/*", SubscriberParticipantID: "sub-b2", ProviderParticipantID: "provider",
	}))
	assert.True(t, f.router.HasMulticastReceivers())

	e := message.New(message.TypeMulticast, `{"_typeName":"joynr.MulticastPublication"}`)
	e.From = "provider"
	e.To = "provider/weather/munich"
	e.ExpiryDate = nowMs + 1000
	require.NoError(t, f.router.Route(ctx, e))

	assert.Len(t, f.stubs.to(mqtt("a")), 1)
	assert.Len(t, f.stubs.to(mqtt("b")), 1)

	// one registration of sub-a remains after removing one
	require.NoError(t, f.router.RemoveMulticastReceiver(ctx, params))
	require.NoError(t, f.router.Route(ctx, e))
	assert.Len(t, f.stubs.to(mqtt("a")), 2)
}

func TestMulticast_FailingReceiverDoesNotStopOthers(t *testing.T) {
	f := newFixture(t, Config{})
	f.stubs.failFor = mqtt("a")
	ctx := context.Background()

	require.NoError(t, f.router.AddNextHop(ctx, "provider", address.NewInProcess(nil), false))
	require.NoError(t, f.router.AddNextHop(ctx, "sub-a", mqtt("a"), false))
	require.NoError(t, f.router.AddNextHop(ctx, "sub-b", mqtt("b"), false))
	for _, sub := range []string{"sub-a", "sub-b"} {
		require.NoError(t, f.router.AddMulticastReceiver(ctx, MulticastReceiverParams{
			MulticastID: "provider/alarm", SubscriberParticipantID: sub, ProviderParticipantID: "provider",
		}))
	}

	e := message.New(message.TypeMulticast, `{"_typeName":"joynr.MulticastPublication"}`)
	e.From = "provider"
	e.To = "provider/alarm"
	e.ExpiryDate = nowMs + 1000
	require.NoError(t, f.router.Route(ctx, e))

	assert.Empty(t, f.stubs.to(mqtt("a")))
	assert.Len(t, f.stubs.to(mqtt("b")), 1)
}

type fixedCalculator struct{ addr address.Address }

func (c fixedCalculator) Calculate(*message.Envelope) address.Address { return c.addr }

func TestMulticast_GlobalAddressOnlyForLocalPublications(t *testing.T) {
	global := mqtt("global/multicast")
	f := newFixture(t, Config{}, WithMulticastAddressCalculator(fixedCalculator{addr: global}))
	ctx := context.Background()

	e := message.New(message.TypeMulticast, "{}")
	e.To = "provider/event"
	e.ExpiryDate = nowMs + 1000
	require.NoError(t, f.router.Route(ctx, e))
	assert.Len(t, f.stubs.to(global), 1)

	fromGlobal := message.New(message.TypeMulticast, "{}")
	fromGlobal.To = "provider/event"
	fromGlobal.ExpiryDate = nowMs + 1000
	fromGlobal.IsReceivedFromGlobal = true
	require.NoError(t, f.router.Route(ctx, fromGlobal))
	assert.Len(t, f.stubs.to(global), 1)
}

type recordingSkeleton struct {
	registered   []string
	unregistered []string
	failRegister error
}

func (s *recordingSkeleton) RegisterMulticastSubscription(id string) error {
	if s.failRegister != nil {
		return s.failRegister
	}
	s.registered = append(s.registered, id)
	return nil
}

func (s *recordingSkeleton) UnregisterMulticastSubscription(id string) error {
	s.unregistered = append(s.unregistered, id)
	return nil
}

func TestMulticast_SkeletonFollowsFirstAndLastReceiver(t *testing.T) {
	skeleton := &recordingSkeleton{}
	f := newFixture(t, Config{}, WithMulticastSkeleton(address.TypeMqtt, skeleton))
	ctx := context.Background()
	require.NoError(t, f.router.AddNextHop(ctx, "provider", mqtt("provider"), false))

	p1 := MulticastReceiverParams{MulticastID: "provider/news", SubscriberParticipantID: "s1", ProviderParticipantID: "provider"}
	p2 := MulticastReceiverParams{MulticastID: "provider/news", SubscriberParticipantID: "s2", ProviderParticipantID: "provider"}
	require.NoError(t, f.router.AddMulticastReceiver(ctx, p1))
	require.NoError(t, f.router.AddMulticastReceiver(ctx, p2))
	assert.Equal(t, []string{"provider/news"}, skeleton.registered)

	require.NoError(t, f.router.RemoveMulticastReceiver(ctx, p1))
	assert.Empty(t, skeleton.unregistered)
	require.NoError(t, f.router.RemoveMulticastReceiver(ctx, p2))
	assert.Equal(t, []string{"provider/news"}, skeleton.unregistered)
	assert.False(t, f.router.HasMulticastReceivers())
}

func TestMulticast_SkeletonFailureRollsBack(t *testing.T) {
	skeleton := &recordingSkeleton{failRegister: errors.New("broker refused")}
	f := newFixture(t, Config{}, WithMulticastSkeleton(address.TypeMqtt, skeleton))
	ctx := context.Background()
	require.NoError(t, f.router.AddNextHop(ctx, "provider", mqtt("provider"), false))

	err := f.router.AddMulticastReceiver(ctx, MulticastReceiverParams{
		MulticastID: "provider/news", SubscriberParticipantID: "s1", ProviderParticipantID: "provider",
	})
	assert.Error(t, err)
	assert.False(t, f.router.HasMulticastReceivers())
}

func TestMulticast_ForwardedToParentForRemoteProviders(t *testing.T) {
	incoming := &address.WebSocketClientAddress{ID: "me"}
	f := newFixture(t, Config{ParentAddress: mqtt("cc"), IncomingAddress: incoming})
	ctx := context.Background()

	proxy := &mockProxy{}
	proxy.On("ProxyParticipantID").Return("")
	require.NoError(t, f.router.SetRoutingProxy(ctx, proxy))

	f.router.SetToKnown("remote-provider")
	f.router.table.Put("local-provider", address.NewInProcess(nil))

	remote := MulticastReceiverParams{MulticastID: "remote-provider/b", SubscriberParticipantID: "s", ProviderParticipantID: "remote-provider"}
	proxy.On("AddMulticastReceiver", remote).Return(nil).Once()
	proxy.On("RemoveMulticastReceiver", remote).Return(errors.New("parent down")).Once()
	require.NoError(t, f.router.AddMulticastReceiver(ctx, remote))
	assert.Error(t, f.router.RemoveMulticastReceiver(ctx, remote))

	local := MulticastReceiverParams{MulticastID: "local-provider/b", SubscriberParticipantID: "s", ProviderParticipantID: "local-provider"}
	require.NoError(t, f.router.AddMulticastReceiver(ctx, local))

	unknown := MulticastReceiverParams{MulticastID: "unknown/b", SubscriberParticipantID: "s", ProviderParticipantID: "unknown"}
	require.NoError(t, f.router.AddMulticastReceiver(ctx, unknown))

	proxy.AssertExpectations(t)
}

func TestAddMulticastReceiver_InvalidID(t *testing.T) {
	f := newFixture(t, Config{})
	err := f.router.AddMulticastReceiver(context.Background(), MulticastReceiverParams{MulticastID: "a/*/b"})
	assert.ErrorIs(t, err, ErrInvalidMulticastID)
}

func TestSetToKnown(t *testing.T) {
	parent := mqtt("cc")
	f := newFixture(t, Config{ParentAddress: parent, IncomingAddress: &address.BrowserAddress{WindowID: "w"}})

	f.router.SetToKnown("p")
	addr, ok := f.router.table.Get("p")
	require.True(t, ok)
	assert.True(t, parent.Equal(addr))

	f.router.table.Put("q", mqtt("q"))
	f.router.SetToKnown("q")
	addr, _ = f.router.table.Get("q")
	assert.True(t, mqtt("q").Equal(addr))
}

func TestReplyTo_HeldUntilAddressKnown(t *testing.T) {
	f := newFixture(t, Config{RequireReplyTo: true})
	ctx := context.Background()
	require.NoError(t, f.router.AddNextHop(ctx, "provider", mqtt("provider"), true))

	e := request("provider")
	e.IsLocalMessage = false
	require.NoError(t, f.router.Route(ctx, e))
	assert.Equal(t, 0, f.stubs.count())

	f.router.SetReplyToAddress(ctx, `{"_typeName":"joynr.system.RoutingTypes.MqttAddress","brokerUri":"b","topic":"replies"}`)

	sent := f.stubs.to(mqtt("provider"))
	require.Len(t, sent, 1)
	assert.Contains(t, sent[0].ReplyTo, `"topic":"replies"`)
}

func TestConfigureReplyToAddressFromRoutingProxy(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()
	assert.ErrorIs(t, f.router.ConfigureReplyToAddressFromRoutingProxy(ctx), ErrNoRoutingProxy)

	proxy := &mockProxy{}
	proxy.On("ProxyParticipantID").Return("")
	proxy.On("ReplyToAddress").Return("reply-address", nil)
	require.NoError(t, f.router.SetRoutingProxy(ctx, proxy))
	require.NoError(t, f.router.ConfigureReplyToAddressFromRoutingProxy(ctx))

	f.router.mu.Lock()
	assert.Equal(t, "reply-address", f.router.replyToAddress)
	f.router.mu.Unlock()
}

func TestRoute_RegistersGlobalReplyAddress(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()
	require.NoError(t, f.router.AddNextHop(ctx, "provider", mqtt("provider"), true))

	replyTo, err := address.Marshal(mqtt("remote-proxy-topic"))
	require.NoError(t, err)

	e := request("provider")
	e.From = "remote-proxy"
	e.IsLocalMessage = false
	e.IsReceivedFromGlobal = true
	e.ReplyTo = string(replyTo)
	require.NoError(t, f.router.Route(ctx, e))

	addr, err := f.router.ResolveNextHop(ctx, "remote-proxy")
	require.NoError(t, err)
	assert.True(t, mqtt("remote-proxy-topic").Equal(addr))
}

package messaging

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zeusync/joynr/internal/core/address"
	"github.com/zeusync/joynr/internal/core/message"
	"github.com/zeusync/joynr/internal/core/observability/log"
)

func TestMessagingStubFactory_DispatchesOnTypeName(t *testing.T) {
	f := NewMessagingStubFactory()

	var received []*message.Envelope
	skeleton := NewInProcessSkeleton()
	skeleton.RegisterListener(func(_ context.Context, e *message.Envelope) error {
		received = append(received, e)
		return nil
	})
	f.Register(address.TypeInProcess, InProcessStubFactory{})

	stub, err := f.CreateMessagingStub(address.NewInProcess(skeleton))
	require.NoError(t, err)

	e := message.New(message.TypeRequest, "{}")
	require.NoError(t, stub.Transmit(context.Background(), e))
	assert.Equal(t, []*message.Envelope{e}, received)

	_, err = f.CreateMessagingStub(&address.MqttAddress{})
	assert.ErrorIs(t, err, ErrNoStubFactory)
}

func TestInProcessSkeleton_WithoutListener(t *testing.T) {
	err := NewInProcessSkeleton().Receive(context.Background(), message.New(message.TypeReply, "{}"))
	assert.ErrorIs(t, err, ErrNoListener)
}

func TestInProcessStubFactory_RejectsOtherAddresses(t *testing.T) {
	_, err := InProcessStubFactory{}.CreateMessagingStub(&address.UdsAddress{Path: "/tmp/x"})
	assert.ErrorIs(t, err, ErrUnexpectedAddress)
}

func newEchoServer(t *testing.T) (*address.WebSocketAddress, <-chan []byte) {
	t.Helper()
	frames := make(chan []byte, 8)
	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			frames <- data
		}
	}))
	t.Cleanup(server.Close)

	hostPort := strings.TrimPrefix(server.URL, "http://")
	host, portText, found := strings.Cut(hostPort, ":")
	require.True(t, found)
	port, err := strconv.Atoi(portText)
	require.NoError(t, err)

	return &address.WebSocketAddress{Protocol: address.WebSocketProtocolWS, Host: host, Port: port, Path: "/"}, frames
}

func TestWebSocketStub_TransmitsJSONFrames(t *testing.T) {
	addr, frames := newEchoServer(t)

	f := NewWebSocketStubFactory(log.NewNop())
	t.Cleanup(func() { _ = f.Close() })

	stub, err := f.CreateMessagingStub(addr)
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		e := message.New(message.TypeOneWay, `{"_typeName":"joynr.OneWayRequest"}`)
		e.To = "provider"
		e.ExpiryDate = 42
		require.NoError(t, stub.Transmit(context.Background(), e))

		select {
		case frame := <-frames:
			decoded, err := (&message.JSONCodec{}).Decode(frame)
			require.NoError(t, err)
			assert.Equal(t, e.ID, decoded.ID)
			assert.Equal(t, "provider", decoded.To)
		case <-time.After(2 * time.Second):
			t.Fatal("frame not received")
		}
	}

	f.mu.Lock()
	assert.Len(t, f.conns, 1)
	f.mu.Unlock()
}

func TestWebSocketStub_ClosedFactory(t *testing.T) {
	addr, _ := newEchoServer(t)
	f := NewWebSocketStubFactory(log.NewNop())
	require.NoError(t, f.Close())

	stub, err := f.CreateMessagingStub(addr)
	require.NoError(t, err)
	assert.ErrorIs(t, stub.Transmit(context.Background(), message.New(message.TypeOneWay, "{}")), ErrStubClosed)

	_, err = f.CreateMessagingStub(&address.MqttAddress{})
	assert.ErrorIs(t, err, ErrUnexpectedAddress)
}

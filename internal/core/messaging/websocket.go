package messaging

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/zeusync/joynr/internal/core/address"
	"github.com/zeusync/joynr/internal/core/message"
	"github.com/zeusync/joynr/internal/core/observability/log"
)

const defaultWriteTimeout = 10 * time.Second

// WebSocketStubFactory creates stubs that write envelopes as JSON text frames
// to a WebSocketAddress. One connection per URL is dialed lazily and shared.
type WebSocketStubFactory struct {
	dialer       *websocket.Dialer
	codec        *message.JSONCodec
	writeTimeout time.Duration
	log          log.Log

	mu     sync.Mutex
	conns  map[string]*wsConn
	closed bool
}

type wsConn struct {
	writeMu sync.Mutex
	conn    *websocket.Conn
}

func NewWebSocketStubFactory(logger log.Log) *WebSocketStubFactory {
	return &WebSocketStubFactory{
		dialer:       websocket.DefaultDialer,
		codec:        &message.JSONCodec{},
		writeTimeout: defaultWriteTimeout,
		log:          logger.Named("websocket_stub"),
		conns:        make(map[string]*wsConn),
	}
}

func (f *WebSocketStubFactory) CreateMessagingStub(addr address.Address) (MessagingStub, error) {
	ws, ok := addr.(*address.WebSocketAddress)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnexpectedAddress, addr.TypeName())
	}
	url := ws.URL()
	return StubFunc(func(ctx context.Context, e *message.Envelope) error {
		return f.transmit(ctx, url, e)
	}), nil
}

func (f *WebSocketStubFactory) transmit(ctx context.Context, url string, e *message.Envelope) error {
	data, err := f.codec.Encode(e)
	if err != nil {
		return err
	}

	c, err := f.connection(ctx, url)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	deadline := time.Now().Add(f.writeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = c.conn.SetWriteDeadline(deadline)
	if err = c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		f.drop(url, c)
		return fmt.Errorf("websocket write to %s: %w", url, err)
	}
	return nil
}

func (f *WebSocketStubFactory) connection(ctx context.Context, url string) (*wsConn, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return nil, ErrStubClosed
	}
	if c, ok := f.conns[url]; ok {
		return c, nil
	}

	conn, _, err := f.dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("websocket dial %s: %w", url, err)
	}
	f.log.Debug("websocket connected", log.String("url", url))

	c := &wsConn{conn: conn}
	f.conns[url] = c
	return c, nil
}

// drop forgets a broken connection so the next transmit redials.
func (f *WebSocketStubFactory) drop(url string, c *wsConn) {
	f.mu.Lock()
	if f.conns[url] == c {
		delete(f.conns, url)
	}
	f.mu.Unlock()
	_ = c.conn.Close()
}

// Close closes every open connection. Later transmits fail with ErrStubClosed.
func (f *WebSocketStubFactory) Close() error {
	f.mu.Lock()
	conns := f.conns
	f.conns = make(map[string]*wsConn)
	f.closed = true
	f.mu.Unlock()

	for url, c := range conns {
		c.writeMu.Lock()
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		c.writeMu.Unlock()
		if err := c.conn.Close(); err != nil {
			f.log.Warn("websocket close failed", log.String("url", url), log.Error(err))
		}
	}
	return nil
}

package server

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/zeusync/joynr/internal/core/message"
	"github.com/zeusync/joynr/internal/core/messaging"
	"github.com/zeusync/joynr/internal/core/observability/log"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// sessions tracks the open WebSocket connections. Each connection is read by
// its own goroutine; frames are decoded and handed to the inbound stub in order.
type sessions struct {
	maxMessageBytes int64
	inbound         messaging.MessagingStub
	codec           *message.JSONCodec

	mu     sync.Mutex
	conns  map[string]*websocket.Conn
	closed bool
	wg     sync.WaitGroup

	logger log.Log
}

func newSessions(maxMessageBytes int64, inbound messaging.MessagingStub, logger log.Log) *sessions {
	return &sessions{
		maxMessageBytes: maxMessageBytes,
		inbound:         inbound,
		codec:           &message.JSONCodec{},
		conns:           make(map[string]*websocket.Conn),
		logger:          logger,
	}
}

func (s *sessions) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", log.String("remote", r.RemoteAddr), log.Error(err))
		return
	}

	id := uuid.NewString()
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		_ = conn.Close()
		return
	}
	s.conns[id] = conn
	s.wg.Add(1)
	s.mu.Unlock()

	defer s.wg.Done()
	defer s.forget(id)

	logger := s.logger.With(log.String("session", id), log.String("remote", conn.RemoteAddr().String()))
	logger.Debug("websocket session opened")
	s.read(context.WithoutCancel(r.Context()), conn, logger)
	logger.Debug("websocket session closed")
}

// read consumes frames until the peer goes away. A frame that cannot be
// decoded or delivered is logged and skipped.
func (s *sessions) read(ctx context.Context, conn *websocket.Conn, logger log.Log) {
	conn.SetReadLimit(s.maxMessageBytes)
	for {
		kind, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Warn("websocket read failed", log.Error(err))
			}
			return
		}
		if kind != websocket.TextMessage {
			logger.Warn("ignoring non-text frame", log.Int("kind", kind))
			continue
		}

		e, err := s.codec.Decode(data)
		if err != nil {
			logger.Error("dropping undecodable frame", log.Error(err))
			continue
		}
		if err := s.inbound.Transmit(ctx, e); err != nil {
			logger.Error("inbound delivery failed",
				log.MessageID(e.ID),
				log.MessageType(e.Type.String()),
				log.Error(err))
		}
	}
}

func (s *sessions) forget(id string) {
	s.mu.Lock()
	conn, ok := s.conns[id]
	delete(s.conns, id)
	s.mu.Unlock()
	if ok {
		_ = conn.Close()
	}
}

// closeAll sends a close frame on every session and waits for their readers.
func (s *sessions) closeAll() {
	s.mu.Lock()
	s.closed = true
	conns := make([]*websocket.Conn, 0, len(s.conns))
	for _, conn := range s.conns {
		conns = append(conns, conn)
	}
	s.mu.Unlock()

	deadline := time.Now().Add(time.Second)
	for _, conn := range conns {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server stopping"), deadline)
		_ = conn.Close()
	}
	s.wg.Wait()
}

// Package messagequeue buffers envelopes for participants the router does not
// know yet, bounded by a global byte budget.
package messagequeue

import (
	"errors"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/zeusync/joynr/internal/core/message"
	"github.com/zeusync/joynr/internal/core/observability/log"
	"github.com/zeusync/joynr/internal/core/observability/metrics"
)

var (
	ErrQueueFull     = errors.New("message queue is full")
	ErrQueueShutdown = errors.New("message queue is shut down")
)

const (
	DefaultMaxQueueSizeKBytes = 10000
	DefaultCleanupInterval    = 10 * time.Second
)

type Config struct {
	MaxQueueSizeKBytes int64
	CleanupInterval    time.Duration
}

func DefaultConfig() Config {
	return Config{
		MaxQueueSizeKBytes: DefaultMaxQueueSizeKBytes,
		CleanupInterval:    DefaultCleanupInterval,
	}
}

type Option func(*MessageQueue)

func WithClock(c clock.Clock) Option {
	return func(q *MessageQueue) { q.clock = c }
}

func WithLogger(l log.Log) Option {
	return func(q *MessageQueue) { q.log = l.Named("message_queue") }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(q *MessageQueue) { q.metrics = m }
}

// MessageQueue holds one ParticipantQueue per destination participant.
type MessageQueue struct {
	mu          sync.Mutex
	queues      map[string]*ParticipantQueue
	currentSize int64
	maxSize     int64
	isShutdown  bool

	clock   clock.Clock
	log     log.Log
	metrics *metrics.Metrics

	ticker *clock.Ticker
	done   chan struct{}
	wg     sync.WaitGroup
}

// New creates a queue and starts its cleanup sweep.
func New(cfg Config, opts ...Option) *MessageQueue {
	if cfg.MaxQueueSizeKBytes <= 0 {
		cfg.MaxQueueSizeKBytes = DefaultMaxQueueSizeKBytes
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = DefaultCleanupInterval
	}

	q := &MessageQueue{
		queues:  make(map[string]*ParticipantQueue),
		maxSize: cfg.MaxQueueSizeKBytes * 1024,
		clock:   clock.New(),
		log:     log.NewNop(),
		metrics: metrics.NewNop(),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(q)
	}

	q.ticker = q.clock.Ticker(cfg.CleanupInterval)
	q.wg.Add(1)
	go q.sweepLoop()

	return q
}

// PutMessage appends e to the queue of its recipient. A message that does not
// fit into the remaining budget is dropped as a whole.
func (q *MessageQueue) PutMessage(e *message.Envelope) error {
	size := int64(e.Size())

	q.mu.Lock()
	if q.isShutdown {
		q.mu.Unlock()
		return ErrQueueShutdown
	}
	if q.currentSize+size > q.maxSize {
		current := q.currentSize
		q.mu.Unlock()
		q.log.Error("message queue full, dropping message",
			log.MessageID(e.ID),
			log.To(e.To),
			log.Int64("messageSize", size),
			log.Int64("queueSize", current),
		)
		q.metrics.MessagesDropped.WithLabelValues(metrics.ReasonQueueFull).Inc()
		return ErrQueueFull
	}

	pq, ok := q.queues[e.To]
	if !ok {
		pq = &ParticipantQueue{}
		q.queues[e.To] = pq
	}
	pq.put(e, size)
	q.currentSize += size
	current := q.currentSize
	q.mu.Unlock()

	q.metrics.MessagesQueued.Inc()
	q.metrics.QueueSizeBytes.Set(float64(current))
	return nil
}

// GetAndRemoveMessages detaches every queued message for participantID and
// returns the ones that have not expired, oldest first.
func (q *MessageQueue) GetAndRemoveMessages(participantID string) []*message.Envelope {
	now := q.clock.Now().UnixMilli()

	q.mu.Lock()
	pq, ok := q.queues[participantID]
	if !ok {
		q.mu.Unlock()
		return nil
	}
	delete(q.queues, participantID)
	q.currentSize -= pq.size
	current := q.currentSize
	q.mu.Unlock()

	q.metrics.QueueSizeBytes.Set(float64(current))
	return pq.live(now)
}

// CurrentSize returns the number of payload bytes held.
func (q *MessageQueue) CurrentSize() int64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.currentSize
}

// Len returns the number of participants with queued messages.
func (q *MessageQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.queues)
}

// Shutdown stops the sweep. Later puts fail with ErrQueueShutdown.
func (q *MessageQueue) Shutdown() {
	q.mu.Lock()
	if q.isShutdown {
		q.mu.Unlock()
		return
	}
	q.isShutdown = true
	q.mu.Unlock()

	q.ticker.Stop()
	close(q.done)
	q.wg.Wait()
}

func (q *MessageQueue) sweepLoop() {
	defer q.wg.Done()
	for {
		select {
		case <-q.ticker.C:
			q.sweep()
		case <-q.done:
			return
		}
	}
}

// sweep evicts expired messages, drops empty queues and recomputes the size.
func (q *MessageQueue) sweep() {
	now := q.clock.Now().UnixMilli()

	q.mu.Lock()
	var (
		total   int64
		evicted int
	)
	for participantID, pq := range q.queues {
		evicted += pq.evictExpired(now)
		if pq.isEmpty() {
			delete(q.queues, participantID)
			continue
		}
		total += pq.size
	}
	q.currentSize = total
	q.mu.Unlock()

	if evicted > 0 {
		q.log.Debug("evicted expired queued messages", log.Int("count", evicted))
		q.metrics.MessagesDropped.WithLabelValues(metrics.ReasonExpired).Add(float64(evicted))
	}
	q.metrics.QueueSizeBytes.Set(float64(total))
}

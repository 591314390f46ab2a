package messagequeue

import "github.com/zeusync/joynr/internal/core/message"

type queuedMessage struct {
	envelope *message.Envelope
	size     int64
}

// ParticipantQueue is the FIFO of messages for one participant. It is guarded
// by the owning MessageQueue.
type ParticipantQueue struct {
	items []queuedMessage
	size  int64
}

func (pq *ParticipantQueue) put(e *message.Envelope, size int64) {
	pq.items = append(pq.items, queuedMessage{envelope: e, size: size})
	pq.size += size
}

// live returns the messages that have not expired at nowMs, in insertion order.
func (pq *ParticipantQueue) live(nowMs int64) []*message.Envelope {
	out := make([]*message.Envelope, 0, len(pq.items))
	for _, item := range pq.items {
		if !item.envelope.IsExpired(nowMs) {
			out = append(out, item.envelope)
		}
	}
	return out
}

func (pq *ParticipantQueue) evictExpired(nowMs int64) int {
	kept := pq.items[:0]
	var size int64
	for _, item := range pq.items {
		if item.envelope.IsExpired(nowMs) {
			continue
		}
		kept = append(kept, item)
		size += item.size
	}
	evicted := len(pq.items) - len(kept)
	// release references held past the new length
	for i := len(kept); i < len(pq.items); i++ {
		pq.items[i] = queuedMessage{}
	}
	pq.items = kept
	pq.size = size
	return evicted
}

func (pq *ParticipantQueue) isEmpty() bool {
	return len(pq.items) == 0
}

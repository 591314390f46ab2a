package messaging

import (
	"context"
	"fmt"
	"sync"

	"github.com/zeusync/joynr/internal/core/address"
	"github.com/zeusync/joynr/internal/core/message"
)

var _ address.InProcessSkeleton = (*InProcessSkeleton)(nil)

// InProcessSkeleton is the receiving end for participants hosted in this
// process. The runtime points its listener at the dispatcher.
type InProcessSkeleton struct {
	mu       sync.RWMutex
	listener func(ctx context.Context, e *message.Envelope) error
}

func NewInProcessSkeleton() *InProcessSkeleton {
	return &InProcessSkeleton{}
}

func (s *InProcessSkeleton) RegisterListener(listener func(ctx context.Context, e *message.Envelope) error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listener = listener
}

func (s *InProcessSkeleton) Receive(ctx context.Context, e *message.Envelope) error {
	s.mu.RLock()
	listener := s.listener
	s.mu.RUnlock()
	if listener == nil {
		return ErrNoListener
	}
	return listener(ctx, e)
}

// InProcessStub delivers straight into an in-process skeleton.
type InProcessStub struct {
	skeleton address.InProcessSkeleton
}

func (s *InProcessStub) Transmit(ctx context.Context, e *message.Envelope) error {
	return s.skeleton.Receive(ctx, e)
}

// InProcessStubFactory builds stubs for InProcessAddress.
type InProcessStubFactory struct{}

func (InProcessStubFactory) CreateMessagingStub(addr address.Address) (MessagingStub, error) {
	inProcess, ok := addr.(*address.InProcessAddress)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnexpectedAddress, addr.TypeName())
	}
	return &InProcessStub{skeleton: inProcess.Skeleton}, nil
}

// Package messaging contains the messaging stubs the router hands envelopes to,
// one kind per address type.
package messaging

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/zeusync/joynr/internal/core/address"
	"github.com/zeusync/joynr/internal/core/message"
)

var (
	ErrNoStubFactory     = errors.New("no messaging stub factory for address type")
	ErrNoListener        = errors.New("in-process skeleton has no listener")
	ErrStubClosed        = errors.New("messaging stub is closed")
	ErrUnexpectedAddress = errors.New("unexpected address type")
)

// MessagingStub transmits envelopes to one address.
type MessagingStub interface {
	Transmit(ctx context.Context, e *message.Envelope) error
}

// StubFunc adapts a function to MessagingStub.
type StubFunc func(ctx context.Context, e *message.Envelope) error

func (f StubFunc) Transmit(ctx context.Context, e *message.Envelope) error {
	return f(ctx, e)
}

// StubFactory creates the stub that reaches addr.
type StubFactory interface {
	CreateMessagingStub(addr address.Address) (MessagingStub, error)
}

// FactoryFunc adapts a function to StubFactory.
type FactoryFunc func(addr address.Address) (MessagingStub, error)

func (f FactoryFunc) CreateMessagingStub(addr address.Address) (MessagingStub, error) {
	return f(addr)
}

// MessagingStubFactory dispatches stub creation on the address _typeName.
type MessagingStubFactory struct {
	mu        sync.RWMutex
	factories map[string]StubFactory
}

func NewMessagingStubFactory() *MessagingStubFactory {
	return &MessagingStubFactory{factories: make(map[string]StubFactory)}
}

// Register sets the factory used for addresses of typeName, replacing any previous one.
func (f *MessagingStubFactory) Register(typeName string, factory StubFactory) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.factories[typeName] = factory
}

func (f *MessagingStubFactory) CreateMessagingStub(addr address.Address) (MessagingStub, error) {
	f.mu.RLock()
	factory, ok := f.factories[addr.TypeName()]
	f.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoStubFactory, addr.TypeName())
	}
	return factory.CreateMessagingStub(addr)
}

package routing

import (
	"context"

	"github.com/zeusync/joynr/internal/core/address"
	"github.com/zeusync/joynr/internal/core/message"
)

// MulticastReceiverParams identifies one subscriber of a provider's multicast.
type MulticastReceiverParams struct {
	MulticastID             string
	SubscriberParticipantID string
	ProviderParticipantID   string
}

// RoutingProxy is the RPC interface of the parent router, usually the cluster
// controller.
type RoutingProxy interface {
	// ProxyParticipantID is the participant id of the proxy itself, which has
	// to be known upstream before anything else can be forwarded.
	ProxyParticipantID() string
	AddNextHop(ctx context.Context, participantID string, incoming address.Address, isGloballyVisible bool) error
	RemoveNextHop(ctx context.Context, participantID string) error
	// ResolveNextHop reports whether the parent can reach participantID.
	ResolveNextHop(ctx context.Context, participantID string) (bool, error)
	AddMulticastReceiver(ctx context.Context, params MulticastReceiverParams) error
	RemoveMulticastReceiver(ctx context.Context, params MulticastReceiverParams) error
	// ReplyToAddress is the serialized global address replies should be sent to.
	ReplyToAddress(ctx context.Context) (string, error)
}

// MulticastAddressCalculator returns the global address a locally published
// multicast is sent to, or nil if there is none.
type MulticastAddressCalculator interface {
	Calculate(e *message.Envelope) address.Address
}

// MulticastSkeleton subscribes the transport for multicasts of providers it reaches.
type MulticastSkeleton interface {
	RegisterMulticastSubscription(multicastID string) error
	UnregisterMulticastSubscription(multicastID string) error
}

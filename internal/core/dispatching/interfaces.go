package dispatching

import (
	"context"

	"github.com/zeusync/joynr/internal/core/message"
	"github.com/zeusync/joynr/internal/core/routing"
)

// SendSettings addresses one outbound envelope.
type SendSettings struct {
	From             string
	ToDiscoveryEntry message.DiscoveryEntry
	MessagingQos     message.MessagingQos
}

// ReplySettings carries what an answer to an inbound envelope is sent with.
// It is derived from the inbound envelope, with sender and recipient swapped.
type ReplySettings struct {
	From          string
	To            string
	ExpiryDate    int64
	CustomHeaders map[string]string
	Effort        message.Effort
	Compress      bool
}

// PublicationSettings addresses a publication to one subscriber.
type PublicationSettings struct {
	From       string
	To         string
	ExpiryDate int64
}

// MulticastPublicationSettings addresses a publication to all subscribers of
// its multicast id.
type MulticastPublicationSettings struct {
	From       string
	ExpiryDate int64
}

// ReplyCallback transmits the reply produced for an inbound request.
type ReplyCallback func(ctx context.Context, settings ReplySettings, reply *message.Reply) error

// SubscriptionReplyCallback transmits the answer to an inbound subscription request.
type SubscriptionReplyCallback func(ctx context.Context, settings ReplySettings, reply *message.SubscriptionReply) error

// RequestSender is the outbound half of the dispatcher used by the request
// reply manager.
type RequestSender interface {
	SendRequest(ctx context.Context, settings SendSettings, request *message.Request) error
	SendOneWayRequest(ctx context.Context, settings SendSettings, request *message.OneWayRequest) error
}

// RequestHandler answers inbound requests and correlates inbound replies.
type RequestHandler interface {
	HandleRequest(ctx context.Context, providerParticipantID string, request *message.Request, callback ReplyCallback, settings ReplySettings) error
	HandleOneWayRequest(ctx context.Context, providerParticipantID string, request *message.OneWayRequest) error
	HandleReply(reply *message.Reply)
}

// SubscriptionManager is the proxy side of subscriptions.
type SubscriptionManager interface {
	HandleSubscriptionReply(ctx context.Context, reply *message.SubscriptionReply) error
	HandlePublication(ctx context.Context, publication *message.SubscriptionPublication) error
	HandleMulticastPublication(ctx context.Context, publication *message.MulticastPublication) error
}

// PublicationManager is the provider side of subscriptions.
type PublicationManager interface {
	HandleSubscriptionRequest(ctx context.Context, proxyParticipantID, providerParticipantID string,
		request *message.SubscriptionRequest, callback SubscriptionReplyCallback, settings ReplySettings) error
	HandleBroadcastSubscriptionRequest(ctx context.Context, proxyParticipantID, providerParticipantID string,
		request *message.BroadcastSubscriptionRequest, callback SubscriptionReplyCallback, settings ReplySettings) error
	HandleMulticastSubscriptionRequest(ctx context.Context, proxyParticipantID, providerParticipantID string,
		request *message.MulticastSubscriptionRequest, callback SubscriptionReplyCallback, settings ReplySettings) error
	HandleSubscriptionStop(ctx context.Context, stop *message.SubscriptionStop) error
}

// SecurityManager supplies the creator header of outbound envelopes.
type SecurityManager interface {
	CurrentProcessUserID() string
}

// MulticastRegistrar is the part of the message router that keeps track of
// multicast subscribers.
type MulticastRegistrar interface {
	AddMulticastReceiver(ctx context.Context, params routing.MulticastReceiverParams) error
	RemoveMulticastReceiver(ctx context.Context, params routing.MulticastReceiverParams) error
}

var _ MulticastRegistrar = (*routing.MessageRouter)(nil)

package message

import "math"

// Type is the envelope type string used on the wire.
type Type string

const (
	TypeRequest                      Type = "request"
	TypeOneWay                       Type = "oneWay"
	TypeReply                        Type = "reply"
	TypeSubscriptionRequest          Type = "subscriptionRequest"
	TypeBroadcastSubscriptionRequest Type = "broadcastSubscriptionRequest"
	TypeMulticastSubscriptionRequest Type = "multicastSubscriptionRequest"
	TypeSubscriptionReply            Type = "subscriptionReply"
	TypeSubscriptionStop             Type = "subscriptionStop"
	TypePublication                  Type = "subscriptionPublication"
	TypeMulticast                    Type = "multicast"
)

func (t Type) String() string { return string(t) }

// IsRequestType reports whether t expects an answer from the recipient, which
// makes a reply address necessary.
func (t Type) IsRequestType() bool {
	switch t {
	case TypeRequest,
		TypeSubscriptionRequest,
		TypeBroadcastSubscriptionRequest,
		TypeMulticastSubscriptionRequest:
		return true
	}
	return false
}

// IsQueueable reports whether an envelope of this type may wait in the message
// queue for its recipient. Answers to an unknown recipient are dropped instead.
func (t Type) IsQueueable() bool {
	switch t {
	case TypeReply, TypeSubscriptionReply, TypePublication:
		return false
	}
	return true
}

// Effort is the delivery effort requested for an envelope.
type Effort string

const (
	EffortNormal     Effort = "NORMAL"
	EffortBestEffort Effort = "BEST_EFFORT"
)

// MaxLong is the largest expiry date an envelope can carry.
const MaxLong int64 = math.MaxInt64

// Payload _typeNames.
const (
	RequestTypeName                      = "joynr.Request"
	OneWayRequestTypeName                = "joynr.OneWayRequest"
	ReplyTypeName                        = "joynr.Reply"
	SubscriptionRequestTypeName          = "joynr.SubscriptionRequest"
	BroadcastSubscriptionRequestTypeName = "joynr.BroadcastSubscriptionRequest"
	MulticastSubscriptionRequestTypeName = "joynr.MulticastSubscriptionRequest"
	SubscriptionReplyTypeName            = "joynr.SubscriptionReply"
	SubscriptionStopTypeName             = "joynr.SubscriptionStop"
	SubscriptionPublicationTypeName      = "joynr.SubscriptionPublication"
	MulticastPublicationTypeName         = "joynr.MulticastPublication"
	EnvelopeTypeName                     = "joynr.JoynrMessage"
)

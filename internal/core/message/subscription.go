package message

import (
	"encoding/json"
)

// NoExpiryDate marks a subscription that never expires. TTL uplift leaves it untouched.
const NoExpiryDate int64 = 0

// SubscriptionQos is the union of the qos fields of all joynr subscription qos kinds.
type SubscriptionQos struct {
	TypeName             string `json:"_typeName,omitempty"`
	ExpiryDateMs         int64  `json:"expiryDateMs"`
	PublicationTtlMs     int64  `json:"publicationTtlMs,omitempty"`
	MinIntervalMs        int64  `json:"minIntervalMs,omitempty"`
	MaxIntervalMs        int64  `json:"maxIntervalMs,omitempty"`
	PeriodMs             int64  `json:"periodMs,omitempty"`
	AlertAfterIntervalMs int64  `json:"alertAfterIntervalMs,omitempty"`
}

// SubscriptionInfo holds the fields every subscription request shares.
type SubscriptionInfo struct {
	SubscriptionID   string           `json:"subscriptionId"`
	SubscribedToName string           `json:"subscribedToName"`
	Qos              *SubscriptionQos `json:"qos,omitempty"`
}

func (s *SubscriptionInfo) Info() *SubscriptionInfo { return s }

// AnySubscriptionRequest is implemented by the three subscription request kinds.
type AnySubscriptionRequest interface {
	Info() *SubscriptionInfo
	MessageType() Type
}

var (
	_ AnySubscriptionRequest = (*SubscriptionRequest)(nil)
	_ AnySubscriptionRequest = (*BroadcastSubscriptionRequest)(nil)
	_ AnySubscriptionRequest = (*MulticastSubscriptionRequest)(nil)
)

// SubscriptionRequest subscribes to an attribute.
type SubscriptionRequest struct {
	SubscriptionInfo
}

func (r *SubscriptionRequest) MessageType() Type { return TypeSubscriptionRequest }

func (r *SubscriptionRequest) MarshalJSON() ([]byte, error) {
	type plain SubscriptionRequest
	return json.Marshal(struct {
		TypeName string `json:"_typeName"`
		plain
	}{SubscriptionRequestTypeName, plain(*r)})
}

// BroadcastSubscriptionRequest subscribes to a selective broadcast.
type BroadcastSubscriptionRequest struct {
	SubscriptionInfo
	FilterParameters map[string]string `json:"filterParameters,omitempty"`
}

func (r *BroadcastSubscriptionRequest) MessageType() Type { return TypeBroadcastSubscriptionRequest }

func (r *BroadcastSubscriptionRequest) MarshalJSON() ([]byte, error) {
	type plain BroadcastSubscriptionRequest
	return json.Marshal(struct {
		TypeName string `json:"_typeName"`
		plain
	}{BroadcastSubscriptionRequestTypeName, plain(*r)})
}

// MulticastSubscriptionRequest subscribes to a non-selective broadcast that the
// provider publishes once for all subscribers under MulticastID.
type MulticastSubscriptionRequest struct {
	SubscriptionInfo
	MulticastID string `json:"multicastId"`
}

func (r *MulticastSubscriptionRequest) MessageType() Type { return TypeMulticastSubscriptionRequest }

func (r *MulticastSubscriptionRequest) MarshalJSON() ([]byte, error) {
	type plain MulticastSubscriptionRequest
	return json.Marshal(struct {
		TypeName string `json:"_typeName"`
		plain
	}{MulticastSubscriptionRequestTypeName, plain(*r)})
}

// SubscriptionReply acknowledges a subscription request, or rejects it with Error.
type SubscriptionReply struct {
	SubscriptionID string
	Error          error
}

type wireSubscriptionReply struct {
	TypeName       string          `json:"_typeName"`
	SubscriptionID string          `json:"subscriptionId"`
	Error          json.RawMessage `json:"error,omitempty"`
}

func (r *SubscriptionReply) MarshalJSON() ([]byte, error) {
	w := wireSubscriptionReply{TypeName: SubscriptionReplyTypeName, SubscriptionID: r.SubscriptionID}
	if r.Error != nil {
		raw, err := marshalError(r.Error)
		if err != nil {
			return nil, err
		}
		w.Error = raw
	}
	return json.Marshal(w)
}

func (r *SubscriptionReply) UnmarshalJSON(data []byte) error {
	var w wireSubscriptionReply
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	decoded, err := unmarshalError(w.Error)
	if err != nil {
		return err
	}
	r.SubscriptionID = w.SubscriptionID
	r.Error = decoded
	return nil
}

type SubscriptionStop struct {
	SubscriptionID string `json:"subscriptionId"`
}

func (s *SubscriptionStop) MarshalJSON() ([]byte, error) {
	type plain SubscriptionStop
	return json.Marshal(struct {
		TypeName string `json:"_typeName"`
		plain
	}{SubscriptionStopTypeName, plain(*s)})
}

// SubscriptionPublication delivers an attribute or broadcast value to one subscriber.
type SubscriptionPublication struct {
	SubscriptionID string
	Response       []any
	Error          error
}

type wirePublication struct {
	TypeName       string          `json:"_typeName"`
	SubscriptionID string          `json:"subscriptionId,omitempty"`
	MulticastID    string          `json:"multicastId,omitempty"`
	Response       []any           `json:"response,omitempty"`
	Error          json.RawMessage `json:"error,omitempty"`
}

func (p *SubscriptionPublication) MarshalJSON() ([]byte, error) {
	w := wirePublication{TypeName: SubscriptionPublicationTypeName, SubscriptionID: p.SubscriptionID, Response: p.Response}
	if p.Error != nil {
		raw, err := marshalError(p.Error)
		if err != nil {
			return nil, err
		}
		w.Error = raw
	}
	return json.Marshal(w)
}

func (p *SubscriptionPublication) UnmarshalJSON(data []byte) error {
	var w wirePublication
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	decoded, err := unmarshalError(w.Error)
	if err != nil {
		return err
	}
	p.SubscriptionID = w.SubscriptionID
	p.Response = w.Response
	p.Error = decoded
	return nil
}

// MulticastPublication delivers a broadcast value to every subscriber of MulticastID.
type MulticastPublication struct {
	MulticastID string
	Response    []any
	Error       error
}

func (p *MulticastPublication) MarshalJSON() ([]byte, error) {
	w := wirePublication{TypeName: MulticastPublicationTypeName, MulticastID: p.MulticastID, Response: p.Response}
	if p.Error != nil {
		raw, err := marshalError(p.Error)
		if err != nil {
			return nil, err
		}
		w.Error = raw
	}
	return json.Marshal(w)
}

func (p *MulticastPublication) UnmarshalJSON(data []byte) error {
	var w wirePublication
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	decoded, err := unmarshalError(w.Error)
	if err != nil {
		return err
	}
	p.MulticastID = w.MulticastID
	p.Response = w.Response
	p.Error = decoded
	return nil
}

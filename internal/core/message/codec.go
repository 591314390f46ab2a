package message

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/zeusync/joynr/pkg/generic"
)

var buffers = generic.NewPool(func() *bytes.Buffer { return new(bytes.Buffer) }, (*bytes.Buffer).Reset)

// JSONCodec encodes envelopes and their typed payloads as joynr JSON. The zero
// value is ready to use.
type JSONCodec struct{}

// marshal encodes v through a pooled buffer. The result is a fresh slice.
func marshal(v any) ([]byte, error) {
	buf := buffers.Get()
	defer buffers.Put(buf)

	if err := json.NewEncoder(buf).Encode(v); err != nil {
		return nil, err
	}
	out := bytes.TrimSuffix(buf.Bytes(), []byte("\n"))
	return append([]byte(nil), out...), nil
}

// Encode converts an envelope into its wire form.
func (c *JSONCodec) Encode(e *Envelope) ([]byte, error) {
	return marshal(e)
}

// Decode converts the wire form back into an envelope.
func (c *JSONCodec) Decode(data []byte) (*Envelope, error) {
	var e Envelope
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("failed to decode envelope: %w", err)
	}
	return &e, nil
}

// EncodePayload serializes a typed body for Envelope.Payload.
func (c *JSONCodec) EncodePayload(body any) (string, error) {
	raw, err := marshal(body)
	if err != nil {
		return "", fmt.Errorf("failed to encode payload: %w", err)
	}
	return string(raw), nil
}

// DecodePayload parses Envelope.Payload into the body type that belongs to the
// envelope type.
func (c *JSONCodec) DecodePayload(e *Envelope) (any, error) {
	if e.Payload == "" {
		return nil, ErrMissingPayload
	}

	var body any
	switch e.Type {
	case TypeRequest:
		body = &Request{}
	case TypeOneWay:
		body = &OneWayRequest{}
	case TypeReply:
		body = &Reply{}
	case TypeSubscriptionRequest:
		body = &SubscriptionRequest{}
	case TypeBroadcastSubscriptionRequest:
		body = &BroadcastSubscriptionRequest{}
	case TypeMulticastSubscriptionRequest:
		body = &MulticastSubscriptionRequest{}
	case TypeSubscriptionReply:
		body = &SubscriptionReply{}
	case TypeSubscriptionStop:
		body = &SubscriptionStop{}
	case TypePublication:
		body = &SubscriptionPublication{}
	case TypeMulticast:
		body = &MulticastPublication{}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, e.Type)
	}

	if err := json.Unmarshal([]byte(e.Payload), body); err != nil {
		return nil, fmt.Errorf("failed to decode %s payload: %w", e.Type, err)
	}
	return body, nil
}

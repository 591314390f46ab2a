package message

import "errors"

var (
	ErrInvalidReply    = errors.New("reply must carry either a response or an error")
	ErrUnknownType     = errors.New("unknown message type")
	ErrInvalidEnvelope = errors.New("invalid envelope")
	ErrInvalidExpiry   = errors.New("invalid expiry date header")
	ErrMissingPayload  = errors.New("envelope has no payload")
)

package message

import (
	"encoding/json"
	"errors"

	"github.com/zeusync/joynr/internal/core/exceptions"
)

// Reply answers a Request. Exactly one of Response and Error is set.
type Reply struct {
	RequestReplyID string
	Response       []any
	Error          error
}

// NewReply validates that exactly one of response and err is given. Void
// results are expressed with an empty, non-nil response.
func NewReply(requestReplyID string, response []any, err error) (*Reply, error) {
	if (response == nil) == (err == nil) {
		return nil, ErrInvalidReply
	}
	return &Reply{RequestReplyID: requestReplyID, Response: response, Error: err}, nil
}

type wireReply struct {
	TypeName       string          `json:"_typeName"`
	RequestReplyID string          `json:"requestReplyId"`
	Response       *[]any          `json:"response,omitempty"`
	Error          json.RawMessage `json:"error,omitempty"`
}

func (r *Reply) MarshalJSON() ([]byte, error) {
	w := wireReply{TypeName: ReplyTypeName, RequestReplyID: r.RequestReplyID}
	if r.Error != nil {
		raw, err := marshalError(r.Error)
		if err != nil {
			return nil, err
		}
		w.Error = raw
	} else {
		response := r.Response
		if response == nil {
			response = []any{}
		}
		w.Response = &response
	}
	return json.Marshal(w)
}

func (r *Reply) UnmarshalJSON(data []byte) error {
	var w wireReply
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	r.RequestReplyID = w.RequestReplyID
	r.Response = nil
	r.Error = nil

	decoded, err := unmarshalError(w.Error)
	if err != nil {
		return err
	}
	r.Error = decoded
	if w.Response != nil {
		r.Response = *w.Response
		if r.Response == nil {
			r.Response = []any{}
		}
	}
	if (r.Response == nil) == (r.Error == nil) {
		return ErrInvalidReply
	}
	return nil
}

// marshalError encodes err as a joynr exception. Decoded exceptions that were
// never hydrated are written back unchanged, anything that is not a joynr
// exception becomes a ProviderRuntimeException.
func marshalError(err error) (json.RawMessage, error) {
	var unresolved *exceptions.Unresolved
	if errors.As(err, &unresolved) {
		return unresolved.Raw, nil
	}
	return exceptions.Marshal(exceptions.ToProviderRuntime(err))
}

// unmarshalError decodes an optional exception field into an Unresolved error.
func unmarshalError(raw json.RawMessage) (decoded error, err error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	unresolved, err := exceptions.NewUnresolved(raw)
	if err != nil {
		return nil, err
	}
	return unresolved, nil
}

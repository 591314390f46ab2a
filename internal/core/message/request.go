package message

import (
	"encoding/json"

	"github.com/google/uuid"
)

// Request is the body of a REQUEST envelope.
type Request struct {
	RequestReplyID string   `json:"requestReplyId"`
	MethodName     string   `json:"methodName"`
	ParamDatatypes []string `json:"paramDatatypes"`
	Params         []any    `json:"params"`
}

// NewRequest builds a request with a generated requestReplyId.
func NewRequest(methodName string, params []any, paramDatatypes []string) *Request {
	r := &Request{
		MethodName:     methodName,
		ParamDatatypes: paramDatatypes,
		Params:         params,
	}
	r.EnsureID()
	return r
}

// EnsureID generates a requestReplyId if none is set.
func (r *Request) EnsureID() {
	if r.RequestReplyID == "" {
		r.RequestReplyID = uuid.NewString()
	}
}

func (r *Request) MarshalJSON() ([]byte, error) {
	type plain Request
	p := plain(*r)
	if p.ParamDatatypes == nil {
		p.ParamDatatypes = []string{}
	}
	if p.Params == nil {
		p.Params = []any{}
	}
	return json.Marshal(struct {
		TypeName string `json:"_typeName"`
		plain
	}{RequestTypeName, p})
}

// OneWayRequest is a request that is never answered.
type OneWayRequest struct {
	MethodName     string   `json:"methodName"`
	ParamDatatypes []string `json:"paramDatatypes"`
	Params         []any    `json:"params"`
}

func (r *OneWayRequest) MarshalJSON() ([]byte, error) {
	type plain OneWayRequest
	p := plain(*r)
	if p.ParamDatatypes == nil {
		p.ParamDatatypes = []string{}
	}
	if p.Params == nil {
		p.Params = []any{}
	}
	return json.Marshal(struct {
		TypeName string `json:"_typeName"`
		plain
	}{OneWayRequestTypeName, p})
}

package message

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// Header keys of the wire envelope.
const (
	HeaderMsgID          = "msgId"
	HeaderFrom           = "from"
	HeaderTo             = "to"
	HeaderExpiryDate     = "expiryDate"
	HeaderCreator        = "creator"
	HeaderReplyChannelID = "replyChannelId"
	HeaderEffort         = "effort"

	// CustomHeaderPrefix marks application headers copied from the messaging qos.
	CustomHeaderPrefix = "c-"
)

// Envelope is the joynr wire message. Payload holds the JSON of the typed body.
type Envelope struct {
	ID            string
	Type          Type
	From          string
	To            string
	ExpiryDate    int64
	Payload       string
	CustomHeaders map[string]string
	Effort        Effort
	Compress      bool
	Creator       string
	// ReplyTo is the serialized global address replies should be sent to.
	ReplyTo string

	// Process local flags, never serialized.
	IsLocalMessage       bool
	IsReceivedFromGlobal bool
}

// New creates an envelope of the given type with a fresh message id.
func New(t Type, payload string) *Envelope {
	return &Envelope{
		ID:            uuid.NewString(),
		Type:          t,
		Payload:       payload,
		CustomHeaders: make(map[string]string),
	}
}

// SetCustomHeaders copies headers into the envelope.
func (e *Envelope) SetCustomHeaders(headers map[string]string) {
	if len(headers) == 0 {
		return
	}
	if e.CustomHeaders == nil {
		e.CustomHeaders = make(map[string]string, len(headers))
	}
	for k, v := range headers {
		e.CustomHeaders[k] = v
	}
}

// IsExpired reports whether the envelope's expiry date lies before nowMs.
func (e *Envelope) IsExpired(nowMs int64) bool {
	return e.ExpiryDate < nowMs
}

// Size is the number of payload bytes, which is what the message queue accounts for.
func (e *Envelope) Size() int {
	return len(e.Payload)
}

type wireEnvelope struct {
	TypeName string            `json:"_typeName"`
	Type     Type              `json:"type"`
	Header   map[string]string `json:"header"`
	Payload  string            `json:"payload"`
	Compress bool              `json:"compress,omitempty"`
}

func (e *Envelope) MarshalJSON() ([]byte, error) {
	header := make(map[string]string, 7+len(e.CustomHeaders))
	for k, v := range e.CustomHeaders {
		header[CustomHeaderPrefix+k] = v
	}
	header[HeaderMsgID] = e.ID
	header[HeaderFrom] = e.From
	header[HeaderTo] = e.To
	header[HeaderExpiryDate] = strconv.FormatInt(e.ExpiryDate, 10)
	if e.Creator != "" {
		header[HeaderCreator] = e.Creator
	}
	if e.ReplyTo != "" {
		header[HeaderReplyChannelID] = e.ReplyTo
	}
	if e.Effort != "" && e.Effort != EffortNormal {
		header[HeaderEffort] = string(e.Effort)
	}

	return json.Marshal(wireEnvelope{
		TypeName: EnvelopeTypeName,
		Type:     e.Type,
		Header:   header,
		Payload:  e.Payload,
		Compress: e.Compress,
	})
}

func (e *Envelope) UnmarshalJSON(data []byte) error {
	var w wireEnvelope
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	if w.Type == "" {
		return fmt.Errorf("%w: missing type", ErrInvalidEnvelope)
	}

	*e = Envelope{
		Type:          w.Type,
		Payload:       w.Payload,
		Compress:      w.Compress,
		Effort:        EffortNormal,
		CustomHeaders: make(map[string]string),
	}
	for k, v := range w.Header {
		switch k {
		case HeaderMsgID:
			e.ID = v
		case HeaderFrom:
			e.From = v
		case HeaderTo:
			e.To = v
		case HeaderExpiryDate:
			expiry, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				return fmt.Errorf("%w: %q", ErrInvalidExpiry, v)
			}
			e.ExpiryDate = expiry
		case HeaderCreator:
			e.Creator = v
		case HeaderReplyChannelID:
			e.ReplyTo = v
		case HeaderEffort:
			e.Effort = Effort(v)
		default:
			if name, ok := strings.CutPrefix(k, CustomHeaderPrefix); ok {
				e.CustomHeaders[name] = v
			}
		}
	}
	return nil
}

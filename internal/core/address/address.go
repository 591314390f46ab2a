// Package address models the transport addresses stored in the routing table.
package address

import (
	"context"
	"fmt"

	"github.com/zeusync/joynr/internal/core/message"
)

const typeNamePrefix = "joynr.system.RoutingTypes."

const (
	TypeInProcess       = typeNamePrefix + "InProcessAddress"
	TypeChannel         = typeNamePrefix + "ChannelAddress"
	TypeMqtt            = typeNamePrefix + "MqttAddress"
	TypeWebSocket       = typeNamePrefix + "WebSocketAddress"
	TypeWebSocketClient = typeNamePrefix + "WebSocketClientAddress"
	TypeBrowser         = typeNamePrefix + "BrowserAddress"
	TypeUds             = typeNamePrefix + "UdsAddress"
	TypeUdsClient       = typeNamePrefix + "UdsClientAddress"
)

// Address is one variant of the joynr routing address union.
type Address interface {
	TypeName() string
	Equal(other Address) bool
}

var (
	_ Address = (*InProcessAddress)(nil)
	_ Address = (*ChannelAddress)(nil)
	_ Address = (*MqttAddress)(nil)
	_ Address = (*WebSocketAddress)(nil)
	_ Address = (*WebSocketClientAddress)(nil)
	_ Address = (*BrowserAddress)(nil)
	_ Address = (*UdsAddress)(nil)
	_ Address = (*UdsClientAddress)(nil)
)

// InProcessSkeleton receives envelopes addressed to a participant living in
// this process.
type InProcessSkeleton interface {
	Receive(ctx context.Context, e *message.Envelope) error
}

// InProcessAddress points at a skeleton in the same process. It has no wire
// form and is never persisted.
type InProcessAddress struct {
	Skeleton InProcessSkeleton
}

func NewInProcess(skeleton InProcessSkeleton) *InProcessAddress {
	return &InProcessAddress{Skeleton: skeleton}
}

func (a *InProcessAddress) TypeName() string { return TypeInProcess }

func (a *InProcessAddress) Equal(other Address) bool {
	o, ok := other.(*InProcessAddress)
	return ok && o.Skeleton == a.Skeleton
}

// ChannelAddress is an HTTP long-polling channel.
type ChannelAddress struct {
	MessagingEndpointURL string `json:"messagingEndpointUrl"`
	ChannelID            string `json:"channelId"`
}

func (a *ChannelAddress) TypeName() string { return TypeChannel }

func (a *ChannelAddress) Equal(other Address) bool {
	o, ok := other.(*ChannelAddress)
	return ok && *o == *a
}

type MqttAddress struct {
	BrokerURI string `json:"brokerUri"`
	Topic     string `json:"topic"`
}

func (a *MqttAddress) TypeName() string { return TypeMqtt }

func (a *MqttAddress) Equal(other Address) bool {
	o, ok := other.(*MqttAddress)
	return ok && *o == *a
}

// WebSocketProtocol is WS or WSS.
type WebSocketProtocol string

const (
	WebSocketProtocolWS  WebSocketProtocol = "WS"
	WebSocketProtocolWSS WebSocketProtocol = "WSS"
)

// WebSocketAddress is the server side of a WebSocket connection, typically the
// cluster controller.
type WebSocketAddress struct {
	Protocol WebSocketProtocol `json:"protocol"`
	Host     string            `json:"host"`
	Port     int               `json:"port"`
	Path     string            `json:"path"`
}

// URL renders the address as a dialable ws:// or wss:// URL.
func (a *WebSocketAddress) URL() string {
	scheme := "ws"
	if a.Protocol == WebSocketProtocolWSS {
		scheme = "wss"
	}
	return fmt.Sprintf("%s://%s:%d%s", scheme, a.Host, a.Port, a.Path)
}

func (a *WebSocketAddress) TypeName() string { return TypeWebSocket }

func (a *WebSocketAddress) Equal(other Address) bool {
	o, ok := other.(*WebSocketAddress)
	return ok && *o == *a
}

// WebSocketClientAddress identifies a client connected to a WebSocket server.
type WebSocketClientAddress struct {
	ID string `json:"id"`
}

func (a *WebSocketClientAddress) TypeName() string { return TypeWebSocketClient }

func (a *WebSocketClientAddress) Equal(other Address) bool {
	o, ok := other.(*WebSocketClientAddress)
	return ok && *o == *a
}

type BrowserAddress struct {
	WindowID string `json:"windowId"`
}

func (a *BrowserAddress) TypeName() string { return TypeBrowser }

func (a *BrowserAddress) Equal(other Address) bool {
	o, ok := other.(*BrowserAddress)
	return ok && *o == *a
}

// UdsAddress is a unix domain socket server path.
type UdsAddress struct {
	Path string `json:"path"`
}

func (a *UdsAddress) TypeName() string { return TypeUds }

func (a *UdsAddress) Equal(other Address) bool {
	o, ok := other.(*UdsAddress)
	return ok && *o == *a
}

type UdsClientAddress struct {
	ID string `json:"id"`
}

func (a *UdsClientAddress) TypeName() string { return TypeUdsClient }

func (a *UdsClientAddress) Equal(other Address) bool {
	o, ok := other.(*UdsClientAddress)
	return ok && *o == *a
}

// IsInProcess reports whether addr is an in-process address.
func IsInProcess(addr Address) bool {
	_, ok := addr.(*InProcessAddress)
	return ok
}

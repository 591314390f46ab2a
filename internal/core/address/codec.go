package address

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	ErrNotSerializable = errors.New("address has no wire form")
	ErrUnknownAddress  = errors.New("unknown address type")
)

// Marshal encodes addr with its _typeName.
func Marshal(addr Address) ([]byte, error) {
	if IsInProcess(addr) {
		return nil, ErrNotSerializable
	}

	fields, err := json.Marshal(addr)
	if err != nil {
		return nil, err
	}
	var object map[string]json.RawMessage
	if err = json.Unmarshal(fields, &object); err != nil {
		return nil, err
	}
	typeName, _ := json.Marshal(addr.TypeName())
	object["_typeName"] = typeName
	return json.Marshal(object)
}

// Unmarshal decodes an address by its _typeName.
func Unmarshal(data []byte) (Address, error) {
	var head struct {
		TypeName string `json:"_typeName"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, err
	}

	var addr Address
	switch head.TypeName {
	case TypeChannel:
		addr = &ChannelAddress{}
	case TypeMqtt:
		addr = &MqttAddress{}
	case TypeWebSocket:
		addr = &WebSocketAddress{}
	case TypeWebSocketClient:
		addr = &WebSocketClientAddress{}
	case TypeBrowser:
		addr = &BrowserAddress{}
	case TypeUds:
		addr = &UdsAddress{}
	case TypeUdsClient:
		addr = &UdsClientAddress{}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownAddress, head.TypeName)
	}

	if err := json.Unmarshal(data, addr); err != nil {
		return nil, err
	}
	return addr, nil
}

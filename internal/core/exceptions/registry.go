package exceptions

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/zeusync/joynr/internal/core/types"
)

var (
	ErrMissingTypeName     = errors.New("exception json has no _typeName")
	ErrTypeAlreadyDeclared = errors.New("exception type already registered")
)

// wireException is the union of all fields the built-in exceptions put on the wire.
type wireException struct {
	TypeName        string         `json:"_typeName"`
	DetailMessage   string         `json:"detailMessage,omitempty"`
	ProviderVersion *types.Version `json:"providerVersion,omitempty"`
	SubscriptionID  string         `json:"subscriptionId,omitempty"`
	Error           *ErrorEnum     `json:"error,omitempty"`
}

// Marshal encodes a joynr exception in its wire form.
func Marshal(ex Exception) ([]byte, error) {
	if custom, ok := ex.(json.Marshaler); ok {
		return custom.MarshalJSON()
	}

	w := wireException{TypeName: ex.TypeName()}
	switch e := ex.(type) {
	case *JoynrRuntimeException:
		w.DetailMessage = e.DetailMessage
	case *JoynrTimeOutException:
		w.DetailMessage = e.DetailMessage
	case *DiscoveryException:
		w.DetailMessage = e.DetailMessage
	case *MethodInvocationException:
		w.DetailMessage = e.DetailMessage
		w.ProviderVersion = e.ProviderVersion
	case *ProviderRuntimeException:
		w.DetailMessage = e.DetailMessage
	case *PublicationMissedException:
		w.SubscriptionID = e.SubscriptionID
	case *ApplicationException:
		w.DetailMessage = e.DetailMessage
		enum := e.Enum
		w.Error = &enum
	default:
		w.DetailMessage = ex.Error()
	}
	return json.Marshal(w)
}

// Unresolved is an exception decoded from a reply whose concrete type has not
// been looked up yet. Registry.Hydrate turns it into a typed exception.
type Unresolved struct {
	TypeName string
	Raw      json.RawMessage
}

func (u *Unresolved) Error() string {
	return fmt.Sprintf("unresolved joynr exception %s", u.TypeName)
}

// NewUnresolved reads the _typeName of raw without decoding the rest.
func NewUnresolved(raw json.RawMessage) (*Unresolved, error) {
	var head struct {
		TypeName string `json:"_typeName"`
	}
	if err := json.Unmarshal(raw, &head); err != nil {
		return nil, err
	}
	if head.TypeName == "" {
		return nil, ErrMissingTypeName
	}
	return &Unresolved{TypeName: head.TypeName, Raw: append(json.RawMessage(nil), raw...)}, nil
}

// Factory decodes the JSON of one exception type.
type Factory func(raw json.RawMessage) (Exception, error)

// Registry maps exception _typeNames to factories. Application exceptions of
// generated interfaces can be added with Register.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry returns a registry preloaded with the built-in joynr exceptions.
func NewRegistry() *Registry {
	r := &Registry{factories: make(map[string]Factory)}
	builtins := map[string]func(w wireException) Exception{
		TypeJoynrRuntime: func(w wireException) Exception {
			return &JoynrRuntimeException{DetailMessage: w.DetailMessage}
		},
		TypeJoynrTimeOut: func(w wireException) Exception {
			return &JoynrTimeOutException{DetailMessage: w.DetailMessage}
		},
		TypeDiscovery: func(w wireException) Exception {
			return &DiscoveryException{DetailMessage: w.DetailMessage}
		},
		TypeMethodInvocation: func(w wireException) Exception {
			return &MethodInvocationException{DetailMessage: w.DetailMessage, ProviderVersion: w.ProviderVersion}
		},
		TypeProviderRuntime: func(w wireException) Exception {
			return &ProviderRuntimeException{DetailMessage: w.DetailMessage}
		},
		TypePublicationMissed: func(w wireException) Exception {
			id := w.SubscriptionID
			if id == "" {
				id = w.DetailMessage
			}
			return &PublicationMissedException{SubscriptionID: id}
		},
		TypeApplication: func(w wireException) Exception {
			ex := &ApplicationException{DetailMessage: w.DetailMessage}
			if w.Error != nil {
				ex.Enum = *w.Error
			}
			return ex
		},
	}
	for typeName, build := range builtins {
		build := build // per-iteration copy (go.mod targets go1.21 loop semantics)
		r.factories[typeName] = func(raw json.RawMessage) (Exception, error) {
			var w wireException
			if err := json.Unmarshal(raw, &w); err != nil {
				return nil, err
			}
			return build(w), nil
		}
	}
	return r
}

// Register adds a factory for typeName.
func (r *Registry) Register(typeName string, factory Factory) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.factories[typeName]; exists {
		return fmt.Errorf("%w: %s", ErrTypeAlreadyDeclared, typeName)
	}
	r.factories[typeName] = factory
	return nil
}

// Hydrate replaces an Unresolved error with its typed exception. Errors of any
// other kind are returned unchanged. Unknown type names become a
// JoynrRuntimeException carrying the raw detail message.
func (r *Registry) Hydrate(err error) error {
	var unresolved *Unresolved
	if !errors.As(err, &unresolved) {
		return err
	}

	r.mu.RLock()
	factory, ok := r.factories[unresolved.TypeName]
	r.mu.RUnlock()

	if !ok {
		var w wireException
		_ = json.Unmarshal(unresolved.Raw, &w)
		return &JoynrRuntimeException{
			DetailMessage: fmt.Sprintf("unknown exception type %s: %s", unresolved.TypeName, w.DetailMessage),
		}
	}

	ex, decodeErr := factory(unresolved.Raw)
	if decodeErr != nil {
		return &JoynrRuntimeException{
			DetailMessage: fmt.Sprintf("cannot decode %s: %v", unresolved.TypeName, decodeErr),
		}
	}
	return ex
}

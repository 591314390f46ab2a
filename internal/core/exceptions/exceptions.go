// Package exceptions contains the joynr exception types that travel inside
// replies, and the registry that turns their JSON form back into typed errors.
package exceptions

import (
	"errors"
	"fmt"

	"github.com/zeusync/joynr/internal/core/types"
)

const (
	TypeJoynrRuntime      = "joynr.exceptions.JoynrRuntimeException"
	TypeJoynrTimeOut      = "joynr.exceptions.JoynrTimeOutException"
	TypeDiscovery         = "joynr.exceptions.DiscoveryException"
	TypeMethodInvocation  = "joynr.exceptions.MethodInvocationException"
	TypeProviderRuntime   = "joynr.exceptions.ProviderRuntimeException"
	TypePublicationMissed = "joynr.exceptions.PublicationMissedException"
	TypeApplication       = "joynr.exceptions.ApplicationException"
)

// Exception is implemented by every joynr exception. Use errors.As to detect one
// inside a wrapped error chain.
type Exception interface {
	error
	TypeName() string
}

var (
	_ Exception = (*JoynrRuntimeException)(nil)
	_ Exception = (*JoynrTimeOutException)(nil)
	_ Exception = (*DiscoveryException)(nil)
	_ Exception = (*MethodInvocationException)(nil)
	_ Exception = (*ProviderRuntimeException)(nil)
	_ Exception = (*PublicationMissedException)(nil)
	_ Exception = (*ApplicationException)(nil)
)

type JoynrRuntimeException struct {
	DetailMessage string
}

func (e *JoynrRuntimeException) Error() string    { return e.DetailMessage }
func (e *JoynrRuntimeException) TypeName() string { return TypeJoynrRuntime }

type JoynrTimeOutException struct {
	DetailMessage string
}

func (e *JoynrTimeOutException) Error() string    { return e.DetailMessage }
func (e *JoynrTimeOutException) TypeName() string { return TypeJoynrTimeOut }

type DiscoveryException struct {
	DetailMessage string
}

func (e *DiscoveryException) Error() string    { return e.DetailMessage }
func (e *DiscoveryException) TypeName() string { return TypeDiscovery }

// MethodInvocationException reports that the requested operation or attribute
// does not exist on the provider, or that the provider side was shut down.
type MethodInvocationException struct {
	DetailMessage   string
	ProviderVersion *types.Version
}

func (e *MethodInvocationException) Error() string    { return e.DetailMessage }
func (e *MethodInvocationException) TypeName() string { return TypeMethodInvocation }

// ProviderRuntimeException wraps a failure raised by provider code.
type ProviderRuntimeException struct {
	DetailMessage string
}

func (e *ProviderRuntimeException) Error() string    { return e.DetailMessage }
func (e *ProviderRuntimeException) TypeName() string { return TypeProviderRuntime }

type PublicationMissedException struct {
	SubscriptionID string
}

func (e *PublicationMissedException) Error() string {
	return fmt.Sprintf("publication missed for subscription %s", e.SubscriptionID)
}
func (e *PublicationMissedException) TypeName() string { return TypePublicationMissed }

// ErrorEnum is the modelled error value of an ApplicationException.
type ErrorEnum struct {
	TypeName string `json:"_typeName"`
	Name     string `json:"name"`
}

// ApplicationException carries an error enum declared in the provider's interface.
type ApplicationException struct {
	DetailMessage string
	Enum          ErrorEnum
}

func (e *ApplicationException) Error() string {
	if e.DetailMessage != "" {
		return e.DetailMessage
	}
	return e.Enum.Name
}
func (e *ApplicationException) TypeName() string { return TypeApplication }

// As returns the joynr exception inside err, if any.
func As(err error) (Exception, bool) {
	var ex Exception
	if errors.As(err, &ex) {
		return ex, true
	}
	return nil, false
}

// ToProviderRuntime keeps joynr exceptions as they are and wraps anything else
// into a ProviderRuntimeException.
func ToProviderRuntime(err error) Exception {
	if ex, ok := As(err); ok {
		return ex
	}
	return &ProviderRuntimeException{DetailMessage: err.Error()}
}

package exceptions

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zeusync/joynr/internal/core/types"
)

func TestMarshal_MethodInvocationCarriesVersion(t *testing.T) {
	raw, err := Marshal(&MethodInvocationException{
		DetailMessage:   "no such operation",
		ProviderVersion: types.NewVersion(1, 2),
	})
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"_typeName":"joynr.exceptions.MethodInvocationException",
		"detailMessage":"no such operation",
		"providerVersion":{"_typeName":"joynr.types.Version","majorVersion":1,"minorVersion":2}
	}`, string(raw))
}

func TestRegistry_HydratesBuiltins(t *testing.T) {
	r := NewRegistry()

	cases := []Exception{
		&JoynrRuntimeException{DetailMessage: "runtime"},
		&ProviderRuntimeException{DetailMessage: "provider"},
		&MethodInvocationException{DetailMessage: "missing", ProviderVersion: types.NewVersion(3, 0)},
		&PublicationMissedException{SubscriptionID: "sub-1"},
		&ApplicationException{Enum: ErrorEnum{TypeName: "vehicle.Errors", Name: "NO_FUEL"}},
	}

	for _, original := range cases {
		t.Run(original.TypeName(), func(t *testing.T) {
			raw, err := Marshal(original)
			require.NoError(t, err)
			unresolved, err := NewUnresolved(raw)
			require.NoError(t, err)

			hydrated := r.Hydrate(fmt.Errorf("reply failed: %w", unresolved))
			assert.Equal(t, original, hydrated)
		})
	}
}

func TestRegistry_UnknownTypeFallsBackToRuntime(t *testing.T) {
	unresolved, err := NewUnresolved(json.RawMessage(`{"_typeName":"acme.Weird","detailMessage":"odd"}`))
	require.NoError(t, err)

	hydrated := NewRegistry().Hydrate(unresolved)

	var runtime *JoynrRuntimeException
	require.ErrorAs(t, hydrated, &runtime)
	assert.Contains(t, runtime.DetailMessage, "acme.Weird")
	assert.Contains(t, runtime.DetailMessage, "odd")
}

func TestRegistry_CustomFactory(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register("acme.Custom", func(raw json.RawMessage) (Exception, error) {
		return &ProviderRuntimeException{DetailMessage: "custom"}, nil
	}))
	assert.ErrorIs(t, r.Register("acme.Custom", nil), ErrTypeAlreadyDeclared)

	unresolved, err := NewUnresolved(json.RawMessage(`{"_typeName":"acme.Custom"}`))
	require.NoError(t, err)
	assert.Equal(t, &ProviderRuntimeException{DetailMessage: "custom"}, r.Hydrate(unresolved))
}

func TestRegistry_PassesThroughOtherErrors(t *testing.T) {
	plain := errors.New("plain")
	assert.Same(t, plain, NewRegistry().Hydrate(plain))
}

func TestNewUnresolved_RequiresTypeName(t *testing.T) {
	_, err := NewUnresolved(json.RawMessage(`{"detailMessage":"x"}`))
	assert.ErrorIs(t, err, ErrMissingTypeName)
}

func TestToProviderRuntime(t *testing.T) {
	mie := &MethodInvocationException{DetailMessage: "typed"}
	assert.Same(t, mie, ToProviderRuntime(fmt.Errorf("wrapped: %w", mie)))

	wrapped := ToProviderRuntime(errors.New("disk on fire"))
	assert.Equal(t, &ProviderRuntimeException{DetailMessage: "disk on fire"}, wrapped)
}

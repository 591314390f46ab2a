package dispatching

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"unicode"
	"unicode/utf8"

	"github.com/zeusync/joynr/internal/core/exceptions"
	"github.com/zeusync/joynr/internal/core/types"
)

const (
	getterPrefix = "get"
	setterPrefix = "set"
)

// OperationFunc implements one provider operation. It returns the output
// parameters; a void operation returns an empty slice.
type OperationFunc func(ctx context.Context, params []any, paramDatatypes []string) ([]any, error)

// Attribute is a provider attribute. A nil Get or Set leaves the accessor out.
type Attribute struct {
	Get func(ctx context.Context) (any, error)
	Set func(ctx context.Context, value any) error
}

type invocation func(ctx context.Context, params []any, paramDatatypes []string) ([]any, error)

// Provider is the capability table of a provider implementation. Operations
// and attributes are declared before the provider is registered with
// AddRequestCaller, which freezes the method index.
type Provider struct {
	version    types.Version
	operations map[string]OperationFunc
	attributes map[string]Attribute

	freezeOnce sync.Once
	index      map[string]invocation
}

func NewProvider(majorVersion, minorVersion int32) *Provider {
	return &Provider{
		version:    types.Version{MajorVersion: majorVersion, MinorVersion: minorVersion},
		operations: make(map[string]OperationFunc),
		attributes: make(map[string]Attribute),
	}
}

// WithOperation declares the operation name.
func (p *Provider) WithOperation(name string, op OperationFunc) *Provider {
	p.operations[name] = op
	return p
}

// WithAttribute declares the attribute name, reachable as get<Name> and
// set<Name> as well as get<name> and set<name>.
func (p *Provider) WithAttribute(name string, attr Attribute) *Provider {
	p.attributes[name] = attr
	return p
}

func (p *Provider) Version() types.Version {
	return p.version
}

// freeze builds the method index. Accessors go in first so that an operation
// with the same name as an accessor replaces it.
func (p *Provider) freeze() {
	p.freezeOnce.Do(func() {
		index := make(map[string]invocation, len(p.operations)+2*len(p.attributes))
		for name, attr := range p.attributes {
			// getFooBar and getfooBar both reach attribute fooBar
			for _, suffix := range []string{upperFirst(name), name} {
				if attr.Get != nil {
					index[getterPrefix+suffix] = getterInvocation(name, attr.Get)
				}
				if attr.Set != nil {
					index[setterPrefix+suffix] = setterInvocation(name, attr.Set)
				}
			}
		}
		for name, op := range p.operations {
			index[name] = operationInvocation(op)
		}
		p.index = index
	})
}

// invoke calls methodName. A method that does not exist yields a
// MethodInvocationException naming the operation and the attribute it could
// have been an accessor of.
func (p *Provider) invoke(ctx context.Context, methodName string, params []any, paramDatatypes []string) ([]any, error) {
	p.freeze()
	call, ok := p.index[methodName]
	if !ok {
		version := p.version
		return nil, &exceptions.MethodInvocationException{
			DetailMessage: fmt.Sprintf("Could not find an operation %q or an attribute %q in the provider",
				methodName, attributeCandidate(methodName)),
			ProviderVersion: &version,
		}
	}
	return call(ctx, params, paramDatatypes)
}

func operationInvocation(op OperationFunc) invocation {
	return func(ctx context.Context, params []any, paramDatatypes []string) ([]any, error) {
		out, err := op(ctx, params, paramDatatypes)
		if err != nil {
			return nil, exceptions.ToProviderRuntime(err)
		}
		if out == nil {
			out = []any{}
		}
		return out, nil
	}
}

func getterInvocation(attribute string, get func(context.Context) (any, error)) invocation {
	return func(ctx context.Context, _ []any, _ []string) ([]any, error) {
		value, err := get(ctx)
		if err != nil {
			return nil, accessorError(attribute, err)
		}
		return []any{value}, nil
	}
}

func setterInvocation(attribute string, set func(context.Context, any) error) invocation {
	return func(ctx context.Context, params []any, _ []string) ([]any, error) {
		if len(params) == 0 {
			return nil, &exceptions.MethodInvocationException{
				DetailMessage: fmt.Sprintf("setter of attribute %s called without a value", attribute),
			}
		}
		if err := set(ctx, params[0]); err != nil {
			return nil, accessorError(attribute, err)
		}
		return []any{}, nil
	}
}

func accessorError(attribute string, err error) error {
	if ex, ok := exceptions.As(err); ok {
		return ex
	}
	return &exceptions.ProviderRuntimeException{
		DetailMessage: fmt.Sprintf("getter/setter method of attribute %s reported an error %v", attribute, err),
	}
}

// attributeCandidate strips a get/set prefix and upper-cases the first letter:
// "getFoo" and "foo" both give "Foo".
func attributeCandidate(methodName string) string {
	name := methodName
	for _, prefix := range []string{getterPrefix, setterPrefix} {
		if len(name) > len(prefix) && strings.HasPrefix(name, prefix) {
			name = strings.TrimPrefix(name, prefix)
			break
		}
	}
	return upperFirst(name)
}

func upperFirst(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}

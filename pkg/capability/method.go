package capability

import (
	"context"
	"errors"
	"fmt"
	"reflect"

	"github.com/aretw0/ason/pkg/domain"
	"github.com/aretw0/ason/pkg/operator"
)

// ReturnKind classifies what a method hands back to the script.
type ReturnKind int

const (
	ReturnNone ReturnKind = iota
	ReturnValue
	ReturnAwaited
)

func (k ReturnKind) String() string {
	switch k {
	case ReturnNone:
		return "none"
	case ReturnValue:
		return "value"
	case ReturnAwaited:
		return "awaited"
	default:
		return fmt.Sprintf("return(%d)", int(k))
	}
}

// Awaitable is a deferred result. The dispatcher awaits it before replying.
type Awaitable interface {
	Await(ctx context.Context) (any, error)
}

// Deferred is an Awaitable whose value is produced by calling the function.
type Deferred[T any] func(ctx context.Context) (T, error)

func (d Deferred[T]) Await(ctx context.Context) (any, error) { return d(ctx) }

func (Deferred[T]) awaitedType() reflect.Type { return reflect.TypeFor[T]() }

type typedAwaitable interface {
	awaitedType() reflect.Type
}

var (
	ctxType       = reflect.TypeFor[context.Context]()
	errType       = reflect.TypeFor[error]()
	nodeType      = reflect.TypeFor[*operator.Node]()
	awaitableType = reflect.TypeFor[Awaitable]()
	anyType       = reflect.TypeFor[any]()
)

// Param is one script-visible parameter of a method.
type Param struct {
	Name string
	Type reflect.Type
}

// Method is a single callable action of an operator type.
type Method struct {
	Owner       string
	Name        string
	Description string
	Params      []Param
	Return      ReturnKind
	// Result is the value type delivered to the script (nil for ReturnNone).
	Result reflect.Type
	// Opens names the operator kind returned by navigation methods.
	Opens string

	fn          reflect.Value
	withContext bool
}

// MethodOption customizes a declared method.
type MethodOption func(*Method)

// Describe sets the description shown in the signature listing.
func Describe(desc string) MethodOption {
	return func(m *Method) { m.Description = desc }
}

// Params names the script-visible parameters in order.
func Params(names ...string) MethodOption {
	return func(m *Method) {
		for i, name := range names {
			if i < len(m.Params) && name != "" {
				m.Params[i].Name = name
			}
		}
	}
}

// Opens marks a method returning *operator.Node as navigation to kind; the
// script receives a stub of that kind instead of a raw handle.
func Opens(kind string) MethodOption {
	return func(m *Method) { m.Opens = kind }
}

// Type is the declaration of one operator kind.
type Type struct {
	Name        string
	Description string
	Methods     []*Method
	err         error
}

// Declare starts the declaration of an operator kind.
func Declare(name, description string) *Type {
	return &Type{Name: name, Description: description}
}

// Method adds a method implemented by fn. fn takes an optional
// context.Context, then the *operator.Node the call targets, then the script
// arguments; it returns an optional value and an optional trailing error.
// Invalid signatures are reported by Registry.Register.
func (t *Type) Method(name string, fn any, opts ...MethodOption) *Type {
	m, err := newMethod(t.Name, name, fn)
	if err != nil {
		t.err = errors.Join(t.err, err)
		return t
	}
	for _, opt := range opts {
		opt(m)
	}
	t.Methods = append(t.Methods, m)
	return t
}

// Err returns the accumulated declaration errors.
func (t *Type) Err() error { return t.err }

func newMethod(owner, name string, fn any) (*Method, error) {
	v := reflect.ValueOf(fn)
	if !v.IsValid() || v.Kind() != reflect.Func {
		return nil, fmt.Errorf("%s.%s: implementation must be a func, got %T", owner, name, fn)
	}
	ft := v.Type()
	if ft.IsVariadic() {
		return nil, fmt.Errorf("%s.%s: variadic methods are not supported", owner, name)
	}

	m := &Method{Owner: owner, Name: name, fn: v}
	i := 0
	if ft.NumIn() > 0 && ft.In(0) == ctxType {
		m.withContext = true
		i++
	}
	if ft.NumIn() <= i || ft.In(i) != nodeType {
		return nil, fmt.Errorf("%s.%s: first non-context parameter must be *operator.Node", owner, name)
	}
	i++
	for ; i < ft.NumIn(); i++ {
		m.Params = append(m.Params, Param{Name: fmt.Sprintf("a%d", len(m.Params)), Type: ft.In(i)})
	}

	outs := ft.NumOut()
	if outs > 0 && ft.Out(outs-1) == errType {
		outs--
	}
	switch outs {
	case 0:
		m.Return = ReturnNone
	case 1:
		rt := ft.Out(0)
		switch {
		case rt.Implements(awaitableType):
			m.Return = ReturnAwaited
			m.Result = anyType
			if rt.Implements(reflect.TypeFor[typedAwaitable]()) {
				m.Result = reflect.Zero(rt).Interface().(typedAwaitable).awaitedType()
			}
		default:
			m.Return = ReturnValue
			m.Result = rt
		}
	default:
		return nil, fmt.Errorf("%s.%s: must return at most one value and an optional error", owner, name)
	}
	if ft.NumOut() == 2 && ft.Out(1) != errType {
		return nil, fmt.Errorf("%s.%s: second result must be error", owner, name)
	}
	return m, nil
}

// Arity is the number of script-visible parameters.
func (m *Method) Arity() int { return len(m.Params) }

// ParamTypes returns the parameter types in order.
func (m *Method) ParamTypes() []reflect.Type {
	out := make([]reflect.Type, len(m.Params))
	for i, p := range m.Params {
		out[i] = p.Type
	}
	return out
}

// Call invokes the implementation. An argument that does not match its
// ParamTypes entry fails the call with domain.ErrExecution.
// The raw result is returned; awaiting and handle substitution are left to
// the dispatcher.
func (m *Method) Call(ctx context.Context, node *operator.Node, args []reflect.Value) (any, error) {
	if len(args) != len(m.Params) {
		return nil, fmt.Errorf("%w: %s.%s takes %d argument(s), got %d", domain.ErrExecution, m.Owner, m.Name, len(m.Params), len(args))
	}
	for i, a := range args {
		if !a.IsValid() || !a.Type().AssignableTo(m.Params[i].Type) {
			return nil, fmt.Errorf("%w: %s.%s argument %d: cannot use %s as %s", domain.ErrExecution, m.Owner, m.Name, i, describe(a), m.Params[i].Type)
		}
	}

	in := make([]reflect.Value, 0, len(args)+2)
	if m.withContext {
		in = append(in, reflect.ValueOf(ctx))
	}
	in = append(in, reflect.ValueOf(node))
	in = append(in, args...)

	out := m.fn.Call(in)

	var err error
	if n := len(out); n > 0 && m.fn.Type().Out(n-1) == errType {
		if e := out[n-1]; !e.IsNil() {
			err = e.Interface().(error)
		}
		out = out[:n-1]
	}
	if len(out) == 0 {
		return nil, err
	}
	return out[0].Interface(), err
}

func describe(v reflect.Value) string {
	if !v.IsValid() {
		return "nil"
	}
	return v.Type().String()
}

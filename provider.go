package fluxus

import (
	"fmt"
	"reflect"
	"time"
)

// ProviderKind discriminates the closed set of provider policies.
type ProviderKind uint8

const (
	// KindPlain is a pure function of the reader, recomputed whenever a
	// watched dependency changes.
	KindPlain ProviderKind = iota
	// KindState holds an externally updatable value and tracks no
	// dependencies of its own.
	KindState
	// KindComputed is a pure derivation over other providers.
	KindComputed
	// KindAsync produces its value asynchronously, exposed as an AsyncValue.
	KindAsync
	// KindStream subscribes to a push-based source, exposed as an AsyncValue.
	KindStream
)

func (k ProviderKind) String() string {
	switch k {
	case KindPlain:
		return "plain"
	case KindState:
		return "state"
	case KindComputed:
		return "computed"
	case KindAsync:
		return "async"
	case KindStream:
		return "stream"
	default:
		return fmt.Sprintf("ProviderKind(%d)", uint8(k))
	}
}

// AnyProvider is the type-erased descriptor interface used for identity keys
// and graph bookkeeping. Only providers constructed by this package implement
// it.
type AnyProvider interface {
	Kind() ProviderKind
	Name() string
	GetTag(tag any) (any, bool)
	SetTag(tag any, val any)

	setName(name string)
	setDebounce(d time.Duration)
	setKeepPrevious()
	compute(r *Reader, prev any, hasPrev bool) (any, error)
	launch(r *Reader, prev any, hasPrev bool, apply func(next any))
	equalAny(a, b any) bool
	debounceFor() time.Duration
}

// Provider is an immutable descriptor of how to produce a scoped value. It is
// identified by reference: the same *Provider read from many scopes yields an
// independent state record per scope.
type Provider[T any] struct {
	kind     ProviderKind
	name     string
	factory  func(*Reader) (T, error)
	initial  func(prev any, hasPrev bool) any
	starter  func(r *Reader, prev any, hasPrev bool, apply func(next any))
	equal    func(a, b T) bool
	debounce time.Duration
	keepPrev bool
	tags     map[any]any
}

// ProviderOption is a modifier applied at provider construction.
type ProviderOption func(AnyProvider)

// WithName attaches a debug name used in errors and graph dumps.
func WithName(name string) ProviderOption {
	return func(p AnyProvider) {
		p.setName(name)
	}
}

// WithDebounce delays recomputation: dependency invalidations within the
// window collapse into a single trailing recomputation.
func WithDebounce(d time.Duration) ProviderOption {
	return func(p AnyProvider) {
		p.setDebounce(d)
	}
}

// WithKeepPrevious makes an async or stream provider retain already-produced
// data inside the loading and error variants of its tri-state value.
func WithKeepPrevious() ProviderOption {
	return func(p AnyProvider) {
		p.setKeepPrevious()
	}
}

// WithTag returns an option that sets a tag on a provider.
func WithTag[T any](tag Tag[T], val T) ProviderOption {
	return func(p AnyProvider) {
		tag.Set(p, val)
	}
}

// WithEquality overrides the comparator used to decide whether a provider's
// value changed. The default treats values of comparable dynamic type with
// ==; non-comparable values always compare unequal.
func WithEquality[T any](eq func(a, b T) bool) ProviderOption {
	return func(p AnyProvider) {
		tp, ok := p.(*Provider[T])
		if !ok {
			panic(fmt.Sprintf("fluxus: WithEquality[%T] applied to a %s provider of a different value type", *new(T), p.Kind()))
		}
		tp.equal = eq
	}
}

func newProvider[T any](kind ProviderKind, opts []ProviderOption) *Provider[T] {
	p := &Provider[T]{
		kind: kind,
		tags: make(map[any]any),
	}
	p.equal = defaultEqual[T]
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Provide creates a plain provider: a pure function of the reader, cached per
// scope and recomputed whenever a watched dependency changes.
func Provide[T any](factory func(*Reader) (T, error), opts ...ProviderOption) *Provider[T] {
	p := newProvider[T](KindPlain, nil)
	p.factory = factory
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// State creates a state provider holding a fixed initial value, mutated only
// through scope updaters.
func State[T any](initial T, opts ...ProviderOption) *Provider[T] {
	return StateFrom(func(*Reader) (T, error) {
		return initial, nil
	}, opts...)
}

// StateFrom creates a state provider whose initial value comes from a
// factory. State providers track no dependencies of their own.
func StateFrom[T any](factory func(*Reader) (T, error), opts ...ProviderOption) *Provider[T] {
	p := newProvider[T](KindState, nil)
	p.factory = factory
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Computed creates a derived provider: a pure function over other providers,
// changed only through dependency propagation.
func Computed[T any](compute func(*Reader) (T, error), opts ...ProviderOption) *Provider[T] {
	p := newProvider[T](KindComputed, nil)
	p.factory = compute
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Async creates a provider whose value is produced asynchronously. Reads
// observe a tri-state AsyncValue: loading immediately, then data or error
// once the production routine settles. The routine receives a reader whose
// Context is cancelled on disposal or recomputation; results arriving after
// cancellation are discarded.
func Async[T any](produce func(*Reader) (T, error), opts ...ProviderOption) *Provider[AsyncValue[T]] {
	p := newProvider[AsyncValue[T]](KindAsync, nil)
	elemEq := defaultEqual[T]
	p.equal = func(a, b AsyncValue[T]) bool {
		return asyncValueEqual(a, b, elemEq)
	}
	p.initial = func(prev any, hasPrev bool) any {
		return loadingFrom[T](prev, hasPrev && p.keepPrev)
	}
	p.starter = func(r *Reader, prev any, hasPrev bool, apply func(next any)) {
		prevData, hasPrevData := retainedData[T](prev, hasPrev && p.keepPrev)
		go func() {
			v, err := produce(r)
			if r.Cancelled() {
				return
			}
			if err != nil {
				if hasPrevData {
					apply(FailureWith(err, prevData))
				} else {
					apply(Failure[T](err))
				}
				return
			}
			apply(Data(v))
		}()
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Stream creates a provider backed by a push-based source. The open routine
// returns a channel whose emissions become data values; it is re-invoked when
// a watched dependency changes, after the previous subscription's cleanup ran
// and its context was cancelled.
func Stream[T any](open func(*Reader) (<-chan T, error), opts ...ProviderOption) *Provider[AsyncValue[T]] {
	p := newProvider[AsyncValue[T]](KindStream, nil)
	elemEq := defaultEqual[T]
	p.equal = func(a, b AsyncValue[T]) bool {
		return asyncValueEqual(a, b, elemEq)
	}
	p.initial = func(prev any, hasPrev bool) any {
		return loadingFrom[T](prev, hasPrev && p.keepPrev)
	}
	p.starter = func(r *Reader, prev any, hasPrev bool, apply func(next any)) {
		prevData, hasPrevData := retainedData[T](prev, hasPrev && p.keepPrev)
		go func() {
			ch, err := open(r)
			if err != nil {
				if r.Cancelled() {
					return
				}
				if hasPrevData {
					apply(FailureWith(err, prevData))
				} else {
					apply(Failure[T](err))
				}
				return
			}
			for {
				select {
				case <-r.Context().Done():
					return
				case v, ok := <-ch:
					if !ok {
						return
					}
					apply(Data(v))
				}
			}
		}()
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Kind returns the provider's policy discriminant.
func (p *Provider[T]) Kind() ProviderKind {
	return p.kind
}

// Name returns the debug name, or "" when none was set.
func (p *Provider[T]) Name() string {
	return p.name
}

// GetTag retrieves a tag value from the provider.
func (p *Provider[T]) GetTag(tag any) (any, bool) {
	val, ok := p.tags[tag]
	return val, ok
}

// SetTag stores a tag value on the provider.
func (p *Provider[T]) SetTag(tag any, val any) {
	p.tags[tag] = val
}

func (p *Provider[T]) setName(name string)         { p.name = name }
func (p *Provider[T]) setDebounce(d time.Duration) { p.debounce = d }
func (p *Provider[T]) setKeepPrevious()            { p.keepPrev = true }
func (p *Provider[T]) debounceFor() time.Duration  { return p.debounce }

func (p *Provider[T]) compute(r *Reader, prev any, hasPrev bool) (any, error) {
	if p.initial != nil {
		return p.initial(prev, hasPrev), nil
	}
	v, err := p.factory(r)
	if err != nil {
		return nil, err
	}
	return v, nil
}

func (p *Provider[T]) launch(r *Reader, prev any, hasPrev bool, apply func(next any)) {
	if p.starter == nil {
		return
	}
	p.starter(r, prev, hasPrev, apply)
}

func (p *Provider[T]) equalAny(a, b any) bool {
	av, aok := a.(T)
	bv, bok := b.(T)
	if !aok || !bok {
		return false
	}
	return p.equal(av, bv)
}

// constantProvider backs value overrides: a fixed value with plain-kind
// semantics and no creation routine.
type constantProvider struct {
	value any
	tags  map[any]any
}

func newConstantProvider(value any) *constantProvider {
	return &constantProvider{value: value, tags: make(map[any]any)}
}

func (c *constantProvider) Kind() ProviderKind { return KindPlain }
func (c *constantProvider) Name() string       { return "" }

func (c *constantProvider) GetTag(tag any) (any, bool) {
	val, ok := c.tags[tag]
	return val, ok
}

func (c *constantProvider) SetTag(tag any, val any) { c.tags[tag] = val }

func (c *constantProvider) setName(string)             {}
func (c *constantProvider) setDebounce(time.Duration)  {}
func (c *constantProvider) setKeepPrevious()           {}
func (c *constantProvider) debounceFor() time.Duration { return 0 }

func (c *constantProvider) compute(*Reader, any, bool) (any, error) {
	return c.value, nil
}

func (c *constantProvider) launch(*Reader, any, bool, func(any)) {}

func (c *constantProvider) equalAny(a, b any) bool {
	return anyEqual(a, b)
}

func defaultEqual[T any](a, b T) bool {
	return anyEqual(any(a), any(b))
}

func anyEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	ta, tb := reflect.TypeOf(a), reflect.TypeOf(b)
	if ta != tb || !ta.Comparable() {
		return false
	}
	return a == b
}

func loadingFrom[T any](prev any, keep bool) AsyncValue[T] {
	if data, ok := retainedData[T](prev, keep); ok {
		return LoadingWith(data)
	}
	return Loading[T]()
}

func retainedData[T any](prev any, keep bool) (T, bool) {
	var zero T
	if !keep || prev == nil {
		return zero, false
	}
	av, ok := prev.(AsyncValue[T])
	if !ok {
		return zero, false
	}
	return av.Value()
}

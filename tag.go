package fluxus

// Tag is a type-safe key for metadata on providers and scopes.
type Tag[T any] struct {
	key string
}

// NewTag creates a new tag with the given key.
func NewTag[T any](key string) Tag[T] {
	return Tag[T]{key: key}
}

// Key returns the tag's key (for debugging).
func (t Tag[T]) Key() string {
	return t.key
}

// Get retrieves the tag value from a provider.
func (t Tag[T]) Get(p AnyProvider) (T, bool) {
	val, ok := p.GetTag(t)
	if !ok {
		var zero T
		return zero, false
	}
	return val.(T), true
}

// MustGet retrieves the tag value or panics if not found.
func (t Tag[T]) MustGet(p AnyProvider) T {
	val, ok := t.Get(p)
	if !ok {
		panic("tag " + t.key + " not found")
	}
	return val
}

// GetOrDefault retrieves the tag value or returns a default.
func (t Tag[T]) GetOrDefault(p AnyProvider, defaultVal T) T {
	if val, ok := t.Get(p); ok {
		return val
	}
	return defaultVal
}

// Set stores the tag value on a provider.
func (t Tag[T]) Set(p AnyProvider, val T) {
	p.SetTag(t, val)
}

// GetFromScope retrieves the tag value from a scope.
func (t Tag[T]) GetFromScope(scope *Scope) (T, bool) {
	val, ok := scope.GetTag(t)
	if !ok {
		var zero T
		return zero, false
	}
	return val.(T), true
}

// SetOnScope stores the tag value on a scope.
func (t Tag[T]) SetOnScope(scope *Scope, val T) {
	scope.SetTag(t, val)
}

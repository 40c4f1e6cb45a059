package fluxus

// Controller provides lifecycle control for a provider's value in one scope
type Controller[T any] struct {
	provider *Provider[T]
	scope    *Scope
}

// Accessor binds a provider to a scope for repeated access
func Accessor[T any](s *Scope, p *Provider[T]) *Controller[T] {
	return &Controller[T]{provider: p, scope: s}
}

// Get retrieves the latest value (resolves if no live record exists)
func (c *Controller[T]) Get() (T, error) {
	return Resolve(c.scope, c.provider)
}

// Peek retrieves the current value without resolving or recomputing
func (c *Controller[T]) Peek() (T, bool) {
	val, ok := c.scope.peekAny(c.provider)
	if !ok {
		var zero T
		return zero, false
	}
	return val.(T), true
}

// Update sets a new value and propagates to watching dependents
func (c *Controller[T]) Update(newVal T) error {
	return Update(c.scope, c.provider, newVal)
}

// UpdateFn sets a new value derived from the previous one
func (c *Controller[T]) UpdateFn(fn func(prev T) T) error {
	return UpdateFn(c.scope, c.provider, fn)
}

// Set is an alias for Update
func (c *Controller[T]) Set(newVal T) error {
	return c.Update(newVal)
}

// Watch registers a listener for value changes
func (c *Controller[T]) Watch(fn func(T)) (UnwatchFunc, error) {
	return Watch(c.scope, c.provider, fn)
}

// Invalidate marks the record stale and recomputes it
func (c *Controller[T]) Invalidate() error {
	return Invalidate(c.scope, c.provider)
}

// Refresh invalidates and immediately re-resolves
func (c *Controller[T]) Refresh() (T, error) {
	return Refresh(c.scope, c.provider)
}

// IsLive checks whether a non-disposed record currently exists
func (c *Controller[T]) IsLive() bool {
	_, ok := c.scope.peekAny(c.provider)
	return ok
}

package fluxus

import (
	"fmt"
	"runtime/debug"
	"strings"
)

// ScopeDisposedError is returned when an operation is attempted against a
// scope that has already been disposed.
type ScopeDisposedError struct{}

func (e *ScopeDisposedError) Error() string {
	return "fluxus: scope has been disposed"
}

// ProviderStateDisposedError is returned when an operation targets a provider
// state record that has been disposed individually, for example through a
// reader retained past auto-disposal.
type ProviderStateDisposedError struct {
	Provider AnyProvider
}

func (e *ProviderStateDisposedError) Error() string {
	return fmt.Sprintf("fluxus: provider state for %s has been disposed", providerLabel(e.Provider))
}

// CircularDependencyError is returned when a provider is re-entered, directly
// or transitively, while its own computation is still on the stack. Chain
// holds the offending reference path, ending with the repeated provider.
type CircularDependencyError struct {
	Chain []AnyProvider
}

func (e *CircularDependencyError) Error() string {
	labels := make([]string, len(e.Chain))
	for i, p := range e.Chain {
		labels[i] = providerLabel(p)
	}
	return "fluxus: circular dependency: " + strings.Join(labels, " -> ")
}

// NotAStateProviderError is returned when an updater is requested for a
// provider whose effective kind is not state.
type NotAStateProviderError struct {
	Provider AnyProvider
	Kind     ProviderKind
}

func (e *NotAStateProviderError) Error() string {
	return fmt.Sprintf("fluxus: %s is a %s provider, not a state provider", providerLabel(e.Provider), e.Kind)
}

// InconsistentStateError signals an internal invariant violation. It is a
// programming-error signal, not a recoverable condition.
type InconsistentStateError struct {
	Message string
}

func (e *InconsistentStateError) Error() string {
	return "fluxus: inconsistent state: " + e.Message
}

// ResolveError wraps a failure raised by a provider's creation routine.
type ResolveError struct {
	Provider   AnyProvider
	Cause      error
	StackTrace []byte
}

func (e *ResolveError) Error() string {
	return fmt.Sprintf("fluxus: resolving %s: %v", providerLabel(e.Provider), e.Cause)
}

func (e *ResolveError) Unwrap() error {
	return e.Cause
}

func newResolveError(provider AnyProvider, cause error) *ResolveError {
	return &ResolveError{
		Provider:   provider,
		Cause:      cause,
		StackTrace: debug.Stack(),
	}
}

func providerLabel(p AnyProvider) string {
	if p == nil {
		return "<nil>"
	}
	if name := p.Name(); name != "" {
		return name
	}
	return fmt.Sprintf("%s(%p)", p.Kind(), p)
}

package fluxus

import "context"

// Extension provides hooks into the scope lifecycle
type Extension interface {
	// Name returns the extension's name
	Name() string

	// Order determines extension execution order (lower = earlier)
	Order() int

	// Init is called when the extension is registered to a scope
	Init(scope *Scope) error

	// Wrap intercepts operations (resolve, update, invalidate)
	Wrap(ctx context.Context, next func() (any, error), op *Operation) (any, error)

	// OnError handles errors during resolution
	OnError(err error, op *Operation, scope *Scope)

	// OnCleanupError handles cleanup failures
	// Returns true if the error was handled, false to use default behavior
	OnCleanupError(err *CleanupError) bool

	// Dispose is called when the scope is disposed
	Dispose(scope *Scope) error
}

// CleanupError contains information about a cleanup failure
type CleanupError struct {
	Provider AnyProvider
	Err      error
	Context  string // "recompute" or "dispose"
}

// BaseExtension provides default implementations for Extension methods
type BaseExtension struct {
	name string
}

// NewBaseExtension creates a new base extension with the given name
func NewBaseExtension(name string) BaseExtension {
	return BaseExtension{name: name}
}

func (e *BaseExtension) Name() string {
	return e.name
}

func (e *BaseExtension) Order() int {
	return 100
}

func (e *BaseExtension) Init(scope *Scope) error {
	return nil
}

func (e *BaseExtension) Wrap(ctx context.Context, next func() (any, error), op *Operation) (any, error) {
	return next()
}

func (e *BaseExtension) OnError(err error, op *Operation, scope *Scope) {
}

func (e *BaseExtension) OnCleanupError(err *CleanupError) bool {
	return false
}

func (e *BaseExtension) Dispose(scope *Scope) error {
	return nil
}

// Operation describes what operation is happening
type Operation struct {
	Kind     OperationKind
	Provider AnyProvider
	Scope    *Scope
}

// OperationKind represents the type of operation
type OperationKind string

const (
	// OpResolve indicates a provider resolution
	OpResolve OperationKind = "resolve"
	// OpUpdate indicates a state provider update
	OpUpdate OperationKind = "update"
	// OpInvalidate indicates a forced recomputation
	OpInvalidate OperationKind = "invalidate"
)

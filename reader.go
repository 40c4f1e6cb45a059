package fluxus

import "context"

// Reader is the capability object handed to a provider's creation routine.
// It offers dependency-tracked reads of other providers, disposal
// registration, and a cancellation signal for asynchronous work.
//
// Readers passed to synchronous creation routines (plain, state, computed)
// are only valid for the duration of the routine and must not be retained.
// Async and stream production routines receive a detached reader that remains
// usable from their goroutine; its Context is cancelled when the record is
// disposed or recomputed.
type Reader struct {
	scope  *Scope
	record *record
	ctx    context.Context
	gen    uint64
	inPass bool
}

// Context returns the cancellation signal for the computation this reader
// belongs to. It is cancelled when the record is disposed or recomputed.
func (r *Reader) Context() context.Context {
	if r.ctx == nil {
		return context.Background()
	}
	return r.ctx
}

// Cancelled reports whether the computation this reader belongs to has been
// abandoned. Asynchronous routines are expected to check it at resumption
// points and abandon cleanly.
func (r *Reader) Cancelled() bool {
	return r.Context().Err() != nil
}

// OnDispose registers a cleanup action, run in registration order when the
// record is disposed or before it recomputes. A cleanup registered after the
// record was already disposed runs immediately.
func (r *Reader) OnDispose(fn func() error) {
	if r.inPass {
		r.record.cleanups = append(r.record.cleanups, fn)
		return
	}
	s := r.scope
	s.mu.Lock()
	if r.record.disposed || r.record.gen != r.gen {
		s.mu.Unlock()
		_ = fn()
		return
	}
	r.record.cleanups = append(r.record.cleanups, fn)
	s.mu.Unlock()
}

// GetTag retrieves a tag value from the scope.
func (r *Reader) GetTag(tag any) (any, bool) {
	return r.scope.GetTag(tag)
}

// GetTag retrieves a typed tag value from the reader's scope.
func GetTag[T any](r *Reader, tag Tag[T]) (T, bool) {
	return tag.GetFromScope(r.scope)
}

// GetTagOrDefault retrieves a typed tag or returns a default value.
func GetTagOrDefault[T any](r *Reader, tag Tag[T], defaultVal T) T {
	if val, ok := tag.GetFromScope(r.scope); ok {
		return val
	}
	return defaultVal
}

// Use resolves another provider and records a watch edge: when that
// provider's value later changes, this record is marked stale and recomputed.
func Use[T any](r *Reader, p *Provider[T]) (T, error) {
	return dependOn(r, p, edgeWatch)
}

// Read resolves another provider and records a plain read edge: the value is
// observed and the dependency is recorded, but no staleness propagation is
// established.
func Read[T any](r *Reader, p *Provider[T]) (T, error) {
	return dependOn(r, p, edgeRead)
}

func dependOn[T any](r *Reader, p *Provider[T], kind edgeKind) (T, error) {
	var zero T
	if r == nil || r.scope == nil || r.record == nil {
		return zero, &InconsistentStateError{Message: "reader is not bound to a provider state record"}
	}
	s := r.scope

	if r.inPass {
		// The owning scope's mutex is held by the computation pass.
		if target := s.delegateFor(p); target != nil {
			v, err := target.resolveAny(p)
			if err != nil {
				return zero, err
			}
			return v.(T), nil
		}
		rec, err := s.resolveRecordLocked(p)
		if err != nil {
			return zero, err
		}
		if r.record.pendingDeps != nil {
			strengthenEdge(r.record.pendingDeps, p, kind)
		}
		return rec.value.(T), nil
	}

	// Detached reader: lock the scope like any external entry point.
	var out any
	err := s.run(func() error {
		if r.record.disposed {
			return &ProviderStateDisposedError{Provider: r.record.origin}
		}
		if target := s.delegateFor(p); target != nil {
			v, err := target.resolveAny(p)
			if err != nil {
				return err
			}
			out = v
			return nil
		}
		rec, err := s.resolveRecordLocked(p)
		if err != nil {
			return err
		}
		// A reader from a superseded computation still reads the value but no
		// longer registers edges on behalf of the record.
		if r.record.gen == r.gen {
			if r.record.deps == nil {
				r.record.deps = make(map[AnyProvider]edgeKind)
			}
			strengthenEdge(r.record.deps, p, kind)
			if rec.dependents == nil {
				rec.dependents = make(map[AnyProvider]edgeKind)
			}
			strengthenEdge(rec.dependents, r.record.origin, kind)
		}
		out = rec.value
		return nil
	})
	if err != nil {
		return zero, err
	}
	return out.(T), nil
}

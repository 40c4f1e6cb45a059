package fluxus

import (
	"context"
	"time"
)

// edgeKind is the strength of a dependency edge. Read edges record the
// relationship for bookkeeping and cycle detection; watch edges additionally
// participate in staleness propagation.
type edgeKind uint8

const (
	edgeRead edgeKind = iota + 1
	edgeWatch
)

// record is the scope-local runtime instance for one provider: the cached
// value, the dependency/dependent edge sets, external listeners, and the
// disposal bookkeeping. All fields are guarded by the owning scope's mutex.
type record struct {
	// origin is the provider reference the record is keyed under; provider is
	// the effective descriptor after override resolution.
	origin   AnyProvider
	provider AnyProvider

	id  uint64
	gen uint64

	value    any
	hasValue bool
	stale    bool
	disposed bool

	// deps holds the edges recorded during the most recent computation;
	// pendingDeps collects the next set while a computation pass runs and
	// replaces deps only on success.
	deps        map[AnyProvider]edgeKind
	pendingDeps map[AnyProvider]edgeKind
	dependents  map[AnyProvider]edgeKind

	listeners  []listener
	listenerID uint64

	cleanups []func() error

	ctx           context.Context
	cancel        context.CancelFunc
	debounceTimer *time.Timer
}

type listener struct {
	id uint64
	fn func(any)
}

func (rec *record) addListener(fn func(any)) uint64 {
	rec.listenerID++
	rec.listeners = append(rec.listeners, listener{id: rec.listenerID, fn: fn})
	return rec.listenerID
}

// removeListener reports whether the listener was present and whether it was
// the last one.
func (rec *record) removeListener(id uint64) (removed, last bool) {
	for i, l := range rec.listeners {
		if l.id == id {
			rec.listeners = append(rec.listeners[:i], rec.listeners[i+1:]...)
			return true, len(rec.listeners) == 0
		}
	}
	return false, false
}

func strengthenEdge(edges map[AnyProvider]edgeKind, p AnyProvider, kind edgeKind) {
	if edges[p] < kind {
		edges[p] = kind
	}
}

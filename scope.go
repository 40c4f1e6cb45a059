package fluxus

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

// Scope manages the lifecycle and resolution of providers: it owns one state
// record per provider, the dependency graph among them, override resolution,
// staleness propagation, and disposal.
//
// Every graph mutation (creation, recomputation, listener bookkeeping,
// disposal, applying an asynchronous result) runs as one serialized pass
// under the scope's mutex, so observers never see a half-applied graph.
// Listener callbacks fire after the pass, outside the lock.
type Scope struct {
	mu         sync.Mutex
	records    map[AnyProvider]*record
	overrides  map[AnyProvider]override
	parent     *Scope
	extensions []Extension
	tags       sync.Map
	stack      []AnyProvider
	pending    []func()
	idCounter  uint64
	disposed   bool
}

type override struct {
	value    any
	provider AnyProvider
	isValue  bool
}

// UnwatchFunc removes the listener registered by Watch. Calling it more than
// once is a no-op.
type UnwatchFunc func()

// ScopeOption is a modifier applied at scope construction.
type ScopeOption func(*Scope)

// WithScopeTag returns an option that sets a tag on a scope.
func WithScopeTag[T any](tag Tag[T], val T) ScopeOption {
	return func(s *Scope) {
		tag.SetOnScope(s, val)
	}
}

// WithExtension returns an option that registers an extension to a scope.
func WithExtension(ext Extension) ScopeOption {
	return func(s *Scope) {
		if err := s.UseExtension(ext); err != nil {
			panic(err)
		}
	}
}

// WithParent chains the scope to a parent it does not own. The child never
// mutates the parent and inherits no state automatically: a provider
// overridden in an ancestor resolves against that ancestor's records, and
// everything else resolves locally.
func WithParent(parent *Scope) ScopeOption {
	return func(s *Scope) {
		s.parent = parent
	}
}

// WithOverride substitutes a provider within the scope: replacement is either
// a fixed value of the provider's value type or another *Provider of the same
// type. Matching is by exact reference.
func WithOverride[T any](original *Provider[T], replacement any) ScopeOption {
	return func(s *Scope) {
		switch r := replacement.(type) {
		case *Provider[T]:
			s.overrides[original] = override{provider: r}
		case T:
			s.overrides[original] = override{value: r, isValue: true}
		default:
			panic(fmt.Sprintf("fluxus: override for %s must be a %T value or a *Provider[%T]",
				providerLabel(original), *new(T), *new(T)))
		}
	}
}

// NewScope creates a new scope with optional configuration. Records are
// created lazily on first read or watch, never eagerly here.
func NewScope(opts ...ScopeOption) *Scope {
	s := &Scope{
		records:   make(map[AnyProvider]*record),
		overrides: make(map[AnyProvider]override),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Resolve reads a provider's value, lazily creating its state record and
// recomputing it first if a dependency changed since the last read.
func Resolve[T any](s *Scope, p *Provider[T]) (T, error) {
	v, err := s.resolveAny(p)
	if err != nil {
		var zero T
		return zero, err
	}
	return v.(T), nil
}

// Watch reads a provider and registers fn to be called whenever the record's
// value changes. Removing the last listener auto-disposes the record, along
// with any dependency record that thereby loses its own last
// listener/dependent.
func Watch[T any](s *Scope, p *Provider[T], fn func(T)) (UnwatchFunc, error) {
	return s.watchAny(p, func(v any) { fn(v.(T)) })
}

// Update replaces a state provider's value and propagates to dependents.
// Updating to a value equal to the current one (under the provider's
// equality) is a no-op.
func Update[T any](s *Scope, p *Provider[T], newVal T) error {
	return UpdateFn(s, p, func(T) T { return newVal })
}

// UpdateFn replaces a state provider's value with a pure function of the
// previous value.
func UpdateFn[T any](s *Scope, p *Provider[T], fn func(prev T) T) error {
	return s.updateAny(p, func(cur any) any { return fn(cur.(T)) })
}

// Updater returns a setter bound to a state provider. It fails immediately
// if the provider's effective kind is not state or the scope is disposed.
func Updater[T any](s *Scope, p *Provider[T]) (func(T) error, error) {
	if s.isDisposed() {
		return nil, &ScopeDisposedError{}
	}
	if target := s.delegateFor(p); target != nil {
		return Updater(target, p)
	}
	if kind := s.effectiveKind(p); kind != KindState {
		return nil, &NotAStateProviderError{Provider: p, Kind: kind}
	}
	return func(v T) error { return Update(s, p, v) }, nil
}

// Invalidate marks an existing record stale and recomputes it immediately,
// propagating to dependents if the value changed. For async and stream
// providers this restarts production. Providers without a live record are
// left untouched, as are state providers: a state value changes only through
// updaters, never by re-running its initial-value routine.
func Invalidate(s *Scope, p AnyProvider) error {
	return s.invalidateAny(p)
}

// Refresh invalidates and immediately re-resolves a provider.
func Refresh[T any](s *Scope, p *Provider[T]) (T, error) {
	if err := Invalidate(s, p); err != nil {
		var zero T
		return zero, err
	}
	return Resolve(s, p)
}

// UseExtension registers an extension to the scope.
func (s *Scope) UseExtension(ext Extension) error {
	s.mu.Lock()
	s.extensions = append(s.extensions, ext)
	sort.Slice(s.extensions, func(i, j int) bool {
		return s.extensions[i].Order() < s.extensions[j].Order()
	})
	s.mu.Unlock()

	return ext.Init(s)
}

// GetTag retrieves a tag value from the scope.
func (s *Scope) GetTag(tag any) (any, bool) {
	return s.tags.Load(tag)
}

// SetTag stores a tag value on the scope.
func (s *Scope) SetTag(tag any, val any) {
	s.tags.Store(tag, val)
}

// Dispose disposes every owned record (running its cleanups in registration
// order), marks the scope disposed, and notifies extensions. It is
// idempotent; subsequent Resolve/Watch/Update calls fail.
func (s *Scope) Dispose() error {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return nil
	}
	s.disposed = true

	recs := make([]*record, 0, len(s.records))
	for _, rec := range s.records {
		recs = append(recs, rec)
	}
	sort.Slice(recs, func(i, j int) bool { return recs[i].id > recs[j].id })
	for _, rec := range recs {
		s.disposeRecordLocked(rec)
	}

	exts := make([]Extension, len(s.extensions))
	copy(exts, s.extensions)
	s.mu.Unlock()

	for _, ext := range exts {
		if err := ext.Dispose(s); err != nil {
			return fmt.Errorf("disposing extension %s: %w", ext.Name(), err)
		}
	}
	return nil
}

// run executes one serialized graph mutation pass, then fires the deferred
// listener and error callbacks outside the lock.
func (s *Scope) run(fn func() error) error {
	s.mu.Lock()
	err := fn()
	notifs := s.pending
	s.pending = nil
	s.mu.Unlock()

	for _, notify := range notifs {
		notify()
	}
	return err
}

func (s *Scope) isDisposed() bool {
	s.mu.Lock()
	d := s.disposed
	s.mu.Unlock()
	return d
}

// delegateFor returns the parent to delegate to when p is overridden in an
// ancestor scope and not locally, or nil to resolve locally. Overrides and
// parents are immutable after construction, so no lock is needed.
func (s *Scope) delegateFor(p AnyProvider) *Scope {
	if _, ok := s.overrides[p]; ok {
		return nil
	}
	for a := s.parent; a != nil; a = a.parent {
		if _, ok := a.overrides[p]; ok {
			return s.parent
		}
	}
	return nil
}

func (s *Scope) route(p AnyProvider) (*Scope, error) {
	if s.isDisposed() {
		return nil, &ScopeDisposedError{}
	}
	if target := s.delegateFor(p); target != nil {
		return target, nil
	}
	return s, nil
}

func (s *Scope) effectiveKind(p AnyProvider) ProviderKind {
	if ov, ok := s.overrides[p]; ok {
		if ov.isValue {
			return KindPlain
		}
		return ov.provider.Kind()
	}
	return p.Kind()
}

func (s *Scope) extensionsSnapshot() []Extension {
	s.mu.Lock()
	exts := make([]Extension, len(s.extensions))
	copy(exts, s.extensions)
	s.mu.Unlock()
	return exts
}

func (s *Scope) resolveAny(p AnyProvider) (any, error) {
	target, err := s.route(p)
	if err != nil {
		return nil, err
	}
	if target != s {
		return target.resolveAny(p)
	}

	exts := s.extensionsSnapshot()
	op := &Operation{Kind: OpResolve, Provider: p, Scope: s}

	next := func() (any, error) {
		var v any
		err := s.run(func() error {
			rec, err := s.resolveRecordLocked(p)
			if err != nil {
				return err
			}
			v = rec.value
			return nil
		})
		return v, err
	}

	// Apply extensions in reverse order (last registered wraps first).
	for i := len(exts) - 1; i >= 0; i-- {
		ext := exts[i]
		currentNext := next
		next = func() (any, error) {
			return ext.Wrap(context.Background(), currentNext, op)
		}
	}

	result, err := next()
	if err != nil {
		for _, ext := range exts {
			ext.OnError(err, op, s)
		}
		return nil, err
	}
	return result, nil
}

func (s *Scope) watchAny(p AnyProvider, fn func(any)) (UnwatchFunc, error) {
	target, err := s.route(p)
	if err != nil {
		return nil, err
	}
	if target != s {
		return target.watchAny(p, fn)
	}

	var rec *record
	var id uint64
	err = s.run(func() error {
		r, err := s.resolveRecordLocked(p)
		if err != nil {
			return err
		}
		rec = r
		id = r.addListener(fn)
		return nil
	})
	if err != nil {
		return nil, err
	}

	return func() {
		_ = s.run(func() error {
			if rec.disposed {
				return nil
			}
			removed, last := rec.removeListener(id)
			if removed && last {
				s.maybeAutoDisposeLocked(rec)
			}
			return nil
		})
	}, nil
}

func (s *Scope) updateAny(p AnyProvider, xform func(any) any) error {
	target, err := s.route(p)
	if err != nil {
		return err
	}
	if target != s {
		return target.updateAny(p, xform)
	}

	exts := s.extensionsSnapshot()
	op := &Operation{Kind: OpUpdate, Provider: p, Scope: s}

	next := func() (any, error) {
		err := s.run(func() error {
			rec, err := s.resolveRecordLocked(p)
			if err != nil {
				return err
			}
			if kind := rec.provider.Kind(); kind != KindState {
				return &NotAStateProviderError{Provider: p, Kind: kind}
			}
			nextVal := xform(rec.value)
			if rec.provider.equalAny(rec.value, nextVal) {
				return nil
			}
			rec.value = nextVal
			rec.hasValue = true
			rec.stale = false
			s.propagateLocked(rec)
			return nil
		})
		return nil, err
	}

	for i := len(exts) - 1; i >= 0; i-- {
		ext := exts[i]
		currentNext := next
		next = func() (any, error) {
			return ext.Wrap(context.Background(), currentNext, op)
		}
	}

	_, err = next()
	if err != nil {
		for _, ext := range exts {
			ext.OnError(err, op, s)
		}
	}
	return err
}

func (s *Scope) invalidateAny(p AnyProvider) error {
	target, err := s.route(p)
	if err != nil {
		return err
	}
	if target != s {
		return target.invalidateAny(p)
	}

	exts := s.extensionsSnapshot()
	op := &Operation{Kind: OpInvalidate, Provider: p, Scope: s}

	next := func() (any, error) {
		err := s.run(func() error {
			rec, ok := s.records[p]
			if !ok {
				return nil
			}
			if rec.disposed {
				return &ProviderStateDisposedError{Provider: p}
			}
			if rec.provider.Kind() == KindState {
				// State values change only through updaters; there is
				// nothing to recompute.
				return nil
			}
			rec.stale = true
			changed, err := s.computeLocked(rec)
			if err != nil {
				return err
			}
			if changed {
				s.propagateLocked(rec)
			}
			return nil
		})
		return nil, err
	}

	for i := len(exts) - 1; i >= 0; i-- {
		ext := exts[i]
		currentNext := next
		next = func() (any, error) {
			return ext.Wrap(context.Background(), currentNext, op)
		}
	}

	_, err = next()
	if err != nil {
		for _, ext := range exts {
			ext.OnError(err, op, s)
		}
	}
	return err
}

func (s *Scope) peekAny(p AnyProvider) (any, bool) {
	if s.isDisposed() {
		return nil, false
	}
	if target := s.delegateFor(p); target != nil {
		return target.peekAny(p)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[p]
	if !ok || rec.disposed || !rec.hasValue {
		return nil, false
	}
	return rec.value, true
}

// resolveRecordLocked looks up or lazily creates the state record for p,
// recomputing a stale record in place. On creation failure the record is
// discarded rather than cached half-built.
func (s *Scope) resolveRecordLocked(p AnyProvider) (*record, error) {
	if s.disposed {
		return nil, &ScopeDisposedError{}
	}
	if chain := s.cycleChainLocked(p); chain != nil {
		return nil, &CircularDependencyError{Chain: chain}
	}

	if rec, ok := s.records[p]; ok {
		if rec.disposed {
			return nil, &ProviderStateDisposedError{Provider: p}
		}
		if rec.stale {
			if rec.debounceTimer != nil {
				rec.debounceTimer.Stop()
				rec.debounceTimer = nil
			}
			changed, err := s.computeLocked(rec)
			if err != nil {
				return nil, err
			}
			if changed {
				s.propagateLocked(rec)
			}
		}
		return rec, nil
	}

	effective := AnyProvider(p)
	if ov, ok := s.overrides[p]; ok {
		if ov.isValue {
			effective = newConstantProvider(ov.value)
		} else {
			effective = ov.provider
		}
	}

	s.idCounter++
	rec := &record{origin: p, provider: effective, id: s.idCounter}
	if _, err := s.computeLocked(rec); err != nil {
		return nil, err
	}
	s.records[p] = rec
	return rec, nil
}

// computeLocked runs one computation pass for rec: previous cleanups run
// first, the old asynchronous context is cancelled, the creation routine
// executes with a fresh reader, and on success the new dependency set
// replaces the old one. Returns whether the value changed under the
// provider's equality.
func (s *Scope) computeLocked(rec *record) (bool, error) {
	if rec.disposed {
		return false, &ProviderStateDisposedError{Provider: rec.origin}
	}

	s.runCleanupsLocked(rec, cleanupContextRecompute)
	if rec.cancel != nil {
		rec.cancel()
	}
	rec.gen++
	ctx, cancel := context.WithCancel(context.Background())
	rec.ctx = ctx
	rec.cancel = cancel

	prev, hasPrev := rec.value, rec.hasValue
	if rec.provider.Kind() != KindState {
		rec.pendingDeps = make(map[AnyProvider]edgeKind)
	}

	r := &Reader{scope: s, record: rec, ctx: ctx, gen: rec.gen, inPass: true}
	s.stack = append(s.stack, rec.origin)
	val, err := rec.provider.compute(r, prev, hasPrev)
	s.stack = s.stack[:len(s.stack)-1]
	r.inPass = false

	if err != nil {
		rec.pendingDeps = nil
		s.runCleanupsLocked(rec, cleanupContextRecompute)
		cancel()
		var rerr *ResolveError
		if errors.As(err, &rerr) {
			return false, err
		}
		return false, newResolveError(rec.origin, err)
	}

	if rec.pendingDeps != nil {
		s.replaceDepsLocked(rec, rec.pendingDeps)
		rec.pendingDeps = nil
	}

	changed := !hasPrev || !rec.provider.equalAny(prev, val)
	rec.value = val
	rec.hasValue = true
	rec.stale = false

	if kind := rec.provider.Kind(); kind == KindAsync || kind == KindStream {
		detached := &Reader{scope: s, record: rec, ctx: ctx, gen: rec.gen}
		gen := rec.gen
		rec.provider.launch(detached, prev, hasPrev, func(next any) {
			s.applyAsyncResult(rec, gen, next)
		})
	}
	return changed, nil
}

// replaceDepsLocked installs the dependency set recorded during the latest
// computation, removing this record from the dependents of providers it no
// longer reads and adding it to newly read ones.
func (s *Scope) replaceDepsLocked(rec *record, next map[AnyProvider]edgeKind) {
	for dep := range rec.deps {
		if _, ok := next[dep]; ok {
			continue
		}
		if depRec, ok := s.records[dep]; ok {
			delete(depRec.dependents, rec.origin)
		}
	}
	for dep, kind := range next {
		if depRec, ok := s.records[dep]; ok {
			if depRec.dependents == nil {
				depRec.dependents = make(map[AnyProvider]edgeKind)
			}
			depRec.dependents[rec.origin] = kind
		}
	}
	rec.deps = next
}

// propagateLocked notifies root's listeners and recomputes its transitive
// watch dependents in topological order. A dependent recomputes only when at
// least one of its watched dependencies actually changed in this pass;
// debounced dependents are marked stale and scheduled instead.
func (s *Scope) propagateLocked(root *record) {
	s.enqueueNotifyLocked(root)

	affected := s.watchDependentsLocked(root)
	if len(affected) == 0 {
		return
	}
	order := s.topoOrderLocked(root, affected)

	changed := map[AnyProvider]bool{root.origin: true}
	for _, rec := range order {
		// A record whose own computation triggered this pass (by reading a
		// stale dependency) is already picking up the fresh value; recomputing
		// it here would re-enter its factory.
		if rec.disposed || s.onStackLocked(rec.origin) || !s.anyWatchDepChangedLocked(rec, changed) {
			continue
		}
		rec.stale = true
		if rec.provider.debounceFor() > 0 {
			s.scheduleDebounceLocked(rec)
			continue
		}
		didChange, err := s.computeLocked(rec)
		if err != nil {
			s.queueErrorLocked(err, rec.origin)
			continue
		}
		if didChange {
			changed[rec.origin] = true
			s.enqueueNotifyLocked(rec)
		}
	}
}

func (s *Scope) anyWatchDepChangedLocked(rec *record, changed map[AnyProvider]bool) bool {
	for dep, kind := range rec.deps {
		if kind == edgeWatch && changed[dep] {
			return true
		}
	}
	return false
}

// scheduleDebounceLocked arms (or re-arms) the trailing-edge recompute timer
// for a debounced record; only the trailing invocation fires.
func (s *Scope) scheduleDebounceLocked(rec *record) {
	d := rec.provider.debounceFor()
	if rec.debounceTimer != nil {
		rec.debounceTimer.Stop()
	}
	rec.debounceTimer = time.AfterFunc(d, func() {
		_ = s.run(func() error {
			if s.disposed || rec.disposed || !rec.stale {
				return nil
			}
			rec.debounceTimer = nil
			changed, err := s.computeLocked(rec)
			if err != nil {
				s.queueErrorLocked(err, rec.origin)
				return nil
			}
			if changed {
				s.propagateLocked(rec)
			}
			return nil
		})
	})
}

// applyAsyncResult applies a value produced by an async or stream routine as
// one discrete transition. Results from a superseded generation or a disposed
// record are discarded so a late resolution can never resurrect state.
func (s *Scope) applyAsyncResult(rec *record, gen uint64, next any) {
	_ = s.run(func() error {
		if s.disposed || rec.disposed || rec.gen != gen {
			return nil
		}
		if rec.hasValue && rec.provider.equalAny(rec.value, next) {
			return nil
		}
		rec.value = next
		rec.hasValue = true
		s.propagateLocked(rec)
		return nil
	})
}

func (s *Scope) enqueueNotifyLocked(rec *record) {
	v := rec.value
	for _, l := range rec.listeners {
		fn := l.fn
		s.pending = append(s.pending, func() { fn(v) })
	}
}

func (s *Scope) queueErrorLocked(err error, p AnyProvider) {
	exts := make([]Extension, len(s.extensions))
	copy(exts, s.extensions)
	op := &Operation{Kind: OpResolve, Provider: p, Scope: s}
	s.pending = append(s.pending, func() {
		for _, ext := range exts {
			ext.OnError(err, op, s)
		}
	})
}

func (s *Scope) runCleanupsLocked(rec *record, cleanupContext string) {
	entries := rec.cleanups
	rec.cleanups = nil
	if len(entries) == 0 {
		return
	}
	for _, fn := range entries {
		if err := fn(); err != nil {
			cleanupErr := &CleanupError{
				Provider: rec.origin,
				Err:      err,
				Context:  cleanupContext,
			}
			for _, ext := range s.extensions {
				if ext.OnCleanupError(cleanupErr) {
					break
				}
			}
		}
	}
}

func (s *Scope) disposeRecordLocked(rec *record) {
	if rec.disposed {
		return
	}
	rec.disposed = true
	rec.gen++
	if rec.cancel != nil {
		rec.cancel()
		rec.cancel = nil
	}
	if rec.debounceTimer != nil {
		rec.debounceTimer.Stop()
		rec.debounceTimer = nil
	}
	s.runCleanupsLocked(rec, cleanupContextDispose)
	rec.listeners = nil
	for dep := range rec.deps {
		if depRec, ok := s.records[dep]; ok {
			delete(depRec.dependents, rec.origin)
		}
	}
	rec.deps = nil
}

// maybeAutoDisposeLocked disposes a record whose last listener went away and
// that is not a dependency of any live record, cascading to dependency
// records that thereby lose their own last listener/dependent. Auto-disposed
// records leave the scope entirely; a later read creates a fresh record.
func (s *Scope) maybeAutoDisposeLocked(rec *record) {
	if rec.disposed || len(rec.listeners) > 0 || len(rec.dependents) > 0 {
		return
	}
	deps := make([]AnyProvider, 0, len(rec.deps))
	for dep := range rec.deps {
		deps = append(deps, dep)
	}
	s.disposeRecordLocked(rec)
	delete(s.records, rec.origin)
	for _, dep := range deps {
		if depRec, ok := s.records[dep]; ok {
			s.maybeAutoDisposeLocked(depRec)
		}
	}
}

func (s *Scope) onStackLocked(p AnyProvider) bool {
	for _, entry := range s.stack {
		if entry == p {
			return true
		}
	}
	return false
}

func (s *Scope) cycleChainLocked(p AnyProvider) []AnyProvider {
	for i, entry := range s.stack {
		if entry != p {
			continue
		}
		chain := make([]AnyProvider, 0, len(s.stack)-i+1)
		chain = append(chain, s.stack[i:]...)
		chain = append(chain, p)
		return chain
	}
	return nil
}

const (
	cleanupContextRecompute = "recompute"
	cleanupContextDispose   = "dispose"
)

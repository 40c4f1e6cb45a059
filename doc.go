// Package fluxus provides a fine-grained reactive dependency graph for Go:
// lazy, scope-cached values that recompute automatically when the values they
// depend on change.
//
// # Overview
//
// Fluxus organizes code around two core concepts:
//
//  1. Providers: immutable descriptors of how to produce a value
//  2. Scopes: containers that instantiate providers lazily, cache the results,
//     and propagate changes through the dependency graph
//
// A provider holds no state. All state lives in the scope, one record per
// provider, so the same provider graph can be instantiated independently per
// test, per request, or per tenant.
//
// # Basic Usage
//
// Create providers to define your application graph:
//
//	scope := fluxus.NewScope()
//	defer scope.Dispose()
//
//	config := fluxus.Provide(func(r *fluxus.Reader) (*Config, error) {
//	    return &Config{Port: 8080}, nil
//	})
//
//	server := fluxus.Provide(func(r *fluxus.Reader) (*Server, error) {
//	    cfg, err := fluxus.Read(r, config)
//	    if err != nil {
//	        return nil, err
//	    }
//	    return NewServer(cfg.Port), nil
//	})
//
//	srv, err := fluxus.Resolve(scope, server)
//
// # Provider Kinds
//
// Five kinds cover the common shapes of scoped values:
//
//	// State: externally updatable, tracks no dependencies of its own
//	counter := fluxus.State(0)
//
//	// Computed: pure derivation, recomputed when watched dependencies change
//	doubled := fluxus.Computed(func(r *fluxus.Reader) (int, error) {
//	    n, err := fluxus.Use(r, counter)
//	    return n * 2, err
//	})
//
//	// Plain: a cached function of the reader (services, connections)
//	db := fluxus.Provide(openDB)
//
//	// Async: produced in a goroutine, read as a tri-state AsyncValue
//	user := fluxus.Async(func(r *fluxus.Reader) (*User, error) {
//	    id, err := fluxus.Use(r, userID)
//	    if err != nil {
//	        return nil, err
//	    }
//	    return fetchUser(r.Context(), id)
//	})
//
//	// Stream: subscribes to a channel, each emission becomes a data value
//	ticks := fluxus.Stream(func(r *fluxus.Reader) (<-chan time.Time, error) {
//	    return clockTicks(r.Context()), nil
//	})
//
// # Use vs Read
//
// Inside a creation routine, Use records a watch edge and Read a plain read
// edge:
//
//	// Watch: recompute this record when counter changes
//	n, err := fluxus.Use(r, counter)
//
//	// Read: observe the current value without subscribing to changes
//	cfg, err := fluxus.Read(r, config)
//
// # Updates and Watching
//
// State providers change through updates; records propagate changes to their
// watching dependents in dependency order, each recomputed at most once per
// update:
//
//	unwatch, err := fluxus.Watch(scope, doubled, func(n int) {
//	    fmt.Println("doubled is now", n)
//	})
//	defer unwatch()
//
//	fluxus.Update(scope, counter, 5)        // doubled recomputes to 10
//	fluxus.UpdateFn(scope, counter, func(n int) int { return n + 1 })
//
// Updating to an equal value (under the provider's equality, override it with
// WithEquality) is a no-op and propagates nothing. Removing the last watcher
// of a record disposes it, along with dependency records that thereby lose
// their own last watcher.
//
// # Controllers
//
// Controllers bind a provider to a scope for repeated access:
//
//	ctrl := fluxus.Accessor(scope, counter)
//
//	val, err := ctrl.Get()      // resolve (creates the record if needed)
//	val, ok := ctrl.Peek()      // current value, no resolution
//	ctrl.Set(5)                 // update and propagate
//	val, err = ctrl.Refresh()   // force recompute, then read
//
// # Overrides
//
// Scopes substitute providers for testing or configuration. An override is
// either a fixed value or another provider of the same type, matched by
// reference:
//
//	testScope := fluxus.NewScope(
//	    fluxus.WithOverride(db, mockDB),          // value override
//	    fluxus.WithOverride(clock, fakeClock),    // provider override
//	)
//
// Child scopes resolve providers overridden in an ancestor against that
// ancestor, sharing its records; everything else instantiates locally:
//
//	requestScope := fluxus.NewScope(
//	    fluxus.WithParent(appScope),
//	    fluxus.WithOverride(requestID, id),
//	)
//	defer requestScope.Dispose() // never touches appScope
//
// # Resource Cleanup
//
// Register cleanup functions for automatic resource management:
//
//	db := fluxus.Provide(func(r *fluxus.Reader) (*DB, error) {
//	    database := OpenDB()
//	    r.OnDispose(func() error {
//	        return database.Close()
//	    })
//	    return database, nil
//	})
//
// Cleanups run in registration order when the record recomputes or is
// disposed, before the replacement value is produced.
//
// # Async Values
//
// Async and stream providers expose AsyncValue[T], a tri-state of loading,
// data, or error. With WithKeepPrevious the loading and error states retain
// the last data:
//
//	av, _ := fluxus.Resolve(scope, user)
//	switch {
//	case av.IsLoading():
//	    // spinner, possibly with av.Value() showing stale data
//	case av.IsError():
//	    // av.Err()
//	default:
//	    u, _ := av.Value()
//	}
//
// Recomputation cancels the previous routine's Context; a result arriving
// from a superseded routine is discarded, never applied.
//
// # Debounce
//
// WithDebounce collapses bursts of dependency changes into one trailing
// recomputation:
//
//	results := fluxus.Async(search, fluxus.WithDebounce(200*time.Millisecond))
//
// # Extensions
//
// Extensions provide cross-cutting concerns through lifecycle hooks:
//
//	scope := fluxus.NewScope(
//	    fluxus.WithExtension(extensions.NewLoggingExtension(handler)),
//	)
//
// # Thread Safety
//
// All operations are thread-safe. Each scope serializes graph mutations, so
// a propagation pass is never observed half-applied; listener callbacks fire
// after the pass completes, outside the scope's lock.
package fluxus

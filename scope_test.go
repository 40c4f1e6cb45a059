package fluxus

import (
	"errors"
	"testing"
)

func TestResolve_CachesValue(t *testing.T) {
	scope := NewScope()
	defer scope.Dispose()

	calls := 0
	answer := Provide(func(r *Reader) (int, error) {
		calls++
		return 42, nil
	})

	for i := 0; i < 3; i++ {
		v, err := Resolve(scope, answer)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if v != 42 {
			t.Fatalf("expected 42, got %d", v)
		}
	}

	if calls != 1 {
		t.Errorf("expected factory to run once, ran %d times", calls)
	}
}

func TestResolve_FailureLeavesNoRecord(t *testing.T) {
	scope := NewScope()
	defer scope.Dispose()

	calls := 0
	flaky := Provide(func(r *Reader) (string, error) {
		calls++
		if calls == 1 {
			return "", errors.New("boom")
		}
		return "ok", nil
	})

	_, err := Resolve(scope, flaky)
	if err == nil {
		t.Fatal("expected first resolution to fail")
	}
	var rerr *ResolveError
	if !errors.As(err, &rerr) {
		t.Fatalf("expected ResolveError, got %T", err)
	}

	v, err := Resolve(scope, flaky)
	if err != nil {
		t.Fatalf("expected retry to succeed, got %v", err)
	}
	if v != "ok" {
		t.Errorf("expected ok, got %q", v)
	}
	if calls != 2 {
		t.Errorf("expected factory to retry, ran %d times", calls)
	}
}

func TestScope_DisposeIdempotent(t *testing.T) {
	scope := NewScope()

	cleaned := 0
	res := Provide(func(r *Reader) (string, error) {
		r.OnDispose(func() error {
			cleaned++
			return nil
		})
		return "value", nil
	})

	if _, err := Resolve(scope, res); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if err := scope.Dispose(); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if err := scope.Dispose(); err != nil {
		t.Fatalf("expected second dispose to be a no-op, got %v", err)
	}
	if cleaned != 1 {
		t.Errorf("expected cleanup to run once, ran %d times", cleaned)
	}
}

func TestScope_OperationsAfterDisposeFail(t *testing.T) {
	scope := NewScope()
	counter := State(0)

	if _, err := Resolve(scope, counter); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	scope.Dispose()

	var derr *ScopeDisposedError

	if _, err := Resolve(scope, counter); !errors.As(err, &derr) {
		t.Errorf("expected ScopeDisposedError from Resolve, got %v", err)
	}
	if err := Update(scope, counter, 1); !errors.As(err, &derr) {
		t.Errorf("expected ScopeDisposedError from Update, got %v", err)
	}
	if _, err := Watch(scope, counter, func(int) {}); !errors.As(err, &derr) {
		t.Errorf("expected ScopeDisposedError from Watch, got %v", err)
	}
	if _, err := Updater(scope, counter); !errors.As(err, &derr) {
		t.Errorf("expected ScopeDisposedError from Updater, got %v", err)
	}
}

func TestWatch_LastUnwatchAutoDisposes(t *testing.T) {
	scope := NewScope()
	defer scope.Dispose()

	derivedCalls := 0
	disposed := 0

	base := State(1)
	derived := Computed(func(r *Reader) (int, error) {
		derivedCalls++
		r.OnDispose(func() error {
			disposed++
			return nil
		})
		n, err := Use(r, base)
		if err != nil {
			return 0, err
		}
		return n * 10, nil
	})

	unwatch, err := Watch(scope, derived, func(int) {})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if derivedCalls != 1 {
		t.Fatalf("expected one computation, got %d", derivedCalls)
	}

	unwatch()

	if disposed != 1 {
		t.Errorf("expected record to be disposed on last unwatch, disposed=%d", disposed)
	}
	scope.mu.Lock()
	remaining := len(scope.records)
	scope.mu.Unlock()
	if remaining != 0 {
		t.Errorf("expected auto-disposed records to leave the scope, %d remain", remaining)
	}

	// Unwatch is idempotent
	unwatch()

	// A later read starts from a fresh record
	v, err := Resolve(scope, derived)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if v != 10 {
		t.Errorf("expected 10, got %d", v)
	}
	if derivedCalls != 2 {
		t.Errorf("expected recomputation after auto-dispose, got %d calls", derivedCalls)
	}
}

func TestWatch_SecondListenerKeepsRecordAlive(t *testing.T) {
	scope := NewScope()
	defer scope.Dispose()

	disposed := 0
	counter := StateFrom(func(r *Reader) (int, error) {
		r.OnDispose(func() error {
			disposed++
			return nil
		})
		return 0, nil
	})

	unwatch1, err := Watch(scope, counter, func(int) {})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	unwatch2, err := Watch(scope, counter, func(int) {})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	unwatch1()
	if disposed != 0 {
		t.Fatal("record disposed while a listener remains")
	}
	unwatch2()
	if disposed != 1 {
		t.Errorf("expected disposal after last unwatch, disposed=%d", disposed)
	}
}

func TestInvalidate_ForcesRecompute(t *testing.T) {
	scope := NewScope()
	defer scope.Dispose()

	calls := 0
	now := Provide(func(r *Reader) (int, error) {
		calls++
		return calls, nil
	})

	if _, err := Resolve(scope, now); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if err := Invalidate(scope, now); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if calls != 2 {
		t.Errorf("expected recompute on invalidate, got %d calls", calls)
	}

	v, err := Refresh(scope, now)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if v != 3 {
		t.Errorf("expected 3, got %d", v)
	}
}

func TestInvalidate_UnresolvedIsNoOp(t *testing.T) {
	scope := NewScope()
	defer scope.Dispose()

	calls := 0
	lazy := Provide(func(r *Reader) (int, error) {
		calls++
		return 1, nil
	})

	if err := Invalidate(scope, lazy); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if calls != 0 {
		t.Errorf("expected no instantiation, got %d calls", calls)
	}
}

func TestInvalidate_StateProviderKeepsUpdatedValue(t *testing.T) {
	scope := NewScope()
	defer scope.Dispose()

	factoryRuns := 0
	counter := StateFrom(func(r *Reader) (int, error) {
		factoryRuns++
		return 0, nil
	})

	if _, err := Resolve(scope, counter); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if err := Update(scope, counter, 7); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if err := Invalidate(scope, counter); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	v, err := Resolve(scope, counter)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if v != 7 {
		t.Errorf("expected the updated value 7 to survive invalidation, got %d", v)
	}
	if factoryRuns != 1 {
		t.Errorf("expected the initial-value routine to run once, ran %d times", factoryRuns)
	}
}

func TestController_Lifecycle(t *testing.T) {
	scope := NewScope()
	defer scope.Dispose()

	counter := State(0)
	ctrl := Accessor(scope, counter)

	if _, ok := ctrl.Peek(); ok {
		t.Fatal("expected no value before first resolution")
	}
	if ctrl.IsLive() {
		t.Fatal("expected no live record before first resolution")
	}

	v, err := ctrl.Get()
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if v != 0 {
		t.Fatalf("expected 0, got %d", v)
	}
	if !ctrl.IsLive() {
		t.Fatal("expected live record after resolution")
	}

	if err := ctrl.Set(7); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if err := ctrl.UpdateFn(func(n int) int { return n + 1 }); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	v, ok := ctrl.Peek()
	if !ok || v != 8 {
		t.Errorf("expected cached 8, got %d (ok=%v)", v, ok)
	}
}

func TestUpdater_RejectsNonStateProviders(t *testing.T) {
	scope := NewScope()
	defer scope.Dispose()

	derived := Computed(func(r *Reader) (int, error) {
		return 1, nil
	})

	_, err := Updater(scope, derived)
	var nerr *NotAStateProviderError
	if !errors.As(err, &nerr) {
		t.Fatalf("expected NotAStateProviderError, got %v", err)
	}

	counter := State(0)
	set, err := Updater(scope, counter)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if err := set(4); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	v, err := Resolve(scope, counter)
	if err != nil || v != 4 {
		t.Errorf("expected 4, got %d (err=%v)", v, err)
	}
}

func TestUpdate_CreatesRecordLazily(t *testing.T) {
	scope := NewScope()
	defer scope.Dispose()

	counter := State(10)
	if err := Update(scope, counter, 20); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	v, err := Resolve(scope, counter)
	if err != nil || v != 20 {
		t.Errorf("expected 20, got %d (err=%v)", v, err)
	}
}

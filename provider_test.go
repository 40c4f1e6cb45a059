package fluxus

import (
	"errors"
	"testing"
)

func TestProvider_Kinds(t *testing.T) {
	plain := Provide(func(r *Reader) (int, error) { return 0, nil })
	state := State(0)
	computed := Computed(func(r *Reader) (int, error) { return 0, nil })
	async := Async(func(r *Reader) (int, error) { return 0, nil })
	stream := Stream(func(r *Reader) (<-chan int, error) { return nil, nil })

	cases := []struct {
		provider AnyProvider
		kind     ProviderKind
	}{
		{plain, KindPlain},
		{state, KindState},
		{computed, KindComputed},
		{async, KindAsync},
		{stream, KindStream},
	}
	for _, c := range cases {
		if c.provider.Kind() != c.kind {
			t.Errorf("expected kind %s, got %s", c.kind, c.provider.Kind())
		}
	}
}

func TestProvider_Name(t *testing.T) {
	anon := State(0)
	if anon.Name() != "" {
		t.Errorf("expected empty name, got %q", anon.Name())
	}

	named := State(0, WithName("counter"))
	if named.Name() != "counter" {
		t.Errorf("expected counter, got %q", named.Name())
	}
}

func TestProvider_IdentityNotStructure(t *testing.T) {
	scope := NewScope()
	defer scope.Dispose()

	a := State(1)
	b := State(1)

	if err := Update(scope, a, 5); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	va, _ := Resolve(scope, a)
	vb, _ := Resolve(scope, b)
	if va != 5 || vb != 1 {
		t.Errorf("expected identical definitions to stay independent, got a=%d b=%d", va, vb)
	}
}

func TestStateFrom_InitialFactoryRunsOnce(t *testing.T) {
	scope := NewScope()
	defer scope.Dispose()

	calls := 0
	counter := StateFrom(func(r *Reader) (int, error) {
		calls++
		return 100, nil
	})

	if calls != 0 {
		t.Fatal("expected lazy instantiation")
	}

	v, err := Resolve(scope, counter)
	if err != nil || v != 100 {
		t.Fatalf("expected 100, got %d (err=%v)", v, err)
	}
	if _, err := Resolve(scope, counter); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if calls != 1 {
		t.Errorf("expected initial factory to run once, ran %d times", calls)
	}
}

func TestDefaultEquality_NonComparableAlwaysPropagates(t *testing.T) {
	scope := NewScope()
	defer scope.Dispose()

	calls := 0
	items := State([]int{1})
	size := Computed(func(r *Reader) (int, error) {
		calls++
		v, err := Use(r, items)
		return len(v), err
	})

	if _, err := Resolve(scope, size); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	// Slices are not comparable, so even an identical-looking update counts
	// as a change.
	if err := Update(scope, items, []int{1}); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if calls != 2 {
		t.Errorf("expected recompute for non-comparable value, got %d calls", calls)
	}
}

func TestAsyncValue_Accessors(t *testing.T) {
	loading := Loading[int]()
	if !loading.IsLoading() || loading.IsData() || loading.IsError() {
		t.Error("expected loading variant")
	}
	if _, ok := loading.Value(); ok {
		t.Error("expected no retained data in bare loading")
	}

	withPrev := LoadingWith(7)
	if v, ok := withPrev.Value(); !ok || v != 7 {
		t.Errorf("expected retained 7, got %d (ok=%v)", v, ok)
	}

	data := Data("hello")
	if !data.IsData() {
		t.Error("expected data variant")
	}
	if v, err := data.Unwrap(); err != nil || v != "hello" {
		t.Errorf("expected hello, got %q (err=%v)", v, err)
	}

	boom := errors.New("boom")
	failure := Failure[string](boom)
	if !failure.IsError() || failure.Err() != boom {
		t.Error("expected error variant carrying the cause")
	}
	if _, err := failure.Unwrap(); err != boom {
		t.Errorf("expected boom from Unwrap, got %v", err)
	}

	partial := FailureWith(boom, "stale")
	if v, ok := partial.Value(); !ok || v != "stale" {
		t.Errorf("expected retained stale data, got %q (ok=%v)", v, ok)
	}
}

func TestResolveError_CarriesProviderAndCause(t *testing.T) {
	scope := NewScope()
	defer scope.Dispose()

	boom := errors.New("db offline")
	db := Provide(func(r *Reader) (int, error) {
		return 0, boom
	}, WithName("db"))

	_, err := Resolve(scope, db)
	var rerr *ResolveError
	if !errors.As(err, &rerr) {
		t.Fatalf("expected ResolveError, got %T", err)
	}
	if rerr.Provider != AnyProvider(db) {
		t.Error("expected the failing provider on the error")
	}
	if !errors.Is(err, boom) {
		t.Error("expected the cause to be reachable through Unwrap")
	}
	if len(rerr.StackTrace) == 0 {
		t.Error("expected a captured stack trace")
	}
}

func TestResolveError_NotDoubleWrapped(t *testing.T) {
	scope := NewScope()
	defer scope.Dispose()

	boom := errors.New("boom")
	inner := Provide(func(r *Reader) (int, error) {
		return 0, boom
	}, WithName("inner"))
	outer := Provide(func(r *Reader) (int, error) {
		return Use(r, inner)
	}, WithName("outer"))

	_, err := Resolve(scope, outer)
	var rerr *ResolveError
	if !errors.As(err, &rerr) {
		t.Fatalf("expected ResolveError, got %T", err)
	}
	if rerr.Provider != AnyProvider(inner) {
		t.Errorf("expected the innermost failing provider, got %s", providerLabel(rerr.Provider))
	}
	var nested *ResolveError
	if errors.As(rerr.Cause, &nested) {
		t.Error("expected a single layer of wrapping")
	}
}

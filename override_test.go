package fluxus

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOverride_Value(t *testing.T) {
	db := Provide(func(r *Reader) (string, error) {
		return "real", nil
	})

	scope := NewScope(WithOverride(db, "mock"))
	defer scope.Dispose()

	v, err := Resolve(scope, db)
	require.NoError(t, err)
	require.Equal(t, "mock", v)
}

func TestOverride_Provider(t *testing.T) {
	fakeCalls := 0
	real := Provide(func(r *Reader) (string, error) {
		t.Fatal("real factory must not run in an overridden scope")
		return "real", nil
	})
	fake := Provide(func(r *Reader) (string, error) {
		fakeCalls++
		return "fake", nil
	})

	scope := NewScope(WithOverride(real, fake))
	defer scope.Dispose()

	v, err := Resolve(scope, real)
	require.NoError(t, err)
	require.Equal(t, "fake", v)
	require.Equal(t, 1, fakeCalls)

	// The replacement resolved under its own identity is a separate record.
	v, err = Resolve(scope, fake)
	require.NoError(t, err)
	require.Equal(t, "fake", v)
	require.Equal(t, 2, fakeCalls)
}

func TestOverride_DependentsSeeTheOverride(t *testing.T) {
	base := State(1)
	doubled := Computed(func(r *Reader) (int, error) {
		n, err := Use(r, base)
		return n * 2, err
	})

	scope := NewScope(WithOverride(base, State(10)))
	defer scope.Dispose()

	v, err := Resolve(scope, doubled)
	require.NoError(t, err)
	require.Equal(t, 20, v)

	// The override is a state provider, so updates still work.
	require.NoError(t, Update(scope, base, 11))
	v, err = Resolve(scope, doubled)
	require.NoError(t, err)
	require.Equal(t, 22, v)
}

func TestOverride_ValueOverrideRejectsUpdates(t *testing.T) {
	mode := State("a")

	scope := NewScope(WithOverride(mode, "fixed"))
	defer scope.Dispose()

	v, err := Resolve(scope, mode)
	require.NoError(t, err)
	require.Equal(t, "fixed", v)

	err = Update(scope, mode, "b")
	var nerr *NotAStateProviderError
	require.ErrorAs(t, err, &nerr)
}

func TestOverride_WrongTypePanics(t *testing.T) {
	db := Provide(func(r *Reader) (string, error) {
		return "real", nil
	})

	require.Panics(t, func() {
		NewScope(WithOverride(db, 42))
	})
}

func TestScopes_AreIndependent(t *testing.T) {
	counter := State(0)

	s1 := NewScope()
	defer s1.Dispose()
	s2 := NewScope()
	defer s2.Dispose()

	require.NoError(t, Update(s1, counter, 5))

	v1, err := Resolve(s1, counter)
	require.NoError(t, err)
	require.Equal(t, 5, v1)

	v2, err := Resolve(s2, counter)
	require.NoError(t, err)
	require.Equal(t, 0, v2)
}

func TestChildScope_DelegatesOverriddenProvidersToParent(t *testing.T) {
	stubCalls := 0
	cfg := Provide(func(r *Reader) (string, error) {
		return "real", nil
	})
	stub := Provide(func(r *Reader) (string, error) {
		stubCalls++
		return "stub", nil
	})

	parent := NewScope(WithOverride(cfg, stub))
	defer parent.Dispose()
	child := NewScope(WithParent(parent))
	defer child.Dispose()

	v, err := Resolve(child, cfg)
	require.NoError(t, err)
	require.Equal(t, "stub", v)

	v, err = Resolve(parent, cfg)
	require.NoError(t, err)
	require.Equal(t, "stub", v)

	// One shared record, living in the parent.
	require.Equal(t, 1, stubCalls)
}

func TestChildScope_InstantiatesUnoverriddenProvidersLocally(t *testing.T) {
	calls := 0
	svc := Provide(func(r *Reader) (int, error) {
		calls++
		return calls, nil
	})

	parent := NewScope()
	defer parent.Dispose()
	child := NewScope(WithParent(parent))

	_, err := Resolve(parent, svc)
	require.NoError(t, err)
	_, err = Resolve(child, svc)
	require.NoError(t, err)
	require.Equal(t, 2, calls)

	// Disposing the child never touches the parent's records.
	require.NoError(t, child.Dispose())
	v, err := Resolve(parent, svc)
	require.NoError(t, err)
	require.Equal(t, 1, v)
}

func TestChildScope_LocalOverrideShadowsAncestor(t *testing.T) {
	flag := State("parent")

	parent := NewScope(WithOverride(flag, "from-parent"))
	defer parent.Dispose()
	child := NewScope(
		WithParent(parent),
		WithOverride(flag, "from-child"),
	)
	defer child.Dispose()

	v, err := Resolve(child, flag)
	require.NoError(t, err)
	require.Equal(t, "from-child", v)

	v, err = Resolve(parent, flag)
	require.NoError(t, err)
	require.Equal(t, "from-parent", v)
}

func TestChildScope_ReadFailsAfterParentDisposed(t *testing.T) {
	cfg := Provide(func(r *Reader) (string, error) {
		return "real", nil
	})

	parent := NewScope(WithOverride(cfg, "stub"))
	child := NewScope(WithParent(parent))
	defer child.Dispose()

	v, err := Resolve(child, cfg)
	require.NoError(t, err)
	require.Equal(t, "stub", v)

	require.NoError(t, parent.Dispose())

	_, err = Resolve(child, cfg)
	var derr *ScopeDisposedError
	require.ErrorAs(t, err, &derr)
}

func TestGrandchildScope_DelegatesThroughIntermediate(t *testing.T) {
	calls := 0
	cfg := Provide(func(r *Reader) (string, error) {
		return "real", nil
	})
	stub := Provide(func(r *Reader) (string, error) {
		calls++
		return "stub", nil
	})

	root := NewScope(WithOverride(cfg, stub))
	defer root.Dispose()
	mid := NewScope(WithParent(root))
	defer mid.Dispose()
	leaf := NewScope(WithParent(mid))
	defer leaf.Dispose()

	v, err := Resolve(leaf, cfg)
	require.NoError(t, err)
	require.Equal(t, "stub", v)
	require.Equal(t, 1, calls)
}

package fluxus

import "fmt"

// AsyncState discriminates the variants of an AsyncValue.
type AsyncState uint8

const (
	// AsyncLoading means production is in flight; previous data may be retained.
	AsyncLoading AsyncState = iota
	// AsyncData means production completed with a value.
	AsyncData
	// AsyncError means production failed; previous data may be retained.
	AsyncError
)

func (s AsyncState) String() string {
	switch s {
	case AsyncLoading:
		return "loading"
	case AsyncData:
		return "data"
	case AsyncError:
		return "error"
	default:
		return fmt.Sprintf("AsyncState(%d)", uint8(s))
	}
}

// AsyncValue is the tri-state envelope produced by async and stream
// providers: loading (optionally retaining previous data), data, or error
// (optionally retaining previous data alongside the error payload).
type AsyncValue[T any] struct {
	state    AsyncState
	value    T
	hasValue bool
	err      error
}

// Loading returns a loading value with no retained data.
func Loading[T any]() AsyncValue[T] {
	return AsyncValue[T]{state: AsyncLoading}
}

// LoadingWith returns a loading value retaining previously produced data.
func LoadingWith[T any](prev T) AsyncValue[T] {
	return AsyncValue[T]{state: AsyncLoading, value: prev, hasValue: true}
}

// Data returns a completed value.
func Data[T any](v T) AsyncValue[T] {
	return AsyncValue[T]{state: AsyncData, value: v, hasValue: true}
}

// Failure returns an error value with no retained data.
func Failure[T any](err error) AsyncValue[T] {
	return AsyncValue[T]{state: AsyncError, err: err}
}

// FailureWith returns an error value retaining previously produced data.
func FailureWith[T any](err error, prev T) AsyncValue[T] {
	return AsyncValue[T]{state: AsyncError, value: prev, hasValue: true, err: err}
}

// State returns the variant of the value.
func (v AsyncValue[T]) State() AsyncState { return v.state }

// IsLoading reports whether production is still in flight.
func (v AsyncValue[T]) IsLoading() bool { return v.state == AsyncLoading }

// IsData reports whether production completed with a value.
func (v AsyncValue[T]) IsData() bool { return v.state == AsyncData }

// IsError reports whether production failed.
func (v AsyncValue[T]) IsError() bool { return v.state == AsyncError }

// Value returns the current or retained data, if any.
func (v AsyncValue[T]) Value() (T, bool) {
	if !v.hasValue {
		var zero T
		return zero, false
	}
	return v.value, true
}

// Err returns the error payload for the error variant, nil otherwise.
func (v AsyncValue[T]) Err() error { return v.err }

// Unwrap returns the data for the data variant, the error payload for the
// error variant, and (zero, nil) while loading.
func (v AsyncValue[T]) Unwrap() (T, error) {
	if v.state == AsyncError {
		var zero T
		return zero, v.err
	}
	if v.state == AsyncData {
		return v.value, nil
	}
	var zero T
	return zero, nil
}

func (v AsyncValue[T]) String() string {
	switch v.state {
	case AsyncData:
		return fmt.Sprintf("data(%v)", v.value)
	case AsyncError:
		if v.hasValue {
			return fmt.Sprintf("error(%v, previous=%v)", v.err, v.value)
		}
		return fmt.Sprintf("error(%v)", v.err)
	default:
		if v.hasValue {
			return fmt.Sprintf("loading(previous=%v)", v.value)
		}
		return "loading"
	}
}

// asyncValueEqual is the domain equality used by async and stream providers:
// loading-to-loading is unchanged unless the retained data differs, and error
// variants compare both the error payload and the retained data.
func asyncValueEqual[T any](a, b AsyncValue[T], eq func(x, y T) bool) bool {
	if a.state != b.state {
		return false
	}
	if a.hasValue != b.hasValue {
		return false
	}
	if a.state == AsyncError && a.err != b.err {
		return false
	}
	if a.hasValue && !eq(a.value, b.value) {
		return false
	}
	return true
}

// Package optional implements an optional value container. We use it to
// model cells of the input tables and derived fields that may be missing,
// which is pervasive in survey data: a missing cell is None rather than a
// sentinel string or NaN that could silently flow into arithmetic.
package optional

import "github.com/washb/sanlaz/internal/runtimex"

// Value is an optional value of type T.
//
// The zero value is None.
type Value[T any] struct {
	indirect *T
}

// Some constructs a Value containing the given value.
func Some[T any](value T) Value[T] {
	return Value[T]{indirect: &value}
}

// None constructs an empty Value.
func None[T any]() Value[T] {
	return Value[T]{indirect: nil}
}

// IsNone returns whether this Value is empty.
func (v Value[T]) IsNone() bool {
	return v.indirect == nil
}

// Unwrap returns the underlying value. This function panics
// if the Value is None.
func (v Value[T]) Unwrap() T {
	runtimex.Assert(!v.IsNone(), "optional: Unwrap called on None")
	return *v.indirect
}

// UnwrapOr returns the underlying value or the given fallback.
func (v Value[T]) UnwrapOr(fallback T) T {
	if v.IsNone() {
		return fallback
	}
	return *v.indirect
}

// Map applies fn to the contained value, if any.
func Map[T, U any](v Value[T], fn func(T) U) Value[U] {
	if v.IsNone() {
		return None[U]()
	}
	return Some(fn(v.Unwrap()))
}

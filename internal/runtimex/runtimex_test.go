package runtimex

import (
	"errors"
	"testing"
)

func TestPanicOnError(t *testing.T) {
	t.Run("does nothing with a nil error", func(t *testing.T) {
		PanicOnError(nil, "should not happen")
	})

	t.Run("panics on error", func(t *testing.T) {
		defer func() {
			if recover() == nil {
				t.Fatal("expected a panic")
			}
		}()
		PanicOnError(errors.New("mocked error"), "expected")
	})
}

func TestAssert(t *testing.T) {
	t.Run("does nothing when the assertion holds", func(t *testing.T) {
		Assert(true, "should not happen")
	})

	t.Run("panics when the assertion fails", func(t *testing.T) {
		defer func() {
			if recover() == nil {
				t.Fatal("expected a panic")
			}
		}()
		Assert(false, "expected")
	})
}

func TestTry1(t *testing.T) {
	t.Run("returns the value on success", func(t *testing.T) {
		if Try1(44, nil) != 44 {
			t.Fatal("unexpected value")
		}
	})

	t.Run("panics on error", func(t *testing.T) {
		defer func() {
			if recover() == nil {
				t.Fatal("expected a panic")
			}
		}()
		Try1(0, errors.New("mocked error"))
	})
}

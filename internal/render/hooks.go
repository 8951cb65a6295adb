package render

import (
	"fmt"
	"runtime/debug"

	"github.com/loykin/iconrender/internal/asset"
)

// Hooks are the interception points around a single risky render call.
// Before runs immediately before the call, OnFault when the call fails or
// panics, and After on every exit path. OnFault returning true suppresses
// the fault so the caller sees success.
type Hooks interface {
	Before(rec asset.Record)
	OnFault(rec asset.Record, err error) bool
	After(rec asset.Record)
}

// PanicError is a recovered panic from a host binding.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string { return fmt.Sprintf("panic: %v", e.Value) }

// Safely runs fn and turns a panic into a *PanicError.
func Safely(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r, Stack: debug.Stack()}
		}
	}()
	return fn()
}

// Invoke runs fn between h.Before and h.After. A nil h runs fn under Safely
// only. After is called exactly once, after OnFault.
func Invoke(h Hooks, rec asset.Record, fn func() error) error {
	if h == nil {
		return Safely(fn)
	}
	h.Before(rec)
	defer h.After(rec)
	err := Safely(fn)
	if err != nil && h.OnFault(rec, err) {
		return nil
	}
	return err
}

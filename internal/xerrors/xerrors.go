// Package xerrors adds call-site and stack information to errors so the
// logger can point at where a failure originated.
package xerrors

import (
	"errors"
	"fmt"
	"runtime"
)

type stacked struct {
	err error
	pcs []uintptr
}

func (s *stacked) Error() string       { return s.err.Error() }
func (s *stacked) Unwrap() error       { return s.err }
func (s *stacked) StackPCs() []uintptr { return s.pcs }

func stackFrom(err error, skip int) error {
	if err == nil {
		return nil
	}
	pcs := make([]uintptr, 64)
	// +2 skips runtime.Callers and stackFrom
	n := runtime.Callers(2+skip, pcs)
	return &stacked{err: err, pcs: pcs[:n]}
}

// WithStack records the caller's stack on err.
func WithStack(err error) error { return stackFrom(err, 1) }

// EnsureTrace records a stack on err unless something in its chain already
// carries one.
func EnsureTrace(err error) error {
	if err == nil {
		return nil
	}
	var hs interface{ StackPCs() []uintptr }
	if errors.As(err, &hs) && len(hs.StackPCs()) > 0 {
		return err
	}
	return stackFrom(err, 1)
}

type wrapped struct {
	err error
	msg string
	pc  uintptr
}

func (w *wrapped) Error() string { return w.msg + ": " + w.err.Error() }
func (w *wrapped) Unwrap() error { return w.err }
func (w *wrapped) PC() uintptr   { return w.pc }

func caller() uintptr {
	var pcs [1]uintptr
	// skip runtime.Callers, caller, and the exported wrapper
	if runtime.Callers(3, pcs[:]) == 0 {
		return 0
	}
	return pcs[0]
}

// Wrap prefixes err with msg and records the call site. Returns nil for a nil err.
func Wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	return &wrapped{err: err, msg: msg, pc: caller()}
}

// Wrapf is Wrap with a format string.
func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return &wrapped{err: err, msg: fmt.Sprintf(format, args...), pc: caller()}
}

// New returns an error with the caller's stack.
func New(msg string) error { return stackFrom(errors.New(msg), 1) }

// Newf is New with a format string; %w is honored.
func Newf(format string, args ...any) error { return stackFrom(fmt.Errorf(format, args...), 1) }

type marked struct {
	err  error
	mark error
}

func (m *marked) Error() string   { return m.err.Error() }
func (m *marked) Unwrap() []error { return []error{m.err, m.mark} }

// Mark makes errors.Is(result, mark) true while keeping err's message and
// chain. Used to classify driver errors as domain sentinels.
func Mark(err, mark error) error {
	if err == nil || mark == nil {
		return err
	}
	return &marked{err: err, mark: mark}
}

// Package errs defines the engine's stable error kinds and the propagation
// contract around them.
package errs

import (
	"errors"
	"fmt"
)

// Kind is one of the engine's stable error discriminators.
type Kind string

const (
	KindSchemaError      Kind = "SchemaError"
	KindCycleError       Kind = "CycleError"
	KindUnknownFunction  Kind = "UnknownFunction"
	KindFingerprintError Kind = "FingerprintError"
	KindTaskThrew        Kind = "TaskThrew"
	KindTaskTimeout      Kind = "TaskTimeout"
	KindCancelled        Kind = "Cancelled"
	KindCacheReadError   Kind = "CacheReadError"
	KindCacheWriteError  Kind = "CacheWriteError"
	KindInternal         Kind = "Internal"
)

// Error is the single typed error used throughout the engine. Kind
// identifies the error class for both log records and TaskOutcome.Error;
// Msg carries human-readable detail; Path carries the offending JSON path
// for SchemaError.
type Error struct {
	Kind Kind
	Msg  string
	Path string
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Path != "" {
		return fmt.Sprintf("%s: %s (at %s)", e.Kind, e.Msg, e.Path)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

// Is allows errors.Is(err, errs.New(KindTaskTimeout, "")) style kind checks.
func (e *Error) Is(target error) bool {
	var other *Error
	if !errors.As(target, &other) {
		return false
	}
	return e.Kind == other.Kind
}

func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

func Schema(path, format string, args ...any) *Error {
	return &Error{Kind: KindSchemaError, Msg: fmt.Sprintf(format, args...), Path: path}
}

// As is a small convenience wrapper around errors.As for *Error, used
// throughout the scheduler to classify pool failures.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

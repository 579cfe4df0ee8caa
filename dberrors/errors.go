// Package dberrors defines the error kinds surfaced by the storage engine.
//
// Every typed error unwraps to one of the sentinels below, so callers can
// branch with errors.Is(err, dberrors.ErrNotFound) without caring which
// layer produced the error.
package dberrors

import (
	"errors"
	"fmt"
)

// Sentinel errors
var (
	ErrIO           = errors.New("i/o error")
	ErrDuplicateKey = errors.New("duplicate key")
	ErrNotFound     = errors.New("not found")
	ErrCorrupt      = errors.New("corruption detected")
	ErrInvalidInput = errors.New("invalid input")
	ErrClosed       = errors.New("engine closed")
	ErrTxnDone      = errors.New("transaction already finished")
	ErrLocked       = errors.New("database file is locked by another process")
)

// IOError wraps a failed file operation (short read, page out of range,
// fsync failure).
type IOError struct {
	Op   string // read, write, sync, open, truncate ...
	Path string
	Err  error
}

func (e *IOError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

func (e *IOError) Is(target error) bool { return target == ErrIO }

// DuplicateKeyError is returned when a unique index already holds the key.
type DuplicateKeyError struct {
	Index string
	Key   string
}

func (e *DuplicateKeyError) Error() string {
	return fmt.Sprintf("duplicate key %s in %s index", e.Key, e.Index)
}

func (e *DuplicateKeyError) Unwrap() error { return ErrDuplicateKey }

// NotFoundError is returned when a key is absent.
type NotFoundError struct {
	Index string
	Key   string
}

func (e *NotFoundError) Error() string {
	if e.Index == "" {
		return fmt.Sprintf("key %s not found", e.Key)
	}
	return fmt.Sprintf("key %s not found in %s index", e.Key, e.Index)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// CorruptionError reports on-disk state that cannot be trusted: bad magic,
// page checksum mismatch, WAL record checksum or length mismatch.
type CorruptionError struct {
	Source string // file path or component name
	Page   int64  // -1 when not page specific
	Reason string
}

func (e *CorruptionError) Error() string {
	if e.Page >= 0 {
		return fmt.Sprintf("corruption in %s page %d: %s", e.Source, e.Page, e.Reason)
	}
	return fmt.Sprintf("corruption in %s: %s", e.Source, e.Reason)
}

func (e *CorruptionError) Unwrap() error { return ErrCorrupt }

// ValidationError rejects caller input such as an over-long column.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation failed for %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation failed: %s", e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrInvalidInput }

// ############################################# CONSTRUCTORS #############################################

func NewIOError(op, path string, err error) error {
	return &IOError{Op: op, Path: path, Err: err}
}

func NewDuplicateKeyError(index string, key any) error {
	return &DuplicateKeyError{Index: index, Key: fmt.Sprint(key)}
}

func NewNotFoundError(index string, key any) error {
	return &NotFoundError{Index: index, Key: fmt.Sprint(key)}
}

// Corruptf builds a CorruptionError that is not tied to a single page.
func Corruptf(source, format string, args ...any) error {
	return &CorruptionError{Source: source, Page: -1, Reason: fmt.Sprintf(format, args...)}
}

// PageCorruptf builds a CorruptionError for one page.
func PageCorruptf(source string, page uint32, format string, args ...any) error {
	return &CorruptionError{Source: source, Page: int64(page), Reason: fmt.Sprintf(format, args...)}
}

func NewValidationError(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// ############################################# HELPERS #############################################

func IsNotFound(err error) bool     { return errors.Is(err, ErrNotFound) }
func IsDuplicateKey(err error) bool { return errors.Is(err, ErrDuplicateKey) }
func IsCorruption(err error) bool   { return errors.Is(err, ErrCorrupt) }

// Package errors provides enhanced error construction with component and
// category metadata, plus re-exports of the standard inspection helpers so
// call sites only need a single errors import.
package errors

import (
	stderrors "errors"
	"fmt"
)

// Category classifies an error for logging and triage.
type Category string

const (
	CategoryValidation    Category = "validation"
	CategoryConfiguration Category = "configuration"
	CategoryDatabase      Category = "database"
	CategoryNetwork       Category = "network"
	CategoryDelivery      Category = "delivery"
)

// EnhancedError is an error carrying component and category metadata.
type EnhancedError struct {
	err       error
	component string
	category  Category
	context   map[string]any
}

// Error implements the error interface.
func (e *EnhancedError) Error() string {
	return e.err.Error()
}

// Unwrap exposes the underlying error to errors.Is/As.
func (e *EnhancedError) Unwrap() error {
	return e.err
}

// GetComponent returns the component that produced the error.
func (e *EnhancedError) GetComponent() string {
	return e.component
}

// GetCategory returns the error category.
func (e *EnhancedError) GetCategory() Category {
	return e.category
}

// GetContext returns the context value for key, if set.
func (e *EnhancedError) GetContext(key string) (any, bool) {
	v, ok := e.context[key]
	return v, ok
}

// Builder assembles an EnhancedError fluently.
type Builder struct {
	err *EnhancedError
}

// New starts building an enhanced error wrapping err.
func New(err error) *Builder {
	return &Builder{err: &EnhancedError{err: err, context: make(map[string]any)}}
}

// Newf starts building an enhanced error from a format string.
func Newf(format string, args ...any) *Builder {
	return New(fmt.Errorf(format, args...))
}

// Component records which subsystem produced the error.
func (b *Builder) Component(name string) *Builder {
	b.err.component = name
	return b
}

// Category records the error category.
func (b *Builder) Category(c Category) *Builder {
	b.err.category = c
	return b
}

// Context attaches a key/value pair for diagnostics.
func (b *Builder) Context(key string, value any) *Builder {
	b.err.context[key] = value
	return b
}

// Build finalizes the enhanced error.
func (b *Builder) Build() error {
	return b.err
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return stderrors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target any) bool {
	return stderrors.As(err, target)
}

// Join wraps the standard errors.Join.
func Join(errs ...error) error {
	return stderrors.Join(errs...)
}

// Sentinel creates a plain sentinel error for package-level declarations.
func Sentinel(text string) error {
	return stderrors.New(text)
}

package common

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNotFound is returned (wrapped) when a referenced row does not exist.
var ErrNotFound = errors.New("not found")

// NotFound wraps ErrNotFound with the resource and id that was looked up.
func NotFound(resource string, id any) error {
	return fmt.Errorf("%s %v: %w", resource, id, ErrNotFound)
}

// ValidationError reports malformed input, detected before any write.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation: " + e.Message
	}
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Message)
}

func Invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// ConflictError reports a uniqueness violation within a scope.
type ConflictError struct {
	Resource string
	Field    string
	Value    string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s with %s %q already exists", e.Resource, e.Field, e.Value)
}

// InUseError reports a delete blocked by dependents.
type InUseError struct {
	Resource string
	Blocker  string
	Count    int64
}

func (e *InUseError) Error() string {
	return fmt.Sprintf("%s is in use by %d %s", e.Resource, e.Count, e.Blocker)
}

// IncompatibleBindingError reports a failed widget/content type compatibility check.
type IncompatibleBindingError struct {
	Message string
}

func (e *IncompatibleBindingError) Error() string {
	return "incompatible binding: " + e.Message
}

// ViewNotFoundError reports that no view could be resolved for a widget.
type ViewNotFoundError struct {
	Widget string
	Tried  []string
}

func (e *ViewNotFoundError) Error() string {
	return fmt.Sprintf("no view found for widget %q (tried %s)", e.Widget, strings.Join(e.Tried, ", "))
}

// StaleReferenceError reports a reference to a row deleted after it was bound.
type StaleReferenceError struct {
	Resource string
	ID       uint
}

func (e *StaleReferenceError) Error() string {
	return fmt.Sprintf("stale reference to %s %d", e.Resource, e.ID)
}

func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

func IsConflict(err error) bool {
	var c *ConflictError
	return errors.As(err, &c)
}

func IsInUse(err error) bool {
	var u *InUseError
	return errors.As(err, &u)
}

func IsIncompatible(err error) bool {
	var i *IncompatibleBindingError
	return errors.As(err, &i)
}

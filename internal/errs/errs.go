// Package errs defines the error taxonomy surfaced to callers of the
// document engine.
//
// Every failure a caller is expected to act on is an *Error with a stable
// Kind. Kinds are part of the external contract (the CLI prints them and
// maps them to exit codes); messages are not.
package errs

import (
	"errors"
	"fmt"
	"strings"
)

// Kind categorizes engine errors.
type Kind string

const (
	// KindSchema indicates a malformed doctype or workflow definition.
	KindSchema Kind = "SCHEMA_ERROR"

	// KindValidation indicates a document payload that violates its schema.
	KindValidation Kind = "VALIDATION_ERROR"

	// KindHookExecution indicates a before-hook failure that aborted a write.
	KindHookExecution Kind = "HOOK_EXECUTION_ERROR"

	// KindTransitionDenied indicates a refused workflow transition.
	KindTransitionDenied Kind = "WORKFLOW_TRANSITION_DENIED"

	// KindIntegrity indicates a version snapshot whose checksum does not match.
	KindIntegrity Kind = "INTEGRITY_VIOLATION"

	// KindReferential indicates a delete blocked by incoming links.
	KindReferential Kind = "REFERENTIAL_INTEGRITY_ERROR"

	// KindNotFound indicates a missing doctype, document, version or workflow.
	KindNotFound Kind = "NOT_FOUND"

	// KindPermission indicates the actor lacks the required permission.
	KindPermission Kind = "PERMISSION_DENIED"

	// KindFrozen indicates a data edit on a submitted or cancelled document.
	KindFrozen Kind = "DOCUMENT_FROZEN"

	// KindInvalidState indicates a lifecycle operation not allowed from the
	// document's current status (re-submit, cancel a draft).
	KindInvalidState Kind = "INVALID_STATE"

	// KindConflict indicates a uniqueness clash (document name, doctype name).
	KindConflict Kind = "CONFLICT"
)

// Issue is one problem inside a schema or validation error.
type Issue struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

func (i Issue) String() string {
	if i.Code != "" {
		return fmt.Sprintf("[%s] %s: %s", i.Code, i.Field, i.Message)
	}
	return fmt.Sprintf("%s: %s", i.Field, i.Message)
}

// Error is the structured error returned by the engine.
type Error struct {
	// Kind identifies the error category.
	Kind Kind

	// Message is a human-readable description.
	Message string

	// Doctype names the affected doctype, if any.
	Doctype string

	// DocumentID identifies the affected document, if any.
	DocumentID string

	// Issues lists field-level problems for schema and validation errors.
	Issues []Issue

	// Details contains additional context.
	Details map[string]string

	// Trace carries operator-facing diagnostics (hook id, expression
	// position, wrapped error chain). It is never part of Error().
	Trace string

	// Err is the underlying cause.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	b.WriteString(": ")
	b.WriteString(e.Message)
	if len(e.Issues) > 0 {
		parts := make([]string, len(e.Issues))
		for i, issue := range e.Issues {
			parts[i] = issue.String()
		}
		b.WriteString(" (")
		b.WriteString(strings.Join(parts, "; "))
		b.WriteString(")")
	}
	if e.DocumentID != "" {
		fmt.Fprintf(&b, " (document=%s)", e.DocumentID)
	} else if e.Doctype != "" {
		fmt.Fprintf(&b, " (doctype=%s)", e.Doctype)
	}
	return b.String()
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// New creates an Error of the given kind.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates an Error of the given kind around a cause.
func Wrap(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// WithDocument sets the affected document and returns e.
func (e *Error) WithDocument(doctype, id string) *Error {
	e.Doctype = doctype
	e.DocumentID = id
	return e
}

// WithDetail adds a detail entry and returns e.
func (e *Error) WithDetail(key, val string) *Error {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = val
	return e
}

// KindOf returns the Kind of err, or "" if err is not an *Error.
// Uses errors.As to handle wrapped errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// As returns err as an *Error when it is one.
func As(err error) (*Error, bool) {
	var e *Error
	ok := errors.As(err, &e)
	return e, ok
}

// Is reports whether err is an *Error of the given kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// IsSchema returns true if err is a schema error.
func IsSchema(err error) bool { return Is(err, KindSchema) }

// IsValidation returns true if err is a validation error.
func IsValidation(err error) bool { return Is(err, KindValidation) }

// IsHookExecution returns true if err is a before-hook failure.
func IsHookExecution(err error) bool { return Is(err, KindHookExecution) }

// IsTransitionDenied returns true if err is a refused workflow transition.
func IsTransitionDenied(err error) bool { return Is(err, KindTransitionDenied) }

// IsIntegrity returns true if err is an integrity violation.
func IsIntegrity(err error) bool { return Is(err, KindIntegrity) }

// IsReferential returns true if err is a referential integrity error.
func IsReferential(err error) bool { return Is(err, KindReferential) }

// IsNotFound returns true if err is a not-found error.
func IsNotFound(err error) bool { return Is(err, KindNotFound) }

// NewNotFound creates a not-found error for the named thing.
func NewNotFound(what, key string) *Error {
	return &Error{
		Kind:    KindNotFound,
		Message: fmt.Sprintf("%s %q not found", what, key),
	}
}

// NewValidation creates a validation error listing every field issue.
func NewValidation(doctype string, issues []Issue) *Error {
	return &Error{
		Kind:    KindValidation,
		Message: fmt.Sprintf("document does not satisfy doctype %s", doctype),
		Doctype: doctype,
		Issues:  issues,
	}
}

// NewSchema creates a schema error listing every definition issue.
func NewSchema(name string, issues []Issue) *Error {
	return &Error{
		Kind:    KindSchema,
		Message: fmt.Sprintf("invalid definition %s", name),
		Doctype: name,
		Issues:  issues,
	}
}

package missions

import (
	"errors"
	"fmt"
)

// ErrorClass represents the classification of an error for recovery and
// diagnostics.
type ErrorClass string

const (
	// ErrorClassLoad indicates a malformed template header, duplicate name
	// or unreadable source. Non-fatal per file.
	ErrorClassLoad ErrorClass = "load"

	// ErrorClassCompile indicates a scripting syntax error in a template
	// body or conditional fragment.
	ErrorClassCompile ErrorClass = "compile"

	// ErrorClassEval indicates a runtime failure while executing a
	// conditional or entry point.
	ErrorClassEval ErrorClass = "eval"

	// ErrorClassClaimConflict indicates two simultaneously-active exclusive
	// claims targeting the same system.
	ErrorClassClaimConflict ErrorClass = "claim_conflict"

	// ErrorClassPersistence indicates a missing template or unpersist
	// failure during save load.
	ErrorClassPersistence ErrorClass = "persistence"
)

// MissionError is a classified error with mission context.
type MissionError struct {
	// Class is the error classification.
	Class ErrorClass

	// Message is the human-readable error message.
	Message string

	// Template is the template name involved, if applicable.
	Template string

	// Operation is the operation being performed when the error occurred.
	Operation string

	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *MissionError) Error() string {
	if e.Template != "" && e.Operation != "" {
		return fmt.Sprintf("[%s] %s (template=%s, operation=%s): %s",
			e.Class, e.Message, e.Template, e.Operation, e.unwrapMessage())
	}
	if e.Template != "" {
		return fmt.Sprintf("[%s] %s (template=%s): %s",
			e.Class, e.Message, e.Template, e.unwrapMessage())
	}
	return fmt.Sprintf("[%s] %s: %s", e.Class, e.Message, e.unwrapMessage())
}

// Unwrap returns the underlying error for error chain inspection.
func (e *MissionError) Unwrap() error {
	return e.Err
}

func (e *MissionError) unwrapMessage() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return ""
}

// Is implements error equality checking for errors.Is.
func (e *MissionError) Is(target error) bool {
	t, ok := target.(*MissionError)
	if !ok {
		return false
	}
	return e.Class == t.Class
}

// NewLoadError creates a load-classified error.
func NewLoadError(message string, err error) *MissionError {
	return &MissionError{Class: ErrorClassLoad, Message: message, Err: err}
}

// NewCompileError creates a compile-classified error.
func NewCompileError(message string, err error) *MissionError {
	return &MissionError{Class: ErrorClassCompile, Message: message, Err: err}
}

// NewEvalError creates an eval-classified error.
func NewEvalError(message string, err error) *MissionError {
	return &MissionError{Class: ErrorClassEval, Message: message, Err: err}
}

// NewClaimConflictError creates a claim-conflict error.
func NewClaimConflictError(template string) *MissionError {
	return &MissionError{
		Class:    ErrorClassClaimConflict,
		Message:  "claim conflict",
		Template: template,
	}
}

// NewPersistenceError creates a persistence-classified error.
func NewPersistenceError(message string, err error) *MissionError {
	return &MissionError{Class: ErrorClassPersistence, Message: message, Err: err}
}

// WithTemplate attaches a template name.
func (e *MissionError) WithTemplate(name string) *MissionError {
	e.Template = name
	return e
}

// WithOperation attaches an operation name.
func (e *MissionError) WithOperation(op string) *MissionError {
	e.Operation = op
	return e
}

// ClassOf extracts the ErrorClass from an error chain, or "" if the chain
// carries no MissionError.
func ClassOf(err error) ErrorClass {
	var me *MissionError
	if errors.As(err, &me) {
		return me.Class
	}
	return ""
}

// Package rerr defines the single tagged error type shared by every
// layer of the compiler. Errors are structured data, not strings;
// consumers match on Code and map it to user messages.
package rerr

import (
	"errors"
	"strings"
)

// Code identifies a class of compiler error.
type Code string

const (
	ModelNotFound                  Code = "MODEL_NOT_FOUND"
	FieldNotFound                  Code = "FIELD_NOT_FOUND"
	IndexNotFound                  Code = "INDEX_NOT_FOUND"
	PresetNotFound                 Code = "PRESET_NOT_FOUND"
	InvalidWithValue               Code = "INVALID_WITH_VALUE"
	InvalidToValue                 Code = "INVALID_TO_VALUE"
	InvalidIncludingValue          Code = "INVALID_INCLUDING_VALUE"
	InvalidForValue                Code = "INVALID_FOR_VALUE"
	InvalidBeforeOrAfter           Code = "INVALID_BEFORE_OR_AFTER_INSTRUCTION"
	InvalidModelValue              Code = "INVALID_MODEL_VALUE"
	InvalidFieldValue              Code = "INVALID_FIELD_VALUE"
	ExistingModelEntity            Code = "EXISTING_MODEL_ENTITY"
	RequiredModelEntity            Code = "REQUIRED_MODEL_ENTITY"
	MutuallyExclusiveInstructions  Code = "MUTUALLY_EXCLUSIVE_INSTRUCTIONS"
	MissingInstruction             Code = "MISSING_INSTRUCTION"
	MissingField                   Code = "MISSING_FIELD"
)

// Error is the compiler's only error shape. All errors bubble out of
// Transaction construction (compile-time) or FormatResults (decode
// time) carrying one of the codes above.
type Error struct {
	Code    Code
	Message string

	// Field names the offending field or instruction, when known.
	Field string
	// Fields carries multiple offenders (e.g. the instruction slugs of
	// a mutually exclusive pair).
	Fields []string
	// Queries holds the document form of the offending queries.
	Queries []any
	// Issues holds nested errors collected during a compound
	// operation, such as a model alteration touching several entities.
	Issues []*Error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Code))
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Field != "" {
		b.WriteString(" (field: ")
		b.WriteString(e.Field)
		b.WriteString(")")
	}
	return b.String()
}

// Is reports whether target is an *Error with the same code, which
// lets callers write errors.Is(err, &rerr.Error{Code: rerr.ModelNotFound}).
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// New returns an error with the given code and message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// NewField is New with the offending field attached.
func NewField(code Code, message, field string) *Error {
	return &Error{Code: code, Message: message, Field: field}
}

// HasCode reports whether err is (or wraps) an *Error with the code.
func HasCode(err error, code Code) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Code == code
}

// CodeOf extracts the code of err, or "" when err is not an *Error.
func CodeOf(err error) Code {
	var e *Error
	if !errors.As(err, &e) {
		return ""
	}
	return e.Code
}

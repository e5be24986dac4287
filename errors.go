package compiler

import "github.com/ronin-co/compiler/internal/rerr"

// Error is the single structured error every compiler operation
// returns. Match on Code rather than the message text.
type Error = rerr.Error

// ErrorCode identifies a class of compiler error.
type ErrorCode = rerr.Code

const (
	ErrModelNotFound                 = rerr.ModelNotFound
	ErrFieldNotFound                 = rerr.FieldNotFound
	ErrIndexNotFound                 = rerr.IndexNotFound
	ErrPresetNotFound                = rerr.PresetNotFound
	ErrInvalidWithValue              = rerr.InvalidWithValue
	ErrInvalidToValue                = rerr.InvalidToValue
	ErrInvalidIncludingValue         = rerr.InvalidIncludingValue
	ErrInvalidForValue               = rerr.InvalidForValue
	ErrInvalidBeforeOrAfter          = rerr.InvalidBeforeOrAfter
	ErrInvalidModelValue             = rerr.InvalidModelValue
	ErrInvalidFieldValue             = rerr.InvalidFieldValue
	ErrExistingModelEntity           = rerr.ExistingModelEntity
	ErrRequiredModelEntity           = rerr.RequiredModelEntity
	ErrMutuallyExclusiveInstructions = rerr.MutuallyExclusiveInstructions
	ErrMissingInstruction            = rerr.MissingInstruction
	ErrMissingField                  = rerr.MissingField
)

// HasErrorCode reports whether err carries the given code.
func HasErrorCode(err error, code ErrorCode) bool {
	return rerr.HasCode(err, code)
}

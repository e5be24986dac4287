// Package cursor implements the opaque pagination cursor: the
// ordered-by field values of a boundary record plus its id, JSON
// serialized and base64url encoded.
package cursor

import (
	"encoding/base64"
	"encoding/json"

	"github.com/ronin-co/compiler/internal/rerr"
)

// Encode serializes the ordered values (ordered-by fields first, the
// record id last) into an opaque cursor string.
func Encode(values []any) string {
	b, err := json.Marshal(values)
	if err != nil {
		// Cursor values are JSON scalars by construction; a marshal
		// failure means a caller bug, surfaced as an empty cursor.
		return ""
	}
	return base64.RawURLEncoding.EncodeToString(b)
}

// Decode parses a cursor back into its value list. Malformed input
// fails with INVALID_BEFORE_OR_AFTER_INSTRUCTION.
func Decode(s string) ([]any, error) {
	if s == "" {
		return nil, rerr.New(rerr.MissingInstruction,
			"the before or after instruction must not be empty")
	}
	b, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return nil, invalid()
	}
	var values []any
	if err := json.Unmarshal(b, &values); err != nil {
		return nil, invalid()
	}
	return values, nil
}

func invalid() error {
	return rerr.New(rerr.InvalidBeforeOrAfter,
		"the before or after instruction must be a valid pagination cursor")
}

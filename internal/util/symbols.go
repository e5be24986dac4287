package util

import "strings"

// Reserved markers carried inside document-form queries. The surface
// syntax is pre-JSON-serialized, so sub-queries, raw expressions and
// field references arrive as specially keyed objects or prefixed
// strings rather than as distinct node types.
const (
	SymbolQuery       = "__RONIN_QUERY"
	SymbolExpression  = "__RONIN_EXPRESSION"
	SymbolField       = "__RONIN_FIELD_"
	SymbolFieldParent = "__RONIN_FIELD_PARENT_"
	SymbolValue       = "__RONIN_VALUE"
)

// QuerySymbol unwraps a sub-query marker object, returning the nested
// query document.
func QuerySymbol(value any) (map[string]any, bool) {
	m, ok := value.(map[string]any)
	if !ok {
		return nil, false
	}
	q, ok := m[SymbolQuery]
	if !ok {
		return nil, false
	}
	doc, ok := q.(map[string]any)
	return doc, ok
}

// ExpressionSymbol unwraps a raw-expression marker object, returning
// the expression text.
func ExpressionSymbol(value any) (string, bool) {
	m, ok := value.(map[string]any)
	if !ok {
		return "", false
	}
	e, ok := m[SymbolExpression]
	if !ok {
		return "", false
	}
	expr, ok := e.(string)
	return expr, ok
}

// IsSymbol reports whether value is any marker object.
func IsSymbol(value any) bool {
	if _, ok := QuerySymbol(value); ok {
		return true
	}
	if _, ok := ExpressionSymbol(value); ok {
		return true
	}
	return false
}

// FieldRef describes a field-reference token found inside an
// expression: __RONIN_FIELD_<slug> or __RONIN_FIELD_PARENT_<slug>.
type FieldRef struct {
	Slug   string
	Parent bool
}

// NextFieldRef scans expr from offset for the next field-reference
// token, returning its bounds and parsed form.
func NextFieldRef(expr string, offset int) (start, end int, ref FieldRef, found bool) {
	i := strings.Index(expr[offset:], SymbolField)
	if i < 0 {
		return 0, 0, FieldRef{}, false
	}
	start = offset + i
	slugStart := start + len(SymbolField)
	if strings.HasPrefix(expr[start:], SymbolFieldParent) {
		ref.Parent = true
		slugStart = start + len(SymbolFieldParent)
	}
	end = slugStart
	for end < len(expr) && isFieldRune(expr[end]) {
		end++
	}
	ref.Slug = expr[slugStart:end]
	return start, end, ref, true
}

func isFieldRune(b byte) bool {
	return b == '.' || b == '_' ||
		(b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') || (b >= '0' && b <= '9')
}

// ReplaceValueToken walks a preset's instruction tree and substitutes
// every occurrence of the literal __RONIN_VALUE with value, returning
// a deep copy so the preset itself stays untouched.
func ReplaceValueToken(node any, value any) any {
	switch v := node.(type) {
	case string:
		if v == SymbolValue {
			return value
		}
		return v
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, el := range v {
			out[k] = ReplaceValueToken(el, value)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, el := range v {
			out[i] = ReplaceValueToken(el, value)
		}
		return out
	default:
		return v
	}
}

package sqlite

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/ronin-co/compiler/internal/util"
)

// binder allocates the 1-based ?N placeholders of one statement and
// collects their values. With inlining requested it instead renders
// literal SQL values.
type binder struct {
	params []any
	inline bool
}

func newBinder(inline bool) *binder {
	return &binder{inline: inline}
}

func (b *binder) values() []any {
	return b.params
}

// prepare turns a Go value into its statement fragment: a placeholder
// when binding, a literal when inlining.
func (b *binder) prepare(value any) string {
	switch v := value.(type) {
	case nil:
		return "NULL"
	case bool:
		if v {
			value = 1
		} else {
			value = 0
		}
	case map[string]any, []any:
		raw, err := json.Marshal(v)
		if err != nil {
			raw = []byte("null")
		}
		if b.inline {
			return b.inlineJSON(string(raw))
		}
		value = string(raw)
	}

	if b.inline {
		return inlineLiteral(value)
	}
	b.params = append(b.params, value)
	return "?" + strconv.Itoa(len(b.params))
}

// inlineJSON quotes a serialized JSON value for direct embedding.
// Single quotes inside __RONIN_EXPRESSION values are double-escaped
// so they survive the outer SQL string literal.
func (b *binder) inlineJSON(raw string) string {
	escaped := strings.ReplaceAll(raw, "'", "''")
	if strings.Contains(raw, util.SymbolExpression) {
		escaped = strings.ReplaceAll(escaped, "''", "''''")
	}
	return "'" + escaped + "'"
}

func inlineLiteral(value any) string {
	switch v := value.(type) {
	case string:
		return "'" + strings.ReplaceAll(v, "'", "''") + "'"
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		raw, err := json.Marshal(v)
		if err != nil {
			return "NULL"
		}
		return "'" + strings.ReplaceAll(string(raw), "'", "''") + "'"
	}
}

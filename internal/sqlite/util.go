package sqlite

import (
	"strings"

	"github.com/ronin-co/compiler/internal/rerr"
	"github.com/ronin-co/compiler/internal/sdata"
	"github.com/ronin-co/compiler/internal/util"
)

func (c *compilerContext) quoted(identifier string) {
	c.w.WriteByte('"')
	c.w.WriteString(identifier)
	c.w.WriteByte('"')
}

func quote(identifier string) string {
	return `"` + identifier + `"`
}

// resolve resolves a field path against the context's model.
func (c *compilerContext) resolve(path, source string, writing bool) (sdata.ResolvedField, error) {
	return sdata.ResolveField(c.model, path, source, writing)
}

// replaceFieldRefs substitutes the field-reference tokens inside a
// raw expression with their SQL selectors. Parent references resolve
// against the enclosing query's model.
func (c *compilerContext) replaceFieldRefs(expr string) (string, error) {
	var b strings.Builder
	offset := 0
	for {
		start, end, ref, found := util.NextFieldRef(expr, offset)
		if !found {
			b.WriteString(expr[offset:])
			return b.String(), nil
		}
		b.WriteString(expr[offset:start])

		target := c.model
		if ref.Parent {
			if c.parent == nil {
				return "", rerr.New(rerr.InvalidIncludingValue,
					"a parent field reference requires an enclosing query")
			}
			target = c.parent
		}
		resolved, err := sdata.ResolveField(target, ref.Slug, "expression", false)
		if err != nil {
			return "", err
		}
		b.WriteString(resolved.Selector)
		offset = end
	}
}

// expressionValue renders a value that may be a raw expression or a
// field reference; ok is false when the value is a plain literal.
func (c *compilerContext) expressionValue(value any) (string, bool, error) {
	if expr, isExpr := util.ExpressionSymbol(value); isExpr {
		out, err := c.replaceFieldRefs(expr)
		return out, true, err
	}
	if s, isStr := value.(string); isStr && strings.HasPrefix(s, util.SymbolField) {
		out, err := c.replaceFieldRefs(s)
		return out, true, err
	}
	return "", false, nil
}

package sqlite

import (
	"sort"
	"strings"

	"github.com/ronin-co/compiler/internal/qcode"
	"github.com/ronin-co/compiler/internal/rerr"
	"github.com/ronin-co/compiler/internal/sdata"
	"github.com/ronin-co/compiler/internal/util"
)

// The with instruction's matchers. One operator applies per nested
// object level.
var operators = map[string]string{
	"being":           "=",
	"notBeing":        "!=",
	"startingWith":    "LIKE",
	"notStartingWith": "NOT LIKE",
	"endingWith":      "LIKE",
	"notEndingWith":   "NOT LIKE",
	"containing":      "LIKE",
	"notContaining":   "NOT LIKE",
	"greaterThan":     ">",
	"greaterOrEqual":  ">=",
	"lessThan":        "<",
	"lessOrEqual":     "<=",
}

func isOperator(key string) bool {
	_, ok := operators[key]
	return ok
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// renderWhere writes the WHERE clause of the current query, if the
// with instruction produces any condition.
func (c *compilerContext) renderWhere() error {
	cond, err := c.conditions(c.q.Instructions.With)
	if err != nil {
		return err
	}
	cursorCond, err := c.cursorFilter()
	if err != nil {
		return err
	}
	switch {
	case cond != "" && cursorCond != "":
		cond = cond + " AND (" + cursorCond + ")"
	case cursorCond != "":
		cond = cursorCond
	}
	if cond == "" {
		return nil
	}
	c.w.WriteString(" WHERE ")
	c.w.WriteString(cond)
	return nil
}

// conditions renders a with value: an object is an AND over its
// fields, an array an OR over its groups.
func (c *compilerContext) conditions(with any) (string, error) {
	switch v := with.(type) {
	case nil:
		return "", nil
	case map[string]any:
		var parts []string
		for _, key := range sortedKeys(v) {
			part, err := c.fieldCondition(key, v[key])
			if err != nil {
				return "", err
			}
			if part != "" {
				parts = append(parts, part)
			}
		}
		return strings.Join(parts, " AND "), nil
	case []any:
		var groups []string
		for _, el := range v {
			group, err := c.conditions(el)
			if err != nil {
				return "", err
			}
			if group != "" {
				groups = append(groups, group)
			}
		}
		if len(groups) == 1 {
			return groups[0], nil
		}
		for i, group := range groups {
			groups[i] = "(" + group + ")"
		}
		return strings.Join(groups, " OR "), nil
	}
	return "", rerr.New(rerr.InvalidWithValue,
		"the with instruction must be an object or a list of objects")
}

// fieldCondition renders the condition for one field path of a with
// object.
func (c *compilerContext) fieldCondition(path string, value any) (string, error) {
	switch v := value.(type) {
	case map[string]any:
		// Expression and sub-query markers are values, not nested
		// record matches.
		if util.IsSymbol(v) {
			return c.opCondition(path, "being", v)
		}
		if containsOperator(v) {
			var parts []string
			for _, op := range sortedKeys(v) {
				if !isOperator(op) {
					return "", rerr.NewField(rerr.InvalidWithValue,
						"operators cannot be combined with plain fields", path)
				}
				part, err := c.opCondition(path, op, v[op])
				if err != nil {
					return "", err
				}
				if part != "" {
					parts = append(parts, part)
				}
			}
			return strings.Join(parts, " AND "), nil
		}

		// A nested object under a one-cardinality link matches the
		// linked record.
		if f, ok := c.model.Field(path); ok && f.Type == sdata.TypeLink {
			return c.linkCondition(path, f, v)
		}

		// Otherwise the object extends the field path, descending
		// into JSON structures.
		var parts []string
		for _, key := range sortedKeys(v) {
			part, err := c.fieldCondition(path+"."+key, v[key])
			if err != nil {
				return "", err
			}
			if part != "" {
				parts = append(parts, part)
			}
		}
		return strings.Join(parts, " AND "), nil

	case []any:
		return c.orChain(path, "being", v)
	}
	return c.opCondition(path, "being", value)
}

// linkCondition rewrites a record-shaped value on a link field into a
// comparison against the linked table, unless only the id is matched.
func (c *compilerContext) linkCondition(path string, f *sdata.Field, value map[string]any) (string, error) {
	if len(value) == 1 {
		if idValue, ok := value["id"]; ok {
			return c.fieldCondition(path, idValue)
		}
	}

	target, err := sdata.ModelBySlug(c.co.conf.Models, f.Target)
	if err != nil {
		return "", err
	}
	resolved, err := c.resolve(path, "with", false)
	if err != nil {
		return "", err
	}

	child := c.subContext(target)
	nested, err := child.conditions(value)
	if err != nil {
		return "", err
	}
	sub := `(SELECT "id" FROM ` + quote(target.Table)
	if nested != "" {
		sub += ` WHERE ` + nested
	}
	sub += ` LIMIT 1)`
	return resolved.Selector + " = " + sub, nil
}

// orChain renders an array of values (or operator objects) as an OR
// chain. Empty arrays are vacuous and produce no condition.
func (c *compilerContext) orChain(path, op string, values []any) (string, error) {
	if len(values) == 0 {
		return "", nil
	}
	var parts []string
	for _, el := range values {
		var part string
		var err error
		if m, ok := el.(map[string]any); ok && containsOperator(m) {
			part, err = c.fieldCondition(path, m)
		} else {
			part, err = c.opCondition(path, op, el)
		}
		if err != nil {
			return "", err
		}
		if part != "" {
			parts = append(parts, part)
		}
	}
	if len(parts) == 1 {
		return parts[0], nil
	}
	return "(" + strings.Join(parts, " OR ") + ")", nil
}

// opCondition renders a single matcher against a field path.
func (c *compilerContext) opCondition(path, op string, value any) (string, error) {
	matcher, ok := operators[op]
	if !ok {
		return "", rerr.NewField(rerr.InvalidWithValue, "unknown operator "+op, path)
	}

	if arr, ok := value.([]any); ok {
		return c.orChain(path, op, arr)
	}

	resolved, err := c.resolve(path, "with", false)
	if err != nil {
		return "", err
	}
	selector := resolved.Selector

	if value == nil {
		switch op {
		case "being":
			return selector + " IS NULL", nil
		case "notBeing":
			return selector + " IS NOT NULL", nil
		}
		return "", rerr.NewField(rerr.InvalidWithValue,
			"a null value only supports being and notBeing", path)
	}

	if expr, isExpr, err := c.expressionValue(value); err != nil {
		return "", err
	} else if isExpr {
		return selector + " " + matcher + " " + expr, nil
	}

	if doc, ok := util.QuerySymbol(value); ok {
		sub, err := c.compileSubSelect(doc)
		if err != nil {
			return "", err
		}
		return selector + " " + matcher + " (" + sub + ")", nil
	}

	switch op {
	case "startingWith", "notStartingWith":
		value = likePattern(value, false, true)
	case "endingWith", "notEndingWith":
		value = likePattern(value, true, false)
	case "containing", "notContaining":
		value = likePattern(value, true, true)
	}

	return selector + " " + matcher + " " + c.bind.prepare(value), nil
}

func likePattern(value any, left, right bool) any {
	s, ok := value.(string)
	if !ok {
		return value
	}
	if left {
		s = "%" + s
	}
	if right {
		s = s + "%"
	}
	return s
}

func containsOperator(m map[string]any) bool {
	for k := range m {
		if isOperator(k) {
			return true
		}
	}
	return false
}

// subContext derives a child context over another model that shares
// the statement's binder; the current model becomes the child's
// parent for field references.
func (c *compilerContext) subContext(m *sdata.Model) *compilerContext {
	child := c.co.newContext(&qcode.Query{}, c.bind)
	child.model = m.Clone()
	child.parent = c.model
	return child
}

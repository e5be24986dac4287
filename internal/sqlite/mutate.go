package sqlite

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/ronin-co/compiler/internal/qcode"
	"github.com/ronin-co/compiler/internal/rerr"
	"github.com/ronin-co/compiler/internal/sdata"
	"github.com/ronin-co/compiler/internal/util"
)

// toEntry is one flattened assignment of the to instruction.
type toEntry struct {
	path  string
	value any
}

func (c *compilerContext) renderInsertQuery() error {
	to := c.q.Instructions.To
	if len(to) == 0 {
		return rerr.New(rerr.MissingInstruction, "an add query requires a to instruction")
	}

	if doc, ok := util.QuerySymbol(any(to)); ok {
		return c.renderInsertFromQuery(doc)
	}

	entries, err := c.flattenTo(to)
	if err != nil {
		return err
	}
	entries = c.injectDefaults(entries, true)

	var cols, vals []string
	for _, entry := range entries {
		resolved, err := c.resolve(entry.path, "to", true)
		if err != nil {
			return err
		}
		f := resolved.Field
		if f.Type == sdata.TypeLink && f.Kind == sdata.KindMany {
			if err := c.associationDeps(f, entry.value, false); err != nil {
				return err
			}
			continue
		}
		fragment, err := c.toValue(f, entry.value)
		if err != nil {
			return err
		}
		cols = append(cols, quote(f.Slug))
		vals = append(vals, fragment)
	}

	c.w.WriteString("INSERT INTO ")
	c.quoted(c.model.Table)
	c.w.WriteString(" (")
	c.w.WriteString(strings.Join(cols, ", "))
	c.w.WriteString(") VALUES (")
	c.w.WriteString(strings.Join(vals, ", "))
	c.w.WriteString(")")
	return c.renderReturning()
}

// renderInsertFromQuery emits INSERT INTO … <sub-select>. An explicit
// selecting instruction on the sub-query names the target columns.
func (c *compilerContext) renderInsertFromQuery(doc map[string]any) error {
	sub, err := qcode.Parse(doc)
	if err != nil {
		return err
	}
	sql, child, err := c.compileChild(sub)
	if err != nil {
		return err
	}

	c.w.WriteString("INSERT INTO ")
	c.quoted(c.model.Table)
	c.w.WriteString(" ")
	if len(sub.Instructions.Selecting) > 0 {
		var cols []string
		for _, sf := range child.selected {
			if !sf.Excluded {
				cols = append(cols, quote(sf.Slug))
			}
		}
		c.w.WriteString("(")
		c.w.WriteString(strings.Join(cols, ", "))
		c.w.WriteString(") ")
	}
	c.w.WriteString(sql)
	return c.renderReturning()
}

func (c *compilerContext) renderUpdateQuery() error {
	to := c.q.Instructions.To
	if len(to) == 0 {
		return rerr.New(rerr.MissingInstruction, "a set query requires a to instruction")
	}

	entries, err := c.flattenTo(to)
	if err != nil {
		return err
	}
	entries = c.injectDefaults(entries, false)

	var assignments []string
	for _, entry := range entries {
		resolved, err := c.resolve(entry.path, "to", true)
		if err != nil {
			return err
		}
		f := resolved.Field
		if f.Type == sdata.TypeLink && f.Kind == sdata.KindMany {
			if err := c.associationDeps(f, entry.value, true); err != nil {
				return err
			}
			continue
		}
		fragment, err := c.toValue(f, entry.value)
		if err != nil {
			return err
		}
		assignments = append(assignments, quote(f.Slug)+" = "+fragment)
	}

	if err := c.resolveOrdering(); err != nil {
		return err
	}
	c.w.WriteString("UPDATE ")
	c.quoted(c.model.Table)
	c.w.WriteString(" SET ")
	c.w.WriteString(strings.Join(assignments, ", "))
	if err := c.renderWhere(); err != nil {
		return err
	}
	c.renderOrderBy()
	if n := c.q.Instructions.LimitedTo; n > 0 {
		c.w.WriteString(" LIMIT ")
		c.w.WriteString(strconv.Itoa(n))
	}
	return c.renderReturning()
}

func (c *compilerContext) renderDeleteQuery() error {
	c.w.WriteString("DELETE FROM ")
	c.quoted(c.model.Table)
	if err := c.renderWhere(); err != nil {
		return err
	}
	return c.renderReturning()
}

// renderReturning appends RETURNING with the model's selected columns
// so writes surface the written records.
func (c *compilerContext) renderReturning() error {
	entries, err := c.matchSelecting()
	if err != nil {
		return err
	}
	var cols []string
	for _, entry := range entries {
		cols = append(cols, quote(entry.field.Slug))
		c.selected = append(c.selected, SelectedField{
			Slug:         entry.field.Slug,
			MountingPath: entry.field.Slug,
			Type:         entry.field.Type,
			Excluded:     entry.excluded,
		})
	}
	c.w.WriteString(" RETURNING ")
	c.w.WriteString(strings.Join(cols, ", "))
	return nil
}

// flattenTo flattens nested to objects into dotted assignments,
// stopping at json, blob and link fields whose values stay whole.
func (c *compilerContext) flattenTo(to map[string]any) ([]toEntry, error) {
	var entries []toEntry
	var walk func(prefix string, value map[string]any) error
	walk = func(prefix string, value map[string]any) error {
		for _, key := range sortedKeys(value) {
			path := key
			if prefix != "" {
				path = prefix + "." + key
			}
			v := value[key]

			if m, ok := v.(map[string]any); ok && !util.IsSymbol(m) {
				if f, ok := c.model.Field(path); ok {
					switch f.Type {
					case sdata.TypeJSON, sdata.TypeBlob, sdata.TypeLink:
						entries = append(entries, toEntry{path: path, value: v})
						continue
					}
				}
				if _, ok := c.model.Field(path); !ok {
					if err := walk(path, m); err != nil {
						return err
					}
					continue
				}
			}
			entries = append(entries, toEntry{path: path, value: v})
		}
		return nil
	}
	if err := walk("", to); err != nil {
		return nil, err
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].path < entries[j].path })
	return entries, nil
}

// injectDefaults adds the system values a write must carry: adds get
// an id and both timestamps, sets refresh the update timestamp.
func (c *compilerContext) injectDefaults(entries []toEntry, insert bool) []toEntry {
	has := func(path string) bool {
		for _, e := range entries {
			if e.path == path {
				return true
			}
		}
		return false
	}

	now := func() any {
		if c.co.conf.InlineDefaults {
			return time.Now().UTC().Format("2006-01-02T15:04:05.000") + "Z"
		}
		return sdata.Expr{Expression: sdata.TimestampDefault}
	}

	if insert {
		if !has("id") {
			var id any
			if c.co.conf.InlineDefaults {
				id = sdata.NewRecordID(c.model.IDPrefix)
			} else {
				id = sdata.Expr{Expression: sdata.IDDefault(c.model.IDPrefix)}
			}
			entries = append(entries, toEntry{path: "id", value: id})
		}
		if !has("ronin.createdAt") {
			entries = append(entries, toEntry{path: "ronin.createdAt", value: now()})
		}
	}
	if !has("ronin.updatedAt") {
		entries = append(entries, toEntry{path: "ronin.updatedAt", value: now()})
	}
	return entries
}

// toValue renders one assignment value.
func (c *compilerContext) toValue(f *sdata.Field, value any) (string, error) {
	if expr, ok := value.(sdata.Expr); ok {
		return expr.Expression, nil
	}
	if expr, isExpr, err := c.expressionValue(value); err != nil {
		return "", err
	} else if isExpr {
		return expr, nil
	}
	if doc, ok := util.QuerySymbol(value); ok {
		sql, err := c.compileSubSelect(doc)
		if err != nil {
			return "", err
		}
		return "(" + sql + ")", nil
	}
	if f.Type == sdata.TypeLink {
		if m, ok := value.(map[string]any); ok {
			return c.linkedRecordSelect(f, m)
		}
	}
	return c.bind.prepare(value), nil
}

// linkedRecordSelect resolves a record-shaped link value to the
// linked record's id.
func (c *compilerContext) linkedRecordSelect(f *sdata.Field, with map[string]any) (string, error) {
	if len(with) == 1 {
		if id, ok := with["id"]; ok {
			if _, isMap := id.(map[string]any); !isMap {
				return c.bind.prepare(id), nil
			}
		}
	}
	target, err := sdata.ModelBySlug(c.co.conf.Models, f.Target)
	if err != nil {
		return "", err
	}
	child := c.subContext(target)
	cond, err := child.conditions(with)
	if err != nil {
		return "", err
	}
	sub := `(SELECT "id" FROM ` + quote(target.Table)
	if cond != "" {
		sub += ` WHERE ` + cond
	}
	sub += ` LIMIT 1)`
	return sub, nil
}

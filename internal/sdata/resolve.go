package sdata

import (
	"strings"

	"github.com/ronin-co/compiler/internal/rerr"
)

// ModelBySlug looks a model up by slug or plural slug.
func ModelBySlug(models []*Model, slug string) (*Model, error) {
	for _, m := range models {
		if m.Slug == slug || m.PluralSlug == slug {
			return m, nil
		}
	}
	return nil, rerr.New(rerr.ModelNotFound, `no matching model with either slug or plural slug "`+slug+`"`)
}

// tablePrefix returns the selector prefix for columns of m: the
// quoted table alias when one is set during compilation of a query,
// or the raw alias when it begins with the parent-field marker (the
// selector then resolves against the enclosing query).
func tablePrefix(m *Model) string {
	if m.TableAlias == "" {
		return ""
	}
	if strings.HasPrefix(m.TableAlias, "__RONIN_FIELD_PARENT") {
		return m.TableAlias + "."
	}
	return `"` + m.TableAlias + `".`
}

// ResolvedField pairs a field definition with the SQL selector that
// reads (or writes) it.
type ResolvedField struct {
	Field    *Field
	Selector string
	// JSONPath is the remainder of a dotted path into a json or blob
	// field, empty otherwise.
	JSONPath string
}

// ResolveField resolves a possibly dotted field path against a model.
// For reading, a dotted path whose first segment names a json or blob
// field produces a json_extract selector; writing sites address the
// plain column instead. source names the instruction asking, for
// error context.
func ResolveField(m *Model, path, source string, writing bool) (ResolvedField, error) {
	prefix := tablePrefix(m)

	// Dotted slugs (ronin.createdAt) take priority over path descent.
	if f, ok := m.Field(path); ok {
		return ResolvedField{Field: f, Selector: prefix + `"` + path + `"`}, nil
	}

	if i := strings.IndexByte(path, '.'); i > 0 {
		head, rest := path[:i], path[i+1:]
		if f, ok := m.Field(head); ok && (f.Type == TypeJSON || f.Type == TypeBlob) {
			if writing {
				return ResolvedField{Field: f, Selector: prefix + `"` + head + `"`, JSONPath: rest}, nil
			}
			selector := `json_extract(` + prefix + head + `, '$.` + rest + `')`
			return ResolvedField{Field: f, Selector: selector, JSONPath: rest}, nil
		}
	}

	err := rerr.NewField(rerr.FieldNotFound,
		`field "`+path+`" defined for `+source+` does not exist in model "`+m.Name+`"`, path)
	return ResolvedField{}, err
}

// IdentifierField maps the nameIdentifier / slugIdentifier tokens to
// the model's configured identifier fields; any other slug passes
// through unchanged.
func IdentifierField(m *Model, slug string) string {
	switch slug {
	case "nameIdentifier":
		return m.Identifiers.Name
	case "slugIdentifier":
		return m.Identifiers.Slug
	}
	return slug
}

// ColumnFields returns the fields of m that materialize as table
// columns, in order. Many-cardinality links live in association
// tables and are skipped.
func ColumnFields(m *Model) []Field {
	out := make([]Field, 0, len(m.Fields))
	for _, f := range m.Fields {
		if f.Type == TypeLink && f.Kind == KindMany {
			continue
		}
		out = append(out, f)
	}
	return out
}

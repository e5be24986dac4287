package sqlite

import (
	"strings"

	"github.com/gobuffalo/flect"

	"github.com/ronin-co/compiler/internal/qcode"
	"github.com/ronin-co/compiler/internal/sdata"
)

// Native DDL rendering for the meta-query transformer. DDL cannot
// carry placeholders, so every embedded value is inlined.

func typeSQL(f *sdata.Field) string {
	switch f.Type {
	case sdata.TypeString, sdata.TypeLink:
		return "TEXT"
	case sdata.TypeNumber:
		return "INTEGER"
	case sdata.TypeBoolean:
		return "BOOLEAN"
	case sdata.TypeDate:
		return "DATETIME"
	case sdata.TypeJSON, sdata.TypeBlob:
		return "TEXT"
	}
	return "TEXT"
}

// ColumnDef renders one column definition. models resolves link
// targets and must include the model under construction, so links
// may point at their own model.
func ColumnDef(f *sdata.Field, models []*sdata.Model) string {
	var b strings.Builder
	b.WriteString(quote(f.Slug))
	b.WriteString(" ")

	if f.Type == sdata.TypeNumber && f.Increment {
		// AUTOINCREMENT requires the integer primary key; a model can
		// carry at most one increment field.
		b.WriteString("INTEGER PRIMARY KEY AUTOINCREMENT")
	} else {
		b.WriteString(typeSQL(f))
	}

	if f.Slug == "id" {
		b.WriteString(" PRIMARY KEY")
	}
	if f.Required {
		b.WriteString(" NOT NULL")
	}
	if f.Unique {
		b.WriteString(" UNIQUE")
	}
	if f.DefaultValue != nil {
		b.WriteString(" DEFAULT ")
		if expr, ok := f.DefaultValue.(sdata.Expr); ok {
			b.WriteString("(")
			b.WriteString(expr.Expression)
			b.WriteString(")")
		} else {
			b.WriteString(inlineLiteral(normalizeDefault(f.DefaultValue)))
		}
	}
	if f.Check != "" {
		b.WriteString(" CHECK (")
		b.WriteString(f.Check)
		b.WriteString(")")
	}
	if f.Computed != nil {
		b.WriteString(" GENERATED ALWAYS AS (")
		b.WriteString(f.Computed.Expression)
		b.WriteString(") ")
		b.WriteString(f.Computed.Kind)
	}
	if f.Collation != "" {
		b.WriteString(" COLLATE ")
		b.WriteString(f.Collation)
	}
	if f.Type == sdata.TypeLink && f.Kind != sdata.KindMany {
		if target := findModel(models, f.Target); target != nil {
			b.WriteString(" REFERENCES ")
			b.WriteString(quote(target.Table))
			b.WriteString(`("id")`)
			if f.Actions != nil {
				if f.Actions.OnDelete != "" {
					b.WriteString(" ON DELETE ")
					b.WriteString(strings.ToUpper(f.Actions.OnDelete))
				}
				if f.Actions.OnUpdate != "" {
					b.WriteString(" ON UPDATE ")
					b.WriteString(strings.ToUpper(f.Actions.OnUpdate))
				}
			}
		}
	}
	return b.String()
}

func normalizeDefault(value any) any {
	switch v := value.(type) {
	case bool:
		if v {
			return 1
		}
		return 0
	}
	return value
}

func findModel(models []*sdata.Model, slug string) *sdata.Model {
	for _, m := range models {
		if m.Slug == slug || m.PluralSlug == slug {
			return m
		}
	}
	return nil
}

// CreateTableStatement renders the CREATE TABLE for a model.
func CreateTableStatement(m *sdata.Model, models []*sdata.Model) string {
	fields := sdata.ColumnFields(m)
	cols := make([]string, 0, len(fields))
	for i := range fields {
		cols = append(cols, ColumnDef(&fields[i], append(models, m)))
	}
	return "CREATE TABLE " + quote(m.Table) + " (" + strings.Join(cols, ", ") + ")"
}

// DropTableStatement renders the DROP TABLE for a model.
func DropTableStatement(m *sdata.Model) string {
	return "DROP TABLE " + quote(m.Table)
}

// RenameTableStatement renders a table rename.
func RenameTableStatement(oldTable, newTable string) string {
	return "ALTER TABLE " + quote(oldTable) + " RENAME TO " + quote(newTable)
}

// AddColumnStatement renders an ALTER TABLE … ADD COLUMN.
func AddColumnStatement(table string, f *sdata.Field, models []*sdata.Model) string {
	return "ALTER TABLE " + quote(table) + " ADD COLUMN " + ColumnDef(f, models)
}

// DropColumnStatement renders an ALTER TABLE … DROP COLUMN.
func DropColumnStatement(table, column string) string {
	return "ALTER TABLE " + quote(table) + " DROP COLUMN " + quote(column)
}

// RenameColumnStatement renders an ALTER TABLE … RENAME COLUMN.
func RenameColumnStatement(table, oldColumn, newColumn string) string {
	return "ALTER TABLE " + quote(table) + " RENAME COLUMN " + quote(oldColumn) + " TO " + quote(newColumn)
}

// IndexName derives the SQL index name from its slug.
func IndexName(slug string) string {
	return flect.Underscore(slug)
}

// CreateIndexStatement renders a CREATE INDEX over a model. Partial
// index filters inline their values, DDL being placeholder-free.
func (co *Compiler) CreateIndexStatement(m *sdata.Model, idx *sdata.Index) (string, error) {
	var b strings.Builder
	b.WriteString("CREATE ")
	if idx.Unique {
		b.WriteString("UNIQUE ")
	}
	b.WriteString("INDEX ")
	b.WriteString(quote(IndexName(idx.Slug)))
	b.WriteString(" ON ")
	b.WriteString(quote(m.Table))
	b.WriteString(" (")

	c := co.newContext(&qcode.Query{}, newBinder(true))
	c.model = m.Clone()

	for i, field := range idx.Fields {
		if i != 0 {
			b.WriteString(", ")
		}
		if field.Expression != "" {
			expr, err := c.replaceFieldRefs(field.Expression)
			if err != nil {
				return "", err
			}
			b.WriteString("(")
			b.WriteString(expr)
			b.WriteString(")")
		} else {
			resolved, err := c.resolve(field.Slug, "indexes", false)
			if err != nil {
				return "", err
			}
			b.WriteString(resolved.Selector)
		}
		if field.Collation != "" {
			b.WriteString(" COLLATE ")
			b.WriteString(field.Collation)
		}
		if field.Order != "" {
			b.WriteString(" ")
			b.WriteString(strings.ToUpper(field.Order))
		}
	}
	b.WriteString(")")

	if idx.Filter != nil {
		cond, err := c.conditions(idx.Filter)
		if err != nil {
			return "", err
		}
		if cond != "" {
			b.WriteString(" WHERE ")
			b.WriteString(cond)
		}
	}
	return b.String(), nil
}

// DropIndexStatement renders a DROP INDEX.
func DropIndexStatement(slug string) string {
	return "DROP INDEX " + quote(IndexName(slug))
}

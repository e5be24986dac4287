// Package sdata holds the schema data the compiler operates on:
// models, fields, indexes and presets, plus slug derivation, system
// fields and field-to-selector resolution.
package sdata

import (
	"strings"

	"github.com/gobuffalo/flect"
	"github.com/google/uuid"

	"github.com/ronin-co/compiler/internal/rerr"
)

// FieldType tags a field definition.
type FieldType string

const (
	TypeString  FieldType = "string"
	TypeNumber  FieldType = "number"
	TypeBoolean FieldType = "boolean"
	TypeDate    FieldType = "date"
	TypeJSON    FieldType = "json"
	TypeBlob    FieldType = "blob"
	TypeLink    FieldType = "link"
)

// Link cardinalities.
const (
	KindOne  = "one"
	KindMany = "many"
)

// Expr marks a value that must be emitted as a raw SQL expression
// rather than a bound literal. It is the typed form of the
// __RONIN_EXPRESSION document marker.
type Expr struct {
	Expression string
}

// ComputedAs describes a generated column.
type ComputedAs struct {
	Kind       string // VIRTUAL or STORED
	Expression string
}

// LinkActions carries referential actions for link fields.
type LinkActions struct {
	OnDelete string
	OnUpdate string
}

// Field describes one field of a model. The zero Kind of a link field
// means one-cardinality.
type Field struct {
	Slug         string
	Name         string
	Type         FieldType
	Unique       bool
	Required     bool
	DefaultValue any
	Computed     *ComputedAs
	Check        string
	System       bool

	// string fields
	Collation string // BINARY, NOCASE or RTRIM

	// number fields
	Increment bool

	// link fields
	Target  string
	Kind    string
	Actions *LinkActions
}

// IndexField is one entry of an index: either a plain field slug or a
// raw expression.
type IndexField struct {
	Slug       string
	Expression string
	Order      string // ASC or DESC
	Collation  string
}

// Index describes a table index.
type Index struct {
	Slug   string
	Fields []IndexField
	Unique bool
	// Filter is a with-shaped clause turning the index partial.
	Filter map[string]any
}

// Preset is a reusable bundle of query instructions applied via the
// using instruction.
type Preset struct {
	Slug         string
	Instructions map[string]any
}

// SystemInfo marks auto-generated models.
type SystemInfo struct {
	// Model is the id of the owning model, or "root".
	Model string
	// AssociationSlug is the owning link field's slug for association
	// models.
	AssociationSlug string
}

// Identifiers names the fields to use when a query addresses a record
// by its human or URL identifier.
type Identifiers struct {
	Name string
	Slug string
}

// Model is the immutable-after-compile description of a record type.
// Fields keep definition order; the five system fields always sit at
// the head.
type Model struct {
	ID          string
	Slug        string
	PluralSlug  string
	Name        string
	PluralName  string
	IDPrefix    string
	Table       string
	TableAlias  string
	Identifiers Identifiers
	Fields      []Field
	Indexes     []Index
	Presets     []Preset
	System      *SystemInfo
}

// Field returns the field with the given slug.
func (m *Model) Field(slug string) (*Field, bool) {
	for i := range m.Fields {
		if m.Fields[i].Slug == slug {
			return &m.Fields[i], true
		}
	}
	return nil, false
}

// Index returns the index with the given slug.
func (m *Model) Index(slug string) (*Index, bool) {
	for i := range m.Indexes {
		if m.Indexes[i].Slug == slug {
			return &m.Indexes[i], true
		}
	}
	return nil, false
}

// Preset returns the preset with the given slug.
func (m *Model) Preset(slug string) (*Preset, bool) {
	for i := range m.Presets {
		if m.Presets[i].Slug == slug {
			return &m.Presets[i], true
		}
	}
	return nil, false
}

// SlugToName splits a slug on camel-case boundaries and separators
// and sentence-cases the result: "memberAmount" becomes "Member amount".
func SlugToName(slug string) string {
	return flect.Humanize(flect.Underscore(slug))
}

// NewRecordID produces a record id of the form <prefix>_<16 hex>.
func NewRecordID(prefix string) string {
	hex := strings.ReplaceAll(uuid.NewString(), "-", "")
	return prefix + "_" + hex[:16]
}

// Normalize fills the derivable attributes of a model definition and
// injects the system fields. It is applied to every externally
// supplied model and to every model created by a meta query.
func Normalize(m *Model) error {
	if m.Slug == "" {
		return rerr.NewField(rerr.InvalidModelValue, "a model definition requires a slug", "slug")
	}
	if m.ID == "" {
		m.ID = NewRecordID("mod")
	}
	if m.PluralSlug == "" {
		m.PluralSlug = flect.Camelize(flect.Pluralize(m.Slug))
	}
	if m.Name == "" {
		m.Name = SlugToName(m.Slug)
	}
	if m.PluralName == "" {
		m.PluralName = SlugToName(m.PluralSlug)
	}
	if m.IDPrefix == "" {
		prefix := strings.ToLower(m.Slug)
		if len(prefix) > 3 {
			prefix = prefix[:3]
		}
		m.IDPrefix = prefix
	}
	if m.Table == "" {
		m.Table = flect.Underscore(m.PluralSlug)
	}

	for i := range m.Fields {
		f := &m.Fields[i]
		if f.Slug == "" {
			return rerr.NewField(rerr.InvalidModelValue, "a field definition requires a slug", "fields")
		}
		if f.Name == "" {
			f.Name = SlugToName(f.Slug)
		}
		if f.Type == TypeLink && f.Kind == "" {
			f.Kind = KindOne
		}
		if f.Type == TypeJSON {
			if _, ok := f.DefaultValue.(Expr); !ok && f.DefaultValue != nil {
				switch f.DefaultValue.(type) {
				case map[string]any, []any:
				default:
					return rerr.NewField(rerr.InvalidModelValue,
						"the default value of a JSON field must be an object", "fields")
				}
			}
		}
	}

	injectSystemFields(m)

	if m.Identifiers.Name == "" {
		m.Identifiers.Name = defaultIdentifier(m)
	}
	if m.Identifiers.Slug == "" {
		if f, ok := m.Field("slug"); ok && f.Type == TypeString {
			m.Identifiers.Slug = "slug"
		} else {
			m.Identifiers.Slug = "id"
		}
	}
	return nil
}

// defaultIdentifier picks the first user-defined string field that is
// both unique and required, falling back to id.
func defaultIdentifier(m *Model) string {
	for i := range m.Fields {
		f := &m.Fields[i]
		if f.System {
			continue
		}
		if f.Type == TypeString && f.Unique && f.Required {
			return f.Slug
		}
	}
	return "id"
}

// Clone returns a copy of the model with its own field, index and preset
// slices and system info; values referenced from inside them (link
// actions, computed definitions, default values, index filters, preset
// instructions) are shared with the original. Compilation sets transient
// attributes (TableAlias) on copies, never on caller-owned models.
func (m *Model) Clone() *Model {
	out := *m
	out.Fields = append([]Field(nil), m.Fields...)
	out.Indexes = make([]Index, len(m.Indexes))
	for i, idx := range m.Indexes {
		out.Indexes[i] = idx
		out.Indexes[i].Fields = append([]IndexField(nil), idx.Fields...)
	}
	out.Presets = append([]Preset(nil), m.Presets...)
	if m.System != nil {
		sys := *m.System
		out.System = &sys
	}
	return &out
}

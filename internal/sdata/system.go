package sdata

import "github.com/gobuffalo/flect"

// The id column default and the timestamp default are part of the
// wire contract and must be emitted byte for byte.
const (
	// TimestampDefault yields ISO-8601 with a literal Z suffix.
	TimestampDefault = `strftime('%Y-%m-%dT%H:%M:%f', 'now') || 'Z'`

	// RootModelSlug is the slug of the self-describing model whose
	// table holds one row per user-defined model.
	RootModelSlug = "roninModel"

	// SchemaTable is the physical table behind the root model.
	SchemaTable = "ronin_schema"
)

// IDDefault returns the SQL default expression for the id column of a
// model with the given prefix.
func IDDefault(idPrefix string) string {
	return `'` + idPrefix + `_' || lower(substr(hex(randomblob(12)), 1, 16))`
}

// SystemFields returns the five fields every model carries, in their
// stable order.
func SystemFields(idPrefix string) []Field {
	return []Field{
		{
			Slug:         "id",
			Name:         "ID",
			Type:         TypeString,
			System:       true,
			DefaultValue: Expr{Expression: IDDefault(idPrefix)},
		},
		{
			Slug:         "ronin.createdAt",
			Name:         "Created at",
			Type:         TypeDate,
			System:       true,
			DefaultValue: Expr{Expression: TimestampDefault},
		},
		{
			Slug:   "ronin.createdBy",
			Name:   "Created by",
			Type:   TypeString,
			System: true,
		},
		{
			Slug:         "ronin.updatedAt",
			Name:         "Updated at",
			Type:         TypeDate,
			System:       true,
			DefaultValue: Expr{Expression: TimestampDefault},
		},
		{
			Slug:   "ronin.updatedBy",
			Name:   "Updated by",
			Type:   TypeString,
			System: true,
		},
	}
}

// injectSystemFields merges the system fields at the head of the
// model's field list, replacing any same-slug leftovers further down.
func injectSystemFields(m *Model) {
	system := SystemFields(m.IDPrefix)
	rest := make([]Field, 0, len(m.Fields))
	for _, f := range m.Fields {
		reserved := false
		for _, s := range system {
			if s.Slug == f.Slug {
				reserved = true
				break
			}
		}
		if !reserved {
			rest = append(rest, f)
		}
	}
	m.Fields = append(system, rest...)
}

// RootModel returns the self-describing model backing ronin_schema.
// Its DDL is emitted directly; no row in ronin_schema describes it.
func RootModel() *Model {
	m := &Model{
		ID:       "mod_root",
		Slug:     RootModelSlug,
		Table:    SchemaTable,
		IDPrefix: "mod",
		System:   &SystemInfo{Model: "root"},
		Fields: []Field{
			{Slug: "name", Type: TypeString},
			{Slug: "pluralName", Type: TypeString},
			{Slug: "slug", Type: TypeString},
			{Slug: "pluralSlug", Type: TypeString},
			{Slug: "idPrefix", Type: TypeString},
			{Slug: "table", Type: TypeString},
			{Slug: "identifiers.name", Type: TypeString},
			{Slug: "identifiers.slug", Type: TypeString},
			{Slug: "fields", Type: TypeJSON, DefaultValue: Expr{Expression: `'{}'`}},
			{Slug: "indexes", Type: TypeJSON, DefaultValue: Expr{Expression: `'{}'`}},
			{Slug: "presets", Type: TypeJSON, DefaultValue: Expr{Expression: `'{}'`}},
		},
	}
	// Normalize cannot fail here: the slug is set.
	_ = Normalize(m)
	return m
}

// AssociationSlug derives the hidden model slug backing a
// many-cardinality link field: roninLink<Owner><Field>.
func AssociationSlug(ownerSlug, fieldSlug string) string {
	return flect.Camelize("ronin_link_" + flect.Underscore(ownerSlug) + "_" + flect.Underscore(fieldSlug))
}

// AssociationTable derives the physical table name of an association
// model: ronin_link_<owner>_<field>.
func AssociationTable(ownerSlug, fieldSlug string) string {
	return "ronin_link_" + flect.Underscore(ownerSlug) + "_" + flect.Underscore(fieldSlug)
}

// AssociationModel builds the hidden model for one many-cardinality
// link field of owner.
func AssociationModel(owner *Model, field *Field) *Model {
	cascade := &LinkActions{OnDelete: "CASCADE", OnUpdate: "CASCADE"}
	m := &Model{
		Slug:  AssociationSlug(owner.Slug, field.Slug),
		Table: AssociationTable(owner.Slug, field.Slug),
		System: &SystemInfo{
			Model:           owner.ID,
			AssociationSlug: field.Slug,
		},
		Fields: []Field{
			{Slug: "source", Type: TypeLink, Target: owner.Slug, Kind: KindOne, Actions: cascade},
			{Slug: "target", Type: TypeLink, Target: field.Target, Kind: KindOne, Actions: cascade},
		},
	}
	_ = Normalize(m)
	return m
}

// AssociationModels returns the hidden models required by every
// many-cardinality link field of m, in field order.
func AssociationModels(m *Model) []*Model {
	var out []*Model
	for i := range m.Fields {
		f := &m.Fields[i]
		if f.Type == TypeLink && f.Kind == KindMany {
			out = append(out, AssociationModel(m, f))
		}
	}
	return out
}

package compiler

import "github.com/ronin-co/compiler/internal/sdata"

// The schema types are defined in the internal schema-data package
// and aliased here so callers can construct them directly.
type (
	// Model describes one record type.
	Model = sdata.Model
	// Field describes one field of a model.
	Field = sdata.Field
	// Index describes a table index.
	Index = sdata.Index
	// IndexField is one entry of an index.
	IndexField = sdata.IndexField
	// Preset is a reusable bundle of query instructions.
	Preset = sdata.Preset
	// Identifiers names a model's human and URL identifier fields.
	Identifiers = sdata.Identifiers
	// LinkActions carries the referential actions of a link field.
	LinkActions = sdata.LinkActions
	// ComputedAs describes a generated column.
	ComputedAs = sdata.ComputedAs
	// Expr marks a raw SQL expression value.
	Expr = sdata.Expr
	// FieldType tags a field definition.
	FieldType = sdata.FieldType
)

// The field types.
const (
	TypeString  = sdata.TypeString
	TypeNumber  = sdata.TypeNumber
	TypeBoolean = sdata.TypeBoolean
	TypeDate    = sdata.TypeDate
	TypeJSON    = sdata.TypeJSON
	TypeBlob    = sdata.TypeBlob
	TypeLink    = sdata.TypeLink
)

// Link cardinalities.
const (
	KindOne  = sdata.KindOne
	KindMany = sdata.KindMany
)

package sdata

import (
	"sort"

	"github.com/mitchellh/mapstructure"

	"github.com/ronin-co/compiler/internal/rerr"
	"github.com/ronin-co/compiler/internal/util"
)

// Model definitions arrive either as typed structs or in document
// form (the map shape a create.model query carries). Document-form
// decoding goes through mapstructure, the way the teacher decodes its
// configuration documents.

type fieldDoc struct {
	Slug         string
	Name         string
	Type         string
	Unique       bool
	Required     bool
	DefaultValue any
	Check        any
	ComputedAs   *struct {
		Kind  string
		Value any
	}
	Collation string
	Increment bool
	Target    string
	Kind      string
	Actions   *struct {
		OnDelete string
		OnUpdate string
	}
	System bool
}

type indexFieldDoc struct {
	Slug       string
	Expression string
	Order      string
	Collation  string
}

type indexDoc struct {
	Slug   string
	Fields []indexFieldDoc
	Unique bool
	Filter map[string]any
}

type presetDoc struct {
	Slug         string
	Instructions map[string]any
}

type modelDoc struct {
	ID          string
	Slug        string
	PluralSlug  string
	Name        string
	PluralName  string
	IDPrefix    string
	Table       string
	Identifiers struct {
		Name string
		Slug string
	}
	Fields  any
	Indexes any
	Presets any
	System  *struct {
		Model           string
		AssociationSlug string
	}
}

func decode(in, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{Result: out})
	if err != nil {
		return err
	}
	return dec.Decode(in)
}

// DecodeModel turns a model definition of any accepted shape into a
// normalized *Model.
func DecodeModel(value any) (*Model, error) {
	switch v := value.(type) {
	case *Model:
		m := v.Clone()
		if err := Normalize(m); err != nil {
			return nil, err
		}
		return m, nil
	case Model:
		m := v.Clone()
		if err := Normalize(m); err != nil {
			return nil, err
		}
		return m, nil
	case map[string]any:
		return decodeModelDoc(v)
	}
	return nil, rerr.New(rerr.InvalidModelValue, "a model definition must be an object")
}

func decodeModelDoc(doc map[string]any) (*Model, error) {
	var md modelDoc
	if err := decode(doc, &md); err != nil {
		return nil, rerr.New(rerr.InvalidModelValue, err.Error())
	}

	m := &Model{
		ID:         md.ID,
		Slug:       md.Slug,
		PluralSlug: md.PluralSlug,
		Name:       md.Name,
		PluralName: md.PluralName,
		IDPrefix:   md.IDPrefix,
		Table:      md.Table,
		Identifiers: Identifiers{
			Name: md.Identifiers.Name,
			Slug: md.Identifiers.Slug,
		},
	}
	if md.System != nil {
		m.System = &SystemInfo{Model: md.System.Model, AssociationSlug: md.System.AssociationSlug}
	}

	fields, err := decodeFields(md.Fields)
	if err != nil {
		return nil, err
	}
	m.Fields = fields

	indexes, err := decodeIndexes(md.Indexes)
	if err != nil {
		return nil, err
	}
	m.Indexes = indexes

	presets, err := decodePresets(md.Presets)
	if err != nil {
		return nil, err
	}
	m.Presets = presets

	if err := Normalize(m); err != nil {
		return nil, err
	}
	return m, nil
}

// DecodeField turns a single field definition in document form into a
// Field.
func DecodeField(slug string, value any) (Field, error) {
	var fd fieldDoc
	if err := decode(value, &fd); err != nil {
		return Field{}, rerr.NewField(rerr.InvalidModelValue, err.Error(), "fields")
	}
	if fd.Slug == "" {
		fd.Slug = slug
	}
	f := Field{
		Slug:         fd.Slug,
		Name:         fd.Name,
		Type:         FieldType(fd.Type),
		Unique:       fd.Unique,
		Required:     fd.Required,
		DefaultValue: normalizeValue(fd.DefaultValue),
		Collation:    fd.Collation,
		Increment:    fd.Increment,
		Target:       fd.Target,
		Kind:         fd.Kind,
		System:       fd.System,
	}
	if expr, ok := util.ExpressionSymbol(fd.Check); ok {
		f.Check = expr
	} else if s, ok := fd.Check.(string); ok {
		f.Check = s
	}
	if fd.ComputedAs != nil {
		c := &ComputedAs{Kind: fd.ComputedAs.Kind}
		if expr, ok := util.ExpressionSymbol(fd.ComputedAs.Value); ok {
			c.Expression = expr
		} else if s, ok := fd.ComputedAs.Value.(string); ok {
			c.Expression = s
		}
		f.Computed = c
	}
	if fd.Actions != nil {
		f.Actions = &LinkActions{OnDelete: fd.Actions.OnDelete, OnUpdate: fd.Actions.OnUpdate}
	}
	return f, nil
}

func decodeFields(value any) ([]Field, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case map[string]any:
		// Map form loses definition order; normalize to sorted slugs
		// so DDL output stays deterministic.
		slugs := make([]string, 0, len(v))
		for slug := range v {
			slugs = append(slugs, slug)
		}
		sort.Strings(slugs)
		out := make([]Field, 0, len(slugs))
		for _, slug := range slugs {
			f, err := DecodeField(slug, v[slug])
			if err != nil {
				return nil, err
			}
			out = append(out, f)
		}
		return out, nil
	case []any:
		out := make([]Field, 0, len(v))
		for _, el := range v {
			f, err := DecodeField("", el)
			if err != nil {
				return nil, err
			}
			out = append(out, f)
		}
		return out, nil
	}
	return nil, rerr.NewField(rerr.InvalidModelValue, "fields must be a mapping of slugs to definitions", "fields")
}

// DecodeIndex turns a single index definition in document form into
// an Index.
func DecodeIndex(slug string, value any) (Index, error) {
	var id indexDoc
	if err := decode(value, &id); err != nil {
		return Index{}, rerr.NewField(rerr.InvalidModelValue, err.Error(), "indexes")
	}
	if id.Slug == "" {
		id.Slug = slug
	}
	idx := Index{Slug: id.Slug, Unique: id.Unique, Filter: id.Filter}
	for _, f := range id.Fields {
		idx.Fields = append(idx.Fields, IndexField(f))
	}
	if len(idx.Fields) == 0 {
		return Index{}, rerr.NewField(rerr.InvalidModelValue,
			"an index requires a non-empty list of fields", "indexes")
	}
	return idx, nil
}

func decodeIndexes(value any) ([]Index, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case map[string]any:
		slugs := make([]string, 0, len(v))
		for slug := range v {
			slugs = append(slugs, slug)
		}
		sort.Strings(slugs)
		out := make([]Index, 0, len(slugs))
		for _, slug := range slugs {
			idx, err := DecodeIndex(slug, v[slug])
			if err != nil {
				return nil, err
			}
			out = append(out, idx)
		}
		return out, nil
	}
	return nil, rerr.NewField(rerr.InvalidModelValue, "indexes must be a mapping of slugs to definitions", "indexes")
}

// DecodePreset turns a single preset definition in document form into
// a Preset.
func DecodePreset(slug string, value any) (Preset, error) {
	var pd presetDoc
	if err := decode(value, &pd); err != nil {
		return Preset{}, rerr.NewField(rerr.InvalidModelValue, err.Error(), "presets")
	}
	if pd.Slug == "" {
		pd.Slug = slug
	}
	if pd.Instructions == nil {
		// A bare instruction bag is accepted in place of the wrapper.
		if m, ok := value.(map[string]any); ok {
			pd.Instructions = m
		}
	}
	return Preset{Slug: pd.Slug, Instructions: pd.Instructions}, nil
}

func decodePresets(value any) ([]Preset, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case map[string]any:
		slugs := make([]string, 0, len(v))
		for slug := range v {
			slugs = append(slugs, slug)
		}
		sort.Strings(slugs)
		out := make([]Preset, 0, len(slugs))
		for _, slug := range slugs {
			p, err := DecodePreset(slug, v[slug])
			if err != nil {
				return nil, err
			}
			out = append(out, p)
		}
		return out, nil
	}
	return nil, rerr.NewField(rerr.InvalidModelValue, "presets must be a mapping of slugs to definitions", "presets")
}

// normalizeValue converts expression markers inside a document value
// into their typed form.
func normalizeValue(value any) any {
	if expr, ok := util.ExpressionSymbol(value); ok {
		return Expr{Expression: expr}
	}
	return value
}

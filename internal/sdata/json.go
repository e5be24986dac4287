package sdata

import (
	"bytes"
	"encoding/json"

	"github.com/ronin-co/compiler/internal/util"
)

// The fields/indexes/presets columns of ronin_schema hold JSON
// objects keyed by slug. Serialization preserves definition order so
// that repeated compiles of the same schema produce identical rows.

// MarshalJSON emits the document form of a raw expression.
func (e Expr) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]string{util.SymbolExpression: e.Expression})
}

type jsonObject struct {
	buf   bytes.Buffer
	count int
}

func (o *jsonObject) key(k string) {
	if o.count == 0 {
		o.buf.WriteByte('{')
	} else {
		o.buf.WriteByte(',')
	}
	o.count++
	b, _ := json.Marshal(k)
	o.buf.Write(b)
	o.buf.WriteByte(':')
}

func (o *jsonObject) value(k string, v any) {
	o.key(k)
	b, err := json.Marshal(v)
	if err != nil {
		o.buf.WriteString("null")
		return
	}
	o.buf.Write(b)
}

func (o *jsonObject) raw(k, v string) {
	o.key(k)
	o.buf.WriteString(v)
}

func (o *jsonObject) String() string {
	if o.count == 0 {
		return "{}"
	}
	return o.buf.String() + "}"
}

// FieldJSON serializes one field definition the way it is stored in
// the fields column.
func FieldJSON(f *Field) string {
	o := &jsonObject{}
	o.value("name", f.Name)
	o.value("type", string(f.Type))
	if f.Unique {
		o.value("unique", true)
	}
	if f.Required {
		o.value("required", true)
	}
	if f.DefaultValue != nil {
		o.value("defaultValue", f.DefaultValue)
	}
	if f.Computed != nil {
		c := &jsonObject{}
		c.value("kind", f.Computed.Kind)
		c.value("value", Expr{Expression: f.Computed.Expression})
		o.raw("computedAs", c.String())
	}
	if f.Check != "" {
		o.value("check", Expr{Expression: f.Check})
	}
	if f.Collation != "" {
		o.value("collation", f.Collation)
	}
	if f.Increment {
		o.value("increment", true)
	}
	if f.Type == TypeLink {
		o.value("target", f.Target)
		o.value("kind", f.Kind)
		if f.Actions != nil {
			a := &jsonObject{}
			if f.Actions.OnDelete != "" {
				a.value("onDelete", f.Actions.OnDelete)
			}
			if f.Actions.OnUpdate != "" {
				a.value("onUpdate", f.Actions.OnUpdate)
			}
			o.raw("actions", a.String())
		}
	}
	if f.System {
		o.value("system", true)
	}
	return o.String()
}

// FieldsJSON serializes the full fields mapping of a model.
func FieldsJSON(m *Model) string {
	o := &jsonObject{}
	// Association-backed fields keep their definition in the mapping;
	// they simply have no column.
	for i := range m.Fields {
		f := &m.Fields[i]
		o.raw(f.Slug, FieldJSON(f))
	}
	return o.String()
}

// IndexJSON serializes one index definition.
func IndexJSON(idx *Index) string {
	o := &jsonObject{}
	fields := make([]any, 0, len(idx.Fields))
	for _, f := range idx.Fields {
		e := map[string]any{}
		if f.Expression != "" {
			e["expression"] = f.Expression
		} else {
			e["slug"] = f.Slug
		}
		if f.Order != "" {
			e["order"] = f.Order
		}
		if f.Collation != "" {
			e["collation"] = f.Collation
		}
		fields = append(fields, e)
	}
	o.value("fields", fields)
	if idx.Unique {
		o.value("unique", true)
	}
	if idx.Filter != nil {
		o.value("filter", idx.Filter)
	}
	return o.String()
}

// IndexesJSON serializes the indexes mapping of a model.
func IndexesJSON(m *Model) string {
	o := &jsonObject{}
	for i := range m.Indexes {
		o.raw(m.Indexes[i].Slug, IndexJSON(&m.Indexes[i]))
	}
	return o.String()
}

// PresetJSON serializes one preset definition.
func PresetJSON(p *Preset) string {
	o := &jsonObject{}
	o.value("instructions", p.Instructions)
	return o.String()
}

// PresetsJSON serializes the presets mapping of a model.
func PresetsJSON(m *Model) string {
	o := &jsonObject{}
	for i := range m.Presets {
		o.raw(m.Presets[i].Slug, PresetJSON(&m.Presets[i]))
	}
	return o.String()
}

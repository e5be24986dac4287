package qcode

import (
	"github.com/ronin-co/compiler/internal/rerr"
	"github.com/ronin-co/compiler/internal/sdata"
)

// ExpandAll turns a get/count over the pseudo-model all into one
// query per concrete model. When For names a model, expansion is
// restricted to the targets of that model's link fields; per-model
// instruction overrides arrive under On, keyed by plural slug.
func ExpandAll(q *Query, models []*sdata.Model) ([]*Query, error) {
	if q.All == nil {
		return []*Query{q}, nil
	}

	candidates := models
	if q.All.For != "" {
		source, err := sdata.ModelBySlug(models, q.All.For)
		if err != nil {
			return nil, rerr.NewField(rerr.InvalidForValue,
				`the for instruction must name an existing model`, q.All.For)
		}
		var linked []*sdata.Model
		for i := range source.Fields {
			f := &source.Fields[i]
			if f.Type != sdata.TypeLink {
				continue
			}
			target, err := sdata.ModelBySlug(models, f.Target)
			if err != nil {
				continue
			}
			linked = append(linked, target)
		}
		candidates = linked
	}

	var out []*Query
	for _, m := range candidates {
		if m.System != nil {
			continue
		}
		raw := map[string]any{}
		for k, v := range q.All.Rest {
			raw[k] = v
		}
		if override, ok := q.All.On[m.PluralSlug]; ok {
			for k, v := range override {
				raw[k] = v
			}
		}
		parsed, err := ParseInstructions(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, &Query{
			Type:            q.Type,
			Model:           m.PluralSlug,
			RawInstructions: raw,
			Instructions:    parsed,
			Doc:             q.Doc,
		})
	}
	return out, nil
}

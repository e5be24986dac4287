package qcode

import (
	"github.com/ronin-co/compiler/internal/rerr"
	"github.com/ronin-co/compiler/internal/sdata"
	"github.com/ronin-co/compiler/internal/util"
)

// ApplyPresets resolves the using instruction against the model's
// presets and merges their instructions into the query, then re-types
// the instruction bag. The preset's instructions form the base; the
// query's own instructions are layered on top (arrays concatenate,
// objects deep-merge, scalars overwrite).
func ApplyPresets(q *Query, m *sdata.Model) error {
	if q.Instructions.Using == nil {
		return nil
	}

	var resolved []map[string]any
	switch using := q.Instructions.Using.(type) {
	case []any:
		for _, el := range using {
			slug, ok := el.(string)
			if !ok {
				return presetNotFound(m, "")
			}
			p, ok := m.Preset(slug)
			if !ok {
				return presetNotFound(m, slug)
			}
			resolved = append(resolved, p.Instructions)
		}
	case map[string]any:
		for slug, value := range using {
			p, ok := m.Preset(slug)
			if !ok {
				return presetNotFound(m, slug)
			}
			instr, _ := util.ReplaceValueToken(p.Instructions, value).(map[string]any)
			resolved = append(resolved, instr)
		}
	default:
		return presetNotFound(m, "")
	}

	merged := map[string]any{}
	for _, instr := range resolved {
		merged = mergeInstructions(merged, instr)
	}
	own := map[string]any{}
	for k, v := range q.RawInstructions {
		if k != "using" {
			own[k] = v
		}
	}
	merged = mergeInstructions(merged, own)
	q.RawInstructions = merged

	parsed, err := ParseInstructions(merged)
	if err != nil {
		return err
	}
	q.Instructions = parsed
	return nil
}

func presetNotFound(m *sdata.Model, slug string) error {
	return rerr.NewField(rerr.PresetNotFound,
		`preset "`+slug+`" does not exist in model "`+m.Name+`"`, slug)
}

// mergeInstructions layers overlay onto base: arrays concatenate,
// objects merge recursively, anything else overwrites.
func mergeInstructions(base, overlay map[string]any) map[string]any {
	out := make(map[string]any, len(base)+len(overlay))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range overlay {
		existing, ok := out[k]
		if !ok {
			out[k] = v
			continue
		}
		switch ev := existing.(type) {
		case []any:
			if ov, ok := v.([]any); ok {
				out[k] = append(append([]any{}, ev...), ov...)
				continue
			}
		case map[string]any:
			if ov, ok := v.(map[string]any); ok {
				out[k] = mergeInstructions(ev, ov)
				continue
			}
		}
		out[k] = v
	}
	return out
}

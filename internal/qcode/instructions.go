package qcode

import (
	"fmt"

	"github.com/ronin-co/compiler/internal/rerr"
	"github.com/ronin-co/compiler/internal/sdata"
)

// ParseInstructions types a raw instruction bag. Unknown instruction
// keys fail early so typos do not silently compile to full scans.
func ParseInstructions(raw map[string]any) (Instructions, error) {
	var in Instructions
	for key, value := range raw {
		switch key {
		case "with":
			in.With = value

		case "to":
			m, ok := value.(map[string]any)
			if !ok || len(m) == 0 {
				return in, rerr.New(rerr.InvalidToValue,
					"the to instruction must be a non-empty object")
			}
			in.To = m

		case "selecting":
			list, ok := value.([]any)
			if !ok {
				return in, rerr.New(rerr.InvalidWithValue,
					"the selecting instruction must be a list of field patterns")
			}
			for _, el := range list {
				s, ok := el.(string)
				if !ok {
					return in, rerr.New(rerr.InvalidWithValue,
						"the selecting instruction must be a list of field patterns")
				}
				in.Selecting = append(in.Selecting, s)
			}

		case "including":
			m, ok := value.(map[string]any)
			if !ok {
				return in, rerr.New(rerr.InvalidIncludingValue,
					"the including instruction must be an object")
			}
			in.Including = m

		case "orderedBy":
			ob, err := parseOrderedBy(value)
			if err != nil {
				return in, err
			}
			in.OrderedBy = ob

		case "limitedTo":
			n, ok := toInt(value)
			if !ok || n <= 0 {
				return in, rerr.New(rerr.InvalidWithValue,
					"the limitedTo instruction must be a positive page size")
			}
			in.LimitedTo = n

		case "before":
			s, _ := value.(string)
			in.Before = s
			in.HasBefore = true

		case "after":
			s, _ := value.(string)
			in.After = s
			in.HasAfter = true

		case "using":
			in.Using = value

		default:
			return in, rerr.New(rerr.InvalidWithValue,
				fmt.Sprintf("unknown instruction %q", key))
		}
	}

	if in.HasBefore && in.HasAfter {
		err := rerr.New(rerr.MutuallyExclusiveInstructions,
			"the before and after instructions cannot be combined")
		err.Fields = []string{"before", "after"}
		return in, err
	}
	return in, nil
}

func parseOrderedBy(value any) (*OrderedBy, error) {
	m, ok := value.(map[string]any)
	if !ok {
		return nil, rerr.New(rerr.InvalidWithValue,
			"the orderedBy instruction must be an object with ascending and/or descending lists")
	}
	ob := &OrderedBy{}
	for key, v := range m {
		list, ok := v.([]any)
		if !ok {
			return nil, rerr.New(rerr.InvalidWithValue,
				"the orderedBy directions must be lists")
		}
		switch key {
		case "ascending":
			ob.Ascending = list
		case "descending":
			ob.Descending = list
		default:
			return nil, rerr.New(rerr.InvalidWithValue,
				fmt.Sprintf("unknown orderedBy direction %q", key))
		}
	}
	return ob, nil
}

func toInt(value any) (int, bool) {
	switch v := value.(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	}
	return 0, false
}

// RewriteIdentifiers replaces the nameIdentifier and slugIdentifier
// tokens in the query's instructions with the model's configured
// identifier fields.
func RewriteIdentifiers(in *Instructions, m *sdata.Model) {
	in.With = rewriteWithIdentifiers(in.With, m)

	for i, s := range in.Selecting {
		in.Selecting[i] = sdata.IdentifierField(m, s)
	}
	if in.OrderedBy != nil {
		rewriteOrderIdentifiers(in.OrderedBy.Ascending, m)
		rewriteOrderIdentifiers(in.OrderedBy.Descending, m)
	}
}

func rewriteOrderIdentifiers(list []any, m *sdata.Model) {
	for i, el := range list {
		if s, ok := el.(string); ok {
			list[i] = sdata.IdentifierField(m, s)
		}
	}
}

func rewriteWithIdentifiers(with any, m *sdata.Model) any {
	switch v := with.(type) {
	case map[string]any:
		out := make(map[string]any, len(v))
		for key, val := range v {
			out[sdata.IdentifierField(m, key)] = val
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, el := range v {
			out[i] = rewriteWithIdentifiers(el, m)
		}
		return out
	}
	return with
}

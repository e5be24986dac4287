package compiler

import (
	"gopkg.in/yaml.v3"

	"github.com/ronin-co/compiler/internal/rerr"
	"github.com/ronin-co/compiler/internal/sdata"
)

// LoadModels parses a YAML (or JSON, which YAML subsumes) document of
// model definitions into normalized models. The document is either a
// list of definitions or an object with a models list:
//
//	models:
//	  - slug: account
//	    fields:
//	      handle: {type: string, unique: true, required: true}
func LoadModels(data []byte) ([]*Model, error) {
	var root any
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, rerr.New(rerr.InvalidModelValue, err.Error())
	}
	root = stringifyKeys(root)

	var docs []any
	switch v := root.(type) {
	case []any:
		docs = v
	case map[string]any:
		list, ok := v["models"].([]any)
		if !ok {
			return nil, rerr.New(rerr.InvalidModelValue,
				"a model document must be a list of definitions or carry a models list")
		}
		docs = list
	default:
		return nil, rerr.New(rerr.InvalidModelValue,
			"a model document must be a list of definitions or carry a models list")
	}

	models := make([]*Model, 0, len(docs))
	for _, doc := range docs {
		m, err := sdata.DecodeModel(doc)
		if err != nil {
			return nil, err
		}
		models = append(models, m)
	}
	return models, nil
}

// stringifyKeys normalizes the map[any]any trees older YAML inputs
// decode into.
func stringifyKeys(value any) any {
	switch v := value.(type) {
	case map[string]any:
		for k, el := range v {
			v[k] = stringifyKeys(el)
		}
		return v
	case map[any]any:
		out := make(map[string]any, len(v))
		for k, el := range v {
			if s, ok := k.(string); ok {
				out[s] = stringifyKeys(el)
			}
		}
		return out
	case []any:
		for i, el := range v {
			v[i] = stringifyKeys(el)
		}
		return v
	}
	return value
}

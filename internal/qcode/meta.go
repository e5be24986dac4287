package qcode

import (
	"github.com/ronin-co/compiler/internal/rerr"
)

// parseMeta types the DDL-shaped query forms:
//
//	create.model: <definition>
//	alter.model: <slug>, to: <partial>
//	alter.model: <slug>, create|alter|drop: {field|index|preset: …}
//	drop.model: <slug>
//	list.models: null | list.model: <slug>
func parseMeta(doc map[string]any, qt QueryType, body any) (*Query, error) {
	m, ok := body.(map[string]any)
	if !ok {
		return nil, badQuery(doc, "a model query must be an object")
	}

	q := &Query{Type: qt, Meta: &Meta{}, Doc: doc}

	switch qt {
	case QTList:
		if _, ok := m["models"]; ok {
			return q, nil
		}
		slug, ok := m["model"].(string)
		if !ok {
			return nil, badQuery(doc, "a list query must address model or models")
		}
		q.Meta.Model = slug
		return q, nil

	case QTCreate:
		def, ok := m["model"]
		if !ok {
			return nil, badQuery(doc, "a create query must carry a model definition")
		}
		q.Meta.Definition = def
		return q, nil

	case QTDrop:
		slug, ok := m["model"].(string)
		if !ok {
			return nil, badQuery(doc, "a drop query must address a model by slug")
		}
		q.Meta.Model = slug
		return q, nil

	case QTAlter:
		slug, ok := m["model"].(string)
		if !ok {
			return nil, badQuery(doc, "an alter query must address a model by slug")
		}
		q.Meta.Model = slug

		if to, ok := m["to"].(map[string]any); ok {
			q.Meta.To = to
			return q, nil
		}

		for _, action := range []QueryType{QTCreate, QTAlter, QTDrop} {
			op, ok := m[string(action)].(map[string]any)
			if !ok {
				continue
			}
			entity, value, err := splitEntity(doc, op)
			if err != nil {
				return nil, err
			}
			q.Meta.Entity = entity
			q.Meta.EntityAction = action

			switch action {
			case QTCreate:
				q.Meta.EntityValue = value
			case QTAlter:
				s, _ := value.(string)
				q.Meta.EntitySlug = s
				to, ok := op["to"].(map[string]any)
				if !ok {
					return nil, rerr.New(rerr.MissingInstruction,
						"altering a model entity requires a to instruction")
				}
				q.Meta.EntityValue = to
			case QTDrop:
				s, _ := value.(string)
				q.Meta.EntitySlug = s
			}
			return q, nil
		}
		return nil, badQuery(doc, "an alter query must carry to, create, alter or drop")
	}
	return nil, badQuery(doc, "unknown model query")
}

func splitEntity(doc map[string]any, op map[string]any) (string, any, error) {
	for _, entity := range []string{"field", "index", "preset"} {
		if v, ok := op[entity]; ok {
			return entity, v, nil
		}
	}
	return "", nil, badQuery(doc, "a model entity operation must address a field, index or preset")
}

package sqlite

import (
	"github.com/ronin-co/compiler/internal/qcode"
	"github.com/ronin-co/compiler/internal/rerr"
	"github.com/ronin-co/compiler/internal/sdata"
)

// associationDeps turns the value of a many-cardinality link field
// into dependency statements over the hidden association model. The
// statements always run after the main statement, once the affected
// record exists.
//
// An array value replaces the membership: for set queries a removal
// of the existing rows precedes the per-element inserts. An object
// value adjusts it: containing elements are added, notContaining
// elements removed.
func (c *compilerContext) associationDeps(f *sdata.Field, value any, isSet bool) error {
	assoc, err := sdata.ModelBySlug(c.co.conf.Models, sdata.AssociationSlug(c.model.Slug, f.Slug))
	if err != nil {
		return err
	}
	target, err := sdata.ModelBySlug(c.co.conf.Models, f.Target)
	if err != nil {
		return err
	}

	switch v := value.(type) {
	case []any:
		if isSet {
			stmt, err := c.associationRemoveAll(assoc)
			if err != nil {
				return err
			}
			c.post = append(c.post, stmt)
		}
		for _, el := range v {
			stmt, err := c.associationAdd(assoc, target, el)
			if err != nil {
				return err
			}
			c.post = append(c.post, stmt)
		}
		return nil

	case map[string]any:
		if containing, ok := v["containing"].([]any); ok {
			for _, el := range containing {
				stmt, err := c.associationAdd(assoc, target, el)
				if err != nil {
					return err
				}
				c.post = append(c.post, stmt)
			}
		}
		if notContaining, ok := v["notContaining"].([]any); ok {
			for _, el := range notContaining {
				stmt, err := c.associationRemove(assoc, target, el)
				if err != nil {
					return err
				}
				c.post = append(c.post, stmt)
			}
		}
		return nil
	}
	return rerr.NewField(rerr.InvalidToValue,
		"a many-cardinality link takes a list of records or a containing/notContaining object", f.Slug)
}

// depContext builds an isolated context for one dependency statement;
// every dependency binds its own parameter list.
func (c *compilerContext) depContext(m *sdata.Model) *compilerContext {
	dep := c.co.newContext(&qcode.Query{}, newBinder(c.co.conf.InlineParams))
	dep.model = m.Clone()
	return dep
}

// sourceSelect renders the value identifying the affected parent
// record inside a dependency statement: the written id when the to
// instruction pins one, otherwise a lookup by the query's own filter.
func (c *compilerContext) sourceSelect(dep *compilerContext) (string, error) {
	if id, ok := c.q.Instructions.To["id"]; ok {
		if _, isMap := id.(map[string]any); !isMap {
			return dep.bind.prepare(id), nil
		}
	}

	lookup := c.depContext(c.model)
	lookup.bind = dep.bind
	cond, err := lookup.conditions(c.q.Instructions.With)
	if err != nil {
		return "", err
	}
	sub := `(SELECT "id" FROM ` + quote(c.model.Table)
	if cond != "" {
		sub += ` WHERE ` + cond
	}
	sub += ` LIMIT 1)`
	return sub, nil
}

// targetSelect renders the value identifying one associated record.
func (c *compilerContext) targetSelect(dep *compilerContext, target *sdata.Model, value any) (string, error) {
	if m, ok := value.(map[string]any); ok {
		if len(m) == 1 {
			if id, ok := m["id"]; ok {
				if _, isMap := id.(map[string]any); !isMap {
					return dep.bind.prepare(id), nil
				}
			}
		}
		lookup := c.depContext(target)
		lookup.bind = dep.bind
		cond, err := lookup.conditions(m)
		if err != nil {
			return "", err
		}
		sub := `(SELECT "id" FROM ` + quote(target.Table)
		if cond != "" {
			sub += ` WHERE ` + cond
		}
		sub += ` LIMIT 1)`
		return sub, nil
	}
	return dep.bind.prepare(value), nil
}

func (c *compilerContext) associationAdd(assoc, target *sdata.Model, value any) (Statement, error) {
	dep := c.depContext(assoc)
	source, err := c.sourceSelect(dep)
	if err != nil {
		return Statement{}, err
	}
	tgt, err := c.targetSelect(dep, target, value)
	if err != nil {
		return Statement{}, err
	}
	sql := `INSERT INTO ` + quote(assoc.Table) + ` ("source", "target") VALUES (` + source + `, ` + tgt + `)`
	return Statement{SQL: sql, Params: dep.bind.values(), After: true}, nil
}

func (c *compilerContext) associationRemove(assoc, target *sdata.Model, value any) (Statement, error) {
	dep := c.depContext(assoc)
	source, err := c.sourceSelect(dep)
	if err != nil {
		return Statement{}, err
	}
	tgt, err := c.targetSelect(dep, target, value)
	if err != nil {
		return Statement{}, err
	}
	sql := `DELETE FROM ` + quote(assoc.Table) + ` WHERE "source" = ` + source + ` AND "target" = ` + tgt
	return Statement{SQL: sql, Params: dep.bind.values(), After: true}, nil
}

func (c *compilerContext) associationRemoveAll(assoc *sdata.Model) (Statement, error) {
	dep := c.depContext(assoc)
	source, err := c.sourceSelect(dep)
	if err != nil {
		return Statement{}, err
	}
	sql := `DELETE FROM ` + quote(assoc.Table) + ` WHERE "source" = ` + source
	return Statement{SQL: sql, Params: dep.bind.values(), After: true}, nil
}

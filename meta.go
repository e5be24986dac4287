package compiler

import (
	"encoding/json"
	"strings"

	"github.com/ronin-co/compiler/internal/qcode"
	"github.com/ronin-co/compiler/internal/rerr"
	"github.com/ronin-co/compiler/internal/sdata"
	"github.com/ronin-co/compiler/internal/sqlite"
)

// transformMetaQuery handles the DDL-shaped queries. It emits native
// DDL as dependency statements, mutates the transaction's model list
// in place, and returns the rewritten query performing the same
// change on the ronin_schema table. A nil rewritten query means the
// first dependency statement is the main statement: the root model
// and the hidden system models keep no schema row.
func (t *Transaction) transformMetaQuery(q *qcode.Query) ([]sqlite.Statement, *qcode.Query, error) {
	switch q.Type {
	case qcode.QTList:
		return t.metaList(q.Meta)
	case qcode.QTCreate:
		return t.metaCreate(q.Meta)
	case qcode.QTDrop:
		return t.metaDrop(q.Meta)
	case qcode.QTAlter:
		if q.Meta.To != nil {
			return t.metaAlterModel(q.Meta)
		}
		return t.metaAlterEntity(q.Meta)
	}
	return nil, nil, rerr.New(rerr.InvalidModelValue, "unknown model query type "+string(q.Type))
}

// metaList compiles model listings as plain reads of ronin_schema.
func (t *Transaction) metaList(meta *qcode.Meta) ([]sqlite.Statement, *qcode.Query, error) {
	var doc Query
	if meta.Model == "" {
		doc = Query{"get": map[string]any{"roninModels": nil}}
	} else {
		doc = Query{"get": map[string]any{"roninModel": map[string]any{
			"with": map[string]any{"slug": meta.Model},
		}}}
	}
	rewritten, err := qcode.Parse(doc)
	return nil, rewritten, err
}

func (t *Transaction) metaCreate(meta *qcode.Meta) ([]sqlite.Statement, *qcode.Query, error) {
	def, err := sdata.DecodeModel(meta.Definition)
	if err != nil {
		return nil, nil, err
	}

	if def.Slug == sdata.RootModelSlug {
		root := sdata.RootModel()
		ddl := sqlite.CreateTableStatement(root, t.compileModels())
		return []sqlite.Statement{{SQL: ddl}}, nil, nil
	}

	if existing, _ := sdata.ModelBySlug(t.compileModels(), def.Slug); existing != nil {
		return nil, nil, rerr.NewField(rerr.ExistingModelEntity,
			`a model with the slug "`+def.Slug+`" already exists`, def.Slug)
	}

	var deps []sqlite.Statement
	deps = append(deps, sqlite.Statement{SQL: sqlite.CreateTableStatement(def, t.compileModels())})

	co := t.compiler()
	for i := range def.Indexes {
		ddl, err := co.CreateIndexStatement(def, &def.Indexes[i])
		if err != nil {
			return nil, nil, err
		}
		deps = append(deps, sqlite.Statement{SQL: ddl})
	}

	t.Models = append(t.Models, def)
	for _, assoc := range sdata.AssociationModels(def) {
		deps = append(deps, sqlite.Statement{SQL: sqlite.CreateTableStatement(assoc, t.compileModels())})
		t.Models = append(t.Models, assoc)
	}

	if def.System != nil {
		return deps, nil, nil
	}

	rewritten, err := qcode.Parse(Query{"add": map[string]any{"roninModel": map[string]any{
		"to": schemaRow(def),
	}}})
	return deps, rewritten, err
}

func (t *Transaction) metaDrop(meta *qcode.Meta) ([]sqlite.Statement, *qcode.Query, error) {
	m, err := sdata.ModelBySlug(t.compileModels(), meta.Model)
	if err != nil {
		return nil, nil, err
	}

	if m.Slug == sdata.RootModelSlug {
		return []sqlite.Statement{{SQL: sqlite.DropTableStatement(m)}}, nil, nil
	}

	var deps []sqlite.Statement
	for _, assoc := range sdata.AssociationModels(m) {
		if existing, _ := sdata.ModelBySlug(t.Models, assoc.Slug); existing != nil {
			deps = append(deps, sqlite.Statement{SQL: sqlite.DropTableStatement(existing)})
			t.removeModel(existing.Slug)
		}
	}
	deps = append(deps, sqlite.Statement{SQL: sqlite.DropTableStatement(m)})
	t.removeModel(m.Slug)

	if m.System != nil {
		return deps, nil, nil
	}

	rewritten, err := qcode.Parse(Query{"remove": map[string]any{"roninModel": map[string]any{
		"with": map[string]any{"slug": m.Slug},
	}}})
	return deps, rewritten, err
}

// metaAlterModel applies a partial model definition: renames and
// attribute changes. Derived attributes not pinned by the partial are
// recomputed from a changed slug.
func (t *Transaction) metaAlterModel(meta *qcode.Meta) ([]sqlite.Statement, *qcode.Query, error) {
	m, err := sdata.ModelBySlug(t.compileModels(), meta.Model)
	if err != nil {
		return nil, nil, err
	}

	prevSlug := m.Slug
	prevTable := m.Table
	prevAssocs, prevPositions := t.associationSnapshot(m)

	changed := map[string]any{}
	patch := meta.To

	if slug, ok := patch["slug"].(string); ok && slug != m.Slug {
		m.Slug = slug
		if _, ok := patch["pluralSlug"]; !ok {
			m.PluralSlug = ""
		}
		if _, ok := patch["name"]; !ok {
			m.Name = ""
		}
		if _, ok := patch["pluralName"]; !ok {
			m.PluralName = ""
		}
		if _, ok := patch["table"]; !ok {
			m.Table = ""
		}
	}
	if v, ok := patch["pluralSlug"].(string); ok {
		m.PluralSlug = v
	}
	if v, ok := patch["name"].(string); ok {
		m.Name = v
	}
	if v, ok := patch["pluralName"].(string); ok {
		m.PluralName = v
	}
	if v, ok := patch["idPrefix"].(string); ok {
		m.IDPrefix = v
	}
	if v, ok := patch["table"].(string); ok {
		m.Table = v
	}
	if ids, ok := patch["identifiers"].(map[string]any); ok {
		if v, ok := ids["name"].(string); ok {
			m.Identifiers.Name = v
		}
		if v, ok := ids["slug"].(string); ok {
			m.Identifiers.Slug = v
		}
	}
	if err := sdata.Normalize(m); err != nil {
		return nil, nil, err
	}

	for key, value := range map[string]string{
		"slug": m.Slug, "pluralSlug": m.PluralSlug,
		"name": m.Name, "pluralName": m.PluralName,
		"idPrefix": m.IDPrefix, "table": m.Table,
	} {
		changed[key] = value
	}
	changed["identifiers.name"] = m.Identifiers.Name
	changed["identifiers.slug"] = m.Identifiers.Slug

	var deps []sqlite.Statement
	if m.Table != prevTable {
		deps = append(deps, sqlite.Statement{SQL: sqlite.RenameTableStatement(prevTable, m.Table)})
	}

	reconciled, err := t.reconcileAssociations(m, prevAssocs, prevPositions)
	if err != nil {
		return nil, nil, err
	}
	deps = append(deps, reconciled...)

	if m.System != nil {
		return deps, nil, nil
	}

	rewritten, err := qcode.Parse(Query{"set": map[string]any{"roninModel": map[string]any{
		"with": map[string]any{"slug": prevSlug},
		"to":   changed,
	}}})
	return deps, rewritten, err
}

// schemaRow builds the to instruction writing one model's row of
// ronin_schema.
func schemaRow(m *Model) map[string]any {
	return map[string]any{
		"name":             m.Name,
		"pluralName":       m.PluralName,
		"slug":             m.Slug,
		"pluralSlug":       m.PluralSlug,
		"idPrefix":         m.IDPrefix,
		"table":            m.Table,
		"identifiers.name": m.Identifiers.Name,
		"identifiers.slug": m.Identifiers.Slug,
		"fields":           sdata.FieldsJSON(m),
		"indexes":          sdata.IndexesJSON(m),
		"presets":          sdata.PresetsJSON(m),
	}
}

func (t *Transaction) removeModel(slug string) {
	for i, m := range t.Models {
		if m.Slug == slug {
			t.Models = append(t.Models[:i], t.Models[i+1:]...)
			return
		}
	}
}

// associationSnapshot records the association models a model requires
// right now, with the positional index of each owning field. The
// position tolerates field renames during reconciliation.
func (t *Transaction) associationSnapshot(m *sdata.Model) ([]*sdata.Model, []int) {
	assocs := sdata.AssociationModels(m)
	positions := make([]int, len(assocs))
	for i, assoc := range assocs {
		for j := range m.Fields {
			if m.Fields[j].Slug == assoc.System.AssociationSlug {
				positions[i] = j
				break
			}
		}
	}
	return assocs, positions
}

// reconcileAssociations compares the association models required
// before and after a model change and emits the DDL closing the gap,
// through recursive compiles of create.model, alter.model and
// drop.model. Matching uses the owning field's slug, falling back to
// its position so renamed fields keep their association tables.
func (t *Transaction) reconcileAssociations(owner *sdata.Model, prev []*sdata.Model, prevPositions []int) ([]sqlite.Statement, error) {
	next, nextPositions := t.associationSnapshot(owner)
	matched := make([]bool, len(prev))
	var deps []sqlite.Statement

	recurse := func(doc Query) error {
		q, err := qcode.Parse(doc)
		if err != nil {
			return err
		}
		nested, rewritten, err := t.transformMetaQuery(q)
		if err != nil {
			return err
		}
		if rewritten != nil {
			// Association models are system models; their DDL is the
			// whole change.
			return rerr.New(rerr.InvalidModelValue, "association reconciliation must stay schema-only")
		}
		deps = append(deps, nested...)
		return nil
	}

	for i, na := range next {
		var match *sdata.Model
		for j, pa := range prev {
			if matched[j] {
				continue
			}
			if pa.System.AssociationSlug == na.System.AssociationSlug || prevPositions[j] == nextPositions[i] {
				match = pa
				matched[j] = true
				break
			}
		}

		switch {
		case match == nil:
			if err := recurse(Query{"create": map[string]any{"model": na}}); err != nil {
				return nil, err
			}
		case match.Slug != na.Slug:
			if err := recurse(Query{"alter": map[string]any{
				"model": match.Slug,
				"to": map[string]any{
					"slug":       na.Slug,
					"pluralSlug": na.PluralSlug,
					"table":      na.Table,
				},
			}}); err != nil {
				return nil, err
			}
			// The surviving model keeps its new owning-field slug.
			if surviving, _ := sdata.ModelBySlug(t.Models, na.Slug); surviving != nil {
				surviving.System.AssociationSlug = na.System.AssociationSlug
			}
		}
	}

	for j, pa := range prev {
		if matched[j] {
			continue
		}
		if existing, _ := sdata.ModelBySlug(t.Models, pa.Slug); existing == nil {
			continue
		}
		if err := recurse(Query{"drop": map[string]any{"model": pa.Slug}}); err != nil {
			return nil, err
		}
	}
	return deps, nil
}

// sqlString single-quotes a string for direct embedding in an SQL
// expression.
func sqlString(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

func jsonPath(slug string) string {
	return "'$." + slug + "'"
}

// entityColumn names the ronin_schema column holding an entity kind.
func entityColumn(entity string) string {
	switch entity {
	case "field":
		return "fields"
	case "index":
		return "indexes"
	case "preset":
		return "presets"
	}
	return ""
}

func entityMissing(entity, slug, model string) error {
	code := rerr.FieldNotFound
	switch entity {
	case "index":
		code = rerr.IndexNotFound
	case "preset":
		code = rerr.PresetNotFound
	}
	return rerr.NewField(code,
		entity+` "`+slug+`" does not exist in model "`+model+`"`, slug)
}

// metaAlterEntity applies create/alter/drop of a field, index or
// preset on an existing model.
func (t *Transaction) metaAlterEntity(meta *qcode.Meta) ([]sqlite.Statement, *qcode.Query, error) {
	m, err := sdata.ModelBySlug(t.compileModels(), meta.Model)
	if err != nil {
		return nil, nil, err
	}
	prevAssocs, prevPositions := t.associationSnapshot(m)

	var deps []sqlite.Statement
	var patchExpr string

	switch meta.Entity {
	case "field":
		deps, patchExpr, err = t.alterField(m, meta)
	case "index":
		deps, patchExpr, err = t.alterIndex(m, meta)
	case "preset":
		patchExpr, err = t.alterPreset(m, meta)
	default:
		err = rerr.New(rerr.InvalidModelValue, "unknown model entity "+meta.Entity)
	}
	if err != nil {
		return nil, nil, err
	}

	if meta.Entity == "field" {
		reconciled, err := t.reconcileAssociations(m, prevAssocs, prevPositions)
		if err != nil {
			return nil, nil, err
		}
		deps = append(deps, reconciled...)
	}

	if m.System != nil {
		return deps, nil, nil
	}

	column := entityColumn(meta.Entity)
	rewritten, err := qcode.Parse(Query{"set": map[string]any{"roninModel": map[string]any{
		"with": map[string]any{"slug": m.Slug},
		"to": map[string]any{
			column: map[string]any{"__RONIN_EXPRESSION": patchExpr},
		},
	}}})
	return deps, rewritten, err
}

func (t *Transaction) alterField(m *sdata.Model, meta *qcode.Meta) ([]sqlite.Statement, string, error) {
	switch meta.EntityAction {
	case qcode.QTCreate:
		f, err := sdata.DecodeField("", meta.EntityValue)
		if err != nil {
			return nil, "", err
		}
		if f.Slug == "" {
			return nil, "", rerr.NewField(rerr.InvalidModelValue,
				"a field definition requires a slug", "fields")
		}
		if _, ok := m.Field(f.Slug); ok {
			return nil, "", rerr.NewField(rerr.ExistingModelEntity,
				`a field with the slug "`+f.Slug+`" already exists`, f.Slug)
		}
		if f.Name == "" {
			f.Name = sdata.SlugToName(f.Slug)
		}
		if f.Type == sdata.TypeLink && f.Kind == "" {
			f.Kind = sdata.KindOne
		}
		m.Fields = append(m.Fields, f)

		var deps []sqlite.Statement
		if !(f.Type == sdata.TypeLink && f.Kind == sdata.KindMany) {
			deps = append(deps, sqlite.Statement{
				SQL: sqlite.AddColumnStatement(m.Table, &f, t.compileModels()),
			})
		}
		expr := `json_insert("fields", ` + jsonPath(f.Slug) + `, json(` + sqlString(sdata.FieldJSON(&f)) + `))`
		return deps, expr, nil

	case qcode.QTAlter:
		f, ok := m.Field(meta.EntitySlug)
		if !ok {
			return nil, "", entityMissing("field", meta.EntitySlug, m.Name)
		}
		partial, ok := meta.EntityValue.(map[string]any)
		if !ok {
			return nil, "", rerr.NewField(rerr.InvalidModelValue,
				"altering a field requires a partial definition", "fields")
		}

		merged := mergeFieldDoc(f, partial)
		updated, err := sdata.DecodeField(f.Slug, merged)
		if err != nil {
			return nil, "", err
		}
		if updated.Name == "" {
			updated.Name = sdata.SlugToName(updated.Slug)
		}

		prevSlug := f.Slug
		many := f.Type == sdata.TypeLink && f.Kind == sdata.KindMany
		*f = updated

		var deps []sqlite.Statement
		if updated.Slug != prevSlug && !many {
			deps = append(deps, sqlite.Statement{
				SQL: sqlite.RenameColumnStatement(m.Table, prevSlug, updated.Slug),
			})
		}

		var expr string
		if updated.Slug != prevSlug {
			expr = `json_insert(json_remove("fields", ` + jsonPath(prevSlug) + `), ` +
				jsonPath(updated.Slug) + `, json(` + sqlString(sdata.FieldJSON(&updated)) + `))`
		} else {
			raw, _ := json.Marshal(partial)
			expr = `json_set("fields", ` + jsonPath(prevSlug) + `, json_patch(json_extract("fields", ` +
				jsonPath(prevSlug) + `), ` + sqlString(string(raw)) + `))`
		}
		return deps, expr, nil

	case qcode.QTDrop:
		f, ok := m.Field(meta.EntitySlug)
		if !ok {
			return nil, "", entityMissing("field", meta.EntitySlug, m.Name)
		}
		if f.System {
			return nil, "", rerr.NewField(rerr.RequiredModelEntity,
				`the system field "`+f.Slug+`" cannot be dropped`, f.Slug)
		}
		many := f.Type == sdata.TypeLink && f.Kind == sdata.KindMany
		slug := f.Slug
		for i := range m.Fields {
			if m.Fields[i].Slug == slug {
				m.Fields = append(m.Fields[:i], m.Fields[i+1:]...)
				break
			}
		}

		var deps []sqlite.Statement
		if !many {
			deps = append(deps, sqlite.Statement{SQL: sqlite.DropColumnStatement(m.Table, slug)})
		}
		return deps, `json_remove("fields", ` + jsonPath(slug) + `)`, nil
	}
	return nil, "", rerr.New(rerr.InvalidModelValue, "unknown field operation")
}

// mergeFieldDoc overlays a partial definition onto a field's stored
// document form, mirroring the json_patch the rewritten query applies
// to ronin_schema.
func mergeFieldDoc(f *sdata.Field, partial map[string]any) map[string]any {
	var base map[string]any
	_ = json.Unmarshal([]byte(sdata.FieldJSON(f)), &base)
	if base == nil {
		base = map[string]any{}
	}
	for k, v := range partial {
		if v == nil {
			delete(base, k)
			continue
		}
		base[k] = v
	}
	return base
}

func (t *Transaction) alterIndex(m *sdata.Model, meta *qcode.Meta) ([]sqlite.Statement, string, error) {
	co := t.compiler()

	switch meta.EntityAction {
	case qcode.QTCreate:
		idx, err := sdata.DecodeIndex("", meta.EntityValue)
		if err != nil {
			return nil, "", err
		}
		if idx.Slug == "" {
			return nil, "", rerr.NewField(rerr.InvalidModelValue,
				"an index definition requires a slug", "indexes")
		}
		if _, ok := m.Index(idx.Slug); ok {
			return nil, "", rerr.NewField(rerr.ExistingModelEntity,
				`an index with the slug "`+idx.Slug+`" already exists`, idx.Slug)
		}
		m.Indexes = append(m.Indexes, idx)

		ddl, err := co.CreateIndexStatement(m, &idx)
		if err != nil {
			return nil, "", err
		}
		expr := `json_insert("indexes", ` + jsonPath(idx.Slug) + `, json(` + sqlString(sdata.IndexJSON(&idx)) + `))`
		return []sqlite.Statement{{SQL: ddl}}, expr, nil

	case qcode.QTAlter:
		idx, ok := m.Index(meta.EntitySlug)
		if !ok {
			return nil, "", entityMissing("index", meta.EntitySlug, m.Name)
		}
		partial, ok := meta.EntityValue.(map[string]any)
		if !ok {
			return nil, "", rerr.NewField(rerr.InvalidModelValue,
				"altering an index requires a partial definition", "indexes")
		}

		var base map[string]any
		_ = json.Unmarshal([]byte(sdata.IndexJSON(idx)), &base)
		for k, v := range partial {
			base[k] = v
		}
		updated, err := sdata.DecodeIndex(idx.Slug, base)
		if err != nil {
			return nil, "", err
		}

		prevSlug := idx.Slug
		*idx = updated

		// The index is rebuilt under its (possibly new) name.
		deps := []sqlite.Statement{{SQL: sqlite.DropIndexStatement(prevSlug)}}
		ddl, err := co.CreateIndexStatement(m, &updated)
		if err != nil {
			return nil, "", err
		}
		deps = append(deps, sqlite.Statement{SQL: ddl})

		var expr string
		if updated.Slug != prevSlug {
			expr = `json_insert(json_remove("indexes", ` + jsonPath(prevSlug) + `), ` +
				jsonPath(updated.Slug) + `, json(` + sqlString(sdata.IndexJSON(&updated)) + `))`
		} else {
			raw, _ := json.Marshal(partial)
			expr = `json_set("indexes", ` + jsonPath(prevSlug) + `, json_patch(json_extract("indexes", ` +
				jsonPath(prevSlug) + `), ` + sqlString(string(raw)) + `))`
		}
		return deps, expr, nil

	case qcode.QTDrop:
		idx, ok := m.Index(meta.EntitySlug)
		if !ok {
			return nil, "", entityMissing("index", meta.EntitySlug, m.Name)
		}
		slug := idx.Slug
		for i := range m.Indexes {
			if m.Indexes[i].Slug == slug {
				m.Indexes = append(m.Indexes[:i], m.Indexes[i+1:]...)
				break
			}
		}
		deps := []sqlite.Statement{{SQL: sqlite.DropIndexStatement(slug)}}
		return deps, `json_remove("indexes", ` + jsonPath(slug) + `)`, nil
	}
	return nil, "", rerr.New(rerr.InvalidModelValue, "unknown index operation")
}

func (t *Transaction) alterPreset(m *sdata.Model, meta *qcode.Meta) (string, error) {
	switch meta.EntityAction {
	case qcode.QTCreate:
		p, err := sdata.DecodePreset("", meta.EntityValue)
		if err != nil {
			return "", err
		}
		if p.Slug == "" {
			return "", rerr.NewField(rerr.InvalidModelValue,
				"a preset definition requires a slug", "presets")
		}
		if _, ok := m.Preset(p.Slug); ok {
			return "", rerr.NewField(rerr.ExistingModelEntity,
				`a preset with the slug "`+p.Slug+`" already exists`, p.Slug)
		}
		m.Presets = append(m.Presets, p)
		return `json_insert("presets", ` + jsonPath(p.Slug) + `, json(` + sqlString(sdata.PresetJSON(&p)) + `))`, nil

	case qcode.QTAlter:
		p, ok := m.Preset(meta.EntitySlug)
		if !ok {
			return "", entityMissing("preset", meta.EntitySlug, m.Name)
		}
		partial, ok := meta.EntityValue.(map[string]any)
		if !ok {
			return "", rerr.NewField(rerr.InvalidModelValue,
				"altering a preset requires a partial definition", "presets")
		}
		if instructions, ok := partial["instructions"].(map[string]any); ok {
			p.Instructions = instructions
		}
		raw, _ := json.Marshal(partial)
		return `json_set("presets", ` + jsonPath(p.Slug) + `, json_patch(json_extract("presets", ` +
			jsonPath(p.Slug) + `), ` + sqlString(string(raw)) + `))`, nil

	case qcode.QTDrop:
		p, ok := m.Preset(meta.EntitySlug)
		if !ok {
			return "", entityMissing("preset", meta.EntitySlug, m.Name)
		}
		slug := p.Slug
		for i := range m.Presets {
			if m.Presets[i].Slug == slug {
				m.Presets = append(m.Presets[:i], m.Presets[i+1:]...)
				break
			}
		}
		return `json_remove("presets", ` + jsonPath(slug) + `)`, nil
	}
	return "", rerr.New(rerr.InvalidModelValue, "unknown preset operation")
}

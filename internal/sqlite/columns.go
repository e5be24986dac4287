package sqlite

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/ronin-co/compiler/internal/qcode"
	"github.com/ronin-co/compiler/internal/rerr"
	"github.com/ronin-co/compiler/internal/sdata"
	"github.com/ronin-co/compiler/internal/util"
)

// The hoisting key: a sub-query mounted at the root of the including
// instruction spreads its fields onto the parent record.
const rootKey = "ronin_root"

func (c *compilerContext) renderSelectQuery() error {
	// Columns run first so joins can alias the root table before any
	// ordering or filter selector resolves.
	cols, err := c.buildColumns()
	if err != nil {
		return err
	}
	if err := c.resolveOrdering(); err != nil {
		return err
	}

	c.w.WriteString("SELECT ")
	c.w.WriteString(strings.Join(cols, ", "))
	c.w.WriteString(" FROM ")
	if c.fromOverride != "" {
		c.w.WriteString(c.fromOverride)
	} else {
		c.quoted(c.model.Table)
	}
	for _, join := range c.joins {
		c.w.WriteString(join)
	}
	if err := c.renderWhere(); err != nil {
		return err
	}
	c.renderOrderBy()
	c.renderLimit()
	return nil
}

// buildColumns assembles the full column list: the model's own
// columns first, then the including entries in key order, recording
// the selected-field metadata as it goes.
func (c *compilerContext) buildColumns() ([]string, error) {
	c.prepareJoinAliases()

	own, err := c.matchSelecting()
	if err != nil {
		return nil, err
	}

	var cols []string
	for _, entry := range own {
		resolved, err := c.resolve(entry.field.Slug, "selecting", false)
		if err != nil {
			return nil, err
		}
		cols = append(cols, resolved.Selector)
		c.selected = append(c.selected, SelectedField{
			Slug:         entry.field.Slug,
			MountingPath: entry.field.Slug,
			Type:         entry.field.Type,
			Excluded:     entry.excluded,
		})
	}

	incCols, err := c.processIncluding()
	if err != nil {
		return nil, err
	}
	cols = append(cols, incCols...)

	if len(cols) == 0 {
		return nil, rerr.New(rerr.InvalidWithValue, "a query must select at least one column")
	}
	return cols, nil
}

type selectedEntry struct {
	field    *sdata.Field
	excluded bool
}

// matchSelecting applies the selecting patterns to the model's column
// fields. Patterns support * (one segment) and ** (multiple); a !
// prefix removes matched fields. Fields the compiler needs internally
// stay selected but are marked excluded.
func (c *compilerContext) matchSelecting() ([]selectedEntry, error) {
	fields := sdata.ColumnFields(c.model)
	patterns := c.q.Instructions.Selecting

	if len(patterns) == 0 {
		out := make([]selectedEntry, len(fields))
		for i := range fields {
			out[i] = selectedEntry{field: &fields[i]}
		}
		return out, nil
	}

	var includes, excludes []*regexp.Regexp
	for _, p := range patterns {
		neg := strings.HasPrefix(p, "!")
		re, err := compilePattern(strings.TrimPrefix(p, "!"))
		if err != nil {
			return nil, rerr.NewField(rerr.InvalidWithValue, "invalid selecting pattern", p)
		}
		if neg {
			excludes = append(excludes, re)
		} else {
			includes = append(includes, re)
		}
	}

	matches := func(res []*regexp.Regexp, slug string) bool {
		for _, re := range res {
			if re.MatchString(slug) {
				return true
			}
		}
		return false
	}

	required := c.requiredFieldSlugs()
	var out []selectedEntry
	for i := range fields {
		f := &fields[i]
		keep := len(includes) == 0 || matches(includes, f.Slug)
		if matches(excludes, f.Slug) {
			keep = false
		}
		if keep {
			out = append(out, selectedEntry{field: f})
			continue
		}
		if _, ok := required[f.Slug]; ok {
			out = append(out, selectedEntry{field: f, excluded: true})
		}
	}
	return out, nil
}

// requiredFieldSlugs names the fields the compiler must read even
// when the selecting patterns drop them: the record id for result
// merging, and the ordering fields for cursor generation.
func (c *compilerContext) requiredFieldSlugs() map[string]struct{} {
	required := map[string]struct{}{}
	if c.q.Type != qcode.QTGet {
		return required
	}
	required["id"] = struct{}{}
	in := &c.q.Instructions
	if (in.LimitedTo > 0 || in.HasBefore || in.HasAfter) && in.OrderedBy != nil {
		for _, el := range append(append([]any{}, in.OrderedBy.Ascending...), in.OrderedBy.Descending...) {
			if slug, ok := el.(string); ok {
				required[slug] = struct{}{}
			}
		}
	}
	return required
}

func compilePattern(pattern string) (*regexp.Regexp, error) {
	var b strings.Builder
	b.WriteString("^")
	for i := 0; i < len(pattern); i++ {
		switch {
		case strings.HasPrefix(pattern[i:], "**"):
			b.WriteString(".*")
			i++
		case pattern[i] == '*':
			b.WriteString(`[^.]*`)
		default:
			b.WriteString(regexp.QuoteMeta(string(pattern[i])))
		}
	}
	b.WriteString("$")
	return regexp.Compile(b.String())
}

// prepareJoinAliases scans the including instruction for join-backed
// sub-queries and, when any exist, aliases the root table so every
// column reference stays unambiguous. A single-record root that gains
// a multi-record join is wrapped so the join cannot widen it.
func (c *compilerContext) prepareJoinAliases() {
	hasJoin := false
	hasMultiJoin := false
	scan := func(doc map[string]any) {
		sub, err := qcode.Parse(doc)
		if err != nil || sub.Type == qcode.QTCount {
			return
		}
		submodel, err := sdata.ModelBySlug(c.co.conf.Models, sub.Model)
		if err != nil {
			return
		}
		hasJoin = true
		if sub.Model == submodel.PluralSlug {
			hasMultiJoin = true
		}
	}
	for key, value := range c.q.Instructions.Including {
		if doc, ok := includedQuery(key, value); ok {
			scan(doc)
			continue
		}
		if list, ok := value.([]any); ok {
			for _, el := range list {
				if doc, ok := util.QuerySymbol(el); ok {
					scan(doc)
				}
			}
		}
	}
	if !hasJoin {
		return
	}
	if c.single() && hasMultiJoin {
		alias := "sub_" + c.model.Table
		c.fromOverride = `(SELECT * FROM ` + quote(c.model.Table) + ` LIMIT 1) AS ` + quote(alias)
		c.model.TableAlias = alias
		c.noLimit = true
		return
	}
	c.model.TableAlias = c.model.Table
}

// includedQuery unwraps an including entry into its sub-query
// document, handling the root-level query-symbol form.
func includedQuery(key string, value any) (map[string]any, bool) {
	if key == util.SymbolQuery {
		doc, ok := value.(map[string]any)
		return doc, ok
	}
	return util.QuerySymbol(value)
}

// processIncluding renders the including instruction: ephemeral
// columns for scalars and expressions, correlated sub-selects for
// counts, and LEFT JOINs for record sub-queries.
func (c *compilerContext) processIncluding() ([]string, error) {
	including := c.q.Instructions.Including
	if len(including) == 0 {
		return nil, nil
	}

	var cols []string
	for _, key := range sortedKeys(including) {
		value := including[key]

		if doc, ok := includedQuery(key, value); ok {
			mountKey := key
			if key == util.SymbolQuery {
				mountKey = rootKey
			}
			joined, err := c.renderIncludedQuery(mountKey, doc)
			if err != nil {
				return nil, err
			}
			cols = append(cols, joined...)
			continue
		}

		// A list of sub-queries joins each of them onto the same
		// mount path; the sibling joins pick up {n} suffixes.
		if list, ok := value.([]any); ok && len(list) > 0 {
			if _, isQuery := util.QuerySymbol(list[0]); isQuery {
				for _, el := range list {
					doc, ok := util.QuerySymbol(el)
					if !ok {
						return nil, rerr.NewField(rerr.InvalidIncludingValue,
							"a list under including must hold sub-queries only", key)
					}
					joined, err := c.renderIncludedQuery(key, doc)
					if err != nil {
						return nil, err
					}
					cols = append(cols, joined...)
				}
				continue
			}
		}

		if expr, isExpr, err := c.expressionValue(value); err != nil {
			return nil, err
		} else if isExpr {
			cols = append(cols, "("+expr+") AS "+quote(key))
			c.selected = append(c.selected, SelectedField{
				Slug:         key,
				MountingPath: key,
			})
			continue
		}

		// A plain scalar becomes an ephemeral column carrying the
		// value itself.
		cols = append(cols, c.bind.prepare(value)+" AS "+quote(key))
		c.selected = append(c.selected, SelectedField{
			Slug:         key,
			MountingPath: key,
			MountedValue: value,
			HasMounted:   true,
		})
	}
	return cols, nil
}

// renderIncludedQuery renders one sub-query of the including
// instruction: counts inline as correlated sub-selects, records
// become joins whose columns mount under the including key (or on
// the parent record itself for the hoisting key).
func (c *compilerContext) renderIncludedQuery(key string, doc map[string]any) ([]string, error) {
	sub, err := qcode.Parse(doc)
	if err != nil {
		return nil, err
	}
	if sub.All != nil {
		return nil, rerr.NewField(rerr.InvalidIncludingValue,
			"the pseudo model all cannot be included", key)
	}

	if sub.Type == qcode.QTCount {
		sql, _, err := c.compileChild(sub)
		if err != nil {
			return nil, err
		}
		c.selected = append(c.selected, SelectedField{
			Slug:         key,
			MountingPath: key,
			Type:         sdata.TypeNumber,
		})
		return []string{"(" + sql + ") AS " + quote(key)}, nil
	}
	if sub.Type != qcode.QTGet {
		return nil, rerr.NewField(rerr.InvalidIncludingValue,
			"only get and count queries can be included", key)
	}

	submodel, err := sdata.ModelBySlug(c.co.conf.Models, sub.Model)
	if err != nil {
		return nil, err
	}
	multi := sub.Model == submodel.PluralSlug

	// Sibling joins onto the same path get numeric disambiguators
	// from the second join onward.
	n := c.joinPaths[key]
	c.joinPaths[key]++
	aliasKey := key
	if n > 0 {
		aliasKey = key + "{" + strconv.Itoa(n) + "}"
	}
	alias := "including_" + aliasKey
	if multi {
		alias += "[0]"
	}

	child := c.subContext(submodel)
	child.q = sub
	child.model.TableAlias = alias
	qcode.RewriteIdentifiers(&sub.Instructions, child.model)
	if err := qcode.ApplyPresets(sub, child.model); err != nil {
		return nil, err
	}

	cond, err := child.conditions(sub.Instructions.With)
	if err != nil {
		return nil, err
	}
	if cond != "" {
		c.joins = append(c.joins,
			" LEFT JOIN "+quote(submodel.Table)+" AS "+quote(alias)+" ON ("+cond+")")
	} else {
		c.joins = append(c.joins,
			" CROSS JOIN "+quote(submodel.Table)+" AS "+quote(alias))
	}

	mountPrefix := ""
	if key != rootKey {
		mountPrefix = aliasKey
		if multi {
			mountPrefix += "[0]"
		}
		mountPrefix += "."
	}

	entries, err := child.matchSelecting()
	if err != nil {
		return nil, err
	}
	var cols []string
	for _, entry := range entries {
		mount := mountPrefix + entry.field.Slug
		cols = append(cols, quote(alias)+"."+quote(entry.field.Slug)+" AS "+quote(mount))
		c.selected = append(c.selected, SelectedField{
			Slug:         entry.field.Slug,
			MountingPath: mount,
			Type:         entry.field.Type,
			Excluded:     entry.excluded,
		})
	}
	return cols, nil
}

// compileChild fully compiles a nested query with the shared binder,
// returning its SQL text. Dependency statements of the child bubble
// up to the enclosing compile.
func (c *compilerContext) compileChild(sub *qcode.Query) (string, *compilerContext, error) {
	child := c.co.newContext(sub, c.bind)
	parent := c.model.Clone()
	if parent.TableAlias == "" {
		parent.TableAlias = parent.Table
	}
	child.parent = parent
	if err := child.compile(); err != nil {
		return "", nil, err
	}
	c.pre = append(c.pre, child.pre...)
	c.post = append(c.post, child.post...)
	return strings.TrimSpace(child.w.String()), child, nil
}

// compileSubSelect compiles a sub-query document into its SELECT
// text.
func (c *compilerContext) compileSubSelect(doc map[string]any) (string, error) {
	sub, err := qcode.Parse(doc)
	if err != nil {
		return "", err
	}
	sql, _, err := c.compileChild(sub)
	return sql, err
}

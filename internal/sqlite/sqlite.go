// Package sqlite renders typed queries into SQLite statements. A
// compilerContext writes into a bytes.Buffer through small render
// methods, one per instruction kind, while a shared binder allocates
// the ?N placeholders.
package sqlite

import (
	"bytes"
	"strings"

	"github.com/ronin-co/compiler/internal/qcode"
	"github.com/ronin-co/compiler/internal/rerr"
	"github.com/ronin-co/compiler/internal/sdata"
)

// Statement is one executable SQL statement with its bound values.
type Statement struct {
	SQL       string
	Params    []any
	Returning bool
	// After marks dependency statements that must run after the main
	// statement of their input query.
	After bool
}

// SelectedField records where one result column mounts on the output
// record. The ordered list of these is the sole input of the result
// formatter.
type SelectedField struct {
	Slug         string
	MountingPath string
	Type         sdata.FieldType
	// Excluded marks columns selected for internal needs (merging,
	// cursor values) that are stripped from exposed records.
	Excluded bool
	// MountedValue carries a literal included value alongside its
	// column.
	MountedValue any
	HasMounted   bool
}

// OrderEntry is one resolved ordering term, kept for cursor
// generation at formatting time.
type OrderEntry struct {
	Slug      string
	Selector  string
	Type      sdata.FieldType
	Ascending bool
	// Expression entries order by a raw expression and never
	// participate in cursors.
	Expression bool
}

// Compiled is the output of compiling one query.
type Compiled struct {
	Main     Statement
	Pre      []Statement
	Post     []Statement
	Selected []SelectedField
	Model    *sdata.Model
	Single   bool
	// Count marks a count query, whose single row carries the amount.
	Count bool
	// LimitedTo is the requested page size; the statement asks for
	// one row more.
	LimitedTo int
	// HasBefore and HasAfter record which pagination cursor, if any,
	// the query carried.
	HasBefore bool
	HasAfter  bool
	// Order keeps the effective ordering for cursor generation.
	Order []OrderEntry
}

// Config parameterizes a compile.
type Config struct {
	Models []*sdata.Model
	// InlineParams renders literal values into the statement text
	// instead of binding placeholders.
	InlineParams bool
	// InlineDefaults computes record ids and timestamps in process
	// instead of delegating to column defaults.
	InlineDefaults bool
}

// Compiler renders queries against one model list.
type Compiler struct {
	conf Config
}

// NewCompiler returns a Compiler over the given configuration.
func NewCompiler(conf Config) *Compiler {
	return &Compiler{conf: conf}
}

// Models exposes the compiler's model list.
func (co *Compiler) Models() []*sdata.Model { return co.conf.Models }

type compilerContext struct {
	co *Compiler
	w  *bytes.Buffer
	q  *qcode.Query

	model *sdata.Model
	// parent is set while compiling a correlated sub-query and
	// resolves __RONIN_FIELD_PARENT references.
	parent *sdata.Model

	bind *binder

	selected []SelectedField
	pre      []Statement
	post     []Statement
	order    []OrderEntry

	// joinPaths counts joins per mounting path for {n} suffixes.
	joinPaths map[string]int
	// joins collects rendered join clauses.
	joins []string
	// fromOverride replaces the FROM clause when a single root gains
	// a multi-record join.
	fromOverride string
	// noLimit suppresses the trailing LIMIT 1 of single queries whose
	// row count is widened by joins.
	noLimit bool
}

func (co *Compiler) newContext(q *qcode.Query, bind *binder) *compilerContext {
	return &compilerContext{
		co:        co,
		w:         &bytes.Buffer{},
		q:         q,
		bind:      bind,
		joinPaths: map[string]int{},
	}
}

// CompileQuery renders one typed DML query into its main statement
// plus ordered dependency statements.
func (co *Compiler) CompileQuery(q *qcode.Query) (*Compiled, error) {
	bind := newBinder(co.conf.InlineParams)
	c := co.newContext(q, bind)
	if err := c.compile(); err != nil {
		return nil, err
	}

	out := &Compiled{
		Main: Statement{
			SQL:       strings.TrimSpace(c.w.String()),
			Params:    bind.values(),
			Returning: true,
		},
		Pre:       c.pre,
		Post:      c.post,
		Selected:  c.selected,
		Model:     c.model,
		Single:    c.single(),
		Count:     c.q.Type == qcode.QTCount,
		LimitedTo: c.q.Instructions.LimitedTo,
		HasBefore: c.q.Instructions.HasBefore,
		HasAfter:  c.q.Instructions.HasAfter,
		Order:     c.order,
	}
	return out, nil
}

func (c *compilerContext) single() bool {
	return c.model != nil && c.q.Model == c.model.Slug
}

func (c *compilerContext) compile() error {
	model, err := sdata.ModelBySlug(c.co.conf.Models, c.q.Model)
	if err != nil {
		return err
	}
	c.model = model.Clone()

	qcode.RewriteIdentifiers(&c.q.Instructions, c.model)
	if err := qcode.ApplyPresets(c.q, c.model); err != nil {
		return err
	}

	if c.q.Type == qcode.QTCount {
		c.forceCountInstructions()
	}
	c.ensureCursorOrdering()

	switch c.q.Type {
	case qcode.QTGet, qcode.QTCount:
		return c.renderSelectQuery()
	case qcode.QTSet:
		return c.renderUpdateQuery()
	case qcode.QTAdd:
		return c.renderInsertQuery()
	case qcode.QTRemove:
		return c.renderDeleteQuery()
	}
	return rerr.New(rerr.InvalidWithValue, "unsupported query type "+string(c.q.Type))
}

// forceCountInstructions rewrites a count into a get over a single
// ephemeral amount column.
func (c *compilerContext) forceCountInstructions() {
	in := &c.q.Instructions
	in.Selecting = []string{"amount"}
	if in.Including == nil {
		in.Including = map[string]any{}
	}
	in.Including["amount"] = map[string]any{"__RONIN_EXPRESSION": "COUNT(*)"}
}

// ensureCursorOrdering appends the implicit creation-time ordering
// that keeps pagination cursors stable.
func (c *compilerContext) ensureCursorOrdering() {
	in := &c.q.Instructions
	if c.single() {
		return
	}
	if c.q.Type != qcode.QTGet && c.q.Type != qcode.QTCount {
		return
	}
	if in.LimitedTo == 0 && !in.HasBefore && !in.HasAfter {
		return
	}
	if in.OrderedBy == nil {
		in.OrderedBy = &qcode.OrderedBy{}
	}
	refs := func(list []any) bool {
		for _, el := range list {
			if s, ok := el.(string); ok && s == "ronin.createdAt" {
				return true
			}
		}
		return false
	}
	if !refs(in.OrderedBy.Ascending) && !refs(in.OrderedBy.Descending) {
		in.OrderedBy.Descending = append(in.OrderedBy.Descending, "ronin.createdAt")
	}
}

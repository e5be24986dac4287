// Package compiler translates document-shaped queries into
// SQLite-dialect statements and formats the flat rows a database
// returns for them back into nested records.
package compiler

import (
	"github.com/ronin-co/compiler/internal/qcode"
	"github.com/ronin-co/compiler/internal/sdata"
	"github.com/ronin-co/compiler/internal/sqlite"
)

// Query is one query in document form: a tagged object whose single
// key names the query type.
type Query = map[string]any

// Statement is one parameterized SQL statement of a compiled
// transaction.
type Statement struct {
	Statement string
	Params    []any
	Returning bool
}

// TransactionOptions parameterizes a transaction compile.
type TransactionOptions struct {
	// Models the queries compile against. DDL queries mutate this
	// schema as they compile; the updated list is exposed on the
	// Transaction.
	Models []*Model
	// InlineParams renders literal values into the statement text
	// instead of binding placeholders.
	InlineParams bool
	// InlineDefaults computes record ids and timestamps in process
	// instead of delegating them to column defaults.
	InlineDefaults bool
	// Cache, when set, reuses compiled statements for identical
	// queries against an unchanged model list.
	Cache *Cache
}

// queryInfo keeps the compile artifacts of one input query for result
// formatting.
type queryInfo struct {
	doc      Query
	compiled []*sqlite.Compiled
	// all is set for expand-all queries; results group per model.
	all bool
	// meta marks DDL-shaped queries whose only output is the schema
	// record, or nothing at all.
	meta bool
}

// Transaction compiles a batch of queries up front and later formats
// the raw rows their statements returned. Statements must be applied
// as a single database transaction; their order is significant.
type Transaction struct {
	// Statements holds the compiled statements: for each input query
	// its pre-dependencies, its main statement, then its
	// post-dependencies, preserving input order across queries.
	Statements []Statement

	// Models is the model list after compiling, including the models
	// DDL queries created or altered.
	Models []*Model

	queries []queryInfo
	opts    TransactionOptions
}

// NewTransaction compiles the given queries against the models in the
// options. All compile-time errors surface here.
func NewTransaction(queries []Query, opts *TransactionOptions) (*Transaction, error) {
	if opts == nil {
		opts = &TransactionOptions{}
	}
	t := &Transaction{opts: *opts}

	models, err := enrichModels(opts.Models)
	if err != nil {
		return nil, err
	}
	t.Models = models

	for _, doc := range queries {
		if err := t.compileQuery(doc); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// enrichModels normalizes the supplied models and adds the hidden
// association models their many-cardinality links require.
func enrichModels(models []*Model) ([]*Model, error) {
	out := make([]*Model, 0, len(models))
	for _, m := range models {
		normalized, err := sdata.DecodeModel(m)
		if err != nil {
			return nil, err
		}
		out = append(out, normalized)
	}
	for _, m := range out[:len(out):len(out)] {
		for _, assoc := range sdata.AssociationModels(m) {
			if existing, _ := sdata.ModelBySlug(out, assoc.Slug); existing == nil {
				out = append(out, assoc)
			}
		}
	}
	return out, nil
}

// compileModels is the list queries compile against: the root model
// first, then the transaction's models.
func (t *Transaction) compileModels() []*sdata.Model {
	return append([]*sdata.Model{sdata.RootModel()}, t.Models...)
}

func (t *Transaction) compiler() *sqlite.Compiler {
	return sqlite.NewCompiler(sqlite.Config{
		Models:         t.compileModels(),
		InlineParams:   t.opts.InlineParams,
		InlineDefaults: t.opts.InlineDefaults,
	})
}

func (t *Transaction) compileQuery(doc Query) error {
	q, err := qcode.Parse(doc)
	if err != nil {
		return err
	}

	info := queryInfo{doc: doc, all: q.All != nil, meta: q.Meta != nil}

	if q.Meta != nil {
		pre, rewritten, err := t.transformMetaQuery(q)
		if err != nil {
			return err
		}
		for _, stmt := range pre {
			t.Statements = append(t.Statements, publicStatement(stmt))
		}
		if rewritten == nil {
			// Root-model and system-model DDL: the first dependency
			// statement is the main statement.
			t.queries = append(t.queries, info)
			return nil
		}
		q = rewritten
	}

	expanded, err := qcode.ExpandAll(q, t.compileModels())
	if err != nil {
		return err
	}

	// Reads compile deterministically from their document alone, so
	// they are the only cacheable queries; rewritten meta queries and
	// expanded all-queries share their original document and writes
	// may stamp fresh defaults.
	cacheable := !info.meta && !info.all &&
		(q.Type == qcode.QTGet || q.Type == qcode.QTCount)

	for _, eq := range expanded {
		compiled, err := t.compileOne(eq, cacheable)
		if err != nil {
			return err
		}
		info.compiled = append(info.compiled, compiled)

		for _, stmt := range compiled.Pre {
			t.Statements = append(t.Statements, publicStatement(stmt))
		}
		t.Statements = append(t.Statements, publicStatement(compiled.Main))
		for _, stmt := range compiled.Post {
			t.Statements = append(t.Statements, publicStatement(stmt))
		}
	}

	t.queries = append(t.queries, info)
	return nil
}

// compileOne renders a single typed query, consulting the statement
// cache when one is configured and the query is cacheable.
func (t *Transaction) compileOne(q *qcode.Query, cacheable bool) (*sqlite.Compiled, error) {
	cache := t.opts.Cache
	var key string
	if cache != nil && cacheable {
		key = cache.key(q.Doc, t.Models)
		if compiled, ok := cache.get(key); ok {
			return compiled, nil
		}
	}
	compiled, err := t.compiler().CompileQuery(q)
	if err != nil {
		return nil, err
	}
	if cache != nil && cacheable {
		cache.set(key, compiled)
	}
	return compiled, nil
}

func publicStatement(s sqlite.Statement) Statement {
	return Statement{Statement: s.SQL, Params: s.Params, Returning: s.Returning}
}

// CompileQueries compiles a batch of queries and returns just their
// statements, for callers that format results elsewhere.
func CompileQueries(queries []Query, opts *TransactionOptions) ([]Statement, error) {
	t, err := NewTransaction(queries, opts)
	if err != nil {
		return nil, err
	}
	return t.Statements, nil
}

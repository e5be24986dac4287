// Package qcode turns document-form queries into their typed
// representation: a tagged query with typed instruction bags. The SQL
// renderer consumes this representation, never the raw document.
package qcode

import (
	"fmt"

	"github.com/ronin-co/compiler/internal/rerr"
)

// QueryType tags a query.
type QueryType string

const (
	QTGet    QueryType = "get"
	QTCount  QueryType = "count"
	QTSet    QueryType = "set"
	QTAdd    QueryType = "add"
	QTRemove QueryType = "remove"
	QTList   QueryType = "list"
	QTCreate QueryType = "create"
	QTAlter  QueryType = "alter"
	QTDrop   QueryType = "drop"
)

var dmlTypes = []QueryType{QTGet, QTCount, QTSet, QTAdd, QTRemove}
var ddlTypes = []QueryType{QTList, QTCreate, QTAlter, QTDrop}

// IsDDL reports whether t manipulates models rather than records.
func IsDDL(t QueryType) bool {
	for _, d := range ddlTypes {
		if t == d {
			return true
		}
	}
	return false
}

// OrderedBy carries the ordering instruction. Entries are field slugs
// or expression marker objects.
type OrderedBy struct {
	Ascending  []any
	Descending []any
}

// Instructions is the typed bag of DML instructions.
type Instructions struct {
	With      any
	To        map[string]any
	Selecting []string
	Including map[string]any
	OrderedBy *OrderedBy
	LimitedTo int

	Before    string
	After     string
	HasBefore bool
	HasAfter  bool

	Using any
}

// AllInstructions parameterizes the expand-all pseudo-query.
type AllInstructions struct {
	// For restricts expansion to the models linked from the named
	// model.
	For string
	// On overrides instructions per plural slug.
	On map[string]map[string]any
	// Rest applies to every expanded model.
	Rest map[string]any
}

// Meta describes a DDL-shaped query.
type Meta struct {
	// Definition is the model definition of a create query.
	Definition any
	// Model is the addressed model slug for alter/drop/list.
	Model string
	// To is the partial model of a model-level alter.
	To map[string]any

	// Entity-level alteration: which entity kind, which action, the
	// addressed slug and the attached definition or partial.
	Entity       string // field, index or preset
	EntityAction QueryType
	EntitySlug   string
	EntityValue  any
}

// Query is the typed form of one document query.
type Query struct {
	Type  QueryType
	Model string

	// All is set instead of Model for the expand-all pseudo-query.
	All *AllInstructions

	// RawInstructions keeps the document form so presets can merge
	// into it before typing.
	RawInstructions map[string]any
	Instructions    Instructions

	// Meta is set for DDL-shaped queries.
	Meta *Meta

	// Doc is the original document, carried for error context.
	Doc map[string]any
}

// Parse validates and types one document query.
func Parse(doc map[string]any) (*Query, error) {
	if len(doc) != 1 {
		return nil, badQuery(doc, "a query must carry exactly one query type")
	}

	var qt QueryType
	var body any
	for k, v := range doc {
		qt = QueryType(k)
		body = v
	}

	switch qt {
	case QTGet, QTCount, QTSet, QTAdd, QTRemove:
		return parseDML(doc, qt, body)
	case QTList, QTCreate, QTAlter, QTDrop:
		return parseMeta(doc, qt, body)
	}
	return nil, badQuery(doc, fmt.Sprintf("unknown query type %q", qt))
}

func parseDML(doc map[string]any, qt QueryType, body any) (*Query, error) {
	m, ok := body.(map[string]any)
	if !ok || len(m) != 1 {
		return nil, badQuery(doc, "a query must address exactly one model")
	}

	var slug string
	var instr any
	for k, v := range m {
		slug = k
		instr = v
	}

	raw, _ := instr.(map[string]any)
	q := &Query{Type: qt, Model: slug, RawInstructions: raw, Doc: doc}

	if slug == "all" && (qt == QTGet || qt == QTCount) {
		all, err := parseAll(raw)
		if err != nil {
			return nil, err
		}
		q.All = all
		q.Model = ""
		return q, nil
	}

	parsed, err := ParseInstructions(raw)
	if err != nil {
		return nil, err
	}
	q.Instructions = parsed
	return q, nil
}

func parseAll(raw map[string]any) (*AllInstructions, error) {
	all := &AllInstructions{Rest: map[string]any{}}
	for k, v := range raw {
		switch k {
		case "for":
			s, ok := v.(string)
			if !ok {
				return nil, rerr.New(rerr.InvalidForValue,
					"the for instruction must name a model")
			}
			all.For = s
		case "on":
			m, ok := v.(map[string]any)
			if !ok {
				return nil, rerr.New(rerr.InvalidForValue,
					"the on instruction must map plural slugs to instructions")
			}
			all.On = map[string]map[string]any{}
			for slug, instr := range m {
				im, _ := instr.(map[string]any)
				all.On[slug] = im
			}
		default:
			all.Rest[k] = v
		}
	}
	return all, nil
}

func badQuery(doc map[string]any, message string) error {
	err := rerr.New(rerr.InvalidWithValue, message)
	err.Queries = []any{doc}
	return err
}

package sqlite

import (
	"github.com/ronin-co/compiler/internal/cursor"
	"github.com/ronin-co/compiler/internal/rerr"
)

// cursorFilter turns the before/after instruction into a keyset
// condition over the effective ordering plus the record id. For
// ascending fields (f1, f2) an after cursor produces
//
//	f1 > v1 OR (f1 = v1 AND (f2 > v2 OR (f2 = v2 AND id > vid)))
//
// and before mirrors the comparators.
func (c *compilerContext) cursorFilter() (string, error) {
	in := &c.q.Instructions
	if !in.HasBefore && !in.HasAfter {
		return "", nil
	}
	if c.single() {
		return "", rerr.New(rerr.InvalidBeforeOrAfter,
			"the before and after instructions require a multi-record query")
	}

	encoded := in.After
	before := false
	if in.HasBefore {
		encoded = in.Before
		before = true
	}
	values, err := cursor.Decode(encoded)
	if err != nil {
		return "", err
	}

	// Expression entries never participate in cursors; the encoded
	// values align with the field entries plus the trailing id.
	var entries []OrderEntry
	for _, entry := range c.order {
		if !entry.Expression {
			entries = append(entries, entry)
		}
	}
	if len(values) != len(entries)+1 {
		return "", rerr.New(rerr.InvalidBeforeOrAfter,
			"the pagination cursor does not match the ordering of the query")
	}

	idResolved, err := c.resolve("id", "after", false)
	if err != nil {
		return "", err
	}
	idEntry := OrderEntry{Slug: "id", Selector: idResolved.Selector, Ascending: true}

	return c.keysetCondition(append(entries, idEntry), values, before), nil
}

func (c *compilerContext) keysetCondition(entries []OrderEntry, values []any, before bool) string {
	entry := entries[0]
	comparator := ">"
	if entry.Ascending == before {
		comparator = "<"
	}
	head := entry.Selector + " " + comparator + " " + c.bind.prepare(values[0])
	if len(entries) == 1 {
		return head
	}
	equal := entry.Selector + " = " + c.bind.prepare(values[0])
	rest := c.keysetCondition(entries[1:], values[1:], before)
	if len(entries) > 2 {
		rest = "(" + rest + ")"
	}
	return head + " OR (" + equal + " AND " + rest + ")"
}

package sqlite

import (
	"strconv"

	"github.com/ronin-co/compiler/internal/qcode"
	"github.com/ronin-co/compiler/internal/sdata"
)

// resolveOrdering turns the orderedBy instruction into resolved order
// entries. It runs before the WHERE clause because pagination filters
// compare against the same fields.
func (c *compilerContext) resolveOrdering() error {
	ob := c.q.Instructions.OrderedBy
	if ob == nil {
		return nil
	}
	if err := c.resolveOrderingList(ob.Ascending, true); err != nil {
		return err
	}
	return c.resolveOrderingList(ob.Descending, false)
}

func (c *compilerContext) resolveOrderingList(list []any, ascending bool) error {
	for _, el := range list {
		if expr, isExpr, err := c.expressionValue(el); err != nil {
			return err
		} else if isExpr {
			c.order = append(c.order, OrderEntry{
				Selector:   expr,
				Ascending:  ascending,
				Expression: true,
			})
			continue
		}
		slug, _ := el.(string)
		resolved, err := c.resolve(slug, "orderedBy", false)
		if err != nil {
			return err
		}
		c.order = append(c.order, OrderEntry{
			Slug:      slug,
			Selector:  resolved.Selector,
			Type:      resolved.Field.Type,
			Ascending: ascending,
		})
	}
	return nil
}

// renderOrderBy writes the ORDER BY clause. String fields collate
// case-insensitively; expression entries are emitted as-is.
func (c *compilerContext) renderOrderBy() {
	if len(c.order) == 0 {
		return
	}
	c.w.WriteString(" ORDER BY ")
	for i, entry := range c.order {
		if i != 0 {
			c.w.WriteString(", ")
		}
		c.w.WriteString(entry.Selector)
		if !entry.Expression && entry.Type == sdata.TypeString {
			c.w.WriteString(" COLLATE NOCASE")
		}
		if entry.Ascending {
			c.w.WriteString(" ASC")
		} else {
			c.w.WriteString(" DESC")
		}
	}
}

// renderLimit writes the LIMIT clause: single-record reads clamp to
// one row, paginated reads ask for one extra row so the formatter can
// detect a following page. Counts aggregate to one row on their own.
func (c *compilerContext) renderLimit() {
	if c.noLimit || c.q.Type == qcode.QTCount {
		return
	}
	if c.single() {
		c.w.WriteString(" LIMIT 1")
		return
	}
	if n := c.q.Instructions.LimitedTo; n > 0 {
		c.w.WriteString(" LIMIT ")
		c.w.WriteString(strconv.Itoa(n + 1))
	}
}

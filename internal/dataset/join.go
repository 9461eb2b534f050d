package dataset

import (
	"strings"

	"github.com/washb/sanlaz/internal/optional"
)

// LeftJoin joins the receiver (the driving table) with the right table on
// the given key columns. Every driving row appears exactly once in the
// output. Right-table columns whose name collides with a driving column
// are skipped rather than renamed, which matches how we use it: the join
// keys themselves always collide and must not be duplicated.
//
// A key column missing from either table fails with [*model.SchemaError]
// before any row is produced. A right table with duplicate keys yields the
// first matching row; the input tables are expected to be unique on their
// keys so this never bites in practice.
//
// Unmatched driving rows keep None in every attached column: the join
// never drops a row, per the loader contract. A driving row with a missing
// key cell matches nothing.
func (t *Table) LeftJoin(right *Table, keys ...string) (*Table, error) {
	if err := t.Require(keys...); err != nil {
		return nil, err
	}
	if err := right.Require(keys...); err != nil {
		return nil, err
	}

	lookup := make(map[string]int, right.NumRows())
	for row := right.NumRows() - 1; row >= 0; row-- {
		// Walking backwards means the first occurrence wins.
		if key, ok := right.joinKey(keys, row); ok {
			lookup[key] = row
		}
	}

	joined := NewTable(t.Name)
	for _, series := range t.columns {
		out := joined.appendColumn(series.Name)
		out.cells = append(out.cells, series.cells...)
	}
	joined.numRows = t.numRows

	for _, series := range right.columns {
		if joined.Column(series.Name) != nil {
			continue
		}
		out := joined.appendColumn(series.Name)
		for row := 0; row < t.numRows; row++ {
			key, ok := t.joinKey(keys, row)
			if !ok {
				out.cells = append(out.cells, optional.None[string]())
				continue
			}
			match, found := lookup[key]
			if !found {
				out.cells = append(out.cells, optional.None[string]())
				continue
			}
			out.cells = append(out.cells, series.cells[match])
		}
	}
	return joined, nil
}

// joinKey builds the composite key for a row. The second return value is
// false when any key cell is missing.
func (t *Table) joinKey(keys []string, row int) (string, bool) {
	parts := make([]string, 0, len(keys))
	for _, key := range keys {
		cell := t.Cell(key, row)
		if cell.IsNone() {
			return "", false
		}
		parts = append(parts, cell.Unwrap())
	}
	return strings.Join(parts, "\x1f"), true
}

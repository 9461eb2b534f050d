// Package dataset implements a small column-oriented container for the
// delimited input tables and the left joins that assemble the per-child
// analysis table.
//
// A [*Table] holds named [*Series] columns of equal length. Cells are
// strings wrapped in [optional.Value] so a missing cell is represented as
// None rather than an empty string a downstream parser could mistake for
// data. Typed access happens lazily through [Series.Float].
//
// The joins here are left joins with the anthropometry table driving:
// every driving row is preserved and rows with no join partner keep None
// for the unmatched columns. Dropping rows is the cohort filter's job,
// never the loader's.
package dataset

import (
	"encoding/csv"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/washb/sanlaz/internal/model"
	"github.com/washb/sanlaz/internal/optional"
)

// missingTokens are the cell values treated as missing on input.
var missingTokens = map[string]bool{
	"":   true,
	"NA": true,
	".":  true,
}

// Series is a named column of optional string cells.
type Series struct {
	// Name is the column name.
	Name string

	cells []optional.Value[string]
}

// Len returns the number of cells.
func (s *Series) Len() int {
	return len(s.cells)
}

// Cell returns the i-th cell.
func (s *Series) Cell(i int) optional.Value[string] {
	return s.cells[i]
}

// Float parses the i-th cell as a float. Unparseable cells are None.
func (s *Series) Float(i int) optional.Value[float64] {
	cell := s.cells[i]
	if cell.IsNone() {
		return optional.None[float64]()
	}
	value, err := strconv.ParseFloat(strings.TrimSpace(cell.Unwrap()), 64)
	if err != nil {
		return optional.None[float64]()
	}
	return optional.Some(value)
}

// Table is a named collection of equal-length columns.
type Table struct {
	// Name is the logical table name used in error messages.
	Name string

	columns []*Series
	index   map[string]int
	numRows int
}

// NewTable creates an empty table with the given logical name.
func NewTable(name string) *Table {
	return &Table{
		Name:    name,
		columns: nil,
		index:   make(map[string]int),
		numRows: 0,
	}
}

// NumRows returns the number of rows.
func (t *Table) NumRows() int {
	return t.numRows
}

// Column returns the column with the given name, or nil.
func (t *Table) Column(name string) *Series {
	idx, found := t.index[name]
	if !found {
		return nil
	}
	return t.columns[idx]
}

// Require returns a [*model.SchemaError] unless every named column exists.
func (t *Table) Require(names ...string) error {
	for _, name := range names {
		if t.Column(name) == nil {
			return &model.SchemaError{Table: t.Name, Column: name}
		}
	}
	return nil
}

// Cell returns the cell at the given column and row. Referencing an
// undeclared column is a programming error caught by Require upfront, so
// here we just return None for it.
func (t *Table) Cell(column string, row int) optional.Value[string] {
	series := t.Column(column)
	if series == nil {
		return optional.None[string]()
	}
	return series.Cell(row)
}

// appendColumn adds an empty column and returns it.
func (t *Table) appendColumn(name string) *Series {
	series := &Series{Name: name}
	t.index[name] = len(t.columns)
	t.columns = append(t.columns, series)
	return series
}

// ReadCSV reads a comma-separated file with a header row into a table
// named after the given logical name. Cells equal to "", "NA", or "." are
// stored as None. Unreferenced columns are kept and ignored downstream.
func ReadCSV(name, path string) (*Table, error) {
	fp, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "dataset: open %s", name)
	}
	defer fp.Close()
	return readCSV(name, fp)
}

func readCSV(name string, r io.Reader) (*Table, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	header, err := reader.Read()
	if err != nil {
		return nil, errors.Wrapf(err, "dataset: read %s header", name)
	}
	table := NewTable(name)
	for _, column := range header {
		table.appendColumn(strings.TrimSpace(column))
	}
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrapf(err, "dataset: read %s row %d", name, table.numRows+2)
		}
		for idx, series := range table.columns {
			series.cells = append(series.cells, parseCell(record[idx]))
		}
		table.numRows++
	}
	return table, nil
}

func parseCell(raw string) optional.Value[string] {
	trimmed := strings.TrimSpace(raw)
	if missingTokens[trimmed] {
		return optional.None[string]()
	}
	return optional.Some(trimmed)
}

package dataset

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/washb/sanlaz/internal/model"
	"github.com/washb/sanlaz/internal/must"
)

func TestReadCSV(t *testing.T) {
	t.Run("parses a table with missing cells", func(t *testing.T) {
		input := strings.Join([]string{
			"dataid,laz,tr",
			"101,-1.20,Control",
			"102,NA,Control",
			"103,.,Sanitation",
			"104,,Control",
		}, "\n")
		table, err := readCSV("anthro", strings.NewReader(input))
		if err != nil {
			t.Fatal(err)
		}
		if table.NumRows() != 4 {
			t.Fatal("unexpected number of rows", table.NumRows())
		}
		if table.Cell("laz", 0).UnwrapOr("") != "-1.20" {
			t.Fatal("unexpected cell")
		}
		for row := 1; row <= 3; row++ {
			if !table.Cell("laz", row).IsNone() {
				t.Fatal("expected None at row", row)
			}
		}
	})

	t.Run("Float parses lazily and maps junk to None", func(t *testing.T) {
		input := "x\n1.5\nnope\n"
		table, err := readCSV("junk", strings.NewReader(input))
		if err != nil {
			t.Fatal(err)
		}
		if table.Column("x").Float(0).UnwrapOr(0) != 1.5 {
			t.Fatal("unexpected parsed value")
		}
		if !table.Column("x").Float(1).IsNone() {
			t.Fatal("expected None for unparseable cell")
		}
	})

	t.Run("Require fails with SchemaError", func(t *testing.T) {
		table, err := readCSV("enrol", strings.NewReader("dataid\n1\n"))
		if err != nil {
			t.Fatal(err)
		}
		err = table.Require("dataid", "momedu")
		schemaErr, ok := err.(*model.SchemaError)
		if !ok {
			t.Fatal("expected a SchemaError, got", err)
		}
		if schemaErr.Table != "enrol" || schemaErr.Column != "momedu" {
			t.Fatal("unexpected error fields", schemaErr)
		}
	})

	t.Run("reads from the filesystem", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "tiny.csv")
		must.WriteFile(path, []byte("a,b\n1,2\n"), 0600)
		table, err := ReadCSV("tiny", path)
		if err != nil {
			t.Fatal(err)
		}
		if table.NumRows() != 1 {
			t.Fatal("unexpected number of rows")
		}
	})

	t.Run("fails on a nonexistent file", func(t *testing.T) {
		if _, err := ReadCSV("nope", filepath.Join(t.TempDir(), "missing.csv")); err == nil {
			t.Fatal("expected an error")
		}
	})
}

func TestLeftJoin(t *testing.T) {
	newDriving := func(t *testing.T) *Table {
		table, err := readCSV("anthro", strings.NewReader(strings.Join([]string{
			"dataid,laz",
			"101,-1.2",
			"102,-0.5",
			"999,-2.0",
			",0.1",
		}, "\n")))
		if err != nil {
			t.Fatal(err)
		}
		return table
	}
	newRight := func(t *testing.T) *Table {
		table, err := readCSV("enrol", strings.NewReader(strings.Join([]string{
			"dataid,momedu",
			"101,Primary (1-5y)",
			"101,SHOULD NOT WIN",
			"102,No education",
		}, "\n")))
		if err != nil {
			t.Fatal(err)
		}
		return table
	}

	t.Run("preserves every driving row", func(t *testing.T) {
		joined, err := newDriving(t).LeftJoin(newRight(t), "dataid")
		if err != nil {
			t.Fatal(err)
		}
		if joined.NumRows() != 4 {
			t.Fatal("a left join must not drop rows, got", joined.NumRows())
		}
	})

	t.Run("first matching right row wins on duplicates", func(t *testing.T) {
		joined, err := newDriving(t).LeftJoin(newRight(t), "dataid")
		if err != nil {
			t.Fatal(err)
		}
		if joined.Cell("momedu", 0).UnwrapOr("") != "Primary (1-5y)" {
			t.Fatal("unexpected match", joined.Cell("momedu", 0))
		}
	})

	t.Run("unmatched and missing-key rows get None", func(t *testing.T) {
		joined, err := newDriving(t).LeftJoin(newRight(t), "dataid")
		if err != nil {
			t.Fatal(err)
		}
		if !joined.Cell("momedu", 2).IsNone() {
			t.Fatal("expected None for unmatched key")
		}
		if !joined.Cell("momedu", 3).IsNone() {
			t.Fatal("expected None for missing key")
		}
	})

	t.Run("missing key column is a SchemaError", func(t *testing.T) {
		_, err := newDriving(t).LeftJoin(newRight(t), "hhid")
		if _, ok := err.(*model.SchemaError); !ok {
			t.Fatal("expected a SchemaError, got", err)
		}
	})
}

package dataset

import (
	"github.com/pkg/errors"
)

// Column types, using the names the tracking server's column specs use.
const (
	TypeLong    = "long"
	TypeDouble  = "double"
	TypeBoolean = "boolean"
	TypeString  = "string"
)

type Column struct {
	Name string
	Type string
}

// Table is an in-memory table with typed columns. Cells are kept in their
// textual form; Rows[i][j] belongs to Columns[j].
type Table struct {
	Columns []Column
	Rows    [][]string
}

func (t *Table) NumRows() int { return len(t.Rows) }
func (t *Table) NumCols() int { return len(t.Columns) }

// NumElements is rows times columns.
func (t *Table) NumElements() int { return t.NumRows() * t.NumCols() }

// ColumnIndex returns the position of the named column, or -1.
func (t *Table) ColumnIndex(name string) int {
	for i, c := range t.Columns {
		if c.Name == name {
			return i
		}
	}
	return -1
}

// Names returns the column names in order.
func (t *Table) Names() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return names
}

// Validate checks that the table has columns, unique column names and
// rectangular rows.
func (t *Table) Validate() error {
	if len(t.Columns) == 0 {
		return errors.New("table has no columns")
	}
	seen := make(map[string]bool, len(t.Columns))
	for _, c := range t.Columns {
		if seen[c.Name] {
			return errors.Errorf("duplicate column %q", c.Name)
		}
		seen[c.Name] = true
		switch c.Type {
		case TypeLong, TypeDouble, TypeBoolean, TypeString:
		default:
			return errors.Errorf("column %q has unknown type %q", c.Name, c.Type)
		}
	}
	for i, row := range t.Rows {
		if len(row) != len(t.Columns) {
			return errors.Errorf("row %d has %d cells, want %d", i, len(row), len(t.Columns))
		}
	}
	return nil
}

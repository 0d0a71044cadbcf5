package reshape

import (
	"fmt"
	"slices"
	"time"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
)

// IndexName is the name of the timestamp column in DataFrame output.
const IndexName = "datetime"

// IndexLayout is the layout of the timestamp column in DataFrame output.
const IndexLayout = "2006-01-02 15:04:05"

// Table is a time-indexed table: row i of every column was observed at
// Index[i]. Tables are never modified in place; every method returning a
// *Table returns a new one.
type Table struct {
	Index   []time.Time
	columns []series.Series
}

// NewTable creates a table from an index and columns of the same length.
func NewTable(index []time.Time, cols ...series.Series) (*Table, error) {
	seen := make(map[string]bool, len(cols))
	for _, c := range cols {
		if c.Len() != len(index) {
			return nil, fmt.Errorf("column %q has %d rows, index has %d: %w", c.Name, c.Len(), len(index), ErrInvalidArgument)
		}
		if seen[c.Name] {
			return nil, fmt.Errorf("%q: %w", c.Name, ErrDuplicateColumn)
		}
		seen[c.Name] = true
	}
	return &Table{Index: index, columns: cols}, nil
}

// Nrow returns the number of rows.
func (t *Table) Nrow() int {
	return len(t.Index)
}

// Names returns the column names in order.
func (t *Table) Names() []string {
	names := make([]string, len(t.columns))
	for i, c := range t.columns {
		names[i] = c.Name
	}
	return names
}

// Has reports whether the table has the named column.
func (t *Table) Has(name string) bool {
	return t.colIndex(name) >= 0
}

func (t *Table) colIndex(name string) int {
	return slices.IndexFunc(t.columns, func(c series.Series) bool { return c.Name == name })
}

// Col returns a copy of the named column.
func (t *Table) Col(name string) (series.Series, error) {
	i := t.colIndex(name)
	if i < 0 {
		return series.Series{}, fmt.Errorf("%q: %w", name, ErrMissingColumn)
	}
	return t.columns[i].Copy(), nil
}

// Float returns the named column as floats; missing and non-numeric cells
// are NaN.
func (t *Table) Float(name string) ([]float64, error) {
	c, err := t.Col(name)
	if err != nil {
		return nil, err
	}
	return c.Float(), nil
}

// Drop returns the table without the named columns.
func (t *Table) Drop(names ...string) (*Table, error) {
	for _, name := range names {
		if !t.Has(name) {
			return nil, fmt.Errorf("cannot drop %q: %w", name, ErrMissingColumn)
		}
	}
	cols := make([]series.Series, 0, len(t.columns))
	for _, c := range t.columns {
		if !slices.Contains(names, c.Name) {
			cols = append(cols, c)
		}
	}
	return &Table{Index: t.Index, columns: cols}, nil
}

// Rename returns the table with column oldName called newName.
func (t *Table) Rename(newName, oldName string) (*Table, error) {
	i := t.colIndex(oldName)
	if i < 0 {
		return nil, fmt.Errorf("cannot rename %q: %w", oldName, ErrMissingColumn)
	}
	if newName != oldName && t.Has(newName) {
		return nil, fmt.Errorf("cannot rename %q to %q: %w", oldName, newName, ErrDuplicateColumn)
	}
	cols := slices.Clone(t.columns)
	cols[i].Name = newName
	return &Table{Index: t.Index, columns: cols}, nil
}

// take returns the rows at the given positions, in order. A negative
// position yields a row of missing values; its index entry is left zero.
func (t *Table) take(rows []int) *Table {
	index := make([]time.Time, len(rows))
	for i, r := range rows {
		if r >= 0 {
			index[i] = t.Index[r]
		}
	}
	cols := make([]series.Series, len(t.columns))
	for i, c := range t.columns {
		cols[i] = takeSeries(c, rows)
	}
	return &Table{Index: index, columns: cols}
}

func takeSeries(s series.Series, rows []int) series.Series {
	vals := make([]any, len(rows))
	for i, r := range rows {
		if r < 0 {
			continue
		}
		vals[i] = s.Elem(r).Val()
	}
	return series.New(vals, s.Type(), s.Name)
}

// DataFrame converts the table to a dataframe whose first column holds the
// index formatted with IndexLayout.
func (t *Table) DataFrame() dataframe.DataFrame {
	index := make([]string, len(t.Index))
	for i, ts := range t.Index {
		index[i] = ts.Format(IndexLayout)
	}
	cols := make([]series.Series, 0, len(t.columns)+1)
	cols = append(cols, series.New(index, series.String, IndexName))
	for _, c := range t.columns {
		cols = append(cols, c.Copy())
	}
	return dataframe.New(cols...)
}

package dataset

import (
	"strings"
	"time"
)

// Kind is the inferred type of a column.
type Kind string

const (
	KindNumeric     Kind = "numeric"
	KindDatetime    Kind = "datetime"
	KindCategorical Kind = "categorical"
	KindText        Kind = "text"
	KindUnknown     Kind = "unknown"
)

// Column describes one named column of a Dataset.
type Column struct {
	Name string
	Kind Kind
}

// Dataset is an immutable in-memory table built from an uploaded file.
// Cells are kept as the raw (trimmed) strings; an empty string is a missing cell.
type Dataset struct {
	ID       string
	Name     string
	Columns  []Column
	LoadedAt time.Time
	Warnings []string

	rows    [][]string
	nums    [][]float64 // parsed values of numeric columns, nil otherwise
	numOK   [][]bool
	summary *Report
	index   map[string]int
}

// NumRows returns the number of data rows (header excluded).
func (d *Dataset) NumRows() int {
	if d == nil {
		return 0
	}
	return len(d.rows)
}

// NumCols returns the number of columns.
func (d *Dataset) NumCols() int {
	if d == nil {
		return 0
	}
	return len(d.Columns)
}

// ColumnNames returns the column names in file order.
func (d *Dataset) ColumnNames() []string {
	if d == nil {
		return nil
	}
	out := make([]string, len(d.Columns))
	for i, c := range d.Columns {
		out[i] = c.Name
	}
	return out
}

// ColumnIndex resolves a column by exact name, then case-insensitively.
func (d *Dataset) ColumnIndex(name string) (int, bool) {
	if i, ok := d.index[name]; ok {
		return i, true
	}
	for i, c := range d.Columns {
		if strings.EqualFold(c.Name, strings.TrimSpace(name)) {
			return i, true
		}
	}
	return -1, false
}

// Cell returns the raw value at (row, col) and whether it is present.
func (d *Dataset) Cell(row, col int) (string, bool) {
	if row < 0 || row >= len(d.rows) || col < 0 || col >= len(d.Columns) {
		return "", false
	}
	v := d.rows[row][col]
	return v, v != ""
}

// Float returns the parsed numeric value at (row, col). ok is false for
// missing cells and for columns that are not numeric.
func (d *Dataset) Float(row, col int) (float64, bool) {
	if col < 0 || col >= len(d.nums) || d.nums[col] == nil {
		return 0, false
	}
	if row < 0 || row >= len(d.rows) || !d.numOK[col][row] {
		return 0, false
	}
	return d.nums[col][row], true
}

// Row returns a copy of one row.
func (d *Dataset) Row(i int) []string {
	if i < 0 || i >= len(d.rows) {
		return nil
	}
	out := make([]string, len(d.rows[i]))
	copy(out, d.rows[i])
	return out
}

// Head returns copies of the first n rows (all rows when n <= 0).
func (d *Dataset) Head(n int) [][]string {
	if n <= 0 || n > len(d.rows) {
		n = len(d.rows)
	}
	out := make([][]string, n)
	for i := 0; i < n; i++ {
		out[i] = d.Row(i)
	}
	return out
}

// Summary returns the schema report computed at load time.
func (d *Dataset) Summary() *Report {
	return d.summary
}

// Rows returns a copy of every row.
func (d *Dataset) Rows() [][]string {
	return d.Head(0)
}

// Column returns a copy of the named column's cells.
func (d *Dataset) Column(name string) ([]string, bool) {
	j, ok := d.ColumnIndex(name)
	if !ok {
		return nil, false
	}
	out := make([]string, len(d.rows))
	for i, row := range d.rows {
		out[i] = row[j]
	}
	return out, true
}

package model

import (
	"time"

	"go-sales-insights/pkg/utils"
)

// Record is one row keyed by column name. Values are nil (missing), int,
// float64, string or time.Time.
type Record map[string]interface{}

// Table is an ordered set of columns over materialized rows
type Table struct {
	Columns []string `json:"columns"`
	Rows    []Record `json:"rows"`
}

// ColumnKind describes what a column holds once missing values are ignored
type ColumnKind string

const (
	KindEmpty   ColumnKind = "empty"
	KindNumeric ColumnKind = "numeric"
	KindDate    ColumnKind = "date"
	KindText    ColumnKind = "text"
)

// NewTable builds an empty table with the given columns
func NewTable(columns []string) *Table {
	cols := make([]string, len(columns))
	copy(cols, columns)
	return &Table{Columns: cols, Rows: []Record{}}
}

// Len is the row count
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Rows)
}

// Has reports whether the column exists
func (t *Table) Has(column string) bool {
	if t == nil {
		return false
	}
	for _, c := range t.Columns {
		if c == column {
			return true
		}
	}
	return false
}

// Column returns the values of one column in row order
func (t *Table) Column(column string) []interface{} {
	out := make([]interface{}, len(t.Rows))
	for i, r := range t.Rows {
		out[i] = r[column]
	}
	return out
}

// Kind classifies a column. A column is numeric or date only when every
// non-missing value has that type.
func (t *Table) Kind(column string) ColumnKind {
	kind := KindEmpty
	for _, r := range t.Rows {
		v := r[column]
		if v == nil {
			continue
		}
		var k ColumnKind
		switch {
		case utils.IsNumber(v):
			k = KindNumeric
		case isTime(v):
			k = KindDate
		default:
			return KindText
		}
		if kind == KindEmpty {
			kind = k
		} else if kind != k {
			return KindText
		}
	}
	return kind
}

// Clone copies the table; row maps are copied, values are immutable
func (t *Table) Clone() *Table {
	out := NewTable(t.Columns)
	out.Rows = make([]Record, len(t.Rows))
	for i, r := range t.Rows {
		cp := make(Record, len(r))
		for k, v := range r {
			cp[k] = v
		}
		out.Rows[i] = cp
	}
	return out
}

// Subset returns a table sharing column order and holding the rows at idx
func (t *Table) Subset(idx []int) *Table {
	out := NewTable(t.Columns)
	out.Rows = make([]Record, 0, len(idx))
	for _, i := range idx {
		out.Rows = append(out.Rows, t.Rows[i])
	}
	return out
}

func isTime(v interface{}) bool {
	_, ok := v.(time.Time)
	return ok
}

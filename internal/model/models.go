package model

import (
	"encoding/json"
	"math"
	"time"
)

// KPIs are the headline figures of a filtered table
type KPIs struct {
	TotalRevenue  float64  `json:"total_revenue"`
	Orders        int      `json:"orders"`
	TotalQuantity *float64 `json:"total_quantity"` // nil when no quantity column
	AvgOrderValue float64  `json:"avg_order_value"`
}

// CategoryTotal is one group of a category breakdown
type CategoryTotal struct {
	Value   string  `json:"value"`
	Revenue float64 `json:"revenue"`
	Orders  int     `json:"orders"`
}

// Share is one slice of a pie breakdown, Percent in 0..100
type Share struct {
	Value   string  `json:"value"`
	Revenue float64 `json:"revenue"`
	Percent float64 `json:"percent"`
}

// ValueCount is a group keyed by value with its row count
type ValueCount struct {
	Value string `json:"value"`
	Count int    `json:"count"`
}

// TrendPoint is the revenue of one calendar month
type TrendPoint struct {
	Month   time.Time `json:"month"`
	Revenue float64   `json:"revenue"`
}

// MarshalJSON prints the month as YYYY-MM
func (p TrendPoint) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Month   string  `json:"month"`
		Revenue float64 `json:"revenue"`
	}{p.Month.Format("2006-01"), p.Revenue})
}

// ColumnMissing is the share of missing values in a column, in percent
type ColumnMissing struct {
	Column  string  `json:"column"`
	Percent float64 `json:"percent"`
}

// Correlation is a square Pearson matrix over Columns. Undefined cells are NaN.
type Correlation struct {
	Columns []string    `json:"columns"`
	Values  [][]float64 `json:"values"`
}

// MarshalJSON encodes NaN cells as null
func (c Correlation) MarshalJSON() ([]byte, error) {
	vals := make([][]*float64, len(c.Values))
	for i, row := range c.Values {
		vals[i] = make([]*float64, len(row))
		for j := range row {
			if math.IsNaN(row[j]) {
				continue
			}
			v := row[j]
			vals[i][j] = &v
		}
	}
	return json.Marshal(struct {
		Columns []string     `json:"columns"`
		Values  [][]*float64 `json:"values"`
	}{c.Columns, vals})
}

// At returns the coefficient for a column pair
func (c Correlation) At(a, b string) (float64, bool) {
	ia, ib := -1, -1
	for i, col := range c.Columns {
		if col == a {
			ia = i
		}
		if col == b {
			ib = i
		}
	}
	if ia < 0 || ib < 0 {
		return math.NaN(), false
	}
	return c.Values[ia][ib], true
}

// Summary is every derived output for one filtered table. Nil members are
// "not applicable" for the current data.
type Summary struct {
	RowCount      int                        `json:"row_count"`
	KPIs          KPIs                       `json:"kpis"`
	Bars          map[string][]CategoryTotal `json:"bars,omitempty"`
	Pies          map[string][]Share         `json:"pies,omitempty"`
	TopTables     map[string][]CategoryTotal `json:"top_tables,omitempty"`
	Trend         []TrendPoint               `json:"trend,omitempty"`
	MissingValues []ColumnMissing            `json:"missing_values"`
	Correlation   *Correlation               `json:"correlation,omitempty"`
}

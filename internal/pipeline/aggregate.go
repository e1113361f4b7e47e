package pipeline

import (
	"math"
	"sort"
	"time"

	"go-sales-insights/internal/model"
	"go-sales-insights/pkg/utils"

	"github.com/shopspring/decimal"
)

// SummaryOptions sizes the category breakdowns of a summary
type SummaryOptions struct {
	BarTopN      int `json:"bar_top_n" yaml:"bar_top_n"`
	PieTopN      int `json:"pie_top_n" yaml:"pie_top_n"`
	TopTableTopN int `json:"top_table_top_n" yaml:"top_table_top_n"`
}

// DefaultSummaryOptions matches the sizes the dashboards have always shown
func DefaultSummaryOptions() SummaryOptions {
	return SummaryOptions{BarTopN: 15, PieTopN: 8, TopTableTopN: 10}
}

func (o SummaryOptions) withDefaults() SummaryOptions {
	def := DefaultSummaryOptions()
	if o.BarTopN <= 0 {
		o.BarTopN = def.BarTopN
	}
	if o.PieTopN <= 0 {
		o.PieTopN = def.PieTopN
	}
	if o.TopTableTopN <= 0 {
		o.TopTableTopN = def.TopTableTopN
	}
	return o
}

// ------------------- Summary -------------------

// Summarize computes every derived output for a filtered table. Outputs whose
// inputs are missing are left nil.
func Summarize(t *model.Table, opts SummaryOptions) *model.Summary {
	opts = opts.withDefaults()

	s := &model.Summary{
		RowCount:      t.Len(),
		KPIs:          ComputeKPIs(t),
		MissingValues: MissingRatios(t),
	}

	for _, role := range model.CategoryRoles() {
		col := role.Column()
		if !t.Has(col) {
			continue
		}
		if s.Bars == nil {
			s.Bars = map[string][]model.CategoryTotal{}
			s.Pies = map[string][]model.Share{}
			s.TopTables = map[string][]model.CategoryTotal{}
		}
		key := string(role)
		s.Bars[key] = Breakdown(t, col, opts.BarTopN)
		s.Pies[key] = Shares(Breakdown(t, col, opts.PieTopN))
		s.TopTables[key] = Breakdown(t, col, opts.TopTableTopN)
	}

	if trend, ok := MonthlyTrend(t); ok {
		s.Trend = trend
	}
	if corr, ok := CorrelationMatrix(t); ok {
		s.Correlation = corr
	}
	return s
}

// ------------------- KPIs -------------------

// ComputeKPIs sums revenue and quantity over the table. The average order
// value is 0 for an empty table.
func ComputeKPIs(t *model.Table) model.KPIs {
	k := model.KPIs{Orders: t.Len()}
	hasQty := t.Has(model.ColQty)
	var qty float64

	for _, r := range t.Rows {
		k.TotalRevenue += utils.NumberOrZero(r[model.ColRevenue])
		if hasQty {
			qty += utils.NumberOrZero(r[model.ColQty])
		}
	}
	if hasQty {
		k.TotalQuantity = &qty
	}
	if k.Orders > 0 {
		k.AvgOrderValue = k.TotalRevenue / float64(k.Orders)
	}
	return k
}

// ------------------- Breakdowns -------------------

// Breakdown groups rows by column, summing _Revenue and counting rows. Groups
// are sorted by revenue descending, ties by value, and cut to n when n > 0.
// Rows with a missing value are not grouped.
func Breakdown(t *model.Table, column string, n int) []model.CategoryTotal {
	if !t.Has(column) {
		return nil
	}

	groups := make(map[string]*model.CategoryTotal)
	for _, r := range t.Rows {
		key, ok := utils.CoerceText(r[column])
		if !ok {
			continue
		}
		g, exists := groups[key]
		if !exists {
			g = &model.CategoryTotal{Value: key}
			groups[key] = g
		}
		g.Revenue += utils.NumberOrZero(r[model.ColRevenue])
		g.Orders++
	}

	out := make([]model.CategoryTotal, 0, len(groups))
	for _, g := range groups {
		out = append(out, *g)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Revenue != out[j].Revenue {
			return out[i].Revenue > out[j].Revenue
		}
		return out[i].Value < out[j].Value
	})
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

// Shares turns breakdown totals into pie slices. Percentages are relative to
// the shown slices and rounded to 2 decimals.
func Shares(totals []model.CategoryTotal) []model.Share {
	sum := decimal.Zero
	for _, t := range totals {
		sum = sum.Add(decimal.NewFromFloat(t.Revenue))
	}

	out := make([]model.Share, len(totals))
	for i, t := range totals {
		out[i] = model.Share{Value: t.Value, Revenue: t.Revenue}
		if sum.IsZero() {
			continue
		}
		pct := decimal.NewFromFloat(t.Revenue).Div(sum).Mul(decimal.NewFromInt(100)).Round(2)
		out[i].Percent = pct.InexactFloat64()
	}
	return out
}

// ValueCounts counts rows per value of column, most frequent first, ties by
// value, cut to n when n > 0.
func ValueCounts(t *model.Table, column string, n int) []model.ValueCount {
	if !t.Has(column) {
		return nil
	}
	counts := make(map[string]int)
	for _, r := range t.Rows {
		if key, ok := utils.CoerceText(r[column]); ok {
			counts[key]++
		}
	}
	out := make([]model.ValueCount, 0, len(counts))
	for v, c := range counts {
		out = append(out, model.ValueCount{Value: v, Count: c})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Value < out[j].Value
	})
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

// ------------------- Trend -------------------

// MonthlyTrend sums _Revenue per calendar month of _Date, oldest first.
// Months between the first and last with no rows are reported as zero.
// It is not applicable without _Date or rows.
func MonthlyTrend(t *model.Table) ([]model.TrendPoint, bool) {
	if !t.Has(model.ColDate) || !t.Has(model.ColRevenue) || t.Len() == 0 {
		return nil, false
	}

	sums := make(map[time.Time]float64)
	var first, last time.Time
	for _, r := range t.Rows {
		d, ok := r[model.ColDate].(time.Time)
		if !ok {
			continue
		}
		m := monthStart(d)
		if len(sums) == 0 || m.Before(first) {
			first = m
		}
		if len(sums) == 0 || m.After(last) {
			last = m
		}
		sums[m] += utils.NumberOrZero(r[model.ColRevenue])
	}
	if len(sums) == 0 {
		return nil, false
	}

	var out []model.TrendPoint
	for m := first; !m.After(last); m = m.AddDate(0, 1, 0) {
		out = append(out, model.TrendPoint{Month: m, Revenue: sums[m]})
	}
	return out, true
}

func monthStart(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// ------------------- Data Quality -------------------

// MissingRatios reports the percentage of missing values per column, rounded
// to 2 decimals, highest first. Ties keep column order.
func MissingRatios(t *model.Table) []model.ColumnMissing {
	out := make([]model.ColumnMissing, 0, len(t.Columns))
	rows := t.Len()

	for _, col := range t.Columns {
		missing := 0
		for _, r := range t.Rows {
			if isMissing(r[col]) {
				missing++
			}
		}
		pct := 0.0
		if rows > 0 {
			pct = decimal.NewFromInt(int64(missing)).
				Div(decimal.NewFromInt(int64(rows))).
				Mul(decimal.NewFromInt(100)).
				Round(2).
				InexactFloat64()
		}
		out = append(out, model.ColumnMissing{Column: col, Percent: pct})
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Percent > out[j].Percent
	})
	return out
}

func isMissing(v interface{}) bool {
	switch x := v.(type) {
	case nil:
		return true
	case float64:
		return math.IsNaN(x)
	}
	return false
}

// ------------------- Correlation -------------------

// CorrelationMatrix computes Pearson coefficients between all numeric
// columns, using the rows where both columns have a value. Pairs without
// enough data or variance are NaN. Not applicable with fewer than two numeric
// columns or no rows.
func CorrelationMatrix(t *model.Table) (*model.Correlation, bool) {
	if t.Len() == 0 {
		return nil, false
	}

	var cols []string
	for _, c := range t.Columns {
		if t.Kind(c) == model.KindNumeric {
			cols = append(cols, c)
		}
	}
	if len(cols) < 2 {
		return nil, false
	}

	series := make([][]float64, len(cols))
	present := make([][]bool, len(cols))
	for i, c := range cols {
		series[i] = make([]float64, t.Len())
		present[i] = make([]bool, t.Len())
		for j, r := range t.Rows {
			if v, ok := utils.CoerceNumber(r[c]); ok && !math.IsNaN(v) {
				series[i][j] = v
				present[i][j] = true
			}
		}
	}

	values := make([][]float64, len(cols))
	for i := range values {
		values[i] = make([]float64, len(cols))
	}
	for i := range cols {
		for j := i; j < len(cols); j++ {
			v := pearson(series[i], series[j], present[i], present[j])
			values[i][j] = v
			values[j][i] = v
		}
	}
	return &model.Correlation{Columns: cols, Values: values}, true
}

func pearson(x, y []float64, px, py []bool) float64 {
	var n, sx, sy float64
	for k := range x {
		if px[k] && py[k] {
			n++
			sx += x[k]
			sy += y[k]
		}
	}
	if n < 2 {
		return math.NaN()
	}
	mx, my := sx/n, sy/n

	var cov, vx, vy float64
	for k := range x {
		if !px[k] || !py[k] {
			continue
		}
		dx, dy := x[k]-mx, y[k]-my
		cov += dx * dy
		vx += dx * dx
		vy += dy * dy
	}
	if vx == 0 || vy == 0 {
		return math.NaN()
	}
	r := cov / math.Sqrt(vx*vy)
	// clamp rounding drift
	return math.Max(-1, math.Min(1, r))
}

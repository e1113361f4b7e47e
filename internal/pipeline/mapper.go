package pipeline

import (
	"go-sales-insights/internal/model"
	"go-sales-insights/pkg/utils"
)

// DefaultDateThreshold is the share of rows that must parse as dates
const DefaultDateThreshold = 0.6

// DetectDateColumn returns the first column that already holds dates or whose
// values parse as dates in more than threshold of all rows.
func DetectDateColumn(t *model.Table, threshold float64) (string, bool) {
	if t == nil || len(t.Rows) == 0 {
		return "", false
	}
	if threshold <= 0 {
		threshold = DefaultDateThreshold
	}

	for _, col := range t.Columns {
		if t.Kind(col) == model.KindDate {
			return col, true
		}
		parsed := 0
		for _, r := range t.Rows {
			if _, ok := utils.CoerceDate(r[col]); ok {
				parsed++
			}
		}
		if float64(parsed)/float64(len(t.Rows)) > threshold {
			return col, true
		}
	}
	return "", false
}

// ProposeMapping fills only the date role; the other roles are left to the caller
func ProposeMapping(t *model.Table, threshold float64) model.Mapping {
	m := model.Mapping{}
	if col, ok := DetectDateColumn(t, threshold); ok {
		m[model.RoleDate] = col
	}
	return m
}

// ApplyPreset overlays a configured mapping on m. Preset columns that are not
// in the table are ignored.
func ApplyPreset(t *model.Table, m model.Mapping, preset model.Mapping) model.Mapping {
	out := model.Mapping{}
	for r, c := range m {
		out[r] = c
	}
	for _, r := range model.Roles() {
		col, ok := preset.Get(r)
		if !ok || !t.Has(col) {
			continue
		}
		out[r] = col
	}
	return out
}

package pipeline

import (
	"sort"
	"strings"
	"time"

	"go-sales-insights/internal/model"
	"go-sales-insights/pkg/utils"
)

// DefaultProductLimit caps the products selected before the user chooses any
const DefaultProductLimit = 10

// ------------------- Filtering -------------------

// Filter keeps the rows that satisfy every active predicate of sel. The
// result shares row values with t and must be treated as read-only.
//
// A date range applies only when _Date exists and compares calendar dates.
// A category predicate applies when the role's column exists and the role has
// a key in sel.Categories; an empty value list then excludes every row.
func Filter(t *model.Table, sel model.Selection) *model.Table {
	preds := predicates(t, sel)

	idx := make([]int, 0, len(t.Rows))
	for i, r := range t.Rows {
		keep := true
		for _, p := range preds {
			if !p(r) {
				keep = false
				break
			}
		}
		if keep {
			idx = append(idx, i)
		}
	}
	return t.Subset(idx)
}

type predicate func(model.Record) bool

func predicates(t *model.Table, sel model.Selection) []predicate {
	var preds []predicate

	if sel.Dates != nil && t.Has(model.ColDate) {
		from, to := sel.Dates.From, sel.Dates.To
		preds = append(preds, func(r model.Record) bool {
			d, ok := r[model.ColDate].(time.Time)
			if !ok {
				return false
			}
			day := dateOnly(d)
			if !from.IsZero() && day.Before(dateOnly(from)) {
				return false
			}
			if !to.IsZero() && day.After(dateOnly(to)) {
				return false
			}
			return true
		})
	}

	for _, role := range model.CategoryRoles() {
		values, ok := sel.Categories[role]
		col := role.Column()
		if !ok || !t.Has(col) {
			continue
		}
		allowed := make(map[string]bool, len(values))
		for _, v := range values {
			allowed[v] = true
		}
		preds = append(preds, func(r model.Record) bool {
			s, ok := utils.CoerceText(r[col])
			return ok && allowed[s]
		})
	}

	if sel.Search != nil && strings.TrimSpace(sel.Search.Text) != "" && t.Has(sel.Search.Column) {
		col := sel.Search.Column
		needle := strings.ToLower(strings.TrimSpace(sel.Search.Text))
		preds = append(preds, func(r model.Record) bool {
			if r[col] == nil {
				return false
			}
			return strings.Contains(strings.ToLower(utils.FormatValue(r[col])), needle)
		})
	}

	return preds
}

func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ------------------- Selection Defaults -------------------

// CategoryValues lists the distinct non-missing values of a category role in
// lexicographic order. The result is empty when the role's column is absent.
func CategoryValues(t *model.Table, role model.Role) []string {
	col := role.Column()
	if !t.Has(col) {
		return []string{}
	}
	seen := make(map[string]bool)
	out := []string{}
	for _, r := range t.Rows {
		s, ok := utils.CoerceText(r[col])
		if !ok || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// DateBounds returns the earliest and latest _Date in the table
func DateBounds(t *model.Table) (model.DateRange, bool) {
	var rng model.DateRange
	if !t.Has(model.ColDate) {
		return rng, false
	}
	found := false
	for _, r := range t.Rows {
		d, ok := r[model.ColDate].(time.Time)
		if !ok {
			continue
		}
		if !found || d.Before(rng.From) {
			rng.From = d
		}
		if !found || d.After(rng.To) {
			rng.To = d
		}
		found = true
	}
	return rng, found
}

// DefaultSelection is the selection shown before the user picks anything:
// the full date range, every region and the first productLimit products.
func DefaultSelection(t *model.Table, productLimit int) model.Selection {
	if productLimit <= 0 {
		productLimit = DefaultProductLimit
	}
	sel := model.Selection{Categories: map[model.Role][]string{}}

	if rng, ok := DateBounds(t); ok {
		sel.Dates = &rng
	}
	if t.Has(model.ColRegion) {
		sel.Categories[model.RoleRegion] = CategoryValues(t, model.RoleRegion)
	}
	if t.Has(model.ColProduct) {
		products := CategoryValues(t, model.RoleProduct)
		if len(products) > productLimit {
			products = products[:productLimit]
		}
		sel.Categories[model.RoleProduct] = products
	}
	return sel
}

// ResolveSelection fills the parts of sel the user left unset from the
// defaults. Explicit choices, including empty category lists, are kept.
func ResolveSelection(t *model.Table, sel model.Selection, productLimit int) model.Selection {
	def := DefaultSelection(t, productLimit)
	out := sel.Clone()

	if out.Dates == nil {
		out.Dates = def.Dates
	}
	if out.Categories == nil {
		out.Categories = map[model.Role][]string{}
	}
	for role, values := range def.Categories {
		if _, set := out.Categories[role]; !set {
			out.Categories[role] = values
		}
	}
	return out
}

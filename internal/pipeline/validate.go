package pipeline

import (
	"errors"
	"fmt"
	"strings"

	"go-sales-insights/internal/model"
)

// ErrInvalidSelection is returned for a filter selection that cannot apply to the table
var ErrInvalidSelection = errors.New("invalid filter selection")

// ValidateMapping checks a mapping against the raw table before normalization
func ValidateMapping(raw *model.Table, m model.Mapping) error {
	if raw == nil {
		return fmt.Errorf("%w: no table loaded", model.ErrInvalidMapping)
	}
	return m.Validate(raw.Columns)
}

// ValidateSelection rejects selections that name things the canonical table
// cannot filter on. Selections on roles whose column is absent are allowed and
// simply inactive.
func ValidateSelection(t *model.Table, sel model.Selection) error {
	if sel.Dates != nil && !sel.Dates.From.IsZero() && !sel.Dates.To.IsZero() {
		if dateOnly(sel.Dates.From).After(dateOnly(sel.Dates.To)) {
			return fmt.Errorf("%w: date range starts %s after it ends %s",
				ErrInvalidSelection, sel.Dates.From.Format("2006-01-02"), sel.Dates.To.Format("2006-01-02"))
		}
	}

	for r := range sel.Categories {
		if !isCategoryRole(r) {
			return fmt.Errorf("%w: %q is not a category role", ErrInvalidSelection, r)
		}
	}

	if sel.Search != nil && strings.TrimSpace(sel.Search.Text) != "" {
		if !t.Has(sel.Search.Column) {
			return fmt.Errorf("%w: search column %q not found", ErrInvalidSelection, sel.Search.Column)
		}
	}
	return nil
}

func isCategoryRole(r model.Role) bool {
	for _, c := range model.CategoryRoles() {
		if c == r {
			return true
		}
	}
	return false
}

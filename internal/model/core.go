package model

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidMapping is returned when a column mapping does not fit the raw table
var ErrInvalidMapping = errors.New("invalid column mapping")

// Role is one of the fixed semantic categories a raw column can be mapped to
type Role string

const (
	RoleDate      Role = "date"
	RoleRegion    Role = "region"
	RoleProduct   Role = "product"
	RoleQuantity  Role = "quantity"
	RoleUnitPrice Role = "unit_price"
	RoleRevenue   Role = "revenue"
)

// Canonical column names
const (
	ColDate      = "_Date"
	ColRegion    = "_Region"
	ColProduct   = "_Product"
	ColQty       = "_Qty"
	ColUnitPrice = "_UnitPrice"
	ColRevenue   = "_Revenue"
)

var roleOrder = []Role{RoleDate, RoleRegion, RoleProduct, RoleQuantity, RoleUnitPrice, RoleRevenue}

var canonicalNames = map[Role]string{
	RoleDate:      ColDate,
	RoleRegion:    ColRegion,
	RoleProduct:   ColProduct,
	RoleQuantity:  ColQty,
	RoleUnitPrice: ColUnitPrice,
	RoleRevenue:   ColRevenue,
}

// Roles returns every role in fixed order
func Roles() []Role {
	out := make([]Role, len(roleOrder))
	copy(out, roleOrder)
	return out
}

// CategoryRoles are the roles users filter on by membership
func CategoryRoles() []Role {
	return []Role{RoleRegion, RoleProduct}
}

// ParseRole accepts a role name as used in JSON and flags
func ParseRole(s string) (Role, error) {
	r := Role(s)
	if _, ok := canonicalNames[r]; !ok {
		return "", fmt.Errorf("unknown role %q", s)
	}
	return r, nil
}

// Column is the canonical column name for the role
func (r Role) Column() string {
	return canonicalNames[r]
}

// Mapping assigns an optional raw column name to each role.
// Unset roles are absent from the map or map to "".
type Mapping map[Role]string

// Get returns the raw column for a role and whether it is set
func (m Mapping) Get(r Role) (string, bool) {
	name, ok := m[r]
	return name, ok && name != ""
}

// Validate checks the mapping against the raw table's columns. Every set role
// must name an existing column, and no column may serve two roles.
func (m Mapping) Validate(columns []string) error {
	present := make(map[string]bool, len(columns))
	for _, c := range columns {
		present[c] = true
	}
	used := make(map[string]Role)
	for _, r := range roleOrder {
		name, ok := m.Get(r)
		if !ok {
			continue
		}
		if !present[name] {
			return fmt.Errorf("%w: role %s maps to unknown column %q", ErrInvalidMapping, r, name)
		}
		if other, dup := used[name]; dup {
			return fmt.Errorf("%w: column %q mapped to both %s and %s", ErrInvalidMapping, name, other, r)
		}
		used[name] = r
	}
	for r := range m {
		if _, ok := canonicalNames[r]; !ok {
			return fmt.Errorf("%w: unknown role %q", ErrInvalidMapping, r)
		}
	}
	return nil
}

// DateRange is an inclusive range on calendar dates; the time of day is ignored
type DateRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// TextSearch keeps rows whose column contains Text, case-insensitively
type TextSearch struct {
	Column string `json:"column"`
	Text   string `json:"text"`
}

// Selection is the set of user filter choices. A role missing from Categories
// has no active predicate; a role present with an empty slice excludes every row.
type Selection struct {
	Dates      *DateRange        `json:"dates,omitempty"`
	Categories map[Role][]string `json:"categories,omitempty"`
	Search     *TextSearch       `json:"search,omitempty"`
}

// Clone returns a deep copy so callers can change it freely
func (s Selection) Clone() Selection {
	out := Selection{}
	if s.Dates != nil {
		d := *s.Dates
		out.Dates = &d
	}
	if s.Search != nil {
		q := *s.Search
		out.Search = &q
	}
	if s.Categories != nil {
		out.Categories = make(map[Role][]string, len(s.Categories))
		for r, vals := range s.Categories {
			cp := make([]string, len(vals))
			copy(cp, vals)
			out.Categories[r] = cp
		}
	}
	return out
}

package pipeline

import (
	"strings"

	"go-sales-insights/internal/model"
	"go-sales-insights/pkg/utils"
)

// RevenueSource tells which derivation produced _Revenue
type RevenueSource string

const (
	RevenueMapped   RevenueSource = "mapped_column"
	RevenueDerived  RevenueSource = "quantity_x_unit_price"
	RevenueDetected RevenueSource = "detected_column"
	RevenueZero     RevenueSource = "zero_fill"
)

// revenueNames are matched case-insensitively against unmapped raw columns
var revenueNames = []string{"revenue", "sales", "amount", "total"}

// Normalize builds the canonical table from a raw table and a mapping.
//
// Mapped roles are renamed to their canonical names, the date role is parsed
// (rows whose date does not parse are dropped), region and product are trimmed
// text, quantity and unit price are numeric with malformed values as zero, and
// _Revenue is always present. Columns no role addresses pass through unchanged.
func Normalize(raw *model.Table, m model.Mapping) (*model.Table, RevenueSource, error) {
	if err := m.Validate(raw.Columns); err != nil {
		return nil, "", err
	}

	roleOf := make(map[string]model.Role)
	for _, r := range model.Roles() {
		if col, ok := m.Get(r); ok {
			roleOf[col] = r
		}
	}

	source, detected := revenueSource(raw, m, roleOf)
	if source == RevenueDetected {
		roleOf[detected] = model.RoleRevenue
	}

	// Canonical names produced by this call shadow same-named raw columns
	produced := make(map[string]bool)
	for _, r := range roleOf {
		produced[r.Column()] = true
	}
	produced[model.ColRevenue] = true

	columns := make([]string, 0, len(raw.Columns)+1)
	for _, c := range raw.Columns {
		if r, ok := roleOf[c]; ok {
			columns = append(columns, r.Column())
			continue
		}
		if produced[c] {
			continue
		}
		columns = append(columns, c)
	}
	if source == RevenueDerived || source == RevenueZero {
		columns = append(columns, model.ColRevenue)
	}

	out := model.NewTable(columns)
	qtyCol, _ := m.Get(model.RoleQuantity)
	priceCol, _ := m.Get(model.RoleUnitPrice)
	dateCol, hasDate := m.Get(model.RoleDate)

	for _, row := range raw.Rows {
		rec := make(model.Record, len(columns))

		if hasDate {
			d, ok := utils.CoerceDate(row[dateCol])
			if !ok {
				continue
			}
			rec[model.ColDate] = d
		}

		for _, c := range raw.Columns {
			r, mapped := roleOf[c]
			if !mapped {
				if !produced[c] {
					rec[c] = row[c]
				}
				continue
			}
			switch r {
			case model.RoleDate:
				// parsed above
			case model.RoleRegion, model.RoleProduct:
				if s, ok := utils.CoerceText(row[c]); ok {
					rec[r.Column()] = s
				} else {
					rec[r.Column()] = nil
				}
			case model.RoleQuantity, model.RoleUnitPrice, model.RoleRevenue:
				rec[r.Column()] = utils.NumberOrZero(row[c])
			}
		}

		switch source {
		case RevenueDerived:
			rec[model.ColRevenue] = utils.NumberOrZero(row[qtyCol]) * utils.NumberOrZero(row[priceCol])
		case RevenueZero:
			rec[model.ColRevenue] = 0.0
		}

		out.Rows = append(out.Rows, rec)
	}

	return out, source, nil
}

// revenueSource picks the first applicable revenue derivation, in priority order
func revenueSource(raw *model.Table, m model.Mapping, roleOf map[string]model.Role) (RevenueSource, string) {
	if col, ok := m.Get(model.RoleRevenue); ok {
		return RevenueMapped, col
	}
	_, hasQty := m.Get(model.RoleQuantity)
	_, hasPrice := m.Get(model.RoleUnitPrice)
	if hasQty && hasPrice {
		return RevenueDerived, ""
	}
	for _, c := range raw.Columns {
		if _, mapped := roleOf[c]; mapped {
			continue
		}
		if isRevenueName(c) {
			return RevenueDetected, c
		}
	}
	return RevenueZero, ""
}

func isRevenueName(column string) bool {
	name := strings.ToLower(strings.TrimSpace(column))
	for _, candidate := range revenueNames {
		if name == candidate {
			return true
		}
	}
	return false
}

package pipeline

import (
	"errors"
	"reflect"
	"testing"
	"time"

	"go-sales-insights/internal/model"
)

func day(s string) time.Time {
	d, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return d
}

// canonicalFixture is a small normalized sales table spanning three months
func canonicalFixture() *model.Table {
	tbl := model.NewTable([]string{model.ColDate, model.ColRegion, model.ColProduct, model.ColQty, model.ColUnitPrice, model.ColRevenue})
	add := func(date, region, product string, qty, price float64) {
		tbl.Rows = append(tbl.Rows, model.Record{
			model.ColDate:      day(date),
			model.ColRegion:    region,
			model.ColProduct:   product,
			model.ColQty:       qty,
			model.ColUnitPrice: price,
			model.ColRevenue:   qty * price,
		})
	}
	add("2024-01-05", "East", "Apple", 2, 10)
	add("2024-01-20", "West", "Banana", 1, 5)
	add("2024-03-02", "East", "Banana", 3, 4)
	add("2024-03-15", "North", "Cherry", 1, 30)
	return tbl
}

func regionsOf(t *model.Table) []string {
	out := make([]string, len(t.Rows))
	for i, r := range t.Rows {
		out[i], _ = r[model.ColRegion].(string)
	}
	return out
}

func TestFilterPredicates(t *testing.T) {
	tests := []struct {
		name string
		sel  model.Selection
		want []string
	}{
		{"no predicates", model.Selection{}, []string{"East", "West", "East", "North"}},
		{"date range inclusive", model.Selection{Dates: &model.DateRange{From: day("2024-01-20"), To: day("2024-03-02")}}, []string{"West", "East"}},
		{"open ended from", model.Selection{Dates: &model.DateRange{From: day("2024-03-01")}}, []string{"East", "North"}},
		{"region membership", model.Selection{Categories: map[model.Role][]string{model.RoleRegion: {"East"}}}, []string{"East", "East"}},
		{"empty list excludes all", model.Selection{Categories: map[model.Role][]string{model.RoleProduct: {}}}, []string{}},
		{"combined", model.Selection{
			Dates:      &model.DateRange{To: day("2024-01-31")},
			Categories: map[model.Role][]string{model.RoleProduct: {"Banana", "Cherry"}},
		}, []string{"West"}},
		{"text search", model.Selection{Search: &model.TextSearch{Column: model.ColProduct, Text: "an"}}, []string{"West", "East"}},
		{"blank search inactive", model.Selection{Search: &model.TextSearch{Column: model.ColProduct, Text: "  "}}, []string{"East", "West", "East", "North"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := regionsOf(Filter(canonicalFixture(), tt.sel))
			if !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("regions = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFilterTimeOfDayIgnored(t *testing.T) {
	tbl := canonicalFixture()
	tbl.Rows[0][model.ColDate] = time.Date(2024, 1, 5, 18, 30, 0, 0, time.UTC)

	got := Filter(tbl, model.Selection{Dates: &model.DateRange{From: day("2024-01-05"), To: day("2024-01-05")}})
	if got.Len() != 1 {
		t.Fatalf("rows = %d, want 1", got.Len())
	}
}

func TestFilterInactiveWhenColumnAbsent(t *testing.T) {
	tbl := model.NewTable([]string{model.ColRevenue})
	tbl.Rows = append(tbl.Rows, model.Record{model.ColRevenue: 1.0}, model.Record{model.ColRevenue: 2.0})

	sel := model.Selection{
		Dates:      &model.DateRange{From: day("2030-01-01")},
		Categories: map[model.Role][]string{model.RoleRegion: {}},
	}
	if got := Filter(tbl, sel); got.Len() != 2 {
		t.Fatalf("rows = %d, want 2", got.Len())
	}
}

func TestFilterIdempotentAndCommutative(t *testing.T) {
	tbl := canonicalFixture()
	a := model.Selection{Dates: &model.DateRange{From: day("2024-01-10")}}
	b := model.Selection{Categories: map[model.Role][]string{model.RoleRegion: {"East", "West"}}}

	once := Filter(tbl, a)
	twice := Filter(once, a)
	if !reflect.DeepEqual(once.Rows, twice.Rows) {
		t.Fatal("filter is not idempotent")
	}

	ab := Filter(Filter(tbl, a), b)
	ba := Filter(Filter(tbl, b), a)
	if !reflect.DeepEqual(ab.Rows, ba.Rows) {
		t.Fatalf("filter order matters: %v vs %v", regionsOf(ab), regionsOf(ba))
	}
}

func TestFilterDoesNotMutateInput(t *testing.T) {
	tbl := canonicalFixture()
	before := tbl.Clone()

	Filter(tbl, model.Selection{Categories: map[model.Role][]string{model.RoleRegion: {"North"}}})
	Summarize(Filter(tbl, model.Selection{}), DefaultSummaryOptions())

	if !reflect.DeepEqual(before, tbl) {
		t.Fatal("canonical table changed")
	}
}

func TestDefaultSelection(t *testing.T) {
	tbl := canonicalFixture()

	sel := DefaultSelection(tbl, 2)
	if sel.Dates == nil || !sel.Dates.From.Equal(day("2024-01-05")) || !sel.Dates.To.Equal(day("2024-03-15")) {
		t.Fatalf("dates = %+v", sel.Dates)
	}
	if got := sel.Categories[model.RoleRegion]; !reflect.DeepEqual(got, []string{"East", "North", "West"}) {
		t.Fatalf("regions = %v", got)
	}
	if got := sel.Categories[model.RoleProduct]; !reflect.DeepEqual(got, []string{"Apple", "Banana"}) {
		t.Fatalf("products = %v", got)
	}

	if got := Filter(tbl, sel); got.Len() != 3 {
		t.Fatalf("default selection kept %d rows, want 3", got.Len())
	}
}

func TestResolveSelectionKeepsExplicitChoices(t *testing.T) {
	tbl := canonicalFixture()
	sel := model.Selection{Categories: map[model.Role][]string{model.RoleRegion: {}}}

	got := ResolveSelection(tbl, sel, DefaultProductLimit)
	if vals, ok := got.Categories[model.RoleRegion]; !ok || len(vals) != 0 {
		t.Fatalf("explicit empty region list replaced: %v", vals)
	}
	if len(got.Categories[model.RoleProduct]) != 3 {
		t.Fatalf("products not defaulted: %v", got.Categories[model.RoleProduct])
	}
	if got.Dates == nil {
		t.Fatal("dates not defaulted")
	}
	if len(sel.Categories) != 1 {
		t.Fatal("ResolveSelection changed its input")
	}
}

func TestValidateSelection(t *testing.T) {
	tbl := canonicalFixture()
	tests := []struct {
		name    string
		sel     model.Selection
		wantErr bool
	}{
		{"empty", model.Selection{}, false},
		{"inverted range", model.Selection{Dates: &model.DateRange{From: day("2024-02-01"), To: day("2024-01-01")}}, true},
		{"same day", model.Selection{Dates: &model.DateRange{From: day("2024-02-01"), To: day("2024-02-01")}}, false},
		{"non category role", model.Selection{Categories: map[model.Role][]string{model.RoleRevenue: {"1"}}}, true},
		{"unknown search column", model.Selection{Search: &model.TextSearch{Column: "Nope", Text: "x"}}, true},
		{"blank search ignored", model.Selection{Search: &model.TextSearch{Column: "Nope"}}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateSelection(tbl, tt.sel)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidSelection) {
				t.Fatalf("err %v does not wrap ErrInvalidSelection", err)
			}
		})
	}
}

func TestCategoryValues(t *testing.T) {
	tbl := canonicalFixture()
	tbl.Rows[1][model.ColProduct] = nil

	got := CategoryValues(tbl, model.RoleProduct)
	if !reflect.DeepEqual(got, []string{"Apple", "Banana", "Cherry"}) {
		t.Fatalf("values = %v", got)
	}
	if got := CategoryValues(model.NewTable(nil), model.RoleRegion); len(got) != 0 {
		t.Fatalf("absent column gave %v", got)
	}
}

package pipeline

import (
	"errors"
	"testing"

	"go-sales-insights/internal/model"
)

func TestPrepareAndRun(t *testing.T) {
	raw := mustReadCSV(t, "OrderDate,Region,Product,Qty,Price\n"+
		"2024-01-05,East,Apple,2,10\n"+
		"bad,East,Apple,1,1\n"+
		"2024-02-10,West,Banana,1,5\n")
	m := model.Mapping{
		model.RoleDate:      "OrderDate",
		model.RoleRegion:    "Region",
		model.RoleProduct:   "Product",
		model.RoleQuantity:  "Qty",
		model.RoleUnitPrice: "Price",
	}

	tr := NewTracker(nil)
	p, err := Prepare(raw, m, tr)
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if p.RevenueSource != RevenueDerived || p.DroppedRows != 1 || p.Canonical.Len() != 2 {
		t.Fatalf("prepared = %+v", p)
	}

	res, err := Run(p.Canonical, model.Selection{}, RunOptions{}, tr)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Summary.KPIs.TotalRevenue != 25 || res.Filtered.Len() != 2 {
		t.Fatalf("summary = %+v", res.Summary.KPIs)
	}
	if res.Selection.Dates == nil || len(res.Selection.Categories[model.RoleRegion]) != 2 {
		t.Fatalf("selection not resolved: %+v", res.Selection)
	}

	res, err = Run(p.Canonical, model.Selection{Categories: map[model.Role][]string{model.RoleRegion: {"West"}}}, RunOptions{}, tr)
	if err != nil {
		t.Fatal(err)
	}
	if res.Summary.KPIs.TotalRevenue != 5 {
		t.Fatalf("west revenue = %v", res.Summary.KPIs.TotalRevenue)
	}

	stages := tr.Metrics()
	if len(stages) != 5 || stages[0].Stage != StageNormalize || stages[0].RowsIn != 3 || stages[0].RowsOut != 2 {
		t.Fatalf("stages = %+v", stages)
	}
}

func TestPrepareInvalidMapping(t *testing.T) {
	raw := mustReadCSV(t, salesCSV)
	if _, err := Prepare(raw, model.Mapping{model.RoleQuantity: "Qty", model.RoleUnitPrice: "Qty"}, nil); !errors.Is(err, model.ErrInvalidMapping) {
		t.Fatalf("err = %v, want ErrInvalidMapping", err)
	}
	if _, err := Prepare(nil, model.Mapping{}, nil); !errors.Is(err, model.ErrInvalidMapping) {
		t.Fatalf("nil table err = %v", err)
	}
}

func TestRunEmptySelection(t *testing.T) {
	sel := model.Selection{Categories: map[model.Role][]string{model.RoleRegion: {}}}
	res, err := Run(canonicalFixture(), sel, RunOptions{}, nil)
	if err != nil {
		t.Fatal(err)
	}
	k := res.Summary.KPIs
	if res.Filtered.Len() != 0 || k.Orders != 0 || k.TotalRevenue != 0 || k.AvgOrderValue != 0 {
		t.Fatalf("kpis = %+v", k)
	}
	if res.Summary.Trend != nil || res.Summary.Correlation != nil {
		t.Fatal("trend and correlation should be not applicable")
	}
}

func TestRunInvalidSelection(t *testing.T) {
	sel := model.Selection{Dates: &model.DateRange{From: day("2024-05-01"), To: day("2024-04-01")}}
	if _, err := Run(canonicalFixture(), sel, RunOptions{}, nil); !errors.Is(err, ErrInvalidSelection) {
		t.Fatalf("err = %v, want ErrInvalidSelection", err)
	}
}

func TestTrackerSkipAndReset(t *testing.T) {
	tr := NewTracker(nil)
	for i := 0; i < maxStages+5; i++ {
		tr.Skip("trend", "not applicable")
	}
	stages := tr.Metrics()
	if len(stages) != maxStages || !stages[0].Skipped || stages[0].SkipReason != "not applicable" {
		t.Fatalf("stages = %d, first = %+v", len(stages), stages[0])
	}

	want := errors.New("boom")
	if err := tr.Stage(StageExport, 1, func() (int, error) { return 0, want }); err != want {
		t.Fatalf("Stage err = %v", err)
	}

	tr.Reset()
	if len(tr.Metrics()) != 0 {
		t.Fatal("Reset kept stages")
	}
}

package pipeline

import (
	"go-sales-insights/internal/model"
)

// Prepared is the result of committing a mapping
type Prepared struct {
	Canonical     *model.Table  `json:"-"`
	RevenueSource RevenueSource `json:"revenue_source"`
	DroppedRows   int           `json:"dropped_rows"`
}

// Result is one filter-and-aggregate pass over a canonical table
type Result struct {
	Selection model.Selection `json:"selection"`
	Filtered  *model.Table    `json:"-"`
	Summary   *model.Summary  `json:"summary"`
}

// RunOptions tunes a Run
type RunOptions struct {
	ProductLimit int
	Summary      SummaryOptions
}

// ------------------- Pipeline Runner -------------------

// Prepare validates the mapping and builds the canonical table
func Prepare(raw *model.Table, m model.Mapping, tr *Tracker) (*Prepared, error) {
	if tr == nil {
		tr = NewTracker(nil)
	}
	if err := ValidateMapping(raw, m); err != nil {
		return nil, err
	}

	var p Prepared
	err := tr.Stage(StageNormalize, raw.Len(), func() (int, error) {
		canonical, source, err := Normalize(raw, m)
		if err != nil {
			return 0, err
		}
		p.Canonical = canonical
		p.RevenueSource = source
		p.DroppedRows = raw.Len() - canonical.Len()
		return canonical.Len(), nil
	})
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// Run resolves the selection against the defaults, filters the canonical
// table and summarizes the result. Every call recomputes from canonical.
func Run(canonical *model.Table, sel model.Selection, opts RunOptions, tr *Tracker) (*Result, error) {
	if tr == nil {
		tr = NewTracker(nil)
	}
	if err := ValidateSelection(canonical, sel); err != nil {
		return nil, err
	}

	res := &Result{Selection: ResolveSelection(canonical, sel, opts.ProductLimit)}

	_ = tr.Stage(StageFilter, canonical.Len(), func() (int, error) {
		res.Filtered = Filter(canonical, res.Selection)
		return res.Filtered.Len(), nil
	})

	_ = tr.Stage(StageAggregate, res.Filtered.Len(), func() (int, error) {
		res.Summary = Summarize(res.Filtered, opts.Summary)
		return res.Summary.RowCount, nil
	})
	if res.Summary.Trend == nil {
		tr.Skip("monthly_trend", "not applicable")
	}
	if res.Summary.Correlation == nil {
		tr.Skip("correlation", "not applicable")
	}

	return res, nil
}

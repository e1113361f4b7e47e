// Command insights builds a one-shot sales report from a CSV or Excel file.
//
//	insights -file sales.csv -date OrderDate -region Region -product Product \
//	    -quantity Qty -unit_price Price -from 2024-01-01 -to 2024-06-30
//
// The filtered rows, KPI summary, workbook and summary JSON are written to a
// fresh directory under -output_dir.
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go-sales-insights/internal/config"
	"go-sales-insights/internal/model"
	"go-sales-insights/internal/pipeline"
	"go-sales-insights/internal/store"
	"go-sales-insights/pkg/utils"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

type cliFlags struct {
	file     string
	preset   string
	roles    map[model.Role]*string
	from, to string
	regions  string
	products string
	column   string
	search   string
	user     string
	record   bool
}

func main() {
	fs := flag.NewFlagSet("insights", flag.ExitOnError)
	cfg := config.Define(fs, os.Getenv)

	f := cliFlags{roles: map[model.Role]*string{}}
	fs.StringVar(&f.file, "file", "", "CSV or Excel file to report on (required)")
	fs.StringVar(&f.preset, "preset", "", "Mapping preset from the config file")
	for _, r := range model.Roles() {
		f.roles[r] = fs.String(string(r), "", fmt.Sprintf("Column holding the %s", strings.ReplaceAll(string(r), "_", " ")))
	}
	fs.StringVar(&f.from, "from", "", "First date to include")
	fs.StringVar(&f.to, "to", "", "Last date to include")
	fs.StringVar(&f.regions, "regions", "", "Comma separated regions to include (default all)")
	fs.StringVar(&f.products, "products", "", "Comma separated products to include (default first 10)")
	fs.StringVar(&f.column, "search_column", "", "Column for a text search")
	fs.StringVar(&f.search, "search", "", "Keep rows whose search column contains this text")
	fs.StringVar(&f.user, "user", envOr("INSIGHTS_USER", os.Getenv("USER")), "User recorded in the upload history")
	fs.BoolVar(&f.record, "record", false, "Record the upload in the history database")
	_ = fs.Parse(os.Args[1:])

	if err := cfg.Finish(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	log := cfg.NewLogger()

	set := map[string]bool{}
	fs.Visit(func(fl *flag.Flag) { set[fl.Name] = true })

	if err := run(cfg, f, set, log); err != nil {
		log.WithError(err).Error("report failed")
		os.Exit(1)
	}
}

func run(cfg *config.Config, f cliFlags, set map[string]bool, log *logrus.Logger) error {
	if f.file == "" {
		return errors.New("-file is required")
	}
	data, err := os.ReadFile(f.file)
	if err != nil {
		return fmt.Errorf("failed to read input: %w", err)
	}

	tracker := pipeline.NewTracker(log)

	var raw *model.Table
	if err := tracker.Stage(pipeline.StageIngest, 0, func() (int, error) {
		raw, err = pipeline.Load(filepath.Base(f.file), data)
		return raw.Len(), err
	}); err != nil {
		return err
	}
	log.WithFields(logrus.Fields{"file": f.file, "rows": raw.Len(), "columns": len(raw.Columns)}).Info("📥 file loaded")

	mapping, err := buildMapping(cfg, raw, f)
	if err != nil {
		return err
	}

	prepared, err := pipeline.Prepare(raw, mapping, tracker)
	if err != nil {
		return err
	}
	log.WithFields(logrus.Fields{
		"revenue_source": prepared.RevenueSource,
		"rows":           prepared.Canonical.Len(),
		"dropped":        prepared.DroppedRows,
	}).Info("🔄 dataset prepared")

	sel, err := buildSelection(f, set)
	if err != nil {
		return err
	}
	res, err := pipeline.Run(prepared.Canonical, sel, pipeline.RunOptions{
		ProductLimit: cfg.Report.ProductLimit,
		Summary:      cfg.Report.Summary(),
	}, tracker)
	if err != nil {
		return err
	}

	om := utils.NewOutputManager(cfg.OutputDir)
	runID := uuid.New().String()
	dir, err := om.CreateRunOutputDir(runID)
	if err != nil {
		return err
	}

	failed := 0
	for _, r := range pipeline.ExportReport(dir, res.Filtered, res.Summary, nil) {
		entry := log.WithFields(logrus.Fields{"path": r.Path, "type": r.Type, "records": r.RecordCount})
		if !r.Success {
			entry.WithField("error", r.Error).Error("❌ export failed")
			failed++
			continue
		}
		if size, err := om.GetFileSize(r.Path); err == nil {
			entry = entry.WithField("bytes", size)
		}
		entry.Info("💾 exported")
	}

	if f.record {
		if err := recordUpload(cfg.DBPath, f, raw, data); err != nil {
			log.WithError(err).Warn("failed to record upload")
		}
	}

	k := res.Summary.KPIs
	log.WithFields(logrus.Fields{
		"run_id":          runID,
		"rows":            res.Filtered.Len(),
		"total_revenue":   k.TotalRevenue,
		"orders":          k.Orders,
		"avg_order_value": k.AvgOrderValue,
	}).Info("🏁 report complete")

	if failed > 0 {
		return fmt.Errorf("%d of the report files could not be written", failed)
	}
	return nil
}

// buildMapping layers the detected date column, the preset and the role flags
func buildMapping(cfg *config.Config, raw *model.Table, f cliFlags) (model.Mapping, error) {
	m := pipeline.ProposeMapping(raw, cfg.Report.DateThreshold)
	if f.preset != "" {
		preset, ok := cfg.Presets[f.preset]
		if !ok {
			return nil, fmt.Errorf("%w: unknown preset %q", model.ErrInvalidMapping, f.preset)
		}
		m = pipeline.ApplyPreset(raw, m, preset)
	}
	for r, col := range f.roles {
		if *col != "" {
			m[r] = *col
		}
	}
	return m, nil
}

// buildSelection turns the filter flags into a selection. A category flag
// given as an empty string selects nothing; an absent flag keeps the default.
func buildSelection(f cliFlags, set map[string]bool) (model.Selection, error) {
	var sel model.Selection

	if f.from != "" || f.to != "" {
		rng := &model.DateRange{}
		if f.from != "" {
			d, ok := utils.CoerceDate(f.from)
			if !ok {
				return sel, fmt.Errorf("%w: cannot parse -from %q", pipeline.ErrInvalidSelection, f.from)
			}
			rng.From = d
		}
		if f.to != "" {
			d, ok := utils.CoerceDate(f.to)
			if !ok {
				return sel, fmt.Errorf("%w: cannot parse -to %q", pipeline.ErrInvalidSelection, f.to)
			}
			rng.To = d
		}
		sel.Dates = rng
	}

	sel.Categories = map[model.Role][]string{}
	if set["regions"] {
		sel.Categories[model.RoleRegion] = splitList(f.regions)
	}
	if set["products"] {
		sel.Categories[model.RoleProduct] = splitList(f.products)
	}

	if f.search != "" {
		sel.Search = &model.TextSearch{Column: f.column, Text: f.search}
	}
	return sel, nil
}

func splitList(s string) []string {
	out := []string{}
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func recordUpload(dbPath string, f cliFlags, raw *model.Table, data []byte) error {
	db, err := store.Open(dbPath)
	if err != nil {
		return err
	}
	defer db.Close()
	return db.SaveUpload(&model.Upload{
		Username: f.user,
		Filename: filepath.Base(f.file),
		Rows:     raw.Len(),
		Cols:     len(raw.Columns),
		Checksum: pipeline.Checksum(data),
	})
}

func envOr(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}

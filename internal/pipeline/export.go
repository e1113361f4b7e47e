package pipeline

import (
	"archive/zip"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"go-sales-insights/internal/model"
	"go-sales-insights/pkg/utils"

	"github.com/xuri/excelize/v2"
)

// Conventional chart names; each becomes <name>.png in the archive
const (
	ChartTrendMonthly = "trend_monthly"
	ChartBarRegion    = "bar_region"
	ChartBarProduct   = "bar_product"
	ChartPieRegion    = "pie_region"
	ChartPieProduct   = "pie_product"
)

// Download file names
const (
	FilteredCSVName = "filtered_sales.csv"
	KPISummaryName  = "kpi_summary.csv"
	ChartsZipName   = "charts.zip"
	WorkbookName    = "report.xlsx"
	SummaryJSONName = "summary.json"
)

// ErrUnknownChart rejects chart names outside the fixed set
var ErrUnknownChart = errors.New("unknown chart name")

// ChartNames lists the accepted chart names in archive order
func ChartNames() []string {
	return []string{ChartTrendMonthly, ChartBarRegion, ChartBarProduct, ChartPieRegion, ChartPieProduct}
}

// IsChartName reports whether name is one of the conventional chart names
func IsChartName(name string) bool {
	for _, n := range ChartNames() {
		if n == name {
			return true
		}
	}
	return false
}

// ExportResult represents the result of one export operation
type ExportResult struct {
	Type        string    `json:"type"` // "csv", "xlsx", "json"
	Path        string    `json:"path"`
	RecordCount int       `json:"record_count"`
	Success     bool      `json:"success"`
	Error       string    `json:"error,omitempty"`
	ExportedAt  time.Time `json:"exported_at"`
}

// ------------------- Delimited Text -------------------

// WriteCSV writes the table as UTF-8 comma separated text with a header row
func WriteCSV(w io.Writer, t *model.Table) error {
	cw := csv.NewWriter(w)

	if err := cw.Write(t.Columns); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}
	row := make([]string, len(t.Columns))
	for _, r := range t.Rows {
		for i, col := range t.Columns {
			row[i] = utils.FormatValue(r[col])
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("failed to write CSV row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// kpiRows is the fixed three-row KPI summary
func kpiRows(k model.KPIs) [][2]string {
	return [][2]string{
		{"Total Revenue", strconv.FormatFloat(k.TotalRevenue, 'f', -1, 64)},
		{"Orders", strconv.Itoa(k.Orders)},
		{"Avg Order Value", strconv.FormatFloat(k.AvgOrderValue, 'f', -1, 64)},
	}
}

// WriteKPISummary writes Metric,Value followed by the three headline KPIs
func WriteKPISummary(w io.Writer, k model.KPIs) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"Metric", "Value"}); err != nil {
		return err
	}
	for _, kv := range kpiRows(k) {
		if err := cw.Write(kv[:]); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ------------------- Archive -------------------

// WriteChartArchive bundles PNG images into a deflate zip, one entry per
// chart in conventional order. Unknown chart names are rejected.
func WriteChartArchive(w io.Writer, charts map[string][]byte) error {
	for name := range charts {
		if !IsChartName(name) {
			return fmt.Errorf("%w: %q", ErrUnknownChart, name)
		}
	}

	zw := zip.NewWriter(w)
	for _, name := range ChartNames() {
		img, ok := charts[name]
		if !ok {
			continue
		}
		fw, err := zw.CreateHeader(&zip.FileHeader{
			Name:     name + ".png",
			Method:   zip.Deflate,
			Modified: time.Now(),
		})
		if err != nil {
			return fmt.Errorf("failed to add %s to archive: %w", name, err)
		}
		if _, err := fw.Write(img); err != nil {
			return fmt.Errorf("failed to write %s: %w", name, err)
		}
	}
	return zw.Close()
}

// ------------------- Workbook -------------------

// WriteWorkbook writes an .xlsx with the filtered rows on "Filtered" and the
// KPI summary on "KPIs"
func WriteWorkbook(w io.Writer, t *model.Table, k model.KPIs) error {
	f := excelize.NewFile()
	defer f.Close()

	const dataSheet, kpiSheet = "Filtered", "KPIs"
	if err := f.SetSheetName("Sheet1", dataSheet); err != nil {
		return err
	}
	if _, err := f.NewSheet(kpiSheet); err != nil {
		return err
	}

	header := make([]interface{}, len(t.Columns))
	for i, c := range t.Columns {
		header[i] = c
	}
	if err := f.SetSheetRow(dataSheet, "A1", &header); err != nil {
		return fmt.Errorf("failed to write workbook header: %w", err)
	}
	for i, r := range t.Rows {
		cells := make([]interface{}, len(t.Columns))
		for j, col := range t.Columns {
			cells[j] = workbookValue(r[col])
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(dataSheet, cell, &cells); err != nil {
			return fmt.Errorf("failed to write workbook row %d: %w", i+1, err)
		}
	}

	if err := f.SetSheetRow(kpiSheet, "A1", &[]interface{}{"Metric", "Value"}); err != nil {
		return err
	}
	kpis := []struct {
		name  string
		value interface{}
	}{
		{"Total Revenue", k.TotalRevenue},
		{"Orders", k.Orders},
		{"Avg Order Value", k.AvgOrderValue},
	}
	for i, kv := range kpis {
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := f.SetSheetRow(kpiSheet, cell, &[]interface{}{kv.name, kv.value}); err != nil {
			return err
		}
	}

	return f.Write(w)
}

// workbookValue keeps numbers numeric and prints dates the way the CSV does
func workbookValue(v interface{}) interface{} {
	switch val := v.(type) {
	case nil:
		return nil
	case time.Time:
		return utils.FormatTime(val)
	case int, float64, string:
		return val
	}
	return utils.FormatValue(v)
}

// ------------------- Report Files -------------------

// ExportReport writes the CLI report files into dir and reports each one
func ExportReport(dir string, filtered *model.Table, summary *model.Summary, charts map[string][]byte) []ExportResult {
	type job struct {
		name, kind string
		rows       int
		write      func(io.Writer) error
	}
	jobs := []job{
		{FilteredCSVName, "csv", filtered.Len(), func(w io.Writer) error { return WriteCSV(w, filtered) }},
		{KPISummaryName, "csv", 3, func(w io.Writer) error { return WriteKPISummary(w, summary.KPIs) }},
		{WorkbookName, "xlsx", filtered.Len(), func(w io.Writer) error { return WriteWorkbook(w, filtered, summary.KPIs) }},
		{SummaryJSONName, "json", summary.RowCount, func(w io.Writer) error {
			enc := json.NewEncoder(w)
			enc.SetIndent("", "  ")
			return enc.Encode(summary)
		}},
	}
	if len(charts) > 0 {
		jobs = append(jobs, job{ChartsZipName, "zip", len(charts), func(w io.Writer) error { return WriteChartArchive(w, charts) }})
	}

	results := make([]ExportResult, 0, len(jobs))
	for _, j := range jobs {
		path := filepath.Join(dir, j.name)
		res := ExportResult{Type: j.kind, Path: path, RecordCount: j.rows, ExportedAt: time.Now()}
		if err := writeFile(path, j.write); err != nil {
			res.Error = err.Error()
		} else {
			res.Success = true
		}
		results = append(results, res)
	}
	return results
}

func writeFile(path string, write func(io.Writer) error) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := write(file); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}

package pipeline

import (
	"bytes"
	"compress/gzip"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"

	"go-sales-insights/internal/model"
	"go-sales-insights/pkg/utils"

	"github.com/ulikunitz/xz"
	"github.com/xuri/excelize/v2"
	"github.com/zeebo/xxh3"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// ErrUnsupportedFormat rejects an upload that cannot be read as a table
var ErrUnsupportedFormat = errors.New("unsupported file type")

// ------------------- Ingestion -------------------

// Load parses an uploaded file into a raw table. The format is sniffed from
// the filename extension; .gz and .xz wrappers are unpacked first.
func Load(filename string, data []byte) (*model.Table, error) {
	name := strings.ToLower(strings.TrimSpace(filename))

	switch filepath.Ext(name) {
	case ".gz":
		inner, err := gunzip(data)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrUnsupportedFormat, filename, err)
		}
		return Load(strings.TrimSuffix(name, ".gz"), inner)
	case ".xz":
		inner, err := unxz(data)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrUnsupportedFormat, filename, err)
		}
		return Load(strings.TrimSuffix(name, ".xz"), inner)
	case ".csv":
		t, err := ReadCSV(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrUnsupportedFormat, filename, err)
		}
		return t, nil
	case ".xlsx", ".xls":
		t, err := readWorkbook(data)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrUnsupportedFormat, filename, err)
		}
		return t, nil
	default:
		return nil, fmt.Errorf("%w: %q (upload CSV or Excel)", ErrUnsupportedFormat, filename)
	}
}

// Checksum fingerprints upload bytes for the history log
func Checksum(data []byte) string {
	return strconv.FormatUint(xxh3.Hash(data), 16)
}

// ------------------- CSV Ingestion -------------------

// ReadCSV reads comma separated text with a header row. A UTF-8 byte order
// mark is dropped; blank cells become missing values.
func ReadCSV(r io.Reader) (*model.Table, error) {
	bomless := transform.NewReader(r, unicode.BOMOverride(transform.Nop))

	csvReader := csv.NewReader(bomless)
	csvReader.LazyQuotes = true
	csvReader.FieldsPerRecord = -1

	rows, err := csvReader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("CSV read error: %w", err)
	}
	if len(rows) == 0 {
		return nil, errors.New("no header row")
	}
	return buildTable(rows[0], rows[1:], nil), nil
}

// ------------------- Spreadsheet Ingestion -------------------

// readWorkbook reads the first sheet of a workbook held in memory. Cells are
// read unformatted so currency and thousands formats do not leak into the
// values; cells styled with a date format become time.Time.
func readWorkbook(data []byte) (*model.Table, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, errors.New("no sheets found in workbook")
	}
	sheet := sheets[0]

	rows, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, errors.New("no rows found in first sheet")
	}

	dates := newDateStyles(f)
	cell := func(row, col int, raw string) interface{} {
		v := utils.ParseValue(raw)
		if !utils.IsNumber(v) {
			return v
		}
		// body row 0 is sheet row 2
		if dates.isDate(sheet, col+1, row+2) {
			if t, err := excelize.ExcelDateToTime(utils.Numeric(v), dates.date1904); err == nil {
				return t
			}
		}
		return v
	}
	return buildTable(rows[0], rows[1:], cell), nil
}

// dateStyles answers whether a cell carries a date number format, caching
// the verdict per style index.
type dateStyles struct {
	f        *excelize.File
	date1904 bool
	byStyle  map[int]bool
}

func newDateStyles(f *excelize.File) *dateStyles {
	d := &dateStyles{f: f, byStyle: make(map[int]bool)}
	if props, err := f.GetWorkbookProps(); err == nil && props.Date1904 != nil {
		d.date1904 = *props.Date1904
	}
	return d
}

func (d *dateStyles) isDate(sheet string, col, row int) bool {
	name, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		return false
	}
	idx, err := d.f.GetCellStyle(sheet, name)
	if err != nil || idx == 0 {
		return false
	}
	if v, ok := d.byStyle[idx]; ok {
		return v
	}
	v := false
	if style, err := d.f.GetStyle(idx); err == nil {
		if style.CustomNumFmt != nil {
			v = isDateFormatCode(*style.CustomNumFmt)
		} else {
			v = isBuiltInDateFormat(style.NumFmt)
		}
	}
	d.byStyle[idx] = v
	return v
}

// isBuiltInDateFormat reports the built-in format IDs that show a calendar
// date. Time-only formats (18-21, 45-47) are left as numbers.
func isBuiltInDateFormat(id int) bool {
	switch {
	case id >= 14 && id <= 17, id == 22:
		return true
	case id >= 27 && id <= 36, id >= 50 && id <= 58:
		return true
	}
	return false
}

// isDateFormatCode reports whether a custom format code has a year or day
// token outside quoted literals, escapes and bracketed sections.
func isDateFormatCode(code string) bool {
	inQuote, inBracket := false, false
	for i := 0; i < len(code); i++ {
		c := code[i]
		switch {
		case inQuote:
			inQuote = c != '"'
		case inBracket:
			inBracket = c != ']'
		case c == '"':
			inQuote = true
		case c == '[':
			inBracket = true
		case c == '\\', c == '_', c == '*':
			i++
		case c == 'y', c == 'Y', c == 'd', c == 'D':
			return true
		}
	}
	return false
}

// buildTable converts string cells into typed records. cell converts one body
// cell; nil means utils.ParseValue.
func buildTable(header []string, body [][]string, cell func(row, col int, raw string) interface{}) *model.Table {
	if cell == nil {
		cell = func(_, _ int, raw string) interface{} { return utils.ParseValue(raw) }
	}
	columns := normalizeHeaders(header)
	t := model.NewTable(columns)
	t.Rows = make([]model.Record, 0, len(body))

	for r, row := range body {
		if isBlankRow(row) {
			continue
		}
		rec := make(model.Record, len(columns))
		for i, col := range columns {
			if i < len(row) {
				rec[col] = cell(r, i, row[i])
			} else {
				rec[col] = nil
			}
		}
		t.Rows = append(t.Rows, rec)
	}
	return t
}

func isBlankRow(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

// normalizeHeaders trims names, replaces blanks with Unnamed_A, Unnamed_B, ...
// and suffixes repeats with .1, .2 so every column name is unique.
func normalizeHeaders(header []string) []string {
	out := make([]string, len(header))
	seen := make(map[string]int, len(header))
	emptyCount := 0

	for i, h := range header {
		name := strings.TrimSpace(strings.ReplaceAll(h, `"`, ""))
		if name == "" {
			name = "Unnamed_" + excelColumnName(emptyCount)
			emptyCount++
		}
		if _, dup := seen[name]; dup {
			base := name
			for n := seen[base] + 1; ; n++ {
				candidate := fmt.Sprintf("%s.%d", base, n)
				if _, taken := seen[candidate]; !taken {
					seen[base] = n
					name = candidate
					break
				}
			}
		}
		seen[name] = 0
		out[i] = name
	}
	return out
}

// excelColumnName converts a 0-based index to A, B, ..., Z, AA, AB, ...
func excelColumnName(index int) string {
	result := ""
	index++
	for index > 0 {
		index--
		result = string(rune('A'+index%26)) + result
		index /= 26
	}
	return result
}

// ------------------- Decompression -------------------

func gunzip(data []byte) ([]byte, error) {
	zr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to create gzip reader: %w", err)
	}
	defer zr.Close()
	return io.ReadAll(zr)
}

func unxz(data []byte) ([]byte, error) {
	xr, err := xz.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to create xz reader: %w", err)
	}
	return io.ReadAll(xr)
}

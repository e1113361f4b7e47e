package utils

import (
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
	"time"
)

// ParseDuration safely parses duration string like "5m", falling back to d
func ParseDuration(s string, d time.Duration) time.Duration {
	if s == "" {
		return d
	}
	duration, err := time.ParseDuration(s)
	if err != nil {
		return d
	}
	return duration
}

// ParseValue turns a raw cell into int, float64 or string. Blank cells are nil (missing).
func ParseValue(s string) interface{} {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}

	// try int
	if i, err := strconv.Atoi(s); err == nil {
		return i
	}
	// try float
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return s
		}
		return f
	}
	return s
}

// IsNumber reports whether v holds a Go numeric kind.
func IsNumber(v interface{}) bool {
	switch v.(type) {
	case int, int64, int32, float64, float32:
		return true
	}
	return false
}

// Numeric safely converts supported types to float64.
func Numeric(v interface{}) float64 {
	switch val := v.(type) {
	case int:
		return float64(val)
	case int64:
		return float64(val)
	case float64:
		return val
	case float32:
		return float64(val)
	default:
		if v == nil {
			return 0
		}
		rv := reflect.ValueOf(v)
		if rv.Kind() >= reflect.Int && rv.Kind() <= reflect.Float64 {
			return rv.Convert(reflect.TypeOf(float64(0))).Float()
		}
		return 0
	}
}

// CoerceNumber converts v to a finite float64. Numeric strings are accepted,
// including thousands separators ("1,250.50"). ok is false for anything else.
func CoerceNumber(v interface{}) (float64, bool) {
	switch val := v.(type) {
	case nil:
		return 0, false
	case string:
		s := strings.ReplaceAll(strings.TrimSpace(val), ",", "")
		if s == "" {
			return 0, false
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return 0, false
		}
		return f, true
	case bool, time.Time:
		return 0, false
	}
	if !IsNumber(v) {
		return 0, false
	}
	f := Numeric(v)
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// NumberOrZero is the lossy numeric policy: anything that is not a number counts as zero.
func NumberOrZero(v interface{}) float64 {
	f, _ := CoerceNumber(v)
	return f
}

// dateLayouts are tried in order. Ambiguous numeric dates are read month first.
var dateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	"2006/01/02 15:04:05",
	"2006/01/02",
	"2006.01.02",
	"01/02/2006 15:04:05",
	"01/02/2006 15:04",
	"1/2/2006 15:04",
	"01/02/2006",
	"1/2/2006",
	"01-02-2006",
	"1-2-2006",
	"01/02/06 15:04:05",
	"1/2/06 15:04:05",
	"01/02/06 15:04",
	"1/2/06 15:04",
	"01/02/06",
	"1/2/06",
	"01-02-06",
	"2-Jan-2006",
	"02-Jan-2006",
	"2-Jan-06",
	"02-Jan-06",
	"2 Jan 2006",
	"02 Jan 2006",
	"2 January 2006",
	"Jan 2, 2006",
	"January 2, 2006",
	"Jan 2 2006",
	"2006-01",
}

// CoerceDate parses v as a calendar date/time. time.Time values pass through.
// Bare numbers are never treated as dates.
func CoerceDate(v interface{}) (time.Time, bool) {
	switch val := v.(type) {
	case time.Time:
		if val.IsZero() {
			return time.Time{}, false
		}
		return val, true
	case string:
		s := strings.TrimSpace(val)
		if s == "" {
			return time.Time{}, false
		}
		for _, layout := range dateLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return t, true
			}
		}
	}
	return time.Time{}, false
}

// CoerceText renders v as trimmed text. Missing values stay missing (ok=false).
func CoerceText(v interface{}) (string, bool) {
	switch val := v.(type) {
	case nil:
		return "", false
	case string:
		return strings.TrimSpace(val), true
	case time.Time:
		return FormatTime(val), true
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64), true
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32), true
	case int:
		return strconv.Itoa(val), true
	case int64:
		return strconv.FormatInt(val, 10), true
	case bool:
		return strconv.FormatBool(val), true
	default:
		return "", false
	}
}

// FormatTime prints midnight values as plain dates.
func FormatTime(t time.Time) string {
	if t.Hour() == 0 && t.Minute() == 0 && t.Second() == 0 && t.Nanosecond() == 0 {
		return t.Format("2006-01-02")
	}
	return t.Format("2006-01-02 15:04:05")
}

// FormatValue renders any cell for delimited text output. nil becomes "".
func FormatValue(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	}
	if s, ok := CoerceText(v); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

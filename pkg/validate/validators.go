// Package validate holds the field validators applied to raw dataset columns.
//
// A validator is a pure predicate: it takes one scalar value as it came out of
// the raw files and reports whether the value lies in the column's domain.
// Validators never panic, never log and have no side effects. Missing values
// (nil, NaN, typed nulls) are invalid for every validator.
package validate

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Func is a field validator.
type Func func(v any) bool

// Date domain. A valid date lies strictly between the two bounds.
var (
	// MinDate is the day Twitter started its activity.
	MinDate = time.Date(2006, time.March, 21, 0, 0, 0, 0, time.UTC)
	// MaxDate is the day the dataset was collected.
	MaxDate = time.Date(2022, time.September, 28, 0, 0, 0, 0, time.UTC)
)

// integerPattern accepts digits with an optional all-zero decimal remainder.
// Exponents, embedded letters and real fractions are rejected.
var integerPattern = regexp.MustCompile(`^[+-]?[0-9]+(\.0*)?$`)

// IsInteger reports whether v is an integral number.
// "12", "12.0" and "12." pass; "12.5", "12e3" and "abc" do not.
func IsInteger(v any) bool {
	_, ok := integerValue(v)
	return ok
}

// IsPositiveInteger reports whether v is an integer >= 0.
//
// Zero is accepted: the name follows the dataset's historical checks, where
// "positive" meant non-negative. IsBoundedFlag relies on it.
func IsPositiveInteger(v any) bool {
	n, ok := integerValue(v)
	return ok && n >= 0
}

// IsBoundedFlag reports whether v is the integer 0 or 1.
func IsBoundedFlag(v any) bool {
	if !IsPositiveInteger(v) {
		return false
	}
	n, _ := integerValue(v)
	return n == 0 || n == 1
}

// IsNonEmptyText reports whether the string form of v has at least one byte.
// No trimming is applied, so whitespace-only text passes.
func IsNonEmptyText(v any) bool {
	s, ok := text(v)
	return ok && len(s) > 0
}

// IsBoundedDate reports whether v parses as a timestamp strictly inside
// (MinDate, MaxDate). Values that fail to parse are invalid.
func IsBoundedDate(v any) bool {
	t, ok := parseTime(v)
	if !ok {
		return false
	}
	return t.After(MinDate) && t.Before(MaxDate)
}

// integerValue returns the numeric value of v when v is integral.
func integerValue(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return integralFloat(n)
	case float32:
		return integralFloat(float64(n))
	case bool:
		return 0, false
	}

	s, ok := text(v)
	if !ok || !integerPattern.MatchString(s) {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil && !isRangeErr(err) {
		return 0, false
	}
	return f, true
}

func integralFloat(f float64) (float64, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, f == math.Trunc(f)
}

func isRangeErr(err error) bool {
	ne, ok := err.(*strconv.NumError)
	return ok && ne.Err == strconv.ErrRange
}

// text renders a scalar the way it would appear in the raw file.
// The second result is false for missing values.
func text(v any) (string, bool) {
	switch x := v.(type) {
	case nil:
		return "", false
	case string:
		return x, true
	case []byte:
		return string(x), true
	case *string:
		if x == nil {
			return "", false
		}
		return *x, true
	case float64:
		if math.IsNaN(x) {
			return "", false
		}
		return strconv.FormatFloat(x, 'f', -1, 64), true
	case float32:
		if math.IsNaN(float64(x)) {
			return "", false
		}
		return strconv.FormatFloat(float64(x), 'f', -1, 32), true
	case int:
		return strconv.Itoa(x), true
	case int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return fmt.Sprintf("%d", x), true
	case bool:
		if x {
			return "True", true
		}
		return "False", true
	case time.Time:
		if x.IsZero() {
			return "", false
		}
		return x.Format("2006-01-02 15:04:05"), true
	case *time.Time:
		if x == nil || x.IsZero() {
			return "", false
		}
		return x.Format("2006-01-02 15:04:05"), true
	case fmt.Stringer:
		return x.String(), true
	default:
		return fmt.Sprint(v), true
	}
}

// dateLayouts are tried in order. Layouts without a zone are read as UTC.
var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999-0700",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04",
	"2006-01-02",
	"2006/01/02 15:04:05",
	"2006/01/02",
	time.RubyDate, // Twitter API created_at
}

func parseTime(v any) (time.Time, bool) {
	switch x := v.(type) {
	case time.Time:
		return x, !x.IsZero()
	case *time.Time:
		if x == nil {
			return time.Time{}, false
		}
		return *x, !x.IsZero()
	case string:
		return parseTimeString(x)
	case []byte:
		return parseTimeString(string(x))
	default:
		return time.Time{}, false
	}
}

func parseTimeString(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

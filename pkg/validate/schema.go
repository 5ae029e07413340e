package validate

import (
	"fmt"
	"reflect"
	"sort"
	"time"
)

// Kind names a logical column type.
type Kind string

const (
	KindInteger         Kind = "integer"
	KindPositiveInteger Kind = "positive_integer"
	KindDate            Kind = "date"
	KindText            Kind = "text"
	KindFlag            Kind = "flag"
)

// Func returns the validator for k, or nil for an unknown kind.
func (k Kind) Func() Func {
	switch k {
	case KindInteger:
		return IsInteger
	case KindPositiveInteger:
		return IsPositiveInteger
	case KindDate:
		return IsBoundedDate
	case KindText:
		return IsNonEmptyText
	case KindFlag:
		return IsBoundedFlag
	default:
		return nil
	}
}

// ErrNotScalar is returned by Check for container values. It signals a caller
// bug, not a data quality problem.
var ErrNotScalar = fmt.Errorf("validate: value is not a scalar")

// TableSchema maps column names to kinds.
type TableSchema map[string]Kind

// Columns returns the column names in sorted order.
func (s TableSchema) Columns() []string {
	cols := make([]string, 0, len(s))
	for c := range s {
		cols = append(cols, c)
	}
	sort.Strings(cols)
	return cols
}

// Check validates v against the column's kind. Columns not in the schema are
// always valid. Container inputs return ErrNotScalar.
func (s TableSchema) Check(column string, v any) (bool, error) {
	if !isScalar(v) {
		return false, fmt.Errorf("%w: column %q got %T", ErrNotScalar, column, v)
	}
	kind, ok := s[column]
	if !ok {
		return true, nil
	}
	fn := kind.Func()
	if fn == nil {
		return false, fmt.Errorf("validate: unknown kind %q for column %q", kind, column)
	}
	return fn(v), nil
}

// Schema maps a logical file name to its table schema.
type Schema map[string]TableSchema

// DefaultSchema is the column schema of the tweets/users dataset.
func DefaultSchema() Schema {
	return Schema{
		"tweets.csv": {
			"id":             KindInteger,
			"user_id":        KindInteger,
			"retweet_count":  KindPositiveInteger,
			"reply_count":    KindPositiveInteger,
			"favorite_count": KindPositiveInteger,
			"num_hashtags":   KindPositiveInteger,
			"num_urls":       KindPositiveInteger,
			"num_mentions":   KindPositiveInteger,
			"created_at":     KindDate,
			"text":           KindText,
		},
		"users.csv": {
			"id":             KindInteger,
			"name":           KindText,
			"lang":           KindText,
			"bot":            KindFlag,
			"created_at":     KindDate,
			"statuses_count": KindPositiveInteger,
		},
	}
}

var timeType = reflect.TypeOf(time.Time{})

func isScalar(v any) bool {
	if v == nil {
		return true
	}
	if _, ok := v.([]byte); ok {
		return true
	}
	t := reflect.TypeOf(v)
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	switch t.Kind() {
	case reflect.Slice, reflect.Array, reflect.Map, reflect.Chan, reflect.Func:
		return false
	case reflect.Struct:
		return t == timeType
	default:
		return true
	}
}

package item

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"golang-infomoney-crawler/internal/crawler/normalizer"

	"github.com/shopspring/decimal"
)

// Processor turns the first raw value collected for a field into its output value.
type Processor func(raw interface{}) (interface{}, error)

// Loader collects raw values per output field and applies each field's designated
// processor to the first collected value.
type Loader struct {
	processors map[string]Processor
	values     map[string][]interface{}
}

// NewLoader creates a Loader. Fields without a processor are returned as collected.
func NewLoader(processors map[string]Processor) *Loader {
	return &Loader{
		processors: processors,
		values:     make(map[string][]interface{}),
	}
}

// Add collects a raw value for field. Nil values are ignored so the field stays unset.
func (l *Loader) Add(field string, value interface{}) {
	if value == nil {
		return
	}
	l.values[field] = append(l.values[field], value)
}

// Output returns the processed value of field, or nil when nothing was collected.
func (l *Loader) Output(field string) (interface{}, error) {
	values := l.values[field]
	if len(values) == 0 {
		return nil, nil
	}
	process, ok := l.processors[field]
	if !ok {
		return values[0], nil
	}
	out, err := process(values[0])
	if err != nil {
		return nil, fmt.Errorf("field %s: %w", field, err)
	}
	return out, nil
}

func (l *Loader) decimal(field string) (decimal.NullDecimal, error) {
	out, err := l.Output(field)
	if err != nil || out == nil {
		return decimal.NullDecimal{}, err
	}
	d, ok := out.(decimal.Decimal)
	if !ok {
		return decimal.NullDecimal{}, fmt.Errorf("%w: field %s is %T", ErrRowShape, field, out)
	}
	return decimal.NewNullDecimal(d), nil
}

// DecimalValue normalizes pt-BR strings. JSON numbers are already canonical and skip
// the separator rewrite.
func DecimalValue(raw interface{}) (interface{}, error) {
	switch v := raw.(type) {
	case string:
		return normalizer.Decimal(v)
	case json.Number:
		d, err := decimal.NewFromString(v.String())
		if err != nil {
			return nil, fmt.Errorf("%w: decimal %q", normalizer.ErrParse, v.String())
		}
		return d, nil
	case float64:
		return decimal.NewFromFloat(v), nil
	default:
		return nil, fmt.Errorf("%w: decimal cell of type %T", ErrRowShape, raw)
	}
}

func PercentageValue(raw interface{}) (interface{}, error) {
	return normalizer.Percentage(raw)
}

// DateValue returns a *time.Time, nil for the "n/d" sentinel.
func DateValue(raw interface{}) (interface{}, error) {
	s, ok := raw.(string)
	if !ok {
		return nil, fmt.Errorf("%w: date cell of type %T", ErrRowShape, raw)
	}
	return normalizer.Date(s)
}

// TimestampValue returns Unix seconds as int64.
func TimestampValue(raw interface{}) (interface{}, error) {
	switch v := raw.(type) {
	case json.Number:
		if i, err := v.Int64(); err == nil {
			return i, nil
		}
		f, err := v.Float64()
		if err != nil {
			return nil, fmt.Errorf("%w: timestamp %q", normalizer.ErrParse, v.String())
		}
		return int64(math.Trunc(f)), nil
	case float64:
		return int64(math.Trunc(v)), nil
	case string:
		i, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: timestamp %q", normalizer.ErrParse, v)
		}
		return i, nil
	default:
		return nil, fmt.Errorf("%w: timestamp cell of type %T", ErrRowShape, raw)
	}
}

// TextValue keeps the upstream text verbatim; numbers are rendered as sent.
func TextValue(raw interface{}) (interface{}, error) {
	switch v := raw.(type) {
	case string:
		return v, nil
	case json.Number:
		return v.String(), nil
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), nil
	default:
		return nil, fmt.Errorf("%w: text cell of type %T", ErrRowShape, raw)
	}
}

// Package normalizer converts raw scraped strings (pt-BR decimals, day-first dates and the
// "n/d" sentinel) into canonical decimals and dates.
package normalizer

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// NoData is the upstream marker for a missing value.
const NoData = "n/d"

// ErrParse is returned for values outside every recognized format.
var ErrParse = errors.New("normalizer: unrecognized value")

var (
	// 15-03-2021T00:00:00 as served by the fund API.
	tDateRe = regexp.MustCompile(`(\d{2})-(\d{2})-(20\d{2})T`)
	// Exactly two digits after the last comma, e.g. "1.234,56".
	pctTailRe = regexp.MustCompile(`,(\d{2})$`)

	thousandsStripper = strings.NewReplacer(".", "", ",", "")
)

// Decimal converts a pt-BR formatted number ("1.234,56") into a decimal.
// The "n/d" sentinel yields zero.
func Decimal(raw string) (decimal.Decimal, error) {
	s := strings.TrimSpace(raw)
	if s == NoData {
		return decimal.Zero, nil
	}
	s = strings.ReplaceAll(s, ".", "")
	s = strings.ReplaceAll(s, ",", ".")

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: decimal %q", ErrParse, raw)
	}
	return d, nil
}

// Percentage handles the yield field, whose upstream format is inconsistent. Strings ending in a
// comma followed by exactly two digits use that comma as the decimal point and lose every other
// separator; other strings only lose their commas. Non-string values are returned unchanged,
// converted to decimal.
func Percentage(raw interface{}) (decimal.Decimal, error) {
	switch v := raw.(type) {
	case string:
		return percentageString(v)
	case json.Number:
		d, err := decimal.NewFromString(v.String())
		if err != nil {
			return decimal.Zero, fmt.Errorf("%w: percentage %q", ErrParse, v.String())
		}
		return d, nil
	case float64:
		return decimal.NewFromFloat(v), nil
	case float32:
		return decimal.NewFromFloat32(v), nil
	case int:
		return decimal.NewFromInt(int64(v)), nil
	case int64:
		return decimal.NewFromInt(v), nil
	case decimal.Decimal:
		return v, nil
	default:
		return decimal.Zero, fmt.Errorf("%w: percentage of type %T", ErrParse, raw)
	}
}

func percentageString(raw string) (decimal.Decimal, error) {
	s := strings.TrimSpace(raw)
	s = strings.TrimSpace(strings.TrimSuffix(s, "%"))
	if s == NoData {
		return decimal.Zero, nil
	}

	if loc := pctTailRe.FindStringSubmatchIndex(s); loc != nil {
		head := thousandsStripper.Replace(s[:loc[0]])
		s = head + "." + s[loc[2]:loc[3]]
	} else {
		s = strings.ReplaceAll(s, ",", "")
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: percentage %q", ErrParse, raw)
	}
	return d, nil
}

// Date parses the three date formats served upstream. The result is midnight UTC.
// A nil time with a nil error means the value is unknown ("n/d").
func Date(raw string) (*time.Time, error) {
	s := strings.TrimSpace(raw)
	if s == NoData {
		return nil, nil
	}

	if m := tDateRe.FindStringSubmatch(s); m != nil {
		t, err := time.Parse("02012006", m[1]+m[2]+m[3])
		if err != nil {
			return nil, fmt.Errorf("%w: date %q", ErrParse, raw)
		}
		return &t, nil
	}

	t, err := time.Parse("02/01/2006", s)
	if err != nil {
		t, err = time.Parse("02/01/06", s)
		if err != nil {
			return nil, fmt.Errorf("%w: date %q", ErrParse, raw)
		}
	}
	return &t, nil
}

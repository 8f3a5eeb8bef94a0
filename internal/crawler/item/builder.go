package item

import (
	"errors"
	"fmt"
	"time"
)

// ErrRowShape is returned when an upstream row does not have the expected arity or cell types.
var ErrRowShape = errors.New("unexpected row shape")

const equityRowLen = 7

var priceProcessors = map[string]Processor{
	"date":      DateValue,
	"timestamp": TimestampValue,
	"open":      DecimalValue,
	"high":      DecimalValue,
	"low":       DecimalValue,
	"close":     DecimalValue,
	"volume":    TextValue,
	"variation": DecimalValue,
}

var equityEarningsProcessors = map[string]Processor{
	"type":             TextValue,
	"value":            DecimalValue,
	"pct_factor":       DecimalValue,
	"emission_value":   DecimalValue,
	"date_of_approval": DateValue,
	"date_of_record":   DateValue,
	"date_of_payment":  DateValue,
}

// Fund yields arrive either as numbers or as inconsistently separated strings.
var fundEarningsProcessors = map[string]Processor{
	"value":           DecimalValue,
	"pct_factor":      PercentageValue,
	"date_of_payment": DateValue,
}

// BuildEquityPrice builds a price from [{display, timestamp}, open, close, variation, low, high, volume].
func BuildEquityPrice(code string, row []interface{}) (*PriceRecord, error) {
	if len(row) != equityRowLen {
		return nil, fmt.Errorf("%w: price row has %d cells, want %d", ErrRowShape, len(row), equityRowLen)
	}
	when, ok := row[0].(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("%w: price date cell is %T", ErrRowShape, row[0])
	}

	l := NewLoader(priceProcessors)
	l.Add("date", when["display"])
	l.Add("timestamp", when["timestamp"])
	l.Add("open", row[1])
	l.Add("close", row[2])
	l.Add("variation", row[3])
	l.Add("low", row[4])
	l.Add("high", row[5])
	l.Add("volume", row[6])

	return loadPrice(code, l)
}

// BuildFundPrice builds a price from a fund history entry; only date and close are known.
func BuildFundPrice(code string, row map[string]interface{}) (*PriceRecord, error) {
	if row == nil {
		return nil, fmt.Errorf("%w: empty fund price row", ErrRowShape)
	}
	l := NewLoader(priceProcessors)
	l.Add("date", row["date"])
	l.Add("close", row["value"])

	return loadPrice(code, l)
}

// BuildEquityEarnings builds earnings from
// [type, value, pct_factor, emission_value, date_of_approval, date_of_record, date_of_payment].
func BuildEquityEarnings(code string, row []interface{}) (*EarningsRecord, error) {
	if len(row) != equityRowLen {
		return nil, fmt.Errorf("%w: earnings row has %d cells, want %d", ErrRowShape, len(row), equityRowLen)
	}

	l := NewLoader(equityEarningsProcessors)
	for i, field := range []string{"type", "value", "pct_factor", "emission_value", "date_of_approval", "date_of_record", "date_of_payment"} {
		l.Add(field, row[i])
	}

	rec, err := loadEarnings(code, l)
	if err != nil {
		return nil, err
	}
	typ, err := l.Output("type")
	if err != nil {
		return nil, err
	}
	if typ != nil {
		rec.Type = typ.(string)
	}
	return rec, nil
}

// BuildFundEarnings builds earnings from a fund entry {rendimento, yield, data}.
func BuildFundEarnings(code string, row map[string]interface{}) (*EarningsRecord, error) {
	if row == nil {
		return nil, fmt.Errorf("%w: empty fund earnings row", ErrRowShape)
	}
	l := NewLoader(fundEarningsProcessors)
	l.Add("value", row["rendimento"])
	l.Add("pct_factor", row["yield"])
	l.Add("date_of_payment", row["data"])

	rec, err := loadEarnings(code, l)
	if err != nil {
		return nil, err
	}
	rec.Type = FundEarningsType
	return rec, nil
}

func loadPrice(code string, l *Loader) (*PriceRecord, error) {
	rec := &PriceRecord{AssetCode: code}
	var err error

	if rec.Date, err = l.date("date"); err != nil {
		return nil, err
	}
	ts, err := l.Output("timestamp")
	if err != nil {
		return nil, err
	}
	if ts != nil {
		v := ts.(int64)
		rec.Timestamp = &v
	}
	if rec.Open, err = l.decimal("open"); err != nil {
		return nil, err
	}
	if rec.High, err = l.decimal("high"); err != nil {
		return nil, err
	}
	if rec.Low, err = l.decimal("low"); err != nil {
		return nil, err
	}
	if rec.Close, err = l.decimal("close"); err != nil {
		return nil, err
	}
	if rec.Variation, err = l.decimal("variation"); err != nil {
		return nil, err
	}
	vol, err := l.Output("volume")
	if err != nil {
		return nil, err
	}
	if vol != nil {
		v := vol.(string)
		rec.Volume = &v
	}
	return rec, nil
}

func loadEarnings(code string, l *Loader) (*EarningsRecord, error) {
	rec := &EarningsRecord{AssetCode: code}
	var err error

	if rec.Value, err = l.decimal("value"); err != nil {
		return nil, err
	}
	if rec.PctFactor, err = l.decimal("pct_factor"); err != nil {
		return nil, err
	}
	if rec.EmissionValue, err = l.decimal("emission_value"); err != nil {
		return nil, err
	}
	if rec.DateOfApproval, err = l.date("date_of_approval"); err != nil {
		return nil, err
	}
	if rec.DateOfRecord, err = l.date("date_of_record"); err != nil {
		return nil, err
	}
	if rec.DateOfPayment, err = l.date("date_of_payment"); err != nil {
		return nil, err
	}
	return rec, nil
}

func (l *Loader) date(field string) (*time.Time, error) {
	out, err := l.Output(field)
	if err != nil || out == nil {
		return nil, err
	}
	t, ok := out.(*time.Time)
	if !ok {
		return nil, fmt.Errorf("%w: field %s is %T", ErrRowShape, field, out)
	}
	return t, nil
}

package pipeline

import (
	"context"
	"fmt"
	"time"

	"golang-infomoney-crawler/internal/crawler/item"
)

// DatetimeEnforcement brings every record date to midnight UTC. Prices with neither a
// timestamp nor a date cannot be keyed and are dropped.
type DatetimeEnforcement struct{}

func NewDatetimeEnforcement() *DatetimeEnforcement {
	return &DatetimeEnforcement{}
}

func (p *DatetimeEnforcement) Name() string { return "datetime" }

func (p *DatetimeEnforcement) Process(ctx context.Context, rec item.Record) (item.Record, error) {
	switch r := rec.(type) {
	case *item.PriceRecord:
		if !r.Identified() {
			return nil, fmt.Errorf("%w: price of %s has neither timestamp nor date", ErrDropRecord, r.AssetCode)
		}
		r.Date = midnight(r.Date)
	case *item.EarningsRecord:
		r.DateOfApproval = midnight(r.DateOfApproval)
		r.DateOfRecord = midnight(r.DateOfRecord)
		r.DateOfPayment = midnight(r.DateOfPayment)
	default:
		return nil, fmt.Errorf("%w: %T", item.ErrUnknownRecord, rec)
	}
	return rec, nil
}

func (p *DatetimeEnforcement) Close() error { return nil }

func midnight(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	d := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return &d
}

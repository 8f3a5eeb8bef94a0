package pipeline

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"golang-infomoney-crawler/internal/crawler/item"
	"golang-infomoney-crawler/internal/crawler/stats"
	"golang-infomoney-crawler/pkg/logger"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	name     string
	seen     []item.Record
	err      error
	closeErr error
	closed   bool
}

func (r *recorder) Name() string { return r.name }

func (r *recorder) Process(ctx context.Context, rec item.Record) (item.Record, error) {
	r.seen = append(r.seen, rec)
	if r.err != nil {
		return nil, r.err
	}
	return rec, nil
}

func (r *recorder) Close() error {
	r.closed = true
	return r.closeErr
}

func TestDatetimeEnforcement(t *testing.T) {
	p := NewDatetimeEnforcement()
	ctx := context.Background()

	loc := time.FixedZone("BRT", -3*3600)
	day := time.Date(2021, 3, 15, 10, 30, 0, 0, loc)
	rec, err := p.Process(ctx, &item.PriceRecord{AssetCode: "XYZ3", Date: &day})
	require.NoError(t, err)
	got := rec.(*item.PriceRecord).Date
	assert.Equal(t, time.Date(2021, 3, 15, 0, 0, 0, 0, time.UTC), *got)

	_, err = p.Process(ctx, &item.PriceRecord{AssetCode: "XYZ3"})
	assert.ErrorIs(t, err, ErrDropRecord)

	rec, err = p.Process(ctx, &item.EarningsRecord{AssetCode: "XYZ3", Type: "JCP"})
	require.NoError(t, err)
	assert.Nil(t, rec.(*item.EarningsRecord).DateOfPayment)

	rec, err = p.Process(ctx, &item.EarningsRecord{AssetCode: "XYZ3", Type: "JCP", DateOfPayment: &day})
	require.NoError(t, err)
	assert.Nil(t, rec.(*item.EarningsRecord).DateOfApproval)
	assert.Equal(t, 0, rec.(*item.EarningsRecord).DateOfPayment.Hour())
}

func TestChain_KeepsRecordsWithPartialDates(t *testing.T) {
	collector := stats.NewCollector()
	sink := &recorder{name: "sink"}
	chain := NewChain(collector, logger.NewNop(), NewDatetimeEnforcement(), sink)
	ctx := context.Background()

	price, err := item.BuildEquityPrice("XYZ3", []interface{}{
		map[string]interface{}{"display": "n/d", "timestamp": json.Number("1609459200")},
		"10,50", "10,80", "1,20", "10,40", "10,90", "1.000",
	})
	require.NoError(t, err)
	require.Nil(t, price.Date)

	earnings, err := item.BuildEquityEarnings("XYZ3", []interface{}{"JCP", "0,25", "0", "0", "n/d", "n/d", "n/d"})
	require.NoError(t, err)

	chain.Process(ctx, price)
	chain.Process(ctx, earnings)

	require.Len(t, sink.seen, 2)
	assert.Zero(t, collector.Get(stats.RecordsDropped))
	assert.Len(t, sink.seen[0].IdentityHash(), 32)
}

func TestChain_IsolatesRecords(t *testing.T) {
	collector := stats.NewCollector()
	tail := &recorder{name: "tail"}
	failing := &recorder{name: "failing", closeErr: errors.New("boom")}

	chain := NewChain(collector, logger.NewNop(), NewDatetimeEnforcement(), tail)
	ctx := context.Background()

	day := time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC)
	chain.Process(ctx, &item.PriceRecord{AssetCode: "A", Date: &day})
	chain.Process(ctx, &item.PriceRecord{AssetCode: "B"})
	chain.Process(ctx, &item.PriceRecord{AssetCode: "C", Date: &day})

	require.Len(t, tail.seen, 2)
	assert.Equal(t, "A", tail.seen[0].Code())
	assert.Equal(t, "C", tail.seen[1].Code())
	assert.Equal(t, int64(1), collector.Get(stats.RecordsDropped))

	failing.err = errors.New("stage failure")
	chain = NewChain(collector, logger.NewNop(), failing, tail)
	chain.Process(ctx, &item.PriceRecord{AssetCode: "D", Date: &day})
	assert.Len(t, tail.seen, 2)
	assert.Equal(t, int64(1), collector.Get(stats.RecordsFailed))

	err := chain.Close()
	assert.EqualError(t, err, "boom")
	assert.True(t, failing.closed)
	assert.True(t, tail.closed)
}

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return rows
}

func TestCSVExporter(t *testing.T) {
	dir := t.TempDir()
	exp, err := NewCSVExporter(filepath.Join(dir, "out"), "", "", logger.NewNop())
	require.NoError(t, err)
	ctx := context.Background()

	for _, rec := range []item.Record{samplePrice(), samplePrice()} {
		_, err := exp.Process(ctx, rec)
		require.NoError(t, err)
	}

	approval := time.Date(2021, 2, 10, 0, 0, 0, 0, time.UTC)
	_, err = exp.Process(ctx, &item.EarningsRecord{
		AssetCode:      "XYZ3",
		Type:           "DIVIDENDO",
		Value:          decimal.NewNullDecimal(decimal.RequireFromString("0.512")),
		DateOfApproval: &approval,
	})
	require.NoError(t, err)
	require.NoError(t, exp.Close())

	prices := readCSV(t, filepath.Join(dir, "out", "XYZ3.csv"))
	require.Len(t, prices, 3)
	assert.Equal(t, PriceColumns, prices[0])
	assert.Equal(t, []string{"XYZ3", "2021-01-01", "1609459200", "10.5", "10.9", "10.4", "10.8", "1000", "1.2"}, prices[1])

	earnings := readCSV(t, filepath.Join(dir, "out", "earnings_XYZ3.csv"))
	require.Len(t, earnings, 2)
	assert.Equal(t, EarningsColumns, earnings[0])
	assert.Equal(t, []string{"XYZ3", "DIVIDENDO", "0.512", "", "", "2021-02-10", "", ""}, earnings[1])
}

func TestCSVExporter_CustomWindow(t *testing.T) {
	dir := t.TempDir()
	exp, err := NewCSVExporter(dir, "01/01/2021", "", logger.NewNop())
	require.NoError(t, err)

	_, err = exp.Process(context.Background(), samplePrice())
	require.NoError(t, err)
	require.NoError(t, exp.Close())

	_, err = os.Stat(filepath.Join(dir, "custom_date_XYZ3_01-01-2021_to_None.csv"))
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(dir, "XYZ3.csv"))
	assert.True(t, os.IsNotExist(err))
}

func TestFilename(t *testing.T) {
	assert.Equal(t, "XYZ3.csv", Filename(item.KindPrice, "XYZ3", "", ""))
	assert.Equal(t, "custom_date_XYZ3_01-01-2021_to_31-12-2021.csv", Filename(item.KindPrice, "XYZ3", "01/01/2021", "31/12/2021"))
	assert.Equal(t, "custom_date_XYZ3_None_to_31-12-2021.csv", Filename(item.KindPrice, "XYZ3", "", "31/12/2021"))
	assert.Equal(t, "earnings_XYZ3.csv", Filename(item.KindEarnings, "XYZ3", "01/01/2021", ""))
}

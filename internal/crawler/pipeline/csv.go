package pipeline

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"golang-infomoney-crawler/internal/crawler/item"
	"golang-infomoney-crawler/pkg/logger"

	"github.com/shopspring/decimal"
	"go.uber.org/multierr"
)

var (
	PriceColumns    = []string{"asset_code", "date", "timestamp", "open", "high", "low", "close", "volume", "variation"}
	EarningsColumns = []string{"asset_code", "type", "value", "pct_factor", "emission_value", "date_of_approval", "date_of_record", "date_of_payment"}
)

type exportKey struct {
	kind item.Kind
	code string
}

type exportFile struct {
	file   *os.File
	writer *csv.Writer
}

// CSVExporter appends records to one file per (kind, asset code). Files are opened on the
// first record and stay open until Close. It is not safe for concurrent use; the engine
// dispatcher is its only caller.
type CSVExporter struct {
	dir       string
	startDate string
	endDate   string
	files     map[exportKey]*exportFile
	log       *logger.Logger
}

// NewCSVExporter writes under dir. A non-empty start or end date marks a custom price window
// and changes the price file name.
func NewCSVExporter(dir, startDate, endDate string, log *logger.Logger) (*CSVExporter, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create csv directory %s: %w", dir, err)
	}
	return &CSVExporter{
		dir:       dir,
		startDate: startDate,
		endDate:   endDate,
		files:     make(map[exportKey]*exportFile),
		log:       log,
	}, nil
}

func (p *CSVExporter) Name() string { return "csv" }

func (p *CSVExporter) Process(ctx context.Context, rec item.Record) (item.Record, error) {
	var row []string
	switch r := rec.(type) {
	case *item.PriceRecord:
		row = priceRow(r)
	case *item.EarningsRecord:
		row = earningsRow(r)
	default:
		return nil, fmt.Errorf("%w: %T", item.ErrUnknownRecord, rec)
	}

	f, err := p.fileFor(rec)
	if err != nil {
		return nil, err
	}
	if err := f.writer.Write(row); err != nil {
		return nil, fmt.Errorf("failed to write csv row: %w", err)
	}
	return rec, nil
}

func (p *CSVExporter) fileFor(rec item.Record) (*exportFile, error) {
	key := exportKey{kind: rec.Kind(), code: rec.Code()}
	if f, ok := p.files[key]; ok {
		return f, nil
	}

	path := filepath.Join(p.dir, Filename(key.kind, key.code, p.startDate, p.endDate))
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create csv file %s: %w", path, err)
	}

	f := &exportFile{file: file, writer: csv.NewWriter(file)}
	header := PriceColumns
	if key.kind == item.KindEarnings {
		header = EarningsColumns
	}
	if err := f.writer.Write(header); err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("failed to write csv header: %w", err)
	}

	p.files[key] = f
	p.log.Debug("Opened csv export", logger.StringField("path", path))
	return f, nil
}

// Close flushes and closes every open file. The registry is emptied even when some fail.
func (p *CSVExporter) Close() error {
	var err error
	for key, f := range p.files {
		f.writer.Flush()
		err = multierr.Append(err, f.writer.Error())
		err = multierr.Append(err, f.file.Close())
		delete(p.files, key)
	}
	if err != nil {
		return fmt.Errorf("failed to close csv exports: %w", err)
	}
	return nil
}

// Filename names the export of one asset. Earnings always use earnings_{code}.csv; prices
// crawled over a custom window encode it so they never overwrite the default export.
func Filename(kind item.Kind, code, startDate, endDate string) string {
	if kind == item.KindEarnings {
		return fmt.Sprintf("earnings_%s.csv", code)
	}
	if startDate != "" || endDate != "" {
		return fmt.Sprintf("custom_date_%s_%s_to_%s.csv", code, windowBound(startDate), windowBound(endDate))
	}
	return fmt.Sprintf("%s.csv", code)
}

func windowBound(date string) string {
	if date == "" {
		return "None"
	}
	return strings.ReplaceAll(date, "/", "-")
}

func priceRow(r *item.PriceRecord) []string {
	row := []string{r.AssetCode, formatDate(r.Date), "", formatDecimal(r.Open), formatDecimal(r.High), formatDecimal(r.Low), formatDecimal(r.Close), "", formatDecimal(r.Variation)}
	if r.Timestamp != nil {
		row[2] = strconv.FormatInt(*r.Timestamp, 10)
	}
	if r.Volume != nil {
		row[7] = *r.Volume
	}
	return row
}

func earningsRow(r *item.EarningsRecord) []string {
	return []string{
		r.AssetCode,
		r.Type,
		formatDecimal(r.Value),
		formatDecimal(r.PctFactor),
		formatDecimal(r.EmissionValue),
		formatDate(r.DateOfApproval),
		formatDate(r.DateOfRecord),
		formatDate(r.DateOfPayment),
	}
}

func formatDecimal(d decimal.NullDecimal) string {
	if !d.Valid {
		return ""
	}
	return d.Decimal.String()
}

func formatDate(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(item.DateLayout)
}

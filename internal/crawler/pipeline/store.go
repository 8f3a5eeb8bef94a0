package pipeline

import (
	"context"
	"fmt"
	"time"

	"golang-infomoney-crawler/internal/crawler/item"
	"golang-infomoney-crawler/internal/crawler/repository"
	"golang-infomoney-crawler/internal/crawler/stats"
	"golang-infomoney-crawler/internal/entity"
	"golang-infomoney-crawler/pkg/logger"

	"gorm.io/datatypes"
)

// Store upserts records keyed by their identity hash. Storage failures are logged and do not
// stop the record or the crawl.
type Store struct {
	repo  repository.AssetRepository
	force bool
	stats *stats.Collector
	log   *logger.Logger
}

// NewStore creates the upsert stage. With force set, known records are overwritten.
func NewStore(repo repository.AssetRepository, force bool, collector *stats.Collector, log *logger.Logger) *Store {
	return &Store{repo: repo, force: force, stats: collector, log: log}
}

func (s *Store) Name() string { return "store" }

func (s *Store) Process(ctx context.Context, rec item.Record) (item.Record, error) {
	if _, err := s.Upsert(ctx, rec, s.force); err != nil {
		s.log.ErrorContext(ctx, "Failed to commit the database transaction",
			logger.StringField("asset_code", rec.Code()),
			logger.StringField("hash_id", rec.IdentityHash()),
			logger.ErrorField(err),
			logger.StackField())
	}
	return rec, nil
}

// Upsert inserts rec, updates it when forced, or counts it as a duplicate. The record is
// returned unchanged.
func (s *Store) Upsert(ctx context.Context, rec item.Record, force bool) (item.Record, error) {
	var (
		result repository.UpsertResult
		err    error
	)
	hashID := rec.IdentityHash()

	switch r := rec.(type) {
	case *item.PriceRecord:
		result, err = s.repo.UpsertPrice(ctx, toAssetPrice(hashID, r), force)
	case *item.EarningsRecord:
		result, err = s.repo.UpsertEarnings(ctx, toAssetEarnings(hashID, r), force)
	default:
		return rec, fmt.Errorf("%w: %T", item.ErrUnknownRecord, rec)
	}
	if err != nil {
		return rec, err
	}

	switch result {
	case repository.UpsertInserted:
		s.stats.Inc(stats.RecordsStored)
	case repository.UpsertUpdated:
		s.stats.Inc(stats.RecordsUpdated)
		s.log.DebugContext(ctx, "Updated record", logger.StringField("hash_id", hashID))
	case repository.UpsertSkipped:
		s.stats.Inc(stats.DuplicateKey(string(rec.Kind()), rec.Code()))
		s.log.DebugContext(ctx, "Record already exists in the database, dropping", logger.StringField("hash_id", hashID))
	}
	return rec, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	if err := s.repo.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	s.log.Debug("Closed database session")
	return nil
}

func toAssetPrice(hashID string, r *item.PriceRecord) *entity.AssetPrice {
	price := &entity.AssetPrice{
		HashID:    hashID,
		AssetCode: r.AssetCode,
		Open:      r.Open,
		High:      r.High,
		Low:       r.Low,
		Close:     r.Close,
		Volume:    r.Volume,
		Variation: r.Variation,
		Date:      toDate(r.Date),
	}
	if r.Timestamp != nil {
		ts := time.Unix(*r.Timestamp, 0).UTC()
		price.Timestamp = &ts
	}
	return price
}

func toAssetEarnings(hashID string, r *item.EarningsRecord) *entity.AssetEarnings {
	return &entity.AssetEarnings{
		HashID:         hashID,
		AssetCode:      r.AssetCode,
		Type:           r.Type,
		Value:          r.Value,
		PctFactor:      r.PctFactor,
		EmissionValue:  r.EmissionValue,
		DateOfApproval: toDate(r.DateOfApproval),
		DateOfRecord:   toDate(r.DateOfRecord),
		DateOfPayment:  toDate(r.DateOfPayment),
	}
}

func toDate(t *time.Time) *datatypes.Date {
	if t == nil {
		return nil
	}
	d := datatypes.Date(*t)
	return &d
}

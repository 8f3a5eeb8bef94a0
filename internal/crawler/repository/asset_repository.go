package repository

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang-infomoney-crawler/internal/entity"

	"gorm.io/gorm"
)

// UpsertResult tells what an upsert did.
type UpsertResult string

const (
	UpsertInserted UpsertResult = "INSERTED"
	UpsertUpdated  UpsertResult = "UPDATED"
	UpsertSkipped  UpsertResult = "SKIPPED"
)

// AssetRepository defines the interface for stored prices and earnings.
type AssetRepository interface {
	UpsertPrice(ctx context.Context, price *entity.AssetPrice, force bool) (UpsertResult, error)
	UpsertEarnings(ctx context.Context, earnings *entity.AssetEarnings, force bool) (UpsertResult, error)
	FindPrices(ctx context.Context, assetCode string, from, to *time.Time, limit int) ([]entity.AssetPrice, error)
	FindEarnings(ctx context.Context, assetCode string, limit int) ([]entity.AssetEarnings, error)
	// Close releases the underlying connection pool. Later calls are no-ops.
	Close() error
}

// NewAssetRepository creates a new instance of AssetRepository.
func NewAssetRepository(db *gorm.DB) AssetRepository {
	return &assetRepository{
		db: db,
	}
}

type assetRepository struct {
	db        *gorm.DB
	closeOnce sync.Once
	closeErr  error
}

func (r *assetRepository) UpsertPrice(ctx context.Context, price *entity.AssetPrice, force bool) (UpsertResult, error) {
	fields := map[string]interface{}{
		"asset_code": price.AssetCode,
		"date":       price.Date,
		"timestamp":  price.Timestamp,
		"open":       price.Open,
		"high":       price.High,
		"low":        price.Low,
		"close":      price.Close,
		"volume":     price.Volume,
		"variation":  price.Variation,
	}
	return r.upsert(ctx, &entity.AssetPrice{}, price.HashID, price, fields, force)
}

func (r *assetRepository) UpsertEarnings(ctx context.Context, earnings *entity.AssetEarnings, force bool) (UpsertResult, error) {
	fields := map[string]interface{}{
		"asset_code":       earnings.AssetCode,
		"type":             earnings.Type,
		"value":            earnings.Value,
		"pct_factor":       earnings.PctFactor,
		"emission_value":   earnings.EmissionValue,
		"date_of_approval": earnings.DateOfApproval,
		"date_of_record":   earnings.DateOfRecord,
		"date_of_payment":  earnings.DateOfPayment,
	}
	return r.upsert(ctx, &entity.AssetEarnings{}, earnings.HashID, earnings, fields, force)
}

// upsert inserts row when hashID is unknown. A known hashID is updated in place from fields,
// nulls included, only when force is set.
func (r *assetRepository) upsert(ctx context.Context, model interface{}, hashID string, row interface{}, fields map[string]interface{}, force bool) (UpsertResult, error) {
	result := UpsertSkipped
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(model).Where("hash_id = ?", hashID).Count(&count).Error; err != nil {
			return fmt.Errorf("failed to look up record %s: %w", hashID, err)
		}

		if count == 0 {
			if err := tx.Create(row).Error; err != nil {
				return fmt.Errorf("failed to insert record %s: %w", hashID, err)
			}
			result = UpsertInserted
			return nil
		}

		if !force {
			return nil
		}

		fields["last_updated"] = gorm.Expr("CURRENT_TIMESTAMP")
		if err := tx.Model(model).Where("hash_id = ?", hashID).Updates(fields).Error; err != nil {
			return fmt.Errorf("failed to update record %s: %w", hashID, err)
		}
		result = UpsertUpdated
		return nil
	})
	if err != nil {
		return "", err
	}
	return result, nil
}

// FindPrices returns the most recent limit prices in the window, oldest first.
func (r *assetRepository) FindPrices(ctx context.Context, assetCode string, from, to *time.Time, limit int) ([]entity.AssetPrice, error) {
	var prices []entity.AssetPrice
	q := r.db.WithContext(ctx).Where("asset_code = ?", assetCode)
	if from != nil {
		q = q.Where("date >= ?", *from)
	}
	if to != nil {
		q = q.Where("date <= ?", *to)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Order("date DESC").Order("timestamp DESC").Find(&prices).Error; err != nil {
		return nil, fmt.Errorf("failed to find prices for %s: %w", assetCode, err)
	}

	for i, j := 0, len(prices)-1; i < j; i, j = i+1, j-1 {
		prices[i], prices[j] = prices[j], prices[i]
	}
	return prices, nil
}

func (r *assetRepository) FindEarnings(ctx context.Context, assetCode string, limit int) ([]entity.AssetEarnings, error) {
	var earnings []entity.AssetEarnings
	q := r.db.WithContext(ctx).Where("asset_code = ?", assetCode)
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Order("COALESCE(date_of_payment, date_of_approval) DESC").Find(&earnings).Error; err != nil {
		return nil, fmt.Errorf("failed to find earnings for %s: %w", assetCode, err)
	}
	return earnings, nil
}

func (r *assetRepository) Close() error {
	r.closeOnce.Do(func() {
		sqlDB, err := r.db.DB()
		if err != nil {
			r.closeErr = fmt.Errorf("failed to get database instance: %w", err)
			return
		}
		r.closeErr = sqlDB.Close()
	})
	return r.closeErr
}

package repository

import (
	"context"
	"fmt"
	"testing"
	"time"

	"golang-infomoney-crawler/internal/entity"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(&entity.AssetPrice{}, &entity.AssetEarnings{}))
	return db
}

func TestAssetRepository_FindPricesReturnsMostRecent(t *testing.T) {
	repo := NewAssetRepository(newTestDB(t))
	ctx := context.Background()

	first := time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		day := datatypes.Date(first.AddDate(0, 0, i))
		_, err := repo.UpsertPrice(ctx, &entity.AssetPrice{
			HashID:    fmt.Sprintf("hash-%d", i),
			AssetCode: "XYZ3",
			Date:      &day,
		}, false)
		require.NoError(t, err)
	}

	prices, err := repo.FindPrices(ctx, "XYZ3", nil, nil, 2)
	require.NoError(t, err)
	require.Len(t, prices, 2)
	assert.Equal(t, "hash-3", prices[0].HashID)
	assert.Equal(t, "hash-4", prices[1].HashID)

	prices, err = repo.FindPrices(ctx, "XYZ3", nil, nil, 0)
	require.NoError(t, err)
	require.Len(t, prices, 5)
	assert.Equal(t, "hash-0", prices[0].HashID)
}

func TestAssetRepository_UndatedPrice(t *testing.T) {
	db := newTestDB(t)
	repo := NewAssetRepository(db)
	ctx := context.Background()

	ts := time.Unix(1609459200, 0).UTC()
	res, err := repo.UpsertPrice(ctx, &entity.AssetPrice{HashID: "undated", AssetCode: "XYZ3", Timestamp: &ts}, false)
	require.NoError(t, err)
	assert.Equal(t, UpsertInserted, res)

	var count int64
	require.NoError(t, db.Model(&entity.AssetPrice{}).Where("hash_id = ? AND date IS NULL", "undated").Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

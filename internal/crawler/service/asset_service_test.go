package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"golang-infomoney-crawler/internal/crawler/dto"
	"golang-infomoney-crawler/internal/crawler/repository"
	"golang-infomoney-crawler/internal/entity"
	"golang-infomoney-crawler/pkg/logger"
	"golang-infomoney-crawler/pkg/utils"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

type fakeAssetRepository struct {
	repository.AssetRepository

	code  string
	limit int
	err   error
}

func (r *fakeAssetRepository) FindPrices(ctx context.Context, code string, from, to *time.Time, limit int) ([]entity.AssetPrice, error) {
	r.code, r.limit = code, limit
	if r.err != nil {
		return nil, r.err
	}
	return []entity.AssetPrice{{
		AssetCode: code,
		Date:      utils.ToPointer(datatypes.Date(time.Date(2021, 1, 4, 0, 0, 0, 0, time.UTC))),
		Close:     decimal.NewNullDecimal(decimal.RequireFromString("10.80")),
	}}, nil
}

func (r *fakeAssetRepository) FindEarnings(ctx context.Context, code string, limit int) ([]entity.AssetEarnings, error) {
	r.code, r.limit = code, limit
	if r.err != nil {
		return nil, r.err
	}
	payment := datatypes.Date(time.Date(2021, 3, 15, 0, 0, 0, 0, time.UTC))
	return []entity.AssetEarnings{{AssetCode: code, Type: "Rendimento", DateOfPayment: &payment}}, nil
}

func TestAssetService_GetPrices(t *testing.T) {
	repo := &fakeAssetRepository{}
	svc := NewAssetService(repo, logger.NewNop())

	prices, err := svc.GetPrices(context.Background(), dto.PriceQuery{AssetCode: " xyz3"})
	require.NoError(t, err)
	require.Len(t, prices, 1)
	assert.Equal(t, "XYZ3", repo.code)
	assert.Equal(t, defaultQueryLimit, repo.limit)
	require.NotNil(t, prices[0].Date)
	assert.Equal(t, "2021-01-04", *prices[0].Date)

	_, err = svc.GetPrices(context.Background(), dto.PriceQuery{AssetCode: "XYZ3", Limit: 1_000_000})
	require.NoError(t, err)
	assert.Equal(t, maxQueryLimit, repo.limit)
}

func TestAssetService_InvalidQueries(t *testing.T) {
	svc := NewAssetService(&fakeAssetRepository{}, logger.NewNop())
	ctx := context.Background()

	_, err := svc.GetPrices(ctx, dto.PriceQuery{AssetCode: "../etc"})
	assert.ErrorIs(t, err, ErrInvalidQuery)

	from := time.Date(2021, 2, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC)
	_, err = svc.GetPrices(ctx, dto.PriceQuery{AssetCode: "XYZ3", From: &from, To: &to})
	assert.ErrorIs(t, err, ErrInvalidQuery)

	_, err = svc.GetEarnings(ctx, "", 10)
	assert.ErrorIs(t, err, ErrInvalidQuery)
}

func TestAssetService_GetEarnings(t *testing.T) {
	repo := &fakeAssetRepository{}
	svc := NewAssetService(repo, logger.NewNop())

	earnings, err := svc.GetEarnings(context.Background(), "hglg11", 20)
	require.NoError(t, err)
	require.Len(t, earnings, 1)
	assert.Equal(t, 20, repo.limit)
	assert.Nil(t, earnings[0].DateOfApproval)
	require.NotNil(t, earnings[0].DateOfPayment)
	assert.Equal(t, "2021-03-15", *earnings[0].DateOfPayment)

	repo.err = errors.New("boom")
	_, err = svc.GetEarnings(context.Background(), "HGLG11", 0)
	assert.EqualError(t, err, "boom")
}

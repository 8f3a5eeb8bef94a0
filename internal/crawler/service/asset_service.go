package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"golang-infomoney-crawler/internal/crawler/dto"
	"golang-infomoney-crawler/internal/crawler/repository"
	"golang-infomoney-crawler/pkg/logger"
)

const (
	defaultQueryLimit = 500
	maxQueryLimit     = 5000
)

// ErrInvalidQuery is returned for a malformed asset code or window.
var ErrInvalidQuery = errors.New("invalid query")

var assetCodeRe = regexp.MustCompile(`^[A-Z0-9]{4,10}$`)

// AssetService defines the interface for reading stored asset data.
type AssetService interface {
	GetPrices(ctx context.Context, q dto.PriceQuery) ([]dto.PriceResponse, error)
	GetEarnings(ctx context.Context, assetCode string, limit int) ([]dto.EarningsResponse, error)
}

// NewAssetService creates a new asset service.
func NewAssetService(repo repository.AssetRepository, log *logger.Logger) AssetService {
	return &assetService{
		repo:   repo,
		logger: log,
	}
}

type assetService struct {
	repo   repository.AssetRepository
	logger *logger.Logger
}

func (s *assetService) GetPrices(ctx context.Context, q dto.PriceQuery) ([]dto.PriceResponse, error) {
	code, err := normalizeCode(q.AssetCode)
	if err != nil {
		return nil, err
	}
	if q.From != nil && q.To != nil && q.To.Before(*q.From) {
		return nil, fmt.Errorf("%w: 'to' is before 'from'", ErrInvalidQuery)
	}

	prices, err := s.repo.FindPrices(ctx, code, q.From, q.To, clampLimit(q.Limit))
	if err != nil {
		s.logger.Error("Failed to get prices", logger.StringField("asset_code", code), logger.ErrorField(err))
		return nil, err
	}

	resp := make([]dto.PriceResponse, 0, len(prices))
	for _, p := range prices {
		resp = append(resp, dto.ToPriceResponse(p))
	}
	return resp, nil
}

func (s *assetService) GetEarnings(ctx context.Context, assetCode string, limit int) ([]dto.EarningsResponse, error) {
	code, err := normalizeCode(assetCode)
	if err != nil {
		return nil, err
	}

	earnings, err := s.repo.FindEarnings(ctx, code, clampLimit(limit))
	if err != nil {
		s.logger.Error("Failed to get earnings", logger.StringField("asset_code", code), logger.ErrorField(err))
		return nil, err
	}

	resp := make([]dto.EarningsResponse, 0, len(earnings))
	for _, e := range earnings {
		resp = append(resp, dto.ToEarningsResponse(e))
	}
	return resp, nil
}

func normalizeCode(code string) (string, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if !assetCodeRe.MatchString(code) {
		return "", fmt.Errorf("%w: asset code %q", ErrInvalidQuery, code)
	}
	return code, nil
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultQueryLimit
	}
	if limit > maxQueryLimit {
		return maxQueryLimit
	}
	return limit
}

package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"golang-infomoney-crawler/internal/crawler/dto"
	"golang-infomoney-crawler/internal/crawler/service"
	"golang-infomoney-crawler/pkg/logger"
	"golang-infomoney-crawler/pkg/utils"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAssetService struct {
	lastQuery dto.PriceQuery
	lastLimit int
	err       error
}

func (f *fakeAssetService) GetPrices(ctx context.Context, q dto.PriceQuery) ([]dto.PriceResponse, error) {
	f.lastQuery = q
	if f.err != nil {
		return nil, f.err
	}
	return []dto.PriceResponse{{AssetCode: "XYZ3", Date: utils.ToPointer("2021-01-01")}}, nil
}

func (f *fakeAssetService) GetEarnings(ctx context.Context, code string, limit int) ([]dto.EarningsResponse, error) {
	f.lastLimit = limit
	if f.err != nil {
		return nil, f.err
	}
	return []dto.EarningsResponse{{AssetCode: code, Type: "DIVIDENDO"}}, nil
}

type fakePinger struct{ err error }

func (p fakePinger) PingContext(ctx context.Context) error { return p.err }

func newTestServer(svc service.AssetService, db Pinger) *echo.Echo {
	e := echo.New()
	NewAssetHandler(svc, logger.NewNop()).RegisterRoutes(e.Group("/api/v1/assets"))
	NewHealthHandler(db).RegisterRoutes(e)
	return e
}

func do(e *echo.Echo, target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestAssetHandler_GetPrices(t *testing.T) {
	svc := &fakeAssetService{}
	e := newTestServer(svc, fakePinger{})

	rec := do(e, "/api/v1/assets/xyz3/prices?from=2021-01-01&to=2021-12-31&limit=10")
	require.Equal(t, http.StatusOK, rec.Code)

	var body []dto.PriceResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body, 1)
	require.NotNil(t, body[0].Date)
	assert.Equal(t, "2021-01-01", *body[0].Date)

	assert.Equal(t, "xyz3", svc.lastQuery.AssetCode)
	require.NotNil(t, svc.lastQuery.From)
	require.NotNil(t, svc.lastQuery.To)
	assert.Equal(t, "2021-12-31", svc.lastQuery.To.Format(queryDateLayout))
	assert.Equal(t, 10, svc.lastQuery.Limit)
}

func TestAssetHandler_BadRequests(t *testing.T) {
	e := newTestServer(&fakeAssetService{}, fakePinger{})

	for _, target := range []string{
		"/api/v1/assets/XYZ3/prices?from=01/01/2021",
		"/api/v1/assets/XYZ3/prices?to=yesterday",
		"/api/v1/assets/XYZ3/prices?limit=-1",
		"/api/v1/assets/XYZ3/earnings?limit=abc",
	} {
		assert.Equal(t, http.StatusBadRequest, do(e, target).Code, target)
	}

	invalid := &fakeAssetService{err: fmt.Errorf("%w: asset code %q", service.ErrInvalidQuery, "X")}
	assert.Equal(t, http.StatusBadRequest, do(newTestServer(invalid, fakePinger{}), "/api/v1/assets/X/prices").Code)

	broken := &fakeAssetService{err: errors.New("connection refused")}
	rec := do(newTestServer(broken, fakePinger{}), "/api/v1/assets/XYZ3/earnings")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "connection refused")
}

func TestAssetHandler_GetEarnings(t *testing.T) {
	svc := &fakeAssetService{}
	rec := do(newTestServer(svc, fakePinger{}), "/api/v1/assets/HGLG11/earnings?limit=5")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 5, svc.lastLimit)
	assert.Contains(t, rec.Body.String(), `"type":"DIVIDENDO"`)
}

func TestHealthHandler(t *testing.T) {
	rec := do(newTestServer(&fakeAssetService{}, fakePinger{}), "/health")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(newTestServer(&fakeAssetService{}, fakePinger{err: errors.New("down")}), "/health")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

package http

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"golang-infomoney-crawler/internal/crawler/dto"
	"golang-infomoney-crawler/internal/crawler/service"
	"golang-infomoney-crawler/pkg/logger"

	"github.com/labstack/echo/v4"
)

const queryDateLayout = "2006-01-02"

// AssetHandler handles HTTP requests for stored prices and earnings.
type AssetHandler struct {
	assetService service.AssetService
	logger       *logger.Logger
}

// NewAssetHandler creates a new AssetHandler.
func NewAssetHandler(assetService service.AssetService, logger *logger.Logger) *AssetHandler {
	return &AssetHandler{assetService: assetService, logger: logger}
}

// RegisterRoutes registers the asset routes to the Echo group.
func (h *AssetHandler) RegisterRoutes(g *echo.Group) {
	g.GET("/:code/prices", h.GetPrices)
	g.GET("/:code/earnings", h.GetEarnings)
}

// GetPrices returns the stored prices of an asset, oldest first.
// Query: from, to (YYYY-MM-DD, inclusive) and limit.
func (h *AssetHandler) GetPrices(c echo.Context) error {
	q := dto.PriceQuery{AssetCode: c.Param("code")}

	var err error
	if q.From, err = parseDateParam(c, "from"); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "Invalid 'from' date, expected YYYY-MM-DD"})
	}
	if q.To, err = parseDateParam(c, "to"); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "Invalid 'to' date, expected YYYY-MM-DD"})
	}
	if q.Limit, err = parseLimit(c); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "Invalid limit"})
	}

	prices, err := h.assetService.GetPrices(c.Request().Context(), q)
	if err != nil {
		return h.errorResponse(c, err)
	}
	return c.JSON(http.StatusOK, prices)
}

// GetEarnings returns the stored earnings of an asset, latest first.
func (h *AssetHandler) GetEarnings(c echo.Context) error {
	limit, err := parseLimit(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "Invalid limit"})
	}

	earnings, err := h.assetService.GetEarnings(c.Request().Context(), c.Param("code"), limit)
	if err != nil {
		return h.errorResponse(c, err)
	}
	return c.JSON(http.StatusOK, earnings)
}

func (h *AssetHandler) errorResponse(c echo.Context, err error) error {
	if errors.Is(err, service.ErrInvalidQuery) {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	}
	return c.JSON(http.StatusInternalServerError, echo.Map{"error": "Failed to read asset data"})
}

func parseDateParam(c echo.Context, name string) (*time.Time, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(queryDateLayout, raw)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func parseLimit(c echo.Context) (int, error) {
	raw := c.QueryParam("limit")
	if raw == "" {
		return 0, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 0 {
		return 0, errors.New("invalid limit")
	}
	return limit, nil
}

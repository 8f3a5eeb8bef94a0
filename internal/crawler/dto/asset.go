package dto

import (
	"time"

	"golang-infomoney-crawler/internal/entity"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// PriceQuery filters stored prices of one asset.
type PriceQuery struct {
	AssetCode string
	From      *time.Time
	To        *time.Time
	Limit     int
}

// PriceResponse is one stored daily price.
type PriceResponse struct {
	AssetCode   string              `json:"asset_code"`
	Date        *string             `json:"date"`
	Timestamp   *time.Time          `json:"timestamp,omitempty"`
	Open        decimal.NullDecimal `json:"open"`
	High        decimal.NullDecimal `json:"high"`
	Low         decimal.NullDecimal `json:"low"`
	Close       decimal.NullDecimal `json:"close"`
	Volume      *string             `json:"volume"`
	Variation   decimal.NullDecimal `json:"variation"`
	CreatedAt   time.Time           `json:"created_at"`
	LastUpdated *time.Time          `json:"last_updated,omitempty"`
}

// EarningsResponse is one stored earnings event.
type EarningsResponse struct {
	AssetCode      string              `json:"asset_code"`
	Type           string              `json:"type"`
	Value          decimal.NullDecimal `json:"value"`
	PctFactor      decimal.NullDecimal `json:"pct_factor"`
	EmissionValue  decimal.NullDecimal `json:"emission_value"`
	DateOfApproval *string             `json:"date_of_approval"`
	DateOfRecord   *string             `json:"date_of_record"`
	DateOfPayment  *string             `json:"date_of_payment"`
	CreatedAt      time.Time           `json:"created_at"`
	LastUpdated    *time.Time          `json:"last_updated,omitempty"`
}

const isoDate = "2006-01-02"

// ToPriceResponse converts an entity.AssetPrice to a PriceResponse.
func ToPriceResponse(p entity.AssetPrice) PriceResponse {
	return PriceResponse{
		AssetCode:   p.AssetCode,
		Date:        formatDate(p.Date),
		Timestamp:   p.Timestamp,
		Open:        p.Open,
		High:        p.High,
		Low:         p.Low,
		Close:       p.Close,
		Volume:      p.Volume,
		Variation:   p.Variation,
		CreatedAt:   p.CreatedAt,
		LastUpdated: p.LastUpdated,
	}
}

// ToEarningsResponse converts an entity.AssetEarnings to an EarningsResponse.
func ToEarningsResponse(e entity.AssetEarnings) EarningsResponse {
	return EarningsResponse{
		AssetCode:      e.AssetCode,
		Type:           e.Type,
		Value:          e.Value,
		PctFactor:      e.PctFactor,
		EmissionValue:  e.EmissionValue,
		DateOfApproval: formatDate(e.DateOfApproval),
		DateOfRecord:   formatDate(e.DateOfRecord),
		DateOfPayment:  formatDate(e.DateOfPayment),
		CreatedAt:      e.CreatedAt,
		LastUpdated:    e.LastUpdated,
	}
}

func formatDate(d *datatypes.Date) *string {
	if d == nil {
		return nil
	}
	s := time.Time(*d).Format(isoDate)
	return &s
}

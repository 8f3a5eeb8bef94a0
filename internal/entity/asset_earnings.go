package entity

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// AssetEarnings is a dividend, interest-on-equity or fund yield distribution.
type AssetEarnings struct {
	ID             uint                `gorm:"primaryKey" json:"id"`
	HashID         string              `gorm:"column:hash_id;type:varchar(32);uniqueIndex;not null" json:"hash_id"`
	AssetCode      string              `gorm:"type:varchar(10);not null;index" json:"asset_code"`
	Type           string              `gorm:"not null" json:"type"`
	Value          decimal.NullDecimal `gorm:"type:numeric(14,3)" json:"value"`
	PctFactor      decimal.NullDecimal `gorm:"type:numeric(14,3)" json:"pct_factor"`
	EmissionValue  decimal.NullDecimal `gorm:"type:numeric(14,3)" json:"emission_value"`
	DateOfApproval *datatypes.Date     `json:"date_of_approval,omitempty"`
	DateOfRecord   *datatypes.Date     `json:"date_of_record,omitempty"`
	DateOfPayment  *datatypes.Date     `json:"date_of_payment,omitempty"`
	CreatedAt      time.Time           `gorm:"autoCreateTime" json:"created_at"`
	LastUpdated    *time.Time          `json:"last_updated,omitempty"`
}

func (AssetEarnings) TableName() string {
	return "assets_earnings"
}

package entity

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// AssetPrice is one stored trading day (or intraday pull) of an asset.
type AssetPrice struct {
	ID          uint                `gorm:"primaryKey" json:"id"`
	HashID      string              `gorm:"column:hash_id;type:varchar(32);uniqueIndex;not null" json:"hash_id"`
	AssetCode   string              `gorm:"type:varchar(10);not null;index" json:"asset_code"`
	Date        *datatypes.Date     `json:"date,omitempty"`
	Timestamp   *time.Time          `json:"timestamp,omitempty"`
	Open        decimal.NullDecimal `gorm:"type:numeric(14,2)" json:"open"`
	High        decimal.NullDecimal `gorm:"type:numeric(14,2)" json:"high"`
	Low         decimal.NullDecimal `gorm:"type:numeric(14,2)" json:"low"`
	Close       decimal.NullDecimal `gorm:"type:numeric(14,2)" json:"close"`
	Volume      *string             `json:"volume,omitempty"`
	Variation   decimal.NullDecimal `gorm:"type:numeric(14,2)" json:"variation"`
	CreatedAt   time.Time           `gorm:"autoCreateTime" json:"created_at"`
	LastUpdated *time.Time          `json:"last_updated,omitempty"`
}

// TableName specifies the table name for the AssetPrice model.
func (AssetPrice) TableName() string {
	return "assets_prices"
}

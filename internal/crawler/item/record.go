package item

import (
	"crypto/md5"
	"encoding/hex"
	"errors"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// DateLayout is the canonical rendering of record dates in exports.
const DateLayout = "2006-01-02"

// hashDateLayout renders dates inside identity keys. Keys built with it match the ones
// already stored by the earlier crawler.
const hashDateLayout = "2006-01-02 15:04:05"

// missingKeyPart stands in for an absent date or timestamp in identity keys.
const missingKeyPart = "None"

// FundEarningsType is the category assigned to every fund distribution; the fund
// endpoints do not report one.
const FundEarningsType = "Rendimento"

// Kind identifies the record variant.
type Kind string

const (
	KindPrice    Kind = "price"
	KindEarnings Kind = "earnings"
)

// ErrUnknownRecord is returned by pipeline stages that receive a Record outside the known variants.
var ErrUnknownRecord = errors.New("unknown record kind")

// Record is implemented only by *PriceRecord and *EarningsRecord.
type Record interface {
	Kind() Kind
	Code() string
	// IdentityHash is the md5 hex digest of the record's natural key.
	IdentityHash() string

	isRecord()
}

// PriceRecord is one row of an asset's price history.
type PriceRecord struct {
	AssetCode string
	Date      *time.Time
	Timestamp *int64
	Open      decimal.NullDecimal
	High      decimal.NullDecimal
	Low       decimal.NullDecimal
	Close     decimal.NullDecimal
	Volume    *string
	Variation decimal.NullDecimal
}

func (r *PriceRecord) Kind() Kind   { return KindPrice }
func (r *PriceRecord) Code() string { return r.AssetCode }
func (r *PriceRecord) isRecord()    {}

// IdentityHash hashes asset code and timestamp, falling back to the trading date
// when upstream sent no timestamp.
func (r *PriceRecord) IdentityHash() string {
	key := r.AssetCode
	switch {
	case r.Timestamp != nil:
		key += strconv.FormatInt(*r.Timestamp, 10)
	case r.Date != nil:
		key += r.Date.Format(hashDateLayout)
	default:
		key += missingKeyPart
	}
	return hashIdentifier(key)
}

// Identified reports whether the record carries a timestamp or a date to key it on.
func (r *PriceRecord) Identified() bool {
	return r.Timestamp != nil || r.Date != nil
}

// EarningsRecord is one distribution event of an asset.
type EarningsRecord struct {
	AssetCode      string
	Type           string
	Value          decimal.NullDecimal
	PctFactor      decimal.NullDecimal
	EmissionValue  decimal.NullDecimal
	DateOfApproval *time.Time
	DateOfRecord   *time.Time
	DateOfPayment  *time.Time
}

func (r *EarningsRecord) Kind() Kind   { return KindEarnings }
func (r *EarningsRecord) Code() string { return r.AssetCode }
func (r *EarningsRecord) isRecord()    {}

// IdentityHash hashes asset code, type and approval date. Fund distributions carry no
// approval date, so the payment date stands in.
func (r *EarningsRecord) IdentityHash() string {
	key := r.AssetCode + r.Type
	switch {
	case r.DateOfApproval != nil:
		key += r.DateOfApproval.Format(hashDateLayout)
	case r.DateOfPayment != nil:
		key += r.DateOfPayment.Format(hashDateLayout)
	default:
		key += missingKeyPart
	}
	return hashIdentifier(key)
}

func hashIdentifier(key string) string {
	sum := md5.Sum([]byte(key))
	return hex.EncodeToString(sum[:])
}

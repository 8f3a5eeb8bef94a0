package item

import (
	"testing"
	"time"

	"golang-infomoney-crawler/pkg/utils"

	"github.com/stretchr/testify/assert"
)

func TestEarningsIdentityHash(t *testing.T) {
	approval := time.Date(2021, 2, 10, 0, 0, 0, 0, time.UTC)
	payment := time.Date(2021, 3, 1, 0, 0, 0, 0, time.UTC)

	a := &EarningsRecord{AssetCode: "XYZ3", Type: "DIVIDENDO", DateOfApproval: &approval}
	b := &EarningsRecord{AssetCode: "XYZ3", Type: "DIVIDENDO", DateOfApproval: &approval}

	assert.Equal(t, a.IdentityHash(), b.IdentityHash())
	assert.Len(t, a.IdentityHash(), 32)

	assert.NotEqual(t, a.IdentityHash(), (&EarningsRecord{AssetCode: "ABC3", Type: "DIVIDENDO", DateOfApproval: &approval}).IdentityHash())
	assert.NotEqual(t, a.IdentityHash(), (&EarningsRecord{AssetCode: "XYZ3", Type: "JCP", DateOfApproval: &approval}).IdentityHash())
	assert.NotEqual(t, a.IdentityHash(), (&EarningsRecord{AssetCode: "XYZ3", Type: "DIVIDENDO", DateOfApproval: &payment}).IdentityHash())

	// payment date stands in for a missing approval date
	fund := &EarningsRecord{AssetCode: "HGLG11", Type: FundEarningsType, DateOfPayment: &payment}
	assert.Equal(t, hashIdentifier("HGLG11"+FundEarningsType+"2021-03-01 00:00:00"), fund.IdentityHash())

	undated := &EarningsRecord{AssetCode: "XYZ3", Type: "DIVIDENDO"}
	assert.Equal(t, "d8e8bfa1077f656957c2a9b360bfbc9c", undated.IdentityHash())
}

func TestEarningsIdentityHash_MatchesStoredKeys(t *testing.T) {
	approval := time.Date(2021, 3, 15, 0, 0, 0, 0, time.UTC)
	rec := &EarningsRecord{AssetCode: "XYZ3", Type: "Dividendo", DateOfApproval: &approval}
	assert.Equal(t, "5abf89a50abb4be28e10b5cbef01f31c", rec.IdentityHash())
}

func TestPriceIdentityHash(t *testing.T) {
	day := time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC)

	withTS := &PriceRecord{AssetCode: "XYZ3", Date: &day, Timestamp: utils.ToPointer(int64(1609459200))}
	assert.Equal(t, hashIdentifier("XYZ31609459200"), withTS.IdentityHash())

	withoutTS := &PriceRecord{AssetCode: "XYZ3", Date: &day}
	assert.Equal(t, hashIdentifier("XYZ32021-01-01 00:00:00"), withoutTS.IdentityHash())
	assert.NotEqual(t, withTS.IdentityHash(), withoutTS.IdentityHash())

	onlyTS := &PriceRecord{AssetCode: "XYZ3", Timestamp: utils.ToPointer(int64(1609459200))}
	assert.True(t, onlyTS.Identified())
	assert.Equal(t, withTS.IdentityHash(), onlyTS.IdentityHash())
	assert.False(t, (&PriceRecord{AssetCode: "XYZ3"}).Identified())
}

func TestRecordKinds(t *testing.T) {
	var recs []Record = []Record{&PriceRecord{AssetCode: "A"}, &EarningsRecord{AssetCode: "B"}}
	assert.Equal(t, KindPrice, recs[0].Kind())
	assert.Equal(t, KindEarnings, recs[1].Kind())
	assert.Equal(t, "B", recs[1].Code())
}

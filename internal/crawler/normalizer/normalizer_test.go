package normalizer

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecimal(t *testing.T) {
	cases := []struct {
		raw  string
		want string
	}{
		{"n/d", "0"},
		{"1.234,56", "1234.56"},
		{"12,50", "12.5"},
		{"1.000.000", "1000000"},
		{" 7,3 ", "7.3"},
		{"-0,45", "-0.45"},
	}
	for _, tc := range cases {
		t.Run(tc.raw, func(t *testing.T) {
			got, err := Decimal(tc.raw)
			require.NoError(t, err)
			assert.True(t, got.Equal(decimal.RequireFromString(tc.want)), "got %s", got)
		})
	}
}

func TestDecimal_Invalid(t *testing.T) {
	_, err := Decimal("abc")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrParse)
}

func TestPercentage(t *testing.T) {
	got, err := Percentage("1.234,56")
	require.NoError(t, err)
	assert.True(t, got.Equal(decimal.RequireFromString("1234.56")), "got %s", got)

	got, err = Percentage("0,87%")
	require.NoError(t, err)
	assert.True(t, got.Equal(decimal.RequireFromString("0.87")), "got %s", got)

	// no comma-two-digits tail: only commas are stripped
	got, err = Percentage("1,234.5")
	require.NoError(t, err)
	assert.True(t, got.Equal(decimal.RequireFromString("1234.5")), "got %s", got)

	got, err = Percentage("n/d")
	require.NoError(t, err)
	assert.True(t, got.IsZero())
}

func TestPercentage_NonStringPassesThrough(t *testing.T) {
	got, err := Percentage(json.Number("0.95"))
	require.NoError(t, err)
	assert.True(t, got.Equal(decimal.RequireFromString("0.95")))

	in := decimal.RequireFromString("3.141")
	got, err = Percentage(in)
	require.NoError(t, err)
	assert.True(t, got.Equal(in))

	got, err = Percentage(2)
	require.NoError(t, err)
	assert.True(t, got.Equal(decimal.NewFromInt(2)))

	_, err = Percentage([]string{"x"})
	assert.ErrorIs(t, err, ErrParse)
}

func TestDate(t *testing.T) {
	want := time.Date(2021, 3, 15, 0, 0, 0, 0, time.UTC)

	for _, raw := range []string{"15-03-2021T10:00:00", "15/03/2021", "15/03/21"} {
		t.Run(raw, func(t *testing.T) {
			got, err := Date(raw)
			require.NoError(t, err)
			require.NotNil(t, got)
			assert.True(t, got.Equal(want), "got %s", got)
		})
	}
}

func TestDate_NoData(t *testing.T) {
	got, err := Date("n/d")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestDate_Invalid(t *testing.T) {
	for _, raw := range []string{"2021-03-15", "31/02/2021", "", "yesterday"} {
		_, err := Date(raw)
		assert.ErrorIs(t, err, ErrParse, raw)
	}
}

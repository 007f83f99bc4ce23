package money

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestSplitter_Split(t *testing.T) {
	tests := []struct {
		name             string
		rate             float64
		price            string
		wantCommission   string
		wantSellerCredit string
	}{
		{"round hundred", 0.05, "100.00", "5.00", "95.00"},
		{"rounds half up", 0.05, "10.10", "0.51", "9.59"},
		{"small price", 0.05, "0.01", "0.00", "0.01"},
		{"zero rate", 0, "250.00", "0.00", "250.00"},
		{"ten percent", 0.1, "33.33", "3.33", "30.00"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := NewSplitter(tt.rate)
			require.NoError(t, err)

			split := s.Split(dec(tt.price))
			assert.True(t, dec(tt.wantCommission).Equal(split.Commission), "commission=%s", split.Commission)
			assert.True(t, dec(tt.wantSellerCredit).Equal(split.SellerCredit), "sellerCredit=%s", split.SellerCredit)
			assert.True(t, split.Price.Equal(split.Commission.Add(split.SellerCredit)))
		})
	}
}

func TestNewSplitter_InvalidRate(t *testing.T) {
	_, err := NewSplitter(1)
	assert.ErrorIs(t, err, ErrInvalidRate)

	_, err = NewSplitter(-0.01)
	assert.ErrorIs(t, err, ErrInvalidRate)
}

func TestMinorUnits(t *testing.T) {
	assert.True(t, dec("1500.50").Equal(FromMinor(150050)))
	assert.Equal(t, int64(150050), ToMinor(dec("1500.50")))
	assert.Equal(t, int64(1), ToMinor(dec("0.005")))
}

func TestIsPositive(t *testing.T) {
	assert.True(t, IsPositive(dec("0.01")))
	assert.False(t, IsPositive(dec("0")))
	assert.False(t, IsPositive(dec("-5")))
	assert.False(t, IsPositive(dec("1.001")))
}

func TestAddSub(t *testing.T) {
	assert.True(t, dec("0.30").Equal(Add(dec("0.1"), dec("0.2"))))
	assert.True(t, dec("99.99").Equal(Sub(dec("100"), dec("0.01"))))
}

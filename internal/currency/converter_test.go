package currency

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToMinorUnits_TwoDecimal(t *testing.T) {
	tests := []struct {
		name   string
		amount float64
		want   int64
	}{
		{"whole dollars", 20.00, 2000},
		{"cents", 19.99, 1999},
		{"half rounds up", 10.005, 1001},
		{"below half rounds down", 10.004, 1000},
		{"small amount", 0.01, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ToMinorUnits(tt.amount, "USD")
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestToMinorUnits_ZeroDecimal(t *testing.T) {
	got, err := ToMinorUnits(1500, "JPY")
	require.NoError(t, err)
	assert.Equal(t, int64(1500), got)

	got, err = ToMinorUnits(1500.5, "JPY")
	require.NoError(t, err)
	assert.Equal(t, int64(1501), got)
}

func TestToMinorUnits_ThreeDecimal(t *testing.T) {
	tests := []struct {
		name   string
		amount float64
		want   int64
	}{
		{"exact hundredths scale by ten", 15.12, 15120},
		{"sub-hundredth truncates to hundredth", 15.1249, 15120},
		{"half hundredth rounds up", 15.1250, 15130},
		{"whole dinars", 3, 3000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ToMinorUnits(tt.amount, "KWD")
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			// card networks settle three-decimal currencies on hundredths
			assert.Zero(t, got%10)
		})
	}
}

func TestToMinorUnits_UnknownCurrency(t *testing.T) {
	_, err := ToMinorUnits(19.99, "XYZ")
	assert.ErrorIs(t, err, ErrUnsupportedCurrency)
}

func TestFromMinorUnits(t *testing.T) {
	assert.Equal(t, 19.99, FromMinorUnits(1999, "USD"))
	assert.Equal(t, float64(1500), FromMinorUnits(1500, "JPY"))
	assert.Equal(t, 15.12, FromMinorUnits(15120, "KWD"))
}

func TestDigits(t *testing.T) {
	assert.Equal(t, 2, Digits("usd"))
	assert.Equal(t, 0, Digits("jpy"))
	assert.Equal(t, 3, Digits("BHD"))
	assert.Equal(t, 2, Digits("EUR"))
}

func TestFormat(t *testing.T) {
	assert.Equal(t, "19.99", Format(19.99, "USD"))
	assert.Equal(t, "1500", Format(1500, "JPY"))
	assert.Equal(t, "15.120", Format(15.12, "KWD"))
}

func TestRoundTrip(t *testing.T) {
	minor, err := ToMinorUnits(19.99, "USD")
	require.NoError(t, err)
	assert.Equal(t, 19.99, FromMinorUnits(minor, "USD"))
}

func TestLimits(t *testing.T) {
	limits := &Limits{
		Min: map[string]float64{"USD": 1.00, "*": 0.50},
		Max: map[string]float64{"*": 10000},
	}

	assert.True(t, limits.IsAboveMinimum(1.00, "USD"))
	assert.False(t, limits.IsAboveMinimum(0.99, "USD"))
	// EUR falls through to the wildcard floor
	assert.True(t, limits.IsAboveMinimum(0.50, "EUR"))
	assert.False(t, limits.IsAboveMinimum(0.49, "EUR"))

	assert.True(t, limits.IsBelowMaximum(10000, "USD"))
	assert.False(t, limits.IsBelowMaximum(10000.01, "USD"))
}

func TestLimits_AbsentMeansUnbounded(t *testing.T) {
	assert.True(t, (*Limits)(nil).IsAboveMinimum(0.01, "USD"))
	assert.True(t, (*Limits)(nil).IsBelowMaximum(1e12, "USD"))

	limits := &Limits{Min: map[string]float64{"GBP": 5}}
	assert.True(t, limits.IsAboveMinimum(0.01, "USD"))
	assert.True(t, limits.IsBelowMaximum(1e12, "GBP"))
}

package common

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatUnits(t *testing.T) {
	assert.Equal(t, "0.024981836", FormatUnits(24981836, 9))
	assert.Equal(t, "1.000000", FormatUnits(1000000, 6))
	assert.Equal(t, "0.000001", FormatUnits(1, 6))
	assert.Equal(t, "100", FormatUnits(100, 0))
}

func TestParseUnits(t *testing.T) {
	v, err := ParseUnits("0.024981836", 9)
	require.NoError(t, err)
	assert.Equal(t, uint64(24981836), v)

	v, err = ParseUnits("100", 6)
	require.NoError(t, err)
	assert.Equal(t, uint64(100000000), v)

	v, err = ParseUnits("1.5", 6)
	require.NoError(t, err)
	assert.Equal(t, uint64(1500000), v)

	_, err = ParseUnits("", 6)
	assert.Error(t, err)
	_, err = ParseUnits("1.2.3", 6)
	assert.Error(t, err)
	_, err = ParseUnits("abc", 6)
	assert.Error(t, err)
}

func TestFormatParseRoundTrip(t *testing.T) {
	for _, v := range []uint64{0, 1, 999999, 1000000, 123456789012} {
		got, err := ParseUnits(FormatUnits(v, 6), 6)
		require.NoError(t, err)
		assert.Equal(t, v, got)
	}
}

func TestCompareAmounts(t *testing.T) {
	cmp, err := CompareAmounts("1.5", "2", USDCDecimals)
	require.NoError(t, err)
	assert.Equal(t, -1, cmp)

	cmp, err = CompareAmounts("2.000000", "2", USDCDecimals)
	require.NoError(t, err)
	assert.Equal(t, 0, cmp)

	cmp, err = CompareAmounts("10", "2", USDCDecimals)
	require.NoError(t, err)
	assert.Equal(t, 1, cmp)
}

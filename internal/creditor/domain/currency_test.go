package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCurrency_Display(t *testing.T) {
	assert.Equal(t, "1.5", CurrencyBTC.Display(150000000).String())
	assert.Equal(t, "0.00000001", CurrencyBTC.Display(1).String())
	assert.Equal(t, "2.5", CurrencyETH.Display(2500000000).String())
	assert.Equal(t, "100", CurrencyUSDT.Display(100000000).String())
}

func TestCurrency_FromDisplay(t *testing.T) {
	got, err := CurrencyBTC.FromDisplay(decimal.RequireFromString("1.5"))
	require.NoError(t, err)
	assert.Equal(t, int64(150000000), got)

	got, err = CurrencyUSDT.FromDisplay(decimal.RequireFromString("0.000001"))
	require.NoError(t, err)
	assert.Equal(t, int64(1), got)

	// 超出币种精度：直接报错，不做静默截断
	_, err = CurrencyBTC.FromDisplay(decimal.RequireFromString("0.000000001"))
	assert.Error(t, err)

	// 溢出 int64 最小单位
	_, err = CurrencyETH.FromDisplay(decimal.RequireFromString("99999999999999999999"))
	assert.Error(t, err)
}

func TestCurrency_Valid(t *testing.T) {
	assert.True(t, CurrencyBTC.Valid())
	assert.True(t, CurrencyETH.Valid())
	assert.True(t, CurrencyUSDT.Valid())
	assert.False(t, Currency("DOGE").Valid())
	assert.False(t, Currency("").Valid())
}

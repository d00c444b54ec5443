package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Currency 支持的币种（固定集合，不做开放式字典）
type Currency string

const (
	CurrencyBTC  Currency = "BTC"
	CurrencyETH  Currency = "ETH"
	CurrencyUSDT Currency = "USDT"
)

// Valid 是否是支持的币种
func (c Currency) Valid() bool {
	switch c {
	case CurrencyBTC, CurrencyETH, CurrencyUSDT:
		return true
	}
	return false
}

// Decimals 最小单位相对展示单位的小数位数
// 核心全程使用 int64 最小单位做整数运算，避免浮点漂移
// 注意：ETH 的最小记账单位取 gwei（9位），int64 存 wei 会溢出
func (c Currency) Decimals() int32 {
	switch c {
	case CurrencyBTC:
		return 8 // satoshi
	case CurrencyETH:
		return 9 // gwei
	case CurrencyUSDT:
		return 6
	default:
		return 0
	}
}

// Display 最小单位 -> 展示金额，只在边界调用，核心内部不用
func (c Currency) Display(amount int64) decimal.Decimal {
	return decimal.New(amount, -c.Decimals())
}

// FromDisplay 展示金额 -> 最小单位
// 超出精度的金额直接报错，不做静默截断
func (c Currency) FromDisplay(d decimal.Decimal) (int64, error) {
	shifted := d.Shift(c.Decimals())
	if !shifted.IsInteger() {
		return 0, fmt.Errorf("amount %s exceeds %s precision", d.String(), c)
	}
	if !shifted.BigInt().IsInt64() {
		return 0, fmt.Errorf("amount %s overflows int64 smallest units", d.String())
	}
	return shifted.IntPart(), nil
}

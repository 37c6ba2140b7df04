package domain

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

// Zero 返回新的 0（调用方可以自由修改）。
func Zero() *big.Int { return new(big.Int) }

// CloneAmount 复制金额，nil 视为 0。
func CloneAmount(x *big.Int) *big.Int {
	if x == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(x)
}

// IsPositive x > 0
func IsPositive(x *big.Int) bool {
	return x != nil && x.Sign() > 0
}

// MinAmount 返回较小者的副本。
func MinAmount(a, b *big.Int) *big.Int {
	if a.Cmp(b) <= 0 {
		return CloneAmount(a)
	}
	return CloneAmount(b)
}

// FormatUnits 把最小单位金额格式化为人类可读的数量，例如 1500000 (6 decimals) -> "1.5"。
func FormatUnits(x *big.Int, decimals int32) string {
	if x == nil {
		return "0"
	}
	return decimal.NewFromBigInt(x, -decimals).String()
}

// ParseUnits 把人类可读数量解析为最小单位，超出精度的部分直接截断。
func ParseUnits(s string, decimals int32) (*big.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("amount is empty")
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	if d.IsNegative() {
		return nil, fmt.Errorf("amount must not be negative: %s", s)
	}
	return d.Shift(decimals).Truncate(0).BigInt(), nil
}

// ParseBaseUnits 解析十进制最小单位整数字符串。
func ParseBaseUnits(s string) (*big.Int, error) {
	s = strings.TrimSpace(s)
	x, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("invalid base-unit amount %q", s)
	}
	if x.Sign() < 0 {
		return nil, fmt.Errorf("amount must not be negative: %s", s)
	}
	return x, nil
}

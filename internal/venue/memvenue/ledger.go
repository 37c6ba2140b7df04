package memvenue

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// Ledger 进程内的 ERC-20 余额账本。
type Ledger struct {
	mu       sync.Mutex
	balances map[common.Address]*big.Int

	// Call tracking
	Calls map[string]int
	// Error injection
	ErrorOnNext map[string]error
}

// NewLedger 创建空账本
func NewLedger() *Ledger {
	return &Ledger{
		balances:    make(map[common.Address]*big.Int),
		Calls:       make(map[string]int),
		ErrorOnNext: make(map[string]error),
	}
}

func (l *Ledger) trackCall(name string) error {
	l.Calls[name]++
	if err, ok := l.ErrorOnNext[name]; ok {
		delete(l.ErrorOnNext, name)
		return err
	}
	return nil
}

// FailNext 让下一次 method 调用返回 err。
func (l *Ledger) FailNext(method string, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.ErrorOnNext[method] = err
}

func (l *Ledger) balance(holder common.Address) *big.Int {
	b, ok := l.balances[holder]
	if !ok {
		b = new(big.Int)
		l.balances[holder] = b
	}
	return b
}

// BalanceOf 实现 ports.Asset
func (l *Ledger) BalanceOf(_ context.Context, holder common.Address) (*big.Int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.trackCall("BalanceOf"); err != nil {
		return nil, err
	}
	return new(big.Int).Set(l.balance(holder)), nil
}

// Mint 凭空增加余额
func (l *Ledger) Mint(to common.Address, amount *big.Int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	b := l.balance(to)
	b.Add(b, amount)
}

// Burn 凭空减少余额（不足时清零）
func (l *Ledger) Burn(from common.Address, amount *big.Int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	b := l.balance(from)
	if b.Cmp(amount) < 0 {
		b.SetInt64(0)
		return
	}
	b.Sub(b, amount)
}

// Transfer 转账，余额不足时返回错误且不做任何修改。
func (l *Ledger) Transfer(_ context.Context, from, to common.Address, amount *big.Int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.trackCall("Transfer"); err != nil {
		return err
	}
	if amount.Sign() < 0 {
		return fmt.Errorf("ledger: negative transfer")
	}
	fb := l.balance(from)
	if fb.Cmp(amount) < 0 {
		return fmt.Errorf("ledger: insufficient balance: holder=%s have=%s need=%s", from.Hex(), fb, amount)
	}
	fb.Sub(fb, amount)
	tb := l.balance(to)
	tb.Add(tb, amount)
	return nil
}

package memvenue

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

var (
	// ErrInsufficientLiquidity 场所现金不足以兑付赎回。
	ErrInsufficientLiquidity = errors.New("memvenue: insufficient liquidity")
	// ErrInsufficientShares 赎回份额超过持有份额。
	ErrInsufficientShares = errors.New("memvenue: insufficient shares")
	// ErrZeroShares 存入金额换算后为 0 份额。
	ErrZeroShares = errors.New("memvenue: deposit mints zero shares")
)

// Venue 进程内的 ERC-4626 风格收益场所。
//
// 汇率 = (totalAssets+1)/(totalShares+1)。收益通过 Accrue 挂起，只有 RefreshAccrual 之后才计入汇率，
// 模拟链上"不刷新就是旧汇率"的行为。场所现金保存在 Ledger 中 Address 名下。
type Venue struct {
	mu sync.Mutex

	Address common.Address
	asset   *Ledger

	totalAssets *big.Int
	totalShares *big.Int
	shares      map[common.Address]*big.Int

	pendingYield *big.Int
	pendingLoss  *big.Int
	// liquidityCap 限制可兑付现金（模拟资金被借出），nil 表示不限制
	liquidityCap *big.Int

	// Call tracking
	Calls map[string]int
	// Error injection
	ErrorOnNext map[string]error
}

// New 创建场所，asset 为资产账本
func New(address common.Address, asset *Ledger) *Venue {
	return &Venue{
		Address:      address,
		asset:        asset,
		totalAssets:  new(big.Int),
		totalShares:  new(big.Int),
		shares:       make(map[common.Address]*big.Int),
		pendingYield: new(big.Int),
		pendingLoss:  new(big.Int),
		Calls:        make(map[string]int),
		ErrorOnNext:  make(map[string]error),
	}
}

func (v *Venue) trackCall(name string) error {
	v.Calls[name]++
	if err, ok := v.ErrorOnNext[name]; ok {
		delete(v.ErrorOnNext, name)
		return err
	}
	return nil
}

// FailNext 让下一次 method 调用返回 err。
func (v *Venue) FailNext(method string, err error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.ErrorOnNext[method] = err
}

// CallCount 某方法被调用的次数
func (v *Venue) CallCount(method string) int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.Calls[method]
}

// Accrue 挂起一笔收益，下一次 RefreshAccrual 时计入。
func (v *Venue) Accrue(amount *big.Int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.pendingYield.Add(v.pendingYield, amount)
}

// RealizeLoss 挂起一笔亏损，下一次 RefreshAccrual 时计入。
func (v *Venue) RealizeLoss(amount *big.Int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.pendingLoss.Add(v.pendingLoss, amount)
}

// SetLiquidityCap 设置可兑付现金上限，nil 取消限制。
func (v *Venue) SetLiquidityCap(limit *big.Int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if limit == nil {
		v.liquidityCap = nil
		return
	}
	v.liquidityCap = new(big.Int).Set(limit)
}

// TotalAssets 场所记账总资产
func (v *Venue) TotalAssets() *big.Int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return new(big.Int).Set(v.totalAssets)
}

// TotalShares 场所总份额
func (v *Venue) TotalShares() *big.Int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return new(big.Int).Set(v.totalShares)
}

func (v *Venue) holding(holder common.Address) *big.Int {
	s, ok := v.shares[holder]
	if !ok {
		s = new(big.Int)
		v.shares[holder] = s
	}
	return s
}

// mulDiv x*num/den，roundUp 时向上取整
func mulDiv(x, num, den *big.Int, roundUp bool) *big.Int {
	prod := new(big.Int).Mul(x, num)
	q, r := new(big.Int).QuoRem(prod, den, new(big.Int))
	if roundUp && r.Sign() > 0 {
		q.Add(q, big.NewInt(1))
	}
	return q
}

func (v *Venue) toShares(assets *big.Int, roundUp bool) *big.Int {
	num := new(big.Int).Add(v.totalShares, big.NewInt(1))
	den := new(big.Int).Add(v.totalAssets, big.NewInt(1))
	return mulDiv(assets, num, den, roundUp)
}

func (v *Venue) toAssets(shares *big.Int, roundUp bool) *big.Int {
	num := new(big.Int).Add(v.totalAssets, big.NewInt(1))
	den := new(big.Int).Add(v.totalShares, big.NewInt(1))
	return mulDiv(shares, num, den, roundUp)
}

func (v *Venue) liquidity(ctx context.Context) (*big.Int, error) {
	cash, err := v.asset.BalanceOf(ctx, v.Address)
	if err != nil {
		return nil, err
	}
	if v.liquidityCap != nil && v.liquidityCap.Cmp(cash) < 0 {
		return new(big.Int).Set(v.liquidityCap), nil
	}
	return cash, nil
}

// PlaceFunds 实现 ports.Venue：recipient 付出资产并获得份额。
func (v *Venue) PlaceFunds(ctx context.Context, amount *big.Int, recipient common.Address) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.trackCall("PlaceFunds"); err != nil {
		return err
	}
	minted := v.toShares(amount, false)
	if minted.Sign() == 0 {
		return ErrZeroShares
	}
	if err := v.asset.Transfer(ctx, recipient, v.Address, amount); err != nil {
		return err
	}
	v.totalAssets.Add(v.totalAssets, amount)
	v.totalShares.Add(v.totalShares, minted)
	h := v.holding(recipient)
	h.Add(h, minted)
	return nil
}

// RedeemShares 实现 ports.Venue
func (v *Venue) RedeemShares(ctx context.Context, shares *big.Int, recipient, owner common.Address) (*big.Int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.trackCall("RedeemShares"); err != nil {
		return nil, err
	}
	h := v.holding(owner)
	if h.Cmp(shares) < 0 {
		return nil, fmt.Errorf("%w: have=%s redeem=%s", ErrInsufficientShares, h, shares)
	}
	assets := v.toAssets(shares, false)
	liq, err := v.liquidity(ctx)
	if err != nil {
		return nil, err
	}
	if assets.Cmp(liq) > 0 {
		return nil, fmt.Errorf("%w: available=%s need=%s", ErrInsufficientLiquidity, liq, assets)
	}
	if err := v.asset.Transfer(ctx, v.Address, recipient, assets); err != nil {
		return nil, err
	}
	h.Sub(h, shares)
	v.totalShares.Sub(v.totalShares, shares)
	v.totalAssets.Sub(v.totalAssets, assets)
	return assets, nil
}

// ShareBalance 实现 ports.Venue
func (v *Venue) ShareBalance(_ context.Context, holder common.Address) (*big.Int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.trackCall("ShareBalance"); err != nil {
		return nil, err
	}
	return new(big.Int).Set(v.holding(holder)), nil
}

// RefreshAccrual 实现 ports.Venue：把挂起的收益/亏损计入汇率（同时增减场所现金）。
func (v *Venue) RefreshAccrual(_ context.Context) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.trackCall("RefreshAccrual"); err != nil {
		return err
	}
	if v.pendingYield.Sign() > 0 {
		v.totalAssets.Add(v.totalAssets, v.pendingYield)
		v.asset.Mint(v.Address, v.pendingYield)
		v.pendingYield = new(big.Int)
	}
	if v.pendingLoss.Sign() > 0 {
		loss := v.pendingLoss
		if loss.Cmp(v.totalAssets) > 0 {
			loss = new(big.Int).Set(v.totalAssets)
		}
		v.totalAssets.Sub(v.totalAssets, loss)
		v.asset.Burn(v.Address, loss)
		v.pendingLoss = new(big.Int)
	}
	return nil
}

// SharesToAsset 实现 ports.Venue
func (v *Venue) SharesToAsset(_ context.Context, shares *big.Int, roundUp bool) (*big.Int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.trackCall("SharesToAsset"); err != nil {
		return nil, err
	}
	return v.toAssets(shares, roundUp), nil
}

// AssetToShares 实现 ports.Venue
func (v *Venue) AssetToShares(_ context.Context, assets *big.Int, roundUp bool) (*big.Int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.trackCall("AssetToShares"); err != nil {
		return nil, err
	}
	return v.toShares(assets, roundUp), nil
}

// AvailableLiquidity 实现 ports.Venue
func (v *Venue) AvailableLiquidity(ctx context.Context) (*big.Int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.trackCall("AvailableLiquidity"); err != nil {
		return nil, err
	}
	return v.liquidity(ctx)
}

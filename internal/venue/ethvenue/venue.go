package ethvenue

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
)

// RefreshMode 刷新场所汇率的方式
type RefreshMode string

const (
	// RefreshAccrue 调用 accrueInterest()
	RefreshAccrue RefreshMode = "accrue"
	// RefreshTouch 调用 touch()
	RefreshTouch RefreshMode = "touch"
	// RefreshNone 场所的视图函数已经包含最新利息，无需交易
	RefreshNone RefreshMode = "none"
)

// ParseRefreshMode 解析配置里的刷新方式，空字符串视为 none。
func ParseRefreshMode(s string) (RefreshMode, error) {
	switch RefreshMode(strings.ToLower(strings.TrimSpace(s))) {
	case "", RefreshNone:
		return RefreshNone, nil
	case RefreshAccrue, "accrueinterest":
		return RefreshAccrue, nil
	case RefreshTouch:
		return RefreshTouch, nil
	}
	return "", fmt.Errorf("unknown refresh mode %q (accrue|touch|none)", s)
}

func (m RefreshMode) method() string {
	switch m {
	case RefreshAccrue:
		return "accrueInterest"
	case RefreshTouch:
		return "touch"
	}
	return ""
}

// Config 链上场所配置
type Config struct {
	Venue   common.Address
	Refresh RefreshMode
}

// Venue ERC-4626 收益场所客户端，实现 ports.Venue。
//
// 写操作全部由 Transactor 的签名地址发出，因此 adapter 地址必须等于签名地址。
type Venue struct {
	backend Backend
	tx      *Transactor
	asset   *Token
	address common.Address
	refresh RefreshMode
}

// New 创建场所客户端；资产代币地址从场所的 asset() 读取。
func New(ctx context.Context, backend Backend, tx *Transactor, cfg Config) (*Venue, error) {
	if tx == nil {
		return nil, fmt.Errorf("ethvenue: transactor is required")
	}
	if cfg.Refresh == "" {
		cfg.Refresh = RefreshNone
	}
	v, err := call(ctx, backend, venueABI, cfg.Venue, "asset")
	if err != nil {
		return nil, errors.Wrap(err, "读取场所资产地址失败")
	}
	assetAddr, ok := v.(common.Address)
	if !ok {
		return nil, fmt.Errorf("asset 返回类型异常: %T", v)
	}
	log.Infof("✅ [EthVenue] 场所客户端已初始化: venue=%s asset=%s refresh=%s signer=%s",
		cfg.Venue.Hex(), assetAddr.Hex(), cfg.Refresh, tx.From().Hex())
	return &Venue{
		backend: backend,
		tx:      tx,
		asset:   NewToken(backend, assetAddr, tx),
		address: cfg.Venue,
		refresh: cfg.Refresh,
	}, nil
}

// Asset 场所底层资产代币
func (v *Venue) Asset() *Token { return v.asset }

// Address 场所合约地址
func (v *Venue) Address() common.Address { return v.address }

// PlaceFunds 实现 ports.Venue：必要时先 approve，再 deposit(amount, recipient)。
func (v *Venue) PlaceFunds(ctx context.Context, amount *big.Int, recipient common.Address) error {
	if err := v.asset.EnsureAllowance(ctx, v.address, amount); err != nil {
		return err
	}
	data, err := venueABI.Pack("deposit", amount, recipient)
	if err != nil {
		return errors.Wrap(err, "打包deposit参数失败")
	}
	receipt, err := v.tx.Send(ctx, v.address, data)
	if err != nil {
		return errors.Wrapf(err, "deposit %s", amount)
	}
	log.Infof("[EthVenue] deposit 已确认: amount=%s tx=%s", amount, receipt.TxHash.Hex())
	return nil
}

// RedeemShares 实现 ports.Venue。返回值按 recipient 的资产余额变化计算。
func (v *Venue) RedeemShares(ctx context.Context, shares *big.Int, recipient, owner common.Address) (*big.Int, error) {
	before, err := v.asset.BalanceOf(ctx, recipient)
	if err != nil {
		return nil, err
	}
	data, err := venueABI.Pack("redeem", shares, recipient, owner)
	if err != nil {
		return nil, errors.Wrap(err, "打包redeem参数失败")
	}
	receipt, err := v.tx.Send(ctx, v.address, data)
	if err != nil {
		return nil, errors.Wrapf(err, "redeem %s shares", shares)
	}
	after, err := v.asset.BalanceOf(ctx, recipient)
	if err != nil {
		return nil, err
	}
	got := new(big.Int).Sub(after, before)
	if got.Sign() < 0 {
		got.SetInt64(0)
	}
	log.Infof("[EthVenue] redeem 已确认: shares=%s assets=%s tx=%s", shares, got, receipt.TxHash.Hex())
	return got, nil
}

// ShareBalance 实现 ports.Venue
func (v *Venue) ShareBalance(ctx context.Context, holder common.Address) (*big.Int, error) {
	return callUint(ctx, v.backend, venueABI, v.address, "balanceOf", holder)
}

// RefreshAccrual 实现 ports.Venue
func (v *Venue) RefreshAccrual(ctx context.Context) error {
	method := v.refresh.method()
	if method == "" {
		return nil
	}
	data, err := venueABI.Pack(method)
	if err != nil {
		return errors.Wrapf(err, "打包%s参数失败", method)
	}
	if _, err := v.tx.Send(ctx, v.address, data); err != nil {
		return errors.Wrap(err, method)
	}
	return nil
}

// SharesToAsset 实现 ports.Venue：向下取整用 convertToAssets，向上取整用 previewMint。
func (v *Venue) SharesToAsset(ctx context.Context, shares *big.Int, roundUp bool) (*big.Int, error) {
	method := "convertToAssets"
	if roundUp {
		method = "previewMint"
	}
	return callUint(ctx, v.backend, venueABI, v.address, method, shares)
}

// AssetToShares 实现 ports.Venue：向下取整用 convertToShares，向上取整用 previewWithdraw。
func (v *Venue) AssetToShares(ctx context.Context, assets *big.Int, roundUp bool) (*big.Int, error) {
	method := "convertToShares"
	if roundUp {
		method = "previewWithdraw"
	}
	return callUint(ctx, v.backend, venueABI, v.address, method, assets)
}

// AvailableLiquidity 实现 ports.Venue：场所合约当前持有的资产现金。
func (v *Venue) AvailableLiquidity(ctx context.Context) (*big.Int, error) {
	return v.asset.BalanceOf(ctx, v.address)
}

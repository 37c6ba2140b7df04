package ports

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Venue 外部收益场所（借贷池 / ERC-4626 vault）的最小能力接口。
//
// 所有金额均为链上最小单位（uint256 语义）。实现方不得修改传入的 *big.Int。
type Venue interface {
	// PlaceFunds 存入 amount 资产，份额记到 recipient 名下。
	PlaceFunds(ctx context.Context, amount *big.Int, recipient common.Address) error
	// RedeemShares 销毁 owner 的 shares 份额，资产转给 recipient，返回实际收到的资产数量。
	RedeemShares(ctx context.Context, shares *big.Int, recipient, owner common.Address) (*big.Int, error)
	// ShareBalance 返回 holder 持有的份额。
	ShareBalance(ctx context.Context, holder common.Address) (*big.Int, error)
	// RefreshAccrual 刷新利息累计 / 汇率。任何换算之前都必须调用。
	RefreshAccrual(ctx context.Context) error
	// SharesToAsset 份额 -> 资产，roundUp 指定取整方向。
	SharesToAsset(ctx context.Context, shares *big.Int, roundUp bool) (*big.Int, error)
	// AssetToShares 资产 -> 份额，roundUp 指定取整方向。
	AssetToShares(ctx context.Context, assets *big.Int, roundUp bool) (*big.Int, error)
	// AvailableLiquidity 场所当前实际可兑付的资产数量（不是调用方的理论仓位）。
	AvailableLiquidity(ctx context.Context) (*big.Int, error)
}

// Asset 可替代资产账本（ERC-20 balanceOf）。
type Asset interface {
	BalanceOf(ctx context.Context, holder common.Address) (*big.Int, error)
}

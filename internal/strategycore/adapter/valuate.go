package adapter

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"

	"github.com/betbot/vaultgate/internal/domain"
)

// Valuate 返回 adapter 控制的全部资产：闲置余额 + 场所份额按最新汇率换算（向下取整）。
// shutdown 之后依然可调用；场所自身的亏损会如实反映为下降。
func (a *Adapter) Valuate(ctx context.Context) (*big.Int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.refresh(ctx); err != nil {
		return nil, err
	}
	deployed, _, err := a.deployed(ctx)
	if err != nil {
		return nil, err
	}
	idle, err := a.idle(ctx)
	if err != nil {
		return nil, err
	}
	total := new(big.Int).Add(idle, deployed)
	log.Debugf("[Adapter] 估值: idle=%s deployed=%s total=%s", idle, deployed, total)
	return total, nil
}

// deployed 场所仓位按当前汇率折算的资产数量（不刷新汇率）。
func (a *Adapter) deployed(ctx context.Context) (assets, shares *big.Int, err error) {
	shares, err = a.shareBalance(ctx)
	if err != nil {
		return nil, nil, err
	}
	if shares.Sign() == 0 {
		return domain.Zero(), shares, nil
	}
	assets, err = a.venue.SharesToAsset(ctx, shares, false)
	if err != nil {
		return nil, nil, fmt.Errorf("convert %s shares to assets: %w", shares, err)
	}
	return assets, shares, nil
}

// WithdrawLimit 某账户当前可取出的上限（只读）。
//
// 解锁前只包含闲置余额；解锁后再加上场所当前实际可兑付的流动性，
// 保证上限不会超过场所能兑现的数额。account 不影响结果。
func (a *Adapter) WithdrawLimit(ctx context.Context, account common.Address) (*big.Int, error) {
	_ = account
	a.mu.Lock()
	defer a.mu.Unlock()

	now, err := a.now(ctx)
	if err != nil {
		return nil, err
	}
	idle, err := a.idle(ctx)
	if err != nil {
		return nil, err
	}
	if now < a.state.UnlockTime {
		return idle, nil
	}
	liquidity, err := a.venue.AvailableLiquidity(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "venue available liquidity")
	}
	return new(big.Int).Add(idle, liquidity), nil
}

// Status 汇总快照。只读，不刷新场所汇率，因此 Deployed 可能滞后于 Valuate。
func (a *Adapter) Status(ctx context.Context) (*domain.Status, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	now, err := a.now(ctx)
	if err != nil {
		return nil, err
	}
	idle, err := a.idle(ctx)
	if err != nil {
		return nil, err
	}
	deployed, shares, err := a.deployed(ctx)
	if err != nil {
		return nil, err
	}
	liquidity, err := a.venue.AvailableLiquidity(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "venue available liquidity")
	}
	reportedIdle, err := a.vault.TotalIdle(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "vault total idle")
	}
	reportedDebt, err := a.vault.TotalDebt(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "vault total debt")
	}
	shutdown, err := a.vault.IsShutdown(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "vault shutdown flag")
	}

	return &domain.Status{
		AdapterState:   a.state.Clone(),
		Now:            now,
		Locked:         now < a.state.UnlockTime,
		Idle:           idle,
		VenueShares:    shares,
		Deployed:       deployed,
		ReportedIdle:   reportedIdle,
		ReportedDebt:   reportedDebt,
		Shutdown:       shutdown,
		VenueLiquidity: liquidity,
	}, nil
}

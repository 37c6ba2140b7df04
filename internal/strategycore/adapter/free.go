package adapter

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/betbot/vaultgate/internal/domain"
)

// Free 在解锁时间之后从场所取回 amount 等值的资产，返回实际取回数量。
//
// 解锁前直接返回 ErrLocked，不做任何部分取回。份额按向下取整换算；
// 请求值与实际取回值之间的差额不在这里补足，由宿主在下一次汇报中记为亏损。
func (a *Adapter) Free(ctx context.Context, amount *big.Int) (*big.Int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	now, err := a.now(ctx)
	if err != nil {
		return nil, err
	}
	if now < a.state.UnlockTime {
		return nil, fmt.Errorf("%w: now=%d unlockTime=%d", ErrLocked, now, a.state.UnlockTime)
	}
	if !domain.IsPositive(amount) {
		return domain.Zero(), nil
	}

	if err := a.refresh(ctx); err != nil {
		return nil, err
	}
	shares, err := a.venue.AssetToShares(ctx, amount, false)
	if err != nil {
		return nil, fmt.Errorf("convert %s assets to shares: %w", amount, err)
	}
	if shares.Sign() == 0 {
		log.Debugf("[Adapter] 取回数量不足一份额，跳过: amount=%s", amount)
		return domain.Zero(), nil
	}

	got, err := a.redeem(ctx, shares)
	if err != nil {
		return nil, err
	}
	if got.Cmp(amount) < 0 {
		log.Warnf("⚠️ [Adapter] 取回不足: requested=%s recovered=%s shares=%s", amount, got, shares)
	} else {
		log.Infof("[Adapter] 已从场所取回: requested=%s recovered=%s shares=%s", amount, got, shares)
	}
	return got, nil
}

// EmergencyFree 管理员在策略 shutdown 后手动从场所取回资金。
//
// 份额按向上取整换算，再钳制到 adapter 实际持有的份额，避免请求赎回超过持仓。
// 本操作不记录盈亏，需要随后调用 Valuate 反映结果。
func (a *Adapter) EmergencyFree(ctx context.Context, caller common.Address, amount *big.Int) (*big.Int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.authorize(ctx, caller); err != nil {
		return nil, err
	}
	shutdown, err := a.vault.IsShutdown(ctx)
	if err != nil {
		return nil, fmt.Errorf("shutdown check: %w", err)
	}
	if !shutdown {
		return nil, ErrNotShutdown
	}
	if !domain.IsPositive(amount) {
		return domain.Zero(), nil
	}

	if err := a.refresh(ctx); err != nil {
		return nil, err
	}
	wanted, err := a.venue.AssetToShares(ctx, amount, true)
	if err != nil {
		return nil, fmt.Errorf("convert %s assets to shares: %w", amount, err)
	}
	held, err := a.shareBalance(ctx)
	if err != nil {
		return nil, err
	}
	shares := domain.MinAmount(wanted, held)
	if shares.Sign() == 0 {
		log.Warnf("⚠️ [Adapter] 紧急取回: 场所中无可赎回份额")
		return domain.Zero(), nil
	}

	got, err := a.redeem(ctx, shares)
	if err != nil {
		return nil, err
	}
	log.Warnf("🚨 [Adapter] 紧急取回完成: caller=%s requested=%s shares=%s (held=%s) recovered=%s",
		caller.Hex(), amount, shares, held, got)
	return got, nil
}

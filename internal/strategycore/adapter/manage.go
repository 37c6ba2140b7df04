package adapter

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
)

// SetUnlockTime 管理员修改解锁时间。冻结后返回 ErrFrozen；未冻结时无条件覆盖（可提前也可推后）。
func (a *Adapter) SetUnlockTime(ctx context.Context, caller common.Address, unlockTime uint64) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.authorize(ctx, caller); err != nil {
		return err
	}
	if a.state.UnlockFrozen {
		return ErrFrozen
	}

	prev := a.state.UnlockTime
	next := a.state.Clone()
	next.UnlockTime = unlockTime
	if err := a.apply(next, nil); err != nil {
		return err
	}
	log.Infof("🔓 [Adapter] 解锁时间已更新: %d -> %d caller=%s", prev, unlockTime, caller.Hex())
	return nil
}

// FreezeUnlock 单向冻结解锁时间，重复调用无副作用。
func (a *Adapter) FreezeUnlock(ctx context.Context, caller common.Address) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.authorize(ctx, caller); err != nil {
		return err
	}
	if a.state.UnlockFrozen {
		return nil
	}

	next := a.state.Clone()
	next.UnlockFrozen = true
	if err := a.apply(next, nil); err != nil {
		return err
	}
	log.Infof("🧊 [Adapter] 解锁时间已冻结: unlockTime=%d caller=%s", a.state.UnlockTime, caller.Hex())
	return nil
}

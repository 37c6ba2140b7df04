package adapter

import (
	"context"
	"math/big"

	"github.com/pkg/errors"

	"github.com/betbot/vaultgate/internal/domain"
)

// Deploy 把 amount（当前全部可部署的闲置资产）放入场所。
//
// 阈值 latch 未翻转时，只有 amount 严格大于 DeploymentThreshold 才会翻转并部署；
// 否则资金保持闲置，等待之后某次调用时累计的闲置余额越过阈值。latch 一旦翻转永不复位。
func (a *Adapter) Deploy(ctx context.Context, amount *big.Int) error {
	if !domain.IsPositive(amount) {
		return nil
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.state.ThresholdMet {
		return a.place(ctx, amount)
	}

	if amount.Cmp(a.state.DeploymentThreshold) <= 0 {
		log.Debugf("⏸️ [Adapter] 未达到部署阈值，资金保持闲置: amount=%s threshold=%s", amount, a.state.DeploymentThreshold)
		return nil
	}

	next := a.state.Clone()
	next.ThresholdMet = true
	if err := a.apply(next, func() error { return a.place(ctx, amount) }); err != nil {
		return err
	}
	log.Infof("🚀 [Adapter] 部署阈值已达成: amount=%s threshold=%s", amount, a.state.DeploymentThreshold)
	return nil
}

func (a *Adapter) place(ctx context.Context, amount *big.Int) error {
	if err := a.venue.PlaceFunds(ctx, amount, a.self); err != nil {
		return errors.Wrapf(err, "venue place %s", amount)
	}
	log.Infof("[Adapter] 已部署到场所: amount=%s", amount)
	return nil
}

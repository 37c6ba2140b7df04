package risk

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"

	"github.com/betbot/vaultgate/internal/ports"
)

var log = logrus.WithField("module", "risk")

// GuardedVenue 在场所客户端外层套断路器：PlaceFunds 先过 Allow，
// 所有会发交易的调用都计入连续错误。只读视图直接透传。
type GuardedVenue struct {
	ports.Venue
	breaker *CircuitBreaker
}

var _ ports.Venue = (*GuardedVenue)(nil)

func Guard(v ports.Venue, cb *CircuitBreaker) *GuardedVenue {
	return &GuardedVenue{Venue: v, breaker: cb}
}

func (g *GuardedVenue) observe(method string, err error) {
	if err == nil {
		g.breaker.OnSuccess()
		return
	}
	g.breaker.OnError()
	log.Warnf("⚠️ [Risk] 场所调用失败: method=%s consecutive=%d err=%v",
		method, g.breaker.State().ConsecutiveErrors, err)
}

func (g *GuardedVenue) PlaceFunds(ctx context.Context, amount *big.Int, recipient common.Address) error {
	if err := g.breaker.Allow(); err != nil {
		log.Warnf("🛑 [Risk] 断路器打开，拒绝部署: amount=%s", amount)
		return err
	}
	err := g.Venue.PlaceFunds(ctx, amount, recipient)
	g.observe("PlaceFunds", err)
	return err
}

// RedeemShares 熔断时也放行，只记录结果。
func (g *GuardedVenue) RedeemShares(ctx context.Context, shares *big.Int, recipient, owner common.Address) (*big.Int, error) {
	got, err := g.Venue.RedeemShares(ctx, shares, recipient, owner)
	g.observe("RedeemShares", err)
	return got, err
}

func (g *GuardedVenue) RefreshAccrual(ctx context.Context) error {
	err := g.Venue.RefreshAccrual(ctx)
	g.observe("RefreshAccrual", err)
	return err
}

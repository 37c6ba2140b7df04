package main

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync/atomic"

	"github.com/ethereum/go-ethereum/common"

	"github.com/betbot/vaultgate/internal/domain"
	"github.com/betbot/vaultgate/internal/host"
	"github.com/betbot/vaultgate/internal/strategycore/adapter"
	"github.com/betbot/vaultgate/internal/venue/memvenue"
	"github.com/betbot/vaultgate/pkg/persistence"
)

var (
	strategyAddr = common.HexToAddress("0x000000000000000000000000000000000000a11c")
	venueAddr    = common.HexToAddress("0x0000000000000000000000000000000000004626")
	management   = common.HexToAddress("0x000000000000000000000000000000000000beef")
	depositor    = common.HexToAddress("0x000000000000000000000000000000000000d00d")
)

// world 一次模拟用到的全部对象
type world struct {
	ledger  *memvenue.Ledger
	venue   *memvenue.Venue
	host    *host.Host
	adapter *adapter.Adapter
	now     atomic.Uint64
}

func newWorld(threshold int64, unlockOffset uint64) (*world, error) {
	w := &world{ledger: memvenue.NewLedger()}
	w.now.Store(1_700_000_000)
	w.venue = memvenue.New(venueAddr, w.ledger)

	svc := persistence.NewMemoryService()
	h, err := host.New(host.Config{ID: "sim", Management: management, StrategyAddress: strategyAddr}, w.ledger, svc)
	if err != nil {
		return nil, err
	}
	a, err := adapter.New(adapter.Config{
		ID:                  "sim",
		Address:             strategyAddr,
		DeploymentThreshold: big.NewInt(threshold),
		UnlockTime:          w.now.Load() + unlockOffset,
	}, adapter.Deps{
		Venue:       w.venue,
		Asset:       w.ledger,
		Vault:       h,
		Clock:       w,
		Persistence: svc,
	})
	if err != nil {
		return nil, err
	}
	h.Attach(a)
	w.host, w.adapter = h, a
	return w, nil
}

// Now 实现 ports.Clock
func (w *world) Now(context.Context) (uint64, error) { return w.now.Load(), nil }

func (w *world) advance(seconds uint64) { w.now.Add(seconds) }

func (w *world) deposit(ctx context.Context, amount int64) error {
	x := big.NewInt(amount)
	w.ledger.Mint(depositor, x)
	return w.host.Deposit(ctx, depositor, x)
}

func (w *world) status(ctx context.Context) (*domain.Status, error) {
	return w.adapter.Status(ctx)
}

type scenario struct {
	name string
	run  func(ctx context.Context, decimals int32) error
}

func scenarios() []scenario {
	return []scenario{
		{"threshold-latch", scenarioThreshold},
		{"time-lock", scenarioUnlock},
		{"freeze", scenarioFreeze},
		{"yield-and-report", scenarioYield},
		{"emergency-recall", scenarioEmergency},
	}
}

func expect(cond bool, format string, args ...any) error {
	if cond {
		return nil
	}
	return fmt.Errorf("check failed: "+format, args...)
}

func expectAmount(got *big.Int, want int64, what string) error {
	return expect(got != nil && got.Cmp(big.NewInt(want)) == 0, "%s = %v, want %d", what, got, want)
}

// 阈值 500,000：先存 100,000 保持闲置，再存 500,000 时整体 600,000 部署。
func scenarioThreshold(ctx context.Context, decimals int32) error {
	w, err := newWorld(500_000, 0)
	if err != nil {
		return err
	}
	if err := w.deposit(ctx, 100_000); err != nil {
		return err
	}
	st, err := w.status(ctx)
	if err != nil {
		return err
	}
	log.Infof("[Simulate] 存入 100000 后: thresholdMet=%v idle=%s deployed=%s",
		st.ThresholdMet, domain.FormatUnits(st.Idle, decimals), domain.FormatUnits(st.Deployed, decimals))
	if err := errors.Join(
		expect(!st.ThresholdMet, "threshold met after 100000"),
		expectAmount(st.Idle, 100_000, "idle"),
		expectAmount(st.Deployed, 0, "deployed"),
	); err != nil {
		return err
	}

	if err := w.deposit(ctx, 500_000); err != nil {
		return err
	}
	st, err = w.status(ctx)
	if err != nil {
		return err
	}
	log.Infof("[Simulate] 再存入 500000 后: thresholdMet=%v idle=%s deployed=%s",
		st.ThresholdMet, domain.FormatUnits(st.Idle, decimals), domain.FormatUnits(st.Deployed, decimals))
	if err := errors.Join(
		expect(st.ThresholdMet, "threshold not met after 600000"),
		expectAmount(st.Idle, 0, "idle"),
		expectAmount(st.Deployed, 600_000, "deployed"),
	); err != nil {
		return err
	}

	// latch 之后小额也直接部署
	if err := w.deposit(ctx, 1); err != nil {
		return err
	}
	st, err = w.status(ctx)
	if err != nil {
		return err
	}
	return expectAmount(st.Deployed, 600_001, "deployed after small deposit")
}

// 解锁时间 now+1,000,000：立即取回失败 Locked，时间推进后成功。
func scenarioUnlock(ctx context.Context, decimals int32) error {
	w, err := newWorld(0, 1_000_000)
	if err != nil {
		return err
	}
	if err := w.deposit(ctx, 10_000); err != nil {
		return err
	}

	_, err = w.adapter.Free(ctx, big.NewInt(4_000))
	if err := expect(errors.Is(err, adapter.ErrLocked), "free before unlock returned %v", err); err != nil {
		return err
	}
	log.Infof("[Simulate] 解锁前取回被拒绝: %v", err)

	w.advance(1_000_000)
	recovered, err := w.adapter.Free(ctx, big.NewInt(4_000))
	if err != nil {
		return err
	}
	st, err := w.status(ctx)
	if err != nil {
		return err
	}
	log.Infof("[Simulate] 解锁后取回: recovered=%s idle=%s deployed=%s",
		domain.FormatUnits(recovered, decimals), domain.FormatUnits(st.Idle, decimals), domain.FormatUnits(st.Deployed, decimals))
	return errors.Join(
		expectAmount(recovered, 4_000, "recovered"),
		expectAmount(st.Idle, 4_000, "idle"),
		expectAmount(st.Deployed, 6_000, "deployed"),
	)
}

// 冻结后修改解锁时间返回 Frozen，解锁时间不变。
func scenarioFreeze(ctx context.Context, _ int32) error {
	w, err := newWorld(0, 100)
	if err != nil {
		return err
	}
	before := w.adapter.UnlockTime()
	if err := w.adapter.FreezeUnlock(ctx, management); err != nil {
		return err
	}
	if err := w.adapter.FreezeUnlock(ctx, management); err != nil {
		return err
	}
	err = w.adapter.SetUnlockTime(ctx, management, before+5_000)
	log.Infof("[Simulate] 冻结后修改解锁时间: %v", err)
	return errors.Join(
		expect(errors.Is(err, adapter.ErrFrozen), "set unlock after freeze returned %v", err),
		expect(w.adapter.UnlockTime() == before, "unlock time changed to %d", w.adapter.UnlockTime()),
	)
}

// 场所产生收益后汇报利润，随后亏损如实汇报。
func scenarioYield(ctx context.Context, decimals int32) error {
	w, err := newWorld(0, 0)
	if err != nil {
		return err
	}
	if err := w.deposit(ctx, 1_000_000); err != nil {
		return err
	}
	w.venue.Accrue(big.NewInt(50_000))
	rep, err := w.host.Report(ctx)
	if err != nil {
		return err
	}
	log.Infof("[Simulate] 收益汇报: total=%s profit=%s loss=%s",
		domain.FormatUnits(rep.TotalAssets, decimals), domain.FormatUnits(rep.Profit, decimals), domain.FormatUnits(rep.Loss, decimals))
	// ERC-4626 向下取整最多损失 1 个单位
	if err := expect(rep.Profit.Cmp(big.NewInt(49_999)) >= 0, "profit %s < 49999", rep.Profit); err != nil {
		return err
	}

	w.venue.RealizeLoss(big.NewInt(200_000))
	rep, err = w.host.Report(ctx)
	if err != nil {
		return err
	}
	log.Infof("[Simulate] 亏损汇报: total=%s profit=%s loss=%s",
		domain.FormatUnits(rep.TotalAssets, decimals), domain.FormatUnits(rep.Profit, decimals), domain.FormatUnits(rep.Loss, decimals))
	return expect(rep.Loss.Sign() > 0 && rep.Profit.Sign() == 0, "loss not reported: %+v", rep)
}

// shutdown 之后管理员紧急取回，超额请求按持有份额截断。
func scenarioEmergency(ctx context.Context, decimals int32) error {
	w, err := newWorld(0, 1_000_000)
	if err != nil {
		return err
	}
	if err := w.deposit(ctx, 1_000); err != nil {
		return err
	}
	_, err = w.adapter.EmergencyFree(ctx, management, big.NewInt(100))
	if err := expect(errors.Is(err, adapter.ErrNotShutdown), "emergency before shutdown returned %v", err); err != nil {
		return err
	}
	if err := w.host.Shutdown(ctx, management); err != nil {
		return err
	}
	recovered, err := w.adapter.EmergencyFree(ctx, management, big.NewInt(5_000))
	if err != nil {
		return err
	}
	total, err := w.adapter.Valuate(ctx)
	if err != nil {
		return err
	}
	log.Infof("[Simulate] 紧急取回: recovered=%s total=%s",
		domain.FormatUnits(recovered, decimals), domain.FormatUnits(total, decimals))
	return errors.Join(
		expectAmount(recovered, 1_000, "recovered"),
		expectAmount(total, 1_000, "total after recall"),
	)
}

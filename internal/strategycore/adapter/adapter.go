package adapter

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/betbot/vaultgate/internal/domain"
	"github.com/betbot/vaultgate/internal/ports"
	"github.com/betbot/vaultgate/pkg/persistence"
)

var log = logrus.WithField("module", "adapter")

const stateTag = "adapter"

// Config adapter 构造参数。DeploymentThreshold 与场所引用在构造后不可变。
type Config struct {
	// ID 持久化用的实例标识
	ID string
	// Address adapter 自身在资产账本 / 场所中的地址
	Address             common.Address
	DeploymentThreshold *big.Int
	// UnlockTime 初始解锁时间；若已有持久化状态则以持久化为准
	UnlockTime uint64
}

// Deps 外部协作方，全部通过构造注入。
type Deps struct {
	Venue       ports.Venue
	Asset       ports.Asset
	Vault       ports.Vault
	Clock       ports.Clock
	Persistence persistence.Service // 可选
}

// Adapter 在宿主金库与单一收益场所之间做资金调度：
// 阈值门控部署、时间锁取回、估值以及紧急取回。
//
// 所有操作由 mu 串行化；任一外部调用失败时整个操作中止，自身状态保持不变。
type Adapter struct {
	id    string
	self  common.Address
	venue ports.Venue
	asset ports.Asset
	vault ports.Vault
	clock ports.Clock
	store persistence.Store

	mu    sync.Mutex
	state domain.AdapterState
}

// New 创建 adapter，并从持久化层恢复 latch 状态。
func New(cfg Config, deps Deps) (*Adapter, error) {
	if deps.Venue == nil || deps.Asset == nil || deps.Vault == nil {
		return nil, fmt.Errorf("adapter: venue, asset and vault are required")
	}
	if cfg.DeploymentThreshold == nil || cfg.DeploymentThreshold.Sign() < 0 {
		return nil, fmt.Errorf("adapter: deployment threshold must be a non-negative amount")
	}
	if cfg.ID == "" {
		cfg.ID = cfg.Address.Hex()
	}
	clock := deps.Clock
	if clock == nil {
		clock = ports.SystemClock{}
	}

	a := &Adapter{
		id:    cfg.ID,
		self:  cfg.Address,
		venue: deps.Venue,
		asset: deps.Asset,
		vault: deps.Vault,
		clock: clock,
		state: domain.AdapterState{
			DeploymentThreshold: domain.CloneAmount(cfg.DeploymentThreshold),
			UnlockTime:          cfg.UnlockTime,
		},
	}
	if deps.Persistence != nil {
		a.store = deps.Persistence.NewStore("state", cfg.ID, stateTag)
		if err := a.restore(); err != nil {
			return nil, err
		}
	}

	log.Infof("✅ [Adapter] 初始化完成: id=%s address=%s threshold=%s thresholdMet=%v unlockTime=%d frozen=%v",
		a.id, a.self.Hex(), a.state.DeploymentThreshold, a.state.ThresholdMet, a.state.UnlockTime, a.state.UnlockFrozen)
	return a, nil
}

func (a *Adapter) restore() error {
	var persisted domain.AdapterState
	err := a.store.Load(&persisted)
	if errors.Is(err, persistence.ErrNotExists) {
		return a.save(a.state)
	}
	if err != nil {
		return errors.Wrap(err, "load adapter state")
	}
	if persisted.DeploymentThreshold == nil || persisted.DeploymentThreshold.Cmp(a.state.DeploymentThreshold) != 0 {
		return fmt.Errorf("%w: persisted=%s configured=%s", ErrThresholdMismatch, persisted.DeploymentThreshold, a.state.DeploymentThreshold)
	}
	a.state = persisted
	log.Infof("[Adapter] 已恢复持久化状态: thresholdMet=%v unlockTime=%d frozen=%v",
		persisted.ThresholdMet, persisted.UnlockTime, persisted.UnlockFrozen)
	return nil
}

func (a *Adapter) save(s domain.AdapterState) error {
	if a.store == nil {
		return nil
	}
	return a.store.Save(s)
}

// apply 先持久化 next 再执行 fn；fn 失败则把持久化状态恢复为旧值，内存状态不变。
func (a *Adapter) apply(next domain.AdapterState, fn func() error) error {
	prev := a.state
	if err := a.save(next); err != nil {
		return errors.Wrap(err, "persist adapter state")
	}
	if fn != nil {
		if err := fn(); err != nil {
			if rerr := a.save(prev); rerr != nil {
				log.Errorf("❌ [Adapter] 回滚持久化状态失败: %v (原始错误: %v)", rerr, err)
			}
			return err
		}
	}
	a.state = next
	return nil
}

func (a *Adapter) now(ctx context.Context) (uint64, error) {
	now, err := a.clock.Now(ctx)
	if err != nil {
		return 0, errors.Wrap(err, "read clock")
	}
	return now, nil
}

func (a *Adapter) idle(ctx context.Context) (*big.Int, error) {
	bal, err := a.asset.BalanceOf(ctx, a.self)
	if err != nil {
		return nil, errors.Wrap(err, "asset balance")
	}
	return bal, nil
}

func (a *Adapter) refresh(ctx context.Context) error {
	if err := a.venue.RefreshAccrual(ctx); err != nil {
		return errors.Wrap(err, "venue refresh accrual")
	}
	return nil
}

func (a *Adapter) shareBalance(ctx context.Context) (*big.Int, error) {
	shares, err := a.venue.ShareBalance(ctx, a.self)
	if err != nil {
		return nil, errors.Wrap(err, "venue share balance")
	}
	return shares, nil
}

func (a *Adapter) redeem(ctx context.Context, shares *big.Int) (*big.Int, error) {
	got, err := a.venue.RedeemShares(ctx, shares, a.self, a.self)
	if err != nil {
		return nil, errors.Wrapf(err, "venue redeem %s shares", shares)
	}
	return got, nil
}

func (a *Adapter) authorize(ctx context.Context, caller common.Address) error {
	ok, err := a.vault.IsManagement(ctx, caller)
	if err != nil {
		return errors.Wrap(err, "management check")
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnauthorized, caller.Hex())
	}
	return nil
}

// Address adapter 自身地址
func (a *Adapter) Address() common.Address { return a.self }

// ID 持久化实例标识
func (a *Adapter) ID() string { return a.id }

// DeploymentThreshold 部署阈值（副本）
func (a *Adapter) DeploymentThreshold() *big.Int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return domain.CloneAmount(a.state.DeploymentThreshold)
}

// ThresholdMet 阈值 latch 是否已翻转
func (a *Adapter) ThresholdMet() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state.ThresholdMet
}

// UnlockTime 当前解锁时间
func (a *Adapter) UnlockTime() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state.UnlockTime
}

// UnlockFrozen 解锁时间是否已冻结
func (a *Adapter) UnlockFrozen() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state.UnlockFrozen
}

// State 全部自有状态的快照
func (a *Adapter) State() domain.AdapterState {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state.Clone()
}

package host

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"

	"github.com/betbot/vaultgate/internal/domain"
	"github.com/betbot/vaultgate/pkg/persistence"
)

var log = logrus.WithField("module", "host")

var (
	// ErrShutdown 宿主已 shutdown，拒绝新的存入。
	ErrShutdown = errors.New("host: vault is shut down")
	// ErrUnauthorized 非管理角色调用管理接口。
	ErrUnauthorized = errors.New("host: caller is not management")
	// ErrExceedsLimit 取出金额超过策略给出的上限。
	ErrExceedsLimit = errors.New("host: withdraw exceeds limit")
	// ErrNoStrategy 未挂载策略。
	ErrNoStrategy = errors.New("host: no strategy attached")
)

// Strategy 宿主回调策略的四个扩展点。
type Strategy interface {
	Deploy(ctx context.Context, amount *big.Int) error
	Free(ctx context.Context, amount *big.Int) (*big.Int, error)
	Valuate(ctx context.Context) (*big.Int, error)
	WithdrawLimit(ctx context.Context, account common.Address) (*big.Int, error)
}

// Ledger 宿主需要的资产账本能力。
type Ledger interface {
	BalanceOf(ctx context.Context, holder common.Address) (*big.Int, error)
	Transfer(ctx context.Context, from, to common.Address, amount *big.Int) error
}

// Config 宿主配置
type Config struct {
	ID         string
	Management common.Address
	// StrategyAddress 策略（adapter）持有闲置资金的地址
	StrategyAddress common.Address
}

type books struct {
	TotalIdle *big.Int `json:"total_idle"`
	TotalDebt *big.Int `json:"total_debt"`
	Shutdown  bool     `json:"shutdown"`
}

// Host 进程内的金库框架：记账 totalIdle/totalDebt、shutdown 标志、管理角色，
// 并在存入 / 取出 / 汇报时调用策略扩展点。不做份额发行与利润平滑。
//
// opMu 串行化存取操作；stateMu 只保护对策略可见的字段，
// 因此策略在扩展点里回查 ports.Vault 不会死锁。
type Host struct {
	cfg      Config
	ledger   Ledger
	strategy Strategy
	store    persistence.Store

	opMu    sync.Mutex
	stateMu sync.RWMutex
	books   books
}

// New 创建宿主；persistence 可为 nil。
func New(cfg Config, ledger Ledger, svc persistence.Service) (*Host, error) {
	if ledger == nil {
		return nil, fmt.Errorf("host: ledger is required")
	}
	if cfg.ID == "" {
		cfg.ID = cfg.StrategyAddress.Hex()
	}
	h := &Host{
		cfg:    cfg,
		ledger: ledger,
		books:  books{TotalIdle: new(big.Int), TotalDebt: new(big.Int)},
	}
	if svc != nil {
		h.store = svc.NewStore("state", cfg.ID, "host")
		var persisted books
		err := h.store.Load(&persisted)
		switch {
		case errors.Is(err, persistence.ErrNotExists):
		case err != nil:
			return nil, fmt.Errorf("load host books: %w", err)
		default:
			h.books = books{
				TotalIdle: domain.CloneAmount(persisted.TotalIdle),
				TotalDebt: domain.CloneAmount(persisted.TotalDebt),
				Shutdown:  persisted.Shutdown,
			}
		}
	}
	return h, nil
}

// Attach 挂载策略（策略构造时需要 Host 作为 ports.Vault，所以分两步）。
func (h *Host) Attach(s Strategy) {
	h.opMu.Lock()
	defer h.opMu.Unlock()
	h.strategy = s
}

func (h *Host) snapshot() books {
	h.stateMu.RLock()
	defer h.stateMu.RUnlock()
	return books{
		TotalIdle: domain.CloneAmount(h.books.TotalIdle),
		TotalDebt: domain.CloneAmount(h.books.TotalDebt),
		Shutdown:  h.books.Shutdown,
	}
}

func (h *Host) commit(b books) error {
	if h.store != nil {
		if err := h.store.Save(b); err != nil {
			return fmt.Errorf("persist host books: %w", err)
		}
	}
	h.stateMu.Lock()
	h.books = b
	h.stateMu.Unlock()
	return nil
}

// TotalIdle 实现 ports.Vault
func (h *Host) TotalIdle(context.Context) (*big.Int, error) {
	return h.snapshot().TotalIdle, nil
}

// TotalDebt 实现 ports.Vault
func (h *Host) TotalDebt(context.Context) (*big.Int, error) {
	return h.snapshot().TotalDebt, nil
}

// TotalAssets totalIdle + totalDebt
func (h *Host) TotalAssets() *big.Int {
	b := h.snapshot()
	return new(big.Int).Add(b.TotalIdle, b.TotalDebt)
}

// IsShutdown 实现 ports.Vault
func (h *Host) IsShutdown(context.Context) (bool, error) {
	return h.snapshot().Shutdown, nil
}

// IsManagement 实现 ports.Vault
func (h *Host) IsManagement(_ context.Context, caller common.Address) (bool, error) {
	return caller == h.cfg.Management, nil
}

// Management 管理角色地址
func (h *Host) Management() common.Address { return h.cfg.Management }

func (h *Host) idle(ctx context.Context) (*big.Int, error) {
	return h.ledger.BalanceOf(ctx, h.cfg.StrategyAddress)
}

// Deposit from 把 amount 转给策略，然后把策略全部闲置余额交给 Deploy。
// from 为零地址表示资金已在链下/带外到账，只做记账。
func (h *Host) Deposit(ctx context.Context, from common.Address, amount *big.Int) error {
	h.opMu.Lock()
	defer h.opMu.Unlock()

	if h.strategy == nil {
		return ErrNoStrategy
	}
	if !domain.IsPositive(amount) {
		return fmt.Errorf("host: deposit amount must be positive")
	}
	b := h.snapshot()
	if b.Shutdown {
		return ErrShutdown
	}

	transferred := from != (common.Address{})
	if transferred {
		if err := h.ledger.Transfer(ctx, from, h.cfg.StrategyAddress, amount); err != nil {
			return fmt.Errorf("deposit transfer: %w", err)
		}
	}
	before, err := h.idle(ctx)
	if err != nil {
		return h.undoDeposit(ctx, from, amount, transferred, err)
	}
	if err := h.strategy.Deploy(ctx, before); err != nil {
		return h.undoDeposit(ctx, from, amount, transferred, err)
	}
	after, err := h.idle(ctx)
	if err != nil {
		return err
	}

	deployed := new(big.Int).Sub(before, after)
	b.TotalIdle = after
	b.TotalDebt.Add(b.TotalDebt, deployed)
	if err := h.commit(b); err != nil {
		return err
	}
	log.Infof("📥 [Host] 存入: from=%s amount=%s deployed=%s idle=%s debt=%s",
		from.Hex(), amount, deployed, b.TotalIdle, b.TotalDebt)
	return nil
}

func (h *Host) undoDeposit(ctx context.Context, from common.Address, amount *big.Int, transferred bool, cause error) error {
	if transferred {
		if err := h.ledger.Transfer(ctx, h.cfg.StrategyAddress, from, amount); err != nil {
			log.Errorf("❌ [Host] 存入回滚失败: %v (原始错误: %v)", err, cause)
		}
	}
	return cause
}

// WithdrawResult 一次取出的结果
type WithdrawResult struct {
	Requested *big.Int `json:"requested"`
	Paid      *big.Int `json:"paid"`
	Loss      *big.Int `json:"loss"`
}

// Withdraw 给 to 支付 amount。闲置不足时调用策略 Free 取回差额；
// 取回不足的部分作为已实现亏损，从支付金额中扣除。
func (h *Host) Withdraw(ctx context.Context, to common.Address, amount *big.Int) (*WithdrawResult, error) {
	h.opMu.Lock()
	defer h.opMu.Unlock()

	if h.strategy == nil {
		return nil, ErrNoStrategy
	}
	if !domain.IsPositive(amount) {
		return nil, fmt.Errorf("host: withdraw amount must be positive")
	}
	limit, err := h.strategy.WithdrawLimit(ctx, to)
	if err != nil {
		return nil, err
	}
	if amount.Cmp(limit) > 0 {
		return nil, fmt.Errorf("%w: amount=%s limit=%s", ErrExceedsLimit, amount, limit)
	}

	b := h.snapshot()
	idle, err := h.idle(ctx)
	if err != nil {
		return nil, err
	}
	loss := new(big.Int)
	if amount.Cmp(idle) > 0 {
		needed := new(big.Int).Sub(amount, idle)
		if _, err := h.strategy.Free(ctx, needed); err != nil {
			return nil, err
		}
		after, err := h.idle(ctx)
		if err != nil {
			return nil, err
		}
		freed := new(big.Int).Sub(after, idle)
		if freed.Cmp(needed) < 0 {
			loss.Sub(needed, freed)
		}
		b.TotalDebt.Sub(b.TotalDebt, needed)
		if b.TotalDebt.Sign() < 0 {
			b.TotalDebt.SetInt64(0)
		}
		idle = after
	}

	paid := new(big.Int).Sub(amount, loss)
	if err := h.ledger.Transfer(ctx, h.cfg.StrategyAddress, to, paid); err != nil {
		return nil, fmt.Errorf("withdraw transfer: %w", err)
	}
	b.TotalIdle = new(big.Int).Sub(idle, paid)
	if err := h.commit(b); err != nil {
		return nil, err
	}
	if loss.Sign() > 0 {
		log.Warnf("⚠️ [Host] 取出产生亏损: to=%s requested=%s paid=%s loss=%s", to.Hex(), amount, paid, loss)
	} else {
		log.Infof("📤 [Host] 取出: to=%s amount=%s idle=%s debt=%s", to.Hex(), paid, b.TotalIdle, b.TotalDebt)
	}
	return &WithdrawResult{Requested: domain.CloneAmount(amount), Paid: paid, Loss: loss}, nil
}

// Report 调用策略估值，按与上次记账的差额计算利润 / 亏损，并更新记账（不做利润平滑）。
func (h *Host) Report(ctx context.Context) (*domain.Report, error) {
	h.opMu.Lock()
	defer h.opMu.Unlock()

	if h.strategy == nil {
		return nil, ErrNoStrategy
	}
	total, err := h.strategy.Valuate(ctx)
	if err != nil {
		return nil, err
	}
	idle, err := h.idle(ctx)
	if err != nil {
		return nil, err
	}

	b := h.snapshot()
	old := new(big.Int).Add(b.TotalIdle, b.TotalDebt)
	rep := &domain.Report{
		TotalAssets: domain.CloneAmount(total),
		Profit:      new(big.Int),
		Loss:        new(big.Int),
		Timestamp:   time.Now(),
	}
	switch total.Cmp(old) {
	case 1:
		rep.Profit.Sub(total, old)
	case -1:
		rep.Loss.Sub(old, total)
	}

	b.TotalIdle = domain.MinAmount(idle, total)
	b.TotalDebt = new(big.Int).Sub(total, b.TotalIdle)
	if err := h.commit(b); err != nil {
		return nil, err
	}
	log.Infof("📊 [Host] 汇报: total=%s profit=%s loss=%s idle=%s debt=%s",
		total, rep.Profit, rep.Loss, b.TotalIdle, b.TotalDebt)
	return rep, nil
}

// Shutdown 管理员关闭金库：停止存入，之后允许紧急取回。
func (h *Host) Shutdown(ctx context.Context, caller common.Address) error {
	h.opMu.Lock()
	defer h.opMu.Unlock()

	ok, err := h.IsManagement(ctx, caller)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnauthorized, caller.Hex())
	}
	b := h.snapshot()
	if b.Shutdown {
		return nil
	}
	b.Shutdown = true
	if err := h.commit(b); err != nil {
		return err
	}
	log.Warnf("🛑 [Host] 金库已 shutdown: caller=%s", caller.Hex())
	return nil
}

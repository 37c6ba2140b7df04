package services

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"

	"github.com/betbot/vaultgate/internal/domain"
	"github.com/betbot/vaultgate/internal/host"
	"github.com/betbot/vaultgate/internal/metrics"
	"github.com/betbot/vaultgate/internal/risk"
	"github.com/betbot/vaultgate/internal/strategycore/adapter"
)

var log = logrus.WithField("module", "services")

// VaultService 控制面与 adapter / 宿主之间的门面：
// 每个操作都会记入日志库、更新 expvar 计数，并在状态变化后广播快照。
type VaultService struct {
	adapter *adapter.Adapter
	host    *host.Host
	journal *Journal // 可为 nil
	hub     *Hub
	breaker *risk.CircuitBreaker // 可为 nil
}

func NewVaultService(a *adapter.Adapter, h *host.Host, journal *Journal) *VaultService {
	return &VaultService{adapter: a, host: h, journal: journal, hub: NewHub()}
}

// WithBreaker 挂上场所断路器：汇报出的亏损会计入断路器。
func (s *VaultService) WithBreaker(cb *risk.CircuitBreaker) *VaultService {
	s.breaker = cb
	return s
}

func (s *VaultService) Hub() *Hub { return s.hub }

// Adapter 底层 adapter（只读访问器用）
func (s *VaultService) Adapter() *adapter.Adapter { return s.adapter }

func (s *VaultService) record(ctx context.Context, op string, caller *common.Address, amount *big.Int, result string, opErr error) {
	metrics.Observe(op, opErr)
	if errors.Is(opErr, adapter.ErrLocked) {
		metrics.LockedRejections.Add(1)
	}
	if s.journal == nil {
		return
	}
	e := &JournalEntry{Op: op, Result: result}
	if caller != nil {
		e.Caller = caller.Hex()
	}
	if amount != nil {
		e.Amount = amount.String()
	}
	if opErr != nil {
		e.Error = opErr.Error()
	}
	// 日志库写失败不影响已经完成的操作
	if err := s.journal.Record(context.WithoutCancel(ctx), e); err != nil {
		metrics.JournalErrors.Add(1)
		log.Errorf("❌ [Service] 写入操作日志失败: op=%s err=%v", op, err)
		return
	}
	metrics.JournalWrites.Add(1)
}

func (s *VaultService) publish(ctx context.Context) {
	if s.hub.Len() == 0 {
		return
	}
	st, err := s.adapter.Status(ctx)
	if err != nil {
		log.Warnf("⚠️ [Service] 获取状态快照失败: %v", err)
		return
	}
	s.hub.Broadcast(st)
	metrics.StatusBroadcasts.Add(1)
}

// Status 当前快照
func (s *VaultService) Status(ctx context.Context) (*domain.Status, error) {
	return s.adapter.Status(ctx)
}

// WithdrawLimit 某账户当前可取出上限
func (s *VaultService) WithdrawLimit(ctx context.Context, account common.Address) (*big.Int, error) {
	return s.adapter.WithdrawLimit(ctx, account)
}

// Deposit from 为零地址时只做记账（资金已在带外到账）
func (s *VaultService) Deposit(ctx context.Context, from common.Address, amount *big.Int) error {
	wasMet := s.adapter.ThresholdMet()
	err := s.host.Deposit(ctx, from, amount)
	if err == nil && !wasMet && s.adapter.ThresholdMet() {
		metrics.ThresholdFlips.Add(1)
	}
	s.record(ctx, "deposit", &from, amount, "", err)
	if err == nil {
		s.publish(ctx)
	}
	return err
}

// Withdraw 给 to 支付 amount
func (s *VaultService) Withdraw(ctx context.Context, to common.Address, amount *big.Int) (*host.WithdrawResult, error) {
	res, err := s.host.Withdraw(ctx, to, amount)
	result := ""
	if res != nil {
		result = fmt.Sprintf("paid=%s loss=%s", res.Paid, res.Loss)
	}
	s.record(ctx, "withdraw", &to, amount, result, err)
	if err == nil {
		s.publish(ctx)
	}
	return res, err
}

// Report 估值并更新宿主记账
func (s *VaultService) Report(ctx context.Context) (*domain.Report, error) {
	rep, err := s.host.Report(ctx)
	result := ""
	if rep != nil {
		result = fmt.Sprintf("total=%s profit=%s loss=%s", rep.TotalAssets, rep.Profit, rep.Loss)
		metrics.LastTotalAssets.Set(rep.TotalAssets.String())
		s.breaker.AddLoss(rep.Loss)
	}
	s.record(ctx, "report", nil, nil, result, err)
	if err == nil {
		s.publish(ctx)
	}
	return rep, err
}

// SetUnlockTime 管理员修改解锁时间
func (s *VaultService) SetUnlockTime(ctx context.Context, caller common.Address, unlockTime uint64) error {
	err := s.adapter.SetUnlockTime(ctx, caller, unlockTime)
	s.record(ctx, "set_unlock_time", &caller, nil, fmt.Sprintf("unlock_time=%d", unlockTime), err)
	if err == nil {
		s.publish(ctx)
	}
	return err
}

// FreezeUnlock 管理员冻结解锁时间
func (s *VaultService) FreezeUnlock(ctx context.Context, caller common.Address) error {
	err := s.adapter.FreezeUnlock(ctx, caller)
	s.record(ctx, "freeze_unlock", &caller, nil, "", err)
	if err == nil {
		s.publish(ctx)
	}
	return err
}

// Shutdown 管理员关闭金库
func (s *VaultService) Shutdown(ctx context.Context, caller common.Address) error {
	err := s.host.Shutdown(ctx, caller)
	s.record(ctx, "shutdown", &caller, nil, "", err)
	if err == nil {
		s.publish(ctx)
	}
	return err
}

// EmergencyFree 管理员在 shutdown 后紧急取回
func (s *VaultService) EmergencyFree(ctx context.Context, caller common.Address, amount *big.Int) (*big.Int, error) {
	got, err := s.adapter.EmergencyFree(ctx, caller, amount)
	result := ""
	if got != nil {
		result = "recovered=" + got.String()
	}
	s.record(ctx, "emergency_free", &caller, amount, result, err)
	if err == nil {
		s.publish(ctx)
	}
	return got, err
}

// Breaker 断路器快照；未配置时返回零值
func (s *VaultService) Breaker() risk.BreakerState {
	return s.breaker.State()
}

// ResumeBreaker 管理员恢复断路器
func (s *VaultService) ResumeBreaker(ctx context.Context, caller common.Address) error {
	ok, err := s.host.IsManagement(ctx, caller)
	if err == nil && !ok {
		err = fmt.Errorf("%w: %s", host.ErrUnauthorized, caller.Hex())
	}
	if err == nil {
		s.breaker.Resume()
		log.Infof("🔄 [Service] 断路器已恢复: caller=%s", caller.Hex())
	}
	s.record(ctx, "resume_breaker", &caller, nil, "", err)
	return err
}

// Journal 最近的操作记录；未配置日志库时返回空
func (s *VaultService) Journal(ctx context.Context, limit int) ([]JournalEntry, error) {
	if s.journal == nil {
		return []JournalEntry{}, nil
	}
	return s.journal.List(ctx, limit)
}

// RunStatusLoop 定时广播状态，直到 ctx 结束
func (s *VaultService) RunStatusLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.publish(ctx)
		}
	}
}

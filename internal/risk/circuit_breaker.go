package risk

import (
	"errors"
	"math/big"
	"sync"
	"sync/atomic"

	"github.com/betbot/vaultgate/internal/domain"
)

// ErrCircuitBreakerOpen 表示断路器已打开，禁止继续向场所部署资金。
var ErrCircuitBreakerOpen = errors.New("risk: circuit breaker open")

// CircuitBreakerConfig 断路器配置。
// 约定：阈值 <= 0（或 nil）表示关闭对应限制。
type CircuitBreakerConfig struct {
	// MaxConsecutiveErrors 场所调用连续失败上限。
	MaxConsecutiveErrors int64

	// LossLimit 自上次恢复以来累计汇报亏损上限（最小单位）。达到或超过时立即熔断。
	LossLimit *big.Int
}

// BreakerState 对外展示的断路器快照
type BreakerState struct {
	Halted            bool     `json:"halted"`
	ConsecutiveErrors int64    `json:"consecutive_errors"`
	RealizedLoss      *big.Int `json:"realized_loss"`
	LossLimit         *big.Int `json:"loss_limit,omitempty"`
}

// CircuitBreaker 快路径使用原子变量；亏损累计是 big.Int，用互斥锁保护。
//
// 只拦截新的部署。取回与紧急取回永远放行，熔断期间资金仍可撤出。
type CircuitBreaker struct {
	halted atomic.Bool

	consecutiveErrors    atomic.Int64
	maxConsecutiveErrors atomic.Int64

	mu           sync.Mutex
	lossLimit    *big.Int
	realizedLoss *big.Int
}

func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	cb := &CircuitBreaker{realizedLoss: new(big.Int)}
	cb.SetConfig(cfg)
	return cb
}

func (cb *CircuitBreaker) SetConfig(cfg CircuitBreakerConfig) {
	if cb == nil {
		return
	}
	cb.maxConsecutiveErrors.Store(cfg.MaxConsecutiveErrors)
	cb.mu.Lock()
	cb.lossLimit = nil
	if domain.IsPositive(cfg.LossLimit) {
		cb.lossLimit = domain.CloneAmount(cfg.LossLimit)
	}
	cb.mu.Unlock()
}

// Halt 手动熔断（如人工介入或检测到严重异常）。
func (cb *CircuitBreaker) Halt() {
	if cb == nil {
		return
	}
	cb.halted.Store(true)
}

// Resume 手动恢复（会同时清空连续错误计数与累计亏损）。
func (cb *CircuitBreaker) Resume() {
	if cb == nil {
		return
	}
	cb.halted.Store(false)
	cb.consecutiveErrors.Store(0)
	cb.mu.Lock()
	cb.realizedLoss = new(big.Int)
	cb.mu.Unlock()
}

// Allow 快路径检查是否允许部署。
func (cb *CircuitBreaker) Allow() error {
	if cb == nil {
		return nil
	}

	if cb.halted.Load() {
		return ErrCircuitBreakerOpen
	}

	// 连续错误熔断
	maxErr := cb.maxConsecutiveErrors.Load()
	if maxErr > 0 && cb.consecutiveErrors.Load() >= maxErr {
		cb.halted.Store(true)
		return ErrCircuitBreakerOpen
	}

	cb.mu.Lock()
	tripped := cb.lossLimit != nil && cb.realizedLoss.Cmp(cb.lossLimit) >= 0
	cb.mu.Unlock()
	if tripped {
		cb.halted.Store(true)
		return ErrCircuitBreakerOpen
	}
	return nil
}

// OnSuccess 在一次场所调用成功后调用，用于清空连续错误计数。
func (cb *CircuitBreaker) OnSuccess() {
	if cb == nil {
		return
	}
	cb.consecutiveErrors.Store(0)
}

// OnError 在一次场所调用失败后调用，用于累计连续错误计数。
func (cb *CircuitBreaker) OnError() {
	if cb == nil {
		return
	}
	cb.consecutiveErrors.Add(1)
}

// AddLoss 累加一次汇报出来的亏损。
func (cb *CircuitBreaker) AddLoss(loss *big.Int) {
	if cb == nil || !domain.IsPositive(loss) {
		return
	}
	cb.mu.Lock()
	cb.realizedLoss.Add(cb.realizedLoss, loss)
	cb.mu.Unlock()
}

func (cb *CircuitBreaker) State() BreakerState {
	if cb == nil {
		return BreakerState{RealizedLoss: new(big.Int)}
	}
	cb.mu.Lock()
	defer cb.mu.Unlock()
	st := BreakerState{
		Halted:            cb.halted.Load(),
		ConsecutiveErrors: cb.consecutiveErrors.Load(),
		RealizedLoss:      domain.CloneAmount(cb.realizedLoss),
	}
	if cb.lossLimit != nil {
		st.LossLimit = domain.CloneAmount(cb.lossLimit)
	}
	return st
}

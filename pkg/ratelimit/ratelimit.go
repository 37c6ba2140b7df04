package ratelimit

import (
	"context"
	"sync"
	"time"
)

// RateLimiter 速率限制器接口
type RateLimiter interface {
	Wait(ctx context.Context) error
	Allow() bool
	GetRemaining() int
}

// TokenBucket 令牌桶速率限制器，按经过的时间连续补充令牌。
type TokenBucket struct {
	capacity   float64 // 桶容量
	tokens     float64 // 当前令牌数
	refillRate float64 // 每秒补充的令牌数
	lastRefill time.Time
	now        func() time.Time
	mu         sync.Mutex
}

// NewTokenBucket 创建新的令牌桶，初始为满。
func NewTokenBucket(capacity, refillRate int) *TokenBucket {
	return newTokenBucket(capacity, refillRate, time.Now)
}

func newTokenBucket(capacity, refillRate int, now func() time.Time) *TokenBucket {
	if capacity < 1 {
		capacity = 1
	}
	return &TokenBucket{
		capacity:   float64(capacity),
		tokens:     float64(capacity),
		refillRate: float64(refillRate),
		lastRefill: now(),
		now:        now,
	}
}

// refill 补充令牌
func (tb *TokenBucket) refill() {
	now := tb.now()
	elapsed := now.Sub(tb.lastRefill).Seconds()
	if elapsed <= 0 {
		return
	}
	tb.tokens = min(tb.capacity, tb.tokens+elapsed*tb.refillRate)
	tb.lastRefill = now
}

// Allow 检查是否允许请求
func (tb *TokenBucket) Allow() bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	tb.refill()
	if tb.tokens >= 1 {
		tb.tokens--
		return true
	}
	return false
}

// Wait 等待直到允许请求；refillRate 为 0 时只能等 ctx 结束。
func (tb *TokenBucket) Wait(ctx context.Context) error {
	for {
		if tb.Allow() {
			return nil
		}

		tb.mu.Lock()
		wait := time.Second
		if tb.refillRate > 0 {
			wait = time.Duration((1 - tb.tokens) / tb.refillRate * float64(time.Second))
		}
		tb.mu.Unlock()

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// GetRemaining 获取剩余令牌数
func (tb *TokenBucket) GetRemaining() int {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	tb.refill()
	return int(tb.tokens)
}

// RateLimitManager 按端点分组的速率限制管理器；未注册的端点不限流。
type RateLimitManager struct {
	limiters map[string]RateLimiter
	mu       sync.RWMutex
}

// NewRateLimitManager 创建新的速率限制管理器
func NewRateLimitManager() *RateLimitManager {
	return &RateLimitManager{limiters: make(map[string]RateLimiter)}
}

// Register 为端点设置限制器
func (rlm *RateLimitManager) Register(endpoint string, limiter RateLimiter) {
	rlm.mu.Lock()
	defer rlm.mu.Unlock()
	rlm.limiters[endpoint] = limiter
}

// GetLimiter 获取指定端点的速率限制器，未注册返回 nil
func (rlm *RateLimitManager) GetLimiter(endpoint string) RateLimiter {
	rlm.mu.RLock()
	defer rlm.mu.RUnlock()
	return rlm.limiters[endpoint]
}

// Wait 等待直到允许请求
func (rlm *RateLimitManager) Wait(ctx context.Context, endpoint string) error {
	if limiter := rlm.GetLimiter(endpoint); limiter != nil {
		return limiter.Wait(ctx)
	}
	return nil
}

// Allow 检查是否允许请求
func (rlm *RateLimitManager) Allow(endpoint string) bool {
	if limiter := rlm.GetLimiter(endpoint); limiter != nil {
		return limiter.Allow()
	}
	return true
}

// GetRemaining 获取剩余请求数，未注册返回 -1
func (rlm *RateLimitManager) GetRemaining(endpoint string) int {
	if limiter := rlm.GetLimiter(endpoint); limiter != nil {
		return limiter.GetRemaining()
	}
	return -1
}

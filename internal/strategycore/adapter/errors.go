package adapter

import "errors"

var (
	// ErrLocked 解锁时间之前尝试从场所取回资金。
	ErrLocked = errors.New("adapter: withdrawals locked until unlock time")
	// ErrFrozen 解锁时间已被冻结，不能再修改。
	ErrFrozen = errors.New("adapter: unlock time is frozen")
	// ErrUnauthorized 非管理角色调用了管理接口。
	ErrUnauthorized = errors.New("adapter: caller is not management")
	// ErrNotShutdown 紧急取回只能在策略 shutdown 之后进行。
	ErrNotShutdown = errors.New("adapter: strategy is not shut down")
	// ErrThresholdMismatch 持久化的部署阈值与配置不一致（阈值不可变）。
	ErrThresholdMismatch = errors.New("adapter: persisted deployment threshold differs from configuration")
)

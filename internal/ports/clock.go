package ports

import (
	"context"
	"time"
)

// Clock 逻辑时钟，返回秒级时间戳（链上对应 block.timestamp）。
type Clock interface {
	Now(ctx context.Context) (uint64, error)
}

// SystemClock 使用本机时间。
type SystemClock struct{}

func (SystemClock) Now(context.Context) (uint64, error) {
	return uint64(time.Now().Unix()), nil
}

// ClockFunc 允许用普通函数充当 Clock（测试里常用）。
type ClockFunc func(ctx context.Context) (uint64, error)

func (f ClockFunc) Now(ctx context.Context) (uint64, error) {
	return f(ctx)
}

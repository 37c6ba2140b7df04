package ethvenue

import (
	"context"

	"github.com/pkg/errors"
)

// ChainClock 以最新区块时间作为逻辑时钟（实现 ports.Clock）。
type ChainClock struct {
	backend Backend
}

func NewChainClock(backend Backend) *ChainClock {
	return &ChainClock{backend: backend}
}

func (c *ChainClock) Now(ctx context.Context) (uint64, error) {
	header, err := c.backend.HeaderByNumber(ctx, nil)
	if err != nil {
		return 0, errors.Wrap(err, "获取最新区块失败")
	}
	return header.Time, nil
}

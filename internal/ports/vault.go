package ports

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Vault 宿主金库框架暴露给 adapter 的只读视图。
//
// 份额发行、利润平滑与权限体系都属于宿主；adapter 只查询，从不修改。
type Vault interface {
	TotalIdle(ctx context.Context) (*big.Int, error)
	TotalDebt(ctx context.Context) (*big.Int, error)
	IsShutdown(ctx context.Context) (bool, error)
	// IsManagement 判断 caller 是否为管理角色。
	IsManagement(ctx context.Context, caller common.Address) (bool, error)
}

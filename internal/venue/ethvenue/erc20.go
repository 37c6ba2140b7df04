package ethvenue

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
)

// ErrNotSigner 链上转账只能从签名地址发出
var ErrNotSigner = fmt.Errorf("ethvenue: transfer source is not the signer")

// Token ERC-20 资产。实现 ports.Asset；带 Transactor 时还能转账与授权。
type Token struct {
	backend Backend
	tx      *Transactor
	Address common.Address
}

// NewToken tx 可为 nil（只读）
func NewToken(backend Backend, address common.Address, tx *Transactor) *Token {
	return &Token{backend: backend, tx: tx, Address: address}
}

// BalanceOf 实现 ports.Asset
func (t *Token) BalanceOf(ctx context.Context, holder common.Address) (*big.Int, error) {
	return callUint(ctx, t.backend, erc20ABI, t.Address, "balanceOf", holder)
}

// Allowance owner 授权给 spender 的额度
func (t *Token) Allowance(ctx context.Context, owner, spender common.Address) (*big.Int, error) {
	return callUint(ctx, t.backend, erc20ABI, t.Address, "allowance", owner, spender)
}

// Decimals 代币精度
func (t *Token) Decimals(ctx context.Context) (uint8, error) {
	v, err := call(ctx, t.backend, erc20ABI, t.Address, "decimals")
	if err != nil {
		return 0, err
	}
	d, ok := v.(uint8)
	if !ok {
		return 0, fmt.Errorf("decimals 返回类型异常: %T", v)
	}
	return d, nil
}

func (t *Token) signer() (*Transactor, error) {
	if t.tx == nil {
		return nil, fmt.Errorf("ethvenue: token %s is read-only", t.Address.Hex())
	}
	return t.tx, nil
}

// Transfer 从签名地址转出。from 必须是签名地址。
func (t *Token) Transfer(ctx context.Context, from, to common.Address, amount *big.Int) error {
	tx, err := t.signer()
	if err != nil {
		return err
	}
	if from != tx.From() {
		return fmt.Errorf("%w: from=%s signer=%s", ErrNotSigner, from.Hex(), tx.From().Hex())
	}
	data, err := erc20ABI.Pack("transfer", to, amount)
	if err != nil {
		return errors.Wrap(err, "打包transfer参数失败")
	}
	if _, err := tx.Send(ctx, t.Address, data); err != nil {
		return errors.Wrapf(err, "transfer %s -> %s", amount, to.Hex())
	}
	return nil
}

// EnsureAllowance 授权额度不足 amount 时 approve 到 amount。
func (t *Token) EnsureAllowance(ctx context.Context, spender common.Address, amount *big.Int) error {
	tx, err := t.signer()
	if err != nil {
		return err
	}
	current, err := t.Allowance(ctx, tx.From(), spender)
	if err != nil {
		return err
	}
	if current.Cmp(amount) >= 0 {
		return nil
	}
	data, err := erc20ABI.Pack("approve", spender, amount)
	if err != nil {
		return errors.Wrap(err, "打包approve参数失败")
	}
	if _, err := tx.Send(ctx, t.Address, data); err != nil {
		return errors.Wrapf(err, "approve %s for %s", amount, spender.Hex())
	}
	log.Infof("[EthVenue] 已授权: spender=%s amount=%s", spender.Hex(), amount)
	return nil
}

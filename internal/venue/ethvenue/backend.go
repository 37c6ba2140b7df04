package ethvenue

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("module", "ethvenue")

// Backend 需要的链上能力，*ethclient.Client 满足该接口。
type Backend interface {
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, call ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *ethtypes.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*ethtypes.Receipt, error)
	CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*ethtypes.Header, error)
}

var _ Backend = (*ethclient.Client)(nil)

// Dial 连接 RPC
func Dial(ctx context.Context, rpcURL string) (*ethclient.Client, error) {
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, errors.Wrapf(err, "连接RPC失败: %s", rpcURL)
	}
	return client, nil
}

// ErrReverted 交易已上链但执行失败
var ErrReverted = fmt.Errorf("ethvenue: transaction reverted")

// Transactor 用单一私钥签名并发送交易，串行分配 nonce。
type Transactor struct {
	backend Backend
	key     *ecdsa.PrivateKey
	from    common.Address
	chainID *big.Int

	mu sync.Mutex
}

// NewTransactor 创建签名发送器
func NewTransactor(backend Backend, key *ecdsa.PrivateKey, chainID *big.Int) *Transactor {
	return &Transactor{
		backend: backend,
		key:     key,
		from:    crypto.PubkeyToAddress(key.PublicKey),
		chainID: new(big.Int).Set(chainID),
	}
}

// From 签名地址
func (t *Transactor) From() common.Address { return t.from }

// Send 构造、签名（EIP-155）、发送交易并等待回执；回执状态失败时返回 ErrReverted。
func (t *Transactor) Send(ctx context.Context, to common.Address, data []byte) (*ethtypes.Receipt, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	nonce, err := t.backend.PendingNonceAt(ctx, t.from)
	if err != nil {
		return nil, errors.Wrap(err, "获取nonce失败")
	}
	gasPrice, err := t.backend.SuggestGasPrice(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "获取gas价格失败")
	}
	gasLimit, err := t.backend.EstimateGas(ctx, ethereum.CallMsg{
		From:  t.from,
		To:    &to,
		Data:  data,
		Value: big.NewInt(0),
	})
	if err != nil {
		return nil, errors.Wrap(err, "估算gas失败")
	}

	tx := ethtypes.NewTransaction(nonce, to, big.NewInt(0), gasLimit, gasPrice, data)
	signed, err := ethtypes.SignTx(tx, ethtypes.NewEIP155Signer(t.chainID), t.key)
	if err != nil {
		return nil, errors.Wrap(err, "签名交易失败")
	}
	if err := t.backend.SendTransaction(ctx, signed); err != nil {
		return nil, errors.Wrap(err, "发送交易失败")
	}
	log.Debugf("[EthVenue] 交易已发送: hash=%s to=%s nonce=%d gas=%d", signed.Hash().Hex(), to.Hex(), nonce, gasLimit)

	receipt, err := bind.WaitMined(ctx, t.backend, signed)
	if err != nil {
		return nil, errors.Wrapf(err, "等待交易确认失败: %s", signed.Hash().Hex())
	}
	if receipt.Status != ethtypes.ReceiptStatusSuccessful {
		return receipt, errors.Wrapf(ErrReverted, "tx=%s block=%s", signed.Hash().Hex(), receipt.BlockNumber)
	}
	return receipt, nil
}

// call 只读调用并解出单个 uint256 / address 之类的返回值
func call(ctx context.Context, backend Backend, parsed abi.ABI, to common.Address, method string, args ...interface{}) (interface{}, error) {
	data, err := parsed.Pack(method, args...)
	if err != nil {
		return nil, errors.Wrapf(err, "打包%s参数失败", method)
	}
	out, err := backend.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "调用%s失败", method)
	}
	values, err := parsed.Unpack(method, out)
	if err != nil {
		return nil, errors.Wrapf(err, "解析%s结果失败", method)
	}
	if len(values) == 0 {
		return nil, fmt.Errorf("%s 无返回值", method)
	}
	return values[0], nil
}

func callUint(ctx context.Context, backend Backend, parsed abi.ABI, to common.Address, method string, args ...interface{}) (*big.Int, error) {
	v, err := call(ctx, backend, parsed, to, method, args...)
	if err != nil {
		return nil, err
	}
	n, ok := v.(*big.Int)
	if !ok {
		return nil, fmt.Errorf("%s 返回类型异常: %T", method, v)
	}
	return n, nil
}

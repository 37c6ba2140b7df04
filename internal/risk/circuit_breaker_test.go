package risk

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/betbot/vaultgate/internal/venue/memvenue"
)

var (
	venueAddr = common.HexToAddress("0x0000000000000000000000000000000000000e01")
	holder    = common.HexToAddress("0x0000000000000000000000000000000000000e02")
)

func TestCircuitBreaker_ConsecutiveErrors(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{MaxConsecutiveErrors: 2})
	require.NoError(t, cb.Allow())
	cb.OnError()
	require.NoError(t, cb.Allow())
	cb.OnSuccess()
	cb.OnError()
	require.NoError(t, cb.Allow())
	cb.OnError()
	require.ErrorIs(t, cb.Allow(), ErrCircuitBreakerOpen)
	assert.True(t, cb.State().Halted)

	// 成功调用不会自动恢复
	cb.OnSuccess()
	require.ErrorIs(t, cb.Allow(), ErrCircuitBreakerOpen)

	cb.Resume()
	require.NoError(t, cb.Allow())
}

func TestCircuitBreaker_LossLimit(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{LossLimit: big.NewInt(100)})
	cb.AddLoss(big.NewInt(60))
	require.NoError(t, cb.Allow())
	cb.AddLoss(nil)
	cb.AddLoss(big.NewInt(-5))
	require.NoError(t, cb.Allow())
	cb.AddLoss(big.NewInt(40))
	require.ErrorIs(t, cb.Allow(), ErrCircuitBreakerOpen)

	st := cb.State()
	assert.Equal(t, int64(100), st.RealizedLoss.Int64())
	assert.Equal(t, int64(100), st.LossLimit.Int64())

	cb.Resume()
	require.NoError(t, cb.Allow())
	assert.Equal(t, int64(0), cb.State().RealizedLoss.Int64())
}

func TestCircuitBreaker_DisabledLimits(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{})
	for i := 0; i < 10; i++ {
		cb.OnError()
	}
	cb.AddLoss(big.NewInt(1_000_000))
	require.NoError(t, cb.Allow())
	assert.Nil(t, cb.State().LossLimit)

	cb.Halt()
	require.ErrorIs(t, cb.Allow(), ErrCircuitBreakerOpen)

	var nilBreaker *CircuitBreaker
	require.NoError(t, nilBreaker.Allow())
}

func TestGuardedVenue(t *testing.T) {
	ctx := context.Background()
	ledger := memvenue.NewLedger()
	inner := memvenue.New(venueAddr, ledger)
	cb := NewCircuitBreaker(CircuitBreakerConfig{MaxConsecutiveErrors: 1})
	v := Guard(inner, cb)

	ledger.Mint(holder, big.NewInt(1_000))
	require.NoError(t, v.PlaceFunds(ctx, big.NewInt(400), holder))

	boom := errors.New("venue paused")
	inner.FailNext("PlaceFunds", boom)
	require.ErrorIs(t, v.PlaceFunds(ctx, big.NewInt(100), holder), boom)

	// 熔断后部署被拦截，场所不会被调用
	calls := inner.CallCount("PlaceFunds")
	require.ErrorIs(t, v.PlaceFunds(ctx, big.NewInt(100), holder), ErrCircuitBreakerOpen)
	assert.Equal(t, calls, inner.CallCount("PlaceFunds"))

	// 取回仍然放行
	shares, err := v.ShareBalance(ctx, holder)
	require.NoError(t, err)
	got, err := v.RedeemShares(ctx, shares, holder, holder)
	require.NoError(t, err)
	assert.Equal(t, int64(400), got.Int64())
}

package memvenue

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	venueAddr = common.HexToAddress("0x00000000000000000000000000000000000000f1")
	alice     = common.HexToAddress("0x00000000000000000000000000000000000000a1")
)

func setup(t *testing.T, funds int64) (*Ledger, *Venue) {
	t.Helper()
	l := NewLedger()
	l.Mint(alice, big.NewInt(funds))
	return l, New(venueAddr, l)
}

func TestVenue_DepositRedeemRoundTrip(t *testing.T) {
	ctx := context.Background()
	l, v := setup(t, 1_000)

	require.NoError(t, v.PlaceFunds(ctx, big.NewInt(600), alice))
	shares, err := v.ShareBalance(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, int64(600), shares.Int64())

	got, err := v.RedeemShares(ctx, shares, alice, alice)
	require.NoError(t, err)
	assert.Equal(t, int64(600), got.Int64())

	bal, _ := l.BalanceOf(ctx, alice)
	assert.Equal(t, int64(1_000), bal.Int64())
}

func TestVenue_YieldOnlyAfterRefresh(t *testing.T) {
	ctx := context.Background()
	_, v := setup(t, 1_000)
	require.NoError(t, v.PlaceFunds(ctx, big.NewInt(1_000), alice))

	v.Accrue(big.NewInt(100))
	before, _ := v.SharesToAsset(ctx, big.NewInt(1_000), false)
	assert.Equal(t, int64(1_000), before.Int64(), "stale rate before refresh")

	require.NoError(t, v.RefreshAccrual(ctx))
	after, _ := v.SharesToAsset(ctx, big.NewInt(1_000), false)
	assert.Equal(t, int64(1_099), after.Int64()) // 1000*1101/1001 向下取整
}

func TestVenue_Rounding(t *testing.T) {
	ctx := context.Background()
	_, v := setup(t, 1_000)
	require.NoError(t, v.PlaceFunds(ctx, big.NewInt(1_000), alice))
	v.Accrue(big.NewInt(500))
	require.NoError(t, v.RefreshAccrual(ctx))

	down, _ := v.AssetToShares(ctx, big.NewInt(100), false)
	up, _ := v.AssetToShares(ctx, big.NewInt(100), true)
	assert.Equal(t, int64(1), new(big.Int).Sub(up, down).Int64())
}

func TestVenue_LiquidityCapBlocksRedeem(t *testing.T) {
	ctx := context.Background()
	_, v := setup(t, 1_000)
	require.NoError(t, v.PlaceFunds(ctx, big.NewInt(1_000), alice))
	v.SetLiquidityCap(big.NewInt(300))

	liq, err := v.AvailableLiquidity(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(300), liq.Int64())

	_, err = v.RedeemShares(ctx, big.NewInt(500), alice, alice)
	require.ErrorIs(t, err, ErrInsufficientLiquidity)

	shares, _ := v.ShareBalance(ctx, alice)
	assert.Equal(t, int64(1_000), shares.Int64(), "failed redeem leaves shares untouched")
}

func TestVenue_ErrorInjection(t *testing.T) {
	ctx := context.Background()
	_, v := setup(t, 1_000)
	boom := errors.New("boom")
	v.FailNext("PlaceFunds", boom)

	require.ErrorIs(t, v.PlaceFunds(ctx, big.NewInt(10), alice), boom)
	require.NoError(t, v.PlaceFunds(ctx, big.NewInt(10), alice))
	assert.Equal(t, 2, v.CallCount("PlaceFunds"))
}

func TestVenue_RedeemMoreThanHeld(t *testing.T) {
	ctx := context.Background()
	_, v := setup(t, 100)
	require.NoError(t, v.PlaceFunds(ctx, big.NewInt(100), alice))
	_, err := v.RedeemShares(ctx, big.NewInt(101), alice, alice)
	require.ErrorIs(t, err, ErrInsufficientShares)
}

func TestVenue_LossReducesRate(t *testing.T) {
	ctx := context.Background()
	_, v := setup(t, 1_000)
	require.NoError(t, v.PlaceFunds(ctx, big.NewInt(1_000), alice))
	v.RealizeLoss(big.NewInt(200))
	require.NoError(t, v.RefreshAccrual(ctx))

	got, _ := v.SharesToAsset(ctx, big.NewInt(1_000), false)
	assert.Equal(t, int64(800), got.Int64()) // 1000*801/1001
}

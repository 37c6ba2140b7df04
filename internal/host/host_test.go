package host

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/betbot/vaultgate/internal/ports"
	"github.com/betbot/vaultgate/internal/strategycore/adapter"
	"github.com/betbot/vaultgate/internal/venue/memvenue"
	"github.com/betbot/vaultgate/pkg/persistence"
)

var (
	strategyAddr = common.HexToAddress("0x0000000000000000000000000000000000000a01")
	venueAddr    = common.HexToAddress("0x0000000000000000000000000000000000000a02")
	mgmt         = common.HexToAddress("0x0000000000000000000000000000000000000a03")
	alice        = common.HexToAddress("0x0000000000000000000000000000000000000a04")
)

type env struct {
	ledger *memvenue.Ledger
	venue  *memvenue.Venue
	host   *Host
	now    uint64
}

func newEnv(t *testing.T, threshold int64, unlockTime uint64, svc persistence.Service) *env {
	t.Helper()
	e := &env{ledger: memvenue.NewLedger(), now: 100}
	e.venue = memvenue.New(venueAddr, e.ledger)

	h, err := New(Config{ID: "h", Management: mgmt, StrategyAddress: strategyAddr}, e.ledger, svc)
	require.NoError(t, err)
	a, err := adapter.New(adapter.Config{
		ID:                  "a",
		Address:             strategyAddr,
		DeploymentThreshold: big.NewInt(threshold),
		UnlockTime:          unlockTime,
	}, adapter.Deps{
		Venue: e.venue,
		Asset: e.ledger,
		Vault: h,
		Clock: ports.ClockFunc(func(context.Context) (uint64, error) { return e.now, nil }),
	})
	require.NoError(t, err)
	h.Attach(a)
	e.host = h
	return e
}

func (e *env) fund(who common.Address, amount int64) {
	e.ledger.Mint(who, big.NewInt(amount))
}

func balance(t *testing.T, l *memvenue.Ledger, who common.Address) int64 {
	t.Helper()
	b, err := l.BalanceOf(context.Background(), who)
	require.NoError(t, err)
	return b.Int64()
}

func TestHost_DepositBooksDeployedAsDebt(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, 500_000, 0, nil)
	e.fund(alice, 600_000)

	require.NoError(t, e.host.Deposit(ctx, alice, big.NewInt(100_000)))
	idle, _ := e.host.TotalIdle(ctx)
	debt, _ := e.host.TotalDebt(ctx)
	assert.Equal(t, int64(100_000), idle.Int64())
	assert.Equal(t, int64(0), debt.Int64())

	require.NoError(t, e.host.Deposit(ctx, alice, big.NewInt(500_000)))
	idle, _ = e.host.TotalIdle(ctx)
	debt, _ = e.host.TotalDebt(ctx)
	assert.Equal(t, int64(0), idle.Int64())
	assert.Equal(t, int64(600_000), debt.Int64())
	assert.Equal(t, int64(600_000), e.host.TotalAssets().Int64())
}

func TestHost_ReportProfitAndLoss(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, 0, 0, nil)
	e.fund(alice, 1_000)
	require.NoError(t, e.host.Deposit(ctx, alice, big.NewInt(1_000)))

	e.venue.Accrue(big.NewInt(100))
	rep, err := e.host.Report(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1_099), rep.TotalAssets.Int64())
	assert.Equal(t, int64(99), rep.Profit.Int64())
	assert.Equal(t, int64(0), rep.Loss.Int64())

	e.venue.RealizeLoss(big.NewInt(200))
	rep, err = e.host.Report(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), rep.Profit.Int64())
	assert.True(t, rep.Loss.Sign() > 0)
	assert.Equal(t, rep.TotalAssets.Int64(), e.host.TotalAssets().Int64())
}

func TestHost_WithdrawFromIdleWhileLocked(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, 500, 1<<40, nil)
	e.fund(alice, 300)
	require.NoError(t, e.host.Deposit(ctx, alice, big.NewInt(300)))

	res, err := e.host.Withdraw(ctx, alice, big.NewInt(200))
	require.NoError(t, err)
	assert.Equal(t, int64(200), res.Paid.Int64())
	assert.Equal(t, int64(200), balance(t, e.ledger, alice))

	_, err = e.host.Withdraw(ctx, alice, big.NewInt(101))
	require.ErrorIs(t, err, ErrExceedsLimit)
}

func TestHost_WithdrawLockedDeployedFundsExceedsLimit(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, 0, 1<<40, nil)
	e.fund(alice, 1_000)
	require.NoError(t, e.host.Deposit(ctx, alice, big.NewInt(1_000)))

	_, err := e.host.Withdraw(ctx, alice, big.NewInt(1))
	require.ErrorIs(t, err, ErrExceedsLimit)
	assert.Equal(t, 0, e.venue.CallCount("RedeemShares"))
}

func TestHost_WithdrawFreesShortfall(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, 0, 0, nil)
	e.fund(alice, 1_000)
	require.NoError(t, e.host.Deposit(ctx, alice, big.NewInt(1_000)))

	res, err := e.host.Withdraw(ctx, alice, big.NewInt(400))
	require.NoError(t, err)
	assert.Equal(t, int64(400), res.Paid.Int64())
	assert.Equal(t, int64(0), res.Loss.Int64())
	assert.Equal(t, int64(400), balance(t, e.ledger, alice))
	debt, _ := e.host.TotalDebt(ctx)
	assert.Equal(t, int64(600), debt.Int64())
}

func TestHost_WithdrawBooksVenueLoss(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, 0, 0, nil)
	e.fund(alice, 1_000)
	require.NoError(t, e.host.Deposit(ctx, alice, big.NewInt(1_000)))
	e.venue.RealizeLoss(big.NewInt(100))

	// 刷新后 900/1000：500 资产 -> 555 份额 -> 499 资产
	res, err := e.host.Withdraw(ctx, alice, big.NewInt(500))
	require.NoError(t, err)
	assert.Equal(t, int64(499), res.Paid.Int64())
	assert.Equal(t, int64(1), res.Loss.Int64())
	assert.Equal(t, int64(499), balance(t, e.ledger, alice))
}

func TestHost_DepositRollsBackOnVenueFailure(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, 0, 0, nil)
	e.fund(alice, 1_000)
	boom := errors.New("venue paused")
	e.venue.FailNext("PlaceFunds", boom)

	err := e.host.Deposit(ctx, alice, big.NewInt(1_000))
	require.ErrorIs(t, err, boom)
	assert.Equal(t, int64(1_000), balance(t, e.ledger, alice))
	assert.Equal(t, int64(0), e.host.TotalAssets().Int64())
}

func TestHost_Shutdown(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, 0, 0, nil)
	e.fund(alice, 10)

	require.ErrorIs(t, e.host.Shutdown(ctx, alice), ErrUnauthorized)
	require.NoError(t, e.host.Shutdown(ctx, mgmt))
	require.NoError(t, e.host.Shutdown(ctx, mgmt))

	down, err := e.host.IsShutdown(ctx)
	require.NoError(t, err)
	assert.True(t, down)
	require.ErrorIs(t, e.host.Deposit(ctx, alice, big.NewInt(10)), ErrShutdown)
}

func TestHost_BooksPersist(t *testing.T) {
	ctx := context.Background()
	svc := persistence.NewMemoryService()
	e := newEnv(t, 0, 0, svc)
	e.fund(alice, 700)
	require.NoError(t, e.host.Deposit(ctx, alice, big.NewInt(700)))
	require.NoError(t, e.host.Shutdown(ctx, mgmt))

	h, err := New(Config{ID: "h", Management: mgmt, StrategyAddress: strategyAddr}, e.ledger, svc)
	require.NoError(t, err)
	assert.Equal(t, int64(700), h.TotalAssets().Int64())
	down, _ := h.IsShutdown(ctx)
	assert.True(t, down)
}

func TestHost_NoStrategy(t *testing.T) {
	ctx := context.Background()
	h, err := New(Config{Management: mgmt}, memvenue.NewLedger(), nil)
	require.NoError(t, err)

	require.ErrorIs(t, h.Deposit(ctx, alice, big.NewInt(1)), ErrNoStrategy)
	_, err = h.Withdraw(ctx, alice, big.NewInt(1))
	require.ErrorIs(t, err, ErrNoStrategy)
	_, err = h.Report(ctx)
	require.ErrorIs(t, err, ErrNoStrategy)
}

package app

import (
	"context"
	"errors"
	"math/big"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/betbot/vaultgate/internal/ports"
	"github.com/betbot/vaultgate/internal/risk"
	"github.com/betbot/vaultgate/pkg/config"
)

func memoryConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Persistence.Dir = filepath.Join(t.TempDir(), "state")
	cfg.Server.JournalDB = filepath.Join(t.TempDir(), "journal.db")
	cfg.Strategy.DeploymentThreshold = "500"
	cfg.Strategy.UnlockTime = 10
	return cfg
}

func TestBuild_MemoryMode(t *testing.T) {
	ctx := context.Background()
	cfg := memoryConfig(t)
	clock := ports.ClockFunc(func(context.Context) (uint64, error) { return 20, nil })

	a, err := Build(ctx, cfg, Options{Clock: clock})
	require.NoError(t, err)
	require.NotNil(t, a.Ledger)

	a.Ledger.Mint(cfg.StrategyAddress(), big.NewInt(800))
	require.NoError(t, a.Service.Deposit(ctx, common.Address{}, big.NewInt(800)))
	assert.True(t, a.Adapter.ThresholdMet())

	entries, err := a.Service.Journal(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
	require.NoError(t, a.Close())

	// 重启后 latch 与宿主记账从 JSON 文件恢复
	b, err := Build(ctx, cfg, Options{Clock: clock, SkipJournal: true})
	require.NoError(t, err)
	defer b.Close()
	assert.True(t, b.Adapter.ThresholdMet())
	assert.Equal(t, int64(800), b.Host.TotalAssets().Int64())
}

func TestBuild_ThresholdChangeRejected(t *testing.T) {
	ctx := context.Background()
	cfg := memoryConfig(t)
	a, err := Build(ctx, cfg, Options{SkipJournal: true})
	require.NoError(t, err)
	require.NoError(t, a.Close())

	cfg.Strategy.DeploymentThreshold = "501"
	_, err = Build(ctx, cfg, Options{SkipJournal: true})
	require.Error(t, err)
}

func TestBuild_BadgerBackend(t *testing.T) {
	ctx := context.Background()
	cfg := memoryConfig(t)
	cfg.Persistence.Backend = "badger"

	a, err := Build(ctx, cfg, Options{SkipJournal: true})
	require.NoError(t, err)
	require.NoError(t, a.Service.FreezeUnlock(ctx, cfg.ManagementAddress()))
	require.NoError(t, a.Close())

	b, err := Build(ctx, cfg, Options{SkipJournal: true})
	require.NoError(t, err)
	defer b.Close()
	assert.True(t, b.Adapter.UnlockFrozen())
}

func TestBuild_InvalidConfig(t *testing.T) {
	cfg := memoryConfig(t)
	cfg.Venue.Mode = "paper"
	_, err := Build(context.Background(), cfg, Options{})
	require.Error(t, err)
}

func TestBuild_VenueBehindBreaker(t *testing.T) {
	ctx := context.Background()
	cfg := memoryConfig(t)
	cfg.Persistence.Backend = "memory"
	cfg.Strategy.DeploymentThreshold = "0"
	cfg.Risk.MaxConsecutiveErrors = 1

	a, err := Build(ctx, cfg, Options{SkipJournal: true})
	require.NoError(t, err)
	defer a.Close()

	a.Ledger.Mint(cfg.StrategyAddress(), big.NewInt(100))
	a.MemVenue.FailNext("PlaceFunds", errors.New("paused"))
	require.Error(t, a.Service.Deposit(ctx, common.Address{}, big.NewInt(100)))

	err = a.Service.Deposit(ctx, common.Address{}, big.NewInt(100))
	require.ErrorIs(t, err, risk.ErrCircuitBreakerOpen)
	assert.True(t, a.Service.Breaker().Halted)

	require.NoError(t, a.Service.ResumeBreaker(ctx, cfg.ManagementAddress()))
	require.NoError(t, a.Service.Deposit(ctx, common.Address{}, big.NewInt(100)))
	assert.Equal(t, int64(100), a.Host.TotalAssets().Int64())
}

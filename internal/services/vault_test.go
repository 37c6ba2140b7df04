package services

import (
	"context"
	"math/big"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/betbot/vaultgate/internal/domain"
	"github.com/betbot/vaultgate/internal/host"
	"github.com/betbot/vaultgate/internal/metrics"
	"github.com/betbot/vaultgate/internal/ports"
	"github.com/betbot/vaultgate/internal/strategycore/adapter"
	"github.com/betbot/vaultgate/internal/venue/memvenue"
)

var (
	strategyAddr = common.HexToAddress("0x0000000000000000000000000000000000000b01")
	venueAddr    = common.HexToAddress("0x0000000000000000000000000000000000000b02")
	mgmt         = common.HexToAddress("0x0000000000000000000000000000000000000b03")
	alice        = common.HexToAddress("0x0000000000000000000000000000000000000b04")
)

func newService(t *testing.T, threshold int64, unlockTime uint64, withJournal bool) (*VaultService, *memvenue.Ledger) {
	t.Helper()
	ledger := memvenue.NewLedger()
	venue := memvenue.New(venueAddr, ledger)
	h, err := host.New(host.Config{Management: mgmt, StrategyAddress: strategyAddr}, ledger, nil)
	require.NoError(t, err)
	a, err := adapter.New(adapter.Config{
		Address:             strategyAddr,
		DeploymentThreshold: big.NewInt(threshold),
		UnlockTime:          unlockTime,
	}, adapter.Deps{
		Venue: venue, Asset: ledger, Vault: h,
		Clock: ports.ClockFunc(func(context.Context) (uint64, error) { return 1_000, nil }),
	})
	require.NoError(t, err)
	h.Attach(a)

	var j *Journal
	if withJournal {
		j, err = OpenJournal(filepath.Join(t.TempDir(), "journal.db"))
		require.NoError(t, err)
		t.Cleanup(func() { _ = j.Close() })
	}
	return NewVaultService(a, h, j), ledger
}

func TestVaultService_JournalsOperations(t *testing.T) {
	ctx := context.Background()
	svc, ledger := newService(t, 100, 5_000, true)
	ledger.Mint(alice, big.NewInt(500))

	flips := metrics.ThresholdFlips.Value()
	require.NoError(t, svc.Deposit(ctx, alice, big.NewInt(500)))
	assert.Equal(t, flips+1, metrics.ThresholdFlips.Value())

	_, err := svc.Withdraw(ctx, alice, big.NewInt(1))
	require.ErrorIs(t, err, host.ErrExceedsLimit)

	require.ErrorIs(t, svc.SetUnlockTime(ctx, alice, 1), adapter.ErrUnauthorized)

	entries, err := svc.Journal(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 3)

	ops := map[string]JournalEntry{}
	for _, e := range entries {
		ops[e.Op] = e
		assert.NotEmpty(t, e.ID)
	}
	assert.Equal(t, "500", ops["deposit"].Amount)
	assert.Empty(t, ops["deposit"].Error)
	assert.Contains(t, ops["withdraw"].Error, "exceeds limit")
	assert.Equal(t, alice.Hex(), ops["set_unlock_time"].Caller)
	assert.Contains(t, ops["set_unlock_time"].Error, "not management")
}

func TestVaultService_ReportUpdatesLastTotal(t *testing.T) {
	ctx := context.Background()
	svc, ledger := newService(t, 0, 0, false)
	ledger.Mint(alice, big.NewInt(750))
	require.NoError(t, svc.Deposit(ctx, alice, big.NewInt(750)))

	rep, err := svc.Report(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(750), rep.TotalAssets.Int64())
	assert.Equal(t, "750", metrics.LastTotalAssets.Value())

	entries, err := svc.Journal(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestVaultService_EmergencyFlow(t *testing.T) {
	ctx := context.Background()
	svc, ledger := newService(t, 0, 1<<40, false)
	ledger.Mint(alice, big.NewInt(1_000))
	require.NoError(t, svc.Deposit(ctx, alice, big.NewInt(1_000)))

	_, err := svc.EmergencyFree(ctx, mgmt, big.NewInt(10))
	require.ErrorIs(t, err, adapter.ErrNotShutdown)

	require.NoError(t, svc.Shutdown(ctx, mgmt))
	got, err := svc.EmergencyFree(ctx, mgmt, big.NewInt(5_000))
	require.NoError(t, err)
	assert.Equal(t, int64(1_000), got.Int64())

	require.NoError(t, svc.FreezeUnlock(ctx, mgmt))
	require.ErrorIs(t, svc.SetUnlockTime(ctx, mgmt, 0), adapter.ErrFrozen)
}

func TestVaultService_BroadcastsStatus(t *testing.T) {
	ctx := context.Background()
	svc, ledger := newService(t, 1_000, 0, false)
	ch, cancel := svc.Hub().Subscribe()
	defer cancel()

	ledger.Mint(alice, big.NewInt(300))
	require.NoError(t, svc.Deposit(ctx, alice, big.NewInt(300)))

	select {
	case st := <-ch:
		assert.Equal(t, int64(300), st.Idle.Int64())
		assert.False(t, st.ThresholdMet)
	case <-time.After(time.Second):
		t.Fatal("没有收到状态快照")
	}
}

func TestHub_KeepsLatest(t *testing.T) {
	h := NewHub()
	ch, cancel := h.Subscribe()
	assert.Equal(t, 1, h.Len())

	h.Broadcast(&domain.Status{Now: 1})
	h.Broadcast(&domain.Status{Now: 2})
	st := <-ch
	assert.Equal(t, uint64(2), st.Now)

	cancel()
	cancel()
	assert.Equal(t, 0, h.Len())
	_, ok := <-ch
	assert.False(t, ok)
}

func TestJournal_ListLimit(t *testing.T) {
	ctx := context.Background()
	j, err := OpenJournal(filepath.Join(t.TempDir(), "j.db"))
	require.NoError(t, err)
	defer j.Close()

	base := time.Now().UTC()
	for i := 0; i < 5; i++ {
		require.NoError(t, j.Record(ctx, &JournalEntry{Op: "report", CreatedAt: base.Add(time.Duration(i) * time.Second)}))
	}
	entries, err := j.List(ctx, 2)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.True(t, entries[0].CreatedAt.After(entries[1].CreatedAt))
}

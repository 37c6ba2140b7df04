package persistence

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func roundTrip(t *testing.T, svc Service) {
	t.Helper()
	store := svc.NewStore("state", "adapter-1", "latches")

	var got sample
	require.ErrorIs(t, store.Load(&got), ErrNotExists)

	require.NoError(t, store.Save(sample{Name: "x", Count: 3}))
	require.NoError(t, store.Load(&got))
	assert.Equal(t, sample{Name: "x", Count: 3}, got)

	// 覆盖写
	require.NoError(t, store.Save(sample{Name: "y", Count: 4}))
	require.NoError(t, store.Load(&got))
	assert.Equal(t, "y", got.Name)

	// 不同 tag 互不影响
	other := svc.NewStore("state", "adapter-1", "other")
	require.ErrorIs(t, other.Load(&got), ErrNotExists)
}

func TestJSONFileService(t *testing.T) {
	svc := NewJSONFileService(t.TempDir())
	defer svc.Close()
	roundTrip(t, svc)
}

func TestMemoryService(t *testing.T) {
	roundTrip(t, NewMemoryService())
}

func TestBadgerService(t *testing.T) {
	svc, err := OpenBadger(BadgerOptions{Path: t.TempDir()})
	require.NoError(t, err)
	defer svc.Close()
	roundTrip(t, svc)
}

func TestBadgerService_InMemory(t *testing.T) {
	svc, err := OpenBadger(BadgerOptions{InMemory: true})
	require.NoError(t, err)
	defer svc.Close()
	roundTrip(t, svc)
}

func TestOpenBadger_RequiresPath(t *testing.T) {
	_, err := OpenBadger(BadgerOptions{})
	require.Error(t, err)
}

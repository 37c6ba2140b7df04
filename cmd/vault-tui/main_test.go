package main

import (
	"errors"
	"math/big"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"

	"github.com/betbot/vaultgate/pkg/sdk/api"
)

func TestModel_View(t *testing.T) {
	m := model{decimals: 6}
	assert.Contains(t, m.View(), "正在连接")

	next, _ := m.Update(snapshotMsg{err: errors.New("dial tcp: refused")})
	assert.Contains(t, next.View(), "dial tcp: refused")

	next, _ = next.Update(snapshotMsg{
		status: &api.Status{
			DeploymentThreshold: big.NewInt(500_000_000),
			ThresholdMet:        true,
			Idle:                big.NewInt(1_500_000),
			Deployed:            big.NewInt(600_000_000),
		},
		journal: []api.JournalEntry{{Op: "deposit", Amount: "100", Result: "ok", CreatedAt: time.Now()}},
	})
	view := next.View()
	assert.Contains(t, view, "1.5")
	assert.Contains(t, view, "601.5")
	assert.Contains(t, view, "deposit")
}

func TestModel_Quit(t *testing.T) {
	_, cmd := model{}.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	assert.NotNil(t, cmd)
}

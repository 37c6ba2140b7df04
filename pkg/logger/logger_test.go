package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInit_WritesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "test.log")
	require.NoError(t, Init(Config{Level: "debug", OutputFile: path, MaxSize: 1, Quiet: true}))
	require.Equal(t, path, GetCurrentLogFile())

	Infof("[Test] hello %d", 42)

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(b), "hello 42")
}

func TestInit_BadLevelFallsBackToInfo(t *testing.T) {
	require.NoError(t, Init(Config{Level: "nope", Quiet: true}))
	require.Equal(t, "info", Logger.GetLevel().String())
}

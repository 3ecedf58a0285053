package tuning

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadShippedTuning(t *testing.T) {
	got, err := Load(filepath.Join("..", "..", "..", "configs", "tuning.yaml"))
	require.NoError(t, err)
	want := Defaults()
	require.Equal(t, 100*time.Millisecond, got.PassiveTick())
	require.Equal(t, 10*time.Second, got.AutosaveCheck())
	require.Equal(t, 2*time.Minute, got.AutosaveStale())
	require.Equal(t, want.Economy, got.Economy, "economy drifted from defaults")
	require.Equal(t, want.AutoTap, got.AutoTap, "auto_tap drifted from defaults")
	require.Equal(t, "m-orig", got.StarterItem)
	require.Equal(t, "monster-clicker-save", got.SaveKey)
}

func TestLoadPartialKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tuning.yaml")
	require.NoError(t, os.WriteFile(path, []byte("passive_tick_ms: 50\neconomy:\n  sell_multiplier: 20\n"), 0o644))
	got, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 50, got.PassiveTickMs)
	require.Equal(t, 20.0, got.Economy.SellMultiplier)
	require.Equal(t, 100, got.Economy.MaxUpgradeLevel)
	require.Equal(t, 80, got.AutoTap.MinIntervalMs)
}

func TestLoadRejectsBadValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tuning.yaml")
	require.NoError(t, os.WriteFile(path, []byte("passive_tick_ms: 0\n"), 0o644))
	_, err := Load(path)
	require.Error(t, err, "zero passive tick")

	require.NoError(t, os.WriteFile(path, []byte("economy: [1, 2\n"), 0o644))
	_, err = Load(path)
	require.Error(t, err, "broken yaml")
}

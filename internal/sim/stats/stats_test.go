package stats

import (
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"mepclicker.app/internal/sim/catalogs"
	"mepclicker.app/internal/sim/tuning"
)

func loadCats(t *testing.T) *catalogs.Catalogs {
	t.Helper()
	c, err := catalogs.Load(filepath.Join("..", "..", "..", "configs"))
	require.NoError(t, err)
	return c
}

func neutral(equipped ...string) Inputs {
	return Inputs{Equipped: equipped, UpgradeLevels: map[string]int{}, CPSMultiplier: 1, TapMultiplier: 1}
}

func TestComputeStarter(t *testing.T) {
	c := loadCats(t)
	d := Compute(c, tuning.Defaults().Economy, neutral("m-orig"))
	require.InDelta(t, 1.0, d.ProductionRate, 1e-9)
	require.InDelta(t, 1.1, d.TapPower, 1e-9)
	require.InDelta(t, 0.05, d.CritChance, 1e-12)
}

func TestComputeFormula(t *testing.T) {
	c := loadCats(t)
	in := neutral("m-orig", "u-white", "nope")
	in.UpgradeLevels = map[string]int{"boost-perc": 2, "auto-speed": 3, "click-1": 4, "click-crit": 19}
	in.RebirthCount = 2
	in.CPSFlatBonus = 5
	in.CPSMultiplier = 3
	in.TapMultiplier = 2

	d := Compute(c, tuning.Defaults().Economy, in)
	base := 1.0 + 1.2
	rate := (base*1.1*1.3*4 + 5) * 3
	require.InDelta(t, base, d.BaseRate, 1e-9)
	require.InDelta(t, rate, d.ProductionRate, 1e-9)
	require.InDelta(t, (1+rate*0.1)*16*4*2, d.TapPower, 1e-9)
	// Unclamped above 1.
	require.InDelta(t, 1.0, d.CritChance, 1e-9)
}

func TestComputeClampsLevels(t *testing.T) {
	c := loadCats(t)
	in := neutral()
	in.UpgradeLevels = map[string]int{"click-1": 500, "click-crit": -4}
	d := Compute(c, tuning.Defaults().Economy, in)
	require.Equal(t, math.Pow(2, 100), d.TapUpgradeMult)
	require.InDelta(t, 0.05, d.CritChance, 1e-12)
}

func TestSlotLimit(t *testing.T) {
	c := loadCats(t)
	eco := tuning.Defaults().Economy
	require.Equal(t, 1, SlotLimit(c, eco, nil))
	require.Equal(t, 4, SlotLimit(c, eco, map[string]int{"boost-slot": 3}))
}

func TestAutoTapInterval(t *testing.T) {
	at := tuning.Defaults().AutoTap
	require.Zero(t, AutoTapInterval(0, at))
	require.Equal(t, time.Second, AutoTapInterval(1, at))
	got := AutoTapInterval(2, at)
	require.InDelta(t, float64(time.Second)/1.15, float64(got), float64(time.Microsecond))
	require.Equal(t, 80*time.Millisecond, AutoTapInterval(100, at))
	for l := 1; l < 100; l++ {
		require.GreaterOrEqual(t, AutoTapInterval(l, at), AutoTapInterval(l+1, at))
	}
}

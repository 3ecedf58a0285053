// Package stats derives production rate, tap power and crit chance from the
// equipped set, upgrade levels, rebirth count and override scalars.
package stats

import (
	"math"
	"time"

	"mepclicker.app/internal/sim/catalogs"
	"mepclicker.app/internal/sim/tuning"
)

type Inputs struct {
	Equipped      []string
	UpgradeLevels map[string]int
	RebirthCount  int

	CPSMultiplier float64
	TapMultiplier float64
	CPSFlatBonus  float64
}

type Derived struct {
	ProductionRate float64
	TapPower       float64
	// CritChance is not clamped; callers treat >= 1 as certain.
	CritChance float64

	BaseRate       float64
	SynergyMult    float64
	AutoSpeedMult  float64
	RebirthMult    float64
	TapUpgradeMult float64
}

func Compute(cats *catalogs.Catalogs, eco tuning.Economy, in Inputs) Derived {
	level := func(e catalogs.Effect) int {
		l := cats.Level(in.UpgradeLevels, e)
		if l < 0 {
			return 0
		}
		if eco.MaxUpgradeLevel > 0 && l > eco.MaxUpgradeLevel {
			return eco.MaxUpgradeLevel
		}
		return l
	}

	var d Derived
	for _, id := range in.Equipped {
		if it, ok := cats.Item(id); ok {
			d.BaseRate += it.BaseCPS
		}
	}
	rebirths := in.RebirthCount
	if rebirths < 0 {
		rebirths = 0
	}

	d.SynergyMult = 1 + eco.SynergyPerLevel*float64(level(catalogs.EffectSynergy))
	d.AutoSpeedMult = 1 + eco.AutomationSpeedPerLevel*float64(level(catalogs.EffectAutomationSpeed))
	d.RebirthMult = 1 + eco.RebirthMultiplierPerRebirth*float64(rebirths)
	d.TapUpgradeMult = math.Pow(2, float64(level(catalogs.EffectTapPower)))

	d.ProductionRate = (d.BaseRate*d.SynergyMult*d.AutoSpeedMult*d.RebirthMult + in.CPSFlatBonus) * in.CPSMultiplier
	d.TapPower = (eco.BaseTapPower + d.ProductionRate*eco.TapCPSRatio) * d.TapUpgradeMult * d.RebirthMult * in.TapMultiplier
	d.CritChance = eco.BaseCritChance + eco.CritChancePerLevel*float64(level(catalogs.EffectCritChance))
	return d
}

// SlotLimit is the equipped-set capacity.
func SlotLimit(cats *catalogs.Catalogs, eco tuning.Economy, levels map[string]int) int {
	l := cats.Level(levels, catalogs.EffectSlot)
	if l < 0 {
		l = 0
	}
	return eco.BaseSlots + l
}

// AutoTapInterval returns 0 when auto-tap is not unlocked.
func AutoTapInterval(level int, at tuning.AutoTap) time.Duration {
	if level <= 0 {
		return 0
	}
	ms := float64(at.BaseIntervalMs) / math.Pow(at.Speedup, float64(level-1))
	if ms < float64(at.MinIntervalMs) {
		ms = float64(at.MinIntervalMs)
	}
	return time.Duration(ms * float64(time.Millisecond))
}

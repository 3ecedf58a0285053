// Package state holds the persisted player record shared by the engine and
// the save layer.
package state

import (
	"math"

	"mepclicker.app/internal/sim/catalogs"
)

type SaveState string

const (
	Saved  SaveState = "Saved"
	Saving SaveState = "Saving"
)

// PlayerState is the single mutable aggregate. JSON names are the save format.
type PlayerState struct {
	Balance        float64 `json:"balance"`
	LifetimeEarned float64 `json:"lifetimeEarned"`

	// Derived; recomputed by stats.Compute, never authored directly.
	ProductionRate float64 `json:"productionRate"`
	TapPower       float64 `json:"tapPower"`
	CritChance     float64 `json:"critChance"`

	Inventory     []string       `json:"inventory"`
	EquippedIDs   []string       `json:"equippedIds"`
	RebirthCount  int            `json:"rebirthCount"`
	UpgradeLevels map[string]int `json:"upgradeLevels"`
	SaveState     SaveState      `json:"saveState"`

	AdminModeEnabled bool             `json:"adminModeEnabled"`
	EconomyFrozen    bool             `json:"economyFrozen"`
	UnlimitedBalance bool             `json:"unlimitedBalance"`
	CPSMultiplier    float64          `json:"cpsMultiplier"`
	TapMultiplier    float64          `json:"tapMultiplier"`
	CPSFlatBonus     float64          `json:"cpsFlatBonus"`
	FreeCosts        bool             `json:"freeCosts"`
	ForcedRarity     *catalogs.Rarity `json:"forcedRarity"`
	BulkCrateOpening bool             `json:"bulkCrateOpening"`
}

// Default is the fresh-start record: zero balance, starter owned and equipped.
func Default(starter string) PlayerState {
	return PlayerState{
		TapPower:      1,
		CritChance:    0.05,
		Inventory:     []string{starter},
		EquippedIDs:   []string{starter},
		UpgradeLevels: map[string]int{},
		SaveState:     Saved,
		CPSMultiplier: 1,
		TapMultiplier: 1,
	}
}

func (s PlayerState) Clone() PlayerState {
	out := s
	out.Inventory = append([]string(nil), s.Inventory...)
	out.EquippedIDs = append([]string(nil), s.EquippedIDs...)
	out.UpgradeLevels = make(map[string]int, len(s.UpgradeLevels))
	for k, v := range s.UpgradeLevels {
		out.UpgradeLevels[k] = v
	}
	if s.ForcedRarity != nil {
		r := *s.ForcedRarity
		out.ForcedRarity = &r
	}
	return out
}

func (s PlayerState) Owns(id string) bool { return s.InventoryCount(id) > 0 }

func (s PlayerState) InventoryCount(id string) int {
	n := 0
	for _, x := range s.Inventory {
		if x == id {
			n++
		}
	}
	return n
}

func (s PlayerState) IsEquipped(id string) bool {
	for _, x := range s.EquippedIDs {
		if x == id {
			return true
		}
	}
	return false
}

// Sanitize replaces values JSON cannot carry: NaN becomes 0, infinities
// saturate at ±MaxFloat64. Nil collections become empty.
func (s *PlayerState) Sanitize() {
	for _, p := range []*float64{
		&s.Balance, &s.LifetimeEarned, &s.ProductionRate, &s.TapPower, &s.CritChance,
		&s.CPSMultiplier, &s.TapMultiplier, &s.CPSFlatBonus,
	} {
		*p = finite(*p)
	}
	if s.Inventory == nil {
		s.Inventory = []string{}
	}
	if s.EquippedIDs == nil {
		s.EquippedIDs = []string{}
	}
	if s.UpgradeLevels == nil {
		s.UpgradeLevels = map[string]int{}
	}
	if s.SaveState != Saving {
		s.SaveState = Saved
	}
}

func finite(v float64) float64 {
	switch {
	case math.IsNaN(v):
		return 0
	case math.IsInf(v, 1):
		return math.MaxFloat64
	case math.IsInf(v, -1):
		return -math.MaxFloat64
	}
	return v
}

package game

import (
	"crypto/subtle"

	"mepclicker.app/internal/sim/catalogs"
	"mepclicker.app/internal/sim/state"
)

// Override setters are trusted: no affordability or capacity checks. Each one
// re-derives stats and re-establishes the record invariants afterwards.

// Authenticate compares key against the configured admin key. On success
// admin mode is switched on and persisted with the record.
func (e *Engine) Authenticate(key string) bool {
	want := e.tune.AdminKey
	if want == "" || subtle.ConstantTimeCompare([]byte(key), []byte(want)) != 1 {
		return false
	}
	return e.override("AUTHENTICATE", nil, func(st *state.PlayerState) {
		st.AdminModeEnabled = true
	})
}

// AdminMode reports the sticky admin flag.
func (e *Engine) AdminMode() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.st.AdminModeEnabled
}

func (e *Engine) SetAdminMode(on bool) bool {
	return e.override("SET_ADMIN_MODE", map[string]any{"value": on}, func(st *state.PlayerState) {
		st.AdminModeEnabled = on
	})
}

func (e *Engine) SetBalance(v float64) bool {
	return e.override("SET_BALANCE", map[string]any{"value": v}, func(st *state.PlayerState) {
		st.Balance = v
	})
}

func (e *Engine) AddBalance(delta float64) bool {
	return e.override("ADD_BALANCE", map[string]any{"value": delta}, func(st *state.PlayerState) {
		st.Balance += delta
	})
}

func (e *Engine) ForceMaxBalance() bool {
	v := e.tune.Economy.ForceMaxBalance
	return e.override("FORCE_MAX_BALANCE", map[string]any{"value": v}, func(st *state.PlayerState) {
		st.Balance = v
	})
}

func (e *Engine) SetFrozen(on bool) bool {
	return e.override("SET_FROZEN", map[string]any{"value": on}, func(st *state.PlayerState) {
		st.EconomyFrozen = on
	})
}

func (e *Engine) SetUnlimitedBalance(on bool) bool {
	return e.override("SET_UNLIMITED_BALANCE", map[string]any{"value": on}, func(st *state.PlayerState) {
		st.UnlimitedBalance = on
	})
}

func (e *Engine) SetCPSMultiplier(v float64) bool {
	return e.override("SET_CPS_MULTIPLIER", map[string]any{"value": v}, func(st *state.PlayerState) {
		st.CPSMultiplier = v
	})
}

func (e *Engine) SetTapMultiplier(v float64) bool {
	return e.override("SET_TAP_MULTIPLIER", map[string]any{"value": v}, func(st *state.PlayerState) {
		st.TapMultiplier = v
	})
}

func (e *Engine) SetCPSFlatBonus(v float64) bool {
	return e.override("SET_CPS_FLAT_BONUS", map[string]any{"value": v}, func(st *state.PlayerState) {
		st.CPSFlatBonus = v
	})
}

func (e *Engine) SetFreeCosts(on bool) bool {
	return e.override("SET_FREE_COSTS", map[string]any{"value": on}, func(st *state.PlayerState) {
		st.FreeCosts = on
	})
}

// SetForcedRarity narrows every crate roll to r; nil clears it.
func (e *Engine) SetForcedRarity(r *catalogs.Rarity) bool {
	var v any
	if r != nil {
		v = r.String()
	}
	return e.override("SET_FORCED_RARITY", map[string]any{"value": v}, func(st *state.PlayerState) {
		if r == nil {
			st.ForcedRarity = nil
			return
		}
		rr := *r
		st.ForcedRarity = &rr
	})
}

func (e *Engine) SetBulkCrateOpening(on bool) bool {
	return e.override("SET_BULK_CRATE_OPENING", map[string]any{"value": on}, func(st *state.PlayerState) {
		st.BulkCrateOpening = on
	})
}

// GrantItem appends one instance of id. With autoEquip the equipped set
// becomes exactly [id].
func (e *Engine) GrantItem(id string, autoEquip bool) bool {
	if _, ok := e.cats.Item(id); !ok {
		return false
	}
	return e.override("GRANT_ITEM", map[string]any{"item": id, "auto_equip": autoEquip}, func(st *state.PlayerState) {
		st.Inventory = append(st.Inventory, id)
		if autoEquip {
			st.EquippedIDs = []string{id}
		}
	})
}

// GrantAllItems replaces the inventory with one of every catalog item.
func (e *Engine) GrantAllItems() bool {
	return e.override("GRANT_ALL_ITEMS", nil, func(st *state.PlayerState) {
		st.Inventory = append([]string(nil), e.cats.Items.Order...)
	})
}

func (e *Engine) ClearInventory() bool {
	return e.override("CLEAR_INVENTORY", nil, func(st *state.PlayerState) {
		st.Inventory = []string{}
		st.EquippedIDs = []string{}
	})
}

// SetUpgradeLevels writes the given levels; other upgrades are untouched.
// Out-of-range levels are clamped.
func (e *Engine) SetUpgradeLevels(levels map[string]int) bool {
	details := make(map[string]any, len(levels))
	for k, v := range levels {
		details[k] = v
	}
	return e.override("SET_UPGRADE_LEVELS", details, func(st *state.PlayerState) {
		for id, l := range levels {
			st.UpgradeLevels[id] = l
		}
	})
}

func (e *Engine) MaxAllUpgrades() bool {
	return e.override("MAX_ALL_UPGRADES", nil, func(st *state.PlayerState) {
		for _, id := range e.cats.Upgrades.Order {
			st.UpgradeLevels[id] = e.tune.Economy.MaxUpgradeLevel
		}
	})
}

func (e *Engine) ResetAllUpgrades() bool {
	return e.override("RESET_ALL_UPGRADES", nil, func(st *state.PlayerState) {
		st.UpgradeLevels = map[string]int{}
	})
}

func (e *Engine) SetRebirthCount(n int) bool {
	return e.override("SET_REBIRTH_COUNT", map[string]any{"value": n}, func(st *state.PlayerState) {
		st.RebirthCount = n
	})
}

func (e *Engine) override(action string, details map[string]any, fn func(st *state.PlayerState)) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return false
	}
	if e.st.UpgradeLevels == nil {
		e.st.UpgradeLevels = map[string]int{}
	}
	fn(&e.st)
	e.normalize()
	e.recompute()
	e.writeAudit(AuditEntry{Action: "OVERRIDE", Target: action, Details: details})
	e.emit(Event{Type: EventOverride, Target: action})
	e.requestSave()
	return true
}

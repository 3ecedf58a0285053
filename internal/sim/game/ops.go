package game

import "mepclicker.app/internal/sim/economy"

type TapResult struct {
	Applied bool
	Gain    float64
	Crit    bool
	Auto    bool
}

// Tap grants tapPower, doubled on a crit. Position is passed through to
// subscribers only.
func (e *Engine) Tap(x, y float64) TapResult {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.tap(x, y, false)
}

func (e *Engine) tap(x, y float64, auto bool) TapResult {
	if e.closed || e.st.EconomyFrozen {
		return TapResult{}
	}
	crit := economy.RollCrit(e.st.CritChance, e.rng)
	gain := e.st.TapPower
	if crit {
		gain *= e.tune.Economy.CritMultiplier
	}
	e.credit(gain)
	e.emit(Event{Type: EventTap, Gain: gain, Crit: crit, Auto: auto, X: x, Y: y})
	return TapResult{Applied: true, Gain: gain, Crit: crit, Auto: auto}
}

// PassiveTick applies one tick of production. It returns the gain, zero when
// nothing was produced.
func (e *Engine) PassiveTick() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed || e.st.EconomyFrozen || e.st.ProductionRate <= 0 {
		return 0
	}
	gain := e.st.ProductionRate * e.tune.PassiveTick().Seconds()
	e.credit(gain)
	e.emit(Event{Type: EventPassive, Gain: gain})
	return gain
}

func (e *Engine) credit(gain float64) {
	f := economy.FlagsOf(e.st)
	e.st.Balance = economy.Credit(e.st.Balance, gain, f)
	e.st.LifetimeEarned = economy.Earn(e.st.LifetimeEarned, gain)
}

func (e *Engine) PurchaseUpgrade(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return false
	}
	u, ok := e.cats.Upgrade(id)
	if !ok {
		return false
	}
	level := e.st.UpgradeLevels[id]
	if level >= e.tune.Economy.MaxUpgradeLevel {
		return false
	}
	cost := u.Cost(level)
	f := economy.FlagsOf(e.st)
	bal, ok := economy.Charge(economy.PurchaseUpgrade, e.st.Balance, cost, f)
	if !ok {
		return false
	}
	e.st.Balance = bal
	e.st.UpgradeLevels[id] = level + 1
	e.recompute()
	e.writeAudit(AuditEntry{Action: "UPGRADE", Target: id, Cost: economy.EffectiveCost(economy.PurchaseUpgrade, cost, f),
		Details: map[string]any{"level": level + 1}})
	e.emit(Event{Type: EventUpgrade, Target: id})
	e.requestSave()
	return true
}

// OpenCrate returns the dropped item ids, nil when the crate could not be opened.
func (e *Engine) OpenCrate(id string) []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	cr, ok := e.cats.Crate(id)
	if !ok {
		return nil
	}
	if len(economy.ResolvePool(e.cats, cr, e.st.ForcedRarity)) == 0 {
		return nil
	}
	f := economy.FlagsOf(e.st)
	bal, ok := economy.Charge(economy.PurchaseCrate, e.st.Balance, cr.Price, f)
	if !ok {
		return nil
	}
	rolls := 1
	if e.st.BulkCrateOpening {
		rolls = e.tune.Economy.BulkCrateRolls
	}
	drops := economy.RollCrate(e.cats, cr, e.st.ForcedRarity, rolls, e.rng)
	e.st.Balance = bal
	e.st.Inventory = append(e.st.Inventory, drops...)
	e.writeAudit(AuditEntry{Action: "OPEN_CRATE", Target: id, Cost: economy.EffectiveCost(economy.PurchaseCrate, cr.Price, f),
		Items: append([]string(nil), drops...)})
	e.emit(Event{Type: EventCrate, Target: id, Items: append([]string(nil), drops...)})
	e.requestSave()
	return drops
}

// Equip toggles id in the equipped set. When the set is full the oldest
// entry is evicted. Only owned items can be equipped.
func (e *Engine) Equip(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return false
	}
	action := "UNEQUIP"
	if idx := indexOf(e.st.EquippedIDs, id); idx >= 0 {
		e.st.EquippedIDs = removeAt(e.st.EquippedIDs, idx)
	} else {
		if !e.st.Owns(id) {
			return false
		}
		limit := e.slotLimit()
		if limit <= 0 {
			return false
		}
		eq := e.st.EquippedIDs
		for len(eq) >= limit {
			eq = eq[1:]
		}
		e.st.EquippedIDs = append(append([]string(nil), eq...), id)
		action = "EQUIP"
	}
	e.recompute()
	e.writeAudit(AuditEntry{Action: action, Target: id})
	e.emit(Event{Type: EventEquip, Target: id})
	e.requestSave()
	return true
}

// Sell removes the first owned instance of id and pays its base rate times
// the sell multiplier. The id is unequipped.
func (e *Engine) Sell(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return false
	}
	item, ok := e.cats.Item(id)
	if !ok {
		return false
	}
	idx := indexOf(e.st.Inventory, id)
	if idx < 0 {
		return false
	}
	price := item.BaseCPS * e.tune.Economy.SellMultiplier
	e.st.Balance = economy.Credit(e.st.Balance, price, economy.FlagsOf(e.st))
	e.st.Inventory = removeAt(e.st.Inventory, idx)
	if j := indexOf(e.st.EquippedIDs, id); j >= 0 {
		e.st.EquippedIDs = removeAt(e.st.EquippedIDs, j)
	}
	e.recompute()
	e.writeAudit(AuditEntry{Action: "SELL", Target: id, Gain: price})
	e.emit(Event{Type: EventSell, Target: id, Gain: price})
	e.requestSave()
	return true
}

// Rebirth resets balance, inventory and equipped set to the starter item and
// increments the rebirth count. Upgrade levels carry over.
func (e *Engine) Rebirth() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return false
	}
	stage := e.cats.Rebirth.StageFor(e.st.RebirthCount)
	bal := economy.EffectiveBalance(e.st.Balance, economy.FlagsOf(e.st))
	if bal < stage.Milestone && !e.st.AdminModeEnabled {
		return false
	}
	starter := e.tune.StarterItem
	e.st.Balance = 0
	e.st.Inventory = []string{starter}
	e.st.EquippedIDs = []string{starter}
	e.st.RebirthCount++
	e.recompute()
	e.writeAudit(AuditEntry{Action: "REBIRTH", Details: map[string]any{
		"rebirth_count": e.st.RebirthCount,
		"milestone":     stage.Milestone,
	}})
	e.emit(Event{Type: EventRebirth})
	e.requestSave()
	return true
}

// HardReset recreates the default record and discards the persisted blob.
func (e *Engine) HardReset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	e.st = e.defaultState()
	e.recompute()
	if e.store != nil {
		if err := e.store.Delete(e.tune.SaveKey); err != nil {
			e.logf("delete save: %v", err)
		}
	}
	e.lastSave = e.clk.Now()
	e.savingUntil = e.lastSave
	e.writeAudit(AuditEntry{Action: "HARD_RESET"})
	e.emit(Event{Type: EventReset})
}

func indexOf(ids []string, id string) int {
	for i, x := range ids {
		if x == id {
			return i
		}
	}
	return -1
}

// removeAt returns a new slice without element i.
func removeAt(ids []string, i int) []string {
	out := make([]string, 0, len(ids)-1)
	out = append(out, ids[:i]...)
	return append(out, ids[i+1:]...)
}

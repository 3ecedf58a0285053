package game

import (
	"math"

	"mepclicker.app/internal/sim/catalogs"
	"mepclicker.app/internal/sim/economy"
)

type UpgradeQuote struct {
	ID         string  `json:"id"`
	Level      int     `json:"level"`
	MaxLevel   int     `json:"max_level"`
	Cost       float64 `json:"cost"`
	Maxed      bool    `json:"maxed"`
	Free       bool    `json:"free"`
	Affordable bool    `json:"affordable"`
}

// UpgradeQuote prices the next level of id. A maxed upgrade reports Maxed and
// no cost.
func (e *Engine) UpgradeQuote(id string) (UpgradeQuote, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	u, ok := e.cats.Upgrade(id)
	if !ok {
		return UpgradeQuote{}, false
	}
	q := UpgradeQuote{ID: id, Level: e.st.UpgradeLevels[id], MaxLevel: e.tune.Economy.MaxUpgradeLevel}
	if q.Level >= q.MaxLevel {
		q.Maxed = true
		return q, true
	}
	f := economy.FlagsOf(e.st)
	q.Cost = u.Cost(q.Level)
	q.Free = economy.Bypassed(economy.PurchaseUpgrade, f)
	q.Affordable = economy.CanAfford(economy.PurchaseUpgrade, e.st.Balance, q.Cost, f)
	return q, true
}

type CrateQuote struct {
	ID         string   `json:"id"`
	Price      float64  `json:"price"`
	Cost       float64  `json:"cost"`
	Rolls      int      `json:"rolls"`
	Affordable bool     `json:"affordable"`
	Pool       []string `json:"pool"`
}

func (e *Engine) CrateQuote(id string) (CrateQuote, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	cr, ok := e.cats.Crate(id)
	if !ok {
		return CrateQuote{}, false
	}
	f := economy.FlagsOf(e.st)
	q := CrateQuote{
		ID:         id,
		Price:      cr.Price,
		Cost:       economy.EffectiveCost(economy.PurchaseCrate, cr.Price, f),
		Rolls:      1,
		Affordable: economy.CanAfford(economy.PurchaseCrate, e.st.Balance, cr.Price, f),
		Pool:       economy.ResolvePool(e.cats, cr, e.st.ForcedRarity),
	}
	if e.st.BulkCrateOpening {
		q.Rolls = e.tune.Economy.BulkCrateRolls
	}
	return q, true
}

type RebirthInfo struct {
	Next     int                   `json:"next"`
	Stage    catalogs.RebirthStage `json:"stage"`
	Progress float64               `json:"progress"`
	Ready    bool                  `json:"ready"`
}

// RebirthInfo reports progress toward the next rebirth milestone in [0,1].
func (e *Engine) RebirthInfo() RebirthInfo {
	e.mu.Lock()
	defer e.mu.Unlock()
	stage := e.cats.Rebirth.StageFor(e.st.RebirthCount)
	bal := economy.EffectiveBalance(e.st.Balance, economy.FlagsOf(e.st))
	info := RebirthInfo{Next: e.st.RebirthCount + 1, Stage: stage}
	switch {
	case stage.Milestone <= 0 || math.IsInf(bal, 1):
		info.Progress = 1
	case bal > 0:
		info.Progress = math.Min(bal/stage.Milestone, 1)
	}
	info.Ready = bal >= stage.Milestone || e.st.AdminModeEnabled
	return info
}

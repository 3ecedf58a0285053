// Package economy holds the pure pricing and drop rules. Every affordability
// decision goes through Charge so override flags are consulted in one place.
package economy

import (
	"math"

	"mepclicker.app/internal/sim/catalogs"
	"mepclicker.app/internal/sim/state"
)

// RNG is the random source; *math/rand/v2.Rand satisfies it.
type RNG interface {
	IntN(n int) int
	Float64() float64
}

type Flags struct {
	AdminMode bool
	FreeCosts bool
	Unlimited bool
}

func FlagsOf(s state.PlayerState) Flags {
	return Flags{AdminMode: s.AdminModeEnabled, FreeCosts: s.FreeCosts, Unlimited: s.UnlimitedBalance}
}

type Purchase int

const (
	PurchaseUpgrade Purchase = iota
	PurchaseCrate
)

func (p Purchase) String() string {
	if p == PurchaseCrate {
		return "crate"
	}
	return "upgrade"
}

// Bypassed reports whether the price is waived. Admin mode waives crates only.
func Bypassed(kind Purchase, f Flags) bool {
	if f.FreeCosts {
		return true
	}
	return kind == PurchaseCrate && f.AdminMode
}

func EffectiveCost(kind Purchase, price float64, f Flags) float64 {
	if Bypassed(kind, f) {
		return 0
	}
	return price
}

// EffectiveBalance is what affordability and display see.
func EffectiveBalance(balance float64, f Flags) float64 {
	if f.Unlimited {
		return math.Inf(1)
	}
	return balance
}

func CanAfford(kind Purchase, balance, price float64, f Flags) bool {
	return EffectiveBalance(balance, f) >= EffectiveCost(kind, price, f)
}

// Charge returns the balance after paying price. An unlimited balance is
// never drawn down.
func Charge(kind Purchase, balance, price float64, f Flags) (float64, bool) {
	if !CanAfford(kind, balance, price, f) {
		return balance, false
	}
	if f.Unlimited {
		return balance, true
	}
	return balance - EffectiveCost(kind, price, f), true
}

// Credit adds gain to the spendable balance unless it is unlimited.
func Credit(balance, gain float64, f Flags) float64 {
	if f.Unlimited {
		return balance
	}
	return saturate(balance + gain)
}

// Earn adds gain to lifetime earnings, which accumulate even when unlimited.
func Earn(lifetime, gain float64) float64 {
	return saturate(lifetime + gain)
}

func saturate(v float64) float64 {
	if math.IsInf(v, 1) {
		return math.MaxFloat64
	}
	return v
}

// RollCrit draws a crit with probability chance; chance >= 1 is certain.
func RollCrit(chance float64, rng RNG) bool {
	if chance >= 1 {
		return true
	}
	if chance <= 0 || rng == nil {
		return false
	}
	return rng.Float64() < chance
}

// EligiblePool lists the crate's native drops in catalog order.
func EligiblePool(cats *catalogs.Catalogs, crate catalogs.CrateDef) []string {
	var out []string
	for _, id := range cats.Items.Order {
		if crate.Eligible(cats.Items.Defs[id].Rarity) {
			out = append(out, id)
		}
	}
	return out
}

// NarrowPool replaces eligible with every catalog item of the forced rarity,
// when at least one exists. Crate eligibility is ignored for forced rarities.
func NarrowPool(cats *catalogs.Catalogs, eligible []string, forced *catalogs.Rarity) []string {
	if forced == nil {
		return eligible
	}
	var out []string
	for _, id := range cats.Items.Order {
		if cats.Items.Defs[id].Rarity == *forced {
			out = append(out, id)
		}
	}
	if len(out) == 0 {
		return eligible
	}
	return out
}

// ResolvePool never returns an empty pool while the crate's native pool has items.
func ResolvePool(cats *catalogs.Catalogs, crate catalogs.CrateDef, forced *catalogs.Rarity) []string {
	eligible := EligiblePool(cats, crate)
	if pool := NarrowPool(cats, eligible, forced); len(pool) > 0 {
		return pool
	}
	return eligible
}

// PickDrop chooses uniformly from pool.
func PickDrop(pool []string, rng RNG) (string, bool) {
	if len(pool) == 0 || rng == nil {
		return "", false
	}
	return pool[rng.IntN(len(pool))], true
}

func RollCrate(cats *catalogs.Catalogs, crate catalogs.CrateDef, forced *catalogs.Rarity, rolls int, rng RNG) []string {
	pool := ResolvePool(cats, crate, forced)
	out := make([]string, 0, rolls)
	for i := 0; i < rolls; i++ {
		id, ok := PickDrop(pool, rng)
		if !ok {
			break
		}
		out = append(out, id)
	}
	return out
}

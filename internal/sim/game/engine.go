// Package game owns the player record and executes every economic operation
// against it under one lock.
package game

import (
	"errors"
	"fmt"
	"log"
	"math/rand/v2"
	"sync"
	"time"

	"mepclicker.app/internal/persistence/save"
	"mepclicker.app/internal/sim/catalogs"
	"mepclicker.app/internal/sim/clock"
	"mepclicker.app/internal/sim/economy"
	"mepclicker.app/internal/sim/state"
	"mepclicker.app/internal/sim/stats"
	"mepclicker.app/internal/sim/tuning"
)

type Config struct {
	Catalogs *catalogs.Catalogs
	Tuning   tuning.Tuning

	// Optional; defaults are the real clock and a time-seeded PCG source.
	Clock clock.Clock
	RNG   economy.RNG

	Store  save.Store
	Logger *log.Logger
	Audit  AuditLogger

	// OnSaved runs after each successful save while the engine lock is held.
	// It must not block or call back into the engine.
	OnSaved func(at time.Time, s state.PlayerState)
}

type AuditLogger interface {
	WriteAudit(entry AuditEntry) error
}

type AuditEntry struct {
	At      time.Time      `json:"at"`
	Action  string         `json:"action"`
	Target  string         `json:"target,omitempty"`
	Gain    float64        `json:"gain,omitempty"`
	Cost    float64        `json:"cost,omitempty"`
	Balance float64        `json:"balance"`
	Items   []string       `json:"items,omitempty"`
	Details map[string]any `json:"details,omitempty"`
}

// Engine is safe for concurrent use. Operations that fail their
// precondition change nothing and report false or an empty result.
type Engine struct {
	mu sync.Mutex

	cats   *catalogs.Catalogs
	tune   tuning.Tuning
	clk    clock.Clock
	rng    economy.RNG
	store  save.Store
	policy save.Policy
	logger *log.Logger
	audit  AuditLogger

	onSaved func(time.Time, state.PlayerState)

	st          state.PlayerState
	lastSave    time.Time
	savingUntil time.Time

	subs   map[int]subscriber
	nextID int

	closed bool
	stop   chan struct{}
	once   sync.Once
}

// New restores the saved record from cfg.Store, if any. A missing blob is a
// fresh start; a malformed one is logged and also treated as a fresh start.
func New(cfg Config) (*Engine, error) {
	if cfg.Catalogs == nil {
		return nil, errors.New("game: nil catalogs")
	}
	if _, ok := cfg.Catalogs.Item(cfg.Tuning.StarterItem); !ok {
		return nil, fmt.Errorf("game: starter item %q not in catalog", cfg.Tuning.StarterItem)
	}
	e := &Engine{
		cats:    cfg.Catalogs,
		tune:    cfg.Tuning,
		clk:     cfg.Clock,
		rng:     cfg.RNG,
		store:   cfg.Store,
		policy:  save.PolicyFrom(cfg.Tuning),
		logger:  cfg.Logger,
		audit:   cfg.Audit,
		onSaved: cfg.OnSaved,
		subs:    map[int]subscriber{},
		stop:    make(chan struct{}),
	}
	if e.clk == nil {
		e.clk = clock.RealClock{}
	}
	if e.rng == nil {
		seed := uint64(time.Now().UnixNano())
		e.rng = rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	}
	e.st = e.defaultState()
	e.restore()
	e.normalize()
	e.recompute()
	e.lastSave = e.clk.Now()
	return e, nil
}

func (e *Engine) defaultState() state.PlayerState {
	return state.Default(e.tune.StarterItem)
}

func (e *Engine) restore() {
	if e.store == nil {
		return
	}
	blob, err := e.store.Load(e.tune.SaveKey)
	if errors.Is(err, save.ErrNotFound) {
		return
	}
	if err != nil {
		e.logf("load save %q: %v", e.tune.SaveKey, err)
		return
	}
	st, skipped, err := save.DecodeFields(blob, e.defaultState())
	if err != nil {
		e.logf("failed to load save: %v", err)
		return
	}
	if len(skipped) > 0 {
		e.logf("load save %q: kept defaults for %v", e.tune.SaveKey, skipped)
	}
	e.st = st
}

func (e *Engine) logf(format string, args ...any) {
	if e.logger != nil {
		e.logger.Printf(format, args...)
	}
}

func (e *Engine) Catalogs() *catalogs.Catalogs { return e.cats }
func (e *Engine) Tuning() tuning.Tuning         { return e.tune }

// Snapshot returns a deep copy of the current record.
func (e *Engine) Snapshot() state.PlayerState {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.reconcileSaveState()
	return e.st.Clone()
}

// SlotLimit is the current equipped-set capacity.
func (e *Engine) SlotLimit() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.slotLimit()
}

func (e *Engine) slotLimit() int {
	return stats.SlotLimit(e.cats, e.tune.Economy, e.st.UpgradeLevels)
}

// DisplayBalance is the balance as presented: +Inf while unlimited.
func (e *Engine) DisplayBalance() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return economy.EffectiveBalance(e.st.Balance, economy.FlagsOf(e.st))
}

// Close stops Run and turns every later operation into a no-op.
func (e *Engine) Close() {
	e.once.Do(func() {
		e.mu.Lock()
		e.closed = true
		for id, sub := range e.subs {
			close(sub.ch)
			delete(e.subs, id)
		}
		e.mu.Unlock()
		close(e.stop)
	})
}

func (e *Engine) recompute() {
	d := stats.Compute(e.cats, e.tune.Economy, stats.Inputs{
		Equipped:      e.st.EquippedIDs,
		UpgradeLevels: e.st.UpgradeLevels,
		RebirthCount:  e.st.RebirthCount,
		CPSMultiplier: e.st.CPSMultiplier,
		TapMultiplier: e.st.TapMultiplier,
		CPSFlatBonus:  e.st.CPSFlatBonus,
	})
	e.st.ProductionRate = d.ProductionRate
	e.st.TapPower = d.TapPower
	e.st.CritChance = d.CritChance
}

// normalize re-establishes the record invariants after trusted writes:
// levels in range, non-negative rebirths, equipped ⊆ inventory and within
// the slot limit (oldest evicted first).
func (e *Engine) normalize() {
	st := &e.st
	if st.UpgradeLevels == nil {
		st.UpgradeLevels = map[string]int{}
	}
	maxLevel := e.tune.Economy.MaxUpgradeLevel
	for id, l := range st.UpgradeLevels {
		switch {
		case l < 0:
			st.UpgradeLevels[id] = 0
		case l > maxLevel:
			st.UpgradeLevels[id] = maxLevel
		}
	}
	if st.RebirthCount < 0 {
		st.RebirthCount = 0
	}
	if st.Inventory == nil {
		st.Inventory = []string{}
	}

	kept := make([]string, 0, len(st.EquippedIDs))
	seen := map[string]bool{}
	for _, id := range st.EquippedIDs {
		if seen[id] || !st.Owns(id) {
			continue
		}
		seen[id] = true
		kept = append(kept, id)
	}
	limit := e.slotLimit()
	if limit < 0 {
		limit = 0
	}
	if len(kept) > limit {
		kept = kept[len(kept)-limit:]
	}
	st.EquippedIDs = kept
}

func (e *Engine) writeAudit(entry AuditEntry) {
	if e.audit == nil {
		return
	}
	entry.At = e.clk.Now()
	entry.Balance = e.st.Balance
	if err := e.audit.WriteAudit(entry); err != nil {
		e.logf("audit %s: %v", entry.Action, err)
	}
}

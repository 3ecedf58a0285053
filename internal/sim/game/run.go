package game

import (
	"context"
	"time"

	"mepclicker.app/internal/sim/catalogs"
	"mepclicker.app/internal/sim/stats"
)

// Run drives the passive tick, the auto-tap and the autosave check until ctx
// is cancelled or Close is called.
func (e *Engine) Run(ctx context.Context) error {
	passive := time.NewTicker(e.tune.PassiveTick())
	defer passive.Stop()
	autosave := time.NewTicker(e.policy.CheckEvery)
	defer autosave.Stop()

	var (
		auto      *time.Ticker
		autoC     <-chan time.Time
		autoEvery time.Duration
	)
	syncAuto := func() {
		d := e.AutoTapInterval()
		if d == autoEvery {
			return
		}
		if auto != nil {
			auto.Stop()
			auto, autoC = nil, nil
		}
		autoEvery = d
		if d > 0 {
			auto = time.NewTicker(d)
			autoC = auto.C
		}
	}
	defer func() {
		if auto != nil {
			auto.Stop()
		}
	}()
	syncAuto()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-e.stop:
			return nil
		case <-passive.C:
			e.PassiveTick()
		case <-autoC:
			e.AutoTap()
		case <-autosave.C:
			e.AutosaveCheck()
		}
		syncAuto()
	}
}

// AutoTapInterval is zero until the auto-tap upgrade is bought.
func (e *Engine) AutoTapInterval() time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.st.EconomyFrozen {
		return 0
	}
	return stats.AutoTapInterval(e.cats.Level(e.st.UpgradeLevels, catalogs.EffectAutoTap), e.tune.AutoTap)
}

// AutoTap is one tap from the automation upgrade.
func (e *Engine) AutoTap() TapResult {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.tap(0, 0, true)
}

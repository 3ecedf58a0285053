package game

import (
	"time"

	"mepclicker.app/internal/persistence/save"
	"mepclicker.app/internal/sim/state"
)

// RequestSave writes the full record to the store now and shows Saving for
// the configured flash period.
func (e *Engine) RequestSave() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return false
	}
	return e.requestSave()
}

// requestSave leaves lastSave untouched on failure so the next autosave
// check retries.
func (e *Engine) requestSave() bool {
	now := e.clk.Now()
	if e.store != nil {
		blob, err := save.Encode(e.st)
		if err != nil {
			e.logf("encode save: %v", err)
			return false
		}
		if err := e.store.Save(e.tune.SaveKey, blob); err != nil {
			e.logf("write save %q: %v", e.tune.SaveKey, err)
			return false
		}
	}
	e.lastSave = now
	e.st.SaveState = state.Saving
	e.savingUntil = now.Add(e.policy.SavingFlash)
	if e.store == nil {
		return true
	}
	if e.onSaved != nil {
		e.onSaved(now, e.st.Clone())
	}
	e.emit(Event{Type: EventSave})
	return true
}

// reconcileSaveState flips Saving back to Saved once the flash has elapsed.
func (e *Engine) reconcileSaveState() {
	if e.st.SaveState == state.Saving && !e.clk.Now().Before(e.savingUntil) {
		e.st.SaveState = state.Saved
	}
}

// AutosaveCheck saves when the last save is older than the stale threshold.
// Run calls it on the check cadence.
func (e *Engine) AutosaveCheck() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return false
	}
	e.reconcileSaveState()
	if !e.policy.Due(e.lastSave, e.clk.Now()) {
		return false
	}
	return e.requestSave()
}

// LastSave reports when the record was last written.
func (e *Engine) LastSave() time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastSave
}

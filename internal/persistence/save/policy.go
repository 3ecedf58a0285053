package save

import (
	"time"

	"mepclicker.app/internal/sim/tuning"
)

// Policy bounds unsaved progress: every CheckEvery the engine saves if the
// last save is older than StaleAfter. SavingFlash is how long saveState
// reads Saving after a save.
type Policy struct {
	CheckEvery  time.Duration
	StaleAfter  time.Duration
	SavingFlash time.Duration
}

func DefaultPolicy() Policy {
	return Policy{CheckEvery: 10 * time.Second, StaleAfter: 120 * time.Second, SavingFlash: time.Second}
}

func PolicyFrom(t tuning.Tuning) Policy {
	return Policy{CheckEvery: t.AutosaveCheck(), StaleAfter: t.AutosaveStale(), SavingFlash: t.SavingFlash()}
}

func (p Policy) Due(last, now time.Time) bool {
	return now.Sub(last) > p.StaleAfter
}

// Package offline projects resource gains for the time a save sat unused.
package offline

import (
	"math"
	"time"

	"stellarforge.dev/internal/sim/game/model"
)

type Limits struct {
	MaxSeconds int
	MinSeconds int
}

// Report describes an applied (or skipped) projection.
type Report struct {
	ElapsedSeconds int
	Capped         bool
	Gains          model.Ledger
}

// Elapsed is whole seconds between lastSave and now, capped at the limit.
func Elapsed(lastSave, now time.Time, lim Limits) (int, bool) {
	if lastSave.IsZero() || !now.After(lastSave) {
		return 0, false
	}
	secs := int(math.Floor(now.Sub(lastSave).Seconds()))
	if lim.MaxSeconds > 0 && secs > lim.MaxSeconds {
		return lim.MaxSeconds, true
	}
	return secs, false
}

// Project returns rate*elapsed for every positively-rated resource. Losses
// are never projected, and nothing is projected at or below MinSeconds.
func Project(rps model.Ledger, lastSave, now time.Time, lim Limits) Report {
	secs, capped := Elapsed(lastSave, now, lim)
	rep := Report{ElapsedSeconds: secs, Capped: capped, Gains: model.Ledger{}}
	if secs <= lim.MinSeconds {
		return rep
	}
	for r, rate := range rps {
		if rate > 0 {
			rep.Gains[r] = rate * float64(secs)
		}
	}
	return rep
}

// Apply credits the projected gains to st.
func Apply(st *model.State, rep Report) {
	st.Resources.Credit(rep.Gains)
}

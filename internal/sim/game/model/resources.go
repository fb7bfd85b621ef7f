package model

import (
	"math"
	"sort"
)

type Resource string

const (
	Ore                Resource = "ore"
	Energy             Resource = "energy"
	Parts              Resource = "parts"
	ResearchPoints     Resource = "research_points"
	DysonFragments     Resource = "dyson_fragments"
	CondensedFragments Resource = "condensed_fragments"
	StellarEssence     Resource = "stellar_essence"
)

// AllResources is the display order used by views and snapshots.
var AllResources = []Resource{
	Ore,
	Energy,
	Parts,
	ResearchPoints,
	DysonFragments,
	CondensedFragments,
	StellarEssence,
}

var knownResources = func() map[Resource]struct{} {
	m := make(map[Resource]struct{}, len(AllResources))
	for _, r := range AllResources {
		m[r] = struct{}{}
	}
	return m
}()

func IsKnownResource(r Resource) bool {
	_, ok := knownResources[r]
	return ok
}

// Ledger maps a resource to a quantity. Missing keys read as zero.
type Ledger map[Resource]float64

// NewLedger returns a ledger holding every known resource at zero.
func NewLedger() Ledger {
	l := make(Ledger, len(AllResources))
	for _, r := range AllResources {
		l[r] = 0
	}
	return l
}

func (l Ledger) Clone() Ledger {
	if l == nil {
		return nil
	}
	out := make(Ledger, len(l))
	for k, v := range l {
		out[k] = v
	}
	return out
}

// Covers reports whether every positive amount in cost is available in l.
func (l Ledger) Covers(cost Ledger) bool {
	for r, amt := range cost {
		if amt <= 0 {
			continue
		}
		if l[r] < amt {
			return false
		}
	}
	return true
}

// Debit subtracts cost from l. Callers check Covers first.
func (l Ledger) Debit(cost Ledger) {
	for r, amt := range cost {
		if amt <= 0 {
			continue
		}
		l[r] -= amt
	}
}

func (l Ledger) Credit(gain Ledger) {
	for r, amt := range gain {
		l[r] += amt
	}
}

// ClampNonNegative floors every entry at zero.
func (l Ledger) ClampNonNegative() {
	for r, v := range l {
		if v < 0 || math.IsNaN(v) {
			l[r] = 0
		}
	}
}

// Keys returns the ledger's resources sorted by display order, unknown keys last.
func (l Ledger) Keys() []Resource {
	keys := make([]Resource, 0, len(l))
	for r := range l {
		keys = append(keys, r)
	}
	sort.Slice(keys, func(i, j int) bool {
		oi, oj := order(keys[i]), order(keys[j])
		if oi != oj {
			return oi < oj
		}
		return keys[i] < keys[j]
	})
	return keys
}

func order(r Resource) int {
	for i, x := range AllResources {
		if x == r {
			return i
		}
	}
	return len(AllResources)
}

// StatTotal is the cumulative stat key for production of r.
func StatTotal(r Resource) string { return "total_" + string(r) }

const (
	StatTotalClicks    = "total_clicks"
	StatTotalPrestiges = "total_prestiges"
)

package control

import (
	"math"

	"github.com/fairstack/engine-go/internal/games"
)

// DefaultMaxProbes bounds the nonce walk during override resolution.
const DefaultMaxProbes = 25

// exactTolerance is the relative window an exact-multiplier directive
// accepts as a hit.
const exactTolerance = 0.05

// Probe is one candidate draw at a consumed nonce, already judged by the
// game.
type Probe struct {
	Nonce      uint64
	Result     games.GameResult
	Settlement games.Settlement
	// Bound is the value multiplier constraints are judged against,
	// always on the payout scale (the game's BoundMultiplier). Zero
	// falls back to the metric, which is already a multiplier for
	// crash, limbo and plinko.
	Bound float64
}

func (p Probe) boundValue() float64 {
	if p.Bound > 0 {
		return p.Bound
	}
	return p.Result.Metric
}

// ProbeFunc allocates the chain's next nonce and evaluates the bet's game
// at it. Every invocation permanently consumes a nonce.
type ProbeFunc func() (Probe, error)

// Resolution is the outcome of applying a directive to a bet.
type Resolution struct {
	Chosen Probe
	// Applied is true when a draw other than the first became canonical:
	// the presented outcome differs from the raw one.
	Applied bool
	// ExactnessMissed is set when no probe satisfied the directive within
	// maxProbes and the closest candidate was committed instead.
	ExactnessMissed bool
	ProbesUsed      int
}

// Resolve walks the deterministic sequence forward from the raw draw until
// one of its own outputs satisfies the directive, and commits that draw as
// canonical. No number is ever fabricated: a verifier replaying the chain
// reproduces the presented outcome at the consumed nonce exactly. If
// maxProbes draws all miss, the closest one is committed and flagged.
func Resolve(d *Directive, raw Probe, probe ProbeFunc, maxProbes int) (Resolution, error) {
	if d == nil {
		return Resolution{Chosen: raw}, nil
	}
	if maxProbes <= 0 {
		maxProbes = DefaultMaxProbes
	}

	if d.satisfiedBy(raw) {
		return Resolution{Chosen: raw}, nil
	}

	best := raw
	bestDist := d.distance(raw)
	for i := 0; i < maxProbes; i++ {
		p, err := probe()
		if err != nil {
			return Resolution{}, err
		}
		if d.satisfiedBy(p) {
			return Resolution{Chosen: p, Applied: true, ProbesUsed: i + 1}, nil
		}
		if dist := d.distance(p); dist < bestDist {
			best, bestDist = p, dist
		}
	}

	return Resolution{
		Chosen:          best,
		Applied:         best.Nonce != raw.Nonce,
		ExactnessMissed: true,
		ProbesUsed:      maxProbes,
	}, nil
}

// satisfiedBy reports whether a probe's natural outcome meets the
// directive: the win/lose side must match, and any multiplier constraint
// must hold against the probe's payout-scale bound (a forced loss under
// 1.5x on crash means the crash point itself stays below 1.5).
func (d *Directive) satisfiedBy(p Probe) bool {
	// Pending settlements (crash awaiting cash-out) have no win/lose
	// side yet; only the multiplier constraints can select among them.
	if !p.Settlement.Pending {
		switch d.Outcome {
		case OutcomeWin:
			if !p.Settlement.Win {
				return false
			}
		case OutcomeLose:
			if p.Settlement.Win {
				return false
			}
		}
	}

	m := p.boundValue()
	if d.Exact > 0 && math.Abs(m-d.Exact)/d.Exact > exactTolerance {
		return false
	}
	if d.Min > 0 && m < d.Min {
		return false
	}
	if d.Max > 0 && m > d.Max {
		return false
	}
	return true
}

// distance ranks near misses for the exactness-missed fallback: prefer the
// right win/lose side, then the multiplier nearest the directive's target.
func (d *Directive) distance(p Probe) float64 {
	const wrongSidePenalty = 1e9

	dist := 0.0
	if !p.Settlement.Pending && (d.Outcome == OutcomeWin) != p.Settlement.Win {
		dist += wrongSidePenalty
	}

	m := p.boundValue()
	switch {
	case d.Exact > 0:
		dist += math.Abs(m - d.Exact)
	case d.Min > 0 && m < d.Min:
		dist += d.Min - m
	case d.Max > 0 && m > d.Max:
		dist += m - d.Max
	}
	return dist
}

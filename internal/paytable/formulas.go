package paytable

import "math"

// DefaultHouseEdgeFactor scales the uniform draw in the limbo/crash curve
// and caps it at 1/(1-factor) = 100x.
const DefaultHouseEdgeFactor = 0.99

// CrashPoint maps a uniform draw in [0,1) to the round's crash multiplier:
//
//	m = 1 / (1 - r*factor), floored to cents, never below 1.00
//
// The expected return of cashing out at target M is
// M * P(m >= M) = M - (M-1)/factor, about 0.9899 at the 2x reference with
// the default factor and falling linearly toward 0 at the cap. The edge
// grows with the target, matching the source platform's curve rather than
// a flat-RTP variant.
func CrashPoint(r, factor float64) float64 {
	if factor <= 0 || factor >= 1 {
		factor = DefaultHouseEdgeFactor
	}
	point := 1.0 / (1.0 - r*factor)
	point = math.Floor(point*100) / 100
	return math.Max(point, 1.0)
}

// LimboMultiplier uses the same curve as crash; limbo settles instantly
// against the bettor's chosen target instead of a cash-out race.
func LimboMultiplier(r, factor float64) float64 {
	return CrashPoint(r, factor)
}

// WinProbability returns P(crash point >= target) under the curve above.
// Used by tests and by probe budgeting in override resolution.
func WinProbability(target, factor float64) float64 {
	if factor <= 0 || factor >= 1 {
		factor = DefaultHouseEdgeFactor
	}
	if target <= 1 {
		return 1
	}
	p := 1.0 - (1.0-1.0/target)/factor
	return math.Max(p, 0)
}

// DicePayout returns the multiplier for a dice bet with the given win
// chance expressed in percent (0 < chance < 100). 99/chance, the classic
// 1%-edge dice payout.
func DicePayout(winChancePercent float64) float64 {
	if winChancePercent <= 0 {
		return 0
	}
	return 99.0 / winChancePercent
}

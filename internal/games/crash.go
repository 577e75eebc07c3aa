package games

import (
	"fmt"

	"github.com/fairstack/engine-go/internal/engine"
	"github.com/fairstack/engine-go/internal/paytable"
)

// CrashGame implements the crash game. The round's crash point is derived
// up front from the seed material; settlement happens either instantly
// against an auto cash-out target, or later through the cash-out endpoint
// when no auto target is set.
type CrashGame struct {
	// Factor is the house-edge factor of the payout curve.
	Factor float64
}

// Spec returns metadata about the Crash game.
func (g *CrashGame) Spec() GameSpec {
	return GameSpec{
		ID:          "crash",
		Name:        "Crash",
		MetricLabel: "crash_point",
	}
}

// FloatCount returns the number of floats required.
func (g *CrashGame) FloatCount(params map[string]any) int {
	return 1
}

// Evaluate derives the crash point.
func (g *CrashGame) Evaluate(seeds Seeds, nonce uint64, params map[string]any) (GameResult, error) {
	floats := engine.Floats(seeds.Server, seeds.Client, nonce, 0, 1)
	return g.EvaluateWithFloats(floats, params)
}

// EvaluateWithFloats derives the crash point from a pre-computed float.
func (g *CrashGame) EvaluateWithFloats(floats []float64, params map[string]any) (GameResult, error) {
	if len(floats) < 1 {
		return GameResult{}, fmt.Errorf("crash requires at least 1 float, got %d", len(floats))
	}

	f := floats[0]
	point := paytable.CrashPoint(f, g.Factor)

	return GameResult{
		Metric:      point,
		MetricLabel: "crash_point",
		Details: map[string]any{
			"raw_float":   f,
			"crash_point": point,
		},
	}, nil
}

// Settle resolves instantly when autoCashout is set; otherwise the bet
// stays pending for the cash-out endpoint.
func (g *CrashGame) Settle(result GameResult, params map[string]any) (Settlement, error) {
	auto, ok := floatParam(params, "autoCashout")
	if !ok {
		return Settlement{Pending: true}, nil
	}
	if auto <= 1.0 {
		return Settlement{}, fmt.Errorf("crash auto cash-out must exceed 1.0, got %v", auto)
	}

	s := Settlement{Win: result.Metric >= auto}
	if s.Win {
		s.Multiplier = auto
	}
	return s, nil
}

// BoundMultiplier is the round's crash point; the metric is already on
// the payout scale.
func (g *CrashGame) BoundMultiplier(result GameResult, params map[string]any) (float64, error) {
	return result.Metric, nil
}

// SettleAt judges a player cash-out action at the given multiplier against
// the round's crash point. Used by the deferred settlement path.
func (g *CrashGame) SettleAt(result GameResult, cashoutAt float64) (Settlement, error) {
	if cashoutAt <= 1.0 {
		return Settlement{}, fmt.Errorf("cash-out multiplier must exceed 1.0, got %v", cashoutAt)
	}
	s := Settlement{Win: result.Metric >= cashoutAt}
	if s.Win {
		s.Multiplier = cashoutAt
	}
	return s, nil
}

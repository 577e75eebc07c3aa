package games

import (
	"fmt"

	"github.com/fairstack/engine-go/internal/engine"
	"github.com/fairstack/engine-go/internal/paytable"
)

// LimboGame implements the limbo game: a single multiplier is derived per
// round and the bet wins when it reaches the bettor's chosen target.
type LimboGame struct {
	// Factor is the house-edge factor of the payout curve.
	Factor float64
}

// Spec returns metadata about the Limbo game.
func (g *LimboGame) Spec() GameSpec {
	return GameSpec{
		ID:          "limbo",
		Name:        "Limbo",
		MetricLabel: "multiplier",
	}
}

// FloatCount returns the number of floats required.
func (g *LimboGame) FloatCount(params map[string]any) int {
	return 1
}

// Evaluate derives the round multiplier.
func (g *LimboGame) Evaluate(seeds Seeds, nonce uint64, params map[string]any) (GameResult, error) {
	floats := engine.Floats(seeds.Server, seeds.Client, nonce, 0, 1)
	return g.EvaluateWithFloats(floats, params)
}

// EvaluateWithFloats derives the round multiplier from a pre-computed float.
func (g *LimboGame) EvaluateWithFloats(floats []float64, params map[string]any) (GameResult, error) {
	if len(floats) < 1 {
		return GameResult{}, fmt.Errorf("limbo requires at least 1 float, got %d", len(floats))
	}

	f := floats[0]
	mult := paytable.LimboMultiplier(f, g.Factor)

	return GameResult{
		Metric:      mult,
		MetricLabel: "multiplier",
		Details: map[string]any{
			"raw_float":  f,
			"multiplier": mult,
		},
	}, nil
}

// Settle wins when the derived multiplier reaches the bettor's target; the
// payout is the target itself.
func (g *LimboGame) Settle(result GameResult, params map[string]any) (Settlement, error) {
	target, ok := floatParam(params, "targetMultiplier")
	if !ok {
		return Settlement{}, fmt.Errorf("limbo requires a numeric 'targetMultiplier' parameter")
	}
	if target <= 1.0 {
		return Settlement{}, fmt.Errorf("limbo target multiplier must exceed 1.0, got %v", target)
	}

	s := Settlement{Win: result.Metric >= target}
	if s.Win {
		s.Multiplier = target
	}
	return s, nil
}

// BoundMultiplier is the round's derived multiplier; the metric is
// already on the payout scale.
func (g *LimboGame) BoundMultiplier(result GameResult, params map[string]any) (float64, error) {
	return result.Metric, nil
}

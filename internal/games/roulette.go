package games

import (
	"fmt"
	"math"

	"github.com/fairstack/engine-go/internal/engine"
)

// RouletteGame implements European roulette (pockets 0-36).
type RouletteGame struct{}

var rouletteRedPockets = map[int]bool{
	1: true, 3: true, 5: true, 7: true, 9: true,
	12: true, 14: true, 16: true, 18: true, 19: true,
	21: true, 23: true, 25: true, 27: true, 30: true,
	32: true, 34: true, 36: true,
}

// Spec returns metadata about the Roulette game.
func (g *RouletteGame) Spec() GameSpec {
	return GameSpec{
		ID:          "roulette",
		Name:        "Roulette",
		MetricLabel: "pocket",
	}
}

// FloatCount returns the number of floats required.
func (g *RouletteGame) FloatCount(params map[string]any) int {
	return 1
}

// Evaluate determines which pocket the ball lands in.
func (g *RouletteGame) Evaluate(seeds Seeds, nonce uint64, params map[string]any) (GameResult, error) {
	floats := engine.Floats(seeds.Server, seeds.Client, nonce, 0, 1)
	return g.EvaluateWithFloats(floats, params)
}

// EvaluateWithFloats determines the pocket using a pre-computed float.
func (g *RouletteGame) EvaluateWithFloats(floats []float64, params map[string]any) (GameResult, error) {
	if len(floats) < 1 {
		return GameResult{}, fmt.Errorf("roulette requires at least 1 float, got %d", len(floats))
	}

	f := floats[0]
	pocket := int(math.Floor(f * 37))

	color := "green"
	if pocket != 0 {
		if rouletteRedPockets[pocket] {
			color = "red"
		} else {
			color = "black"
		}
	}

	return GameResult{
		Metric:      float64(pocket),
		MetricLabel: "pocket",
		Details: map[string]any{
			"raw_float": f,
			"pocket":    pocket,
			"color":     color,
		},
	}, nil
}

// Settle judges the pocket against the bet type. Straight bets pay 36x,
// even-chance bets pay 2x; zero loses every even-chance bet.
func (g *RouletteGame) Settle(result GameResult, params map[string]any) (Settlement, error) {
	betType := "straight"
	if v, ok := params["betType"].(string); ok {
		betType = v
	}

	pocket := int(result.Metric)

	var win bool
	var multiplier float64
	switch betType {
	case "straight":
		number, ok := floatParam(params, "number")
		if !ok {
			return Settlement{}, fmt.Errorf("roulette straight bet requires a 'number' parameter")
		}
		n := int(number)
		if n < 0 || n > 36 {
			return Settlement{}, fmt.Errorf("roulette number must be between 0 and 36, got %d", n)
		}
		win = pocket == n
		multiplier = 36
	case "red":
		win = pocket != 0 && rouletteRedPockets[pocket]
		multiplier = 2
	case "black":
		win = pocket != 0 && !rouletteRedPockets[pocket]
		multiplier = 2
	case "even":
		win = pocket != 0 && pocket%2 == 0
		multiplier = 2
	case "odd":
		win = pocket%2 == 1
		multiplier = 2
	case "low":
		win = pocket >= 1 && pocket <= 18
		multiplier = 2
	case "high":
		win = pocket >= 19
		multiplier = 2
	default:
		return Settlement{}, fmt.Errorf("unknown roulette bet type: %s", betType)
	}

	s := Settlement{Win: win}
	if win {
		s.Multiplier = multiplier
	}
	return s, nil
}

// BoundMultiplier is the bet type's fixed payout; the pocket number is
// not on the multiplier scale.
func (g *RouletteGame) BoundMultiplier(result GameResult, params map[string]any) (float64, error) {
	betType := "straight"
	if v, ok := params["betType"].(string); ok {
		betType = v
	}
	switch betType {
	case "straight":
		return 36, nil
	case "red", "black", "even", "odd", "low", "high":
		return 2, nil
	}
	return 0, fmt.Errorf("unknown roulette bet type: %s", betType)
}

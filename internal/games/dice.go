package games

import (
	"fmt"
	"math"

	"github.com/fairstack/engine-go/internal/engine"
	"github.com/fairstack/engine-go/internal/paytable"
)

// DiceGame implements the dice roll game.
type DiceGame struct{}

// Spec returns metadata about the Dice game.
func (g *DiceGame) Spec() GameSpec {
	return GameSpec{
		ID:          "dice",
		Name:        "Dice",
		MetricLabel: "roll",
	}
}

// FloatCount returns the number of floats required.
func (g *DiceGame) FloatCount(params map[string]any) int {
	return 1
}

// Evaluate calculates the dice roll (0.00 to 100.00).
func (g *DiceGame) Evaluate(seeds Seeds, nonce uint64, params map[string]any) (GameResult, error) {
	floats := engine.Floats(seeds.Server, seeds.Client, nonce, 0, 1)
	return g.EvaluateWithFloats(floats, params)
}

// EvaluateWithFloats calculates the dice roll using pre-computed floats.
func (g *DiceGame) EvaluateWithFloats(floats []float64, params map[string]any) (GameResult, error) {
	if len(floats) < 1 {
		return GameResult{}, fmt.Errorf("dice requires at least 1 float, got %d", len(floats))
	}

	f := floats[0]

	// floor(float * 10001) / 100 gives exactly 10,001 discrete outcomes
	// (0.00 through 100.00), so target comparisons need no tolerance.
	roll := math.Floor(f*10001) / 100

	return GameResult{
		Metric:      roll,
		MetricLabel: "roll",
		Details: map[string]any{
			"raw_float": f,
			"roll":      roll,
		},
	}, nil
}

// Settle compares the roll against the bettor's target and side.
func (g *DiceGame) Settle(result GameResult, params map[string]any) (Settlement, error) {
	target, condition, err := diceParams(params)
	if err != nil {
		return Settlement{}, err
	}

	roll := result.Metric
	var win bool
	switch condition {
	case "over":
		win = roll > target
	case "under":
		win = roll < target
	}

	chance := diceWinChance(target, condition)
	if chance <= 0 {
		return Settlement{}, fmt.Errorf("dice target %v leaves no winning outcomes", target)
	}

	s := Settlement{Win: win}
	if win {
		s.Multiplier = paytable.DicePayout(chance)
	}
	return s, nil
}

// BoundMultiplier is the payout the bettor's target pays on a win. The
// roll itself is not on the multiplier scale, so multiplier constraints
// are judged against this fixed value instead.
func (g *DiceGame) BoundMultiplier(result GameResult, params map[string]any) (float64, error) {
	target, condition, err := diceParams(params)
	if err != nil {
		return 0, err
	}
	chance := diceWinChance(target, condition)
	if chance <= 0 {
		return 0, fmt.Errorf("dice target %v leaves no winning outcomes", target)
	}
	return paytable.DicePayout(chance), nil
}

// diceWinChance is the win probability in percent over the 10,001
// discrete rolls.
func diceWinChance(target float64, condition string) float64 {
	if condition == "over" {
		return (10000 - math.Floor(target*100) - 1) / 100
	}
	return math.Floor(target*100) / 100
}

func diceParams(params map[string]any) (target float64, condition string, err error) {
	target, ok := floatParam(params, "target")
	if !ok {
		return 0, "", fmt.Errorf("dice requires a numeric 'target' parameter")
	}
	if target < 0.01 || target > 99.99 {
		return 0, "", fmt.Errorf("dice target must be between 0.01 and 99.99, got %v", target)
	}

	condition = "over"
	if c, ok := params["condition"].(string); ok {
		condition = c
	}
	if condition != "over" && condition != "under" {
		return 0, "", fmt.Errorf("dice condition must be 'over' or 'under', got %q", condition)
	}
	return target, condition, nil
}

// floatParam reads a numeric parameter that may arrive as float64 (JSON)
// or int (native callers).
func floatParam(params map[string]any, key string) (float64, bool) {
	if params == nil {
		return 0, false
	}
	switch v := params[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	}
	return 0, false
}

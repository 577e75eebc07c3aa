package games

import (
	"fmt"
	"strings"

	"github.com/fairstack/engine-go/internal/engine"
)

const plinkoDefaultRows = 16

var plinkoDefaultRisk = "medium"

// PlinkoGame implements the plinko drop. One draw per row steers the ball
// left or right; the final bucket selects a multiplier from the risk
// level's payout table.
type PlinkoGame struct{}

// Spec returns metadata about the Plinko game.
func (g *PlinkoGame) Spec() GameSpec {
	return GameSpec{
		ID:          "plinko",
		Name:        "Plinko",
		MetricLabel: "multiplier",
	}
}

// FloatCount returns one float per board row.
func (g *PlinkoGame) FloatCount(params map[string]any) int {
	rows, _, err := plinkoParams(params)
	if err != nil {
		return plinkoDefaultRows
	}
	return rows
}

// Evaluate generates floats on demand and delegates to EvaluateWithFloats.
func (g *PlinkoGame) Evaluate(seeds Seeds, nonce uint64, params map[string]any) (GameResult, error) {
	rows, risk, err := plinkoParams(params)
	if err != nil {
		return GameResult{}, err
	}
	floats := engine.Floats(seeds.Server, seeds.Client, nonce, 0, rows)
	return g.evaluateFromFloats(floats, rows, risk)
}

// EvaluateWithFloats uses pre-computed floats.
func (g *PlinkoGame) EvaluateWithFloats(floats []float64, params map[string]any) (GameResult, error) {
	rows, risk, err := plinkoParams(params)
	if err != nil {
		return GameResult{}, err
	}
	if len(floats) < rows {
		return GameResult{}, fmt.Errorf("plinko requires %d floats, got %d", rows, len(floats))
	}
	return g.evaluateFromFloats(floats[:rows], rows, risk)
}

func (g *PlinkoGame) evaluateFromFloats(floats []float64, rows int, risk string) (GameResult, error) {
	table, err := plinkoTable(risk, rows)
	if err != nil {
		return GameResult{}, err
	}

	directions := make([]string, rows)
	bucket := 0
	for i, f := range floats {
		if f < 0 || f >= 1 {
			return GameResult{}, fmt.Errorf("plinko float at index %d out of range [0,1): %f", i, f)
		}
		if f >= 0.5 {
			bucket++
			directions[i] = "right"
		} else {
			directions[i] = "left"
		}
	}

	multiplier := table[bucket]

	return GameResult{
		Metric:      multiplier,
		MetricLabel: "multiplier",
		Details: map[string]any{
			"rows":       rows,
			"risk":       risk,
			"directions": directions,
			"bucket":     bucket,
			"multiplier": multiplier,
		},
	}, nil
}

// Settle pays the bucket multiplier directly; a drop "wins" when it at
// least returns the stake.
func (g *PlinkoGame) Settle(result GameResult, params map[string]any) (Settlement, error) {
	return Settlement{
		Win:        result.Metric >= 1.0,
		Multiplier: result.Metric,
	}, nil
}

// BoundMultiplier is the bucket multiplier; the metric is already on
// the payout scale.
func (g *PlinkoGame) BoundMultiplier(result GameResult, params map[string]any) (float64, error) {
	return result.Metric, nil
}

func plinkoParams(params map[string]any) (rows int, risk string, err error) {
	rows = plinkoDefaultRows
	if v, ok := floatParam(params, "rows"); ok {
		rows = int(v)
	}
	if _, ok := plinkoPayoutTables[plinkoDefaultRisk][rows]; !ok {
		return 0, "", fmt.Errorf("unsupported plinko row count: %d", rows)
	}

	risk = plinkoDefaultRisk
	if v, ok := params["risk"].(string); ok {
		risk = strings.ToLower(strings.TrimSpace(v))
	}
	if _, ok := plinkoPayoutTables[risk]; !ok {
		return 0, "", fmt.Errorf("invalid plinko risk: %s", risk)
	}
	return rows, risk, nil
}

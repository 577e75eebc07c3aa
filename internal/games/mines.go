package games

import (
	"fmt"
	"math"

	"github.com/fairstack/engine-go/internal/engine"
	"github.com/fairstack/engine-go/internal/paytable"
)

const (
	minesFloatCount   = 24 // full permutation of a 25-cell board
	minesDefaultCount = 3
)

// MinesGame implements the mines game on a 5x5 grid. Mine placement draws
// unique cells from the shrinking pool until mineCount mines are set;
// remaining cells are safe. Payouts come from the shared hypergeometric
// table.
type MinesGame struct {
	Table *paytable.MinesTable
}

// Spec returns metadata about the Mines game.
func (g *MinesGame) Spec() GameSpec {
	return GameSpec{
		ID:          "mines",
		Name:        "Mines",
		MetricLabel: "first_mine",
	}
}

// FloatCount returns the number of floats required (always 24).
func (g *MinesGame) FloatCount(params map[string]any) int {
	return minesFloatCount
}

// Evaluate generates floats and calculates the mine layout.
func (g *MinesGame) Evaluate(seeds Seeds, nonce uint64, params map[string]any) (GameResult, error) {
	floats := engine.Floats(seeds.Server, seeds.Client, nonce, 0, minesFloatCount)
	return g.EvaluateWithFloats(floats, params)
}

// EvaluateWithFloats calculates the mine layout using pre-computed floats.
func (g *MinesGame) EvaluateWithFloats(floats []float64, params map[string]any) (GameResult, error) {
	if len(floats) < minesFloatCount {
		return GameResult{}, fmt.Errorf("mines requires at least %d floats, got %d", minesFloatCount, len(floats))
	}

	mineCount, err := minesCountParam(params)
	if err != nil {
		return GameResult{}, err
	}

	// Draw unique cells from the shrinking pool; the first mineCount
	// selections are the mine positions.
	pool := make([]int, paytable.MinesTotalCells)
	for i := range pool {
		pool[i] = i
	}

	mines := make([]int, 0, mineCount)
	for i := 0; i < mineCount; i++ {
		idx := int(math.Floor(floats[i] * float64(len(pool))))
		if idx >= len(pool) {
			idx = len(pool) - 1
		}
		mines = append(mines, pool[idx])
		pool = append(pool[:idx], pool[idx+1:]...)
	}

	mineSet := make(map[int]bool, mineCount)
	firstMine := paytable.MinesTotalCells
	for _, pos := range mines {
		mineSet[pos] = true
		if pos < firstMine {
			firstMine = pos
		}
	}

	return GameResult{
		Metric:      float64(firstMine),
		MetricLabel: "first_mine",
		Details: map[string]any{
			"mine_count":     mineCount,
			"mine_positions": mines,
			"mine_set":       mineSet,
		},
	}, nil
}

// Settle judges the bettor's picked cells against the mine layout: any
// pick on a mine loses, otherwise the payout follows the table entry for
// the number of revealed gems.
func (g *MinesGame) Settle(result GameResult, params map[string]any) (Settlement, error) {
	mineCount, err := minesCountParam(params)
	if err != nil {
		return Settlement{}, err
	}

	picks, err := minesPicksParam(params, mineCount)
	if err != nil {
		return Settlement{}, err
	}

	mineSet, ok := result.Details["mine_set"].(map[int]bool)
	if !ok {
		return Settlement{}, fmt.Errorf("mines result is missing its mine set")
	}

	for _, cell := range picks {
		if mineSet[cell] {
			return Settlement{Win: false}, nil
		}
	}

	mult, err := g.Table.PayoutFor(mineCount, len(picks))
	if err != nil {
		return Settlement{}, err
	}
	return Settlement{Win: true, Multiplier: mult}, nil
}

// BoundMultiplier is the table payout the bettor's pick set earns by
// surviving; the first-mine metric is a cell index, not a multiplier.
func (g *MinesGame) BoundMultiplier(result GameResult, params map[string]any) (float64, error) {
	mineCount, err := minesCountParam(params)
	if err != nil {
		return 0, err
	}
	picks, err := minesPicksParam(params, mineCount)
	if err != nil {
		return 0, err
	}
	return g.Table.PayoutFor(mineCount, len(picks))
}

// SnapMultiplier maps a requested target onto the discrete payout table,
// returning the closest reveal configuration's multiplier. Override
// resolution snaps exact targets through this before matching.
func (g *MinesGame) SnapMultiplier(target float64, params map[string]any) (float64, error) {
	mineCount, err := minesCountParam(params)
	if err != nil {
		return 0, err
	}
	_, mult, err := g.Table.ClosestConfigFor(mineCount, target)
	return mult, err
}

func minesCountParam(params map[string]any) (int, error) {
	mineCount := minesDefaultCount
	if v, ok := floatParam(params, "mineCount"); ok {
		mineCount = int(v)
	} else if v, ok := floatParam(params, "mines"); ok {
		mineCount = int(v)
	}
	if mineCount < paytable.MinesMinCount || mineCount > paytable.MinesMaxCount {
		return 0, fmt.Errorf("mines count must be between %d and %d, got %d",
			paytable.MinesMinCount, paytable.MinesMaxCount, mineCount)
	}
	return mineCount, nil
}

func minesPicksParam(params map[string]any, mineCount int) ([]int, error) {
	raw, ok := params["picks"]
	if !ok {
		return nil, fmt.Errorf("mines requires a 'picks' parameter")
	}

	var picks []int
	switch v := raw.(type) {
	case []int:
		picks = v
	case []any: // decoded JSON
		picks = make([]int, len(v))
		for i, e := range v {
			f, ok := e.(float64)
			if !ok {
				return nil, fmt.Errorf("mines pick at index %d is not a number", i)
			}
			picks[i] = int(f)
		}
	default:
		return nil, fmt.Errorf("unsupported type for mines picks: %T", raw)
	}

	maxPicks := paytable.MinesTotalCells - mineCount
	if len(picks) < 1 || len(picks) > maxPicks {
		return nil, fmt.Errorf("mines picks must number between 1 and %d, got %d", maxPicks, len(picks))
	}

	seen := make(map[int]bool, len(picks))
	for _, cell := range picks {
		if cell < 0 || cell >= paytable.MinesTotalCells {
			return nil, fmt.Errorf("mines pick %d outside the board", cell)
		}
		if seen[cell] {
			return nil, fmt.Errorf("mines pick %d repeated", cell)
		}
		seen[cell] = true
	}
	return picks, nil
}

package paytable

import "fmt"

const (
	// MinesTotalCells is the 5x5 grid size.
	MinesTotalCells = 25
	MinesMinCount   = 1
	MinesMaxCount   = 24
)

// MinesTable is the precomputed payout table for the mines game, indexed by
// (mineCount, gemsRevealed). Multipliers invert the hypergeometric survival
// probability of revealing that many safe cells and scale it to the target
// RTP, so the table is strictly increasing in gems for a fixed mine count
// and strictly decreasing in mine count for fixed gems.
type MinesTable struct {
	rtp  float64
	rows [MinesMaxCount + 1][]float64
}

// NewMinesTable builds the table once at startup for the given RTP target
// (e.g. 0.99 for a 1% house edge).
func NewMinesTable(rtp float64) (*MinesTable, error) {
	if rtp <= 0 || rtp > 1 {
		return nil, fmt.Errorf("mines table rtp must be in (0,1], got %v", rtp)
	}

	t := &MinesTable{rtp: rtp}
	for mines := MinesMinCount; mines <= MinesMaxCount; mines++ {
		maxGems := MinesTotalCells - mines
		row := make([]float64, maxGems)

		// survival = Π (safe - i) / (cells - i) over revealed gems;
		// payout is rtp / survival.
		survival := 1.0
		for g := 0; g < maxGems; g++ {
			survival *= float64(MinesTotalCells-mines-g) / float64(MinesTotalCells-g)
			row[g] = rtp / survival
		}
		t.rows[mines] = row
	}
	return t, nil
}

// RTP returns the return-to-player target the table was built for.
func (t *MinesTable) RTP() float64 { return t.rtp }

// MaxGems returns how many safe cells exist for the given mine count.
func (t *MinesTable) MaxGems(mineCount int) int {
	return MinesTotalCells - mineCount
}

// PayoutFor returns the multiplier for surviving gemsRevealed cells with
// mineCount mines on the board.
func (t *MinesTable) PayoutFor(mineCount, gemsRevealed int) (float64, error) {
	if mineCount < MinesMinCount || mineCount > MinesMaxCount {
		return 0, fmt.Errorf("mine count must be between %d and %d, got %d", MinesMinCount, MinesMaxCount, mineCount)
	}
	if gemsRevealed < 1 || gemsRevealed > t.MaxGems(mineCount) {
		return 0, fmt.Errorf("gems revealed must be between 1 and %d for %d mines, got %d", t.MaxGems(mineCount), mineCount, gemsRevealed)
	}
	return t.rows[mineCount][gemsRevealed-1], nil
}

// ClosestConfigFor finds the reveal count whose multiplier is nearest the
// target. The row is strictly monotonic so a single forward walk suffices;
// override resolution uses this to translate a directive's multiplier into
// a concrete board configuration.
func (t *MinesTable) ClosestConfigFor(mineCount int, targetMultiplier float64) (gems int, multiplier float64, err error) {
	if mineCount < MinesMinCount || mineCount > MinesMaxCount {
		return 0, 0, fmt.Errorf("mine count must be between %d and %d, got %d", MinesMinCount, MinesMaxCount, mineCount)
	}

	row := t.rows[mineCount]
	best := 0
	for i := 1; i < len(row); i++ {
		if row[i] >= targetMultiplier {
			// Monotonic: nothing past the first crossing gets closer.
			if abs(row[i]-targetMultiplier) < abs(row[best]-targetMultiplier) {
				best = i
			}
			break
		}
		best = i
	}
	return best + 1, row[best], nil
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}

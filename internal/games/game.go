package games

import (
	"errors"
	"fmt"
	"sort"

	"github.com/fairstack/engine-go/internal/engine"
	"github.com/fairstack/engine-go/internal/paytable"
)

// ErrGameNotFound is returned for lookups of unregistered game IDs.
var ErrGameNotFound = errors.New("game not found")

// Seeds, GameResult and GameSpec are shared with the RNG core.
type (
	Seeds      = engine.Seeds
	GameResult = engine.GameResult
	GameSpec   = engine.GameSpec
)

// Settlement is a game's judgement of a derived outcome against the
// bettor's parameters: whether it wins and at what payout multiplier.
// Pending marks cash-out games that settle on player action instead of
// instantly (crash without auto cash-out).
type Settlement struct {
	Win        bool    `json:"win"`
	Multiplier float64 `json:"multiplier"`
	Pending    bool    `json:"pending,omitempty"`
}

// Game is one provably fair game: pure, stateless, deterministic. Evaluate
// derives the raw outcome for a (seeds, nonce) pair; Settle applies the
// bettor's parameters to an outcome without consuming any randomness, so
// the same outcome can be re-judged during verification and override
// probing.
type Game interface {
	Spec() GameSpec
	// FloatCount reports how many uniform draws Evaluate consumes.
	FloatCount(params map[string]any) int
	Evaluate(seeds Seeds, nonce uint64, params map[string]any) (GameResult, error)
	EvaluateWithFloats(floats []float64, params map[string]any) (GameResult, error)
	Settle(result GameResult, params map[string]any) (Settlement, error)
	// BoundMultiplier reports the value multiplier constraints compare
	// against for an outcome, always on the payout scale. Games whose
	// metric already is a multiplier return the metric; fixed-payout
	// games (dice, mines, roulette) return the multiplier the bettor's
	// parameters stand to win.
	BoundMultiplier(result GameResult, params map[string]any) (float64, error)
}

// Options tune the payout math shared by the registry's games.
type Options struct {
	// RTP is the mines table return-to-player target, e.g. 0.99.
	RTP float64
	// HouseEdgeFactor scales the limbo/crash curve, e.g. 0.99.
	HouseEdgeFactor float64
}

// Registry holds the playable games keyed by ID.
type Registry struct {
	games map[string]Game
	mines *paytable.MinesTable
}

// NewRegistry builds the payout tables and registers every game.
func NewRegistry(opts Options) (*Registry, error) {
	if opts.RTP == 0 {
		opts.RTP = 0.99
	}
	if opts.HouseEdgeFactor == 0 {
		opts.HouseEdgeFactor = paytable.DefaultHouseEdgeFactor
	}

	minesTable, err := paytable.NewMinesTable(opts.RTP)
	if err != nil {
		return nil, fmt.Errorf("build mines table: %w", err)
	}

	r := &Registry{games: make(map[string]Game), mines: minesTable}
	for _, g := range []Game{
		&DiceGame{},
		&LimboGame{Factor: opts.HouseEdgeFactor},
		&CrashGame{Factor: opts.HouseEdgeFactor},
		&PlinkoGame{},
		&MinesGame{Table: minesTable},
		&RouletteGame{},
	} {
		r.games[g.Spec().ID] = g
	}
	return r, nil
}

// Get returns the game registered under id.
func (r *Registry) Get(id string) (Game, error) {
	g, ok := r.games[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrGameNotFound, id)
	}
	return g, nil
}

// MinesTable exposes the shared mines payout table (used by override
// resolution for closest-config searches).
func (r *Registry) MinesTable() *paytable.MinesTable { return r.mines }

// List returns the specs of all registered games, sorted by ID.
func (r *Registry) List() []GameSpec {
	specs := make([]GameSpec, 0, len(r.games))
	for _, g := range r.games {
		specs = append(specs, g.Spec())
	}
	sort.Slice(specs, func(i, j int) bool { return specs[i].ID < specs[j].ID })
	return specs
}

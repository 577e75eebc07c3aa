// Package verify recomputes settled bets from disclosed seed material.
// It runs off the hot path, against persisted data only.
package verify

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/fairstack/engine-go/internal/games"
	"github.com/fairstack/engine-go/internal/seeds"
	"github.com/fairstack/engine-go/internal/store"
)

// ErrBetPending is returned for bets still awaiting cash-out: recomputing
// one would disclose the crash point before the player acts.
var ErrBetPending = errors.New("bet is not settled yet")

// Result is the public audit report for one bet. Overrides are disclosed,
// never hidden: a concealed bias would make the published commitment hash
// meaningless.
type Result struct {
	BetID string `json:"bet_id"`

	// Consistent means the raw and presented outcomes both recompute
	// exactly from the seed material at their recorded nonces. A false
	// value indicates engine corruption, not player-visible unfairness.
	Consistent bool `json:"consistent"`

	// CommitmentValid confirms hash(secret) equals the published
	// commitment for the bet's server seed.
	CommitmentValid bool `json:"commitment_valid"`

	// OverrideApplied reports whether an operator directive selected a
	// different draw than the raw one.
	OverrideApplied     bool `json:"override_applied"`
	ExactnessMissed     bool `json:"exactness_missed,omitempty"`
	PresentedMatchesRaw bool `json:"presented_matches_raw"`

	RawNonce            uint64  `json:"raw_nonce"`
	Nonce               uint64  `json:"nonce"`
	RecomputedRaw       float64 `json:"recomputed_raw"`
	RecomputedPresented float64 `json:"recomputed_presented"`

	// SeedRevealed reports whether the server seed secret is already
	// public (its seed was rotated out and revealed).
	SeedRevealed bool `json:"seed_revealed"`
}

// Service recomputes past rounds.
type Service struct {
	db    store.DB
	games *games.Registry
}

// NewService builds a verifier over the store.
func NewService(db store.DB, gameReg *games.Registry) *Service {
	return &Service{db: db, games: gameReg}
}

// Verify replays the bet's derivation and reports every discrepancy. The
// raw outcome must always recompute; the presented outcome must recompute
// at the consumed nonce, proving no number was forged even when an
// override chose it.
func (s *Service) Verify(betID string) (*Result, error) {
	bet, err := s.db.GetBet(betID)
	if err != nil {
		return nil, err
	}
	if !bet.Completed {
		return nil, fmt.Errorf("%w: %s", ErrBetPending, betID)
	}

	seed, err := s.db.GetServerSeed(bet.ServerSeedID)
	if err != nil {
		return nil, fmt.Errorf("load server seed for bet %s: %w", betID, err)
	}

	game, err := s.games.Get(bet.GameID)
	if err != nil {
		return nil, fmt.Errorf("bet %s references unknown game: %w", betID, err)
	}

	var params map[string]any
	if err := json.Unmarshal([]byte(bet.ParamsJSON), &params); err != nil {
		return nil, fmt.Errorf("bet %s has malformed params: %w", betID, err)
	}

	seedPair := games.Seeds{Server: seed.Secret, Client: bet.ClientSeed}

	rawRecomputed, err := game.Evaluate(seedPair, bet.RawNonce, params)
	if err != nil {
		return nil, fmt.Errorf("recompute raw outcome: %w", err)
	}
	presentedRecomputed, err := game.Evaluate(seedPair, bet.Nonce, params)
	if err != nil {
		return nil, fmt.Errorf("recompute presented outcome: %w", err)
	}

	return &Result{
		BetID: betID,
		Consistent: rawRecomputed.Metric == bet.RawOutcome.Metric &&
			presentedRecomputed.Metric == bet.PresentedOutcome.Metric,
		CommitmentValid:     seeds.Commit(seed.Secret) == seed.Commitment,
		OverrideApplied:     bet.OverrideApplied,
		ExactnessMissed:     bet.ExactnessMissed,
		PresentedMatchesRaw: bet.PresentedOutcome.Metric == bet.RawOutcome.Metric && bet.Nonce == bet.RawNonce,
		RawNonce:            bet.RawNonce,
		Nonce:               bet.Nonce,
		RecomputedRaw:       rawRecomputed.Metric,
		RecomputedPresented: presentedRecomputed.Metric,
		SeedRevealed:        seed.RevealedAt != nil,
	}, nil
}

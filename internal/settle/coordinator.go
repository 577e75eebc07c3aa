package settle

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/shopspring/decimal"

	"github.com/fairstack/engine-go/internal/control"
	"github.com/fairstack/engine-go/internal/games"
	"github.com/fairstack/engine-go/internal/seeds"
	"github.com/fairstack/engine-go/internal/store"
)

var (
	// ErrInvalidParams covers caller-correctable input problems.
	ErrInvalidParams = errors.New("invalid bet parameters")

	// ErrDerivation marks a failure inside the outcome math. Fatal to the
	// single bet and never masked by a substitute outcome.
	ErrDerivation = errors.New("internal derivation error")

	// ErrNotSettleable is returned when the cash-out entry point is used
	// on a game that settles instantly.
	ErrNotSettleable = errors.New("bet does not support deferred settlement")
)

// deferredGame is implemented by games whose settlement waits for a
// player action (crash cash-out).
type deferredGame interface {
	SettleAt(result games.GameResult, cashoutAt float64) (games.Settlement, error)
}

// multiplierSnapper is implemented by games whose payouts form a discrete
// table (mines); exact directive targets are snapped to the closest
// achievable multiplier before matching.
type multiplierSnapper interface {
	SnapMultiplier(target float64, params map[string]any) (float64, error)
}

// Coordinator orchestrates a bet end to end: debit, nonce allocation,
// derivation, override resolution, payout and the single persisted Bet
// row. Derivation and override work is pure CPU; the only shared
// serialization point is the seed chain's nonce counter.
type Coordinator struct {
	registry   *seeds.Registry
	controller *control.Controller
	games      *games.Registry
	db         store.DB
	wallet     Wallet
	maxProbes  int
	logger     *log.Logger
}

// NewCoordinator wires the settlement pipeline.
func NewCoordinator(registry *seeds.Registry, controller *control.Controller, gameReg *games.Registry, db store.DB, wallet Wallet, maxProbes int) *Coordinator {
	if maxProbes <= 0 {
		maxProbes = control.DefaultMaxProbes
	}
	return &Coordinator{
		registry:   registry,
		controller: controller,
		games:      gameReg,
		db:         db,
		wallet:     wallet,
		maxProbes:  maxProbes,
		logger:     log.New(os.Stdout, "[SETTLE] ", log.LstdFlags),
	}
}

// PlaceBetRequest carries everything a bet needs from the caller.
type PlaceBetRequest struct {
	UserID     string
	GameID     string
	ChainID    string
	Amount     decimal.Decimal
	ClientSeed string
	Params     map[string]any
}

// PlaceBet resolves a wager in one atomic step: the persisted Bet row
// already carries the raw and presented outcomes. Only crash-style bets
// leave completed=false, pending the cash-out action.
func (c *Coordinator) PlaceBet(req PlaceBetRequest) (*store.Bet, error) {
	if req.Amount.LessThanOrEqual(decimal.Zero) {
		return nil, fmt.Errorf("%w: amount must be positive, got %s", ErrInvalidParams, req.Amount)
	}
	if req.UserID == "" {
		return nil, fmt.Errorf("%w: user id required", ErrInvalidParams)
	}
	if req.ChainID == "" {
		req.ChainID = "main"
	}
	if req.ClientSeed == "" {
		req.ClientSeed = req.UserID
	}

	game, err := c.games.Get(req.GameID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidParams, err)
	}

	if err := c.wallet.Debit(req.UserID, req.Amount); err != nil {
		return nil, err
	}

	bet, err := c.resolve(req, game)
	if err != nil {
		// The wager never resolved; give the stake back. Any consumed
		// nonce stays consumed.
		if refundErr := c.wallet.Credit(req.UserID, req.Amount); refundErr != nil {
			c.logger.Printf("refund after failed bet for user %s: %v", req.UserID, refundErr)
		}
		return nil, err
	}

	if bet.Completed && bet.Win {
		payout := bet.Amount.Mul(decimal.NewFromFloat(bet.Multiplier))
		if err := c.wallet.Credit(req.UserID, payout); err != nil {
			c.logger.Printf("credit payout for bet %s: %v", bet.ID, err)
		}
	}
	return bet, nil
}

// resolve runs the derivation/override/payout pipeline and persists the
// bet. Split out so PlaceBet can refund on any failure.
func (c *Coordinator) resolve(req PlaceBetRequest, game games.Game) (*store.Bet, error) {
	drawProbe := func() (control.Probe, seeds.Draw, error) {
		draw, err := c.registry.NextNonce(req.ChainID)
		if err != nil {
			return control.Probe{}, seeds.Draw{}, err
		}
		result, err := game.Evaluate(games.Seeds{Server: draw.Secret, Client: req.ClientSeed}, draw.Nonce, req.Params)
		if err != nil {
			return control.Probe{}, seeds.Draw{}, fmt.Errorf("%w: %v", ErrInvalidParams, err)
		}
		settlement, err := game.Settle(result, req.Params)
		if err != nil {
			return control.Probe{}, seeds.Draw{}, fmt.Errorf("%w: %v", ErrInvalidParams, err)
		}
		bound, err := game.BoundMultiplier(result, req.Params)
		if err != nil {
			return control.Probe{}, seeds.Draw{}, fmt.Errorf("%w: %v", ErrInvalidParams, err)
		}
		return control.Probe{Nonce: draw.Nonce, Result: result, Settlement: settlement, Bound: bound}, draw, nil
	}

	raw, firstDraw, err := drawProbe()
	if err != nil {
		return nil, err
	}

	directive, err := c.controller.Consume(req.UserID, req.GameID)
	if err != nil {
		return nil, fmt.Errorf("%w: consume directive: %v", ErrDerivation, err)
	}

	bet, err := c.commit(req, game, drawProbe, raw, firstDraw, directive)
	if err != nil {
		// The bet never settled; hand the directive's slot back so a
		// failed round does not burn the operator's remaining games.
		if rerr := c.controller.Restore(directive); rerr != nil {
			c.logger.Printf("restore directive after failed bet for user %s: %v", req.UserID, rerr)
		}
		return nil, err
	}
	return bet, nil
}

// commit runs override resolution and persists the bet. Any error here
// leaves no bet row; resolve restores the consumed directive.
func (c *Coordinator) commit(req PlaceBetRequest, game games.Game, drawProbe func() (control.Probe, seeds.Draw, error), raw control.Probe, firstDraw seeds.Draw, directive *control.Directive) (*store.Bet, error) {
	if directive != nil && directive.Exact > 0 {
		if snapper, ok := game.(multiplierSnapper); ok {
			snapped, err := snapper.SnapMultiplier(directive.Exact, req.Params)
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ErrInvalidParams, err)
			}
			d := *directive
			d.Exact = snapped
			directive = &d
		}
	}

	// Every probe must stay on the seed the bet started on: a rotation
	// racing the probe walk would split raw and presented outcomes
	// across two commitments and make the bet unverifiable.
	resolution, err := control.Resolve(directive, raw, func() (control.Probe, error) {
		p, d, err := drawProbe()
		if err != nil {
			return control.Probe{}, err
		}
		if d.SeedID != firstDraw.SeedID {
			return control.Probe{}, fmt.Errorf("%w: seed rotated during override resolution", ErrDerivation)
		}
		return p, nil
	}, c.maxProbes)
	if err != nil {
		return nil, err
	}

	chosen := resolution.Chosen
	seedID := firstDraw.SeedID

	paramsJSON, err := json.Marshal(req.Params)
	if err != nil {
		return nil, fmt.Errorf("%w: marshal params: %v", ErrDerivation, err)
	}

	bet := &store.Bet{
		UserID:           req.UserID,
		GameID:           req.GameID,
		ChainID:          req.ChainID,
		Amount:           req.Amount,
		ClientSeed:       req.ClientSeed,
		ServerSeedID:     seedID,
		Nonce:            chosen.Nonce,
		RawNonce:         raw.Nonce,
		ParamsJSON:       string(paramsJSON),
		RawOutcome:       raw.Result,
		PresentedOutcome: chosen.Result,
		OverrideApplied:  resolution.Applied,
		ExactnessMissed:  resolution.ExactnessMissed,
		ProbesUsed:       resolution.ProbesUsed,
	}

	if chosen.Settlement.Pending {
		bet.Completed = false
	} else {
		bet.Completed = true
		bet.Win = chosen.Settlement.Win
		bet.Multiplier = chosen.Settlement.Multiplier
		bet.Profit = profitFor(req.Amount, chosen.Settlement)
	}

	if err := c.db.SaveBet(bet); err != nil {
		return nil, fmt.Errorf("%w: persist bet: %v", ErrDerivation, err)
	}

	if resolution.Applied {
		c.logger.Printf("override applied: bet=%s user=%s game=%s raw_nonce=%d nonce=%d probes=%d exactness_missed=%v",
			bet.ID, bet.UserID, bet.GameID, bet.RawNonce, bet.Nonce, bet.ProbesUsed, bet.ExactnessMissed)
	}
	return bet, nil
}

// Settle finalizes a pending cash-out bet at the given multiplier. Safe
// under duplicate invocation: once the bet is completed every further
// call returns the settled row unchanged and moves no balance.
func (c *Coordinator) Settle(betID string, cashoutAt float64) (*store.Bet, error) {
	bet, err := c.db.GetBet(betID)
	if err != nil {
		return nil, err
	}
	if bet.Completed {
		return bet, nil
	}

	game, err := c.games.Get(bet.GameID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDerivation, err)
	}
	deferred, ok := game.(deferredGame)
	if !ok {
		return nil, ErrNotSettleable
	}

	settlement, err := deferred.SettleAt(bet.PresentedOutcome, cashoutAt)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidParams, err)
	}

	completion := store.Completion{
		Win:        settlement.Win,
		Multiplier: settlement.Multiplier,
		Profit:     profitFor(bet.Amount, settlement),
	}
	applied, err := c.db.CompleteBet(betID, completion)
	if err != nil {
		return nil, err
	}
	if !applied {
		// Lost the race to a concurrent settle call; its result stands.
		return c.db.GetBet(betID)
	}

	if settlement.Win {
		payout := bet.Amount.Mul(decimal.NewFromFloat(settlement.Multiplier))
		if err := c.wallet.Credit(bet.UserID, payout); err != nil {
			c.logger.Printf("credit payout for bet %s: %v", bet.ID, err)
		}
	}
	return c.db.GetBet(betID)
}

func profitFor(amount decimal.Decimal, s games.Settlement) decimal.Decimal {
	if !s.Win {
		return amount.Neg()
	}
	return amount.Mul(decimal.NewFromFloat(s.Multiplier)).Sub(amount)
}

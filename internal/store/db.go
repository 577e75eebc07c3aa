package store

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fairstack/engine-go/internal/control"
	"github.com/fairstack/engine-go/internal/engine"
	"github.com/fairstack/engine-go/internal/seeds"
)

// ErrBetNotFound is returned when a bet id does not exist.
var ErrBetNotFound = errors.New("bet not found")

// Bet is the persisted record of one settled (or pending cash-out) round.
// Immutable after creation except the completed transition, which happens
// exactly once.
type Bet struct {
	ID           string          `json:"id" db:"id"`
	UserID       string          `json:"user_id" db:"user_id"`
	GameID       string          `json:"game_id" db:"game_id"`
	ChainID      string          `json:"chain_id" db:"chain_id"`
	Amount       decimal.Decimal `json:"amount" db:"amount"`
	ClientSeed   string          `json:"client_seed" db:"client_seed"`
	ServerSeedID string          `json:"server_seed_id" db:"server_seed_id"`
	Nonce        uint64          `json:"nonce" db:"nonce"`
	ParamsJSON   string          `json:"params_json" db:"params_json"`

	// RawOutcome is the draw at the first nonce allocated for the bet;
	// PresentedOutcome is the draw at the nonce the bet committed to.
	// They differ only when an override directive probed forward.
	RawOutcome       engine.GameResult `json:"raw_outcome" db:"raw_json"`
	RawNonce         uint64            `json:"raw_nonce" db:"raw_nonce"`
	PresentedOutcome engine.GameResult `json:"presented_outcome" db:"presented_json"`

	OverrideApplied bool `json:"override_applied" db:"override_applied"`
	ExactnessMissed bool `json:"exactness_missed" db:"exactness_missed"`
	ProbesUsed      int  `json:"probes_used" db:"probes_used"`

	Win        bool            `json:"win" db:"win"`
	Multiplier float64         `json:"multiplier" db:"multiplier"`
	Profit     decimal.Decimal `json:"profit" db:"profit"`

	Completed   bool       `json:"completed" db:"completed"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty" db:"completed_at"`
}

// Completion is the terminal state written by the one-shot completed
// transition.
type Completion struct {
	Win        bool
	Multiplier float64
	Profit     decimal.Decimal
}

// DB is the persistence interface the engine writes through.
type DB interface {
	Close() error
	Migrate() error

	SaveBet(bet *Bet) error
	GetBet(id string) (*Bet, error)
	ListBets(userID string, limit int) ([]*Bet, error)
	// CompleteBet flips completed false->true and records the final
	// settlement. Returns false when the bet was already completed, in
	// which case nothing is written.
	CompleteBet(id string, c Completion) (bool, error)

	seeds.Store
	control.Store
}

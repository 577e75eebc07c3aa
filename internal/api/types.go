package api

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/fairstack/engine-go/internal/control"
	"github.com/fairstack/engine-go/internal/games"
	"github.com/fairstack/engine-go/internal/replay"
	"github.com/fairstack/engine-go/internal/store"
)

// EngineError represents a structured error response with context
type EngineError struct {
	Type      string         `json:"type"`
	Message   string         `json:"message"`
	Context   map[string]any `json:"context,omitempty"`
	RequestID string         `json:"request_id,omitempty"`
	Timestamp string         `json:"timestamp,omitempty"`
}

// Error implements the error interface
func (e EngineError) Error() string {
	return e.Message
}

// Error types with proper categorization
const (
	// Input validation errors
	ErrTypeInvalidParams = "invalid_params"
	ErrTypeValidation    = "validation_error"

	// Domain errors
	ErrTypeGameNotFound        = "game_not_found"
	ErrTypeBetNotFound         = "bet_not_found"
	ErrTypeSeedNotFound        = "seed_not_found"
	ErrTypeSeedStillActive     = "seed_still_active"
	ErrTypeNotSettleable       = "not_settleable"
	ErrTypeBetPending          = "bet_pending"
	ErrTypeInsufficientBalance = "insufficient_balance"
	ErrTypeControlNotFound     = "control_not_found"

	// Access errors
	ErrTypeUnauthorized = "unauthorized"
	ErrTypeForbidden    = "forbidden"

	// System errors
	ErrTypeDerivation = "derivation_error"
	ErrTypeInternal   = "internal_error"
)

// ErrorCategory represents error categories for monitoring
type ErrorCategory string

const (
	CategoryValidation ErrorCategory = "validation"
	CategoryDomain     ErrorCategory = "domain"
	CategoryAccess     ErrorCategory = "access"
	CategorySystem     ErrorCategory = "system"
)

// GetErrorCategory returns the category for an error type
func GetErrorCategory(errType string) ErrorCategory {
	switch errType {
	case ErrTypeInvalidParams, ErrTypeValidation:
		return CategoryValidation
	case ErrTypeGameNotFound, ErrTypeBetNotFound, ErrTypeSeedNotFound,
		ErrTypeSeedStillActive, ErrTypeNotSettleable, ErrTypeBetPending,
		ErrTypeInsufficientBalance, ErrTypeControlNotFound:
		return CategoryDomain
	case ErrTypeUnauthorized, ErrTypeForbidden:
		return CategoryAccess
	default:
		return CategorySystem
	}
}

// PlaceBetRequest is the wager submission payload.
type PlaceBetRequest struct {
	UserID     string          `json:"user_id"`
	GameID     string          `json:"game"`
	ChainID    string          `json:"chain,omitempty"`
	Amount     decimal.Decimal `json:"amount"`
	ClientSeed string          `json:"client_seed,omitempty"`
	Params     map[string]any  `json:"params,omitempty"`
}

// BetResponse is the wire shape of a bet. The raw outcome and override
// flags stay server-side until the seed is revealed; players see only
// the presented outcome while the seed is live.
type BetResponse struct {
	ID            string            `json:"id"`
	UserID        string            `json:"user_id"`
	GameID        string            `json:"game"`
	ChainID       string            `json:"chain"`
	Amount        decimal.Decimal   `json:"amount"`
	ClientSeed    string            `json:"client_seed"`
	ServerSeedID  string            `json:"server_seed_id"`
	Nonce         uint64            `json:"nonce"`
	Outcome       *games.GameResult `json:"outcome,omitempty"`
	Win           bool              `json:"win"`
	Multiplier    float64           `json:"multiplier"`
	Profit        decimal.Decimal   `json:"profit"`
	Completed     bool              `json:"completed"`
	CreatedAt     time.Time         `json:"created_at"`
	CompletedAt   *time.Time        `json:"completed_at,omitempty"`
	EngineVersion string            `json:"engine_version"`
}

// betResponse converts a stored bet to its wire shape. A pending bet's
// outcome stays hidden: for crash it is the round's crash point, and a
// player who saw it could cash out just below it every time.
func betResponse(b *store.Bet) BetResponse {
	resp := BetResponse{
		ID:            b.ID,
		UserID:        b.UserID,
		GameID:        b.GameID,
		ChainID:       b.ChainID,
		Amount:        b.Amount,
		ClientSeed:    b.ClientSeed,
		ServerSeedID:  b.ServerSeedID,
		Nonce:         b.Nonce,
		Win:           b.Win,
		Multiplier:    b.Multiplier,
		Profit:        b.Profit,
		Completed:     b.Completed,
		CreatedAt:     b.CreatedAt,
		CompletedAt:   b.CompletedAt,
		EngineVersion: EngineVersion,
	}
	if b.Completed {
		outcome := b.PresentedOutcome
		resp.Outcome = &outcome
	}
	return resp
}

// SettleRequest finalizes a pending crash bet.
type SettleRequest struct {
	CashoutAt float64 `json:"cashout_at"`
}

// CommitmentResponse publishes the active seed's binding hash.
type CommitmentResponse struct {
	ChainID       string `json:"chain"`
	SeedID        string `json:"seed_id"`
	Commitment    string `json:"commitment"`
	EngineVersion string `json:"engine_version"`
}

// RotateResponse reports a completed rotation: the outgoing seed's
// secret becomes revealable, the incoming one's commitment is published.
type RotateResponse struct {
	ChainID       string `json:"chain"`
	OldSeedID     string `json:"old_seed_id,omitempty"`
	OldCommitment string `json:"old_commitment,omitempty"`
	NewSeedID     string `json:"new_seed_id"`
	NewCommitment string `json:"new_commitment"`
	EngineVersion string `json:"engine_version"`
}

// RevealResponse discloses a rotated seed's secret.
type RevealResponse struct {
	SeedID        string     `json:"seed_id"`
	ChainID       string     `json:"chain"`
	Secret        string     `json:"secret"`
	Commitment    string     `json:"commitment"`
	RevealedAt    *time.Time `json:"revealed_at"`
	EngineVersion string     `json:"engine_version"`
}

// ReplayResponse returns the scan hits with the echoed request, the
// convention every derivation endpoint here follows.
type ReplayResponse struct {
	Hits          []replay.Hit   `json:"hits"`
	Summary       replay.Summary `json:"summary"`
	Echo          replay.Request `json:"echo"`
	EngineVersion string         `json:"engine_version"`
}

// GamesResponse represents the games metadata response
type GamesResponse struct {
	Games         []games.GameSpec `json:"games"`
	EngineVersion string           `json:"engine_version"`
}

// GlobalControlRequest sets the platform-wide directive.
type GlobalControlRequest struct {
	Mode             control.Mode `json:"mode"`
	GameIDs          []string     `json:"game_ids,omitempty"`
	TargetMultiplier float64      `json:"target_multiplier,omitempty"`
	Exact            bool         `json:"exact,omitempty"`
}

// UserControlRequest sets a per-user, per-game directive.
type UserControlRequest struct {
	UserID          string          `json:"user_id"`
	GameID          string          `json:"game"`
	OutcomeType     control.Outcome `json:"outcome_type"`
	ExactMultiplier float64         `json:"exact_multiplier,omitempty"`
	MinMultiplier   float64         `json:"min_multiplier,omitempty"`
	MaxMultiplier   float64         `json:"max_multiplier,omitempty"`
	RemainingGames  int             `json:"remaining_games"`
}

// ControlsResponse is the operator's view of every live directive.
type ControlsResponse struct {
	Global        *control.GlobalControl     `json:"global,omitempty"`
	UserControls  []*control.UserGameControl `json:"user_controls"`
	EngineVersion string                     `json:"engine_version"`
}

// DepositRequest credits a user's standalone ledger balance.
type DepositRequest struct {
	UserID string          `json:"user_id"`
	Amount decimal.Decimal `json:"amount"`
}

// HealthResponse represents a health check response
type HealthResponse struct {
	Status        string `json:"status"`
	EngineVersion string `json:"engine_version"`
	Timestamp     string `json:"timestamp"`
}

package control

import "time"

// Mode is the global control switch.
type Mode string

const (
	ModeNormal    Mode = "NORMAL"
	ModeForceWin  Mode = "FORCE_WIN"
	ModeForceLose Mode = "FORCE_LOSE"
)

// Outcome is the direction a directive pushes a bet.
type Outcome string

const (
	OutcomeWin  Outcome = "WIN"
	OutcomeLose Outcome = "LOSE"
)

// GlobalControl biases every bet on the affected games. An empty GameIDs
// set is a wildcard.
type GlobalControl struct {
	Mode             Mode      `json:"mode"`
	GameIDs          []string  `json:"game_ids"`
	TargetMultiplier float64   `json:"target_multiplier,omitempty"`
	Exact            bool      `json:"exact"`
	UpdatedAt        time.Time `json:"updated_at"`
}

func (g *GlobalControl) affects(gameID string) bool {
	if len(g.GameIDs) == 0 {
		return true
	}
	for _, id := range g.GameIDs {
		if id == gameID {
			return true
		}
	}
	return false
}

// UserGameControl biases one user's bets on one game for a bounded number
// of rounds. Takes precedence over any GlobalControl for the same pair.
type UserGameControl struct {
	ID              string    `json:"id"`
	UserID          string    `json:"user_id"`
	GameID          string    `json:"game_id"`
	OutcomeType     Outcome   `json:"outcome_type"`
	ExactMultiplier float64   `json:"exact_multiplier,omitempty"`
	MinMultiplier   float64   `json:"min_multiplier,omitempty"`
	MaxMultiplier   float64   `json:"max_multiplier,omitempty"`
	RemainingGames  int       `json:"remaining_games"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Directive is the consumed, immutable instruction handed to probe
// resolution for a single bet.
type Directive struct {
	Source  string  `json:"source"` // "user" or "global"
	Outcome Outcome `json:"outcome"`
	Exact   float64 `json:"exact,omitempty"`
	Min     float64 `json:"min,omitempty"`
	Max     float64 `json:"max,omitempty"`

	// origin is the consumed user control, kept so a bet that fails
	// before settling can hand its slot back through Restore.
	origin *UserGameControl
}

// directiveFromGlobal translates the global switch into the common
// directive shape: exact targets pin the multiplier, loose targets become
// a floor (forced win) or ceiling (forced loss).
func directiveFromGlobal(g *GlobalControl) *Directive {
	d := &Directive{Source: "global"}
	switch g.Mode {
	case ModeForceWin:
		d.Outcome = OutcomeWin
	case ModeForceLose:
		d.Outcome = OutcomeLose
	default:
		return nil
	}

	if g.TargetMultiplier > 0 {
		switch {
		case g.Exact:
			d.Exact = g.TargetMultiplier
		case d.Outcome == OutcomeWin:
			d.Min = g.TargetMultiplier
		default:
			d.Max = g.TargetMultiplier
		}
	}
	return d
}

func directiveFromUser(u *UserGameControl) *Directive {
	copied := *u
	return &Directive{
		Source:  "user",
		Outcome: u.OutcomeType,
		Exact:   u.ExactMultiplier,
		Min:     u.MinMultiplier,
		Max:     u.MaxMultiplier,
		origin:  &copied,
	}
}

package engine

// Seeds is the disclosed material a draw is derived from. Server is the
// secret value of the active server seed (ASCII hex, not decoded), Client
// is the caller-supplied string.
type Seeds struct {
	Server string `json:"server"`
	Client string `json:"client"`
}

// GameResult is the raw derived outcome of a single round before any
// payout or override policy is applied.
type GameResult struct {
	// Metric is the game's headline number: dice roll, crash point,
	// roulette pocket, plinko/mines multiplier.
	Metric      float64        `json:"metric"`
	MetricLabel string         `json:"metric_label"`
	Details     map[string]any `json:"details,omitempty"`
}

// GameSpec describes a registered game.
type GameSpec struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	MetricLabel string `json:"metric_label"`
}

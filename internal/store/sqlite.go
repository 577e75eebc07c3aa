package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	"github.com/fairstack/engine-go/internal/control"
	"github.com/fairstack/engine-go/internal/seeds"
)

// SQLiteDB implements the DB interface using SQLite.
type SQLiteDB struct {
	db *sql.DB
}

// NewSQLiteDB opens (or creates) the database at path. Use ":memory:" for
// tests.
func NewSQLiteDB(path string) (*SQLiteDB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// WAL keeps concurrent bet writes from serializing on readers.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	return &SQLiteDB{db: db}, nil
}

// Close closes the database connection.
func (s *SQLiteDB) Close() error {
	return s.db.Close()
}

// Migrate runs database migrations.
func (s *SQLiteDB) Migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS server_seeds (
			id TEXT PRIMARY KEY,
			chain_id TEXT NOT NULL,
			secret TEXT NOT NULL,
			commitment TEXT NOT NULL,
			active INTEGER NOT NULL DEFAULT 0,
			nonce_counter INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL,
			revealed_at DATETIME
		)`,
		`CREATE INDEX IF NOT EXISTS idx_seeds_chain_active ON server_seeds(chain_id, active)`,
		`CREATE TABLE IF NOT EXISTS bets (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			game_id TEXT NOT NULL,
			chain_id TEXT NOT NULL,
			amount TEXT NOT NULL,
			client_seed TEXT NOT NULL,
			server_seed_id TEXT NOT NULL REFERENCES server_seeds(id),
			nonce INTEGER NOT NULL,
			raw_nonce INTEGER NOT NULL,
			params_json TEXT NOT NULL DEFAULT '{}',
			raw_json TEXT NOT NULL,
			presented_json TEXT NOT NULL,
			override_applied INTEGER NOT NULL DEFAULT 0,
			exactness_missed INTEGER NOT NULL DEFAULT 0,
			probes_used INTEGER NOT NULL DEFAULT 0,
			win INTEGER NOT NULL DEFAULT 0,
			multiplier REAL NOT NULL DEFAULT 0,
			profit TEXT NOT NULL DEFAULT '0',
			completed INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL,
			completed_at DATETIME,
			UNIQUE(server_seed_id, nonce)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_bets_user ON bets(user_id, created_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_bets_seed ON bets(server_seed_id)`,
		`CREATE TABLE IF NOT EXISTS global_control (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			mode TEXT NOT NULL,
			game_ids TEXT NOT NULL DEFAULT '[]',
			target_multiplier REAL NOT NULL DEFAULT 0,
			exact INTEGER NOT NULL DEFAULT 0,
			updated_at DATETIME NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS user_game_controls (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			game_id TEXT NOT NULL,
			outcome_type TEXT NOT NULL,
			exact_multiplier REAL NOT NULL DEFAULT 0,
			min_multiplier REAL NOT NULL DEFAULT 0,
			max_multiplier REAL NOT NULL DEFAULT 0,
			remaining_games INTEGER NOT NULL,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL,
			UNIQUE(user_id, game_id)
		)`,
	}

	for _, migration := range migrations {
		if _, err := s.db.Exec(migration); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}

// --- bets ---

// SaveBet inserts a fully resolved bet row.
func (s *SQLiteDB) SaveBet(bet *Bet) error {
	if bet.ID == "" {
		bet.ID = uuid.New().String()
	}
	if bet.CreatedAt.IsZero() {
		bet.CreatedAt = time.Now().UTC()
	}

	rawJSON, err := json.Marshal(bet.RawOutcome)
	if err != nil {
		return fmt.Errorf("marshal raw outcome: %w", err)
	}
	presentedJSON, err := json.Marshal(bet.PresentedOutcome)
	if err != nil {
		return fmt.Errorf("marshal presented outcome: %w", err)
	}

	var completedAt any
	if bet.CompletedAt != nil {
		completedAt = bet.CompletedAt.UTC()
	}

	_, err = s.db.Exec(`INSERT INTO bets (
		id, user_id, game_id, chain_id, amount, client_seed, server_seed_id,
		nonce, raw_nonce, params_json, raw_json, presented_json,
		override_applied, exactness_missed, probes_used,
		win, multiplier, profit, completed, created_at, completed_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		bet.ID, bet.UserID, bet.GameID, bet.ChainID, bet.Amount.String(),
		bet.ClientSeed, bet.ServerSeedID, bet.Nonce, bet.RawNonce,
		bet.ParamsJSON, string(rawJSON), string(presentedJSON),
		boolInt(bet.OverrideApplied), boolInt(bet.ExactnessMissed), bet.ProbesUsed,
		boolInt(bet.Win), bet.Multiplier, bet.Profit.String(),
		boolInt(bet.Completed), bet.CreatedAt.UTC(), completedAt,
	)
	return err
}

// GetBet loads a single bet by id.
func (s *SQLiteDB) GetBet(id string) (*Bet, error) {
	row := s.db.QueryRow(`SELECT
		id, user_id, game_id, chain_id, amount, client_seed, server_seed_id,
		nonce, raw_nonce, params_json, raw_json, presented_json,
		override_applied, exactness_missed, probes_used,
		win, multiplier, profit, completed, created_at, completed_at
	FROM bets WHERE id = ?`, id)
	return scanBet(row)
}

// ListBets returns the user's most recent bets.
func (s *SQLiteDB) ListBets(userID string, limit int) ([]*Bet, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	rows, err := s.db.Query(`SELECT
		id, user_id, game_id, chain_id, amount, client_seed, server_seed_id,
		nonce, raw_nonce, params_json, raw_json, presented_json,
		override_applied, exactness_missed, probes_used,
		win, multiplier, profit, completed, created_at, completed_at
	FROM bets WHERE user_id = ? ORDER BY created_at DESC LIMIT ?`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var bets []*Bet
	for rows.Next() {
		bet, err := scanBet(rows)
		if err != nil {
			return nil, err
		}
		bets = append(bets, bet)
	}
	return bets, rows.Err()
}

// CompleteBet performs the one-shot completed transition. The WHERE guard
// makes duplicate settlement attempts a no-op.
func (s *SQLiteDB) CompleteBet(id string, c Completion) (bool, error) {
	res, err := s.db.Exec(`UPDATE bets
		SET win = ?, multiplier = ?, profit = ?, completed = 1, completed_at = ?
		WHERE id = ? AND completed = 0`,
		boolInt(c.Win), c.Multiplier, c.Profit.String(), time.Now().UTC(), id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBet(row rowScanner) (*Bet, error) {
	var (
		bet           Bet
		amount        string
		profit        string
		rawJSON       string
		presentedJSON string
		override      int
		missed        int
		win           int
		completed     int
		completedAt   sql.NullTime
	)

	err := row.Scan(
		&bet.ID, &bet.UserID, &bet.GameID, &bet.ChainID, &amount,
		&bet.ClientSeed, &bet.ServerSeedID, &bet.Nonce, &bet.RawNonce,
		&bet.ParamsJSON, &rawJSON, &presentedJSON,
		&override, &missed, &bet.ProbesUsed,
		&win, &bet.Multiplier, &profit, &completed,
		&bet.CreatedAt, &completedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrBetNotFound
	}
	if err != nil {
		return nil, err
	}

	if bet.Amount, err = decimal.NewFromString(amount); err != nil {
		return nil, fmt.Errorf("bet %s has malformed amount %q: %w", bet.ID, amount, err)
	}
	if bet.Profit, err = decimal.NewFromString(profit); err != nil {
		return nil, fmt.Errorf("bet %s has malformed profit %q: %w", bet.ID, profit, err)
	}
	if err := json.Unmarshal([]byte(rawJSON), &bet.RawOutcome); err != nil {
		return nil, fmt.Errorf("bet %s has malformed raw outcome: %w", bet.ID, err)
	}
	if err := json.Unmarshal([]byte(presentedJSON), &bet.PresentedOutcome); err != nil {
		return nil, fmt.Errorf("bet %s has malformed presented outcome: %w", bet.ID, err)
	}

	bet.OverrideApplied = override == 1
	bet.ExactnessMissed = missed == 1
	bet.Win = win == 1
	bet.Completed = completed == 1
	if completedAt.Valid {
		t := completedAt.Time
		bet.CompletedAt = &t
	}
	return &bet, nil
}

// --- server seeds ---

// SaveServerSeed inserts a new seed row.
func (s *SQLiteDB) SaveServerSeed(seed *seeds.ServerSeed) error {
	var revealedAt any
	if seed.RevealedAt != nil {
		revealedAt = seed.RevealedAt.UTC()
	}
	_, err := s.db.Exec(`INSERT INTO server_seeds
		(id, chain_id, secret, commitment, active, nonce_counter, created_at, revealed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		seed.ID, seed.ChainID, seed.Secret, seed.Commitment,
		boolInt(seed.Active), seed.NonceCounter, seed.CreatedAt.UTC(), revealedAt)
	return err
}

// UpdateServerSeed writes the mutable seed fields (active flag, nonce
// counter, reveal timestamp).
func (s *SQLiteDB) UpdateServerSeed(seed *seeds.ServerSeed) error {
	var revealedAt any
	if seed.RevealedAt != nil {
		revealedAt = seed.RevealedAt.UTC()
	}
	_, err := s.db.Exec(`UPDATE server_seeds
		SET active = ?, nonce_counter = ?, revealed_at = ?
		WHERE id = ?`,
		boolInt(seed.Active), seed.NonceCounter, revealedAt, seed.ID)
	return err
}

// GetServerSeed loads a seed by id.
func (s *SQLiteDB) GetServerSeed(id string) (*seeds.ServerSeed, error) {
	return s.scanSeed(s.db.QueryRow(`SELECT
		id, chain_id, secret, commitment, active, nonce_counter, created_at, revealed_at
		FROM server_seeds WHERE id = ?`, id))
}

// ActiveServerSeed loads the chain's active seed.
func (s *SQLiteDB) ActiveServerSeed(chainID string) (*seeds.ServerSeed, error) {
	return s.scanSeed(s.db.QueryRow(`SELECT
		id, chain_id, secret, commitment, active, nonce_counter, created_at, revealed_at
		FROM server_seeds WHERE chain_id = ? AND active = 1`, chainID))
}

func (s *SQLiteDB) scanSeed(row *sql.Row) (*seeds.ServerSeed, error) {
	var (
		seed       seeds.ServerSeed
		active     int
		revealedAt sql.NullTime
	)
	err := row.Scan(&seed.ID, &seed.ChainID, &seed.Secret, &seed.Commitment,
		&active, &seed.NonceCounter, &seed.CreatedAt, &revealedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, seeds.ErrSeedNotFound
	}
	if err != nil {
		return nil, err
	}
	seed.Active = active == 1
	if revealedAt.Valid {
		t := revealedAt.Time
		seed.RevealedAt = &t
	}
	return &seed, nil
}

// --- control directives ---

// SaveGlobalControl upserts the single global control row.
func (s *SQLiteDB) SaveGlobalControl(g *control.GlobalControl) error {
	gameIDs, err := json.Marshal(g.GameIDs)
	if err != nil {
		return fmt.Errorf("marshal game ids: %w", err)
	}
	_, err = s.db.Exec(`INSERT INTO global_control
		(id, mode, game_ids, target_multiplier, exact, updated_at)
		VALUES (1, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			mode = excluded.mode,
			game_ids = excluded.game_ids,
			target_multiplier = excluded.target_multiplier,
			exact = excluded.exact,
			updated_at = excluded.updated_at`,
		string(g.Mode), string(gameIDs), g.TargetMultiplier, boolInt(g.Exact), g.UpdatedAt.UTC())
	return err
}

// DeleteGlobalControl clears the global control row.
func (s *SQLiteDB) DeleteGlobalControl() error {
	_, err := s.db.Exec(`DELETE FROM global_control WHERE id = 1`)
	return err
}

// GetGlobalControl loads the global control, or nil when unset.
func (s *SQLiteDB) GetGlobalControl() (*control.GlobalControl, error) {
	var (
		g       control.GlobalControl
		mode    string
		gameIDs string
		exact   int
	)
	err := s.db.QueryRow(`SELECT mode, game_ids, target_multiplier, exact, updated_at
		FROM global_control WHERE id = 1`).
		Scan(&mode, &gameIDs, &g.TargetMultiplier, &exact, &g.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	g.Mode = control.Mode(mode)
	g.Exact = exact == 1
	if err := json.Unmarshal([]byte(gameIDs), &g.GameIDs); err != nil {
		return nil, fmt.Errorf("malformed global control game ids: %w", err)
	}
	return &g, nil
}

// SaveUserGameControl upserts a per-(user,game) directive.
func (s *SQLiteDB) SaveUserGameControl(u *control.UserGameControl) error {
	_, err := s.db.Exec(`INSERT INTO user_game_controls
		(id, user_id, game_id, outcome_type, exact_multiplier, min_multiplier,
		 max_multiplier, remaining_games, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id, game_id) DO UPDATE SET
			id = excluded.id,
			outcome_type = excluded.outcome_type,
			exact_multiplier = excluded.exact_multiplier,
			min_multiplier = excluded.min_multiplier,
			max_multiplier = excluded.max_multiplier,
			remaining_games = excluded.remaining_games,
			updated_at = excluded.updated_at`,
		u.ID, u.UserID, u.GameID, string(u.OutcomeType), u.ExactMultiplier,
		u.MinMultiplier, u.MaxMultiplier, u.RemainingGames,
		u.CreatedAt.UTC(), u.UpdatedAt.UTC())
	return err
}

// DeleteUserGameControl removes an expired or cleared directive.
func (s *SQLiteDB) DeleteUserGameControl(id string) error {
	_, err := s.db.Exec(`DELETE FROM user_game_controls WHERE id = ?`, id)
	return err
}

// ListUserGameControls loads every per-(user,game) directive.
func (s *SQLiteDB) ListUserGameControls() ([]*control.UserGameControl, error) {
	rows, err := s.db.Query(`SELECT
		id, user_id, game_id, outcome_type, exact_multiplier, min_multiplier,
		max_multiplier, remaining_games, created_at, updated_at
		FROM user_game_controls`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*control.UserGameControl
	for rows.Next() {
		var (
			u       control.UserGameControl
			outcome string
		)
		if err := rows.Scan(&u.ID, &u.UserID, &u.GameID, &outcome,
			&u.ExactMultiplier, &u.MinMultiplier, &u.MaxMultiplier,
			&u.RemainingGames, &u.CreatedAt, &u.UpdatedAt); err != nil {
			return nil, err
		}
		u.OutcomeType = control.Outcome(outcome)
		out = append(out, &u)
	}
	return out, rows.Err()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

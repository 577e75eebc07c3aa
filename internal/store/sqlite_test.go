package store

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fairstack/engine-go/internal/control"
	"github.com/fairstack/engine-go/internal/engine"
	"github.com/fairstack/engine-go/internal/seeds"
)

func newTestDB(t *testing.T) *SQLiteDB {
	t.Helper()
	db, err := NewSQLiteDB(":memory:")
	if err != nil {
		t.Fatalf("NewSQLiteDB: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.Migrate(); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	return db
}

func testSeed(t *testing.T, db *SQLiteDB, chainID string) *seeds.ServerSeed {
	t.Helper()
	seed := &seeds.ServerSeed{
		ID:         "seed-" + chainID,
		ChainID:    chainID,
		Secret:     "secret",
		Commitment: seeds.Commit("secret"),
		Active:     true,
		CreatedAt:  time.Now().UTC(),
	}
	if err := db.SaveServerSeed(seed); err != nil {
		t.Fatalf("SaveServerSeed: %v", err)
	}
	return seed
}

func TestBetRoundTrip(t *testing.T) {
	db := newTestDB(t)
	seed := testSeed(t, db, "main")

	bet := &Bet{
		UserID:       "u1",
		GameID:       "dice",
		ChainID:      "main",
		Amount:       decimal.RequireFromString("10.50"),
		ClientSeed:   "abc",
		ServerSeedID: seed.ID,
		Nonce:        7,
		RawNonce:     7,
		ParamsJSON:   `{"target":50,"condition":"over"}`,
		RawOutcome: engine.GameResult{
			Metric:      63.4,
			MetricLabel: "roll",
		},
		PresentedOutcome: engine.GameResult{
			Metric:      63.4,
			MetricLabel: "roll",
		},
		Win:        true,
		Multiplier: 1.98,
		Profit:     decimal.RequireFromString("10.29"),
		Completed:  true,
	}
	if err := db.SaveBet(bet); err != nil {
		t.Fatalf("SaveBet: %v", err)
	}
	if bet.ID == "" {
		t.Fatal("SaveBet did not assign an id")
	}

	got, err := db.GetBet(bet.ID)
	if err != nil {
		t.Fatalf("GetBet: %v", err)
	}
	if got.UserID != "u1" || got.GameID != "dice" || got.Nonce != 7 {
		t.Errorf("loaded bet mismatch: %+v", got)
	}
	if !got.Amount.Equal(bet.Amount) || !got.Profit.Equal(bet.Profit) {
		t.Errorf("money round-trip mismatch: amount=%s profit=%s", got.Amount, got.Profit)
	}
	if got.RawOutcome.Metric != 63.4 || got.PresentedOutcome.Metric != 63.4 {
		t.Errorf("outcome round-trip mismatch: %+v", got)
	}
	if got.OverrideApplied || !got.Completed {
		t.Errorf("flags mismatch: %+v", got)
	}
}

func TestGetBetNotFound(t *testing.T) {
	db := newTestDB(t)
	if _, err := db.GetBet("missing"); err != ErrBetNotFound {
		t.Errorf("GetBet(missing) = %v, want ErrBetNotFound", err)
	}
}

func TestCompleteBetOnce(t *testing.T) {
	db := newTestDB(t)
	seed := testSeed(t, db, "main")

	bet := &Bet{
		UserID: "u1", GameID: "crash", ChainID: "main",
		Amount: decimal.NewFromInt(5), ClientSeed: "c",
		ServerSeedID: seed.ID, Nonce: 1, RawNonce: 1,
		ParamsJSON:       `{}`,
		RawOutcome:       engine.GameResult{Metric: 2.4},
		PresentedOutcome: engine.GameResult{Metric: 2.4},
	}
	if err := db.SaveBet(bet); err != nil {
		t.Fatal(err)
	}

	done := Completion{Win: true, Multiplier: 2.0, Profit: decimal.NewFromInt(5)}
	ok, err := db.CompleteBet(bet.ID, done)
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("first completion rejected")
	}

	// Second attempt must be a no-op.
	ok, err = db.CompleteBet(bet.ID, Completion{Win: false, Multiplier: 0, Profit: decimal.NewFromInt(-5)})
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatal("second completion was accepted")
	}

	got, _ := db.GetBet(bet.ID)
	if !got.Win || got.Multiplier != 2.0 {
		t.Errorf("completion overwritten: %+v", got)
	}
}

func TestNonceUniquePerSeed(t *testing.T) {
	db := newTestDB(t)
	seed := testSeed(t, db, "main")

	mk := func(nonce uint64) *Bet {
		return &Bet{
			UserID: "u1", GameID: "dice", ChainID: "main",
			Amount: decimal.NewFromInt(1), ClientSeed: "c",
			ServerSeedID: seed.ID, Nonce: nonce, RawNonce: nonce,
			ParamsJSON: `{}`,
		}
	}
	if err := db.SaveBet(mk(1)); err != nil {
		t.Fatal(err)
	}
	if err := db.SaveBet(mk(1)); err == nil {
		t.Fatal("duplicate (seed, nonce) accepted")
	}
}

func TestServerSeedLifecycle(t *testing.T) {
	db := newTestDB(t)
	seed := testSeed(t, db, "main")

	got, err := db.ActiveServerSeed("main")
	if err != nil {
		t.Fatal(err)
	}
	if got.ID != seed.ID || !got.Active {
		t.Errorf("active seed mismatch: %+v", got)
	}

	got.Active = false
	got.NonceCounter = 42
	now := time.Now().UTC()
	got.RevealedAt = &now
	if err := db.UpdateServerSeed(got); err != nil {
		t.Fatal(err)
	}

	if _, err := db.ActiveServerSeed("main"); err != seeds.ErrSeedNotFound {
		t.Errorf("deactivated seed still active: %v", err)
	}

	reloaded, err := db.GetServerSeed(seed.ID)
	if err != nil {
		t.Fatal(err)
	}
	if reloaded.Active || reloaded.NonceCounter != 42 || reloaded.RevealedAt == nil {
		t.Errorf("seed update lost: %+v", reloaded)
	}
	if reloaded.Commitment != seeds.Commit(reloaded.Secret) {
		t.Error("commitment does not match stored secret")
	}
}

func TestControlPersistence(t *testing.T) {
	db := newTestDB(t)

	g, err := db.GetGlobalControl()
	if err != nil {
		t.Fatal(err)
	}
	if g != nil {
		t.Fatalf("fresh database has a global control: %+v", g)
	}

	want := &control.GlobalControl{
		Mode:             control.ModeForceLose,
		GameIDs:          []string{"crash", "dice"},
		TargetMultiplier: 1.5,
		UpdatedAt:        time.Now().UTC(),
	}
	if err := db.SaveGlobalControl(want); err != nil {
		t.Fatal(err)
	}
	g, err = db.GetGlobalControl()
	if err != nil {
		t.Fatal(err)
	}
	if g.Mode != want.Mode || len(g.GameIDs) != 2 || g.TargetMultiplier != 1.5 {
		t.Errorf("global control round-trip mismatch: %+v", g)
	}

	u := &control.UserGameControl{
		ID: "ctl-1", UserID: "u9", GameID: "crash",
		OutcomeType: control.OutcomeLose, MaxMultiplier: 1.5,
		RemainingGames: 1,
		CreatedAt:      time.Now().UTC(), UpdatedAt: time.Now().UTC(),
	}
	if err := db.SaveUserGameControl(u); err != nil {
		t.Fatal(err)
	}

	// Upsert replaces the directive for the same (user, game).
	u2 := *u
	u2.ID = "ctl-2"
	u2.RemainingGames = 5
	if err := db.SaveUserGameControl(&u2); err != nil {
		t.Fatal(err)
	}

	list, err := db.ListUserGameControls()
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 || list[0].ID != "ctl-2" || list[0].RemainingGames != 5 {
		t.Errorf("user control upsert mismatch: %+v", list)
	}

	if err := db.DeleteUserGameControl("ctl-2"); err != nil {
		t.Fatal(err)
	}
	if err := db.DeleteGlobalControl(); err != nil {
		t.Fatal(err)
	}
	list, _ = db.ListUserGameControls()
	g, _ = db.GetGlobalControl()
	if len(list) != 0 || g != nil {
		t.Error("controls survived deletion")
	}
}

package control

import (
	"sync"
	"testing"

	"github.com/fairstack/engine-go/internal/games"
)

type memStore struct {
	mu     sync.Mutex
	global *GlobalControl
	users  map[string]*UserGameControl
}

func newMemStore() *memStore {
	return &memStore{users: make(map[string]*UserGameControl)}
}

func (m *memStore) SaveGlobalControl(g *GlobalControl) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *g
	m.global = &copied
	return nil
}

func (m *memStore) DeleteGlobalControl() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.global = nil
	return nil
}

func (m *memStore) SaveUserGameControl(u *UserGameControl) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *u
	m.users[u.ID] = &copied
	return nil
}

func (m *memStore) DeleteUserGameControl(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.users, id)
	return nil
}

func (m *memStore) ListUserGameControls() ([]*UserGameControl, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*UserGameControl, 0, len(m.users))
	for _, u := range m.users {
		copied := *u
		out = append(out, &copied)
	}
	return out, nil
}

func (m *memStore) GetGlobalControl() (*GlobalControl, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.global == nil {
		return nil, nil
	}
	copied := *m.global
	return &copied, nil
}

func newTestController(t *testing.T) (*Controller, *memStore) {
	t.Helper()
	store := newMemStore()
	c, err := NewController(store)
	if err != nil {
		t.Fatalf("NewController: %v", err)
	}
	return c, store
}

func TestConsumeNoDirective(t *testing.T) {
	c, _ := newTestController(t)
	d, err := c.Consume("u1", "dice")
	if err != nil {
		t.Fatal(err)
	}
	if d != nil {
		t.Errorf("expected no directive, got %+v", d)
	}
}

func TestUserDirectivePrecedenceAndExpiry(t *testing.T) {
	c, store := newTestController(t)

	if err := c.SetGlobal(GlobalControl{Mode: ModeForceWin}); err != nil {
		t.Fatal(err)
	}
	if err := c.SetUserControl(UserGameControl{
		UserID:         "u9",
		GameID:         "crash",
		OutcomeType:    OutcomeLose,
		MaxMultiplier:  1.5,
		RemainingGames: 2,
	}); err != nil {
		t.Fatal(err)
	}

	// First two consumptions hit the user directive.
	for i := 0; i < 2; i++ {
		d, err := c.Consume("u9", "crash")
		if err != nil {
			t.Fatal(err)
		}
		if d == nil || d.Source != "user" || d.Outcome != OutcomeLose {
			t.Fatalf("consumption %d: got %+v, want user LOSE directive", i, d)
		}
	}

	// Directive expired at zero: deleted from the store, global applies.
	rows, _ := store.ListUserGameControls()
	if len(rows) != 0 {
		t.Errorf("expired directive still persisted: %d rows", len(rows))
	}
	d, err := c.Consume("u9", "crash")
	if err != nil {
		t.Fatal(err)
	}
	if d == nil || d.Source != "global" || d.Outcome != OutcomeWin {
		t.Fatalf("after expiry got %+v, want global WIN directive", d)
	}
}

func TestConcurrentConsumption(t *testing.T) {
	c, _ := newTestController(t)

	const remaining = 10
	if err := c.SetUserControl(UserGameControl{
		UserID:         "u1",
		GameID:         "dice",
		OutcomeType:    OutcomeWin,
		RemainingGames: remaining,
	}); err != nil {
		t.Fatal(err)
	}

	const bets = 50
	var wg sync.WaitGroup
	consumed := make(chan string, bets)
	for i := 0; i < bets; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d, err := c.Consume("u1", "dice")
			if err != nil {
				t.Error(err)
				return
			}
			if d != nil {
				consumed <- d.Source
			}
		}()
	}
	wg.Wait()
	close(consumed)

	count := 0
	for range consumed {
		count++
	}
	if count != remaining {
		t.Errorf("%d bets consumed the directive, want exactly %d", count, remaining)
	}
}

func TestRestoreReturnsConsumedSlot(t *testing.T) {
	c, _ := newTestController(t)

	if err := c.SetUserControl(UserGameControl{
		UserID:         "u1",
		GameID:         "dice",
		OutcomeType:    OutcomeWin,
		RemainingGames: 2,
	}); err != nil {
		t.Fatal(err)
	}

	d, err := c.Consume("u1", "dice")
	if err != nil {
		t.Fatal(err)
	}
	if err := c.Restore(d); err != nil {
		t.Fatalf("Restore: %v", err)
	}

	_, users := c.Snapshot()
	if len(users) != 1 || users[0].RemainingGames != 2 {
		t.Fatalf("slot not restored: %+v", users)
	}
}

func TestRestoreReinsertsExpiredControl(t *testing.T) {
	c, store := newTestController(t)

	if err := c.SetUserControl(UserGameControl{
		UserID:         "u1",
		GameID:         "dice",
		OutcomeType:    OutcomeWin,
		RemainingGames: 1,
	}); err != nil {
		t.Fatal(err)
	}

	// Consuming the last game deletes the control entirely.
	d, err := c.Consume("u1", "dice")
	if err != nil {
		t.Fatal(err)
	}
	if rows, _ := store.ListUserGameControls(); len(rows) != 0 {
		t.Fatalf("control not expired: %+v", rows)
	}

	if err := c.Restore(d); err != nil {
		t.Fatalf("Restore: %v", err)
	}
	d2, err := c.Consume("u1", "dice")
	if err != nil {
		t.Fatal(err)
	}
	if d2 == nil || d2.Source != "user" {
		t.Fatalf("restored control not consumable: %+v", d2)
	}
}

func TestRestoreIgnoresGlobalAndNil(t *testing.T) {
	c, _ := newTestController(t)
	if err := c.SetGlobal(GlobalControl{Mode: ModeForceWin}); err != nil {
		t.Fatal(err)
	}

	d, err := c.Consume("u1", "dice")
	if err != nil {
		t.Fatal(err)
	}
	if d == nil || d.Source != "global" {
		t.Fatalf("expected global directive, got %+v", d)
	}
	if err := c.Restore(d); err != nil {
		t.Errorf("Restore(global) = %v", err)
	}
	if err := c.Restore(nil); err != nil {
		t.Errorf("Restore(nil) = %v", err)
	}
}

func TestGlobalControlGameScope(t *testing.T) {
	c, _ := newTestController(t)
	if err := c.SetGlobal(GlobalControl{Mode: ModeForceLose, GameIDs: []string{"crash"}}); err != nil {
		t.Fatal(err)
	}

	d, _ := c.Consume("u1", "crash")
	if d == nil || d.Outcome != OutcomeLose {
		t.Errorf("crash should be biased, got %+v", d)
	}

	d, _ = c.Consume("u1", "dice")
	if d != nil {
		t.Errorf("dice should not be biased, got %+v", d)
	}
}

func TestReset(t *testing.T) {
	c, store := newTestController(t)
	_ = c.SetGlobal(GlobalControl{Mode: ModeForceWin})
	_ = c.SetUserControl(UserGameControl{UserID: "u1", GameID: "dice", OutcomeType: OutcomeWin, RemainingGames: 5})

	if err := c.Reset(); err != nil {
		t.Fatal(err)
	}

	g, users := c.Snapshot()
	if g != nil || len(users) != 0 {
		t.Errorf("controls survived reset: global=%+v users=%d", g, len(users))
	}
	if store.global != nil || len(store.users) != 0 {
		t.Error("persisted controls survived reset")
	}
}

func probeSequence(t *testing.T, points ...float64) (ProbeFunc, *uint64) {
	t.Helper()
	nonce := uint64(100)
	idx := 0
	fn := func() (Probe, error) {
		if idx >= len(points) {
			t.Fatal("probe sequence exhausted")
		}
		point := points[idx]
		idx++
		nonce++
		return Probe{
			Nonce:      nonce,
			Result:     games.GameResult{Metric: point, MetricLabel: "crash_point"},
			Settlement: games.Settlement{Win: point >= 3.0, Multiplier: ternary(point >= 3.0, 3.0, 0)},
		}, nil
	}
	return fn, &nonce
}

func ternary(cond bool, a, b float64) float64 {
	if cond {
		return a
	}
	return b
}

func TestResolveRawAlreadySatisfies(t *testing.T) {
	d := &Directive{Outcome: OutcomeLose, Max: 1.5}
	raw := Probe{
		Nonce:      7,
		Result:     games.GameResult{Metric: 1.22},
		Settlement: games.Settlement{Win: false},
	}

	res, err := Resolve(d, raw, nil, 10)
	if err != nil {
		t.Fatal(err)
	}
	if res.Applied {
		t.Error("override marked applied though the raw draw already satisfied it")
	}
	if res.Chosen.Nonce != 7 {
		t.Errorf("chosen nonce %d, want the raw draw's 7", res.Chosen.Nonce)
	}
}

func TestResolveFindsSatisfyingProbe(t *testing.T) {
	// Force LOSE under 1.5x; the raw draw won at 3x, probes crash at
	// 4.2 then 1.37.
	d := &Directive{Outcome: OutcomeLose, Max: 1.5}
	raw := Probe{
		Nonce:      7,
		Result:     games.GameResult{Metric: 3.61},
		Settlement: games.Settlement{Win: true, Multiplier: 3.0},
	}
	probe, _ := probeSequence(t, 4.2, 1.37)

	res, err := Resolve(d, raw, probe, 10)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Applied {
		t.Error("override not marked applied")
	}
	if res.ExactnessMissed {
		t.Error("exactness flagged though a probe satisfied the directive")
	}
	if res.Chosen.Result.Metric != 1.37 {
		t.Errorf("chosen crash point %v, want 1.37", res.Chosen.Result.Metric)
	}
	if res.ProbesUsed != 2 {
		t.Errorf("ProbesUsed = %d, want 2", res.ProbesUsed)
	}
}

func TestResolveExactnessMissed(t *testing.T) {
	// Every probe keeps winning; a forced loss can't be found.
	d := &Directive{Outcome: OutcomeLose, Max: 1.5}
	raw := Probe{
		Nonce:      7,
		Result:     games.GameResult{Metric: 5.0},
		Settlement: games.Settlement{Win: true, Multiplier: 3.0},
	}
	probe, _ := probeSequence(t, 6.0, 4.0, 3.5)

	res, err := Resolve(d, raw, probe, 3)
	if err != nil {
		t.Fatal(err)
	}
	if !res.ExactnessMissed {
		t.Error("exactness miss not flagged")
	}
	// Closest candidate: the 3.5 crash (smallest excess over the 1.5 cap
	// among same-side losses... all are wins, so smallest metric).
	if res.Chosen.Result.Metric != 3.5 {
		t.Errorf("chosen %v, want the closest probe 3.5", res.Chosen.Result.Metric)
	}
}

func TestBoundsJudgePayoutScaleNotMetric(t *testing.T) {
	// Mines-style probe: the metric is a cell index, the payout sits in
	// Bound. A 5x floor must reject a 1.125x pick set even though the
	// first mine landed on cell 12.
	d := &Directive{Outcome: OutcomeWin, Min: 5}

	low := Probe{
		Result:     games.GameResult{Metric: 12, MetricLabel: "first_mine"},
		Settlement: games.Settlement{Win: true, Multiplier: 1.125},
		Bound:      1.125,
	}
	if d.satisfiedBy(low) {
		t.Error("1.125x payout satisfied a 5x floor through the cell-index metric")
	}

	high := Probe{
		Result:     games.GameResult{Metric: 3, MetricLabel: "first_mine"},
		Settlement: games.Settlement{Win: true, Multiplier: 5.2},
		Bound:      5.2,
	}
	if !d.satisfiedBy(high) {
		t.Error("5.2x payout rejected by a 5x floor")
	}

	// Without Bound the metric stands in, as for crash and limbo.
	crash := Probe{
		Result:     games.GameResult{Metric: 6.1, MetricLabel: "crash_point"},
		Settlement: games.Settlement{Win: true, Multiplier: 6.1},
	}
	if !d.satisfiedBy(crash) {
		t.Error("crash point not judged on the multiplier scale")
	}
}

func TestResolvePendingMatchesOnBoundAlone(t *testing.T) {
	// Crash without auto cash-out settles later, so probes carry no
	// win/lose side; a forced-win floor must still select on the crash
	// point instead of burning the whole probe budget.
	d := &Directive{Outcome: OutcomeWin, Min: 2.0}
	raw := Probe{
		Nonce:      1,
		Result:     games.GameResult{Metric: 1.2, MetricLabel: "crash_point"},
		Settlement: games.Settlement{Pending: true},
	}

	points := []float64{1.1, 2.6}
	idx := 0
	probe := func() (Probe, error) {
		point := points[idx]
		idx++
		return Probe{
			Nonce:      uint64(idx + 1),
			Result:     games.GameResult{Metric: point, MetricLabel: "crash_point"},
			Settlement: games.Settlement{Pending: true},
		}, nil
	}

	res, err := Resolve(d, raw, probe, 10)
	if err != nil {
		t.Fatal(err)
	}
	if res.ExactnessMissed {
		t.Error("pending probes judged on their unset win flag")
	}
	if !res.Applied || res.Chosen.Result.Metric != 2.6 {
		t.Errorf("chosen %+v, want the 2.6 crash", res.Chosen)
	}
}

func TestResolveExactTolerance(t *testing.T) {
	d := &Directive{Outcome: OutcomeWin, Exact: 3.0}
	hit := Probe{
		Result:     games.GameResult{Metric: 3.1},
		Settlement: games.Settlement{Win: true, Multiplier: 3.0},
	}
	if !d.satisfiedBy(hit) {
		t.Error("a 3.1 crash should satisfy exact 3.0 within the 5% window")
	}

	miss := Probe{
		Result:     games.GameResult{Metric: 4.0},
		Settlement: games.Settlement{Win: true, Multiplier: 3.0},
	}
	if d.satisfiedBy(miss) {
		t.Error("a 4.0 crash should miss exact 3.0")
	}
}

package seeds

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"sync"
	"testing"
)

type memStore struct {
	mu    sync.Mutex
	seeds map[string]*ServerSeed

	failUpdates bool
}

func newMemStore() *memStore {
	return &memStore{seeds: make(map[string]*ServerSeed)}
}

func (m *memStore) SaveServerSeed(s *ServerSeed) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *s
	m.seeds[s.ID] = &cp
	return nil
}

func (m *memStore) UpdateServerSeed(s *ServerSeed) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failUpdates {
		return errors.New("store offline")
	}
	if _, ok := m.seeds[s.ID]; !ok {
		return ErrSeedNotFound
	}
	cp := *s
	m.seeds[s.ID] = &cp
	return nil
}

func (m *memStore) GetServerSeed(id string) (*ServerSeed, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.seeds[id]
	if !ok {
		return nil, ErrSeedNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *memStore) ActiveServerSeed(chainID string) (*ServerSeed, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.seeds {
		if s.ChainID == chainID && s.Active {
			cp := *s
			return &cp, nil
		}
	}
	return nil, ErrSeedNotFound
}

func TestCommit(t *testing.T) {
	sum := sha256.Sum256([]byte("secret"))
	if got := Commit("secret"); got != hex.EncodeToString(sum[:]) {
		t.Errorf("Commit = %s", got)
	}
}

func TestEnsureChain(t *testing.T) {
	r := NewRegistry(newMemStore())

	seed, err := r.EnsureChain("main")
	if err != nil {
		t.Fatalf("EnsureChain: %v", err)
	}
	if !seed.Active || seed.ChainID != "main" {
		t.Errorf("fresh seed: %+v", seed)
	}
	if seed.Secret == "" || seed.Commitment != Commit(seed.Secret) {
		t.Error("commitment does not bind the secret")
	}

	// A second call returns the existing seed, not a new one.
	again, err := r.EnsureChain("main")
	if err != nil {
		t.Fatalf("EnsureChain again: %v", err)
	}
	if again.ID != seed.ID {
		t.Errorf("EnsureChain replaced the active seed: %s -> %s", seed.ID, again.ID)
	}
}

func TestNextNonceContiguous(t *testing.T) {
	r := NewRegistry(newMemStore())
	if _, err := r.EnsureChain("main"); err != nil {
		t.Fatal(err)
	}

	const n = 100
	seen := make(map[uint64]bool, n)
	var wg sync.WaitGroup
	var mu sync.Mutex
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d, err := r.NextNonce("main")
			if err != nil {
				t.Errorf("NextNonce: %v", err)
				return
			}
			mu.Lock()
			if seen[d.Nonce] {
				t.Errorf("nonce %d handed out twice", d.Nonce)
			}
			seen[d.Nonce] = true
			mu.Unlock()
		}()
	}
	wg.Wait()

	for nonce := uint64(1); nonce <= n; nonce++ {
		if !seen[nonce] {
			t.Fatalf("nonce %d missing from a %d-draw run", nonce, n)
		}
	}
}

func TestNextNonceRollbackOnPersistFailure(t *testing.T) {
	store := newMemStore()
	r := NewRegistry(store)
	if _, err := r.EnsureChain("main"); err != nil {
		t.Fatal(err)
	}

	d1, err := r.NextNonce("main")
	if err != nil {
		t.Fatal(err)
	}

	store.failUpdates = true
	if _, err := r.NextNonce("main"); err == nil {
		t.Fatal("NextNonce succeeded with a failing store")
	}
	store.failUpdates = false

	d2, err := r.NextNonce("main")
	if err != nil {
		t.Fatal(err)
	}
	if d2.Nonce != d1.Nonce+1 {
		t.Errorf("failed draw burned a nonce: %d then %d", d1.Nonce, d2.Nonce)
	}
}

func TestRotate(t *testing.T) {
	r := NewRegistry(newMemStore())
	first, err := r.EnsureChain("main")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := r.NextNonce("main"); err != nil {
		t.Fatal(err)
	}

	old, current, err := r.Rotate("main")
	if err != nil {
		t.Fatalf("Rotate: %v", err)
	}
	if old.ID != first.ID || old.Active {
		t.Errorf("old seed not deactivated: %+v", old)
	}
	if current.ID == old.ID || !current.Active {
		t.Errorf("rotation did not mint a new seed: %+v", current)
	}
	if current.Commitment == old.Commitment {
		t.Error("new seed reuses the old commitment")
	}

	// The fresh seed starts its own nonce sequence.
	d, err := r.NextNonce("main")
	if err != nil {
		t.Fatal(err)
	}
	if d.SeedID != current.ID || d.Nonce != 1 {
		t.Errorf("post-rotation draw: %+v", d)
	}
}

func TestCommitment(t *testing.T) {
	r := NewRegistry(newMemStore())
	seed, err := r.EnsureChain("main")
	if err != nil {
		t.Fatal(err)
	}

	id, commitment, err := r.Commitment("main")
	if err != nil {
		t.Fatalf("Commitment: %v", err)
	}
	if id != seed.ID || commitment != seed.Commitment {
		t.Errorf("Commitment = (%s, %s), want (%s, %s)", id, commitment, seed.ID, seed.Commitment)
	}

	// Asking for a brand-new chain bootstraps it rather than failing.
	id2, c2, err := r.Commitment("side")
	if err != nil {
		t.Fatalf("Commitment(side): %v", err)
	}
	if id2 == seed.ID || c2 == commitment {
		t.Error("new chain shares seed material with main")
	}
}

func TestRevealRefusesActiveSeed(t *testing.T) {
	r := NewRegistry(newMemStore())
	seed, err := r.EnsureChain("main")
	if err != nil {
		t.Fatal(err)
	}

	if _, err := r.Reveal("main", seed.ID); !errors.Is(err, ErrSeedStillActive) {
		t.Fatalf("Reveal(active) = %v, want ErrSeedStillActive", err)
	}

	old, _, err := r.Rotate("main")
	if err != nil {
		t.Fatal(err)
	}

	revealed, err := r.Reveal("main", old.ID)
	if err != nil {
		t.Fatalf("Reveal: %v", err)
	}
	if revealed.Secret != old.Secret || revealed.RevealedAt == nil {
		t.Errorf("reveal incomplete: %+v", revealed)
	}
	stamp := *revealed.RevealedAt

	// Repeat reveals keep the original timestamp.
	again, err := r.Reveal("main", old.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !again.RevealedAt.Equal(stamp) {
		t.Error("second reveal moved the timestamp")
	}
}

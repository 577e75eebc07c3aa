package seeds

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrEntropy means the system random source failed. Fatal: no new
	// seeds may be created until it recovers.
	ErrEntropy = errors.New("entropy source unavailable")

	// ErrSeedStillActive rejects revealing a seed that is still taking
	// bets. Revealing early would void the commitment for every bet on
	// the chain.
	ErrSeedStillActive = errors.New("server seed is still active")

	// ErrNoActiveSeed means the chain has no active seed to serve nonces.
	ErrNoActiveSeed = errors.New("no active server seed for chain")

	// ErrSeedNotFound means the requested seed does not exist.
	ErrSeedNotFound = errors.New("server seed not found")
)

// ServerSeed is one committed secret in a chain's seed history. Secret is
// revealable only after the seed is deactivated by rotation.
type ServerSeed struct {
	ID           string     `json:"id"`
	ChainID      string     `json:"chain_id"`
	Secret       string     `json:"-"`
	Commitment   string     `json:"commitment"`
	Active       bool       `json:"active"`
	NonceCounter uint64     `json:"nonce_counter"`
	CreatedAt    time.Time  `json:"created_at"`
	RevealedAt   *time.Time `json:"revealed_at,omitempty"`
}

// Store persists seed rows. Implemented by the sqlite store.
type Store interface {
	SaveServerSeed(seed *ServerSeed) error
	UpdateServerSeed(seed *ServerSeed) error
	GetServerSeed(id string) (*ServerSeed, error)
	ActiveServerSeed(chainID string) (*ServerSeed, error)
}

// Registry owns server-seed lifecycle per chain: creation, commitment,
// nonce allocation, rotation and reveal. Nonce allocation is the engine's
// single mandatory serialization point, so each chain carries its own
// mutex; rotation takes the same lock and therefore never races an
// allocation on its chain, while other chains proceed untouched.
type Registry struct {
	store Store

	mu     sync.RWMutex
	chains map[string]*chain
}

type chain struct {
	mu     sync.Mutex
	active *ServerSeed
}

// NewRegistry builds a registry over the given store.
func NewRegistry(store Store) *Registry {
	return &Registry{store: store, chains: make(map[string]*chain)}
}

// Commit computes the published commitment hash for a secret.
func Commit(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}

func newSecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("%w: %v", ErrEntropy, err)
	}
	return hex.EncodeToString(buf), nil
}

func (r *Registry) chainFor(chainID string) *chain {
	r.mu.RLock()
	c, ok := r.chains[chainID]
	r.mu.RUnlock()
	if ok {
		return c
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok = r.chains[chainID]; !ok {
		c = &chain{}
		r.chains[chainID] = c
	}
	return c
}

// EnsureChain loads the chain's active seed from the store, creating the
// first seed if the chain is new. Called at startup and lazily on first
// use of a chain.
func (r *Registry) EnsureChain(chainID string) (*ServerSeed, error) {
	c := r.chainFor(chainID)
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.active != nil {
		return c.active, nil
	}

	seed, err := r.store.ActiveServerSeed(chainID)
	if err == nil && seed != nil {
		c.active = seed
		return seed, nil
	}
	if err != nil && !errors.Is(err, ErrSeedNotFound) {
		return nil, fmt.Errorf("load active seed for chain %s: %w", chainID, err)
	}

	return r.createLocked(c, chainID)
}

// Rotate deactivates the chain's current seed and activates a fresh one.
// The outgoing seed becomes revealable. Blocks nonce allocation on this
// chain for the duration of the switch.
func (r *Registry) Rotate(chainID string) (old, current *ServerSeed, err error) {
	c := r.chainFor(chainID)
	c.mu.Lock()
	defer c.mu.Unlock()

	old = c.active
	if old == nil {
		if old, err = r.store.ActiveServerSeed(chainID); err != nil && !errors.Is(err, ErrSeedNotFound) {
			return nil, nil, err
		}
	}

	if old != nil {
		old.Active = false
		if err := r.store.UpdateServerSeed(old); err != nil {
			return nil, nil, fmt.Errorf("deactivate seed %s: %w", old.ID, err)
		}
	}

	current, err = r.createLocked(c, chainID)
	if err != nil {
		return nil, nil, err
	}
	return old, current, nil
}

// createLocked generates and persists a fresh active seed. Caller holds
// the chain mutex.
func (r *Registry) createLocked(c *chain, chainID string) (*ServerSeed, error) {
	secret, err := newSecret()
	if err != nil {
		return nil, err
	}

	seed := &ServerSeed{
		ID:         uuid.New().String(),
		ChainID:    chainID,
		Secret:     secret,
		Commitment: Commit(secret),
		Active:     true,
		CreatedAt:  time.Now().UTC(),
	}
	if err := r.store.SaveServerSeed(seed); err != nil {
		return nil, fmt.Errorf("persist server seed: %w", err)
	}
	c.active = seed
	return seed, nil
}

// Commitment returns the active seed's id and published hash for the
// chain. Never exposes the secret.
func (r *Registry) Commitment(chainID string) (seedID, commitment string, err error) {
	seed, err := r.EnsureChain(chainID)
	if err != nil {
		return "", "", err
	}
	return seed.ID, seed.Commitment, nil
}

// Draw is a nonce allocation: the seed material and the position in its
// sequence that one bet (or override probe) consumes. A Draw is never
// returned to the pool, even if the caller abandons the bet.
type Draw struct {
	SeedID     string
	Secret     string
	Commitment string
	Nonce      uint64
}

// NextNonce atomically advances the chain's counter and returns the draw.
func (r *Registry) NextNonce(chainID string) (Draw, error) {
	c := r.chainFor(chainID)
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.active == nil {
		seed, err := r.store.ActiveServerSeed(chainID)
		if err != nil {
			if errors.Is(err, ErrSeedNotFound) {
				return Draw{}, ErrNoActiveSeed
			}
			return Draw{}, err
		}
		c.active = seed
	}

	c.active.NonceCounter++
	if err := r.store.UpdateServerSeed(c.active); err != nil {
		// Roll the counter back so the sequence stays contiguous; the
		// draw was never handed out.
		c.active.NonceCounter--
		return Draw{}, fmt.Errorf("persist nonce counter: %w", err)
	}

	return Draw{
		SeedID:     c.active.ID,
		Secret:     c.active.Secret,
		Commitment: c.active.Commitment,
		Nonce:      c.active.NonceCounter,
	}, nil
}

// Reveal returns the secret of a deactivated seed. Active seeds are
// refused: their commitment must stay binding until rotation.
func (r *Registry) Reveal(chainID, seedID string) (*ServerSeed, error) {
	c := r.chainFor(chainID)
	c.mu.Lock()
	defer c.mu.Unlock()

	seed, err := r.store.GetServerSeed(seedID)
	if err != nil {
		return nil, err
	}
	if seed.ChainID != chainID {
		return nil, ErrSeedNotFound
	}
	if seed.Active {
		return nil, ErrSeedStillActive
	}

	if seed.RevealedAt == nil {
		now := time.Now().UTC()
		seed.RevealedAt = &now
		if err := r.store.UpdateServerSeed(seed); err != nil {
			return nil, fmt.Errorf("mark seed revealed: %w", err)
		}
	}
	return seed, nil
}

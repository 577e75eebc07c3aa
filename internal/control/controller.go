package control

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrControlNotFound is returned when deleting a directive that does not
// exist (or was already consumed).
var ErrControlNotFound = errors.New("control directive not found")

// Store persists control directives across restarts. Implemented by the
// sqlite store.
type Store interface {
	SaveGlobalControl(g *GlobalControl) error
	DeleteGlobalControl() error
	SaveUserGameControl(u *UserGameControl) error
	DeleteUserGameControl(id string) error
	ListUserGameControls() ([]*UserGameControl, error)
	GetGlobalControl() (*GlobalControl, error)
}

type userGameKey struct {
	userID string
	gameID string
}

// Controller holds the operator's bias directives. Lookups consume at
// most one directive per bet; per-(user,game) consumption is serialized
// by a keyed mutex so two simultaneous bets can never double-decrement
// the same remaining-games counter.
type Controller struct {
	store Store

	mu     sync.RWMutex
	global *GlobalControl
	users  map[userGameKey]*UserGameControl

	lockMu sync.Mutex
	locks  map[userGameKey]*sync.Mutex
}

// NewController loads persisted directives from the store.
func NewController(store Store) (*Controller, error) {
	c := &Controller{
		store: store,
		users: make(map[userGameKey]*UserGameControl),
		locks: make(map[userGameKey]*sync.Mutex),
	}

	global, err := store.GetGlobalControl()
	if err != nil {
		return nil, fmt.Errorf("load global control: %w", err)
	}
	c.global = global

	userControls, err := store.ListUserGameControls()
	if err != nil {
		return nil, fmt.Errorf("load user game controls: %w", err)
	}
	for _, u := range userControls {
		c.users[userGameKey{u.UserID, u.GameID}] = u
	}
	return c, nil
}

func (c *Controller) keyLock(k userGameKey) *sync.Mutex {
	c.lockMu.Lock()
	defer c.lockMu.Unlock()
	l, ok := c.locks[k]
	if !ok {
		l = &sync.Mutex{}
		c.locks[k] = l
	}
	return l
}

// Consume looks up the directive applying to this bet and, for user
// directives, burns one of its remaining games. Returns nil when no
// directive applies (or the global mode is NORMAL): the raw outcome
// stands.
func (c *Controller) Consume(userID, gameID string) (*Directive, error) {
	k := userGameKey{userID, gameID}
	l := c.keyLock(k)
	l.Lock()
	defer l.Unlock()

	c.mu.Lock()
	u, ok := c.users[k]
	if ok && u.RemainingGames > 0 {
		u.RemainingGames--
		u.UpdatedAt = time.Now().UTC()
		expired := u.RemainingGames == 0
		if expired {
			delete(c.users, k)
		}
		c.mu.Unlock()

		// remainingGames never goes negative: the decrement happened
		// under the key lock and the directive left the map at zero.
		var err error
		if expired {
			err = c.store.DeleteUserGameControl(u.ID)
		} else {
			err = c.store.SaveUserGameControl(u)
		}
		if err != nil {
			return nil, fmt.Errorf("persist user game control: %w", err)
		}
		return directiveFromUser(u), nil
	}
	if ok && u.RemainingGames <= 0 {
		// Stale row; drop it.
		delete(c.users, k)
	}

	g := c.global
	c.mu.Unlock()

	if g == nil || g.Mode == ModeNormal || !g.affects(gameID) {
		return nil, nil
	}
	return directiveFromGlobal(g), nil
}

// Restore hands a consumed slot back when the bet it was consumed for
// failed before settling. Global directives are uncounted, so only user
// directives restore anything. If the operator replaced the directive in
// the meantime, the old slot stays gone.
func (c *Controller) Restore(d *Directive) error {
	if d == nil || d.origin == nil {
		return nil
	}
	k := userGameKey{d.origin.UserID, d.origin.GameID}
	l := c.keyLock(k)
	l.Lock()
	defer l.Unlock()

	c.mu.Lock()
	existing, ok := c.users[k]
	if ok && existing.ID != d.origin.ID {
		c.mu.Unlock()
		return nil
	}
	var restored UserGameControl
	if ok {
		existing.RemainingGames++
		existing.UpdatedAt = time.Now().UTC()
		restored = *existing
	} else {
		restored = *d.origin
		restored.RemainingGames++
		restored.UpdatedAt = time.Now().UTC()
		c.users[k] = &restored
	}
	c.mu.Unlock()

	if err := c.store.SaveUserGameControl(&restored); err != nil {
		return fmt.Errorf("persist restored control: %w", err)
	}
	return nil
}

// SetGlobal installs (or with ModeNormal, effectively clears) the global
// control.
func (c *Controller) SetGlobal(g GlobalControl) error {
	g.UpdatedAt = time.Now().UTC()
	if err := c.store.SaveGlobalControl(&g); err != nil {
		return fmt.Errorf("persist global control: %w", err)
	}

	c.mu.Lock()
	c.global = &g
	c.mu.Unlock()
	return nil
}

// SetUserControl installs a per-(user,game) directive, replacing any
// existing one for the pair.
func (c *Controller) SetUserControl(u UserGameControl) error {
	if u.UserID == "" || u.GameID == "" {
		return fmt.Errorf("user game control requires user and game ids")
	}
	if u.OutcomeType != OutcomeWin && u.OutcomeType != OutcomeLose {
		return fmt.Errorf("user game control outcome must be WIN or LOSE, got %q", u.OutcomeType)
	}
	if u.RemainingGames <= 0 {
		return fmt.Errorf("user game control requires remaining games > 0")
	}
	if u.ID == "" {
		u.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	u.UpdatedAt = now

	if err := c.store.SaveUserGameControl(&u); err != nil {
		return fmt.Errorf("persist user game control: %w", err)
	}

	k := userGameKey{u.UserID, u.GameID}
	l := c.keyLock(k)
	l.Lock()
	c.mu.Lock()
	c.users[k] = &u
	c.mu.Unlock()
	l.Unlock()
	return nil
}

// ClearGlobal removes the global control, restoring natural outcomes
// for every game it covered.
func (c *Controller) ClearGlobal() error {
	if err := c.store.DeleteGlobalControl(); err != nil {
		return fmt.Errorf("clear global control: %w", err)
	}
	c.mu.Lock()
	c.global = nil
	c.mu.Unlock()
	return nil
}

// DeleteUserControl removes one per-(user,game) directive by ID.
func (c *Controller) DeleteUserControl(id string) error {
	c.mu.Lock()
	var key *userGameKey
	for k, u := range c.users {
		if u.ID == id {
			k := k
			key = &k
			break
		}
	}
	if key == nil {
		c.mu.Unlock()
		return ErrControlNotFound
	}
	delete(c.users, *key)
	c.mu.Unlock()

	if err := c.store.DeleteUserGameControl(id); err != nil {
		return fmt.Errorf("delete user game control %s: %w", id, err)
	}
	return nil
}

// Reset wipes every directive, global and per-user.
func (c *Controller) Reset() error {
	if err := c.store.DeleteGlobalControl(); err != nil {
		return fmt.Errorf("clear global control: %w", err)
	}

	c.mu.Lock()
	users := make([]*UserGameControl, 0, len(c.users))
	for _, u := range c.users {
		users = append(users, u)
	}
	c.global = nil
	c.users = make(map[userGameKey]*UserGameControl)
	c.mu.Unlock()

	for _, u := range users {
		if err := c.store.DeleteUserGameControl(u.ID); err != nil {
			return fmt.Errorf("clear user game control %s: %w", u.ID, err)
		}
	}
	return nil
}

// Snapshot returns the current directives for the admin listing.
func (c *Controller) Snapshot() (*GlobalControl, []*UserGameControl) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	users := make([]*UserGameControl, 0, len(c.users))
	for _, u := range c.users {
		copied := *u
		users = append(users, &copied)
	}
	var g *GlobalControl
	if c.global != nil {
		copied := *c.global
		g = &copied
	}
	return g, users
}

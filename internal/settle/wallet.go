package settle

import (
	"errors"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"
)

// ErrInsufficientBalance is returned when a debit exceeds the available
// balance.
var ErrInsufficientBalance = errors.New("insufficient balance")

// Wallet is the external balance collaborator. Debit is called before a
// bet resolves, Credit after a winning settlement.
type Wallet interface {
	Debit(userID string, amount decimal.Decimal) error
	Credit(userID string, amount decimal.Decimal) error
}

// Ledger is an in-memory Wallet used by the server in standalone mode and
// by tests. Production deployments replace it with the payment service
// client.
type Ledger struct {
	mu       sync.Mutex
	balances map[string]decimal.Decimal
}

// NewLedger returns an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{balances: make(map[string]decimal.Decimal)}
}

// Deposit adds funds to a user's balance.
func (l *Ledger) Deposit(userID string, amount decimal.Decimal) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.balances[userID] = l.balances[userID].Add(amount)
}

// Balance returns the user's current balance.
func (l *Ledger) Balance(userID string) decimal.Decimal {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balances[userID]
}

// Debit removes funds, failing without mutation when they are not there.
func (l *Ledger) Debit(userID string, amount decimal.Decimal) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	balance := l.balances[userID]
	if balance.LessThan(amount) {
		return fmt.Errorf("%w: have %s, need %s", ErrInsufficientBalance, balance, amount)
	}
	l.balances[userID] = balance.Sub(amount)
	return nil
}

// Credit adds winnings to the balance.
func (l *Ledger) Credit(userID string, amount decimal.Decimal) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.balances[userID] = l.balances[userID].Add(amount)
	return nil
}
